package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"SignalForge/internal/domain/repository"
	"SignalForge/internal/service/configstore"
	"SignalForge/internal/service/health"
	"SignalForge/internal/service/marketfeed"
	"SignalForge/internal/service/predictor"
	"SignalForge/internal/service/versioning"
	"SignalForge/internal/usecase"
	"SignalForge/pkg/config"
	xhttp "SignalForge/pkg/http"
	pkgkafka "SignalForge/pkg/kafka"
	applogger "SignalForge/pkg/logger"
	"SignalForge/pkg/queue"
)

// Deps bundles everything the application lifecycle manages.
type Deps struct {
	Cfg         *config.Config
	Log         *applogger.Logger
	ConfStore   *configstore.Store
	Enricher    *usecase.Enricher
	Predictor   *predictor.Predictor
	Versions    *versioning.Manager
	Health      *health.Monitor
	Tracker     *marketfeed.VolatilityTracker
	Stream      repository.MarketStream
	Consumer    *pkgkafka.Consumer
	KH          *usecase.KafkaSignalsHandler
	Publisher   repository.SignalPublisher
	Producer    *pkgkafka.Producer
	Outcomes    repository.OutcomeStore
	Pool        *queue.Pool
	HTTPHandler xhttp.Handler
}

// App encapsulates the application lifecycle: config watcher, market feed,
// Kafka intake, background jobs and the HTTP surface, started in dependency
// order and shut down in reverse.
type App struct {
	d          Deps
	httpServer *xhttp.Server
	cron       *cron.Cron
	cancel     context.CancelFunc
}

// New creates a new App instance with all dependencies.
func New(d Deps) *App {
	return &App{d: d}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	defer cancel()

	l := a.d.Log

	// aggregated error logs flow to Kafka when a producer is available
	if a.d.Producer != nil && a.d.Cfg.Kafka.LogsTopic != "" {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          a.d.Cfg.Kafka.LogsTopic,
			Publisher:      &logPublisher{producer: a.d.Producer},
		})
	}

	a.d.ConfStore.Start()
	l.Info("config store watching", applogger.String("path", a.d.Cfg.Enrichment.ConfigPath))

	a.warmPredictor(ctx)

	if a.d.Stream != nil && a.d.Tracker != nil {
		go a.d.Tracker.Run(ctx, a.d.Stream, l)
		l.Info("market feed started", applogger.Strings("assets", a.d.Cfg.MarketFeed.Assets))
	}

	if a.d.Consumer != nil && a.d.KH != nil {
		a.d.Consumer.RegisterHandler(a.d.KH)
		go func() {
			if err := a.d.Consumer.Start(); err != nil {
				l.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		l.Info("kafka consumer started", applogger.String("topic", a.d.KH.Topic()))
	}

	a.startJobs(ctx)

	a.httpServer = xhttp.NewServer(a.d.HTTPHandler, l,
		xhttp.WithPort(a.d.Cfg.Server.Port),
		xhttp.WithTimeouts(a.d.Cfg.Server.ReadTimeout, a.d.Cfg.Server.WriteTimeout, a.d.Cfg.Server.ShutdownTimeout),
	)
	if err := a.httpServer.Start(); err != nil {
		l.Error("http server start error", applogger.Error(err))
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	l.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// warmPredictor replays archived outcomes so the first predictions after a
// restart are not blind.
func (a *App) warmPredictor(ctx context.Context) {
	if a.d.Outcomes == nil || !a.d.Cfg.Predictor.WarmupFromGaps {
		return
	}
	warmCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	records, err := a.d.Outcomes.RecentOutcomes(warmCtx, a.d.Cfg.Predictor.HistorySize)
	if err != nil {
		a.d.Log.Warn("predictor warmup failed", applogger.Error(err))
		return
	}
	a.d.Predictor.Warmup(records)
	a.d.Log.Info("predictor warmed", applogger.Int("records", len(records)))
}

// startJobs schedules recurring maintenance: health evaluation, experiment
// sweeping and outcome archival flushes.
func (a *App) startJobs(ctx context.Context) {
	a.cron = cron.New()

	_, _ = a.cron.AddFunc("@every 1m", func() {
		alerts := a.d.Health.Evaluate(true)
		if len(alerts) > 0 {
			a.d.Log.Warn("health alerts active", applogger.Int("count", len(alerts)))
		}
	})

	_, _ = a.cron.AddFunc("@every 1m", func() {
		for _, res := range a.d.Versions.SweepExpired(ctx) {
			a.d.Log.Info("experiment completed",
				applogger.String("experiment", res.Experiment.ID),
				applogger.String("provider", res.Experiment.Provider),
				applogger.String("recommendation", res.Recommendation),
			)
		}
	})

	if a.d.Outcomes != nil {
		_, _ = a.cron.AddFunc("@every 30s", func() {
			a.d.Enricher.FlushOutcomes(ctx)
		})
	}

	a.cron.Start()
}

// shutdown gracefully stops all services in reverse start order.
func (a *App) shutdown(ctx context.Context) error {
	l := a.d.Log

	shutdownCtx, cancel := context.WithTimeout(ctx, a.d.Cfg.Server.ShutdownTimeout)
	defer cancel()
	if a.httpServer != nil {
		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			l.Error("http shutdown error", applogger.Error(err))
		}
	}

	if a.cron != nil {
		<-a.cron.Stop().Done()
	}

	if a.d.Consumer != nil {
		if err := a.d.Consumer.Stop(shutdownCtx); err != nil {
			l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	// stops the market feed goroutine and straggling provider calls
	if a.cancel != nil {
		a.cancel()
	}
	if a.d.Stream != nil {
		if err := a.d.Stream.Close(); err != nil {
			l.Warn("market stream close error", applogger.Error(err))
		}
	}

	a.d.ConfStore.Stop()

	if a.d.Outcomes != nil {
		a.d.Enricher.FlushOutcomes(shutdownCtx)
	}

	if a.d.Pool != nil {
		if err := a.d.Pool.Close(); err != nil {
			l.Warn("worker pool close error", applogger.Error(err))
		}
	}

	if a.d.Publisher != nil {
		if err := a.d.Publisher.Close(); err != nil {
			l.Warn("publisher close error", applogger.Error(err))
		}
	}

	if a.d.Outcomes != nil {
		if err := a.d.Outcomes.Close(); err != nil {
			l.Warn("outcome store close error", applogger.Error(err))
		}
	}

	l.RemoveCollector()
	l.Info("shutdown complete")
	return nil
}

// logPublisher adapts the Kafka producer to the log collector's publisher
// interface.
type logPublisher struct {
	producer *pkgkafka.Producer
}

func (p *logPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.producer.Publish(ctx, topic, nil, payload)
}
