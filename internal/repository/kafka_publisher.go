package repository

import (
	"context"
	"fmt"

	"SignalForge/internal/domain/models"
	pkgkafka "SignalForge/pkg/kafka"
	applogger "SignalForge/pkg/logger"
)

// KafkaSignalPublisher publishes enriched signals to Kafka keyed by asset so
// consumers see per-asset ordering.
type KafkaSignalPublisher struct {
	producer *pkgkafka.Producer
	topic    string
	l        *applogger.Logger
}

func NewKafkaSignalPublisher(producer *pkgkafka.Producer, topic string) *KafkaSignalPublisher {
	return &KafkaSignalPublisher{producer: producer, topic: topic}
}

// SetLogger injects a structured logger.
func (p *KafkaSignalPublisher) SetLogger(l *applogger.Logger) { p.l = l }

func (p *KafkaSignalPublisher) Publish(ctx context.Context, s *models.EnrichedSignal) error {
	if err := p.producer.Publish(ctx, p.topic, []byte(s.Asset), s); err != nil {
		if p.l != nil {
			p.l.Error("publish enriched signal failed",
				applogger.String("topic", p.topic),
				applogger.String("asset", s.Asset),
				applogger.Error(err),
			)
		}
		return fmt.Errorf("publish enriched signal: %w", err)
	}
	if p.l != nil {
		p.l.Debug("enriched signal published",
			applogger.String("topic", p.topic),
			applogger.String("asset", s.Asset),
			applogger.String("tier", s.Tier.String()),
		)
	}
	return nil
}

func (p *KafkaSignalPublisher) Close() error {
	return p.producer.Close()
}
