package marketfeed

import (
	"context"
	"math"
	"runtime"
	"sync"

	"SignalForge/internal/domain/models"
	drepo "SignalForge/internal/domain/repository"
	"SignalForge/pkg/logger"
)

// VolatilityTracker maintains rolling realized volatility per asset from a
// live tick stream. It implements the predictor's FeatureSource.
type VolatilityTracker struct {
	window int

	mu        sync.RWMutex
	lastPrice map[string]float64
	returns   map[string][]float64

	queuePressure func() float64
}

// NewVolatilityTracker creates a tracker with a rolling window of log
// returns per asset.
func NewVolatilityTracker(window int) *VolatilityTracker {
	if window <= 1 {
		window = 60
	}
	return &VolatilityTracker{
		window:    window,
		lastPrice: make(map[string]float64),
		returns:   make(map[string][]float64),
	}
}

// SetQueuePressureSource wires the worker pool fill ratio into SystemLoad.
func (v *VolatilityTracker) SetQueuePressureSource(fn func() float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.queuePressure = fn
}

// Observe folds one tick into the asset's return series.
func (v *VolatilityTracker) Observe(tick *models.Tick) {
	if tick == nil || tick.Price <= 0 {
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	prev, ok := v.lastPrice[tick.Asset]
	v.lastPrice[tick.Asset] = tick.Price
	if !ok || prev <= 0 {
		return
	}

	r := math.Log(tick.Price / prev)
	rs := append(v.returns[tick.Asset], r)
	if len(rs) > v.window {
		rs = rs[len(rs)-v.window:]
	}
	v.returns[tick.Asset] = rs
}

// RecentVolatility returns the realized volatility (stddev of rolling log
// returns) for an asset, 0 when there is not enough data.
func (v *VolatilityTracker) RecentVolatility(asset string) float64 {
	v.mu.RLock()
	rs := v.returns[asset]
	v.mu.RUnlock()

	n := len(rs)
	if n < 2 {
		return 0
	}

	sum, sum2 := 0.0, 0.0
	for _, r := range rs {
		sum += r
		sum2 += r * r
	}
	mean := sum / float64(n)
	variance := (sum2 - float64(n)*mean*mean) / float64(n-1)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

// SystemLoad approximates process pressure in [0,1] from the worker pool
// queue when wired, falling back to goroutine count.
func (v *VolatilityTracker) SystemLoad() float64 {
	v.mu.RLock()
	fn := v.queuePressure
	v.mu.RUnlock()

	if fn != nil {
		load := fn()
		if load < 0 {
			return 0
		}
		if load > 1 {
			return 1
		}
		return load
	}

	// Rough fallback: a few hundred goroutines is normal for this service.
	load := float64(runtime.NumGoroutine()) / 500
	if load > 1 {
		load = 1
	}
	return load
}

// Run consumes the market stream until the context is done, reconnecting on
// stream errors.
func (v *VolatilityTracker) Run(ctx context.Context, stream drepo.MarketStream, log *logger.Logger) {
	for {
		ticks, errs := stream.Read(ctx)

	consume:
		for {
			select {
			case <-ctx.Done():
				return
			case tick, ok := <-ticks:
				if !ok {
					break consume
				}
				v.Observe(tick)
			case err, ok := <-errs:
				if !ok {
					break consume
				}
				if log != nil {
					log.Warn("market stream error", logger.Error(err))
				}
				break consume
			}
		}

		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := stream.Reconnect(ctx); err != nil {
			if log != nil {
				log.Error("market stream reconnect failed", logger.Error(err))
			}
		}
	}
}
