package marketfeed

import (
	"testing"

	"SignalForge/internal/domain/models"

	"github.com/stretchr/testify/assert"
)

func tick(asset string, price float64) *models.Tick {
	return &models.Tick{Asset: asset, Price: price, Volume: 1}
}

func TestVolatilityNeedsData(t *testing.T) {
	v := NewVolatilityTracker(10)
	assert.Zero(t, v.RecentVolatility("BTC"))

	v.Observe(tick("BTC", 100))
	v.Observe(tick("BTC", 101))
	assert.Zero(t, v.RecentVolatility("BTC")) // one return is not enough

	v.Observe(tick("BTC", 102))
	assert.Greater(t, v.RecentVolatility("BTC"), 0.0)
}

func TestVolatilityTracksDispersion(t *testing.T) {
	calm := NewVolatilityTracker(50)
	wild := NewVolatilityTracker(50)

	price := 100.0
	for i := 0; i < 40; i++ {
		calm.Observe(tick("BTC", price))
		price += 0.01
	}

	price = 100.0
	for i := 0; i < 40; i++ {
		wild.Observe(tick("BTC", price))
		if i%2 == 0 {
			price *= 1.05
		} else {
			price *= 0.95
		}
	}

	assert.Greater(t, wild.RecentVolatility("BTC"), calm.RecentVolatility("BTC"))
}

func TestVolatilityPerAsset(t *testing.T) {
	v := NewVolatilityTracker(10)
	for i := 0; i < 10; i++ {
		v.Observe(tick("BTC", 100+float64(i)))
	}
	assert.Greater(t, v.RecentVolatility("BTC"), 0.0)
	assert.Zero(t, v.RecentVolatility("ETH"))
}

func TestVolatilityIgnoresBadTicks(t *testing.T) {
	v := NewVolatilityTracker(10)
	v.Observe(nil)
	v.Observe(tick("BTC", -5))
	v.Observe(tick("BTC", 0))
	assert.Zero(t, v.RecentVolatility("BTC"))
}

func TestSystemLoadFromQueuePressure(t *testing.T) {
	v := NewVolatilityTracker(10)
	v.SetQueuePressureSource(func() float64 { return 0.4 })
	assert.InDelta(t, 0.4, v.SystemLoad(), 1e-9)

	v.SetQueuePressureSource(func() float64 { return 3.0 })
	assert.InDelta(t, 1.0, v.SystemLoad(), 1e-9)
}
