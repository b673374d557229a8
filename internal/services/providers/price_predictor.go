package providers

import (
	"context"
	"fmt"
	"time"

	"SignalForge/internal/domain/models"
	domsvc "SignalForge/internal/domain/service"
)

const KindPricePredictor = "price_predictor"

// PricePredictor enriches a signal with a short-horizon price projection
// from an external model service.
type PricePredictor struct {
	base *HTTPServiceBase
}

func NewPricePredictor(base *HTTPServiceBase) *PricePredictor {
	return &PricePredictor{base: base}
}

func (p *PricePredictor) Kind() string { return KindPricePredictor }

type priceReq struct {
	Asset      string  `json:"asset"`
	Direction  string  `json:"direction"`
	Volatility float64 `json:"volatility"`
}

type priceResp struct {
	TargetPrice float64 `json:"target_price"`
	Horizon     string  `json:"horizon"`
	ProbaUp     float64 `json:"proba_up"`
	Confidence  float64 `json:"confidence"`
}

func (p *PricePredictor) Enrich(ctx context.Context, s *models.Signal, op models.OperationContext) (models.ProviderResult, error) {
	start := time.Now()

	var resp priceResp
	err := p.base.PostJSON(ctx, "/predict/price", priceReq{
		Asset:      s.Asset,
		Direction:  string(s.Direction),
		Volatility: op.Features.RecentVolatility,
	}, &resp)
	if err != nil {
		return models.ProviderResult{}, fmt.Errorf("price predictor: %w", err)
	}

	return models.ProviderResult{
		Provider: KindPricePredictor,
		Fields: map[string]any{
			"target_price": resp.TargetPrice,
			"horizon":      resp.Horizon,
			"proba_up":     resp.ProbaUp,
		},
		Confidence: resp.Confidence,
		Latency:    time.Since(start),
	}, nil
}

var _ domsvc.Provider = (*PricePredictor)(nil)
