package providers

import (
	"context"
	"fmt"
	"time"

	"SignalForge/internal/domain/models"
	domsvc "SignalForge/internal/domain/service"
)

const KindSentiment = "sentiment"

// Sentiment enriches a signal with aggregated text-sentiment scores for the
// asset.
type Sentiment struct {
	base *HTTPServiceBase
}

func NewSentiment(base *HTTPServiceBase) *Sentiment {
	return &Sentiment{base: base}
}

func (p *Sentiment) Kind() string { return KindSentiment }

type sentimentReq struct {
	Asset string `json:"asset"`
}

type sentimentResp struct {
	Score      float64 `json:"score"` // [-1,1]
	Sources    int     `json:"sources"`
	Trending   bool    `json:"trending"`
	Confidence float64 `json:"confidence"`
}

func (p *Sentiment) Enrich(ctx context.Context, s *models.Signal, _ models.OperationContext) (models.ProviderResult, error) {
	start := time.Now()

	var resp sentimentResp
	if err := p.base.PostJSON(ctx, "/sentiment/score", sentimentReq{Asset: s.Asset}, &resp); err != nil {
		return models.ProviderResult{}, fmt.Errorf("sentiment: %w", err)
	}

	return models.ProviderResult{
		Provider: KindSentiment,
		Fields: map[string]any{
			"score":    resp.Score,
			"sources":  resp.Sources,
			"trending": resp.Trending,
		},
		Confidence: resp.Confidence,
		Latency:    time.Since(start),
	}, nil
}

var _ domsvc.Provider = (*Sentiment)(nil)
