package providers

import (
	"context"
	"fmt"
	"time"

	"SignalForge/internal/domain/models"
	domsvc "SignalForge/internal/domain/service"
)

const KindConsensus = "consensus"

// Consensus queries a federation of peer scorers and reports how many agree
// with the signal's direction. It is the most expensive provider.
type Consensus struct {
	base *HTTPServiceBase
}

func NewConsensus(base *HTTPServiceBase) *Consensus {
	return &Consensus{base: base}
}

func (p *Consensus) Kind() string { return KindConsensus }

type consensusReq struct {
	Asset     string `json:"asset"`
	Direction string `json:"direction"`
}

type consensusResp struct {
	Agree      int     `json:"agree"`
	Disagree   int     `json:"disagree"`
	Quorum     bool    `json:"quorum"`
	Confidence float64 `json:"confidence"`
}

func (p *Consensus) Enrich(ctx context.Context, s *models.Signal, _ models.OperationContext) (models.ProviderResult, error) {
	start := time.Now()

	var resp consensusResp
	err := p.base.PostJSON(ctx, "/consensus/vote", consensusReq{
		Asset:     s.Asset,
		Direction: string(s.Direction),
	}, &resp)
	if err != nil {
		return models.ProviderResult{}, fmt.Errorf("consensus: %w", err)
	}

	return models.ProviderResult{
		Provider: KindConsensus,
		Fields: map[string]any{
			"agree":    resp.Agree,
			"disagree": resp.Disagree,
			"quorum":   resp.Quorum,
		},
		Confidence: resp.Confidence,
		Latency:    time.Since(start),
	}, nil
}

var _ domsvc.Provider = (*Consensus)(nil)
