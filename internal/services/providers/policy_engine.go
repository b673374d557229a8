package providers

import (
	"context"
	"fmt"
	"time"

	"SignalForge/internal/domain/models"
	domsvc "SignalForge/internal/domain/service"
)

const KindPolicyEngine = "policy_engine"

// PolicyEngine checks a signal against risk/compliance policy rules and
// annotates it with position sizing hints.
type PolicyEngine struct {
	base *HTTPServiceBase
}

func NewPolicyEngine(base *HTTPServiceBase) *PolicyEngine {
	return &PolicyEngine{base: base}
}

func (p *PolicyEngine) Kind() string { return KindPolicyEngine }

type policyReq struct {
	Asset      string  `json:"asset"`
	Direction  string  `json:"direction"`
	Confidence float64 `json:"confidence"`
	Tier       string  `json:"tier"`
}

type policyResp struct {
	Allowed     bool    `json:"allowed"`
	MaxPosition float64 `json:"max_position"`
	RiskBand    string  `json:"risk_band"`
	Confidence  float64 `json:"confidence"`
}

func (p *PolicyEngine) Enrich(ctx context.Context, s *models.Signal, _ models.OperationContext) (models.ProviderResult, error) {
	start := time.Now()

	var resp policyResp
	err := p.base.PostJSON(ctx, "/policy/evaluate", policyReq{
		Asset:      s.Asset,
		Direction:  string(s.Direction),
		Confidence: s.Confidence,
		Tier:       s.Tier.String(),
	}, &resp)
	if err != nil {
		return models.ProviderResult{}, fmt.Errorf("policy engine: %w", err)
	}

	return models.ProviderResult{
		Provider: KindPolicyEngine,
		Fields: map[string]any{
			"allowed":      resp.Allowed,
			"max_position": resp.MaxPosition,
			"risk_band":    resp.RiskBand,
		},
		Confidence: resp.Confidence,
		Latency:    time.Since(start),
	}, nil
}

var _ domsvc.Provider = (*PolicyEngine)(nil)
