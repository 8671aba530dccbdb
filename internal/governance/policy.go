package governance

import (
	"context"

	"github.com/myles1663/lancelot-sub000/internal/connector"
)

// Intent is what the policy engine sees about a pending action. It never
// carries credentials or request bodies.
type Intent struct {
	Capability  string
	ConnectorID string
	OperationID string
	RiskLevel   string // low, medium, high
	Tier        connector.RiskTier
}

// Decision is a policy verdict. Reasons must not contain secrets.
type Decision struct {
	Allow   bool
	Reasons []string
}

// PolicyEngine evaluates intents before execution. Implementations must be
// safe for concurrent use.
type PolicyEngine interface {
	Evaluate(ctx context.Context, intent Intent) Decision
}

// riskLevel buckets tiers for policy engines that think in three levels.
func riskLevel(tier connector.RiskTier) string {
	switch {
	case tier <= connector.TierReversible:
		return "low"
	case tier == connector.TierControlled:
		return "medium"
	default:
		return "high"
	}
}

// TierCapPolicy denies anything above a maximum tier. The zero value
// denies everything but T0.
type TierCapPolicy struct {
	MaxTier connector.RiskTier
}

// Evaluate implements PolicyEngine.
func (p TierCapPolicy) Evaluate(_ context.Context, intent Intent) Decision {
	if intent.Tier > p.MaxTier {
		return Decision{
			Allow: false,
			Reasons: []string{
				"tier " + intent.Tier.String() + " exceeds policy maximum " + p.MaxTier.String(),
			},
		}
	}
	return Decision{Allow: true}
}
