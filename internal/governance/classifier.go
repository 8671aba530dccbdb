package governance

import (
	"path"
	"sync"

	"github.com/myles1663/lancelot-sub000/internal/connector"
)

// ScopeExternal is the scope the governed proxy classifies under.
const ScopeExternal = "external"

// EscalationRule raises the tier of matching capabilities. A rule matches
// when its capability equals the action's and either the scope equals the
// action's scope or the glob pattern matches the target.
type EscalationRule struct {
	Capability string
	Scope      string
	Pattern    string
	EscalateTo connector.RiskTier
	Reason     string
}

func (r *EscalationRule) matches(capability, scope, target string) bool {
	if r.Capability != capability {
		return false
	}
	if r.Scope != "" && r.Scope == scope {
		return true
	}
	if r.Pattern != "" && target != "" {
		if ok, err := path.Match(r.Pattern, target); err == nil && ok {
			return true
		}
	}
	return false
}

// RiskProfile is the classifier's verdict for one action.
type RiskProfile struct {
	Capability     string
	Scope          string
	Tier           connector.RiskTier
	Reversible     bool
	SoulEscalation string
}

// Classifier maps capabilities to risk tiers. Classification is a pure
// function of its configured state; all mutation happens through the
// registration methods.
type Classifier struct {
	mu          sync.RWMutex
	defaults    map[string]connector.RiskTier
	escalations []EscalationRule
	soulRules   []EscalationRule

	ledger *TrustLedger
	flags  *Flags
}

// NewClassifier builds a classifier. ledger may be nil; relaxation then
// never applies.
func NewClassifier(ledger *TrustLedger, flags *Flags) *Classifier {
	return &Classifier{
		defaults: make(map[string]connector.RiskTier),
		ledger:   ledger,
		flags:    flags,
	}
}

// SetDefault records the baseline tier for a capability.
func (c *Classifier) SetDefault(capability string, tier connector.RiskTier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaults[capability] = tier
}

// AddEscalation appends a config escalation rule.
func (c *Classifier) AddEscalation(rule EscalationRule) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.escalations = append(c.escalations, rule)
}

// AddSoulEscalation appends a soul-mandated escalation rule. Soul rules
// set a floor that trust relaxation cannot cross.
func (c *Classifier) AddSoulEscalation(rule EscalationRule) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.soulRules = append(c.soulRules, rule)
}

// Classify resolves the tier for one action. Unknown capabilities are
// treated as most dangerous.
func (c *Classifier) Classify(capability, scope, target string) RiskProfile {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tier, known := c.defaults[capability]
	if !known {
		tier = connector.TierIrreversible
	}

	for i := range c.escalations {
		r := &c.escalations[i]
		if r.matches(capability, scope, target) && r.EscalateTo > tier {
			tier = r.EscalateTo
		}
	}

	soulReason := ""
	soulFloor := connector.RiskTier(-1)
	for i := range c.soulRules {
		r := &c.soulRules[i]
		if !r.matches(capability, scope, target) {
			continue
		}
		if r.EscalateTo > tier {
			tier = r.EscalateTo
			soulReason = r.Reason
		}
		if r.EscalateTo > soulFloor {
			soulFloor = r.EscalateTo
			if soulReason == "" {
				soulReason = r.Reason
			}
		}
	}

	if c.ledger != nil && c.flags != nil && c.flags.Enabled(FlagTrustLedger) {
		if effective, ok := c.ledger.GetEffectiveTier(capability, scope); ok && effective < tier {
			tier = effective
		}
	}
	// Trust may not push below the soul floor.
	if soulFloor >= 0 && tier < soulFloor {
		tier = soulFloor
	}

	return RiskProfile{
		Capability:     capability,
		Scope:          scope,
		Tier:           tier,
		Reversible:     tier <= connector.TierReversible,
		SoulEscalation: soulReason,
	}
}

// DefaultTier looks up the registered baseline for a capability.
func (c *Classifier) DefaultTier(capability string) (connector.RiskTier, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.defaults[capability]
	return t, ok
}
