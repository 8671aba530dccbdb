package governance

import (
	"log/slog"
	"sync"

	"github.com/myles1663/lancelot-sub000/internal/connector"
)

// GraduationThreshold is the success count a capability needs before a
// graduation proposal can be approved.
const GraduationThreshold = 100

// trustKey identifies one counter bucket.
type trustKey struct {
	Capability string
	Scope      string
}

type trustEntry struct {
	Successes int
	Failures  int
	Rollbacks int

	ProposalOpen  bool
	EffectiveTier connector.RiskTier
	Graduated     bool
}

// TrustLedger counts outcomes per capability and scope and, after enough
// successes and an approved graduation, grants a lower effective tier.
// It can only ever lower; the classifier enforces the soul floor on top.
type TrustLedger struct {
	mu      sync.RWMutex
	entries map[trustKey]*trustEntry
	logger  *slog.Logger
}

// NewTrustLedger builds an empty ledger.
func NewTrustLedger(logger *slog.Logger) *TrustLedger {
	if logger == nil {
		logger = slog.Default()
	}
	return &TrustLedger{
		entries: make(map[trustKey]*trustEntry),
		logger:  logger.With("component", "trustledger"),
	}
}

func (l *TrustLedger) entry(capability, scope string) *trustEntry {
	key := trustKey{capability, scope}
	e, ok := l.entries[key]
	if !ok {
		e = &trustEntry{EffectiveTier: -1}
		l.entries[key] = e
	}
	return e
}

// RecordSuccess counts one successful execution. Reaching the graduation
// threshold opens a proposal; it still needs explicit approval.
func (l *TrustLedger) RecordSuccess(capability, scope string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.entry(capability, scope)
	e.Successes++
	if e.Successes >= GraduationThreshold && !e.Graduated && !e.ProposalOpen {
		e.ProposalOpen = true
		l.logger.Info("graduation proposal opened",
			"capability", capability, "scope", scope, "successes", e.Successes)
	}
}

// RecordFailure counts one failed execution. A failure resets an open,
// unapproved proposal; earned trust survives, pending trust does not.
func (l *TrustLedger) RecordFailure(capability, scope string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.entry(capability, scope)
	e.Failures++
	if e.ProposalOpen && !e.Graduated {
		e.ProposalOpen = false
		e.Successes = 0
		l.logger.Warn("graduation proposal withdrawn after failure",
			"capability", capability, "scope", scope)
	}
}

// RecordRollback counts one rollback of a prior action.
func (l *TrustLedger) RecordRollback(capability, scope string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entry(capability, scope).Rollbacks++
}

// ApproveGraduation grants the capability a lower effective tier. Fails if
// no proposal is open or the tier would not actually be a relaxation at
// classification time (the classifier ignores higher values anyway).
func (l *TrustLedger) ApproveGraduation(capability, scope string, tier connector.RiskTier) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.entry(capability, scope)
	if !e.ProposalOpen {
		return connector.E(connector.KindPolicyDenied,
			"no open graduation proposal for %s at scope %s", capability, scope)
	}
	e.ProposalOpen = false
	e.Graduated = true
	e.EffectiveTier = tier
	l.logger.Info("graduation approved",
		"capability", capability, "scope", scope, "tier", tier.String())
	return nil
}

// GetEffectiveTier returns the graduated tier for a capability, if any.
func (l *TrustLedger) GetEffectiveTier(capability, scope string) (connector.RiskTier, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.entries[trustKey{capability, scope}]
	if !ok || !e.Graduated {
		return 0, false
	}
	return e.EffectiveTier, true
}

// Counts reports the raw counters for a capability and scope.
func (l *TrustLedger) Counts(capability, scope string) (successes, failures, rollbacks int) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.entries[trustKey{capability, scope}]
	if !ok {
		return 0, 0, 0
	}
	return e.Successes, e.Failures, e.Rollbacks
}

// Stats reports ledger-wide counts.
func (l *TrustLedger) Stats() map[string]interface{} {
	l.mu.RLock()
	defer l.mu.RUnlock()
	graduated := 0
	open := 0
	for _, e := range l.entries {
		if e.Graduated {
			graduated++
		}
		if e.ProposalOpen {
			open++
		}
	}
	return map[string]interface{}{
		"tracked":        len(l.entries),
		"graduated":      graduated,
		"open_proposals": open,
	}
}
