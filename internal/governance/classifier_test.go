package governance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myles1663/lancelot-sub000/internal/connector"
)

const capSlackPost = "connector.slack.post_message"

func TestUnknownCapabilityIsIrreversible(t *testing.T) {
	c := NewClassifier(nil, nil)
	p := c.Classify("connector.mystery.do_thing", ScopeExternal, "")
	assert.Equal(t, connector.TierIrreversible, p.Tier)
	assert.False(t, p.Reversible)
}

func TestDefaultTier(t *testing.T) {
	c := NewClassifier(nil, nil)
	c.SetDefault(capSlackPost, connector.TierControlled)

	p := c.Classify(capSlackPost, ScopeExternal, "")
	assert.Equal(t, connector.TierControlled, p.Tier)
	assert.False(t, p.Reversible)

	c.SetDefault("connector.slack.list_channels", connector.TierInert)
	p = c.Classify("connector.slack.list_channels", ScopeExternal, "")
	assert.True(t, p.Reversible)
}

func TestScopeEscalationOnlyRaises(t *testing.T) {
	c := NewClassifier(nil, nil)
	c.SetDefault(capSlackPost, connector.TierControlled)
	c.AddEscalation(EscalationRule{
		Capability: capSlackPost, Scope: ScopeExternal, EscalateTo: connector.TierIrreversible,
	})
	c.AddEscalation(EscalationRule{
		Capability: capSlackPost, Scope: "workspace", EscalateTo: connector.TierInert,
	})

	p := c.Classify(capSlackPost, ScopeExternal, "")
	assert.Equal(t, connector.TierIrreversible, p.Tier)

	// A rule escalating "down" is ignored.
	p = c.Classify(capSlackPost, "workspace", "")
	assert.Equal(t, connector.TierControlled, p.Tier)
}

func TestPatternEscalation(t *testing.T) {
	c := NewClassifier(nil, nil)
	c.SetDefault(capSlackPost, connector.TierReversible)
	c.AddEscalation(EscalationRule{
		Capability: capSlackPost, Pattern: "#announcements*", EscalateTo: connector.TierIrreversible,
	})

	p := c.Classify(capSlackPost, "workspace", "#announcements-general")
	assert.Equal(t, connector.TierIrreversible, p.Tier)

	p = c.Classify(capSlackPost, "workspace", "#random")
	assert.Equal(t, connector.TierReversible, p.Tier)
}

func TestSoulEscalationRecordsReason(t *testing.T) {
	c := NewClassifier(nil, nil)
	c.SetDefault(capSlackPost, connector.TierReversible)
	c.AddSoulEscalation(EscalationRule{
		Capability: capSlackPost, Scope: ScopeExternal,
		EscalateTo: connector.TierControlled, Reason: "external audiences require review",
	})

	p := c.Classify(capSlackPost, ScopeExternal, "")
	assert.Equal(t, connector.TierControlled, p.Tier)
	assert.Equal(t, "external audiences require review", p.SoulEscalation)
}

func TestTrustRelaxationRequiresFlag(t *testing.T) {
	ledger := NewTrustLedger(nil)
	flags := NewFlags()
	c := NewClassifier(ledger, flags)
	c.SetDefault(capSlackPost, connector.TierControlled)

	for i := 0; i < GraduationThreshold; i++ {
		ledger.RecordSuccess(capSlackPost, ScopeExternal)
	}
	require.NoError(t, ledger.ApproveGraduation(capSlackPost, ScopeExternal, connector.TierReversible))

	p := c.Classify(capSlackPost, ScopeExternal, "")
	assert.Equal(t, connector.TierControlled, p.Tier, "flag off means no relaxation")

	flags.Set(FlagTrustLedger, true)
	p = c.Classify(capSlackPost, ScopeExternal, "")
	assert.Equal(t, connector.TierReversible, p.Tier)
}

func TestTrustNeverRaises(t *testing.T) {
	ledger := NewTrustLedger(nil)
	flags := NewFlags(FlagTrustLedger)
	c := NewClassifier(ledger, flags)
	c.SetDefault(capSlackPost, connector.TierReversible)

	for i := 0; i < GraduationThreshold; i++ {
		ledger.RecordSuccess(capSlackPost, ScopeExternal)
	}
	require.NoError(t, ledger.ApproveGraduation(capSlackPost, ScopeExternal, connector.TierControlled))

	p := c.Classify(capSlackPost, ScopeExternal, "")
	assert.Equal(t, connector.TierReversible, p.Tier, "a higher graduated tier is ignored")
}

func TestSoulFloorBeatsTrust(t *testing.T) {
	ledger := NewTrustLedger(nil)
	flags := NewFlags(FlagTrustLedger)
	c := NewClassifier(ledger, flags)
	c.SetDefault(capSlackPost, connector.TierControlled)
	c.AddSoulEscalation(EscalationRule{
		Capability: capSlackPost, Scope: ScopeExternal,
		EscalateTo: connector.TierControlled, Reason: "pinned",
	})

	for i := 0; i < GraduationThreshold; i++ {
		ledger.RecordSuccess(capSlackPost, ScopeExternal)
	}
	require.NoError(t, ledger.ApproveGraduation(capSlackPost, ScopeExternal, connector.TierReversible))

	p := c.Classify(capSlackPost, ScopeExternal, "")
	assert.Equal(t, connector.TierControlled, p.Tier, "trust cannot cross the soul floor")
	assert.Equal(t, "pinned", p.SoulEscalation)
}

func TestClassificationIsPure(t *testing.T) {
	c := NewClassifier(nil, nil)
	c.SetDefault(capSlackPost, connector.TierControlled)
	first := c.Classify(capSlackPost, ScopeExternal, "")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, c.Classify(capSlackPost, ScopeExternal, ""))
	}
}

func TestLedgerGraduationLifecycle(t *testing.T) {
	ledger := NewTrustLedger(nil)

	_, ok := ledger.GetEffectiveTier(capSlackPost, ScopeExternal)
	assert.False(t, ok)

	err := ledger.ApproveGraduation(capSlackPost, ScopeExternal, connector.TierReversible)
	require.Error(t, err, "no approval without an open proposal")

	for i := 0; i < GraduationThreshold-1; i++ {
		ledger.RecordSuccess(capSlackPost, ScopeExternal)
	}
	err = ledger.ApproveGraduation(capSlackPost, ScopeExternal, connector.TierReversible)
	require.Error(t, err, "threshold not reached yet")

	ledger.RecordSuccess(capSlackPost, ScopeExternal)
	require.NoError(t, ledger.ApproveGraduation(capSlackPost, ScopeExternal, connector.TierReversible))

	tier, ok := ledger.GetEffectiveTier(capSlackPost, ScopeExternal)
	require.True(t, ok)
	assert.Equal(t, connector.TierReversible, tier)
}

func TestFailureWithdrawsOpenProposal(t *testing.T) {
	ledger := NewTrustLedger(nil)
	for i := 0; i < GraduationThreshold; i++ {
		ledger.RecordSuccess(capSlackPost, ScopeExternal)
	}
	ledger.RecordFailure(capSlackPost, ScopeExternal)

	err := ledger.ApproveGraduation(capSlackPost, ScopeExternal, connector.TierReversible)
	assert.Error(t, err, "failure withdraws the pending proposal")

	successes, failures, _ := ledger.Counts(capSlackPost, ScopeExternal)
	assert.Equal(t, 0, successes, "pending trust resets on failure")
	assert.Equal(t, 1, failures)
}

func TestRollbacksCounted(t *testing.T) {
	ledger := NewTrustLedger(nil)
	ledger.RecordRollback(capSlackPost, ScopeExternal)
	_, _, rollbacks := ledger.Counts(capSlackPost, ScopeExternal)
	assert.Equal(t, 1, rollbacks)
}

func TestRiskLevelBuckets(t *testing.T) {
	assert.Equal(t, "low", riskLevel(connector.TierInert))
	assert.Equal(t, "low", riskLevel(connector.TierReversible))
	assert.Equal(t, "medium", riskLevel(connector.TierControlled))
	assert.Equal(t, "high", riskLevel(connector.TierIrreversible))
}
