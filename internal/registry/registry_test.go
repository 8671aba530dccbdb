package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myles1663/lancelot-sub000/internal/connector"
)

type stubFlags struct {
	connectors bool
}

func (s stubFlags) Enabled(flag string) bool {
	return flag == FlagConnectors && s.connectors
}

func TestRegisterAndGet(t *testing.T) {
	r := New(stubFlags{connectors: true})
	require.NoError(t, r.Register(connector.NewSlack()))

	c, err := r.Get("slack")
	require.NoError(t, err)
	assert.Equal(t, "slack", c.Manifest().ID)
}

func TestRegisterBlockedByFlag(t *testing.T) {
	r := New(stubFlags{connectors: false})
	err := r.Register(connector.NewSlack())
	require.Error(t, err)
	assert.Equal(t, connector.KindFeatureDisabled, connector.KindOf(err))
}

func TestRegisterDuplicate(t *testing.T) {
	r := New(stubFlags{connectors: true})
	require.NoError(t, r.Register(connector.NewSlack()))
	err := r.Register(connector.NewSlack())
	require.Error(t, err)
	assert.Equal(t, connector.KindInvalidManifest, connector.KindOf(err))
}

func TestUnregister(t *testing.T) {
	r := New(stubFlags{connectors: true})
	require.NoError(t, r.Register(connector.NewSlack()))
	require.NoError(t, r.Register(connector.NewDiscord()))

	assert.True(t, r.Unregister("slack"))
	_, err := r.Get("slack")
	assert.Equal(t, connector.KindConnectorNotFound, connector.KindOf(err))
	require.Len(t, r.List(), 1)
	assert.Equal(t, "discord", r.List()[0].Manifest().ID)

	assert.False(t, r.Unregister("slack"), "second removal reports absence")
	assert.False(t, r.Unregister("never-registered"))

	// The freed id can be taken again.
	require.NoError(t, r.Register(connector.NewSlack()))
}

func TestGetUnknown(t *testing.T) {
	r := New(stubFlags{connectors: true})
	_, err := r.Get("nope")
	require.Error(t, err)
	assert.Equal(t, connector.KindConnectorNotFound, connector.KindOf(err))
}

func TestListActiveFilters(t *testing.T) {
	r := New(stubFlags{connectors: true})
	require.NoError(t, r.Register(connector.NewSlack()))
	require.NoError(t, r.Register(connector.NewDiscord()))

	assert.Empty(t, r.ListActive(), "freshly registered connectors are not active")
	require.NoError(t, r.UpdateStatus("slack", connector.StatusActive))

	active := r.ListActive()
	require.Len(t, active, 1)
	assert.Equal(t, "slack", active[0].Manifest().ID)
	assert.Len(t, r.List(), 2)
}

func TestOperationLookup(t *testing.T) {
	r := New(stubFlags{connectors: true})
	require.NoError(t, r.Register(connector.NewSlack()))

	ops, err := r.Operations("slack")
	require.NoError(t, err)
	assert.NotEmpty(t, ops)

	op, err := r.Operation("slack", "post_message")
	require.NoError(t, err)
	assert.Equal(t, "connector.slack.post_message", op.FullCapabilityID())

	_, err = r.Operation("slack", "warp")
	assert.Equal(t, connector.KindOperationNotFound, connector.KindOf(err))
}

func TestStats(t *testing.T) {
	r := New(stubFlags{connectors: true})
	require.NoError(t, r.Register(connector.NewSlack()))
	require.NoError(t, r.UpdateStatus("slack", connector.StatusActive))

	stats := r.Stats()
	assert.Equal(t, 1, stats["total"])
	byStatus := stats["by_status"].(map[string]int)
	assert.Equal(t, 1, byStatus[string(connector.StatusActive)])
}
