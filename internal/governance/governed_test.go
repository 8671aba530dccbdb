package governance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myles1663/lancelot-sub000/internal/connector"
	"github.com/myles1663/lancelot-sub000/internal/proxy"
	"github.com/myles1663/lancelot-sub000/internal/ratelimit"
	"github.com/myles1663/lancelot-sub000/internal/registry"
)

type mapVault map[string]string

func (m mapVault) Retrieve(key, accessor string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", connector.E(connector.KindKeyNotFound, "vault has no key %q", key)
	}
	return v, nil
}

func (m mapVault) Exists(key string) bool { _, ok := m[key]; return ok }

func (m mapVault) CredentialType(key string) connector.CredentialType { return "" }

// petstore is a minimal in-test connector. The built-in connectors all
// target real hosts, so end-to-end tests need one that points at the
// local test server.
type petstore struct {
	manifest *connector.Manifest
	status   connector.Status
	ops      []connector.Operation
	baseURL  string
}

func newPetstore(baseURL, host string) *petstore {
	p := &petstore{
		manifest: &connector.Manifest{
			ID:            "petstore",
			Name:          "Pet Store",
			Version:       "1.0.0",
			Author:        "test",
			Source:        connector.SourceFirstParty,
			TargetDomains: []string{host},
			RequiredCredentials: []connector.CredentialSpec{
				{Name: "API Key", Type: connector.CredentialAPIKey, VaultKey: "petstore.api_key", Required: true},
			},
		},
		status:  connector.StatusActive,
		baseURL: baseURL,
		ops: []connector.Operation{
			{
				ID: "list_pets", ConnectorID: "petstore", Capability: connector.CapabilityRead,
				Name: "List pets", DefaultTier: connector.TierReversible, Idempotent: true, Reversible: true,
			},
			{
				ID: "delete_pet", ConnectorID: "petstore", Capability: connector.CapabilityDelete,
				Name: "Delete pet", DefaultTier: connector.TierIrreversible,
				Parameters: []connector.ParameterSpec{{Name: "pet_id", Type: "str", Required: true}},
			},
		},
	}
	return p
}

func (p *petstore) Manifest() *connector.Manifest     { return p.manifest }
func (p *petstore) Status() connector.Status          { return p.status }
func (p *petstore) SetStatus(s connector.Status)      { p.status = s }
func (p *petstore) Operations() []connector.Operation { return p.ops }

func (p *petstore) Operation(id string) (*connector.Operation, bool) {
	for i := range p.ops {
		if p.ops[i].ID == id {
			return &p.ops[i], true
		}
	}
	return nil, false
}

func (p *petstore) ValidateCredentials(exists func(string) bool) bool {
	return exists("petstore.api_key")
}

func (p *petstore) Execute(operationID string, params map[string]interface{}) (*connector.Result, error) {
	r := &connector.Result{
		OperationID:        operationID,
		ConnectorID:        "petstore",
		Headers:            map[string]string{},
		TimeoutSeconds:     10,
		CredentialVaultKey: "petstore.api_key",
		Metadata:           map[string]string{connector.MetaAuthType: "bearer"},
	}
	switch operationID {
	case "list_pets":
		r.Method = "GET"
		r.URL = p.baseURL + "/pets"
	case "delete_pet":
		id, _ := params["pet_id"].(string)
		if id == "" || strings.ContainsAny(id, "/\\.") {
			return nil, connector.E(connector.KindInvalidRequestSpec, "parameter pet_id has unsafe value")
		}
		r.Method = "DELETE"
		r.URL = p.baseURL + "/pets/" + id
	default:
		return nil, connector.E(connector.KindOperationNotFound, "petstore has no operation %q", operationID)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

type governedHarness struct {
	governed *GovernedProxy
	store    *MemoryReceiptStore
	ledger   *TrustLedger
}

func newHarness(t *testing.T, policy PolicyEngine) *governedHarness {
	t.Helper()
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(server.Close)

	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	host := u.Hostname()

	pet := newPetstore(server.URL, host)

	flags := NewFlags(FlagConnectors, FlagTrustLedger)
	reg := registry.New(flags)
	require.NoError(t, reg.Register(pet))

	vault := mapVault{"petstore.api_key": "pk-123"}
	limits := ratelimit.NewRegistry(ratelimit.Config{MaxRequestsPerMinute: 600, BurstSize: 100}, nil)
	raw := proxy.New(vault, limits, nil, nil)
	raw.SetHTTPClient(server.Client())
	raw.AllowDomains("petstore", host)

	ledger := NewTrustLedger(nil)
	classifier := NewClassifier(ledger, flags)
	store := NewMemoryReceiptStore(1000)
	pipeline := NewReceiptPipeline(store, nil)
	ctx, cancel := context.WithCancel(context.Background())
	pipeline.Start(ctx)
	t.Cleanup(func() { cancel(); pipeline.Wait() })

	governed := NewGovernedProxy(reg, raw, classifier, policy, ledger, pipeline, nil)
	governed.RegisterConnectorTiers(pet)

	return &governedHarness{governed: governed, store: store, ledger: ledger}
}

func TestExecuteGovernedHappyPath(t *testing.T) {
	h := newHarness(t, nil)
	resp := h.governed.ExecuteGoverned(context.Background(), "petstore", "list_pets", nil)

	require.True(t, resp.Success, "unexpected failure: %s", resp.Error)
	assert.Equal(t, 200, resp.StatusCode)
	assert.NotEmpty(t, resp.ReceiptID, "every governed call yields a receipt id")

	// T1 receipts skip the batch buffer and land in the store directly.
	require.Eventually(t, func() bool {
		n, _ := h.store.Count(context.Background())
		return n == 1
	}, time.Second, 5*time.Millisecond)
	recent, err := h.store.Recent(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, resp.ReceiptID, recent[0].ReceiptID)
	assert.Equal(t, "T1_REVERSIBLE", recent[0].Tier)
	assert.Equal(t, "connector.petstore.list_pets", recent[0].Capability)

	successes, _, _ := h.ledger.Counts("connector.petstore.list_pets", ScopeExternal)
	assert.Equal(t, 1, successes)
}

func TestExecuteGovernedUnknownConnector(t *testing.T) {
	h := newHarness(t, nil)
	resp := h.governed.ExecuteGoverned(context.Background(), "ghost", "list_pets", nil)
	require.False(t, resp.Success)
	assert.Equal(t, connector.KindConnectorNotFound, resp.ErrorKind)
}

func TestExecuteGovernedUnknownOperation(t *testing.T) {
	h := newHarness(t, nil)
	resp := h.governed.ExecuteGoverned(context.Background(), "petstore", "levitate", nil)
	require.False(t, resp.Success)
	assert.Equal(t, connector.KindOperationNotFound, resp.ErrorKind)
}

func TestPolicyDenialShortCircuits(t *testing.T) {
	h := newHarness(t, TierCapPolicy{MaxTier: connector.TierControlled})
	resp := h.governed.ExecuteGoverned(context.Background(), "petstore", "delete_pet",
		map[string]interface{}{"pet_id": "fido"})

	require.False(t, resp.Success)
	assert.Equal(t, connector.KindPolicyDenied, resp.ErrorKind)
	assert.NotEmpty(t, resp.ReceiptID, "denials are receipted too")

	_, failures, _ := h.ledger.Counts("connector.petstore.delete_pet", ScopeExternal)
	assert.Equal(t, 1, failures)
}

func TestPolicyAllowsLowTiers(t *testing.T) {
	h := newHarness(t, TierCapPolicy{MaxTier: connector.TierControlled})
	resp := h.governed.ExecuteGoverned(context.Background(), "petstore", "list_pets", nil)
	assert.True(t, resp.Success, "unexpected failure: %s", resp.Error)
}

func TestOperationTier(t *testing.T) {
	h := newHarness(t, nil)
	tier, err := h.governed.OperationTier("petstore", "delete_pet")
	require.NoError(t, err)
	assert.Equal(t, connector.TierIrreversible, tier)
}

func TestHandleRollback(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.governed.HandleRollback("petstore", "delete_pet", ScopeExternal))
	_, _, rollbacks := h.ledger.Counts("connector.petstore.delete_pet", ScopeExternal)
	assert.Equal(t, 1, rollbacks)

	err := h.governed.HandleRollback("petstore", "levitate", ScopeExternal)
	assert.Error(t, err)
}

func TestSpecErrorRecordsFailure(t *testing.T) {
	h := newHarness(t, nil)
	resp := h.governed.ExecuteGoverned(context.Background(), "petstore", "delete_pet",
		map[string]interface{}{"pet_id": "../etc"})

	require.False(t, resp.Success)
	assert.Equal(t, connector.KindInvalidRequestSpec, resp.ErrorKind)
	assert.NotEmpty(t, resp.ReceiptID)

	_, failures, _ := h.ledger.Counts("connector.petstore.delete_pet", ScopeExternal)
	assert.Equal(t, 1, failures)
}
