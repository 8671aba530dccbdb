package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myles1663/lancelot-sub000/internal/connector"
	"github.com/myles1663/lancelot-sub000/internal/governance"
	"github.com/myles1663/lancelot-sub000/internal/proxy"
	"github.com/myles1663/lancelot-sub000/internal/ratelimit"
	"github.com/myles1663/lancelot-sub000/internal/registry"
	"github.com/myles1663/lancelot-sub000/internal/vault"
)

func newTestServer(t *testing.T) (*Server, *governance.MemoryReceiptStore) {
	t.Helper()
	t.Setenv("API_TEST_MASTER_KEY", "0123456789abcdef0123456789abcdef")

	v, err := vault.New(vault.Options{KeyEnvVar: "API_TEST_MASTER_KEY"})
	require.NoError(t, err)
	t.Cleanup(v.Close)

	flags := governance.NewFlags(governance.FlagConnectors)
	reg := registry.New(flags)
	require.NoError(t, reg.Register(connector.NewSlack()))

	limits := ratelimit.NewRegistry(ratelimit.Config{MaxRequestsPerMinute: 60, BurstSize: 10}, nil)
	raw := proxy.New(v, limits, nil, nil)

	ledger := governance.NewTrustLedger(nil)
	classifier := governance.NewClassifier(ledger, flags)
	store := governance.NewMemoryReceiptStore(100)
	pipeline := governance.NewReceiptPipeline(store, nil)
	ctx, cancel := context.WithCancel(context.Background())
	pipeline.Start(ctx)
	t.Cleanup(func() { cancel(); pipeline.Wait() })

	governed := governance.NewGovernedProxy(reg, raw, classifier, nil, ledger, pipeline, nil)
	return NewServer(reg, v, governed, raw, store), store
}

func do(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestStoreCredentialLifecycle(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, "POST", "/connectors/slack/credentials", map[string]string{
		"vault_key": "slack.bot_token",
		"value":     "xoxb-secret",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "xoxb-secret", "stored values never flow back out")

	rec = do(t, s, "GET", "/connectors/slack/credentials/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	creds := body["credentials"].([]interface{})
	require.NotEmpty(t, creds)
	first := creds[0].(map[string]interface{})
	assert.Equal(t, "slack.bot_token", first["vault_key"])
	assert.Equal(t, true, first["present"])
	assert.NotContains(t, rec.Body.String(), "xoxb-secret")

	rec = do(t, s, "POST", "/connectors/slack/credentials/validate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["valid"])

	rec = do(t, s, "DELETE", "/connectors/slack/credentials/slack.bot_token", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, "POST", "/connectors/slack/credentials/validate", nil)
	assert.Equal(t, false, decode(t, rec)["valid"])
}

func TestStoreCredentialRejectsUnknownConnector(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, "POST", "/connectors/ghost/credentials", map[string]string{
		"vault_key": "ghost.token", "value": "v",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStoreCredentialRejectsUndeclaredKey(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, "POST", "/connectors/slack/credentials", map[string]string{
		"vault_key": "discord.bot_token", "value": "v",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteMissingCredential(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, "DELETE", "/connectors/slack/credentials/slack.bot_token", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListAndGetConnector(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, "GET", "/connectors", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode(t, rec)["connectors"].([]interface{})
	require.Len(t, list, 1)
	assert.Equal(t, "slack", list[0].(map[string]interface{})["id"])

	rec = do(t, s, "GET", "/connectors/slack", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	ops := body["operations"].([]interface{})
	assert.NotEmpty(t, ops)

	rec = do(t, s, "GET", "/connectors/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateStatus(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, "PUT", "/connectors/slack/status", map[string]string{"status": "suspended"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, "GET", "/connectors/slack", nil)
	assert.Equal(t, "suspended", decode(t, rec)["status"])

	rec = do(t, s, "PUT", "/connectors/slack/status", map[string]string{"status": "dancing"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExecuteUnknownTargets(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, "POST", "/connectors/ghost/execute/get", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, "POST", "/connectors/slack/execute/levitate", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReceiptsEndpoint(t *testing.T) {
	s, store := newTestServer(t)
	require.NoError(t, store.Append(context.Background(), governance.Receipt{
		ReceiptID: "r-1", Timestamp: time.Now().UTC(),
		ConnectorID: "slack", OperationID: "post_message",
		Capability: "connector.slack.post_message", Tier: "T2_CONTROLLED",
		StatusCode: 200, Success: true,
	}))

	rec := do(t, s, "GET", "/receipts?limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(1), body["total"])

	rec = do(t, s, "GET", "/receipts?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatsAndHealth(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, "GET", "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, "GET", "/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Contains(t, body, "registry")
	assert.Contains(t, body, "vault")
	assert.Contains(t, body, "proxy")
}
