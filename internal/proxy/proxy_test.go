package proxy

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myles1663/lancelot-sub000/internal/connector"
	"github.com/myles1663/lancelot-sub000/internal/ratelimit"
)

// fakeVault is a map-backed credential source. It records every retrieval
// so tests can assert when the vault was, or was not, consulted.
type fakeVault struct {
	secrets    map[string]string
	types      map[string]connector.CredentialType
	denied     map[string]bool
	retrievals []string
}

func (f *fakeVault) Retrieve(key, accessor string) (string, error) {
	f.retrievals = append(f.retrievals, key)
	if f.denied[accessor] {
		return "", connector.E(connector.KindPermissionDenied, "accessor %s may not read %s", accessor, key)
	}
	v, ok := f.secrets[key]
	if !ok {
		return "", connector.E(connector.KindKeyNotFound, "vault has no key %q", key)
	}
	return v, nil
}

func (f *fakeVault) Exists(key string) bool {
	_, ok := f.secrets[key]
	return ok
}

func (f *fakeVault) CredentialType(key string) connector.CredentialType {
	return f.types[key]
}

func newTestProxy(t *testing.T, vault *fakeVault, handler http.HandlerFunc) (*Proxy, *httptest.Server) {
	t.Helper()
	ts := httptest.NewTLSServer(handler)
	t.Cleanup(ts.Close)

	limits := ratelimit.NewRegistry(ratelimit.Config{MaxRequestsPerMinute: 600, BurstSize: 100}, nil)
	p := New(vault, limits, nil, NewMetrics(prometheus.NewRegistry()))
	p.client = ts.Client()

	u, err := url.Parse(ts.URL)
	require.NoError(t, err)
	p.AllowDomains("testconn", u.Hostname())
	return p, ts
}

func spec(ts *httptest.Server, mutate func(*connector.Result)) *connector.Result {
	r := &connector.Result{
		OperationID:    "op",
		ConnectorID:    "testconn",
		Method:         "GET",
		URL:            ts.URL + "/path",
		Headers:        map[string]string{},
		TimeoutSeconds: 5,
		Metadata:       map[string]string{},
	}
	if mutate != nil {
		mutate(r)
	}
	return r
}

func TestDomainAllowlistExactMatch(t *testing.T) {
	vault := &fakeVault{secrets: map[string]string{}}
	p, ts := newTestProxy(t, vault, func(w http.ResponseWriter, r *http.Request) {})

	resp := p.Execute(context.Background(), spec(ts, func(r *connector.Result) {
		r.URL = "https://evil.example.com/path"
	}))
	require.False(t, resp.Success)
	assert.Equal(t, connector.KindDomainNotAllowed, resp.ErrorKind)
	assert.Equal(t, 0, resp.StatusCode)
}

func TestNoWildcardOrSuffixMatching(t *testing.T) {
	vault := &fakeVault{secrets: map[string]string{}}
	limits := ratelimit.NewRegistry(ratelimit.Config{MaxRequestsPerMinute: 600, BurstSize: 100}, nil)
	p := New(vault, limits, nil, nil)
	p.AllowDomains("c", "slack.com")

	r := &connector.Result{
		OperationID: "op", ConnectorID: "c", Method: "GET",
		URL: "https://evil-slack.com/api", TimeoutSeconds: 5,
	}
	resp := p.Execute(context.Background(), r)
	assert.Equal(t, connector.KindDomainNotAllowed, resp.ErrorKind)

	r.URL = "https://api.slack.com/api"
	resp = p.Execute(context.Background(), r)
	assert.Equal(t, connector.KindDomainNotAllowed, resp.ErrorKind, "subdomains need their own entry")
}

func TestDomainScopeIsPerConnector(t *testing.T) {
	vault := &fakeVault{secrets: map[string]string{}}
	p, ts := newTestProxy(t, vault, func(w http.ResponseWriter, r *http.Request) {})
	p.AllowDomains("slack", "slack.com")

	// testconn may reach its own host but not another connector's domain.
	ok := p.Execute(context.Background(), spec(ts, nil))
	assert.True(t, ok.Success)

	resp := p.Execute(context.Background(), spec(ts, func(r *connector.Result) {
		r.URL = "https://slack.com/api/chat.postMessage"
	}))
	require.False(t, resp.Success)
	assert.Equal(t, connector.KindDomainNotAllowed, resp.ErrorKind)

	// And the other way around: slack may not borrow testconn's host.
	u, err := url.Parse(ts.URL)
	require.NoError(t, err)
	resp = p.Execute(context.Background(), spec(ts, func(r *connector.Result) {
		r.ConnectorID = "slack"
		r.URL = "https://" + u.Host + "/path"
	}))
	require.False(t, resp.Success)
	assert.Equal(t, connector.KindDomainNotAllowed, resp.ErrorKind)
}

func TestUnregisteredConnectorRejected(t *testing.T) {
	vault := &fakeVault{secrets: map[string]string{}}
	p, ts := newTestProxy(t, vault, func(w http.ResponseWriter, r *http.Request) {})

	resp := p.Execute(context.Background(), spec(ts, func(r *connector.Result) {
		r.ConnectorID = "ghost"
	}))
	require.False(t, resp.Success)
	assert.Equal(t, connector.KindConnectorNotFound, resp.ErrorKind)
	assert.Equal(t, 0, resp.StatusCode)
	assert.Contains(t, resp.Error, "Connector 'ghost' not found")
}

func TestDeniedRequestNeverTouchesVault(t *testing.T) {
	vault := &fakeVault{secrets: map[string]string{"telegram.bot_token": "123:secret"}}
	limits := ratelimit.NewRegistry(ratelimit.Config{MaxRequestsPerMinute: 600, BurstSize: 10}, nil)
	p := New(vault, limits, nil, nil)
	p.AllowDomains("telegram", "api.telegram.org")

	r := &connector.Result{
		OperationID: "get_me", ConnectorID: "telegram", Method: "GET",
		URL: "https://evil.example.com/bot{token}/getMe", TimeoutSeconds: 5,
		CredentialVaultKey: "telegram.bot_token",
		Metadata:           map[string]string{connector.MetaAuthType: connector.AuthURLToken},
	}
	resp := p.Execute(context.Background(), r)
	require.False(t, resp.Success)
	assert.Equal(t, connector.KindDomainNotAllowed, resp.ErrorKind)
	assert.Empty(t, vault.retrievals, "the credential must stay in the vault until the host is allowed")
}

func TestBearerInjectionFromVault(t *testing.T) {
	var gotAuth string
	vault := &fakeVault{secrets: map[string]string{"slack.bot_token": "xoxb-123"}}
	p, ts := newTestProxy(t, vault, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"ok":true}`))
	})

	resp := p.Execute(context.Background(), spec(ts, func(r *connector.Result) {
		r.CredentialVaultKey = "slack.bot_token"
	}))
	require.True(t, resp.Success)
	assert.Equal(t, "Bearer xoxb-123", gotAuth)

	body := resp.Body.(map[string]interface{})
	assert.Equal(t, true, body["ok"])
}

func TestTypedAuthSelection(t *testing.T) {
	cases := []struct {
		name     string
		credType connector.CredentialType
		want     string
	}{
		{"bot token gets Bot prefix", connector.CredentialBotToken, "Bot tok-1"},
		{"oauth token gets Bearer", connector.CredentialOAuthToken, "Bearer tok-1"},
		{"basic auth is pre-encoded", connector.CredentialBasicAuth, "Basic tok-1"},
		{"unknown type defaults to Bearer", "", "Bearer tok-1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var gotAuth string
			vault := &fakeVault{
				secrets: map[string]string{"svc.token": "tok-1"},
				types:   map[string]connector.CredentialType{"svc.token": tc.credType},
			}
			p, ts := newTestProxy(t, vault, func(w http.ResponseWriter, r *http.Request) {
				gotAuth = r.Header.Get("Authorization")
			})
			resp := p.Execute(context.Background(), spec(ts, func(r *connector.Result) {
				r.CredentialVaultKey = "svc.token"
			}))
			require.True(t, resp.Success)
			assert.Equal(t, tc.want, gotAuth)
		})
	}

	t.Run("api key rides a dedicated header", func(t *testing.T) {
		var gotHeader, gotAuth string
		vault := &fakeVault{
			secrets: map[string]string{"svc.token": "tok-1"},
			types:   map[string]connector.CredentialType{"svc.token": connector.CredentialAPIKey},
		}
		p, ts := newTestProxy(t, vault, func(w http.ResponseWriter, r *http.Request) {
			gotHeader = r.Header.Get("X-API-Key")
			gotAuth = r.Header.Get("Authorization")
		})
		resp := p.Execute(context.Background(), spec(ts, func(r *connector.Result) {
			r.CredentialVaultKey = "svc.token"
		}))
		require.True(t, resp.Success)
		assert.Equal(t, "tok-1", gotHeader)
		assert.Empty(t, gotAuth)
	})
}

func TestURLTokenSubstitution(t *testing.T) {
	var gotPath string
	vault := &fakeVault{secrets: map[string]string{"telegram.bot_token": "123:abc"}}
	p, ts := newTestProxy(t, vault, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"ok":true}`))
	})

	resp := p.Execute(context.Background(), spec(ts, func(r *connector.Result) {
		r.URL = ts.URL + "/bot{token}/getMe"
		r.CredentialVaultKey = "telegram.bot_token"
		r.Metadata[connector.MetaAuthType] = connector.AuthURLToken
	}))
	require.True(t, resp.Success)
	assert.Equal(t, "/bot123:abc/getMe", gotPath)
}

func TestComposedBasicAuth(t *testing.T) {
	var gotAuth string
	vault := &fakeVault{secrets: map[string]string{
		"twilio.account_sid": "AC001",
		"twilio.auth_token":  "tok-xyz",
	}}
	p, ts := newTestProxy(t, vault, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	})

	resp := p.Execute(context.Background(), spec(ts, func(r *connector.Result) {
		r.CredentialVaultKey = "twilio.auth_token"
		r.Metadata[connector.MetaAuthType] = connector.AuthBasicAuthComposed
		r.Metadata[connector.MetaBasicAuthUsernameKey] = "twilio.account_sid"
	}))
	require.True(t, resp.Success)
	expected := "Basic " + base64.StdEncoding.EncodeToString([]byte("AC001:tok-xyz"))
	assert.Equal(t, expected, gotAuth)
}

func TestAuthNoneSkipsVault(t *testing.T) {
	vault := &fakeVault{secrets: map[string]string{}, denied: map[string]bool{"testconn": true}}
	p, ts := newTestProxy(t, vault, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
	})

	resp := p.Execute(context.Background(), spec(ts, func(r *connector.Result) {
		r.Metadata[connector.MetaAuthType] = connector.AuthNone
	}))
	assert.True(t, resp.Success)
}

func TestMissingCredentialFailsBeforeDispatch(t *testing.T) {
	dispatched := false
	vault := &fakeVault{secrets: map[string]string{}}
	p, ts := newTestProxy(t, vault, func(w http.ResponseWriter, r *http.Request) {
		dispatched = true
	})

	resp := p.Execute(context.Background(), spec(ts, func(r *connector.Result) {
		r.CredentialVaultKey = "absent.key"
	}))
	require.False(t, resp.Success)
	assert.Equal(t, connector.KindKeyNotFound, resp.ErrorKind)
	assert.False(t, dispatched, "no network call without a credential")
}

func TestRateLimitRejection(t *testing.T) {
	vault := &fakeVault{secrets: map[string]string{}}
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer ts.Close()

	limits := ratelimit.NewRegistry(ratelimit.Config{MaxRequestsPerMinute: 0, BurstSize: 1}, nil)
	p := New(vault, limits, nil, nil)
	p.client = ts.Client()
	u, _ := url.Parse(ts.URL)
	p.AllowDomains("testconn", u.Hostname())

	first := p.Execute(context.Background(), spec(ts, nil))
	assert.True(t, first.Success)

	second := p.Execute(context.Background(), spec(ts, nil))
	require.False(t, second.Success)
	assert.Equal(t, connector.KindRateLimited, second.ErrorKind)
	assert.Equal(t, http.StatusTooManyRequests, second.StatusCode)
}

func TestHTTPErrorStatusIsNotSuccess(t *testing.T) {
	vault := &fakeVault{secrets: map[string]string{}}
	p, ts := newTestProxy(t, vault, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	})

	resp := p.Execute(context.Background(), spec(ts, nil))
	assert.False(t, resp.Success)
	assert.Equal(t, 403, resp.StatusCode)
	assert.True(t, resp.IsError())
}

func TestFormBodyEncoding(t *testing.T) {
	var gotBody, gotType string
	vault := &fakeVault{secrets: map[string]string{}}
	p, ts := newTestProxy(t, vault, func(w http.ResponseWriter, r *http.Request) {
		raw := make([]byte, r.ContentLength)
		r.Body.Read(raw)
		gotBody = string(raw)
		gotType = r.Header.Get("Content-Type")
	})

	resp := p.Execute(context.Background(), spec(ts, func(r *connector.Result) {
		r.Method = "POST"
		r.Body = connector.FormBody("To=%2B15550002&Body=hi")
	}))
	require.True(t, resp.Success)
	assert.Equal(t, "To=%2B15550002&Body=hi", gotBody)
	assert.Equal(t, "application/x-www-form-urlencoded", gotType)
}

type stubProtocol struct {
	called bool
}

func (s *stubProtocol) Execute(ctx context.Context, r *connector.Result) *connector.Response {
	s.called = true
	return &connector.Response{OperationID: r.OperationID, ConnectorID: r.ConnectorID, StatusCode: 200, Success: true}
}

func TestProtocolSpecsRouteToAdapter(t *testing.T) {
	stub := &stubProtocol{}
	limits := ratelimit.NewRegistry(ratelimit.Config{MaxRequestsPerMinute: 600, BurstSize: 10}, nil)
	p := New(&fakeVault{secrets: map[string]string{}}, limits, stub, nil)
	p.AllowDomains("email", "protocol.smtp", "protocol.imap")

	r := &connector.Result{
		OperationID: "send_email", ConnectorID: "email", Method: "POST",
		URL: connector.URLProtocolSMTP, TimeoutSeconds: 30,
		Body: connector.ProtocolBody(map[string]interface{}{"action": "send"}),
	}
	resp := p.Execute(context.Background(), r)
	assert.True(t, resp.Success)
	assert.True(t, stub.called)
}

func TestProtocolSpecWithoutAdapter(t *testing.T) {
	limits := ratelimit.NewRegistry(ratelimit.Config{MaxRequestsPerMinute: 600, BurstSize: 10}, nil)
	p := New(&fakeVault{secrets: map[string]string{}}, limits, nil, nil)
	p.AllowDomains("email", "protocol.smtp", "protocol.imap")

	r := &connector.Result{
		OperationID: "send_email", ConnectorID: "email", Method: "POST",
		URL: connector.URLProtocolSMTP, TimeoutSeconds: 30,
		Body: connector.ProtocolBody(map[string]interface{}{"action": "send"}),
	}
	resp := p.Execute(context.Background(), r)
	require.False(t, resp.Success)
	assert.Equal(t, connector.KindProtocolAction, resp.ErrorKind)
}

func TestResponsesNeverEchoCredentials(t *testing.T) {
	vault := &fakeVault{secrets: map[string]string{"telegram.bot_token": "123:secret"}}
	limits := ratelimit.NewRegistry(ratelimit.Config{MaxRequestsPerMinute: 600, BurstSize: 10}, nil)
	p := New(vault, limits, nil, nil)
	p.AllowDomains("telegram", "api.telegram.org")

	// The host resolves nowhere in tests, so the transport fails; the
	// error text must not contain the substituted token.
	r := &connector.Result{
		OperationID: "get_me", ConnectorID: "telegram", Method: "GET",
		URL: "https://api.telegram.org/bot{token}/getMe", TimeoutSeconds: 1,
		CredentialVaultKey: "telegram.bot_token",
		Metadata:           map[string]string{connector.MetaAuthType: connector.AuthURLToken},
	}
	resp := p.Execute(context.Background(), r)
	require.False(t, resp.Success)
	assert.NotContains(t, resp.Error, "123:secret")
}
