// Package proxy is the sole HTTP egress of the plane. Connectors produce
// request specs; everything that touches the network or a credential
// happens here, behind the domain allowlist and rate limiter.
package proxy

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/myles1663/lancelot-sub000/internal/connector"
	"github.com/myles1663/lancelot-sub000/internal/ratelimit"
)

// CredentialSource is the slice of the vault the proxy needs.
type CredentialSource interface {
	Retrieve(key, accessor string) (string, error)
	Exists(key string) bool
	// CredentialType reports the declared type of a stored credential,
	// "" when the key is absent.
	CredentialType(key string) connector.CredentialType
}

// ProtocolExecutor handles protocol:// request specs (SMTP/IMAP).
type ProtocolExecutor interface {
	Execute(ctx context.Context, r *connector.Result) *connector.Response
}

// urlTokenPlaceholder stands in for a url-embedded credential while the
// domain allowlist inspects the URL. The real value is only fetched from
// the vault after the request has been allowed.
const urlTokenPlaceholder = "credential"

// Proxy executes validated request specs.
type Proxy struct {
	client   *http.Client
	vault    CredentialSource
	limits   *ratelimit.Registry
	protocol ProtocolExecutor
	metrics  *Metrics
	oauth    *oauth1Signer
	logger   *log.Logger
	requests atomic.Int64

	// allowlist maps connector id to the exact hostnames that connector's
	// manifest declares. A connector may only reach its own domains.
	allowlist map[string]map[string]bool
}

// New builds a proxy. protocol may be nil when no mail adapter is
// configured; protocol specs then fail cleanly.
func New(vault CredentialSource, limits *ratelimit.Registry, protocol ProtocolExecutor, metrics *Metrics) *Proxy {
	return &Proxy{
		client:    &http.Client{},
		vault:     vault,
		limits:    limits,
		protocol:  protocol,
		metrics:   metrics,
		oauth:     newOAuth1Signer(),
		logger:    log.New(log.Writer(), "[PROXY] ", log.LstdFlags),
		allowlist: make(map[string]map[string]bool),
	}
}

// SetHTTPClient replaces the underlying HTTP client, e.g. to set transport
// timeouts or a custom TLS configuration.
func (p *Proxy) SetHTTPClient(c *http.Client) {
	if c != nil {
		p.client = c
	}
}

// AllowDomains registers a connector and the domains it may reach.
// Matching is exact equality on the hostname; no wildcards, no suffix
// matching, and no sharing between connectors. Registering with no HTTP
// domains (e.g. a protocol-only connector) still makes the connector known.
func (p *Proxy) AllowDomains(connectorID string, domains ...string) {
	set, ok := p.allowlist[connectorID]
	if !ok {
		set = make(map[string]bool)
		p.allowlist[connectorID] = set
	}
	for _, d := range domains {
		if d == "" || strings.HasPrefix(d, "protocol.") {
			continue
		}
		set[strings.ToLower(d)] = true
	}
}

// Execute runs one request spec through the full egress pipeline.
func (p *Proxy) Execute(ctx context.Context, r *connector.Result) *connector.Response {
	p.requests.Add(1)
	start := time.Now()
	resp := p.execute(ctx, r)
	resp.ElapsedMS = time.Since(start).Milliseconds()
	if p.metrics != nil {
		p.metrics.observe(r.ConnectorID, resp, time.Since(start))
	}
	return resp
}

func (p *Proxy) execute(ctx context.Context, r *connector.Result) *connector.Response {
	if err := r.Validate(); err != nil {
		return connector.ErrorResponse(r.ConnectorID, r.OperationID, connector.KindOf(err), "%v", err)
	}

	domains, registered := p.allowlist[r.ConnectorID]
	if !registered {
		return connector.ErrorResponse(r.ConnectorID, r.OperationID,
			connector.KindConnectorNotFound, "Connector '%s' not found", r.ConnectorID)
	}

	if !p.limits.Check(r.ConnectorID) {
		return p.rateLimited(r)
	}

	// Protocol specs bypass the HTTP path entirely; the adapter owns
	// its own transport and credentials.
	if strings.HasPrefix(r.URL, connector.ProtocolURLPrefix) {
		if p.protocol == nil {
			return connector.ErrorResponse(r.ConnectorID, r.OperationID,
				connector.KindProtocolAction, "no protocol adapter configured")
		}
		return p.protocol.Execute(ctx, r)
	}

	// The allowlist inspects the URL with a fixed placeholder where a
	// url-embedded token will go; no credential leaves the vault until
	// the host has been allowed.
	isURLToken := r.Meta(connector.MetaAuthType) == connector.AuthURLToken
	checkURL := r.URL
	if isURLToken {
		checkURL = strings.ReplaceAll(checkURL, "{token}", urlTokenPlaceholder)
	}

	parsed, err := url.Parse(checkURL)
	if err != nil {
		return connector.ErrorResponse(r.ConnectorID, r.OperationID,
			connector.KindInvalidRequestSpec, "unparseable request url")
	}
	host := strings.ToLower(parsed.Hostname())
	if !domains[host] {
		p.logger.Printf("DENIED %s %s: domain %s not in connector allowlist", r.ConnectorID, r.OperationID, host)
		if p.metrics != nil {
			p.metrics.denied(r.ConnectorID)
		}
		return connector.ErrorResponse(r.ConnectorID, r.OperationID,
			connector.KindDomainNotAllowed, "domain %s is not allowed for connector %s", host, r.ConnectorID)
	}

	finalURL := r.URL
	urlToken := ""
	if isURLToken {
		urlToken, err = p.vault.Retrieve(r.CredentialVaultKey, r.ConnectorID)
		if err != nil {
			return connector.ErrorResponse(r.ConnectorID, r.OperationID, connector.KindOf(err),
				"resolving url token credential %s", r.CredentialVaultKey)
		}
		finalURL = strings.ReplaceAll(finalURL, "{token}", urlToken)
	}

	body, contentType, err := encodeBody(r)
	if err != nil {
		return connector.ErrorResponse(r.ConnectorID, r.OperationID, connector.KindOf(err), "%v", err)
	}

	timeout := time.Duration(r.TimeoutSeconds) * time.Second
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, r.Method, finalURL, bytes.NewReader(body))
	if err != nil {
		return connector.ErrorResponse(r.ConnectorID, r.OperationID,
			connector.KindInvalidRequestSpec, "building request: %v", err)
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}
	if contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}

	if err := p.injectCredentials(req, r); err != nil {
		return connector.ErrorResponse(r.ConnectorID, r.OperationID, connector.KindOf(err), "%v", err)
	}

	// The pre-substitution URL is safe to log; the final one may not be.
	p.logger.Printf("%s %s %s %s", r.ConnectorID, r.OperationID, r.Method, r.URL)

	httpResp, err := p.client.Do(req)
	if err != nil {
		return connector.ErrorResponse(r.ConnectorID, r.OperationID,
			connector.KindTransport, "request failed: %v", redactToken(err.Error(), urlToken))
	}
	defer httpResp.Body.Close()

	return buildResponse(r, httpResp)
}

func (p *Proxy) rateLimited(r *connector.Result) *connector.Response {
	if p.metrics != nil {
		p.metrics.rateLimited(r.ConnectorID)
	}
	return &connector.Response{
		OperationID: r.OperationID,
		ConnectorID: r.ConnectorID,
		StatusCode:  http.StatusTooManyRequests,
		Success:     false,
		Error:       "rate limit exceeded for connector " + r.ConnectorID,
		ErrorKind:   connector.KindRateLimited,
	}
}

// RequestCount reports how many specs the proxy has processed.
func (p *Proxy) RequestCount() int64 { return p.requests.Load() }

// Stats reports pipeline counters and allowlist size.
func (p *Proxy) Stats() map[string]interface{} {
	seen := make(map[string]bool)
	for _, set := range p.allowlist {
		for d := range set {
			seen[d] = true
		}
	}
	domains := make([]string, 0, len(seen))
	for d := range seen {
		domains = append(domains, d)
	}
	return map[string]interface{}{
		"requests":        p.requests.Load(),
		"connectors":      len(p.allowlist),
		"allowed_domains": domains,
	}
}

// ============================================================================
// CREDENTIAL INJECTION
// ============================================================================

// injectCredentials attaches the auth material the spec's metadata calls
// for. Secret values go only into the outbound request, never anywhere
// observable.
func (p *Proxy) injectCredentials(req *http.Request, r *connector.Result) error {
	authType := r.Meta(connector.MetaAuthType)

	switch authType {
	case connector.AuthNone, connector.AuthURLToken:
		// none: nothing to inject. url_token: already substituted.
		return nil

	case connector.AuthOAuth1:
		keys := [4]string{
			r.Meta(connector.MetaOAuthConsumerKey),
			r.Meta(connector.MetaOAuthConsumerSecret),
			r.Meta(connector.MetaOAuthTokenKey),
			r.Meta(connector.MetaOAuthTokenSecret),
		}
		vals := [4]string{}
		for i, key := range keys {
			v, err := p.vault.Retrieve(key, r.ConnectorID)
			if err != nil {
				return connector.Wrap(connector.KindOAuthSigning, err, "resolving oauth key %s", key)
			}
			vals[i] = v
		}
		header, err := p.oauth.authorizationHeader(req.Method, req.URL, oauth1Credentials{
			ConsumerKey:    vals[0],
			ConsumerSecret: vals[1],
			Token:          vals[2],
			TokenSecret:    vals[3],
		})
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", header)
		return nil

	case connector.AuthBasicAuthComposed:
		usernameKey := r.Meta(connector.MetaBasicAuthUsernameKey)
		username, err := p.vault.Retrieve(usernameKey, r.ConnectorID)
		if err != nil {
			return connector.Wrap(connector.KindOf(err), err, "resolving basic auth username %s", usernameKey)
		}
		password, err := p.vault.Retrieve(r.CredentialVaultKey, r.ConnectorID)
		if err != nil {
			return connector.Wrap(connector.KindOf(err), err, "resolving basic auth password %s", r.CredentialVaultKey)
		}
		req.SetBasicAuth(username, password)
		return nil

	case "bearer", "oauth2":
		return p.bearerFromVault(req, r)

	case "api_key":
		token, err := p.vault.Retrieve(r.CredentialVaultKey, r.ConnectorID)
		if err != nil {
			return err
		}
		req.Header.Set("X-API-Key", token)
		return nil

	case "basic":
		// Vault value is "user:password" for declared basic auth.
		pair, err := p.vault.Retrieve(r.CredentialVaultKey, r.ConnectorID)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(pair)))
		return nil

	case "":
		if r.CredentialVaultKey == "" {
			return nil
		}
		return p.typedAuthFromVault(req, r)

	default:
		return connector.E(connector.KindInvalidRequestSpec, "unknown auth type %q", authType)
	}
}

// bearerFromVault sets the standard Authorization header from the spec's
// vault key.
func (p *Proxy) bearerFromVault(req *http.Request, r *connector.Result) error {
	token, err := p.vault.Retrieve(r.CredentialVaultKey, r.ConnectorID)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

// typedAuthFromVault picks the header style from the stored credential's
// declared type when the spec does not name an auth strategy.
func (p *Proxy) typedAuthFromVault(req *http.Request, r *connector.Result) error {
	credType := p.vault.CredentialType(r.CredentialVaultKey)
	token, err := p.vault.Retrieve(r.CredentialVaultKey, r.ConnectorID)
	if err != nil {
		return err
	}
	switch credType {
	case connector.CredentialAPIKey:
		req.Header.Set("X-API-Key", token)
	case connector.CredentialBasicAuth:
		// Stored value is already base64("user:pass").
		req.Header.Set("Authorization", "Basic "+token)
	case connector.CredentialBotToken:
		req.Header.Set("Authorization", "Bot "+token)
	default:
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return nil
}

// ============================================================================
// BODY ENCODING AND RESPONSE
// ============================================================================

func encodeBody(r *connector.Result) (body []byte, contentType string, err error) {
	switch r.Body.Kind {
	case connector.BodyEmpty:
		return nil, "", nil
	case connector.BodyJSON:
		raw, err := json.Marshal(r.Body.JSON)
		if err != nil {
			return nil, "", connector.Wrap(connector.KindInvalidRequestSpec, err, "encoding json body")
		}
		return raw, "application/json", nil
	case connector.BodyForm:
		return []byte(r.Body.Form), "application/x-www-form-urlencoded", nil
	case connector.BodyProtocol:
		return nil, "", connector.E(connector.KindInvalidRequestSpec, "protocol body on an http url")
	default:
		return nil, "", connector.E(connector.KindInvalidRequestSpec, "unknown body kind")
	}
}

func buildResponse(r *connector.Result, httpResp *http.Response) *connector.Response {
	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, 10<<20))
	if err != nil {
		return connector.ErrorResponse(r.ConnectorID, r.OperationID,
			connector.KindTransport, "reading response body: %v", err)
	}

	var parsed interface{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &parsed); err != nil {
			parsed = string(raw)
		}
	}

	headers := map[string]string{}
	for k := range httpResp.Header {
		headers[k] = httpResp.Header.Get(k)
	}

	success := httpResp.StatusCode < 400
	resp := &connector.Response{
		OperationID: r.OperationID,
		ConnectorID: r.ConnectorID,
		StatusCode:  httpResp.StatusCode,
		Headers:     headers,
		Body:        parsed,
		Success:     success,
	}
	if !success {
		resp.Error = httpResp.Status
		resp.ErrorKind = connector.KindTransport
	}
	return resp
}

// redactToken strips a url-embedded credential from an error string
// before it can reach logs or responses. The transport error quotes the
// final URL, which carries the substituted token.
func redactToken(s, token string) string {
	if token == "" {
		return s
	}
	return strings.ReplaceAll(s, token, "[redacted]")
}
