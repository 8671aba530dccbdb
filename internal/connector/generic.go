package connector

import (
	"net"
	"net/url"
	"regexp"
	"strings"
)

// Generic REST connector: user-supplied endpoint catalogs instead of a
// built-in one. Config comes from outside the binary, so construction
// returns errors rather than panicking, and every field is validated
// before the connector is admitted.

const maxGenericEndpoints = 50

// pathParamPattern bounds values substituted into URL paths. Anything
// outside it could smuggle separators or traversal into the request path.
var pathParamPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// paramNamePattern bounds the names of caller-supplied parameters. Names
// come from outside the binary, so they are rejected at execute time
// rather than trusted into query strings or JSON bodies.
var paramNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,64}$`)

// lookupIP is swapped in tests to avoid real DNS.
var lookupIP = net.LookupIP

// GenericEndpoint declares one callable endpoint of a generic REST API.
type GenericEndpoint struct {
	ID          string          `yaml:"id"`
	Name        string          `yaml:"name"`
	Description string          `yaml:"description"`
	Method      string          `yaml:"method"`
	Path        string          `yaml:"path"`
	Capability  string          `yaml:"capability"`
	Tier        string          `yaml:"tier"`
	Parameters  []ParameterSpec `yaml:"parameters"`
}

// GenericRESTConfig declares a generic REST connector.
type GenericRESTConfig struct {
	ID          string            `yaml:"id"`
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	BaseURL     string            `yaml:"base_url"`
	AuthType    string            `yaml:"auth_type"`
	VaultKey    string            `yaml:"vault_key"`
	Endpoints   []GenericEndpoint `yaml:"endpoints"`
}

var genericAuthTypes = map[string]bool{
	"bearer":  true,
	"api_key": true,
	"basic":   true,
	"oauth2":  true,
}

// Validate rejects configs that could reach hosts outside the intended
// API or build malformed request paths.
func (c *GenericRESTConfig) Validate() error {
	if c.ID == "" || c.Name == "" {
		return E(KindInvalidManifest, "generic connector requires id and name")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return E(KindInvalidManifest, "generic connector %s: unparseable base_url", c.ID)
	}
	if u.Scheme != "https" {
		return E(KindInvalidManifest, "generic connector %s: base_url must use https", c.ID)
	}
	host := u.Hostname()
	if host == "" || strings.Contains(host, "*") {
		return E(KindInvalidManifest, "generic connector %s: base_url host is empty or wildcarded", c.ID)
	}
	if isInternalHost(host) {
		return E(KindInvalidManifest, "generic connector %s: base_url host resolves inside the local network", c.ID)
	}
	if !genericAuthTypes[c.AuthType] {
		return E(KindInvalidManifest, "generic connector %s: unknown auth_type %q", c.ID, c.AuthType)
	}
	if c.VaultKey == "" {
		return E(KindInvalidManifest, "generic connector %s: vault_key is required", c.ID)
	}
	if len(c.Endpoints) == 0 {
		return E(KindInvalidManifest, "generic connector %s: no endpoints", c.ID)
	}
	if len(c.Endpoints) > maxGenericEndpoints {
		return E(KindInvalidManifest, "generic connector %s: %d endpoints exceeds limit of %d", c.ID, len(c.Endpoints), maxGenericEndpoints)
	}
	seen := map[string]bool{}
	for _, ep := range c.Endpoints {
		if ep.ID == "" {
			return E(KindInvalidManifest, "generic connector %s: endpoint with empty id", c.ID)
		}
		if seen[ep.ID] {
			return E(KindInvalidManifest, "generic connector %s: duplicate endpoint %s", c.ID, ep.ID)
		}
		seen[ep.ID] = true
		if !strings.HasPrefix(ep.Path, "/") {
			return E(KindInvalidManifest, "generic connector %s: endpoint %s path must start with /", c.ID, ep.ID)
		}
		if strings.Contains(ep.Path, "../") || strings.Contains(ep.Path, `..\`) {
			return E(KindInvalidManifest, "generic connector %s: endpoint %s path contains traversal", c.ID, ep.ID)
		}
	}
	return nil
}

// isInternalHost reports whether host is loopback, link-local, or private
// address space. Literal IPs are checked directly; hostnames are matched
// against the obvious local names and then resolved, rejecting any that
// map to an internal address. Resolution failure is not a rejection;
// unresolvable hosts fail later at dial time without reaching anything.
func isInternalHost(host string) bool {
	if ip := net.ParseIP(host); ip != nil {
		return internalIP(ip)
	}
	lower := strings.ToLower(host)
	if lower == "localhost" || strings.HasSuffix(lower, ".localhost") ||
		strings.HasSuffix(lower, ".local") || strings.HasSuffix(lower, ".internal") {
		return true
	}
	if ips, err := lookupIP(host); err == nil {
		for _, ip := range ips {
			if internalIP(ip) {
				return true
			}
		}
	}
	return false
}

func internalIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsPrivate() || ip.IsUnspecified()
}

// GenericREST produces request specs for a user-declared REST API.
type GenericREST struct {
	base
	cfg GenericRESTConfig
}

// NewGenericREST validates the config and builds a connector from it.
func NewGenericREST(cfg GenericRESTConfig) (*GenericREST, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	u, _ := url.Parse(cfg.BaseURL)

	manifest := &Manifest{
		ID:          cfg.ID,
		Name:        cfg.Name,
		Version:     "1.0.0",
		Author:      "catalog",
		Source:      SourceUser,
		Description: cfg.Description,
		TargetDomains: []string{
			u.Hostname(),
		},
		RequiredCredentials: []CredentialSpec{
			{Name: "API Credential", Type: CredentialAPIKey, VaultKey: cfg.VaultKey, Required: true},
		},
	}

	ops := make([]Operation, 0, len(cfg.Endpoints))
	for _, ep := range cfg.Endpoints {
		tier, err := ParseRiskTier(ep.Tier)
		if err != nil {
			return nil, E(KindInvalidOperation, "generic connector %s: endpoint %s: %v", cfg.ID, ep.ID, err)
		}
		capability := ep.Capability
		if capability == "" {
			capability = CapabilityRead
		}
		ops = append(ops, Operation{
			ID:          ep.ID,
			Name:        ep.Name,
			Description: ep.Description,
			Capability:  capability,
			DefaultTier: tier,
			Parameters:  ep.Parameters,
			Idempotent:  ep.Method == "GET",
			Reversible:  ep.Method == "GET",
		})
	}

	b, err := newBaseChecked(manifest, ops)
	if err != nil {
		return nil, err
	}
	return &GenericREST{base: b, cfg: cfg}, nil
}

// Execute builds the request spec for one declared endpoint. Path
// placeholders of the form {name} are substituted from params after
// pattern validation. No I/O.
func (g *GenericREST) Execute(operationID string, params map[string]interface{}) (*Result, error) {
	op, err := g.checkOperation(operationID, params)
	if err != nil {
		return nil, err
	}
	for name := range params {
		if !paramNamePattern.MatchString(name) {
			return nil, E(KindInvalidRequestSpec, "parameter name %q is not allowed", name)
		}
	}

	var ep GenericEndpoint
	for _, candidate := range g.cfg.Endpoints {
		if candidate.ID == operationID {
			ep = candidate
			break
		}
	}

	path, query, err := g.renderPath(ep, params)
	if err != nil {
		return nil, err
	}

	r := &Result{
		OperationID:        op.ID,
		ConnectorID:        g.manifest.ID,
		Method:             ep.Method,
		URL:                strings.TrimSuffix(g.cfg.BaseURL, "/") + path,
		Headers:            map[string]string{},
		TimeoutSeconds:     defaultTimeoutSeconds,
		CredentialVaultKey: g.cfg.VaultKey,
		Metadata: map[string]string{
			MetaAuthType: g.cfg.AuthType,
		},
	}
	if len(query) > 0 {
		r.URL = queryURL(r.URL, query)
	}
	if ep.Method == "POST" || ep.Method == "PUT" || ep.Method == "PATCH" {
		body := map[string]interface{}{}
		for _, p := range ep.Parameters {
			if strings.Contains(ep.Path, "{"+p.Name+"}") {
				continue
			}
			if v, ok := params[p.Name]; ok {
				body[p.Name] = v
			}
		}
		r.Body = JSONBody(body)
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// renderPath substitutes {name} placeholders and collects leftover GET
// params as query values.
func (g *GenericREST) renderPath(ep GenericEndpoint, params map[string]interface{}) (string, map[string]string, error) {
	path := ep.Path
	query := map[string]string{}
	for _, p := range ep.Parameters {
		placeholder := "{" + p.Name + "}"
		if strings.Contains(path, placeholder) {
			v := paramString(params, p.Name)
			if !pathParamPattern.MatchString(v) {
				return "", nil, E(KindInvalidRequestSpec, "parameter %s has unsafe value for path substitution", p.Name)
			}
			path = strings.ReplaceAll(path, placeholder, v)
			continue
		}
		if ep.Method == "GET" {
			if v := paramString(params, p.Name); v != "" {
				query[p.Name] = v
			}
		}
	}
	if strings.Contains(path, "{") || strings.Contains(path, "}") {
		return "", nil, E(KindInvalidRequestSpec, "path %s has unresolved placeholders", ep.Path)
	}
	return path, query, nil
}
