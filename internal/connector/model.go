// Package connector defines the declarative connector model: manifests,
// operation catalogs, request specs, and responses. Connectors are pure
// request-spec factories — all network I/O happens downstream in the proxy.
package connector

import (
	"fmt"
	"strings"
)

// ============================================================================
// RISK TIERS
// ============================================================================

// RiskTier is the ordered risk classification for an operation.
// Higher rank means more dangerous.
type RiskTier int

const (
	TierInert        RiskTier = iota // T0: metadata-only, no side effects
	TierReversible                   // T1: side-effect-free or trivially undone
	TierControlled                   // T2: reversible write with declared rollback
	TierIrreversible                 // T3: cannot be undone once executed
)

func (t RiskTier) String() string {
	switch t {
	case TierInert:
		return "T0_INERT"
	case TierReversible:
		return "T1_REVERSIBLE"
	case TierControlled:
		return "T2_CONTROLLED"
	case TierIrreversible:
		return "T3_IRREVERSIBLE"
	default:
		return fmt.Sprintf("T?_UNKNOWN(%d)", int(t))
	}
}

// ParseRiskTier maps a tier name ("T2_CONTROLLED" or "T2") back to its value.
func ParseRiskTier(s string) (RiskTier, error) {
	switch strings.ToUpper(s) {
	case "T0", "T0_INERT":
		return TierInert, nil
	case "T1", "T1_REVERSIBLE":
		return TierReversible, nil
	case "T2", "T2_CONTROLLED":
		return TierControlled, nil
	case "T3", "T3_IRREVERSIBLE":
		return TierIrreversible, nil
	}
	return TierIrreversible, fmt.Errorf("unknown risk tier %q", s)
}

// ============================================================================
// CREDENTIALS
// ============================================================================

// CredentialType categorizes a stored secret and drives auth-header selection
// in the proxy.
type CredentialType string

const (
	CredentialOAuthToken CredentialType = "oauth_token"
	CredentialBearer     CredentialType = "bearer"
	CredentialAPIKey     CredentialType = "api_key"
	CredentialBasicAuth  CredentialType = "basic_auth"
	CredentialBotToken   CredentialType = "bot_token"
	CredentialConfig     CredentialType = "config"
)

// CredentialSpec declares one secret a connector needs. VaultKey uniquely
// identifies the stored secret across the vault.
type CredentialSpec struct {
	Name     string         `json:"name"`
	Type     CredentialType `json:"type"`
	VaultKey string         `json:"vault_key"`
	Required bool           `json:"required"`
	Scopes   []string       `json:"scopes,omitempty"`
}

// ============================================================================
// MANIFEST
// ============================================================================

// Source identifies who authored a connector.
const (
	SourceFirstParty = "first-party"
	SourceCommunity  = "community"
	SourceUser       = "user"
)

// Manifest is the immutable self-description of a connector: identity, the
// exact hosts it may reach, the credentials it needs, and its data boundaries.
// Frozen after construction.
type Manifest struct {
	ID                  string           `json:"id"`
	Name                string           `json:"name"`
	Version             string           `json:"version"`
	Author              string           `json:"author"`
	Source              string           `json:"source"`
	Description         string           `json:"description"`
	TargetDomains       []string         `json:"target_domains"`
	RequiredCredentials []CredentialSpec `json:"required_credentials"`
	DataReads           []string         `json:"data_reads"`
	DataWrites          []string         `json:"data_writes"`
	DoesNotAccess       []string         `json:"does_not_access"`
}

// Validate checks manifest invariants. Target domains are exact host names:
// no wildcards, no schemes, no subdomain matching.
func (m *Manifest) Validate() error {
	if m.ID == "" {
		return E(KindInvalidManifest, "manifest id must be non-empty")
	}
	if len(m.TargetDomains) == 0 {
		return E(KindInvalidManifest, "manifest %s: target_domains must be non-empty", m.ID)
	}
	for _, d := range m.TargetDomains {
		if d == "" || strings.Contains(d, "*") || strings.Contains(d, "/") {
			return E(KindInvalidManifest, "manifest %s: invalid target domain %q", m.ID, d)
		}
	}
	switch m.Source {
	case SourceFirstParty, SourceCommunity, SourceUser:
	default:
		return E(KindInvalidManifest, "manifest %s: unknown source %q", m.ID, m.Source)
	}
	return nil
}

// ============================================================================
// OPERATIONS
// ============================================================================

// Capability classes. Exactly one per operation.
const (
	CapabilityRead   = "connector.read"
	CapabilityWrite  = "connector.write"
	CapabilityDelete = "connector.delete"
)

// ParameterSpec describes a single operation parameter. Type is the string
// encoding of str|int|bool|list[str]|dict.
type ParameterSpec struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Required    bool        `json:"required"`
	Description string      `json:"description,omitempty"`
	Default     interface{} `json:"default,omitempty"`
}

// Operation is a named action a connector can perform, with parameter schema
// and risk metadata. Immutable after registration.
type Operation struct {
	ID                  string          `json:"id"`
	ConnectorID         string          `json:"connector_id"`
	Capability          string          `json:"capability"`
	Name                string          `json:"name"`
	Description         string          `json:"description"`
	DefaultTier         RiskTier        `json:"default_tier"`
	Parameters          []ParameterSpec `json:"parameters"`
	Idempotent          bool            `json:"idempotent"`
	Reversible          bool            `json:"reversible"`
	RollbackOperationID string          `json:"rollback_operation_id,omitempty"`
}

// FullCapabilityID is the dotted identifier used for risk classification and
// trust accounting: "connector.<connector_id>.<operation_id>".
func (o *Operation) FullCapabilityID() string {
	return "connector." + o.ConnectorID + "." + o.ID
}

// Validate checks operation invariants.
func (o *Operation) Validate() error {
	if o.ID == "" || o.ConnectorID == "" {
		return E(KindInvalidOperation, "operation id and connector id must be non-empty")
	}
	switch o.Capability {
	case CapabilityRead, CapabilityWrite, CapabilityDelete:
	default:
		return E(KindInvalidOperation, "operation %s: unknown capability %q", o.ID, o.Capability)
	}
	if o.DefaultTier < TierInert || o.DefaultTier > TierIrreversible {
		return E(KindInvalidOperation, "operation %s: tier out of range", o.ID)
	}
	if o.Reversible && o.Capability == CapabilityWrite && o.RollbackOperationID == "" {
		return E(KindInvalidOperation, "operation %s: reversible write must declare rollback_operation_id", o.ID)
	}
	return nil
}

// ============================================================================
// REQUEST SPEC (ConnectorResult)
// ============================================================================

// BodyKind tags the request body variant. The proxy dispatches on this tag
// for wire encoding.
type BodyKind int

const (
	BodyEmpty    BodyKind = iota // no body (GET/DELETE)
	BodyJSON                     // JSON-encoded object
	BodyForm                     // pre-encoded application/x-www-form-urlencoded string
	BodyProtocol                 // structured payload for the protocol adapter
)

// Body is the tagged request body sum type.
type Body struct {
	Kind     BodyKind
	JSON     map[string]interface{}
	Form     string
	Protocol map[string]interface{}
}

// JSONBody wraps a JSON object body.
func JSONBody(v map[string]interface{}) Body { return Body{Kind: BodyJSON, JSON: v} }

// FormBody wraps a pre-encoded form string body.
func FormBody(s string) Body { return Body{Kind: BodyForm, Form: s} }

// ProtocolBody wraps a structured payload destined for the protocol adapter.
func ProtocolBody(v map[string]interface{}) Body { return Body{Kind: BodyProtocol, Protocol: v} }

// Metadata keys understood by the proxy and governance layers.
const (
	MetaAuthType             = "auth_type"
	MetaRateLimitGroup       = "rate_limit_group"
	MetaOAuthConsumerKey     = "oauth_consumer_key"
	MetaOAuthConsumerSecret  = "oauth_consumer_secret"
	MetaOAuthTokenKey        = "oauth_token_key"
	MetaOAuthTokenSecret     = "oauth_token_secret"
	MetaBasicAuthUsernameKey = "basic_auth_username_key"
	MetaProtocolAdapter      = "protocol_adapter"
	MetaBillable             = "billable"
	MetaRequiresTemplate     = "requires_template_outside_window"
)

// Auth strategies named in request-spec metadata.
const (
	AuthNone              = "none"
	AuthURLToken          = "url_token"
	AuthOAuth1            = "oauth1"
	AuthBasicAuthComposed = "basic_auth_composed"
)

// Result is the pure-data description of one outbound call, produced by a
// connector and consumed by the proxy. Treat as read-only once built.
type Result struct {
	OperationID        string            `json:"operation_id"`
	ConnectorID        string            `json:"connector_id"`
	Method             string            `json:"method"`
	URL                string            `json:"url"`
	Headers            map[string]string `json:"headers"`
	Body               Body              `json:"-"`
	TimeoutSeconds     int               `json:"timeout_seconds"`
	CredentialVaultKey string            `json:"credential_vault_key,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
}

var allowedMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true, "DELETE": true,
}

// Validate checks request-spec invariants: non-empty URL, a known method,
// a positive timeout, and no body on GET/DELETE.
func (r *Result) Validate() error {
	if r.URL == "" {
		return E(KindInvalidRequestSpec, "operation %s: url must be non-empty", r.OperationID)
	}
	if !allowedMethods[r.Method] {
		return E(KindInvalidRequestSpec, "operation %s: unknown method %q", r.OperationID, r.Method)
	}
	if r.TimeoutSeconds <= 0 {
		return E(KindInvalidRequestSpec, "operation %s: timeout_seconds must be positive", r.OperationID)
	}
	if (r.Method == "GET" || r.Method == "DELETE") && r.Body.Kind != BodyEmpty {
		return E(KindInvalidRequestSpec, "operation %s: %s requests must not carry a body", r.OperationID, r.Method)
	}
	if !strings.HasPrefix(r.URL, "https://") && !strings.HasPrefix(r.URL, ProtocolURLPrefix) {
		return E(KindInvalidRequestSpec, "operation %s: url must be https:// or protocol://", r.OperationID)
	}
	return nil
}

// Meta reads a metadata value, tolerating a nil map.
func (r *Result) Meta(key string) string {
	if r.Metadata == nil {
		return ""
	}
	return r.Metadata[key]
}

// ProtocolURLPrefix marks request specs routed to the protocol adapter
// instead of the HTTP transport.
const ProtocolURLPrefix = "protocol://"

// Protocol adapter URLs.
const (
	URLProtocolSMTP = "protocol://smtp"
	URLProtocolIMAP = "protocol://imap"
)

// ============================================================================
// RESPONSE
// ============================================================================

// Response is the uniform outcome of one outbound call. StatusCode 0 means
// the failure happened before any HTTP exchange.
type Response struct {
	OperationID string            `json:"operation_id"`
	ConnectorID string            `json:"connector_id"`
	StatusCode  int               `json:"status_code"`
	Headers     map[string]string `json:"headers,omitempty"`
	Body        interface{}       `json:"body,omitempty"`
	ElapsedMS   int64             `json:"elapsed_ms"`
	Success     bool              `json:"success"`
	Error       string            `json:"error,omitempty"`
	ErrorKind   Kind              `json:"error_kind,omitempty"`
	ReceiptID   string            `json:"receipt_id,omitempty"`
}

// IsError reports whether the call failed either in transport or at the
// HTTP level.
func (r *Response) IsError() bool {
	return !r.Success || r.StatusCode >= 400
}

// ErrorResponse builds a failed Response for the given operation.
func ErrorResponse(connectorID, operationID string, kind Kind, format string, args ...interface{}) *Response {
	return &Response{
		OperationID: operationID,
		ConnectorID: connectorID,
		StatusCode:  0,
		Success:     false,
		Error:       fmt.Sprintf(format, args...),
		ErrorKind:   kind,
	}
}

// ============================================================================
// CONNECTOR STATUS + INTERFACE
// ============================================================================

// Status is the connector lifecycle state. The core never auto-transitions;
// onboarding and control-plane surfaces drive changes via SetStatus.
type Status string

const (
	StatusRegistered Status = "registered"
	StatusConfigured Status = "configured"
	StatusActive     Status = "active"
	StatusSuspended  Status = "suspended"
	StatusError      Status = "error"
)

// Connector is the uniform capability set every concrete connector
// implements. Execute performs no I/O: it is a pure function from
// (operationID, params, manifest state, static configuration) to a Result.
type Connector interface {
	Manifest() *Manifest
	Status() Status
	SetStatus(Status)
	Operations() []Operation
	Operation(id string) (*Operation, bool)
	Execute(operationID string, params map[string]interface{}) (*Result, error)
	// ValidateCredentials reports whether every required credential is
	// present, using the supplied existence check (typically vault.Exists).
	ValidateCredentials(exists func(vaultKey string) bool) bool
}
