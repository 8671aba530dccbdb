package connector

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Gmail connector: Gmail REST API with an OAuth token. Sending builds an
// RFC 2822 message and submits it as base64url in the "raw" field.
//
// Note: list_messages is deliberately T1, not T0 — the listing exposes
// message snippets, which are sensitive content.

const (
	gmailAPIBase  = "https://gmail.googleapis.com/gmail/v1"
	gmailVaultKey = "google.gmail_token"
)

// Gmail produces request specs for the Gmail API.
type Gmail struct {
	base
}

// NewGmail constructs the Gmail connector with its built-in catalog.
func NewGmail() *Gmail {
	manifest := &Manifest{
		ID:          "gmail",
		Name:        "Gmail",
		Version:     "1.0.1",
		Author:      "connector-plane",
		Source:      SourceFirstParty,
		Description: "Read, draft, and send mail via the Gmail API.",
		TargetDomains: []string{
			"gmail.googleapis.com",
		},
		RequiredCredentials: []CredentialSpec{
			{Name: "Gmail OAuth Token", Type: CredentialOAuthToken, VaultKey: gmailVaultKey, Required: true, Scopes: []string{"https://www.googleapis.com/auth/gmail.modify"}},
		},
		DataReads:     []string{"message listings and bodies", "attachments"},
		DataWrites:    []string{"outbound mail", "drafts", "message labels"},
		DoesNotAccess: []string{"contacts", "calendar", "account settings"},
	}

	ops := []Operation{
		{
			ID: "list_messages", Capability: CapabilityRead, Name: "List messages",
			Description: "List messages matching a query. Snippets expose message content.",
			DefaultTier: TierReversible, Idempotent: true, Reversible: true,
			Parameters: []ParameterSpec{
				{Name: "query", Type: "str", Description: "Gmail search query"},
				{Name: "max_results", Type: "int", Default: 25},
			},
		},
		{
			ID: "get_message", Capability: CapabilityRead, Name: "Get message",
			Description: "Read a full message.",
			DefaultTier: TierReversible, Idempotent: true, Reversible: true,
			Parameters: []ParameterSpec{
				{Name: "message_id", Type: "str", Required: true},
			},
		},
		{
			ID: "get_attachment", Capability: CapabilityRead, Name: "Get attachment",
			Description: "Read an attachment body.",
			DefaultTier: TierReversible, Idempotent: true, Reversible: true,
			Parameters: []ParameterSpec{
				{Name: "message_id", Type: "str", Required: true},
				{Name: "attachment_id", Type: "str", Required: true},
			},
		},
		{
			ID: "send_message", Capability: CapabilityWrite, Name: "Send message",
			Description: "Send an email. Cannot be recalled once accepted.",
			DefaultTier: TierIrreversible,
			Parameters: []ParameterSpec{
				{Name: "to", Type: "str", Required: true},
				{Name: "subject", Type: "str", Required: true},
				{Name: "body", Type: "str", Required: true},
				{Name: "cc", Type: "str"},
			},
		},
		{
			ID: "create_draft", Capability: CapabilityWrite, Name: "Create draft",
			Description: "Create a draft without sending it.",
			DefaultTier: TierControlled, Reversible: true, RollbackOperationID: "delete_draft",
			Parameters: []ParameterSpec{
				{Name: "to", Type: "str", Required: true},
				{Name: "subject", Type: "str", Required: true},
				{Name: "body", Type: "str", Required: true},
			},
		},
		{
			ID: "delete_draft", Capability: CapabilityDelete, Name: "Delete draft",
			Description: "Delete a draft.",
			DefaultTier: TierControlled, Idempotent: true,
			Parameters: []ParameterSpec{
				{Name: "draft_id", Type: "str", Required: true},
			},
		},
		{
			ID: "move_to_folder", Capability: CapabilityWrite, Name: "Add label",
			Description: "Add a label to a message. Prior labels are kept: this adds, it does not move.",
			DefaultTier: TierControlled,
			Parameters: []ParameterSpec{
				{Name: "message_id", Type: "str", Required: true},
				{Name: "label_id", Type: "str", Required: true},
			},
		},
	}

	return &Gmail{base: newBase(manifest, ops)}
}

// Execute builds the request spec for one Gmail operation. No I/O.
func (g *Gmail) Execute(operationID string, params map[string]interface{}) (*Result, error) {
	op, err := g.checkOperation(operationID, params)
	if err != nil {
		return nil, err
	}

	r := &Result{
		OperationID:        op.ID,
		ConnectorID:        g.manifest.ID,
		Headers:            map[string]string{},
		TimeoutSeconds:     defaultTimeoutSeconds,
		CredentialVaultKey: gmailVaultKey,
		Metadata:           map[string]string{},
	}

	switch op.ID {
	case "list_messages":
		r.Method = "GET"
		r.URL = queryURL(gmailAPIBase+"/users/me/messages", map[string]string{
			"q":          paramString(params, "query"),
			"maxResults": itoa(paramInt(params, "max_results", 25)),
		})
	case "get_message":
		r.Method = "GET"
		r.URL = gmailAPIBase + "/users/me/messages/" + paramString(params, "message_id")
	case "get_attachment":
		r.Method = "GET"
		r.URL = gmailAPIBase + "/users/me/messages/" + paramString(params, "message_id") +
			"/attachments/" + paramString(params, "attachment_id")
	case "send_message":
		r.Method = "POST"
		r.URL = gmailAPIBase + "/users/me/messages"
		r.Body = JSONBody(map[string]interface{}{
			"raw": encodeRFC2822(
				paramString(params, "to"),
				paramString(params, "cc"),
				paramString(params, "subject"),
				paramString(params, "body"),
			),
		})
	case "create_draft":
		r.Method = "POST"
		r.URL = gmailAPIBase + "/users/me/drafts"
		r.Body = JSONBody(map[string]interface{}{
			"message": map[string]interface{}{
				"raw": encodeRFC2822(
					paramString(params, "to"),
					"",
					paramString(params, "subject"),
					paramString(params, "body"),
				),
			},
		})
	case "delete_draft":
		r.Method = "DELETE"
		r.URL = gmailAPIBase + "/users/me/drafts/" + paramString(params, "draft_id")
	case "move_to_folder":
		r.Method = "POST"
		r.URL = gmailAPIBase + "/users/me/messages/" + paramString(params, "message_id") + "/modify"
		r.Body = JSONBody(map[string]interface{}{
			"addLabelIds": []string{paramString(params, "label_id")},
		})
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// encodeRFC2822 assembles a minimal text/plain message and encodes it
// base64url for the Gmail "raw" field.
func encodeRFC2822(to, cc, subject, body string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "To: %s\r\n", to)
	if cc != "" {
		fmt.Fprintf(&b, "Cc: %s\r\n", cc)
	}
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return base64.URLEncoding.EncodeToString([]byte(b.String()))
}
