package connector

// Email connector: SMTP/IMAP operations expressed in the same request-spec
// language as HTTP. The proxy routes protocol:// URLs to the protocol
// adapter, which owns the mail sessions and their credentials — so these
// specs carry no vault key.

// Email produces protocol request specs consumed by the mail adapter.
type Email struct {
	base
}

// NewEmail constructs the SMTP/IMAP connector with its built-in catalog.
func NewEmail() *Email {
	manifest := &Manifest{
		ID:          "email",
		Name:        "Email (SMTP/IMAP)",
		Version:     "1.0.0",
		Author:      "connector-plane",
		Source:      SourceFirstParty,
		Description: "Send mail over SMTP and manage a mailbox over IMAP through the protocol adapter.",
		TargetDomains: []string{
			"protocol.smtp",
			"protocol.imap",
		},
		RequiredCredentials: []CredentialSpec{
			{Name: "Mail Account", Type: CredentialConfig, VaultKey: "email.account", Required: false},
		},
		DataReads:     []string{"mailbox listings", "message bodies"},
		DataWrites:    []string{"outbound mail", "mailbox flags"},
		DoesNotAccess: []string{"server configuration", "other accounts"},
	}

	ops := []Operation{
		{
			ID: "send_email", Capability: CapabilityWrite, Name: "Send email",
			Description: "Send an email over SMTP. Cannot be recalled once accepted.",
			DefaultTier: TierIrreversible,
			Parameters: []ParameterSpec{
				{Name: "to", Type: "str", Required: true},
				{Name: "subject", Type: "str", Required: true},
				{Name: "body", Type: "str", Required: true},
				{Name: "cc", Type: "str"},
				{Name: "mime_type", Type: "str", Default: "text/plain"},
			},
		},
		{
			ID: "reply_email", Capability: CapabilityWrite, Name: "Reply to email",
			Description: "Reply over SMTP, threading via In-Reply-To/References.",
			DefaultTier: TierIrreversible,
			Parameters: []ParameterSpec{
				{Name: "to", Type: "str", Required: true},
				{Name: "subject", Type: "str", Required: true},
				{Name: "body", Type: "str", Required: true},
				{Name: "headers", Type: "dict", Description: "Headers of the message being replied to"},
				{Name: "mime_type", Type: "str", Default: "text/plain"},
			},
		},
		{
			ID: "list_emails", Capability: CapabilityRead, Name: "List emails",
			Description: "List message IDs in a folder.",
			DefaultTier: TierReversible, Idempotent: true, Reversible: true,
			Parameters: []ParameterSpec{
				{Name: "folder", Type: "str", Default: "INBOX"},
				{Name: "max_results", Type: "int", Default: 20},
			},
		},
		{
			ID: "fetch_email", Capability: CapabilityRead, Name: "Fetch email",
			Description: "Fetch a raw message by ID.",
			DefaultTier: TierReversible, Idempotent: true, Reversible: true,
			Parameters: []ParameterSpec{
				{Name: "message_id", Type: "int", Required: true},
			},
		},
		{
			ID: "search_emails", Capability: CapabilityRead, Name: "Search emails",
			Description: "Search messages by subject.",
			DefaultTier: TierReversible, Idempotent: true, Reversible: true,
			Parameters: []ParameterSpec{
				{Name: "query", Type: "str", Required: true},
			},
		},
		{
			ID: "move_email", Capability: CapabilityWrite, Name: "Move email",
			Description: "Copy a message to another folder, then delete the original. A failure after COPY can leave the message in both folders.",
			DefaultTier: TierControlled,
			Parameters: []ParameterSpec{
				{Name: "message_id", Type: "int", Required: true},
				{Name: "destination", Type: "str", Required: true},
			},
		},
		{
			ID: "delete_email", Capability: CapabilityDelete, Name: "Delete email",
			Description: "Flag a message deleted and expunge.",
			DefaultTier: TierIrreversible,
			Parameters: []ParameterSpec{
				{Name: "message_id", Type: "int", Required: true},
			},
		},
	}

	return &Email{base: newBase(manifest, ops)}
}

// Execute builds the protocol request spec for one mail operation. No I/O.
func (e *Email) Execute(operationID string, params map[string]interface{}) (*Result, error) {
	op, err := e.checkOperation(operationID, params)
	if err != nil {
		return nil, err
	}

	r := &Result{
		OperationID:    op.ID,
		ConnectorID:    e.manifest.ID,
		Method:         "POST",
		Headers:        map[string]string{},
		TimeoutSeconds: defaultTimeoutSeconds,
		Metadata: map[string]string{
			MetaProtocolAdapter: "true",
		},
	}

	switch op.ID {
	case "send_email":
		r.URL = URLProtocolSMTP
		r.Body = ProtocolBody(map[string]interface{}{
			"protocol":  "smtp",
			"action":    "send",
			"to":        paramString(params, "to"),
			"subject":   paramString(params, "subject"),
			"body":      paramString(params, "body"),
			"cc":        paramString(params, "cc"),
			"mime_type": paramStringDefault(params, "mime_type", "text/plain"),
		})
	case "reply_email":
		payload := map[string]interface{}{
			"protocol":  "smtp",
			"action":    "reply",
			"to":        paramString(params, "to"),
			"subject":   paramString(params, "subject"),
			"body":      paramString(params, "body"),
			"mime_type": paramStringDefault(params, "mime_type", "text/plain"),
		}
		if h, ok := params["headers"].(map[string]interface{}); ok {
			payload["headers"] = h
		}
		r.URL = URLProtocolSMTP
		r.Body = ProtocolBody(payload)
	case "list_emails":
		r.URL = URLProtocolIMAP
		r.Body = ProtocolBody(map[string]interface{}{
			"protocol":    "imap",
			"action":      "list",
			"folder":      paramStringDefault(params, "folder", "INBOX"),
			"max_results": paramInt(params, "max_results", 20),
		})
	case "fetch_email":
		r.URL = URLProtocolIMAP
		r.Body = ProtocolBody(map[string]interface{}{
			"protocol":   "imap",
			"action":     "fetch",
			"message_id": paramInt(params, "message_id", 0),
		})
	case "search_emails":
		r.URL = URLProtocolIMAP
		r.Body = ProtocolBody(map[string]interface{}{
			"protocol": "imap",
			"action":   "search",
			"query":    paramString(params, "query"),
		})
	case "move_email":
		r.URL = URLProtocolIMAP
		r.Body = ProtocolBody(map[string]interface{}{
			"protocol":    "imap",
			"action":      "move",
			"message_id":  paramInt(params, "message_id", 0),
			"destination": paramString(params, "destination"),
		})
	case "delete_email":
		r.URL = URLProtocolIMAP
		r.Body = ProtocolBody(map[string]interface{}{
			"protocol":   "imap",
			"action":     "delete",
			"message_id": paramInt(params, "message_id", 0),
		})
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}
