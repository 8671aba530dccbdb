package connector

// Outlook connector: Microsoft Graph mail endpoints with an OAuth token.

const outlookVaultKey = "outlook.access_token"

// Outlook produces request specs for Outlook mail via Microsoft Graph.
type Outlook struct {
	base
}

// NewOutlook constructs the Outlook connector with its built-in catalog.
func NewOutlook() *Outlook {
	manifest := &Manifest{
		ID:          "outlook",
		Name:        "Outlook",
		Version:     "1.0.0",
		Author:      "connector-plane",
		Source:      SourceFirstParty,
		Description: "Read and send Outlook mail via Microsoft Graph.",
		TargetDomains: []string{
			"graph.microsoft.com",
		},
		RequiredCredentials: []CredentialSpec{
			{Name: "Graph Access Token", Type: CredentialOAuthToken, VaultKey: outlookVaultKey, Required: true, Scopes: []string{"Mail.ReadWrite", "Mail.Send"}},
		},
		DataReads:     []string{"message listings", "message bodies"},
		DataWrites:    []string{"outbound mail", "drafts", "mailbox folders"},
		DoesNotAccess: []string{"calendar", "contacts", "OneDrive"},
	}

	ops := []Operation{
		{
			ID: "list_messages", Capability: CapabilityRead, Name: "List messages",
			Description: "List message headers in the mailbox.",
			DefaultTier: TierInert, Idempotent: true, Reversible: true,
			Parameters: []ParameterSpec{
				{Name: "top", Type: "int", Default: 25},
			},
		},
		{
			ID: "get_message", Capability: CapabilityRead, Name: "Get message",
			Description: "Read a full message body.",
			DefaultTier: TierReversible, Idempotent: true, Reversible: true,
			Parameters: []ParameterSpec{
				{Name: "message_id", Type: "str", Required: true},
			},
		},
		{
			ID: "send_mail", Capability: CapabilityWrite, Name: "Send mail",
			Description: "Send an email. Cannot be recalled once accepted.",
			DefaultTier: TierIrreversible,
			Parameters: []ParameterSpec{
				{Name: "to", Type: "str", Required: true},
				{Name: "subject", Type: "str", Required: true},
				{Name: "body", Type: "str", Required: true},
			},
		},
		{
			ID: "create_draft", Capability: CapabilityWrite, Name: "Create draft",
			Description: "Create a draft message without sending.",
			DefaultTier: TierControlled, Reversible: true, RollbackOperationID: "delete_message",
			Parameters: []ParameterSpec{
				{Name: "to", Type: "str", Required: true},
				{Name: "subject", Type: "str", Required: true},
				{Name: "body", Type: "str", Required: true},
			},
		},
		{
			ID: "reply", Capability: CapabilityWrite, Name: "Reply",
			Description: "Send a reply to a message. Sends immediately.",
			DefaultTier: TierIrreversible,
			Parameters: []ParameterSpec{
				{Name: "message_id", Type: "str", Required: true},
				{Name: "comment", Type: "str", Required: true},
			},
		},
		{
			ID: "move_message", Capability: CapabilityWrite, Name: "Move message",
			Description: "Move a message to another folder.",
			DefaultTier: TierControlled,
			Parameters: []ParameterSpec{
				{Name: "message_id", Type: "str", Required: true},
				{Name: "destination_id", Type: "str", Required: true},
			},
		},
		{
			ID: "delete_message", Capability: CapabilityDelete, Name: "Delete message",
			Description: "Delete a message.",
			DefaultTier: TierIrreversible,
			Parameters: []ParameterSpec{
				{Name: "message_id", Type: "str", Required: true},
			},
		},
	}

	return &Outlook{base: newBase(manifest, ops)}
}

// Execute builds the request spec for one Outlook operation. No I/O.
func (o *Outlook) Execute(operationID string, params map[string]interface{}) (*Result, error) {
	op, err := o.checkOperation(operationID, params)
	if err != nil {
		return nil, err
	}

	messageID := paramString(params, "message_id")

	r := &Result{
		OperationID:        op.ID,
		ConnectorID:        o.manifest.ID,
		Headers:            map[string]string{},
		TimeoutSeconds:     defaultTimeoutSeconds,
		CredentialVaultKey: outlookVaultKey,
		Metadata:           map[string]string{},
	}

	draftBody := func() map[string]interface{} {
		return map[string]interface{}{
			"subject": paramString(params, "subject"),
			"body": map[string]interface{}{
				"contentType": "Text",
				"content":     paramString(params, "body"),
			},
			"toRecipients": []interface{}{
				map[string]interface{}{
					"emailAddress": map[string]interface{}{"address": paramString(params, "to")},
				},
			},
		}
	}

	switch op.ID {
	case "list_messages":
		r.Method = "GET"
		r.URL = queryURL(graphAPIBase+"/me/messages", map[string]string{
			"$top": itoa(paramInt(params, "top", 25)),
		})
	case "get_message":
		r.Method = "GET"
		r.URL = graphAPIBase + "/me/messages/" + messageID
	case "send_mail":
		r.Method = "POST"
		r.URL = graphAPIBase + "/me/sendMail"
		r.Body = JSONBody(map[string]interface{}{
			"message":         draftBody(),
			"saveToSentItems": true,
		})
	case "create_draft":
		r.Method = "POST"
		r.URL = graphAPIBase + "/me/messages"
		r.Body = JSONBody(draftBody())
	case "reply":
		r.Method = "POST"
		r.URL = graphAPIBase + "/me/messages/" + messageID + "/reply"
		r.Body = JSONBody(map[string]interface{}{
			"comment": paramString(params, "comment"),
		})
	case "move_message":
		r.Method = "POST"
		r.URL = graphAPIBase + "/me/messages/" + messageID + "/move"
		r.Body = JSONBody(map[string]interface{}{
			"destinationId": paramString(params, "destination_id"),
		})
	case "delete_message":
		r.Method = "DELETE"
		r.URL = graphAPIBase + "/me/messages/" + messageID
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}
