package connector

// Twilio connector: REST calls against api.twilio.com. Twilio authenticates
// with HTTP Basic where the username is the Account SID and the password is
// the auth token; both live in the vault and are composed by the proxy.
// Message sends are billed per segment, hence the billable marker.

const (
	twilioAPIBase       = "https://api.twilio.com/2010-04-01"
	twilioAuthTokenKey  = "twilio.auth_token"
	twilioAccountSIDKey = "twilio.account_sid"
)

// Twilio produces request specs for the Twilio messaging API.
type Twilio struct {
	base
	accountSID string
}

// NewTwilio constructs the Twilio connector. accountSID is the account
// whose resources the connector addresses; it appears in URL paths only,
// never as a secret.
func NewTwilio(accountSID string) *Twilio {
	manifest := &Manifest{
		ID:          "twilio",
		Name:        "Twilio",
		Version:     "1.0.0",
		Author:      "connector-plane",
		Source:      SourceFirstParty,
		Description: "Send SMS and inspect message logs via the Twilio REST API.",
		TargetDomains: []string{
			"api.twilio.com",
		},
		RequiredCredentials: []CredentialSpec{
			{Name: "Account SID", Type: CredentialConfig, VaultKey: twilioAccountSIDKey, Required: true},
			{Name: "Auth Token", Type: CredentialAPIKey, VaultKey: twilioAuthTokenKey, Required: true},
		},
		DataReads:     []string{"message logs", "account metadata"},
		DataWrites:    []string{"outbound SMS"},
		DoesNotAccess: []string{"voice calls", "billing details"},
	}

	ops := []Operation{
		{
			ID: "send_sms", Capability: CapabilityWrite, Name: "Send SMS",
			Description: "Send an SMS from a specific number. Billed per segment; not recallable.",
			DefaultTier: TierIrreversible,
			Parameters: []ParameterSpec{
				{Name: "to", Type: "str", Required: true},
				{Name: "from", Type: "str", Required: true},
				{Name: "body", Type: "str", Required: true},
			},
		},
		{
			ID: "send_sms_via_service", Capability: CapabilityWrite, Name: "Send SMS via messaging service",
			Description: "Send an SMS through a messaging service, which picks the sender number.",
			DefaultTier: TierIrreversible,
			Parameters: []ParameterSpec{
				{Name: "to", Type: "str", Required: true},
				{Name: "messaging_service_sid", Type: "str", Required: true},
				{Name: "body", Type: "str", Required: true},
			},
		},
		{
			ID: "get_message", Capability: CapabilityRead, Name: "Get message",
			Description: "Read a message record by SID.",
			DefaultTier: TierReversible, Idempotent: true, Reversible: true,
			Parameters: []ParameterSpec{
				{Name: "message_sid", Type: "str", Required: true},
			},
		},
		{
			ID: "list_messages", Capability: CapabilityRead, Name: "List messages",
			Description: "List recent message records.",
			DefaultTier: TierReversible, Idempotent: true, Reversible: true,
			Parameters: []ParameterSpec{
				{Name: "page_size", Type: "int", Default: 20},
			},
		},
		{
			ID: "get_account", Capability: CapabilityRead, Name: "Get account",
			Description: "Read account status and friendly name.",
			DefaultTier: TierInert, Idempotent: true, Reversible: true,
		},
		{
			ID: "delete_message", Capability: CapabilityDelete, Name: "Delete message record",
			Description: "Delete a message record from the log. The SMS itself was already delivered.",
			DefaultTier: TierIrreversible,
			Parameters: []ParameterSpec{
				{Name: "message_sid", Type: "str", Required: true},
			},
		},
	}

	return &Twilio{base: newBase(manifest, ops), accountSID: accountSID}
}

// Execute builds the request spec for one Twilio operation. No I/O.
func (t *Twilio) Execute(operationID string, params map[string]interface{}) (*Result, error) {
	op, err := t.checkOperation(operationID, params)
	if err != nil {
		return nil, err
	}

	accountBase := twilioAPIBase + "/Accounts/" + t.accountSID
	messagesURL := accountBase + "/Messages.json"

	r := &Result{
		OperationID:        op.ID,
		ConnectorID:        t.manifest.ID,
		Headers:            map[string]string{},
		TimeoutSeconds:     defaultTimeoutSeconds,
		CredentialVaultKey: twilioAuthTokenKey,
		Metadata: map[string]string{
			MetaAuthType:             AuthBasicAuthComposed,
			MetaBasicAuthUsernameKey: twilioAccountSIDKey,
		},
	}

	switch op.ID {
	case "send_sms":
		r.Method = "POST"
		r.URL = messagesURL
		r.Headers["Content-Type"] = "application/x-www-form-urlencoded"
		r.Body = FormBody(formEncode(map[string]string{
			"To":   paramString(params, "to"),
			"From": paramString(params, "from"),
			"Body": paramString(params, "body"),
		}))
		r.Metadata[MetaBillable] = "true"
	case "send_sms_via_service":
		r.Method = "POST"
		r.URL = messagesURL
		r.Headers["Content-Type"] = "application/x-www-form-urlencoded"
		r.Body = FormBody(formEncode(map[string]string{
			"To":                  paramString(params, "to"),
			"MessagingServiceSid": paramString(params, "messaging_service_sid"),
			"Body":                paramString(params, "body"),
		}))
		r.Metadata[MetaBillable] = "true"
	case "get_message":
		r.Method = "GET"
		r.URL = accountBase + "/Messages/" + paramString(params, "message_sid") + ".json"
	case "list_messages":
		r.Method = "GET"
		r.URL = queryURL(messagesURL, map[string]string{
			"PageSize": itoa(paramInt(params, "page_size", 20)),
		})
	case "get_account":
		r.Method = "GET"
		r.URL = accountBase + ".json"
	case "delete_message":
		r.Method = "DELETE"
		r.URL = accountBase + "/Messages/" + paramString(params, "message_sid") + ".json"
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}
