package connector

// Telegram connector: Bot API calls where the credential rides in the URL
// path, not a header. Specs carry a literal {token} placeholder that the
// proxy substitutes from the vault just before dispatch.
//
// Telegram messages can be deleted for everyone within 48 hours, which is
// why send_message sits at T1 instead of the usual send tier.

const (
	telegramAPIBase  = "https://api.telegram.org/bot{token}"
	telegramVaultKey = "telegram.bot_token"
)

// Telegram produces request specs for the Telegram Bot API.
type Telegram struct {
	base
}

// NewTelegram constructs the Telegram connector with its built-in catalog.
func NewTelegram() *Telegram {
	manifest := &Manifest{
		ID:          "telegram",
		Name:        "Telegram",
		Version:     "1.1.0",
		Author:      "connector-plane",
		Source:      SourceFirstParty,
		Description: "Send and manage Telegram messages through the Bot API.",
		TargetDomains: []string{
			"api.telegram.org",
		},
		RequiredCredentials: []CredentialSpec{
			{Name: "Bot Token", Type: CredentialBotToken, VaultKey: telegramVaultKey, Required: true},
		},
		DataReads:     []string{"chat metadata", "bot updates"},
		DataWrites:    []string{"outbound messages", "message edits"},
		DoesNotAccess: []string{"other bots", "user contact lists"},
	}

	ops := []Operation{
		{
			ID: "get_me", Capability: CapabilityRead, Name: "Get bot identity",
			Description: "Read the bot's own account info.",
			DefaultTier: TierInert, Idempotent: true, Reversible: true,
		},
		{
			ID: "get_updates", Capability: CapabilityRead, Name: "Get updates",
			Description: "Poll pending updates for the bot.",
			DefaultTier: TierReversible, Idempotent: true, Reversible: true,
			Parameters: []ParameterSpec{
				{Name: "offset", Type: "int"},
				{Name: "limit", Type: "int", Default: 100},
			},
		},
		{
			ID: "get_chat", Capability: CapabilityRead, Name: "Get chat",
			Description: "Read metadata about a chat.",
			DefaultTier: TierReversible, Idempotent: true, Reversible: true,
			Parameters: []ParameterSpec{
				{Name: "chat_id", Type: "str", Required: true},
			},
		},
		{
			ID: "get_chat_member_count", Capability: CapabilityRead, Name: "Get chat member count",
			Description: "Count members of a chat.",
			DefaultTier: TierInert, Idempotent: true, Reversible: true,
			Parameters: []ParameterSpec{
				{Name: "chat_id", Type: "str", Required: true},
			},
		},
		{
			ID: "send_message", Capability: CapabilityWrite, Name: "Send message",
			Description: "Send a text message. Deletable for everyone within 48 hours.",
			DefaultTier: TierReversible, Reversible: true, RollbackOperationID: "delete_message",
			Parameters: []ParameterSpec{
				{Name: "chat_id", Type: "str", Required: true},
				{Name: "text", Type: "str", Required: true},
				{Name: "parse_mode", Type: "str"},
			},
		},
		{
			ID: "edit_message", Capability: CapabilityWrite, Name: "Edit message",
			Description: "Edit a sent message's text. The original text is not recoverable.",
			DefaultTier: TierControlled, Reversible: true, RollbackOperationID: "delete_message",
			Parameters: []ParameterSpec{
				{Name: "chat_id", Type: "str", Required: true},
				{Name: "message_id", Type: "int", Required: true},
				{Name: "text", Type: "str", Required: true},
			},
		},
		{
			ID: "send_photo", Capability: CapabilityWrite, Name: "Send photo",
			Description: "Send a photo by URL or file ID.",
			DefaultTier: TierControlled, Reversible: true, RollbackOperationID: "delete_message",
			Parameters: []ParameterSpec{
				{Name: "chat_id", Type: "str", Required: true},
				{Name: "photo", Type: "str", Required: true, Description: "HTTP URL or Telegram file_id"},
				{Name: "caption", Type: "str"},
			},
		},
		{
			ID: "delete_message", Capability: CapabilityDelete, Name: "Delete message",
			Description: "Delete a message for all chat members.",
			DefaultTier: TierIrreversible,
			Parameters: []ParameterSpec{
				{Name: "chat_id", Type: "str", Required: true},
				{Name: "message_id", Type: "int", Required: true},
			},
		},
	}

	return &Telegram{base: newBase(manifest, ops)}
}

// Execute builds the request spec for one Telegram operation. No I/O.
func (t *Telegram) Execute(operationID string, params map[string]interface{}) (*Result, error) {
	op, err := t.checkOperation(operationID, params)
	if err != nil {
		return nil, err
	}

	chatID := paramString(params, "chat_id")

	r := &Result{
		OperationID:        op.ID,
		ConnectorID:        t.manifest.ID,
		Headers:            map[string]string{},
		TimeoutSeconds:     defaultTimeoutSeconds,
		CredentialVaultKey: telegramVaultKey,
		Metadata: map[string]string{
			MetaAuthType: AuthURLToken,
		},
	}
	if chatID != "" {
		r.Metadata[MetaRateLimitGroup] = "chat:" + chatID
	}

	switch op.ID {
	case "get_me":
		r.Method = "GET"
		r.URL = telegramAPIBase + "/getMe"
	case "get_updates":
		q := map[string]string{
			"limit": itoa(paramInt(params, "limit", 100)),
		}
		if off := paramInt(params, "offset", 0); off != 0 {
			q["offset"] = itoa(off)
		}
		r.Method = "GET"
		r.URL = queryURL(telegramAPIBase+"/getUpdates", q)
	case "get_chat":
		r.Method = "GET"
		r.URL = queryURL(telegramAPIBase+"/getChat", map[string]string{"chat_id": chatID})
	case "get_chat_member_count":
		r.Method = "GET"
		r.URL = queryURL(telegramAPIBase+"/getChatMemberCount", map[string]string{"chat_id": chatID})
	case "send_message":
		body := map[string]interface{}{
			"chat_id": chatID,
			"text":    paramString(params, "text"),
		}
		if pm := paramString(params, "parse_mode"); pm != "" {
			body["parse_mode"] = pm
		}
		r.Method = "POST"
		r.URL = telegramAPIBase + "/sendMessage"
		r.Body = JSONBody(body)
	case "edit_message":
		r.Method = "POST"
		r.URL = telegramAPIBase + "/editMessageText"
		r.Body = JSONBody(map[string]interface{}{
			"chat_id":    chatID,
			"message_id": paramInt(params, "message_id", 0),
			"text":       paramString(params, "text"),
		})
	case "send_photo":
		body := map[string]interface{}{
			"chat_id": chatID,
			"photo":   paramString(params, "photo"),
		}
		if c := paramString(params, "caption"); c != "" {
			body["caption"] = c
		}
		r.Method = "POST"
		r.URL = telegramAPIBase + "/sendPhoto"
		r.Body = JSONBody(body)
	case "delete_message":
		r.Method = "POST"
		r.URL = telegramAPIBase + "/deleteMessage"
		r.Body = JSONBody(map[string]interface{}{
			"chat_id":    chatID,
			"message_id": paramInt(params, "message_id", 0),
		})
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}
