package connector

// Slack connector: Web API calls against slack.com with a bot OAuth token.
// Message posts are T2 with delete_message as the declared rollback.

const (
	slackAPIBase  = "https://slack.com/api"
	slackVaultKey = "slack.bot_token"

	defaultTimeoutSeconds = 30
)

// Slack produces request specs for the Slack Web API.
type Slack struct {
	base
}

// NewSlack constructs the Slack connector with its built-in catalog.
func NewSlack() *Slack {
	manifest := &Manifest{
		ID:          "slack",
		Name:        "Slack",
		Version:     "1.2.0",
		Author:      "connector-plane",
		Source:      SourceFirstParty,
		Description: "Post and read messages in Slack workspaces via the Web API.",
		TargetDomains: []string{
			"slack.com",
		},
		RequiredCredentials: []CredentialSpec{
			{Name: "Bot OAuth Token", Type: CredentialOAuthToken, VaultKey: slackVaultKey, Required: true, Scopes: []string{"chat:write", "channels:read", "channels:history", "users:read", "reactions:write"}},
		},
		DataReads:     []string{"channel metadata", "channel history", "user profiles"},
		DataWrites:    []string{"channel messages", "message reactions"},
		DoesNotAccess: []string{"files", "workspace admin settings"},
	}

	ops := []Operation{
		{
			ID: "list_channels", Capability: CapabilityRead, Name: "List channels",
			Description: "List public channels in the workspace.",
			DefaultTier: TierInert, Idempotent: true, Reversible: true,
			Parameters: []ParameterSpec{
				{Name: "limit", Type: "int", Description: "Max channels to return", Default: 100},
			},
		},
		{
			ID: "get_channel_history", Capability: CapabilityRead, Name: "Get channel history",
			Description: "Read recent messages from a channel.",
			DefaultTier: TierReversible, Idempotent: true, Reversible: true,
			Parameters: []ParameterSpec{
				{Name: "channel", Type: "str", Required: true},
				{Name: "limit", Type: "int", Default: 50},
			},
		},
		{
			ID: "get_user_info", Capability: CapabilityRead, Name: "Get user info",
			Description: "Read a user's profile.",
			DefaultTier: TierReversible, Idempotent: true, Reversible: true,
			Parameters: []ParameterSpec{
				{Name: "user", Type: "str", Required: true},
			},
		},
		{
			ID: "post_message", Capability: CapabilityWrite, Name: "Post message",
			Description: "Post a message to a channel.",
			DefaultTier: TierControlled, Reversible: true, RollbackOperationID: "delete_message",
			Parameters: []ParameterSpec{
				{Name: "channel", Type: "str", Required: true},
				{Name: "text", Type: "str", Required: true},
				{Name: "thread_ts", Type: "str", Description: "Reply in thread"},
			},
		},
		{
			ID: "add_reaction", Capability: CapabilityWrite, Name: "Add reaction",
			Description: "Add an emoji reaction to a message.",
			DefaultTier: TierControlled, Reversible: true, RollbackOperationID: "remove_reaction",
			Parameters: []ParameterSpec{
				{Name: "channel", Type: "str", Required: true},
				{Name: "timestamp", Type: "str", Required: true},
				{Name: "name", Type: "str", Required: true},
			},
		},
		{
			ID: "remove_reaction", Capability: CapabilityDelete, Name: "Remove reaction",
			Description: "Remove an emoji reaction from a message.",
			DefaultTier: TierControlled, Idempotent: true, Reversible: true, RollbackOperationID: "add_reaction",
			Parameters: []ParameterSpec{
				{Name: "channel", Type: "str", Required: true},
				{Name: "timestamp", Type: "str", Required: true},
				{Name: "name", Type: "str", Required: true},
			},
		},
		{
			ID: "delete_message", Capability: CapabilityDelete, Name: "Delete message",
			Description: "Delete a message permanently.",
			DefaultTier: TierIrreversible,
			Parameters: []ParameterSpec{
				{Name: "channel", Type: "str", Required: true},
				{Name: "ts", Type: "str", Required: true},
			},
		},
	}

	return &Slack{base: newBase(manifest, ops)}
}

// Execute builds the request spec for one Slack operation. No I/O.
func (s *Slack) Execute(operationID string, params map[string]interface{}) (*Result, error) {
	op, err := s.checkOperation(operationID, params)
	if err != nil {
		return nil, err
	}

	r := &Result{
		OperationID:        op.ID,
		ConnectorID:        s.manifest.ID,
		Headers:            map[string]string{},
		TimeoutSeconds:     defaultTimeoutSeconds,
		CredentialVaultKey: slackVaultKey,
		Metadata:           map[string]string{},
	}

	channel := paramString(params, "channel")
	switch op.ID {
	case "list_channels":
		r.Method = "GET"
		r.URL = queryURL(slackAPIBase+"/conversations.list", map[string]string{
			"limit": itoa(paramInt(params, "limit", 100)),
		})
	case "get_channel_history":
		r.Method = "GET"
		r.URL = queryURL(slackAPIBase+"/conversations.history", map[string]string{
			"channel": channel,
			"limit":   itoa(paramInt(params, "limit", 50)),
		})
	case "get_user_info":
		r.Method = "GET"
		r.URL = queryURL(slackAPIBase+"/users.info", map[string]string{
			"user": paramString(params, "user"),
		})
	case "post_message":
		r.Method = "POST"
		r.URL = slackAPIBase + "/chat.postMessage"
		body := map[string]interface{}{
			"channel": channel,
			"text":    paramString(params, "text"),
		}
		if ts := paramString(params, "thread_ts"); ts != "" {
			body["thread_ts"] = ts
		}
		r.Body = JSONBody(body)
		r.Metadata[MetaRateLimitGroup] = "chat:" + channel
	case "add_reaction":
		r.Method = "POST"
		r.URL = slackAPIBase + "/reactions.add"
		r.Body = JSONBody(map[string]interface{}{
			"channel":   channel,
			"timestamp": paramString(params, "timestamp"),
			"name":      paramString(params, "name"),
		})
		r.Metadata[MetaRateLimitGroup] = "chat:" + channel
	case "remove_reaction":
		r.Method = "POST"
		r.URL = slackAPIBase + "/reactions.remove"
		r.Body = JSONBody(map[string]interface{}{
			"channel":   channel,
			"timestamp": paramString(params, "timestamp"),
			"name":      paramString(params, "name"),
		})
	case "delete_message":
		r.Method = "POST"
		r.URL = slackAPIBase + "/chat.delete"
		r.Body = JSONBody(map[string]interface{}{
			"channel": channel,
			"ts":      paramString(params, "ts"),
		})
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}
