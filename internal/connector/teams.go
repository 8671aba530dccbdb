package connector

// Microsoft Teams connector: Microsoft Graph calls with a delegated or
// application OAuth token.

const (
	graphAPIBase  = "https://graph.microsoft.com/v1.0"
	teamsVaultKey = "teams.access_token"
)

// Teams produces request specs for Microsoft Teams via the Graph API.
type Teams struct {
	base
}

// NewTeams constructs the Teams connector with its built-in catalog.
func NewTeams() *Teams {
	manifest := &Manifest{
		ID:          "teams",
		Name:        "Microsoft Teams",
		Version:     "1.0.2",
		Author:      "connector-plane",
		Source:      SourceFirstParty,
		Description: "Send and manage Teams messages and channels via Microsoft Graph.",
		TargetDomains: []string{
			"graph.microsoft.com",
		},
		RequiredCredentials: []CredentialSpec{
			{Name: "Graph Access Token", Type: CredentialOAuthToken, VaultKey: teamsVaultKey, Required: true, Scopes: []string{"ChannelMessage.Send", "Channel.ReadBasic.All", "Chat.ReadWrite"}},
		},
		DataReads:     []string{"team and channel metadata", "channel messages", "chat messages"},
		DataWrites:    []string{"channel messages", "chat messages", "channels"},
		DoesNotAccess: []string{"calendar", "files", "directory"},
	}

	ops := []Operation{
		{
			ID: "list_teams", Capability: CapabilityRead, Name: "List teams",
			Description: "List teams the signed-in account belongs to.",
			DefaultTier: TierInert, Idempotent: true, Reversible: true,
		},
		{
			ID: "list_channels", Capability: CapabilityRead, Name: "List channels",
			Description: "List channels in a team.",
			DefaultTier: TierInert, Idempotent: true, Reversible: true,
			Parameters: []ParameterSpec{
				{Name: "team_id", Type: "str", Required: true},
			},
		},
		{
			ID: "get_channel_messages", Capability: CapabilityRead, Name: "Get channel messages",
			Description: "Read recent messages from a channel.",
			DefaultTier: TierReversible, Idempotent: true, Reversible: true,
			Parameters: []ParameterSpec{
				{Name: "team_id", Type: "str", Required: true},
				{Name: "channel_id", Type: "str", Required: true},
			},
		},
		{
			ID: "get_message", Capability: CapabilityRead, Name: "Get message",
			Description: "Read a single channel message.",
			DefaultTier: TierReversible, Idempotent: true, Reversible: true,
			Parameters: []ParameterSpec{
				{Name: "team_id", Type: "str", Required: true},
				{Name: "channel_id", Type: "str", Required: true},
				{Name: "message_id", Type: "str", Required: true},
			},
		},
		{
			ID: "send_channel_message", Capability: CapabilityWrite, Name: "Send channel message",
			Description: "Post a message to a Teams channel.",
			DefaultTier: TierControlled, Reversible: true, RollbackOperationID: "soft_delete_message",
			Parameters: []ParameterSpec{
				{Name: "team_id", Type: "str", Required: true},
				{Name: "channel_id", Type: "str", Required: true},
				{Name: "content", Type: "str", Required: true},
			},
		},
		{
			ID: "reply_to_message", Capability: CapabilityWrite, Name: "Reply to message",
			Description: "Reply to a channel message.",
			DefaultTier: TierControlled, Reversible: true, RollbackOperationID: "soft_delete_message",
			Parameters: []ParameterSpec{
				{Name: "team_id", Type: "str", Required: true},
				{Name: "channel_id", Type: "str", Required: true},
				{Name: "message_id", Type: "str", Required: true},
				{Name: "content", Type: "str", Required: true},
			},
		},
		{
			ID: "send_chat_message", Capability: CapabilityWrite, Name: "Send chat message",
			Description: "Send a message in a one-on-one or group chat.",
			DefaultTier: TierControlled, Reversible: true, RollbackOperationID: "soft_delete_message",
			Parameters: []ParameterSpec{
				{Name: "chat_id", Type: "str", Required: true},
				{Name: "content", Type: "str", Required: true},
			},
		},
		{
			ID: "create_channel", Capability: CapabilityWrite, Name: "Create channel",
			Description: "Create a standard channel in a team.",
			DefaultTier: TierControlled, Reversible: true, RollbackOperationID: "delete_channel",
			Parameters: []ParameterSpec{
				{Name: "team_id", Type: "str", Required: true},
				{Name: "display_name", Type: "str", Required: true},
				{Name: "description", Type: "str"},
			},
		},
		{
			ID: "soft_delete_message", Capability: CapabilityDelete, Name: "Soft-delete message",
			Description: "Soft-delete a channel message (restorable via undoSoftDelete).",
			DefaultTier: TierControlled, Idempotent: true, Reversible: true,
			Parameters: []ParameterSpec{
				{Name: "team_id", Type: "str", Required: true},
				{Name: "channel_id", Type: "str", Required: true},
				{Name: "message_id", Type: "str", Required: true},
			},
		},
		{
			ID: "delete_channel", Capability: CapabilityDelete, Name: "Delete channel",
			Description: "Delete a channel and its message history.",
			DefaultTier: TierIrreversible,
			Parameters: []ParameterSpec{
				{Name: "team_id", Type: "str", Required: true},
				{Name: "channel_id", Type: "str", Required: true},
			},
		},
	}

	return &Teams{base: newBase(manifest, ops)}
}

// Execute builds the request spec for one Teams operation. No I/O.
func (t *Teams) Execute(operationID string, params map[string]interface{}) (*Result, error) {
	op, err := t.checkOperation(operationID, params)
	if err != nil {
		return nil, err
	}

	teamID := paramString(params, "team_id")
	channelID := paramString(params, "channel_id")
	messageID := paramString(params, "message_id")
	channelMessages := graphAPIBase + "/teams/" + teamID + "/channels/" + channelID + "/messages"

	r := &Result{
		OperationID:        op.ID,
		ConnectorID:        t.manifest.ID,
		Headers:            map[string]string{},
		TimeoutSeconds:     defaultTimeoutSeconds,
		CredentialVaultKey: teamsVaultKey,
		Metadata:           map[string]string{},
	}

	messageBody := func() map[string]interface{} {
		return map[string]interface{}{
			"body": map[string]interface{}{
				"contentType": "text",
				"content":     paramString(params, "content"),
			},
		}
	}

	switch op.ID {
	case "list_teams":
		r.Method = "GET"
		r.URL = graphAPIBase + "/me/joinedTeams"
	case "list_channels":
		r.Method = "GET"
		r.URL = graphAPIBase + "/teams/" + teamID + "/channels"
	case "get_channel_messages":
		r.Method = "GET"
		r.URL = channelMessages
	case "get_message":
		r.Method = "GET"
		r.URL = channelMessages + "/" + messageID
	case "send_channel_message":
		r.Method = "POST"
		r.URL = channelMessages
		r.Body = JSONBody(messageBody())
	case "reply_to_message":
		r.Method = "POST"
		r.URL = channelMessages + "/" + messageID + "/replies"
		r.Body = JSONBody(messageBody())
	case "send_chat_message":
		r.Method = "POST"
		r.URL = graphAPIBase + "/chats/" + paramString(params, "chat_id") + "/messages"
		r.Body = JSONBody(messageBody())
	case "create_channel":
		r.Method = "POST"
		r.URL = graphAPIBase + "/teams/" + teamID + "/channels"
		r.Body = JSONBody(map[string]interface{}{
			"displayName": paramString(params, "display_name"),
			"description": paramString(params, "description"),
		})
	case "soft_delete_message":
		r.Method = "POST"
		r.URL = channelMessages + "/" + messageID + "/softDelete"
		r.Body = JSONBody(map[string]interface{}{})
	case "delete_channel":
		r.Method = "DELETE"
		r.URL = graphAPIBase + "/teams/" + teamID + "/channels/" + channelID
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}
