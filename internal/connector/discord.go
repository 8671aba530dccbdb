package connector

// Discord connector: REST API v10 against discord.com with a bot token.
// Reactions embed the percent-encoded emoji in the URL path.

const (
	discordAPIBase  = "https://discord.com/api/v10"
	discordVaultKey = "discord.bot_token"
)

// Discord produces request specs for the Discord REST API.
type Discord struct {
	base
}

// NewDiscord constructs the Discord connector with its built-in catalog.
func NewDiscord() *Discord {
	manifest := &Manifest{
		ID:          "discord",
		Name:        "Discord",
		Version:     "1.1.0",
		Author:      "connector-plane",
		Source:      SourceFirstParty,
		Description: "Send and manage messages in Discord servers via the REST API.",
		TargetDomains: []string{
			"discord.com",
		},
		RequiredCredentials: []CredentialSpec{
			{Name: "Bot Token", Type: CredentialBotToken, VaultKey: discordVaultKey, Required: true},
		},
		DataReads:     []string{"channel metadata", "message content"},
		DataWrites:    []string{"channel messages", "message reactions"},
		DoesNotAccess: []string{"guild member lists", "voice channels"},
	}

	ops := []Operation{
		{
			ID: "get_channel", Capability: CapabilityRead, Name: "Get channel",
			Description: "Read a channel's metadata.",
			DefaultTier: TierInert, Idempotent: true, Reversible: true,
			Parameters: []ParameterSpec{
				{Name: "channel_id", Type: "str", Required: true},
			},
		},
		{
			ID: "list_guild_channels", Capability: CapabilityRead, Name: "List guild channels",
			Description: "List channels in a guild.",
			DefaultTier: TierInert, Idempotent: true, Reversible: true,
			Parameters: []ParameterSpec{
				{Name: "guild_id", Type: "str", Required: true},
			},
		},
		{
			ID: "get_messages", Capability: CapabilityRead, Name: "Get messages",
			Description: "Read recent messages from a channel.",
			DefaultTier: TierReversible, Idempotent: true, Reversible: true,
			Parameters: []ParameterSpec{
				{Name: "channel_id", Type: "str", Required: true},
				{Name: "limit", Type: "int", Default: 50},
			},
		},
		{
			ID: "get_message", Capability: CapabilityRead, Name: "Get message",
			Description: "Read a single message.",
			DefaultTier: TierReversible, Idempotent: true, Reversible: true,
			Parameters: []ParameterSpec{
				{Name: "channel_id", Type: "str", Required: true},
				{Name: "message_id", Type: "str", Required: true},
			},
		},
		{
			ID: "send_message", Capability: CapabilityWrite, Name: "Send message",
			Description: "Send a message to a channel.",
			DefaultTier: TierControlled, Reversible: true, RollbackOperationID: "delete_message",
			Parameters: []ParameterSpec{
				{Name: "channel_id", Type: "str", Required: true},
				{Name: "content", Type: "str", Required: true},
			},
		},
		{
			ID: "edit_message", Capability: CapabilityWrite, Name: "Edit message",
			Description: "Edit a previously sent message.",
			DefaultTier: TierControlled, Reversible: true, RollbackOperationID: "delete_message",
			Parameters: []ParameterSpec{
				{Name: "channel_id", Type: "str", Required: true},
				{Name: "message_id", Type: "str", Required: true},
				{Name: "content", Type: "str", Required: true},
			},
		},
		{
			ID: "add_reaction", Capability: CapabilityWrite, Name: "Add reaction",
			Description: "Add an emoji reaction to a message.",
			DefaultTier: TierControlled, Idempotent: true, Reversible: true, RollbackOperationID: "remove_reaction",
			Parameters: []ParameterSpec{
				{Name: "channel_id", Type: "str", Required: true},
				{Name: "message_id", Type: "str", Required: true},
				{Name: "emoji", Type: "str", Required: true},
			},
		},
		{
			ID: "remove_reaction", Capability: CapabilityDelete, Name: "Remove reaction",
			Description: "Remove the bot's emoji reaction from a message.",
			DefaultTier: TierControlled, Idempotent: true, Reversible: true, RollbackOperationID: "add_reaction",
			Parameters: []ParameterSpec{
				{Name: "channel_id", Type: "str", Required: true},
				{Name: "message_id", Type: "str", Required: true},
				{Name: "emoji", Type: "str", Required: true},
			},
		},
		{
			ID: "delete_message", Capability: CapabilityDelete, Name: "Delete message",
			Description: "Delete a message permanently.",
			DefaultTier: TierIrreversible,
			Parameters: []ParameterSpec{
				{Name: "channel_id", Type: "str", Required: true},
				{Name: "message_id", Type: "str", Required: true},
			},
		},
	}

	return &Discord{base: newBase(manifest, ops)}
}

// Execute builds the request spec for one Discord operation. No I/O.
func (d *Discord) Execute(operationID string, params map[string]interface{}) (*Result, error) {
	op, err := d.checkOperation(operationID, params)
	if err != nil {
		return nil, err
	}

	channelID := paramString(params, "channel_id")
	messageID := paramString(params, "message_id")

	r := &Result{
		OperationID:        op.ID,
		ConnectorID:        d.manifest.ID,
		Headers:            map[string]string{},
		TimeoutSeconds:     defaultTimeoutSeconds,
		CredentialVaultKey: discordVaultKey,
		Metadata: map[string]string{
			MetaRateLimitGroup: "channel:" + channelID,
		},
	}

	switch op.ID {
	case "get_channel":
		r.Method = "GET"
		r.URL = discordAPIBase + "/channels/" + channelID
	case "list_guild_channels":
		r.Method = "GET"
		r.URL = discordAPIBase + "/guilds/" + paramString(params, "guild_id") + "/channels"
		r.Metadata[MetaRateLimitGroup] = "guild:" + paramString(params, "guild_id")
	case "get_messages":
		r.Method = "GET"
		r.URL = queryURL(discordAPIBase+"/channels/"+channelID+"/messages", map[string]string{
			"limit": itoa(paramInt(params, "limit", 50)),
		})
	case "get_message":
		r.Method = "GET"
		r.URL = discordAPIBase + "/channels/" + channelID + "/messages/" + messageID
	case "send_message":
		r.Method = "POST"
		r.URL = discordAPIBase + "/channels/" + channelID + "/messages"
		r.Body = JSONBody(map[string]interface{}{
			"content": paramString(params, "content"),
		})
	case "edit_message":
		r.Method = "PATCH"
		r.URL = discordAPIBase + "/channels/" + channelID + "/messages/" + messageID
		r.Body = JSONBody(map[string]interface{}{
			"content": paramString(params, "content"),
		})
	case "add_reaction":
		r.Method = "PUT"
		r.URL = discordAPIBase + "/channels/" + channelID + "/messages/" + messageID +
			"/reactions/" + pathEscape(paramString(params, "emoji")) + "/@me"
	case "remove_reaction":
		r.Method = "DELETE"
		r.URL = discordAPIBase + "/channels/" + channelID + "/messages/" + messageID +
			"/reactions/" + pathEscape(paramString(params, "emoji")) + "/@me"
	case "delete_message":
		r.Method = "DELETE"
		r.URL = discordAPIBase + "/channels/" + channelID + "/messages/" + messageID
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}
