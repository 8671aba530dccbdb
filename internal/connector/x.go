package connector

// X (Twitter) connector: v2 API signed with OAuth 1.0a user context. The
// spec names the four vault keys in metadata; the proxy retrieves them and
// computes the HMAC-SHA1 signature at dispatch time.

const (
	xAPIBase = "https://api.x.com/2"

	xConsumerKeyVaultKey       = "x.consumer_key"
	xConsumerSecretVaultKey    = "x.consumer_secret"
	xAccessTokenVaultKey       = "x.access_token"
	xAccessTokenSecretVaultKey = "x.access_token_secret"
)

// X produces request specs for the X v2 API.
type X struct {
	base
}

// NewX constructs the X connector with its built-in catalog.
func NewX() *X {
	manifest := &Manifest{
		ID:          "x",
		Name:        "X",
		Version:     "1.0.0",
		Author:      "connector-plane",
		Source:      SourceFirstParty,
		Description: "Post and manage tweets via the X v2 API with OAuth 1.0a.",
		TargetDomains: []string{
			"api.x.com",
		},
		RequiredCredentials: []CredentialSpec{
			{Name: "Consumer Key", Type: CredentialAPIKey, VaultKey: xConsumerKeyVaultKey, Required: true},
			{Name: "Consumer Secret", Type: CredentialAPIKey, VaultKey: xConsumerSecretVaultKey, Required: true},
			{Name: "Access Token", Type: CredentialOAuthToken, VaultKey: xAccessTokenVaultKey, Required: true},
			{Name: "Access Token Secret", Type: CredentialOAuthToken, VaultKey: xAccessTokenSecretVaultKey, Required: true},
		},
		DataReads:     []string{"tweet content"},
		DataWrites:    []string{"tweets"},
		DoesNotAccess: []string{"direct messages", "follower lists"},
	}

	ops := []Operation{
		{
			ID: "post_tweet", Capability: CapabilityWrite, Name: "Post tweet",
			Description: "Post a tweet. Deletable afterwards, though it may be seen or archived first.",
			DefaultTier: TierReversible, Reversible: true, RollbackOperationID: "delete_tweet",
			Parameters: []ParameterSpec{
				{Name: "text", Type: "str", Required: true},
			},
		},
		{
			ID: "get_tweet", Capability: CapabilityRead, Name: "Get tweet",
			Description: "Read a tweet by ID.",
			DefaultTier: TierReversible, Idempotent: true, Reversible: true,
			Parameters: []ParameterSpec{
				{Name: "tweet_id", Type: "str", Required: true},
			},
		},
		{
			ID: "delete_tweet", Capability: CapabilityDelete, Name: "Delete tweet",
			Description: "Delete a tweet permanently.",
			DefaultTier: TierIrreversible,
			Parameters: []ParameterSpec{
				{Name: "tweet_id", Type: "str", Required: true},
			},
		},
	}

	return &X{base: newBase(manifest, ops)}
}

// Execute builds the request spec for one X operation. No I/O, no signing;
// the OAuth 1.0a signature depends on the final URL and timestamp, so it is
// computed by the proxy at dispatch.
func (x *X) Execute(operationID string, params map[string]interface{}) (*Result, error) {
	op, err := x.checkOperation(operationID, params)
	if err != nil {
		return nil, err
	}

	r := &Result{
		OperationID:    op.ID,
		ConnectorID:    x.manifest.ID,
		Headers:        map[string]string{},
		TimeoutSeconds: defaultTimeoutSeconds,
		Metadata: map[string]string{
			MetaAuthType:            AuthOAuth1,
			MetaOAuthConsumerKey:    xConsumerKeyVaultKey,
			MetaOAuthConsumerSecret: xConsumerSecretVaultKey,
			MetaOAuthTokenKey:       xAccessTokenVaultKey,
			MetaOAuthTokenSecret:    xAccessTokenSecretVaultKey,
		},
	}

	switch op.ID {
	case "post_tweet":
		r.Method = "POST"
		r.URL = xAPIBase + "/tweets"
		r.Body = JSONBody(map[string]interface{}{
			"text": paramString(params, "text"),
		})
	case "get_tweet":
		r.Method = "GET"
		r.URL = xAPIBase + "/tweets/" + paramString(params, "tweet_id")
	case "delete_tweet":
		r.Method = "DELETE"
		r.URL = xAPIBase + "/tweets/" + paramString(params, "tweet_id")
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}
