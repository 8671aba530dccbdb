package connector

// Echo connector: requests against httpbin.org, used to exercise the full
// pipeline without credentials or side effects.

const echoAPIBase = "https://httpbin.org"

// Echo produces request specs that bounce off httpbin.org.
type Echo struct {
	base
}

// NewEcho constructs the echo connector.
func NewEcho() *Echo {
	manifest := &Manifest{
		ID:          "echo",
		Name:        "Echo",
		Version:     "1.0.0",
		Author:      "connector-plane",
		Source:      SourceFirstParty,
		Description: "Round-trip test connector against httpbin.org.",
		TargetDomains: []string{
			"httpbin.org",
		},
		DataReads:     []string{"echoed request data"},
		DataWrites:    []string{"nothing durable"},
		DoesNotAccess: []string{"anything else"},
	}

	ops := []Operation{
		{
			ID: "get", Capability: CapabilityRead, Name: "Echo GET",
			Description: "GET /get with optional query args echoed back.",
			DefaultTier: TierInert, Idempotent: true, Reversible: true,
			Parameters: []ParameterSpec{
				{Name: "message", Type: "str"},
			},
		},
		{
			ID: "post", Capability: CapabilityWrite, Name: "Echo POST",
			Description: "POST /post with a JSON payload echoed back.",
			DefaultTier: TierReversible, Idempotent: true, Reversible: true,
			Parameters: []ParameterSpec{
				{Name: "payload", Type: "str", Required: true},
			},
		},
		{
			ID: "status", Capability: CapabilityRead, Name: "Echo status",
			Description: "GET /status/{code} to provoke a specific status code.",
			DefaultTier: TierInert, Idempotent: true, Reversible: true,
			Parameters: []ParameterSpec{
				{Name: "code", Type: "int", Default: 200},
			},
		},
	}

	return &Echo{base: newBase(manifest, ops)}
}

// Execute builds the request spec for one echo operation. No I/O.
func (e *Echo) Execute(operationID string, params map[string]interface{}) (*Result, error) {
	op, err := e.checkOperation(operationID, params)
	if err != nil {
		return nil, err
	}

	r := &Result{
		OperationID:    op.ID,
		ConnectorID:    e.manifest.ID,
		Headers:        map[string]string{},
		TimeoutSeconds: defaultTimeoutSeconds,
		Metadata: map[string]string{
			MetaAuthType: AuthNone,
		},
	}

	switch op.ID {
	case "get":
		r.Method = "GET"
		r.URL = queryURL(echoAPIBase+"/get", map[string]string{
			"message": paramString(params, "message"),
		})
	case "post":
		r.Method = "POST"
		r.URL = echoAPIBase + "/post"
		r.Body = JSONBody(map[string]interface{}{
			"payload": paramString(params, "payload"),
		})
	case "status":
		r.Method = "GET"
		r.URL = echoAPIBase + "/status/" + itoa(paramInt(params, "code", 200))
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}
