package connector

// Google Calendar connector: Calendar v3 API with an OAuth token.

const (
	calendarAPIBase  = "https://www.googleapis.com/calendar/v3"
	calendarVaultKey = "google.calendar_token"
)

// Calendar produces request specs for the Google Calendar API.
type Calendar struct {
	base
}

// NewCalendar constructs the Google Calendar connector.
func NewCalendar() *Calendar {
	manifest := &Manifest{
		ID:          "calendar",
		Name:        "Google Calendar",
		Version:     "1.0.0",
		Author:      "connector-plane",
		Source:      SourceFirstParty,
		Description: "Read and manage Google Calendar events.",
		TargetDomains: []string{
			"www.googleapis.com",
		},
		RequiredCredentials: []CredentialSpec{
			{Name: "Calendar OAuth Token", Type: CredentialOAuthToken, VaultKey: calendarVaultKey, Required: true, Scopes: []string{"https://www.googleapis.com/auth/calendar"}},
		},
		DataReads:     []string{"calendar listings", "event details"},
		DataWrites:    []string{"events", "attendee notifications"},
		DoesNotAccess: []string{"mail", "contacts"},
	}

	ops := []Operation{
		{
			ID: "list_calendars", Capability: CapabilityRead, Name: "List calendars",
			Description: "List calendars visible to the account.",
			DefaultTier: TierInert, Idempotent: true, Reversible: true,
		},
		{
			ID: "list_events", Capability: CapabilityRead, Name: "List events",
			Description: "List upcoming events in a calendar.",
			DefaultTier: TierInert, Idempotent: true, Reversible: true,
			Parameters: []ParameterSpec{
				{Name: "calendar_id", Type: "str", Default: "primary"},
				{Name: "max_results", Type: "int", Default: 25},
			},
		},
		{
			ID: "get_event", Capability: CapabilityRead, Name: "Get event",
			Description: "Read a single event, including attendees.",
			DefaultTier: TierReversible, Idempotent: true, Reversible: true,
			Parameters: []ParameterSpec{
				{Name: "calendar_id", Type: "str", Default: "primary"},
				{Name: "event_id", Type: "str", Required: true},
			},
		},
		{
			ID: "create_event", Capability: CapabilityWrite, Name: "Create event",
			Description: "Create an event. May notify attendees depending on send_updates.",
			DefaultTier: TierControlled, Reversible: true, RollbackOperationID: "delete_event",
			Parameters: []ParameterSpec{
				{Name: "calendar_id", Type: "str", Default: "primary"},
				{Name: "summary", Type: "str", Required: true},
				{Name: "start", Type: "str", Required: true, Description: "RFC 3339 start time"},
				{Name: "end", Type: "str", Required: true, Description: "RFC 3339 end time"},
				{Name: "description", Type: "str"},
				{Name: "send_updates", Type: "str", Default: "none"},
			},
		},
		{
			ID: "update_event", Capability: CapabilityWrite, Name: "Update event",
			Description: "Patch an event's fields. Prior values are not recoverable.",
			DefaultTier: TierControlled,
			Parameters: []ParameterSpec{
				{Name: "calendar_id", Type: "str", Default: "primary"},
				{Name: "event_id", Type: "str", Required: true},
				{Name: "summary", Type: "str"},
				{Name: "start", Type: "str"},
				{Name: "end", Type: "str"},
			},
		},
		{
			ID: "delete_event", Capability: CapabilityDelete, Name: "Delete event",
			Description: "Delete an event and cancel it for attendees.",
			DefaultTier: TierIrreversible,
			Parameters: []ParameterSpec{
				{Name: "calendar_id", Type: "str", Default: "primary"},
				{Name: "event_id", Type: "str", Required: true},
			},
		},
	}

	return &Calendar{base: newBase(manifest, ops)}
}

// Execute builds the request spec for one Calendar operation. No I/O.
func (c *Calendar) Execute(operationID string, params map[string]interface{}) (*Result, error) {
	op, err := c.checkOperation(operationID, params)
	if err != nil {
		return nil, err
	}

	calendarID := paramStringDefault(params, "calendar_id", "primary")
	eventsBase := calendarAPIBase + "/calendars/" + pathEscape(calendarID) + "/events"
	eventID := paramString(params, "event_id")

	r := &Result{
		OperationID:        op.ID,
		ConnectorID:        c.manifest.ID,
		Headers:            map[string]string{},
		TimeoutSeconds:     defaultTimeoutSeconds,
		CredentialVaultKey: calendarVaultKey,
		Metadata:           map[string]string{},
	}

	switch op.ID {
	case "list_calendars":
		r.Method = "GET"
		r.URL = calendarAPIBase + "/users/me/calendarList"
	case "list_events":
		r.Method = "GET"
		r.URL = queryURL(eventsBase, map[string]string{
			"maxResults":   itoa(paramInt(params, "max_results", 25)),
			"singleEvents": "true",
			"orderBy":      "startTime",
		})
	case "get_event":
		r.Method = "GET"
		r.URL = eventsBase + "/" + eventID
	case "create_event":
		body := map[string]interface{}{
			"summary": paramString(params, "summary"),
			"start":   map[string]interface{}{"dateTime": paramString(params, "start")},
			"end":     map[string]interface{}{"dateTime": paramString(params, "end")},
		}
		if d := paramString(params, "description"); d != "" {
			body["description"] = d
		}
		r.Method = "POST"
		r.URL = queryURL(eventsBase, map[string]string{
			"sendUpdates": paramStringDefault(params, "send_updates", "none"),
		})
		r.Body = JSONBody(body)
	case "update_event":
		body := map[string]interface{}{}
		if s := paramString(params, "summary"); s != "" {
			body["summary"] = s
		}
		if s := paramString(params, "start"); s != "" {
			body["start"] = map[string]interface{}{"dateTime": s}
		}
		if s := paramString(params, "end"); s != "" {
			body["end"] = map[string]interface{}{"dateTime": s}
		}
		r.Method = "PATCH"
		r.URL = eventsBase + "/" + eventID
		r.Body = JSONBody(body)
	case "delete_event":
		r.Method = "DELETE"
		r.URL = eventsBase + "/" + eventID
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}
