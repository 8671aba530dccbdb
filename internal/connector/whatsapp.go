package connector

// WhatsApp connector: Meta Cloud API calls against graph.facebook.com.
// Free-form sends outside the 24-hour customer window are rejected by the
// platform; templates are pre-approved, which is why send_template_message
// sits a tier below the other sends.

const (
	whatsappAPIBase  = "https://graph.facebook.com/v18.0"
	whatsappVaultKey = "whatsapp.access_token"
)

// WhatsApp produces request specs for the WhatsApp Business Cloud API.
type WhatsApp struct {
	base
	phoneNumberID string
}

// NewWhatsApp constructs the WhatsApp connector. phoneNumberID is the
// business phone-number resource the connector sends from.
func NewWhatsApp(phoneNumberID string) *WhatsApp {
	manifest := &Manifest{
		ID:          "whatsapp",
		Name:        "WhatsApp Business",
		Version:     "1.0.0",
		Author:      "connector-plane",
		Source:      SourceFirstParty,
		Description: "Send WhatsApp messages via the Meta Cloud API.",
		TargetDomains: []string{
			"graph.facebook.com",
		},
		RequiredCredentials: []CredentialSpec{
			{Name: "Cloud API Token", Type: CredentialOAuthToken, VaultKey: whatsappVaultKey, Required: true},
		},
		DataReads:     []string{"media metadata", "business profile"},
		DataWrites:    []string{"outbound messages", "read receipts"},
		DoesNotAccess: []string{"contact lists", "message history"},
	}

	ops := []Operation{
		{
			ID: "send_text_message", Capability: CapabilityWrite, Name: "Send text message",
			Description: "Send a free-form text message. Delivered immediately; not recallable.",
			DefaultTier: TierIrreversible,
			Parameters: []ParameterSpec{
				{Name: "to", Type: "str", Required: true},
				{Name: "text", Type: "str", Required: true},
			},
		},
		{
			ID: "send_template_message", Capability: CapabilityWrite, Name: "Send template message",
			Description: "Send a pre-approved template message.",
			DefaultTier: TierControlled,
			Parameters: []ParameterSpec{
				{Name: "to", Type: "str", Required: true},
				{Name: "template_name", Type: "str", Required: true},
				{Name: "language_code", Type: "str", Default: "en_US"},
			},
		},
		{
			ID: "send_image_message", Capability: CapabilityWrite, Name: "Send image message",
			Description: "Send an image by uploaded media ID.",
			DefaultTier: TierIrreversible,
			Parameters: []ParameterSpec{
				{Name: "to", Type: "str", Required: true},
				{Name: "media_id", Type: "str", Required: true},
				{Name: "caption", Type: "str"},
			},
		},
		{
			ID: "send_document_message", Capability: CapabilityWrite, Name: "Send document message",
			Description: "Send a document by uploaded media ID.",
			DefaultTier: TierIrreversible,
			Parameters: []ParameterSpec{
				{Name: "to", Type: "str", Required: true},
				{Name: "media_id", Type: "str", Required: true},
				{Name: "filename", Type: "str"},
			},
		},
		{
			ID: "mark_as_read", Capability: CapabilityWrite, Name: "Mark as read",
			Description: "Mark an inbound message as read.",
			DefaultTier: TierControlled, Idempotent: true,
			Parameters: []ParameterSpec{
				{Name: "message_id", Type: "str", Required: true},
			},
		},
		{
			ID: "get_media_url", Capability: CapabilityRead, Name: "Get media URL",
			Description: "Resolve an uploaded media ID to its download URL.",
			DefaultTier: TierReversible, Idempotent: true, Reversible: true,
			Parameters: []ParameterSpec{
				{Name: "media_id", Type: "str", Required: true},
			},
		},
		{
			ID: "get_business_profile", Capability: CapabilityRead, Name: "Get business profile",
			Description: "Read the business profile of the sending number.",
			DefaultTier: TierReversible, Idempotent: true, Reversible: true,
		},
		{
			ID: "get_phone_number", Capability: CapabilityRead, Name: "Get phone number",
			Description: "Read metadata about the sending phone number.",
			DefaultTier: TierInert, Idempotent: true, Reversible: true,
		},
	}

	return &WhatsApp{base: newBase(manifest, ops), phoneNumberID: phoneNumberID}
}

// Execute builds the request spec for one WhatsApp operation. No I/O.
func (w *WhatsApp) Execute(operationID string, params map[string]interface{}) (*Result, error) {
	op, err := w.checkOperation(operationID, params)
	if err != nil {
		return nil, err
	}

	messagesURL := whatsappAPIBase + "/" + w.phoneNumberID + "/messages"

	r := &Result{
		OperationID:        op.ID,
		ConnectorID:        w.manifest.ID,
		Headers:            map[string]string{},
		TimeoutSeconds:     defaultTimeoutSeconds,
		CredentialVaultKey: whatsappVaultKey,
		Metadata:           map[string]string{},
	}

	// Every message payload carries the mandatory messaging_product field.
	messageBody := func(extra map[string]interface{}) map[string]interface{} {
		body := map[string]interface{}{
			"messaging_product": "whatsapp",
			"to":                paramString(params, "to"),
		}
		for k, v := range extra {
			body[k] = v
		}
		return body
	}

	switch op.ID {
	case "send_text_message":
		r.Method = "POST"
		r.URL = messagesURL
		r.Body = JSONBody(messageBody(map[string]interface{}{
			"type": "text",
			"text": map[string]interface{}{"body": paramString(params, "text")},
		}))
		r.Metadata[MetaRequiresTemplate] = "true"
	case "send_template_message":
		r.Method = "POST"
		r.URL = messagesURL
		r.Body = JSONBody(messageBody(map[string]interface{}{
			"type": "template",
			"template": map[string]interface{}{
				"name":     paramString(params, "template_name"),
				"language": map[string]interface{}{"code": paramStringDefault(params, "language_code", "en_US")},
			},
		}))
	case "send_image_message":
		image := map[string]interface{}{"id": paramString(params, "media_id")}
		if c := paramString(params, "caption"); c != "" {
			image["caption"] = c
		}
		r.Method = "POST"
		r.URL = messagesURL
		r.Body = JSONBody(messageBody(map[string]interface{}{
			"type":  "image",
			"image": image,
		}))
		r.Metadata[MetaRequiresTemplate] = "true"
	case "send_document_message":
		doc := map[string]interface{}{"id": paramString(params, "media_id")}
		if f := paramString(params, "filename"); f != "" {
			doc["filename"] = f
		}
		r.Method = "POST"
		r.URL = messagesURL
		r.Body = JSONBody(messageBody(map[string]interface{}{
			"type":     "document",
			"document": doc,
		}))
		r.Metadata[MetaRequiresTemplate] = "true"
	case "mark_as_read":
		r.Method = "POST"
		r.URL = messagesURL
		r.Body = JSONBody(map[string]interface{}{
			"messaging_product": "whatsapp",
			"status":            "read",
			"message_id":        paramString(params, "message_id"),
		})
	case "get_media_url":
		r.Method = "GET"
		r.URL = whatsappAPIBase + "/" + paramString(params, "media_id")
	case "get_business_profile":
		r.Method = "GET"
		r.URL = whatsappAPIBase + "/" + w.phoneNumberID + "/whatsapp_business_profile"
	case "get_phone_number":
		r.Method = "GET"
		r.URL = whatsappAPIBase + "/" + w.phoneNumberID
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}
