package wapi

// createInstanceRequest is the provisioning payload.
type createInstanceRequest struct {
	InstanceName    string   `json:"instanceName"`
	QRCode          bool     `json:"qrcode"`
	Integration     string   `json:"integration,omitempty"`
	Token           string   `json:"token,omitempty"`
	WebhookURL      string   `json:"webhook,omitempty"`
	WebhookByEvents bool     `json:"webhook_by_events,omitempty"`
	Events          []string `json:"events,omitempty"`
}

// createInstanceResponse mirrors the provider's creation response. The
// pairing code may arrive inline as a base64 image, or as a raw code that
// the client must render itself. Both shapes are valid.
type createInstanceResponse struct {
	Instance struct {
		InstanceName string `json:"instanceName"`
		InstanceID   string `json:"instanceId"`
		Status       string `json:"status"`
	} `json:"instance"`
	QRCode struct {
		Base64 string `json:"base64"` // inline "data:image/png;base64,..." image
		Code   string `json:"code"`   // raw code, render client-side
	} `json:"qrcode"`
}

// CreateResult is the outcome of a successful CreateInstance call.
type CreateResult struct {
	RemoteInstanceID string
	// QRBase64 is the inline pairing image, if the provider sent one.
	QRBase64 string
	// QRRaw is the raw pairing code, if the provider sent one instead.
	QRRaw string
}

// connectionStateResponse wraps the provider's status query response.
// Depending on provider version the state lives at either nesting level.
type connectionStateResponse struct {
	Instance struct {
		State  string `json:"state"`
		Status string `json:"status"`
	} `json:"instance"`
	State string `json:"state"`
}

func (r *connectionStateResponse) rawState() string {
	if r.Instance.State != "" {
		return r.Instance.State
	}
	if r.Instance.Status != "" {
		return r.Instance.Status
	}
	return r.State
}

// sendTextRequest is the payload for the post-pairing confirmation probe.
type sendTextRequest struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

// apiError is the provider's error envelope.
type apiError struct {
	Status  int    `json:"status"`
	Error   string `json:"error"`
	Message any    `json:"message"` // string or []string depending on endpoint
}
