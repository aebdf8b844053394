package models

// IngestResponse is the post-merge snapshot returned to the caller on a
// successful ingestion. Sink outcomes are deliberately absent: forwarding
// happens after this response and is visible only in logs and metrics.
type IngestResponse struct {
	OK           bool           `json:"ok"`
	VisitorID    string         `json:"visitorId,omitempty"`
	ButtonCounts map[string]int `json:"buttonCounts"`
	FormCount    int            `json:"formCount"`
}

// ErrorResponse is the structured error object for rejected requests.
type ErrorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// WebhookResponse acknowledges a CRM callback batch. Always sent with 200,
// whatever the per-event outcomes, to keep the CRM from retry-storming.
type WebhookResponse struct {
	OK        bool `json:"ok"`
	Processed int  `json:"processed"`
	Skipped   int  `json:"skipped"`
}

// IngestResponseFrom projects a lead snapshot into the caller-facing shape.
func IngestResponseFrom(lead *Lead) IngestResponse {
	return IngestResponse{
		OK:           true,
		VisitorID:    lead.VisitorID,
		ButtonCounts: lead.ButtonCounts,
		FormCount:    lead.FormCount,
	}
}
