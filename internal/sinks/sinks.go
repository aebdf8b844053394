// Package sinks holds the HTTP clients for the two external systems the
// service forwards to: the CRM and the analytics collector. Both are
// best-effort collaborators; their failures are reported as *SinkError so
// callers can log status and body without parsing.
package sinks

import "fmt"

// FormField is one name/value pair in the CRM's form-submission wire format.
type FormField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// FormContext is the acquisition context attached to a CRM form submission.
// Hutk is omitted from the wire entirely when empty; a malformed token never
// leaves this service.
type FormContext struct {
	PageURI   string `json:"pageUri"`
	PageName  string `json:"pageName"`
	IPAddress string `json:"ipAddress,omitempty"`
	Hutk      string `json:"hutk,omitempty"`
}

// FormSubmission is the projected payload for the CRM forms API.
type FormSubmission struct {
	Fields  []FormField
	Context FormContext
	Consent bool
}

// Contact is a CRM contact as returned by lookup and upsert calls.
type Contact struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
}

// SinkError carries enough context from a rejected sink call to support
// manual replay from logs.
type SinkError struct {
	Sink   string
	Status int
	Body   string
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("%s rejected: status=%d body=%s", e.Sink, e.Status, e.Body)
}

// maxBodyLog bounds how much of a sink response body is retained for logs.
const maxBodyLog = 512

func truncate(b []byte) string {
	if len(b) > maxBodyLog {
		return string(b[:maxBodyLog]) + "..."
	}
	return string(b)
}
