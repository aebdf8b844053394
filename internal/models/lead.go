package models

import "time"

// NotSet is the sentinel stored for acquisition fields that were never
// supplied. Downstream reporting groups on it, so it is part of the contract.
const NotSet = "(not set)"

// EventKind discriminates the three inbound interaction types.
type EventKind string

const (
	EventButtonClick    EventKind = "button_click"
	EventFormSubmit     EventKind = "form_submit"
	EventWebhookContact EventKind = "webhook_contact_created"
)

// AllowedButtons is the fixed set of button names the frontend emits.
// buttonCounts on a lead carries exactly these keys, initialized to zero.
var AllowedButtons = []string{"cotizar", "publicar", "oportunidades"}

// ButtonAllowed reports whether name is in the fixed allow-list.
func ButtonAllowed(name string) bool {
	for _, b := range AllowedButtons {
		if b == name {
			return true
		}
	}
	return false
}

// ZeroButtonCounts returns a counts map with every allow-listed button at 0.
func ZeroButtonCounts() map[string]int {
	counts := make(map[string]int, len(AllowedButtons))
	for _, b := range AllowedButtons {
		counts[b] = 0
	}
	return counts
}

// UTM is the acquisition tuple attached to every interaction.
type UTM struct {
	Source   string `json:"source"`
	Medium   string `json:"medium"`
	Campaign string `json:"campaign"`
	Content  string `json:"content"`
	Term     string `json:"term"`
}

// EventContext carries acquisition metadata normalized from the payload.
// UTM fields default to NotSet; Hutk is empty unless it passed shape
// validation (a malformed token must never reach a sink).
type EventContext struct {
	UTM          UTM
	PageURI      string
	PageName     string
	PageReferrer string
	Hutk         string
}

// RequestMeta is transport-level metadata captured at the HTTP boundary.
type RequestMeta struct {
	IP         string
	UserAgent  string
	ReceivedAt time.Time
}

// NormalizedEvent is the shape-agnostic internal representation of one
// inbound interaction. It is built per request by the normalizer and never
// persisted as-is.
type NormalizedEvent struct {
	VisitorID   string
	Fields      map[string]string
	Context     EventContext
	Kind        EventKind
	ButtonName  string // ButtonClick only
	CRMObjectID string // WebhookContactCreated only
	Raw         map[string]any
	Meta        RequestMeta
}

// Consent reports whether the normalized consent field was coerced true.
func (e *NormalizedEvent) Consent() bool {
	return e.Fields["aceptaComunicaciones"] == "true"
}

// ContactRecord is one discrete form submission, retained verbatim for
// audit. Immutable once appended to a lead.
type ContactRecord struct {
	Name        string         `json:"name"`
	Email       string         `json:"email"`
	Phone       string         `json:"phone"`
	Company     string         `json:"company"`
	JobTitle    string         `json:"jobtitle"`
	Payload     map[string]any `json:"payload"`
	SubmittedAt time.Time      `json:"submittedAt"`
}

// ButtonEvent is one recorded click, append-only on the lead.
type ButtonEvent struct {
	Name     string    `json:"name"`
	PageURI  string    `json:"pageUri"`
	PageName string    `json:"pageName"`
	At       time.Time `json:"at"`
}

// Acquisition holds last-known transport and campaign metadata,
// last-write-wins per field.
type Acquisition struct {
	IP      string `json:"ip,omitempty"`
	Referer string `json:"referer,omitempty"`
	UTM     UTM    `json:"utm"`
}

// Lead is the canonical per-visitor record, keyed by visitorId or, absent
// that, by normalized email. Never deleted by this service.
type Lead struct {
	Key            string            `json:"key"`
	VisitorID      string            `json:"visitorId,omitempty"`
	ButtonCounts   map[string]int    `json:"buttonCounts"`
	FormCount      int               `json:"formCount"`
	FirstFormAt    *time.Time        `json:"firstFormAt,omitempty"`
	LastFormAt     *time.Time        `json:"lastFormAt,omitempty"`
	LastFormFields map[string]string `json:"lastFormFields,omitempty"`
	Contacts       []ContactRecord   `json:"contacts"`
	ButtonEvents   []ButtonEvent     `json:"buttonEvents"`
	Acquisition    Acquisition       `json:"acquisition"`
	CRMObjectID    string            `json:"crmObjectId,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}
