package forward

import (
	"github.com/checoluis2212/backend-b2b/internal/models"
	"github.com/checoluis2212/backend-b2b/internal/sinks"
)

// crmFieldOrder lists the canonical fields projected to the CRM and the
// sink-side name each one maps to. Consent travels separately as the legal
// consent block, never as a plain field.
var crmFieldOrder = []struct {
	local string
	sink  string
}{
	{"email", "email"},
	{"firstname", "firstname"},
	{"lastname", "lastname"},
	{"phone", "phone"},
	{"company", "company"},
	{"jobtitle", "jobtitle"},
	{"vacantesAnuales", "vacantes_anuales"},
	{"rfc", "rfc"},
	{"message", "message"},
}

// crmSubmission projects a normalized form event into the CRM's wire shape.
// The hutk token is only present when it passed shape validation.
func crmSubmission(ev *models.NormalizedEvent) sinks.FormSubmission {
	fields := make([]sinks.FormField, 0, len(crmFieldOrder))
	for _, m := range crmFieldOrder {
		if v := ev.Fields[m.local]; v != "" {
			fields = append(fields, sinks.FormField{Name: m.sink, Value: v})
		}
	}
	return sinks.FormSubmission{
		Fields: fields,
		Context: sinks.FormContext{
			PageURI:   ev.Context.PageURI,
			PageName:  ev.Context.PageName,
			IPAddress: ev.Meta.IP,
			Hutk:      ev.Context.Hutk,
		},
		Consent: ev.Consent(),
	}
}

// analyticsParams builds the per-event context params for the collector.
func analyticsParams(ev *models.NormalizedEvent) map[string]any {
	params := map[string]any{
		"page_location": ev.Context.PageURI,
		"page_referrer": ev.Context.PageReferrer,
	}
	switch ev.Kind {
	case models.EventButtonClick:
		params["button"] = ev.ButtonName
	case models.EventFormSubmit:
		if company := ev.Fields["company"]; company != "" {
			params["company"] = company
		}
	}
	return params
}

// analyticsEventName maps the event kind to the collector's event name.
func analyticsEventName(kind models.EventKind) string {
	switch kind {
	case models.EventButtonClick:
		return "button_click"
	case models.EventFormSubmit:
		return "form_submit"
	default:
		return ""
	}
}
