// Package normalize converts the inbound payload shapes the frontend and the
// CRM produce into one canonical event. It is pure: no I/O, deterministic for
// a given payload.
package normalize

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/checoluis2212/backend-b2b/internal/models"
)

// ErrMalformedInput marks payloads whose container shape is unrecognized or
// which lack a business-required field after normalization. Mapped to 400 at
// the HTTP boundary, never retried.
var ErrMalformedInput = errors.New("malformed input")

// fieldAliases maps lower-cased inbound keys to canonical field names. Only
// keys in this table are lifted from a flat payload; everything else stays in
// the raw snapshot.
var fieldAliases = map[string]string{
	"email":                 "email",
	"firstname":             "firstname",
	"nombre":                "firstname",
	"lastname":              "lastname",
	"apellido":              "lastname",
	"phone":                 "phone",
	"telefono":              "phone",
	"company":               "company",
	"empresa":               "company",
	"jobtitle":              "jobtitle",
	"puesto":                "jobtitle",
	"vacantesanuales":       "vacantesAnuales",
	"vacantes_anuales":      "vacantesAnuales",
	"rfc":                   "rfc",
	"aceptacomunicaciones":  "aceptaComunicaciones",
	"acepta_comunicaciones": "aceptaComunicaciones",
	"message":               "message",
	"mensaje":               "message",
}

// consentFields are coerced to "true"/"false" regardless of how the client
// spelled the value.
var consentFields = map[string]bool{"aceptaComunicaciones": true}

// truthy values accepted for consent-style fields.
var truthy = map[string]bool{"true": true, "1": true, "on": true, "sí": true, "si": true, "accepted": true, "yes": true}

// Event builds a NormalizedEvent from a decoded JSON payload.
//
// The field container is resolved from one of three shapes: a "fields" object
// map, a "fields" array of {name,value} pairs, or recognized keys lifted from
// the flat top level. Shape ambiguity does not propagate past this function.
func Event(kind models.EventKind, payload map[string]any, meta models.RequestMeta) (*models.NormalizedEvent, error) {
	if payload == nil {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedInput)
	}

	fields, err := extractFields(payload)
	if err != nil {
		return nil, err
	}

	ev := &models.NormalizedEvent{
		VisitorID: strings.TrimSpace(firstString(payload, "visitorId", "visitorid", "visitor_id")),
		Fields:    fields,
		Context:   extractContext(payload),
		Kind:      kind,
		Raw:       payload,
		Meta:      meta,
	}

	switch kind {
	case models.EventButtonClick:
		name := strings.TrimSpace(firstString(payload, "button", "buttonName", "button_name"))
		if !models.ButtonAllowed(name) {
			return nil, fmt.Errorf("%w: unknown button %q", ErrMalformedInput, name)
		}
		ev.ButtonName = name
	case models.EventFormSubmit, models.EventWebhookContact:
		if ev.Fields["email"] == "" {
			return nil, fmt.Errorf("%w: email required", ErrMalformedInput)
		}
	}

	return ev, nil
}

// extractFields resolves the three accepted field-container shapes into one
// canonical map. Values are trimmed; email is lower-cased; consent fields are
// coerced to "true"/"false".
func extractFields(payload map[string]any) (map[string]string, error) {
	out := map[string]string{}

	raw, present := payload["fields"]
	switch v := raw.(type) {
	case nil:
		if present {
			return nil, fmt.Errorf("%w: fields is null", ErrMalformedInput)
		}
		// Flat shape: lift recognized keys from the top level.
		for key, val := range payload {
			putField(out, key, val)
		}
	case map[string]any:
		for key, val := range v {
			putField(out, key, val)
		}
	case []any:
		for _, item := range v {
			pair, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: fields array entry is not a name/value pair", ErrMalformedInput)
			}
			putField(out, toString(pair["name"]), pair["value"])
		}
	default:
		return nil, fmt.Errorf("%w: fields is neither object nor array", ErrMalformedInput)
	}

	return out, nil
}

// putField canonicalizes one key/value pair into dst. Unrecognized keys and
// null values are skipped.
func putField(dst map[string]string, key string, val any) {
	canonical, ok := fieldAliases[strings.ToLower(strings.TrimSpace(key))]
	if !ok || val == nil {
		return
	}
	s := strings.TrimSpace(toString(val))
	if canonical == "email" {
		s = strings.ToLower(s)
	}
	if consentFields[canonical] {
		if truthy[strings.ToLower(s)] {
			s = "true"
		} else {
			s = "false"
		}
	}
	dst[canonical] = s
}

// extractContext pulls acquisition metadata from a "context" sub-object when
// present, falling back to the flat top level. UTM fields default to the
// "(not set)" sentinel; a malformed visitor token is dropped, not defaulted.
func extractContext(payload map[string]any) models.EventContext {
	src := payload
	if sub, ok := payload["context"].(map[string]any); ok {
		src = sub
	}

	ctx := models.EventContext{
		UTM:          extractUTM(src),
		PageName:     strings.TrimSpace(firstString(src, "pageName", "page_name")),
		PageReferrer: strings.TrimSpace(firstString(src, "pageReferrer", "referrer", "page_referrer")),
	}

	// page may be a plain URI string or a {uri, name} object.
	switch page := src["page"].(type) {
	case map[string]any:
		ctx.PageURI = strings.TrimSpace(toString(page["uri"]))
		if ctx.PageName == "" {
			ctx.PageName = strings.TrimSpace(toString(page["name"]))
		}
	case string:
		ctx.PageURI = strings.TrimSpace(page)
	}
	if ctx.PageURI == "" {
		ctx.PageURI = strings.TrimSpace(firstString(src, "pageUri", "page_location"))
	}

	if hutk := strings.TrimSpace(firstString(src, "hutk")); hutk != "" {
		if _, err := uuid.Parse(hutk); err == nil {
			ctx.Hutk = hutk
		}
	}

	return ctx
}

// extractUTM reads either a nested "utm" object or flat utm_* keys.
func extractUTM(src map[string]any) models.UTM {
	if nested, ok := src["utm"].(map[string]any); ok {
		return models.UTM{
			Source:   utmValue(nested, "source", "utm_source"),
			Medium:   utmValue(nested, "medium", "utm_medium"),
			Campaign: utmValue(nested, "campaign", "utm_campaign"),
			Content:  utmValue(nested, "content", "utm_content"),
			Term:     utmValue(nested, "term", "utm_term"),
		}
	}
	return models.UTM{
		Source:   utmValue(src, "utm_source"),
		Medium:   utmValue(src, "utm_medium"),
		Campaign: utmValue(src, "utm_campaign"),
		Content:  utmValue(src, "utm_content"),
		Term:     utmValue(src, "utm_term"),
	}
}

func utmValue(src map[string]any, keys ...string) string {
	v := strings.TrimSpace(firstString(src, keys...))
	if v == "" {
		return models.NotSet
	}
	return v
}

// firstString returns the first non-empty string value among keys.
func firstString(src map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := toString(src[k]); s != "" {
			return s
		}
	}
	return ""
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case bool:
		if s {
			return "true"
		}
		return "false"
	case float64:
		// JSON numbers decode as float64; render integers without a fraction.
		if s == float64(int64(s)) {
			return fmt.Sprintf("%d", int64(s))
		}
		return fmt.Sprintf("%g", s)
	default:
		return ""
	}
}
