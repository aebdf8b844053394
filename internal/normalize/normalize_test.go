package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/checoluis2212/backend-b2b/internal/models"
)

var testMeta = models.RequestMeta{
	IP:         "203.0.113.7",
	UserAgent:  "test-agent",
	ReceivedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
}

// The three accepted container shapes encoding the same logical field set
// must normalize to identical field maps.
func TestEvent_ShapeEquivalence(t *testing.T) {
	objectShape := map[string]any{
		"visitorId": "v1",
		"fields": map[string]any{
			"email":     " Ana@B.com ",
			"firstname": "Ana",
			"company":   "Acme",
		},
	}
	arrayShape := map[string]any{
		"visitorId": "v1",
		"fields": []any{
			map[string]any{"name": "email", "value": " Ana@B.com "},
			map[string]any{"name": "firstname", "value": "Ana"},
			map[string]any{"name": "company", "value": "Acme"},
		},
	}
	flatShape := map[string]any{
		"visitorId": "v1",
		"email":     " Ana@B.com ",
		"nombre":    "Ana",
		"empresa":   "Acme",
	}

	want := map[string]string{
		"email":     "ana@b.com",
		"firstname": "Ana",
		"company":   "Acme",
	}

	for name, payload := range map[string]map[string]any{
		"object": objectShape,
		"array":  arrayShape,
		"flat":   flatShape,
	} {
		ev, err := Event(models.EventFormSubmit, payload, testMeta)
		require.NoError(t, err, name)
		assert.Equal(t, want, ev.Fields, name)
		assert.Equal(t, "v1", ev.VisitorID, name)
	}
}

func TestEvent_ConsentCoercion(t *testing.T) {
	for raw, want := range map[string]string{
		"true":     "true",
		"1":        "true",
		"on":       "true",
		"sí":       "true",
		"accepted": "true",
		"false":    "false",
		"no":       "false",
		"":         "false",
	} {
		ev, err := Event(models.EventFormSubmit, map[string]any{
			"email":                 "a@b.com",
			"acepta_comunicaciones": raw,
		}, testMeta)
		require.NoError(t, err, raw)
		assert.Equal(t, want, ev.Fields["aceptaComunicaciones"], "value %q", raw)
	}

	// Boolean JSON values coerce too.
	ev, err := Event(models.EventFormSubmit, map[string]any{
		"email":                "a@b.com",
		"aceptaComunicaciones": true,
	}, testMeta)
	require.NoError(t, err)
	assert.True(t, ev.Consent())
}

func TestEvent_MalformedToken_DroppedSilently(t *testing.T) {
	ev, err := Event(models.EventFormSubmit, map[string]any{
		"email":   "a@b.com",
		"context": map[string]any{"hutk": "not-a-uuid"},
	}, testMeta)
	require.NoError(t, err)
	assert.Empty(t, ev.Context.Hutk)
}

func TestEvent_WellFormedToken_Kept(t *testing.T) {
	ev, err := Event(models.EventFormSubmit, map[string]any{
		"email":   "a@b.com",
		"context": map[string]any{"hutk": "9f1c1c2e-8a53-4a6f-9dc7-59a2c41f0b55"},
	}, testMeta)
	require.NoError(t, err)
	assert.Equal(t, "9f1c1c2e-8a53-4a6f-9dc7-59a2c41f0b55", ev.Context.Hutk)
}

func TestEvent_UTMDefaults(t *testing.T) {
	ev, err := Event(models.EventFormSubmit, map[string]any{
		"email":      "a@b.com",
		"utm_source": "google",
	}, testMeta)
	require.NoError(t, err)
	assert.Equal(t, "google", ev.Context.UTM.Source)
	assert.Equal(t, models.NotSet, ev.Context.UTM.Medium)
	assert.Equal(t, models.NotSet, ev.Context.UTM.Campaign)
	assert.Equal(t, models.NotSet, ev.Context.UTM.Content)
	assert.Equal(t, models.NotSet, ev.Context.UTM.Term)
}

func TestEvent_NestedUTMAndPageObject(t *testing.T) {
	ev, err := Event(models.EventFormSubmit, map[string]any{
		"email": "a@b.com",
		"context": map[string]any{
			"utm":  map[string]any{"source": "newsletter", "medium": "email"},
			"page": map[string]any{"uri": "https://example.com/pricing", "name": "Pricing"},
		},
	}, testMeta)
	require.NoError(t, err)
	assert.Equal(t, "newsletter", ev.Context.UTM.Source)
	assert.Equal(t, "email", ev.Context.UTM.Medium)
	assert.Equal(t, "https://example.com/pricing", ev.Context.PageURI)
	assert.Equal(t, "Pricing", ev.Context.PageName)
}

func TestEvent_MalformedContainer(t *testing.T) {
	for name, payload := range map[string]map[string]any{
		"fields is a string": {"fields": "nope", "email": "a@b.com"},
		"fields is a number": {"fields": 42.0},
		"fields is null":     {"fields": nil},
		"array entry bad":    {"fields": []any{"not-a-pair"}},
	} {
		_, err := Event(models.EventFormSubmit, payload, testMeta)
		assert.ErrorIs(t, err, ErrMalformedInput, name)
	}
}

func TestEvent_FormRequiresEmail(t *testing.T) {
	_, err := Event(models.EventFormSubmit, map[string]any{
		"fields": map[string]any{"firstname": "Ana"},
	}, testMeta)
	assert.ErrorIs(t, err, ErrMalformedInput)
}

func TestEvent_ButtonAllowList(t *testing.T) {
	ev, err := Event(models.EventButtonClick, map[string]any{
		"visitorId": "v1",
		"button":    "cotizar",
	}, testMeta)
	require.NoError(t, err)
	assert.Equal(t, "cotizar", ev.ButtonName)

	_, err = Event(models.EventButtonClick, map[string]any{
		"visitorId": "v1",
		"button":    "destroy",
	}, testMeta)
	assert.ErrorIs(t, err, ErrMalformedInput)

	_, err = Event(models.EventButtonClick, map[string]any{"visitorId": "v1"}, testMeta)
	assert.ErrorIs(t, err, ErrMalformedInput)
}

// Determinism: same payload, same result.
func TestEvent_Deterministic(t *testing.T) {
	payload := map[string]any{
		"email":      "a@b.com",
		"telefono":   " 555-0100 ",
		"utm_medium": "cpc",
	}
	first, err := Event(models.EventFormSubmit, payload, testMeta)
	require.NoError(t, err)
	second, err := Event(models.EventFormSubmit, payload, testMeta)
	require.NoError(t, err)
	assert.Equal(t, first.Fields, second.Fields)
	assert.Equal(t, first.Context, second.Context)
	assert.Equal(t, "555-0100", first.Fields["phone"])
}
