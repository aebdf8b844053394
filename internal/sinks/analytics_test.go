package sinks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/checoluis2212/backend-b2b/internal/models"
)

func TestSendEvent_WireShape(t *testing.T) {
	var gotQuery map[string][]string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		b, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(b, &gotBody))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewAnalyticsClient(AnalyticsOptions{
		BaseURL:       srv.URL,
		MeasurementID: "G-TEST",
		APISecret:     "secret",
	})
	utm := models.UTM{Source: "google", Medium: "cpc", Campaign: "verano", Content: models.NotSet, Term: models.NotSet}
	err := c.SendEvent(context.Background(), "v-1", "clic_cotizar", utm, map[string]any{"boton": "cotizar"})
	require.NoError(t, err)

	assert.Equal(t, "G-TEST", gotQuery["measurement_id"][0])
	assert.Equal(t, "secret", gotQuery["api_secret"][0])

	assert.Equal(t, "v-1", gotBody["client_id"])
	assert.NotZero(t, gotBody["timestamp_micros"])

	events := gotBody["events"].([]any)
	require.Len(t, events, 1)
	ev := events[0].(map[string]any)
	assert.Equal(t, "clic_cotizar", ev["name"])

	params := ev["params"].(map[string]any)
	assert.Equal(t, "v-1", params["visitor_id"])
	assert.Equal(t, "cotizar", params["boton"])
	assert.Equal(t, "google", params["utm_source"])
	assert.Equal(t, "cpc", params["utm_medium"])
	assert.Equal(t, "verano", params["utm_campaign"])

	// content/term stay off the wire when they never carried a value
	_, hasContent := params["utm_content"]
	_, hasTerm := params["utm_term"]
	assert.False(t, hasContent)
	assert.False(t, hasTerm)

	userProps := gotBody["user_properties"].(map[string]any)
	assert.Equal(t, "google", userProps["utm_source"].(map[string]any)["value"])
}

func TestSendEvent_CarriesContentAndTermWhenSet(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewAnalyticsClient(AnalyticsOptions{BaseURL: srv.URL, MeasurementID: "G-TEST", APISecret: "s"})
	utm := models.UTM{Source: "google", Medium: "cpc", Campaign: "verano", Content: "banner-a", Term: "vacantes"}
	require.NoError(t, c.SendEvent(context.Background(), "v-1", "form_enviado", utm, nil))

	params := gotBody["events"].([]any)[0].(map[string]any)["params"].(map[string]any)
	assert.Equal(t, "banner-a", params["utm_content"])
	assert.Equal(t, "vacantes", params["utm_term"])
}

func TestSendEvent_DebugEndpoint(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewAnalyticsClient(AnalyticsOptions{BaseURL: srv.URL, MeasurementID: "G-TEST", APISecret: "s", Debug: true})
	require.NoError(t, c.SendEvent(context.Background(), "v-1", "clic_cotizar", models.UTM{}, nil))
	assert.Equal(t, "/debug/mp/collect", gotPath)
}

func TestSendEvent_RejectionIsSinkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewAnalyticsClient(AnalyticsOptions{BaseURL: srv.URL, MeasurementID: "G-TEST", APISecret: "s"})
	err := c.SendEvent(context.Background(), "v-1", "clic_cotizar", models.UTM{}, nil)
	require.Error(t, err)

	var sinkErr *SinkError
	require.ErrorAs(t, err, &sinkErr)
	assert.Equal(t, "analytics", sinkErr.Sink)
	assert.Equal(t, http.StatusTooManyRequests, sinkErr.Status)
}
