package sinks

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/checoluis2212/backend-b2b/internal/models"
)

// AnalyticsOptions configures an AnalyticsClient. Debug selects the
// collector's validation endpoint instead of the live one.
type AnalyticsOptions struct {
	BaseURL       string
	MeasurementID string
	APISecret     string
	Debug         bool
	HTTPClient    *http.Client
}

// AnalyticsClient sends Measurement-Protocol events to the collector.
type AnalyticsClient struct {
	endpoint   string
	httpClient *http.Client
}

// NewAnalyticsClient builds a client for the configured measurement stream.
func NewAnalyticsClient(opts AnalyticsOptions) *AnalyticsClient {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://www.google-analytics.com"
	}
	path := "/mp/collect"
	if opts.Debug {
		path = "/debug/mp/collect"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 12 * time.Second}
	}
	q := url.Values{}
	q.Set("measurement_id", opts.MeasurementID)
	q.Set("api_secret", opts.APISecret)
	return &AnalyticsClient{
		endpoint:   baseURL + path + "?" + q.Encode(),
		httpClient: httpClient,
	}
}

// SendEvent delivers one (clientId, eventName, utm, params) tuple. The UTM
// source/medium/campaign trio is always present (already defaulted upstream);
// content and term ride along only when they carry a real value.
func (c *AnalyticsClient) SendEvent(ctx context.Context, clientID, eventName string, utm models.UTM, params map[string]any) error {
	eventParams := map[string]any{
		"engagement_time_msec": 1,
		"visitor_id":           clientID,
		"utm_source":           utm.Source,
		"utm_medium":           utm.Medium,
		"utm_campaign":         utm.Campaign,
	}
	userProps := map[string]any{
		"utm_source":   map[string]any{"value": utm.Source},
		"utm_medium":   map[string]any{"value": utm.Medium},
		"utm_campaign": map[string]any{"value": utm.Campaign},
	}
	if utm.Content != "" && utm.Content != models.NotSet {
		eventParams["utm_content"] = utm.Content
		userProps["utm_content"] = map[string]any{"value": utm.Content}
	}
	if utm.Term != "" && utm.Term != models.NotSet {
		eventParams["utm_term"] = utm.Term
		userProps["utm_term"] = map[string]any{"value": utm.Term}
	}
	for k, v := range params {
		eventParams[k] = v
	}

	body := map[string]any{
		"client_id":        clientID,
		"timestamp_micros": time.Now().UnixMicro(),
		"events": []map[string]any{{
			"name":   eventName,
			"params": eventParams,
		}},
		"user_properties": userProps,
	}

	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	respBody, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &SinkError{Sink: "analytics", Status: resp.StatusCode, Body: truncate(respBody)}
	}
	return nil
}
