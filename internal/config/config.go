package config

import (
	"errors"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config contains the runtime configuration, built once at startup and
// passed by reference; there are no mutable feature flags at runtime.
type Config struct {
	ListenAddr string
	DBURL      string
	APIKeys    map[string]bool

	CRMToken        string
	CRMPortalID     string
	CRMFormID       string
	CRMBaseURL      string
	CRMFormsBaseURL string
	CRMDisabled     bool // kill-switch: skips the CRM channel entirely

	AnalyticsMeasurementID string
	AnalyticsAPISecret     string
	AnalyticsDebug         bool

	ForwardQueueDepth int
	ForwardWorkers    int
	SinkTimeout       time.Duration
}

// Load reads required values from environment variables.
// API_KEYS is a comma-separated list of accepted keys.
func Load() (Config, error) {
	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", strings.ToLower), nil); err != nil {
		return Config{}, err
	}

	cfg := Config{
		ListenAddr: k.String("listen_addr"),
		DBURL:      strings.TrimSpace(k.String("db_url")),
		APIKeys:    map[string]bool{},

		CRMToken:        strings.TrimSpace(k.String("crm_token")),
		CRMPortalID:     strings.TrimSpace(k.String("crm_portal_id")),
		CRMFormID:       strings.TrimSpace(k.String("crm_form_id")),
		CRMBaseURL:      strings.TrimSpace(k.String("crm_base_url")),
		CRMFormsBaseURL: strings.TrimSpace(k.String("crm_forms_base_url")),
		CRMDisabled:     k.Bool("crm_disabled"),

		AnalyticsMeasurementID: strings.TrimSpace(k.String("analytics_measurement_id")),
		AnalyticsAPISecret:     strings.TrimSpace(k.String("analytics_api_secret")),
		AnalyticsDebug:         k.Bool("analytics_debug"),

		ForwardQueueDepth: k.Int("forward_queue_depth"),
		ForwardWorkers:    k.Int("forward_workers"),
		SinkTimeout:       k.Duration("sink_timeout"),
	}

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.DBURL == "" {
		return Config{}, errors.New("DB_URL required")
	}

	for _, key := range strings.Split(k.String("api_keys"), ",") {
		if key = strings.TrimSpace(key); key != "" {
			cfg.APIKeys[key] = true
		}
	}
	// Local dev fallback so the service runs out-of-the-box.
	if len(cfg.APIKeys) == 0 {
		cfg.APIKeys["dev-key-123"] = true
	}

	return cfg, nil
}

// CRMEnabled reports whether the CRM forwarding channel should run. Missing
// credentials behave exactly like the kill-switch: log once, skip silently.
func (c Config) CRMEnabled() bool {
	return !c.CRMDisabled && c.CRMToken != "" && c.CRMPortalID != "" && c.CRMFormID != ""
}

// CRMDirectoryEnabled reports whether the inbound CRM lookups (webhook
// reconciliation, submission sync) can run. The kill-switch does not apply:
// it scopes outbound forwarding only.
func (c Config) CRMDirectoryEnabled() bool {
	return c.CRMToken != ""
}

// AnalyticsEnabled reports whether the analytics channel has credentials.
func (c Config) AnalyticsEnabled() bool {
	return c.AnalyticsMeasurementID != "" && c.AnalyticsAPISecret != ""
}
