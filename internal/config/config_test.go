package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DB_URL", "postgres://localhost/leads")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "postgres://localhost/leads", cfg.DBURL)
	assert.True(t, cfg.APIKeys["dev-key-123"])
	assert.False(t, cfg.CRMEnabled())
	assert.False(t, cfg.AnalyticsEnabled())
}

func TestLoad_RequiresDBURL(t *testing.T) {
	t.Setenv("DB_URL", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_APIKeyList(t *testing.T) {
	t.Setenv("DB_URL", "postgres://localhost/leads")
	t.Setenv("API_KEYS", "key-a, key-b ,,key-c")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, map[string]bool{"key-a": true, "key-b": true, "key-c": true}, cfg.APIKeys)
	assert.False(t, cfg.APIKeys["dev-key-123"])
}

func TestLoad_FullStack(t *testing.T) {
	t.Setenv("DB_URL", "postgres://localhost/leads")
	t.Setenv("LISTEN_ADDR", ":9090")
	t.Setenv("CRM_TOKEN", "tok")
	t.Setenv("CRM_PORTAL_ID", "123")
	t.Setenv("CRM_FORM_ID", "form-1")
	t.Setenv("ANALYTICS_MEASUREMENT_ID", "G-TEST")
	t.Setenv("ANALYTICS_API_SECRET", "secret")
	t.Setenv("FORWARD_QUEUE_DEPTH", "512")
	t.Setenv("FORWARD_WORKERS", "8")
	t.Setenv("SINK_TIMEOUT", "5s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.True(t, cfg.CRMEnabled())
	assert.True(t, cfg.CRMDirectoryEnabled())
	assert.True(t, cfg.AnalyticsEnabled())
	assert.Equal(t, 512, cfg.ForwardQueueDepth)
	assert.Equal(t, 8, cfg.ForwardWorkers)
	assert.Equal(t, 5*time.Second, cfg.SinkTimeout)
}

// The kill-switch scopes outbound forwarding only; inbound CRM lookups keep
// working so webhooks still reconcile.
func TestKillSwitchScopesForwardingOnly(t *testing.T) {
	t.Setenv("DB_URL", "postgres://localhost/leads")
	t.Setenv("CRM_TOKEN", "tok")
	t.Setenv("CRM_PORTAL_ID", "123")
	t.Setenv("CRM_FORM_ID", "form-1")
	t.Setenv("CRM_DISABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.False(t, cfg.CRMEnabled())
	assert.True(t, cfg.CRMDirectoryEnabled())
}

func TestCRMEnabled_MissingCredentials(t *testing.T) {
	cases := []Config{
		{CRMPortalID: "123", CRMFormID: "form-1"},
		{CRMToken: "tok", CRMFormID: "form-1"},
		{CRMToken: "tok", CRMPortalID: "123"},
	}
	for _, c := range cases {
		assert.False(t, c.CRMEnabled())
	}
}
