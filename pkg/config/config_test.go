package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/strata/pkg/log"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(New())
	require.NoError(t, err)

	assert.Equal(t, "strata-1", cfg.Node.ID)
	assert.Equal(t, "./strata-data", cfg.Node.DataDir)
	assert.Equal(t, filepath.Join("strata-data", "strata.sock"), cfg.Node.SocketPath())
	assert.Equal(t, log.InfoLevel, cfg.Log.Level)
	assert.Equal(t, 12, cfg.Theme.GridColumns)
	assert.Equal(t, "less", cfg.Theme.LessDir)
	assert.True(t, cfg.Rewriting.PreserveOnline)
	assert.Equal(t, "$parent/$title", cfg.Rewriting.Schemes.Default)
	assert.Equal(t, 10*time.Second, cfg.Reconciler.Interval)
	assert.True(t, cfg.Site.Cache)
	assert.False(t, cfg.TLS.Enabled)
	assert.Equal(t, []string{"localhost", "127.0.0.1"}, cfg.TLS.Hosts)
	assert.Equal(t, filepath.Join("strata-data", "certs"), cfg.Node.CertDir())
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("STRATA_DATA_DIR", "/var/lib/strata")
	t.Setenv("STRATA_LESS_GRIDCOLUMN", "16")
	t.Setenv("STRATA_SITE_RATE_LIMIT", "5")
	t.Setenv("STRATA_TLS_ENABLED", "true")

	cfg, err := Load(New())
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/strata", cfg.Node.DataDir)
	assert.Equal(t, 16, cfg.Theme.GridColumns)
	assert.Equal(t, 5.0, cfg.Site.RateLimit)
	assert.True(t, cfg.TLS.Enabled)
}

func TestLoadFlagsOverride(t *testing.T) {
	t.Setenv("STRATA_NODE_ID", "from-env")

	flags := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	flags.String("node-id", "", "")
	require.NoError(t, flags.Parse([]string{"--node-id=from-flag"}))

	v := New()
	require.NoError(t, BindFlags(v, flags))
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "from-flag", cfg.Node.ID)
}

func TestLoadConfigFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "strata.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
rewriting:
  preserve-online: false
  scheme:
    content:
      Article: $parent/$content->title
site:
  hosts:
    www.example.com: home
    "*": fallback
  acme:
    enabled: true
    email: ops@example.com
less:
  fonts: [Roboto, Lato]
`), 0644))

	v := New()
	v.Set("config", file)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.False(t, cfg.Rewriting.PreserveOnline)
	assert.Equal(t, map[string]string{"article": "$parent/$content->title"}, cfg.Rewriting.Schemes.Content)
	assert.Equal(t, "home", cfg.Site.Hosts["www.example.com"])
	assert.True(t, cfg.Site.ACME.Enabled)
	assert.Equal(t, "ops@example.com", cfg.Site.ACME.Email)
	assert.Equal(t, []string{"www.example.com"}, cfg.Site.ACMEHosts())
	assert.Equal(t, []string{"Roboto", "Lato"}, cfg.Theme.Fonts)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"no data dir", func(c *Config) { c.Node.DataDir = "" }, "data-dir is required"},
		{"no api addr", func(c *Config) { c.Node.APIAddr = "" }, "api-addr is required"},
		{"grid columns", func(c *Config) { c.Theme.GridColumns = 0 }, "less.gridcolumn must be positive"},
		{"rate limit", func(c *Config) { c.Site.RateLimit = -1 }, "site.rate-limit cannot be negative"},
		{"acme hosts", func(c *Config) { c.Site.ACME.Enabled = true }, "site.acme.enabled needs named site.hosts"},
		{"interval", func(c *Config) { c.Reconciler.Interval = time.Millisecond }, "reconciler.interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(New())
			require.NoError(t, err)
			tt.modify(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
