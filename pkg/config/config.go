package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/cuemby/strata/pkg/log"
	"github.com/cuemby/strata/pkg/reconciler"
	"github.com/cuemby/strata/pkg/rewriting"
	"github.com/cuemby/strata/pkg/theme"
	"github.com/cuemby/strata/pkg/tracing"
)

// EnvPrefix prefixes every environment variable read by strata
const EnvPrefix = "strata"

// Config is the configuration of a strata node
type Config struct {
	Node       NodeConfig
	Log        log.Config
	Theme      theme.Config
	Rewriting  rewriting.Config
	Site       SiteConfig
	Tracing    tracing.Config
	Reconciler reconciler.Config
	TLS        TLSConfig
	// ContentTypes is an optional YAML file of extra content types
	ContentTypes string
}

// NodeConfig holds the addresses and storage of a node
type NodeConfig struct {
	ID         string
	BindAddr   string
	APIAddr    string
	SiteAddr   string
	HealthAddr string
	DataDir    string
	InMemory   bool
}

// SocketName is the file name of the local socket inside the data directory
const SocketName = "strata.sock"

// SocketPath is the local unix socket of the node
func (n NodeConfig) SocketPath() string {
	return filepath.Join(n.DataDir, SocketName)
}

// SiteConfig configures the public site
type SiteConfig struct {
	// RateLimit is the number of requests per second allowed per client,
	// zero disables limiting
	RateLimit float64
	Burst     int
	Cache     bool
	// Hosts maps a host name to the root page it serves
	Hosts map[string]string
	// TLSAddr serves HTTPS with ACME certificates when ACME is enabled
	TLSAddr string
	ACME    ACMEConfig
}

// ACMEConfig obtains certificates for the named site hosts
type ACMEConfig struct {
	Enabled bool
	Email   string
	// Directory overrides the ACME directory, e.g. a staging CA
	Directory string
}

// ACMEHosts are the site hosts certificates may be requested for
func (s SiteConfig) ACMEHosts() []string {
	hosts := make([]string, 0, len(s.Hosts))
	for host := range s.Hosts {
		if host != "*" && host != "" {
			hosts = append(hosts, host)
		}
	}
	slices.Sort(hosts)
	return hosts
}

// TLSConfig enables TLS on the TCP API with certificates from the node's
// own certificate authority
type TLSConfig struct {
	Enabled bool
	// Hosts are the names and addresses the certificate covers
	Hosts []string
}

// CertDir holds the API certificate and the CA certificate given to clients
func (n NodeConfig) CertDir() string {
	return filepath.Join(n.DataDir, "certs")
}

// LoadEnv reads .env and .env.local from the working directory when present
func LoadEnv() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")
}

// New returns a viper instance reading STRATA_ variables, with every default
// set
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault("node-id", "strata-1")
	v.SetDefault("bind-addr", "127.0.0.1:7946")
	v.SetDefault("api-addr", "127.0.0.1:8090")
	v.SetDefault("site-addr", "0.0.0.0:8080")
	v.SetDefault("health-addr", "127.0.0.1:9090")
	v.SetDefault("data-dir", "./strata-data")
	v.SetDefault("in-memory", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)

	t := theme.DefaultConfig()
	v.SetDefault("themes.dir", t.Dir)
	v.SetDefault("themes.default", t.Default)
	v.SetDefault("less.dirname", t.LessDir)
	v.SetDefault("less.gridconstant", t.GridConstantFile)
	v.SetDefault("less.gridcolumn", t.GridColumns)
	v.SetDefault("less.fonts", []string{})

	r := rewriting.DefaultConfig()
	v.SetDefault("rewriting.preserve-online", r.PreserveOnline)
	v.SetDefault("rewriting.preserve-unicity", r.PreserveUnicity)
	v.SetDefault("rewriting.scheme.root", r.Schemes.Root)
	v.SetDefault("rewriting.scheme.default", r.Schemes.Default)

	v.SetDefault("site.rate-limit", 20.0)
	v.SetDefault("site.burst", 40)
	v.SetDefault("site.cache", true)
	v.SetDefault("site.tls-addr", "0.0.0.0:8443")
	v.SetDefault("site.acme.enabled", false)

	v.SetDefault("tracing.exporter", tracing.ExporterNone)

	v.SetDefault("tls.enabled", false)
	v.SetDefault("tls.hosts", []string{"localhost", "127.0.0.1"})

	v.SetDefault("reconciler.interval", reconciler.DefaultInterval)
	v.SetDefault("reconciler.purge-grace", reconciler.DefaultPurgeGrace)
	return v
}

// BindFlags binds command line flags so they take precedence over the
// environment and the config file
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	return v.BindPFlags(flags)
}

// Load builds the configuration. A "config" key naming a YAML file is read
// first.
func Load(v *viper.Viper) (*Config, error) {
	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	cfg := &Config{
		Node: NodeConfig{
			ID:         v.GetString("node-id"),
			BindAddr:   v.GetString("bind-addr"),
			APIAddr:    v.GetString("api-addr"),
			SiteAddr:   v.GetString("site-addr"),
			HealthAddr: v.GetString("health-addr"),
			DataDir:    v.GetString("data-dir"),
			InMemory:   v.GetBool("in-memory"),
		},
		Log: log.Config{
			Level:      log.Level(v.GetString("log.level")),
			JSONOutput: v.GetBool("log.json"),
		},
		Theme: theme.Config{
			Dir:              v.GetString("themes.dir"),
			Default:          v.GetString("themes.default"),
			LessDir:          v.GetString("less.dirname"),
			GridConstantFile: v.GetString("less.gridconstant"),
			GridColumns:      v.GetInt("less.gridcolumn"),
			Fonts:            v.GetStringSlice("less.fonts"),
		},
		Rewriting: rewriting.Config{
			PreserveOnline:  v.GetBool("rewriting.preserve-online"),
			PreserveUnicity: v.GetBool("rewriting.preserve-unicity"),
			Schemes: rewriting.Schemes{
				Root:    v.GetString("rewriting.scheme.root"),
				Default: v.GetString("rewriting.scheme.default"),
				Content: v.GetStringMapString("rewriting.scheme.content"),
			},
		},
		Site: SiteConfig{
			RateLimit: v.GetFloat64("site.rate-limit"),
			Burst:     v.GetInt("site.burst"),
			Cache:     v.GetBool("site.cache"),
			Hosts:     v.GetStringMapString("site.hosts"),
			TLSAddr:   v.GetString("site.tls-addr"),
			ACME: ACMEConfig{
				Enabled:   v.GetBool("site.acme.enabled"),
				Email:     v.GetString("site.acme.email"),
				Directory: v.GetString("site.acme.directory"),
			},
		},
		Tracing: tracing.Config{
			ServiceName: "strata",
			Exporter:    v.GetString("tracing.exporter"),
		},
		Reconciler: reconciler.Config{
			Interval:   v.GetDuration("reconciler.interval"),
			PurgeGrace: v.GetDuration("reconciler.purge-grace"),
		},
		TLS: TLSConfig{
			Enabled: v.GetBool("tls.enabled"),
			Hosts:   v.GetStringSlice("tls.hosts"),
		},
		ContentTypes: v.GetString("content-types"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration
func (c *Config) Validate() error {
	var errs []error
	if c.Node.DataDir == "" {
		errs = append(errs, errors.New("data-dir is required"))
	}
	if c.Node.ID == "" {
		errs = append(errs, errors.New("node-id is required"))
	}
	for name, addr := range map[string]string{
		"bind-addr": c.Node.BindAddr,
		"api-addr":  c.Node.APIAddr,
		"site-addr": c.Node.SiteAddr,
	} {
		if addr == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
		}
	}
	if c.Theme.GridColumns <= 0 {
		errs = append(errs, fmt.Errorf("less.gridcolumn must be positive, got %d", c.Theme.GridColumns))
	}
	if c.Site.ACME.Enabled && len(c.Site.ACMEHosts()) == 0 {
		errs = append(errs, errors.New("site.acme.enabled needs named site.hosts"))
	}
	if c.Site.RateLimit < 0 {
		errs = append(errs, errors.New("site.rate-limit cannot be negative"))
	}
	if c.Reconciler.Interval < time.Second {
		errs = append(errs, fmt.Errorf("reconciler.interval must be at least 1s, got %s", c.Reconciler.Interval))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}
