package site

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/crypto/acme"
	"golang.org/x/crypto/acme/autocert"

	"github.com/cuemby/strata/pkg/storage"
)

// acmeSettingPrefix namespaces ACME data in the settings
const acmeSettingPrefix = "acme/"

// Settings reads and writes replicated settings
type Settings interface {
	GetSetting(key string) (string, error)
	PutSetting(key, value string) error
}

// ACMEConfig obtains certificates for the site hosts with HTTP-01 challenges
type ACMEConfig struct {
	Email string
	// DirectoryURL defaults to Let's Encrypt production
	DirectoryURL string
	// Hosts are the only names certificates are requested for
	Hosts []string
}

// CertCache keeps the ACME account key, certificates and pending challenge
// tokens in the replicated settings
type CertCache struct {
	settings Settings
}

// NewCertCache creates a cache over settings
func NewCertCache(settings Settings) *CertCache {
	return &CertCache{settings: settings}
}

// Get implements autocert.Cache
func (c *CertCache) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := c.settings.GetSetting(acmeSettingPrefix + key)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && value == "") {
		return nil, autocert.ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	return base64.StdEncoding.DecodeString(value)
}

// Put implements autocert.Cache
func (c *CertCache) Put(ctx context.Context, key string, data []byte) error {
	return c.settings.PutSetting(acmeSettingPrefix+key, base64.StdEncoding.EncodeToString(data))
}

// Delete implements autocert.Cache. Settings cannot be removed, an empty
// value reads as a miss.
func (c *CertCache) Delete(ctx context.Context, key string) error {
	return c.settings.PutSetting(acmeSettingPrefix+key, "")
}

// NewACMEManager creates the certificate manager of the site
func NewACMEManager(cfg ACMEConfig, cache autocert.Cache) (*autocert.Manager, error) {
	if len(cfg.Hosts) == 0 {
		return nil, fmt.Errorf("ACME needs at least one site host")
	}
	m := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		Cache:      cache,
		HostPolicy: autocert.HostWhitelist(cfg.Hosts...),
		Email:      cfg.Email,
	}
	if cfg.DirectoryURL != "" {
		m.Client = &acme.Client{DirectoryURL: cfg.DirectoryURL}
	}
	return m, nil
}

// EnableACME answers HTTP-01 challenges on the plain listener and lets
// StartTLS serve certificates obtained by m. Call it before Start.
func (s *Server) EnableACME(m *autocert.Manager) {
	s.acme = m
}

// httpHandler is the handler of the plain listener
func (s *Server) httpHandler() http.Handler {
	if s.acme != nil {
		return s.acme.HTTPHandler(s.engine)
	}
	return s.engine
}

// StartTLS serves the site over HTTPS on addr until Shutdown
func (s *Server) StartTLS(addr string) error {
	if s.acme == nil {
		return fmt.Errorf("ACME is not enabled")
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %v", err)
	}

	tlsConfig := s.acme.TLSConfig()
	tlsConfig.MinVersion = tls.VersionTLS12
	srv := &http.Server{
		Handler:           s.engine,
		TLSConfig:         tlsConfig,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if !s.track(srv) {
		lis.Close()
		return nil
	}

	s.logger.Info().Str("addr", addr).Msg("Site listening with TLS")
	if err := srv.ServeTLS(lis, "", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
