package main

import (
	"fmt"
	"net"
	"path/filepath"
	"slices"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/cuemby/strata/pkg/config"
	"github.com/cuemby/strata/pkg/log"
	"github.com/cuemby/strata/pkg/manager"
	"github.com/cuemby/strata/pkg/security"
)

// sealKeyFile seals the CA key kept in the replicated settings
const sealKeyFile = "ca.seal"

// apiServerOptions returns the TLS credentials of the TCP API when enabled
func apiServerOptions(cfg *config.Config, mgr *manager.Manager) ([]grpc.ServerOption, error) {
	if !cfg.TLS.Enabled {
		return nil, nil
	}

	key, err := security.LoadOrCreateKey(filepath.Join(cfg.Node.DataDir, sealKeyFile))
	if err != nil {
		return nil, err
	}
	sealer, err := security.NewSealer(key)
	if err != nil {
		return nil, err
	}
	ca := security.NewCertAuthority(mgr, sealer)
	if err := ca.LoadOrInitialize(); err != nil {
		return nil, fmt.Errorf("failed to load certificate authority: %v", err)
	}

	certDir := cfg.Node.CertDir()
	cert, err := security.EnsureServerCert(certDir, ca, cfg.Node.ID, tlsHosts(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to issue API certificate: %v", err)
	}

	lg := log.WithComponent("api")

	lg.Info().
		Time("expires", cert.Leaf.NotAfter).
		Str("ca_cert", security.CACertPath(certDir)).
		Msg("TLS enabled")
	return []grpc.ServerOption{grpc.Creds(credentials.NewTLS(security.ServerTLSConfig(cert)))}, nil
}

// tlsHosts adds the host of the API address to the configured hosts
func tlsHosts(cfg *config.Config) []string {
	hosts := slices.Clone(cfg.TLS.Hosts)
	if host, _, err := net.SplitHostPort(cfg.Node.APIAddr); err == nil {
		if host != "" && host != "0.0.0.0" && host != "::" && !slices.Contains(hosts, host) {
			hosts = append(hosts, host)
		}
	}
	return hosts
}
