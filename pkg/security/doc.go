/*
Package security provides the optional TLS layer of the strata API.

A node with tls.enabled set keeps a private certificate authority in the
replicated settings (key SettingCA). The CA private key is sealed with
AES-256-GCM under a key file that stays in the node's data directory, so a
database backup alone does not expose it.

At startup EnsureServerCert loads or issues the API certificate:

	key, _ := security.LoadOrCreateKey(filepath.Join(dataDir, "ca.seal"))
	sealer, _ := security.NewSealer(key)
	ca := security.NewCertAuthority(mgr, sealer)
	_ = ca.LoadOrInitialize()
	cert, _ := security.EnsureServerCert(certDir, ca, nodeID, []string{"localhost", "127.0.0.1"})

Certificates are reissued when fewer than 30 days remain, when the CA
changed, or when a configured host is not covered. Clients trust the
written ca.crt through ClientTLSConfig. Session tokens still authenticate
every call; TLS only protects them in transit.
*/
package security
