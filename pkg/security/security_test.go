package security

import (
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/strata/pkg/storage"
)

type memSettings struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemSettings() *memSettings {
	return &memSettings{values: make(map[string]string)}
}

func (m *memSettings) GetSetting(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return "", fmt.Errorf("setting %s: %w", key, storage.ErrNotFound)
	}
	return v, nil
}

func (m *memSettings) PutSetting(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func newSealer(t *testing.T) *Sealer {
	t.Helper()
	key, err := LoadOrCreateKey(filepath.Join(t.TempDir(), "ca.seal"))
	require.NoError(t, err)
	s, err := NewSealer(key)
	require.NoError(t, err)
	return s
}

func TestSealer(t *testing.T) {
	s := newSealer(t)

	sealed, err := s.Seal([]byte("root key"))
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "root key")

	opened, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "root key", string(opened))

	sealed[len(sealed)-1] ^= 0xff
	_, err = s.Open(sealed)
	assert.Error(t, err)

	_, err = s.Open([]byte("short"))
	assert.Error(t, err)
	_, err = s.Seal(nil)
	assert.Error(t, err)

	_, err = NewSealer([]byte("too short"))
	assert.Error(t, err)
}

func TestLoadOrCreateKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "ca.seal")

	key, err := LoadOrCreateKey(path)
	require.NoError(t, err)
	assert.Len(t, key, KeySize)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	again, err := LoadOrCreateKey(path)
	require.NoError(t, err)
	assert.Equal(t, key, again)

	require.NoError(t, os.WriteFile(path, []byte("bad"), 0600))
	_, err = LoadOrCreateKey(path)
	assert.Error(t, err)
}

func TestCertAuthorityPersistsSealed(t *testing.T) {
	settings := newMemSettings()
	sealer := newSealer(t)

	ca := NewCertAuthority(settings, sealer)
	assert.False(t, ca.IsInitialized())
	require.NoError(t, ca.LoadOrInitialize())
	assert.True(t, ca.IsInitialized())
	assert.Contains(t, string(ca.RootCertPEM()), "BEGIN CERTIFICATE")

	stored, err := settings.GetSetting(SettingCA)
	require.NoError(t, err)
	assert.NotContains(t, stored, "PRIVATE")

	reloaded := NewCertAuthority(settings, sealer)
	require.NoError(t, reloaded.LoadOrInitialize())
	assert.Equal(t, ca.RootCert().Raw, reloaded.RootCert().Raw)

	other := NewCertAuthority(settings, newSealer(t))
	assert.Error(t, other.LoadOrInitialize())
}

func TestIssueServerCertificate(t *testing.T) {
	ca := NewCertAuthority(newMemSettings(), newSealer(t))
	_, err := ca.IssueServerCertificate("n1", nil)
	assert.Error(t, err)

	require.NoError(t, ca.Initialize())
	cert, err := ca.IssueServerCertificate("n1", []string{"localhost", "127.0.0.1", ""})
	require.NoError(t, err)

	assert.Equal(t, "api-n1", cert.Leaf.Subject.CommonName)
	assert.Equal(t, []string{"localhost"}, cert.Leaf.DNSNames)
	require.Len(t, cert.Leaf.IPAddresses, 1)
	assert.True(t, cert.Leaf.IPAddresses[0].Equal(net.ParseIP("127.0.0.1")))
	assert.NoError(t, ca.VerifyCertificate(cert.Leaf))
	assert.False(t, CertNeedsRotation(cert.Leaf))

	foreign := NewCertAuthority(newMemSettings(), newSealer(t))
	require.NoError(t, foreign.Initialize())
	assert.Error(t, foreign.VerifyCertificate(cert.Leaf))
}

func TestEnsureServerCert(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "certs")
	ca := NewCertAuthority(newMemSettings(), newSealer(t))
	require.NoError(t, ca.Initialize())

	first, err := EnsureServerCert(dir, ca, "n1", []string{"localhost"})
	require.NoError(t, err)
	assert.True(t, CertExists(dir))

	caCert, err := LoadCACertFromFile(CACertPath(dir))
	require.NoError(t, err)
	assert.Equal(t, ca.RootCert().Raw, caCert.Raw)

	// Reused while valid
	second, err := EnsureServerCert(dir, ca, "n1", []string{"localhost"})
	require.NoError(t, err)
	assert.Equal(t, first.Leaf.SerialNumber, second.Leaf.SerialNumber)

	// Reissued for a new host
	third, err := EnsureServerCert(dir, ca, "n1", []string{"localhost", "cms.example.com"})
	require.NoError(t, err)
	assert.NotEqual(t, first.Leaf.SerialNumber, third.Leaf.SerialNumber)
	assert.NoError(t, third.Leaf.VerifyHostname("cms.example.com"))

	// Reissued when the CA changes
	other := NewCertAuthority(newMemSettings(), newSealer(t))
	require.NoError(t, other.Initialize())
	fourth, err := EnsureServerCert(dir, other, "n1", []string{"localhost"})
	require.NoError(t, err)
	assert.NoError(t, other.VerifyCertificate(fourth.Leaf))
}

func TestTLSHandshake(t *testing.T) {
	dir := t.TempDir()
	ca := NewCertAuthority(newMemSettings(), newSealer(t))
	require.NoError(t, ca.Initialize())
	cert, err := EnsureServerCert(dir, ca, "n1", []string{"127.0.0.1"})
	require.NoError(t, err)

	lis, err := tls.Listen("tcp", "127.0.0.1:0", ServerTLSConfig(cert))
	require.NoError(t, err)
	defer lis.Close()

	go func() {
		conn, err := lis.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = conn.Write([]byte("ok"))
	}()

	clientCfg, err := ClientTLSConfig(CACertPath(dir))
	require.NoError(t, err)
	conn, err := tls.Dial("tcp", lis.Addr().String(), clientCfg)
	require.NoError(t, err)
	defer conn.Close()

	buf := make([]byte, 2)
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(buf))

	_, err = ClientTLSConfig(filepath.Join(dir, "missing.crt"))
	assert.Error(t, err)
}
