package security

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"sync"
	"time"

	"github.com/cuemby/strata/pkg/storage"
)

// SettingCA is the setting key holding the sealed certificate authority
const SettingCA = "security.ca"

// Settings reads and writes replicated settings
type Settings interface {
	GetSetting(key string) (string, error)
	PutSetting(key, value string) error
}

// CertAuthority signs the certificates of the API listeners. Its key is
// replicated with the settings, sealed with a key that never leaves the
// data directory.
type CertAuthority struct {
	rootCert *x509.Certificate
	rootKey  *ecdsa.PrivateKey
	settings Settings
	sealer   *Sealer
	mu       sync.RWMutex
}

// caData is the setting form of the CA
type caData struct {
	RootCertDER []byte `json:"cert"`
	SealedKey   []byte `json:"key"`
}

const (
	// Root CA validity: 10 years
	rootCAValidity = 10 * 365 * 24 * time.Hour
	// Server certificate validity: 90 days
	serverCertValidity = 90 * 24 * time.Hour
)

// NewCertAuthority creates a certificate authority backed by settings
func NewCertAuthority(settings Settings, sealer *Sealer) *CertAuthority {
	return &CertAuthority{
		settings: settings,
		sealer:   sealer,
	}
}

// LoadOrInitialize loads the CA from the settings, creating and saving a new
// one the first time
func (ca *CertAuthority) LoadOrInitialize() error {
	err := ca.Load()
	if err == nil || !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	if err := ca.Initialize(); err != nil {
		return err
	}
	return ca.Save()
}

// Initialize generates a new root CA certificate
func (ca *CertAuthority) Initialize() error {
	ca.mu.Lock()
	defer ca.mu.Unlock()

	rootKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("failed to generate root key: %w", err)
	}

	serialNumber, err := newSerial()
	if err != nil {
		return err
	}

	template := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{"Strata"},
			CommonName:   "Strata Root CA",
		},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(rootCAValidity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		IsCA:                  true,
		BasicConstraintsValid: true,
		MaxPathLen:            1,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &rootKey.PublicKey, rootKey)
	if err != nil {
		return fmt.Errorf("failed to create root certificate: %w", err)
	}
	rootCert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return fmt.Errorf("failed to parse root certificate: %w", err)
	}

	ca.rootCert = rootCert
	ca.rootKey = rootKey
	return nil
}

// Load reads the CA from the settings
func (ca *CertAuthority) Load() error {
	ca.mu.Lock()
	defer ca.mu.Unlock()

	value, err := ca.settings.GetSetting(SettingCA)
	if err != nil {
		return fmt.Errorf("failed to get CA: %w", err)
	}

	var data caData
	if err := json.Unmarshal([]byte(value), &data); err != nil {
		return fmt.Errorf("failed to unmarshal CA data: %w", err)
	}

	keyDER, err := ca.sealer.Open(data.SealedKey)
	if err != nil {
		return fmt.Errorf("failed to decrypt root key: %w", err)
	}
	rootCert, err := x509.ParseCertificate(data.RootCertDER)
	if err != nil {
		return fmt.Errorf("failed to parse root certificate: %w", err)
	}
	rootKey, err := x509.ParseECPrivateKey(keyDER)
	if err != nil {
		return fmt.Errorf("failed to parse root key: %w", err)
	}

	ca.rootCert = rootCert
	ca.rootKey = rootKey
	return nil
}

// Save writes the CA to the settings
func (ca *CertAuthority) Save() error {
	ca.mu.RLock()
	defer ca.mu.RUnlock()

	if ca.rootCert == nil || ca.rootKey == nil {
		return fmt.Errorf("CA not initialized")
	}

	keyDER, err := x509.MarshalECPrivateKey(ca.rootKey)
	if err != nil {
		return fmt.Errorf("failed to marshal root key: %w", err)
	}
	sealed, err := ca.sealer.Seal(keyDER)
	if err != nil {
		return fmt.Errorf("failed to encrypt root key: %w", err)
	}

	data, err := json.Marshal(caData{RootCertDER: ca.rootCert.Raw, SealedKey: sealed})
	if err != nil {
		return fmt.Errorf("failed to marshal CA data: %w", err)
	}
	if err := ca.settings.PutSetting(SettingCA, string(data)); err != nil {
		return fmt.Errorf("failed to save CA: %w", err)
	}
	return nil
}

// IssueServerCertificate issues a certificate for the API of a node. hosts
// may mix DNS names and IP addresses.
func (ca *CertAuthority) IssueServerCertificate(nodeID string, hosts []string) (*tls.Certificate, error) {
	ca.mu.RLock()
	defer ca.mu.RUnlock()

	if ca.rootCert == nil || ca.rootKey == nil {
		return nil, fmt.Errorf("CA not initialized")
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate server key: %w", err)
	}
	serialNumber, err := newSerial()
	if err != nil {
		return nil, err
	}

	template := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{"Strata"},
			CommonName:   "api-" + nodeID,
		},
		NotBefore:   time.Now().Add(-time.Minute),
		NotAfter:    time.Now().Add(serverCertValidity),
		KeyUsage:    x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else if h != "" {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, ca.rootCert, &key.PublicKey, ca.rootKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create server certificate: %w", err)
	}
	leaf, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, fmt.Errorf("failed to parse server certificate: %w", err)
	}

	return &tls.Certificate{
		Certificate: [][]byte{certDER},
		PrivateKey:  key,
		Leaf:        leaf,
	}, nil
}

// VerifyCertificate verifies a server certificate against the root CA
func (ca *CertAuthority) VerifyCertificate(cert *x509.Certificate) error {
	ca.mu.RLock()
	defer ca.mu.RUnlock()

	if ca.rootCert == nil {
		return fmt.Errorf("CA not initialized")
	}
	return ValidateCertChain(cert, ca.rootCert)
}

// RootCert returns the root certificate, nil before initialization
func (ca *CertAuthority) RootCert() *x509.Certificate {
	ca.mu.RLock()
	defer ca.mu.RUnlock()
	return ca.rootCert
}

// RootCertPEM returns the root certificate in PEM form
func (ca *CertAuthority) RootCertPEM() []byte {
	root := ca.RootCert()
	if root == nil {
		return nil
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: root.Raw})
}

// IsInitialized returns true if the CA is initialized
func (ca *CertAuthority) IsInitialized() bool {
	ca.mu.RLock()
	defer ca.mu.RUnlock()
	return ca.rootCert != nil && ca.rootKey != nil
}

func newSerial() (*big.Int, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}
	return serial, nil
}
