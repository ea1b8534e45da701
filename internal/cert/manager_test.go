package cert

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"
)

func genCertAndKey(t *testing.T) (certPEM, keyPEM []byte) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "test"},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(24 * time.Hour),
	}
	certDER, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	keyBytes, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyBytes})
	return certPEM, keyPEM
}

func TestLoadValidPair(t *testing.T) {
	certPEM, keyPEM := genCertAndKey(t)
	m, err := Load(certPEM, keyPEM)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(m.Certificate().Certificate) == 0 {
		t.Fatal("expected a non-empty certificate chain")
	}
}

func TestLoadRejectsMismatchedPair(t *testing.T) {
	certPEM, _ := genCertAndKey(t)
	_, err := Load(certPEM, []byte("not a key"))
	if err == nil {
		t.Fatal("expected an error for an invalid key")
	}
}

func TestTLSConfigUsesTLS13AndPresentsCertificate(t *testing.T) {
	certPEM, keyPEM := genCertAndKey(t)
	m, err := Load(certPEM, keyPEM)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg := m.TLSConfig()
	if cfg.MinVersion != tls.VersionTLS13 {
		t.Fatalf("expected TLS 1.3 minimum, got %x", cfg.MinVersion)
	}
	if len(cfg.Certificates) != 1 {
		t.Fatalf("expected exactly one certificate, got %d", len(cfg.Certificates))
	}
}
