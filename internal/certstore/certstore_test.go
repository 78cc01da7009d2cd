package certstore

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// selfSignedPEM generates a throwaway self-signed ECDSA certificate and
// key, in the style of _examples/rustyguts-bken/server/tls.go, for use
// as a test fixture.
func selfSignedPEM(t *testing.T, cn string) (certPEM, keyPEM []byte) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		IsCA:         true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	if err != nil {
		t.Fatalf("CreateCertificate: %v", err)
	}
	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyDER, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		t.Fatalf("MarshalECPrivateKey: %v", err)
	}
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	return certPEM, keyPEM
}

func TestOpenLoadsServerIdentityAndCA(t *testing.T) {
	dir := t.TempDir()
	certPEM, keyPEM := selfSignedPEM(t, "gateway.local")
	caPEM, _ := selfSignedPEM(t, "test-ca")

	if err := os.WriteFile(filepath.Join(dir, "server.crt"), certPEM, 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "server.key"), keyPEM, 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "ca.crt"), caPEM, 0o600); err != nil {
		t.Fatal(err)
	}

	store, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	cert, err := store.ActiveServerIdentity()
	if err != nil {
		t.Fatalf("ActiveServerIdentity: %v", err)
	}
	if len(cert.Certificate) == 0 {
		t.Fatal("expected a loaded certificate")
	}

	if pool := store.ClientCAAnchors(); pool == nil {
		t.Fatal("expected a non-nil client CA pool")
	}
}

func TestOpenWithoutServerIdentityReturnsNotConfigured(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	_, err = store.ActiveServerIdentity()
	if err == nil {
		t.Fatal("expected an error with no server identity present")
	}
	var certErr *Error
	if !asError(err, &certErr) || certErr.Kind != KindNotConfigured {
		t.Fatalf("expected KindNotConfigured, got %v", err)
	}
	if store.ClientCAAnchors() != nil {
		t.Fatal("expected nil client CA pool when ca.crt is absent")
	}
}

func asError(err error, target **Error) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	*target = e
	return true
}
