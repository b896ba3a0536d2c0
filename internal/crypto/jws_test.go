package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testKeys(t *testing.T) (privPEM, pubPEM, certPEM []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	privPEM = pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("MarshalPKIXPublicKey: %v", err)
	}
	pubPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "evt3gate test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("CreateCertificate: %v", err)
	}
	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	return privPEM, pubPEM, certPEM
}

func TestSignAndVerify(t *testing.T) {
	priv, pub, cert := testKeys(t)
	payload := []byte(`{"name":"cam.raw","sha256":"abc"}`)
	sig, err := SignDetachedJWS(payload, priv)
	if err != nil {
		t.Fatalf("SignDetachedJWS: %v", err)
	}
	if sig.Payload != "" {
		t.Fatalf("detached signature should not embed the payload")
	}
	for name, key := range map[string][]byte{"public key": pub, "certificate": cert} {
		if err := VerifyDetachedJWS(payload, sig, key); err != nil {
			t.Fatalf("verify with %s: %v", name, err)
		}
	}
	if err := VerifyDetachedJWS([]byte(`{"name":"other"}`), sig, pub); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("tampered payload: expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifyRejectsOtherAlgorithms(t *testing.T) {
	_, pub, _ := testKeys(t)
	sig := JWS{Protected: "eyJhbGciOiJub25lIn0", Signature: "AA"}
	if err := VerifyDetachedJWS([]byte("x"), sig, pub); !errors.Is(err, ErrUnsupportedAlg) {
		t.Fatalf("expected ErrUnsupportedAlg, got %v", err)
	}
}

func TestSignFileRoundTrip(t *testing.T) {
	priv, _, cert := testKeys(t)
	dir := t.TempDir()
	write := func(name string, b []byte) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, b, 0o600); err != nil {
			t.Fatalf("WriteFile %s: %v", name, err)
		}
		return p
	}
	payload := write("summary.json", []byte(`{"events":4}`))
	key := write("key.pem", priv)
	certPath := write("cert.pem", cert)
	sigPath := filepath.Join(dir, "summary.json.jws")

	if err := SignFile(payload, key, sigPath); err != nil {
		t.Fatalf("SignFile: %v", err)
	}
	if err := VerifyFile(payload, sigPath, certPath); err != nil {
		t.Fatalf("VerifyFile: %v", err)
	}
	write("summary.json", []byte(`{"events":5}`))
	if err := VerifyFile(payload, sigPath, certPath); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature after edit, got %v", err)
	}
}

func TestParseKeyErrors(t *testing.T) {
	if _, err := SignDetachedJWS([]byte("x"), []byte("not pem")); !errors.Is(err, ErrNoPEM) {
		t.Fatalf("expected ErrNoPEM, got %v", err)
	}
	if _, err := ParseDetachedJWS([]byte(`{"protected":""}`)); err == nil {
		t.Fatal("expected error for incomplete jws")
	}
}
