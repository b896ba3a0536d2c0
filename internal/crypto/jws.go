// Package crypto signs and verifies decode summaries with detached RS256
// JSON Web Signatures.
package crypto

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
)

const algRS256 = "RS256"

var (
	ErrNoPEM            = jwt.ErrKeyMustBePEMEncoded
	ErrPayloadMismatch  = errors.New("payload does not match signature")
	ErrUnsupportedAlg   = errors.New("unsupported jws algorithm")
	ErrInvalidSignature = errors.New("invalid signature")
)

// JWS is the flattened JSON serialization. Payload is empty for detached
// signatures.
type JWS struct {
	Protected string `json:"protected"`
	Payload   string `json:"payload,omitempty"`
	Signature string `json:"signature"`
}

type protectedHeader struct {
	Alg string `json:"alg"`
	Typ string `json:"typ,omitempty"`
	Cty string `json:"cty,omitempty"`
}

// SignDetachedJWS signs payload with an RSA private key (PKCS#1 or PKCS#8
// PEM). The payload itself is not embedded in the result.
func SignDetachedJWS(payload []byte, privateKeyPEM []byte) (JWS, error) {
	priv, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return JWS{}, fmt.Errorf("private key: %w", err)
	}
	hb, err := json.Marshal(protectedHeader{Alg: algRS256, Typ: "JOSE", Cty: "evt3-summary+json"})
	if err != nil {
		return JWS{}, err
	}
	protected := base64.RawURLEncoding.EncodeToString(hb)
	sig, err := jwt.SigningMethodRS256.Sign(signingInput(protected, payload), priv)
	if err != nil {
		return JWS{}, err
	}
	return JWS{
		Protected: protected,
		Signature: base64.RawURLEncoding.EncodeToString(sig),
	}, nil
}

// VerifyDetachedJWS checks sig against payload using a PEM certificate or
// PKIX public key.
func VerifyDetachedJWS(payload []byte, sig JWS, publicPEM []byte) error {
	pub, err := jwt.ParseRSAPublicKeyFromPEM(publicPEM)
	if err != nil {
		return fmt.Errorf("public key: %w", err)
	}
	hb, err := base64.RawURLEncoding.DecodeString(sig.Protected)
	if err != nil {
		return fmt.Errorf("protected header: %w", err)
	}
	var hdr protectedHeader
	if err := json.Unmarshal(hb, &hdr); err != nil {
		return fmt.Errorf("protected header: %w", err)
	}
	if hdr.Alg != algRS256 {
		return fmt.Errorf("%w: %q", ErrUnsupportedAlg, hdr.Alg)
	}
	if sig.Payload != "" && sig.Payload != base64.RawURLEncoding.EncodeToString(payload) {
		return ErrPayloadMismatch
	}
	raw, err := base64.RawURLEncoding.DecodeString(sig.Signature)
	if err != nil {
		return fmt.Errorf("signature: %w", err)
	}
	if err := jwt.SigningMethodRS256.Verify(signingInput(sig.Protected, payload), raw, pub); err != nil {
		return ErrInvalidSignature
	}
	return nil
}

// ParseDetachedJWS decodes a JWS JSON document.
func ParseDetachedJWS(b []byte) (JWS, error) {
	var sig JWS
	if err := json.Unmarshal(b, &sig); err != nil {
		return JWS{}, err
	}
	if sig.Protected == "" || sig.Signature == "" {
		return JWS{}, errors.New("jws missing protected header or signature")
	}
	return sig, nil
}

// SignFile signs the contents of payloadPath with the key at keyPath and
// writes the JWS JSON to outPath.
func SignFile(payloadPath, keyPath, outPath string) error {
	payload, err := os.ReadFile(payloadPath)
	if err != nil {
		return err
	}
	key, err := os.ReadFile(keyPath)
	if err != nil {
		return err
	}
	sig, err := SignDetachedJWS(payload, key)
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(sig, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(outPath, b, 0o644)
}

// VerifyFile verifies payloadPath against the JWS at sigPath and the
// certificate or public key at certPath.
func VerifyFile(payloadPath, sigPath, certPath string) error {
	payload, err := os.ReadFile(payloadPath)
	if err != nil {
		return err
	}
	sigBytes, err := os.ReadFile(sigPath)
	if err != nil {
		return err
	}
	sig, err := ParseDetachedJWS(sigBytes)
	if err != nil {
		return err
	}
	cert, err := os.ReadFile(certPath)
	if err != nil {
		return err
	}
	return VerifyDetachedJWS(payload, sig, cert)
}

func signingInput(protected string, payload []byte) string {
	return protected + "." + base64.RawURLEncoding.EncodeToString(payload)
}
