package crypto

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"fmt"
)

// Sign produces an RSASSA-PKCS1-v1.5 signature over SHA-256(message). The
// PKCS1v15 padding is deterministic, so the same key and message always
// produce the same signature bytes.
func Sign(priv *rsa.PrivateKey, message []byte) ([]byte, error) {
	digest := sha256.Sum256(message)
	sig, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("sign message: %w", err)
	}
	return sig, nil
}

// Verify checks an RSASSA-PKCS1-v1.5 signature over SHA-256(message).
func Verify(pub *rsa.PublicKey, message, signature []byte) bool {
	digest := sha256.Sum256(message)
	return rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], signature) == nil
}

// PublicKeyDER returns the PKIX DER encoding of a public key, the canonical
// byte form hashed to derive an address.
func PublicKeyDER(pub *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}
	return der, nil
}

// PublicKeyFromDER parses a PKIX DER-encoded RSA public key, the inverse of
// PublicKeyDER, used to reconstitute a validator's key from a directory
// entry or a gossiped registration payload.
func PublicKeyFromDER(der []byte) (*rsa.PublicKey, error) {
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("parse public key: not an RSA key")
	}
	return rsaPub, nil
}
