package crypto

import (
	"crypto/rsa"
	"crypto/sha512"
	"fmt"

	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
)

// RSAKeyBits is the modulus size used for every BT2C wallet key.
const RSAKeyBits = 2048

// NewMnemonic generates a fresh 24-word BIP39 mnemonic from 256 bits of
// entropy, exactly as the original wallet key manager does.
func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", fmt.Errorf("generate entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("derive mnemonic: %w", err)
	}
	return mnemonic, nil
}

// ValidMnemonic reports whether the phrase is a well-formed BIP39 mnemonic.
func ValidMnemonic(mnemonic string) bool {
	return bip39.IsMnemonicValid(mnemonic)
}

// SeedFromMnemonic derives the 64-byte BIP39 seed via PBKDF2-HMAC-SHA512,
// 2048 rounds, salt "mnemonic"+passphrase — the standard BIP39 key
// stretching function, reproduced explicitly (rather than delegated to
// bip39.NewSeed) so the derivation is auditable at the call site.
func SeedFromMnemonic(mnemonic, passphrase string) []byte {
	salt := "mnemonic" + passphrase
	return pbkdf2.Key([]byte(mnemonic), []byte(salt), 2048, 64, sha512.New)
}

// DeterministicRSAKey drives an RSA-2048 keypair generator from a BIP39 seed:
// the seed is hashed with SHA-512 and expanded via HKDF into the pseudo-random
// stream consumed by rsa.GenerateKey, so the same seed phrase always yields
// byte-identical key material.
func DeterministicRSAKey(seed []byte) (*rsa.PrivateKey, error) {
	digest := sha512.Sum512(seed)
	stream := hkdf.New(sha512.New, digest[:], nil, []byte("bt2c-rsa-keygen-v1"))

	key, err := rsa.GenerateKey(stream, RSAKeyBits)
	if err != nil {
		return nil, fmt.Errorf("generate deterministic RSA key: %w", err)
	}
	return key, nil
}

// KeyFromMnemonic is the end-to-end deterministic derivation: mnemonic ->
// BIP39 seed -> RSA-2048 keypair. Calling it twice with the same mnemonic and
// passphrase always returns byte-identical keys.
func KeyFromMnemonic(mnemonic, passphrase string) (*rsa.PrivateKey, error) {
	if !ValidMnemonic(mnemonic) {
		return nil, fmt.Errorf("invalid BIP39 mnemonic")
	}
	seed := SeedFromMnemonic(mnemonic, passphrase)
	return DeterministicRSAKey(seed)
}
