// Package wallet implements the Wallet collaborator from spec.md section
// 4.7: deterministic BIP39-seeded RSA keypair derivation, address
// derivation, and transaction signing, composing core/crypto's primitives
// the way the teacher's cmd/quantum-node wallet bootstrap wires its own
// keygen and address derivation together.
package wallet

import (
	"crypto/rsa"
	"fmt"

	"github.com/sa2shinakamo2/bt2c-sub002/core/crypto"
	"github.com/sa2shinakamo2/bt2c-sub002/core/types"
)

// Wallet holds a validator or account keypair and its derived address.
type Wallet struct {
	priv    *rsa.PrivateKey
	address types.Address
}

// NewFromMnemonic derives a wallet deterministically from a BIP39 mnemonic
// and optional passphrase. The same mnemonic always yields the same
// address and the same signature for a given message (spec.md section 8
// invariant 5).
func NewFromMnemonic(mnemonic, passphrase string) (*Wallet, error) {
	priv, err := crypto.KeyFromMnemonic(mnemonic, passphrase)
	if err != nil {
		return nil, fmt.Errorf("derive wallet: %w", err)
	}
	der, err := crypto.PublicKeyDER(&priv.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("derive wallet address: %w", err)
	}
	return &Wallet{
		priv:    priv,
		address: types.NewAddress(der),
	}, nil
}

// Generate creates a brand-new wallet backed by a freshly generated
// mnemonic, returning both the wallet and the mnemonic so the caller can
// persist it for later recovery.
func Generate() (*Wallet, string, error) {
	mnemonic, err := crypto.NewMnemonic()
	if err != nil {
		return nil, "", fmt.Errorf("generate mnemonic: %w", err)
	}
	w, err := NewFromMnemonic(mnemonic, "")
	if err != nil {
		return nil, "", err
	}
	return w, mnemonic, nil
}

// Address returns the wallet's derived BT2C address.
func (w *Wallet) Address() types.Address {
	return w.address
}

// PublicKey returns the wallet's RSA public key, e.g. to hand to a peer
// for VerifySignature.
func (w *Wallet) PublicKey() *rsa.PublicKey {
	return &w.priv.PublicKey
}

// SignTransaction signs tx with the wallet's private key. The transaction
// must not already carry a signature from a different sender.
func (w *Wallet) SignTransaction(tx *types.Transaction) error {
	if tx.Sender != w.address {
		return fmt.Errorf("wallet: sender %s does not match wallet address %s", tx.Sender, w.address)
	}
	return tx.Sign(w.priv)
}

// SignBlock signs a block header as the proposer. Callers must ensure the
// wallet's address matches block.Validator.
func (w *Wallet) SignBlock(block *types.Block) error {
	if block.Validator != w.address {
		return fmt.Errorf("wallet: validator %s does not match wallet address %s", block.Validator, w.address)
	}
	return block.Sign(w.priv)
}

// Sign produces a raw signature over message, used by callers that need to
// sign data outside the Transaction/Block envelopes (e.g. VRF proofs or
// handshake challenges).
func (w *Wallet) Sign(message []byte) ([]byte, error) {
	return crypto.Sign(w.priv, message)
}
