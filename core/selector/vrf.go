package selector

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"math/big"
)

// VRFProof is a supplemental verifiable-randomness proof, additional to the
// spec's entropy-pool seed chain, grounded on the reference implementation's
// vrf.py (ECDSA-over-P256 signature plus an HMAC output hash). It lets an
// external auditor verify a validator's claimed priority for an epoch
// without trusting the validator's own report.
type VRFProof struct {
	R, S   *big.Int
	Output [32]byte
}

// VRFProvider proves and verifies VRF outputs for one validator's keypair.
type VRFProvider struct {
	priv *ecdsa.PrivateKey
}

// NewVRFProvider generates a fresh P256 keypair for VRF proofs.
func NewVRFProvider() (*VRFProvider, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("vrf keygen: %w", err)
	}
	return &VRFProvider{priv: priv}, nil
}

// PublicKey returns the provider's public key for verification.
func (p *VRFProvider) PublicKey() *ecdsa.PublicKey {
	return &p.priv.PublicKey
}

// Prove signs message with the provider's private key and derives a
// deterministic output hash from the signature, the VRF's pseudorandom
// output.
func (p *VRFProvider) Prove(message []byte) (VRFProof, error) {
	r, s, err := ecdsa.Sign(rand.Reader, p.priv, hashMessage(message))
	if err != nil {
		return VRFProof{}, fmt.Errorf("vrf prove: %w", err)
	}
	proof := VRFProof{R: r, S: s}
	proof.Output = hashProof(message, r, s)
	return proof, nil
}

// Verify checks that proof is a valid VRF output for message under pub.
func Verify(pub *ecdsa.PublicKey, message []byte, proof VRFProof) bool {
	if !ecdsa.Verify(pub, hashMessage(message), proof.R, proof.S) {
		return false
	}
	return hashProof(message, proof.R, proof.S) == proof.Output
}

func hashMessage(message []byte) []byte {
	h := sha256.Sum256(message)
	return h[:]
}

// hashProof combines the signature components with the message via HMAC,
// mirroring the reference implementation's hash-the-proof-with-the-message
// construction.
func hashProof(message []byte, r, s *big.Int) [32]byte {
	key := append(r.Bytes(), s.Bytes()...)
	mac := hmac.New(sha256.New, key)
	mac.Write(message)
	var out [32]byte
	copy(out[:], mac.Sum(nil))
	return out
}

// ProofToPriority converts a proof's output into a deterministic priority
// value combined with stake, matching the reference implementation's
// compute_validator_priority: the output read as a big-endian integer,
// multiplied by stakeUnits and reduced mod 2^256. Because of the reduction
// the result is not monotone in stake.
func ProofToPriority(proof VRFProof, stakeUnits uint64) *big.Int {
	outputInt := new(big.Int).SetBytes(proof.Output[:])
	priority := new(big.Int).Mul(outputInt, new(big.Int).SetUint64(stakeUnits))
	mod := new(big.Int).Lsh(big.NewInt(1), 256)
	return priority.Mod(priority, mod)
}
