package types

import (
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/sa2shinakamo2/bt2c-sub002/core/crypto"
)

// ZeroHashHex is the 64 hex-zero previous_hash carried by the genesis block.
var ZeroHashHex = strings.Repeat("0", HashSize*2)

// Block is a header plus its transaction list.
type Block struct {
	Height       uint64         `json:"height"`
	PreviousHash Hash           `json:"previous_hash"`
	MerkleRoot   Hash           `json:"merkle_root"`
	Timestamp    int64          `json:"timestamp"`
	Validator    Address        `json:"validator"`
	Nonce        uint64         `json:"nonce"`
	Transactions []*Transaction `json:"transactions"`
	Signature    []byte         `json:"signature,omitempty"`

	// Finalized is a serialized flag for a block beyond reorg depth. No code
	// in this repository sets it; core/chain reports finality per
	// transaction through GetTransactionWithFinality instead.
	Finalized bool `json:"finalized"`

	hash    Hash
	hashSet bool
}

// NewBlock computes the Merkle root over txs and returns an unsigned block.
func NewBlock(height uint64, previousHash Hash, timestamp int64, validator Address, nonce uint64, txs []*Transaction) *Block {
	b := &Block{
		Height:       height,
		PreviousHash: previousHash,
		Timestamp:    timestamp,
		Validator:    validator,
		Nonce:        nonce,
		Transactions: txs,
	}
	b.MerkleRoot = b.ComputeMerkleRoot()
	return b
}

// ComputeMerkleRoot recomputes the Merkle root from the current transaction
// list — pairwise SHA-256, duplicating the tail hash when the count is odd.
func (b *Block) ComputeMerkleRoot() Hash {
	if len(b.Transactions) == 0 {
		return ZeroHash
	}
	leaves := make([][crypto.HashSize]byte, len(b.Transactions))
	for i, tx := range b.Transactions {
		leaves[i] = [crypto.HashSize]byte(tx.Hash())
	}
	root := crypto.MerkleRoot(leaves)
	return Hash(root)
}

// CanonicalBytes returns the sorted-key JSON encoding of the block header
// excluding the validator signature — the bytes that are hashed and signed.
func (b *Block) CanonicalBytes() []byte {
	m := map[string]interface{}{
		"height":        strconv.FormatUint(b.Height, 10),
		"previous_hash": b.PreviousHash.Hex(),
		"merkle_root":   b.MerkleRoot.Hex(),
		"timestamp":     strconv.FormatInt(b.Timestamp, 10),
		"validator":     string(b.Validator),
		"nonce":         strconv.FormatUint(b.Nonce, 10),
	}
	data, err := json.Marshal(m)
	if err != nil {
		panic(fmt.Sprintf("block canonical encoding: %v", err))
	}
	return data
}

// Hash returns the SHA-256 digest of the block's canonical header bytes.
func (b *Block) Hash() Hash {
	if b.hashSet {
		return b.hash
	}
	h := crypto.SHA256(b.CanonicalBytes())
	b.hash = Hash(h)
	b.hashSet = true
	return b.hash
}

// Sign signs the block header with the proposer's private key.
func (b *Block) Sign(priv *rsa.PrivateKey) error {
	sig, err := crypto.Sign(priv, b.CanonicalBytes())
	if err != nil {
		return fmt.Errorf("sign block: %w", err)
	}
	b.Signature = sig
	b.hashSet = false
	return nil
}

// VerifySignature checks the proposer's signature over the block header.
func (b *Block) VerifySignature(pub *rsa.PublicKey) bool {
	if len(b.Signature) == 0 {
		return false
	}
	return crypto.Verify(pub, b.CanonicalBytes(), b.Signature)
}

// Size is the approximate wire size in bytes: header plus all transactions.
func (b *Block) Size() int {
	size := 8 + crypto.HashSize*2 + 8 + len(b.Validator) + 8 + len(b.Signature)
	for _, tx := range b.Transactions {
		size += tx.Size()
	}
	return size
}

// Difficulty is this block's contribution to accumulated chain difficulty:
// block bytes * (1 + tx count) * leading-zero-bits of the Merkle root, per
// spec.md §4.5's fork tie-break.
func (b *Block) Difficulty() uint64 {
	zeros := crypto.LeadingZeroBits([crypto.HashSize]byte(b.MerkleRoot))
	return uint64(b.Size()) * uint64(1+len(b.Transactions)) * uint64(zeros)
}
