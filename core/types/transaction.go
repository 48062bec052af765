package types

import (
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/sa2shinakamo2/bt2c-sub002/core/crypto"
)

// TxType discriminates the transaction payload, per spec.md section 3.
type TxType string

const (
	TxTransfer   TxType = "TRANSFER"
	TxStake      TxType = "STAKE"
	TxUnstake    TxType = "UNSTAKE"
	TxDelegate   TxType = "DELEGATE"
	TxUndelegate TxType = "UNDELEGATE"
	TxSlash      TxType = "SLASH"
	TxReward     TxType = "REWARD"
)

func (t TxType) Valid() bool {
	switch t {
	case TxTransfer, TxStake, TxUnstake, TxDelegate, TxUndelegate, TxSlash, TxReward:
		return true
	default:
		return false
	}
}

// Transaction is an immutable-once-hashed BT2C transaction. Construct with
// NewTransaction, then Sign before submitting to a mempool.
type Transaction struct {
	Sender    Address           `json:"sender"`
	Recipient Address           `json:"recipient"`
	Amount    Amount            `json:"amount"`
	Fee       Amount            `json:"fee"`
	Nonce     uint64            `json:"nonce"`
	Timestamp int64             `json:"timestamp"`
	Type      TxType            `json:"type"`
	Payload   map[string]string `json:"payload,omitempty"`
	Signature []byte            `json:"signature,omitempty"`

	hash    Hash
	hashSet bool
}

// NewTransaction builds an unsigned transaction.
func NewTransaction(sender, recipient Address, amount, fee Amount, nonce uint64, timestamp int64, typ TxType, payload map[string]string) *Transaction {
	return &Transaction{
		Sender:    sender,
		Recipient: recipient,
		Amount:    amount,
		Fee:       fee,
		Nonce:     nonce,
		Timestamp: timestamp,
		Type:      typ,
		Payload:   payload,
	}
}

// CanonicalBytes returns the sorted-key, whitespace-free JSON encoding of the
// transaction excluding the signature field — the bytes that are both
// hashed for tx.Hash() and signed by the sender.
func (tx *Transaction) CanonicalBytes() []byte {
	m := map[string]interface{}{
		"sender":    string(tx.Sender),
		"recipient": string(tx.Recipient),
		"amount":    tx.Amount.String(),
		"fee":       tx.Fee.String(),
		"nonce":     strconv.FormatUint(tx.Nonce, 10),
		"timestamp": strconv.FormatInt(tx.Timestamp, 10),
		"type":      string(tx.Type),
	}
	if len(tx.Payload) > 0 {
		m["payload"] = canonicalPayload(tx.Payload)
	}
	// encoding/json sorts map[string]interface{} keys lexicographically,
	// giving us the canonical sorted-key form with no extra whitespace.
	b, err := json.Marshal(m)
	if err != nil {
		// Every field above is a plain string; marshaling cannot fail.
		panic(fmt.Sprintf("canonical encoding: %v", err))
	}
	return b
}

// canonicalPayload re-keys the payload into a sorted map so nested encoding
// is deterministic too.
func canonicalPayload(payload map[string]string) map[string]string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(map[string]string, len(payload))
	for _, k := range keys {
		out[k] = payload[k]
	}
	return out
}

// Hash returns the SHA-256 digest of the canonical encoding (excluding
// signature), computed once and cached.
func (tx *Transaction) Hash() Hash {
	if tx.hashSet {
		return tx.hash
	}
	h := crypto.SHA256(tx.CanonicalBytes())
	tx.hash = Hash(h)
	tx.hashSet = true
	return tx.hash
}

// Sign signs the transaction's canonical bytes with priv and stores the
// resulting signature. System-sender transactions (REWARD/genesis) should
// not be signed; callers must not call Sign for those.
func (tx *Transaction) Sign(priv *rsa.PrivateKey) error {
	sig, err := crypto.Sign(priv, tx.CanonicalBytes())
	if err != nil {
		return fmt.Errorf("sign transaction: %w", err)
	}
	tx.Signature = sig
	tx.hashSet = false
	return nil
}

// VerifySignature checks the transaction's signature against pub. System
// senders always verify true since they carry no signature.
func (tx *Transaction) VerifySignature(pub *rsa.PublicKey) bool {
	if tx.Sender.IsSystemSender() {
		return true
	}
	if len(tx.Signature) == 0 {
		return false
	}
	return crypto.Verify(pub, tx.CanonicalBytes(), tx.Signature)
}

// Size returns the approximate wire size in bytes, used for mempool
// fee-per-byte prioritization and block-size accounting.
func (tx *Transaction) Size() int {
	size := len(tx.Sender) + len(tx.Recipient) + len(tx.Type) + len(tx.Signature) + 8 + 8
	size += len(tx.Amount.String()) + len(tx.Fee.String())
	for k, v := range tx.Payload {
		size += len(k) + len(v)
	}
	return size
}

// FeePerByte returns the transaction's fee density used for mempool
// priority ordering. Returns 0 if the transaction has zero size (never
// happens in practice, guarded for safety).
func (tx *Transaction) FeePerByte() float64 {
	size := tx.Size()
	if size == 0 {
		return 0
	}
	feeUnits := tx.Fee.Units()
	return float64(feeUnits.Uint64()) / float64(size)
}
