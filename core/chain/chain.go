// Package chain implements the ChainManager collaborator from spec.md
// section 4.5: block append validation, multi-criterion fork resolution,
// finality tracking, and reorg handling.
//
// The maintained balance/nonce cache is grounded on the teacher's
// chain/node/blockchain.go StateDB (in-memory maps backed by a persistent
// store), narrowed from StateDB's full EVM storage/code/suicide bookkeeping
// down to the plain account-ledger fields spec.md section 3 calls for.
package chain

import (
	"bytes"
	"crypto/rsa"
	"sync"
	"time"

	coreerrors "github.com/sa2shinakamo2/bt2c-sub002/core/errors"
	"github.com/sa2shinakamo2/bt2c-sub002/core/mempool"
	"github.com/sa2shinakamo2/bt2c-sub002/core/reward"
	"github.com/sa2shinakamo2/bt2c-sub002/core/types"
)

// FinalityStatus is the confirmation state of a transaction per spec.md
// section 4.5.
type FinalityStatus string

const (
	FinalityPending       FinalityStatus = "PENDING"
	FinalityProbabilistic FinalityStatus = "PROBABILISTIC"
	FinalityFinal         FinalityStatus = "FINAL"
)

// TxLookup is the result of a finality-aware transaction query.
type TxLookup struct {
	Tx            *types.Transaction
	BlockHeight   uint64
	Confirmations uint64
	Status        FinalityStatus
}

// account is the derived balance/nonce view the manager maintains as an
// incrementally-updated cache over the confirmed chain.
type account struct {
	balance   types.Amount
	lastNonce uint64 // 0 means no transaction accepted yet
}

// Manager is the ChainManager collaborator. It exclusively owns the
// canonical chain (spec.md section 3's ownership rule).
type Manager struct {
	mu sync.Mutex

	finalityConfirmations int
	maxBlockBytes         int
	maxTxPerBlock         int

	blocks   []*types.Block // index i holds height i+1
	byHash   map[types.Hash]*types.Block
	accounts map[types.Address]*account

	rewardEngine *reward.Engine
}

// New returns a Manager seeded with genesis as height 1.
func New(genesis *types.Block, finalityConfirmations, maxBlockBytes, maxTxPerBlock int, rewardEngine *reward.Engine) (*Manager, error) {
	m := &Manager{
		finalityConfirmations: finalityConfirmations,
		maxBlockBytes:         maxBlockBytes,
		maxTxPerBlock:         maxTxPerBlock,
		byHash:                make(map[types.Hash]*types.Block),
		accounts:              make(map[types.Address]*account),
		rewardEngine:          rewardEngine,
	}
	if err := m.applyBlockLocked(genesis); err != nil {
		return nil, err
	}
	return m, nil
}

// Height returns the current chain height.
func (m *Manager) Height() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return uint64(len(m.blocks))
}

// Tip returns the current chain head.
func (m *Manager) Tip() *types.Block {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.blocks) == 0 {
		return nil
	}
	return m.blocks[len(m.blocks)-1]
}

// Balance returns sender's derived confirmed balance.
func (m *Manager) Balance(addr types.Address) types.Amount {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[addr]
	if !ok {
		return types.ZeroAmount
	}
	return a.balance
}

// Blocks returns a copy of the confirmed chain, for callers assembling a
// Chain candidate to hand to ResolveFork.
func (m *Manager) Blocks() []*types.Block {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*types.Block, len(m.blocks))
	copy(out, m.blocks)
	return out
}

// LastAcceptedNonce returns the last confirmed nonce for sender, 0 if none.
func (m *Manager) LastAcceptedNonce(addr types.Address) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[addr]
	if !ok {
		return 0
	}
	return a.lastNonce
}

// Append validates and appends block to the current tip.
func (m *Manager) Append(block *types.Block, proposerPub PublicKeyLookup, expectedSubsidy types.Amount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(block, proposerPub, expectedSubsidy)
}

// PublicKeyLookup resolves an address to the public key used to verify its
// transaction and block signatures. The chain package stays agnostic of
// key storage; callers (typically backed by a Store-backed key directory)
// supply this.
type PublicKeyLookup func(types.Address) (pub *rsa.PublicKey, ok bool)

func (m *Manager) appendLocked(block *types.Block, pubLookup PublicKeyLookup, expectedSubsidy types.Amount) error {
	tip := m.blocks[len(m.blocks)-1]

	if block.Height != tip.Height+1 {
		return coreerrors.New(coreerrors.KindBlockValidationFailed, "chain.Append", errHeightGap)
	}
	if block.PreviousHash != tip.Hash() {
		return coreerrors.New(coreerrors.KindBlockValidationFailed, "chain.Append", errPrevHashMismatch)
	}
	if block.Timestamp <= tip.Timestamp {
		return coreerrors.New(coreerrors.KindBlockValidationFailed, "chain.Append", errTimestampNotMonotonic)
	}
	if block.Size() > m.maxBlockBytes {
		return coreerrors.New(coreerrors.KindBlockValidationFailed, "chain.Append", errBlockTooLarge)
	}
	if len(block.Transactions) > m.maxTxPerBlock {
		return coreerrors.New(coreerrors.KindBlockValidationFailed, "chain.Append", errTooManyTx)
	}
	if block.ComputeMerkleRoot() != block.MerkleRoot {
		return coreerrors.New(coreerrors.KindBlockValidationFailed, "chain.Append", errMerkleMismatch)
	}

	pub, ok := pubLookup(block.Validator)
	if !ok {
		return coreerrors.New(coreerrors.KindInvalidSignature, "chain.Append", errUnknownValidatorKey)
	}
	if !block.VerifySignature(pub) {
		return coreerrors.New(coreerrors.KindInvalidSignature, "chain.Append", errBadBlockSignature)
	}

	if len(block.Transactions) == 0 {
		return coreerrors.New(coreerrors.KindBlockValidationFailed, "chain.Append", errMissingCoinbase)
	}
	coinbase := block.Transactions[0]
	if coinbase.Type != types.TxReward || !coinbase.Sender.IsSystemSender() {
		return coreerrors.New(coreerrors.KindBlockValidationFailed, "chain.Append", errMissingCoinbase)
	}
	if coinbase.Recipient != block.Validator {
		return coreerrors.New(coreerrors.KindBlockValidationFailed, "chain.Append", errCoinbaseRecipient)
	}

	var fees types.Amount
	for _, tx := range block.Transactions[1:] {
		fees = fees.Add(tx.Fee)
	}
	if coinbase.Amount.Cmp(expectedSubsidy.Add(fees)) != 0 {
		return coreerrors.New(coreerrors.KindBlockValidationFailed, "chain.Append", errBadSubsidy)
	}

	seenNonce := make(map[types.Address]uint64)
	for _, tx := range block.Transactions[1:] {
		txPub, txOk := pubLookup(tx.Sender)
		if !txOk {
			return coreerrors.New(coreerrors.KindInvalidSignature, "chain.Append", errUnknownSenderKey)
		}
		if !tx.VerifySignature(txPub) {
			return coreerrors.New(coreerrors.KindInvalidSignature, "chain.Append", errBadTxSignature)
		}
		expected, seen := seenNonce[tx.Sender]
		if !seen {
			expected = m.LastAcceptedNonceLocked(tx.Sender)
		}
		if tx.Nonce != expected+1 {
			return coreerrors.New(coreerrors.KindInvalidNonce, "chain.Append", errNonceGap)
		}
		seenNonce[tx.Sender] = tx.Nonce
	}

	return m.applyBlockLocked(block)
}

func (m *Manager) LastAcceptedNonceLocked(addr types.Address) uint64 {
	a, ok := m.accounts[addr]
	if !ok {
		return 0
	}
	return a.lastNonce
}

// applyBlockLocked appends block to the chain index and updates the
// derived account cache. Callers must hold m.mu.
func (m *Manager) applyBlockLocked(block *types.Block) error {
	for _, tx := range block.Transactions {
		if !tx.Sender.IsSystemSender() {
			sender := m.acctLocked(tx.Sender)
			debit := tx.Amount.Add(tx.Fee)
			if debit.Cmp(sender.balance) > 0 {
				return coreerrors.New(coreerrors.KindInsufficientBalance, "chain.applyBlock", nil)
			}
			sender.balance = sender.balance.Sub(debit)
			sender.lastNonce = tx.Nonce
		}
		if !tx.Recipient.IsSystemSender() {
			recipient := m.acctLocked(tx.Recipient)
			recipient.balance = recipient.balance.Add(tx.Amount)
		}
	}
	m.blocks = append(m.blocks, block)
	m.byHash[block.Hash()] = block
	return nil
}

func (m *Manager) acctLocked(addr types.Address) *account {
	a, ok := m.accounts[addr]
	if !ok {
		a = &account{}
		m.accounts[addr] = a
	}
	return a
}

// GetTransactionWithFinality returns the confirmation state of a
// previously-appended transaction by hash.
func (m *Manager) GetTransactionWithFinality(hash types.Hash) (TxLookup, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, b := range m.blocks {
		for _, tx := range b.Transactions {
			if tx.Hash() == hash {
				confirmations := uint64(len(m.blocks)) - b.Height + 1
				status := FinalityPending
				if confirmations >= 1 {
					status = FinalityProbabilistic
				}
				if confirmations >= uint64(m.finalityConfirmations) {
					status = FinalityFinal
				}
				return TxLookup{
					Tx:            tx,
					BlockHeight:   b.Height,
					Confirmations: confirmations,
					Status:        status,
				}, true
			}
		}
	}
	return TxLookup{}, false
}

// Chain is a read-only snapshot of a candidate chain used for fork
// resolution, independent of any Manager instance.
type Chain struct {
	Blocks          []*types.Block
	AccumulatedStake types.Amount
}

// ResolveFork implements spec.md section 4.5's tie-break order: longer
// chain wins; equal length -> higher accumulated validator stake; equal
// stake -> higher accumulated difficulty (summed block.Difficulty());
// equal -> lower average block time; final fallback is lexicographic tip
// hash.
func ResolveFork(a, b Chain) Chain {
	if len(a.Blocks) != len(b.Blocks) {
		if len(a.Blocks) > len(b.Blocks) {
			return a
		}
		return b
	}
	if cmp := a.AccumulatedStake.Cmp(b.AccumulatedStake); cmp != 0 {
		if cmp > 0 {
			return a
		}
		return b
	}
	diffA, diffB := accumulatedDifficulty(a.Blocks), accumulatedDifficulty(b.Blocks)
	if diffA != diffB {
		if diffA > diffB {
			return a
		}
		return b
	}
	avgA, avgB := averageBlockTime(a.Blocks), averageBlockTime(b.Blocks)
	if avgA != avgB {
		if avgA < avgB {
			return a
		}
		return b
	}
	tipA, tipB := tipHash(a.Blocks), tipHash(b.Blocks)
	if bytes.Compare(tipA[:], tipB[:]) <= 0 {
		return a
	}
	return b
}

func accumulatedDifficulty(blocks []*types.Block) uint64 {
	var total uint64
	for _, b := range blocks {
		total += b.Difficulty()
	}
	return total
}

func averageBlockTime(blocks []*types.Block) float64 {
	if len(blocks) < 2 {
		return 0
	}
	total := blocks[len(blocks)-1].Timestamp - blocks[0].Timestamp
	return float64(total) / float64(len(blocks)-1)
}

func tipHash(blocks []*types.Block) types.Hash {
	if len(blocks) == 0 {
		return types.ZeroHash
	}
	return blocks[len(blocks)-1].Hash()
}

// Reorg rolls back every block above the common ancestor height, applies
// newChain on top of the ancestor, and returns the transactions the
// rolled-back blocks contained. When mp is non-nil, each orphaned
// non-system transaction whose nonce is still next for its sender under
// the new head is resubmitted to mp.
func (m *Manager) Reorg(newChain []*types.Block, commonAncestorHeight uint64, mp *mempool.Mempool) ([]*types.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if commonAncestorHeight > uint64(len(m.blocks)) {
		return nil, coreerrors.New(coreerrors.KindForkDetected, "chain.Reorg", errBadAncestor)
	}

	var orphaned []*types.Transaction
	for i := uint64(len(m.blocks)); i > commonAncestorHeight; i-- {
		b := m.blocks[i-1]
		orphaned = append(orphaned, b.Transactions...)
		delete(m.byHash, b.Hash())
	}
	ancestorBlocks := m.blocks[:commonAncestorHeight]

	m.blocks = nil
	m.accounts = make(map[types.Address]*account)
	for _, b := range ancestorBlocks {
		if err := m.applyBlockLocked(b); err != nil {
			return nil, err
		}
	}

	for _, b := range newChain {
		if err := m.applyBlockLocked(b); err != nil {
			return nil, err
		}
	}

	if mp != nil {
		for _, tx := range orphaned {
			if tx.Sender.IsSystemSender() {
				continue
			}
			if tx.Nonce != m.LastAcceptedNonceLocked(tx.Sender)+1 {
				continue // superseded by a transaction already in the new chain
			}
			_ = mp.Add(tx, m.acctLocked(tx.Sender).balance, m.LastAcceptedNonceLocked(tx.Sender), time.Now())
		}
	}

	return orphaned, nil
}

var (
	errHeightGap             = chainError("block height does not follow tip")
	errPrevHashMismatch      = chainError("previous hash does not match tip")
	errTimestampNotMonotonic = chainError("block timestamp does not exceed previous block")
	errBlockTooLarge         = chainError("block exceeds max size")
	errTooManyTx             = chainError("block exceeds max transaction count")
	errMerkleMismatch        = chainError("merkle root does not match transactions")
	errBadBlockSignature     = chainError("block signature does not verify")
	errBadTxSignature        = chainError("transaction signature does not verify")
	errUnknownValidatorKey   = chainError("no known public key for block validator")
	errUnknownSenderKey      = chainError("no known public key for transaction sender")
	errMissingCoinbase       = chainError("block is missing a well-formed coinbase transaction")
	errCoinbaseRecipient     = chainError("coinbase recipient does not match block validator")
	errBadSubsidy            = chainError("coinbase amount does not match subsidy plus fees")
	errNonceGap              = chainError("transaction nonce is not contiguous")
	errBadAncestor           = chainError("common ancestor height exceeds chain length")
)

type chainError string

func (e chainError) Error() string { return string(e) }
