// Package mempool implements the Mempool collaborator from spec.md section
// 4.1: a pending-transaction pool ordered by fee density, indexed by
// sender nonce for replay-order enforcement, and tracking pending debits so
// a sender cannot queue more spend than their balance covers.
//
// The index shape is grounded on the teacher's chain/node/txpool.go
// (a transactions map plus a per-sender nonce index) and generalized per
// spec.md section 9's design note into an auxiliary min/max-heap so
// highest-fee-first draining is O(log n) instead of a full resort.
package mempool

import (
	"container/heap"
	"sync"
	"time"

	"github.com/sa2shinakamo2/bt2c-sub002/core/config"
	coreerrors "github.com/sa2shinakamo2/bt2c-sub002/core/errors"
	"github.com/sa2shinakamo2/bt2c-sub002/core/types"
)

// entry is one queued transaction plus the bookkeeping the priority heap
// and eviction sweep need.
type entry struct {
	tx       *types.Transaction
	queuedAt time.Time
	index    int // position in priorityHeap, maintained by container/heap
}

// priorityHeap orders entries by descending fee-per-byte, breaking ties in
// favor of the older transaction (first-seen-first-served among equal fee
// density), matching spec.md section 4.1's drain ordering.
type priorityHeap []*entry

func (h priorityHeap) Len() int { return len(h) }

func (h priorityHeap) Less(i, j int) bool {
	fi, fj := h[i].tx.FeePerByte(), h[j].tx.FeePerByte()
	if fi != fj {
		return fi > fj
	}
	return h[i].queuedAt.Before(h[j].queuedAt)
}

func (h priorityHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *priorityHeap) Push(x interface{}) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *priorityHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Mempool holds unconfirmed transactions awaiting inclusion in a block.
type Mempool struct {
	mu sync.Mutex

	cfg config.Config

	byHash    map[types.Hash]*entry
	byNonce   map[types.Address]map[uint64]*entry
	priority  priorityHeap
	totalSize int

	// pendingDebits tracks the sum of amount+fee for every queued
	// transaction per sender, whatever its type, so admission can
	// reject a transaction the sender cannot afford once everything
	// already queued is also applied.
	pendingDebits map[types.Address]types.Amount
}

// New returns an empty mempool governed by cfg.
func New(cfg config.Config) *Mempool {
	return &Mempool{
		cfg:           cfg,
		byHash:        make(map[types.Hash]*entry),
		byNonce:       make(map[types.Address]map[uint64]*entry),
		priority:      make(priorityHeap, 0),
		pendingDebits: make(map[types.Address]types.Amount),
	}
}

// maxFutureSkew and maxPastAge bound a transaction's admissible timestamp
// relative to the admitting node's clock, per spec.md section 3's
// [now-86400, now+300] freshness window.
const (
	maxPastAge    = 86400 * time.Second
	maxFutureSkew = 300 * time.Second
)

// Add admits tx into the pool. balance is the sender's current confirmed
// balance, used together with PendingDebits to bound queued spend.
// lastAcceptedNonce is the sender's last confirmed nonce on the chain (0 if
// none); tx must continue either that or the highest nonce already queued
// for the sender, so a nonce that skips ahead of both is rejected rather
// than silently admitted. now is the admitting node's clock, against which
// tx.Timestamp's freshness is checked.
//
// When the pool is full, Add evicts queued entries with a lower fee-per-byte
// than tx until tx fits, rather than rejecting outright, per spec.md section
// 4.1's "full mempool with lower fee-per-byte than the lowest-priority
// resident" reject condition (which implies the converse: a higher-priority
// newcomer displaces the lowest-priority resident).
func (m *Mempool) Add(tx *types.Transaction, balance types.Amount, lastAcceptedNonce uint64, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	h := tx.Hash()
	if _, exists := m.byHash[h]; exists {
		return coreerrors.New(coreerrors.KindDuplicateTx, "mempool.Add", nil)
	}

	if senderNonces, ok := m.byNonce[tx.Sender]; ok {
		if _, dup := senderNonces[tx.Nonce]; dup {
			return coreerrors.New(coreerrors.KindDuplicateTx, "mempool.Add", nil)
		}
	}

	if tx.Timestamp < now.Add(-maxPastAge).Unix() || tx.Timestamp > now.Add(maxFutureSkew).Unix() {
		return coreerrors.New(coreerrors.KindStaleTimestamp, "mempool.Add", nil)
	}

	expectedNonce := lastAcceptedNonce + 1
	if senderNonces, ok := m.byNonce[tx.Sender]; ok {
		var maxQueued uint64
		for n := range senderNonces {
			if n > maxQueued {
				maxQueued = n
			}
		}
		if maxQueued+1 > expectedNonce {
			expectedNonce = maxQueued + 1
		}
	}
	if tx.Nonce != expectedNonce {
		return coreerrors.New(coreerrors.KindInvalidNonce, "mempool.Add", nil)
	}

	size := tx.Size()
	if m.totalSize+size > m.cfg.MempoolMaxBytes {
		if !m.evictForSpaceLocked(tx, size) {
			return coreerrors.New(coreerrors.KindMempoolFull, "mempool.Add", nil)
		}
	}

	debit := tx.Amount.Add(tx.Fee)
	pending := m.pendingDebits[tx.Sender]
	if pending.Add(debit).Cmp(balance) > 0 {
		return coreerrors.New(coreerrors.KindInsufficientBalance, "mempool.Add", nil)
	}

	e := &entry{tx: tx, queuedAt: now}
	m.byHash[h] = e
	if m.byNonce[tx.Sender] == nil {
		m.byNonce[tx.Sender] = make(map[uint64]*entry)
	}
	m.byNonce[tx.Sender][tx.Nonce] = e
	heap.Push(&m.priority, e)
	m.totalSize += size
	m.pendingDebits[tx.Sender] = pending.Add(debit)

	return nil
}

// evictForSpaceLocked evicts the lowest fee-per-byte residents, one at a
// time, until size more bytes fit under MempoolMaxBytes, refusing to evict
// anything at or above tx's own fee-per-byte. Returns false, leaving the
// pool untouched, if tx cannot out-rank enough residents to make room.
// Callers must hold m.mu.
func (m *Mempool) evictForSpaceLocked(tx *types.Transaction, size int) bool {
	incoming := tx.FeePerByte()
	var evicted []*entry

	for m.totalSize+size > m.cfg.MempoolMaxBytes {
		if m.priority.Len() == 0 {
			break
		}
		worst := m.priority[0]
		for _, e := range m.priority[1:] {
			if e.tx.FeePerByte() < worst.tx.FeePerByte() {
				worst = e
			}
		}
		if worst.tx.FeePerByte() >= incoming {
			break
		}
		heap.Remove(&m.priority, worst.index)
		m.removeLocked(worst)
		evicted = append(evicted, worst)
	}

	if m.totalSize+size > m.cfg.MempoolMaxBytes {
		// Not enough lower-priority room freed up: restore what we evicted
		// and reject the newcomer instead.
		for _, e := range evicted {
			m.byHash[e.tx.Hash()] = e
			if m.byNonce[e.tx.Sender] == nil {
				m.byNonce[e.tx.Sender] = make(map[uint64]*entry)
			}
			m.byNonce[e.tx.Sender][e.tx.Nonce] = e
			heap.Push(&m.priority, e)
			m.totalSize += e.tx.Size()
			m.pendingDebits[e.tx.Sender] = m.pendingDebits[e.tx.Sender].Add(e.tx.Amount.Add(e.tx.Fee))
		}
		return false
	}
	return true
}

// Drain removes and returns up to maxCount transactions in descending
// fee-per-byte order, capped at maxBytes total size.
func (m *Mempool) Drain(maxCount, maxBytes int) []*types.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*types.Transaction, 0, maxCount)
	usedBytes := 0
	skipped := make([]*entry, 0)

	for len(out) < maxCount && m.priority.Len() > 0 {
		e := heap.Pop(&m.priority).(*entry)
		size := e.tx.Size()
		if usedBytes+size > maxBytes {
			skipped = append(skipped, e)
			continue
		}
		m.removeLocked(e)
		usedBytes += size
		out = append(out, e.tx)
	}
	for _, e := range skipped {
		heap.Push(&m.priority, e)
	}
	return out
}

// EvictExpired drops every transaction queued longer than
// cfg.MempoolExpirySec and returns their hashes.
func (m *Mempool) EvictExpired(now time.Time) []types.Hash {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := now.Add(-time.Duration(m.cfg.MempoolExpirySec) * time.Second)
	expired := make([]types.Hash, 0)
	for h, e := range m.byHash {
		if e.queuedAt.Before(cutoff) {
			expired = append(expired, h)
		}
	}
	for _, h := range expired {
		e := m.byHash[h]
		idx := e.index
		m.removeLocked(e)
		heap.Remove(&m.priority, idx)
	}
	return expired
}

// removeLocked deletes e from every index. Callers must hold m.mu and must
// separately heap.Remove/Pop e from m.priority (callers that already popped
// it, e.g. Drain, skip that step).
func (m *Mempool) removeLocked(e *entry) {
	h := e.tx.Hash()
	delete(m.byHash, h)
	if nonces, ok := m.byNonce[e.tx.Sender]; ok {
		delete(nonces, e.tx.Nonce)
		if len(nonces) == 0 {
			delete(m.byNonce, e.tx.Sender)
		}
	}
	m.totalSize -= e.tx.Size()
	debit := e.tx.Amount.Add(e.tx.Fee)
	if pending := m.pendingDebits[e.tx.Sender]; pending.Cmp(debit) > 0 {
		m.pendingDebits[e.tx.Sender] = pending.Sub(debit)
	} else {
		delete(m.pendingDebits, e.tx.Sender)
	}
}

// PendingDebits returns the sum of amount+fee across every transaction
// currently queued for sender.
func (m *Mempool) PendingDebits(sender types.Address) types.Amount {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.pendingDebits[sender]; ok {
		return v
	}
	return types.ZeroAmount
}

// Len reports how many transactions are currently queued.
func (m *Mempool) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byHash)
}

// Has reports whether a transaction with the given hash is queued.
func (m *Mempool) Has(h types.Hash) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byHash[h]
	return ok
}

// NextNonce returns one past the highest queued nonce for sender, or ok=false
// if the sender has nothing queued.
func (m *Mempool) NextNonce(sender types.Address) (nonce uint64, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	nonces, exists := m.byNonce[sender]
	if !exists || len(nonces) == 0 {
		return 0, false
	}
	var max uint64
	first := true
	for n := range nonces {
		if first || n > max {
			max = n
			first = false
		}
	}
	return max + 1, true
}
