// Package slasher implements the Slasher collaborator from spec.md section
// 4.4: double-sign detection, invalid-block evidence collection, and
// Byzantine-behavior-window penalty escalation.
//
// Evidence persistence ahead of penalty application (spec.md section 7's
// "slashing evidence is persisted before penalties are applied so that a
// crash between the two replays safely") is grounded on the teacher's
// evidence-then-apply ordering in chain/consensus/multi_validator_consensus.go,
// generalized into an explicit Evidence record returned alongside the
// verdict so the caller can persist it via the Store collaborator before
// invoking ValidatorSet.ApplySlash.
package slasher

import (
	"sync"
	"time"

	"github.com/sa2shinakamo2/bt2c-sub002/core/types"
)

// EvidenceKind discriminates the misbehavior categories spec.md section 4.4
// names.
type EvidenceKind string

const (
	EvidenceDoubleSign        EvidenceKind = "DOUBLE_SIGN"
	EvidenceInvalidPrevHash    EvidenceKind = "INVALID_PREV_HASH"
	EvidenceInvalidBlockHash   EvidenceKind = "INVALID_BLOCK_HASH"
	EvidenceInvalidTxSignature EvidenceKind = "INVALID_TX_SIGNATURE"
	EvidenceByzantineBehavior  EvidenceKind = "BYZANTINE_BEHAVIOR"
)

// Evidence is a persisted record of one observed misbehavior event.
type Evidence struct {
	Kind      EvidenceKind
	Validator types.Address
	Height    uint64
	BlockA    types.Hash
	BlockB    types.Hash // zero for single-block evidence kinds
	ObservedAt time.Time
}

// Verdict is the slasher's recommendation for a piece of evidence: the
// penalty fraction of stake to slash (0 for a plain slash-point increment),
// whether the validator should be tombstoned outright, and whether it
// should be jailed immediately rather than through slash-point accrual.
type Verdict struct {
	Evidence     Evidence
	SlashFraction float64 // 0..1
	Tombstone    bool
	Jail         bool
}

// blockSeen tracks one validator's signed blocks at a given height, for
// double-sign detection.
type blockSeen struct {
	height    uint64
	blockHash types.Hash
}

// byzantineWindow tracks a validator's recent block validity outcomes for
// the Byzantine-behavior sliding window.
type byzantineWindow struct {
	outcomes []bool // true = block contained only valid transactions
}

const byzantineWindowSize = 20

// Slasher scans observed blocks for misbehavior and produces verdicts.
// It does not itself mutate ValidatorSet state — callers persist the
// returned Evidence first, then apply the Verdict via
// core/validator.Set.ApplySlash, per the crash-safety ordering in spec.md
// section 7.
type Slasher struct {
	mu sync.Mutex

	seenBlocks map[types.Address][]blockSeen
	windows    map[types.Address]*byzantineWindow
}

// New returns an empty Slasher.
func New() *Slasher {
	return &Slasher{
		seenBlocks: make(map[types.Address][]blockSeen),
		windows:    make(map[types.Address]*byzantineWindow),
	}
}

// ObserveBlock records a signed block from validator at height and checks
// for a double-sign: a second distinct block hash already seen at the same
// height from the same validator. Returns a Verdict if evidence is found.
func (s *Slasher) ObserveBlock(validator types.Address, height uint64, blockHash types.Hash, now time.Time) (*Verdict, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, seen := range s.seenBlocks[validator] {
		if seen.height == height && seen.blockHash != blockHash {
			return &Verdict{
				Evidence: Evidence{
					Kind:       EvidenceDoubleSign,
					Validator:  validator,
					Height:     height,
					BlockA:     seen.blockHash,
					BlockB:     blockHash,
					ObservedAt: now,
				},
				SlashFraction: 1.0,
				Tombstone:     true,
			}, true
		}
	}
	s.seenBlocks[validator] = append(s.seenBlocks[validator], blockSeen{height: height, blockHash: blockHash})
	return nil, false
}

// InvalidBlockEvidence records a graduated, 1-point incident for a
// malformed block: invalid previous hash, invalid block hash, or an
// invalid transaction signature found inside the block.
func InvalidBlockEvidence(kind EvidenceKind, validator types.Address, height uint64, blockHash types.Hash, now time.Time) Verdict {
	return Verdict{
		Evidence: Evidence{
			Kind:       kind,
			Validator:  validator,
			Height:     height,
			BlockA:     blockHash,
			ObservedAt: now,
		},
		SlashFraction: 0, // the slash-point increment alone comes from ApplySlash's bookkeeping
	}
}

// RecordBlockValidity feeds one block's validity outcome into the
// Byzantine-behavior sliding window for validator. If the fraction of
// invalid blocks over the window exceeds 30%, returns a 50%-stake-slash
// verdict (JAILED, or TOMBSTONED if residual stake would fall below
// MIN_STAKE — that final check is the caller's responsibility since it
// needs the validator's current stake).
func (s *Slasher) RecordBlockValidity(validator types.Address, height uint64, blockHash types.Hash, valid bool, now time.Time) (*Verdict, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[validator]
	if !ok {
		w = &byzantineWindow{}
		s.windows[validator] = w
	}
	w.outcomes = append(w.outcomes, valid)
	if len(w.outcomes) > byzantineWindowSize {
		w.outcomes = w.outcomes[len(w.outcomes)-byzantineWindowSize:]
	}

	if len(w.outcomes) < byzantineWindowSize {
		return nil, false
	}

	invalid := 0
	for _, o := range w.outcomes {
		if !o {
			invalid++
		}
	}
	fraction := float64(invalid) / float64(len(w.outcomes))
	if fraction <= 0.30 {
		return nil, false
	}

	// Reset the window after flagging so the same streak doesn't re-fire
	// every subsequent block.
	w.outcomes = nil

	return &Verdict{
		Evidence: Evidence{
			Kind:       EvidenceByzantineBehavior,
			Validator:  validator,
			Height:     height,
			BlockA:     blockHash,
			ObservedAt: now,
		},
		SlashFraction: 0.5,
		Jail:          true,
	}, true
}

// Forget drops tracking state for validator, used once it is tombstoned
// and can no longer produce blocks.
func (s *Slasher) Forget(validator types.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.seenBlocks, validator)
	delete(s.windows, validator)
}
