// Package scenarios exercises scenarios S1-S3, S5 and S6 from spec.md
// section 8 against real components rather than mocks of their
// interfaces; there is no S4 test here.
package scenarios_test

import (
	"testing"
	"time"

	coreerrors "github.com/sa2shinakamo2/bt2c-sub002/core/errors"
	"github.com/sa2shinakamo2/bt2c-sub002/core/mempool"

	"github.com/sa2shinakamo2/bt2c-sub002/core/config"
	"github.com/sa2shinakamo2/bt2c-sub002/core/slasher"
	"github.com/sa2shinakamo2/bt2c-sub002/core/types"
	"github.com/sa2shinakamo2/bt2c-sub002/core/validator"
	"github.com/sa2shinakamo2/bt2c-sub002/core/wallet"
)

// S1 — Replay attack: submit a tx, confirm admission, resubmit the
// identical tx. The second submission must be rejected as a duplicate.
func TestS1ReplayAttackRejectsResubmission(t *testing.T) {
	cfg := config.Default(config.Testnet)
	mp := mempool.New(cfg)

	a := types.Address("bt2c_accounta_accounta_accounta")
	tx := types.NewTransaction(a, types.Address("bt2c_accountb_accountb_accountb"), types.MustParseAmount("5"), types.MustParseAmount("0.01"), 1, time.Now().Unix(), types.TxTransfer, nil)
	now := time.Now()

	if err := mp.Add(tx, types.MustParseAmount("10"), 0, now); err != nil {
		t.Fatalf("first submission: %v", err)
	}
	err := mp.Add(tx, types.MustParseAmount("10"), 0, now)
	if err == nil {
		t.Fatal("expected the resubmitted transaction to be rejected")
	}
	if !coreerrors.Is(err, coreerrors.KindDuplicateTx) {
		t.Errorf("resubmission error = %v, want KindDuplicateTx", err)
	}
}

// S2 — Double-spend: account A has balance 10; submit (A->B, 8, nonce=1)
// then (A->C, 8, nonce=2). Exactly one is accepted; the second is rejected
// once pending debit is counted against the confirmed balance.
func TestS2DoubleSpendRejectsSecondOverdraft(t *testing.T) {
	cfg := config.Default(config.Testnet)
	mp := mempool.New(cfg)
	balance := types.MustParseAmount("10")

	a := types.Address("bt2c_accounta_accounta_accounta")
	tx1 := types.NewTransaction(a, types.Address("bt2c_accountb_accountb_accountb"), types.MustParseAmount("8"), types.ZeroAmount, 1, time.Now().Unix(), types.TxTransfer, nil)
	tx2 := types.NewTransaction(a, types.Address("bt2c_accountc_accountc_accountc"), types.MustParseAmount("8"), types.ZeroAmount, 2, time.Now().Unix(), types.TxTransfer, nil)
	now := time.Now()

	err1 := mp.Add(tx1, balance, 0, now)
	err2 := mp.Add(tx2, balance, 0, now)

	if err1 != nil && err2 != nil {
		t.Fatal("expected exactly one of the two conflicting transactions to be admitted")
	}
	if err1 == nil && err2 == nil {
		t.Fatal("expected the second transaction to be rejected once pending debit is counted")
	}
	if err2 != nil && !coreerrors.Is(err2, coreerrors.KindInsufficientBalance) {
		t.Errorf("second transaction error = %v, want KindInsufficientBalance", err2)
	}
}

// S3 — Double-sign slashing: validator V with stake 100 signs two distinct
// blocks at height H. Feeding both to the Slasher and applying its verdict
// must zero V's stake, tombstone it, and remove it from the active set.
func TestS3DoubleSignTombstonesValidator(t *testing.T) {
	cfg := config.Default(config.Testnet)
	vs := validator.New(cfg, time.Unix(0, 0))
	s := slasher.New()
	now := time.Now()

	v := types.Address("bt2c_validator_v_validator_v_va")
	if err := vs.Register(v, types.MustParseAmount("100"), now); err != nil {
		t.Fatalf("Register: %v", err)
	}

	blockA := types.BytesToHash([]byte("block-at-height-H-variant-a"))
	blockB := types.BytesToHash([]byte("block-at-height-H-variant-b"))

	if _, found := s.ObserveBlock(v, 500, blockA, now); found {
		t.Fatal("first observation should not itself be a verdict")
	}
	verdict, found := s.ObserveBlock(v, 500, blockB, now)
	if !found {
		t.Fatal("expected a double-sign verdict for the second distinct block at height H")
	}

	status, err := vs.ApplySlash(v, verdict.SlashFraction, verdict.Jail, now)
	if err != nil {
		t.Fatalf("ApplySlash: %v", err)
	}
	if status != validator.StatusTombstoned {
		t.Errorf("status after double-sign slash = %s, want %s", status, validator.StatusTombstoned)
	}

	rec, _ := vs.Get(v)
	if !rec.Stake.IsZero() {
		t.Errorf("stake after double-sign slash = %s, want 0", rec.Stake.String())
	}

	for _, active := range vs.Active() {
		if active.Address == v {
			t.Error("tombstoned validator should not appear in the active set")
		}
	}
}

// S5 — Deterministic recovery: a wallet re-derived from seed phrase S has
// the same address, and five repeated derivations
// all produce identical signatures over the same message.
func TestS5DeterministicWalletRecovery(t *testing.T) {
	w1, seed, genErr := wallet.Generate()
	if genErr != nil {
		t.Fatalf("Generate: %v", genErr)
	}

	message := []byte("hello")
	var signatures [][]byte
	var address types.Address
	for i := 0; i < 5; i++ {
		w, derr := wallet.NewFromMnemonic(seed, "")
		if derr != nil {
			t.Fatalf("NewFromMnemonic (derivation %d): %v", i, derr)
		}
		if i == 0 {
			address = w.Address()
		} else if w.Address() != address {
			t.Fatalf("derivation %d produced address %s, want %s", i, w.Address(), address)
		}
		sig, serr := w.Sign(message)
		if serr != nil {
			t.Fatalf("Sign (derivation %d): %v", i, serr)
		}
		signatures = append(signatures, sig)
		if !w.PublicKey().Equal(w1.PublicKey()) {
			t.Fatalf("derivation %d public key does not match the original wallet", i)
		}
	}
	for i := 1; i < len(signatures); i++ {
		if string(signatures[i]) != string(signatures[0]) {
			t.Errorf("derivation %d signature differs from derivation 0's", i)
		}
	}
}

// S6 — Exit queue ordering: V1, V2, V3 request unstake in that order.
// process_exit_queue(2) processes V1 and V2; V3 remains at position 1 after
// re-indexing, and its wait estimate scales with network congestion.
func TestS6ExitQueueOrderingAndWaitEstimate(t *testing.T) {
	cfg := config.Default(config.Testnet)
	vs := validator.New(cfg, time.Unix(0, 0))
	now := time.Now()

	v1, v2, v3 := types.Address("bt2c_v1_v1_v1_v1_v1_v1_v1_v1_v1"), types.Address("bt2c_v2_v2_v2_v2_v2_v2_v2_v2_v2"), types.Address("bt2c_v3_v3_v3_v3_v3_v3_v3_v3_v3")
	for _, v := range []types.Address{v1, v2, v3} {
		if err := vs.Register(v, types.MustParseAmount("1"), now); err != nil {
			t.Fatalf("Register %s: %v", v, err)
		}
	}

	for _, v := range []types.Address{v1, v2, v3} {
		if _, err := vs.Unstake(v, types.MustParseAmount("1"), now); err != nil {
			t.Fatalf("Unstake %s: %v", v, err)
		}
	}

	processed := vs.ProcessExitQueue(2)
	if len(processed) != 2 || processed[0].Validator != v1 || processed[1].Validator != v2 {
		t.Fatalf("ProcessExitQueue(2) = %+v, want V1 then V2", processed)
	}
	if vs.ExitQueueLen() != 1 {
		t.Fatalf("ExitQueueLen after processing 2 of 3 = %d, want 1", vs.ExitQueueLen())
	}

	low := validator.WaitEstimate(1, 1)
	high := validator.WaitEstimate(1, 7)
	if !(high > low) {
		t.Error("wait estimate should increase with network congestion")
	}
}
