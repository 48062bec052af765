package validator

import (
	"testing"
	"time"

	"github.com/sa2shinakamo2/bt2c-sub002/core/config"
	"github.com/sa2shinakamo2/bt2c-sub002/core/types"
)

func testAddr(n string) types.Address {
	return types.Address("bt2c_" + n)
}

func TestRegisterRejectsBelowMinStake(t *testing.T) {
	cfg := config.Default(config.Testnet)
	s := New(cfg, time.Unix(0, 0))
	if err := s.Register(testAddr("v1"), types.MustParseAmount("0.0001"), time.Now()); err == nil {
		t.Error("expected error registering below MinStake")
	}
}

func TestRegisterDuringDistributionWindowAddsBonuses(t *testing.T) {
	cfg := config.Default(config.Testnet)
	start := time.Unix(0, 0)
	s := New(cfg, start)

	now := start.Add(1 * time.Hour)
	if err := s.Register(testAddr("v1"), cfg.MinStake, now); err != nil {
		t.Fatalf("Register v1: %v", err)
	}
	v, _ := s.Get(testAddr("v1"))
	want := cfg.MinStake.Add(config.DistributionReward).Add(config.DeveloperReward)
	if v.Stake.Cmp(want) != 0 {
		t.Errorf("v1 stake = %s, want %s (MinStake + distribution + developer bonus)", v.Stake.String(), want.String())
	}

	if err := s.Register(testAddr("v2"), cfg.MinStake, now); err != nil {
		t.Fatalf("Register v2: %v", err)
	}
	v2, _ := s.Get(testAddr("v2"))
	want2 := cfg.MinStake.Add(config.DistributionReward)
	if v2.Stake.Cmp(want2) != 0 {
		t.Errorf("v2 stake = %s, want %s (only distribution reward, developer bonus already claimed)", v2.Stake.String(), want2.String())
	}
}

func TestActiveSortedByEffectiveStakeDescending(t *testing.T) {
	cfg := config.Default(config.Testnet)
	s := New(cfg, time.Unix(0, 0))
	now := time.Now()

	if err := s.Register(testAddr("small"), types.MustParseAmount("1"), now); err != nil {
		t.Fatalf("Register small: %v", err)
	}
	if err := s.Register(testAddr("big"), types.MustParseAmount("10"), now); err != nil {
		t.Fatalf("Register big: %v", err)
	}

	active := s.Active()
	if len(active) != 2 {
		t.Fatalf("Active() returned %d validators, want 2", len(active))
	}
	if active[0].Address != testAddr("big") {
		t.Errorf("Active()[0] = %s, want the higher-stake validator first", active[0].Address)
	}
}

func TestUnstakeRejectsDustRemainder(t *testing.T) {
	cfg := config.Default(config.Testnet)
	s := New(cfg, time.Unix(0, 0))
	now := time.Now()
	if err := s.Register(testAddr("v1"), types.MustParseAmount("1"), now); err != nil {
		t.Fatalf("Register: %v", err)
	}
	// Unstaking all but a dust amount below MinStake (0.1) should be rejected.
	if _, err := s.Unstake(testAddr("v1"), types.MustParseAmount("0.95"), now); err == nil {
		t.Error("expected error leaving a dust remainder below MinStake")
	}
}

func TestUnstakeAllowsFullWithdrawal(t *testing.T) {
	cfg := config.Default(config.Testnet)
	s := New(cfg, time.Unix(0, 0))
	now := time.Now()
	if err := s.Register(testAddr("v1"), types.MustParseAmount("1"), now); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := s.Unstake(testAddr("v1"), types.MustParseAmount("1"), now); err != nil {
		t.Errorf("full withdrawal to zero should be allowed: %v", err)
	}
}

func TestProcessExitQueueFIFOAndReindex(t *testing.T) {
	cfg := config.Default(config.Testnet)
	s := New(cfg, time.Unix(0, 0))
	now := time.Now()
	for _, name := range []string{"v1", "v2", "v3"} {
		if err := s.Register(testAddr(name), types.MustParseAmount("1"), now); err != nil {
			t.Fatalf("Register %s: %v", name, err)
		}
	}
	for _, name := range []string{"v1", "v2", "v3"} {
		if _, err := s.Unstake(testAddr(name), types.MustParseAmount("1"), now); err != nil {
			t.Fatalf("Unstake %s: %v", name, err)
		}
	}
	if s.ExitQueueLen() != 3 {
		t.Fatalf("ExitQueueLen = %d, want 3", s.ExitQueueLen())
	}

	processed := s.ProcessExitQueue(2)
	if len(processed) != 2 {
		t.Fatalf("ProcessExitQueue(2) processed %d, want 2", len(processed))
	}
	if processed[0].Validator != testAddr("v1") || processed[1].Validator != testAddr("v2") {
		t.Error("ProcessExitQueue did not process in FIFO order")
	}
	if s.ExitQueueLen() != 1 {
		t.Errorf("ExitQueueLen after processing 2 of 3 = %d, want 1", s.ExitQueueLen())
	}
}

func TestWaitEstimateClampsCongestionMultiplier(t *testing.T) {
	if got := WaitEstimate(1, 0); got != 1*time.Hour {
		t.Errorf("WaitEstimate clamped-low = %v, want 1h", got)
	}
	if got := WaitEstimate(1, 100); got != 7*time.Hour {
		t.Errorf("WaitEstimate clamped-high = %v, want 7h", got)
	}
	if got := WaitEstimate(3, 2); got != 6*time.Hour {
		t.Errorf("WaitEstimate(3, 2) = %v, want 6h", got)
	}
}

func TestReputationMultiplierBestAndWorstCase(t *testing.T) {
	v := &Validator{
		UptimePercent:      100,
		ValidationAccuracy: 100,
		ResponseTimeMs:     10,
		ParticipationDays:  365,
		ThroughputTxPerMin: 200,
	}
	if got := v.ReputationMultiplier(); got != 1.1 {
		t.Errorf("best-case ReputationMultiplier = %v, want 1.1", got)
	}

	worst := &Validator{
		UptimePercent:      0,
		ValidationAccuracy: 0,
		ResponseTimeMs:     5000,
		ParticipationDays:  0,
		ThroughputTxPerMin: 0,
	}
	if got := worst.ReputationMultiplier(); got != 0.8 {
		t.Errorf("worst-case ReputationMultiplier = %v, want 0.8", got)
	}
}

func TestApplySlashFullSlashTombstones(t *testing.T) {
	cfg := config.Default(config.Testnet)
	s := New(cfg, time.Unix(0, 0))
	now := time.Now()
	if err := s.Register(testAddr("v1"), types.MustParseAmount("5"), now); err != nil {
		t.Fatalf("Register: %v", err)
	}
	status, err := s.ApplySlash(testAddr("v1"), 1.0, false, now)
	if err != nil {
		t.Fatalf("ApplySlash: %v", err)
	}
	if status != StatusTombstoned {
		t.Errorf("status after 100%% slash = %s, want %s", status, StatusTombstoned)
	}
	v, _ := s.Get(testAddr("v1"))
	if !v.Stake.IsZero() {
		t.Errorf("tombstoned validator stake = %s, want 0", v.Stake.String())
	}
}

func TestApplySlashRepeatedPushesToJailed(t *testing.T) {
	cfg := config.Default(config.Testnet)
	cfg.SlashJailThreshold = 2
	s := New(cfg, time.Unix(0, 0))
	now := time.Now()
	if err := s.Register(testAddr("v1"), types.MustParseAmount("5"), now); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := s.ApplySlash(testAddr("v1"), 0.01, false, now); err != nil {
		t.Fatalf("ApplySlash 1: %v", err)
	}
	status, err := s.ApplySlash(testAddr("v1"), 0.01, false, now)
	if err != nil {
		t.Fatalf("ApplySlash 2: %v", err)
	}
	if status != StatusJailed {
		t.Errorf("status after reaching SlashJailThreshold = %s, want %s", status, StatusJailed)
	}
}

func TestApplySlashForceJailBypassesPointThreshold(t *testing.T) {
	cfg := config.Default(config.Testnet)
	s := New(cfg, time.Unix(0, 0))
	now := time.Now()
	if err := s.Register(testAddr("v1"), types.MustParseAmount("5"), now); err != nil {
		t.Fatalf("Register: %v", err)
	}
	status, err := s.ApplySlash(testAddr("v1"), 0.5, true, now)
	if err != nil {
		t.Fatalf("ApplySlash: %v", err)
	}
	if status != StatusJailed {
		t.Errorf("status after a single force-jail verdict = %s, want %s", status, StatusJailed)
	}
}

func TestDelegateAndUndelegate(t *testing.T) {
	cfg := config.Default(config.Testnet)
	s := New(cfg, time.Unix(0, 0))
	now := time.Now()
	if err := s.Register(testAddr("v1"), types.MustParseAmount("1"), now); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := s.Delegate(testAddr("v1"), testAddr("d1"), types.MustParseAmount("2")); err != nil {
		t.Fatalf("Delegate: %v", err)
	}
	v, _ := s.Get(testAddr("v1"))
	if got := v.EffectiveStake(); got.Cmp(types.MustParseAmount("3")) != 0 {
		t.Errorf("EffectiveStake after delegation = %s, want 3", got.String())
	}
	if err := s.Undelegate(testAddr("v1"), testAddr("d1"), types.MustParseAmount("2")); err != nil {
		t.Fatalf("Undelegate: %v", err)
	}
	v, _ = s.Get(testAddr("v1"))
	if got := v.EffectiveStake(); got.Cmp(types.MustParseAmount("1")) != 0 {
		t.Errorf("EffectiveStake after full undelegation = %s, want 1", got.String())
	}
}

func TestUnjailRejectsBeforeWaitElapsed(t *testing.T) {
	cfg := config.Default(config.Testnet)
	s := New(cfg, time.Unix(0, 0))
	now := time.Now()
	if err := s.Register(testAddr("v1"), types.MustParseAmount("5"), now); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := s.Jail(testAddr("v1"), now); err != nil {
		t.Fatalf("Jail: %v", err)
	}
	if err := s.Unjail(testAddr("v1"), now.Add(1*time.Hour)); err == nil {
		t.Error("expected error unjailing before UnjailWaitDays elapsed")
	}
	if err := s.Unjail(testAddr("v1"), now.Add(time.Duration(cfg.UnjailWaitDays+1)*24*time.Hour)); err != nil {
		t.Errorf("Unjail after wait period: %v", err)
	}
}
