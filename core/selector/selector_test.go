package selector

import (
	"testing"
	"time"

	"github.com/sa2shinakamo2/bt2c-sub002/core/config"
	"github.com/sa2shinakamo2/bt2c-sub002/core/types"
	"github.com/sa2shinakamo2/bt2c-sub002/core/validator"
)

func testValidators(stakes ...string) []*validator.Validator {
	out := make([]*validator.Validator, 0, len(stakes))
	for i, s := range stakes {
		out = append(out, &validator.Validator{
			Address:            types.Address("bt2c_v" + string(rune('0'+i))),
			Stake:              types.MustParseAmount(s),
			UptimePercent:      100,
			ValidationAccuracy: 100,
		})
	}
	return out
}

func TestSelectIsDeterministicForSameInputs(t *testing.T) {
	cfg := config.Default(config.Testnet)
	vs := testValidators("10", "10", "10")
	prev := PreviousBlock{Hash: types.BytesToHash([]byte("block1")), Height: 1}

	s1 := New(cfg)
	s2 := New(cfg)
	a1, err := s1.Select(vs, prev, 1700000000000)
	if err != nil {
		t.Fatalf("Select (s1): %v", err)
	}
	a2, err := s2.Select(vs, prev, 1700000000000)
	if err != nil {
		t.Fatalf("Select (s2): %v", err)
	}
	if a1 != a2 {
		t.Errorf("two fresh selectors given identical inputs chose different proposers: %s vs %s", a1, a2)
	}
}

func TestSelectErrorsWithNoValidators(t *testing.T) {
	cfg := config.Default(config.Testnet)
	s := New(cfg)
	prev := PreviousBlock{Hash: types.BytesToHash([]byte("block1")), Height: 1}
	if _, err := s.Select(nil, prev, 1700000000000); err == nil {
		t.Error("expected error selecting from an empty validator set")
	}
}

func TestSelectVariesWithHeight(t *testing.T) {
	cfg := config.Default(config.Testnet)
	vs := testValidators("10", "10", "10", "10", "10")
	s := New(cfg)

	seen := make(map[types.Address]bool)
	for h := uint64(1); h <= 30; h++ {
		prev := PreviousBlock{Hash: types.BytesToHash([]byte{byte(h)}), Height: h}
		addr, err := s.Select(vs, prev, int64(1700000000000+h))
		if err != nil {
			t.Fatalf("Select height %d: %v", h, err)
		}
		seen[addr] = true
	}
	if len(seen) < 2 {
		t.Error("30 selections across 5 equal-stake validators should not all land on one validator")
	}
}

func TestFairnessReportEmptyHistory(t *testing.T) {
	cfg := config.Default(config.Testnet)
	s := New(cfg)
	report := s.Report(testValidators("10"))
	if !report.FairDistribution || !report.ResistantToGrinding {
		t.Error("an empty selection history should report as fair by default")
	}
}

func TestFairnessReportOverManySelections(t *testing.T) {
	cfg := config.Default(config.Testnet)
	cfg.FairnessWindow = 1000
	vs := testValidators("10", "10", "10", "10")
	s := New(cfg)

	now := time.Now().UnixMilli()
	for h := uint64(1); h <= 2000; h++ {
		prev := PreviousBlock{Hash: types.BytesToHash([]byte{byte(h), byte(h >> 8)}), Height: h}
		if _, err := s.Select(vs, prev, now+int64(h)); err != nil {
			t.Fatalf("Select height %d: %v", h, err)
		}
	}

	report := s.Report(vs)
	if report.LongestStreak > 10 {
		t.Errorf("LongestStreak = %d over 2000 draws among 4 equal validators, unexpectedly long", report.LongestStreak)
	}
}

func TestSelectSucceedsAfterReseedEntropy(t *testing.T) {
	cfg := config.Default(config.Testnet)
	vs := testValidators("10", "10", "10", "10", "10", "10", "10", "10")
	prev := PreviousBlock{Hash: types.BytesToHash([]byte("block1")), Height: 1}

	s1 := New(cfg)
	a1, err := s1.Select(vs, prev, 1700000000000)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}

	s2 := New(cfg)
	s2.ReseedEntropy(types.BytesToHash([]byte("a different starting pool")))
	a2, err := s2.Select(vs, prev, 1700000000000)
	if err != nil {
		t.Fatalf("Select after reseed: %v", err)
	}

	if a1 == a2 {
		t.Log("reseeded and default entropy pools happened to draw the same proposer; not itself an error, but worth noting if seen repeatedly")
	}
}
