package reward

import (
	"testing"

	"github.com/sa2shinakamo2/bt2c-sub002/core/config"
	"github.com/sa2shinakamo2/bt2c-sub002/core/types"
	"github.com/sa2shinakamo2/bt2c-sub002/core/validator"
)

func TestBlockRewardAtGenesisIsInitialReward(t *testing.T) {
	cfg := config.Default(config.Testnet)
	e := New(cfg)
	if got := e.BlockReward(0); got.Cmp(config.InitialReward) != 0 {
		t.Errorf("BlockReward(0) = %s, want %s", got.String(), config.InitialReward.String())
	}
}

func TestBlockRewardHalvesAtInterval(t *testing.T) {
	cfg := config.Default(config.Testnet)
	e := New(cfg)

	full := e.BlockReward(cfg.HalvingInterval - 1)
	halved := e.BlockReward(cfg.HalvingInterval)

	wantHalved := full.MulRat(1, 2)
	if halved.Cmp(wantHalved) != 0 {
		t.Errorf("BlockReward at the halving boundary = %s, want %s (half of %s)", halved.String(), wantHalved.String(), full.String())
	}
}

func TestBlockRewardNeverGoesBelowOneUnit(t *testing.T) {
	cfg := config.Default(config.Testnet)
	e := New(cfg)
	got := e.BlockReward(cfg.HalvingInterval * 100)
	if got.Cmp(types.NewAmountFromUnits(1)) != 0 {
		t.Errorf("deeply-halved BlockReward = %s, want the 1-unit floor", got.String())
	}
}

func TestDistributeNoDelegatorsGoesEntirelyToValidator(t *testing.T) {
	addr := types.Address("bt2c_validator1")
	d := Distribute(addr, 0.1, nil, types.MustParseAmount("10"), types.MustParseAmount("1"))
	if d.ValidatorAmount.Cmp(types.MustParseAmount("11")) != 0 {
		t.Errorf("ValidatorAmount with no delegators = %s, want 11", d.ValidatorAmount.String())
	}
	if len(d.DelegatorAmounts) != 0 {
		t.Errorf("expected no delegator amounts, got %v", d.DelegatorAmounts)
	}
}

func TestDistributeSplitsCommissionAndProRataRemainder(t *testing.T) {
	addr := types.Address("bt2c_validator1")
	delegations := []validator.Delegation{
		{Delegator: types.Address("bt2c_d1"), Amount: types.MustParseAmount("30")},
		{Delegator: types.Address("bt2c_d2"), Amount: types.MustParseAmount("70")},
	}
	d := Distribute(addr, 0.10, delegations, types.MustParseAmount("100"), types.MustParseAmount("0"))

	wantCommission := types.MustParseAmount("10")
	if d.ValidatorAmount.Cmp(wantCommission) != 0 {
		t.Errorf("validator commission = %s, want %s", d.ValidatorAmount.String(), wantCommission.String())
	}

	// remainder 90 split 30/70 -> 27 / 63.
	if got := d.DelegatorAmounts[types.Address("bt2c_d1")]; got.Cmp(types.MustParseAmount("27")) != 0 {
		t.Errorf("d1 share = %s, want 27", got.String())
	}
	if got := d.DelegatorAmounts[types.Address("bt2c_d2")]; got.Cmp(types.MustParseAmount("63")) != 0 {
		t.Errorf("d2 share = %s, want 63", got.String())
	}
}

func TestDistributeSumsExactlyDespiteRounding(t *testing.T) {
	addr := types.Address("bt2c_validator1")
	delegations := []validator.Delegation{
		{Delegator: types.Address("bt2c_d1"), Amount: types.MustParseAmount("1")},
		{Delegator: types.Address("bt2c_d2"), Amount: types.MustParseAmount("1")},
		{Delegator: types.Address("bt2c_d3"), Amount: types.MustParseAmount("1")},
	}
	total := types.MustParseAmount("10.00000001")
	d := Distribute(addr, 0.0, delegations, total, types.ZeroAmount)

	sum := d.ValidatorAmount
	for _, amt := range d.DelegatorAmounts {
		sum = sum.Add(amt)
	}
	if sum.Cmp(total) != 0 {
		t.Errorf("sum of validator + delegator shares = %s, want exactly %s", sum.String(), total.String())
	}
}
