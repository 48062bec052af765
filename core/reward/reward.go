// Package reward implements the RewardEngine collaborator from spec.md
// section 4.6: halving block subsidy and the commission/delegator fee
// split, grounded on the teacher's chain/economics/tokenomics.go halving
// schedule (generalized from its hardcoded constants into Config-driven
// parameters).
package reward

import (
	"math"

	"github.com/sa2shinakamo2/bt2c-sub002/core/config"
	"github.com/sa2shinakamo2/bt2c-sub002/core/types"
	"github.com/sa2shinakamo2/bt2c-sub002/core/validator"
)

// Engine computes block subsidies and fee splits.
type Engine struct {
	cfg config.Config
}

// New returns a RewardEngine bound to cfg's halving interval and initial
// reward.
func New(cfg config.Config) *Engine {
	return &Engine{cfg: cfg}
}

// BlockReward returns the subsidy for a block at height:
// INITIAL_REWARD * 2^(-floor(height / HALVING_INTERVAL)), floored at 1e-8
// (the smallest representable Amount unit).
func (e *Engine) BlockReward(height uint64) types.Amount {
	if e.cfg.HalvingInterval == 0 {
		return config.InitialReward
	}
	halvings := height / e.cfg.HalvingInterval

	// 64+ halvings of a 21-unit initial reward underflows past the 1e-8
	// floor; clamp to the minimum representable unit rather than zero.
	if halvings >= 64 {
		return types.NewAmountFromUnits(1)
	}

	divisor := uint64(1) << halvings
	units := config.InitialReward.Units().Uint64() / divisor
	if units == 0 {
		units = 1
	}
	return types.NewAmountFromUnits(units)
}

// Distribution is the result of splitting one block's total reward
// (subsidy + fees) among the proposer and its delegators.
type Distribution struct {
	Validator          types.Address
	ValidatorAmount    types.Amount
	DelegatorAmounts   map[types.Address]types.Amount
}

// Distribute splits total = subsidy+fees among validator and its
// delegators per spec.md section 4.6: with no delegators, all goes to the
// validator; with delegators, the validator takes commission =
// total*commission_rate and the remainder is split pro-rata by delegation
// amount.
func Distribute(validatorAddr types.Address, commissionRate float64, delegations []validator.Delegation, subsidy, fees types.Amount) Distribution {
	total := subsidy.Add(fees)

	if len(delegations) == 0 {
		return Distribution{
			Validator:        validatorAddr,
			ValidatorAmount:  total,
			DelegatorAmounts: map[types.Address]types.Amount{},
		}
	}

	commissionPct := uint64(math.Round(commissionRate * 1e8))
	commission := total.MulRat(commissionPct, 1e8)
	remainder := total.Sub(commission)

	var delegatedTotal types.Amount
	for _, d := range delegations {
		delegatedTotal = delegatedTotal.Add(d.Amount)
	}

	out := Distribution{
		Validator:        validatorAddr,
		ValidatorAmount:  commission,
		DelegatorAmounts: make(map[types.Address]types.Amount, len(delegations)),
	}
	if delegatedTotal.IsZero() {
		out.ValidatorAmount = total
		return out
	}

	distributed := types.ZeroAmount
	for i, d := range delegations {
		var share types.Amount
		if i == len(delegations)-1 {
			// last delegator absorbs rounding remainder so the sum is exact.
			share = remainder.Sub(distributed)
		} else {
			num := d.Amount.Units().Uint64()
			den := delegatedTotal.Units().Uint64()
			share = remainder.MulRat(num, den)
			distributed = distributed.Add(share)
		}
		out.DelegatorAmounts[d.Delegator] = out.DelegatorAmounts[d.Delegator].Add(share)
	}
	return out
}
