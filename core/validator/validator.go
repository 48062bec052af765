// Package validator implements the ValidatorSet collaborator from spec.md
// section 4.2: stake accounting, reputation tracking, delegation, and the
// congestion-gated unbonding exit queue.
//
// The set shape (slice of records plus aggregate stake, re-sorted on
// mutation) is grounded on the teacher's chain/consensus/validator.go
// ValidatorSet/ValidatorInfo, generalized to carry the full spec.md §3
// validator record and reputation metrics the teacher's struct omits.
package validator

import (
	"math"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/sa2shinakamo2/bt2c-sub002/core/config"
	coreerrors "github.com/sa2shinakamo2/bt2c-sub002/core/errors"
	"github.com/sa2shinakamo2/bt2c-sub002/core/types"
)

// Status is one of the validator lifecycle states from spec.md section 3.
type Status string

const (
	StatusActive     Status = "ACTIVE"
	StatusInactive   Status = "INACTIVE"
	StatusJailed     Status = "JAILED"
	StatusTombstoned Status = "TOMBSTONED"
	StatusUnstaking  Status = "UNSTAKING"
)

// Delegation is one delegator's stake behind a validator.
type Delegation struct {
	Delegator types.Address
	Amount    types.Amount
}

// Validator is the full per-validator record from spec.md section 3.
type Validator struct {
	Address types.Address
	Stake   types.Amount
	Status  Status

	JoinedAt      time.Time
	LastBlockTime time.Time
	TotalBlocks   uint64
	RewardsEarned types.Amount
	CommissionRate float64

	UptimePercent        float64
	ResponseTimeMs       float64
	ValidationAccuracy   float64
	ParticipationDays    int
	ThroughputTxPerMin   float64

	SlashPoints int
	JailedAt    time.Time

	Delegations []Delegation

	// selection bookkeeping slot; no code in this repository fills it
	// (core/selector keeps its own selection history).
	RecentSelections []bool // true if selected, sliding fairness window
}

// EffectiveStake is stake plus every delegator's contribution.
func (v *Validator) EffectiveStake() types.Amount {
	total := v.Stake
	for _, d := range v.Delegations {
		total = total.Add(d.Amount)
	}
	return total
}

// ReputationMultiplier computes the weighted behavioral score from spec.md
// section 4.2: uptime 0.25, accuracy 0.25, response 0.20, duration 0.15,
// throughput 0.15, each bucketed into {0.8, 0.9, 1.0, 1.1}, summed and
// clamped to [0.5, 1.5].
func (v *Validator) ReputationMultiplier() float64 {
	uptimeBucket := bucket(v.UptimePercent, 99, 95, 90)
	accuracyBucket := bucket(v.ValidationAccuracy, 99, 95, 90)
	// lower response time is better; invert the thresholds.
	responseBucket := bucketInverse(v.ResponseTimeMs, 100, 300, 1000)
	durationBucket := bucket(float64(v.ParticipationDays), 180, 90, 30)
	throughputBucket := bucket(v.ThroughputTxPerMin, 100, 50, 10)

	score := 0.25*uptimeBucket + 0.25*accuracyBucket + 0.20*responseBucket +
		0.15*durationBucket + 0.15*throughputBucket

	if score < 0.5 {
		return 0.5
	}
	if score > 1.5 {
		return 1.5
	}
	return score
}

// bucket maps a "higher is better" metric into {0.8, 0.9, 1.0, 1.1} using
// descending thresholds: >= hi -> 1.1, >= mid -> 1.0, >= lo -> 0.9, else 0.8.
func bucket(v, hi, mid, lo float64) float64 {
	switch {
	case v >= hi:
		return 1.1
	case v >= mid:
		return 1.0
	case v >= lo:
		return 0.9
	default:
		return 0.8
	}
}

// bucketInverse maps a "lower is better" metric (e.g. response time ms)
// into the same {0.8, 0.9, 1.0, 1.1} scale.
func bucketInverse(v, lo, mid, hi float64) float64 {
	switch {
	case v <= lo:
		return 1.1
	case v <= mid:
		return 1.0
	case v <= hi:
		return 0.9
	default:
		return 0.8
	}
}

// UnstakeRequest is one queued exit from spec.md section 3.
type UnstakeRequest struct {
	Validator    types.Address
	Amount       types.Amount
	RequestedAt  time.Time
	QueuePosition int
	Status       string // pending, completed, cancelled
}

// Set is the ValidatorSet collaborator. All mutators are guarded by a
// single reentrant-by-convention mutex, matching spec.md section 5's
// locking contract (chain -> validator -> mempool acquisition order).
type Set struct {
	mu sync.Mutex

	cfg config.Config

	validators map[types.Address]*Validator
	exitQueue  []*UnstakeRequest

	distributionStart time.Time
	distributionUsed  bool // true once the first-caller DEVELOPER_REWARD is claimed
}

// New returns an empty validator set. distributionStart anchors the
// distribution-window bonus eligibility (spec.md section 4.2).
func New(cfg config.Config, distributionStart time.Time) *Set {
	return &Set{
		cfg:               cfg,
		validators:        make(map[types.Address]*Validator),
		distributionStart: distributionStart,
	}
}

// Register admits address as a new validator with the given initial stake.
// During the distribution window the first caller overall also receives
// DEVELOPER_REWARD, and every caller receives DISTRIBUTION_REWARD, both
// added to stake.
func (s *Set) Register(address types.Address, stake types.Amount, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stake.Cmp(s.cfg.MinStake) < 0 {
		return coreerrors.New(coreerrors.KindInsufficientBalance, "validator.Register", nil)
	}
	if _, exists := s.validators[address]; exists {
		return coreerrors.New(coreerrors.KindConfigError, "validator.Register", nil)
	}

	finalStake := stake
	if now.Before(s.distributionStart.Add(s.cfg.DistributionPeriod)) {
		finalStake = finalStake.Add(config.DistributionReward)
		if !s.distributionUsed {
			finalStake = finalStake.Add(config.DeveloperReward)
			s.distributionUsed = true
		}
	}

	s.validators[address] = &Validator{
		Address:            address,
		Stake:              finalStake,
		Status:             StatusActive,
		JoinedAt:           now,
		LastBlockTime:      now,
		UptimePercent:      100,
		ValidationAccuracy: 100,
	}
	return nil
}

// Get returns the validator record for address, or ok=false.
func (s *Set) Get(address types.Address) (Validator, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.validators[address]
	if !ok {
		return Validator{}, false
	}
	return *v, true
}

// Active returns every validator currently eligible for selection, sorted
// by descending effective stake for deterministic iteration.
func (s *Set) Active() []*Validator {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Validator, 0, len(s.validators))
	for _, v := range s.validators {
		if v.Status == StatusActive {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].EffectiveStake().Cmp(out[j].EffectiveStake()); c != 0 {
			return c > 0
		}
		return out[i].Address < out[j].Address
	})
	return out
}

// Stake increases address's stake by amount.
func (s *Set) Stake(address types.Address, amount types.Amount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.validators[address]
	if !ok {
		return coreerrors.New(coreerrors.KindConfigError, "validator.Stake", nil)
	}
	v.Stake = v.Stake.Add(amount)
	return nil
}

// Unstake enqueues an UnstakeRequest for amount. Rejects the "dust" case
// where remaining stake would land in (0, MIN_STAKE).
func (s *Set) Unstake(address types.Address, amount types.Amount, now time.Time) (*UnstakeRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.validators[address]
	if !ok {
		return nil, coreerrors.New(coreerrors.KindConfigError, "validator.Unstake", nil)
	}
	if amount.Cmp(v.Stake) > 0 {
		return nil, coreerrors.New(coreerrors.KindInsufficientBalance, "validator.Unstake", nil)
	}
	remaining := v.Stake.Sub(amount)
	if !remaining.IsZero() && remaining.Cmp(s.cfg.MinStake) < 0 {
		return nil, coreerrors.New(coreerrors.KindInsufficientBalance, "validator.Unstake", nil)
	}

	v.Status = StatusUnstaking
	req := &UnstakeRequest{
		Validator:     address,
		Amount:        amount,
		RequestedAt:   now,
		QueuePosition: len(s.exitQueue) + 1,
		Status:        "pending",
	}
	s.exitQueue = append(s.exitQueue, req)
	return req, nil
}

// ProcessExitQueue pops up to n pending requests in FIFO order, debits
// stake, and re-indexes remaining queue positions.
func (s *Set) ProcessExitQueue(n int) []*UnstakeRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	processed := make([]*UnstakeRequest, 0, n)
	remaining := s.exitQueue[:0:0]

	count := 0
	for _, req := range s.exitQueue {
		if count >= n || req.Status != "pending" {
			remaining = append(remaining, req)
			continue
		}
		v, ok := s.validators[req.Validator]
		if ok {
			if req.Amount.Cmp(v.Stake) >= 0 {
				v.Stake = types.ZeroAmount
			} else {
				v.Stake = v.Stake.Sub(req.Amount)
			}
			if v.Stake.IsZero() {
				v.Status = StatusInactive
			} else {
				v.Status = StatusActive
			}
		}
		req.Status = "completed"
		processed = append(processed, req)
		count++
	}
	for i, req := range remaining {
		if req.Status == "pending" {
			req.QueuePosition = i + 1
		}
	}
	s.exitQueue = remaining
	return processed
}

// ExitQueueLen reports the number of pending exit requests.
func (s *Set) ExitQueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, req := range s.exitQueue {
		if req.Status == "pending" {
			n++
		}
	}
	return n
}

// WaitEstimate returns the estimated wait for the request at queuePosition
// given the current network congestion multiplier, per spec.md section 3:
// 1h per position * congestion multiplier in [1, 7].
func WaitEstimate(queuePosition int, congestionMultiplier float64) time.Duration {
	if congestionMultiplier < 1 {
		congestionMultiplier = 1
	}
	if congestionMultiplier > 7 {
		congestionMultiplier = 7
	}
	hours := float64(queuePosition) * congestionMultiplier
	return time.Duration(hours * float64(time.Hour))
}

// UpdateMetrics applies an exponential moving average (alpha=0.1) to
// response time and throughput, updates validation accuracy as a running
// mean over total_blocks, and raises participation_days to the whole days
// elapsed since JoinedAt when that is larger.
func (s *Set) UpdateMetrics(address types.Address, reward types.Amount, responseMs float64, valid bool, txCount int, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.validators[address]
	if !ok {
		return coreerrors.New(coreerrors.KindConfigError, "validator.UpdateMetrics", nil)
	}

	const alpha = 0.1
	if v.TotalBlocks == 0 {
		v.ResponseTimeMs = responseMs
		v.ThroughputTxPerMin = float64(txCount)
	} else {
		v.ResponseTimeMs = alpha*responseMs + (1-alpha)*v.ResponseTimeMs
		v.ThroughputTxPerMin = alpha*float64(txCount) + (1-alpha)*v.ThroughputTxPerMin
	}

	validScore := 0.0
	if valid {
		validScore = 100.0
	}
	v.ValidationAccuracy = (v.ValidationAccuracy*float64(v.TotalBlocks) + validScore) / float64(v.TotalBlocks+1)

	v.TotalBlocks++
	v.RewardsEarned = v.RewardsEarned.Add(reward)
	v.LastBlockTime = now

	if !v.JoinedAt.IsZero() {
		days := int(now.Sub(v.JoinedAt).Hours() / 24)
		if days > v.ParticipationDays {
			v.ParticipationDays = days
		}
	}
	return nil
}

// CalculateAPY projects the annualized yield for address per spec.md
// section 4.2: base_apy(5%) * network_factor * stake_factor *
// reputation_multiplier * duration_factor.
func (s *Set) CalculateAPY(address types.Address, totalNetworkStake float64, now time.Time) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.validators[address]
	if !ok {
		return 0, coreerrors.New(coreerrors.KindConfigError, "validator.CalculateAPY", nil)
	}

	const baseAPY = 0.05

	// network_factor decays as total stake grows, capped at -50%.
	networkFactor := 1.0 - math.Min(0.5, totalNetworkStake/1e9)

	stakeBig := new(big.Float).SetInt(v.Stake.Units().ToBig())
	stakeFloat, _ := stakeBig.Float64()
	stakeFloat /= 1e8
	stakeFactor := 1.0
	if stakeFloat > 0 {
		stakeFactor = 1 + math.Min(0.5, math.Log10(stakeFloat)/10)
	}

	reputationMultiplier := v.ReputationMultiplier()

	durationFactor := 1.0
	if !v.JoinedAt.IsZero() {
		days := now.Sub(v.JoinedAt).Hours() / 24
		durationFactor = 1.0 + math.Min(0.3, days/365*0.3)
	}

	return baseAPY * networkFactor * stakeFactor * reputationMultiplier * durationFactor, nil
}

// Delegate adds a delegation from delegator to validator.
func (s *Set) Delegate(validatorAddr, delegator types.Address, amount types.Amount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.validators[validatorAddr]
	if !ok {
		return coreerrors.New(coreerrors.KindConfigError, "validator.Delegate", nil)
	}
	for i := range v.Delegations {
		if v.Delegations[i].Delegator == delegator {
			v.Delegations[i].Amount = v.Delegations[i].Amount.Add(amount)
			return nil
		}
	}
	v.Delegations = append(v.Delegations, Delegation{Delegator: delegator, Amount: amount})
	return nil
}

// Undelegate removes amount from delegator's position behind validator.
func (s *Set) Undelegate(validatorAddr, delegator types.Address, amount types.Amount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.validators[validatorAddr]
	if !ok {
		return coreerrors.New(coreerrors.KindConfigError, "validator.Undelegate", nil)
	}
	for i := range v.Delegations {
		if v.Delegations[i].Delegator == delegator {
			if amount.Cmp(v.Delegations[i].Amount) > 0 {
				return coreerrors.New(coreerrors.KindInsufficientBalance, "validator.Undelegate", nil)
			}
			v.Delegations[i].Amount = v.Delegations[i].Amount.Sub(amount)
			if v.Delegations[i].Amount.IsZero() {
				v.Delegations = append(v.Delegations[:i], v.Delegations[i+1:]...)
			}
			return nil
		}
	}
	return coreerrors.New(coreerrors.KindConfigError, "validator.Undelegate", nil)
}

// Jail transitions address to JAILED, removing it from the active set.
func (s *Set) Jail(address types.Address, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.validators[address]
	if !ok {
		return coreerrors.New(coreerrors.KindConfigError, "validator.Jail", nil)
	}
	v.Status = StatusJailed
	v.JailedAt = now
	return nil
}

// Tombstone permanently removes address from eligibility.
func (s *Set) Tombstone(address types.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.validators[address]
	if !ok {
		return coreerrors.New(coreerrors.KindConfigError, "validator.Tombstone", nil)
	}
	v.Status = StatusTombstoned
	v.Stake = types.ZeroAmount
	return nil
}

// Unjail recovers address to INACTIVE if the wait period has elapsed and
// stake still meets MIN_STAKE, resetting accumulated slash-points.
func (s *Set) Unjail(address types.Address, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.validators[address]
	if !ok {
		return coreerrors.New(coreerrors.KindConfigError, "validator.Unjail", nil)
	}
	if v.Status != StatusJailed {
		return coreerrors.New(coreerrors.KindConfigError, "validator.Unjail", nil)
	}
	wait := time.Duration(s.cfg.UnjailWaitDays) * 24 * time.Hour
	if now.Sub(v.JailedAt) < wait {
		return coreerrors.New(coreerrors.KindConfigError, "validator.Unjail", nil)
	}
	if v.Stake.Cmp(s.cfg.MinStake) < 0 {
		return coreerrors.New(coreerrors.KindInsufficientBalance, "validator.Unjail", nil)
	}
	v.Status = StatusInactive
	v.SlashPoints = 0
	return nil
}

// ApplySlash reduces address's stake by fraction (0,1], recording the
// slash-point and transitioning status per the Slasher's verdict. forceJail
// immediately jails the validator regardless of accumulated slash-points —
// set it for a Byzantine-behavior verdict (spec.md section 4.4: "50% stake
// slash -> JAILED, or TOMBSTONED if residual stake < MIN_STAKE"), which must
// not wait for SlashJailThreshold unrelated incidents to accumulate first.
// Returns the resulting status.
func (s *Set) ApplySlash(address types.Address, fraction float64, forceJail bool, now time.Time) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.validators[address]
	if !ok {
		return "", coreerrors.New(coreerrors.KindConfigError, "validator.ApplySlash", nil)
	}

	v.SlashPoints++
	v.Stake = v.Stake.MulRat(uint64(math.Round((1-fraction)*1e8)), 1e8)

	switch {
	case fraction >= 1.0 || v.Stake.Cmp(s.cfg.MinStake) < 0:
		v.Status = StatusTombstoned
		v.Stake = types.ZeroAmount
	case forceJail || v.SlashPoints >= s.cfg.SlashJailThreshold:
		v.Status = StatusJailed
		v.JailedAt = now
	default:
		// remains whatever it was, still eligible unless already unstaking
	}
	return v.Status, nil
}
