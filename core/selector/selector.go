// Package selector implements the ValidatorSelector collaborator from
// spec.md section 4.3: history-bound seed construction, stake-weighted
// leader draw, anti-monoculture redraw, and fairness reporting.
//
// The stake-weighted cumulative draw is grounded on the teacher's
// chain/consensus/validator.go GetProposer (hash-to-big.Int modulo total
// stake, walk the validator list accumulating stake), generalized to the
// spec's richer entropy-pool seed chain and reputation/fairness-adjusted
// weighting.
package selector

import (
	"crypto/rand"
	"math"
	"math/big"

	"github.com/sa2shinakamo2/bt2c-sub002/core/config"
	"github.com/sa2shinakamo2/bt2c-sub002/core/crypto"
	"github.com/sa2shinakamo2/bt2c-sub002/core/types"
	"github.com/sa2shinakamo2/bt2c-sub002/core/validator"
)

// PreviousBlock carries the fields the seed construction binds to, so the
// selector does not need to import core/chain (avoiding an import cycle —
// ChainManager is the selector's caller).
type PreviousBlock struct {
	Hash         types.Hash
	Height       uint64
	TxHash       types.Hash // commitment to the previous block's transactions (the node passes its Merkle root)
	Validator    types.Address
	Timestamp    int64
}

// Selector chooses the next block proposer. It owns the rolling entropy
// pool and the history of recent selections used for both fairness
// weighting and anti-monoculture filtering.
type Selector struct {
	cfg config.Config

	entropyPool    [32]byte
	lastSelections []types.Address // most recent selections, newest last
	window         int             // spec.md fairness_window
}

// New returns a selector whose entropy pool starts as all zero bytes;
// ReseedEntropy replaces it.
func New(cfg config.Config) *Selector {
	return &Selector{
		cfg:    cfg,
		window: cfg.FairnessWindow,
	}
}

// buildSeed implements spec.md section 4.3's seed construction: SHA-256
// over the concatenation of the current millisecond timestamp, previous
// block hash, previous block height, previous transactions hash, previous
// validator, the entropy pool, SHA-256 of the last 20 selections, and
// SHA-256 of the sorted previous-block fields.
func (s *Selector) buildSeed(prev PreviousBlock, nowMs int64, extra []byte) [32]byte {
	var buf []byte
	buf = append(buf, encodeInt64(nowMs)...)
	buf = append(buf, prev.Hash.Bytes()...)
	buf = append(buf, encodeUint64(prev.Height)...)
	buf = append(buf, prev.TxHash.Bytes()...)
	buf = append(buf, []byte(prev.Validator)...)
	buf = append(buf, s.entropyPool[:]...)

	recentHash := crypto.SHA256(encodeSelections(s.lastSelectionsWindow(20)))
	buf = append(buf, recentHash[:]...)

	sortedFields := crypto.SHA256(sortedPrevFields(prev))
	buf = append(buf, sortedFields[:]...)

	buf = append(buf, extra...)

	return crypto.SHA256(buf)
}

func (s *Selector) lastSelectionsWindow(n int) []types.Address {
	if len(s.lastSelections) <= n {
		return s.lastSelections
	}
	return s.lastSelections[len(s.lastSelections)-n:]
}

func encodeSelections(addrs []types.Address) []byte {
	var buf []byte
	for _, a := range addrs {
		buf = append(buf, []byte(a)...)
	}
	return buf
}

func sortedPrevFields(prev PreviousBlock) []byte {
	fields := []string{
		prev.Hash.Hex(),
		prev.TxHash.Hex(),
		string(prev.Validator),
		encodeUint64String(prev.Height),
	}
	// simple insertion sort, field count is fixed and tiny.
	for i := 1; i < len(fields); i++ {
		for j := i; j > 0 && fields[j-1] > fields[j]; j-- {
			fields[j-1], fields[j] = fields[j], fields[j-1]
		}
	}
	var buf []byte
	for _, f := range fields {
		buf = append(buf, []byte(f)...)
	}
	return buf
}

func encodeInt64(v int64) []byte  { return encodeUint64(uint64(v)) }
func encodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (56 - 8*i))
	}
	return b
}
func encodeUint64String(v uint64) string {
	return string(encodeUint64(v))
}

// weighted is a validator plus its adjusted stake for one draw.
type weighted struct {
	addr   types.Address
	weight *big.Float
}

// adjustedWeights computes adjusted_stake = stake * reputation_multiplier *
// fairness_adjustment for each active validator, per spec.md section 4.3.
func (s *Selector) adjustedWeights(validators []*validator.Validator) []weighted {
	out := make([]weighted, 0, len(validators))
	for _, v := range validators {
		stakeBig := new(big.Float).SetInt(v.EffectiveStake().Units().ToBig())
		rep := v.ReputationMultiplier()
		fairness := s.fairnessAdjustment(v.Address, validators)

		w := new(big.Float).Mul(stakeBig, big.NewFloat(rep))
		w.Mul(w, big.NewFloat(fairness))
		out = append(out, weighted{addr: v.Address, weight: w})
	}
	return out
}

// fairnessAdjustment compares actual vs expected selection rate for addr
// over the fairness window, boosting underrepresented validators up to 3.0
// and damping overrepresented ones down to 0.75, clamped to [0.3, 3.0].
func (s *Selector) fairnessAdjustment(addr types.Address, validators []*validator.Validator) float64 {
	window := s.lastSelectionsWindow(s.window)
	if len(window) == 0 || len(validators) == 0 {
		return 1.0
	}
	actual := 0
	for _, a := range window {
		if a == addr {
			actual++
		}
	}
	actualRate := float64(actual) / float64(len(window))
	expectedRate := 1.0 / float64(len(validators))
	if expectedRate == 0 {
		return 1.0
	}

	ratio := expectedRate / math.Max(actualRate, 1e-9)
	adj := ratio
	if actualRate < expectedRate {
		adj = math.Min(3.0, ratio)
	} else if actualRate > expectedRate {
		adj = math.Max(0.75, ratio)
	} else {
		adj = 1.0
	}
	if adj < 0.3 {
		adj = 0.3
	}
	if adj > 3.0 {
		adj = 3.0
	}
	return adj
}

// Select draws the next proposer from validators using prev to bind the
// seed to chain history. Returns the chosen address and advances the
// entropy pool and selection history.
func (s *Selector) Select(validators []*validator.Validator, prev PreviousBlock, nowMs int64) (types.Address, error) {
	if len(validators) == 0 {
		return "", errNoValidators
	}

	seed := s.buildSeed(prev, nowMs, nil)
	chosen := s.draw(validators, seed)

	excludeThreshold := 3
	if len(validators) < excludeThreshold {
		excludeThreshold = len(validators)
	}
	if s.isMonoculture(chosen, excludeThreshold) {
		chosen = s.redraw(validators, prev, nowMs, chosen)
	}

	s.advance(seed, chosen)
	return chosen, nil
}

// isMonoculture reports whether the last min(3, n) selections were all
// equal to candidate.
func (s *Selector) isMonoculture(candidate types.Address, n int) bool {
	if n == 0 || len(s.lastSelections) < n {
		return false
	}
	recent := s.lastSelections[len(s.lastSelections)-n:]
	for _, a := range recent {
		if a != candidate {
			return false
		}
	}
	return true
}

// redraw excludes exclude from the candidate pool and draws again with a
// fresh seed salted with 8 random bytes, per spec.md section 4.3.
func (s *Selector) redraw(validators []*validator.Validator, prev PreviousBlock, nowMs int64, exclude types.Address) types.Address {
	filtered := make([]*validator.Validator, 0, len(validators))
	for _, v := range validators {
		if v.Address != exclude {
			filtered = append(filtered, v)
		}
	}
	if len(filtered) == 0 {
		return exclude
	}
	salt := make([]byte, 8)
	_, _ = rand.Read(salt)
	seed := s.buildSeed(prev, nowMs, salt)
	return s.draw(filtered, seed)
}

// draw maps seed to r in [0,1) and walks the cumulative adjusted-stake
// distribution, returning the first validator whose cumulative share
// exceeds r.
func (s *Selector) draw(validators []*validator.Validator, seed [32]byte) types.Address {
	weights := s.adjustedWeights(validators)

	total := new(big.Float)
	for _, w := range weights {
		total.Add(total, w.weight)
	}
	if total.Sign() == 0 {
		return validators[0].Address
	}

	seedInt := new(big.Int).SetBytes(seed[:])
	maxVal := new(big.Int).Lsh(big.NewInt(1), 256)
	r := new(big.Float).Quo(new(big.Float).SetInt(seedInt), new(big.Float).SetInt(maxVal))

	cumulative := new(big.Float)
	for _, w := range weights {
		share := new(big.Float).Quo(w.weight, total)
		cumulative.Add(cumulative, share)
		if cumulative.Cmp(r) > 0 {
			return w.addr
		}
	}
	return weights[len(weights)-1].addr
}

// advance updates the entropy pool and selection history after a draw,
// per spec.md section 4.3: entropy_pool <- SHA-256(pool || seed).
func (s *Selector) advance(seed [32]byte, chosen types.Address) {
	combined := append(append([]byte{}, s.entropyPool[:]...), seed[:]...)
	s.entropyPool = crypto.SHA256(combined)

	s.lastSelections = append(s.lastSelections, chosen)
	if len(s.lastSelections) > s.window*4 {
		s.lastSelections = s.lastSelections[len(s.lastSelections)-s.window*4:]
	}
}

var errNoValidators = selectorError("no active validators")

type selectorError string

func (e selectorError) Error() string { return string(e) }

// FairnessReport summarizes selection fairness over the tracked history,
// per spec.md section 4.3.
type FairnessReport struct {
	ChiSquarePValue      float64
	GiniDifference       float64
	MaxPercentDeviation  float64
	LongestStreak        int
	FairDistribution     bool
	ResistantToGrinding  bool
}

// Report computes a FairnessReport over the retained selection history (the
// most recent 4 × fairness window selections) against
// the given validator set (used for expected-share weighting).
func (s *Selector) Report(validators []*validator.Validator) FairnessReport {
	n := len(s.lastSelections)
	if n == 0 || len(validators) == 0 {
		return FairnessReport{FairDistribution: true, ResistantToGrinding: true}
	}

	counts := make(map[types.Address]int, len(validators))
	for _, v := range validators {
		counts[v.Address] = 0
	}
	for _, a := range s.lastSelections {
		counts[a]++
	}

	expected := float64(n) / float64(len(validators))
	chiSq := 0.0
	maxDeviation := 0.0
	for _, c := range counts {
		diff := float64(c) - expected
		if expected > 0 {
			chiSq += diff * diff / expected
		}
		deviation := math.Abs(diff) / expected * 100
		if deviation > maxDeviation {
			maxDeviation = deviation
		}
	}

	gini := giniCoefficient(counts)
	expectedGini := 0.0 // uniform distribution has zero Gini
	giniDiff := math.Abs(gini - expectedGini)

	streak := longestStreak(s.lastSelections)

	pValue := chiSquarePValueApprox(chiSq, len(validators)-1)

	return FairnessReport{
		ChiSquarePValue:     pValue,
		GiniDifference:      giniDiff,
		MaxPercentDeviation: maxDeviation,
		LongestStreak:       streak,
		FairDistribution:    pValue > 0.05,
		ResistantToGrinding: maxDeviation < 20 && streak <= 2,
	}
}

func giniCoefficient(counts map[types.Address]int) float64 {
	values := make([]float64, 0, len(counts))
	sum := 0.0
	for _, c := range counts {
		values = append(values, float64(c))
		sum += float64(c)
	}
	if sum == 0 || len(values) == 0 {
		return 0
	}
	// insertion sort, validator sets are small.
	for i := 1; i < len(values); i++ {
		for j := i; j > 0 && values[j-1] > values[j]; j-- {
			values[j-1], values[j] = values[j], values[j-1]
		}
	}
	n := float64(len(values))
	weightedSum := 0.0
	for i, v := range values {
		weightedSum += float64(i+1) * v
	}
	return (2*weightedSum)/(n*sum) - (n+1)/n
}

func longestStreak(selections []types.Address) int {
	best, cur := 0, 0
	var last types.Address
	for i, a := range selections {
		if i > 0 && a == last {
			cur++
		} else {
			cur = 1
		}
		if cur > best {
			best = cur
		}
		last = a
	}
	return best
}

// chiSquarePValueApprox approximates the upper-tail p-value of a chi-square
// statistic using Wilson-Hilferty's cube-root normal approximation — close
// enough for the fairness gate spec.md section 4.3 and 8 require (p>0.05),
// without pulling in a statistics dependency the pack doesn't carry.
func chiSquarePValueApprox(chiSq float64, df int) float64 {
	if df <= 0 {
		return 1.0
	}
	k := float64(df)
	h := 2.0 / (9.0 * k)
	z := (math.Pow(chiSq/k, 1.0/3.0) - (1 - h)) / math.Sqrt(h)
	return 1 - standardNormalCDF(z)
}

func standardNormalCDF(z float64) float64 {
	return 0.5 * (1 + math.Erf(z/math.Sqrt2))
}

// ReseedEntropy lets callers (e.g. genesis bootstrap) set a deterministic
// starting entropy pool instead of the zero value.
func (s *Selector) ReseedEntropy(seed [32]byte) {
	s.entropyPool = seed
}
