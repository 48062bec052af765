package types

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

// AmountDecimals is the number of fixed-point decimal places an Amount
// carries — BT2C quotes to 8 decimal places, like the satoshi convention it
// borrows block-reward flooring from.
const AmountDecimals = 8

var amountScale = func() *uint256.Int {
	s := uint256.NewInt(1)
	ten := uint256.NewInt(10)
	for i := 0; i < AmountDecimals; i++ {
		s.Mul(s, ten)
	}
	return s
}()

// Amount is a non-negative fixed-point quantity stored as an integer count
// of 1e-8 units in a uint256.Int, avoiding the float drift spec.md forbids in
// canonical encoding. The zero value is zero.
type Amount struct {
	v uint256.Int
}

// ZeroAmount is the additive identity.
var ZeroAmount = Amount{}

// NewAmountFromUnits builds an Amount directly from its integer 1e-8 unit
// count (e.g. NewAmountFromUnits(500000000) == 5.0).
func NewAmountFromUnits(units uint64) Amount {
	var a Amount
	a.v.SetUint64(units)
	return a
}

// ParseAmount parses a decimal string ("5", "5.25", "0.00000001") into an
// Amount. Negative values are rejected since every Amount is non-negative.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ZeroAmount, fmt.Errorf("empty amount")
	}
	if strings.HasPrefix(s, "-") {
		return ZeroAmount, fmt.Errorf("negative amount %q", s)
	}

	whole, frac, hasFrac := strings.Cut(s, ".")
	if hasFrac {
		if len(frac) > AmountDecimals {
			return ZeroAmount, fmt.Errorf("amount %q has more than %d decimal places", s, AmountDecimals)
		}
		frac = frac + strings.Repeat("0", AmountDecimals-len(frac))
	} else {
		frac = strings.Repeat("0", AmountDecimals)
	}
	if whole == "" {
		whole = "0"
	}

	digits := whole + frac
	bi, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return ZeroAmount, fmt.Errorf("invalid amount %q", s)
	}

	var a Amount
	overflow := a.v.SetFromBig(bi)
	if overflow {
		return ZeroAmount, fmt.Errorf("amount %q overflows 256 bits", s)
	}
	return a, nil
}

// MustParseAmount parses s, panicking on error — for constants built at
// init time from literal strings that are known-valid.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// String renders the amount as a decimal string with no trailing zeros
// beyond the integer part.
func (a Amount) String() string {
	bi := a.v.ToBig()
	scale := new(big.Int).SetUint64(1)
	for i := 0; i < AmountDecimals; i++ {
		scale.Mul(scale, big.NewInt(10))
	}
	whole := new(big.Int).Div(bi, scale)
	rem := new(big.Int).Mod(bi, scale)

	fracStr := rem.String()
	if pad := AmountDecimals - len(fracStr); pad > 0 {
		fracStr = strings.Repeat("0", pad) + fracStr
	}
	fracStr = strings.TrimRight(fracStr, "0")
	if fracStr == "" {
		return whole.String()
	}
	return whole.String() + "." + fracStr
}

// Units returns the raw integer count of 1e-8 units.
func (a Amount) Units() *uint256.Int {
	return new(uint256.Int).Set(&a.v)
}

// Add returns a+b.
func (a Amount) Add(b Amount) Amount {
	var out Amount
	out.v.Add(&a.v, &b.v)
	return out
}

// Sub returns a-b. Panics if b > a — callers must check Cmp first since
// Amount is always non-negative.
func (a Amount) Sub(b Amount) Amount {
	if a.v.Lt(&b.v) {
		panic(fmt.Sprintf("amount underflow: %s - %s", a.String(), b.String()))
	}
	var out Amount
	out.v.Sub(&a.v, &b.v)
	return out
}

// Cmp returns -1, 0, or 1 as a is less than, equal to, or greater than b.
func (a Amount) Cmp(b Amount) int {
	return a.v.Cmp(&b.v)
}

// IsZero reports whether the amount is exactly zero.
func (a Amount) IsZero() bool {
	return a.v.IsZero()
}

// MulRat multiplies the amount by a rational numerator/denominator pair,
// used for commission splits and halving. Truncates toward zero.
func (a Amount) MulRat(num, den uint64) Amount {
	if den == 0 {
		panic("MulRat: zero denominator")
	}
	bi := a.v.ToBig()
	bi.Mul(bi, new(big.Int).SetUint64(num))
	bi.Div(bi, new(big.Int).SetUint64(den))
	var out Amount
	out.v.SetFromBig(bi)
	return out
}

// MarshalJSON encodes the amount as a decimal string per spec.md's canonical
// encoding rule (numeric amounts as decimal strings, never floats).
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON decodes a decimal string into the amount.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
