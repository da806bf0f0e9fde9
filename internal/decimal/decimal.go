// Package decimal provides exact fixed-point arithmetic for cross-document
// financial comparisons. Every value that participates in a reconciliation
// verdict passes through this package; floating binary representations never
// appear on the comparison path.
package decimal

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrParseError is returned when a string value cannot be parsed without
// losing precision, or violates the digit-count bounds.
var ErrParseError = errors.New("decimal: parse error")

// maxFractionalDigits and maxIntegerDigits bound what the Extraction Agent
// is allowed to accept from an LLM completion.
const (
	maxFractionalDigits = 6
	maxIntegerDigits    = 15
)

// divisionScale is the number of fractional digits a Div result is
// truncated to.
const divisionScale = 6

// MoneyAbsTolerance is the absolute tolerance for monetary comparisons.
var MoneyAbsTolerance = decimal.NewFromFloat(0.01)

// PriceRelTolerance is the relative tolerance for unit-price deviation
// comparisons.
var PriceRelTolerance = decimal.NewFromFloat(0.001)

// QuantityAbsTolerance is the absolute tolerance for quantity comparisons;
// quantities must match exactly.
var QuantityAbsTolerance = decimal.Zero

// D is an exact fixed-point value. It is a thin alias over shopspring/decimal
// so that no package outside internal/decimal needs to import that library
// directly, and so every conversion funnels through Parse's strictness.
type D = decimal.Decimal

// Zero is the additive identity.
var Zero = decimal.Zero

// Parse converts a string to a D, rejecting any input that would lose
// precision or exceed the digit bounds. This is the only sanctioned way
// external numeric strings enter the system.
func Parse(s string) (D, error) {
	if s == "" {
		return Zero, fmt.Errorf("%w: empty numeric literal", ErrParseError)
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("%w: %v", ErrParseError, err)
	}
	if v.Exponent() < -maxFractionalDigits {
		return Zero, fmt.Errorf("%w: %q has more than %d fractional digits", ErrParseError, s, maxFractionalDigits)
	}
	intDigits := len(v.Abs().Truncate(0).Coefficient().String())
	if v.IsZero() {
		intDigits = 1
	}
	if intDigits > maxIntegerDigits {
		return Zero, fmt.Errorf("%w: %q has more than %d integer digits", ErrParseError, s, maxIntegerDigits)
	}
	return v, nil
}

// MustParse is Parse that panics on error; reserved for literals in tests
// and fixtures where the input is known-good.
func MustParse(s string) D {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Add returns a + b exactly.
func Add(a, b D) D { return a.Add(b) }

// Sub returns a - b exactly.
func Sub(a, b D) D { return a.Sub(b) }

// Mul returns a * b exactly.
func Mul(a, b D) D { return a.Mul(b) }

// Div returns a / b truncated to divisionScale fractional digits using
// banker's rounding (round-half-to-even). The raw quotient carries four
// guard digits so RoundBank sees an exact tie at the sixth place rather
// than one already rounded away from it. Division by zero returns
// ErrParseError rather than an infinite/NaN value, since no fixed-point
// representation of those exists.
func Div(a, b D) (D, error) {
	if b.IsZero() {
		return Zero, fmt.Errorf("%w: division by zero", ErrParseError)
	}
	return a.DivRound(b, divisionScale+4).RoundBank(divisionScale), nil
}

// EqualsWithin reports whether |a-b| <= absTol.
func EqualsWithin(a, b D, absTol D) bool {
	return a.Sub(b).Abs().LessThanOrEqual(absTol)
}

// WithinRelative reports whether |a-b|/|a| <= relTol. When a is zero the
// comparison falls back to an absolute check against b, since a relative
// tolerance is undefined at zero.
func WithinRelative(a, b D, relTol D) bool {
	if a.IsZero() {
		return b.IsZero()
	}
	return RelativeDelta(a, b).LessThanOrEqual(relTol)
}

// RelativeDelta returns |a-b|/|a| per Div's rounding rules, the magnitude
// the PRICE_DEVIATION check compares against PriceRelTolerance. Returns
// zero when a is zero.
func RelativeDelta(a, b D) D {
	if a.IsZero() {
		return Zero
	}
	ratio, _ := Div(a.Sub(b).Abs(), a.Abs()) // a is non-zero, Div cannot fail
	return ratio
}
