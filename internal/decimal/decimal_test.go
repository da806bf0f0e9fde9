package decimal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_RejectsPrecisionLoss(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"plain money", "500.00", false},
		{"six fractional digits ok", "1.123456", false},
		{"seven fractional digits rejected", "1.1234567", true},
		{"empty string rejected", "", true},
		{"not a number", "abc", true},
		{"sixteen integer digits rejected", "1234567890123456", true},
		{"negative allowed", "-10.50", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.in)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrParseError)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAdd_Commutative(t *testing.T) {
	a := MustParse("10.50")
	b := MustParse("20.33")
	require.True(t, EqualsWithin(Add(a, b), Add(b, a), Zero))
}

func TestEqualsWithin(t *testing.T) {
	a := MustParse("100.00")
	b := MustParse("100.01")
	assert.True(t, EqualsWithin(a, b, MoneyAbsTolerance))
	b2 := MustParse("100.02")
	assert.False(t, EqualsWithin(a, b2, MoneyAbsTolerance))
}

func TestWithinRelative(t *testing.T) {
	po := MustParse("50.00")
	inv := MustParse("50.50") // 1% deviation
	assert.False(t, WithinRelative(po, inv, PriceRelTolerance))

	inv2 := MustParse("50.04") // 0.08% deviation
	assert.True(t, WithinRelative(po, inv2, PriceRelTolerance))
}

func TestDiv_BankersRoundingTruncation(t *testing.T) {
	a := MustParse("10.00")
	b := MustParse("3")
	got, err := Div(a, b)
	require.NoError(t, err)
	assert.Equal(t, "3.333333", got.String())
}

func TestDiv_TieRoundsToEven(t *testing.T) {
	// 1/128 = 0.0078125 exactly: a tie at the sixth place that must round
	// down to the even digit, not away from zero.
	down, err := Div(MustParse("1"), MustParse("128"))
	require.NoError(t, err)
	assert.Equal(t, "0.007812", down.String())

	// 3/128 = 0.0234375 exactly: the same tie rounding up to even.
	up, err := Div(MustParse("3"), MustParse("128"))
	require.NoError(t, err)
	assert.Equal(t, "0.023438", up.String())
}

func TestDiv_ByZero(t *testing.T) {
	_, err := Div(MustParse("1.00"), Zero)
	assert.ErrorIs(t, err, ErrParseError)
}

func TestMul_LineItemArithmetic(t *testing.T) {
	qty := MustParse("10")
	price := MustParse("50.00")
	total := Mul(qty, price)
	assert.True(t, EqualsWithin(total, MustParse("500.00"), MoneyAbsTolerance))
}
