package points

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestConverter_ToPoints(t *testing.T) {
	c := NewConverterWithRate(decimal.NewFromInt(18))

	t.Run("rate 18 converts 100 to 5.555556", func(t *testing.T) {
		coins := c.ToPoints(decimal.NewFromInt(100))
		assert.Equal(t, "5.555556", coins.String())
	})

	t.Run("small positive amount does not floor to zero", func(t *testing.T) {
		coins := c.ToPoints(decimal.RequireFromString("0.01"))
		assert.True(t, coins.IsPositive())
		assert.Equal(t, "0.000556", coins.String())
	})

	t.Run("negligible amount rounds to zero for caller rejection", func(t *testing.T) {
		coins := c.ToPoints(decimal.RequireFromString("0.000001"))
		assert.True(t, coins.IsZero())
	})
}

func TestConverter_ToCurrency(t *testing.T) {
	c := NewConverterWithRate(decimal.NewFromInt(18))

	amount := c.ToCurrency(decimal.RequireFromString("5.555556"))
	diff := amount.Sub(decimal.NewFromInt(100)).Abs()
	assert.True(t, diff.LessThan(decimal.RequireFromString("0.001")),
		"expected ~100.00, got %s", amount.String())
}

func TestConverter_RoundTrip(t *testing.T) {
	c := NewConverterWithRate(decimal.NewFromInt(18))

	// One point of rounding error at coin precision translates to at most
	// rate * 10^-6 currency units.
	tolerance := c.Rate().Shift(-CoinPrecision)

	for _, raw := range []string{"1", "18", "100", "2500.50", "0.25", "99999.99"} {
		amount := decimal.RequireFromString(raw)
		back := c.ToCurrency(c.ToPoints(amount))
		diff := back.Sub(amount).Abs()
		assert.True(t, diff.LessThanOrEqual(tolerance),
			"round trip of %s drifted by %s", raw, diff.String())
	}
}

func TestConverter_Deterministic(t *testing.T) {
	c := NewConverterWithRate(decimal.RequireFromString("17.35"))

	a := c.ToPoints(decimal.NewFromInt(250))
	b := c.ToPoints(decimal.NewFromInt(250))
	assert.True(t, a.Equal(b))
}
