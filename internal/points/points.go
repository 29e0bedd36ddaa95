// Package points is the single source of truth for the real-currency to
// carbon-point exchange rate.
package points

import (
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// CoinPrecision is the number of decimal places stored for point amounts.
const CoinPrecision = 6

// Converter translates between real currency and carbon points at a fixed
// rate (currency units per point). All methods are pure and deterministic.
type Converter struct {
	rate decimal.Decimal
}

// NewConverter reads the configured rate. Falls back to the default rate if
// the config value is missing or unparsable.
func NewConverter() *Converter {
	viper.SetDefault("points.rate", "18")

	rate, err := decimal.NewFromString(viper.GetString("points.rate"))
	if err != nil || !rate.IsPositive() {
		rate = decimal.NewFromInt(18)
	}
	return &Converter{rate: rate}
}

// NewConverterWithRate builds a converter with an explicit rate.
func NewConverterWithRate(rate decimal.Decimal) *Converter {
	return &Converter{rate: rate}
}

// Rate returns currency units per point.
func (c *Converter) Rate() decimal.Decimal {
	return c.rate
}

// ToPoints converts a currency amount to points, rounded half-up to
// CoinPrecision places. Callers must reject amounts that round to zero.
func (c *Converter) ToPoints(amount decimal.Decimal) decimal.Decimal {
	return amount.DivRound(c.rate, CoinPrecision)
}

// ToCurrency converts points back to currency. No forced rounding; the
// presentation layer rounds for display.
func (c *Converter) ToCurrency(coins decimal.Decimal) decimal.Decimal {
	return coins.Mul(c.rate)
}
