package models

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// ToMinorUnits converts a major-unit amount to integer minor units, rounding half away from zero.
func ToMinorUnits(major float64) int64 {
	return decimal.NewFromFloat(major).Mul(hundred).Round(0).IntPart()
}

// FromMinorUnits converts minor units back into a major-unit decimal.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// FormatMinorUnits renders minor units with two decimals, e.g. 12345 -> "123.45".
func FormatMinorUnits(minor int64) string {
	return FromMinorUnits(minor).StringFixed(2)
}
