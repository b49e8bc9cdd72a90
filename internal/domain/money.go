package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ISO 4217 minor units for currencies that do not use two decimals.
var currencyPrecision = map[string]int32{
	"BHD": 3,
	"CLP": 0,
	"ISK": 0,
	"JOD": 3,
	"JPY": 0,
	"KRW": 0,
	"KWD": 3,
	"OMR": 3,
	"TND": 3,
	"VND": 0,
}

// CurrencyPrecision returns the number of minor-unit digits for currency.
func CurrencyPrecision(currency string) int32 {
	if p, ok := currencyPrecision[strings.ToUpper(currency)]; ok {
		return p
	}
	return 2
}

// TotalFiat multiplies price by amount and rounds half away from zero to the
// currency's precision.
func TotalFiat(price, amount decimal.Decimal, currency string) decimal.Decimal {
	return price.Mul(amount).Round(CurrencyPrecision(currency))
}

// MinorUnits converts a fiat amount into integer minor units (cents for EUR).
func MinorUnits(amount decimal.Decimal, currency string) int64 {
	p := CurrencyPrecision(currency)
	return amount.Shift(p).Round(0).IntPart()
}
