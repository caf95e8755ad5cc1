// Package types provides value types shared across credits packages.
package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Money is an amount in the smallest currency unit, e.g. USD(500) is $5.00
// and INR(20000) is ₹200.00. Arithmetic is integer-only.
type Money struct {
	Amount   int64  `json:"amount"`   // Minor units (cents, paise)
	Currency string `json:"currency"` // ISO 4217 lowercase: "usd", "inr"
}

// USD creates a Money value in US Dollars (cents).
func USD(cents int64) Money { return Money{Amount: cents, Currency: "usd"} }

// INR creates a Money value in Indian Rupees (paise).
func INR(paise int64) Money { return Money{Amount: paise, Currency: "inr"} }

// Zero returns a zero Money value in the specified currency.
func Zero(currency string) Money { return Money{Amount: 0, Currency: strings.ToLower(currency)} }

// Multiply multiplies the Money by a quantity.
func (m Money) Multiply(qty int64) Money {
	return Money{Amount: m.Amount * qty, Currency: m.Currency}
}

// IsPositive returns true if the amount is greater than zero.
func (m Money) IsPositive() bool { return m.Amount > 0 }

// Equal returns true if both Money values are equal (same amount and currency).
func (m Money) Equal(other Money) bool {
	return m.Amount == other.Amount && m.Currency == other.Currency
}

// CurrencyCode returns the upper-case ISO 4217 code, as payment gateways expect it.
func (m Money) CurrencyCode() string { return strings.ToUpper(m.Currency) }

// Symbol returns the display symbol for the currency.
func (m Money) Symbol() string { return currencySymbol(m.Currency) }

// FormatMajor returns the major unit string without currency symbol.
// For currencies with 2 decimal places: "5.00" for USD(500).
func (m Money) FormatMajor() string {
	decimals := currencyDecimals(m.Currency)
	if decimals == 0 {
		return fmt.Sprintf("%d", m.Amount)
	}

	divisor := int64(1)
	for i := 0; i < decimals; i++ {
		divisor *= 10
	}

	isNegative := m.Amount < 0
	absAmount := m.Amount
	if isNegative {
		absAmount = -absAmount
	}

	format := fmt.Sprintf("%%d.%%0%dd", decimals)
	result := fmt.Sprintf(format, absAmount/divisor, absAmount%divisor)

	if isNegative {
		return "-" + result
	}
	return result
}

// String returns a human-readable string with currency symbol.
// Examples: "$5.00", "₹200.00"
func (m Money) String() string {
	return currencySymbol(m.Currency) + m.FormatMajor()
}

// MarshalJSON implements json.Marshaler.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		Display  string `json:"display"`
	}{
		Amount:   m.Amount,
		Currency: m.Currency,
		Display:  m.String(),
	})
}

func currencySymbol(currency string) string {
	symbols := map[string]string{
		"usd": "$",
		"inr": "₹",
		"eur": "€",
		"gbp": "£",
		"jpy": "¥",
	}
	if sym, ok := symbols[strings.ToLower(currency)]; ok {
		return sym
	}
	return strings.ToUpper(currency) + " "
}

func currencyDecimals(currency string) int {
	zeroDecimal := map[string]bool{
		"jpy": true,
		"krw": true,
		"vnd": true,
	}
	if zeroDecimal[strings.ToLower(currency)] {
		return 0
	}
	return 2
}
