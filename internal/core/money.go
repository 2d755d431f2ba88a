// Package core provides price parsing and handling utilities.
//
// Prices are kept as integer cents and only converted to a float for the
// emissions API and for display.
package core

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Money is an amount in the configured currency, stored as cents.
type Money struct {
	Cents int64
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidPrice
	}
	return nil
}

// Amount returns the decimal value as a float64 for the API and display.
func (m Money) Amount() float64 {
	return float64(m.Cents) / 100.0
}

func (m Money) String() string {
	return fmt.Sprintf("%d.%02d", m.Cents/100, m.Cents%100)
}

// ParsePrice converts a user-entered decimal string to Money.
//
// Both dot (12.34) and comma (12,34) separators are accepted, a leading
// currency symbol is ignored and the third decimal is rounded half-up.
// Zero, negative and malformed input yields ErrInvalidPrice.
//
// Examples:
//
//	ParsePrice("12.34")  -> 1234 cents
//	ParsePrice("$12,34") -> 1234 cents
//	ParsePrice("12.346") -> 1235 cents
func ParsePrice(s string) (Money, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", ".")
	if s == "" || strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return Money{}, ErrInvalidPrice
	}

	whole, frac, _ := strings.Cut(s, ".")
	if strings.Contains(frac, ".") {
		return Money{}, ErrInvalidPrice
	}
	if whole == "" {
		whole = "0"
	}
	if !allDigits(whole) || !allDigits(frac) {
		return Money{}, ErrInvalidPrice
	}

	iv, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return Money{}, ErrInvalidPrice
	}
	const maxWhole = (1<<63 - 1) / 100
	if iv > maxWhole {
		return Money{}, ErrInvalidPrice
	}

	cents := iv*100 + fractionCents(frac)
	if cents <= 0 {
		return Money{}, ErrInvalidPrice
	}
	return Money{Cents: cents}, nil
}

// MoneyFromAmount converts a decimal amount, rounding to the nearest cent.
func MoneyFromAmount(v float64) Money {
	if v < 0 {
		return Money{Cents: int64(v*100 - 0.5)}
	}
	return Money{Cents: int64(v*100 + 0.5)}
}

// fractionCents takes the first two digits and rounds half-up on the third.
func fractionCents(frac string) int64 {
	var c int64
	for i := 0; i < 2; i++ {
		c *= 10
		if i < len(frac) {
			c += int64(frac[i] - '0')
		}
	}
	if len(frac) > 2 && frac[2] >= '5' {
		c++
	}
	return c
}

func allDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
