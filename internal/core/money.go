// Package core provides the finance domain types and the derived statistics
// the dashboard views show.
//
// This file contains the Amount type. Amounts are kept in cents; the API
// serializes decimal fields as strings, and both strings and JSON numbers are
// accepted when decoding.
package core

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Amount is a monetary value in cents of the wallet or user currency.
type Amount int64

// ParseAmount converts a decimal string to an Amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and an
// optional leading sign, and rounds half up on the third decimal place.
// Surrounding whitespace is ignored.
//
// Examples:
//
//	ParseAmount("12.34")   -> 1234, nil
//	ParseAmount("12,34")   -> 1234, nil
//	ParseAmount("12.345")  -> 1235, nil
//	ParseAmount("-5")      -> -500, nil
//	ParseAmount("1.2.3")   -> 0, ErrInvalidAmount
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	negative := false
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		negative = s[0] == '-'
		s = s[1:]
	}
	// Normalize decimal comma to dot
	s = strings.ReplaceAll(s, ",", ".")
	intPart, fracPart, _ := strings.Cut(s, ".")
	if intPart == "" && fracPart == "" {
		return 0, ErrInvalidAmount
	}
	if !allDigits(intPart) || !allDigits(fracPart) {
		return 0, ErrInvalidAmount
	}

	var units int64
	if intPart != "" {
		v, err := strconv.ParseInt(intPart, 10, 64)
		if err != nil || v > math.MaxInt64/100-1 {
			return 0, ErrInvalidAmount
		}
		units = v
	}

	var cents int64
	for i := 0; i < len(fracPart) && i < 2; i++ {
		cents = cents*10 + int64(fracPart[i]-'0')
	}
	if len(fracPart) == 1 {
		cents *= 10
	}
	if len(fracPart) > 2 && fracPart[2] >= '5' {
		cents++
	}

	total := units*100 + cents
	if negative {
		total = -total
	}
	return Amount(total), nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// AmountFromFloat converts a value in currency units, rounding to the
// nearest cent.
func AmountFromFloat(f float64) Amount {
	return Amount(math.Round(f * 100))
}

// Float64 returns the amount in currency units, for display and for
// spreadsheets. Use cents for calculations.
func (a Amount) Float64() float64 {
	return float64(a) / 100
}

// UnmarshalJSON accepts 12.5, "12.50", "12,50" and null (zero).
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := ParseAmount(s)
		if err != nil {
			return err
		}
		*a = v
		return nil
	}
	// plain decimals are parsed exactly; exponents go through float64
	if v, err := ParseAmount(string(data)); err == nil {
		*a = v
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return ErrInvalidAmount
	}
	*a = AmountFromFloat(f)
	return nil
}

// MarshalJSON emits the amount as a decimal string with two fractional digits,
// the shape the API expects for decimal fields.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// String formats the amount with two decimals.
func (a Amount) String() string {
	c := int64(a)
	sign := ""
	u := uint64(c)
	if c < 0 {
		sign = "-"
		u = uint64(-(c + 1)) + 1
	}
	return sign + strconv.FormatUint(u/100, 10) + "." + twoDigits(u%100)
}

func twoDigits(v uint64) string {
	if v < 10 {
		return "0" + strconv.FormatUint(v, 10)
	}
	return strconv.FormatUint(v, 10)
}
