package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// NumericFields are coerced with ToNumber. Values that fail to parse are removed.
var NumericFields = []string{
	"price", "communalFees", "depositValue", "bedrooms", "bathrooms",
	"areaSqm", "coveredAreaSqm", "coveredVerandaSqm", "uncoveredVerandaSqm",
	"plotAreaSqm", "basementSqm", "buildYear",
}

// SignedFields keep a leading minus sign.
var SignedFields = []string{"latitude", "longitude"}

// IntegerFields are rounded after coercion. Bathrooms may be fractional.
var IntegerFields = map[string]bool{"bedrooms": true, "buildYear": true}

// BoolFields are coerced from "yes"/"true"/"1" style answers.
var BoolFields = []string{"priceIncludesCommunalFees", "billsTransferable"}

// ToNumber strips everything but digits and dots and parses the longest
// numeric prefix. "€1,500" is 1500; "n/a" is nil. Zero is a valid result.
// More than one dot means dot grouping, so "€1.500.000" is 1500000; a single
// dot is always a decimal point.
func ToNumber(v any) *float64 {
	return toNumber(v, false)
}

// ToSignedNumber is ToNumber that keeps a leading minus (coordinates).
func ToSignedNumber(v any) *float64 {
	return toNumber(v, true)
}

func toNumber(v any, signed bool) *float64 {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		return parseNumeric(t.String(), signed)
	case string:
		return parseNumeric(t, signed)
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	if !signed && f < 0 {
		f = -f
	}
	return &f
}

func parseNumeric(s string, signed bool) *float64 {
	var b strings.Builder
	negative := false
	for _, r := range strings.TrimSpace(s) {
		switch {
		case r >= '0' && r <= '9', r == '.':
			b.WriteRune(r)
		case r == '-' && signed && b.Len() == 0:
			negative = true
		}
	}
	digits := b.String()
	if strings.Count(digits, ".") > 1 {
		digits = strings.ReplaceAll(digits, ".", "")
	}
	prefix := numericPrefix(digits)
	if prefix == "" {
		return nil
	}
	f, err := strconv.ParseFloat(prefix, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	if negative {
		f = -f
	}
	return &f
}

// numericPrefix returns the longest prefix of digits with at most one dot
// that contains at least one digit.
func numericPrefix(s string) string {
	end, digits, dot := 0, 0, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '.' {
			if dot {
				break
			}
			dot = true
			end = i + 1
			continue
		}
		digits++
		end = i + 1
	}
	if digits == 0 {
		return ""
	}
	return strings.TrimSuffix(s[:end], ".")
}

// ToBool maps common yes/no answers. Unknown answers are nil.
func ToBool(v any) *bool {
	var b bool
	switch t := v.(type) {
	case bool:
		b = t
	case float64:
		b = t != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "y", "1", "included":
			b = true
		case "false", "no", "n", "0", "excluded":
			b = false
		default:
			return nil
		}
	default:
		return nil
	}
	return &b
}

// CoerceNumbers applies ToNumber/ToSignedNumber/ToBool to the known fields of
// obj in place. Unparseable values are deleted, never zeroed.
func CoerceNumbers(obj map[string]any) {
	for _, k := range NumericFields {
		coerceField(obj, k, ToNumber)
	}
	for _, k := range SignedFields {
		coerceField(obj, k, ToSignedNumber)
	}
	for _, k := range BoolFields {
		v, ok := obj[k]
		if !ok {
			continue
		}
		if b := ToBool(v); b != nil {
			obj[k] = *b
		} else {
			delete(obj, k)
		}
	}
}

func coerceField(obj map[string]any, k string, conv func(any) *float64) {
	v, ok := obj[k]
	if !ok {
		return
	}
	n := conv(v)
	if n == nil {
		delete(obj, k)
		return
	}
	if IntegerFields[k] {
		obj[k] = math.Round(*n)
		return
	}
	obj[k] = *n
}
