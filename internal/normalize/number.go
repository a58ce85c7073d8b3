package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	errNotNumeric = errors.New("not a number")
	errEmpty      = errors.New("empty")
	errOutOfRange = errors.New("out of range")
)

// Bounds for plausible feed values. The widest metric column holds 18 integer digits and the
// finest 8 decimals, so anything far outside is a feed error rather than data.
const (
	maxNumberLen     = 64
	maxIntegerDigits = 20
	minExponent      = -30
)

var hundred = decimal.NewFromInt(100)

// nullMarkers are string values the feed uses for "not reported".
var nullMarkers = []string{"", "-", "\u2014", "null", "none", "n/a", "nan"}

// parseNumber converts a raw feed value into a decimal. It reports whether the value carried
// a percent sign. A nil or empty value returns errEmpty.
func parseNumber(v any) (decimal.Decimal, bool, error) {
	d, percent, err := parseRawNumber(v)
	if err != nil {
		return decimal.Decimal{}, false, err
	}
	if err := checkMagnitude(d); err != nil {
		return decimal.Decimal{}, false, err
	}
	return d, percent, nil
}

func parseRawNumber(v any) (decimal.Decimal, bool, error) {
	switch n := v.(type) {
	case nil:
		return decimal.Decimal{}, false, errEmpty
	case json.Number:
		if len(n) > maxNumberLen {
			return decimal.Decimal{}, false, errOutOfRange
		}
		d, err := decimal.NewFromString(n.String())
		if err != nil {
			return decimal.Decimal{}, false, errNotNumeric
		}
		return d, false, nil
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return decimal.Decimal{}, false, errNotNumeric
		}
		return decimal.NewFromFloat(n), false, nil
	case int:
		return decimal.NewFromInt(int64(n)), false, nil
	case int64:
		return decimal.NewFromInt(n), false, nil
	case string:
		if len(n) > maxNumberLen {
			return decimal.Decimal{}, false, errOutOfRange
		}
		return parseNumericString(n)
	default:
		return decimal.Decimal{}, false, errNotNumeric
	}
}

// checkMagnitude rejects values whose exponent puts them far beyond the stored precision. It
// never expands the decimal, so huge exponents cost nothing.
func checkMagnitude(d decimal.Decimal) error {
	if d.IsZero() {
		return nil
	}
	exp := int64(d.Exponent())
	if exp < minExponent || int64(d.NumDigits())+exp > maxIntegerDigits {
		return errOutOfRange
	}
	return nil
}

// parseNumericString handles locale formatted strings: thousands separators (",", ".", spaces,
// apostrophes), comma decimals, unicode minus, accounting parentheses and a percent sign.
func parseNumericString(s string) (decimal.Decimal, bool, error) {
	s = strings.TrimSpace(strings.Map(func(r rune) rune {
		switch r {
		case '\u00a0', '\u202f', '\u2009':
			return ' '
		case '\u2212':
			return '-'
		}
		return r
	}, s))

	for _, marker := range nullMarkers {
		if strings.EqualFold(s, marker) {
			return decimal.Decimal{}, false, errEmpty
		}
	}

	percent := false
	if strings.HasSuffix(s, "%") {
		percent = true
		s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	} else if strings.HasPrefix(s, "%") {
		percent = true
		s = strings.TrimSpace(strings.TrimPrefix(s, "%"))
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	if strings.HasPrefix(s, "-") {
		negative = !negative
		s = strings.TrimSpace(s[1:])
	} else if strings.HasPrefix(s, "+") {
		s = strings.TrimSpace(s[1:])
	}

	s = strings.NewReplacer(" ", "", "'", "", "\u2019", "").Replace(s)
	if s == "" {
		return decimal.Decimal{}, false, errNotNumeric
	}

	s = normalizeSeparators(s)
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' && r != 'e' && r != 'E' && r != '+' && r != '-' {
			return decimal.Decimal{}, false, errNotNumeric
		}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false, errNotNumeric
	}
	if negative {
		d = d.Neg()
	}
	return d, percent, nil
}

// normalizeSeparators rewrites s so that "." is the only decimal separator and no grouping remains.
func normalizeSeparators(s string) string {
	commas := strings.Count(s, ",")
	dots := strings.Count(s, ".")

	switch {
	case commas > 0 && dots > 0:
		// The separator that appears last is the decimal one.
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			return strings.Replace(strings.ReplaceAll(s, ".", ""), ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case commas > 1:
		return strings.ReplaceAll(s, ",", "")
	case commas == 1:
		i := strings.Index(s, ",")
		intPart, frac := s[:i], s[i+1:]
		if len(frac) == 3 && len(intPart) >= 1 && len(intPart) <= 3 && intPart != "0" {
			return intPart + frac
		}
		return intPart + "." + frac
	case dots > 1:
		return strings.ReplaceAll(s, ".", "")
	default:
		return s
	}
}

// toText renders an identifier or label value as a trimmed string.
func toText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}
