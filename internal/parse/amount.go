// Package parse provides locale-tolerant parsing of monetary amounts and
// dates as they appear in fiscal documents. Brazilian sources mix
// comma-decimal ("1.234,56") and dot-decimal ("1,234.56") conventions, often
// with currency symbols attached, so parsing never assumes one locale.
package parse

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Pre-compiled: strips everything except digits, separators and sign.
var nonAmountChars = regexp.MustCompile(`[^\d.,-]`)

// Amount parses a monetary or numeric string into a decimal. The decimal
// separator is whichever of the last comma or last dot occurs further right;
// the other is treated as a thousands separator. Accounting-style negatives
// "(123,45)" are honored. Returns ok=false for unparseable input.
func Amount(value string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(value)
	if s == "" {
		return decimal.Zero, false
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = nonAmountChars.ReplaceAllString(s, "")
	if s == "" || s == "-" {
		return decimal.Zero, false
	}

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")

	switch {
	case lastComma > lastDot:
		// Comma decimal: "1.234,56"
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case lastDot > lastComma:
		// Dot decimal: "1,234.56"
		s = strings.ReplaceAll(s, ",", "")
	default:
		// Single separator or none.
		s = strings.Replace(s, ",", ".", 1)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	if negative {
		d = d.Neg()
	}
	return d, true
}

// Float is the lossy variant of Amount used where findings only need a
// comparable magnitude. Unparseable input yields 0, matching how the rules
// engine treats absent values.
func Float(value string) float64 {
	d, ok := Amount(value)
	if !ok {
		return 0
	}
	f, _ := d.Float64()
	return f
}
