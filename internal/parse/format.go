package parse

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FormatBRL renders a value in Brazilian currency convention: dot-separated
// thousands, comma decimals.
func FormatBRL(d decimal.Decimal) string {
	fixed := d.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(fixed, ".")

	var grouped strings.Builder
	for i, digit := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			grouped.WriteByte('.')
		}
		grouped.WriteRune(digit)
	}

	out := "R$ " + grouped.String() + "," + frac
	if d.IsNegative() {
		out = "-" + out
	}
	return out
}
