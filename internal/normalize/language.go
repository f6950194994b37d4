package normalize

import (
	"strings"
	"unicode"

	"github.com/auditoria/fiscal/internal/model"
)

// guessLocale infers a best-effort language/locale from decimal-separator
// convention and accented-character density. It is a hint for downstream
// consumers, never a parsing decision.
func guessLocale(text string, items []model.Item) (language, locale string) {
	sample := text
	if sample == "" {
		var sb strings.Builder
		for _, item := range items {
			for _, v := range item {
				sb.WriteString(v)
				sb.WriteString(" ")
			}
			if sb.Len() > 8192 {
				break
			}
		}
		sample = sb.String()
	}
	if len(sample) > 16384 {
		sample = sample[:16384]
	}
	if strings.TrimSpace(sample) == "" {
		return "", ""
	}

	letters, accented := 0, 0
	commaDecimals, dotDecimals := 0, 0
	runes := []rune(sample)
	for i, r := range runes {
		if unicode.IsLetter(r) {
			letters++
			if r > 0x7F {
				accented++
			}
		}
		// "x,yz" vs "x.yz" with digits on both sides marks the decimal style.
		if (r == ',' || r == '.') && i > 0 && i+2 < len(runes) &&
			unicode.IsDigit(runes[i-1]) && unicode.IsDigit(runes[i+1]) && unicode.IsDigit(runes[i+2]) &&
			(i+3 >= len(runes) || !unicode.IsDigit(runes[i+3])) {
			if r == ',' {
				commaDecimals++
			} else {
				dotDecimals++
			}
		}
	}

	accentDensity := 0.0
	if letters > 0 {
		accentDensity = float64(accented) / float64(letters)
	}

	switch {
	case commaDecimals > dotDecimals || accentDensity > 0.02:
		return "pt", "pt-BR"
	case dotDecimals > 0 || letters > 0:
		return "en", "en-US"
	default:
		return "", ""
	}
}
