package encoding

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"

	"github.com/auditoria/fiscal/internal/model"
)

// maxSampleBytes caps the slice fed to statistical charset detection.
const maxSampleBytes = 128 * 1024

// fallbackEncodings is the fixed chain attempted after the detected encoding
// and any caller hints.
var fallbackEncodings = []string{
	"utf-8",
	"utf-16le",
	"utf-16be",
	"iso-8859-1",
	"windows-1252",
	"shift_jis",
	"gb2312",
	"koi8-r",
	"macroman",
}

// encodingNormalization maps detector/caller spellings onto canonical names.
var encodingNormalization = map[string]string{
	"utf8":         "utf-8",
	"utf-8":        "utf-8",
	"utf_8":        "utf-8",
	"ascii":        "utf-8",
	"utf-16":       "utf-16le",
	"utf-16le":     "utf-16le",
	"utf-16be":     "utf-16be",
	"iso-8859-1":   "iso-8859-1",
	"iso8859-1":    "iso-8859-1",
	"latin1":       "iso-8859-1",
	"iso-8859-2":   "iso-8859-2",
	"windows-1252": "windows-1252",
	"windows1252":  "windows-1252",
	"cp1252":       "windows-1252",
	"shift_jis":    "shift_jis",
	"shiftjis":     "shift_jis",
	"sjis":         "shift_jis",
	"gb2312":       "gb2312",
	"gb-18030":     "gb2312",
	"gbk":          "gb2312",
	"koi8-r":       "koi8-r",
	"koi8r":        "koi8-r",
	"macroman":     "macroman",
	"macintosh":    "macroman",
	"big5":         "big5",
	"euc-jp":       "euc-jp",
}

// decoders maps canonical encoding names to x/text decoders. UTF-8 is
// handled natively.
var decoders = map[string]encoding.Encoding{
	"utf-16le":     unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM),
	"utf-16be":     unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM),
	"iso-8859-1":   charmap.ISO8859_1,
	"iso-8859-2":   charmap.ISO8859_2,
	"windows-1252": charmap.Windows1252,
	"shift_jis":    japanese.ShiftJIS,
	"euc-jp":       japanese.EUCJP,
	"gb2312":       simplifiedchinese.GBK,
	"koi8-r":       charmap.KOI8R,
	"macroman":     charmap.Macintosh,
}

var bomTable = map[string][]byte{
	"utf-8":    {0xEF, 0xBB, 0xBF},
	"utf-16le": {0xFF, 0xFE},
	"utf-16be": {0xFE, 0xFF},
}

// Result is the decoded text plus its encoding diagnosis.
type Result struct {
	Text      string
	Diagnosis model.EncodingDiagnosis
}

func normalizeEncoding(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-' || r == '_' {
			return r
		}
		return -1
	}, key)
	if canonical, ok := encodingNormalization[key]; ok {
		return canonical
	}
	if key == "" {
		return "utf-8"
	}
	return key
}

func stripBOM(data []byte, enc string) ([]byte, bool) {
	bom, ok := bomTable[enc]
	if ok && bytes.HasPrefix(data, bom) {
		return data[len(bom):], true
	}
	return data, false
}

// decodeWith decodes data with the named encoding. ok is false when the
// candidate must be rejected: a strict decode error, or a relaxed decode that
// substituted the replacement character.
func decodeWith(data []byte, enc string) (string, bool) {
	if enc == "utf-8" {
		if !utf8.Valid(data) {
			return "", false
		}
		return string(data), true
	}
	dec, known := decoders[enc]
	if !known {
		return "", false
	}
	out, err := dec.NewDecoder().Bytes(data)
	if err != nil {
		return "", false
	}
	if bytes.ContainsRune(out, utf8.RuneError) {
		return "", false
	}
	return string(out), true
}

// Decode runs statistical charset detection over a bounded sample, then
// attempts the detected encoding, caller hints, and the fixed fallback chain
// in order. It always returns a decoded text and diagnosis, falling back to
// lossy UTF-8 when no candidate decodes cleanly.
func Decode(data []byte, hints ...string) Result {
	sample := data
	if len(sample) > maxSampleBytes {
		sample = sample[:maxSampleBytes]
	}

	detected := ""
	confidence := 0.0
	if len(sample) > 0 {
		if best, err := chardet.NewTextDetector().DetectBest(sample); err == nil && best != nil {
			detected = normalizeEncoding(best.Charset)
			confidence = float64(best.Confidence) / 100
		}
	}

	attempts := make([]string, 0, len(fallbackEncodings)+len(hints)+1)
	seen := make(map[string]bool)
	push := func(enc string) {
		if enc != "" && !seen[enc] {
			seen[enc] = true
			attempts = append(attempts, enc)
		}
	}
	push(detected)
	for _, hint := range hints {
		push(normalizeEncoding(hint))
	}
	for _, enc := range fallbackEncodings {
		push(enc)
	}

	for _, enc := range attempts {
		body, stripped := stripBOM(data, enc)
		if text, ok := decodeWith(body, enc); ok {
			return Result{
				Text: text,
				Diagnosis: model.EncodingDiagnosis{
					Detected:    detected,
					Normalized:  enc,
					Confidence:  confidence,
					BOMStripped: stripped,
					Attempted:   attempts,
				},
			}
		}
	}

	// Lossy UTF-8: never fails, replacement characters stand in for
	// undecodable bytes.
	body, stripped := stripBOM(data, "utf-8")
	return Result{
		Text: strings.ToValidUTF8(string(body), "�"),
		Diagnosis: model.EncodingDiagnosis{
			Detected:    detected,
			Normalized:  "utf-8",
			Confidence:  confidence,
			BOMStripped: stripped,
			Attempted:   attempts,
		},
	}
}
