// Package encoding detects character encodings and container formats for
// uploaded files, and decodes text-bearing content through a deterministic
// fallback chain. Decoding never fails for non-empty input: when every
// candidate encoding is rejected the content is decoded as lossy UTF-8.
package encoding

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/auditoria/fiscal/internal/model"
)

// Byte signatures checked against the file prefix, most specific first.
var (
	sigZIP  = []byte{0x50, 0x4B, 0x03, 0x04}
	sigPDF  = []byte("%PDF")
	sigPNG  = []byte{0x89, 0x50, 0x4E, 0x47}
	sigJPEG = []byte{0xFF, 0xD8, 0xFF}
	sigGIF  = []byte("GIF8")
	sigOLE  = []byte{0xD0, 0xCF, 0x11, 0xE0} // legacy xls
)

var spreadsheetExts = map[string]bool{".xlsx": true, ".xlsm": true, ".xls": true, ".ods": true}
var archiveExts = map[string]bool{".zip": true}
var markupExts = map[string]bool{".xml": true, ".nfe": true, ".html": true, ".htm": true}
var tabularExts = map[string]bool{".csv": true, ".tsv": true, ".psv": true}
var structuredExts = map[string]bool{".json": true, ".jsonl": true, ".ndjson": true}
var imageExts = map[string]bool{".pdf": true, ".png": true, ".jpg": true, ".jpeg": true, ".tif": true, ".tiff": true, ".bmp": true}

// DetectFormat classifies a file into a container format by inspecting a
// byte-signature prefix and the declared name/MIME type. The signature wins
// over the extension except for zip containers, where the extension decides
// between a spreadsheet (xlsx is a zip) and a real archive.
func DetectFormat(data []byte, name, declaredMIME string) model.Format {
	ext := strings.ToLower(filepath.Ext(name))

	switch {
	case bytes.HasPrefix(data, sigZIP):
		if spreadsheetExts[ext] {
			return model.FormatSpreadsheet
		}
		return model.FormatArchive
	case bytes.HasPrefix(data, sigOLE):
		return model.FormatSpreadsheet
	case bytes.HasPrefix(data, sigPDF),
		bytes.HasPrefix(data, sigPNG),
		bytes.HasPrefix(data, sigJPEG),
		bytes.HasPrefix(data, sigGIF):
		return model.FormatDocImage
	}

	switch {
	case spreadsheetExts[ext]:
		return model.FormatSpreadsheet
	case archiveExts[ext]:
		return model.FormatArchive
	case markupExts[ext] || strings.Contains(declaredMIME, "xml"):
		return model.FormatMarkup
	case tabularExts[ext] || strings.Contains(declaredMIME, "csv"):
		return model.FormatTabular
	case structuredExts[ext] || strings.Contains(declaredMIME, "json"):
		return model.FormatStructured
	case imageExts[ext] || strings.HasPrefix(declaredMIME, "image/") || declaredMIME == "application/pdf":
		return model.FormatDocImage
	}

	// No extension signal: sniff the leading content.
	trimmed := bytes.TrimLeft(data, " \t\r\n\xef\xbb\xbf")
	switch {
	case bytes.HasPrefix(trimmed, []byte("<?xml")), bytes.HasPrefix(trimmed, []byte("<")):
		return model.FormatMarkup
	case bytes.HasPrefix(trimmed, []byte("{")), bytes.HasPrefix(trimmed, []byte("[")):
		return model.FormatStructured
	case looksBinary(data):
		return model.FormatUnsupported
	case looksDelimited(data):
		return model.FormatTabular
	}
	return model.FormatPlainText
}

// looksBinary reports whether the prefix contains NUL bytes or a high ratio
// of control characters, which no supported text format produces.
func looksBinary(data []byte) bool {
	sample := data
	if len(sample) > 4096 {
		sample = sample[:4096]
	}
	if len(sample) == 0 {
		return false
	}
	control := 0
	for _, b := range sample {
		if b == 0 {
			return true
		}
		if b < 0x09 || (b > 0x0D && b < 0x20) {
			control++
		}
	}
	return control*10 > len(sample)
}

// looksDelimited reports whether the first lines repeat a common delimiter.
func looksDelimited(data []byte) bool {
	sample := data
	if len(sample) > 4096 {
		sample = sample[:4096]
	}
	lines := bytes.Split(sample, []byte("\n"))
	if len(lines) < 2 {
		return false
	}
	for _, delim := range []byte{',', ';', '\t', '|'} {
		first := bytes.Count(lines[0], []byte{delim})
		if first > 0 && bytes.Count(lines[1], []byte{delim}) == first {
			return true
		}
	}
	return false
}

// TextBearing reports whether a format carries decodable text content.
func TextBearing(f model.Format) bool {
	switch f {
	case model.FormatMarkup, model.FormatTabular, model.FormatStructured, model.FormatPlainText:
		return true
	}
	return false
}
