package normalize

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/auditoria/fiscal/internal/model"
)

// delimiterCandidates is the fixed set tried by the sniffer, in order.
var delimiterCandidates = []rune{',', ';', '\t', '|', '^', '~'}

// sniffPreviewLines caps how much of the file the sniffer scores.
const sniffPreviewLines = 25

// sniffResult is one candidate delimiter's score against the preview.
type sniffResult struct {
	delimiter rune
	quote     rune
	score     int
	columns   int
}

// sniffDelimiter scores each candidate delimiter against a capped preview:
// resulting field count, minus parse errors, minus a penalty for empty header
// names. The winner drives the full parse.
func sniffDelimiter(text string) sniffResult {
	preview := text
	if idx := nthLineEnd(text, sniffPreviewLines); idx > 0 {
		preview = text[:idx]
	}

	best := sniffResult{delimiter: ',', quote: '"'}
	bestScore := -1 << 30

	for _, delim := range delimiterCandidates {
		reader := csv.NewReader(strings.NewReader(preview))
		reader.Comma = delim
		reader.FieldsPerRecord = -1
		reader.LazyQuotes = true

		var header []string
		fields, parseErrors, rows := 0, 0, 0
		for {
			record, err := reader.Read()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				parseErrors++
				if parseErrors > 10 {
					break
				}
				continue
			}
			if header == nil {
				header = record
			}
			fields += len(record) - 1 // single-field rows score zero
			rows++
		}

		emptyHeaders := 0
		for _, name := range header {
			if strings.TrimSpace(name) == "" {
				emptyHeaders++
			}
		}

		score := fields - parseErrors*3 - emptyHeaders*2
		if score > bestScore {
			bestScore = score
			best = sniffResult{
				delimiter: delim,
				quote:     detectQuote(preview, delim),
				score:     score,
				columns:   len(header),
			}
		}
	}
	return best
}

// detectQuote picks the quote character by adjacency: a quote that appears
// immediately after the delimiter (or at line start) is the wrapping char.
func detectQuote(preview string, delim rune) rune {
	doubles, singles := 0, 0
	prev := rune('\n')
	for _, r := range preview {
		if prev == delim || prev == '\n' {
			switch r {
			case '"':
				doubles++
			case '\'':
				singles++
			}
		}
		prev = r
	}
	if singles > doubles {
		return '\''
	}
	return '"'
}

func nthLineEnd(text string, n int) int {
	count := 0
	for i, r := range text {
		if r == '\n' {
			count++
			if count >= n {
				return i
			}
		}
	}
	return -1
}

// normalizeTabular parses delimiter-separated text with a sniffed dialect.
// The first row is the header; every following row becomes one item keyed by
// the header names.
func (e *Engine) normalizeTabular(doc *model.Document, text string) {
	s := &doc.Summary
	sniffed := sniffDelimiter(text)
	s.Delimiter = string(sniffed.delimiter)
	s.QuoteChar = string(sniffed.quote)
	s.Log(fmt.Sprintf("delimiter %q quote %q (score %d)", s.Delimiter, s.QuoteChar, sniffed.score))

	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = sniffed.delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var header []string
	parseErrors := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			parseErrors++
			continue
		}
		if header == nil {
			header = cleanHeader(record, sniffed.quote)
			continue
		}
		if isEmptyRecord(record) {
			continue
		}
		item := make(model.Item, len(header))
		for i, name := range header {
			if name == "" {
				continue
			}
			value := ""
			if i < len(record) {
				value = trimQuote(strings.TrimSpace(record[i]), sniffed.quote)
			}
			item[name] = value
		}
		doc.Items = append(doc.Items, item)
	}

	s.Columns = nonEmpty(header)
	if parseErrors > 0 {
		s.AddIssue("PARSE_ERRORS",
			fmt.Sprintf("%d linha(s) não puderam ser interpretadas com o delimitador %q", parseErrors, s.Delimiter),
			model.IssueWarn)
	}
	if len(s.Columns) == 0 {
		s.AddIssue("SEM_COLUNAS", "nenhuma coluna detectada no arquivo tabular", model.IssueError)
	}
}

func cleanHeader(record []string, quote rune) []string {
	header := make([]string, len(record))
	for i, name := range record {
		name = strings.TrimSpace(name)
		name = trimQuote(name, quote)
		// Excel formula-injection prefixes occasionally leak into headers.
		name = strings.TrimLeft(name, "=+@")
		header[i] = strings.TrimSpace(name)
	}
	return header
}

// trimQuote removes a non-standard wrapping quote; the csv reader already
// handles double quotes.
func trimQuote(value string, quote rune) string {
	if quote == '"' || len(value) < 2 {
		return value
	}
	q := string(quote)
	if strings.HasPrefix(value, q) && strings.HasSuffix(value, q) {
		return value[1 : len(value)-1]
	}
	return value
}

func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
