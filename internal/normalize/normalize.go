// Package normalize converts raw file content into the uniform row/column
// representation consumed by the rules engine. One normalizer exists per
// container format; all of them populate the same StructuralSummary shape and
// hand their item set to the column profiler before finalizing.
package normalize

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/auditoria/fiscal/internal/encoding"
	"github.com/auditoria/fiscal/internal/model"
	"github.com/auditoria/fiscal/internal/profile"
	"github.com/auditoria/fiscal/pkg/checksum"
	"github.com/google/uuid"
)

// sampleRowCount is how many rows are kept as the summary's sample.
const sampleRowCount = 5

// Recognizer recovers text from scanned or imaged documents. The default
// implementation reads the PDF text layer; OCR engines plug in here.
type Recognizer interface {
	RecoverText(data []byte, name string) (string, error)
}

// Engine dispatches files to format-specific normalizers.
type Engine struct {
	log        *slog.Logger
	recognizer Recognizer
}

// NewEngine creates a normalizer engine. A nil recognizer falls back to the
// built-in PDF text-layer reader.
func NewEngine(logger *slog.Logger, recognizer Recognizer) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if recognizer == nil {
		recognizer = PDFTextRecognizer{}
	}
	return &Engine{log: logger, recognizer: recognizer}
}

// Normalize converts one accepted, non-archive file into a Document. It never
// returns nil: failures degrade to a Document with Err set and an ERROR issue
// in its summary (a later stage turns that into an error-status record).
func (e *Engine) Normalize(entry model.RawFileEntry, format model.Format, decoded encoding.Result) *model.Document {
	doc := &model.Document{
		ID:   uuid.NewString(),
		Name: entry.Name,
		Kind: format,
		Size: entry.Size,
		Summary: model.StructuralSummary{
			Format:        format,
			MIMEType:      entry.DeclaredMIME,
			SizeInBytes:   entry.Size,
			Checksum:      checksum.Content(entry.Data),
			ParentArchive: entry.ParentArchive,
			InternalPath:  entry.InternalPath,
			Encoding:      decoded.Diagnosis,
		},
	}
	doc.Summary.Log(fmt.Sprintf("format %s, %d bytes", format, entry.Size))

	switch format {
	case model.FormatTabular:
		e.normalizeTabular(doc, decoded.Text)
	case model.FormatMarkup:
		e.normalizeMarkup(doc, decoded.Text)
	case model.FormatStructured:
		e.normalizeStructured(doc, decoded.Text)
	case model.FormatSpreadsheet:
		e.normalizeSpreadsheet(doc, entry.Data)
	case model.FormatPlainText:
		e.normalizePlainText(doc, decoded.Text)
	case model.FormatDocImage:
		e.normalizeDocImage(doc, entry.Data)
	default:
		doc.Err = fmt.Sprintf("formato de arquivo não suportado: %s", entry.Name)
		doc.Summary.AddIssue("FORMATO_NAO_SUPORTADO", doc.Err, model.IssueError)
	}

	e.finalize(doc, decoded.Text)
	return doc
}

// finalize fills the derived summary fields shared by every normalizer:
// sample rows, locale guess, column profiles and the quality tier.
func (e *Engine) finalize(doc *model.Document, text string) {
	s := &doc.Summary

	// A document with zero extractable items still yields one placeholder
	// item representing the whole document.
	if !doc.Failed() && len(doc.Items) == 0 {
		doc.Items = []model.Item{{"documento": doc.Name}}
	}

	s.RowCount = len(doc.Items)
	if doc.Failed() {
		s.RowCount = 0
	}
	s.ColumnCount = len(s.Columns)

	n := len(doc.Items)
	if n > sampleRowCount {
		n = sampleRowCount
	}
	s.SampleRows = doc.Items[:n]

	s.Language, s.Locale = guessLocale(text, doc.Items)

	if len(s.Columns) > 0 && len(doc.Items) > 0 {
		profiles, issues := profile.Columns(s.Columns, doc.Items)
		s.ColumnProfiles = profiles
		for _, issue := range issues {
			s.Issues = append(s.Issues, issue)
			s.Log(string(issue.Severity) + ": " + issue.Message)
		}
	}

	s.FinalizeQuality()
	e.log.Debug("normalized file",
		"file", doc.Name,
		"format", doc.Kind,
		"rows", s.RowCount,
		"columns", s.ColumnCount,
		"quality", s.Quality,
	)
}

// columnsFromItems returns the union of keys across items. Map iteration
// order is not deterministic, so the result is sorted for stable summaries.
func columnsFromItems(items []model.Item) []string {
	seen := make(map[string]bool)
	var columns []string
	for _, item := range items {
		for key := range item {
			if !seen[key] {
				seen[key] = true
				columns = append(columns, key)
			}
		}
	}
	sort.Strings(columns)
	return columns
}
