package normalize

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/auditoria/fiscal/internal/model"
)

// PDFTextRecognizer recovers text from a PDF's embedded text layer. Raster
// images have no text layer and yield empty text; a real OCR engine can be
// injected through the Recognizer interface instead.
type PDFTextRecognizer struct{}

// RecoverText implements Recognizer.
func (PDFTextRecognizer) RecoverText(data []byte, name string) (string, error) {
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		return "", nil
	}
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("abrindo PDF %s: %w", name, err)
	}
	var sb strings.Builder
	for page := 1; page <= reader.NumPage(); page++ {
		p := reader.Page(page)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// Labeled field patterns recognized in recovered text. Values run to end of
// line; labels are matched case-insensitively with or without accents.
var textFieldPatterns = []struct {
	field   string
	pattern *regexp.Regexp
}{
	{"emitente_cnpj", regexp.MustCompile(`(?im)^\s*cnpj\s*[:\-]\s*([\d./-]+)`)},
	{"data_emissao", regexp.MustCompile(`(?im)^\s*(?:data(?:\s+de)?\s+emiss[aã]o|emiss[aã]o)\s*[:\-]\s*(\S+)`)},
	{"valor_total_nfe", regexp.MustCompile(`(?im)^\s*(?:valor\s+total|total)\s*[:\-]\s*R?\$?\s*([\d.,]+)`)},
	{"produto_nome", regexp.MustCompile(`(?im)^\s*(?:produto|descri[cç][aã]o)\s*[:\-]\s*(.+)$`)},
	{"produto_ncm", regexp.MustCompile(`(?im)^\s*ncm\s*[:\-]\s*(\d+)`)},
	{"produto_cfop", regexp.MustCompile(`(?im)^\s*cfop\s*[:\-]\s*(\d+)`)},
}

// normalizeDocImage recovers text from a scanned or imaged document, then
// extracts labeled fields into a structured item.
func (e *Engine) normalizeDocImage(doc *model.Document, data []byte) {
	s := &doc.Summary

	text, err := e.recognizer.RecoverText(data, doc.Name)
	if err != nil {
		doc.Err = "falha no reconhecimento de texto: " + err.Error()
		s.AddIssue("OCR_FALHA", doc.Err, model.IssueError)
		return
	}
	doc.Text = text

	if strings.TrimSpace(text) == "" {
		doc.Err = "nenhum texto extraído do documento"
		s.AddIssue("OCR_SEM_TEXTO", doc.Err, model.IssueError)
		return
	}
	s.Log(fmt.Sprintf("texto recuperado: %d caractere(s)", len(text)))

	item := make(model.Item)
	for _, fp := range textFieldPatterns {
		if m := fp.pattern.FindStringSubmatch(text); m != nil {
			item[fp.field] = strings.TrimSpace(m[1])
		}
	}

	if len(item) == 0 {
		s.AddIssue("OCR_SEM_ESTRUTURA",
			"texto recuperado não contém campos estruturados reconhecíveis",
			model.IssueWarn)
		return
	}
	doc.Items = []model.Item{item}
	s.Columns = columnsFromItems(doc.Items)
}
