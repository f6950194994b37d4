package normalize

import (
	"strconv"
	"strings"

	"github.com/auditoria/fiscal/internal/model"
)

// normalizePlainText turns each line into one item with its line number.
func (e *Engine) normalizePlainText(doc *model.Document, text string) {
	s := &doc.Summary

	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	blank := 0
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			blank++
			continue
		}
		doc.Items = append(doc.Items, model.Item{
			"linha":    strconv.Itoa(i + 1),
			"conteudo": line,
		})
	}

	s.Columns = []string{"linha", "conteudo"}
	if len(lines) > 0 && blank*2 > len(lines) {
		s.AddIssue("TEXTO_ESPARSO",
			"mais da metade das linhas do arquivo está em branco",
			model.IssueInfo)
	}
}
