package normalize

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/auditoria/fiscal/internal/model"
)

// normalizeSpreadsheet converts every sheet of a workbook to rows tagged with
// their sheet name; rows across all sheets are concatenated into one item set.
func (e *Engine) normalizeSpreadsheet(doc *model.Document, data []byte) {
	s := &doc.Summary

	book, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		doc.Err = "falha ao abrir a planilha: " + err.Error()
		s.AddIssue("PLANILHA_INVALIDA", doc.Err, model.IssueError)
		return
	}
	defer book.Close()

	totalRows := 0
	for _, sheet := range book.GetSheetList() {
		rows, err := book.GetRows(sheet)
		if err != nil {
			s.AddIssue("PLANILHA_ABA_ILEGIVEL",
				fmt.Sprintf("aba %q não pôde ser lida: %v", sheet, err),
				model.IssueWarn)
			continue
		}
		if len(rows) == 0 {
			continue
		}

		header := cleanHeader(rows[0], '"')
		for _, row := range rows[1:] {
			if isEmptyRecord(row) {
				continue
			}
			item := make(model.Item, len(header)+1)
			item["_aba"] = sheet
			for i, name := range header {
				if name == "" {
					continue
				}
				value := ""
				if i < len(row) {
					value = strings.TrimSpace(row[i])
				}
				item[name] = value
			}
			doc.Items = append(doc.Items, item)
			totalRows++
		}
		s.Log(fmt.Sprintf("aba %q: %d linha(s)", sheet, len(rows)-1))
	}

	s.Columns = columnsFromItems(doc.Items)
	if totalRows == 0 {
		s.AddIssue("PLANILHA_VAZIA", "nenhuma linha de dados em nenhuma aba", model.IssueError)
	}
}
