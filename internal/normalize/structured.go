package normalize

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/auditoria/fiscal/internal/model"
)

// normalizeStructured parses JSON-like content. A top-level array yields one
// item per object; a single object yields one item; anything else is kept as
// one opaque item. The column set is the union of observed keys.
func (e *Engine) normalizeStructured(doc *model.Document, text string) {
	s := &doc.Summary

	var value any
	if err := json.Unmarshal([]byte(text), &value); err != nil {
		doc.Err = "falha ao interpretar o JSON: " + err.Error()
		s.AddIssue("JSON_INVALIDO", doc.Err, model.IssueError)
		return
	}

	switch v := value.(type) {
	case []any:
		for _, element := range v {
			doc.Items = append(doc.Items, flattenValue(element))
		}
	case map[string]any:
		doc.Items = []model.Item{flattenValue(v)}
	default:
		doc.Items = []model.Item{{"valor": stringifyJSON(v)}}
		s.AddIssue("JSON_ESCALAR",
			"conteúdo JSON é um valor escalar; mantido como item único",
			model.IssueInfo)
	}

	s.Columns = columnsFromItems(doc.Items)
}

// flattenValue converts one decoded JSON value into a flat item. Nested
// structures are kept as serialized fragments under their parent key.
func flattenValue(value any) model.Item {
	obj, ok := value.(map[string]any)
	if !ok {
		return model.Item{"valor": stringifyJSON(value)}
	}
	item := make(model.Item, len(obj))
	for key, v := range obj {
		item[key] = stringifyJSON(v)
	}
	return item
}

func stringifyJSON(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return strings.TrimSpace(string(raw))
	}
}
