// Package reconcile matches audited fiscal documents against bank-statement
// transactions by amount and date proximity. Statements arrive through the
// same tabular normalization path as every other file; this package only
// interprets the resulting items.
package reconcile

import (
	"fmt"
	"strings"

	"github.com/auditoria/fiscal/internal/model"
)

// Statement header aliases, matched case-insensitively and accent-loose.
var (
	dateHeaders        = []string{"date", "data"}
	descriptionHeaders = []string{"description", "descrição", "descricao"}
	amountHeaders      = []string{"amount", "valor"}
)

// Transactions extracts bank transactions from a normalized statement
// document. Rows whose amount cannot be parsed are skipped silently; a row
// with an unparseable date is kept and simply never falls inside any
// reconciliation window.
func Transactions(doc *model.Document) []model.BankTransaction {
	if doc == nil || doc.Failed() {
		return nil
	}

	var txs []model.BankTransaction
	for i, item := range doc.Items {
		rawAmount := fieldByAlias(item, amountHeaders)
		amount, ok := parseAmountFloat(rawAmount)
		if !ok {
			continue
		}

		tx := model.BankTransaction{
			ID:          fmt.Sprintf("%s-%d", doc.Name, i),
			Amount:      amount,
			Description: fieldByAlias(item, descriptionHeaders),
			Credit:      amount >= 0,
			SourceFile:  doc.Name,
		}
		if date, ok := parseDateField(fieldByAlias(item, dateHeaders)); ok {
			tx.Date = date
		}
		txs = append(txs, tx)
	}
	return txs
}

// fieldByAlias finds the first item key whose normalized form matches one of
// the aliases.
func fieldByAlias(item model.Item, aliases []string) string {
	for key, value := range item {
		normalized := normalizeHeader(key)
		for _, alias := range aliases {
			if normalized == normalizeHeader(alias) {
				return strings.TrimSpace(value)
			}
		}
	}
	return ""
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	replacer := strings.NewReplacer("ç", "c", "ã", "a", "á", "a", "â", "a", "é", "e", "ê", "e", "í", "i", "ó", "o", "ô", "o", "õ", "o", "ú", "u")
	return replacer.Replace(h)
}
