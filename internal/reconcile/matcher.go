package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/auditoria/fiscal/internal/model"
	"github.com/auditoria/fiscal/internal/parse"
)

// Matching tolerances: a transaction amount within two cents of the document
// total, dated within thirty days of emission in either direction.
var amountTolerance = decimal.NewFromFloat(0.02)

const dateWindowDays = 30

// Matcher pairs documents with transactions using a greedy first-fit scan.
// The strategy is deliberately not globally optimal: determinism and
// explainability win over assignment quality.
type Matcher struct {
	log *slog.Logger
}

// NewMatcher creates a reconciliation matcher.
func NewMatcher(logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{log: logger}
}

// Reconcile matches audited documents against bank transactions. Documents
// with error status or no items never enter the candidate pool. Both pools
// are only mutated after a match is fully committed, so a cancelled run
// leaves a consistent partial result.
func (m *Matcher) Reconcile(ctx context.Context, docs []*model.AuditedDocument, txs []model.BankTransaction) (*model.ReconciliationResult, error) {
	pending := make([]*model.AuditedDocument, 0, len(docs))
	for _, d := range docs {
		if d.Status != model.StatusErro && d.Doc != nil && len(d.Doc.Items) > 0 {
			pending = append(pending, d)
		}
	}
	available := make([]model.BankTransaction, len(txs))
	copy(available, txs)

	result := &model.ReconciliationResult{}

	// Backward iteration keeps removal by index safe.
	for i := len(pending) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return finish(result, pending, available), err
		}

		doc := pending[i]
		total, date, ok := documentReference(doc)
		if !ok {
			continue
		}

		matched := -1
		for j, tx := range available {
			if amountsMatch(total, tx.Amount) && datesMatch(date, tx.Date) {
				matched = j
				break
			}
		}
		if matched == -1 {
			continue
		}

		tx := available[matched]
		doc.Reconciliation = model.ReconciliationMatched
		result.MatchedPairs = append(result.MatchedPairs, model.MatchedPair{Doc: doc, Transaction: tx})
		pending = append(pending[:i], pending[i+1:]...)
		available = append(available[:matched], available[matched+1:]...)

		m.log.Debug("document reconciled",
			"document", doc.Doc.Name,
			"transaction", tx.ID,
			"amount", tx.Amount,
		)
	}

	return finish(result, pending, available), nil
}

func finish(result *model.ReconciliationResult, pending []*model.AuditedDocument, available []model.BankTransaction) *model.ReconciliationResult {
	for _, d := range pending {
		d.Reconciliation = model.ReconciliationPending
	}
	result.UnmatchedDocuments = pending
	result.UnmatchedTransactions = available
	return result
}

// documentReference derives the declared total and emission date from the
// document's first item. Documents without both never match.
func documentReference(d *model.AuditedDocument) (decimal.Decimal, time.Time, bool) {
	first := d.Doc.Items[0]
	total, ok := parse.Amount(first["valor_total_nfe"])
	if !ok || total.IsZero() {
		return decimal.Decimal{}, time.Time{}, false
	}
	date, ok := parse.Date(first["data_emissao"])
	if !ok {
		return decimal.Decimal{}, time.Time{}, false
	}
	return total, date, true
}

func amountsMatch(docTotal decimal.Decimal, txAmount float64) bool {
	tx := decimal.NewFromFloat(txAmount).Abs()
	return docTotal.Sub(tx).Abs().LessThanOrEqual(amountTolerance)
}

func datesMatch(docDate, txDate time.Time) bool {
	if txDate.IsZero() {
		return false
	}
	diff := docDate.Sub(txDate)
	if diff < 0 {
		diff = -diff
	}
	return int(diff.Hours()/24) <= dateWindowDays
}

func parseAmountFloat(raw string) (float64, bool) {
	d, ok := parse.Amount(raw)
	if !ok {
		return 0, false
	}
	f, _ := d.Float64()
	return f, true
}

func parseDateField(raw string) (time.Time, bool) {
	return parse.Date(raw)
}
