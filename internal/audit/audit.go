// Package audit turns normalized documents into audited documents: it runs
// the rules engine over every item, deduplicates findings, derives the
// document status and score, and enriches the result with an operation-type
// classification and batch-level aggregated metrics.
package audit

import (
	"log/slog"

	"github.com/auditoria/fiscal/internal/model"
	"github.com/auditoria/fiscal/internal/rules"
)

// importFailureScore is assigned to documents that never produced items.
const importFailureScore = 99

var severityWeights = map[model.Severity]int{
	model.SeverityErro:   10,
	model.SeverityAlerta: 2,
	model.SeverityInfo:   0,
}

// Auditor applies the rules engine to whole documents.
type Auditor struct {
	engine *rules.Engine
	log    *slog.Logger
}

// New creates an auditor around a configured rules engine.
func New(engine *rules.Engine, logger *slog.Logger) *Auditor {
	if engine == nil {
		engine = rules.New("")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{engine: engine, log: logger}
}

// Audit evaluates one document. Import failures yield a fixed high-score
// error record; everything else gets per-item rule findings deduplicated by
// code, a worst-severity status and a summed severity score.
func (a *Auditor) Audit(doc *model.Document) *model.AuditedDocument {
	if doc.Failed() {
		inc := rules.MustFind(rules.CodeImportFalha)
		if doc.Err != "" {
			inc.Message = doc.Err
		}
		return &model.AuditedDocument{
			Doc:             doc,
			Status:          model.StatusErro,
			Score:           importFailureScore,
			Inconsistencies: []model.Inconsistency{inc},
		}
	}

	var all []model.Inconsistency
	for _, item := range doc.Items {
		all = append(all, a.engine.Evaluate(item)...)
	}
	unique := dedupeByCode(all)

	audited := &model.AuditedDocument{
		Doc:             doc,
		Status:          worstSeverity(unique),
		Score:           totalScore(unique),
		Inconsistencies: unique,
	}
	a.log.Debug("document audited",
		"document", doc.Name,
		"status", audited.Status,
		"score", audited.Score,
		"findings", len(unique),
	)
	return audited
}

// dedupeByCode keeps the first finding per code, preserving order.
func dedupeByCode(findings []model.Inconsistency) []model.Inconsistency {
	seen := make(map[string]bool, len(findings))
	unique := make([]model.Inconsistency, 0, len(findings))
	for _, f := range findings {
		if seen[f.Code] {
			continue
		}
		seen[f.Code] = true
		unique = append(unique, f)
	}
	return unique
}

func worstSeverity(findings []model.Inconsistency) model.AuditStatus {
	status := model.StatusOK
	for _, f := range findings {
		switch f.Severity {
		case model.SeverityErro:
			return model.StatusErro
		case model.SeverityAlerta:
			status = model.StatusAlerta
		}
	}
	return status
}

func totalScore(findings []model.Inconsistency) int {
	score := 0
	for _, f := range findings {
		score += severityWeights[f.Severity]
	}
	return score
}
