package model

// Quality is the coarse structural-confidence tier of a processed file.
type Quality string

const (
	QualityExcellent Quality = "EXCELLENT"
	QualityGood      Quality = "GOOD"
	QualityFair      Quality = "FAIR"
	QualityPoor      Quality = "POOR"
)

// Severity weights and score bands for the quality tier. The tier is a pure
// function of the accumulated issue list and must never be set independently.
const (
	issueWeightInfo  = 1
	issueWeightWarn  = 5
	issueWeightError = 15
)

// QualityFromIssues derives the quality tier from issue severities.
// Starts from a perfect score of 100 and subtracts fixed weights.
func QualityFromIssues(issues []Issue) Quality {
	score := 100
	for _, issue := range issues {
		switch issue.Severity {
		case IssueInfo:
			score -= issueWeightInfo
		case IssueWarn:
			score -= issueWeightWarn
		case IssueError:
			score -= issueWeightError
		}
	}
	switch {
	case score >= 85:
		return QualityExcellent
	case score >= 70:
		return QualityGood
	case score >= 50:
		return QualityFair
	default:
		return QualityPoor
	}
}

// FinalizeQuality recomputes the summary's quality tier from its issues.
func (s *StructuralSummary) FinalizeQuality() {
	s.Quality = QualityFromIssues(s.Issues)
}
