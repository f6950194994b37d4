package model

import "testing"

func TestQualityFromIssues(t *testing.T) {
	tests := []struct {
		name   string
		issues []Issue
		want   Quality
	}{
		{"no issues", nil, QualityExcellent},
		{"few infos", []Issue{{Severity: IssueInfo}, {Severity: IssueInfo}}, QualityExcellent},
		{"one error stays excellent", []Issue{{Severity: IssueError}}, QualityExcellent},
		{"two errors drop to good", []Issue{{Severity: IssueError}, {Severity: IssueError}}, QualityGood},
		{"mixed drops to fair", []Issue{
			{Severity: IssueError}, {Severity: IssueError}, {Severity: IssueError}, {Severity: IssueWarn},
		}, QualityFair},
		{"heavy errors drop to poor", []Issue{
			{Severity: IssueError}, {Severity: IssueError}, {Severity: IssueError}, {Severity: IssueError},
		}, QualityPoor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := QualityFromIssues(tt.issues); got != tt.want {
				t.Errorf("QualityFromIssues() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFinalizeQualityIsPureFunctionOfIssues(t *testing.T) {
	s := &StructuralSummary{}
	s.FinalizeQuality()
	if s.Quality != QualityExcellent {
		t.Fatalf("empty summary quality = %v, want EXCELLENT", s.Quality)
	}

	for i := 0; i < 10; i++ {
		s.AddIssue("PARSE_WARN", "bad row", IssueWarn)
	}
	s.FinalizeQuality()
	if s.Quality != QualityFair {
		t.Fatalf("quality after 10 warns = %v, want FAIR", s.Quality)
	}

	// Recomputing without touching issues must not change the tier.
	before := s.Quality
	s.FinalizeQuality()
	if s.Quality != before {
		t.Fatalf("FinalizeQuality is not idempotent: %v != %v", s.Quality, before)
	}
}
