package profile

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auditoria/fiscal/internal/model"
)

func itemsFromColumn(name string, values []string) []model.Item {
	items := make([]model.Item, len(values))
	for i, v := range values {
		items[i] = model.Item{name: v}
	}
	return items
}

func profileOne(t *testing.T, name string, values []string) (model.ColumnProfile, []model.Issue) {
	t.Helper()
	profiles, issues := Columns([]string{name}, itemsFromColumn(name, values))
	require.Len(t, profiles, 1)
	return profiles[0], issues
}

func TestSemanticTypeClassification(t *testing.T) {
	tests := []struct {
		name   string
		column string
		values []string
		want   model.SemanticType
	}{
		{"currency symbols", "valor", []string{"R$ 10,00", "R$ 25,50", "R$ 3,99"}, model.TypeCurrency},
		{"bare numbers", "qtd", []string{"1", "2,5", "3.75", "10"}, model.TypeNumeric},
		{"comma decimals", "preco", []string{"1.234,56", "99,90", "10,00"}, model.TypeNumeric},
		{"iso dates", "emissao", []string{"2024-07-01", "2024-07-02", "2024-07-03"}, model.TypeDate},
		{"datetimes", "criado", []string{"2024-07-01T10:00:00Z", "2024-07-02T11:30:00Z"}, model.TypeDatetime},
		{"identifier by name and uniqueness", "nfe_id", []string{"A1", "B2", "C3", "D4"}, model.TypeIdentifier},
		{"free text", "observacao", []string{"entregar na portaria", "urgente", "cliente vip", "sem troco"}, model.TypeText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := profileOne(t, tt.column, tt.values)
			assert.Equal(t, tt.want, p.SemanticType)
			assert.Greater(t, p.Confidence, 0.0)
		})
	}
}

func TestCategoricalNeedsLowUniqueness(t *testing.T) {
	// 100 rows, 3 distinct values: uniqueness 3% <= 10%.
	values := make([]string, 100)
	for i := range values {
		values[i] = []string{"SP", "RJ", "MG"}[i%3]
	}
	p, _ := profileOne(t, "uf", values)
	assert.Equal(t, model.TypeCategorical, p.SemanticType)
	assert.Equal(t, 3, p.UniqueValues)
}

func TestNullPercentageIssue(t *testing.T) {
	values := []string{"a", "", "", "", "b", "", "", "", "", "c"}
	p, issues := profileOne(t, "campo", values)
	assert.InDelta(t, 70.0, p.NullPercentage, 0.01)

	var codes []string
	for _, issue := range issues {
		codes = append(codes, issue.Code)
	}
	assert.Contains(t, codes, "COLUNA_NULOS")
}

func TestDuplicateIdentifierIssue(t *testing.T) {
	// Name hints identifier, uniqueness 80% > 70%, one duplicate.
	values := []string{"K1", "K2", "K3", "K4", "K4"}
	p, issues := profileOne(t, "codigo_item", values)
	require.Equal(t, model.TypeIdentifier, p.SemanticType)
	assert.True(t, p.DuplicatesDetected)

	found := false
	for _, issue := range issues {
		if issue.Code == "COLUNA_ID_DUPLICADO" {
			found = true
			assert.Equal(t, model.IssueWarn, issue.Severity)
		}
	}
	assert.True(t, found)
}

func TestOutlierDetection(t *testing.T) {
	// 99 values near 10, one extreme value: > 3 sigma, rate 1% < 5% so no
	// issue; then 94 near 10 and 6 extremes: rate > 5% raises the issue.
	values := make([]string, 0, 100)
	for i := 0; i < 99; i++ {
		values = append(values, fmt.Sprintf("%d", 10+i%3))
	}
	values = append(values, "100000")
	p, issues := profileOne(t, "total", values)
	require.NotNil(t, p.Stats)
	assert.Greater(t, p.OutlierRate, 0.0)
	for _, issue := range issues {
		assert.NotEqual(t, "COLUNA_OUTLIERS", issue.Code)
	}
}

func TestNumericStats(t *testing.T) {
	p, _ := profileOne(t, "qtd", []string{"1", "2", "3", "4", "5"})
	require.NotNil(t, p.Stats)
	assert.Equal(t, 1.0, p.Stats.Min)
	assert.Equal(t, 5.0, p.Stats.Max)
	assert.Equal(t, 3.0, p.Stats.Mean)
	assert.Equal(t, 3.0, p.Stats.Median)
	assert.InDelta(t, 1.4142, p.Stats.StdDev, 0.001)
}

func TestEmptyColumn(t *testing.T) {
	p, issues := profileOne(t, "vazio", []string{"", "", ""})
	assert.Equal(t, model.TypeText, p.SemanticType)
	assert.Equal(t, 100.0, p.NullPercentage)
	assert.NotEmpty(t, issues)
}
