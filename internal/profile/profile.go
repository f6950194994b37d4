// Package profile classifies each detected column's semantic type and
// computes null/uniqueness/outlier statistics. Profiles feed the structural
// quality score and are read-only downstream.
package profile

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/auditoria/fiscal/internal/model"
	"github.com/auditoria/fiscal/internal/parse"
	"github.com/auditoria/fiscal/pkg/checksum"
)

// Classification thresholds. Semantic type is decided by precedence:
// currency > numeric > date/datetime > identifier > categorical > text.
const (
	currencyDensity   = 0.60
	numericDensity    = 0.70
	dateDensity       = 0.60
	identifierUnique  = 0.70
	categoricalUnique = 0.10

	outlierSigma     = 3.0
	outlierIssueRate = 0.05
	nullIssueRate    = 0.30

	profileSampleValues = 5
)

var currencyMarkers = []string{"r$", "$", "€", "£"}

// numericShape accepts digits with separators and an optional sign or
// accounting parentheses. Amount parsing alone is too permissive here: it
// strips letters, which would classify "A1" as numeric.
var numericShape = regexp.MustCompile(`^\(?[+-]?[0-9][0-9.,]*\)?$`)

var identifierNameHints = []string{"id", "codigo", "código", "cnpj", "cpf", "chave", "numero", "número", "nfe"}

// Columns profiles every column of an item set and returns the profiles plus
// any structural issues worth surfacing (excess nulls, duplicate identifiers,
// high outlier rates).
func Columns(columns []string, items []model.Item) ([]model.ColumnProfile, []model.Issue) {
	profiles := make([]model.ColumnProfile, 0, len(columns))
	var issues []model.Issue

	for _, name := range columns {
		p, colIssues := column(name, items)
		profiles = append(profiles, p)
		issues = append(issues, colIssues...)
	}
	return profiles, issues
}

func column(name string, items []model.Item) (model.ColumnProfile, []model.Issue) {
	rowCount := len(items)
	values := make([]string, 0, rowCount)
	nulls := 0
	uniqueHashes := make(map[uint64]int)

	for _, item := range items {
		v := strings.TrimSpace(item[name])
		if v == "" {
			nulls++
			continue
		}
		values = append(values, v)
		uniqueHashes[checksum.Value(v)]++
	}

	p := model.ColumnProfile{
		Name:         name,
		UniqueValues: len(uniqueHashes),
	}
	if rowCount > 0 {
		p.NullPercentage = float64(nulls) / float64(rowCount) * 100
	}
	n := len(values)
	if n > profileSampleValues {
		p.SampleValues = values[:profileSampleValues]
	} else {
		p.SampleValues = values
	}

	var issues []model.Issue

	if n == 0 {
		p.SemanticType = model.TypeText
		p.Confidence = 0
		if p.NullPercentage > nullIssueRate*100 {
			issues = append(issues, nullIssue(name, p.NullPercentage))
		}
		return p, issues
	}

	currency, numeric, dates, withTime := 0, 0, 0, 0
	var numbers []float64
	for _, v := range values {
		isCurrency := hasCurrencyMarker(v)
		stripped := stripCurrencyMarkers(v)
		if numericShape.MatchString(stripped) {
			if d, ok := parse.Amount(stripped); ok {
				f, _ := d.Float64()
				numbers = append(numbers, f)
				numeric++
				if isCurrency {
					currency++
				}
				continue
			}
		}
		if _, ok := parse.Date(v); ok {
			dates++
			if parse.HasTimeComponent(v) {
				withTime++
			}
		}
	}

	uniqueRatio := float64(p.UniqueValues) / float64(rowCount)

	switch {
	case float64(currency)/float64(n) > currencyDensity:
		p.SemanticType = model.TypeCurrency
		p.Confidence = float64(currency) / float64(n)
	case float64(numeric)/float64(n) > numericDensity:
		p.SemanticType = model.TypeNumeric
		p.Confidence = float64(numeric) / float64(n)
	case float64(dates)/float64(n) > dateDensity:
		if withTime > 0 {
			p.SemanticType = model.TypeDatetime
		} else {
			p.SemanticType = model.TypeDate
		}
		p.Confidence = float64(dates) / float64(n)
	case looksLikeIdentifier(name) && uniqueRatio > identifierUnique:
		p.SemanticType = model.TypeIdentifier
		p.Confidence = uniqueRatio
	case uniqueRatio <= categoricalUnique:
		p.SemanticType = model.TypeCategorical
		p.Confidence = 1 - uniqueRatio
	default:
		p.SemanticType = model.TypeText
		p.Confidence = 0.5
	}

	if p.SemanticType == model.TypeNumeric || p.SemanticType == model.TypeCurrency {
		stats, outlierRate := numericStats(numbers)
		p.Stats = stats
		p.OutlierRate = outlierRate
		if outlierRate > outlierIssueRate {
			issues = append(issues, model.Issue{
				Code:     "COLUNA_OUTLIERS",
				Message:  fmt.Sprintf("coluna %q tem %.1f%% de valores a mais de 3 desvios-padrão da média", name, outlierRate*100),
				Severity: model.IssueWarn,
			})
			p.Notes = append(p.Notes, fmt.Sprintf("%.1f%% outliers", outlierRate*100))
		}
	}

	if p.SemanticType == model.TypeIdentifier && p.UniqueValues < n {
		p.DuplicatesDetected = true
		issues = append(issues, model.Issue{
			Code:     "COLUNA_ID_DUPLICADO",
			Message:  fmt.Sprintf("coluna identificadora %q contém valores duplicados", name),
			Severity: model.IssueWarn,
		})
	}

	if p.NullPercentage > nullIssueRate*100 {
		issues = append(issues, nullIssue(name, p.NullPercentage))
	}

	return p, issues
}

func nullIssue(name string, pct float64) model.Issue {
	return model.Issue{
		Code:     "COLUNA_NULOS",
		Message:  fmt.Sprintf("coluna %q está %.0f%% vazia", name, pct),
		Severity: model.IssueWarn,
	}
}

func stripCurrencyMarkers(v string) string {
	lower := strings.ToLower(strings.TrimSpace(v))
	for _, marker := range currencyMarkers {
		lower = strings.ReplaceAll(lower, marker, "")
	}
	return strings.TrimSpace(lower)
}

func hasCurrencyMarker(v string) bool {
	lower := strings.ToLower(v)
	for _, marker := range currencyMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func looksLikeIdentifier(name string) bool {
	lower := strings.ToLower(name)
	for _, hint := range identifierNameHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

// numericStats computes min/max/mean/median/population standard deviation and
// the fraction of values beyond 3 standard deviations from the mean.
func numericStats(numbers []float64) (*model.NumericStats, float64) {
	if len(numbers) == 0 {
		return nil, 0
	}

	sorted := make([]float64, len(numbers))
	copy(sorted, numbers)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range numbers {
		sum += v
	}
	mean := sum / float64(len(numbers))

	variance := 0.0
	for _, v := range numbers {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(numbers))
	stdDev := math.Sqrt(variance)

	median := sorted[len(sorted)/2]
	if len(sorted)%2 == 0 {
		median = (sorted[len(sorted)/2-1] + sorted[len(sorted)/2]) / 2
	}

	outliers := 0
	if stdDev > 0 {
		for _, v := range numbers {
			if math.Abs(v-mean) > outlierSigma*stdDev {
				outliers++
			}
		}
	}

	return &model.NumericStats{
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Mean:   mean,
		Median: median,
		StdDev: stdDev,
	}, float64(outliers) / float64(len(numbers))
}
