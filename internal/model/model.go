// Package model defines the shared data model for the fiscal audit pipeline.
// This package has no behavior beyond pure derivations and no dependencies on
// other internal packages, so every stage can consume it freely.
package model

import "time"

// Severity classifies the materiality of a fiscal finding.
type Severity string

const (
	SeverityInfo   Severity = "INFO"
	SeverityAlerta Severity = "ALERTA"
	SeverityErro   Severity = "ERRO"
)

// IssueSeverity classifies structural (non-fiscal) processing issues.
type IssueSeverity string

const (
	IssueInfo  IssueSeverity = "INFO"
	IssueWarn  IssueSeverity = "WARN"
	IssueError IssueSeverity = "ERROR"
)

// Format identifies the container format inferred for a raw file.
type Format string

const (
	FormatMarkup      Format = "markup"
	FormatTabular     Format = "tabular"
	FormatSpreadsheet Format = "spreadsheet"
	FormatStructured  Format = "structured"
	FormatPlainText   Format = "text"
	FormatArchive     Format = "archive"
	FormatDocImage    Format = "document"
	FormatUnsupported Format = "unsupported"
)

// RawFileEntry is one uploaded blob, or one file extracted from an archive.
// Entries are immutable and owned by the ingestion queue until consumed.
type RawFileEntry struct {
	Name          string
	Size          int64
	Data          []byte
	DeclaredMIME  string
	ParentArchive string // empty for top-level uploads
	InternalPath  string // path inside the parent archive
}

// EncodingDiagnosis records how a text-bearing file was decoded.
type EncodingDiagnosis struct {
	Detected    string   `json:"detected"`
	Normalized  string   `json:"normalized"`
	Confidence  float64  `json:"confidence"`
	BOMStripped bool     `json:"bomStripped"`
	Attempted   []string `json:"attemptedEncodings"`
}

// Issue is one structural problem found while processing a file.
type Issue struct {
	Code     string        `json:"code"`
	Message  string        `json:"message"`
	Severity IssueSeverity `json:"severity"`
	Hint     string        `json:"hint,omitempty"`
}

// Item is one normalized row of business data. Keys are canonical field
// names (emitente_cnpj, produto_ncm, produto_cfop, ...); normalizers map
// whatever the source format provides onto this shape.
type Item map[string]string

// StructuralSummary describes how one file was parsed, one per processed file.
type StructuralSummary struct {
	Format         Format            `json:"format"`
	MIMEType       string            `json:"mimeType,omitempty"`
	SizeInBytes    int64             `json:"sizeInBytes"`
	Checksum       string            `json:"checksum"`
	ParentArchive  string            `json:"parentArchive,omitempty"`
	InternalPath   string            `json:"internalPath,omitempty"`
	Encoding       EncodingDiagnosis `json:"encoding"`
	Delimiter      string            `json:"delimiter,omitempty"`
	QuoteChar      string            `json:"quoteChar,omitempty"`
	Columns        []string          `json:"columns,omitempty"`
	ColumnCount    int               `json:"columnCount"`
	RowCount       int               `json:"rowCount"`
	SampleRows     []Item            `json:"sampleRows,omitempty"`
	Language       string            `json:"language,omitempty"`
	Locale         string            `json:"locale,omitempty"`
	Quality        Quality           `json:"quality"`
	Issues         []Issue           `json:"issues"`
	ProcessingLog  []string          `json:"processingLog"`
	DiscardedFiles []string          `json:"discardedFiles,omitempty"`
	ColumnProfiles []ColumnProfile   `json:"columnProfiles,omitempty"`
}

// AddIssue appends an issue and a matching log line.
func (s *StructuralSummary) AddIssue(code, message string, sev IssueSeverity) {
	s.Issues = append(s.Issues, Issue{Code: code, Message: message, Severity: sev})
	s.Log(string(sev) + ": " + message)
}

// Log appends a free-text entry to the processing log.
func (s *StructuralSummary) Log(line string) {
	s.ProcessingLog = append(s.ProcessingLog, line)
}

// SemanticType is the inferred meaning of a column.
type SemanticType string

const (
	TypeDate        SemanticType = "date"
	TypeDatetime    SemanticType = "datetime"
	TypeCurrency    SemanticType = "currency"
	TypeNumeric     SemanticType = "numeric"
	TypeCategorical SemanticType = "categorical"
	TypeText        SemanticType = "text"
	TypeIdentifier  SemanticType = "identifier"
)

// NumericStats holds descriptive statistics for numeric/currency columns.
type NumericStats struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"stdDev"`
}

// ColumnProfile is the semantic profile of one detected column.
type ColumnProfile struct {
	Name               string        `json:"name"`
	SemanticType       SemanticType  `json:"semanticType"`
	Confidence         float64       `json:"confidence"`
	NullPercentage     float64       `json:"nullPercentage"`
	UniqueValues       int           `json:"uniqueValues"`
	SampleValues       []string      `json:"sampleValues,omitempty"`
	Stats              *NumericStats `json:"stats,omitempty"`
	OutlierRate        float64       `json:"outlierRate,omitempty"`
	DuplicatesDetected bool          `json:"duplicatesDetected,omitempty"`
	Notes              []string      `json:"notes,omitempty"`
}

// Document is one ingested file after normalization: its structural summary
// plus the extracted item set. Err is non-empty when ingestion failed and the
// document degraded to an error record instead of aborting the batch.
type Document struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Kind     Format            `json:"kind"`
	Size     int64             `json:"size"`
	Items    []Item            `json:"items,omitempty"`
	Text     string            `json:"text,omitempty"`
	Summary  StructuralSummary `json:"summary"`
	Err      string            `json:"error,omitempty"`
	Children []string          `json:"children,omitempty"` // names of archive members
}

// Failed reports whether the document degraded to an error record.
func (d *Document) Failed() bool { return d.Err != "" }

// AuditStatus is the worst fiscal severity observed on a document.
type AuditStatus string

const (
	StatusOK     AuditStatus = "OK"
	StatusAlerta AuditStatus = "ALERTA"
	StatusErro   AuditStatus = "ERRO"
)

// Inconsistency is one rule violation from the fixed catalog.
type Inconsistency struct {
	Code          string   `json:"code"`
	Message       string   `json:"message"`
	Explanation   string   `json:"explanation"`
	NormativeBase string   `json:"normativeBase,omitempty"`
	Severity      Severity `json:"severity"`
}

// Classification is the heuristic operation-type result for a document.
type Classification struct {
	OperationType  string  `json:"operationType"`
	BusinessSector string  `json:"businessSector"`
	Confidence     float64 `json:"confidence"`
	CostCenter     string  `json:"costCenter"`
}

// ReconciliationStatus marks whether a document was matched to a transaction.
type ReconciliationStatus string

const (
	ReconciliationMatched ReconciliationStatus = "CONCILIADO"
	ReconciliationPending ReconciliationStatus = "PENDENTE"
)

// AuditedDocument is a document plus its audit outcome. Later stages enrich
// it in place; it is never recreated.
type AuditedDocument struct {
	Doc             *Document            `json:"doc"`
	Status          AuditStatus          `json:"status"`
	Score           int                  `json:"score"`
	Inconsistencies []Inconsistency      `json:"inconsistencies"`
	Classification  *Classification      `json:"classification,omitempty"`
	Reconciliation  ReconciliationStatus `json:"reconciliationStatus,omitempty"`
}

// DocRef points a finding at a source document.
type DocRef struct {
	Name         string `json:"name"`
	InternalPath string `json:"internalPath,omitempty"`
}

// Discrepancy is one divergent value pair inside a cross-document finding.
type Discrepancy struct {
	ValueA string `json:"valueA"`
	DocA   DocRef `json:"docA"`
	ValueB string `json:"valueB"`
	DocB   DocRef `json:"docB"`
}

// CrossFinding is one cross-document divergence on a shared item identity.
type CrossFinding struct {
	ComparisonKey string        `json:"comparisonKey"`
	Attribute     string        `json:"attribute"`
	Description   string        `json:"description"`
	Discrepancies []Discrepancy `json:"discrepancies"`
	Severity      Severity      `json:"severity"`
}

// BankTransaction is one normalized bank-statement line.
type BankTransaction struct {
	ID          string    `json:"id"`
	Date        time.Time `json:"date"`
	Amount      float64   `json:"amount"` // signed: positive credit, negative debit
	Description string    `json:"description"`
	Credit      bool      `json:"credit"`
	SourceFile  string    `json:"sourceFile"`
}

// MatchedPair is one (document, transaction) reconciliation match.
type MatchedPair struct {
	Doc         *AuditedDocument `json:"doc"`
	Transaction BankTransaction  `json:"transaction"`
}

// ReconciliationResult is the outcome of one reconciliation run.
type ReconciliationResult struct {
	MatchedPairs          []MatchedPair      `json:"matchedPairs"`
	UnmatchedDocuments    []*AuditedDocument `json:"unmatchedDocuments"`
	UnmatchedTransactions []BankTransaction  `json:"unmatchedTransactions"`
}

// Report is the boundary output consumed by external collaborators.
type Report struct {
	Documents         []*AuditedDocument    `json:"documents"`
	AggregatedMetrics map[string]string     `json:"aggregatedMetrics"`
	CrossValidation   []CrossFinding        `json:"deterministicCrossValidation"`
	Reconciliation    *ReconciliationResult `json:"reconciliationResult,omitempty"`
}
