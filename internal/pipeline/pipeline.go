// Package pipeline wires the audit stages together: queue ingestion, decoded
// per-file normalization on a worker pool, per-item rule evaluation, then the
// whole-batch join points (cross-validation, aggregated metrics) once every
// file has settled. The caller always gets a complete report; per-file
// failures degrade into error-status documents.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/auditoria/fiscal/internal/audit"
	"github.com/auditoria/fiscal/internal/crossval"
	"github.com/auditoria/fiscal/internal/encoding"
	"github.com/auditoria/fiscal/internal/ingest"
	"github.com/auditoria/fiscal/internal/metrics"
	"github.com/auditoria/fiscal/internal/model"
	"github.com/auditoria/fiscal/internal/normalize"
	"github.com/auditoria/fiscal/internal/reconcile"
	"github.com/auditoria/fiscal/internal/rules"
	"github.com/auditoria/fiscal/pkg/checksum"
)

// Progress fractions per phase: ingestion fills the first half, the worker
// pool most of the rest, the batch join points the tail.
const (
	ingestShare    = 50.0
	normalizeShare = 40.0
)

const defaultWorkers = 4

// Progress is one pipeline progress snapshot.
type Progress struct {
	Percent float64
	Step    string
}

// ProgressFunc receives progress snapshots. May be nil.
type ProgressFunc func(Progress)

// Config carries the pipeline tunables.
type Config struct {
	Workers     int
	CompanyName string
}

// Pipeline orchestrates one batch end to end.
type Pipeline struct {
	log        *slog.Logger
	driver     *ingest.Driver
	normalizer *normalize.Engine
	auditor    *audit.Auditor
	matcher    *reconcile.Matcher
	workers    int
}

// New assembles a pipeline. A nil recognizer keeps the built-in PDF
// text-layer reader.
func New(cfg Config, logger *slog.Logger, recognizer normalize.Recognizer) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Pipeline{
		log:        logger,
		driver:     ingest.NewDriver(logger),
		normalizer: normalize.NewEngine(logger, recognizer),
		auditor:    audit.New(rules.New(cfg.CompanyName), logger),
		matcher:    reconcile.NewMatcher(logger),
		workers:    workers,
	}
}

// Run processes one batch of uploaded files into a complete report. The only
// error it returns is context cancellation; every data-level problem lands
// inside the report instead.
func (p *Pipeline) Run(ctx context.Context, entries []model.RawFileEntry, report ProgressFunc) (*model.Report, error) {
	start := time.Now()
	emit := monotonic(report)

	ingested, err := p.driver.Run(ctx, entries, func(ip ingest.Progress) {
		emit(ip.Percent()/100*ingestShare, ip.Step)
	})
	if err != nil {
		return nil, err
	}
	metrics.BatchSize.Observe(float64(len(ingested.Accepted) + len(ingested.Archives)))

	docs, err := p.normalizeAll(ctx, ingested.Accepted, emit)
	if err != nil {
		return nil, err
	}

	out := &model.Report{}
	for _, archive := range ingested.Archives {
		out.Documents = append(out.Documents, p.auditOne(archive))
	}
	emit(ingestShare+normalizeShare+2, "auditando documentos")
	for _, doc := range docs {
		out.Documents = append(out.Documents, p.auditOne(doc))
	}
	for _, audited := range out.Documents {
		audit.Classify(audited)
	}

	emit(ingestShare+normalizeShare+5, "validação cruzada")
	out.CrossValidation = crossval.Validate(out.Documents)

	emit(ingestShare+normalizeShare+8, "consolidando métricas")
	out.AggregatedMetrics = audit.Aggregate(out.Documents)

	emit(100, "concluído")
	metrics.ObserveStage("batch", start)
	p.log.Info("batch processed",
		"files", len(entries),
		"documents", len(out.Documents),
		"crossFindings", len(out.CrossValidation),
		"elapsed", time.Since(start),
	)
	return out, nil
}

// normalizeAll fans accepted files out to a bounded worker pool and collects
// the documents back in input order. A panicking normalizer only loses its
// own file: the recover handler substitutes an error document. Workers check
// the context before every file, so cancellation stops the pool after the
// in-flight files instead of draining the whole queue.
func (p *Pipeline) normalizeAll(ctx context.Context, accepted []ingest.Accepted, emit func(float64, string)) ([]*model.Document, error) {
	if len(accepted) == 0 {
		return nil, nil
	}

	type job struct {
		index int
		file  ingest.Accepted
	}
	jobs := make(chan job, len(accepted))
	docs := make([]*model.Document, len(accepted))

	var completed int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for w := 0; w < p.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				if ctx.Err() != nil {
					return
				}
				doc := p.normalizeOne(j.file)
				mu.Lock()
				docs[j.index] = doc
				completed++
				pct := ingestShare + float64(completed)/float64(len(accepted))*normalizeShare
				mu.Unlock()
				emit(pct, "normalizando "+j.file.Entry.Name)
			}
		}()
	}

	for i, file := range accepted {
		jobs <- job{index: i, file: file}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}

// normalizeOne decodes and normalizes a single file, converting a panic into
// an error document so the batch keeps going.
func (p *Pipeline) normalizeOne(file ingest.Accepted) (doc *model.Document) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("normalizer panic",
				"file", file.Entry.Name,
				"panic", fmt.Sprint(r),
			)
			doc = errorDocument(file, fmt.Sprintf("falha inesperada ao processar o arquivo: %v", r))
			metrics.FilesProcessed.WithLabelValues(string(file.Format), "panic").Inc()
		}
	}()

	var decoded encoding.Result
	if encoding.TextBearing(file.Format) {
		decoded = encoding.Decode(file.Entry.Data)
	}
	doc = p.normalizer.Normalize(file.Entry, file.Format, decoded)

	outcome := "ok"
	if doc.Failed() {
		outcome = "error"
	}
	metrics.FilesProcessed.WithLabelValues(string(file.Format), outcome).Inc()
	return doc
}

func (p *Pipeline) auditOne(doc *model.Document) *model.AuditedDocument {
	audited := p.auditor.Audit(doc)
	metrics.DocumentsAudited.WithLabelValues(string(audited.Status)).Inc()
	for _, inc := range audited.Inconsistencies {
		metrics.FindingsTotal.WithLabelValues(inc.Code).Inc()
	}
	return audited
}

// Reconcile parses bank-statement files with the regular normalization path
// and matches the given audited documents against the extracted transactions.
func (p *Pipeline) Reconcile(ctx context.Context, docs []*model.AuditedDocument, bankFiles []model.RawFileEntry, report ProgressFunc) (*model.ReconciliationResult, error) {
	start := time.Now()
	emit := monotonic(report)

	ingested, err := p.driver.Run(ctx, bankFiles, func(ip ingest.Progress) {
		emit(ip.Percent()/100*ingestShare, ip.Step)
	})
	if err != nil {
		return nil, err
	}

	statements, err := p.normalizeAll(ctx, ingested.Accepted, emit)
	if err != nil {
		return nil, err
	}

	var txs []model.BankTransaction
	for _, stmt := range statements {
		txs = append(txs, reconcile.Transactions(stmt)...)
	}

	emit(95, "conciliando")
	result, err := p.matcher.Reconcile(ctx, docs, txs)
	if err != nil {
		return result, err
	}

	metrics.ReconciliationMatches.WithLabelValues("matched").Add(float64(len(result.MatchedPairs)))
	metrics.ReconciliationMatches.WithLabelValues("pending_documents").Add(float64(len(result.UnmatchedDocuments)))
	metrics.ReconciliationMatches.WithLabelValues("pending_transactions").Add(float64(len(result.UnmatchedTransactions)))
	metrics.ObserveStage("reconciliation", start)

	emit(100, "concluído")
	return result, nil
}

// errorDocument builds the error-status stand-in for a file whose normalizer
// did not survive.
func errorDocument(file ingest.Accepted, message string) *model.Document {
	doc := &model.Document{
		ID:   uuid.NewString(),
		Name: file.Entry.Name,
		Kind: file.Format,
		Size: file.Entry.Size,
		Err:  message,
		Summary: model.StructuralSummary{
			Format:        file.Format,
			MIMEType:      file.Entry.DeclaredMIME,
			SizeInBytes:   file.Entry.Size,
			Checksum:      checksum.Content(file.Entry.Data),
			ParentArchive: file.Entry.ParentArchive,
			InternalPath:  file.Entry.InternalPath,
		},
	}
	doc.Summary.AddIssue("NORMALIZACAO_FALHA", message, model.IssueError)
	doc.Summary.FinalizeQuality()
	return doc
}

// monotonic wraps a progress callback so the reported percentage never
// decreases. The mutex also serializes delivery, since pool workers emit
// concurrently.
func monotonic(report ProgressFunc) func(float64, string) {
	var mu sync.Mutex
	last := 0.0
	return func(pct float64, step string) {
		if report == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if pct < last {
			pct = last
		} else {
			last = pct
		}
		report(Progress{Percent: pct, Step: step})
	}
}
