package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auditoria/fiscal/internal/model"
	"github.com/auditoria/fiscal/internal/rules"
)

// recognizerFunc adapts a function to the normalize.Recognizer interface.
type recognizerFunc func(data []byte, name string) (string, error)

func (f recognizerFunc) RecoverText(data []byte, name string) (string, error) {
	return f(data, name)
}

func entry(name, content string) model.RawFileEntry {
	return model.RawFileEntry{Name: name, Size: int64(len(content)), Data: []byte(content)}
}

func newPipeline() *Pipeline {
	return New(Config{Workers: 2}, nil, nil)
}

func findDoc(t *testing.T, report *model.Report, name string) *model.AuditedDocument {
	t.Helper()
	for _, d := range report.Documents {
		if d.Doc.Name == name {
			return d
		}
	}
	t.Fatalf("documento %q não encontrado no relatório", name)
	return nil
}

func TestRunInterstateCFOPScenario(t *testing.T) {
	// One tabular file where a 6xxx CFOP meets identical origin and
	// destination regions.
	csv := "produto_nome,produto_cfop,emitente_uf,destinatario_uf\n" +
		"Parafuso,6101,SP,SP\n"

	report, err := newPipeline().Run(context.Background(),
		[]model.RawFileEntry{entry("nota.csv", csv)}, nil)
	require.NoError(t, err)
	require.Len(t, report.Documents, 1)

	doc := report.Documents[0]
	assert.Equal(t, model.StatusErro, doc.Status)

	var codes []string
	for _, inc := range doc.Inconsistencies {
		codes = append(codes, inc.Code)
	}
	assert.Contains(t, codes, rules.CodeCFOPInterestadualUF)
	assert.NotContains(t, codes, rules.CodeCFOPEstadualUF)
}

func TestRunAllFailingBatchStillReports(t *testing.T) {
	report, err := newPipeline().Run(context.Background(), []model.RawFileEntry{
		{Name: "a.bin", Size: 4, Data: []byte{0x00, 0x01, 0x02, 0x03}},
		{Name: "b.bin", Size: 4, Data: []byte{0x00, 0xFF, 0x00, 0xFF}},
	}, nil)
	require.NoError(t, err)

	require.Len(t, report.Documents, 2)
	for _, d := range report.Documents {
		assert.Equal(t, model.StatusErro, d.Status)
		assert.Equal(t, 99, d.Score)
		require.Len(t, d.Inconsistencies, 1)
		assert.Equal(t, rules.CodeImportFalha, d.Inconsistencies[0].Code)
	}
	assert.NotNil(t, report.AggregatedMetrics)
}

func TestRunArchiveEndToEnd(t *testing.T) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.Create("itens.csv")
	require.NoError(t, err)
	_, err = f.Write([]byte("produto_nome,produto_valor_total,produto_qtd\nCaneta,0,5\n"))
	require.NoError(t, err)
	_, err = w.Create("script.ps1")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	report, err := newPipeline().Run(context.Background(), []model.RawFileEntry{
		{Name: "lote.zip", Size: int64(buf.Len()), Data: buf.Bytes()},
	}, nil)
	require.NoError(t, err)
	require.Len(t, report.Documents, 2)

	archive := findDoc(t, report, "lote.zip")
	assert.Contains(t, archive.Doc.Summary.DiscardedFiles, "script.ps1")

	member := findDoc(t, report, "itens.csv")
	assert.Equal(t, "lote.zip", member.Doc.Summary.ParentArchive)
	assert.Equal(t, model.StatusAlerta, member.Status)
}

func TestRunProgressIsMonotone(t *testing.T) {
	var snaps []Progress
	_, err := newPipeline().Run(context.Background(), []model.RawFileEntry{
		entry("a.csv", "x,y\n1,2\n"),
		entry("b.csv", "x,y\n3,4\n"),
		entry("c.txt", "linha um\nlinha dois\n"),
	}, func(p Progress) { snaps = append(snaps, p) })
	require.NoError(t, err)

	require.NotEmpty(t, snaps)
	prev := 0.0
	for _, s := range snaps {
		assert.GreaterOrEqual(t, s.Percent, prev)
		prev = s.Percent
	}
	assert.InDelta(t, 100.0, snaps[len(snaps)-1].Percent, 0.001)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newPipeline().Run(ctx, []model.RawFileEntry{entry("a.csv", "x\n1\n")}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunStopsNormalizingAfterCancel(t *testing.T) {
	// Twenty scanned documents on two workers; the context is cancelled as
	// soon as the first one finishes normalizing. The pool must not drain
	// the remaining queue.
	var calls atomic.Int32
	rec := recognizerFunc(func(data []byte, name string) (string, error) {
		calls.Add(1)
		time.Sleep(2 * time.Millisecond)
		return "CNPJ: 12.345.678/0001-90\n", nil
	})
	p := New(Config{Workers: 2}, nil, rec)

	entries := make([]model.RawFileEntry, 20)
	for i := range entries {
		entries[i] = entry(fmt.Sprintf("nota%02d.pdf", i), "%PDF-1.4 digitalizado")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err := p.Run(ctx, entries, func(pr Progress) {
		if strings.HasPrefix(pr.Step, "normalizando") {
			cancel()
		}
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, int(calls.Load()), len(entries))
}

func TestRunCrossValidationJoinPoint(t *testing.T) {
	// Two files, same product, 20% unit-price spread.
	a := "produto_nome,produto_valor_unit\nMonitor 24,\"100,00\"\n"
	b := "produto_nome,produto_valor_unit\nMonitor 24,\"120,00\"\n"

	report, err := newPipeline().Run(context.Background(), []model.RawFileEntry{
		entry("a.csv", a),
		entry("b.csv", b),
	}, nil)
	require.NoError(t, err)

	require.Len(t, report.CrossValidation, 1)
	f := report.CrossValidation[0]
	assert.Equal(t, "Preço Unitário", f.Attribute)
	require.Len(t, f.Discrepancies, 1)
	names := []string{f.Discrepancies[0].DocA.Name, f.Discrepancies[0].DocB.Name}
	assert.ElementsMatch(t, []string{"a.csv", "b.csv"}, names)
}

func TestReconcileEndToEnd(t *testing.T) {
	// Scenario: document totaling 500.00 on 2024-07-01, bank debit of
	// -500.01 on 2024-07-20.
	doc := "produto_nome,valor_total_nfe,data_emissao\nServiço,\"500,00\",2024-07-01\n"
	bank := "Data,Descrição,Valor\n2024-07-20,TED fornecedor,\"-500,01\"\n2024-07-21,Tarifa,\"-19,90\"\n"

	p := newPipeline()
	report, err := p.Run(context.Background(), []model.RawFileEntry{entry("nota.csv", doc)}, nil)
	require.NoError(t, err)

	result, err := p.Reconcile(context.Background(), report.Documents,
		[]model.RawFileEntry{entry("extrato.csv", bank)}, nil)
	require.NoError(t, err)

	require.Len(t, result.MatchedPairs, 1)
	assert.InDelta(t, -500.01, result.MatchedPairs[0].Transaction.Amount, 0.001)
	assert.Equal(t, model.ReconciliationMatched, report.Documents[0].Reconciliation)
	require.Len(t, result.UnmatchedTransactions, 1)
	assert.Equal(t, "Tarifa", result.UnmatchedTransactions[0].Description)
}
