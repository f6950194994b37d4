// Package ingest drives the intake queue: every uploaded blob enters a FIFO
// worklist, archives are expanded in place and their members re-enter the same
// queue, and everything else is handed over for normalization. The queue is
// explicit so adversarial nesting depth never grows the call stack.
package ingest

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/auditoria/fiscal/internal/encoding"
	"github.com/auditoria/fiscal/internal/model"
	"github.com/auditoria/fiscal/pkg/checksum"
)

// Extensions rejected during archive expansion. Matching entries never reach
// a normalizer; they are listed in the parent's summary instead.
var blockedExtensions = map[string]bool{
	".js":  true,
	".exe": true,
	".bat": true,
	".sh":  true,
	".dll": true,
	".msi": true,
	".ps1": true,
	".vbs": true,
	".scr": true,
}

const (
	// discardedSampleCap bounds how many discarded names the summary lists.
	discardedSampleCap = 20

	// maxEntryBytes caps a single decompressed archive member.
	maxEntryBytes = 128 << 20

	// maxQueueEntries bounds total queue growth from archive expansion.
	maxQueueEntries = 10_000
)

// Progress is one snapshot of queue consumption. Total grows as archive
// members are discovered, so Percent can plateau but never decreases in
// absolute completed work.
type Progress struct {
	Done  int
	Total int
	Step  string
}

// Percent is the completed fraction as 0-100.
func (p Progress) Percent() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Done) / float64(p.Total) * 100
}

// ProgressFunc receives progress snapshots. May be nil.
type ProgressFunc func(Progress)

// Accepted is a non-archive file that survived intake, paired with its
// detected container format.
type Accepted struct {
	Entry  model.RawFileEntry
	Format model.Format
}

// Result is the outcome of draining the queue: files ready for normalization
// plus one document per archive container encountered.
type Result struct {
	Accepted []Accepted
	Archives []*model.Document
}

// Driver owns the intake queue.
type Driver struct {
	log *slog.Logger
}

// NewDriver creates a queue driver.
func NewDriver(logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{log: logger}
}

// Run consumes the initial entries plus everything archive expansion adds,
// reporting progress after each consumed item. It stops early only on context
// cancellation; per-file problems degrade into issues on the owning document.
func (d *Driver) Run(ctx context.Context, entries []model.RawFileEntry, report ProgressFunc) (*Result, error) {
	queue := make([]model.RawFileEntry, len(entries))
	copy(queue, entries)

	result := &Result{}
	done := 0
	total := len(queue)

	emit := func(step string) {
		if report != nil {
			report(Progress{Done: done, Total: total, Step: step})
		}
	}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		entry := queue[0]
		queue = queue[1:]

		format := encoding.DetectFormat(entry.Data, entry.Name, entry.DeclaredMIME)
		if format == model.FormatArchive {
			doc, members := d.expandArchive(entry)
			result.Archives = append(result.Archives, doc)

			if total+len(members) > maxQueueEntries {
				allowed := maxQueueEntries - total
				if allowed < 0 {
					allowed = 0
				}
				doc.Summary.AddIssue("ZIP_LIMITE_ENTRADAS",
					fmt.Sprintf("expansão interrompida: limite de %d entradas na fila atingido", maxQueueEntries),
					model.IssueWarn)
				members = members[:allowed]
			}
			queue = append(queue, members...)
			total += len(members)
			doc.Summary.FinalizeQuality()

			done++
			emit("expandindo " + entry.Name)
			continue
		}

		result.Accepted = append(result.Accepted, Accepted{Entry: entry, Format: format})
		done++
		emit("processando " + entry.Name)
	}
	return result, nil
}

// expandArchive opens one zip container and splits its members into accepted
// queue entries and discarded names. The returned document represents the
// container itself and carries the sanitation record.
func (d *Driver) expandArchive(entry model.RawFileEntry) (*model.Document, []model.RawFileEntry) {
	doc := &model.Document{
		ID:   uuid.NewString(),
		Name: entry.Name,
		Kind: model.FormatArchive,
		Size: entry.Size,
		Summary: model.StructuralSummary{
			Format:        model.FormatArchive,
			MIMEType:      entry.DeclaredMIME,
			SizeInBytes:   entry.Size,
			Checksum:      checksum.Content(entry.Data),
			ParentArchive: entry.ParentArchive,
			InternalPath:  entry.InternalPath,
		},
	}
	s := &doc.Summary

	reader, err := zip.NewReader(bytes.NewReader(entry.Data), int64(len(entry.Data)))
	if err != nil {
		doc.Err = "não foi possível abrir o arquivo compactado: " + err.Error()
		s.AddIssue("ZIP_INVALIDO", doc.Err, model.IssueError)
		return doc, nil
	}

	var members []model.RawFileEntry
	var discarded []string
	unreadable := 0

	for _, f := range reader.File {
		if f.FileInfo().IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(f.Name))
		if blockedExtensions[ext] {
			discarded = append(discarded, f.Name)
			continue
		}
		if f.UncompressedSize64 > maxEntryBytes {
			s.AddIssue("ZIP_ENTRADA_EXCEDE_LIMITE",
				fmt.Sprintf("entrada %q excede o limite de descompressão e foi ignorada", f.Name),
				model.IssueWarn)
			continue
		}

		data, err := readEntry(f)
		if err != nil {
			unreadable++
			s.Log(fmt.Sprintf("entrada ilegível %q: %v", f.Name, err))
			continue
		}
		members = append(members, model.RawFileEntry{
			Name:          path.Base(f.Name),
			Size:          int64(len(data)),
			Data:          data,
			ParentArchive: entry.Name,
			InternalPath:  f.Name,
		})
	}

	if len(discarded) > 0 {
		sample := discarded
		if len(sample) > discardedSampleCap {
			sample = sample[:discardedSampleCap]
		}
		s.DiscardedFiles = sample
		s.AddIssue("ZIP_SANITIZED",
			fmt.Sprintf("%d entrada(s) removida(s) por extensão executável", len(discarded)),
			model.IssueInfo)
	}
	if unreadable > 0 {
		s.AddIssue("ZIP_ENTRADA_ILEGIVEL",
			fmt.Sprintf("%d entrada(s) não puderam ser lidas", unreadable),
			model.IssueWarn)
	}
	s.Log(fmt.Sprintf("%d entrada(s) aceitas de %s", len(members), entry.Name))
	d.log.Debug("archive expanded",
		"archive", entry.Name,
		"accepted", len(members),
		"discarded", len(discarded),
	)
	return doc, members
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxEntryBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxEntryBytes {
		return nil, fmt.Errorf("entrada maior que o declarado")
	}
	return data, nil
}
