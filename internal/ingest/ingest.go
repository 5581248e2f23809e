// Package ingest loads a delimiter-separated FAQ dataset, embeds each row,
// and upserts the batch into the vector store.
package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"faqd/internal/store"
)

// Embedder generates embeddings for row contents.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Catalog is the slice of the vector store the pipeline needs.
type Catalog interface {
	EnsureSchema(ctx context.Context) error
	CreateIndex(ctx context.Context) error
	Upsert(ctx context.Context, records []store.Record) error
	Count(ctx context.Context) (int, error)
}

// Summary reports what a run did.
type Summary struct {
	RowsRead    int
	RowsSkipped int
	RowsStored  int
	TotalStored int
}

// Pipeline reads FAQ rows, embeds them one at a time, and stores the whole
// batch in a single upsert. Rows whose embedding fails are skipped with a
// warning; schema, index, and upsert failures abort the run.
type Pipeline struct {
	catalog  Catalog
	embedder Embedder
	logger   *slog.Logger
}

// New creates a Pipeline over the given catalog and embedder.
func New(catalog Catalog, embedder Embedder) *Pipeline {
	return &Pipeline{catalog: catalog, embedder: embedder, logger: slog.Default()}
}

// Run ingests the file at path. separator is the field delimiter (the FAQ
// dataset ships semicolon-separated). The file must carry a header row with
// "question" and "answer" columns; "category" is optional.
func (p *Pipeline) Run(ctx context.Context, path string, separator rune) (Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return Summary{}, fmt.Errorf("opening dataset: %w", err)
	}
	defer f.Close()

	records, summary, err := p.prepare(ctx, f, separator)
	if err != nil {
		return summary, err
	}
	if len(records) == 0 {
		p.logger.Warn("no valid rows prepared, nothing to store", "path", path)
		return summary, nil
	}

	if err := p.catalog.EnsureSchema(ctx); err != nil {
		return summary, fmt.Errorf("ensuring schema: %w", err)
	}
	if err := p.catalog.CreateIndex(ctx); err != nil {
		return summary, fmt.Errorf("creating index: %w", err)
	}
	if err := p.catalog.Upsert(ctx, records); err != nil {
		return summary, fmt.Errorf("storing batch: %w", err)
	}
	summary.RowsStored = len(records)

	if total, err := p.catalog.Count(ctx); err == nil {
		summary.TotalStored = total
	} else {
		p.logger.Warn("counting stored records failed", "error", err)
	}

	return summary, nil
}

// prepare reads and embeds every row, skipping rows whose embedding fails.
func (p *Pipeline) prepare(ctx context.Context, r io.Reader, separator rune) ([]store.Record, Summary, error) {
	reader := csv.NewReader(r)
	reader.Comma = separator
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, Summary{}, fmt.Errorf("reading header: %w", err)
	}
	cols := columnIndex(header)
	qIdx, ok := cols["question"]
	if !ok {
		return nil, Summary{}, errors.New(`dataset has no "question" column`)
	}
	aIdx, ok := cols["answer"]
	if !ok {
		return nil, Summary{}, errors.New(`dataset has no "answer" column`)
	}
	cIdx, hasCategory := cols["category"]

	var (
		records []store.Record
		summary Summary
	)
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, summary, fmt.Errorf("reading row %d: %w", summary.RowsRead+1, err)
		}
		summary.RowsRead++

		contents := fmt.Sprintf("Question: %s\nAnswer: %s", row[qIdx], row[aIdx])
		category := "Unknown"
		if hasCategory && row[cIdx] != "" {
			category = row[cIdx]
		}

		vector, err := p.embedder.Embed(ctx, contents)
		if err != nil {
			p.logger.Warn("embedding failed, skipping row",
				"row", summary.RowsRead, "question", row[qIdx], "error", err)
			summary.RowsSkipped++
			continue
		}

		now := time.Now().UTC()
		records = append(records, store.Record{
			ID: store.UUIDFromTime(now),
			Metadata: map[string]any{
				"category":   category,
				"source_row": summary.RowsRead,
				"created_at": now.Format(time.RFC3339),
			},
			Contents:  contents,
			Embedding: vector,
		})
	}

	return records, summary, nil
}

// columnIndex maps lowercased, trimmed header names to their positions.
func columnIndex(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return cols
}
