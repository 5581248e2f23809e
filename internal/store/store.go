// Package store implements the FAQ vector store: records keyed by
// time-ordered UUIDs, each carrying metadata, text contents, and a
// fixed-length embedding. Similarity search embeds the query text and asks
// the backend for the nearest stored vectors by cosine distance.
//
// Two backends exist: Postgres with pgvector (canonical, pooled) and an
// embedded SQLite fallback with brute-force scoring for local use and tests.
package store

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrValidation indicates a malformed record or selector supplied by
	// the caller (wrong embedding dimensionality, ambiguous delete).
	ErrValidation = errors.New("validation failed")

	// ErrDatabase wraps failures reported by the vector database backend.
	ErrDatabase = errors.New("database failure")
)

// defaultSearchLimit applies when SearchOptions.Limit is not set.
const defaultSearchLimit = 10

// Embedder converts text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Backend is the storage engine behind a Store. Implementations must be
// safe for concurrent use.
type Backend interface {
	// EnsureSchema creates the records table if absent. Idempotent.
	EnsureSchema(ctx context.Context) error

	// CreateIndex creates the similarity index if absent. Idempotent.
	CreateIndex(ctx context.Context) error

	// DropIndex removes the similarity index.
	DropIndex(ctx context.Context) error

	// Upsert inserts or replaces records keyed by ID, all within one
	// transaction.
	Upsert(ctx context.Context, records []Record) error

	// Query returns the records nearest to vector, ordered by ascending
	// distance and filtered per opts. A non-positive Limit yields no
	// results.
	Query(ctx context.Context, vector []float32, opts SearchOptions) ([]SearchResult, error)

	// Delete permanently removes the selected records and reports how many
	// rows were removed.
	Delete(ctx context.Context, opts DeleteOptions) (int64, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	// Close releases the database handle.
	Close() error
}

// Store wraps a Backend with query-time embedding and parameter validation.
// It owns the backend's connection handle for its lifetime.
type Store struct {
	backend    Backend
	embedder   Embedder
	dimensions int
}

// New creates a Store over the given backend. dimensions is the configured
// embedding dimensionality every record must carry.
func New(backend Backend, embedder Embedder, dimensions int) *Store {
	return &Store{backend: backend, embedder: embedder, dimensions: dimensions}
}

// EnsureSchema creates the records table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if err := s.backend.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("%w: ensuring schema: %w", ErrDatabase, err)
	}
	return nil
}

// CreateIndex creates the similarity index if it does not exist.
func (s *Store) CreateIndex(ctx context.Context) error {
	if err := s.backend.CreateIndex(ctx); err != nil {
		return fmt.Errorf("%w: creating index: %w", ErrDatabase, err)
	}
	return nil
}

// DropIndex removes the similarity index.
func (s *Store) DropIndex(ctx context.Context) error {
	if err := s.backend.DropIndex(ctx); err != nil {
		return fmt.Errorf("%w: dropping index: %w", ErrDatabase, err)
	}
	return nil
}

// Upsert inserts or replaces records keyed by ID. The whole batch commits in
// one transaction or not at all. Every record must carry an embedding of the
// configured dimensionality.
func (s *Store) Upsert(ctx context.Context, records []Record) error {
	for i, r := range records {
		if len(r.Embedding) != s.dimensions {
			return fmt.Errorf("%w: record %d (%s) has embedding of length %d, want %d",
				ErrValidation, i, r.ID, len(r.Embedding), s.dimensions)
		}
	}
	if len(records) == 0 {
		return nil
	}
	if err := s.backend.Upsert(ctx, records); err != nil {
		return fmt.Errorf("%w: upserting %d records: %w", ErrDatabase, len(records), err)
	}
	return nil
}

// Search embeds queryText and returns the nearest records, ordered by
// ascending distance. An empty result set is not an error.
func (s *Store) Search(ctx context.Context, queryText string, opts SearchOptions) ([]SearchResult, error) {
	if opts.Limit <= 0 {
		opts.Limit = defaultSearchLimit
	}
	if opts.Predicate != nil {
		if err := opts.Predicate.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrValidation, err)
		}
	}
	if opts.TimeRange != nil && opts.TimeRange.End.Before(opts.TimeRange.Start) {
		return nil, fmt.Errorf("%w: time range end precedes start", ErrValidation)
	}

	vector, err := s.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	results, err := s.backend.Query(ctx, vector, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: searching: %w", ErrDatabase, err)
	}
	return results, nil
}

// Delete permanently removes records. Exactly one selector (IDs,
// MetadataFilter, or All) must be set.
func (s *Store) Delete(ctx context.Context, opts DeleteOptions) (int64, error) {
	if n := opts.selectorCount(); n != 1 {
		return 0, fmt.Errorf("%w: delete requires exactly one of ids, metadata filter, or all (got %d)",
			ErrValidation, n)
	}
	deleted, err := s.backend.Delete(ctx, opts)
	if err != nil {
		return 0, fmt.Errorf("%w: deleting records: %w", ErrDatabase, err)
	}
	return deleted, nil
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := s.backend.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: counting records: %w", ErrDatabase, err)
	}
	return n, nil
}

// Close releases the backend's database handle.
func (s *Store) Close() error {
	return s.backend.Close()
}
