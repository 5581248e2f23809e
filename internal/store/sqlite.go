package store

import (
	"container/heap"
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite"
)

// Compile-time check that SQLiteBackend implements Backend.
var _ Backend = (*SQLiteBackend)(nil)

// sqliteTable is the records table used by the SQLite backend.
const sqliteTable = "faq_records"

// sqliteTimeLayout is a fixed-width RFC 3339 layout. The time-range filter
// compares created_at strings lexicographically, so fractional seconds must
// not vary in width.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteBackend stores records in an embedded SQLite database and scores
// similarity by brute-force cosine distance over all rows. It is the
// zero-infrastructure fallback for local runs and tests; the Postgres
// backend is the canonical deployment target.
type SQLiteBackend struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database under dataDir and returns a
// backend. Pass ":memory:" for an in-memory database (used by tests).
func OpenSQLite(dataDir string) (*SQLiteBackend, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "faqd.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	return &SQLiteBackend{db: db}, nil
}

// Close closes the underlying database connection.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

// EnsureSchema creates the records table if absent.
func (b *SQLiteBackend) EnsureSchema(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS `+sqliteTable+` (
			id TEXT PRIMARY KEY,
			metadata TEXT NOT NULL DEFAULT '{}',
			contents TEXT NOT NULL,
			embedding BLOB NOT NULL,
			created_at TEXT NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("creating table %s: %w", sqliteTable, err)
	}
	return nil
}

// CreateIndex creates the created_at index if absent. Similarity scoring is
// a full scan in this backend, so only the time-range filter benefits from
// an index.
func (b *SQLiteBackend) CreateIndex(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS `+sqliteTable+`_created_at_idx
		ON `+sqliteTable+` (created_at)`)
	if err != nil {
		return fmt.Errorf("creating index on %s: %w", sqliteTable, err)
	}
	return nil
}

// DropIndex removes the created_at index.
func (b *SQLiteBackend) DropIndex(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx, `DROP INDEX IF EXISTS `+sqliteTable+`_created_at_idx`)
	if err != nil {
		return fmt.Errorf("dropping index on %s: %w", sqliteTable, err)
	}
	return nil
}

// Upsert inserts or replaces records keyed by id in one transaction.
func (b *SQLiteBackend) Upsert(ctx context.Context, records []Record) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning upsert transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO `+sqliteTable+` (id, metadata, contents, embedding, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			metadata = excluded.metadata,
			contents = excluded.contents,
			embedding = excluded.embedding,
			created_at = excluded.created_at`)
	if err != nil {
		return fmt.Errorf("preparing upsert statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		metadata, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("marshalling metadata for %s: %w", r.ID, err)
		}
		createdAt := recordCreatedAt(r.ID).UTC().Format(sqliteTimeLayout)
		if _, err := stmt.ExecContext(ctx, r.ID.String(), string(metadata), r.Contents,
			encodeFloat32s(r.Embedding), createdAt); err != nil {
			return fmt.Errorf("upserting record %s: %w", r.ID, err)
		}
	}

	return tx.Commit()
}

// candidate holds the data needed to filter and score a row during the scan
// phase. Full contents are fetched only for top-K winners.
type candidate struct {
	ID       string
	Distance float64
}

// Query scans all rows, applies the filters in-process, scores by cosine
// distance, and returns the top-K nearest records ordered ascending.
func (b *SQLiteBackend) Query(ctx context.Context, vector []float32, opts SearchOptions) ([]SearchResult, error) {
	if opts.Limit <= 0 {
		return nil, nil
	}

	query := `SELECT id, metadata, embedding, created_at FROM ` + sqliteTable
	var args []any
	if opts.TimeRange != nil {
		query += ` WHERE created_at >= ? AND created_at <= ?`
		args = append(args,
			opts.TimeRange.Start.UTC().Format(sqliteTimeLayout),
			opts.TimeRange.End.UTC().Format(sqliteTimeLayout))
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	queryNorm := norm(vector)
	if queryNorm == 0 {
		return nil, nil
	}

	// Max-heap on distance holding the K nearest candidates seen so far.
	h := &candidateHeap{}
	heap.Init(h)

	// Reusable buffer for decoding embeddings during the scan.
	var buf []float32

	for rows.Next() {
		var (
			id, metadataJSON, createdAt string
			blob                        []byte
		)
		if err := rows.Scan(&id, &metadataJSON, &blob, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		if opts.MetadataFilter != nil || opts.Predicate != nil {
			var metadata map[string]any
			if err := json.Unmarshal([]byte(metadataJSON), &metadata); err != nil {
				return nil, fmt.Errorf("unmarshalling metadata for %s: %w", id, err)
			}
			if !matchesEquality(metadata, opts.MetadataFilter) {
				continue
			}
			if opts.Predicate != nil && !opts.Predicate.Matches(metadata) {
				continue
			}
		}

		buf, err = decodeFloat32sInto(buf, blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", id, err)
		}

		dist := cosineDistance(vector, buf, queryNorm)
		if h.Len() < opts.Limit {
			heap.Push(h, candidate{ID: id, Distance: dist})
		} else if dist < (*h)[0].Distance {
			(*h)[0] = candidate{ID: id, Distance: dist}
			heap.Fix(h, 0)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	if h.Len() == 0 {
		return nil, nil
	}

	distances := make(map[string]float64, h.Len())
	topIDs := make([]any, 0, h.Len())
	for h.Len() > 0 {
		c := heap.Pop(h).(candidate)
		distances[c.ID] = c.Distance
		topIDs = append(topIDs, c.ID)
	}

	return b.fetchResults(ctx, topIDs, distances)
}

// fetchResults loads full records for the winning IDs and orders them by
// ascending distance (the IN query does not preserve order).
func (b *SQLiteBackend) fetchResults(ctx context.Context, ids []any, distances map[string]float64) ([]SearchResult, error) {
	query := `SELECT id, metadata, contents, embedding FROM ` + sqliteTable +
		` WHERE id IN (?` + strings.Repeat(",?", len(ids)-1) + `)`

	rows, err := b.db.QueryContext(ctx, query, ids...)
	if err != nil {
		return nil, fmt.Errorf("fetching top-K records: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var (
			res          SearchResult
			metadataJSON string
			blob         []byte
		)
		if err := rows.Scan(&res.ID, &metadataJSON, &res.Contents, &blob); err != nil {
			return nil, fmt.Errorf("scanning full record: %w", err)
		}
		if err := json.Unmarshal([]byte(metadataJSON), &res.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshalling metadata for %s: %w", res.ID, err)
		}
		if res.Embedding, err = decodeFloat32s(blob); err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", res.ID, err)
		}
		res.Distance = distances[res.ID.String()]
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating full records: %w", err)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})
	return results, nil
}

// Delete removes the selected rows and returns the number deleted.
func (b *SQLiteBackend) Delete(ctx context.Context, opts DeleteOptions) (int64, error) {
	var (
		query string
		args  []any
	)

	switch {
	case len(opts.IDs) > 0:
		query = `DELETE FROM ` + sqliteTable + ` WHERE id IN (?` + strings.Repeat(",?", len(opts.IDs)-1) + `)`
		for _, id := range opts.IDs {
			args = append(args, id.String())
		}
	case len(opts.MetadataFilter) > 0:
		var where []string
		keys := sortedKeys(opts.MetadataFilter)
		for _, k := range keys {
			if !validField.MatchString(k) {
				return 0, fmt.Errorf("invalid metadata filter key %q", k)
			}
			where = append(where, fmt.Sprintf("json_extract(metadata, '$.%s') = ?", k))
			args = append(args, opts.MetadataFilter[k])
		}
		query = `DELETE FROM ` + sqliteTable + ` WHERE ` + strings.Join(where, " AND ")
	default:
		query = `DELETE FROM ` + sqliteTable
	}

	res, err := b.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("deleting records: %w", err)
	}
	return res.RowsAffected()
}

// Count returns the number of stored records.
func (b *SQLiteBackend) Count(ctx context.Context) (int, error) {
	var count int
	err := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+sqliteTable).Scan(&count)
	return count, err
}

// matchesEquality reports whether metadata contains every filter pair, with
// values compared as their string forms (metadata values round-trip through
// JSON and may arrive as float64 or string).
func matchesEquality(metadata map[string]any, filter map[string]string) bool {
	for k, want := range filter {
		got, ok := metadata[k]
		if !ok || fmt.Sprint(got) != want {
			return false
		}
	}
	return true
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// encodeFloat32s serializes a float32 slice to little-endian bytes.
func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeFloat32s deserializes little-endian bytes into a new float32 slice.
func decodeFloat32s(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// decodeFloat32sInto decodes little-endian bytes into the provided buffer,
// reusing it to avoid per-row allocations during scans.
func decodeFloat32sInto(buf []float32, b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	if cap(buf) < n {
		buf = make([]float32, n)
	} else {
		buf = buf[:n]
	}
	for i := range buf {
		buf[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return buf, nil
}

// norm returns the L2 norm of a vector.
func norm(v []float32) float64 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return math.Sqrt(sum)
}

// cosineDistance computes 1 - cos(a, b) so both backends order ascending by
// distance. aNorm is the precomputed L2 norm of a.
func cosineDistance(a, b []float32, aNorm float64) float64 {
	if len(a) != len(b) {
		return 1
	}
	var dot, bNormSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		bNormSq += float64(b[i]) * float64(b[i])
	}
	bNorm := math.Sqrt(bNormSq)
	if bNorm == 0 {
		return 1
	}
	return 1 - dot/(aNorm*bNorm)
}

// candidateHeap is a max-heap of candidates ordered by distance, so the
// farthest of the current top-K sits at the root and is evicted first.
type candidateHeap []candidate

func (h candidateHeap) Len() int           { return len(h) }
func (h candidateHeap) Less(i, j int) bool { return h[i].Distance > h[j].Distance }
func (h candidateHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *candidateHeap) Push(x any)        { *h = append(*h, x.(candidate)) }
func (h *candidateHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
