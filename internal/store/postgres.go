package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

// Compile-time check that PostgresBackend implements Backend.
var _ Backend = (*PostgresBackend)(nil)

// PostgresConfig configures the pgvector-backed store.
type PostgresConfig struct {
	// URL is the connection string (postgres://...).
	URL string

	// Table is the records table name. Must be a plain identifier.
	Table string

	// Dimensions is the vector column dimensionality.
	Dimensions int

	// IndexLists is the ivfflat lists parameter for the similarity index.
	IndexLists int

	// MaxConns caps the connection pool. Defaults to 8 if <= 0.
	MaxConns int
}

// PostgresBackend stores records in Postgres with the pgvector extension.
// Nearest-neighbor ordering, metadata predicates, and time-range filtering
// all evaluate server-side. The backend owns a connection pool and is safe
// for concurrent use.
type PostgresBackend struct {
	db  *sqlx.DB
	cfg PostgresConfig
}

// OpenPostgres connects to Postgres and returns a backend over cfg.Table.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresBackend, error) {
	if !validField.MatchString(cfg.Table) {
		return nil, fmt.Errorf("invalid table name %q", cfg.Table)
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 8
	}

	db, err := sqlx.ConnectContext(ctx, "pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &PostgresBackend{db: db, cfg: cfg}, nil
}

// Close releases the connection pool.
func (b *PostgresBackend) Close() error {
	return b.db.Close()
}

// isDuplicateObject reports whether err is Postgres telling us the table or
// index already exists. These are the only errors schema and index creation
// swallow.
func isDuplicateObject(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	// 42P07 duplicate_table, 42710 duplicate_object.
	return pgErr.Code == "42P07" || pgErr.Code == "42710"
}

// EnsureSchema creates the pgvector extension and the records table if
// absent.
func (b *PostgresBackend) EnsureSchema(ctx context.Context) error {
	if _, err := b.db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil && !isDuplicateObject(err) {
		return fmt.Errorf("creating vector extension: %w", err)
	}

	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id uuid PRIMARY KEY,
			metadata jsonb NOT NULL DEFAULT '{}'::jsonb,
			contents text NOT NULL,
			embedding vector(%d) NOT NULL,
			created_at timestamptz NOT NULL
		)`, b.cfg.Table, b.cfg.Dimensions)
	if _, err := b.db.ExecContext(ctx, ddl); err != nil && !isDuplicateObject(err) {
		return fmt.Errorf("creating table %s: %w", b.cfg.Table, err)
	}
	return nil
}

// CreateIndex creates the ivfflat cosine index if absent.
func (b *PostgresBackend) CreateIndex(ctx context.Context) error {
	lists := b.cfg.IndexLists
	if lists <= 0 {
		lists = 100
	}
	ddl := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = %d)`, b.cfg.Table, b.cfg.Table, lists)
	if _, err := b.db.ExecContext(ctx, ddl); err != nil && !isDuplicateObject(err) {
		return fmt.Errorf("creating index on %s: %w", b.cfg.Table, err)
	}
	return nil
}

// DropIndex removes the similarity index.
func (b *PostgresBackend) DropIndex(ctx context.Context) error {
	ddl := fmt.Sprintf(`DROP INDEX IF EXISTS %s_embedding_idx`, b.cfg.Table)
	if _, err := b.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("dropping index on %s: %w", b.cfg.Table, err)
	}
	return nil
}

// Upsert inserts or replaces records keyed by id in one transaction.
func (b *PostgresBackend) Upsert(ctx context.Context, records []Record) error {
	tx, err := b.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning upsert transaction: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`
		INSERT INTO %s (id, metadata, contents, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			metadata = EXCLUDED.metadata,
			contents = EXCLUDED.contents,
			embedding = EXCLUDED.embedding,
			created_at = EXCLUDED.created_at`, b.cfg.Table)

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing upsert statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		metadata, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("marshalling metadata for %s: %w", r.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, r.ID, metadata, r.Contents,
			vectorLiteral(r.Embedding), recordCreatedAt(r.ID)); err != nil {
			return fmt.Errorf("upserting record %s: %w", r.ID, err)
		}
	}

	return tx.Commit()
}

// Query runs a nearest-neighbor search ordered by cosine distance ascending.
func (b *PostgresBackend) Query(ctx context.Context, vector []float32, opts SearchOptions) ([]SearchResult, error) {
	query, args, err := b.buildQuery(vector, opts)
	if err != nil {
		return nil, err
	}

	rows, err := b.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var (
			res       SearchResult
			metadata  []byte
			embedding string
		)
		if err := rows.Scan(&res.ID, &metadata, &res.Contents, &embedding, &res.Distance); err != nil {
			return nil, fmt.Errorf("scanning result row: %w", err)
		}
		if err := json.Unmarshal(metadata, &res.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshalling metadata for %s: %w", res.ID, err)
		}
		if res.Embedding, err = parseVector(embedding); err != nil {
			return nil, fmt.Errorf("parsing embedding for %s: %w", res.ID, err)
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

// buildQuery assembles the similarity SELECT with optional metadata, predicate,
// and time-range filters. $1 is always the query vector.
func (b *PostgresBackend) buildQuery(vector []float32, opts SearchOptions) (string, []any, error) {
	args := []any{vectorLiteral(vector)}
	var where []string

	if len(opts.MetadataFilter) > 0 {
		filter, err := json.Marshal(opts.MetadataFilter)
		if err != nil {
			return "", nil, fmt.Errorf("marshalling metadata filter: %w", err)
		}
		args = append(args, filter)
		where = append(where, fmt.Sprintf("metadata @> $%d::jsonb", len(args)))
	}

	if opts.Predicate != nil {
		clause, err := predicateSQL(opts.Predicate, &args)
		if err != nil {
			return "", nil, err
		}
		where = append(where, clause)
	}

	if opts.TimeRange != nil {
		args = append(args, opts.TimeRange.Start)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
		args = append(args, opts.TimeRange.End)
		where = append(where, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, `SELECT id, metadata, contents, embedding::text, embedding <=> $1::vector AS distance FROM %s`, b.cfg.Table)
	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	fmt.Fprintf(&sb, " ORDER BY embedding <=> $1::vector LIMIT %d", opts.Limit)

	return sb.String(), args, nil
}

// predicateSQL translates a predicate tree into a WHERE fragment over the
// jsonb metadata column, appending bind values to args. The tree must have
// been validated first: field names are embedded in the SQL text.
func predicateSQL(p *Predicate, args *[]any) (string, error) {
	if p.conj != "" {
		parts := make([]string, 0, len(p.children))
		for _, c := range p.children {
			part, err := predicateSQL(c, args)
			if err != nil {
				return "", err
			}
			parts = append(parts, part)
		}
		return "(" + strings.Join(parts, " "+string(p.conj)+" ") + ")", nil
	}

	op, err := sqlOp(p.op)
	if err != nil {
		return "", err
	}

	if n, ok := asFloat(p.value); ok {
		*args = append(*args, n)
		return fmt.Sprintf("(metadata->>'%s')::numeric %s $%d", p.field, op, len(*args)), nil
	}
	*args = append(*args, fmt.Sprint(p.value))
	return fmt.Sprintf("metadata->>'%s' %s $%d", p.field, op, len(*args)), nil
}

func sqlOp(op Op) (string, error) {
	switch op {
	case OpEq:
		return "=", nil
	case OpNe:
		return "<>", nil
	case OpGt, OpGe, OpLt, OpLe:
		return string(op), nil
	default:
		return "", fmt.Errorf("unknown predicate operator %q", op)
	}
}

// Delete removes the selected rows and returns the number deleted.
func (b *PostgresBackend) Delete(ctx context.Context, opts DeleteOptions) (int64, error) {
	var (
		query string
		args  []any
		err   error
	)

	switch {
	case len(opts.IDs) > 0:
		query, args, err = sqlx.In(fmt.Sprintf(`DELETE FROM %s WHERE id IN (?)`, b.cfg.Table), idStrings(opts.IDs))
		if err != nil {
			return 0, fmt.Errorf("building delete query: %w", err)
		}
		query = b.db.Rebind(query)
	case len(opts.MetadataFilter) > 0:
		filter, merr := json.Marshal(opts.MetadataFilter)
		if merr != nil {
			return 0, fmt.Errorf("marshalling metadata filter: %w", merr)
		}
		query = fmt.Sprintf(`DELETE FROM %s WHERE metadata @> $1::jsonb`, b.cfg.Table)
		args = []any{filter}
	default:
		query = fmt.Sprintf(`DELETE FROM %s`, b.cfg.Table)
	}

	res, err := b.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("deleting records: %w", err)
	}
	return res.RowsAffected()
}

// Count returns the number of stored records.
func (b *PostgresBackend) Count(ctx context.Context) (int, error) {
	var count int
	err := b.db.GetContext(ctx, &count, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, b.cfg.Table))
	return count, err
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// vectorLiteral renders a float32 slice as a pgvector literal: [0.1,0.2,...].
func vectorLiteral(v []float32) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}

// parseVector decodes a pgvector text literal back into a float32 slice.
func parseVector(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil, fmt.Errorf("malformed vector literal %q", truncate(s, 32))
	}
	inner := s[1 : len(s)-1]
	if inner == "" {
		return nil, nil
	}
	parts := strings.Split(inner, ",")
	out := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("parsing vector element %d: %w", i, err)
		}
		out[i] = float32(f)
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
