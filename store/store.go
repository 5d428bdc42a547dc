// Package store persists sources and their chunks/embeddings in SQLite,
// backed by sqlite-vec for k-NN search and FTS5 for a lexical candidate
// index.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/bbiangul/ragcore/errs"
)

func init() {
	sqlite_vec.Auto()
}

// Status is a source's position in the ingest state machine.
type Status string

const (
	StatusPending    Status = "pending"
	StatusExtracting Status = "extracting"
	StatusChunking   Status = "chunking"
	StatusEmbedding  Status = "embedding"
	StatusReady      Status = "ready"
	StatusFailed     Status = "failed"
)

// ingesting reports whether a status is one of the interior, non-terminal
// states during which chunk inserts are permitted.
func (s Status) ingesting() bool {
	switch s {
	case StatusPending, StatusExtracting, StatusChunking, StatusEmbedding:
		return true
	}
	return false
}

// Source represents a row in the sources table.
type Source struct {
	ID             int64
	Name           string
	Kind           string
	ContentHash    string
	Status         Status
	PageCount      int
	ChunkCount     int
	EmbeddingCount int
	IsTruncated    bool
	CoveragePct    float64
	ErrorText      string
	Metadata       string
	CreatedAt      string
	UpdatedAt      string
}

// Chunk represents a row in the chunks table.
type Chunk struct {
	ID           int64
	SourceID     int64
	Ordinal      int
	PageNumber   int
	Section      string
	Content      string
	ContentHash  string
	IsDefinition bool
}

// Result is a chunk surfaced by a store search, joined with its owning
// source's display name.
type Result struct {
	ChunkID    int64
	SourceID   int64
	SourceName string
	Content    string
	PageNumber int
	Section    string
	Ordinal    int
	Score      float64
}

// Filter narrows nearest/FTS candidates by source attributes.
type Filter struct {
	SourceKind string
	SourceIDs  []int64
	OrdinalMin *int
	OrdinalMax *int
}

// Store wraps the SQLite database for chunk/embedding persistence.
type Store struct {
	db           *sql.DB
	embeddingDim int
}

// New opens (or creates) a SQLite database at dbPath and initializes the
// schema, including the sqlite-vec and FTS5 virtual tables.
func New(dbPath string, embeddingDim int) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schemaSQL(embeddingDim)); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db, embeddingDim: embeddingDim}

	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

// DB returns the underlying *sql.DB for advanced queries.
func (s *Store) DB() *sql.DB { return s.db }

// EmbeddingDim returns the configured embedding dimension D.
func (s *Store) EmbeddingDim() int { return s.embeddingDim }

// --- Source operations ---

// UpsertSource inserts a new source or returns the existing one by hash if
// already present and not failed. Duplicate is returned if a source with
// the same hash already reached ready.
func (s *Store) UpsertSource(ctx context.Context, name, kind, contentHash string) (*Source, error) {
	existing, err := s.GetSourceByHash(ctx, contentHash)
	if err == nil && existing != nil {
		if existing.Status == StatusReady {
			return nil, errs.New(errs.Duplicate, fmt.Sprintf("source with hash %s is already ready", contentHash))
		}
		return existing, nil
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sources (name, kind, content_hash, status)
		VALUES (?, ?, ?, ?)
	`, name, kind, contentHash, StatusPending)
	if err != nil {
		return nil, errs.Wrap(errs.StoreUnavailable, "inserting source", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, errs.Wrap(errs.StoreUnavailable, "reading inserted source id", err)
	}
	return s.GetSource(ctx, id)
}

// GetSourceByHash looks up a source by content hash. Returns nil, nil if
// none exists.
func (s *Store) GetSourceByHash(ctx context.Context, hash string) (*Source, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, kind, content_hash, status, page_count, chunk_count,
			embedding_count, is_truncated, coverage_pct, COALESCE(error_text, ''),
			COALESCE(metadata, ''), created_at, updated_at
		FROM sources WHERE content_hash = ?
	`, hash)
	src, err := scanSource(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.StoreUnavailable, "reading source by hash", err)
	}
	return src, nil
}

// GetSource retrieves a source by ID. Returns nil, nil if none exists.
func (s *Store) GetSource(ctx context.Context, id int64) (*Source, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, kind, content_hash, status, page_count, chunk_count,
			embedding_count, is_truncated, coverage_pct, COALESCE(error_text, ''),
			COALESCE(metadata, ''), created_at, updated_at
		FROM sources WHERE id = ?
	`, id)
	src, err := scanSource(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.StoreUnavailable, "reading source", err)
	}
	return src, nil
}

// ListSources returns all sources, newest first.
func (s *Store) ListSources(ctx context.Context) ([]Source, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, kind, content_hash, status, page_count, chunk_count,
			embedding_count, is_truncated, coverage_pct, COALESCE(error_text, ''),
			COALESCE(metadata, ''), created_at, updated_at
		FROM sources ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, errs.Wrap(errs.StoreUnavailable, "listing sources", err)
	}
	defer rows.Close()

	var out []Source
	for rows.Next() {
		var src Source
		var truncated int
		if err := rows.Scan(&src.ID, &src.Name, &src.Kind, &src.ContentHash, &src.Status,
			&src.PageCount, &src.ChunkCount, &src.EmbeddingCount, &truncated,
			&src.CoveragePct, &src.ErrorText, &src.Metadata, &src.CreatedAt, &src.UpdatedAt); err != nil {
			return nil, errs.Wrap(errs.StoreUnavailable, "scanning source", err)
		}
		src.IsTruncated = truncated != 0
		out = append(out, src)
	}
	return out, rows.Err()
}

// UpdateSourceStatus transitions a source's status, optionally recording an
// error message (for a failed transition).
func (s *Store) UpdateSourceStatus(ctx context.Context, id int64, status Status, errorText string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sources SET status = ?, error_text = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, status, nullableString(errorText), id)
	if err != nil {
		return errs.Wrap(errs.StoreUnavailable, "updating source status", err)
	}
	return nil
}

// UpdateSourceCounts records page/chunk/embedding counts and truncation
// state, typically called once chunking and embedding complete.
func (s *Store) UpdateSourceCounts(ctx context.Context, id int64, pageCount, chunkCount, embeddingCount int, truncated bool, coveragePct float64) error {
	t := 0
	if truncated {
		t = 1
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE sources SET page_count = ?, chunk_count = ?, embedding_count = ?,
			is_truncated = ?, coverage_pct = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, pageCount, chunkCount, embeddingCount, t, coveragePct, id)
	if err != nil {
		return errs.Wrap(errs.StoreUnavailable, "updating source counts", err)
	}
	return nil
}

// DeleteSource atomically deletes a source and all of its chunks/embeddings.
func (s *Store) DeleteSource(ctx context.Context, id int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM vec_chunks WHERE chunk_id IN (SELECT id FROM chunks WHERE source_id = ?)
		`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE source_id = ?", id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM sources WHERE id = ?", id); err != nil {
			return err
		}
		return nil
	})
}

// DeleteSourceChunks removes all chunks/embeddings for a source but keeps
// the source row itself, used by Refresh to clear a source before it is
// re-ingested. Only the deletion is transactional; the re-ingest that
// follows runs separately.
func (s *Store) DeleteSourceChunks(ctx context.Context, id int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM vec_chunks WHERE chunk_id IN (SELECT id FROM chunks WHERE source_id = ?)
		`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE source_id = ?", id); err != nil {
			return err
		}
		return nil
	})
}

// --- Chunk operations ---

// InsertChunks inserts a batch of chunks for a source in a single
// transaction. The source must be in an ingesting state, and the batch's
// ordinals must form a contiguous 0-based range (chunks[i].Ordinal == i);
// chunks already present for the source are not consulted, so a second
// batch for the same source fails on the UNIQUE(source_id, ordinal)
// constraint. Embeddings are supplied in parallel to chunks;
// embeddings[i] may be nil, in which case that chunk is inserted without a
// vector (to be filled in by a later batch).
func (s *Store) InsertChunks(ctx context.Context, sourceID int64, chunks []Chunk, embeddings [][]float32) ([]int64, error) {
	if len(chunks) != len(embeddings) {
		return nil, errs.New(errs.BadInput, "chunks and embeddings length mismatch")
	}

	src, err := s.GetSource(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if src == nil {
		return nil, errs.New(errs.BadInput, "unknown source")
	}
	if !src.Status.ingesting() {
		return nil, errs.New(errs.BadInput, fmt.Sprintf("source %d is not in an ingesting state (status=%s)", sourceID, src.Status))
	}

	for i, c := range chunks {
		if c.Ordinal != i {
			return nil, errs.New(errs.BadInput, "chunk ordinals must be a contiguous 0-based range")
		}
	}

	for _, vec := range embeddings {
		if vec == nil {
			continue
		}
		for _, f := range vec {
			if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
				return nil, errs.New(errs.BadVector, "embedding contains a non-finite component")
			}
		}
	}

	ids := make([]int64, len(chunks))
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO chunks (source_id, ordinal, page_number, section, content, content_hash, is_definition)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		vecStmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO vec_chunks (chunk_id, embedding) VALUES (?, ?)
		`)
		if err != nil {
			return err
		}
		defer vecStmt.Close()

		for i, c := range chunks {
			hash := sha256.Sum256([]byte(c.Content))
			contentHash := hex.EncodeToString(hash[:])
			isDef := 0
			if c.IsDefinition {
				isDef = 1
			}

			res, err := stmt.ExecContext(ctx, sourceID, c.Ordinal, c.PageNumber, nullableString(c.Section), c.Content, contentHash, isDef)
			if err != nil {
				return err
			}
			id, err := res.LastInsertId()
			if err != nil {
				return err
			}
			ids[i] = id

			if vec := embeddings[i]; vec != nil {
				if _, err := vecStmt.ExecContext(ctx, id, serializeFloat32(fitDim(vec, s.embeddingDim))); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, errs.Wrap(errs.StoreUnavailable, "inserting chunks", err)
	}
	return ids, nil
}

// InsertEmbedding stores (or replaces) a chunk's vector embedding.
// Non-finite components are rejected with BadVector; dimension mismatches
// are pad/truncated and logged by the caller (embedclient), but are
// re-validated here defensively on the read side via Nearest.
func (s *Store) InsertEmbedding(ctx context.Context, chunkID int64, embedding []float32) error {
	for _, f := range embedding {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return errs.New(errs.BadVector, "embedding contains a non-finite component")
		}
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO vec_chunks (chunk_id, embedding) VALUES (?, ?)",
		chunkID, serializeFloat32(fitDim(embedding, s.embeddingDim)))
	if err != nil {
		return errs.Wrap(errs.StoreUnavailable, "inserting embedding", err)
	}
	return nil
}

// GetChunksBySource returns all chunks for a source ordered by ordinal.
func (s *Store) GetChunksBySource(ctx context.Context, sourceID int64) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_id, ordinal, page_number, COALESCE(section, ''), content, content_hash, is_definition
		FROM chunks WHERE source_id = ? ORDER BY ordinal
	`, sourceID)
	if err != nil {
		return nil, errs.Wrap(errs.StoreUnavailable, "listing chunks", err)
	}
	defer rows.Close()

	var out []Chunk
	for rows.Next() {
		var c Chunk
		var isDef int
		if err := rows.Scan(&c.ID, &c.SourceID, &c.Ordinal, &c.PageNumber, &c.Section, &c.Content, &c.ContentHash, &isDef); err != nil {
			return nil, errs.Wrap(errs.StoreUnavailable, "scanning chunk", err)
		}
		c.IsDefinition = isDef != 0
		out = append(out, c)
	}
	return out, rows.Err()
}

// Nearest returns up to n chunks ranked by cosine similarity to vector,
// descending, ties broken by lower chunk id. Chunks lacking an embedding
// are excluded. Filter narrows by source kind, source id set, and ordinal
// range.
func (s *Store) Nearest(ctx context.Context, vector []float32, n int, filter Filter) ([]Result, error) {
	vector = fitDim(vector, s.embeddingDim)

	query := `
		SELECT v.chunk_id, v.distance, c.source_id, c.content, c.page_number,
			COALESCE(c.section, ''), c.ordinal, s.name
		FROM vec_chunks v
		JOIN chunks c ON c.id = v.chunk_id
		JOIN sources s ON s.id = c.source_id
		WHERE v.embedding MATCH ? AND k = ?`
	args := []interface{}{serializeFloat32(vector), n}

	where, whereArgs := filter.sqlClause()
	if where != "" {
		query += " AND " + where
		args = append(args, whereArgs...)
	}
	query += " ORDER BY v.distance, v.chunk_id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Wrap(errs.StoreUnavailable, "vector search", err)
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var r Result
		var distance float64
		if err := rows.Scan(&r.ChunkID, &distance, &r.SourceID, &r.Content, &r.PageNumber, &r.Section, &r.Ordinal, &r.SourceName); err != nil {
			return nil, errs.Wrap(errs.StoreUnavailable, "scanning vector result", err)
		}
		r.Score = 1.0 - distance
		out = append(out, r)
	}
	return out, rows.Err()
}

// FTSSearch returns candidate chunks matching query via FTS5, used only to
// seed the lexical candidate set for the bm25 package (bm25 computes the
// actual score; FTS5's own rank is not used as a score).
func (s *Store) FTSSearch(ctx context.Context, query string, limit int) ([]Result, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.rowid, c.source_id, c.content, c.page_number, COALESCE(c.section, ''), c.ordinal, s.name
		FROM chunks_fts f
		JOIN chunks c ON c.id = f.rowid
		JOIN sources s ON s.id = c.source_id
		WHERE chunks_fts MATCH ?
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, errs.Wrap(errs.StoreUnavailable, "fts search", err)
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ChunkID, &r.SourceID, &r.Content, &r.PageNumber, &r.Section, &r.Ordinal, &r.SourceName); err != nil {
			return nil, errs.Wrap(errs.StoreUnavailable, "scanning fts result", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// AllReadyChunks returns every chunk belonging to a ready source, used by
// the bm25 package to rebuild corpus statistics.
func (s *Store) AllReadyChunks(ctx context.Context) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.source_id, c.ordinal, c.page_number, COALESCE(c.section, ''), c.content, c.content_hash, c.is_definition
		FROM chunks c
		JOIN sources s ON s.id = c.source_id
		WHERE s.status = ?
	`, StatusReady)
	if err != nil {
		return nil, errs.Wrap(errs.StoreUnavailable, "listing ready chunks", err)
	}
	defer rows.Close()

	var out []Chunk
	for rows.Next() {
		var c Chunk
		var isDef int
		if err := rows.Scan(&c.ID, &c.SourceID, &c.Ordinal, &c.PageNumber, &c.Section, &c.Content, &c.ContentHash, &isDef); err != nil {
			return nil, errs.Wrap(errs.StoreUnavailable, "scanning ready chunk", err)
		}
		c.IsDefinition = isDef != 0
		out = append(out, c)
	}
	return out, rows.Err()
}

// DBStats holds counts of key database objects, for diagnostics.
type DBStats struct {
	Sources    int
	Chunks     int
	Embeddings int
}

// Stats returns counts of sources, chunks, and embeddings.
func (s *Store) Stats(ctx context.Context) (*DBStats, error) {
	stats := &DBStats{}
	queries := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM sources", &stats.Sources},
		{"SELECT COUNT(*) FROM chunks", &stats.Chunks},
		{"SELECT COUNT(*) FROM vec_chunks", &stats.Embeddings},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, errs.Wrap(errs.StoreUnavailable, fmt.Sprintf("counting via %q", q.query), err)
		}
	}
	return stats, nil
}

// LogQuery writes an entry to the query audit log.
func (s *Store) LogQuery(ctx context.Context, query, normalizedQuery, queryType, pipeline string, abstained bool, resultCount int) error {
	a := 0
	if abstained {
		a = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO query_log (query, normalized_query, query_type, abstained, result_count, pipeline)
		VALUES (?, ?, ?, ?, ?, ?)
	`, query, normalizedQuery, queryType, a, resultCount, pipeline)
	if err != nil {
		return errs.Wrap(errs.StoreUnavailable, "logging query", err)
	}
	return nil
}

// --- helpers ---

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (f Filter) sqlClause() (string, []interface{}) {
	var clauses []string
	var args []interface{}

	if f.SourceKind != "" {
		clauses = append(clauses, "s.kind = ?")
		args = append(args, f.SourceKind)
	}
	if len(f.SourceIDs) > 0 {
		ph := "?" + repeatPlaceholders(len(f.SourceIDs)-1)
		clauses = append(clauses, "c.source_id IN ("+ph+")")
		for _, id := range f.SourceIDs {
			args = append(args, id)
		}
	}
	if f.OrdinalMin != nil {
		clauses = append(clauses, "c.ordinal >= ?")
		args = append(args, *f.OrdinalMin)
	}
	if f.OrdinalMax != nil {
		clauses = append(clauses, "c.ordinal <= ?")
		args = append(args, *f.OrdinalMax)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	out := clauses[0]
	for _, c := range clauses[1:] {
		out += " AND " + c
	}
	return out, args
}

func repeatPlaceholders(n int) string {
	s := ""
	for i := 0; i < n; i++ {
		s += ", ?"
	}
	return s
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// fitDim pad/truncates v to exactly dim components. The embedclient package
// already enforces this on write; this is the read/write-side defensive
// copy per spec.md Open Question 1 ("implementations should validate on
// read as well as write").
func fitDim(v []float32, dim int) []float32 {
	if len(v) == dim {
		return v
	}
	out := make([]float32, dim)
	n := len(v)
	if n > dim {
		n = dim
	}
	copy(out, v[:n])
	return out
}

// serializeFloat32 converts a float32 slice to little-endian bytes for sqlite-vec.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func scanSource(row *sql.Row) (*Source, error) {
	var src Source
	var truncated int
	if err := row.Scan(&src.ID, &src.Name, &src.Kind, &src.ContentHash, &src.Status,
		&src.PageCount, &src.ChunkCount, &src.EmbeddingCount, &truncated,
		&src.CoveragePct, &src.ErrorText, &src.Metadata, &src.CreatedAt, &src.UpdatedAt); err != nil {
		return nil, err
	}
	src.IsTruncated = truncated != 0
	return &src, nil
}
