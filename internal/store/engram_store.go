// Package store is the gateway's long-term Engram store: a single
// SQLite database holding memory records plus, when sqlite-vec is
// available, an ANN index over their embeddings. It is the persistence
// tier consolidation promotes into and decay prunes from (spec §4.5).
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"mimogate/internal/gwtypes"
	"mimogate/internal/logging"
)

// EngramStore is the SQLite-backed long-term memory store.
type EngramStore struct {
	db        *sql.DB
	mu        sync.RWMutex
	dbPath    string
	vectorExt bool
}

// NewEngramStore opens (or creates) the engram database at path.
func NewEngramStore(path string) (*EngramStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewEngramStore")
	defer timer.Stop()

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create directory: %w", err)
		}
	}

	db, err := sql.Open(vecCompatDriverName, path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			logging.StoreDebug("pragma failed (%s): %v", pragma, err)
		}
	}

	s := &EngramStore{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: initialize schema: %w", err)
	}
	s.detectVecExtension()
	if s.vectorExt {
		logging.Store("sqlite-vec extension detected and enabled")
	} else {
		logging.Get(logging.CategoryStore).Warn("sqlite-vec extension not available; falling back to brute-force scan")
	}
	return s, nil
}

func (s *EngramStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS engrams (
		id                TEXT PRIMARY KEY,
		content           TEXT NOT NULL,
		category          TEXT NOT NULL,
		importance        REAL NOT NULL DEFAULT 0.5,
		created_at        DATETIME NOT NULL,
		last_accessed_at  DATETIME NOT NULL,
		access_count      INTEGER NOT NULL DEFAULT 0,
		decay_rate        REAL NOT NULL DEFAULT 1.0,
		protected         BOOLEAN NOT NULL DEFAULT 0,
		embedding         BLOB,
		embedding_int8    BLOB,
		embedding_binary  BLOB,
		metadata          TEXT,
		supersedes        TEXT,
		superseded_by     TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_engrams_category ON engrams(category);
	CREATE INDEX IF NOT EXISTS idx_engrams_last_accessed ON engrams(last_accessed_at);
	CREATE INDEX IF NOT EXISTS idx_engrams_superseded_by ON engrams(superseded_by);

	CREATE TABLE IF NOT EXISTS vec_index (
		id        TEXT PRIMARY KEY,
		embedding BLOB NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *EngramStore) detectVecExtension() {
	_, err := s.db.Exec("CREATE VIRTUAL TABLE IF NOT EXISTS vec_probe USING vec0(embedding float[1])")
	if err == nil {
		_, _ = s.db.Exec("DROP TABLE IF EXISTS vec_probe")
		s.vectorExt = true
	}
}

// Put inserts or replaces an engram, including all three embedding
// representations the spec's corpus-size tiering relies on (§4.5.3).
func (s *EngramStore) Put(ctx context.Context, e gwtypes.Engram) error {
	e.Clamp()
	metaJSON, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("store: marshal metadata: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO engrams
			(id, content, category, importance, created_at, last_accessed_at, access_count,
			 decay_rate, protected, embedding, embedding_int8, embedding_binary, metadata,
			 supersedes, superseded_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content=excluded.content, category=excluded.category, importance=excluded.importance,
			last_accessed_at=excluded.last_accessed_at, access_count=excluded.access_count,
			decay_rate=excluded.decay_rate, protected=excluded.protected,
			embedding=excluded.embedding, embedding_int8=excluded.embedding_int8,
			embedding_binary=excluded.embedding_binary, metadata=excluded.metadata,
			supersedes=excluded.supersedes, superseded_by=excluded.superseded_by
	`,
		e.ID, e.Content, string(e.Category), e.Importance, e.CreatedAt, e.LastAccessedAt, e.AccessCount,
		e.DecayRate, e.Protected, encodeFloat32Slice(e.Embedding), encodeInt8Slice(e.EmbeddingInt8), e.EmbeddingBinary,
		string(metaJSON), nullableString(e.Supersedes), nullableString(e.SupersededBy),
	)
	if err != nil {
		return fmt.Errorf("store: put engram: %w", err)
	}

	if s.vectorExt && len(e.Embedding) > 0 {
		_, _ = s.db.ExecContext(ctx,
			"INSERT INTO vec_index (id, embedding) VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET embedding=excluded.embedding",
			e.ID, encodeFloat32Slice(e.Embedding))
	}
	return nil
}

// Get fetches a single engram by id.
func (s *EngramStore) Get(ctx context.Context, id string) (*gwtypes.Engram, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx, "SELECT "+engramColumns+" FROM engrams WHERE id = ?", id)
	return scanEngram(row)
}

// Delete removes an engram and its vector index entry.
func (s *EngramStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, "DELETE FROM engrams WHERE id = ?", id); err != nil {
		return err
	}
	_, _ = s.db.ExecContext(ctx, "DELETE FROM vec_index WHERE id = ?", id)
	return nil
}

// Supersede links old to new per spec §4.5.7 and marks old's
// superseded_by so future retrieval can prefer the newer version.
func (s *EngramStore) Supersede(ctx context.Context, oldID, newID string, kind gwtypes.SupersedeKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "UPDATE engrams SET superseded_by = ? WHERE id = ?", newID, oldID); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, "UPDATE engrams SET supersedes = ? WHERE id = ?", oldID, newID); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// TouchAccess bumps access_count and last_accessed_at for an engram
// (spec §4.5.5's access tracking), batched by the caller.
func (s *EngramStore) TouchAccess(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		"UPDATE engrams SET access_count = access_count + 1, last_accessed_at = ? WHERE id = ?", at, id)
	return err
}

// ANNSearch returns the nearest neighbours to query by cosine distance,
// using the sqlite-vec virtual table when available and falling back to
// a brute-force scan of the engrams table otherwise.
func (s *EngramStore) ANNSearch(ctx context.Context, query []float32, limit int) ([]gwtypes.Scored, error) {
	if limit <= 0 {
		limit = 10
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.vectorExt {
		rows, err := s.db.QueryContext(ctx, `
			SELECT e.`+engramColumns+`, vector_distance_cos(v.embedding, ?) AS dist
			FROM vec_index v JOIN engrams e ON e.id = v.id
			ORDER BY dist ASC LIMIT ?`, encodeFloat32Slice(query), limit)
		if err == nil {
			defer rows.Close()
			var out []gwtypes.Scored
			for rows.Next() {
				e, dist, err := scanEngramWithDist(rows)
				if err != nil {
					continue
				}
				out = append(out, gwtypes.Scored{Engram: *e, Similarity: 1 - dist})
			}
			return out, nil
		}
		logging.Get(logging.CategoryStore).Warn("ANN query failed, falling back to brute force: %v", err)
	}
	return s.bruteForceSearch(ctx, query, limit)
}

// ExactScan scores every engram's full float embedding against query,
// for the spec's N<500 "exact scan" retrieval tier (§4.5.3).
func (s *EngramStore) ExactScan(ctx context.Context, query []float32, limit int) ([]gwtypes.Scored, error) {
	return s.bruteForceSearch(ctx, query, limit)
}

// HammingCandidates returns the ids and binary embeddings of every
// engram with a non-empty binary representation, for the 500<=N<1000
// two-stage strategy's first pass (§4.5.3).
func (s *EngramStore) HammingCandidates(ctx context.Context) ([]gwtypes.Engram, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, "SELECT "+engramColumns+" FROM engrams WHERE embedding_binary IS NOT NULL")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []gwtypes.Engram
	for rows.Next() {
		e, err := scanEngramRows(rows)
		if err != nil {
			continue
		}
		out = append(out, *e)
	}
	return out, nil
}

// RescoreExact re-ranks a candidate subset by full-float cosine
// similarity, for the second pass of the two-stage and ANN strategies.
func (s *EngramStore) RescoreExact(query []float32, candidates []gwtypes.Engram) []gwtypes.Scored {
	out := make([]gwtypes.Scored, 0, len(candidates))
	for _, e := range candidates {
		if len(e.Embedding) == 0 {
			continue
		}
		out = append(out, gwtypes.Scored{Engram: e, Similarity: cosineSimilarity(query, e.Embedding)})
	}
	sortScoredBySimilarity(out)
	return out
}

func (s *EngramStore) bruteForceSearch(ctx context.Context, query []float32, limit int) ([]gwtypes.Scored, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+engramColumns+" FROM engrams")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []gwtypes.Scored
	for rows.Next() {
		e, err := scanEngramRows(rows)
		if err != nil {
			continue
		}
		if len(e.Embedding) == 0 {
			continue
		}
		out = append(out, gwtypes.Scored{Engram: *e, Similarity: cosineSimilarity(query, e.Embedding)})
	}
	sortScoredBySimilarity(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListActive returns every unprotected, non-superseded engram for the
// decay and consolidation sweeps (spec §4.5.4, §4.5.6).
func (s *EngramStore) ListActive(ctx context.Context) ([]gwtypes.Engram, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, "SELECT "+engramColumns+" FROM engrams WHERE superseded_by IS NULL OR superseded_by = ''")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []gwtypes.Engram
	for rows.Next() {
		e, err := scanEngramRows(rows)
		if err != nil {
			continue
		}
		out = append(out, *e)
	}
	return out, nil
}

// Count returns the total number of engrams, used by the retrieval
// tiering strategy to pick a corpus-size bucket (spec §4.5.3).
func (s *EngramStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM engrams").Scan(&n)
	return n, err
}

// Close releases the underlying database handle.
func (s *EngramStore) Close() error {
	return s.db.Close()
}

const engramColumns = `id, content, category, importance, created_at, last_accessed_at, access_count,
	decay_rate, protected, embedding, embedding_int8, embedding_binary, metadata, supersedes, superseded_by`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEngram(row rowScanner) (*gwtypes.Engram, error) {
	return scanEngramRows(row)
}

func scanEngramRows(row rowScanner) (*gwtypes.Engram, error) {
	var e gwtypes.Engram
	var category string
	var embBlob, emb8Blob []byte
	var metaJSON sql.NullString
	var supersedes, supersededBy sql.NullString
	err := row.Scan(&e.ID, &e.Content, &category, &e.Importance, &e.CreatedAt, &e.LastAccessedAt, &e.AccessCount,
		&e.DecayRate, &e.Protected, &embBlob, &emb8Blob, &e.EmbeddingBinary, &metaJSON, &supersedes, &supersededBy)
	if err != nil {
		return nil, err
	}
	e.Category = gwtypes.Category(category)
	e.Embedding = decodeFloat32Slice(embBlob)
	e.EmbeddingInt8 = decodeInt8Slice(emb8Blob)
	e.Supersedes = supersedes.String
	e.SupersededBy = supersededBy.String
	if metaJSON.Valid && metaJSON.String != "" {
		_ = json.Unmarshal([]byte(metaJSON.String), &e.Metadata)
	}
	return &e, nil
}

func scanEngramWithDist(rows *sql.Rows) (*gwtypes.Engram, float64, error) {
	var e gwtypes.Engram
	var category string
	var embBlob, emb8Blob []byte
	var metaJSON sql.NullString
	var supersedes, supersededBy sql.NullString
	var dist float64
	err := rows.Scan(&e.ID, &e.Content, &category, &e.Importance, &e.CreatedAt, &e.LastAccessedAt, &e.AccessCount,
		&e.DecayRate, &e.Protected, &embBlob, &emb8Blob, &e.EmbeddingBinary, &metaJSON, &supersedes, &supersededBy, &dist)
	if err != nil {
		return nil, 0, err
	}
	e.Category = gwtypes.Category(category)
	e.Embedding = decodeFloat32Slice(embBlob)
	e.EmbeddingInt8 = decodeInt8Slice(emb8Blob)
	e.Supersedes = supersedes.String
	e.SupersededBy = supersededBy.String
	if metaJSON.Valid && metaJSON.String != "" {
		_ = json.Unmarshal([]byte(metaJSON.String), &e.Metadata)
	}
	return &e, dist, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func encodeFloat32Slice(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeFloat32Slice(buf []byte) []float32 {
	if len(buf) == 0 {
		return nil
	}
	n := len(buf) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return out
}

func encodeInt8Slice(vec []int8) []byte {
	buf := make([]byte, len(vec))
	for i, v := range vec {
		buf[i] = byte(v)
	}
	return buf
}

func decodeInt8Slice(buf []byte) []int8 {
	if len(buf) == 0 {
		return nil
	}
	out := make([]int8, len(buf))
	for i, b := range buf {
		out[i] = int8(b)
	}
	return out
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

func sortScoredBySimilarity(s []gwtypes.Scored) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j].Similarity > s[j-1].Similarity; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}
