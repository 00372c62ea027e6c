package store

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// vecCompatDriver is the sql driver name EngramStore actually opens.
// It wraps mattn/go-sqlite3 with a vec0 virtual table module and a
// vector_distance_cos scalar function registered on every new
// connection, so ANN queries degrade gracefully to the in-memory
// fallback below when the real sqlite-vec cgo extension (init_vec.go,
// built with -tags sqlite_vec) isn't linked in.
const vecCompatDriverName = "sqlite3_vec_compat"

func init() {
	sql.Register(vecCompatDriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			if err := conn.RegisterFunc("vector_distance_cos", vecDistanceCos, true); err != nil {
				return fmt.Errorf("register vector_distance_cos: %w", err)
			}
			if err := conn.CreateModule("vec0", &vecModule{}); err != nil {
				return fmt.Errorf("register vec0 module: %w", err)
			}
			return nil
		},
	})
}

// vecModule is a minimal in-memory stand-in for the real sqlite-vec
// vec0 virtual table: enough to satisfy CREATE VIRTUAL TABLE ... USING
// vec0(...) and row storage/scan so ANNSearch's brute-force path has
// somewhere to read from when the cgo extension isn't linked in. It
// keeps no index structure of its own - scoring is done in Go by
// RescoreExact, not by SQLite - and rows don't survive past process
// restart, matching EngramStore's own backfill-on-start behaviour.
type vecModule struct{}

var (
	vecTablesMu sync.RWMutex
	vecTables   = make(map[string]*vecTable)
)

type vecTable struct {
	sqlite3.VTab
	name      string
	mu        sync.RWMutex
	rows      []vecRow
	nextRowID int64
}

type vecRow struct {
	rowid     int64
	embedding []byte
	content   string
	metadata  string
}

func (m *vecModule) Create(c *sqlite3.SQLiteConn, args []string) (sqlite3.VTab, error) {
	return m.connect(c, args)
}

func (m *vecModule) Connect(c *sqlite3.SQLiteConn, args []string) (sqlite3.VTab, error) {
	return m.connect(c, args)
}

func (m *vecModule) connect(c *sqlite3.SQLiteConn, args []string) (sqlite3.VTab, error) {
	if len(args) < 3 {
		return nil, fmt.Errorf("vec0: insufficient args")
	}
	if err := c.DeclareVTab("CREATE TABLE x(embedding BLOB, content TEXT, metadata TEXT)"); err != nil {
		return nil, err
	}
	name := args[2]

	vecTablesMu.Lock()
	defer vecTablesMu.Unlock()
	tbl, ok := vecTables[name]
	if !ok {
		tbl = &vecTable{name: name, nextRowID: 1}
		vecTables[name] = tbl
	}
	return tbl, nil
}

func (t *vecTable) BestIndex(_ []sqlite3.InfoConstraint, _ []sqlite3.InfoOrderBy) (*sqlite3.IndexResult, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return &sqlite3.IndexResult{EstimatedRows: int64(len(t.rows))}, nil
}

func (t *vecTable) Open() (sqlite3.VTabCursor, error) {
	return &vecCursor{tbl: t, idx: -1}, nil
}

func (t *vecTable) Disconnect() error { return nil }
func (t *vecTable) Destroy() error    { return nil }

func (t *vecTable) Insert(rowidHint interface{}, vals []interface{}) (int64, error) {
	if len(vals) < 3 {
		return 0, fmt.Errorf("vec0: insert expects 3 columns")
	}
	emb, err := coerceBlob(vals[0])
	if err != nil {
		return 0, err
	}
	content, _ := vals[1].(string)
	meta, _ := vals[2].(string)

	t.mu.Lock()
	defer t.mu.Unlock()
	rid := t.nextRowID
	if id, ok := rowidHint.(int64); ok && id > 0 {
		rid = id
	}
	t.rows = append(t.rows, vecRow{rowid: rid, embedding: emb, content: content, metadata: meta})
	if rid >= t.nextRowID {
		t.nextRowID = rid + 1
	}
	return rid, nil
}

func (t *vecTable) Update(rowidHint interface{}, vals []interface{}) error {
	if len(vals) < 3 {
		return fmt.Errorf("vec0: update expects 3 columns")
	}
	oldRowid, _ := rowidHint.(int64)
	emb, err := coerceBlob(vals[0])
	if err != nil {
		return err
	}
	content, _ := vals[1].(string)
	meta, _ := vals[2].(string)

	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.rows {
		if t.rows[i].rowid == oldRowid {
			t.rows[i] = vecRow{rowid: oldRowid, embedding: emb, content: content, metadata: meta}
			return nil
		}
	}
	t.rows = append(t.rows, vecRow{rowid: oldRowid, embedding: emb, content: content, metadata: meta})
	return nil
}

func (t *vecTable) Delete(rowidHint interface{}) error {
	oldRowid, _ := rowidHint.(int64)
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.rows {
		if t.rows[i].rowid == oldRowid {
			t.rows = append(t.rows[:i], t.rows[i+1:]...)
			break
		}
	}
	return nil
}

type vecCursor struct {
	tbl *vecTable
	idx int
}

func (c *vecCursor) Filter(_ int, _ string, _ []interface{}) error {
	c.idx = -1
	return c.Next()
}

func (c *vecCursor) Next() error {
	c.idx++
	return nil
}

func (c *vecCursor) EOF() bool {
	c.tbl.mu.RLock()
	defer c.tbl.mu.RUnlock()
	return c.idx >= len(c.tbl.rows)
}

func (c *vecCursor) Column(ctx *sqlite3.SQLiteContext, col int) error {
	c.tbl.mu.RLock()
	defer c.tbl.mu.RUnlock()
	if c.idx < 0 || c.idx >= len(c.tbl.rows) {
		return fmt.Errorf("vec0: cursor out of range")
	}
	row := c.tbl.rows[c.idx]
	switch col {
	case 0:
		ctx.ResultBlob(row.embedding)
	case 1:
		ctx.ResultText(row.content)
	case 2:
		ctx.ResultText(row.metadata)
	default:
		return fmt.Errorf("vec0: invalid column %d", col)
	}
	return nil
}

func (c *vecCursor) Rowid() (int64, error) {
	c.tbl.mu.RLock()
	defer c.tbl.mu.RUnlock()
	if c.idx < 0 || c.idx >= len(c.tbl.rows) {
		return 0, fmt.Errorf("vec0: cursor out of range")
	}
	return c.tbl.rows[c.idx].rowid, nil
}

func (c *vecCursor) Close() error { return nil }

// vecDistanceCos implements cosine distance over two little-endian
// float32 blobs, registered as SQLite's vector_distance_cos function.
func vecDistanceCos(a, b []byte) (float64, error) {
	av, err := decodeFloat32(a)
	if err != nil {
		return 0, err
	}
	bv, err := decodeFloat32(b)
	if err != nil {
		return 0, err
	}
	if len(av) == 0 || len(bv) == 0 {
		return 1, nil
	}
	if len(av) != len(bv) {
		return 0, fmt.Errorf("vector_distance_cos: dimension mismatch %d vs %d", len(av), len(bv))
	}
	var dot, na, nb float64
	for i := range av {
		af := float64(av[i])
		bf := float64(bv[i])
		dot += af * bf
		na += af * af
		nb += bf * bf
	}
	if na == 0 || nb == 0 {
		return 1, nil
	}
	cos := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return 1 - cos, nil
}

func decodeFloat32(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vector_distance_cos: blob length %d not multiple of 4", len(b))
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out, nil
}

func coerceBlob(v interface{}) ([]byte, error) {
	switch x := v.(type) {
	case []byte:
		cp := make([]byte, len(x))
		copy(cp, x)
		return cp, nil
	case string:
		return []byte(x), nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("vec0: unsupported embedding type %T", v)
	}
}
