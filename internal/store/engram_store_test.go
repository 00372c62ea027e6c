package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mimogate/internal/gwtypes"
)

func newTestEngramStore(t *testing.T) *EngramStore {
	t.Helper()
	es, err := NewEngramStore(filepath.Join(t.TempDir(), "engrams.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = es.Close() })
	return es
}

func TestPut_Get_RoundTrip(t *testing.T) {
	es := newTestEngramStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	e := gwtypes.Engram{
		ID:              "e1",
		Content:         "the sky is blue",
		Category:        gwtypes.CategoryFact,
		Importance:      0.8,
		CreatedAt:       now,
		LastAccessedAt:  now,
		AccessCount:     2,
		DecayRate:       0.5,
		Protected:       true,
		Embedding:       []float32{1, 2, 3},
		EmbeddingInt8:   []int8{1, -2, 3},
		EmbeddingBinary: []byte{0xAB, 0xCD},
		Metadata:        map[string]any{"session_tag": "s1"},
	}
	require.NoError(t, es.Put(ctx, e))

	got, err := es.Get(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "the sky is blue", got.Content)
	assert.Equal(t, gwtypes.CategoryFact, got.Category)
	assert.Equal(t, 0.8, got.Importance)
	assert.True(t, got.Protected)
	assert.Equal(t, []float32{1, 2, 3}, got.Embedding)
	assert.Equal(t, []int8{1, -2, 3}, got.EmbeddingInt8)
	assert.Equal(t, []byte{0xAB, 0xCD}, got.EmbeddingBinary)
	assert.Equal(t, "s1", got.SessionTag())
}

func TestPut_ClampsImportanceAndDecayRate(t *testing.T) {
	es := newTestEngramStore(t)
	ctx := context.Background()

	require.NoError(t, es.Put(ctx, gwtypes.Engram{ID: "e1", Content: "x", Importance: 5, DecayRate: -1}))
	got, err := es.Get(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.Importance)
	assert.Equal(t, 1.0, got.DecayRate)
}

func TestPut_Upsert(t *testing.T) {
	es := newTestEngramStore(t)
	ctx := context.Background()

	require.NoError(t, es.Put(ctx, gwtypes.Engram{ID: "e1", Content: "v1"}))
	require.NoError(t, es.Put(ctx, gwtypes.Engram{ID: "e1", Content: "v2"}))

	got, err := es.Get(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Content)

	n, err := es.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestGet_MissingReturnsError(t *testing.T) {
	es := newTestEngramStore(t)
	_, err := es.Get(context.Background(), "no-such-id")
	assert.Error(t, err)
}

func TestDelete(t *testing.T) {
	es := newTestEngramStore(t)
	ctx := context.Background()
	require.NoError(t, es.Put(ctx, gwtypes.Engram{ID: "e1", Content: "x"}))
	require.NoError(t, es.Delete(ctx, "e1"))

	_, err := es.Get(ctx, "e1")
	assert.Error(t, err)
}

func TestSupersede_LinksBothDirections(t *testing.T) {
	es := newTestEngramStore(t)
	ctx := context.Background()
	require.NoError(t, es.Put(ctx, gwtypes.Engram{ID: "old", Content: "stale"}))
	require.NoError(t, es.Put(ctx, gwtypes.Engram{ID: "new", Content: "fresh"}))

	require.NoError(t, es.Supersede(ctx, "old", "new", gwtypes.SupersedeUpdate))

	oldE, err := es.Get(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, "new", oldE.SupersededBy)

	newE, err := es.Get(ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, "old", newE.Supersedes)
}

func TestTouchAccess(t *testing.T) {
	es := newTestEngramStore(t)
	ctx := context.Background()
	require.NoError(t, es.Put(ctx, gwtypes.Engram{ID: "e1", Content: "x", AccessCount: 1}))

	at := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, es.TouchAccess(ctx, "e1", at))

	got, err := es.Get(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.AccessCount)
	assert.WithinDuration(t, at, got.LastAccessedAt, time.Second)
}

func TestANNSearch_BruteForceFallbackOrdersBySimilarity(t *testing.T) {
	es := newTestEngramStore(t)
	ctx := context.Background()
	require.NoError(t, es.Put(ctx, gwtypes.Engram{ID: "close", Content: "a", Embedding: []float32{1, 0, 0}}))
	require.NoError(t, es.Put(ctx, gwtypes.Engram{ID: "far", Content: "b", Embedding: []float32{0, 1, 0}}))
	require.NoError(t, es.Put(ctx, gwtypes.Engram{ID: "no-embedding", Content: "c"}))

	out, err := es.ANNSearch(ctx, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, out, 2, "the engram with no embedding must be excluded")
	assert.Equal(t, "close", out[0].Engram.ID)
	assert.InDelta(t, 1.0, out[0].Similarity, 1e-9)
	assert.Equal(t, "far", out[1].Engram.ID)
}

func TestANNSearch_RespectsLimit(t *testing.T) {
	es := newTestEngramStore(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		id := string(rune('a' + i))
		require.NoError(t, es.Put(ctx, gwtypes.Engram{ID: id, Content: id, Embedding: []float32{1, 0, 0}}))
	}
	out, err := es.ANNSearch(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestANNSearch_DefaultsLimitWhenNonPositive(t *testing.T) {
	es := newTestEngramStore(t)
	ctx := context.Background()
	require.NoError(t, es.Put(ctx, gwtypes.Engram{ID: "e1", Content: "x", Embedding: []float32{1, 0, 0}}))
	out, err := es.ANNSearch(ctx, []float32{1, 0, 0}, 0)
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestExactScan_MatchesBruteForce(t *testing.T) {
	es := newTestEngramStore(t)
	ctx := context.Background()
	require.NoError(t, es.Put(ctx, gwtypes.Engram{ID: "e1", Content: "x", Embedding: []float32{1, 0, 0}}))

	out, err := es.ExactScan(ctx, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "e1", out[0].Engram.ID)
}

func TestHammingCandidates_OnlyReturnsEngramsWithBinaryEmbedding(t *testing.T) {
	es := newTestEngramStore(t)
	ctx := context.Background()
	require.NoError(t, es.Put(ctx, gwtypes.Engram{ID: "with-binary", Content: "a", EmbeddingBinary: []byte{0x1}}))
	require.NoError(t, es.Put(ctx, gwtypes.Engram{ID: "without", Content: "b"}))

	out, err := es.HammingCandidates(ctx)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "with-binary", out[0].ID)
}

func TestRescoreExact_SortsBySimilarityDescendingAndSkipsEmpty(t *testing.T) {
	es := newTestEngramStore(t)
	candidates := []gwtypes.Engram{
		{ID: "far", Embedding: []float32{0, 1, 0}},
		{ID: "no-embedding"},
		{ID: "close", Embedding: []float32{1, 0, 0}},
	}
	out := es.RescoreExact([]float32{1, 0, 0}, candidates)
	require.Len(t, out, 2)
	assert.Equal(t, "close", out[0].Engram.ID)
	assert.Equal(t, "far", out[1].Engram.ID)
	assert.Greater(t, out[0].Similarity, out[1].Similarity)
}

func TestListActive_ExcludesSuperseded(t *testing.T) {
	es := newTestEngramStore(t)
	ctx := context.Background()
	require.NoError(t, es.Put(ctx, gwtypes.Engram{ID: "old", Content: "stale"}))
	require.NoError(t, es.Put(ctx, gwtypes.Engram{ID: "new", Content: "fresh"}))
	require.NoError(t, es.Supersede(ctx, "old", "new", gwtypes.SupersedeUpdate))

	out, err := es.ListActive(ctx)
	require.NoError(t, err)
	ids := make([]string, 0, len(out))
	for _, e := range out {
		ids = append(ids, e.ID)
	}
	assert.Contains(t, ids, "new")
	assert.NotContains(t, ids, "old")
}

func TestCount(t *testing.T) {
	es := newTestEngramStore(t)
	ctx := context.Background()
	n, err := es.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.NoError(t, es.Put(ctx, gwtypes.Engram{ID: "e1", Content: "x"}))
	require.NoError(t, es.Put(ctx, gwtypes.Engram{ID: "e2", Content: "y"}))

	n, err = es.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestEncodeDecodeFloat32Slice(t *testing.T) {
	in := []float32{1.5, -2.25, 0, 3.75}
	assert.Equal(t, in, decodeFloat32Slice(encodeFloat32Slice(in)))
	assert.Nil(t, decodeFloat32Slice(nil))
}

func TestEncodeDecodeInt8Slice(t *testing.T) {
	in := []int8{1, -1, 127, -128}
	assert.Equal(t, in, decodeInt8Slice(encodeInt8Slice(in)))
	assert.Nil(t, decodeInt8Slice(nil))
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 0}, []float32{1, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, cosineSimilarity(nil, []float32{1}))
	assert.Equal(t, 0.0, cosineSimilarity([]float32{1, 2}, []float32{1}))
	assert.Equal(t, 0.0, cosineSimilarity([]float32{0, 0}, []float32{1, 1}))
}

func TestNullableString(t *testing.T) {
	assert.Nil(t, nullableString(""))
	assert.Equal(t, "x", nullableString("x"))
}
