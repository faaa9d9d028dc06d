package knowledge_test

import (
	"context"
	"os"
	"testing"

	"github.com/lorelabs/loreengine/config"
	"github.com/lorelabs/loreengine/errors"
	"github.com/lorelabs/loreengine/internal/mylog"
	"github.com/lorelabs/loreengine/knowledge"
	"github.com/stretchr/testify/require"
)

// stubEmbedder returns a fixed vector per input, or a configured error.
type stubEmbedder struct {
	vector []float32
	err    error
	calls  int
}

func (e *stubEmbedder) Embed(_ context.Context, texts ...string) ([][]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = append([]float32{}, e.vector...)
	}
	return out, nil
}

func newTestService(t *testing.T, embedder *stubEmbedder) (knowledge.Service, *knowledge.InMemoryStore) {
	t.Helper()

	chunker, err := knowledge.NewChunker()
	require.NoError(t, err)

	store := knowledge.NewInMemoryStore(3, 3.0)
	conf := &config.KnowledgeConfig{
		EmbeddingDim:      3,
		SearchMaxDistance: 3.0,
		ChunkMaxTokens:    50,
	}

	return knowledge.NewService(store, embedder, chunker, conf, mylog.NewTestLogger(os.Stderr)), store
}

func TestServiceIngest(t *testing.T) {
	ctx := context.Background()

	t.Run("chunks are embedded in one batch and stored", func(t *testing.T) {
		embedder := &stubEmbedder{vector: []float32{1, 0, 0}}
		svc, store := newTestService(t, embedder)

		id, err := svc.Ingest(ctx, knowledge.DocumentMeta{ID: "doc", AgentID: "alice", Title: "alpha"},
			"alpha bravo charlie delta echo foxtrot")
		require.NoError(t, err)
		require.Equal(t, "doc", id)
		require.Equal(t, 1, embedder.calls)
		require.Positive(t, store.Count("doc-"))
	})

	t.Run("empty document is a no-op success", func(t *testing.T) {
		embedder := &stubEmbedder{vector: []float32{1, 0, 0}}
		svc, store := newTestService(t, embedder)

		id, err := svc.Ingest(ctx, knowledge.DocumentMeta{ID: "empty", AgentID: "alice"}, "")
		require.NoError(t, err)
		require.Equal(t, "empty", id)
		require.Zero(t, embedder.calls)
		require.Zero(t, store.Count("empty-"))
	})

	t.Run("embedding failure surfaces as an error", func(t *testing.T) {
		embedder := &stubEmbedder{err: errors.New("embedding service down")}
		svc, _ := newTestService(t, embedder)

		_, err := svc.Ingest(ctx, knowledge.DocumentMeta{ID: "doc", AgentID: "alice"}, "some text")
		require.Error(t, err)
	})
}

func TestServiceQuery(t *testing.T) {
	ctx := context.Background()

	t.Run("returns matches for an indexed document", func(t *testing.T) {
		embedder := &stubEmbedder{vector: []float32{1, 0, 0}}
		svc, _ := newTestService(t, embedder)

		_, err := svc.Ingest(ctx, knowledge.DocumentMeta{ID: "doc", AgentID: "alice", Title: "alpha"}, "alpha content")
		require.NoError(t, err)

		results := svc.Query(ctx, "alpha", "alice", 10)
		require.NotEmpty(t, results)
	})

	t.Run("degrades to empty results when embedding fails", func(t *testing.T) {
		embedder := &stubEmbedder{err: errors.New("embedding service down")}
		svc, _ := newTestService(t, embedder)

		results := svc.Query(ctx, "alpha", "alice", 10)
		require.Empty(t, results)
	})
}
