package knowledge

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lorelabs/loreengine/entity"
	"github.com/lorelabs/loreengine/errors"
	"github.com/lorelabs/loreengine/internal/stringslices"
	"gonum.org/v1/gonum/floats"
)

// InMemoryStore implements Store without a database file. It applies the
// same visibility, keyword and distance rules as SqliteStore and exists for
// tests and ephemeral runs.
type InMemoryStore struct {
	mu          sync.RWMutex
	chunks      map[string]Chunk
	dim         int
	maxDistance float64
}

var _ Store = (*InMemoryStore)(nil)

func NewInMemoryStore(dim int, maxDistance float64) *InMemoryStore {
	return &InMemoryStore{
		chunks:      make(map[string]Chunk),
		dim:         dim,
		maxDistance: maxDistance,
	}
}

func (s *InMemoryStore) UpsertChunks(ctx context.Context, doc DocumentMeta, chunks []string, embeddings [][]float32) (string, error) {
	if len(chunks) != len(embeddings) {
		return "", errors.Errorf("chunk/embedding count mismatch: %d vs %d", len(chunks), len(embeddings))
	}
	if doc.ID == "" {
		return "", errors.Wrapf(errors.ErrInvalidParams, "document id is required")
	}

	now := time.Now().UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, chunk := range chunks {
		if len(embeddings[i]) != s.dim {
			return "", errors.Errorf("embedding for chunk %d has %d dimensions, store requires %d", i, len(embeddings[i]), s.dim)
		}

		embedding := make([]float32, len(embeddings[i]))
		copy(embedding, embeddings[i])

		id := ChunkID(doc.ID, i)
		s.chunks[id] = Chunk{
			ID:      id,
			AgentID: doc.AgentID,
			Content: entity.ChunkContent{
				Title:         doc.Title,
				Heading:       doc.Heading,
				Context:       doc.Context,
				Chunk:         chunk,
				Topics:        doc.Topics,
				Importance:    doc.Importance,
				ReferenceFile: doc.ReferenceFile,
				ChunkIndex:    i,
				TotalChunks:   len(chunks),
			},
			Embedding:   embedding,
			CreatedAt:   now,
			IsMain:      doc.IsMain && i == 0,
			OriginalID:  doc.ID,
			ChunkIndex:  i,
			TotalChunks: len(chunks),
			IsShared:    doc.IsShared,
		}
	}

	return doc.ID, nil
}

func (s *InMemoryStore) Search(ctx context.Context, queryEmbedding []float32, queryText, agentID string, limit int) ([]SearchResult, error) {
	if len(queryEmbedding) == 0 {
		return nil, errors.Wrapf(errors.ErrInvalidParams, "query embedding is empty")
	}
	if limit <= 0 {
		limit = 10
	}

	terms := stringslices.Terms(queryText)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []SearchResult
	for _, chunk := range s.chunks {
		if len(chunk.Embedding) != len(queryEmbedding) {
			continue
		}
		if chunk.AgentID != agentID && !chunk.IsShared {
			continue
		}

		haystack := stringslices.ToLowerASCII(strings.Join([]string{
			chunk.Content.Title,
			chunk.Content.Heading,
			chunk.Content.Context,
			chunk.Content.Chunk,
		}, " "))
		if !stringslices.ContainsAll(haystack, terms) {
			continue
		}

		dist := l2Distance(queryEmbedding, chunk.Embedding)
		if dist >= s.maxDistance {
			continue
		}

		results = append(results, SearchResult{Chunk: chunk, Score: dist})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score < results[j].Score
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *InMemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = make(map[string]Chunk)
	return nil
}

func (s *InMemoryStore) Close() error {
	return nil
}

// Count reports the number of stored chunks whose id starts with prefix.
func (s *InMemoryStore) Count(prefix string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for id := range s.chunks {
		if strings.HasPrefix(id, prefix) {
			n++
		}
	}
	return n
}

func l2Distance(a, b []float32) float64 {
	x := make([]float64, len(a))
	y := make([]float64, len(b))
	for i := range a {
		x[i] = float64(a[i])
		y[i] = float64(b[i])
	}
	return floats.Distance(x, y, 2)
}
