package knowledge

import (
	"context"
)

// Store owns all access to persisted knowledge chunks.
type Store interface {
	// UpsertChunks writes one document's chunks and embeddings inside a
	// single transaction, keyed by "{doc.ID}-{zero-padded index}". Partial
	// failure rolls back the whole batch. Returns the document id.
	UpsertChunks(ctx context.Context, doc DocumentMeta, chunks []string, embeddings [][]float32) (string, error)

	// Search runs the hybrid vector+keyword query. Only rows whose
	// embedding byte length matches the query's, visible to agentID, and
	// containing every lowercase term of queryText are ranked; results come
	// back in ascending distance order, at most limit of them.
	Search(ctx context.Context, queryEmbedding []float32, queryText, agentID string, limit int) ([]SearchResult, error)

	// Clear removes every knowledge chunk.
	Clear(ctx context.Context) error

	Close() error
}
