package knowledge

import (
	"context"
	"log/slog"

	"github.com/lorelabs/loreengine/ai"
	"github.com/lorelabs/loreengine/config"
	"github.com/lorelabs/loreengine/errors"
)

type (
	// Service is the online (single-pass) ingestion and query surface.
	Service interface {
		// Ingest chunks the document, embeds every chunk in one batched
		// call, and upserts the result transactionally. A document with
		// zero extractable chunks is a no-op success.
		Ingest(ctx context.Context, doc DocumentMeta, text string) (string, error)

		// Query embeds the query text and runs the hybrid search. Failures
		// degrade to an empty result list with a logged cause; callers
		// never see an error from a bad search.
		Query(ctx context.Context, text, agentID string, limit int) []SearchResult

		Clear(ctx context.Context) error
		Close() error
	}

	service struct {
		store    Store
		embedder ai.Embedder
		chunker  *Chunker
		conf     *config.KnowledgeConfig
		logger   *slog.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(store Store, embedder ai.Embedder, chunker *Chunker, conf *config.KnowledgeConfig, logger *slog.Logger) Service {
	return &service{
		store:    store,
		embedder: embedder,
		chunker:  chunker,
		conf:     conf,
		logger:   logger,
	}
}

func (s *service) Ingest(ctx context.Context, doc DocumentMeta, text string) (string, error) {
	chunks, err := s.chunker.Chunk(text, s.conf.ChunkMaxTokens)
	if err != nil {
		return "", errors.Wrapf(err, "failed to chunk document %s", doc.ID)
	}
	if len(chunks) == 0 {
		s.logger.Debug("document has no extractable chunks", "id", doc.ID)
		return doc.ID, nil
	}

	embeddings, err := s.embedder.Embed(ctx, chunks...)
	if err != nil {
		return "", errors.Wrapf(err, "failed to embed document %s", doc.ID)
	}
	if len(embeddings) != len(chunks) {
		return "", errors.Errorf("embedding count mismatch: got %d, expected %d", len(embeddings), len(chunks))
	}

	id, err := s.store.UpsertChunks(ctx, doc, chunks, embeddings)
	if err != nil {
		return "", errors.Wrapf(err, "failed to store document %s", doc.ID)
	}

	s.logger.Info("document ingested", "id", id, "chunks", len(chunks))
	return id, nil
}

func (s *service) Query(ctx context.Context, text, agentID string, limit int) []SearchResult {
	embeddings, err := s.embedder.Embed(ctx, text)
	if err != nil || len(embeddings) == 0 {
		s.logger.Error("query embedding failed", "err", err)
		return nil
	}

	results, err := s.store.Search(ctx, embeddings[0], text, agentID, limit)
	if err != nil {
		s.logger.Error("hybrid search failed", "err", err)
		return nil
	}

	return results
}

func (s *service) Clear(ctx context.Context) error {
	return s.store.Clear(ctx)
}

func (s *service) Close() error {
	return s.store.Close()
}
