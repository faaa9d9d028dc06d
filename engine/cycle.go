package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lorelabs/loreengine/errors"
	"github.com/lorelabs/loreengine/knowledge"
)

// idleShutdown is how long Run waits for a token before exiting.
const idleShutdown = 10 * time.Second

// Cycle makes one online pass over the inbox: each document is chunked,
// analyzed, embedded, and indexed, then removed. Per-chunk failures are
// logged and skipped.
func (e *Engine) Cycle(ctx context.Context) error {
	if err := os.MkdirAll(e.conf.InboxDir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create inbox")
	}

	entries, err := os.ReadDir(e.conf.InboxDir)
	if err != nil {
		return errors.Wrapf(err, "failed to read inbox")
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.ingestFile(ctx, entry.Name()); err != nil {
			e.logger.Warn("failed to ingest inbox file", "file", entry.Name(), "err", err)
		}
	}

	return nil
}

func (e *Engine) ingestFile(ctx context.Context, name string) error {
	path := filepath.Join(e.conf.InboxDir, name)
	content, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", name)
	}

	chunks, err := e.chunker.Chunk(string(content), e.conf.OfflineChunkMaxTokens)
	if err != nil {
		return errors.Wrapf(err, "failed to chunk %s", name)
	}

	base := strings.TrimSuffix(name, filepath.Ext(name))
	indexed := 0

	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}

		k, err := e.analyze(ctx, name, chunk)
		if err != nil {
			e.logger.Warn("skipping chunk", "file", name, "chunk", i, "err", err)
			continue
		}

		embeddings, err := e.embedder.Embed(ctx, k.Content)
		if err != nil {
			e.logger.Warn("skipping chunk", "file", name, "chunk", i, "err", err)
			continue
		}

		referenceFile := k.ReferenceFile
		if referenceFile == "" {
			referenceFile = name
		}

		doc := knowledge.DocumentMeta{
			ID:            fmt.Sprintf("%s-c%d", base, i),
			AgentID:       e.conf.AgentID,
			Title:         name,
			Context:       k.Context,
			Topics:        k.Topics,
			Importance:    k.Importance,
			ReferenceFile: referenceFile,
		}

		if _, err := e.store.UpsertChunks(ctx, doc, []string{k.Content}, embeddings); err != nil {
			e.logger.Warn("skipping chunk", "file", name, "chunk", i, "err", err)
			continue
		}
		indexed++
	}

	if err := os.Remove(path); err != nil {
		return errors.Wrapf(err, "failed to remove ingested file %s", name)
	}

	e.logger.Info("inbox file ingested", "file", name, "chunks", len(chunks), "indexed", indexed)
	return nil
}

// AddTokens credits the run loop with n cycles of work. Extra tokens beyond
// the bucket capacity are dropped.
func (e *Engine) AddTokens(n int) {
	for i := 0; i < n; i++ {
		select {
		case e.tokens <- struct{}{}:
		default:
			return
		}
	}
}

// Run consumes tokens and executes one Cycle per token, exiting after the
// idle period elapses with no tokens, or when ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	timer := time.NewTimer(idleShutdown)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.tokens:
			if err := e.Cycle(ctx); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				e.logger.Error("cycle failed", "err", err)
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(idleShutdown)
		case <-timer.C:
			e.logger.Info("run loop idle, shutting down")
			return nil
		}
	}
}
