package engine

import (
	"context"
	"strconv"

	"log/slog"

	"github.com/lorelabs/loreengine/ai"
	"github.com/lorelabs/loreengine/config"
	"github.com/lorelabs/loreengine/errors"
	"github.com/lorelabs/loreengine/knowledge"
	"github.com/lorelabs/loreengine/store"
)

// avgChunkSecondsKey is the key-value record holding the rolling average
// processing time per chunk, in seconds.
const avgChunkSecondsKey = "engine.avg_chunk_seconds"

// Engine drives document ingestion: the crash-resumable offline batch
// pipeline (Prepare/Process) and the single-pass online cycle.
type Engine struct {
	conf     *config.EngineConfig
	chunker  *knowledge.Chunker
	chat     ai.ChatClient
	embedder ai.Embedder
	store    knowledge.Store
	kv       store.KV
	logger   *slog.Logger

	tokens chan struct{}
}

func NewEngine(
	conf *config.EngineConfig,
	chunker *knowledge.Chunker,
	chat ai.ChatClient,
	embedder ai.Embedder,
	knowledgeStore knowledge.Store,
	kv store.KV,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		conf:     conf,
		chunker:  chunker,
		chat:     chat,
		embedder: embedder,
		store:    knowledgeStore,
		kv:       kv,
		logger:   logger,
		tokens:   make(chan struct{}, 64),
	}
}

// avgChunkSeconds reads the persisted rolling average, falling back to the
// configured default before any run has completed.
func (e *Engine) avgChunkSeconds(ctx context.Context) float64 {
	value, err := e.kv.Get(ctx, avgChunkSecondsKey)
	if err != nil {
		if !errors.Is(err, errors.ErrNotFound) {
			e.logger.Warn("failed to read rolling average", "err", err)
		}
		return e.conf.DefaultChunkSeconds
	}

	avg, err := strconv.ParseFloat(value, 64)
	if err != nil || avg <= 0 {
		return e.conf.DefaultChunkSeconds
	}
	return avg
}

// updateAvgChunkSeconds folds one measured per-chunk duration into the
// rolling average.
func (e *Engine) updateAvgChunkSeconds(ctx context.Context, sample float64) {
	if sample <= 0 {
		return
	}

	avg := (e.avgChunkSeconds(ctx) + sample) / 2
	if err := e.kv.Set(ctx, avgChunkSecondsKey, strconv.FormatFloat(avg, 'f', -1, 64)); err != nil {
		e.logger.Warn("failed to persist rolling average", "err", err)
	}
}
