package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lorelabs/loreengine/errors"
	"github.com/lorelabs/loreengine/knowledge"
)

// DigestRecord is one chunk persisted by phase 1 of offline processing,
// waiting to be analyzed and indexed by phase 2.
type DigestRecord struct {
	ID          string `json:"id"`
	Source      string `json:"source"`
	ChunkIndex  int    `json:"chunkIndex"`
	TotalChunks int    `json:"totalChunks"`
	Content     string `json:"content"`
	Timestamp   int64  `json:"timestamp"`
}

// PrepareReport summarizes a staged batch.
type PrepareReport struct {
	Files                 []FileMetadata `json:"files"`
	TotalEstimatedSeconds float64        `json:"totalEstimatedSeconds"`
}

// Prepare stages every inbox document for offline processing. Per file it
// estimates chunk count and processing time, then moves the file into
// staging and records it in the manifest. The move is the commit point: a
// crash before it leaves the document in the inbox for the next run.
func (e *Engine) Prepare(ctx context.Context) (*PrepareReport, error) {
	for _, dir := range []string{e.conf.InboxDir, e.conf.StagingDir, e.conf.DigestsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "failed to create %s", dir)
		}
	}

	manifest, err := readManifest(e.conf.StagingDir)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(e.conf.InboxDir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read inbox")
	}

	avg := e.avgChunkSeconds(ctx)
	report := &PrepareReport{}

	staged := make(map[string]bool, len(manifest))
	for _, file := range manifest {
		staged[file.StagedPath] = true
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// A name collision with an in-flight batch would overwrite the
		// staged copy and double-digest it; the file waits in the inbox
		// until the batch completes.
		stagedPath := filepath.Join(e.conf.StagingDir, entry.Name())
		if staged[stagedPath] {
			e.logger.Warn("skipping inbox file, name already staged", "file", entry.Name())
			continue
		}

		inboxPath := filepath.Join(e.conf.InboxDir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			e.logger.Warn("skipping unreadable inbox file", "file", entry.Name(), "err", err)
			continue
		}

		content, err := os.ReadFile(inboxPath)
		if err != nil {
			e.logger.Warn("skipping unreadable inbox file", "file", entry.Name(), "err", err)
			continue
		}

		chunks, err := e.chunker.Chunk(string(content), e.conf.OfflineChunkMaxTokens)
		if err != nil {
			e.logger.Warn("skipping unchunkable inbox file", "file", entry.Name(), "err", err)
			continue
		}

		meta := FileMetadata{
			OriginalPath:            inboxPath,
			StagedPath:              stagedPath,
			Size:                    info.Size(),
			EstimatedChunks:         len(chunks),
			EstimatedProcessingTime: float64(len(chunks)) * avg,
			Status:                  FileStatusPending,
		}

		if err := os.Rename(inboxPath, meta.StagedPath); err != nil {
			return nil, errors.Wrapf(err, "failed to stage %s", entry.Name())
		}

		manifest = append(manifest, meta)
		if err := writeManifest(e.conf.StagingDir, manifest); err != nil {
			return nil, err
		}

		report.Files = append(report.Files, meta)
		report.TotalEstimatedSeconds += meta.EstimatedProcessingTime
		e.logger.Info("staged document",
			"file", entry.Name(),
			"estimatedChunks", meta.EstimatedChunks,
			"etaSeconds", meta.EstimatedProcessingTime)
	}

	return report, nil
}

// Process runs the staged batch to completion. Phase 1 turns every staged
// document into digest records, checkpointing the manifest after each chunk
// so a crash resumes mid-document. Phase 2 analyzes, embeds, and indexes
// each digest record, tolerating per-record failures. Staging is cleaned up
// only when every document completed phase 1.
func (e *Engine) Process(ctx context.Context) error {
	manifest, err := readManifest(e.conf.StagingDir)
	if err != nil {
		return err
	}

	for i := range manifest {
		if manifest[i].Status == FileStatusCompleted {
			continue
		}
		if err := e.digestFile(ctx, manifest, i); err != nil {
			return err
		}
	}

	if err := e.indexDigests(ctx); err != nil {
		return err
	}

	return e.cleanup(manifest)
}

// digestFile runs phase 1 for one staged document, resuming from
// CurrentChunk. Re-chunking is deterministic, so chunks before the
// checkpoint are rewritten identically.
func (e *Engine) digestFile(ctx context.Context, manifest []FileMetadata, idx int) error {
	file := &manifest[idx]
	name := filepath.Base(file.StagedPath)

	content, err := os.ReadFile(file.StagedPath)
	if err != nil {
		return errors.Wrapf(err, "failed to read staged file %s", name)
	}

	chunks, err := e.chunker.Chunk(string(content), e.conf.OfflineChunkMaxTokens)
	if err != nil {
		return errors.Wrapf(err, "failed to chunk %s", name)
	}

	file.Status = FileStatusProcessing
	file.TotalChunks = len(chunks)
	if err := writeManifest(e.conf.StagingDir, manifest); err != nil {
		return err
	}

	base := strings.TrimSuffix(name, filepath.Ext(name))
	start := time.Now()
	processed := 0

	for i := file.CurrentChunk; i < len(chunks); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		recordID := fmt.Sprintf("file-%s-%03d", base, i+1)
		record := DigestRecord{
			ID:          recordID,
			Source:      file.OriginalPath,
			ChunkIndex:  i,
			TotalChunks: len(chunks),
			Content:     chunks[i],
			Timestamp:   time.Now().UnixMilli(),
		}

		data, err := json.MarshalIndent(record, "", "  ")
		if err != nil {
			return errors.Wrapf(err, "failed to encode digest record %s", recordID)
		}
		if err := os.WriteFile(filepath.Join(e.conf.DigestsDir, recordID+".json"), data, 0o644); err != nil {
			return errors.Wrapf(err, "failed to write digest record %s", recordID)
		}

		file.CurrentChunk = i + 1
		if err := writeManifest(e.conf.StagingDir, manifest); err != nil {
			return err
		}
		processed++
	}

	if processed > 0 {
		e.updateAvgChunkSeconds(ctx, time.Since(start).Seconds()/float64(processed))
	}

	file.Status = FileStatusCompleted
	if err := writeManifest(e.conf.StagingDir, manifest); err != nil {
		return err
	}

	e.logger.Info("document digested", "file", name, "chunks", len(chunks))
	return nil
}

// indexDigests runs phase 2: every digest record is analyzed, embedded, and
// indexed. A failed record is logged and left on disk for the next run.
func (e *Engine) indexDigests(ctx context.Context) error {
	entries, err := os.ReadDir(e.conf.DigestsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "failed to read digests directory")
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		path := filepath.Join(e.conf.DigestsDir, entry.Name())
		if err := e.indexDigest(ctx, path); err != nil {
			e.logger.Warn("failed to index digest record", "file", entry.Name(), "err", err)
			continue
		}

		if err := os.Remove(path); err != nil {
			e.logger.Warn("failed to remove indexed digest record", "file", entry.Name(), "err", err)
		}
	}

	return nil
}

func (e *Engine) indexDigest(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "failed to read digest record")
	}

	var record DigestRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return errors.Wrapf(err, "digest record is corrupt")
	}

	k, err := e.analyze(ctx, record.Source, record.Content)
	if err != nil {
		return err
	}

	embeddings, err := e.embedder.Embed(ctx, k.Content)
	if err != nil {
		return errors.Wrapf(err, "failed to embed digest record")
	}

	referenceFile := k.ReferenceFile
	if referenceFile == "" {
		referenceFile = record.Source
	}

	doc := knowledge.DocumentMeta{
		ID:            record.ID,
		AgentID:       e.conf.AgentID,
		Title:         filepath.Base(record.Source),
		Context:       k.Context,
		Topics:        k.Topics,
		Importance:    k.Importance,
		ReferenceFile: referenceFile,
	}

	_, err = e.store.UpsertChunks(ctx, doc, []string{k.Content}, embeddings)
	return err
}

// cleanup removes the staged batch once every document completed phase 1.
func (e *Engine) cleanup(manifest []FileMetadata) error {
	if len(manifest) == 0 {
		return nil
	}
	for _, file := range manifest {
		if file.Status != FileStatusCompleted {
			return nil
		}
	}

	for _, file := range manifest {
		if err := os.Remove(file.StagedPath); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "failed to remove staged file %s", file.StagedPath)
		}
	}
	if err := os.Remove(manifestPath(e.conf.StagingDir)); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to remove manifest")
	}

	e.logger.Info("offline batch completed", "documents", len(manifest))
	return nil
}
