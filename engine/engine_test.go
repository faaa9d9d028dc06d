package engine_test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/invopop/jsonschema"
	"github.com/lorelabs/loreengine/ai"
	"github.com/lorelabs/loreengine/config"
	"github.com/lorelabs/loreengine/engine"
	"github.com/lorelabs/loreengine/errors"
	"github.com/lorelabs/loreengine/internal/mylog"
	"github.com/lorelabs/loreengine/knowledge"
	"github.com/stretchr/testify/require"
)

// stubChat answers every completion with the same analysis result, or a
// configured error.
type stubChat struct {
	err   error
	calls int
}

func (c *stubChat) Complete(_ context.Context, _ []ai.Message, _ *jsonschema.Schema) (json.RawMessage, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return json.RawMessage(`{
		"content": "distilled knowledge",
		"topics": ["testing"],
		"importance": 5,
		"context": "from a test document"
	}`), nil
}

type stubEmbedder struct {
	err error
}

func (e *stubEmbedder) Embed(_ context.Context, texts ...string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

// fakeKV is a map-backed key-value store.
type fakeKV struct {
	values map[string]string
}

func newFakeKV() *fakeKV {
	return &fakeKV{values: map[string]string{}}
}

func (kv *fakeKV) Get(_ context.Context, key string) (string, error) {
	v, ok := kv.values[key]
	if !ok {
		return "", errors.Wrapf(errors.ErrNotFound, "key %q", key)
	}
	return v, nil
}

func (kv *fakeKV) Set(_ context.Context, key, value string) error {
	kv.values[key] = value
	return nil
}

func (kv *fakeKV) Delete(_ context.Context, key string) error {
	delete(kv.values, key)
	return nil
}

func (kv *fakeKV) SecretNames(_ context.Context) ([]string, error) {
	return nil, nil
}

func (kv *fakeKV) Secrets(_ context.Context) (map[string]string, error) {
	return map[string]string{}, nil
}

type testRig struct {
	engine *engine.Engine
	conf   *config.EngineConfig
	store  *knowledge.InMemoryStore
	chat   *stubChat
	kv     *fakeKV
}

func newTestRig(t *testing.T, chat *stubChat) *testRig {
	t.Helper()

	dir := t.TempDir()
	conf := &config.EngineConfig{
		AgentID:               "default",
		InboxDir:              filepath.Join(dir, "inbox"),
		StagingDir:            filepath.Join(dir, "staging"),
		DigestsDir:            filepath.Join(dir, "digests"),
		OfflineChunkMaxTokens: 20,
		MaxAnalyzeChars:       2000,
		DefaultChunkSeconds:   2,
	}
	require.NoError(t, os.MkdirAll(conf.InboxDir, 0o755))

	chunker, err := knowledge.NewChunker()
	require.NoError(t, err)

	store := knowledge.NewInMemoryStore(3, 3.0)
	kv := newFakeKV()

	return &testRig{
		engine: engine.NewEngine(conf, chunker, chat, &stubEmbedder{}, store, kv, mylog.NewTestLogger(os.Stderr)),
		conf:   conf,
		store:  store,
		chat:   chat,
		kv:     kv,
	}
}

func (r *testRig) writeInbox(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(r.conf.InboxDir, name), []byte(content), 0o644))
}

func (r *testRig) readManifest(t *testing.T) []engine.FileMetadata {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(r.conf.StagingDir, "manifest.json"))
	require.NoError(t, err)

	var files []engine.FileMetadata
	require.NoError(t, json.Unmarshal(data, &files))
	return files
}

func (r *testRig) digestNames(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(r.conf.DigestsDir)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

const longText = "alpha bravo charlie delta echo foxtrot golf hotel india juliett kilo lima " +
	"mike november oscar papa quebec romeo sierra tango uniform victor whiskey xray yankee zulu. "

func TestPrepare(t *testing.T) {
	rig := newTestRig(t, &stubChat{})
	ctx := context.Background()

	rig.writeInbox(t, "one.txt", strings.Repeat(longText, 5))
	rig.writeInbox(t, "two.txt", strings.Repeat(longText, 3))

	report, err := rig.engine.Prepare(ctx)
	require.NoError(t, err)
	require.Len(t, report.Files, 2)
	require.Positive(t, report.TotalEstimatedSeconds)

	// The move is the commit point: nothing stays in the inbox.
	entries, err := os.ReadDir(rig.conf.InboxDir)
	require.NoError(t, err)
	require.Empty(t, entries)

	manifest := rig.readManifest(t)
	require.Len(t, manifest, 2)
	for _, f := range manifest {
		require.Equal(t, engine.FileStatusPending, f.Status)
		require.Positive(t, f.EstimatedChunks)
		require.InDelta(t, float64(f.EstimatedChunks)*rig.conf.DefaultChunkSeconds, f.EstimatedProcessingTime, 0.001)
		require.FileExists(t, f.StagedPath)
	}
}

func TestPrepareIsReRunnable(t *testing.T) {
	rig := newTestRig(t, &stubChat{})
	ctx := context.Background()

	rig.writeInbox(t, "one.txt", longText)
	_, err := rig.engine.Prepare(ctx)
	require.NoError(t, err)

	rig.writeInbox(t, "two.txt", longText)
	_, err = rig.engine.Prepare(ctx)
	require.NoError(t, err)

	require.Len(t, rig.readManifest(t), 2)
}

func TestPrepareSkipsStagedNameCollision(t *testing.T) {
	rig := newTestRig(t, &stubChat{})
	ctx := context.Background()

	rig.writeInbox(t, "one.txt", longText)
	_, err := rig.engine.Prepare(ctx)
	require.NoError(t, err)

	// A new inbox file reuses the staged name while the batch is still in
	// flight: it must wait in the inbox, not clobber the staged copy.
	rig.writeInbox(t, "one.txt", "different content entirely")
	report, err := rig.engine.Prepare(ctx)
	require.NoError(t, err)
	require.Empty(t, report.Files)

	require.Len(t, rig.readManifest(t), 1)
	require.FileExists(t, filepath.Join(rig.conf.InboxDir, "one.txt"))

	staged, err := os.ReadFile(filepath.Join(rig.conf.StagingDir, "one.txt"))
	require.NoError(t, err)
	require.Equal(t, longText, string(staged))
}

func TestProcess(t *testing.T) {
	rig := newTestRig(t, &stubChat{})
	ctx := context.Background()

	rig.writeInbox(t, "doc.txt", strings.Repeat(longText, 5))
	_, err := rig.engine.Prepare(ctx)
	require.NoError(t, err)

	require.NoError(t, rig.engine.Process(ctx))

	// Every digest record was analyzed, indexed, and consumed.
	require.Empty(t, rig.digestNames(t))
	require.Positive(t, rig.store.Count("file-doc-"))

	// Staging is cleaned up once every document completed.
	require.NoFileExists(t, filepath.Join(rig.conf.StagingDir, "manifest.json"))
	require.NoFileExists(t, filepath.Join(rig.conf.StagingDir, "doc.txt"))

	// The rolling average was folded toward the measured per-chunk time.
	avg, err := rig.kv.Get(ctx, "engine.avg_chunk_seconds")
	require.NoError(t, err)
	parsed, err := strconv.ParseFloat(avg, 64)
	require.NoError(t, err)
	require.Less(t, parsed, rig.conf.DefaultChunkSeconds)
}

func TestProcessResumesMidDocument(t *testing.T) {
	rig := newTestRig(t, &stubChat{})
	ctx := context.Background()

	text := strings.Repeat(longText, 5)
	rig.writeInbox(t, "doc.txt", text)
	_, err := rig.engine.Prepare(ctx)
	require.NoError(t, err)

	manifest := rig.readManifest(t)
	require.Len(t, manifest, 1)
	require.Greater(t, manifest[0].EstimatedChunks, 2)

	chunker, err := knowledge.NewChunker()
	require.NoError(t, err)
	chunks, err := chunker.Chunk(text, rig.conf.OfflineChunkMaxTokens)
	require.NoError(t, err)

	// Simulate a crash after the first chunk's checkpoint: its digest is on
	// disk and the manifest says resume at index 1.
	first := engine.DigestRecord{
		ID:          "file-doc-001",
		Source:      manifest[0].OriginalPath,
		ChunkIndex:  0,
		TotalChunks: len(chunks),
		Content:     chunks[0],
		Timestamp:   1,
	}
	data, err := json.Marshal(first)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(rig.conf.DigestsDir, "file-doc-001.json"), data, 0o644))

	manifest[0].Status = engine.FileStatusProcessing
	manifest[0].CurrentChunk = 1
	manifest[0].TotalChunks = len(chunks)
	data, err = json.Marshal(manifest)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(rig.conf.StagingDir, "manifest.json"), data, 0o644))

	require.NoError(t, rig.engine.Process(ctx))
	require.Empty(t, rig.digestNames(t))

	// Every chunk, including the one digested before the crash, was indexed
	// exactly once.
	require.Equal(t, len(chunks), rig.store.Count("file-doc-"))
}

func TestProcessToleratesFailedRecords(t *testing.T) {
	chat := &stubChat{err: errors.New("model unavailable")}
	rig := newTestRig(t, chat)
	ctx := context.Background()

	rig.writeInbox(t, "doc.txt", strings.Repeat(longText, 3))
	_, err := rig.engine.Prepare(ctx)
	require.NoError(t, err)

	// Phase 2 fails per record; the run itself succeeds and digests stay
	// on disk for the next attempt.
	require.NoError(t, rig.engine.Process(ctx))
	remaining := rig.digestNames(t)
	require.NotEmpty(t, remaining)
	require.Zero(t, rig.store.Count("file-doc-"))

	// The model comes back: the next run consumes the leftovers.
	chat.err = nil
	require.NoError(t, rig.engine.Process(ctx))
	require.Empty(t, rig.digestNames(t))
	require.Equal(t, len(remaining), rig.store.Count("file-doc-"))
}

func TestDigestRecordNaming(t *testing.T) {
	rig := newTestRig(t, &stubChat{err: errors.New("hold phase 2")})
	ctx := context.Background()

	rig.writeInbox(t, "report.txt", strings.Repeat(longText, 3))
	_, err := rig.engine.Prepare(ctx)
	require.NoError(t, err)
	require.NoError(t, rig.engine.Process(ctx))

	names := rig.digestNames(t)
	require.NotEmpty(t, names)
	for i, name := range names {
		require.Equal(t, fmt.Sprintf("file-report-%03d.json", i+1), name)
	}
}

func TestCycle(t *testing.T) {
	rig := newTestRig(t, &stubChat{})
	ctx := context.Background()

	rig.writeInbox(t, "note.txt", longText)
	require.NoError(t, rig.engine.Cycle(ctx))

	entries, err := os.ReadDir(rig.conf.InboxDir)
	require.NoError(t, err)
	require.Empty(t, entries)
	require.Positive(t, rig.store.Count("note-"))
}
