package config

import (
	"os"
	"path/filepath"
)

// EngineConfig holds the directory layout and tuning for the offline
// ingestion pipeline. All paths default to subdirectories of ~/.loreengine.
type EngineConfig struct {
	// AgentID namespaces all knowledge indexed by the pipeline.
	AgentID string `env:"LORE_AGENT_ID" yaml:"agentId"`

	// InboxDir receives new documents to ingest.
	InboxDir string `env:"LORE_INBOX_DIR" yaml:"inboxDir"`

	// StagingDir is the working directory for in-flight offline batches.
	// The manifest file lives at StagingDir/manifest.json.
	StagingDir string `env:"LORE_STAGING_DIR" yaml:"stagingDir"`

	// DigestsDir holds per-document intermediate records produced by
	// phase 1 of offline processing.
	DigestsDir string `env:"LORE_DIGESTS_DIR" yaml:"digestsDir"`

	// OfflineChunkMaxTokens bounds chunks in the offline pipeline. The
	// offline path favors larger chunks than online ingestion.
	OfflineChunkMaxTokens int `env:"LORE_OFFLINE_CHUNK_MAX_TOKENS" yaml:"offlineChunkMaxTokens"`

	// MaxAnalyzeChars truncates chunk text before the content-analysis
	// LLM call.
	MaxAnalyzeChars int `env:"LORE_MAX_ANALYZE_CHARS" yaml:"maxAnalyzeChars"`

	// DefaultChunkSeconds seeds the rolling processing-time average before
	// any run has completed.
	DefaultChunkSeconds float64 `env:"LORE_DEFAULT_CHUNK_SECONDS" yaml:"defaultChunkSeconds"`
}

func NewEngineConfig() *EngineConfig {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	root := filepath.Join(home, ".loreengine")

	return &EngineConfig{
		AgentID:               "default",
		InboxDir:              filepath.Join(root, "inbox"),
		StagingDir:            filepath.Join(root, "staging"),
		DigestsDir:            filepath.Join(root, "digests"),
		OfflineChunkMaxTokens: 3000,
		MaxAnalyzeChars:       2000,
		DefaultChunkSeconds:   2,
	}
}

func (c *EngineConfig) Resolve(testing bool) error {
	return resolveConfig(c, testing)
}
