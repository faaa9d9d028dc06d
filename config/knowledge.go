package config

import (
	"os"
	"path/filepath"
)

type KnowledgeConfig struct {
	// SqlitePath specifies the file path for the SQLite database.
	// Default: ~/.loreengine/knowledge.sqlite
	SqlitePath string `env:"LORE_SQLITE_PATH" yaml:"sqlitePath"`

	// BackupsDir is where Backup() writes timestamped copies of the
	// database file.
	BackupsDir string `env:"LORE_BACKUPS_DIR" yaml:"backupsDir"`

	// EmbeddingModel and EmbeddingDim are a fixed pair: every stored vector
	// must have exactly EmbeddingDim elements.
	EmbeddingModel string `env:"LORE_EMBEDDING_MODEL" yaml:"embeddingModel"`
	EmbeddingDim   int    `env:"LORE_EMBEDDING_DIM" yaml:"embeddingDim"`

	// SearchMaxDistance is the L2 distance cutoff for hybrid search.
	// Rows at or beyond this distance are never returned.
	SearchMaxDistance float64 `env:"LORE_SEARCH_MAX_DISTANCE" yaml:"searchMaxDistance"`

	// ChunkMaxTokens bounds each chunk produced during ingestion.
	ChunkMaxTokens int `env:"LORE_CHUNK_MAX_TOKENS" yaml:"chunkMaxTokens"`
}

func NewKnowledgeConfig() *KnowledgeConfig {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	root := filepath.Join(home, ".loreengine")

	return &KnowledgeConfig{
		SqlitePath:        filepath.Join(root, "knowledge.sqlite"),
		BackupsDir:        filepath.Join(root, "backups"),
		EmbeddingModel:    "text-embedding-3-small",
		EmbeddingDim:      1536,
		SearchMaxDistance: 3.0,
		ChunkMaxTokens:    500,
	}
}

func (c *KnowledgeConfig) Resolve(testing bool) error {
	return resolveConfig(c, testing)
}
