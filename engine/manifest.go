package engine

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/lorelabs/loreengine/errors"
)

const (
	FileStatusPending    = "pending"
	FileStatusProcessing = "processing"
	FileStatusCompleted  = "completed"
)

// FileMetadata is one staged document's entry in the batch manifest. The
// manifest is the single source of truth for resuming: CurrentChunk is the
// index of the next digest record to write.
type FileMetadata struct {
	OriginalPath            string  `json:"originalPath"`
	StagedPath              string  `json:"stagedPath"`
	Size                    int64   `json:"size"`
	EstimatedChunks         int     `json:"estimatedChunks"`
	EstimatedProcessingTime float64 `json:"estimatedProcessingTime"`
	Status                  string  `json:"status"`
	CurrentChunk            int     `json:"currentChunk"`
	TotalChunks             int     `json:"totalChunks"`
}

func manifestPath(stagingDir string) string {
	return filepath.Join(stagingDir, "manifest.json")
}

// readManifest loads the manifest, or returns an empty one when no batch is
// staged.
func readManifest(stagingDir string) ([]FileMetadata, error) {
	data, err := os.ReadFile(manifestPath(stagingDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "failed to read manifest")
	}

	var files []FileMetadata
	if err := json.Unmarshal(data, &files); err != nil {
		return nil, errors.Wrapf(err, "manifest is corrupt")
	}
	return files, nil
}

// writeManifest replaces the manifest atomically. A crash mid-write leaves
// the previous manifest intact.
func writeManifest(stagingDir string, files []FileMetadata) error {
	data, err := json.MarshalIndent(files, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "failed to encode manifest")
	}

	path := manifestPath(stagingDir)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write manifest")
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrapf(err, "failed to commit manifest")
	}
	return nil
}
