package skill

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"log/slog"

	"github.com/lorelabs/loreengine/errors"
)

const (
	metadataStart = "# TOOL_METADATA_START"
	metadataEnd   = "# TOOL_METADATA_END"

	promotedMarker = "_valid_conf"
	fixedSuffix    = "_fixed"
)

type (
	// Input is one declared parameter of a skill. Declaration order defines
	// the positional argument order at execution time.
	Input struct {
		Name        string `json:"name"`
		Description string `json:"description,omitempty"`
	}

	// Metadata is the self-describing block embedded in every artifact
	// between the metadata markers, one comment line per JSON line.
	Metadata struct {
		Name          string         `json:"name"`
		Description   string         `json:"description,omitempty"`
		Inputs        []Input        `json:"inputs,omitempty"`
		Outputs       []string       `json:"outputs,omitempty"`
		ExampleParams map[string]any `json:"exampleParams,omitempty"`
		CreatedAt     int64          `json:"createdAt"`
	}

	// Artifact is one executable skill on disk.
	Artifact struct {
		Name     string
		Path     string
		Script   string
		Metadata Metadata
	}

	// Repository owns the artifact directory. Promotion is a rename, never
	// a rewrite; every written artifact is mirrored into the boneyard.
	Repository interface {
		Write(name, ext, script string, meta Metadata) (*Artifact, error)
		Find(name string) (*Artifact, error)
		List() ([]*Artifact, error)
		Promote(a *Artifact, confidence int) (*Artifact, error)
		Clear() error
	}

	dirRepository struct {
		skillsDir   string
		boneyardDir string
		logger      *slog.Logger
	}
)

// Promoted reports whether the artifact passed validation.
func (a *Artifact) Promoted() bool {
	return strings.Contains(filepath.Base(a.Path), promotedMarker)
}

// renderMetadata produces the comment block embedded at the top of an
// artifact.
func renderMetadata(meta Metadata) (string, error) {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", errors.Wrapf(err, "failed to encode metadata")
	}

	var b strings.Builder
	b.WriteString(metadataStart)
	b.WriteString("\n")
	for _, line := range strings.Split(string(data), "\n") {
		b.WriteString("# ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString(metadataEnd)
	b.WriteString("\n")
	return b.String(), nil
}

// parseMetadata extracts the metadata block from artifact source. Files
// without a block return ErrNoMetadata.
func parseMetadata(source string) (*Metadata, error) {
	lines := strings.Split(source, "\n")

	start := -1
	end := -1
	for i, line := range lines {
		switch strings.TrimSpace(line) {
		case metadataStart:
			start = i
		case metadataEnd:
			if start >= 0 && end < 0 {
				end = i
			}
		}
	}
	if start < 0 || end < 0 {
		return nil, errors.WithStack(errors.ErrNoMetadata)
	}

	var b strings.Builder
	for _, line := range lines[start+1 : end] {
		trimmed := strings.TrimPrefix(strings.TrimSpace(line), "#")
		b.WriteString(strings.TrimPrefix(trimmed, " "))
		b.WriteString("\n")
	}

	var meta Metadata
	if err := json.Unmarshal([]byte(b.String()), &meta); err != nil {
		return nil, errors.Wrapf(err, "metadata block is corrupt")
	}
	return &meta, nil
}

func NewDirRepository(skillsDir, boneyardDir string, logger *slog.Logger) (Repository, error) {
	for _, dir := range []string{skillsDir, boneyardDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "failed to create %s", dir)
		}
	}
	return &dirRepository{
		skillsDir:   skillsDir,
		boneyardDir: boneyardDir,
		logger:      logger,
	}, nil
}

// Write persists an executable artifact with its metadata block prepended,
// and drops an immutable copy into the boneyard.
func (r *dirRepository) Write(name, ext, script string, meta Metadata) (*Artifact, error) {
	if name == "" || script == "" {
		return nil, errors.Wrapf(errors.ErrInvalidParams, "artifact name and script are required")
	}

	block, err := renderMetadata(meta)
	if err != nil {
		return nil, err
	}

	// A shebang must stay on line one, so the metadata block goes after it.
	var source string
	if strings.HasPrefix(script, "#!") {
		if idx := strings.Index(script, "\n"); idx >= 0 {
			source = script[:idx+1] + block + script[idx+1:]
		} else {
			source = script + "\n" + block
		}
	} else {
		source = block + script
	}
	if !strings.HasSuffix(source, "\n") {
		source += "\n"
	}

	path := filepath.Join(r.skillsDir, name+ext)
	if err := os.WriteFile(path, []byte(source), 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to write artifact %s", name)
	}

	boneyardPath := filepath.Join(r.boneyardDir, name+ext)
	if err := os.WriteFile(boneyardPath, []byte(source), 0o644); err != nil {
		r.logger.Warn("failed to mirror artifact into boneyard", "name", name, "err", err)
	}

	return &Artifact{
		Name:     name,
		Path:     path,
		Script:   source,
		Metadata: meta,
	}, nil
}

// Find returns the artifact whose metadata name matches, preferring a
// promoted copy over a draft.
func (r *dirRepository) Find(name string) (*Artifact, error) {
	artifacts, err := r.List()
	if err != nil {
		return nil, err
	}

	var found *Artifact
	for _, a := range artifacts {
		if a.Metadata.Name != name {
			continue
		}
		if found == nil || (a.Promoted() && !found.Promoted()) {
			found = a
		}
	}
	if found == nil {
		return nil, errors.Wrapf(errors.ErrNotFound, "skill %q", name)
	}
	return found, nil
}

// List enumerates every artifact carrying a metadata block. Files without
// one are skipped.
func (r *dirRepository) List() ([]*Artifact, error) {
	entries, err := os.ReadDir(r.skillsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "failed to read skills directory")
	}

	var artifacts []*Artifact
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		path := filepath.Join(r.skillsDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			r.logger.Warn("skipping unreadable artifact", "file", entry.Name(), "err", err)
			continue
		}

		meta, err := parseMetadata(string(data))
		if err != nil {
			if !errors.Is(err, errors.ErrNoMetadata) {
				r.logger.Warn("skipping artifact with corrupt metadata", "file", entry.Name(), "err", err)
			}
			continue
		}

		artifacts = append(artifacts, &Artifact{
			Name:     meta.Name,
			Path:     path,
			Script:   string(data),
			Metadata: *meta,
		})
	}

	return artifacts, nil
}

// Promote renames the artifact to carry its validation confidence. The
// rename is skipped when the target already exists, so repeated validation
// never clobbers a promoted artifact.
func (r *dirRepository) Promote(a *Artifact, confidence int) (*Artifact, error) {
	base := filepath.Base(a.Path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if strings.Contains(stem, promotedMarker) {
		return a, nil
	}

	target := filepath.Join(r.skillsDir, stem+promotedMarker+strconv.Itoa(confidence)+ext)
	if _, err := os.Stat(target); err == nil {
		r.logger.Info("promotion target already exists, keeping it", "target", target)
		promoted := *a
		promoted.Path = target
		return &promoted, nil
	}

	if err := os.Rename(a.Path, target); err != nil {
		return nil, errors.Wrapf(err, "failed to promote %s", a.Name)
	}

	promoted := *a
	promoted.Path = target
	return &promoted, nil
}

// Clear empties the skills directory. The boneyard is never touched.
func (r *dirRepository) Clear() error {
	entries, err := os.ReadDir(r.skillsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "failed to read skills directory")
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(r.skillsDir, entry.Name())); err != nil {
			return errors.Wrapf(err, "failed to remove %s", entry.Name())
		}
	}
	return nil
}
