package config

import (
	"os"
	"path/filepath"
	"time"
)

type SkillConfig struct {
	// SkillsDir holds the executable artifacts. Owned exclusively by the
	// skill engine.
	SkillsDir string `env:"LORE_SKILLS_DIR" yaml:"skillsDir"`

	// BoneyardDir receives an immutable copy of every artifact ever
	// generated, for audit.
	BoneyardDir string `env:"LORE_BONEYARD_DIR" yaml:"boneyardDir"`

	// ExecTimeout is the hard wall-clock limit for one skill run. The
	// subprocess is killed when it elapses.
	ExecTimeout time.Duration `env:"LORE_SKILL_EXEC_TIMEOUT" yaml:"execTimeout"`

	// LenientValidation keeps an artifact alive when the validator returns
	// a malformed response: the attempt passes with a default confidence
	// instead of being discarded. Logged whenever it fires.
	LenientValidation bool `env:"LORE_SKILL_LENIENT_VALIDATION" yaml:"lenientValidation"`

	// SecretNames whitelists the environment secrets a generated script may
	// use, in addition to keys under the "secret." prefix of the key-value
	// store. Only the names are ever shown to the model.
	SecretNames []string `env:"LORE_SKILL_SECRET_NAMES" yaml:"secretNames"`
}

func NewSkillConfig() *SkillConfig {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	root := filepath.Join(home, ".loreengine")

	return &SkillConfig{
		SkillsDir:         filepath.Join(root, "skills"),
		BoneyardDir:       filepath.Join(root, "boneyard"),
		ExecTimeout:       60 * time.Second,
		LenientValidation: true,
	}
}

func (c *SkillConfig) Resolve(testing bool) error {
	return resolveConfig(c, testing)
}
