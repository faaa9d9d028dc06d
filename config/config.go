package config

import (
	"os"

	"github.com/goccy/go-yaml"
	"github.com/lorelabs/loreengine/errors"
)

// Config aggregates every component config. Values come from the
// constructors' defaults, then an optional YAML file named by
// LOREENGINE_CONFIG, then .env/environment variables (highest precedence).
type Config struct {
	Log       *LogConfig       `yaml:"log"`
	Knowledge *KnowledgeConfig `yaml:"knowledge"`
	Engine    *EngineConfig    `yaml:"engine"`
	Skill     *SkillConfig     `yaml:"skill"`
	OpenAI    *OpenAIConfig    `yaml:"openai"`
}

func New() *Config {
	return &Config{
		Log:       NewLogConfig(),
		Knowledge: NewKnowledgeConfig(),
		Engine:    NewEngineConfig(),
		Skill:     NewSkillConfig(),
		OpenAI:    NewOpenAIConfig(),
	}
}

func Load(testing bool) (*Config, error) {
	conf := New()

	if path := os.Getenv("LOREENGINE_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %q", path)
		}
		if err := yaml.Unmarshal(data, conf); err != nil {
			return nil, errors.Wrapf(err, "failed to parse config file %q", path)
		}
	}

	for _, resolve := range []func(bool) error{
		conf.Log.Resolve,
		conf.Knowledge.Resolve,
		conf.Engine.Resolve,
		conf.Skill.Resolve,
		conf.OpenAI.Resolve,
	} {
		if err := resolve(testing); err != nil {
			return nil, err
		}
	}

	return conf, nil
}
