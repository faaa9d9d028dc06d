package config

type OpenAIConfig struct {
	OpenAIApiKey  string `env:"OPENAI_API_KEY" yaml:"-"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL" yaml:"openaiBaseUrl"`
	ChatModel     string `env:"LORE_CHAT_MODEL" yaml:"chatModel"`
}

func NewOpenAIConfig() *OpenAIConfig {
	return &OpenAIConfig{
		ChatModel: "gpt-4o-mini",
	}
}

func (c *OpenAIConfig) Resolve(testing bool) error {
	return resolveConfig(c, testing)
}
