package ai

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/invopop/jsonschema"
	"github.com/lorelabs/loreengine/config"
	"github.com/lorelabs/loreengine/errors"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Client implements ChatClient and Embedder over the OpenAI-compatible API.
type Client struct {
	oai        *openai.Client
	chatModel  string
	embedModel string
	logger     *slog.Logger
}

var (
	_ ChatClient = (*Client)(nil)
	_ Embedder   = (*Client)(nil)
)

func NewClient(conf *config.OpenAIConfig, knowledgeConf *config.KnowledgeConfig, logger *slog.Logger) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(conf.OpenAIApiKey),
	}
	if conf.OpenAIBaseURL != "" {
		opts = append(opts, option.WithBaseURL(conf.OpenAIBaseURL))
	}

	return &Client{
		oai:        openai.NewClient(opts...),
		chatModel:  conf.ChatModel,
		embedModel: knowledgeConf.EmbeddingModel,
		logger:     logger,
	}
}

func (c *Client) Complete(ctx context.Context, messages []Message, schema *jsonschema.Schema) (json.RawMessage, error) {
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to marshal schema")
	}

	params := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)+1)
	// The contract travels as an instruction; the response format pins the
	// output to a single JSON object.
	params = append(params, openai.SystemMessage("Output JSON matching this schema: "+string(schemaJSON)))
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			params = append(params, openai.SystemMessage(msg.Content))
		case RoleAssistant:
			params = append(params, openai.AssistantMessage(msg.Content))
		default:
			params = append(params, openai.UserMessage(msg.Content))
		}
	}

	resp, err := c.oai.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.F(c.chatModel),
		Messages: openai.F(params),
		ResponseFormat: openai.F[openai.ChatCompletionNewParamsResponseFormatUnion](
			openai.ResponseFormatJSONObjectParam{
				Type: openai.F(openai.ResponseFormatJSONObjectTypeJSONObject),
			},
		),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "chat completion failed")
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("chat completion returned no choices")
	}

	content := resp.Choices[0].Message.Content
	if !json.Valid([]byte(content)) {
		return nil, errors.Errorf("chat completion returned invalid JSON")
	}

	return json.RawMessage(content), nil
}

func (c *Client) Embed(ctx context.Context, texts ...string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := c.oai.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.F(c.embedModel),
		Input: openai.F[openai.EmbeddingNewParamsInputUnion](
			openai.EmbeddingNewParamsInputArrayOfStrings(texts),
		),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "embedding request failed")
	}
	if len(resp.Data) != len(texts) {
		return nil, errors.Errorf("embedding count mismatch: got %d, expected %d", len(resp.Data), len(texts))
	}

	embeddings := make([][]float32, len(resp.Data))
	for i, item := range resp.Data {
		vec := make([]float32, len(item.Embedding))
		for j, v := range item.Embedding {
			vec[j] = float32(v)
		}
		embeddings[i] = vec
	}

	return embeddings, nil
}
