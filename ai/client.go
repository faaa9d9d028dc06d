package ai

import (
	"context"
	"encoding/json"

	"github.com/invopop/jsonschema"
	"github.com/lorelabs/loreengine/errors"
)

type (
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}

	// ChatClient is the structured-chat call: messages plus a JSON-schema
	// contract, returning raw JSON that matched the schema. Schema
	// violations are recoverable errors, never a crash.
	ChatClient interface {
		Complete(ctx context.Context, messages []Message, schema *jsonschema.Schema) (json.RawMessage, error)
	}

	// Embedder is the embedding call: one fixed-length float vector per
	// input string.
	Embedder interface {
		Embed(ctx context.Context, texts ...string) ([][]float32, error)
	}
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// SchemaFor reflects a JSON schema from the given result type. Used to build
// the contract sent with every structured chat call.
func SchemaFor[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		Anonymous:      true,
		DoNotReference: true,
	}
	var v T
	return reflector.Reflect(&v)
}

// Generate runs a structured chat call and decodes the response into T.
func Generate[T any](ctx context.Context, client ChatClient, messages []Message) (*T, error) {
	raw, err := client.Complete(ctx, messages, SchemaFor[T]())
	if err != nil {
		return nil, err
	}

	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.Wrapf(err, "response does not match schema")
	}

	return &out, nil
}
