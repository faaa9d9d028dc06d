package ai_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/invopop/jsonschema"
	"github.com/lorelabs/loreengine/ai"
	"github.com/stretchr/testify/require"
)

type verdict struct {
	Success    bool `json:"success"`
	Confidence int  `json:"confidence"`
}

type stubChat struct {
	response json.RawMessage
	schema   *jsonschema.Schema
}

func (c *stubChat) Complete(_ context.Context, _ []ai.Message, schema *jsonschema.Schema) (json.RawMessage, error) {
	c.schema = schema
	return c.response, nil
}

func TestSchemaFor(t *testing.T) {
	schema := ai.SchemaFor[verdict]()
	require.NotNil(t, schema)

	data, err := json.Marshal(schema)
	require.NoError(t, err)
	require.Contains(t, string(data), `"success"`)
	require.Contains(t, string(data), `"confidence"`)
}

func TestGenerate(t *testing.T) {
	ctx := context.Background()

	t.Run("decodes a conforming response", func(t *testing.T) {
		chat := &stubChat{response: json.RawMessage(`{"success": true, "confidence": 8}`)}

		v, err := ai.Generate[verdict](ctx, chat, []ai.Message{ai.UserMessage("judge this")})
		require.NoError(t, err)
		require.True(t, v.Success)
		require.Equal(t, 8, v.Confidence)
		require.NotNil(t, chat.schema, "the schema contract must travel with the call")
	})

	t.Run("rejects a response that does not match the schema", func(t *testing.T) {
		chat := &stubChat{response: json.RawMessage(`{"success": "not a bool"}`)}

		_, err := ai.Generate[verdict](ctx, chat, nil)
		require.Error(t, err)
	})
}
