package skill_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/lorelabs/loreengine/ai"
	"github.com/lorelabs/loreengine/config"
	"github.com/lorelabs/loreengine/errors"
	"github.com/lorelabs/loreengine/internal/mylog"
	"github.com/lorelabs/loreengine/skill"
	"github.com/stretchr/testify/require"
)

// queueChat replays canned completions in order. A nil entry produces an
// error, standing in for a malformed model response.
type queueChat struct {
	responses []any
	calls     int
}

func (c *queueChat) Complete(_ context.Context, _ []ai.Message, _ *jsonschema.Schema) (json.RawMessage, error) {
	if c.calls >= len(c.responses) {
		return nil, errors.New("no more canned responses")
	}
	resp := c.responses[c.calls]
	c.calls++

	if resp == nil {
		return nil, errors.New("response does not match schema")
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}
	return data, nil
}

type fakeKV struct {
	secrets map[string]string
}

func (kv *fakeKV) Get(_ context.Context, key string) (string, error) {
	return "", errors.Wrapf(errors.ErrNotFound, "key %q", key)
}

func (kv *fakeKV) Set(_ context.Context, _, _ string) error { return nil }

func (kv *fakeKV) Delete(_ context.Context, _ string) error { return nil }

func (kv *fakeKV) SecretNames(_ context.Context) ([]string, error) {
	names := make([]string, 0, len(kv.secrets))
	for name := range kv.secrets {
		names = append(names, name)
	}
	return names, nil
}

func (kv *fakeKV) Secrets(_ context.Context) (map[string]string, error) {
	out := map[string]string{}
	for k, v := range kv.secrets {
		out[k] = v
	}
	return out, nil
}

func newTestEngine(t *testing.T, chat *queueChat, kv *fakeKV) (*skill.Engine, skill.Repository, *config.SkillConfig) {
	t.Helper()

	dir := t.TempDir()
	conf := &config.SkillConfig{
		SkillsDir:         filepath.Join(dir, "skills"),
		BoneyardDir:       filepath.Join(dir, "boneyard"),
		ExecTimeout:       5 * time.Second,
		LenientValidation: true,
	}
	if kv == nil {
		kv = &fakeKV{}
	}

	logger := mylog.NewTestLogger(os.Stderr)
	repo, err := skill.NewDirRepository(conf.SkillsDir, conf.BoneyardDir, logger)
	require.NoError(t, err)

	return skill.NewEngine(conf, chat, kv, repo, logger), repo, conf
}

func greetMeta() skill.Metadata {
	return skill.Metadata{
		Name:          "greet",
		Description:   "prints a greeting",
		Inputs:        []skill.Input{{Name: "who"}},
		ExampleParams: map[string]any{"who": "world"},
		CreatedAt:     1700000000000,
	}
}

func TestPerform(t *testing.T) {
	ctx := context.Background()

	t.Run("maps inputs to positional arguments in declared order", func(t *testing.T) {
		engine, repo, _ := newTestEngine(t, &queueChat{}, nil)
		meta := greetMeta()
		meta.Inputs = []skill.Input{{Name: "greeting"}, {Name: "who"}}
		_, err := repo.Write("greet", ".sh", "#!/bin/sh\necho \"$1 $2\"", meta)
		require.NoError(t, err)

		result, err := engine.Perform(ctx, "greet", map[string]any{"who": "world", "greeting": "hello"})
		require.NoError(t, err)
		require.Equal(t, "hello world", result.Output)
	})

	t.Run("missing input is rejected", func(t *testing.T) {
		engine, repo, _ := newTestEngine(t, &queueChat{}, nil)
		_, err := repo.Write("greet", ".sh", "#!/bin/sh\necho \"hello $1\"", greetMeta())
		require.NoError(t, err)

		_, err = engine.Perform(ctx, "greet", map[string]any{})
		require.ErrorIs(t, err, errors.ErrInvalidParams)
	})

	t.Run("unknown skill is not found", func(t *testing.T) {
		engine, _, _ := newTestEngine(t, &queueChat{}, nil)
		_, err := engine.Perform(ctx, "nope", nil)
		require.ErrorIs(t, err, errors.ErrNotFound)
	})

	t.Run("JSON stdout is pretty-printed", func(t *testing.T) {
		engine, repo, _ := newTestEngine(t, &queueChat{}, nil)
		_, err := repo.Write("greet", ".sh", "#!/bin/sh\necho '{\"greeting\":\"hello world\"}'", greetMeta())
		require.NoError(t, err)

		result, err := engine.Perform(ctx, "greet", map[string]any{"who": "world"})
		require.NoError(t, err)
		require.Contains(t, result.Output, "\n")
		require.Contains(t, result.Output, `"greeting": "hello world"`)
	})

	t.Run("empty output is classified", func(t *testing.T) {
		engine, repo, _ := newTestEngine(t, &queueChat{}, nil)
		_, err := repo.Write("greet", ".sh", "#!/bin/sh\ntrue", greetMeta())
		require.NoError(t, err)

		result, err := engine.Perform(ctx, "greet", map[string]any{"who": "world"})
		require.NoError(t, err)
		require.Equal(t, "no output", result.Output)
	})

	t.Run("non-zero exit surfaces stderr", func(t *testing.T) {
		engine, repo, _ := newTestEngine(t, &queueChat{}, nil)
		_, err := repo.Write("greet", ".sh", "#!/bin/sh\necho \"boom\" >&2\nexit 1", greetMeta())
		require.NoError(t, err)

		_, err = engine.Perform(ctx, "greet", map[string]any{"who": "world"})
		require.Error(t, err)
		require.Contains(t, err.Error(), "boom")
	})

	t.Run("secrets reach the subprocess environment", func(t *testing.T) {
		kv := &fakeKV{secrets: map[string]string{"MY_TOKEN": "shhh"}}
		engine, repo, _ := newTestEngine(t, &queueChat{}, kv)
		_, err := repo.Write("greet", ".sh", "#!/bin/sh\necho \"$MY_TOKEN\"", greetMeta())
		require.NoError(t, err)

		result, err := engine.Perform(ctx, "greet", map[string]any{"who": "world"})
		require.NoError(t, err)
		require.Equal(t, "shhh", result.Output)
	})
}

func TestPerformTimeout(t *testing.T) {
	t.Run("kills a long-running script at the deadline", func(t *testing.T) {
		engine, repo, conf := newTestEngine(t, &queueChat{}, nil)
		conf.ExecTimeout = 200 * time.Millisecond

		_, err := repo.Write("greet", ".sh", "#!/bin/sh\nsleep 5\necho done", greetMeta())
		require.NoError(t, err)

		start := time.Now()
		_, err = engine.Perform(context.Background(), "greet", map[string]any{"who": "world"})
		require.ErrorIs(t, err, errors.ErrTimeout)
		require.Less(t, time.Since(start), 2*time.Second, "subprocess must be killed at the deadline")
	})

	t.Run("kills children that keep the output pipes open", func(t *testing.T) {
		engine, repo, conf := newTestEngine(t, &queueChat{}, nil)
		conf.ExecTimeout = 200 * time.Millisecond

		// The interpreter forks a child that inherits stdout; killing the
		// interpreter alone would leave Perform blocked on the pipe until
		// the child exits on its own.
		_, err := repo.Write("greet", ".sh", "#!/bin/sh\nsleep 5 &\nwait", greetMeta())
		require.NoError(t, err)

		start := time.Now()
		_, err = engine.Perform(context.Background(), "greet", map[string]any{"who": "world"})
		require.ErrorIs(t, err, errors.ErrTimeout)
		require.Less(t, time.Since(start), 2*time.Second, "the whole process group must die at the deadline")
	})
}

func TestValidate(t *testing.T) {
	ctx := context.Background()

	t.Run("passes a well-formed verdict through", func(t *testing.T) {
		chat := &queueChat{responses: []any{
			skill.Validation{Success: true, Confidence: 9, Description: "looks right"},
		}}
		engine, repo, _ := newTestEngine(t, chat, nil)
		_, err := repo.Write("greet", ".sh", "#!/bin/sh\necho hello", greetMeta())
		require.NoError(t, err)

		v, err := engine.Validate(ctx, "greet", "hello")
		require.NoError(t, err)
		require.True(t, v.Success)
		require.Equal(t, 9, v.Confidence)
	})

	t.Run("malformed verdict passes leniently with default confidence", func(t *testing.T) {
		chat := &queueChat{responses: []any{nil}}
		engine, repo, _ := newTestEngine(t, chat, nil)
		_, err := repo.Write("greet", ".sh", "#!/bin/sh\necho hello", greetMeta())
		require.NoError(t, err)

		v, err := engine.Validate(ctx, "greet", "hello")
		require.NoError(t, err)
		require.True(t, v.Success)
		require.Equal(t, 6, v.Confidence)
	})

	t.Run("strict policy fails on a malformed verdict", func(t *testing.T) {
		chat := &queueChat{responses: []any{nil}}
		engine, repo, conf := newTestEngine(t, chat, nil)
		conf.LenientValidation = false
		_, err := repo.Write("greet", ".sh", "#!/bin/sh\necho hello", greetMeta())
		require.NoError(t, err)

		_, err = engine.Validate(ctx, "greet", "hello")
		require.Error(t, err)
	})
}

func scriptResponse() skill.ScriptResponse {
	return skill.ScriptResponse{
		ScriptName:  "greet",
		Description: "prints a greeting",
		Inputs:      []skill.Input{{Name: "who"}},
		Script: "```sh\n" +
			"#!/bin/sh\n" +
			"echo \"{\\\"greeting\\\": \\\"hello $1\\\"}\"\n" +
			"```",
		Outputs:       []string{"JSON greeting"},
		ExampleParams: map[string]any{"who": "world"},
	}
}

func TestCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("generates, self-tests, validates, and promotes", func(t *testing.T) {
		chat := &queueChat{responses: []any{
			scriptResponse(),
			skill.Validation{Success: true, Confidence: 8, Description: "output matches"},
		}}
		engine, _, conf := newTestEngine(t, chat, nil)

		artifact, err := engine.Create(ctx, "greet someone by name")
		require.NoError(t, err)
		require.Equal(t, "greet_valid_conf8.sh", filepath.Base(artifact.Path))
		require.FileExists(t, artifact.Path)

		// The fence was stripped and the shebang stayed on line one.
		data, err := os.ReadFile(artifact.Path)
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(string(data), "#!/bin/sh\n"))
		require.NotContains(t, string(data), "```")

		require.FileExists(t, filepath.Join(conf.BoneyardDir, "greet.sh"))
	})

	t.Run("retries once when required fields are missing", func(t *testing.T) {
		chat := &queueChat{responses: []any{
			skill.ScriptResponse{ScriptName: "greet"}, // no script
			scriptResponse(),
			skill.Validation{Success: true, Confidence: 7, Description: "ok"},
		}}
		engine, _, _ := newTestEngine(t, chat, nil)

		artifact, err := engine.Create(ctx, "greet someone by name")
		require.NoError(t, err)
		require.Equal(t, 3, chat.calls)
		require.True(t, artifact.Promoted())
	})

	t.Run("failed validation leaves the draft in place", func(t *testing.T) {
		chat := &queueChat{responses: []any{
			scriptResponse(),
			skill.Validation{Success: false, Confidence: 2, Error: "wrong output"},
		}}
		engine, _, conf := newTestEngine(t, chat, nil)

		artifact, err := engine.Create(ctx, "greet someone by name")
		require.Error(t, err)
		require.NotNil(t, artifact)
		require.False(t, artifact.Promoted())
		require.FileExists(t, filepath.Join(conf.SkillsDir, "greet.sh"))
	})
}

func TestFix(t *testing.T) {
	ctx := context.Background()

	fixed := skill.ScriptResponse{
		ScriptName: "greet",
		Script:     "#!/bin/sh\necho \"hi $1\"",
	}
	chat := &queueChat{responses: []any{fixed}}
	engine, repo, _ := newTestEngine(t, chat, nil)

	original, err := repo.Write("greet", ".sh", "#!/bin/sh\necho \"helo $1\"", greetMeta())
	require.NoError(t, err)
	before, err := os.ReadFile(original.Path)
	require.NoError(t, err)

	artifact, err := engine.Fix(ctx, "greet", "greeting is misspelled", nil)
	require.NoError(t, err)
	require.Equal(t, "greet_fixed.sh", filepath.Base(artifact.Path))
	require.Contains(t, artifact.Script, "hi $1")

	// The original is never mutated.
	after, err := os.ReadFile(original.Path)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestListFunctions(t *testing.T) {
	engine, repo, _ := newTestEngine(t, &queueChat{}, nil)

	draft, err := repo.Write("greet", ".sh", "#!/bin/sh\necho hello", greetMeta())
	require.NoError(t, err)
	_, err = repo.Promote(draft, 8)
	require.NoError(t, err)

	functions, err := engine.ListFunctions(context.Background())
	require.NoError(t, err)
	require.Len(t, functions, 1)
	require.Equal(t, "greet", functions[0].Name)
	require.Equal(t, "prints a greeting", functions[0].Description)
	require.True(t, functions[0].Promoted)
	require.Len(t, functions[0].Parameters, 1)
}
