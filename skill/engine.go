package skill

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"log/slog"

	"github.com/lorelabs/loreengine/ai"
	"github.com/lorelabs/loreengine/config"
	"github.com/lorelabs/loreengine/errors"
	"github.com/lorelabs/loreengine/store"
	"github.com/mokiat/gog"
	"github.com/samber/lo"
)

type (
	// ScriptResponse is the schema contract for the script-writer call.
	ScriptResponse struct {
		ScriptName    string         `json:"scriptName" jsonschema_description:"Short snake_case name for the script"`
		Description   string         `json:"description" jsonschema_description:"One-line description of what the script does"`
		Inputs        []Input        `json:"inputs" jsonschema_description:"Declared inputs, in positional argument order"`
		Script        string         `json:"script" jsonschema_description:"Complete script source"`
		Outputs       []string       `json:"outputs" jsonschema_description:"What the script prints on success"`
		ExampleParams map[string]any `json:"exampleParams" jsonschema_description:"Realistic value for every declared input"`
	}

	// Validation is the schema contract for the validator call.
	Validation struct {
		Success     bool   `json:"success"`
		Confidence  int    `json:"confidence" jsonschema:"minimum=1,maximum=10"`
		Description string `json:"description"`
		Error       string `json:"error,omitempty"`
	}

	// Result is the classified outcome of one skill execution.
	Result struct {
		Output   string        `json:"output"`
		Stderr   string        `json:"stderr,omitempty"`
		Duration time.Duration `json:"duration"`
	}

	// Function is one skill summarized for tool export.
	Function struct {
		Name        string  `json:"name"`
		Description string  `json:"description"`
		Parameters  []Input `json:"parameters"`
		Promoted    bool    `json:"promoted"`
	}

	// Engine drives the skill lifecycle: generate, run, validate, promote.
	Engine struct {
		conf   *config.SkillConfig
		chat   ai.ChatClient
		kv     store.KV
		repo   Repository
		logger *slog.Logger
	}
)

func NewEngine(conf *config.SkillConfig, chat ai.ChatClient, kv store.KV, repo Repository, logger *slog.Logger) *Engine {
	return &Engine{
		conf:   conf,
		chat:   chat,
		kv:     kv,
		repo:   repo,
		logger: logger,
	}
}

// Create generates a script for the objective, self-tests it with its
// example parameters, validates the output, and promotes the artifact on
// success. On a failed self-test or validation the draft stays on disk for
// later repair.
func (e *Engine) Create(ctx context.Context, objective string) (*Artifact, error) {
	if objective == "" {
		return nil, errors.Wrapf(errors.ErrInvalidParams, "objective is required")
	}

	secretNames, err := e.secretNames(ctx)
	if err != nil {
		return nil, err
	}

	prompt, err := renderPrompt(writerPrompt, map[string]any{
		"Objective":   objective,
		"SecretNames": secretNames,
	})
	if err != nil {
		return nil, err
	}

	messages := []ai.Message{
		ai.SystemMessage("You write small, reliable scripts."),
		ai.UserMessage(prompt),
	}

	resp, err := ai.Generate[ScriptResponse](ctx, e.chat, messages)
	if err == nil {
		err = checkScriptResponse(resp)
	}
	if err != nil {
		// One corrective retry before giving up on the objective.
		e.logger.Warn("script generation incomplete, retrying", "err", err)
		messages = append(messages,
			ai.UserMessage("The previous response was incomplete: "+err.Error()+". Respond again with every required field filled in."))
		resp, err = ai.Generate[ScriptResponse](ctx, e.chat, messages)
		if err == nil {
			err = checkScriptResponse(resp)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "script generation failed")
		}
	}

	script := stripFences(resp.Script)
	meta := Metadata{
		Name:          resp.ScriptName,
		Description:   resp.Description,
		Inputs:        resp.Inputs,
		Outputs:       resp.Outputs,
		ExampleParams: resp.ExampleParams,
		CreatedAt:     time.Now().UnixMilli(),
	}

	artifact, err := e.repo.Write(resp.ScriptName, scriptExt(script), script, meta)
	if err != nil {
		return nil, err
	}
	e.logger.Info("skill drafted", "name", artifact.Name, "path", artifact.Path)

	result, err := e.Perform(ctx, artifact.Name, resp.ExampleParams)
	if err != nil {
		return artifact, errors.Wrapf(err, "self-test failed for %s", artifact.Name)
	}

	validation, err := e.Validate(ctx, artifact.Name, result.Output)
	if err != nil {
		return artifact, err
	}
	if !validation.Success {
		return artifact, errors.Errorf("validation failed for %s: %s", artifact.Name, validation.Error)
	}

	promoted, err := e.repo.Promote(artifact, validation.Confidence)
	if err != nil {
		return artifact, err
	}

	e.logger.Info("skill promoted", "name", promoted.Name, "confidence", validation.Confidence)
	return promoted, nil
}

// Perform executes a skill with the given inputs mapped to positional
// arguments in declared order. The subprocess runs under the configured
// timeout and sees only the process environment plus resolved secrets.
func (e *Engine) Perform(ctx context.Context, name string, inputs map[string]any) (*Result, error) {
	artifact, err := e.repo.Find(name)
	if err != nil {
		return nil, err
	}

	args := make([]string, 0, len(artifact.Metadata.Inputs))
	for _, input := range artifact.Metadata.Inputs {
		value, ok := inputs[input.Name]
		if !ok {
			return nil, errors.Wrapf(errors.ErrInvalidParams, "missing input %q for skill %s", input.Name, name)
		}
		args = append(args, fmt.Sprint(value))
	}

	env, err := e.execEnv(ctx)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(ctx, e.conf.ExecTimeout)
	defer cancel()

	interpreter, cmdArgs := commandFor(artifact.Path, args)
	cmd := exec.CommandContext(runCtx, interpreter, cmdArgs...)
	cmd.Env = env

	// The deadline must kill the script's children too, not just the
	// interpreter: the run gets its own process group and the whole group
	// is signalled on cancel. WaitDelay unblocks Wait when a surviving
	// child still holds the output pipes open.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	if runCtx.Err() == context.DeadlineExceeded {
		return nil, errors.Wrapf(errors.ErrTimeout, "skill %s exceeded %s", name, e.conf.ExecTimeout)
	}
	if runErr != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = runErr.Error()
		}
		return nil, errors.Errorf("skill %s failed: %s", name, msg)
	}

	result := &Result{
		Stderr:   strings.TrimSpace(stderr.String()),
		Duration: duration,
	}
	switch out := strings.TrimSpace(stdout.String()); {
	case out != "":
		result.Output = prettyJSON(out)
	case result.Stderr != "":
		result.Output = result.Stderr
	default:
		result.Output = "no output"
	}

	return result, nil
}

// Validate judges one execution output against the skill's purpose. A
// malformed validator response passes leniently with a default confidence
// when the policy allows it.
func (e *Engine) Validate(ctx context.Context, name, output string) (*Validation, error) {
	artifact, err := e.repo.Find(name)
	if err != nil {
		return nil, err
	}

	prompt, err := renderPrompt(validatorPrompt, map[string]string{
		"Name":        name,
		"Description": artifact.Metadata.Description,
		"Output":      output,
	})
	if err != nil {
		return nil, err
	}

	validation, err := ai.Generate[Validation](ctx, e.chat, []ai.Message{
		ai.SystemMessage("You judge whether script output shows the script working."),
		ai.UserMessage(prompt),
	})
	if err != nil {
		if !e.conf.LenientValidation {
			return nil, errors.Wrapf(err, "validation call failed for %s", name)
		}
		e.logger.Warn("validator response malformed, passing leniently", "name", name, "err", err)
		return &Validation{
			Success:     true,
			Confidence:  6,
			Description: "lenient pass: validator response was malformed",
		}, nil
	}

	if validation.Confidence < 1 {
		validation.Confidence = 1
	}
	if validation.Confidence > 10 {
		validation.Confidence = 10
	}
	return validation, nil
}

// Fix asks the model to repair a skill and persists the corrected script
// under a _fixed name. The original artifact is never mutated.
func (e *Engine) Fix(ctx context.Context, name, issue string, detail any) (*Artifact, error) {
	artifact, err := e.repo.Find(name)
	if err != nil {
		return nil, err
	}

	var detailText string
	if detail != nil {
		if data, err := json.MarshalIndent(detail, "", "  "); err == nil {
			detailText = string(data)
		} else {
			detailText = fmt.Sprint(detail)
		}
	}

	prompt, err := renderPrompt(fixerPrompt, map[string]string{
		"Issue":  issue,
		"Detail": detailText,
		"Script": artifact.Script,
	})
	if err != nil {
		return nil, err
	}

	resp, err := ai.Generate[ScriptResponse](ctx, e.chat, []ai.Message{
		ai.SystemMessage("You repair scripts without changing their interface."),
		ai.UserMessage(prompt),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "fix generation failed for %s", name)
	}
	script := stripFences(resp.Script)
	if script == "" {
		return nil, errors.Errorf("fix generation returned an empty script for %s", name)
	}

	meta := artifact.Metadata
	meta.Name = artifact.Metadata.Name + fixedSuffix
	meta.CreatedAt = time.Now().UnixMilli()

	fixed, err := e.repo.Write(meta.Name, filepath.Ext(artifact.Path), script, meta)
	if err != nil {
		return nil, err
	}

	e.logger.Info("skill repaired", "name", name, "fixed", fixed.Path)
	return fixed, nil
}

// List enumerates all artifacts with parsed metadata.
func (e *Engine) List(ctx context.Context) ([]*Artifact, error) {
	return e.repo.List()
}

// ListFunctions summarizes every skill for tool export.
func (e *Engine) ListFunctions(ctx context.Context) ([]Function, error) {
	artifacts, err := e.repo.List()
	if err != nil {
		return nil, err
	}

	return lo.Map(artifacts, func(a *Artifact, _ int) Function {
		return Function{
			Name:        a.Metadata.Name,
			Description: a.Metadata.Description,
			Parameters:  a.Metadata.Inputs,
			Promoted:    a.Promoted(),
		}
	}), nil
}

// Metadata returns the parsed metadata of one skill.
func (e *Engine) Metadata(name string) (*Metadata, error) {
	artifact, err := e.repo.Find(name)
	if err != nil {
		return nil, err
	}
	return &artifact.Metadata, nil
}

// Clear empties the skills directory. Boneyard copies survive.
func (e *Engine) Clear(ctx context.Context) error {
	return e.repo.Clear()
}

// secretNames is the whitelist shown to the script-writer: configured names
// plus the names (never the values) of stored secrets.
func (e *Engine) secretNames(ctx context.Context) ([]string, error) {
	stored, err := e.kv.SecretNames(ctx)
	if err != nil {
		return nil, err
	}
	return lo.Uniq(append(append([]string{}, e.conf.SecretNames...), stored...)), nil
}

// execEnv builds the subprocess environment: the current process env with
// resolved secret values layered on top.
func (e *Engine) execEnv(ctx context.Context) ([]string, error) {
	secrets, err := e.kv.Secrets(ctx)
	if err != nil {
		return nil, err
	}
	for _, name := range e.conf.SecretNames {
		if _, ok := secrets[name]; !ok {
			if value, found := os.LookupEnv(name); found {
				secrets[name] = value
			}
		}
	}

	base := map[string]string{}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			base[k] = v
		}
	}

	merged := gog.Merge(base, secrets)
	env := make([]string, 0, len(merged))
	for k, v := range merged {
		env = append(env, k+"="+v)
	}
	return env, nil
}

func checkScriptResponse(resp *ScriptResponse) error {
	var missing []string
	if resp.ScriptName == "" {
		missing = append(missing, "scriptName")
	}
	if resp.Script == "" {
		missing = append(missing, "script")
	}
	if len(missing) > 0 {
		return errors.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// scriptExt infers the artifact extension from the script's shebang. Only
// languages with #-style comments are supported: the embedded metadata block
// is # comment lines, which would be a syntax error anywhere else.
func scriptExt(script string) string {
	firstLine, _, _ := strings.Cut(script, "\n")
	if strings.HasPrefix(firstLine, "#!") && (strings.Contains(firstLine, "bash") || strings.Contains(firstLine, "/sh")) {
		return ".sh"
	}
	return ".py"
}

func commandFor(path string, args []string) (string, []string) {
	switch filepath.Ext(path) {
	case ".py":
		return "python3", append([]string{path}, args...)
	case ".sh":
		return "sh", append([]string{path}, args...)
	default:
		return path, args
	}
}

func prettyJSON(s string) string {
	if !json.Valid([]byte(s)) {
		return s
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(s), "", "  "); err != nil {
		return s
	}
	return buf.String()
}
