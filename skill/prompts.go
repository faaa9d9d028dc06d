package skill

import (
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/lorelabs/loreengine/errors"
)

var (
	writerPrompt = mustPrompt("writer", `
Write a small standalone script that accomplishes this objective:

{{ .Objective }}

Rules:
- Write the script in POSIX shell or Python 3.
- The script must read its inputs as positional command-line arguments, in
  the order you declare them.
- Print the result to stdout, preferably as JSON. Print errors to stderr and
  exit non-zero.
- Do not prompt for input or wait on anything interactive.
{{- if .SecretNames }}
- These secrets are available as environment variables (values are injected
  at run time, never shown here): {{ .SecretNames | join ", " }}.
{{- end }}

Provide a short snake_case scriptName, a one-line description, the declared
inputs in order, the full script source, a list of outputs it produces, and
exampleParams with a realistic value for every input.
`)

	validatorPrompt = mustPrompt("validator", `
A script named {{ .Name }} was written for this purpose:

{{ .Description }}

It was executed with its example parameters and produced this output:

{{ .Output }}

Judge whether the output shows the script working as intended. Respond with
success, a confidence from 1 (certain failure) to 10 (certain success), a
one-line description of your judgement, and an error field when it failed.
`)

	fixerPrompt = mustPrompt("fixer", `
The script below has a problem:

{{ .Issue }}

{{- if .Detail }}

Additional detail:
{{ .Detail }}
{{- end }}

Current source:
{{ .Script }}

Rewrite the script to fix the problem. Keep the same inputs, in the same
order, and the same output format. Return the complete corrected source.
`)
)

func mustPrompt(name, text string) *template.Template {
	return template.Must(template.New(name).Funcs(sprig.FuncMap()).Parse(strings.TrimSpace(text)))
}

func renderPrompt(t *template.Template, data any) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", errors.Wrapf(err, "failed to render %s prompt", t.Name())
	}
	return b.String(), nil
}

// stripFences removes a wrapping markdown code fence, with or without a
// language tag. Models add them despite instructions.
func stripFences(script string) string {
	s := strings.TrimSpace(script)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		s = s[idx+1:]
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
