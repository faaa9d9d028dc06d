package engine

import (
	"context"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/lorelabs/loreengine/ai"
	"github.com/lorelabs/loreengine/errors"
)

// Knowledge is the structured result of analyzing one chunk of source
// material.
type Knowledge struct {
	Content       string   `json:"content" jsonschema_description:"Concise restatement of the chunk's key information"`
	Topics        []string `json:"topics" jsonschema_description:"Short topic labels for retrieval"`
	Importance    int      `json:"importance" jsonschema:"minimum=1,maximum=10" jsonschema_description:"How valuable this knowledge is, 1-10"`
	Context       string   `json:"context" jsonschema_description:"One sentence of surrounding context"`
	ReferenceFile string   `json:"referenceFile,omitempty" jsonschema_description:"File or resource the knowledge refers to, if any"`
}

var analyzePrompt = template.Must(template.New("analyze").Funcs(sprig.FuncMap()).Parse(strings.TrimSpace(`
Analyze the following content from {{ .Source }} and extract the knowledge it
contains. Restate the key information concisely, label it with topics, rate
its importance, and note any file or resource it refers to.

Content:
{{ .Text }}
`)))

// analyze runs the content-analysis call. Text is truncated to the
// configured limit before it reaches the model.
func (e *Engine) analyze(ctx context.Context, source, text string) (*Knowledge, error) {
	if max := e.conf.MaxAnalyzeChars; max > 0 && len(text) > max {
		text = text[:max]
	}

	var prompt strings.Builder
	if err := analyzePrompt.Execute(&prompt, map[string]string{
		"Source": source,
		"Text":   text,
	}); err != nil {
		return nil, errors.Wrapf(err, "failed to render analysis prompt")
	}

	k, err := ai.Generate[Knowledge](ctx, e.chat, []ai.Message{
		ai.SystemMessage("You extract structured knowledge from documents."),
		ai.UserMessage(prompt.String()),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "content analysis failed for %s", source)
	}
	if k.Content == "" {
		return nil, errors.Errorf("content analysis returned empty content for %s", source)
	}

	return k, nil
}
