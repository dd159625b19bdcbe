// Package prompt builds the task description handed to the coding agent
// for one feature session.
package prompt

import (
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/drover-dev/drover/internal/config"
	"github.com/drover-dev/drover/internal/feature"
)

const featureTemplate = `You are implementing a single feature for this project. Follow these instructions precisely.

## Your Task

Implement Feature {{.FeatureID}}: {{.FeatureTitle}}
{{- if .Description}}

{{.Description}}
{{- end}}
{{- if .Steps}}

### Implementation Steps
{{.Steps}}
{{- end}}

## Protocol

1. **Orientation**: Run ` + "`pwd`" + ` to confirm the working directory. Check ` + "`git log --oneline -5`" + ` for recent context.{{.InitInstruction}}
2. **Read project state**: Read the progress file at ` + "`{{.ProgressFile}}`" + ` for context on recent work.
3. **Implement**: Work through the implementation steps above. Use the project's existing patterns and conventions.
4. **Verify**: Verify the feature works as expected. Run the project's build command to confirm no errors.{{.ToolInstruction}}
5. **STOP**: Print a short completion summary. Do NOT continue to the next feature. One feature per session.

## If You Get Stuck

- If you encounter a bug that breaks existing functionality, revert your changes and try a different approach.
- If you cannot complete the feature after reasonable effort, explain what went wrong and stop.

## Important Rules

- Work on exactly ONE feature, then stop.
- Never remove or edit feature descriptions -- only implement them.
- Leave the working tree with your changes in place; the orchestrator commits them.
`

var tmpl = template.Must(template.New("feature").Parse(featureTemplate))

type templateData struct {
	FeatureID       string
	FeatureTitle    string
	Description     string
	Steps           string
	InitInstruction string
	ToolInstruction string
	ProgressFile    string
}

// Build renders the full prompt for a feature worker session.
func Build(f *feature.Feature, cfg *config.Config) (string, error) {
	var steps strings.Builder
	for i, step := range f.Steps {
		fmt.Fprintf(&steps, "  %d. %s\n", i+1, step)
	}

	initInstruction := ""
	if cfg.InitScript != "" {
		initInstruction = fmt.Sprintf(
			" Run `%s` to start any required services (dev server, etc.).", cfg.InitScript)
	}

	toolInstruction := ""
	if len(cfg.ToolServers) > 0 {
		names := make([]string, 0, len(cfg.ToolServers))
		for name := range cfg.ToolServers {
			names = append(names, name)
		}
		sort.Strings(names)
		toolInstruction = fmt.Sprintf(
			" The following tool servers are available for verification: %s.",
			strings.Join(names, ", "))
	}

	var b strings.Builder
	err := tmpl.Execute(&b, templateData{
		FeatureID:       f.ID,
		FeatureTitle:    f.Title,
		Description:     f.Description,
		Steps:           strings.TrimRight(steps.String(), "\n"),
		InitInstruction: initInstruction,
		ToolInstruction: toolInstruction,
		ProgressFile:    cfg.ProgressFile,
	})
	if err != nil {
		return "", fmt.Errorf("render feature prompt: %w", err)
	}

	return b.String(), nil
}
