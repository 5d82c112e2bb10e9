package docs

import (
	"context"
	"fmt"
	"strings"

	"github.com/arc-components/arcci/internal/script"
)

// DefaultGroup is used when the analysis does not declare a group.
const DefaultGroup = "ApiElements"

// Analysis is the documentation collaborator's output: an opaque docs
// payload for the catalog plus the component's declared group.
type Analysis struct {
	Docs  string
	Group string
}

// Analyzer produces a documentation payload from component source. The
// analysis engine itself is an external collaborator; only this contract
// belongs to the pipeline.
type Analyzer interface {
	Analyze(ctx context.Context, componentDir, componentName string) (Analysis, error)
}

// ScriptAnalyzer shells out to an analysis tool that prints the docs
// payload on stdout. The first output line may declare the component group
// as "group: <name>"; the remainder is the payload.
type ScriptAnalyzer struct {
	runner *script.Runner
	path   string
}

func NewScriptAnalyzer(runner *script.Runner, path string) *ScriptAnalyzer {
	return &ScriptAnalyzer{runner: runner, path: path}
}

func (a *ScriptAnalyzer) Analyze(ctx context.Context, componentDir, componentName string) (Analysis, error) {
	out, err := a.runner.Output(ctx, a.path, []string{componentDir, componentName}, "analyze")
	if err != nil {
		return Analysis{}, fmt.Errorf("analyze %s: %w", componentName, err)
	}
	return parseAnalysisOutput(string(out)), nil
}

func parseAnalysisOutput(out string) Analysis {
	a := Analysis{Group: DefaultGroup}
	body := out
	if line, rest, found := strings.Cut(out, "\n"); found || line != "" {
		if g, ok := strings.CutPrefix(strings.TrimSpace(line), "group:"); ok {
			a.Group = strings.TrimSpace(g)
			body = rest
		}
	}
	a.Docs = strings.TrimSpace(body)
	return a
}
