// Package templates renders the markdown documents NeuroDock produces:
// the finalized-specification summary persisted when a discussion
// completes, and the task plan document emitted by the compiler.
//
// Templates are embedded so the binary is self-contained.
package templates

import (
	"embed"
	"fmt"
	"path"
	"strings"
	"text/template"
)

//go:embed files/*.md.tmpl
var files embed.FS

// Template identifies one of the embedded documents.
type Template string

const (
	FinalSpec Template = "final_spec"
	TaskPlan  Template = "task_plan"
)

// QA is one question/answer row in the finalized specification.
type QA struct {
	Question string
	Answer   string
}

// FinalSpecData feeds the finalized-specification template.
type FinalSpecData struct {
	Project     string
	Prompt      string
	Iterations  int
	Pairs       []QA
	FinalizedAt string
}

// TaskRow is one task in the rendered plan.
type TaskRow struct {
	ID                 string
	Description        string
	Complexity         int
	DependsOn          []string
	NeedsDecomposition bool
}

// TaskPlanData feeds the task-plan template.
type TaskPlanData struct {
	Project     string
	SessionID   string
	GeneratedAt string
	Tasks       []TaskRow
}

// Renderer renders an embedded template with its data. Abstracted so
// consumers can be tested with a stub renderer.
type Renderer interface {
	Render(t Template, data any) (string, error)
}

// fsRenderer is the embed-backed Renderer.
type fsRenderer struct {
	templates map[Template]*template.Template
	roots     map[Template]string
}

// NewRenderer parses the embedded templates once, up front, so a broken
// template fails at startup rather than mid-discussion.
func NewRenderer() (Renderer, error) {
	names := map[Template]string{
		FinalSpec: "files/final_spec.md.tmpl",
		TaskPlan:  "files/task_plan.md.tmpl",
	}

	funcs := template.FuncMap{
		"join": strings.Join,
	}

	parsed := make(map[Template]*template.Template, len(names))
	roots := make(map[Template]string, len(names))
	for key, filePath := range names {
		t, err := template.New(string(key)).Funcs(funcs).ParseFS(files, filePath)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", filePath, err)
		}
		parsed[key] = t
		roots[key] = path.Base(filePath)
	}
	return &fsRenderer{templates: parsed, roots: roots}, nil
}

// Render executes the named template.
func (r *fsRenderer) Render(t Template, data any) (string, error) {
	tmpl, ok := r.templates[t]
	if !ok {
		return "", fmt.Errorf("unknown template %q", t)
	}

	var sb strings.Builder
	if err := tmpl.ExecuteTemplate(&sb, r.roots[t], data); err != nil {
		return "", fmt.Errorf("rendering template %q: %w", t, err)
	}
	return sb.String(), nil
}
