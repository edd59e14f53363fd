package templates_test

import (
	"strings"
	"testing"

	"github.com/barnent1/neuro-dock-sub000/internal/templates"
)

func newRenderer(t *testing.T) templates.Renderer {
	t.Helper()
	r, err := templates.NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer error: %v", err)
	}
	return r
}

func TestRender_FinalSpec(t *testing.T) {
	r := newRenderer(t)

	out, err := r.Render(templates.FinalSpec, templates.FinalSpecData{
		Project:    "taskr",
		Prompt:     "a task tracker",
		Iterations: 3,
		Pairs: []templates.QA{
			{Question: "Who are the users?", Answer: "Small teams."},
			{Question: "What data is stored?", Answer: "Tasks and comments."},
		},
		FinalizedAt: "2025-06-01T12:00:00Z",
	})
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}

	for _, want := range []string{"taskr", "a task tracker", "Who are the users?", "Small teams.", "Tasks and comments."} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered spec missing %q", want)
		}
	}
}

func TestRender_TaskPlan(t *testing.T) {
	r := newRenderer(t)

	out, err := r.Render(templates.TaskPlan, templates.TaskPlanData{
		Project:     "taskr",
		SessionID:   "sess-1",
		GeneratedAt: "2025-06-01T12:00:00Z",
		Tasks: []templates.TaskRow{
			{ID: "t1", Description: "Set up the skeleton", Complexity: 2},
			{ID: "t2", Description: "Implement auth", Complexity: 8, DependsOn: []string{"t1"}, NeedsDecomposition: true},
		},
	})
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}

	if !strings.Contains(out, "| t2 |") {
		t.Error("rendered plan missing the t2 row")
	}
	if !strings.Contains(out, "needs decomposition") {
		t.Error("rendered plan missing the decomposition flag")
	}
	if !strings.Contains(out, "t1") {
		t.Error("rendered plan missing the dependency reference")
	}
}

func TestRender_UnknownTemplate(t *testing.T) {
	r := newRenderer(t)
	if _, err := r.Render(templates.Template("nope"), nil); err == nil {
		t.Fatal("unknown template: want error")
	}
}
