package planner_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/barnent1/neuro-dock-sub000/internal/discussion"
	"github.com/barnent1/neuro-dock-sub000/internal/planner"
	"github.com/barnent1/neuro-dock-sub000/internal/templates"
)

func newCompiler(t *testing.T) *planner.Compiler {
	t.Helper()
	renderer, err := templates.NewRenderer()
	if err != nil {
		t.Fatalf("creating renderer: %v", err)
	}
	return planner.New(renderer)
}

// readySession builds a finalized session with n answered questions.
func readySession(answers ...string) *discussion.Session {
	questions := make([]discussion.Question, len(answers))
	answerMap := make(map[string]string, len(answers))
	for i := range answers {
		id := discussion.QuestionID(0, i+1)
		questions[i] = discussion.Question{ID: id, Text: "What about area " + id + "?"}
		answerMap[id] = answers[i]
	}
	s := &discussion.Session{
		ID:            "sess-1",
		ProjectRef:    "proj",
		Status:        discussion.StatusReadyForPlanning,
		Iteration:     0,
		InitialPrompt: "a task tracker for small teams",
		History: []discussion.Turn{
			{Kind: discussion.KindQuestionBatch, Questions: questions},
			{Kind: discussion.KindAnswerBatch, Answers: answerMap},
		},
	}
	s.Reconcile()
	return s
}

// ─── Compile ────────────────────────────────────────────────────────────────

func TestCompile_Preconditions(t *testing.T) {
	c := newCompiler(t)

	if _, err := c.Compile(nil); !discussion.IsValidation(err) {
		t.Errorf("nil session: err = %v, want validation", err)
	}

	s := readySession("a", "b")
	s.Status = discussion.StatusQuestionsPending
	if _, err := c.Compile(s); !discussion.IsState(err) {
		t.Errorf("unfinished session: err = %v, want state", err)
	}
}

func TestCompile_StructureAndOrdering(t *testing.T) {
	c := newCompiler(t)
	plan, err := c.Compile(readySession("email login with roles", "store tasks in a database"))
	if err != nil {
		t.Fatalf("Compile error: %v", err)
	}

	// Scaffold + one task per answered pair + verification.
	if len(plan.Tasks) != 4 {
		t.Fatalf("tasks = %d, want 4", len(plan.Tasks))
	}
	if plan.SessionID != "sess-1" || plan.ProjectRef != "proj" {
		t.Errorf("plan refs = %q/%q", plan.SessionID, plan.ProjectRef)
	}

	first := plan.Tasks[0]
	if len(first.DependsOn) != 0 {
		t.Errorf("scaffold task depends on %v, want nothing", first.DependsOn)
	}
	if !strings.Contains(first.Description, "a task tracker for small teams") {
		t.Errorf("scaffold description = %q, want the initial prompt", first.Description)
	}

	// Strictly sequential dependency chain.
	for i := 1; i < len(plan.Tasks); i++ {
		deps := plan.Tasks[i].DependsOn
		if len(deps) != 1 || deps[0] != plan.Tasks[i-1].ID {
			t.Errorf("task %s depends on %v, want [%s]", plan.Tasks[i].ID, deps, plan.Tasks[i-1].ID)
		}
	}

	for _, task := range plan.Tasks {
		if task.Complexity < 1 || task.Complexity > 10 {
			t.Errorf("task %s complexity = %d, out of 1..10", task.ID, task.Complexity)
		}
	}
}

func TestCompile_Deterministic(t *testing.T) {
	c := newCompiler(t)
	s := readySession("email login", "postgres storage", "no integrations")

	first, err := c.Compile(s)
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.Compile(s)
	if err != nil {
		t.Fatal(err)
	}
	if len(first.Tasks) != len(second.Tasks) {
		t.Fatalf("task counts differ: %d vs %d", len(first.Tasks), len(second.Tasks))
	}
	for i := range first.Tasks {
		a, b := first.Tasks[i], second.Tasks[i]
		if a.ID != b.ID || a.Description != b.Description || a.Complexity != b.Complexity {
			t.Errorf("task %d differs: %+v vs %+v", i, a, b)
		}
	}
}

func TestCompile_ComplexAnswerFlagged(t *testing.T) {
	c := newCompiler(t)
	// Dense technical answer with multi-step phrasing: should score at the
	// decomposition threshold.
	answer := "first, build the api with authentication and a database schema, " +
		"then add realtime sync over websocket and a cache, then wire the search " +
		"and queue integration, and finally deploy with migration support and " +
		"concurrent transaction handling across the distributed protocol layer"
	plan, err := c.Compile(readySession(answer))
	if err != nil {
		t.Fatal(err)
	}

	flagged := false
	for _, task := range plan.Tasks {
		if task.NeedsDecomposition {
			flagged = true
			if task.Complexity < 7 {
				t.Errorf("task %s flagged at complexity %d", task.ID, task.Complexity)
			}
		}
	}
	if !flagged {
		t.Error("no task flagged for decomposition")
	}
}

func TestCompile_SimpleAnswersNotFlagged(t *testing.T) {
	c := newCompiler(t)
	plan, err := c.Compile(readySession("just me", "plain text files"))
	if err != nil {
		t.Fatal(err)
	}
	for _, task := range plan.Tasks {
		if task.NeedsDecomposition {
			t.Errorf("task %s flagged for decomposition: %q (complexity %d)",
				task.ID, task.Description, task.Complexity)
		}
	}
}

func TestCompile_MultiByteAnswerTruncatesCleanly(t *testing.T) {
	c := newCompiler(t)
	// A long unbroken run of three-byte runes puts the truncation point
	// mid-rune by byte count, with no space to fall back to.
	plan, err := c.Compile(readySession(strings.Repeat("要", 100)))
	if err != nil {
		t.Fatal(err)
	}

	for _, task := range plan.Tasks {
		if !utf8.ValidString(task.Description) {
			t.Errorf("task %s description is not valid UTF-8: %q", task.ID, task.Description)
		}
	}
}

// ─── Decompose ──────────────────────────────────────────────────────────────

func TestDecompose_SplitsOnSequenceMarkers(t *testing.T) {
	c := newCompiler(t)
	task := planner.Task{
		ID:          "t2",
		Description: "Build the ingestion service. Then wire the storage layer. Then expose the query api",
		Complexity:  8,
		DependsOn:   []string{"t1"},
	}

	subs := c.Decompose(task)
	if len(subs) != 3 {
		t.Fatalf("subtasks = %d, want 3", len(subs))
	}
	if subs[0].ID != "t2.1" || subs[1].ID != "t2.2" || subs[2].ID != "t2.3" {
		t.Errorf("subtask IDs = %s, %s, %s", subs[0].ID, subs[1].ID, subs[2].ID)
	}

	// The first subtask inherits the parent's dependencies; the rest chain.
	if len(subs[0].DependsOn) != 1 || subs[0].DependsOn[0] != "t1" {
		t.Errorf("first subtask depends on %v, want [t1]", subs[0].DependsOn)
	}
	if len(subs[1].DependsOn) != 1 || subs[1].DependsOn[0] != "t2.1" {
		t.Errorf("second subtask depends on %v, want [t2.1]", subs[1].DependsOn)
	}
}

func TestDecompose_AtomicTaskFallsBack(t *testing.T) {
	c := newCompiler(t)
	task := planner.Task{ID: "t3", Description: "Implement encrypted realtime sync", Complexity: 7}

	subs := c.Decompose(task)
	if len(subs) != 2 {
		t.Fatalf("subtasks = %d, want the design/implement pair", len(subs))
	}
	for _, st := range subs {
		if !strings.Contains(st.Description, "Implement encrypted realtime sync") {
			t.Errorf("subtask %s lost the parent description: %q", st.ID, st.Description)
		}
	}
}

// ─── RenderMarkdown ─────────────────────────────────────────────────────────

func TestRenderMarkdown(t *testing.T) {
	c := newCompiler(t)
	plan, err := c.Compile(readySession("email login", "postgres storage"))
	if err != nil {
		t.Fatal(err)
	}

	doc, err := c.RenderMarkdown(plan)
	if err != nil {
		t.Fatalf("RenderMarkdown error: %v", err)
	}
	if !strings.Contains(doc, "proj") {
		t.Error("rendered plan missing the project ref")
	}
	for _, task := range plan.Tasks {
		if !strings.Contains(doc, task.ID) {
			t.Errorf("rendered plan missing task %s", task.ID)
		}
	}
}
