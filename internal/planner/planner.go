// Package planner compiles a finalized discussion into a structured,
// dependency-ordered task plan.
//
// Complexity scoring is a pure function of text heuristics (length,
// technical-keyword density, multi-step language), so compilation is
// deterministic given identical input and testable without any model.
// Tasks scoring 7+ are flagged for decomposition but never auto-expanded;
// Decompose is a separate, explicitly invoked operation.
package planner

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/barnent1/neuro-dock-sub000/internal/discussion"
	"github.com/barnent1/neuro-dock-sub000/internal/templates"
)

// decompositionThreshold is the complexity at or above which a task is
// flagged as needing decomposition.
const decompositionThreshold = 7

// maxDescriptionLen bounds task descriptions derived from free-form
// answers, truncated at a word boundary.
const maxDescriptionLen = 140

// Task is one unit of work in a compiled plan.
type Task struct {
	ID                 string   `json:"id"`
	Description        string   `json:"description"`
	Complexity         int      `json:"complexity"` // 1..10
	DependsOn          []string `json:"depends_on,omitempty"`
	NeedsDecomposition bool     `json:"needs_decomposition"`
}

// TaskPlan is the ordered output of compiling a finalized session.
type TaskPlan struct {
	SessionID   string `json:"session_id"`
	ProjectRef  string `json:"project_ref"`
	GeneratedAt string `json:"generated_at"`
	Tasks       []Task `json:"tasks"`
}

// Compiler turns finalized sessions into task plans.
type Compiler struct {
	renderer templates.Renderer
}

// New creates a Compiler.
func New(renderer templates.Renderer) *Compiler {
	return &Compiler{renderer: renderer}
}

// Compile builds the task plan for a session. Precondition: the session
// must be ready_for_planning; compiling an unfinished discussion is a
// state error, not a best-effort guess.
func (c *Compiler) Compile(s *discussion.Session) (*TaskPlan, error) {
	if s == nil {
		return nil, discussion.NewError(discussion.KindValidation, "session is required")
	}
	if s.Status != discussion.StatusReadyForPlanning {
		return nil, discussion.NewError(discussion.KindState,
			"session %s is %s; plans can only be compiled from ready_for_planning", s.ID, s.Status)
	}

	plan := &TaskPlan{
		SessionID:   s.ID,
		ProjectRef:  s.ProjectRef,
		GeneratedAt: now(),
	}

	scaffold := newTask(len(plan.Tasks)+1, "Set up the project skeleton for: "+shorten(s.InitialPrompt), nil)
	plan.Tasks = append(plan.Tasks, scaffold)

	prev := scaffold.ID
	for _, pair := range s.AnsweredPairs() {
		desc := taskDescription(pair)
		t := newTask(len(plan.Tasks)+1, desc, []string{prev})
		plan.Tasks = append(plan.Tasks, t)
		prev = t.ID
	}

	verify := newTask(len(plan.Tasks)+1,
		"Verify the delivered behavior against the finalized specification", []string{prev})
	plan.Tasks = append(plan.Tasks, verify)

	return plan, nil
}

// Decompose splits one flagged task into smaller sequential subtasks. It
// works on any task but is intended for those with NeedsDecomposition set.
func (c *Compiler) Decompose(t Task) []Task {
	steps := splitSteps(t.Description)
	if len(steps) < 2 {
		// Nothing structural to split on: fall back to a design/implement
		// pair so the caller still gets smaller units.
		steps = []string{
			"Work out the detailed approach for: " + t.Description,
			"Implement and test: " + t.Description,
		}
	}

	var subtasks []Task
	prev := t.DependsOn
	for i, step := range steps {
		st := Task{
			ID:          fmt.Sprintf("%s.%d", t.ID, i+1),
			Description: shorten(step),
			Complexity:  scoreComplexity(step),
			DependsOn:   prev,
		}
		st.NeedsDecomposition = st.Complexity >= decompositionThreshold
		subtasks = append(subtasks, st)
		prev = []string{st.ID}
	}
	return subtasks
}

// RenderMarkdown renders a plan as the task-plan document.
func (c *Compiler) RenderMarkdown(plan *TaskPlan) (string, error) {
	rows := make([]templates.TaskRow, len(plan.Tasks))
	for i, t := range plan.Tasks {
		rows[i] = templates.TaskRow{
			ID:                 t.ID,
			Description:        t.Description,
			Complexity:         t.Complexity,
			DependsOn:          t.DependsOn,
			NeedsDecomposition: t.NeedsDecomposition,
		}
	}
	return c.renderer.Render(templates.TaskPlan, templates.TaskPlanData{
		Project:     plan.ProjectRef,
		SessionID:   plan.SessionID,
		GeneratedAt: plan.GeneratedAt,
		Tasks:       rows,
	})
}

// --- Task construction ---

func newTask(n int, description string, dependsOn []string) Task {
	t := Task{
		ID:          fmt.Sprintf("t%d", n),
		Description: description,
		Complexity:  scoreComplexity(description),
		DependsOn:   dependsOn,
	}
	t.NeedsDecomposition = t.Complexity >= decompositionThreshold
	return t
}

// taskDescription derives an actionable description from an answered
// question. The question names the concern; the answer carries the
// decision.
func taskDescription(pair discussion.QAPair) string {
	answer := shorten(pair.Answer)
	return fmt.Sprintf("Implement the decision on %s: %s", topicOf(pair.Question.Text), answer)
}

// topicOf compresses a question into a short topic phrase: the question
// text lowercased, stripped of its interrogative lead-in and punctuation.
func topicOf(question string) string {
	s := strings.ToLower(strings.TrimSpace(question))
	s = strings.TrimRight(s, "?.! ")
	for _, lead := range []string{"what are ", "what is ", "what ", "which ", "who ", "how ", "does ", "should ", "are there ", "is ", "do "} {
		if strings.HasPrefix(s, lead) {
			s = strings.TrimPrefix(s, lead)
			break
		}
	}
	if len(s) > 60 {
		s = shortenTo(s, 60)
	}
	if s == "" {
		return "the open question"
	}
	return "\"" + s + "\""
}

// --- Complexity scoring ---

// techKeywords contribute to complexity: each distinct hit suggests a
// moving part the task has to deal with.
var techKeywords = []string{
	"api", "database", "auth", "authentication", "deploy", "integrate",
	"concurrent", "migration", "real-time", "realtime", "search", "cache",
	"queue", "websocket", "encrypt", "sync", "schema", "protocol",
	"distributed", "transaction",
}

// multiStepMarkers signal a task that is really several tasks.
var multiStepMarkers = []string{
	" then ", " after that", " finally", " first,", " second,", " third,",
	" step ", " followed by ",
}

// scoreComplexity rates a description 1..10 from pure text heuristics:
// length buckets, distinct technical-keyword hits, and multi-step phrasing.
func scoreComplexity(text string) int {
	lower := strings.ToLower(text)
	score := 2

	switch words := len(strings.Fields(text)); {
	case words > 80:
		score += 3
	case words > 40:
		score += 2
	case words > 15:
		score++
	}

	hits := 0
	for _, kw := range techKeywords {
		if strings.Contains(lower, kw) {
			hits++
		}
	}
	if hits > 4 {
		hits = 4
	}
	score += hits

	for _, marker := range multiStepMarkers {
		if strings.Contains(lower, marker) {
			score++
			break
		}
	}
	if strings.Count(lower, " and ") >= 2 {
		score++
	}

	if score < 1 {
		score = 1
	}
	if score > 10 {
		score = 10
	}
	return score
}

// --- Text helpers ---

// splitSteps breaks a description into step fragments on sentence and
// sequence boundaries.
func splitSteps(text string) []string {
	normalized := strings.NewReplacer(
		"; ", ". ",
		", then ", ". Then ",
		" then ", ". Then ",
		" and then ", ". Then ",
	).Replace(text)

	var steps []string
	for _, part := range strings.Split(normalized, ". ") {
		part = strings.TrimSpace(strings.TrimSuffix(part, "."))
		if len(strings.Fields(part)) >= 3 {
			steps = append(steps, part)
		}
	}
	return steps
}

// shorten collapses whitespace and truncates to maxDescriptionLen at a
// word boundary.
func shorten(text string) string {
	return shortenTo(strings.Join(strings.Fields(text), " "), maxDescriptionLen)
}

func shortenTo(text string, max int) string {
	if len(text) <= max {
		return text
	}
	// Back up to a rune boundary so the cut never splits a multi-byte rune.
	end := max
	for end > 0 && !utf8.RuneStart(text[end]) {
		end--
	}
	cut := text[:end]
	if idx := strings.LastIndex(cut, " "); idx > max/2 {
		cut = cut[:idx]
	}
	return cut + "..."
}
