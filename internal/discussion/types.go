// Package discussion implements the iterative requirement-discussion engine.
//
// A discussion turns a one-line project idea into a finalized specification
// through repeated rounds of question generation, answer ingestion, and
// completeness analysis. The engine owns the session state machine and its
// persistence; question generation and completeness scoring live behind the
// QuestionGenerator and CompletenessAnalyzer interfaces so they can be
// swapped between the deterministic clarity analyzer and a live model bridge.
//
// Design principles, same as the rest of the codebase:
// - SRP: types, errors, store contracts, and the engine in separate files
// - DIP: Store, MemoryStore, QuestionGenerator, CompletenessAnalyzer are
//   interfaces; the engine depends only on the abstractions
package discussion

import (
	"fmt"
	"strings"
)

// --- Session status enum ---

// Status tracks where a session sits in the discussion state machine.
type Status string

const (
	StatusNew              Status = "new"
	StatusQuestionsPending Status = "questions_pending"
	StatusAwaitingAnalysis Status = "awaiting_analysis"
	StatusReadyForPlanning Status = "ready_for_planning"
	StatusFailed           Status = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusReadyForPlanning || s == StatusFailed
}

// --- Turn kind enum ---

// TurnKind distinguishes the two exchange units in a session's history.
type TurnKind string

const (
	KindQuestionBatch TurnKind = "question_batch"
	KindAnswerBatch   TurnKind = "answer_batch"
)

// --- Core data structures ---

// Question is a single clarifying question. Text is immutable once created;
// Answered transitions false→true exactly once, derived from the answer
// turns that follow (the turn log itself is append-only).
type Question struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Iteration int    `json:"iteration"`
	Answered  bool   `json:"answered"`
}

// Turn is one exchange unit in a session's history: either a batch of
// generated questions or a batch of user answers keyed by question ID.
type Turn struct {
	Kind      TurnKind          `json:"kind"`
	Iteration int               `json:"iteration"`
	Questions []Question        `json:"questions,omitempty"`
	Answers   map[string]string `json:"answers,omitempty"`
	CreatedAt string            `json:"created_at"` // RFC3339, immutable
}

// Session is one discussion instance, strictly scoped to a project.
type Session struct {
	ID                 string `json:"id"`
	ProjectRef         string `json:"project_ref"`
	Status             Status `json:"status"`
	Iteration          int    `json:"iteration"`
	InitialPrompt      string `json:"initial_prompt"`
	History            []Turn `json:"history"`
	CompletionEstimate int    `json:"completion_estimate"` // 0-100, never regresses
	CreatedAt          string `json:"created_at"`
	UpdatedAt          string `json:"updated_at"`
}

// CompletenessResult is the analyzer's verdict on whether enough has been
// asked. The engine normalizes it defensively: IsComplete implies an empty
// FollowUpQuestions slice regardless of what the analyzer returned.
type CompletenessResult struct {
	IsComplete        bool       `json:"is_complete"`
	Confidence        float64    `json:"confidence"` // 0..1
	FollowUpQuestions []Question `json:"follow_up_questions,omitempty"`
}

// StatusReport is the read-side snapshot returned by GetStatus and by the
// mutating operations.
type StatusReport struct {
	SessionID          string     `json:"session_id"`
	ProjectRef         string     `json:"project_ref"`
	Status             Status     `json:"status"`
	Iteration          int        `json:"iteration"`
	CompletionEstimate int        `json:"completion_estimate"`
	PendingQuestions   []Question `json:"pending_questions"`
}

// QAPair is an answered question with its answer text, in history order.
// Used by the planner and the finalized-specification summary.
type QAPair struct {
	Question Question `json:"question"`
	Answer   string   `json:"answer"`
}

// --- Derived views over the turn log ---

// Reconcile recomputes the Answered flags on every question batch from the
// answer turns that follow it. The turn log is append-only, so answered
// state is derived rather than rewritten in place. Safe to call repeatedly.
func (s *Session) Reconcile() {
	answered := make(map[string]bool)
	for _, t := range s.History {
		if t.Kind != KindAnswerBatch {
			continue
		}
		for id := range t.Answers {
			answered[id] = true
		}
	}
	for i := range s.History {
		if s.History[i].Kind != KindQuestionBatch {
			continue
		}
		qs := s.History[i].Questions
		for j := range qs {
			if answered[qs[j].ID] {
				qs[j].Answered = true
			}
		}
	}
}

// LatestQuestionBatch returns the most recent question batch, or nil if the
// history contains none.
func (s *Session) LatestQuestionBatch() *Turn {
	for i := len(s.History) - 1; i >= 0; i-- {
		if s.History[i].Kind == KindQuestionBatch {
			return &s.History[i]
		}
	}
	return nil
}

// PendingQuestions returns the unanswered questions from the latest question
// batch. Empty for terminal sessions.
func (s *Session) PendingQuestions() []Question {
	if s.Status.Terminal() {
		return nil
	}
	batch := s.LatestQuestionBatch()
	if batch == nil {
		return nil
	}
	var pending []Question
	for _, q := range batch.Questions {
		if !q.Answered {
			pending = append(pending, q)
		}
	}
	return pending
}

// AnsweredPairs walks the history and pairs every answered question with
// its answer text, preserving insertion order of the question batches.
func (s *Session) AnsweredPairs() []QAPair {
	answers := make(map[string]string)
	for _, t := range s.History {
		if t.Kind != KindAnswerBatch {
			continue
		}
		for id, text := range t.Answers {
			answers[id] = text
		}
	}

	seen := make(map[string]bool)
	var pairs []QAPair
	for _, t := range s.History {
		if t.Kind != KindQuestionBatch {
			continue
		}
		for _, q := range t.Questions {
			if seen[q.ID] {
				continue
			}
			if text, ok := answers[q.ID]; ok {
				q.Answered = true
				pairs = append(pairs, QAPair{Question: q, Answer: text})
				seen[q.ID] = true
			}
		}
	}
	return pairs
}

// QuestionID builds the canonical ID for the n-th question (1-based) of an
// iteration's batch. IDs are unique within a session; a question carried
// over to a later batch keeps the ID it was born with.
func QuestionID(iteration, n int) string {
	return fmt.Sprintf("q%d-%d", iteration, n)
}

// NormalizeText collapses a question text for duplicate detection:
// lowercase, trimmed, inner whitespace folded to single spaces.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
