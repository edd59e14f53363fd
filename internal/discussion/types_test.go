package discussion_test

import (
	"testing"

	"github.com/barnent1/neuro-dock-sub000/internal/discussion"
)

func sessionWithHistory() *discussion.Session {
	return &discussion.Session{
		ID:         "s1",
		ProjectRef: "proj",
		Status:     discussion.StatusQuestionsPending,
		Iteration:  1,
		History: []discussion.Turn{
			{
				Kind:      discussion.KindQuestionBatch,
				Iteration: 0,
				Questions: []discussion.Question{
					{ID: "q0-1", Text: "Who uses it?", Iteration: 0},
					{ID: "q0-2", Text: "What data?", Iteration: 0},
				},
			},
			{
				Kind:      discussion.KindAnswerBatch,
				Iteration: 0,
				Answers:   map[string]string{"q0-1": "small teams"},
			},
			{
				Kind:      discussion.KindQuestionBatch,
				Iteration: 1,
				Questions: []discussion.Question{
					{ID: "q0-2", Text: "What data?", Iteration: 1},
					{ID: "q1-1", Text: "Need auth?", Iteration: 1},
				},
			},
		},
	}
}

func TestReconcile_DerivesAnsweredFlags(t *testing.T) {
	s := sessionWithHistory()
	s.Reconcile()

	first := s.History[0].Questions
	if !first[0].Answered {
		t.Error("q0-1 not marked answered")
	}
	if first[1].Answered {
		t.Error("q0-2 marked answered without an answer")
	}
	// Safe to call repeatedly.
	s.Reconcile()
	if !s.History[0].Questions[0].Answered {
		t.Error("repeated Reconcile lost the answered flag")
	}
}

func TestPendingQuestions_LatestBatchOnly(t *testing.T) {
	s := sessionWithHistory()
	s.Reconcile()

	pending := s.PendingQuestions()
	if len(pending) != 2 {
		t.Fatalf("pending = %d, want 2", len(pending))
	}
	if pending[0].ID != "q0-2" || pending[1].ID != "q1-1" {
		t.Errorf("pending IDs = %s, %s", pending[0].ID, pending[1].ID)
	}
}

func TestPendingQuestions_TerminalIsEmpty(t *testing.T) {
	s := sessionWithHistory()
	s.Status = discussion.StatusReadyForPlanning
	if got := s.PendingQuestions(); got != nil {
		t.Errorf("pending on terminal session = %v, want nil", got)
	}
}

func TestAnsweredPairs_HistoryOrderNoDuplicates(t *testing.T) {
	s := sessionWithHistory()
	s.History = append(s.History, discussion.Turn{
		Kind:      discussion.KindAnswerBatch,
		Iteration: 1,
		Answers:   map[string]string{"q0-2": "tasks and notes", "q1-1": "no"},
	})
	s.Reconcile()

	pairs := s.AnsweredPairs()
	if len(pairs) != 3 {
		t.Fatalf("pairs = %d, want 3", len(pairs))
	}
	// Order follows first appearance of the question, and q0-2 appears
	// once despite being carried into a second batch.
	wantIDs := []string{"q0-1", "q0-2", "q1-1"}
	for i, pair := range pairs {
		if pair.Question.ID != wantIDs[i] {
			t.Errorf("pair %d = %s, want %s", i, pair.Question.ID, wantIDs[i])
		}
	}
	if pairs[1].Answer != "tasks and notes" {
		t.Errorf("q0-2 answer = %q", pairs[1].Answer)
	}
}

func TestStatus_Terminal(t *testing.T) {
	cases := map[discussion.Status]bool{
		discussion.StatusNew:              false,
		discussion.StatusQuestionsPending: false,
		discussion.StatusAwaitingAnalysis: false,
		discussion.StatusReadyForPlanning: true,
		discussion.StatusFailed:           true,
	}
	for status, want := range cases {
		if got := status.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", status, got, want)
		}
	}
}

func TestNormalizeText(t *testing.T) {
	a := discussion.NormalizeText("  What   DATA is\tstored? ")
	b := discussion.NormalizeText("what data is stored?")
	if a != b {
		t.Errorf("%q != %q", a, b)
	}
}

func TestQuestionID(t *testing.T) {
	if got := discussion.QuestionID(2, 3); got != "q2-3" {
		t.Errorf("QuestionID = %q, want q2-3", got)
	}
}
