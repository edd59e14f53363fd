package memory_test

import (
	"context"
	"testing"

	"github.com/barnent1/neuro-dock-sub000/internal/discussion"
	"github.com/barnent1/neuro-dock-sub000/internal/memory"
)

// newTestStore creates a Store backed by a temp directory for isolation.
func newTestStore(t *testing.T) *memory.Store {
	t.Helper()
	s, err := memory.New(memory.Config{DataDir: t.TempDir(), MaxSearchResults: 20})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newSession(id, project string, status discussion.Status) *discussion.Session {
	return &discussion.Session{
		ID:            id,
		ProjectRef:    project,
		Status:        status,
		InitialPrompt: "a task tracker",
		CreatedAt:     "2025-06-01T10:00:00Z",
		UpdatedAt:     "2025-06-01T10:00:00Z",
	}
}

func createSession(t *testing.T, s *memory.Store, sess *discussion.Session) {
	t.Helper()
	if err := s.CreateSession(context.Background(), sess); err != nil {
		t.Fatalf("CreateSession(%s): %v", sess.ID, err)
	}
}

// ─── Sessions ───────────────────────────────────────────────────────────────

func TestSession_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	createSession(t, s, newSession("s1", "proj", discussion.StatusQuestionsPending))

	got, err := s.GetSession(context.Background(), "s1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.ProjectRef != "proj" {
		t.Errorf("project = %q, want proj", got.ProjectRef)
	}
	if got.Status != discussion.StatusQuestionsPending {
		t.Errorf("status = %q", got.Status)
	}
	if len(got.History) != 0 {
		t.Errorf("history = %d turns, want 0", len(got.History))
	}
}

func TestSession_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	cfg := memory.Config{DataDir: dir, MaxSearchResults: 20}

	s1, err := memory.New(cfg)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	createSession(t, s1, newSession("s1", "proj", discussion.StatusQuestionsPending))
	s1.Close()

	s2, err := memory.New(cfg)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer s2.Close()

	if _, err := s2.GetSession(context.Background(), "s1"); err != nil {
		t.Fatalf("session lost across reopen: %v", err)
	}
}

func TestSession_CreateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	sess := newSession("s1", "proj", discussion.StatusQuestionsPending)
	createSession(t, s, sess)
	// A retried create must converge, not error.
	createSession(t, s, sess)
}

func TestGetSession_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetSession(context.Background(), "missing")
	if !discussion.IsSessionNotFound(err) {
		t.Fatalf("err = %v, want session-not-found", err)
	}
}

func TestUpdateSession_NotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.UpdateSession(context.Background(), newSession("missing", "proj", discussion.StatusFailed))
	if !discussion.IsSessionNotFound(err) {
		t.Fatalf("err = %v, want session-not-found", err)
	}
}

func TestUpdateSession_MutableFields(t *testing.T) {
	s := newTestStore(t)
	sess := newSession("s1", "proj", discussion.StatusQuestionsPending)
	createSession(t, s, sess)

	sess.Status = discussion.StatusReadyForPlanning
	sess.Iteration = 2
	sess.CompletionEstimate = 100
	sess.UpdatedAt = "2025-06-01T11:00:00Z"
	if err := s.UpdateSession(context.Background(), sess); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}

	got, err := s.GetSession(context.Background(), "s1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != discussion.StatusReadyForPlanning || got.Iteration != 2 || got.CompletionEstimate != 100 {
		t.Errorf("got %s/%d/%d after update", got.Status, got.Iteration, got.CompletionEstimate)
	}
}

// ─── Turn log ───────────────────────────────────────────────────────────────

func TestAppendTurn_OrderedHistory(t *testing.T) {
	s := newTestStore(t)
	createSession(t, s, newSession("s1", "proj", discussion.StatusQuestionsPending))
	ctx := context.Background()

	turns := []discussion.Turn{
		{
			Kind:      discussion.KindQuestionBatch,
			Iteration: 0,
			Questions: []discussion.Question{{ID: "q0-1", Text: "Who uses it?", Iteration: 0}},
			CreatedAt: "2025-06-01T10:01:00Z",
		},
		{
			Kind:      discussion.KindAnswerBatch,
			Iteration: 0,
			Answers:   map[string]string{"q0-1": "small teams"},
			CreatedAt: "2025-06-01T10:02:00Z",
		},
		{
			Kind:      discussion.KindQuestionBatch,
			Iteration: 1,
			Questions: []discussion.Question{{ID: "q1-1", Text: "What data?", Iteration: 1}},
			CreatedAt: "2025-06-01T10:03:00Z",
		},
	}
	for _, turn := range turns {
		if err := s.AppendTurn(ctx, "s1", turn); err != nil {
			t.Fatalf("AppendTurn: %v", err)
		}
	}

	got, err := s.GetSession(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.History) != 3 {
		t.Fatalf("history = %d turns, want 3", len(got.History))
	}
	for i, turn := range got.History {
		if turn.Kind != turns[i].Kind || turn.Iteration != turns[i].Iteration {
			t.Errorf("turn %d = %s/%d, want %s/%d", i, turn.Kind, turn.Iteration, turns[i].Kind, turns[i].Iteration)
		}
	}
	if got.History[1].Answers["q0-1"] != "small teams" {
		t.Errorf("answer payload lost: %v", got.History[1].Answers)
	}
	if got.History[2].Questions[0].Text != "What data?" {
		t.Errorf("question payload lost: %v", got.History[2].Questions)
	}
}

// ─── ActiveSession ──────────────────────────────────────────────────────────

func TestActiveSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	createSession(t, s, newSession("done", "proj", discussion.StatusReadyForPlanning))
	createSession(t, s, newSession("dead", "proj", discussion.StatusFailed))

	active, err := s.ActiveSession(ctx, "proj")
	if err != nil {
		t.Fatal(err)
	}
	if active != nil {
		t.Fatalf("active = %v, want nil with only terminal sessions", active.ID)
	}

	createSession(t, s, newSession("live", "proj", discussion.StatusQuestionsPending))
	active, err = s.ActiveSession(ctx, "proj")
	if err != nil {
		t.Fatal(err)
	}
	if active == nil || active.ID != "live" {
		t.Fatalf("active = %v, want live", active)
	}

	// Other projects are unaffected.
	other, err := s.ActiveSession(ctx, "other")
	if err != nil {
		t.Fatal(err)
	}
	if other != nil {
		t.Errorf("active for untouched project = %v, want nil", other.ID)
	}
}

func TestRecentSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := newSession("a", "proj", discussion.StatusFailed)
	a.UpdatedAt = "2025-06-01T10:00:00Z"
	b := newSession("b", "proj", discussion.StatusQuestionsPending)
	b.UpdatedAt = "2025-06-02T10:00:00Z"
	createSession(t, s, a)
	createSession(t, s, b)

	recent, err := s.RecentSessions(ctx, "proj", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 {
		t.Fatalf("recent = %d, want 2", len(recent))
	}
	if recent[0].ID != "b" {
		t.Errorf("newest first: got %s", recent[0].ID)
	}
}

// ─── Memory entries ─────────────────────────────────────────────────────────

func putEntry(t *testing.T, s *memory.Store, project, category, content string, tags ...string) int64 {
	t.Helper()
	id, err := s.Put(context.Background(), discussion.MemoryEntry{
		ProjectRef: project,
		Category:   category,
		Content:    content,
		Tags:       tags,
		CreatedAt:  "2025-06-01T10:00:00Z",
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	return id
}

func TestPutGet_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	id := putEntry(t, s, "proj", "decision", "use sqlite for storage", "storage", "adr")

	got, err := s.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Content != "use sqlite for storage" {
		t.Errorf("content = %q", got.Content)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "storage" {
		t.Errorf("tags = %v", got.Tags)
	}
}

func TestPut_Validation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Put(ctx, discussion.MemoryEntry{Category: "x", Content: "y"}); err == nil {
		t.Error("missing project: want error")
	}
	if _, err := s.Put(ctx, discussion.MemoryEntry{ProjectRef: "p", Category: "x"}); err == nil {
		t.Error("missing content: want error")
	}
}

func TestGet_NotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Get(context.Background(), 9999); err == nil {
		t.Fatal("missing entry: want error")
	}
}

func TestSearch_FullText(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	putEntry(t, s, "proj", "specification", "the system stores tasks in a sqlite database")
	putEntry(t, s, "proj", "decision", "authentication uses email magic links")
	putEntry(t, s, "other", "decision", "sqlite everywhere")

	results, err := s.Search(ctx, "sqlite", "proj", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1 (project scoped)", len(results))
	}
	if results[0].Category != "specification" {
		t.Errorf("category = %q", results[0].Category)
	}
}

func TestSearch_EmptyQueryListsRecent(t *testing.T) {
	s := newTestStore(t)
	putEntry(t, s, "proj", "a", "first entry")
	putEntry(t, s, "proj", "b", "second entry")

	results, err := s.Search(context.Background(), "", "proj", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
}

func TestSearch_NoMatchesIsEmptyNotError(t *testing.T) {
	s := newTestStore(t)
	putEntry(t, s, "proj", "a", "something unrelated")

	results, err := s.Search(context.Background(), "zanzibar", "proj", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("results = %d, want 0", len(results))
	}
}

func TestSearch_QuotedSpecialCharacters(t *testing.T) {
	s := newTestStore(t)
	putEntry(t, s, "proj", "a", "handles the OR keyword and hyphen-ated words")

	// FTS operators in the query must not error out.
	if _, err := s.Search(context.Background(), `OR AND "quoted"`, "proj", 10); err != nil {
		t.Fatalf("Search with operator-looking query: %v", err)
	}
}

func TestSearch_LimitCapped(t *testing.T) {
	s, err := memory.New(memory.Config{DataDir: t.TempDir(), MaxSearchResults: 2})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })

	for i := 0; i < 5; i++ {
		putEntry(t, s, "proj", "note", "common text body")
	}
	results, err := s.Search(context.Background(), "common", "proj", 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) > 2 {
		t.Errorf("results = %d, want <= MaxSearchResults (2)", len(results))
	}
}
