package discussion

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/barnent1/neuro-dock-sub000/internal/templates"
	"github.com/google/uuid"
)

// --- Engine configuration ---

// Config holds discussion engine tunables.
type Config struct {
	// CallTimeout bounds each generator/analyzer invocation.
	CallTimeout time.Duration
	// RetryBackoff is the pause before the single retry of a failed
	// external call or persistence step.
	RetryBackoff time.Duration
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		CallTimeout:  30 * time.Second,
		RetryBackoff: 500 * time.Millisecond,
	}
}

// --- Engine ---

// Engine owns the discussion state machine:
//
//	new                --Start--------------> questions_pending
//	questions_pending  --SubmitAnswers------> awaiting_analysis
//	awaiting_analysis  --analysis complete--> ready_for_planning
//	awaiting_analysis  --analysis incomplete> questions_pending (iteration+1)
//	any non-terminal   --Abort/fatal error--> failed
//
// Mutating operations on a session are serialized: a second caller hitting
// a session mid-mutation gets a conflict error instead of interleaving.
// Reads go straight to the store and always see the last committed state.
type Engine struct {
	store     Store
	memories  MemoryStore
	generator QuestionGenerator
	analyzer  CompletenessAnalyzer
	renderer  templates.Renderer
	cfg       Config

	mu     sync.Mutex
	guards map[string]*sessionGuard
}

// sessionGuard serializes mutations on one session. mu is held for the
// whole of Start/SubmitAnswers (TryLock, so contenders fail fast with a
// conflict). commitMu guards only the persistence sections so Abort can
// slip in while an external call is in flight; once aborted is set, any
// in-flight result is discarded; the abort wins.
type sessionGuard struct {
	mu       sync.Mutex
	commitMu sync.Mutex
	aborted  bool
}

// New creates a discussion engine with its collaborators.
func New(store Store, memories MemoryStore, gen QuestionGenerator, an CompletenessAnalyzer, renderer templates.Renderer, cfg Config) *Engine {
	return &Engine{
		store:     store,
		memories:  memories,
		generator: gen,
		analyzer:  an,
		renderer:  renderer,
		cfg:       cfg,
		guards:    make(map[string]*sessionGuard),
	}
}

func (e *Engine) guard(key string) *sessionGuard {
	e.mu.Lock()
	defer e.mu.Unlock()
	g, ok := e.guards[key]
	if !ok {
		g = &sessionGuard{}
		e.guards[key] = g
	}
	return g
}

// dropGuard releases a session's guard once it reaches a terminal state, so
// the map does not grow for the life of the process. Holders of the old
// pointer are unaffected; late contenders get a fresh guard and are rejected
// by the terminal-status check instead.
func (e *Engine) dropGuard(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.guards, key)
}

// --- Start ---

// Start opens a new discussion for a project. At most one non-terminal
// session may exist per project; a second Start gets a conflict. The
// question generator is invoked with the prompt and the resulting batch is
// persisted as iteration 0 before the session is visible as started.
func (e *Engine) Start(ctx context.Context, projectRef, prompt string) (*Session, error) {
	projectRef = strings.TrimSpace(projectRef)
	prompt = strings.TrimSpace(prompt)
	if projectRef == "" {
		return nil, newError(KindValidation, "project_ref is required")
	}
	if prompt == "" {
		return nil, newError(KindValidation, "prompt is required")
	}

	g := e.guard("project:" + projectRef)
	if !g.mu.TryLock() {
		return nil, newError(KindConflict, "a discussion is already being started for project %q", projectRef)
	}
	defer g.mu.Unlock()

	active, err := e.store.ActiveSession(ctx, projectRef)
	if err != nil {
		return nil, fmt.Errorf("checking active session: %w", err)
	}
	if active != nil {
		return nil, newError(KindConflict,
			"project %q already has an active discussion (session %s, status %s)",
			projectRef, active.ID, active.Status)
	}

	var generated []Question
	err = e.callWithRetry(ctx, func(ctx context.Context) error {
		qs, genErr := e.generator.Generate(ctx, prompt)
		if genErr != nil {
			return genErr
		}
		generated = qs
		return nil
	})
	if err != nil {
		return nil, wrapError(KindGeneration, err, "question generation failed after retry")
	}
	if len(generated) == 0 {
		return nil, newError(KindGeneration, "question generator returned no questions")
	}

	ts := now()
	batch := make([]Question, 0, len(generated))
	for _, q := range generated {
		text := strings.TrimSpace(q.Text)
		if text == "" {
			continue
		}
		batch = append(batch, Question{
			ID:        QuestionID(0, len(batch)+1),
			Text:      text,
			Iteration: 0,
		})
	}
	if len(batch) == 0 {
		return nil, newError(KindGeneration, "question generator returned only empty questions")
	}

	s := &Session{
		ID:            uuid.NewString(),
		ProjectRef:    projectRef,
		Status:        StatusQuestionsPending,
		Iteration:     0,
		InitialPrompt: prompt,
		CreatedAt:     ts,
		UpdatedAt:     ts,
	}
	turn := Turn{Kind: KindQuestionBatch, Iteration: 0, Questions: batch, CreatedAt: ts}

	if err := e.persistWithRetry(ctx, func(ctx context.Context) error {
		if err := e.store.CreateSession(ctx, s); err != nil {
			return err
		}
		return e.store.AppendTurn(ctx, s.ID, turn)
	}); err != nil {
		return nil, fmt.Errorf("persisting new session: %w", err)
	}

	s.History = []Turn{turn}
	return s, nil
}

// --- SubmitAnswers ---

// SubmitAnswers records a batch of answers against the latest question
// batch, then synchronously runs completeness analysis over the full turn
// history. Partial answer sets are accepted; unanswered questions are never
// silently dropped: they are carried verbatim into the next batch when the
// analyzer still reports the discussion incomplete.
func (e *Engine) SubmitAnswers(ctx context.Context, sessionID string, answers map[string]string) (*StatusReport, error) {
	if len(answers) == 0 {
		return nil, newError(KindValidation, "no answers provided")
	}

	g := e.guard("session:" + sessionID)
	if !g.mu.TryLock() {
		return nil, newError(KindConflict, "session %s has a mutation in flight", sessionID)
	}
	defer g.mu.Unlock()

	s, err := e.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if s.Status.Terminal() {
		return nil, newError(KindState, "session %s is %s and accepts no further answers", sessionID, s.Status)
	}
	if s.Status != StatusQuestionsPending {
		return nil, newError(KindState, "session %s is %s; answers require pending questions", sessionID, s.Status)
	}

	batch := s.LatestQuestionBatch()
	if batch == nil {
		return nil, newError(KindState, "session %s has no question batch", sessionID)
	}

	// Validate before mutating anything: every answer must reference a
	// question from the latest batch.
	known := make(map[string]bool, len(batch.Questions))
	for _, q := range batch.Questions {
		known[q.ID] = true
	}
	for id, text := range answers {
		if !known[id] {
			return nil, newError(KindValidation, "answer references unknown question %q", id)
		}
		if strings.TrimSpace(text) == "" {
			return nil, newError(KindValidation, "answer for question %q is empty", id)
		}
	}

	ts := now()
	answerTurn := Turn{Kind: KindAnswerBatch, Iteration: s.Iteration, Answers: answers, CreatedAt: ts}
	s.Status = StatusAwaitingAnalysis
	s.UpdatedAt = ts

	if err := e.commitSteps(ctx, g,
		func(ctx context.Context) error { return e.store.AppendTurn(ctx, s.ID, answerTurn) },
		func(ctx context.Context) error { return e.store.UpdateSession(ctx, s) },
	); err != nil {
		return nil, err
	}

	s.History = append(s.History, answerTurn)
	s.Reconcile()

	// Synchronous completeness analysis over the full history. This is the
	// long pole of SubmitAnswers; it is bounded by CallTimeout and retried
	// once before the session is declared failed.
	var result CompletenessResult
	err = e.callWithRetry(ctx, func(ctx context.Context) error {
		r, aErr := e.analyzer.Analyze(ctx, s.History)
		if aErr != nil {
			return aErr
		}
		result = r
		return nil
	})
	if err != nil {
		// Ambiguity resolves toward failed, never a false ready_for_planning.
		if ferr := e.failSession(ctx, g, s, fmt.Sprintf("completeness analysis failed: %v", err), "discussion-analysis-error"); ferr != nil {
			return nil, wrapError(KindAnalysis, err, "analysis failed; session could not be marked failed: %v", ferr)
		}
		return nil, wrapError(KindAnalysis, err, "completeness analysis failed after retry")
	}

	normalizeResult(&result)

	estimate := s.CompletionEstimate
	if pct := int(math.Round(result.Confidence * 100)); pct > estimate {
		estimate = pct
	}

	if result.IsComplete {
		return e.finalize(ctx, g, s)
	}

	merged := e.mergeFollowUps(s, batch, result.FollowUpQuestions)
	if len(merged) == 0 {
		// Incomplete with nothing left to ask would strand the session in
		// an unwinnable loop. Fail it rather than fake completeness.
		reason := "analyzer reported incomplete but proposed no follow-ups and no questions remain open"
		if ferr := e.failSession(ctx, g, s, reason, "discussion-analysis-error"); ferr != nil {
			return nil, fmt.Errorf("%s; session could not be marked failed: %w", reason, ferr)
		}
		return nil, newError(KindAnalysis, "%s", reason)
	}

	next := s.Iteration + 1
	qts := now()
	questionTurn := Turn{Kind: KindQuestionBatch, Iteration: next, Questions: merged, CreatedAt: qts}
	s.Iteration = next
	s.Status = StatusQuestionsPending
	s.CompletionEstimate = estimate
	s.UpdatedAt = qts

	if err := e.commitSteps(ctx, g,
		func(ctx context.Context) error { return e.store.AppendTurn(ctx, s.ID, questionTurn) },
		func(ctx context.Context) error { return e.store.UpdateSession(ctx, s) },
	); err != nil {
		return nil, err
	}

	s.History = append(s.History, questionTurn)
	s.Reconcile()
	return e.report(s), nil
}

// finalize commits the ready_for_planning transition: the full-session
// specification summary is persisted to memory first, then the session
// record flips. Persistence failure leaves the session uncommitted.
func (e *Engine) finalize(ctx context.Context, g *sessionGuard, s *Session) (*StatusReport, error) {
	summary, err := e.finalSummary(s)
	if err != nil {
		return nil, fmt.Errorf("rendering finalized specification: %w", err)
	}

	entry := MemoryEntry{
		SessionRef: s.ID,
		ProjectRef: s.ProjectRef,
		Category:   "specification",
		Content:    summary,
		Tags:       []string{"final-specification"},
		CreatedAt:  now(),
	}
	s.Status = StatusReadyForPlanning
	s.CompletionEstimate = 100
	s.UpdatedAt = now()

	if err := e.commitSteps(ctx, g,
		func(ctx context.Context) error {
			_, putErr := e.memories.Put(ctx, entry)
			return putErr
		},
		func(ctx context.Context) error { return e.store.UpdateSession(ctx, s) },
	); err != nil {
		return nil, err
	}

	e.dropGuard("session:" + s.ID)
	return e.report(s), nil
}

// mergeFollowUps builds the next question batch: unanswered questions from
// the latest batch carried over verbatim (same ID, same text), then the
// analyzer's follow-ups deduplicated by ID first and normalized text
// second. New follow-ups get canonical IDs that cannot collide with any
// question already in the session.
func (e *Engine) mergeFollowUps(s *Session, batch *Turn, followUps []Question) []Question {
	next := s.Iteration + 1

	usedIDs := make(map[string]bool)
	for _, t := range s.History {
		if t.Kind != KindQuestionBatch {
			continue
		}
		for _, q := range t.Questions {
			usedIDs[q.ID] = true
		}
	}

	var merged []Question
	carried := make(map[string]bool)
	usedText := make(map[string]bool)
	for _, q := range batch.Questions {
		if q.Answered {
			continue
		}
		merged = append(merged, Question{ID: q.ID, Text: q.Text, Iteration: next})
		carried[q.ID] = true
		usedText[NormalizeText(q.Text)] = true
	}

	n := 1
	for _, f := range followUps {
		text := strings.TrimSpace(f.Text)
		if text == "" {
			continue
		}
		if f.ID != "" && carried[f.ID] {
			continue
		}
		norm := NormalizeText(text)
		if usedText[norm] {
			continue
		}

		id := f.ID
		for id == "" || usedIDs[id] {
			id = QuestionID(next, n)
			n++
		}
		usedIDs[id] = true
		usedText[norm] = true
		merged = append(merged, Question{ID: id, Text: text, Iteration: next})
	}

	return merged
}

// --- GetStatus / Get ---

// GetStatus is a pure read of the last committed session state.
func (e *Engine) GetStatus(ctx context.Context, sessionID string) (*StatusReport, error) {
	s, err := e.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return e.report(s), nil
}

// Get loads a full session with history. Used by the plan compiler path.
func (e *Engine) Get(ctx context.Context, sessionID string) (*Session, error) {
	return e.loadSession(ctx, sessionID)
}

// --- Abort ---

// Abort moves a non-terminal session to failed and persists the reason as
// a memory entry tagged "discussion-abort". Idempotent: aborting an
// already-failed session is a no-op with no duplicate memory write. It
// deliberately does not take the mutation lock: an abort landing while an
// analysis call is in flight commits first and the analysis result is
// discarded.
func (e *Engine) Abort(ctx context.Context, sessionID, reason string) error {
	g := e.guard("session:" + sessionID)
	g.commitMu.Lock()
	defer g.commitMu.Unlock()

	s, err := e.loadSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if s.Status == StatusFailed {
		return nil
	}
	if s.Status == StatusReadyForPlanning {
		return newError(KindState, "session %s is finalized and cannot be aborted", sessionID)
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "aborted without reason"
	}

	entry := MemoryEntry{
		SessionRef: s.ID,
		ProjectRef: s.ProjectRef,
		Category:   "discussion",
		Content:    reason,
		Tags:       []string{"discussion-abort"},
		CreatedAt:  now(),
	}
	if err := e.persistWithRetry(ctx, func(ctx context.Context) error {
		_, putErr := e.memories.Put(ctx, entry)
		return putErr
	}); err != nil {
		return fmt.Errorf("persisting abort reason: %w", err)
	}

	s.Status = StatusFailed
	s.UpdatedAt = now()
	if err := e.persistWithRetry(ctx, func(ctx context.Context) error {
		return e.store.UpdateSession(ctx, s)
	}); err != nil {
		return fmt.Errorf("persisting abort transition: %w", err)
	}

	g.aborted = true
	e.dropGuard("session:" + sessionID)
	return nil
}

// --- Internals ---

// loadSession fetches a session and derives answered flags from the log.
func (e *Engine) loadSession(ctx context.Context, sessionID string) (*Session, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, newError(KindValidation, "session_id is required")
	}
	s, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		if IsSessionNotFound(err) {
			return nil, newError(KindNotFound, "session %s not found", sessionID)
		}
		return nil, fmt.Errorf("loading session %s: %w", sessionID, err)
	}
	s.Reconcile()
	return s, nil
}

// commitSteps runs persistence steps in order under the commit lock, each
// retried independently so an earlier success is never re-executed. If an
// abort committed first, nothing is applied.
func (e *Engine) commitSteps(ctx context.Context, g *sessionGuard, steps ...func(ctx context.Context) error) error {
	g.commitMu.Lock()
	defer g.commitMu.Unlock()
	if g.aborted {
		return newError(KindState, "session was aborted; result discarded")
	}
	for _, step := range steps {
		if err := e.persistWithRetry(ctx, step); err != nil {
			return fmt.Errorf("persisting state transition: %w", err)
		}
	}
	return nil
}

// failSession commits the failed transition with the reason persisted to
// memory. No-op if an abort already won the race.
func (e *Engine) failSession(ctx context.Context, g *sessionGuard, s *Session, reason, tag string) error {
	g.commitMu.Lock()
	defer g.commitMu.Unlock()
	if g.aborted {
		return nil
	}

	entry := MemoryEntry{
		SessionRef: s.ID,
		ProjectRef: s.ProjectRef,
		Category:   "discussion",
		Content:    reason,
		Tags:       []string{tag},
		CreatedAt:  now(),
	}
	if err := e.persistWithRetry(ctx, func(ctx context.Context) error {
		_, putErr := e.memories.Put(ctx, entry)
		return putErr
	}); err != nil {
		return fmt.Errorf("persisting failure reason: %w", err)
	}

	s.Status = StatusFailed
	s.UpdatedAt = now()
	if err := e.persistWithRetry(ctx, func(ctx context.Context) error {
		return e.store.UpdateSession(ctx, s)
	}); err != nil {
		return fmt.Errorf("persisting failed transition: %w", err)
	}

	e.dropGuard("session:" + s.ID)
	return nil
}

// finalSummary renders the finalized-specification document for the
// session, persisted to memory when the discussion completes.
func (e *Engine) finalSummary(s *Session) (string, error) {
	pairs := s.AnsweredPairs()
	rows := make([]templates.QA, len(pairs))
	for i, p := range pairs {
		rows[i] = templates.QA{Question: p.Question.Text, Answer: p.Answer}
	}
	return e.renderer.Render(templates.FinalSpec, templates.FinalSpecData{
		Project:     s.ProjectRef,
		Prompt:      s.InitialPrompt,
		Iterations:  s.Iteration + 1,
		Pairs:       rows,
		FinalizedAt: now(),
	})
}

// report builds the status snapshot for a reconciled session.
func (e *Engine) report(s *Session) *StatusReport {
	return &StatusReport{
		SessionID:          s.ID,
		ProjectRef:         s.ProjectRef,
		Status:             s.Status,
		Iteration:          s.Iteration,
		CompletionEstimate: s.CompletionEstimate,
		PendingQuestions:   s.PendingQuestions(),
	}
}

// normalizeResult enforces the completeness invariant defensively: a
// complete verdict carries no follow-ups, and confidence stays in [0,1].
func normalizeResult(r *CompletenessResult) {
	if r.IsComplete {
		r.FollowUpQuestions = nil
	}
	if r.Confidence < 0 {
		r.Confidence = 0
	}
	if r.Confidence > 1 {
		r.Confidence = 1
	}
}
