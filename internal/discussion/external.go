package discussion

import (
	"context"
	"time"
)

// --- External collaborator contracts ---
//
// Question generation and completeness analysis are the only places the
// engine touches anything resembling a model. Both are narrow, injectable
// interfaces: the deterministic clarity analyzer implements them for
// offline use, and a live bridge can implement them against a real model
// without the engine changing. Calls are blocking, bounded by
// Config.CallTimeout, and retried exactly once on failure.

// QuestionGenerator produces the opening batch of clarifying questions for
// a project prompt. Returned questions need only Text set; the engine
// assigns IDs and iteration numbers before persisting.
type QuestionGenerator interface {
	Generate(ctx context.Context, prompt string) ([]Question, error)
}

// CompletenessAnalyzer decides whether the accumulated Q&A history is
// enough to proceed to planning, and proposes follow-ups if not.
type CompletenessAnalyzer interface {
	Analyze(ctx context.Context, history []Turn) (CompletenessResult, error)
}

// callWithRetry runs fn under the configured timeout, retrying once after
// a backoff. External calls are unreliable I/O: a single transient failure
// should not kill a session, but a second one does.
func (e *Engine) callWithRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	err := fn(callCtx)
	cancel()
	if err == nil {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(e.cfg.RetryBackoff):
	}

	callCtx, cancel = context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()
	return fn(callCtx)
}

// persistWithRetry retries a persistence step once. Used after a successful
// external call: the persistence is retried, never the external call, so a
// flaky disk can't cause duplicate question generation.
func (e *Engine) persistWithRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := fn(ctx); err == nil {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(e.cfg.RetryBackoff):
	}

	return fn(ctx)
}
