package discussion

import "context"

// --- Persistence contracts ---
//
// The engine treats persistence as two narrow interfaces. Both are
// implemented by the sqlite store in internal/memory; tests substitute
// in-memory fakes.

// sessionNotFound is the sentinel a Store returns for unknown session IDs.
// The engine translates it into a not_found Error.
type sessionNotFound struct{ id string }

func (e sessionNotFound) Error() string { return "session " + e.id + " not found" }

// NewSessionNotFound builds the sentinel error a Store must return when a
// session ID does not exist.
func NewSessionNotFound(id string) error { return sessionNotFound{id: id} }

// IsSessionNotFound reports whether err is the store's unknown-session
// sentinel.
func IsSessionNotFound(err error) bool {
	_, ok := err.(sessionNotFound)
	return ok
}

// Store persists session records and their append-only turn logs.
type Store interface {
	// CreateSession writes a new session record. History present on the
	// session is NOT written here; turns always go through AppendTurn.
	CreateSession(ctx context.Context, s *Session) error

	// UpdateSession rewrites the mutable session fields (status, iteration,
	// completion estimate, updated_at). History is untouched.
	UpdateSession(ctx context.Context, s *Session) error

	// AppendTurn appends one turn to the session's log.
	AppendTurn(ctx context.Context, sessionID string, t Turn) error

	// GetSession loads a session with its full ordered history.
	GetSession(ctx context.Context, id string) (*Session, error)

	// ActiveSession returns the project's non-terminal session, or nil if
	// the project has none.
	ActiveSession(ctx context.Context, projectRef string) (*Session, error)
}

// MemoryEntry is one record in the append-only project memory. Corrections
// are modeled as new entries carrying a "supersedes:<id>" tag; nothing is
// mutated in place, preserving the audit trail.
type MemoryEntry struct {
	ID           int64    `json:"id"`
	SessionRef   string   `json:"session_ref,omitempty"`
	ProjectRef   string   `json:"project_ref"`
	Category     string   `json:"category"`
	Content      string   `json:"content"`
	Tags         []string `json:"tags,omitempty"`
	EmbeddingRef string   `json:"embedding_ref,omitempty"`
	CreatedAt    string   `json:"created_at"`
}

// MemoryStore is the key/value and search abstraction over persisted
// discussion artifacts. Search is best-effort top-limit, ranked by
// relevance; it degrades to an empty slice (never an error) when the
// search backend is unavailable.
type MemoryStore interface {
	Put(ctx context.Context, e MemoryEntry) (int64, error)
	Get(ctx context.Context, id int64) (*MemoryEntry, error)
	Search(ctx context.Context, query, projectRef string, limit int) ([]MemoryEntry, error)
}
