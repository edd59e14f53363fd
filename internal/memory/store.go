// Package memory is the persistence layer for NeuroDock: session records,
// the append-only turn log, and the project memory with FTS5 full-text
// search. It implements discussion.Store and discussion.MemoryStore over
// SQLite (modernc.org/sqlite, WAL mode).
//
// Memory entries are append-only (corrections are new entries carrying a
// "supersedes:<id>" tag), so the audit trail of every discussion survives
// intact. Search ranks via FTS5 and degrades gracefully: if the FTS path
// fails, it falls back to substring matching, and failing that returns an
// empty result set rather than an error.
package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/barnent1/neuro-dock-sub000/internal/discussion"
	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// ─── Config ──────────────────────────────────────────────────────────────────

// Config holds store configuration.
type Config struct {
	DataDir          string
	MaxSearchResults int
}

// DefaultConfig returns the default configuration. The data directory can
// be overridden with NEURODOCK_DATA_DIR.
func DefaultConfig() Config {
	dir := os.Getenv("NEURODOCK_DATA_DIR")
	if dir == "" {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".neurodock")
	}
	return Config{
		DataDir:          dir,
		MaxSearchResults: 20,
	}
}

// ─── Store ───────────────────────────────────────────────────────────────────

// Store is the SQLite-backed persistence engine.
type Store struct {
	db  *sql.DB
	cfg Config
}

// New creates a Store: makes the data directory, opens SQLite with WAL
// mode, and runs migrations.
func New(cfg Config) (*Store, error) {
	if cfg.MaxSearchResults <= 0 {
		cfg.MaxSearchResults = DefaultConfig().MaxSearchResults
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("memory: create data dir: %w", err)
	}

	dbPath := filepath.Join(cfg.DataDir, "neurodock.db")
	db, err := openDB("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("memory: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("memory: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, cfg: cfg}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("memory: migration: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ─── Migrations ──────────────────────────────────────────────────────────────

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			id                  TEXT PRIMARY KEY,
			project             TEXT NOT NULL,
			status              TEXT NOT NULL,
			iteration           INTEGER NOT NULL DEFAULT 0,
			initial_prompt      TEXT NOT NULL,
			completion_estimate INTEGER NOT NULL DEFAULT 0,
			created_at          TEXT NOT NULL,
			updated_at          TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project, status);

		CREATE TABLE IF NOT EXISTS turns (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT    NOT NULL,
			seq        INTEGER NOT NULL,
			kind       TEXT    NOT NULL,
			iteration  INTEGER NOT NULL,
			payload    TEXT    NOT NULL,
			created_at TEXT    NOT NULL,
			FOREIGN KEY (session_id) REFERENCES sessions(id),
			UNIQUE (session_id, seq)
		);

		CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, seq);

		CREATE TABLE IF NOT EXISTS memory_entries (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			session_ref   TEXT,
			project       TEXT NOT NULL,
			category      TEXT NOT NULL,
			content       TEXT NOT NULL,
			tags          TEXT,
			embedding_ref TEXT,
			created_at    TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_mem_project  ON memory_entries(project, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_mem_session  ON memory_entries(session_ref);
		CREATE INDEX IF NOT EXISTS idx_mem_category ON memory_entries(category);

		CREATE VIRTUAL TABLE IF NOT EXISTS memory_fts USING fts5(
			category,
			content,
			tags,
			project,
			content='memory_entries',
			content_rowid='id'
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// FTS trigger (idempotent). Entries are append-only, so only the
	// insert trigger is needed.
	var name string
	err := s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='trigger' AND name='mem_fts_insert'",
	).Scan(&name)
	if err == sql.ErrNoRows {
		trigger := `
			CREATE TRIGGER mem_fts_insert AFTER INSERT ON memory_entries BEGIN
				INSERT INTO memory_fts(rowid, category, content, tags, project)
				VALUES (new.id, new.category, new.content, new.tags, new.project);
			END;
		`
		if _, err := s.db.Exec(trigger); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	return nil
}

// ─── Sessions ────────────────────────────────────────────────────────────────

// CreateSession writes a new session record. INSERT OR REPLACE keeps the
// engine's persistence retry idempotent: retrying a half-committed create
// converges instead of tripping the primary key.
func (s *Store) CreateSession(ctx context.Context, sess *discussion.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO sessions
		 (id, project, status, iteration, initial_prompt, completion_estimate, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.ProjectRef, string(sess.Status), sess.Iteration,
		sess.InitialPrompt, sess.CompletionEstimate, sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// UpdateSession rewrites the mutable session fields. History is untouched.
func (s *Store) UpdateSession(ctx context.Context, sess *discussion.Session) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions
		 SET status = ?, iteration = ?, completion_estimate = ?, updated_at = ?
		 WHERE id = ?`,
		string(sess.Status), sess.Iteration, sess.CompletionEstimate, sess.UpdatedAt, sess.ID,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n == 0 {
		return discussion.NewSessionNotFound(sess.ID)
	}
	return nil
}

// turnPayload is the JSON shape of a persisted turn body.
type turnPayload struct {
	Questions []discussion.Question `json:"questions,omitempty"`
	Answers   map[string]string     `json:"answers,omitempty"`
}

// AppendTurn appends one turn to the session's log. The sequence number is
// assigned inside the insert so concurrent appends cannot collide silently.
func (s *Store) AppendTurn(ctx context.Context, sessionID string, t discussion.Turn) error {
	payload, err := json.Marshal(turnPayload{Questions: t.Questions, Answers: t.Answers})
	if err != nil {
		return fmt.Errorf("append turn: marshal payload: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO turns (session_id, seq, kind, iteration, payload, created_at)
		 VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM turns WHERE session_id = ?), ?, ?, ?, ?)`,
		sessionID, sessionID, string(t.Kind), t.Iteration, string(payload), t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

// GetSession loads a session with its full ordered history.
func (s *Store) GetSession(ctx context.Context, id string) (*discussion.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project, status, iteration, initial_prompt, completion_estimate, created_at, updated_at
		 FROM sessions WHERE id = ?`, id,
	)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, discussion.NewSessionNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	history, err := s.loadTurns(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	sess.History = history
	return sess, nil
}

// ActiveSession returns the project's non-terminal session, or nil if the
// project has none. At most one should exist; the newest wins if invariants
// were violated by an older build.
func (s *Store) ActiveSession(ctx context.Context, projectRef string) (*discussion.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project, status, iteration, initial_prompt, completion_estimate, created_at, updated_at
		 FROM sessions
		 WHERE project = ? AND status NOT IN (?, ?)
		 ORDER BY created_at DESC LIMIT 1`,
		projectRef, string(discussion.StatusReadyForPlanning), string(discussion.StatusFailed),
	)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active session: %w", err)
	}

	history, err := s.loadTurns(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	sess.History = history
	return sess, nil
}

// RecentSessions returns recent session records for a project, newest
// first, without their turn logs. Used by the status resource.
func (s *Store) RecentSessions(ctx context.Context, projectRef string, limit int) ([]discussion.Session, error) {
	if limit <= 0 {
		limit = 5
	}

	query := `
		SELECT id, project, status, iteration, initial_prompt, completion_estimate, created_at, updated_at
		FROM sessions
	`
	args := []any{}
	if projectRef != "" {
		query += " WHERE project = ?"
		args = append(args, projectRef)
	}
	query += " ORDER BY updated_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("recent sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []discussion.Session
	for rows.Next() {
		var sess discussion.Session
		var status string
		if err := rows.Scan(&sess.ID, &sess.ProjectRef, &status, &sess.Iteration,
			&sess.InitialPrompt, &sess.CompletionEstimate, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, err
		}
		sess.Status = discussion.Status(status)
		result = append(result, sess)
	}
	return result, rows.Err()
}

// rowScanner covers both *sql.Row and *sql.Rows for scanSession.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*discussion.Session, error) {
	var sess discussion.Session
	var status string
	if err := row.Scan(&sess.ID, &sess.ProjectRef, &status, &sess.Iteration,
		&sess.InitialPrompt, &sess.CompletionEstimate, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
		return nil, err
	}
	sess.Status = discussion.Status(status)
	return &sess, nil
}

func (s *Store) loadTurns(ctx context.Context, sessionID string) ([]discussion.Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, iteration, payload, created_at FROM turns
		 WHERE session_id = ? ORDER BY seq`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("load turns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var history []discussion.Turn
	for rows.Next() {
		var kind, payload string
		var t discussion.Turn
		if err := rows.Scan(&kind, &t.Iteration, &payload, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Kind = discussion.TurnKind(kind)

		var body turnPayload
		if err := json.Unmarshal([]byte(payload), &body); err != nil {
			return nil, fmt.Errorf("load turns: parse payload: %w", err)
		}
		t.Questions = body.Questions
		t.Answers = body.Answers
		history = append(history, t)
	}
	return history, rows.Err()
}

// ─── Memory entries ──────────────────────────────────────────────────────────

// Put appends a memory entry and returns its ID. Entries are never updated
// in place.
func (s *Store) Put(ctx context.Context, e discussion.MemoryEntry) (int64, error) {
	if strings.TrimSpace(e.ProjectRef) == "" {
		return 0, fmt.Errorf("put memory entry: project ref is required")
	}
	if strings.TrimSpace(e.Content) == "" {
		return 0, fmt.Errorf("put memory entry: content is required")
	}

	tags, err := json.Marshal(e.Tags)
	if err != nil {
		return 0, fmt.Errorf("put memory entry: marshal tags: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO memory_entries (session_ref, project, category, content, tags, embedding_ref, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		nullableString(e.SessionRef), e.ProjectRef, e.Category, e.Content,
		string(tags), nullableString(e.EmbeddingRef), e.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("put memory entry: %w", err)
	}
	return res.LastInsertId()
}

// Get retrieves a single memory entry by ID.
func (s *Store) Get(ctx context.Context, id int64) (*discussion.MemoryEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, session_ref, project, category, content, tags, embedding_ref, created_at
		 FROM memory_entries WHERE id = ?`, id,
	)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("memory entry %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get memory entry: %w", err)
	}
	return e, nil
}

// Search returns the best-effort top-limit entries for a project, ranked by
// FTS5 relevance. It never errors on backend trouble: an FTS failure falls
// back to substring matching, and a failure there yields an empty slice.
// An empty query lists the most recent entries.
func (s *Store) Search(ctx context.Context, query, projectRef string, limit int) ([]discussion.MemoryEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > s.cfg.MaxSearchResults {
		limit = s.cfg.MaxSearchResults
	}

	ftsQuery := sanitizeFTS(query)
	if ftsQuery == "" {
		return s.searchRecent(ctx, projectRef, limit), nil
	}

	sqlStr := `
		SELECT e.id, e.session_ref, e.project, e.category, e.content, e.tags, e.embedding_ref, e.created_at
		FROM memory_fts fts
		JOIN memory_entries e ON e.id = fts.rowid
		WHERE memory_fts MATCH ?
	`
	args := []any{ftsQuery}
	if projectRef != "" {
		sqlStr += " AND e.project = ?"
		args = append(args, projectRef)
	}
	sqlStr += " ORDER BY fts.rank LIMIT ?"
	args = append(args, limit)

	results, err := s.queryEntries(ctx, sqlStr, args...)
	if err != nil {
		// FTS unavailable or query unparseable: degrade to substring match.
		return s.searchSubstring(ctx, query, projectRef, limit), nil
	}
	return results, nil
}

// searchRecent lists the newest entries without FTS.
func (s *Store) searchRecent(ctx context.Context, projectRef string, limit int) []discussion.MemoryEntry {
	sqlStr := `
		SELECT id, session_ref, project, category, content, tags, embedding_ref, created_at
		FROM memory_entries
	`
	args := []any{}
	if projectRef != "" {
		sqlStr += " WHERE project = ?"
		args = append(args, projectRef)
	}
	sqlStr += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	results, err := s.queryEntries(ctx, sqlStr, args...)
	if err != nil {
		return []discussion.MemoryEntry{}
	}
	return results
}

// searchSubstring is the degraded search path: case-insensitive LIKE over
// content and category.
func (s *Store) searchSubstring(ctx context.Context, query, projectRef string, limit int) []discussion.MemoryEntry {
	pattern := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	sqlStr := `
		SELECT id, session_ref, project, category, content, tags, embedding_ref, created_at
		FROM memory_entries
		WHERE (lower(content) LIKE ? OR lower(category) LIKE ?)
	`
	args := []any{pattern, pattern}
	if projectRef != "" {
		sqlStr += " AND project = ?"
		args = append(args, projectRef)
	}
	sqlStr += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	results, err := s.queryEntries(ctx, sqlStr, args...)
	if err != nil {
		return []discussion.MemoryEntry{}
	}
	return results
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]discussion.MemoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	results := []discussion.MemoryEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *e)
	}
	return results, rows.Err()
}

func scanEntry(row rowScanner) (*discussion.MemoryEntry, error) {
	var e discussion.MemoryEntry
	var sessionRef, tags, embeddingRef *string
	if err := row.Scan(&e.ID, &sessionRef, &e.ProjectRef, &e.Category, &e.Content,
		&tags, &embeddingRef, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.SessionRef = derefString(sessionRef)
	e.EmbeddingRef = derefString(embeddingRef)
	if tags != nil && *tags != "" {
		if err := json.Unmarshal([]byte(*tags), &e.Tags); err != nil {
			return nil, fmt.Errorf("parse tags: %w", err)
		}
	}
	return &e, nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

// sanitizeFTS wraps each word in quotes for safe FTS5 queries.
// "task manager spec" → `"task" "manager" "spec"`
func sanitizeFTS(query string) string {
	words := strings.Fields(query)
	for i, w := range words {
		w = strings.Trim(w, `"`)
		words[i] = `"` + w + `"`
	}
	return strings.Join(words, " ")
}
