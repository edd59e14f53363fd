package tools

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/barnent1/neuro-dock-sub000/internal/discussion"
	"github.com/mark3labs/mcp-go/mcp"
)

// ─── MemorySaveTool ─────────────────────────────────────────────────────────

// MemorySaveTool handles the nd_memory_save MCP tool.
type MemorySaveTool struct {
	memories discussion.MemoryStore
}

// NewMemorySaveTool creates a MemorySaveTool.
func NewMemorySaveTool(memories discussion.MemoryStore) *MemorySaveTool {
	return &MemorySaveTool{memories: memories}
}

// Definition returns the MCP tool definition for registration.
func (t *MemorySaveTool) Definition() mcp.Tool {
	return mcp.NewTool("nd_memory_save",
		mcp.WithDescription(
			"Save a note to project memory. Memory is append-only: to correct an "+
				"earlier entry, save a new one with 'supersedes' set to its ID.",
		),
		mcp.WithString("project",
			mcp.Required(),
			mcp.Description("Project identifier the note belongs to"),
		),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("The note text"),
		),
		mcp.WithString("category",
			mcp.Description("Entry category, e.g. decision, constraint, context (default: note)"),
		),
		mcp.WithString("tags",
			mcp.Description("Comma-separated tags"),
		),
		mcp.WithString("session_id",
			mcp.Description("Discussion session this note came from, if any"),
		),
		mcp.WithString("supersedes",
			mcp.Description("ID of an earlier entry this note corrects"),
		),
	)
}

// Handle processes the nd_memory_save tool call.
func (t *MemorySaveTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project := strings.TrimSpace(req.GetString("project", ""))
	content := strings.TrimSpace(req.GetString("content", ""))
	category := strings.TrimSpace(req.GetString("category", "note"))
	if project == "" {
		return mcp.NewToolResultError("'project' is required"), nil
	}
	if content == "" {
		return mcp.NewToolResultError("'content' is required"), nil
	}
	if category == "" {
		category = "note"
	}

	var tags []string
	for _, tag := range strings.Split(req.GetString("tags", ""), ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	if supersedes := strings.TrimSpace(req.GetString("supersedes", "")); supersedes != "" {
		if _, err := strconv.ParseInt(supersedes, 10, 64); err != nil {
			return mcp.NewToolResultError("'supersedes' must be a memory entry ID"), nil
		}
		tags = append(tags, "supersedes:"+supersedes)
	}

	entry := discussion.MemoryEntry{
		SessionRef: strings.TrimSpace(req.GetString("session_id", "")),
		ProjectRef: project,
		Category:   category,
		Content:    content,
		Tags:       tags,
		CreatedAt:  time.Now().UTC().Format(time.RFC3339),
	}
	id, err := t.memories.Put(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("saving memory entry: %w", err)
	}
	return mcp.NewToolResultText(fmt.Sprintf("Saved memory entry %d (%s) for project %s.", id, category, project)), nil
}

// ─── MemorySearchTool ───────────────────────────────────────────────────────

// MemorySearchTool handles the nd_memory_search MCP tool.
type MemorySearchTool struct {
	memories discussion.MemoryStore
}

// NewMemorySearchTool creates a MemorySearchTool.
func NewMemorySearchTool(memories discussion.MemoryStore) *MemorySearchTool {
	return &MemorySearchTool{memories: memories}
}

// Definition returns the MCP tool definition for registration.
func (t *MemorySearchTool) Definition() mcp.Tool {
	return mcp.NewTool("nd_memory_search",
		mcp.WithDescription(
			"Search project memory by full-text relevance. An empty query lists "+
				"the most recent entries. Results are best-effort and never fail the "+
				"conversation.",
		),
		mcp.WithString("query",
			mcp.Description("Free-text search terms"),
		),
		mcp.WithString("project",
			mcp.Description("Limit results to one project"),
		),
		mcp.WithString("limit",
			mcp.Description("Maximum number of results (default 10)"),
		),
	)
}

// Handle processes the nd_memory_search tool call.
func (t *MemorySearchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	project := strings.TrimSpace(req.GetString("project", ""))

	limit := 10
	if raw := strings.TrimSpace(req.GetString("limit", "")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return mcp.NewToolResultError("'limit' must be a positive integer"), nil
		}
		limit = n
	}

	entries, err := t.memories.Search(ctx, query, project, limit)
	if err != nil {
		return nil, fmt.Errorf("searching memory: %w", err)
	}
	if len(entries) == 0 {
		return mcp.NewToolResultText("No memory entries matched."), nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# Memory Search — %d result(s)\n\n", len(entries)))
	for _, e := range entries {
		sb.WriteString(formatEntry(e, true))
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// ─── MemoryGetTool ──────────────────────────────────────────────────────────

// MemoryGetTool handles the nd_memory_get MCP tool.
type MemoryGetTool struct {
	memories discussion.MemoryStore
}

// NewMemoryGetTool creates a MemoryGetTool.
func NewMemoryGetTool(memories discussion.MemoryStore) *MemoryGetTool {
	return &MemoryGetTool{memories: memories}
}

// Definition returns the MCP tool definition for registration.
func (t *MemoryGetTool) Definition() mcp.Tool {
	return mcp.NewTool("nd_memory_get",
		mcp.WithDescription(
			"Fetch one memory entry in full by ID. Use this to read a complete "+
				"finalized specification or task plan that search truncated.",
		),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Memory entry ID"),
		),
	)
}

// Handle processes the nd_memory_get tool call.
func (t *MemoryGetTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw := strings.TrimSpace(req.GetString("id", ""))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return mcp.NewToolResultError("'id' must be a memory entry ID"), nil
	}

	entry, err := t.memories.Get(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatEntry(*entry, false)), nil
}

// formatEntry renders one memory entry; truncated mode keeps listings short.
func formatEntry(e discussion.MemoryEntry, truncated bool) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Entry %d — %s / %s\n", e.ID, e.ProjectRef, e.Category))
	if e.SessionRef != "" {
		sb.WriteString(fmt.Sprintf("Session: %s\n", e.SessionRef))
	}
	if len(e.Tags) > 0 {
		sb.WriteString("Tags: " + strings.Join(e.Tags, ", ") + "\n")
	}
	sb.WriteString(fmt.Sprintf("Created: %s\n\n", e.CreatedAt))

	content := e.Content
	if truncated && len(content) > 400 {
		content = content[:400] + fmt.Sprintf("...\n\n*(truncated — fetch entry %d with nd_memory_get for the full text)*", e.ID)
	}
	sb.WriteString(content + "\n\n")
	return sb.String()
}
