package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/barnent1/neuro-dock-sub000/internal/discussion"
	"github.com/mark3labs/mcp-go/mcp"
)

// ─── DiscussStartTool ───────────────────────────────────────────────────────

// DiscussStartTool handles the nd_discuss_start MCP tool.
type DiscussStartTool struct {
	engine *discussion.Engine
}

// NewDiscussStartTool creates a DiscussStartTool.
func NewDiscussStartTool(engine *discussion.Engine) *DiscussStartTool {
	return &DiscussStartTool{engine: engine}
}

// Definition returns the MCP tool definition for registration.
func (t *DiscussStartTool) Definition() mcp.Tool {
	return mcp.NewTool("nd_discuss_start",
		mcp.WithDescription(
			"Open a requirement discussion for a project from a one-line idea. "+
				"Returns the first batch of clarifying questions to relay to the human. "+
				"A project can have at most one active discussion at a time.",
		),
		mcp.WithString("project",
			mcp.Required(),
			mcp.Description("Project identifier the discussion belongs to"),
		),
		mcp.WithString("prompt",
			mcp.Required(),
			mcp.Description("The initial free-text project description"),
		),
	)
}

// Handle processes the nd_discuss_start tool call.
func (t *DiscussStartTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project := req.GetString("project", "")
	prompt := req.GetString("prompt", "")

	s, err := t.engine.Start(ctx, project, prompt)
	if err != nil {
		return toolError(err)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# Discussion Started — %s\n\n", s.ProjectRef))
	sb.WriteString(fmt.Sprintf("**Session:** %s\n**Iteration:** 0\n", s.ID))
	sb.WriteString(formatQuestions(s.PendingQuestions()))
	return mcp.NewToolResultText(sb.String()), nil
}

// ─── DiscussAnswerTool ──────────────────────────────────────────────────────

// DiscussAnswerTool handles the nd_discuss_answer MCP tool.
type DiscussAnswerTool struct {
	engine *discussion.Engine
}

// NewDiscussAnswerTool creates a DiscussAnswerTool.
func NewDiscussAnswerTool(engine *discussion.Engine) *DiscussAnswerTool {
	return &DiscussAnswerTool{engine: engine}
}

// Definition returns the MCP tool definition for registration.
func (t *DiscussAnswerTool) Definition() mcp.Tool {
	return mcp.NewTool("nd_discuss_answer",
		mcp.WithDescription(
			"Submit the human's answers to the pending questions of a discussion. "+
				"Answers are keyed by question ID; a partial set is accepted and open "+
				"questions carry over to the next round. Completeness analysis runs "+
				"synchronously — expect this to be the slow call.",
		),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Discussion session identifier"),
		),
		mcp.WithString("answers",
			mcp.Required(),
			mcp.Description(
				`JSON object mapping question ID to answer text, e.g. {"q0-1": "web app", "q0-2": "single user"}`,
			),
		),
	)
}

// Handle processes the nd_discuss_answer tool call.
func (t *DiscussAnswerTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := req.GetString("session_id", "")
	answersJSON := req.GetString("answers", "")

	if strings.TrimSpace(answersJSON) == "" {
		return mcp.NewToolResultError("'answers' is required"), nil
	}

	var answers map[string]string
	if err := json.Unmarshal([]byte(answersJSON), &answers); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("'answers' must be a JSON object of question ID to text: %v", err)), nil
	}

	report, err := t.engine.SubmitAnswers(ctx, sessionID, answers)
	if err != nil {
		return toolError(err)
	}
	return mcp.NewToolResultText(formatReport(report)), nil
}

// ─── DiscussStatusTool ──────────────────────────────────────────────────────

// DiscussStatusTool handles the nd_discuss_status MCP tool.
type DiscussStatusTool struct {
	engine *discussion.Engine
}

// NewDiscussStatusTool creates a DiscussStatusTool.
func NewDiscussStatusTool(engine *discussion.Engine) *DiscussStatusTool {
	return &DiscussStatusTool{engine: engine}
}

// Definition returns the MCP tool definition for registration.
func (t *DiscussStatusTool) Definition() mcp.Tool {
	return mcp.NewTool("nd_discuss_status",
		mcp.WithDescription(
			"Read the current status of a discussion: state, iteration, completion "+
				"estimate, and any pending questions. Safe to call at any time.",
		),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Discussion session identifier"),
		),
	)
}

// Handle processes the nd_discuss_status tool call.
func (t *DiscussStatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := req.GetString("session_id", "")

	report, err := t.engine.GetStatus(ctx, sessionID)
	if err != nil {
		return toolError(err)
	}
	return mcp.NewToolResultText(formatReport(report)), nil
}

// ─── DiscussAbortTool ───────────────────────────────────────────────────────

// DiscussAbortTool handles the nd_discuss_abort MCP tool.
type DiscussAbortTool struct {
	engine *discussion.Engine
}

// NewDiscussAbortTool creates a DiscussAbortTool.
func NewDiscussAbortTool(engine *discussion.Engine) *DiscussAbortTool {
	return &DiscussAbortTool{engine: engine}
}

// Definition returns the MCP tool definition for registration.
func (t *DiscussAbortTool) Definition() mcp.Tool {
	return mcp.NewTool("nd_discuss_abort",
		mcp.WithDescription(
			"Abort an active discussion. The reason is preserved in project memory. "+
				"Aborting an already-failed discussion is a no-op.",
		),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Discussion session identifier"),
		),
		mcp.WithString("reason",
			mcp.Description("Why the discussion is being abandoned"),
		),
	)
}

// Handle processes the nd_discuss_abort tool call.
func (t *DiscussAbortTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := req.GetString("session_id", "")
	reason := req.GetString("reason", "")

	if err := t.engine.Abort(ctx, sessionID, reason); err != nil {
		return toolError(err)
	}
	return mcp.NewToolResultText(fmt.Sprintf("Discussion %s aborted.", sessionID)), nil
}
