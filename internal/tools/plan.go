package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/barnent1/neuro-dock-sub000/internal/discussion"
	"github.com/barnent1/neuro-dock-sub000/internal/planner"
	"github.com/mark3labs/mcp-go/mcp"
)

// ─── PlanCompileTool ────────────────────────────────────────────────────────

// PlanCompileTool handles the nd_plan_compile MCP tool.
type PlanCompileTool struct {
	engine   *discussion.Engine
	compiler *planner.Compiler
	memories discussion.MemoryStore
}

// NewPlanCompileTool creates a PlanCompileTool.
func NewPlanCompileTool(engine *discussion.Engine, compiler *planner.Compiler, memories discussion.MemoryStore) *PlanCompileTool {
	return &PlanCompileTool{engine: engine, compiler: compiler, memories: memories}
}

// Definition returns the MCP tool definition for registration.
func (t *PlanCompileTool) Definition() mcp.Tool {
	return mcp.NewTool("nd_plan_compile",
		mcp.WithDescription(
			"Compile a finalized discussion into a dependency-ordered task plan. "+
				"The session must be ready_for_planning. Compilation is deterministic: "+
				"the same session always yields the same tasks. The rendered plan is "+
				"stored in project memory.",
		),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Finalized discussion session identifier"),
		),
	)
}

// Handle processes the nd_plan_compile tool call.
func (t *PlanCompileTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := req.GetString("session_id", "")

	s, err := t.engine.Get(ctx, sessionID)
	if err != nil {
		return toolError(err)
	}

	plan, err := t.compiler.Compile(s)
	if err != nil {
		return toolError(err)
	}

	doc, err := t.compiler.RenderMarkdown(plan)
	if err != nil {
		return nil, fmt.Errorf("rendering task plan: %w", err)
	}

	entry := discussion.MemoryEntry{
		SessionRef: s.ID,
		ProjectRef: s.ProjectRef,
		Category:   "plan",
		Content:    doc,
		Tags:       []string{"task-plan"},
		CreatedAt:  plan.GeneratedAt,
	}
	if _, err := t.memories.Put(ctx, entry); err != nil {
		return nil, fmt.Errorf("persisting task plan: %w", err)
	}

	return mcp.NewToolResultText(doc), nil
}

// ─── PlanDecomposeTool ──────────────────────────────────────────────────────

// PlanDecomposeTool handles the nd_plan_decompose MCP tool.
type PlanDecomposeTool struct {
	engine   *discussion.Engine
	compiler *planner.Compiler
}

// NewPlanDecomposeTool creates a PlanDecomposeTool.
func NewPlanDecomposeTool(engine *discussion.Engine, compiler *planner.Compiler) *PlanDecomposeTool {
	return &PlanDecomposeTool{engine: engine, compiler: compiler}
}

// Definition returns the MCP tool definition for registration.
func (t *PlanDecomposeTool) Definition() mcp.Tool {
	return mcp.NewTool("nd_plan_decompose",
		mcp.WithDescription(
			"Split one task from a compiled plan into smaller sequential subtasks. "+
				"Intended for tasks flagged as needing decomposition. The plan is "+
				"recompiled deterministically, so task IDs match nd_plan_compile output.",
		),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Finalized discussion session identifier"),
		),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("ID of the task to decompose, e.g. t3"),
		),
	)
}

// Handle processes the nd_plan_decompose tool call.
func (t *PlanDecomposeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := req.GetString("session_id", "")
	taskID := strings.TrimSpace(req.GetString("task_id", ""))
	if taskID == "" {
		return mcp.NewToolResultError("'task_id' is required"), nil
	}

	s, err := t.engine.Get(ctx, sessionID)
	if err != nil {
		return toolError(err)
	}

	plan, err := t.compiler.Compile(s)
	if err != nil {
		return toolError(err)
	}

	var target *planner.Task
	for i := range plan.Tasks {
		if plan.Tasks[i].ID == taskID {
			target = &plan.Tasks[i]
			break
		}
	}
	if target == nil {
		return mcp.NewToolResultError(fmt.Sprintf("task %q not found in the plan for session %s", taskID, sessionID)), nil
	}

	subtasks := t.compiler.Decompose(*target)

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# Decomposition of %s\n\n", target.ID))
	sb.WriteString(fmt.Sprintf("**Original:** %s (complexity %d)\n\n", target.Description, target.Complexity))
	for _, st := range subtasks {
		sb.WriteString(fmt.Sprintf("- **%s** (complexity %d", st.ID, st.Complexity))
		if len(st.DependsOn) > 0 {
			sb.WriteString(", after " + strings.Join(st.DependsOn, ", "))
		}
		sb.WriteString("): " + st.Description + "\n")
	}
	return mcp.NewToolResultText(sb.String()), nil
}
