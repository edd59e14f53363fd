// Package tools implements the MCP tool surface of NeuroDock: the session
// gateway through which the AI client (the navigator) drives discussions,
// relays answers from the human, and pulls compiled plans.
//
// Each tool is a small struct with Definition/Handle, depending only on the
// engine and store abstractions it needs.
package tools

import (
	"errors"
	"fmt"
	"strings"

	"github.com/barnent1/neuro-dock-sub000/internal/discussion"
	"github.com/mark3labs/mcp-go/mcp"
)

// toolError maps an engine error onto the MCP result channel: typed
// discussion errors (validation, conflict, state, not-found, generation,
// analysis) are user-recoverable or at least user-explainable, so they
// become tool error results. Anything else is infrastructure trouble and
// propagates as a Go error.
func toolError(err error) (*mcp.CallToolResult, error) {
	var de *discussion.Error
	if errors.As(err, &de) {
		return mcp.NewToolResultError(de.Error()), nil
	}
	return nil, err
}

// formatReport renders a status report as the markdown the navigator
// relays to the human.
func formatReport(r *discussion.StatusReport) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# Discussion Status — %s\n\n", r.ProjectRef))
	sb.WriteString(fmt.Sprintf("**Session:** %s\n", r.SessionID))
	sb.WriteString(fmt.Sprintf("**Status:** %s\n", r.Status))
	sb.WriteString(fmt.Sprintf("**Iteration:** %d\n", r.Iteration))
	sb.WriteString(fmt.Sprintf("**Completion estimate:** %d/100\n", r.CompletionEstimate))

	switch r.Status {
	case discussion.StatusReadyForPlanning:
		sb.WriteString("\nThe discussion is complete. Compile the task plan with `nd_plan_compile`.\n")
	case discussion.StatusFailed:
		sb.WriteString("\nThe discussion failed. Start a fresh one with `nd_discuss_start`.\n")
	default:
		sb.WriteString(formatQuestions(r.PendingQuestions))
	}
	return sb.String()
}

// formatQuestions renders pending questions for relay to the human.
func formatQuestions(qs []discussion.Question) string {
	if len(qs) == 0 {
		return "\nNo questions are pending.\n"
	}

	var sb strings.Builder
	sb.WriteString("\n## Pending Questions\n\n")
	sb.WriteString("Relay these to the human and submit their answers with `nd_discuss_answer`, ")
	sb.WriteString("keyed by question ID. Partial answer sets are fine — open questions carry over.\n\n")
	for _, q := range qs {
		sb.WriteString(fmt.Sprintf("- **%s**: %s\n", q.ID, q.Text))
	}
	return sb.String()
}
