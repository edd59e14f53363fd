// Package prompts implements MCP prompt handlers for NeuroDock.
//
// MCP prompts are user-triggered workflows (like slash commands) that
// instruct the AI to execute a specific sequence. Unlike tools (which
// the AI calls), prompts are initiated by the user.
package prompts

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// StartPrompt handles the nd_start MCP prompt.
// It guides the AI to open a requirement discussion and drive it to a plan.
type StartPrompt struct{}

// NewStartPrompt creates a StartPrompt.
func NewStartPrompt() *StartPrompt {
	return &StartPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *StartPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("nd_start",
		mcp.WithPromptDescription(
			"Start a NeuroDock requirement discussion: turn a vague project idea "+
				"into a clear specification and a machine-readable task plan through "+
				"iterative questions and answers.",
		),
		mcp.WithArgument("project",
			mcp.ArgumentDescription("Project identifier"),
		),
		mcp.WithArgument("idea",
			mcp.ArgumentDescription("The initial project idea, in one or two sentences"),
		),
	)
}

// Handle processes the nd_start prompt request.
func (p *StartPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	project := "my-project"
	idea := ""
	if args := req.Params.Arguments; args != nil {
		if v, ok := args["project"]; ok && v != "" {
			project = v
		}
		if v, ok := args["idea"]; ok {
			idea = v
		}
	}

	ideaLine := "Ask me to describe the project idea first."
	if idea != "" {
		ideaLine = fmt.Sprintf("My idea: %s", idea)
	}

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Start requirement discussion: %s", project),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(fmt.Sprintf(
					"I want to work out the requirements for project '%s' with NeuroDock.\n%s\n\n"+
						"Please:\n"+
						"1. Run `nd_discuss_start` with project='%s' and my idea as the prompt\n"+
						"2. Relay each batch of questions to me, collect my answers, and submit them with `nd_discuss_answer` (partial answers are fine)\n"+
						"3. Repeat until the discussion reaches ready_for_planning\n"+
						"4. Compile the task plan with `nd_plan_compile` and walk me through it\n"+
						"5. For any task flagged as needing decomposition, offer to split it with `nd_plan_decompose`",
					project, ideaLine, project,
				)),
			},
		},
	}, nil
}
