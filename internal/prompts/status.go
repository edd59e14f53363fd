package prompts

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// StatusPrompt handles the nd_status MCP prompt.
// It instructs the AI to read and present the current discussion state.
type StatusPrompt struct{}

// NewStatusPrompt creates a StatusPrompt.
func NewStatusPrompt() *StatusPrompt {
	return &StatusPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *StatusPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("nd_status",
		mcp.WithPromptDescription(
			"Check where a NeuroDock discussion stands: state, iteration, "+
				"completion estimate, and what to do next.",
		),
		mcp.WithArgument("session_id",
			mcp.ArgumentDescription("Discussion session identifier, if known"),
		),
	)
}

// Handle processes the nd_status prompt request.
func (p *StatusPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	sessionID := ""
	if args := req.Params.Arguments; args != nil {
		sessionID = args["session_id"]
	}

	lead := "Please read the `neurodock://discussion/status` resource to find my discussions, " +
		"then run `nd_discuss_status` for the active one.\n\n"
	if sessionID != "" {
		lead = "Please run `nd_discuss_status` with session_id='" + sessionID + "'.\n\n"
	}

	return &mcp.GetPromptResult{
		Description: "Discussion Status",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(
					lead +
						"Then:\n" +
						"1. Show me the current state and completion estimate\n" +
						"2. If questions are pending, relay them to me\n" +
						"3. If the discussion is ready_for_planning, offer to compile the plan with `nd_plan_compile`\n" +
						"4. If it failed, summarize why and offer to start over",
				),
			},
		},
	}, nil
}
