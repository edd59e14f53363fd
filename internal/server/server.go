// Package server wires all MCP components and creates the server instance.
//
// This is the composition root (DIP): it creates concrete implementations
// and injects them into the tools/prompts/resources that depend on abstractions.
// No business logic lives here, only wiring.
package server

import (
	"fmt"
	"log"

	"github.com/barnent1/neuro-dock-sub000/internal/clarity"
	"github.com/barnent1/neuro-dock-sub000/internal/discussion"
	"github.com/barnent1/neuro-dock-sub000/internal/memory"
	"github.com/barnent1/neuro-dock-sub000/internal/planner"
	"github.com/barnent1/neuro-dock-sub000/internal/prompts"
	"github.com/barnent1/neuro-dock-sub000/internal/resources"
	"github.com/barnent1/neuro-dock-sub000/internal/templates"
	"github.com/barnent1/neuro-dock-sub000/internal/tools"
	"github.com/mark3labs/mcp-go/server"
)

// Version is set at build time via ldflags.
var Version = "dev"

// New creates and configures the MCP server with all tools, prompts,
// and resources registered. This is the single place where all
// dependencies are resolved.
//
// The returned cleanup function closes the memory store's database
// connection and must be called on shutdown (typically via defer).
// It is always non-nil and safe to call even if initialization failed.
func New() (*server.MCPServer, func(), error) {
	// --- Create shared dependencies ---

	store, err := memory.New(memory.DefaultConfig())
	if err != nil {
		return nil, noop, fmt.Errorf("opening memory store: %w", err)
	}
	cleanup := func() {
		if err := store.Close(); err != nil {
			log.Printf("WARNING: memory store close: %v", err)
		}
	}

	renderer, err := templates.NewRenderer()
	if err != nil {
		return nil, cleanup, fmt.Errorf("creating template renderer: %w", err)
	}

	analyzer := clarity.New(clarity.DefaultConfig())

	engine := discussion.New(store, store, analyzer, analyzer, renderer, discussion.DefaultConfig())
	compiler := planner.New(renderer)

	// --- Create the MCP server ---

	s := server.NewMCPServer(
		"neurodock",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// --- Register discussion tools ---

	startTool := tools.NewDiscussStartTool(engine)
	s.AddTool(startTool.Definition(), startTool.Handle)

	answerTool := tools.NewDiscussAnswerTool(engine)
	s.AddTool(answerTool.Definition(), answerTool.Handle)

	statusTool := tools.NewDiscussStatusTool(engine)
	s.AddTool(statusTool.Definition(), statusTool.Handle)

	abortTool := tools.NewDiscussAbortTool(engine)
	s.AddTool(abortTool.Definition(), abortTool.Handle)

	// --- Register planning tools ---

	planTool := tools.NewPlanCompileTool(engine, compiler, store)
	s.AddTool(planTool.Definition(), planTool.Handle)

	decomposeTool := tools.NewPlanDecomposeTool(engine, compiler)
	s.AddTool(decomposeTool.Definition(), decomposeTool.Handle)

	// --- Register memory tools ---

	saveTool := tools.NewMemorySaveTool(store)
	s.AddTool(saveTool.Definition(), saveTool.Handle)

	searchTool := tools.NewMemorySearchTool(store)
	s.AddTool(searchTool.Definition(), searchTool.Handle)

	getTool := tools.NewMemoryGetTool(store)
	s.AddTool(getTool.Definition(), getTool.Handle)

	// --- Register prompts ---

	startPrompt := prompts.NewStartPrompt()
	s.AddPrompt(startPrompt.Definition(), startPrompt.Handle)

	statusPrompt := prompts.NewStatusPrompt()
	s.AddPrompt(statusPrompt.Definition(), statusPrompt.Handle)

	// --- Register resources ---

	resourceHandler := resources.NewHandler(store)
	s.AddResource(resourceHandler.StatusResource(), resourceHandler.HandleStatus)

	return s, cleanup, nil
}

// noop is a no-op cleanup function used before the store is open.
func noop() {}

// serverInstructions returns the system instructions that tell the AI
// how to use NeuroDock effectively.
func serverInstructions() string {
	return `You have access to NeuroDock, a requirement-discussion MCP server.

## What NeuroDock Does

NeuroDock turns a vague project idea into a clear specification and a
machine-readable task plan through an iterative question/answer loop.
You are the navigator: you relay questions to the human, collect their
answers, and drive the engine. NeuroDock decides when enough is known.

## WHEN TO ACTIVATE NeuroDock

Proactively suggest NeuroDock when the user:
- Asks to build a new project, app, or system
- Describes a vague idea and wants to start coding
- Says things like "I want to build...", "let's create..."
- Asks you to plan or scope something

You do NOT need NeuroDock for bug fixes, small patches, refactors, or
questions.

## The Discussion Loop

1. nd_discuss_start(project, prompt) — opens the discussion and returns
   the first question batch. One active discussion per project.
2. Relay the questions to the human VERBATIM. Collect answers.
3. nd_discuss_answer(session_id, answers) — answers is a JSON object
   keyed by question ID. Partial answers are fine: open questions carry
   over to the next round, they are never dropped.
4. The engine analyzes completeness after every answer batch. Either
   you get follow-up questions (go to step 2) or the discussion becomes
   ready_for_planning.
5. nd_plan_compile(session_id) — compiles the finalized discussion into
   a dependency-ordered task plan. Deterministic: same session, same plan.
6. For tasks flagged "needs decomposition", offer nd_plan_decompose.

## Important Rules

- NEVER answer the questions yourself — they are for the human.
- NEVER skip the discussion and invent a plan.
- Submit answers keyed by the exact question IDs you were given.
- nd_discuss_answer runs analysis synchronously — it is the slow call.
- If the human wants to stop, use nd_discuss_abort with their reason.
- A failed discussion is terminal; start a fresh one.

## Project Memory

- The finalized specification and compiled plans are saved to project
  memory automatically.
- nd_memory_save records decisions and context. Memory is append-only:
  correct an earlier entry by saving a new one with supersedes=<id>.
- nd_memory_search finds entries by full-text relevance; an empty query
  lists the most recent. nd_memory_get fetches one entry in full.
- At the start of a session, check the neurodock://discussion/status
  resource and search memory to recover context.`
}
