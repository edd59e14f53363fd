// NeuroDock: Requirement-Discussion MCP Server
//
// A universal MCP server that integrates with any AI coding tool
// (Claude Code, OpenCode, Gemini CLI, Codex, Cursor, VS Code Copilot)
// to turn vague project ideas into clear specifications and
// machine-readable task plans.
//
// Usage:
//
//	neurodock serve    # Start MCP server (stdio transport)
package main

import (
	"fmt"
	"os"

	ndserver "github.com/barnent1/neuro-dock-sub000/internal/server"
	"github.com/mark3labs/mcp-go/server"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := run(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "--help", "-h", "help":
		printUsage()
		os.Exit(0)
	case "--version", "-v", "version":
		fmt.Printf("neurodock v%s\n", ndserver.Version)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func run() error {
	s, cleanup, err := ndserver.New()
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer cleanup()

	// Stdout is the MCP transport; anything human-readable goes to stderr.
	return server.ServeStdio(s)
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `NeuroDock v%s — Requirement-Discussion MCP Server

Usage:
  neurodock serve    Start the MCP server (stdio transport)

Configuration:
  Add to your AI tool's MCP config:

  {
    "mcpServers": {
      "neurodock": {
        "command": "neurodock",
        "args": ["serve"]
      }
    }
  }

Environment:
  NEURODOCK_DATA_DIR   Data directory (default: ~/.neurodock)
`, ndserver.Version)
}
