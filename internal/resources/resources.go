// Package resources implements MCP resource handlers for NeuroDock.
//
// Resources provide read-only data that the host can consume for context.
// They use URI-based addressing (neurodock://...) following MCP conventions.
package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/barnent1/neuro-dock-sub000/internal/memory"
	"github.com/mark3labs/mcp-go/mcp"
)

// Handler manages NeuroDock resource endpoints.
type Handler struct {
	store *memory.Store
}

// NewHandler creates a resource Handler with its dependencies.
func NewHandler(store *memory.Store) *Handler {
	return &Handler{store: store}
}

// StatusResource returns the MCP resource definition for discussion status.
func (h *Handler) StatusResource() mcp.Resource {
	return mcp.NewResource(
		"neurodock://discussion/status",
		"NeuroDock Discussion Status",
		mcp.WithResourceDescription("Recent discussion sessions with state, iteration, and completion estimate"),
		mcp.WithMIMEType("application/json"),
	)
}

// statusView is the JSON shape of one session in the status resource.
type statusView struct {
	SessionID          string `json:"session_id"`
	Project            string `json:"project"`
	Status             string `json:"status"`
	Iteration          int    `json:"iteration"`
	CompletionEstimate int    `json:"completion_estimate"`
	UpdatedAt          string `json:"updated_at"`
}

// HandleStatus returns recent discussion sessions as JSON.
func (h *Handler) HandleStatus(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	sessions, err := h.store.RecentSessions(ctx, "", 10)
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}

	views := make([]statusView, len(sessions))
	for i, s := range sessions {
		views[i] = statusView{
			SessionID:          s.ID,
			Project:            s.ProjectRef,
			Status:             string(s.Status),
			Iteration:          s.Iteration,
			CompletionEstimate: s.CompletionEstimate,
			UpdatedAt:          s.UpdatedAt,
		}
	}

	data, err := json.MarshalIndent(views, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling status: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// errorResource returns a resource with an error message.
func errorResource(uri, message string) []mcp.ResourceContents {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "text/plain",
			Text:     fmt.Sprintf("Error: %s", message),
		},
	}
}
