package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/emgroup/sitesync/internal/auth"
	"github.com/emgroup/sitesync/internal/workspace"
)

// Opener creates an opened workspace for one project and participant.
type Opener func(ctx context.Context, projectID string, who auth.Identity) (*workspace.Workspace, error)

// Sessions keeps one open workspace per project and participant, so repeated
// tool calls see the same synchronized state.
type Sessions struct {
	open   Opener
	logger *slog.Logger

	mu     sync.Mutex
	byKey  map[string]*workspace.Workspace
	closed bool
}

// NewSessions creates an empty registry.
func NewSessions(open Opener, logger *slog.Logger) *Sessions {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Sessions{open: open, logger: logger, byKey: make(map[string]*workspace.Workspace)}
}

// Get returns the workspace for projectID and who, opening it on first use.
func (s *Sessions) Get(ctx context.Context, projectID string, who auth.Identity) (*workspace.Workspace, error) {
	key := projectID + "\x00" + who.Email

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, workspace.ErrNotOpen
	}
	if ws, ok := s.byKey[key]; ok {
		return ws, nil
	}
	ws, err := s.open(context.WithoutCancel(ctx), projectID, who)
	if err != nil {
		return nil, fmt.Errorf("opening workspace %s: %w", projectID, err)
	}
	s.byKey[key] = ws
	s.logger.Info("workspace session started", "project", projectID, "user", who.Email)
	return ws, nil
}

// Len reports how many workspaces are open.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byKey)
}

// Close closes every workspace. Later Get calls fail.
func (s *Sessions) Close() {
	s.mu.Lock()
	all := s.byKey
	s.byKey = make(map[string]*workspace.Workspace)
	s.closed = true
	s.mu.Unlock()

	for _, ws := range all {
		ws.Close()
	}
}
