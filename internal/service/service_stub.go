//go:build !windows

// Package service provides a stub implementation for non-Windows platforms.
// On Linux and macOS the agent runs as a foreground process supervised by
// the init system.
package service

import (
	"context"

	"go.uber.org/zap"
)

// AgentService runs the agent directly on non-Windows platforms.
type AgentService struct {
	logger  *zap.Logger
	startFn func(ctx context.Context)
}

// New creates a stub service wrapper for non-Windows platforms.
func New(logger *zap.Logger, startFn func(ctx context.Context)) *AgentService {
	return &AgentService{
		logger:  logger,
		startFn: startFn,
	}
}

// IsWindowsService always returns false on non-Windows platforms.
func IsWindowsService() bool {
	return false
}

// Run executes the agent directly until it returns.
func (s *AgentService) Run() error {
	s.startFn(context.Background())
	return nil
}
