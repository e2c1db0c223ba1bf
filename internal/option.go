package internal

import (
	"io"

	"github.com/starford/quill/internal/agent"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config  *Config
	planner agent.Planner
	logOut  io.Writer
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithPlanner overrides the planner built from the LLM configuration.
func WithPlanner(p agent.Planner) Option {
	return func(a *application) {
		a.planner = p
	}
}

// WithLogOutput redirects the JSON logger. The MCP command sends logs to
// stderr because stdout carries the protocol.
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logOut = w
	}
}
