package session

import "context"

// Request is one instruction sent to an agent session.
type Request struct {
	Prompt string
	Role   string // "user" or "system"
}

// Result is the output of a completed agent session.
type Result struct {
	Output string
}

// Config defines how to launch an agent session.
type Config struct {
	Command      string   // Agent CLI binary name
	Args         []string // Default args prepended to every invocation
	Model        string   // Optional model override
	SystemPrompt string   // Optional role prompt
	WorkDir      string   // Working directory (a sandbox path)
}

// Runner executes agent sessions. Implementations must be safe to call
// from concurrent workers.
type Runner interface {
	// Run sends a request to the agent and returns its final output.
	Run(ctx context.Context, req Request) (Result, error)

	// Close terminates any live subprocess for this runner.
	Close() error
}
