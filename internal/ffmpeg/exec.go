package ffmpeg

import (
	"bytes"
	"context"
	"os/exec"
)

// runOutputFn is the function type for running a command and capturing output.
type runOutputFn func(ctx context.Context, path string, args []string) (string, error)

// Executor runs external commands (ffmpeg, the separator, the conversion
// command) and captures their combined output.
type Executor struct {
	runOutput runOutputFn
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithRunOutput sets a custom runOutput function (for testing).
func WithRunOutput(fn runOutputFn) ExecutorOption {
	return func(e *Executor) { e.runOutput = fn }
}

// NewExecutor creates an Executor with the given options.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		runOutput: defaultRunOutput,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunOutput executes the command at path and captures its diagnostic output.
func (e *Executor) RunOutput(ctx context.Context, path string, args []string) (string, error) {
	return e.runOutput(ctx, path, args)
}

// defaultRunOutput is the production implementation.
// Output is returned even when the command fails: FFmpeg writes its
// diagnostics to stderr, and probing with "-i" alone exits non-zero.
func defaultRunOutput(ctx context.Context, path string, args []string) (string, error) {
	// #nosec G204 -- path comes from the resolver or user config, args are built by callers
	cmd := exec.CommandContext(ctx, path, args...)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	return out.String(), err
}
