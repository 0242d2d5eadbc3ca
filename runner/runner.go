// Package runner abstracts external process invocation so the fetch
// and audio stages can be tested without ffmpeg or a downloader binary
// on the machine.
package runner

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
)

// Result captures one process invocation.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// A Runner executes one command and waits for it to finish.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// New returns a Runner backed by os/exec.
func New() Runner {
	return &execRunner{}
}

type execRunner struct{}

func (r *execRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}
	return result, nil
}

// Func adapts a function to the Runner interface, for tests.
type Func func(ctx context.Context, name string, args ...string) (Result, error)

func (f Func) Run(ctx context.Context, name string, args ...string) (Result, error) {
	return f(ctx, name, args...)
}
