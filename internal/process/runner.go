// Package process runs external tools with bounded output capture.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strings"
	"time"

	"trim-it/internal/domain"
)

const (
	// MaxTailBytes bounds how much of stdout and stderr is kept per run.
	MaxTailBytes = 8 * 1024

	waitDelay = 5 * time.Second
)

// Log captures one external command invocation.
type Log struct {
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	ExitCode int      `json:"exitCode"`
	Stdout   string   `json:"stdout"`
	Stderr   string   `json:"stderr"`
}

// String renders the command line for logs.
func (l Log) String() string {
	return strings.Join(append([]string{l.Command}, l.Args...), " ")
}

// Runner abstracts process execution for testability.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Log, error)
}

// ExecRunner executes commands via os/exec. Arguments are passed as
// discrete tokens and never through a shell.
type ExecRunner struct{}

// Run executes one command and captures output tails and exit code.
// The child and everything it spawned are killed when ctx is cancelled.
// The returned error wraps
// domain.ErrSubprocessNotFound or domain.ErrSubprocessNonZero, or is the
// context error on cancellation.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) (Log, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = waitDelay
	killProcessGroup(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &limitedWriter{w: &stdout, limit: MaxTailBytes}
	cmd.Stderr = &limitedWriter{w: &stderr, limit: MaxTailBytes}

	err := cmd.Run()
	log := Log{
		Command: name,
		Args:    append([]string(nil), args...),
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
	}
	if err == nil {
		return log, nil
	}

	log.ExitCode = -1
	if ctxErr := ctx.Err(); ctxErr != nil {
		return log, ctxErr
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		log.ExitCode = exitErr.ExitCode()
		return log, fmt.Errorf("%w: %s exited with code %d", domain.ErrSubprocessNonZero, name, log.ExitCode)
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return log, fmt.Errorf("%w: %s: %v", domain.ErrSubprocessNotFound, name, err)
	}
	return log, fmt.Errorf("%w: %s: %v", domain.ErrSubprocessNonZero, name, err)
}

// Truncate shortens s to at most n bytes, keeping the tail.
func Truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		b := lw.w.Bytes()
		tail := append([]byte(nil), b[len(b)-lw.limit:]...)
		lw.w.Reset()
		lw.w.Write(tail)
	}
	return n, nil
}
