package process

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"runtime"
	"strings"
	"testing"
	"time"

	"trim-it/internal/domain"
)

// TestLimitedWriterKeepsTail verifies bounded capture of long output.
func TestLimitedWriterKeepsTail(t *testing.T) {
	var buf bytes.Buffer
	w := &limitedWriter{w: &buf, limit: 8}

	for _, chunk := range []string{"0123", "4567", "89ab"} {
		n, err := w.Write([]byte(chunk))
		if err != nil || n != len(chunk) {
			t.Fatalf("Write(%q) = %d, %v", chunk, n, err)
		}
	}
	if buf.String() != "456789ab" {
		t.Fatalf("tail = %q, want 456789ab", buf.String())
	}
}

// TestExecRunnerMissingBinary maps exec lookup failures to not-found.
func TestExecRunnerMissingBinary(t *testing.T) {
	_, err := ExecRunner{}.Run(context.Background(), "trimit-definitely-missing-binary")
	if !errors.Is(err, domain.ErrSubprocessNotFound) {
		t.Fatalf("error = %v, want %v", err, domain.ErrSubprocessNotFound)
	}
}

// TestExecRunnerNonZeroExit captures exit code and stderr.
func TestExecRunnerNonZeroExit(t *testing.T) {
	sh := requireShell(t)
	log, err := ExecRunner{}.Run(context.Background(), sh, "-c", "echo broken >&2; exit 3")
	if !errors.Is(err, domain.ErrSubprocessNonZero) {
		t.Fatalf("error = %v, want %v", err, domain.ErrSubprocessNonZero)
	}
	if log.ExitCode != 3 {
		t.Fatalf("exit code = %d, want 3", log.ExitCode)
	}
	if !strings.Contains(log.Stderr, "broken") {
		t.Fatalf("stderr = %q", log.Stderr)
	}
}

// TestExecRunnerCancelKillsChild ensures cancellation terminates the process.
func TestExecRunnerCancelKillsChild(t *testing.T) {
	sh := requireShell(t)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := ExecRunner{}.Run(ctx, sh, "-c", "sleep 30")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("child was not killed promptly (%s)", elapsed)
	}
}

// TestTruncateKeepsTail checks message shortening.
func TestTruncateKeepsTail(t *testing.T) {
	if got := Truncate("  abcdef  ", 3); got != "...def" {
		t.Fatalf("Truncate = %q", got)
	}
	if got := Truncate("abc", 10); got != "abc" {
		t.Fatalf("Truncate = %q", got)
	}
}

func requireShell(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	return sh
}
