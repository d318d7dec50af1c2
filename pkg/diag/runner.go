// Package diag gathers host diagnostics for the dashboard: process and
// repository status from external commands, and recent commit activity
// across local repositories.
package diag

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/emanuelteklu/cc-sidecar/pkg/observability"
)

const defaultCommandTimeout = 10 * time.Second

// Runner executes diagnostic commands with a bounded runtime. Results are
// always strings; failures are rendered as "error: <detail>" so a broken
// tool never fails the request that asked for it.
type Runner struct {
	timeout time.Duration
}

func NewRunner(timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	return &Runner{timeout: timeout}
}

// Run executes argv and returns its trimmed stdout.
func (r *Runner) Run(ctx context.Context, argv ...string) string {
	if len(argv) == 0 {
		return "error: no command"
	}
	label := filepath.Base(argv[0])

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	// Children that inherit stdout keep the pipe open after the kill.
	cmd.WaitDelay = time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := strings.TrimSpace(stdout.String())
	if err == nil {
		return out
	}

	if ctx.Err() == context.DeadlineExceeded {
		observability.DiagCommandFailures.WithLabelValues(label).Inc()
		return fmt.Sprintf("error: %s timed out after %s", label, r.timeout)
	}

	var exitErr *exec.ExitError
	if stderrors.As(err, &exitErr) {
		// Non-zero exit still reports whatever the tool printed.
		if out != "" {
			return out
		}
		observability.DiagCommandFailures.WithLabelValues(label).Inc()
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Sprintf("error: %s: %s", exitErr, msg)
		}
		return fmt.Sprintf("error: %s", exitErr)
	}

	observability.DiagCommandFailures.WithLabelValues(label).Inc()
	return fmt.Sprintf("error: %v", err)
}
