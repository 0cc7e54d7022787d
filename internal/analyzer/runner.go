package analyzer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/sevigo/code-mender/internal/core"
)

// killGrace is how long a timed-out tool gets between cancellation and
// SIGKILL, so no orphaned processes are left behind.
const killGrace = 3 * time.Second

// Runner invokes one external lint tool against one file and converts
// whatever happens into a core.AnalysisResult. Failures of any kind (missing
// binary, timeout, crash, unparsable output) are captured in the result and
// never escape as errors, so one failing tool cannot abort a batch.
type Runner struct {
	timeout time.Duration
	logger  *slog.Logger
}

// NewRunner creates a tool runner with a per-invocation timeout.
func NewRunner(timeout time.Duration, logger *slog.Logger) *Runner {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{timeout: timeout, logger: logger}
}

// Run executes the tool against the file. The file must exist; a missing
// file is the one condition reported as an error because it indicates a
// caller bug rather than a tool failure.
func (r *Runner) Run(ctx context.Context, tool *Tool, file string) (core.AnalysisResult, error) {
	result := core.AnalysisResult{Tool: tool.Name, File: file}

	if _, err := os.Stat(file); err != nil {
		return result, fmt.Errorf("file does not exist: %s: %w", file, err)
	}

	// The caller cancelling the batch is different from this invocation
	// timing out; record it as such so partial results stay honest.
	if ctx.Err() != nil {
		result.Status = core.ResultCancelled
		result.Error = ctx.Err().Error()
		return result, nil
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	stdout, stderr, runErr := r.execute(runCtx, tool, file)
	result.Duration = time.Since(start)

	// A dead parent context means the batch ended, whatever runCtx says; only
	// attribute the expiry to r.timeout when the parent is still alive.
	if ctx.Err() != nil {
		result.Status = core.ResultCancelled
		result.Error = ctx.Err().Error()
		return result, nil
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		result.Status = core.ResultToolFailed
		result.Error = fmt.Sprintf("tool %s timed out after %s", tool.Name, r.timeout)
		r.logger.Warn("tool invocation timed out", "tool", tool.Name, "file", file, "timeout", r.timeout)
		return result, nil
	}

	issues, parseErr := parseOutput(tool, file, stdout, stderr)
	if parseErr != nil {
		// Lint tools routinely exit non-zero when they find issues, so the
		// exit code alone is not a failure. Unparsable output is.
		result.Status = core.ResultToolFailed
		result.Error = r.describeFailure(tool, runErr, parseErr, stderr)
		r.logger.Warn("tool output could not be parsed",
			"tool", tool.Name, "file", file, "error", parseErr, "exit_error", runErr)
		return result, nil
	}
	if runErr != nil && len(issues) == 0 && len(bytes.TrimSpace(stdout)) == 0 {
		result.Status = core.ResultToolFailed
		result.Error = r.describeFailure(tool, runErr, nil, stderr)
		r.logger.Warn("tool invocation failed", "tool", tool.Name, "file", file, "error", runErr)
		return result, nil
	}

	result.Status = core.ResultOK
	result.Issues = issues
	return result, nil
}

func (r *Runner) execute(ctx context.Context, tool *Tool, file string) (stdout, stderr []byte, err error) {
	cmd := exec.CommandContext(ctx, tool.Command, tool.Argv(file)...)
	cmd.WaitDelay = killGrace

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	err = cmd.Run()
	return outBuf.Bytes(), errBuf.Bytes(), err
}

func (r *Runner) describeFailure(tool *Tool, runErr, parseErr error, stderr []byte) string {
	msg := fmt.Sprintf("tool %s failed", tool.Name)
	if runErr != nil {
		msg += ": " + runErr.Error()
	}
	if parseErr != nil {
		msg += ": " + parseErr.Error()
	}
	if trimmed := bytes.TrimSpace(stderr); len(trimmed) > 0 {
		const maxStderr = 500
		s := string(trimmed)
		if len(s) > maxStderr {
			s = s[:maxStderr] + "..."
		}
		msg += " (stderr: " + s + ")"
	}
	return msg
}
