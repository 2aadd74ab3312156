package pipeline

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"afterlive/internal/logging"
	"afterlive/internal/services"
)

// ToolResult captures one external tool invocation.
type ToolResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Runner executes external tools with a per-invocation timeout.
type Runner struct {
	timeout time.Duration
	logger  *slog.Logger
}

// NewRunner constructs a runner. A zero timeout disables the limit.
func NewRunner(timeout time.Duration, logger *slog.Logger) *Runner {
	return &Runner{timeout: timeout, logger: logging.NewComponentLogger(logger, "tool")}
}

// Run executes binary with args inside dir. It returns an error only when the
// tool cannot start or exceeds the timeout; a non-zero exit is logged and
// reported through ToolResult.ExitCode.
func (r *Runner) Run(ctx context.Context, dir, binary string, args ...string) (ToolResult, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = 5 * time.Second

	logger := logging.WithContext(ctx, r.logger)
	argv := append([]string{binary}, args...)
	start := time.Now()
	err := cmd.Run()
	result := ToolResult{
		ExitCode: cmd.ProcessState.ExitCode(),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	logger.Debug("tool finished",
		logging.Strings("argv", argv),
		logging.Int("exit_code", result.ExitCode),
		logging.Duration("duration", result.Duration),
		logging.String("stdout", truncate(result.Stdout)),
		logging.String("stderr", truncate(result.Stderr)),
	)

	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return result, services.Wrap(services.ErrTimeout, "tool", binary, "exceeded "+r.timeout.String(), ctxErr)
		}
		return result, ctxErr
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			logging.WarnWithContext(logger, "tool exited with non-zero status", "tool_nonzero_exit",
				logging.String("binary", binary),
				logging.Int("exit_code", result.ExitCode),
				logging.String("stderr", truncate(result.Stderr)),
				logging.String(logging.FieldImpact, "output will be verified before continuing"),
			)
			return result, nil
		}
		return result, services.Wrap(services.ErrExternalTool, "tool", binary, "start failed", err)
	}
	return result, nil
}

const maxLoggedOutput = 4096

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxLoggedOutput {
		return s
	}
	return "..." + s[len(s)-maxLoggedOutput:]
}
