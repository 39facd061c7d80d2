package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/weiihann/crossgentp/cmdline"
)

// Runner compiles artifacts with a fixed toolchain, Iterations times
// each, and records the wall-clock duration of every successful run.
type Runner struct {
	Toolchain  Toolchain
	Iterations int
	// Timeout bounds a single invocation. Zero waits indefinitely.
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewRunner creates a Runner for the given toolchain.
func NewRunner(
	tc Toolchain,
	iterations int,
	logger *slog.Logger,
) *Runner {
	return &Runner{
		Toolchain:  tc,
		Iterations: iterations,
		Logger:     logger,
	}
}

// Run compiles dllPath r.Iterations times. A failing invocation is
// logged with its stderr and contributes no sample; the remaining
// iterations still run. The returned error is non-nil only when ctx is
// done, in which case the partial result is returned with it.
func (r *Runner) Run(
	ctx context.Context,
	artifact, dllPath string,
) (*Result, error) {
	logger := r.Logger.With(slog.String("artifact", artifact))
	args := r.Toolchain.Args(dllPath)

	logger.InfoContext(ctx, "compiling",
		slog.String("command", cmdline.Format(r.Toolchain.Compiler, args...)),
		slog.Int("iterations", r.Iterations),
	)

	result := &Result{
		Artifact: artifact,
		Samples:  make([]float64, 0, r.Iterations),
	}

	for i := 0; i < r.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("compile %s: %w", artifact, err)
		}

		elapsed, stderr, err := r.invoke(ctx, args)
		if err != nil {
			if ctx.Err() != nil {
				return result, fmt.Errorf("compile %s: %w", artifact, ctx.Err())
			}

			result.Failures++

			logger.ErrorContext(ctx, "compiler failed",
				slog.String("dll", dllPath),
				slog.Int("iteration", i+1),
				slog.Int("exit_code", exitCode(err)),
				slog.String("error", err.Error()),
				slog.String("stderr", strings.ToValidUTF8(string(stderr), "�")),
			)

			continue
		}

		result.Samples = append(result.Samples, milliseconds(elapsed))

		logger.DebugContext(ctx, "iteration finished",
			slog.Int("iteration", i+1),
			slog.Duration("wall_time", elapsed),
		)
	}

	return result, nil
}

// invoke runs the compiler once and returns how long it took to exit.
func (r *Runner) invoke(
	ctx context.Context,
	args []string,
) (time.Duration, []byte, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, r.Toolchain.Compiler, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	return elapsed, stderr.Bytes(), err
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}

	return -1
}
