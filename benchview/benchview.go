// Package benchview drives the external benchview scripts that turn
// timing CSVs into a published result: measurement.py once per
// artifact, then submission.py and upload.py once per run.
//
// The scripts are run fire-and-forget. Their exit status is captured in
// an Outcome and logged, but a failing script never stops the run.
package benchview

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/weiihann/crossgentp/cmdline"
)

// Fixed submission parameters.
const (
	Metric      = "execution_time"
	Unit        = "milliseconds"
	Group       = "CoreCLR-throughput"
	MachinePool = "PerfSnake"
	Container   = "coreclr"
)

// Config describes where the scripts live and how the run is tagged.
type Config struct {
	// Root is the benchview scripts directory.
	Root string
	// CLRRoot holds build.json, machinedata.json and
	// submission-metadata.json, and receives a copy of every CSV.
	CLRRoot string
	// Python launches the scripts.
	Python    string
	RunType   string
	BuildType string
	OS        string
	Arch      string
}

// Outcome is the observed result of one script invocation.
type Outcome struct {
	Tool     string
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

// OK reports whether the script ran and exited zero.
func (o Outcome) OK() bool {
	return o.Err == nil && o.ExitCode == 0
}

// Dispatcher runs the benchview scripts for one run.
type Dispatcher struct {
	cfg    Config
	logger *slog.Logger
	// Output receives the scripts' stdout and stderr.
	Output io.Writer
}

// New creates a Dispatcher.
func New(cfg Config, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "benchview")),
		Output: os.Stderr,
	}
}

// MeasurementArgs returns the measurement.py arguments for csvPath.
func (d *Dispatcher) MeasurementArgs(csvPath string) []string {
	return []string{
		d.script("measurement.py"),
		"csv",
		csvPath,
		"--metric", Metric,
		"--unit", Unit,
		"--better", "desc",
		"--drop-first-value",
		"--append",
	}
}

// SubmissionArgs returns the submission.py arguments.
func (d *Dispatcher) SubmissionArgs() []string {
	return []string{
		d.script("submission.py"),
		"measurement.json",
		"--build", filepath.Join(d.cfg.CLRRoot, "build.json"),
		"--machine-data", filepath.Join(d.cfg.CLRRoot, "machinedata.json"),
		"--metadata", filepath.Join(d.cfg.CLRRoot, "submission-metadata.json"),
		"--group", Group,
		"--type", d.cfg.RunType,
		"--config-name", d.cfg.BuildType,
		"--config", "Configuration", d.cfg.BuildType,
		"--config", "OS", d.cfg.OS,
		"--arch", d.cfg.Arch,
		"--machinepool", MachinePool,
	}
}

// UploadArgs returns the upload.py arguments.
func (d *Dispatcher) UploadArgs() []string {
	return []string{
		d.script("upload.py"),
		"submission.json",
		"--container", Container,
	}
}

// Measure copies csvPath into CLRRoot and appends its samples to
// measurement.json via measurement.py. The first sample of every file
// is dropped by the script as warm-up. Only the copy can fail the call.
func (d *Dispatcher) Measure(ctx context.Context, csvPath string) (Outcome, error) {
	if err := copyFile(csvPath, filepath.Join(d.cfg.CLRRoot, filepath.Base(csvPath))); err != nil {
		return Outcome{}, fmt.Errorf("copy %s to %s: %w", csvPath, d.cfg.CLRRoot, err)
	}

	return d.run(ctx, "measurement", d.MeasurementArgs(csvPath)), nil
}

// Submit builds submission.json from measurement.json.
func (d *Dispatcher) Submit(ctx context.Context) Outcome {
	return d.run(ctx, "submission", d.SubmissionArgs())
}

// Upload publishes submission.json.
func (d *Dispatcher) Upload(ctx context.Context) Outcome {
	return d.run(ctx, "upload", d.UploadArgs())
}

func (d *Dispatcher) script(name string) string {
	return filepath.Join(d.cfg.Root, name)
}

func (d *Dispatcher) run(ctx context.Context, tool string, args []string) Outcome {
	d.logger.InfoContext(ctx, "running benchview tool",
		slog.String("tool", tool),
		slog.String("command", cmdline.Format(d.cfg.Python, args...)),
	)

	cmd := exec.CommandContext(ctx, d.cfg.Python, args...)

	var stderr bytes.Buffer
	cmd.Stdout = d.Output
	cmd.Stderr = io.MultiWriter(d.Output, &stderr)

	out := Outcome{Tool: tool, Args: args}

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			out.ExitCode = exitErr.ExitCode()
		} else {
			out.ExitCode = -1
			out.Err = err
		}
	}

	out.Stderr = stderr.String()

	if !out.OK() {
		attrs := []any{
			slog.String("tool", tool),
			slog.Int("exit_code", out.ExitCode),
			slog.String("stderr", out.Stderr),
		}
		if out.Err != nil {
			attrs = append(attrs, slog.String("error", out.Err.Error()))
		}

		d.logger.WarnContext(ctx, "benchview tool failed", attrs...)
	}

	return out
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()

		return err
	}

	return out.Close()
}
