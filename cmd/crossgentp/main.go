// Package main provides the CLI entry point for crossgentp, a crossgen
// throughput benchmark driver.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/weiihann/crossgentp/benchview"
	"github.com/weiihann/crossgentp/config"
	"github.com/weiihann/crossgentp/harness"
	"github.com/weiihann/crossgentp/record"
	"github.com/weiihann/crossgentp/report"
	"github.com/weiihann/crossgentp/sandbox"
	"github.com/weiihann/crossgentp/workload"
)

// envPrefix prefixes environment overrides, e.g. CROSSGENTP_CLR_ROOT.
const envPrefix = "CROSSGENTP"

func main() {
	level := new(slog.LevelVar)
	logger := newLogger(os.Stderr, level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)

	root, err := newRootCmd(logger, level)
	if err == nil {
		root.SetArgs(normalizeArgs(root, os.Args[1:]))
		err = root.ExecuteContext(ctx)
	}

	stop()

	if err != nil {
		logger.Error("crossgentp failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func newRootCmd(logger *slog.Logger, level *slog.LevelVar) (*cobra.Command, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:   "crossgentp",
		Short: "Crossgen throughput benchmark driver",
		Long: `Crossgentp compiles a fixed set of platform assemblies with crossgen,
times every invocation, and optionally publishes the timings through the
benchview measurement, submission and upload scripts.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("load .env: %w", err)
			}

			if err := level.UnmarshalText([]byte(v.GetString("log-level"))); err != nil {
				return fmt.Errorf("parse --log-level: %w", err)
			}

			return nil
		},
	}

	root.PersistentFlags().String("log-level", "info",
		"Log level: debug, info, warn, error")
	if err := v.BindPFlags(root.PersistentFlags()); err != nil {
		return nil, fmt.Errorf("bind persistent flags: %w", err)
	}

	run, err := newRunCmd(logger, v)
	if err != nil {
		return nil, err
	}

	root.AddCommand(run)

	return root, nil
}

func newRunCmd(logger *slog.Logger, v *viper.Viper) (*cobra.Command, error) {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Time crossgen over the platform assemblies",
		Long: `Validate the configuration, recreate <clr_root>/sandbox, compile every
assembly of the workload --iterations times and record the wall-clock
duration of each successful compile. With --benchview_path the timings are
forwarded to benchview; otherwise they are logged.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBenchmark(cmd.Context(), logger, cmd.OutOrStdout(), runOptions{
				raw: config.Raw{
					Arch:          v.GetString("arch"),
					BuildType:     v.GetString("configuration"),
					RunType:       v.GetString("run_type"),
					OS:            v.GetString("os"),
					CLRRoot:       v.GetString("clr_root"),
					AssemblyRoot:  v.GetString("assembly_root"),
					BenchviewPath: v.GetString("benchview_path"),
					Iterations:    v.GetInt("iterations"),
				},
				workloadPath: v.GetString("workload"),
				timeout:      v.GetDuration("iteration-timeout"),
				outputJSON:   v.GetBool("json"),
			})
		},
	}

	flags := cmd.Flags()
	flags.String("arch", "x64",
		"Target architecture: x86, x64, x86jit32")
	flags.String("configuration", "Release",
		"Build configuration: Release")
	flags.String("run_type", "rolling",
		"Benchview run type: rolling, private")
	flags.String("os", "Windows_NT",
		"Operating system of the build: Windows_NT, Linux")
	flags.String("clr_root", "",
		"Root of the coreclr repository (required)")
	flags.String("assembly_root", "",
		"Directory holding the assemblies to compile (required)")
	flags.String("benchview_path", "",
		"Directory of the benchview scripts; omit to skip publishing")
	flags.Int("iterations", 6,
		"Compiles per assembly")
	flags.String("workload", "",
		"TOML file overriding the assembly list and toolchain names")
	flags.Duration("iteration-timeout", 0,
		"Per-compile timeout (0 = wait indefinitely)")
	flags.Bool("json", false,
		"Output the summary as JSON instead of a table")

	if err := v.BindPFlags(flags); err != nil {
		return nil, fmt.Errorf("bind run flags: %w", err)
	}

	return cmd, nil
}

type runOptions struct {
	raw          config.Raw
	workloadPath string
	timeout      time.Duration
	outputJSON   bool
}

func runBenchmark(
	ctx context.Context,
	logger *slog.Logger,
	out io.Writer,
	opts runOptions,
) error {
	// Step 1: Validate configuration and workload.
	cfg, err := config.Validate(opts.raw)
	if err != nil {
		return err
	}

	wl, err := workload.Load(opts.workloadPath)
	if err != nil {
		return fmt.Errorf("load workload: %w", err)
	}

	logger = logger.With(slog.String("run_id", uuid.NewString()))
	cfg.Log(ctx, logger)

	// Step 2: Recreate the sandbox and work from inside it.
	sb, err := sandbox.Enter(cfg.CLRRoot)
	if err != nil {
		return fmt.Errorf("enter sandbox: %w", err)
	}

	defer func() {
		if err := sb.Close(); err != nil {
			logger.WarnContext(ctx, "failed to restore working dir",
				slog.String("error", err.Error()),
			)
		}
	}()

	logger.InfoContext(ctx, "sandbox ready", slog.String("path", sb.Path))

	tc := harness.ResolveToolchain(cfg, wl.Toolchain)
	runner := harness.NewRunner(tc, cfg.Iterations, logger)
	runner.Timeout = opts.timeout

	var dispatcher *benchview.Dispatcher
	if cfg.Publishing() {
		dispatcher = benchview.New(benchview.Config{
			Root:      cfg.BenchviewPath,
			CLRRoot:   cfg.CLRRoot,
			Python:    wl.Toolchain.Python,
			RunType:   cfg.RunType,
			BuildType: cfg.BuildType,
			OS:        cfg.OS,
			Arch:      cfg.Arch,
		}, logger)
	}

	// Step 3: Time every artifact, record and forward its samples.
	results := make([]harness.Result, 0, len(wl.Artifacts))

	for _, artifact := range wl.Artifacts {
		dllPath := filepath.Join(cfg.AssemblyRoot, workload.DLLName(artifact))

		result, err := runner.Run(ctx, artifact, dllPath)
		if err != nil {
			return fmt.Errorf("run %s: %w", artifact, err)
		}

		if len(result.Samples) > 0 {
			if err := publish(ctx, logger, sb.Path, dispatcher, result); err != nil {
				return err
			}
		}

		results = append(results, *result)
	}

	// Step 4: Submit and upload the collected measurements.
	if dispatcher != nil {
		dispatcher.Submit(ctx)
		dispatcher.Upload(ctx)
	}

	// Step 5: Summarize.
	if opts.outputJSON {
		if err := report.GenerateJSON(out, results); err != nil {
			return fmt.Errorf("generate JSON report: %w", err)
		}
	} else {
		if err := report.Generate(out, results); err != nil {
			return fmt.Errorf("generate report: %w", err)
		}
	}

	logger.InfoContext(ctx, "benchmark complete")

	return nil
}

// publish writes the CSV record for result and hands it to benchview,
// or logs the samples when publishing is disabled.
func publish(
	ctx context.Context,
	logger *slog.Logger,
	dir string,
	dispatcher *benchview.Dispatcher,
	result *harness.Result,
) error {
	csvFile, err := record.Write(dir, result.Artifact, result.Samples)
	if err != nil {
		return fmt.Errorf("record %s: %w", result.Artifact, err)
	}

	result.CSVFile = csvFile

	if dispatcher == nil {
		logger.InfoContext(ctx, result.Artifact,
			slog.Any("duration_ms", result.Samples),
		)

		return nil
	}

	if _, err := dispatcher.Measure(ctx, filepath.Join(dir, csvFile)); err != nil {
		return fmt.Errorf("measure %s: %w", result.Artifact, err)
	}

	return nil
}
