// Package config validates the command-line configuration of a
// throughput run.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Accepted values. Arch and build type match case-insensitively, run
// type and OS must match exactly.
var (
	Archs            = []string{"x86", "x64", "x86jit32"}
	BuildTypes       = []string{"Release"}
	RunTypes         = []string{"rolling", "private"}
	OperatingSystems = []string{"Windows_NT", "Linux"}
)

// LegacyJITArch is the arch that runs the x86 toolchain with the legacy
// JIT.
const LegacyJITArch = "x86jit32"

// ErrInvalidArgument is matched by every validation failure.
var ErrInvalidArgument = errors.New("invalid argument")

// Error describes a rejected argument.
type Error struct {
	Arg    string
	Value  string
	Reason string
}

func (e *Error) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("argument %s: %s", e.Arg, e.Reason)
	}

	return fmt.Sprintf("argument %s: %q is not valid", e.Arg, e.Value)
}

func (e *Error) Unwrap() error { return ErrInvalidArgument }

// Raw holds the unvalidated flag values.
type Raw struct {
	Arch          string
	BuildType     string
	RunType       string
	OS            string
	CLRRoot       string
	AssemblyRoot  string
	BenchviewPath string
	Iterations    int
}

// Config is a validated run configuration. Paths are absolute and
// cleaned. BenchviewPath is empty when publishing is disabled.
type Config struct {
	Arch          string
	BuildType     string
	RunType       string
	OS            string
	CLRRoot       string
	AssemblyRoot  string
	BenchviewPath string
	Iterations    int
}

// Validate normalizes raw and checks every field. The first invalid
// field is reported as an *Error.
func Validate(raw Raw) (*Config, error) {
	cfg := &Config{
		Arch:       canonical(Archs, raw.Arch),
		BuildType:  canonical(BuildTypes, raw.BuildType),
		RunType:    raw.RunType,
		OS:         raw.OS,
		Iterations: raw.Iterations,
	}

	checks := []struct {
		arg     string
		value   string
		allowed []string
	}{
		{"arch", cfg.Arch, Archs},
		{"configuration", cfg.BuildType, BuildTypes},
		{"run_type", cfg.RunType, RunTypes},
		{"os", cfg.OS, OperatingSystems},
	}

	for _, c := range checks {
		if !slices.Contains(c.allowed, c.value) {
			return nil, &Error{Arg: c.arg, Value: c.value}
		}
	}

	if cfg.Iterations < 1 {
		return nil, &Error{
			Arg:    "iterations",
			Value:  fmt.Sprint(cfg.Iterations),
			Reason: "must be at least 1",
		}
	}

	var err error

	cfg.CLRRoot, err = requireDir("clr_root", raw.CLRRoot)
	if err != nil {
		return nil, err
	}

	cfg.AssemblyRoot, err = requireDir("assembly_root", raw.AssemblyRoot)
	if err != nil {
		return nil, err
	}

	if raw.BenchviewPath != "" {
		cfg.BenchviewPath, err = checkDir("benchview_path", raw.BenchviewPath)
		if err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Publishing reports whether results are forwarded to benchview.
func (c *Config) Publishing() bool {
	return c.BenchviewPath != ""
}

// ToolchainArch is the architecture of the product build under test.
// The legacy JIT configuration runs on the x86 build.
func (c *Config) ToolchainArch() string {
	if c.Arch == LegacyJITArch {
		return "x86"
	}

	return c.Arch
}

// LegacyJIT reports whether the run uses the legacy x86 JIT.
func (c *Config) LegacyJIT() bool {
	return c.Arch == LegacyJITArch
}

// CoreRoot returns the Core_Root directory holding the compiler and JIT
// for this configuration.
func (c *Config) CoreRoot() string {
	flavor := c.OS + "." + c.ToolchainArch() + "." + c.BuildType

	return filepath.Join(c.CLRRoot, "bin", "Tests", flavor, "Tests", "Core_Root")
}

// Log emits the configuration, one attribute per field.
func (c *Config) Log(ctx context.Context, logger *slog.Logger) {
	attrs := []any{
		slog.String("arch", c.Arch),
		slog.String("os", c.OS),
		slog.String("build_type", c.BuildType),
		slog.String("run_type", c.RunType),
		slog.String("clr_root", c.CLRRoot),
		slog.String("assembly_root", c.AssemblyRoot),
		slog.Int("iterations", c.Iterations),
	}
	if c.Publishing() {
		attrs = append(attrs, slog.String("benchview_path", c.BenchviewPath))
	}

	logger.InfoContext(ctx, "configuration", attrs...)
}

func canonical(allowed []string, value string) string {
	for _, a := range allowed {
		if strings.EqualFold(a, value) {
			return a
		}
	}

	return value
}

func requireDir(arg, path string) (string, error) {
	if path == "" {
		return "", &Error{Arg: arg, Reason: "--" + arg + " must be set"}
	}

	return checkDir(arg, path)
}

func checkDir(arg, path string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", &Error{Arg: arg, Value: path, Reason: err.Error()}
	}

	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return "", &Error{Arg: arg, Value: abs}
	}

	return abs, nil
}
