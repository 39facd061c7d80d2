package harness

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/weiihann/crossgentp/config"
	"github.com/weiihann/crossgentp/internal/stubtool"
	"github.com/weiihann/crossgentp/workload"
)

func TestMain(m *testing.M) {
	stubtool.MaybeRun()
	os.Exit(m.Run())
}

func newTestRunner(t *testing.T, iterations int, failOn ...int) (*Runner, string, *bytes.Buffer) {
	t.Helper()

	exe, logPath := stubtool.Enable(t, failOn...)

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	tc := Toolchain{
		Compiler:       exe,
		JIT:            "/core/clrjit.dll",
		AssembliesPath: "/assemblies",
	}

	return NewRunner(tc, iterations, logger), logPath, &logs
}

func TestRunAllSucceed(t *testing.T) {
	runner, logPath, _ := newTestRunner(t, 4)

	result, err := runner.Run(context.Background(), "Foo", "/assemblies/Foo.dll")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(result.Samples) != 4 {
		t.Errorf("samples = %d, want 4", len(result.Samples))
	}
	if result.Failures != 0 {
		t.Errorf("failures = %d, want 0", result.Failures)
	}
	if result.Artifact != "Foo" {
		t.Errorf("artifact = %q, want Foo", result.Artifact)
	}

	for i, s := range result.Samples {
		if s <= 0 {
			t.Errorf("sample[%d] = %v, want positive", i, s)
		}
	}

	calls := stubtool.Calls(t, logPath)
	if len(calls) != 4 {
		t.Fatalf("compiler calls = %d, want 4", len(calls))
	}

	want := "/JITPath /core/clrjit.dll /Platform_Assemblies_Paths /assemblies /assemblies/Foo.dll"
	if got := strings.Join(calls[0], " "); got != want {
		t.Errorf("args = %q, want %q", got, want)
	}
}

func TestRunDropsFailedIteration(t *testing.T) {
	runner, logPath, logs := newTestRunner(t, 6, 3)

	result, err := runner.Run(context.Background(), "Bar", "/assemblies/Bar.dll")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(result.Samples) != 5 {
		t.Errorf("samples = %d, want 5", len(result.Samples))
	}
	if result.Failures != 1 {
		t.Errorf("failures = %d, want 1", result.Failures)
	}
	if result.Attempts() != 6 {
		t.Errorf("attempts = %d, want 6", result.Attempts())
	}

	if calls := stubtool.Calls(t, logPath); len(calls) != 6 {
		t.Errorf("compiler calls = %d, want 6 (no retry, no abort)", len(calls))
	}

	out := logs.String()
	if !strings.Contains(out, "artifact=Bar") {
		t.Errorf("failure log missing artifact: %s", out)
	}
	if !strings.Contains(out, "stub failure on call 3") {
		t.Errorf("failure log missing stderr: %s", out)
	}
}

func TestRunAllFail(t *testing.T) {
	runner, _, _ := newTestRunner(t, 3, 1, 2, 3)

	result, err := runner.Run(context.Background(), "Baz", "/assemblies/Baz.dll")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(result.Samples) != 0 {
		t.Errorf("samples = %d, want 0", len(result.Samples))
	}
	if result.Failures != 3 {
		t.Errorf("failures = %d, want 3", result.Failures)
	}
}

func TestRunMissingCompiler(t *testing.T) {
	var logs bytes.Buffer
	runner := NewRunner(Toolchain{
		Compiler: filepath.Join(t.TempDir(), "crossgen.exe"),
	}, 2, slog.New(slog.NewTextHandler(&logs, nil)))

	result, err := runner.Run(context.Background(), "Foo", "Foo.dll")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Failures != 2 || len(result.Samples) != 0 {
		t.Errorf("result = %+v, want 2 failures and no samples", result)
	}
	if !strings.Contains(logs.String(), "exit_code=-1") {
		t.Errorf("expected start failure to be logged: %s", logs.String())
	}
}

func TestRunCanceled(t *testing.T) {
	runner, logPath, _ := newTestRunner(t, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := runner.Run(ctx, "Foo", "Foo.dll")
	if err == nil {
		t.Fatal("expected error for canceled context")
	}
	if result == nil || len(result.Samples) != 0 {
		t.Errorf("result = %+v, want empty partial result", result)
	}
	if calls := stubtool.Calls(t, logPath); len(calls) != 0 {
		t.Errorf("compiler calls = %d, want 0", len(calls))
	}
}

func TestMilliseconds(t *testing.T) {
	tests := []struct {
		input time.Duration
		want  float64
	}{
		{0, 0},
		{time.Millisecond, 1},
		{1500 * time.Microsecond, 1.5},
		{2 * time.Second, 2000},
	}

	for _, tt := range tests {
		if got := milliseconds(tt.input); got != tt.want {
			t.Errorf("milliseconds(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestResolveToolchain(t *testing.T) {
	names := workload.Default().Toolchain

	tests := []struct {
		arch    string
		wantJIT string
		flavor  string
	}{
		{"x64", "clrjit.dll", "Windows_NT.x64.Release"},
		{"x86", "clrjit.dll", "Windows_NT.x86.Release"},
		{"x86jit32", "compatjit.dll", "Windows_NT.x86.Release"},
	}

	for _, tt := range tests {
		cfg := &config.Config{
			Arch:         tt.arch,
			OS:           "Windows_NT",
			BuildType:    "Release",
			CLRRoot:      "/clr",
			AssemblyRoot: "/asm",
		}

		tc := ResolveToolchain(cfg, names)
		coreRoot := filepath.Join("/clr", "bin", "Tests", tt.flavor, "Tests", "Core_Root")

		if tc.Compiler != filepath.Join(coreRoot, "crossgen.exe") {
			t.Errorf("%s: compiler = %q", tt.arch, tc.Compiler)
		}
		if tc.JIT != filepath.Join(coreRoot, tt.wantJIT) {
			t.Errorf("%s: jit = %q, want %s", tt.arch, tc.JIT, tt.wantJIT)
		}
		if tc.AssembliesPath != "/asm" {
			t.Errorf("%s: assemblies = %q, want /asm", tt.arch, tc.AssembliesPath)
		}
	}
}
