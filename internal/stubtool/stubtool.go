// Package stubtool lets a test binary stand in for the external tools a
// run launches. A test calls MaybeRun from TestMain and Enable from the
// test; child processes started from the test binary then record their
// arguments and exit without running any tests.
package stubtool

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// Environment understood by the stub.
const (
	EnvMode   = "TP_STUB"
	EnvLog    = "TP_STUB_LOG"
	EnvFailOn = "TP_STUB_FAIL_ON"
)

// MaybeRun turns the current process into the stub when EnvMode is set.
// It does not return in that case.
func MaybeRun() {
	if os.Getenv(EnvMode) == "" {
		return
	}

	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	call := 0

	if logPath := os.Getenv(EnvLog); logPath != "" {
		var err error

		call, err = appendCall(logPath, args)
		if err != nil {
			fmt.Fprintf(os.Stderr, "stub: %v\n", err)

			return 2
		}
	}

	if failOn(call) {
		fmt.Fprintf(os.Stderr, "stub failure on call %d\n", call)

		return 1
	}

	return 0
}

func appendCall(logPath string, args []string) (int, error) {
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}

	_, werr := fmt.Fprintln(f, strings.Join(args, "\t"))
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return 0, werr
	}

	calls, err := readCalls(logPath)
	if err != nil {
		return 0, err
	}

	return len(calls), nil
}

func failOn(call int) bool {
	calls := os.Getenv(EnvFailOn)
	if calls == "" {
		return false
	}

	for _, field := range strings.Split(calls, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(field))
		if err == nil && n == call {
			return true
		}
	}

	return false
}

// Enable makes processes spawned from the test binary behave as the
// stub. Calls numbered in failOn (1-based, across all stub processes of
// the test) exit with status 1. It returns the stub executable path and
// the call log path.
func Enable(t testing.TB, failOn ...int) (exe, logPath string) {
	t.Helper()

	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("locate test binary: %v", err)
	}

	logPath = filepath.Join(t.TempDir(), "calls.log")

	fails := make([]string, 0, len(failOn))
	for _, n := range failOn {
		fails = append(fails, strconv.Itoa(n))
	}

	t.Setenv(EnvMode, "1")
	t.Setenv(EnvLog, logPath)
	t.Setenv(EnvFailOn, strings.Join(fails, ","))

	return exe, logPath
}

// Calls returns the argument vectors recorded in logPath, in call order.
func Calls(t testing.TB, logPath string) [][]string {
	t.Helper()

	calls, err := readCalls(logPath)
	if err != nil && !os.IsNotExist(err) {
		t.Fatalf("read stub log: %v", err)
	}

	return calls
}

func readCalls(logPath string) ([][]string, error) {
	f, err := os.Open(logPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var calls [][]string

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()

		args := []string{}
		if line != "" {
			args = strings.Split(line, "\t")
		}

		calls = append(calls, args)
	}

	return calls, scanner.Err()
}
