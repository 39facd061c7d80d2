// Package record writes per-artifact timing files in the CSV layout the
// benchview measurement tool ingests.
package record

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Fixed columns of every row.
const (
	Scenario = "default"
	Suite    = "coreclr-crossgen-tp"
)

// ErrNoSamples is returned when asked to record an empty timing set.
var ErrNoSamples = errors.New("no samples to record")

// FileName returns the record file name for artifact.
func FileName(artifact string) string {
	return "throughput-" + artifact + ".csv"
}

// Encode writes one row per sample to w.
func Encode(w io.Writer, artifact string, samples []float64) error {
	cw := csv.NewWriter(w)

	for _, s := range samples {
		row := []string{Scenario, Suite, artifact, FormatMs(s)}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}

	cw.Flush()

	return cw.Error()
}

// Write creates FileName(artifact) in dir and returns the file name.
func Write(dir, artifact string, samples []float64) (string, error) {
	if len(samples) == 0 {
		return "", fmt.Errorf("record %s: %w", artifact, ErrNoSamples)
	}

	name := FileName(artifact)
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}

	if err := Encode(f, artifact, samples); err != nil {
		f.Close()

		return "", fmt.Errorf("encode %s: %w", path, err)
	}

	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", path, err)
	}

	return name, nil
}

// FormatMs renders a duration in milliseconds with the fewest digits
// that round-trip, keeping a fractional part so whole values read as
// "1.0" rather than "1".
func FormatMs(ms float64) string {
	s := strconv.FormatFloat(ms, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}

	return s
}
