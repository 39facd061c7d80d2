// Package report formats per-artifact timing summaries.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/weiihann/crossgentp/harness"
)

// Histogram range in microseconds: 1us to 1h, 3 significant figures.
const (
	histMin     = 1
	histMax     = int64(time.Hour / time.Microsecond)
	histSigFigs = 3
)

// Summary is the spread of one artifact's samples, in milliseconds.
type Summary struct {
	Artifact string
	Samples  int
	Failures int
	MinMs    float64
	MedianMs float64
	MaxMs    float64
}

// Summarize reduces a result to its sample spread. Min and max are the
// exact samples; the median is the recorded sample the histogram ranks
// at the 50th percentile.
func Summarize(r harness.Result) Summary {
	s := Summary{
		Artifact: r.Artifact,
		Samples:  len(r.Samples),
		Failures: r.Failures,
	}

	if len(r.Samples) == 0 {
		return s
	}

	sorted := slices.Clone(r.Samples)
	slices.Sort(sorted)

	h := hdrhistogram.New(histMin, histMax, histSigFigs)
	for _, ms := range sorted {
		// In range by construction.
		_ = h.RecordValue(micros(ms))
	}

	s.MinMs = sorted[0]
	s.MaxMs = sorted[len(sorted)-1]

	q := h.ValueAtQuantile(50)
	s.MedianMs = min(max(float64(q)/1000, s.MinMs), s.MaxMs)

	for _, ms := range sorted {
		if h.ValuesAreEquivalent(micros(ms), q) {
			s.MedianMs = ms

			break
		}
	}

	return s
}

func micros(ms float64) int64 {
	return min(max(int64(ms*1000), histMin), histMax)
}

// Generate writes a markdown table summarizing results.
func Generate(w io.Writer, results []harness.Result) error {
	if len(results) == 0 {
		return fmt.Errorf("no results to report")
	}

	fmt.Fprintln(w, "## Throughput Results")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "| Artifact | Samples | Failures | Min | Median | Max |")
	fmt.Fprintln(w, "|----------|---------|----------|-----|--------|-----|")

	for _, r := range results {
		s := Summarize(r)

		if s.Samples == 0 {
			fmt.Fprintf(w, "| %s | 0 | %d | - | - | - |\n",
				s.Artifact, s.Failures)

			continue
		}

		fmt.Fprintf(w, "| %s | %d | %d | %s | %s | %s |\n",
			s.Artifact,
			s.Samples,
			s.Failures,
			formatMs(s.MinMs),
			formatMs(s.MedianMs),
			formatMs(s.MaxMs),
		)
	}

	return nil
}

// GenerateJSON writes results as JSON to w.
func GenerateJSON(w io.Writer, results []harness.Result) error {
	if len(results) == 0 {
		return fmt.Errorf("no results to report")
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(results)
}

func formatMs(ms float64) string {
	if ms < 1000 {
		return fmt.Sprintf("%.1fms", ms)
	}

	return fmt.Sprintf("%.2fs", ms/1000)
}
