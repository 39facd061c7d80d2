// Package harness runs the compiler under test and times each invocation.
package harness

// Result holds the timings collected for one artifact. Samples are
// wall-clock milliseconds of successful invocations in call order;
// failed invocations only increment Failures.
type Result struct {
	Artifact string    `json:"artifact"`
	Samples  []float64 `json:"samples_ms"`
	Failures int       `json:"failures"`
	CSVFile  string    `json:"csv_file,omitempty"`
}

// Attempts is the number of invocations behind the result.
func (r Result) Attempts() int {
	return len(r.Samples) + r.Failures
}
