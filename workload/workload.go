// Package workload describes what a throughput run compiles: the ordered
// list of platform assemblies and the toolchain file names used to
// compile and publish them. The built-in workload is embedded from
// default.toml and can be overridden by a TOML file of the same shape.
package workload

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

//go:embed default.toml
var defaultTOML []byte

// Toolchain names the executables a run needs. Compiler, JIT and
// LegacyJIT are file names relative to Core_Root; Python is looked up
// on PATH unless absolute.
type Toolchain struct {
	Compiler  string `toml:"compiler"`
	JIT       string `toml:"jit"`
	LegacyJIT string `toml:"legacy_jit"`
	Python    string `toml:"python"`
}

// Workload is the declarative input of a run.
type Workload struct {
	Artifacts []string  `toml:"artifacts"`
	Toolchain Toolchain `toml:"toolchain"`
}

// Default returns the embedded workload.
func Default() Workload {
	var w Workload
	if err := toml.Unmarshal(defaultTOML, &w); err != nil {
		panic(fmt.Sprintf("workload: embedded default.toml: %v", err))
	}

	return w
}

// Load reads a workload override from path. An empty path yields the
// embedded default.
func Load(path string) (Workload, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Workload{}, fmt.Errorf("read workload %s: %w", path, err)
	}

	w, err := Parse(data)
	if err != nil {
		return Workload{}, fmt.Errorf("workload %s: %w", path, err)
	}

	return w, nil
}

// Parse decodes a TOML workload. Keys missing from data keep their
// default values.
func Parse(data []byte) (Workload, error) {
	var override struct {
		Artifacts *[]string `toml:"artifacts"`
		Toolchain Toolchain `toml:"toolchain"`
	}
	if err := toml.Unmarshal(data, &override); err != nil {
		return Workload{}, fmt.Errorf("decode TOML: %w", err)
	}

	w := Default()
	if override.Artifacts != nil {
		w.Artifacts = *override.Artifacts
	}

	w.Toolchain = mergeToolchain(w.Toolchain, override.Toolchain)

	if err := w.Validate(); err != nil {
		return Workload{}, err
	}

	return w, nil
}

// Validate reports an empty or duplicated artifact list, or a toolchain
// with missing names.
func (w Workload) Validate() error {
	if len(w.Artifacts) == 0 {
		return fmt.Errorf("artifact list is empty")
	}

	seen := make(map[string]struct{}, len(w.Artifacts))
	for _, a := range w.Artifacts {
		if a == "" {
			return fmt.Errorf("artifact list contains an empty name")
		}

		if _, dup := seen[a]; dup {
			return fmt.Errorf("duplicate artifact %q", a)
		}

		seen[a] = struct{}{}
	}

	tc := w.Toolchain
	if tc.Compiler == "" || tc.JIT == "" || tc.LegacyJIT == "" ||
		tc.Python == "" {
		return fmt.Errorf("toolchain names must not be empty")
	}

	return nil
}

// DLLName returns the file name of an artifact's input assembly.
func DLLName(artifact string) string {
	return artifact + ".dll"
}

func mergeToolchain(base, override Toolchain) Toolchain {
	if override.Compiler != "" {
		base.Compiler = override.Compiler
	}
	if override.JIT != "" {
		base.JIT = override.JIT
	}
	if override.LegacyJIT != "" {
		base.LegacyJIT = override.LegacyJIT
	}
	if override.Python != "" {
		base.Python = override.Python
	}

	return base
}
