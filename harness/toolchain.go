package harness

import (
	"path/filepath"

	"github.com/weiihann/crossgentp/config"
	"github.com/weiihann/crossgentp/workload"
)

// Toolchain holds the resolved paths passed to every compiler
// invocation.
type Toolchain struct {
	Compiler       string
	JIT            string
	AssembliesPath string
}

// ResolveToolchain locates the compiler and JIT inside the Core_Root of
// cfg. The legacy x86 configuration swaps in the legacy JIT.
func ResolveToolchain(cfg *config.Config, names workload.Toolchain) Toolchain {
	coreRoot := cfg.CoreRoot()

	jit := names.JIT
	if cfg.LegacyJIT() {
		jit = names.LegacyJIT
	}

	return Toolchain{
		Compiler:       filepath.Join(coreRoot, names.Compiler),
		JIT:            filepath.Join(coreRoot, jit),
		AssembliesPath: cfg.AssemblyRoot,
	}
}

// Args returns the compiler arguments for compiling dllPath.
func (tc Toolchain) Args(dllPath string) []string {
	return []string{
		"/JITPath", tc.JIT,
		"/Platform_Assemblies_Paths", tc.AssembliesPath,
		dllPath,
	}
}
