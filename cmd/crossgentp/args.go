package main

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// normalizeArgs accepts the single-dash spelling of long flags used by
// existing lab scripts (-arch x64 -clr_root C:\coreclr) and rewrites it
// to the double-dash form. A run flag ahead of any subcommand makes the
// invocation an implicit "run".
func normalizeArgs(root *cobra.Command, args []string) []string {
	known := longFlags(root)

	out := make([]string, 0, len(args)+1)

	for i, a := range args {
		if a == "--" {
			out = append(out, args[i:]...)

			break
		}

		if name, ok := legacyFlagName(a); ok && known[name] {
			a = "-" + a
		}

		out = append(out, a)
	}

	if impliesRun(root, out) {
		out = append([]string{"run"}, out...)
	}

	return out
}

// impliesRun reports whether a run-only flag appears before the first
// non-flag argument. Root persistent flags and their values are skipped.
func impliesRun(root *cobra.Command, args []string) bool {
	run, _, err := root.Find([]string{"run"})
	if err != nil || run == root {
		return false
	}

	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" || !strings.HasPrefix(a, "-") {
			return false
		}

		name, _, hasValue := strings.Cut(strings.TrimLeft(a, "-"), "=")

		if f := root.PersistentFlags().Lookup(name); f != nil {
			if !hasValue && f.NoOptDefVal == "" {
				i++
			}

			continue
		}

		if run.Flags().Lookup(name) != nil {
			return true
		}
	}

	return false
}

// legacyFlagName returns the flag name of a single-dash long flag.
func legacyFlagName(arg string) (string, bool) {
	if len(arg) < 3 || arg[0] != '-' || arg[1] == '-' {
		return "", false
	}

	name, _, _ := strings.Cut(arg[1:], "=")

	return name, len(name) > 1
}

func longFlags(root *cobra.Command) map[string]bool {
	known := make(map[string]bool)

	var walk func(c *cobra.Command)
	walk = func(c *cobra.Command) {
		visit := func(f *pflag.Flag) {
			if len(f.Name) > 1 {
				known[f.Name] = true
			}
		}

		c.Flags().VisitAll(visit)
		c.PersistentFlags().VisitAll(visit)

		for _, sub := range c.Commands() {
			walk(sub)
		}
	}

	walk(root)

	return known
}
