// Package cmdline renders argument vectors for logs.
package cmdline

import (
	"strconv"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// Format joins name and args into a single line that a POSIX shell
// would split back into the same words.
func Format(name string, args ...string) string {
	words := make([]string, 0, len(args)+1)
	words = append(words, quote(name))

	for _, a := range args {
		words = append(words, quote(a))
	}

	return strings.Join(words, " ")
}

func quote(s string) string {
	q, err := syntax.Quote(s, syntax.LangBash)
	if err != nil {
		// Quote rejects strings a shell cannot represent, such as NUL.
		return strconv.Quote(s)
	}

	return q
}
