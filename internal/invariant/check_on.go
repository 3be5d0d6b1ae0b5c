//go:build cardsetdebug

package invariant

import "fmt"

// Enabled reports whether invariant checks are compiled in.
const Enabled = true

// Check panics with the formatted message when cond is false.
func Check(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf("invariant violated: "+format, args...))
	}
}
