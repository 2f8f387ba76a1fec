// Package xdebug provides lightweight, env-gated assertions and trace
// logging in the style of aistore's cmn/debug: asserts panic only when
// PHOBOS_DEBUG is set, and Infof is a no-op otherwise so the fast path
// never pays for string formatting.
package xdebug

import (
	"fmt"
	"os"

	"github.com/golang/glog"
)

// Enabled mirrors cmn/debug's build-vs-env toggle, collapsed to a single
// environment variable since this module has no debug build tag of its own.
var Enabled = os.Getenv("PHOBOS_DEBUG") != ""

// Assert panics with msg if cond is false and debugging is enabled.
// Outside debug mode it is a no-op, matching the convention that
// debug assertions never fire in production builds.
func Assert(cond bool, msg string) {
	if Enabled && !cond {
		panic("phobos: assertion failed: " + msg)
	}
}

// Assertf is Assert with a formatted message.
func Assertf(cond bool, format string, args ...interface{}) {
	if Enabled && !cond {
		panic("phobos: assertion failed: " + fmt.Sprintf(format, args...))
	}
}

// Infof logs a verbose trace line, gated the same way glog.V(4) gates
// memsys's slab grow/reduce tracing.
func Infof(format string, args ...interface{}) {
	if Enabled {
		glog.V(4).Infof(format, args...)
	}
}
