package vm

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/kristofer/plox/internal/value"
)

// processStart anchors the clock native, which stands in for the C clock()
// a Lox native normally wraps: it returns the wall-clock seconds elapsed
// since this package was initialised, not process CPU time and not a
// timestamp.
var processStart = time.Now()

// installNatives populates globals with the native registry spec.md §4.I
// describes: a small, fixed set of host functions installed before
// execution begins. Scaled down from the teacher's pkg/vm/primitives.go
// (which wires HTTP, crypto, and archive primitives into message sends)
// to the handful that fit a single trusted, non-sandboxed registry
// (spec.md §1 Non-goals: "no sandboxing of native functions beyond a fixed
// registry").
func installNatives(g *globals) {
	define := func(name string, fn func(args []value.Value) value.Value) {
		g.define(name, &value.NativeFn{Name: name, Fn: fn})
	}

	// clock is the one native spec.md §4.I mandates.
	define("clock", func(args []value.Value) value.Value {
		return value.Number(time.Since(processStart).Seconds())
	})

	// sqrt is total: negative input yields NaN rather than an error,
	// matching spec.md §9 ("natives have no defined failure path").
	define("sqrt", func(args []value.Value) value.Value {
		n, ok := arg0Number(args)
		if !ok {
			return value.Number(math.NaN())
		}
		return value.Number(math.Sqrt(float64(n)))
	})

	// str renders any value the same way OP_PRINT does.
	define("str", func(args []value.Value) value.Value {
		if len(args) == 0 {
			return value.String("")
		}
		return value.String(value.Print(args[0]))
	})

	// uuid returns a fresh random identifier string, useful for scripts
	// that need a unique token without touching the filesystem or network.
	define("uuid", func(args []value.Value) value.Value {
		return value.String(uuid.New().String())
	})
}

func arg0Number(args []value.Value) (value.Number, bool) {
	if len(args) == 0 {
		return 0, false
	}
	n, ok := args[0].(value.Number)
	return n, ok
}
