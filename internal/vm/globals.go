package vm

import "github.com/kristofer/plox/internal/value"

// globals is the VM's global variable table (spec.md §4.E): an unordered
// mapping from name to value, unconditional on define, strict (fails
// closed) on get/set.
type globals struct {
	table map[string]value.Value
}

func newGlobals() *globals {
	return &globals{table: make(map[string]value.Value)}
}

// define unconditionally inserts or overwrites name (OP_DEFINE_GLOBAL).
func (g *globals) define(name string, v value.Value) {
	g.table[name] = v
}

// get returns the value stored under name, or ok=false if absent
// (OP_GET_GLOBAL / RuntimeUndefined on failure).
func (g *globals) get(name string) (value.Value, bool) {
	v, ok := g.table[name]
	return v, ok
}

// set overwrites an existing entry and reports ok=false without creating
// one if name is absent (OP_SET_GLOBAL never creates).
func (g *globals) set(name string, v value.Value) bool {
	if _, ok := g.table[name]; !ok {
		return false
	}
	g.table[name] = v
	return true
}
