package vm

import (
	"github.com/kristofer/plox/internal/image"
	"github.com/kristofer/plox/internal/value"
)

// CallStackMax is the bounded depth of the call stack (spec.md §3 "Invariants").
const CallStackMax = 100

// callFrame holds everything spec.md §3 assigns to a call frame: the
// executing function, the instruction pointer, the operand-stack base for
// this frame's locals, and the executing closure's upvalues.
type callFrame struct {
	function   *image.Function
	ip         int
	slotOffset int
	upvalues   []value.Value
}
