package vm

import (
	"github.com/kristofer/plox/internal/image"
	"github.com/kristofer/plox/internal/value"
)

// makeClosure implements OP_CLOSURE (spec.md §4.F). The operand is a
// constant-pool index naming a FunctionRef; it is followed immediately in
// the instruction stream by one (is_local, index) pair of single-slot
// operands per upvalue the function declares, in the order the function's
// upvalue list was built.
//
// Per spec.md §9's closed-by-value quirk, each captured upvalue is copied
// out of its source (a local slot or an enclosing frame's own upvalue list)
// at closure-creation time. There is no open/closed upvalue distinction and
// no cell shared between a closure and the stack frame that outlives it:
// once OP_CLOSURE runs, later writes to the original local no longer affect
// the capture.
func (vm *VM) makeClosure(f *callFrame) error {
	idx, err := vm.readByte(f)
	if err != nil {
		return err
	}
	c, err := vm.readConstant(f, idx)
	if err != nil {
		return err
	}
	if c.Kind != image.ConstFunctionRef {
		return newRuntimeError(RuntimeMalformedImage, "OP_CLOSURE operand must be a function constant")
	}
	fn, ok := vm.program.FunctionByAddress(c.FunctionRef)
	if !ok {
		return newRuntimeError(RuntimeMalformedImage, "function address %d not found", c.FunctionRef)
	}

	upvalues := make([]value.Value, fn.UpvalueCount)
	for i := 0; i < fn.UpvalueCount; i++ {
		isLocal, err := vm.readByte(f)
		if err != nil {
			return err
		}
		index, err := vm.readByte(f)
		if err != nil {
			return err
		}
		if isLocal != 0 {
			upvalues[i] = vm.stack[f.slotOffset+int(index)]
		} else {
			if int(index) >= len(f.upvalues) {
				return newRuntimeError(RuntimeMalformedImage, "upvalue index %d out of range", index)
			}
			upvalues[i] = f.upvalues[index]
		}
	}

	vm.push(&value.Closure{Function: functionValue(fn), Upvalues: upvalues})
	return nil
}
