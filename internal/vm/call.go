package vm

import (
	"github.com/kristofer/plox/internal/image"
	"github.com/kristofer/plox/internal/value"
)

// call pushes a new call frame for closure, bound to fn's instruction stream,
// with its locals window starting argc+1 slots below the current stack top
// (the +1 accounts for the callee itself, which CALL leaves on the stack as
// local slot 0 — spec.md §4.H "call").
func (vm *VM) call(closure *value.Closure, fn *image.Function, argc int) error {
	if argc != fn.Arity {
		return newRuntimeError(RuntimeArity, "expected %d arguments but got %d", fn.Arity, argc)
	}
	if len(vm.frames) >= CallStackMax {
		return newRuntimeError(RuntimeStackOverflow, "call stack exceeded %d frames", CallStackMax)
	}
	vm.frames = append(vm.frames, &callFrame{
		function:   fn,
		ip:         fn.FirstOffset,
		slotOffset: len(vm.stack) - argc - 1,
		upvalues:   closure.Upvalues,
	})
	return nil
}

// callValue implements spec.md §4.H "call_value": dispatch on the callee's
// runtime type, since Lox lets any callable sit in the operand slot CALL
// targets — a Closure, a NativeFn, a Class (instantiation), or a BoundMethod.
func (vm *VM) callValue(callee value.Value, argc int) error {
	switch c := callee.(type) {
	case *value.Closure:
		fn, ok := vm.program.FunctionByAddress(c.Function.FunctionAddress)
		if !ok {
			return newRuntimeError(RuntimeMalformedImage, "function address %d not found", c.Function.FunctionAddress)
		}
		return vm.call(c, fn, argc)

	case *value.NativeFn:
		args := make([]value.Value, argc)
		copy(args, vm.stack[len(vm.stack)-argc:])
		result := c.Fn(args)
		vm.truncateTo(len(vm.stack) - argc - 1)
		vm.push(result)
		return nil

	case *value.Class:
		inst := value.NewInstance(c)
		vm.stack[len(vm.stack)-argc-1] = inst
		if init, ok := c.Methods["init"]; ok {
			fn, ok := vm.program.FunctionByAddress(init.Function.FunctionAddress)
			if !ok {
				return newRuntimeError(RuntimeMalformedImage, "function address %d not found", init.Function.FunctionAddress)
			}
			return vm.call(init, fn, argc)
		}
		if argc != 0 {
			return newRuntimeError(RuntimeArity, "expected 0 arguments but got %d", argc)
		}
		return nil

	case *value.BoundMethod:
		vm.stack[len(vm.stack)-argc-1] = c.Receiver
		fn, ok := vm.program.FunctionByAddress(c.Method.Function.FunctionAddress)
		if !ok {
			return newRuntimeError(RuntimeMalformedImage, "function address %d not found", c.Method.Function.FunctionAddress)
		}
		return vm.call(c.Method, fn, argc)

	default:
		return newRuntimeError(RuntimeTypeError, "can only call functions and classes")
	}
}
