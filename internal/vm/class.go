package vm

import "github.com/kristofer/plox/internal/value"

// inherit implements OP_INHERIT (spec.md §4.G): the subclass on top of the
// stack copies every entry out of the superclass's method table at this
// instant. Nothing ever links back to the superclass afterward — a later
// OP_METHOD on the superclass has no effect on subclasses already created.
func (vm *VM) inherit() error {
	super, ok := vm.peek(1).(*value.Class)
	if !ok {
		return newRuntimeError(RuntimeTypeError, "superclass must be a class")
	}
	sub, ok := vm.peek(0).(*value.Class)
	if !ok {
		return newRuntimeError(RuntimeTypeError, "subclass must be a class")
	}
	for name, closure := range super.Methods {
		sub.Methods[name] = closure
	}
	vm.pop() // discards the duplicate subclass operand; the superclass below survives for a "super" binding
	return nil
}

// defineMethod implements OP_METHOD: the closure on top of the stack is
// filed into the class just below it under name, then popped.
func (vm *VM) defineMethod(name string) {
	closure := vm.pop().(*value.Closure)
	class := vm.peek(0).(*value.Class)
	class.Methods[name] = closure
}

// getProperty implements OP_GET_PROPERTY: a field hit wins over a method of
// the same name (spec.md §4.G), and a method hit produces a fresh
// BoundMethod rather than the bare closure.
func (vm *VM) getProperty(name string) error {
	inst, ok := vm.peek(0).(*value.Instance)
	if !ok {
		return newRuntimeError(RuntimeTypeError, "only instances have properties")
	}
	if v, ok := inst.Fields[name]; ok {
		vm.pop()
		vm.push(v)
		return nil
	}
	return vm.bindMethod(inst, inst.Class, name)
}

// setProperty implements OP_SET_PROPERTY: fields are created on first
// assignment, unconditionally, on whatever instance sits one below the
// assigned value. The assigned value is left on top of the stack afterward,
// matching assignment-as-expression semantics.
func (vm *VM) setProperty(name string) error {
	v := vm.pop()
	inst, ok := vm.pop().(*value.Instance)
	if !ok {
		return newRuntimeError(RuntimeTypeError, "only instances have fields")
	}
	inst.Fields[name] = v
	vm.push(v)
	return nil
}

// bindMethod looks up name on class's method table and, on a hit, replaces
// the top of the stack with a BoundMethod pairing receiver and that closure
// (spec.md §4.G "bind_method"). RuntimeUndefined on a miss.
func (vm *VM) bindMethod(receiver *value.Instance, class *value.Class, name string) error {
	method, ok := class.Methods[name]
	if !ok {
		return newRuntimeError(RuntimeUndefined, "undefined property %q", name)
	}
	vm.pop()
	vm.push(&value.BoundMethod{Receiver: receiver, Method: method})
	return nil
}

// invoke implements OP_INVOKE: the fused "get property, then call" fast
// path. A field holding a callable is still invoked through callValue; only
// a genuine method hit skips BoundMethod allocation and calls directly.
func (vm *VM) invoke(name string, argc int) error {
	receiver, ok := vm.peek(argc).(*value.Instance)
	if !ok {
		return newRuntimeError(RuntimeTypeError, "only instances have methods")
	}
	if v, ok := receiver.Fields[name]; ok {
		vm.stack[len(vm.stack)-argc-1] = v
		return vm.callValue(v, argc)
	}
	return vm.invokeFromClass(receiver.Class, name, argc)
}

// invokeFromClass calls class's method named name directly against the
// receiver already sitting argc below the top of the stack, without
// allocating an intermediate BoundMethod (spec.md §4.G "invoke_from_class").
// Used by both invoke and OP_SUPER_INVOKE.
func (vm *VM) invokeFromClass(class *value.Class, name string, argc int) error {
	method, ok := class.Methods[name]
	if !ok {
		return newRuntimeError(RuntimeUndefined, "undefined property %q", name)
	}
	fn, ok := vm.program.FunctionByAddress(method.Function.FunctionAddress)
	if !ok {
		return newRuntimeError(RuntimeMalformedImage, "function address %d not found", method.Function.FunctionAddress)
	}
	return vm.call(method, fn, argc)
}
