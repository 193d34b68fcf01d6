package vm

import (
	"fmt"

	"github.com/kristofer/plox/internal/image"
	"github.com/kristofer/plox/internal/value"
)

// run is the instruction-dispatch loop proper (spec.md §4.H). It drives
// execution until the outermost frame returns (Halted-OK, nil error) or an
// opcode's precondition fails (Halted-Error, non-nil error).
func (vm *VM) run() error {
	for {
		f := vm.frame()
		op, err := vm.readOpcode(f)
		if err != nil {
			return err
		}

		if vm.logger != nil {
			vm.logger.WithField("op", op.String()).Trace("dispatch")
		}

		switch op {
		case image.OpConstant:
			idx, err := vm.readByte(f)
			if err != nil {
				return err
			}
			c, err := vm.readConstant(f, idx)
			if err != nil {
				return err
			}
			v, err := vm.resolveConstant(c)
			if err != nil {
				return err
			}
			vm.push(v)

		case image.OpNil:
			vm.push(value.Nil{})
		case image.OpTrue:
			vm.push(value.Bool(true))
		case image.OpFalse:
			vm.push(value.Bool(false))
		case image.OpPop:
			vm.pop()

		case image.OpGetLocal:
			slot, err := vm.readByte(f)
			if err != nil {
				return err
			}
			vm.push(vm.stack[f.slotOffset+int(slot)])

		case image.OpSetLocal:
			slot, err := vm.readByte(f)
			if err != nil {
				return err
			}
			vm.stack[f.slotOffset+int(slot)] = vm.peek(0)

		case image.OpGetGlobal:
			idx, err := vm.readByte(f)
			if err != nil {
				return err
			}
			name, err := vm.constantName(f, idx)
			if err != nil {
				return err
			}
			v, ok := vm.globals.get(name)
			if !ok {
				return newRuntimeError(RuntimeUndefined, "undefined variable %q", name)
			}
			vm.push(v)

		case image.OpDefineGlobal:
			idx, err := vm.readByte(f)
			if err != nil {
				return err
			}
			name, err := vm.constantName(f, idx)
			if err != nil {
				return err
			}
			vm.globals.define(name, vm.peek(0))
			vm.pop()

		case image.OpSetGlobal:
			idx, err := vm.readByte(f)
			if err != nil {
				return err
			}
			name, err := vm.constantName(f, idx)
			if err != nil {
				return err
			}
			if !vm.globals.set(name, vm.peek(0)) {
				return newRuntimeError(RuntimeUndefined, "undefined variable %q", name)
			}

		case image.OpGetUpvalue:
			slot, err := vm.readByte(f)
			if err != nil {
				return err
			}
			if int(slot) >= len(f.upvalues) {
				return newRuntimeError(RuntimeMalformedImage, "upvalue index %d out of range", slot)
			}
			vm.push(f.upvalues[slot])

		case image.OpSetUpvalue:
			slot, err := vm.readByte(f)
			if err != nil {
				return err
			}
			if int(slot) >= len(f.upvalues) {
				return newRuntimeError(RuntimeMalformedImage, "upvalue index %d out of range", slot)
			}
			f.upvalues[slot] = vm.peek(0)

		case image.OpEqual:
			b := vm.pop()
			a := vm.pop()
			vm.push(value.Bool(value.Equal(a, b)))

		case image.OpGreater:
			if err := vm.numericCompare(func(a, b float64) bool { return a > b }); err != nil {
				return err
			}
		case image.OpLess:
			if err := vm.numericCompare(func(a, b float64) bool { return a < b }); err != nil {
				return err
			}

		case image.OpAdd:
			if err := vm.add(); err != nil {
				return err
			}
		case image.OpSubtract:
			if err := vm.numericBinary(func(a, b float64) float64 { return a - b }); err != nil {
				return err
			}
		case image.OpMultiply:
			if err := vm.numericBinary(func(a, b float64) float64 { return a * b }); err != nil {
				return err
			}
		case image.OpDivide:
			if err := vm.numericBinary(func(a, b float64) float64 { return a / b }); err != nil {
				return err
			}

		case image.OpNot:
			vm.push(value.Bool(value.IsFalsey(vm.pop())))

		case image.OpNegate:
			n, ok := vm.peek(0).(value.Number)
			if !ok {
				return newRuntimeError(RuntimeTypeError, "operand must be a number")
			}
			vm.pop()
			vm.push(-n)

		case image.OpPrint:
			fmt.Fprintln(vm.out, value.Print(vm.pop()))

		case image.OpJump:
			off, err := vm.readShort(f)
			if err != nil {
				return err
			}
			vm.jumpForward(f, off)

		case image.OpJumpIfFalse:
			off, err := vm.readShort(f)
			if err != nil {
				return err
			}
			if value.IsFalsey(vm.peek(0)) {
				vm.jumpForward(f, off)
			}

		case image.OpLoop:
			off, err := vm.readShort(f)
			if err != nil {
				return err
			}
			vm.jumpBackward(f, off)

		case image.OpCall:
			argc, err := vm.readByte(f)
			if err != nil {
				return err
			}
			if err := vm.callValue(vm.peek(int(argc)), int(argc)); err != nil {
				return err
			}

		case image.OpInvoke:
			nameIdx, err := vm.readByte(f)
			if err != nil {
				return err
			}
			argc, err := vm.readByte(f)
			if err != nil {
				return err
			}
			name, err := vm.constantName(f, nameIdx)
			if err != nil {
				return err
			}
			if err := vm.invoke(name, int(argc)); err != nil {
				return err
			}

		case image.OpSuperInvoke:
			nameIdx, err := vm.readByte(f)
			if err != nil {
				return err
			}
			argc, err := vm.readByte(f)
			if err != nil {
				return err
			}
			name, err := vm.constantName(f, nameIdx)
			if err != nil {
				return err
			}
			superVal := vm.pop()
			super, ok := superVal.(*value.Class)
			if !ok {
				return newRuntimeError(RuntimeTypeError, "super must be a class")
			}
			if err := vm.invokeFromClass(super, name, int(argc)); err != nil {
				return err
			}

		case image.OpClosure:
			if err := vm.makeClosure(f); err != nil {
				return err
			}

		case image.OpClass:
			idx, err := vm.readByte(f)
			if err != nil {
				return err
			}
			name, err := vm.constantName(f, idx)
			if err != nil {
				return err
			}
			vm.push(value.NewClass(name))

		case image.OpInherit:
			if err := vm.inherit(); err != nil {
				return err
			}

		case image.OpMethod:
			idx, err := vm.readByte(f)
			if err != nil {
				return err
			}
			name, err := vm.constantName(f, idx)
			if err != nil {
				return err
			}
			vm.defineMethod(name)

		case image.OpGetProperty:
			idx, err := vm.readByte(f)
			if err != nil {
				return err
			}
			name, err := vm.constantName(f, idx)
			if err != nil {
				return err
			}
			if err := vm.getProperty(name); err != nil {
				return err
			}

		case image.OpSetProperty:
			idx, err := vm.readByte(f)
			if err != nil {
				return err
			}
			name, err := vm.constantName(f, idx)
			if err != nil {
				return err
			}
			if err := vm.setProperty(name); err != nil {
				return err
			}

		case image.OpGetSuper:
			idx, err := vm.readByte(f)
			if err != nil {
				return err
			}
			name, err := vm.constantName(f, idx)
			if err != nil {
				return err
			}
			superVal := vm.pop()
			super, ok := superVal.(*value.Class)
			if !ok {
				return newRuntimeError(RuntimeTypeError, "super must be a class")
			}
			receiver, ok := vm.peek(0).(*value.Instance)
			if !ok {
				return newRuntimeError(RuntimeTypeError, "only instances have superclass methods")
			}
			if err := vm.bindMethod(receiver, super, name); err != nil {
				return err
			}

		case image.OpReturn:
			result := vm.pop()
			vm.frames = vm.frames[:len(vm.frames)-1]
			if len(vm.frames) == 0 {
				// spec.md §9: OP_RETURN at the outermost frame pops one
				// extra operand-stack slot (the script's own closure,
				// sitting at slot 0) beyond the return value.
				vm.pop()
				return nil
			}
			vm.truncateTo(f.slotOffset)
			vm.push(result)

		default:
			return newRuntimeError(RuntimeMalformedImage, "unknown opcode %v", op)
		}
	}
}

func (vm *VM) jumpForward(f *callFrame, off uint16) {
	for i := 0; i < int(off); i++ {
		next, ok := f.function.NextOffset(f.ip)
		if !ok {
			break
		}
		f.ip = next
	}
}

func (vm *VM) jumpBackward(f *callFrame, off uint16) {
	// Offsets in this program model are not guaranteed contiguous
	// integers, so LOOP walks the frame's own address order backward
	// count times, mirroring the forward walk jumpForward performs.
	offsets := f.function.Offsets
	pos := indexOf(offsets, f.ip)
	if pos < 0 {
		return
	}
	pos -= int(off)
	if pos < 0 {
		pos = 0
	}
	f.ip = offsets[pos]
}

func indexOf(offsets []int, target int) int {
	for i, o := range offsets {
		if o == target {
			return i
		}
	}
	return -1
}

func (vm *VM) numericBinary(op func(a, b float64) float64) error {
	b, ok1 := vm.peek(0).(value.Number)
	a, ok2 := vm.peek(1).(value.Number)
	if !ok1 || !ok2 {
		return newRuntimeError(RuntimeTypeError, "operands must be numbers")
	}
	vm.pop()
	vm.pop()
	vm.push(value.Number(op(float64(a), float64(b))))
	return nil
}

func (vm *VM) numericCompare(op func(a, b float64) bool) error {
	b, ok1 := vm.peek(0).(value.Number)
	a, ok2 := vm.peek(1).(value.Number)
	if !ok1 || !ok2 {
		return newRuntimeError(RuntimeTypeError, "operands must be numbers")
	}
	vm.pop()
	vm.pop()
	vm.push(value.Bool(op(float64(a), float64(b))))
	return nil
}

func (vm *VM) add() error {
	bs, bIsStr := vm.peek(0).(value.String)
	as, aIsStr := vm.peek(1).(value.String)
	if aIsStr && bIsStr {
		vm.pop()
		vm.pop()
		vm.push(as + bs)
		return nil
	}
	bn, bIsNum := vm.peek(0).(value.Number)
	an, aIsNum := vm.peek(1).(value.Number)
	if aIsNum && bIsNum {
		vm.pop()
		vm.pop()
		vm.push(an + bn)
		return nil
	}
	return newRuntimeError(RuntimeTypeError, "operands must be two numbers or two strings")
}
