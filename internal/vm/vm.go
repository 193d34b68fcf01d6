// Package vm implements the bytecode dispatch loop and its supporting
// runtime: the operand stack, the bounded call stack, the globals table,
// closure/upvalue capture, class/instance/method dispatch, the native
// registry, and the runtime error reporter. This is the "core" spec.md §1
// scopes this repository around; it consumes a read-only *image.Program
// produced externally (by internal/image's builder/codec in this repo, in
// place of a front-end compiler) and never mutates it.
//
// Grounded throughout on the teacher's pkg/vm/vm.go dispatch-loop shape
// (switch over an Instruction stream, explicit push/pop/peek stack helpers,
// a VM struct holding stack/globals/constants) generalized from smog's
// message-send object model to this spec's explicit per-opcode call/class
// dispatch.
package vm

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/kristofer/plox/internal/image"
	"github.com/kristofer/plox/internal/value"
)

// VM is a single-threaded bytecode interpreter instance. A VM owns its
// operand stack, call stack, and globals table exclusively; per spec.md §5,
// multiple VM instances must not share any of that mutable state, though
// they may share a single read-only *image.Program.
type VM struct {
	program *image.Program

	stack  []value.Value
	frames []*callFrame

	globals *globals

	out    io.Writer
	logger *logrus.Logger
}

// Option configures a VM at construction time.
type Option func(*VM)

// WithOutput redirects OP_PRINT output away from os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(vm *VM) { vm.out = w }
}

// WithLogger attaches a structured logger for VM lifecycle diagnostics
// (SPEC_FULL.md §4.M). A nil logger (the default) disables
// logging entirely; diagnostics never touch stdout, which is reserved for
// program-directed PRINT output.
func WithLogger(l *logrus.Logger) Option {
	return func(vm *VM) { vm.logger = l }
}

// New creates a VM with an empty globals table and the native registry
// installed (spec.md §4.I). The VM is reusable across multiple Run calls;
// globals persist across runs, matching the teacher's vm.New()/vm.Run(bc)
// split.
func New(opts ...Option) *VM {
	vm := &VM{
		globals: newGlobals(),
		out:     os.Stdout,
	}
	installNatives(vm.globals)
	for _, opt := range opts {
		opt(vm)
	}
	return vm
}

// Run executes program from its entry function to completion. It returns
// nil on a successful OP_RETURN-driven halt (spec.md §4.H "Halted-OK"), or
// a *RuntimeError on failure (spec.md §4.H "Halted-Error"). Run resets the
// operand and call stacks on every invocation but keeps globals from any
// prior Run.
func (vm *VM) Run(program *image.Program) error {
	vm.program = program
	vm.stack = vm.stack[:0]
	vm.frames = vm.frames[:0]

	entry, ok := program.FunctionByAddress(program.EntryAddress)
	if !ok {
		return newRuntimeError(RuntimeMalformedImage, "entry function address %d not found", program.EntryAddress)
	}

	closure := &value.Closure{Function: functionValue(entry), Upvalues: nil}
	vm.push(closure)
	if err := vm.call(closure, entry, 0); err != nil {
		return vm.finish(err)
	}

	err := vm.run()
	return vm.finish(err)
}

func (vm *VM) finish(err error) error {
	if err == nil {
		return nil
	}
	rerr, ok := err.(*RuntimeError)
	if !ok {
		rerr = newRuntimeError(RuntimeTypeError, "%s", err.Error())
	}
	rerr.trace = vm.captureTrace()
	if vm.logger != nil {
		vm.logger.WithField("kind", rerr.Kind.String()).Error(rerr.Message)
	}
	fmt.Fprint(vm.out, rerr.Report())
	return rerr
}

func (vm *VM) captureTrace() []frameTrace {
	trace := make([]frameTrace, 0, len(vm.frames))
	for i := len(vm.frames) - 1; i >= 0; i-- {
		trace = append(trace, frameTrace{name: vm.frames[i].function.Name})
	}
	return trace
}

func functionValue(fn *image.Function) *value.Function {
	return &value.Function{
		FunctionAddress: fn.Address,
		Name:            fn.Name,
		Arity:           fn.Arity,
		UpvalueCount:    fn.UpvalueCount,
	}
}

// --- operand stack -----------------------------------------------------

func (vm *VM) push(v value.Value) {
	vm.stack = append(vm.stack, v)
}

func (vm *VM) pop() value.Value {
	n := len(vm.stack) - 1
	v := vm.stack[n]
	vm.stack = vm.stack[:n]
	return v
}

func (vm *VM) peek(distance int) value.Value {
	return vm.stack[len(vm.stack)-1-distance]
}

func (vm *VM) truncateTo(n int) {
	vm.stack = vm.stack[:n]
}

// --- frame / instruction reads ------------------------------------------

func (vm *VM) frame() *callFrame {
	return vm.frames[len(vm.frames)-1]
}

// readByte reads the single slot at the frame's current ip (whatever its
// encoded shape) and advances ip to the next offset (spec.md §4.B
// slot_at/next_offset).
func (vm *VM) readByte(f *callFrame) (uint16, error) {
	slot, ok := f.function.SlotAt(f.ip)
	if !ok {
		return 0, newRuntimeError(RuntimeMalformedImage, "ip %d out of range in function %q", f.ip, f.function.Name)
	}
	next, hasNext := f.function.NextOffset(f.ip)
	if hasNext {
		f.ip = next
	}
	return slot.AsOperand(), nil
}

// readShort implements spec.md §6's read_short: consumes the next two
// slots and forms (hi<<8)|lo, accepting either slot shape.
func (vm *VM) readShort(f *callFrame) (uint16, error) {
	hi, err := vm.readByte(f)
	if err != nil {
		return 0, err
	}
	lo, err := vm.readByte(f)
	if err != nil {
		return 0, err
	}
	return (hi << 8) | lo, nil
}

func (vm *VM) readOpcode(f *callFrame) (image.OpCode, error) {
	slot, ok := f.function.SlotAt(f.ip)
	if !ok || !slot.IsOp {
		return 0, newRuntimeError(RuntimeMalformedImage, "expected opcode at ip %d in function %q", f.ip, f.function.Name)
	}
	next, hasNext := f.function.NextOffset(f.ip)
	if hasNext {
		f.ip = next
	}
	return slot.Op, nil
}

func (vm *VM) readConstant(f *callFrame, idx uint16) (image.Constant, error) {
	c, ok := f.function.ConstantAt(int(idx))
	if !ok {
		return image.Constant{}, newRuntimeError(RuntimeMalformedImage, "constant index %d out of range in function %q", idx, f.function.Name)
	}
	return c, nil
}

// resolveConstant turns a program-model Constant into a runtime Value,
// resolving StringRef/FunctionRef against the program's tables.
func (vm *VM) resolveConstant(c image.Constant) (value.Value, error) {
	switch c.Kind {
	case image.ConstNumber:
		return value.Number(c.Number), nil
	case image.ConstBool:
		return value.Bool(c.Bool), nil
	case image.ConstStringRef:
		s, ok := vm.program.StringByAddress(c.StringAddr)
		if !ok {
			return nil, newRuntimeError(RuntimeMalformedImage, "string address %d not found", c.StringAddr)
		}
		return value.String(s), nil
	case image.ConstFunctionRef:
		fn, ok := vm.program.FunctionByAddress(c.FunctionRef)
		if !ok {
			return nil, newRuntimeError(RuntimeMalformedImage, "function address %d not found", c.FunctionRef)
		}
		return functionValue(fn), nil
	default:
		return nil, newRuntimeError(RuntimeMalformedImage, "unknown constant kind %d", c.Kind)
	}
}

func (vm *VM) constantName(f *callFrame, idx uint16) (string, error) {
	c, err := vm.readConstant(f, idx)
	if err != nil {
		return "", err
	}
	if c.Kind != image.ConstStringRef {
		return "", newRuntimeError(RuntimeMalformedImage, "expected string constant at index %d", idx)
	}
	s, ok := vm.program.StringByAddress(c.StringAddr)
	if !ok {
		return "", newRuntimeError(RuntimeMalformedImage, "string address %d not found", c.StringAddr)
	}
	return s, nil
}
