package image

// Builder assembles a Program function by function, without a source-level
// compiler: callers append slots, constants, and strings directly. This
// plays the role the original system's loader plays (spec.md §1 treats the
// compiler as an external collaborator) — it is the thing tests use to hand
// the VM a program model. cmd/plox's `asm` subcommand does not use it; it
// goes through ParseAsm, which fills in a Program directly.
type Builder struct {
	prog      *Program
	nextAddr  int
	nextStr   int
	strByText map[string]int
}

// NewBuilder creates an empty builder with no functions or strings yet.
func NewBuilder() *Builder {
	return &Builder{
		prog: &Program{
			Strings:   make(map[int]string),
			Functions: make(map[int]*Function),
		},
		strByText: make(map[string]int),
	}
}

// Intern returns the stable address for s, reusing an existing address if
// the same text was interned before.
func (b *Builder) Intern(s string) int {
	if addr, ok := b.strByText[s]; ok {
		return addr
	}
	addr := b.nextStr
	b.nextStr++
	b.prog.Strings[addr] = s
	b.strByText[s] = addr
	return addr
}

// FuncBuilder incrementally builds one Function's instruction stream.
type FuncBuilder struct {
	b  *Builder
	fn *Function
}

// Function starts a new function with the given name/arity/upvalue count.
// An empty name marks the top-level script, matching spec.md §3.
func (b *Builder) Function(name string, arity, upvalueCount int) *FuncBuilder {
	addr := b.nextAddr
	b.nextAddr++
	fn := &Function{
		Address:      addr,
		Name:         name,
		Arity:        arity,
		UpvalueCount: upvalueCount,
		Instructions: make(map[int]Slot),
	}
	b.prog.Functions[addr] = fn
	return &FuncBuilder{b: b, fn: fn}
}

// Address returns the function's stable address, for building FunctionRef
// constants before the callee itself is emitted (recursive/mutually
// recursive functions).
func (fb *FuncBuilder) Address() int { return fb.fn.Address }

// Const appends a constant and returns its pool index.
func (fb *FuncBuilder) Const(c Constant) int {
	fb.fn.Constants = append(fb.fn.Constants, c)
	return len(fb.fn.Constants) - 1
}

// ConstString interns s and appends a StringRef constant for it.
func (fb *FuncBuilder) ConstString(s string) int {
	return fb.Const(StringRefConstant(fb.b.Intern(s)))
}

// ConstNumber appends a NumberConst constant.
func (fb *FuncBuilder) ConstNumber(f float64) int {
	return fb.Const(NumberConstant(f))
}

// ConstFunction appends a FunctionRef constant for a (possibly not yet
// finished) function address.
func (fb *FuncBuilder) ConstFunction(addr int) int {
	return fb.Const(FunctionRefConstant(addr))
}

// Emit appends an opcode slot at the next offset and returns that offset.
func (fb *FuncBuilder) Emit(op OpCode) int {
	off := len(fb.fn.Offsets)
	fb.fn.Instructions[off] = OpSlot(op)
	fb.fn.Offsets = append(fb.fn.Offsets, off)
	return off
}

// EmitOperand appends a single raw operand slot — the "read_byte" shape
// spec.md §6 uses for constant indices, local/upvalue slots, and argument
// counts (one slot, read whole with AsOperand).
func (fb *FuncBuilder) EmitOperand(v uint16) int {
	off := len(fb.fn.Offsets)
	fb.fn.Instructions[off] = OperandSlot(v)
	fb.fn.Offsets = append(fb.fn.Offsets, off)
	return off
}

// EmitByte appends a raw operand slot holding a single byte's worth of
// value (e.g. the is_local flag ahead of an upvalue index).
func (fb *FuncBuilder) EmitByte(v byte) int {
	return fb.EmitOperand(uint16(v))
}

// EmitShortPlaceholder reserves the two-slot "read_short" shape spec.md §6
// mandates for jump offsets: two operand slots whose encoded integers are
// combined as (hi<<8)|lo. Returns the offset of the first (hi) slot, to be
// passed to PatchJump once the jump target is known.
func (fb *FuncBuilder) EmitShortPlaceholder() int {
	off := fb.EmitOperand(0)
	fb.EmitOperand(0)
	return off
}

// EmitShort appends a two-slot short with a known value up front (used by
// OP_LOOP, whose backward offset is known at emit time).
func (fb *FuncBuilder) EmitShort(v uint16) int {
	off := fb.EmitOperand(uint16(v >> 8))
	fb.EmitOperand(uint16(v & 0xFF))
	return off
}

// PatchJump rewrites the two-slot short at offset (previously reserved with
// EmitShortPlaceholder) to the distance from just after it to the current
// end of the instruction stream — the usual "back-patch after the body is
// known" pattern for JUMP/JUMP_IF_FALSE targets.
func (fb *FuncBuilder) PatchJump(offset int) {
	jumpLen := len(fb.fn.Offsets) - (offset + 2)
	fb.fn.Instructions[offset] = OperandSlot(uint16(jumpLen >> 8))
	fb.fn.Instructions[offset+1] = OperandSlot(uint16(jumpLen & 0xFF))
}

// Here returns the offset the next Emit call will use.
func (fb *FuncBuilder) Here() int { return len(fb.fn.Offsets) }

// Finish records the function's entry offset and returns its address. Call
// this once the function body has been fully emitted.
func (fb *FuncBuilder) Finish() int {
	fb.fn.FirstOffset = 0
	return fb.fn.Address
}

// Build finalizes the program, setting entryAddr as the script's entry
// point (normally the address of the Function built with name == "").
func (b *Builder) Build(entryAddr int) *Program {
	b.prog.EntryAddress = entryAddr
	return b.prog
}
