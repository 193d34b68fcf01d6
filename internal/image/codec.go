package image

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Binary format, modeled on the teacher's .sg layout (pkg/bytecode/format.go
// in the original smog project): a magic number, a version word, then
// length-prefixed sections. Multi-byte integers are big-endian throughout.
//
//	[Header]   magic(4) version(4)
//	[Strings]  count(4) { addr(4) len(4) bytes }...
//	[Funcs]    count(4) { Function }...
//	[Function] addr(4) nameLen(4) name upvalueCount(4) arity(4) firstOffset(4)
//	           constCount(4) { Constant }...
//	           slotCount(4) { offset(4) isOp(1) value(2) }...
//	[Constant] kind(1) then kind-specific payload:
//	           number: float64 bits (8)
//	           bool:   1 byte
//	           stringRef / functionRef: int32 address
//	[Footer]   entryAddress(4)
const (
	magicNumber   uint32 = 0x504C4F58 // "PLOX"
	formatVersion uint32 = 1
)

// Encode serializes p to w in the binary format above.
func Encode(w io.Writer, p *Program) error {
	bw := &binWriter{w: w}
	bw.u32(magicNumber)
	bw.u32(formatVersion)

	bw.u32(uint32(len(p.Strings)))
	for addr, s := range p.Strings {
		bw.u32(uint32(addr))
		bw.bytes([]byte(s))
	}

	bw.u32(uint32(len(p.Functions)))
	for _, fn := range p.Functions {
		bw.function(fn)
	}

	bw.u32(uint32(p.EntryAddress))
	return bw.err
}

// Decode parses a Program from r in the binary format written by Encode.
// Any structural inconsistency is reported as an error; it is the VM's job
// (not this package's) to turn a missing FunctionRef/StringRef into a
// RuntimeMalformedImage once execution reaches it.
func Decode(r io.Reader) (*Program, error) {
	br := &binReader{r: r}

	magic := br.u32()
	if br.err != nil {
		return nil, br.err
	}
	if magic != magicNumber {
		return nil, fmt.Errorf("image: bad magic number %#x", magic)
	}
	version := br.u32()
	if version != formatVersion {
		return nil, fmt.Errorf("image: unsupported format version %d", version)
	}

	p := &Program{
		Strings:   make(map[int]string),
		Functions: make(map[int]*Function),
	}

	stringCount := br.u32()
	for i := uint32(0); i < stringCount && br.err == nil; i++ {
		addr := int(br.u32())
		s := string(br.bytes())
		p.Strings[addr] = s
	}

	funcCount := br.u32()
	for i := uint32(0); i < funcCount && br.err == nil; i++ {
		fn := br.function()
		if fn != nil {
			p.Functions[fn.Address] = fn
		}
	}

	p.EntryAddress = int(br.u32())

	if br.err != nil {
		return nil, br.err
	}
	return p, nil
}

type binWriter struct {
	w   io.Writer
	err error
}

func (bw *binWriter) u32(v uint32) {
	if bw.err != nil {
		return
	}
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	_, bw.err = bw.w.Write(buf[:])
}

func (bw *binWriter) u16(v uint16) {
	if bw.err != nil {
		return
	}
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	_, bw.err = bw.w.Write(buf[:])
}

func (bw *binWriter) u8(v uint8) {
	if bw.err != nil {
		return
	}
	_, bw.err = bw.w.Write([]byte{v})
}

func (bw *binWriter) f64(v float64) {
	bw.u32(uint32(bitsHigh(v)))
	bw.u32(uint32(bitsLow(v)))
}

func (bw *binWriter) bytes(b []byte) {
	bw.u32(uint32(len(b)))
	if bw.err != nil || len(b) == 0 {
		return
	}
	_, bw.err = bw.w.Write(b)
}

func (bw *binWriter) function(fn *Function) {
	bw.u32(uint32(fn.Address))
	bw.bytes([]byte(fn.Name))
	bw.u32(uint32(fn.UpvalueCount))
	bw.u32(uint32(fn.Arity))
	bw.u32(uint32(fn.FirstOffset))

	bw.u32(uint32(len(fn.Constants)))
	for _, c := range fn.Constants {
		bw.constant(c)
	}

	bw.u32(uint32(len(fn.Offsets)))
	for _, off := range fn.Offsets {
		slot := fn.Instructions[off]
		bw.u32(uint32(off))
		if slot.IsOp {
			bw.u8(1)
			bw.u16(uint16(slot.Op))
		} else {
			bw.u8(0)
			bw.u16(slot.Operand)
		}
	}
}

func (bw *binWriter) constant(c Constant) {
	bw.u8(uint8(c.Kind))
	switch c.Kind {
	case ConstNumber:
		bw.f64(c.Number)
	case ConstBool:
		if c.Bool {
			bw.u8(1)
		} else {
			bw.u8(0)
		}
	case ConstStringRef:
		bw.u32(uint32(c.StringAddr))
	case ConstFunctionRef:
		bw.u32(uint32(c.FunctionRef))
	}
}

type binReader struct {
	r   io.Reader
	err error
}

func (br *binReader) u32() uint32 {
	if br.err != nil {
		return 0
	}
	var buf [4]byte
	_, br.err = io.ReadFull(br.r, buf[:])
	return binary.BigEndian.Uint32(buf[:])
}

func (br *binReader) u16() uint16 {
	if br.err != nil {
		return 0
	}
	var buf [2]byte
	_, br.err = io.ReadFull(br.r, buf[:])
	return binary.BigEndian.Uint16(buf[:])
}

func (br *binReader) u8() uint8 {
	if br.err != nil {
		return 0
	}
	var buf [1]byte
	_, br.err = io.ReadFull(br.r, buf[:])
	return buf[0]
}

func (br *binReader) f64() float64 {
	hi := br.u32()
	lo := br.u32()
	return bitsToFloat(hi, lo)
}

func (br *binReader) bytes() []byte {
	n := br.u32()
	if br.err != nil || n == 0 {
		return nil
	}
	buf := make([]byte, n)
	_, br.err = io.ReadFull(br.r, buf)
	return buf
}

func (br *binReader) function() *Function {
	fn := &Function{
		Instructions: make(map[int]Slot),
	}
	fn.Address = int(br.u32())
	fn.Name = string(br.bytes())
	fn.UpvalueCount = int(br.u32())
	fn.Arity = int(br.u32())
	fn.FirstOffset = int(br.u32())

	constCount := br.u32()
	fn.Constants = make([]Constant, 0, constCount)
	for i := uint32(0); i < constCount && br.err == nil; i++ {
		fn.Constants = append(fn.Constants, br.constant())
	}

	slotCount := br.u32()
	fn.Offsets = make([]int, 0, slotCount)
	for i := uint32(0); i < slotCount && br.err == nil; i++ {
		off := int(br.u32())
		isOp := br.u8()
		val := br.u16()
		if isOp != 0 {
			fn.Instructions[off] = OpSlot(OpCode(val))
		} else {
			fn.Instructions[off] = OperandSlot(val)
		}
		fn.Offsets = append(fn.Offsets, off)
	}

	if br.err != nil {
		return nil
	}
	return fn
}

func (br *binReader) constant() Constant {
	kind := ConstantKind(br.u8())
	switch kind {
	case ConstNumber:
		return NumberConstant(br.f64())
	case ConstBool:
		return BoolConstant(br.u8() != 0)
	case ConstStringRef:
		return StringRefConstant(int(br.u32()))
	case ConstFunctionRef:
		return FunctionRefConstant(int(br.u32()))
	default:
		br.err = fmt.Errorf("image: unknown constant kind %d", kind)
		return Constant{}
	}
}

// bitsHigh/bitsLow/bitsToFloat split a float64's bit pattern across two
// uint32 words so the codec only ever deals in 32-bit fields.
func bitsHigh(f float64) uint32 {
	return uint32(math.Float64bits(f) >> 32)
}

func bitsLow(f float64) uint32 {
	return uint32(math.Float64bits(f))
}

func bitsToFloat(hi, lo uint32) float64 {
	return math.Float64frombits(uint64(hi)<<32 | uint64(lo))
}
