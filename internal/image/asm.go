package image

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// ParseAsm reads the tiny line-oriented textual format cmd/plox's `asm`
// subcommand accepts, in place of a Lox source compiler (spec.md §1 scopes
// the front-end compiler out of this repo). It exists purely so a program
// model can be authored and edited by hand; it is not a general assembly
// language and has no notion of labels, expressions, or macros.
//
// Grammar (one directive per line; blank lines and lines starting with '#'
// are ignored):
//
//	string <addr> <quoted text>
//	function <addr> <quoted name> <arity> <upvalues> <firstOffset>
//	  const <idx> number <float>
//	  const <idx> bool <true|false>
//	  const <idx> string <addr>
//	  const <idx> func <addr>
//	  op <offset> <OPNAME> [operand]
//	endfunction
//	entry <addr>
func ParseAsm(r io.Reader) (*Program, error) {
	prog := &Program{
		Strings:   make(map[int]string),
		Functions: make(map[int]*Function),
	}

	var cur *Function
	haveEntry := false

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields, err := splitAsmFields(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "string":
			if len(fields) != 3 {
				return nil, fmt.Errorf("line %d: want 'string <addr> <text>'", lineNo)
			}
			addr, err := strconv.Atoi(fields[1])
			if err != nil {
				return nil, fmt.Errorf("line %d: bad address: %w", lineNo, err)
			}
			prog.Strings[addr] = fields[2]

		case "function":
			if len(fields) != 6 {
				return nil, fmt.Errorf("line %d: want 'function <addr> <name> <arity> <upvalues> <firstOffset>'", lineNo)
			}
			addr, err := strconv.Atoi(fields[1])
			if err != nil {
				return nil, fmt.Errorf("line %d: bad address: %w", lineNo, err)
			}
			arity, err := strconv.Atoi(fields[3])
			if err != nil {
				return nil, fmt.Errorf("line %d: bad arity: %w", lineNo, err)
			}
			upvalues, err := strconv.Atoi(fields[4])
			if err != nil {
				return nil, fmt.Errorf("line %d: bad upvalue count: %w", lineNo, err)
			}
			first, err := strconv.Atoi(fields[5])
			if err != nil {
				return nil, fmt.Errorf("line %d: bad firstOffset: %w", lineNo, err)
			}
			cur = &Function{
				Address:      addr,
				Name:         fields[2],
				Arity:        arity,
				UpvalueCount: upvalues,
				FirstOffset:  first,
				Instructions: make(map[int]Slot),
			}
			prog.Functions[addr] = cur

		case "const":
			if cur == nil {
				return nil, fmt.Errorf("line %d: const outside function block", lineNo)
			}
			if len(fields) < 3 {
				return nil, fmt.Errorf("line %d: want 'const <idx> <kind> <value>'", lineNo)
			}
			idx, err := strconv.Atoi(fields[1])
			if err != nil {
				return nil, fmt.Errorf("line %d: bad constant index: %w", lineNo, err)
			}
			c, err := parseAsmConstant(fields[2:])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			for len(cur.Constants) <= idx {
				cur.Constants = append(cur.Constants, Constant{})
			}
			cur.Constants[idx] = c

		case "op":
			if cur == nil {
				return nil, fmt.Errorf("line %d: op outside function block", lineNo)
			}
			if len(fields) < 3 {
				return nil, fmt.Errorf("line %d: want 'op <offset> <OPNAME> [operand]'", lineNo)
			}
			off, err := strconv.Atoi(fields[1])
			if err != nil {
				return nil, fmt.Errorf("line %d: bad offset: %w", lineNo, err)
			}
			op, ok := opByName(fields[2])
			if !ok {
				return nil, fmt.Errorf("line %d: unknown opcode %q", lineNo, fields[2])
			}
			cur.Instructions[off] = OpSlot(op)
			cur.Offsets = append(cur.Offsets, off)
			if len(fields) == 4 {
				operand, err := strconv.ParseUint(fields[3], 10, 16)
				if err != nil {
					return nil, fmt.Errorf("line %d: bad operand: %w", lineNo, err)
				}
				operandOff := off + 1
				cur.Instructions[operandOff] = OperandSlot(uint16(operand))
				cur.Offsets = append(cur.Offsets, operandOff)
			}

		case "endfunction":
			cur = nil

		case "entry":
			if len(fields) != 2 {
				return nil, fmt.Errorf("line %d: want 'entry <addr>'", lineNo)
			}
			addr, err := strconv.Atoi(fields[1])
			if err != nil {
				return nil, fmt.Errorf("line %d: bad address: %w", lineNo, err)
			}
			prog.EntryAddress = addr
			haveEntry = true

		default:
			return nil, fmt.Errorf("line %d: unknown directive %q", lineNo, fields[0])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if !haveEntry {
		return nil, fmt.Errorf("missing 'entry' directive")
	}
	for _, fn := range prog.Functions {
		sort.Ints(fn.Offsets)
	}
	return prog, nil
}

func parseAsmConstant(fields []string) (Constant, error) {
	switch fields[0] {
	case "number":
		if len(fields) != 2 {
			return Constant{}, fmt.Errorf("want 'number <float>'")
		}
		f, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return Constant{}, err
		}
		return NumberConstant(f), nil
	case "bool":
		if len(fields) != 2 {
			return Constant{}, fmt.Errorf("want 'bool <true|false>'")
		}
		return BoolConstant(fields[1] == "true"), nil
	case "string":
		if len(fields) != 2 {
			return Constant{}, fmt.Errorf("want 'string <addr>'")
		}
		addr, err := strconv.Atoi(fields[1])
		if err != nil {
			return Constant{}, err
		}
		return StringRefConstant(addr), nil
	case "func":
		if len(fields) != 2 {
			return Constant{}, fmt.Errorf("want 'func <addr>'")
		}
		addr, err := strconv.Atoi(fields[1])
		if err != nil {
			return Constant{}, err
		}
		return FunctionRefConstant(addr), nil
	default:
		return Constant{}, fmt.Errorf("unknown constant kind %q", fields[0])
	}
}

func opByName(name string) (OpCode, bool) {
	for op, n := range opNames {
		if n == name {
			return op, true
		}
	}
	return 0, false
}

// splitAsmFields tokenizes a line on whitespace, treating a double-quoted
// run (with \" and \\ escapes) as a single field.
func splitAsmFields(line string) ([]string, error) {
	var fields []string
	i := 0
	for i < len(line) {
		for i < len(line) && (line[i] == ' ' || line[i] == '\t') {
			i++
		}
		if i >= len(line) {
			break
		}
		if line[i] == '"' {
			var b strings.Builder
			i++
			closed := false
			for i < len(line) {
				switch line[i] {
				case '\\':
					if i+1 < len(line) {
						b.WriteByte(line[i+1])
						i += 2
						continue
					}
					i++
				case '"':
					closed = true
					i++
				default:
					b.WriteByte(line[i])
					i++
				}
				if closed {
					break
				}
			}
			if !closed {
				return nil, fmt.Errorf("unterminated quoted string")
			}
			fields = append(fields, b.String())
			continue
		}
		start := i
		for i < len(line) && line[i] != ' ' && line[i] != '\t' {
			i++
		}
		fields = append(fields, line[start:i])
	}
	return fields, nil
}

// WriteAsm renders p in the same textual format ParseAsm accepts, used by
// cmd/plox's `disasm` subcommand.
func WriteAsm(w io.Writer, p *Program) error {
	strAddrs := make([]int, 0, len(p.Strings))
	for addr := range p.Strings {
		strAddrs = append(strAddrs, addr)
	}
	sort.Ints(strAddrs)
	for _, addr := range strAddrs {
		if _, err := fmt.Fprintf(w, "string %d %q\n", addr, p.Strings[addr]); err != nil {
			return err
		}
	}

	fnAddrs := make([]int, 0, len(p.Functions))
	for addr := range p.Functions {
		fnAddrs = append(fnAddrs, addr)
	}
	sort.Ints(fnAddrs)
	for _, addr := range fnAddrs {
		fn := p.Functions[addr]
		if _, err := fmt.Fprintf(w, "function %d %q %d %d %d\n", fn.Address, fn.Name, fn.Arity, fn.UpvalueCount, fn.FirstOffset); err != nil {
			return err
		}
		for idx, c := range fn.Constants {
			if _, err := fmt.Fprintf(w, "  const %d %s\n", idx, formatAsmConstant(c)); err != nil {
				return err
			}
		}
		for _, off := range fn.Offsets {
			slot := fn.Instructions[off]
			if !slot.IsOp {
				continue
			}
			line := fmt.Sprintf("  op %d %s", off, slot.Op)
			if next, ok := fn.NextOffset(off); ok {
				if operand, ok := fn.Instructions[next]; ok && !operand.IsOp {
					line += fmt.Sprintf(" %d", operand.Operand)
				}
			}
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w, "endfunction"); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintf(w, "entry %d\n", p.EntryAddress)
	return err
}

func formatAsmConstant(c Constant) string {
	switch c.Kind {
	case ConstNumber:
		return fmt.Sprintf("number %g", c.Number)
	case ConstBool:
		return fmt.Sprintf("bool %t", c.Bool)
	case ConstStringRef:
		return fmt.Sprintf("string %d", c.StringAddr)
	case ConstFunctionRef:
		return fmt.Sprintf("func %d", c.FunctionRef)
	default:
		return "unknown"
	}
}
