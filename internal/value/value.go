// Package value implements the tagged value variants the VM computes over:
// nil, booleans, numbers, strings, and the heap entities (functions,
// closures, natives, classes, instances, bound methods).
package value

import "fmt"

// Value is the closed set of runtime values. Only types declared in this
// package implement it, so a type switch over Value is exhaustive.
type Value interface {
	isValue()
}

// Nil is the Lox nil literal.
type Nil struct{}

func (Nil) isValue() {}

// Bool is a boolean value.
type Bool bool

func (Bool) isValue() {}

// Number is a double-precision float, the only numeric type in the language.
type Number float64

func (Number) isValue() {}

// String is an immutable string value. Strings produced by the loader are
// interned by address (see the image package); strings produced at runtime
// by OP_ADD concatenation are not. Equality is always by content.
type String string

func (String) isValue() {}

// Function is the read-only program-model record for a compiled function.
// FunctionAddress is the stable handle other constants (FunctionRef) and
// closures refer to.
type Function struct {
	FunctionAddress int
	Name            string
	Arity           int
	UpvalueCount    int
}

func (*Function) isValue() {}

func (f *Function) String() string {
	if f.Name == "" {
		return "<script>"
	}
	return fmt.Sprintf("<fn %s>", f.Name)
}

// Closure wraps a function together with its captured upvalues. Per the
// source's closed-by-value semantics (spec §9), each upvalue is a plain
// captured Value, not a live reference to a stack slot.
type Closure struct {
	Function *Function
	Upvalues []Value
}

func (*Closure) isValue() {}

func (c *Closure) String() string {
	return c.Function.String()
}

// NativeFn is a host-implemented function installed in the native registry.
type NativeFn struct {
	Name string
	Fn   func(args []Value) Value
}

func (*NativeFn) isValue() {}

func (n *NativeFn) String() string {
	return fmt.Sprintf("<native fn %s>", n.Name)
}

// Class is a runtime class object: a name and a mutable method table keyed
// by method name. OP_INHERIT copies entries into this map; it never links
// to the superclass live.
type Class struct {
	Name    string
	Methods map[string]*Closure
}

func (*Class) isValue() {}

func (c *Class) String() string {
	return c.Name
}

// NewClass creates an empty class with the given name.
func NewClass(name string) *Class {
	return &Class{Name: name, Methods: make(map[string]*Closure)}
}

// Instance is a runtime object of some class, with a mutable field table.
type Instance struct {
	Class  *Class
	Fields map[string]Value
}

func (*Instance) isValue() {}

func (i *Instance) String() string {
	return fmt.Sprintf("<%s instance>", i.Class.Name)
}

// NewInstance creates a field-less instance of the given class.
func NewInstance(class *Class) *Instance {
	return &Instance{Class: class, Fields: make(map[string]Value)}
}

// BoundMethod pairs a receiver instance with one of its class's closures,
// produced by OP_GET_PROPERTY / OP_GET_SUPER when the looked-up name
// resolves to a method rather than a field.
type BoundMethod struct {
	Receiver *Instance
	Method   *Closure
}

func (*BoundMethod) isValue() {}

func (b *BoundMethod) String() string {
	return b.Method.String()
}

// IsFalsey reports whether v is one of the two falsey values: Nil or
// Bool(false). Everything else is truthy (spec §4.A, property 7).
func IsFalsey(v Value) bool {
	switch vv := v.(type) {
	case Nil:
		return true
	case Bool:
		return !bool(vv)
	default:
		return false
	}
}

// Equal implements the structural/identity equality rules of spec §3:
// structural for Nil, Bool, Number, String; identity for heap entities;
// false across mismatched variants (both-Nil is the one exception, and
// that falls out of the Nil case below returning true for two Nils).
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case Nil:
		_, ok := b.(Nil)
		return ok
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Number:
		bv, ok := b.(Number)
		return ok && av == bv
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case *Closure:
		bv, ok := b.(*Closure)
		return ok && av == bv
	case *Function:
		bv, ok := b.(*Function)
		return ok && av == bv
	case *NativeFn:
		bv, ok := b.(*NativeFn)
		return ok && av == bv
	case *Class:
		bv, ok := b.(*Class)
		return ok && av == bv
	case *Instance:
		bv, ok := b.(*Instance)
		return ok && av == bv
	case *BoundMethod:
		bv, ok := b.(*BoundMethod)
		return ok && av == bv
	default:
		return false
	}
}

// TypeName returns a short, stable name for error messages.
func TypeName(v Value) string {
	switch v.(type) {
	case Nil:
		return "nil"
	case Bool:
		return "boolean"
	case Number:
		return "number"
	case String:
		return "string"
	case *Function:
		return "function"
	case *Closure:
		return "closure"
	case *NativeFn:
		return "native function"
	case *Class:
		return "class"
	case *Instance:
		return "instance"
	case *BoundMethod:
		return "bound method"
	default:
		return "unknown"
	}
}

// Print renders v the way OP_PRINT and the `str` native do (spec §6
// "Standard output").
func Print(v Value) string {
	switch vv := v.(type) {
	case Nil:
		return "nil"
	case Bool:
		if vv {
			return "true"
		}
		return "false"
	case Number:
		return formatNumber(float64(vv))
	case String:
		return string(vv)
	case *Function:
		return vv.String()
	case *Closure:
		return vv.String()
	case *NativeFn:
		return vv.String()
	case *Class:
		return vv.String()
	case *Instance:
		return vv.String()
	case *BoundMethod:
		return vv.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// formatNumber renders a float64 with Go's %g verb: the shortest digits that
// round-trip, no trailing ".0" on integral values ("3", "3.5"), and exponent
// form when the decimal exponent is below -4 or 6 and above ("1e+06",
// "1e-05"). The output is stable and locale-independent as spec §6 requires.
func formatNumber(f float64) string {
	return fmt.Sprintf("%g", f)
}
