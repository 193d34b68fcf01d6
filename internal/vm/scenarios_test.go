package vm

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kristofer/plox/internal/image"
)

// Each scenario below corresponds to a row of spec.md §8's property table
// (S1-S6), constructed directly against image.Builder in place of a Lox
// front-end compiler.

func TestScenarioArithmeticPrecedence(t *testing.T) {
	// S1: print 1 + 2 * 3; => 7
	b := image.NewBuilder()
	script := b.Function("", 0, 0)
	c1 := script.ConstNumber(1)
	c2 := script.ConstNumber(2)
	c3 := script.ConstNumber(3)
	script.Emit(image.OpConstant)
	script.EmitByte(byte(c1))
	script.Emit(image.OpConstant)
	script.EmitByte(byte(c2))
	script.Emit(image.OpConstant)
	script.EmitByte(byte(c3))
	script.Emit(image.OpMultiply)
	script.Emit(image.OpAdd)
	script.Emit(image.OpPrint)
	script.Emit(image.OpNil)
	script.Emit(image.OpReturn)
	prog := b.Build(script.Finish())

	var out bytes.Buffer
	machine := New(WithOutput(&out))
	require.NoError(t, machine.Run(prog))
	require.Equal(t, "7\n", out.String())
}

func TestScenarioStringConcatenation(t *testing.T) {
	// S2: var a = "Hello, "; var b = "world"; print a + b; => Hello, world
	b := image.NewBuilder()
	script := b.Function("", 0, 0)
	nameA := script.ConstString("a")
	nameB := script.ConstString("b")
	litA := script.ConstString("Hello, ")
	litB := script.ConstString("world")

	script.Emit(image.OpConstant)
	script.EmitByte(byte(litA))
	script.Emit(image.OpDefineGlobal)
	script.EmitByte(byte(nameA))

	script.Emit(image.OpConstant)
	script.EmitByte(byte(litB))
	script.Emit(image.OpDefineGlobal)
	script.EmitByte(byte(nameB))

	script.Emit(image.OpGetGlobal)
	script.EmitByte(byte(nameA))
	script.Emit(image.OpGetGlobal)
	script.EmitByte(byte(nameB))
	script.Emit(image.OpAdd)
	script.Emit(image.OpPrint)
	script.Emit(image.OpNil)
	script.Emit(image.OpReturn)
	prog := b.Build(script.Finish())

	var out bytes.Buffer
	machine := New(WithOutput(&out))
	require.NoError(t, machine.Run(prog))
	require.Equal(t, "Hello, world\n", out.String())
}

func TestScenarioRecursiveFibonacci(t *testing.T) {
	// S3: fun fib(n){ if(n<2) return n; return fib(n-1)+fib(n-2); } print fib(10); => 55
	b := image.NewBuilder()
	fib := b.Function("fib", 1, 0)
	fibNameConst := fib.ConstString("fib")
	two := fib.ConstNumber(2)
	one := fib.ConstNumber(1)

	fib.Emit(image.OpGetLocal)
	fib.EmitByte(1) // n
	fib.Emit(image.OpConstant)
	fib.EmitByte(byte(two))
	fib.Emit(image.OpLess)
	fib.Emit(image.OpJumpIfFalse)
	elseJump := fib.EmitShortPlaceholder()
	fib.Emit(image.OpPop)
	fib.Emit(image.OpGetLocal)
	fib.EmitByte(1)
	fib.Emit(image.OpReturn)
	fib.PatchJump(elseJump)
	fib.Emit(image.OpPop)

	fib.Emit(image.OpGetGlobal)
	fib.EmitByte(byte(fibNameConst))
	fib.Emit(image.OpGetLocal)
	fib.EmitByte(1)
	fib.Emit(image.OpConstant)
	fib.EmitByte(byte(one))
	fib.Emit(image.OpSubtract)
	fib.Emit(image.OpCall)
	fib.EmitByte(1)

	fib.Emit(image.OpGetGlobal)
	fib.EmitByte(byte(fibNameConst))
	fib.Emit(image.OpGetLocal)
	fib.EmitByte(1)
	fib.Emit(image.OpConstant)
	fib.EmitByte(byte(two))
	fib.Emit(image.OpSubtract)
	fib.Emit(image.OpCall)
	fib.EmitByte(1)

	fib.Emit(image.OpAdd)
	fib.Emit(image.OpReturn)
	fibAddr := fib.Finish()

	script := b.Function("", 0, 0)
	fibRef := script.ConstFunction(fibAddr)
	fibName := script.ConstString("fib")
	ten := script.ConstNumber(10)

	script.Emit(image.OpClosure)
	script.EmitByte(byte(fibRef))
	script.Emit(image.OpDefineGlobal)
	script.EmitByte(byte(fibName))

	script.Emit(image.OpGetGlobal)
	script.EmitByte(byte(fibName))
	script.Emit(image.OpConstant)
	script.EmitByte(byte(ten))
	script.Emit(image.OpCall)
	script.EmitByte(1)
	script.Emit(image.OpPrint)
	script.Emit(image.OpNil)
	script.Emit(image.OpReturn)
	prog := b.Build(script.Finish())

	var out bytes.Buffer
	machine := New(WithOutput(&out))
	require.NoError(t, machine.Run(prog))
	require.Equal(t, "55\n", out.String())
}

func TestScenarioClosedByValueUpvalue(t *testing.T) {
	// S4: fun mk(){ var x=0; fun inc(){ x=x+1; return x; } return inc; }
	//     var c=mk(); print c(); print c(); => "1\n2\n"
	b := image.NewBuilder()

	inc := b.Function("inc", 0, 1)
	one := inc.ConstNumber(1)
	inc.Emit(image.OpGetUpvalue)
	inc.EmitByte(0)
	inc.Emit(image.OpConstant)
	inc.EmitByte(byte(one))
	inc.Emit(image.OpAdd)
	inc.Emit(image.OpSetUpvalue)
	inc.EmitByte(0)
	inc.Emit(image.OpGetUpvalue)
	inc.EmitByte(0)
	inc.Emit(image.OpReturn)
	incAddr := inc.Finish()

	mk := b.Function("mk", 0, 0)
	zero := mk.ConstNumber(0)
	incRef := mk.ConstFunction(incAddr)
	mk.Emit(image.OpConstant)
	mk.EmitByte(byte(zero)) // local slot 1: x
	mk.Emit(image.OpClosure)
	mk.EmitByte(byte(incRef))
	mk.EmitByte(1) // is_local = true
	mk.EmitByte(1) // index = slot 1 (x)
	mk.Emit(image.OpReturn)
	mkAddr := mk.Finish()

	script := b.Function("", 0, 0)
	mkRef := script.ConstFunction(mkAddr)
	mkName := script.ConstString("mk")
	cName := script.ConstString("c")

	script.Emit(image.OpClosure)
	script.EmitByte(byte(mkRef))
	script.Emit(image.OpDefineGlobal)
	script.EmitByte(byte(mkName))

	script.Emit(image.OpGetGlobal)
	script.EmitByte(byte(mkName))
	script.Emit(image.OpCall)
	script.EmitByte(0)
	script.Emit(image.OpDefineGlobal)
	script.EmitByte(byte(cName))

	script.Emit(image.OpGetGlobal)
	script.EmitByte(byte(cName))
	script.Emit(image.OpCall)
	script.EmitByte(0)
	script.Emit(image.OpPrint)

	script.Emit(image.OpGetGlobal)
	script.EmitByte(byte(cName))
	script.Emit(image.OpCall)
	script.EmitByte(0)
	script.Emit(image.OpPrint)

	script.Emit(image.OpNil)
	script.Emit(image.OpReturn)
	prog := b.Build(script.Finish())

	var out bytes.Buffer
	machine := New(WithOutput(&out))
	require.NoError(t, machine.Run(prog))
	require.Equal(t, "1\n2\n", out.String())
}

func TestScenarioInheritance(t *testing.T) {
	// S5: class A { greet(){ print "A"; } } class B < A {} B().greet(); => "A\n"
	b := image.NewBuilder()

	greet := b.Function("greet", 0, 0)
	litA := greet.ConstString("A")
	greet.Emit(image.OpConstant)
	greet.EmitByte(byte(litA))
	greet.Emit(image.OpPrint)
	greet.Emit(image.OpNil)
	greet.Emit(image.OpReturn)
	greetAddr := greet.Finish()

	script := b.Function("", 0, 0)
	nameA := script.ConstString("A")
	nameB := script.ConstString("B")
	greetRef := script.ConstFunction(greetAddr)
	greetName := script.ConstString("greet")

	script.Emit(image.OpClass)
	script.EmitByte(byte(nameA))
	script.Emit(image.OpDefineGlobal)
	script.EmitByte(byte(nameA))

	script.Emit(image.OpGetGlobal)
	script.EmitByte(byte(nameA))
	script.Emit(image.OpClosure)
	script.EmitByte(byte(greetRef))
	script.Emit(image.OpMethod)
	script.EmitByte(byte(greetName))
	script.Emit(image.OpPop)

	script.Emit(image.OpClass)
	script.EmitByte(byte(nameB))
	script.Emit(image.OpDefineGlobal)
	script.EmitByte(byte(nameB))

	script.Emit(image.OpGetGlobal)
	script.EmitByte(byte(nameA))
	script.Emit(image.OpGetGlobal)
	script.EmitByte(byte(nameB))
	script.Emit(image.OpInherit)
	script.Emit(image.OpPop) // discard the surviving superclass operand

	script.Emit(image.OpGetGlobal)
	script.EmitByte(byte(nameB))
	script.Emit(image.OpCall)
	script.EmitByte(0)
	script.Emit(image.OpInvoke)
	script.EmitByte(byte(greetName))
	script.EmitByte(0)
	script.Emit(image.OpPop)

	script.Emit(image.OpNil)
	script.Emit(image.OpReturn)
	prog := b.Build(script.Finish())

	var out bytes.Buffer
	machine := New(WithOutput(&out))
	require.NoError(t, machine.Run(prog))
	require.Equal(t, "A\n", out.String())
}

func TestScenarioInitAndFields(t *testing.T) {
	// S6: class C{ init(v){ this.v=v; } get(){ return this.v; } }
	//     print C(42).get(); => 42
	b := image.NewBuilder()

	initFn := b.Function("init", 1, 0)
	vName := initFn.ConstString("v")
	initFn.Emit(image.OpGetLocal)
	initFn.EmitByte(0) // this
	initFn.Emit(image.OpGetLocal)
	initFn.EmitByte(1) // v argument
	initFn.Emit(image.OpSetProperty)
	initFn.EmitByte(byte(vName))
	initFn.Emit(image.OpPop)
	initFn.Emit(image.OpGetLocal)
	initFn.EmitByte(0)
	initFn.Emit(image.OpReturn)
	initAddr := initFn.Finish()

	getFn := b.Function("get", 0, 0)
	vName2 := getFn.ConstString("v")
	getFn.Emit(image.OpGetLocal)
	getFn.EmitByte(0) // this
	getFn.Emit(image.OpGetProperty)
	getFn.EmitByte(byte(vName2))
	getFn.Emit(image.OpReturn)
	getAddr := getFn.Finish()

	script := b.Function("", 0, 0)
	nameC := script.ConstString("C")
	initRef := script.ConstFunction(initAddr)
	initName := script.ConstString("init")
	getRef := script.ConstFunction(getAddr)
	getName := script.ConstString("get")
	fortyTwo := script.ConstNumber(42)

	script.Emit(image.OpClass)
	script.EmitByte(byte(nameC))
	script.Emit(image.OpDefineGlobal)
	script.EmitByte(byte(nameC))

	script.Emit(image.OpGetGlobal)
	script.EmitByte(byte(nameC))
	script.Emit(image.OpClosure)
	script.EmitByte(byte(initRef))
	script.Emit(image.OpMethod)
	script.EmitByte(byte(initName))
	script.Emit(image.OpClosure)
	script.EmitByte(byte(getRef))
	script.Emit(image.OpMethod)
	script.EmitByte(byte(getName))
	script.Emit(image.OpPop)

	script.Emit(image.OpGetGlobal)
	script.EmitByte(byte(nameC))
	script.Emit(image.OpConstant)
	script.EmitByte(byte(fortyTwo))
	script.Emit(image.OpCall)
	script.EmitByte(1)
	script.Emit(image.OpInvoke)
	script.EmitByte(byte(getName))
	script.EmitByte(0)
	script.Emit(image.OpPrint)
	script.Emit(image.OpNil)
	script.Emit(image.OpReturn)
	prog := b.Build(script.Finish())

	var out bytes.Buffer
	machine := New(WithOutput(&out))
	require.NoError(t, machine.Run(prog))
	require.Equal(t, "42\n", out.String())
}
