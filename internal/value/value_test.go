package value

import "testing"

func TestIsFalsey(t *testing.T) {
	cases := []struct {
		v    Value
		want bool
	}{
		{Nil{}, true},
		{Bool(false), true},
		{Bool(true), false},
		{Number(0), false},
		{String(""), false},
	}
	for _, c := range cases {
		if got := IsFalsey(c.v); got != c.want {
			t.Errorf("IsFalsey(%v) = %v, want %v", c.v, got, c.want)
		}
	}
}

func TestEqualStructuralForPrimitives(t *testing.T) {
	if !Equal(Number(1), Number(1)) {
		t.Error("expected 1 == 1")
	}
	if Equal(Number(1), Number(2)) {
		t.Error("expected 1 != 2")
	}
	if !Equal(String("hi"), String("hi")) {
		t.Error("strings should compare by content even when not the same allocation")
	}
	if !Equal(Nil{}, Nil{}) {
		t.Error("nil should equal nil")
	}
	if Equal(Nil{}, Bool(false)) {
		t.Error("nil and false must not be equal")
	}
}

func TestEqualIdentityForHeapValues(t *testing.T) {
	a := NewClass("A")
	b := NewClass("A")
	if Equal(a, b) {
		t.Error("two distinct classes with the same name must not be equal")
	}
	if !Equal(a, a) {
		t.Error("a class must equal itself")
	}
}

func TestPrintNumberFormatting(t *testing.T) {
	if got := Print(Number(3)); got != "3" {
		t.Errorf("Print(3) = %q, want %q", got, "3")
	}
	if got := Print(Number(3.5)); got != "3.5" {
		t.Errorf("Print(3.5) = %q, want %q", got, "3.5")
	}
}

func TestBoundMethodBindsReceiver(t *testing.T) {
	class := NewClass("Counter")
	method := &Closure{Function: &Function{Name: "tick"}}
	class.Methods["tick"] = method
	inst := NewInstance(class)
	bm := &BoundMethod{Receiver: inst, Method: method}
	if bm.Receiver != inst {
		t.Error("bound method must retain its receiver")
	}
	if bm.Method != method {
		t.Error("bound method must retain its underlying closure")
	}
}
