package vm

import (
	"testing"

	"github.com/kristofer/plox/internal/value"
)

func TestGlobalsDefineOverwrites(t *testing.T) {
	g := newGlobals()
	g.define("x", value.Number(1))
	g.define("x", value.Number(2))
	v, ok := g.get("x")
	if !ok || v != value.Number(2) {
		t.Errorf("got (%v, %v), want (2, true)", v, ok)
	}
}

func TestGlobalsSetNeverCreates(t *testing.T) {
	g := newGlobals()
	if ok := g.set("missing", value.Number(1)); ok {
		t.Error("set on an undefined global must fail")
	}
	if _, ok := g.get("missing"); ok {
		t.Error("set on a miss must not create the entry")
	}
}

func TestGlobalsSetUpdatesExisting(t *testing.T) {
	g := newGlobals()
	g.define("x", value.Number(1))
	if ok := g.set("x", value.Number(9)); !ok {
		t.Fatal("set on a defined global must succeed")
	}
	v, _ := g.get("x")
	if v != value.Number(9) {
		t.Errorf("got %v, want 9", v)
	}
}

func TestNativeClockIsNumeric(t *testing.T) {
	g := newGlobals()
	installNatives(g)
	v, ok := g.get("clock")
	if !ok {
		t.Fatal("clock must be installed")
	}
	fn, ok := v.(*value.NativeFn)
	if !ok {
		t.Fatalf("clock must be a native function, got %T", v)
	}
	result := fn.Fn(nil)
	if _, ok := result.(value.Number); !ok {
		t.Errorf("clock() must return a number, got %T", result)
	}
}

func TestNativeSqrtIsTotal(t *testing.T) {
	g := newGlobals()
	installNatives(g)
	v, _ := g.get("sqrt")
	fn := v.(*value.NativeFn)

	if got := fn.Fn([]value.Value{value.Number(9)}); got != value.Number(3) {
		t.Errorf("sqrt(9) = %v, want 3", got)
	}

	result := fn.Fn([]value.Value{value.String("nope")})
	n, ok := result.(value.Number)
	if !ok || n == n { // NaN never equals itself
		t.Errorf("sqrt of a non-number must be NaN, got %v", result)
	}
}
