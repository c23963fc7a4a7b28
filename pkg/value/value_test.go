package value_test

import (
	"testing"

	"sprog/pkg/value"
)

func TestInternIdentity(t *testing.T) {
	a := value.Intern("foo")
	b := value.Intern("foo")
	if a != b {
		t.Error("two interns of the same name should be the same pointer")
	}
	if value.Intern("bar") == a {
		t.Error("different names should intern to different symbols")
	}
}

func TestTruthiness(t *testing.T) {
	if !value.IsTrue(value.True()) {
		t.Error("true should be truthy")
	}
	if value.IsTrue(value.False()) {
		t.Error("false should not be truthy")
	}
	if !value.IsTrue(value.NewInt(0)) {
		t.Error("only the symbol false is falsy, not zero")
	}
}

func TestEqual(t *testing.T) {
	a := value.List(value.NewInt(1), value.NewString("x"))
	b := value.List(value.NewInt(1), value.NewString("x"))
	if a == b {
		t.Fatal("test setup: lists should not be the same pointer")
	}
	if !value.Equal(a, b) {
		t.Error("structurally identical lists should be equal")
	}

	c := value.List(value.NewInt(1), value.NewString("y"))
	if value.Equal(a, c) {
		t.Error("lists with different contents should not be equal")
	}

	if !value.Equal(value.NewFloat(1.0), value.NewFloat(1.0)) {
		t.Error("equal floats should compare equal")
	}
	if value.Equal(value.NewInt(1), value.NewFloat(1.0)) {
		t.Error("an int and a float of the same magnitude are not Equal (IsFloat differs)")
	}
}

func TestListAndSexpr(t *testing.T) {
	l := value.List(value.NewInt(1), value.NewInt(2), value.NewInt(3))
	if got := l.Sexpr(); got != "(1 2 3)" {
		t.Errorf("got %q", got)
	}

	dotted := value.NewPair(value.NewInt(1), value.NewInt(2))
	if got := dotted.Sexpr(); got != "(1 . 2)" {
		t.Errorf("got %q", got)
	}

	if got := value.NewNull().Sexpr(); got != "()" {
		t.Errorf("got %q", got)
	}
}

func TestToHostList(t *testing.T) {
	l := value.List(value.NewInt(1), value.NewInt(2))
	out, err := value.ToHostList(l)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d items, want 2", len(out))
	}

	improper := value.NewPair(value.NewInt(1), value.NewInt(2))
	if _, err := value.ToHostList(improper); err == nil {
		t.Error("expected an error for an improper list")
	}
}
