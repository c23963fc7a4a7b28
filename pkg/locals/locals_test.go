package locals_test

import (
	"testing"

	"sprog/pkg/locals"
	"sprog/pkg/value"
)

func sym(s string) value.Value { return value.Intern(s) }

func names(mem []value.Value) []string {
	out := make([]string, len(mem))
	for i, v := range mem {
		if v == nil {
			out[i] = "_"
			continue
		}
		out[i] = v.(*value.Symbol).Name
	}
	return out
}

func sliceEq(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestLookupAssignAcrossFrames(t *testing.T) {
	outer := locals.New(2, nil)
	outer.Assign(0, 0, sym("outer0"))
	inner := locals.New(1, outer)
	inner.Assign(0, 0, sym("inner0"))

	if got := inner.Lookup(0, 0); got.(*value.Symbol).Name != "inner0" {
		t.Errorf("local lookup: got %v", got)
	}
	if got := inner.Lookup(0, 1); got.(*value.Symbol).Name != "outer0" {
		t.Errorf("skip-1 lookup: got %v", got)
	}
}

func TestApplyArgs(t *testing.T) {
	l := locals.New(3, nil)
	l.ApplyArgs([]value.Value{sym("a"), sym("b")})
	if got := names(l.Mem); !sliceEq(got, []string{"a", "b", "_"}) {
		t.Errorf("got %v", got)
	}
}

func TestMoveRangeShiftForward(t *testing.T) {
	l := locals.New(5, nil)
	l.ApplyArgs([]value.Value{sym("a"), sym("b"), sym("c"), sym("d"), sym("e")})
	l.MoveRange(1, 3, 1)
	want := []string{"a", "d", "b", "c", "e"}
	if got := names(l.Mem); !sliceEq(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestMoveRangeNoop(t *testing.T) {
	l := locals.New(3, nil)
	l.ApplyArgs([]value.Value{sym("a"), sym("b"), sym("c")})
	l.MoveRange(1, 1, 2)
	want := []string{"a", "b", "c"}
	if got := names(l.Mem); !sliceEq(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestDepthAndSkip(t *testing.T) {
	a := locals.New(1, nil)
	b := locals.New(1, a)
	c := locals.New(1, b)
	if c.Depth() != 3 {
		t.Errorf("depth: got %d", c.Depth())
	}
	if c.Skip(2) != a {
		t.Error("skip(2) should reach the outermost frame")
	}
}
