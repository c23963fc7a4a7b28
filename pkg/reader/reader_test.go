package reader_test

import (
	"testing"

	"sprog/pkg/errs"
	"sprog/pkg/lexer"
	"sprog/pkg/reader"
	"sprog/pkg/value"
)

func parseOne(t *testing.T, src string) value.Value {
	t.Helper()
	v, err := reader.Read(lexer.NewStringSource(t.Name(), src))
	if err != nil {
		t.Fatalf("unexpected parse error for %q: %v", src, err)
	}
	return v
}

func TestParseLiterals(t *testing.T) {
	cases := []struct {
		src  string
		want string
	}{
		{"hello", "hello"},
		{`"hello"`, `"hello"`},
		{"2", "2"},
		{"-2", "-2"},
		{"0.1", "0.1"},
		{"-0.1", "-0.1"},
	}
	for _, c := range cases {
		got := parseOne(t, c.src).Sexpr()
		if got != c.want {
			t.Errorf("parse(%q) = %q, want %q", c.src, got, c.want)
		}
	}
}

func TestParseLists(t *testing.T) {
	cases := []struct{ src, want string }{
		{"()", "()"},
		{"(1)", "(1)"},
		{"(1 2)", "(1 2)"},
		{"(1 (2) 3)", "(1 (2) 3)"},
		{"((1))", "((1))"},
		{"(1 (2 ()) 3)", "(1 (2 ()) 3)"},
		{"(1 . 2)", "(1 . 2)"},
		{"(1 )", "(1)"},
		{"( 1)", "(1)"},
		{"( 1 )", "(1)"},
		{"( 1 . 2 )", "(1 . 2)"},
	}
	for _, c := range cases {
		got := parseOne(t, c.src).Sexpr()
		if got != c.want {
			t.Errorf("parse(%q) = %q, want %q", c.src, got, c.want)
		}
	}
}

func TestParseStringEscapes(t *testing.T) {
	if got := parseOne(t, `"and\nor"`).(*value.String).Text; got != "and\nor" {
		t.Errorf("got %q", got)
	}
	if _, err := reader.Read(lexer.NewStringSource(t.Name(), `"\escape"`)); err == nil {
		t.Fatal("expected an error for an invalid escape")
	}
}

func expectKind(t *testing.T, src string, kind errs.Kind) {
	t.Helper()
	_, err := reader.Read(lexer.NewStringSource(t.Name(), src))
	e, ok := err.(*errs.Error)
	if !ok {
		t.Fatalf("parse(%q): expected *errs.Error, got %v", src, err)
	}
	if e.ErrKind != kind {
		t.Errorf("parse(%q): got kind %v, want %v", src, e.ErrKind, kind)
	}
}

func TestParseErrors(t *testing.T) {
	expectKind(t, "", errs.NoValue)
	expectKind(t, "#| comment |#", errs.NoValue)
	expectKind(t, "(list", errs.EOF)
	expectKind(t, "#| comment", errs.EOF)
	expectKind(t, `"string`, errs.EOF)
}
