package vm_test

import (
	"bytes"
	"io"
	"os"
	"testing"

	"sprog/pkg/builtins"
	"sprog/pkg/compiler"
	"sprog/pkg/lexer"
	"sprog/pkg/reader"
	"sprog/pkg/value"
	"sprog/pkg/vm"
)

// newEnv builds an Env with the base builtins and, optionally, the
// map/for-each bootstrap, mirroring test.py's eval_iterator(with_basics,
// with_loops).
func newEnv(t *testing.T, withLoops bool) *vm.Env {
	t.Helper()
	env := vm.NewEnv()
	builtins.DefineBasics(env)
	if withLoops {
		if err := builtins.DefineLoops(env); err != nil {
			t.Fatalf("bootstrapping loops: %v", err)
		}
	}
	return env
}

func evalSrc(t *testing.T, env *vm.Env, src string) value.Value {
	t.Helper()
	source := lexer.NewStringSource(t.Name(), src)
	ins, err := compiler.CompileModule(func() (value.Value, error) { return reader.Read(source) }, env, true)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	result, err := env.EvalNoExcept(ins)
	if err != nil {
		t.Fatalf("eval error: %v", err)
	}
	return result
}

// captureDisplay runs src to completion and returns everything written
// to stdout by display, the way test.py's assertDisplayEqual does via
// sys.stdout redirection.
func captureDisplay(t *testing.T, env *vm.Env, src string) string {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	old := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = old }()

	evalSrc(t, env, src)

	w.Close()
	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String()
}

func assertDisplayEqual(t *testing.T, src, want string, withLoops bool) {
	t.Helper()
	got := captureDisplay(t, newEnv(t, withLoops), src)
	if got != want {
		t.Errorf("display mismatch:\n src:  %s\n got:  %q\n want: %q", src, got, want)
	}
}

func TestMap(t *testing.T) {
	assertDisplayEqual(t, `(display (map + '(1 2) '(1 2) '(1 2)))`, "(3 6)", true)
	assertDisplayEqual(t, `(display (map car '((1) (2))))`, "(1 2)", true)
}

func TestClosures(t *testing.T) {
	assertDisplayEqual(t, `
	(define (test x) (lambda () x))
	(define testa (test "A"))
	(display (testa))`, "A", false)

	assertDisplayEqual(t, `
	(define (test x)
	  (lambda (y)
	    (lambda ()
	      (list x y))))
	(display (((test 1) 2)))`, "(1 2)", false)
}

func TestAnd(t *testing.T) {
	assertDisplayEqual(t, `(display (and true))`, "true", false)
	assertDisplayEqual(t, `(display (and false true))`, "false", false)
	assertDisplayEqual(t, `
	(define v false)
	(define (alternate) (set! v (not v)) v)
	(display (and (alternate) 1))
	(display (and (alternate) 1))
	(display (and (alternate) (alternate)))
	(display (and (alternate) (alternate)))`, "1falsefalsefalse", false)
}

func TestOr(t *testing.T) {
	assertDisplayEqual(t, `(display (or true))`, "true", false)
	assertDisplayEqual(t, `(display (or false true))`, "true", false)
	assertDisplayEqual(t, `
	(define v false)
	(define (alternate) (set! v (not v)) v)
	(display (or (alternate) 1))
	(display (or (alternate) 1))`, "true1", false)
}

func TestBegin(t *testing.T) {
	assertDisplayEqual(t, `(begin (display 1) (display 2))`, "12", false)

	assertDisplayEqual(t, `
	(define (test pos-f neg-f lst)
	  (if (pair? lst)
	    (begin
	      ((if (< (car lst) 0) neg-f pos-f) (car lst))
	      (test pos-f neg-f (cdr lst)))))
	(test
	  (lambda (x) (display "p"))
	  (lambda (x) (display "n"))
	  (list -2 -1 0 1 2))`, "nnppp", false)
}

// TestBeginBlockSharedLocal covers the case where two begin blocks can
// never be live at once (split across an if's arms), so their locals
// may legally share a frame slot.
func TestBeginBlockSharedLocal(t *testing.T) {
	assertDisplayEqual(t, `
	(define (test op later x)
	  (if (> x 0)
	    (begin
	      (define xx (op x))
	      (later (lambda (x)
	        (display x)
	        (display xx))))
	    (begin
	      (define xxx (op (op x)))
	      (later (lambda (x)
	        (display x)
	        (display xxx))))))
	(define (double x) (* x 2))
	(define (later fn) (fn 42))
	(test double later -2)
	(test double later 2)`, "42-8424", false)
}

// TestBeginBlockSequentialLocals covers two begin blocks that run one
// after another within the same call, so their locals must NOT share
// a slot — each closure must see its own begin block's binding.
func TestBeginBlockSequentialLocals(t *testing.T) {
	assertDisplayEqual(t, `
	(define (test fn-collector)
	   (define var 5)
	   (begin
	     (define v2 (* var 2))
	     (fn-collector (lambda () v2)))
	   (begin
	     (define v3 (* var 3))
	     (fn-collector (lambda () v3))))
	(define fn-lst ())
	(test (lambda (fn)
	  (set! fn-lst (cons fn fn-lst))))
	(for-each (lambda (fn) (display (fn)) (display " ")) fn-lst)`, "15 10 ", true)
}

func TestUndefinedVariable(t *testing.T) {
	env := newEnv(t, false)
	source := lexer.NewStringSource(t.Name(), "foo")
	ins, err := compiler.CompileModule(func() (value.Value, error) { return reader.Read(source) }, env, true)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	if _, err := env.EvalNoExcept(ins); err == nil {
		t.Fatal("expected an unknown-variable error, got none")
	}
}

func TestFunctionVoidResult(t *testing.T) {
	env := newEnv(t, false)
	result := evalSrc(t, env, "((lambda ()))")
	if result.Kind() != value.KindVoid {
		t.Errorf("expected void, got %s", result.Sexpr())
	}
}
