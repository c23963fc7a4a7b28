package compiler_test

import (
	"testing"

	"sprog/pkg/builtins"
	"sprog/pkg/compiler"
	"sprog/pkg/instr"
	"sprog/pkg/lexer"
	"sprog/pkg/reader"
	"sprog/pkg/value"
	"sprog/pkg/vm"
)

func compileSrc(t *testing.T, env *vm.Env, src string) *instr.Instructions {
	t.Helper()
	source := lexer.NewStringSource(t.Name(), src)
	ins, err := compiler.CompileModule(func() (value.Value, error) { return reader.Read(source) }, env, false)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	return ins
}

// TestConstantFoldIf covers compileNonconstantExpr: an if whose
// condition is a literal emits no Load/If pair at all, just the
// winning arm's own instructions.
func TestConstantFoldIf(t *testing.T) {
	env := vm.NewEnv()
	builtins.DefineBasics(env)
	ins := compileSrc(t, env, `(if true 1 2)`)

	for _, i := range ins.Items {
		if _, ok := i.(*instr.If); ok {
			t.Fatalf("expected the constant condition to fold away the If, got %#v", ins.Items)
		}
	}
	if len(ins.Items) != 1 {
		t.Fatalf("expected exactly one instruction, got %d: %#v", len(ins.Items), ins.Items)
	}
	load, ok := ins.Items[0].(*instr.Load)
	if !ok {
		t.Fatalf("expected a Load, got %T", ins.Items[0])
	}
	lit, ok := load.Loc.(instr.Literal)
	if !ok {
		t.Fatalf("expected a Literal location, got %T", load.Loc)
	}
	if lit.Value.Sexpr() != "1" {
		t.Errorf("expected the true arm's literal 1, got %s", lit.Value.Sexpr())
	}
}

// TestGlobalDefineResolvesToFunction covers the Module block's
// resolveAllInBlock path: a reference to an already-defined global
// function folds directly to a Load of that *vm.Function, not an
// Unknown lookup.
func TestGlobalDefineResolvesToFunction(t *testing.T) {
	env := vm.NewEnv()
	builtins.DefineBasics(env)
	ins := compileSrc(t, env, `
	(define (double x) (* x 2))
	(double 3)`)

	var sawFunctionLoad bool
	for _, i := range ins.Items {
		if l, ok := i.(*instr.Load); ok {
			if _, ok := l.Loc.(*vm.Function); ok {
				sawFunctionLoad = true
			}
			if _, ok := l.Loc.(instr.Unknown); ok {
				t.Errorf("reference to double should not remain Unknown once defined earlier in the module")
			}
		}
	}
	if !sawFunctionLoad {
		t.Error("expected the call to double to load the *vm.Function directly")
	}
}

// TestForwardReferenceStaysUnknown covers the case the module block
// cannot resolve at compile time: a call to a function that is not
// defined anywhere in the same compile unit compiles to an Unknown
// location, settled at run time. callee is never defined here: a
// single compile unit holding both defines would see callee in its
// Module block's Defines table before resolution runs and resolve the
// reference directly.
func TestForwardReferenceStaysUnknown(t *testing.T) {
	env := vm.NewEnv()
	builtins.DefineBasics(env)
	ins := compileSrc(t, env, `(define (caller) (callee))`)

	// caller's body lives inside its *vm.Function's own Ins, not in the
	// module-level stream, so walk into it.
	var found *vm.Function
	for _, i := range ins.Items {
		if l, ok := i.(*instr.Load); ok {
			if fn, ok := l.Loc.(*vm.Function); ok && found == nil {
				found = fn
			}
		}
	}
	if found == nil {
		t.Fatal("expected to find caller's published *vm.Function")
	}

	var sawUnknown bool
	for _, i := range found.Ins.Items {
		if l, ok := i.(*instr.Load); ok {
			if _, ok := l.Loc.(instr.Unknown); ok {
				sawUnknown = true
			}
		}
	}
	if !sawUnknown {
		t.Error("expected the call to callee (undefined in this compile unit) to stay Unknown at compile time")
	}
}

// TestArgShuffleOnClosureReorder covers the stamp resolver installing
// a MoveLocalRange prefix when a closured-over parameter needs moving
// ahead of the function's other locals.
func TestArgShuffleOnClosureReorder(t *testing.T) {
	env := vm.NewEnv()
	builtins.DefineBasics(env)
	ins := compileSrc(t, env, `
	(define (make-adder x y)
	  (lambda () (+ x y)))
	(make-adder 1 2)`)

	var fn *vm.Function
	for _, i := range ins.Items {
		if l, ok := i.(*instr.Load); ok {
			if f, ok := l.Loc.(*vm.Function); ok {
				fn = f
			}
		}
	}
	if fn == nil {
		t.Fatal("expected to find make-adder's published *vm.Function")
	}
	if fn.Size < 2 {
		t.Errorf("expected a frame of at least 2 slots for x and y, got %d", fn.Size)
	}

	// make-adder captures both parameters, so nothing moves there. pick
	// captures only y, which moves ahead of x.
	ins = compileSrc(t, env, `
	(define (pick x y)
	  (lambda () y))
	(pick 1 2)`)
	fn = nil
	for _, i := range ins.Items {
		if l, ok := i.(*instr.Load); ok {
			if f, ok := l.Loc.(*vm.Function); ok {
				fn = f
			}
		}
	}
	if fn == nil || len(fn.Ins.Items) == 0 {
		t.Fatal("expected to find pick's published *vm.Function with a body")
	}
	if mv, ok := fn.Ins.Items[0].(instr.MoveLocalRange); !ok || mv.Start != 1 || mv.End != 2 || mv.Positions != -1 {
		t.Errorf("expected pick's body to open with MoveLocalRange{1, 2, -1}, got %#v", fn.Ins.Items[0])
	}
}
