package builtins

import (
	"sprog/pkg/compiler"
	"sprog/pkg/errs"
	"sprog/pkg/lexer"
	"sprog/pkg/reader"
	"sprog/pkg/value"
	"sprog/pkg/vm"
)

// loopsSource defines map and for-each in terms of the already-defined
// basics, evaluated once at startup rather than hand-coded as Generics —
// a direct port of original_source/py/basics.py's define_loops, whose
// whole point is that list iteration is ordinary Scheme, not a host
// primitive.
const loopsSource = `((lambda ()
  (define (all-car l)
    (if (null? l)
        ()
        (cons (car (car l)) (all-car (cdr l)))))
  (define (all-cdr l)
    (if (null? l)
        ()
        (cons (cdr (car l)) (all-cdr (cdr l)))))
  (define (all-null? l)
    (if (null? l)
        true
        (if (null? (car l))
            (all-null? (cdr l))
            false)))
  (define (map fn lsts)
    (if (all-null? lsts)
        ()
        (cons (apply fn (all-car lsts)) (map fn (all-cdr lsts)))))
  (define (for-each fn lsts)
    (if (not (all-null? lsts))
        (begin
          (apply fn (all-car lsts))
          (for-each fn (all-cdr lsts)))))
  (list
    (lambda (fn . lsts) (map fn lsts))
    (lambda (fn . lsts) (for-each fn lsts)))))
`

// DefineLoops compiles loopsSource against env and publishes its two
// results as the "map" and "for-each" globals.
func DefineLoops(env *vm.Env) error {
	src := lexer.NewStringSource("loops.basics", loopsSource)
	ins, err := compiler.CompileModule(func() (value.Value, error) { return reader.Read(src) }, env, false)
	if err != nil {
		return err
	}
	result, err := env.EvalNoExcept(ins)
	if err != nil {
		return err
	}
	fns, err := value.ToHostList(result)
	if err != nil {
		return err
	}
	if len(fns) != 2 {
		return errs.New(errs.Compile, "loops bootstrap returned the wrong shape", result, nil)
	}
	env.GlobConst["map"] = fns[0]
	env.GlobConst["for-each"] = fns[1]
	return nil
}
