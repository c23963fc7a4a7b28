// Package builtins registers the host-implemented Generic/BinaryOp/Apply
// values every program gets for free, grounded on
// original_source/py/basics.py's define_basics/define_loops.
package builtins

import (
	"fmt"
	"os"

	"sprog/pkg/errs"
	"sprog/pkg/value"
	"sprog/pkg/vm"
)

func definePy(env *vm.Env, name string, pure bool, fn func(env *vm.Env, args []value.Value) (value.Value, error)) {
	env.GlobConst[name] = &vm.Generic{Name: name, Func: fn, Pure: pure}
}

// definePyPred wraps a predicate returning a Go bool into a Generic
// that converts it to the true/false symbols, mirroring basics.py's
// define_py_pred helper.
func definePyPred(env *vm.Env, name string, fn func(args []value.Value) (bool, error)) {
	definePy(env, name, true, func(_ *vm.Env, args []value.Value) (value.Value, error) {
		ok, err := fn(args)
		if err != nil {
			return nil, err
		}
		if ok {
			return value.True(), nil
		}
		return value.False(), nil
	})
}

func arg1(args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("expected exactly 1 argument, got %d", len(args))
	}
	return args[0], nil
}

func arg2(args []value.Value) (value.Value, value.Value, error) {
	if len(args) != 2 {
		return nil, nil, fmt.Errorf("expected exactly 2 arguments, got %d", len(args))
	}
	return args[0], args[1], nil
}

// DefineBasics registers car/cdr/cons/display/newline/not/eq?/equal?/
// list/null?/pair?/number?/string?/symbol?/apply and the four
// comparison and four arithmetic BinaryOps.
func DefineBasics(env *vm.Env) {
	definePy(env, "car", true, func(_ *vm.Env, args []value.Value) (value.Value, error) {
		v, err := arg1(args)
		if err != nil {
			return nil, err
		}
		p, ok := v.(*value.Pair)
		if !ok {
			return nil, fmt.Errorf("car: not a pair: %s", v.Sexpr())
		}
		return p.Car, nil
	})
	definePy(env, "cdr", true, func(_ *vm.Env, args []value.Value) (value.Value, error) {
		v, err := arg1(args)
		if err != nil {
			return nil, err
		}
		p, ok := v.(*value.Pair)
		if !ok {
			return nil, fmt.Errorf("cdr: not a pair: %s", v.Sexpr())
		}
		return p.Cdr, nil
	})
	definePy(env, "cons", true, func(_ *vm.Env, args []value.Value) (value.Value, error) {
		a, b, err := arg2(args)
		if err != nil {
			return nil, err
		}
		return value.NewPair(a, b), nil
	})
	definePy(env, "display", false, func(_ *vm.Env, args []value.Value) (value.Value, error) {
		v, err := arg1(args)
		if err != nil {
			return nil, err
		}
		if s, ok := v.(*value.String); ok {
			fmt.Fprint(os.Stdout, s.Text)
		} else {
			fmt.Fprint(os.Stdout, v.Sexpr())
		}
		return value.NewVoid(), nil
	})
	definePy(env, "newline", true, func(_ *vm.Env, args []value.Value) (value.Value, error) {
		return value.NewString("\n"), nil
	})
	definePy(env, "not", true, func(_ *vm.Env, args []value.Value) (value.Value, error) {
		v, err := arg1(args)
		if err != nil {
			return nil, err
		}
		if value.IsFalse(v) {
			return value.True(), nil
		}
		return value.False(), nil
	})
	definePy(env, "list", true, func(_ *vm.Env, args []value.Value) (value.Value, error) {
		return value.List(args...), nil
	})
	env.GlobConst["apply"] = &vm.Apply{}

	definePyPred(env, "eq?", func(args []value.Value) (bool, error) {
		a, b, err := arg2(args)
		if err != nil {
			return false, err
		}
		return a == b, nil
	})
	definePyPred(env, "equal?", func(args []value.Value) (bool, error) {
		a, b, err := arg2(args)
		if err != nil {
			return false, err
		}
		return value.Equal(a, b), nil
	})
	definePyPred(env, "null?", func(args []value.Value) (bool, error) {
		v, err := arg1(args)
		if err != nil {
			return false, err
		}
		_, ok := v.(*value.Null)
		return ok, nil
	})
	definePyPred(env, "pair?", func(args []value.Value) (bool, error) {
		v, err := arg1(args)
		if err != nil {
			return false, err
		}
		_, ok := v.(*value.Pair)
		return ok, nil
	})
	definePyPred(env, "number?", func(args []value.Value) (bool, error) {
		v, err := arg1(args)
		if err != nil {
			return false, err
		}
		_, ok := v.(*value.Number)
		return ok, nil
	})
	definePyPred(env, "string?", func(args []value.Value) (bool, error) {
		v, err := arg1(args)
		if err != nil {
			return false, err
		}
		_, ok := v.(*value.String)
		return ok, nil
	})
	definePyPred(env, "symbol?", func(args []value.Value) (bool, error) {
		v, err := arg1(args)
		if err != nil {
			return false, err
		}
		_, ok := v.(*value.Symbol)
		return ok, nil
	})

	numOp := func(name string, intOp func(a, b int64) int64, floatOp func(a, b float64) float64) *vm.BinaryOp {
		return &vm.BinaryOp{Name: name, Func: func(a, b value.Value) (value.Value, error) {
			an, aok := a.(*value.Number)
			bn, bok := b.(*value.Number)
			if !aok || !bok {
				return nil, errs.New(errs.Type, name+" expects numbers", nil, nil)
			}
			if an.IsFloat || bn.IsFloat {
				return value.NewFloat(floatOp(an.Float(), bn.Float())), nil
			}
			return value.NewInt(intOp(an.I, bn.I)), nil
		}}
	}
	env.GlobConst["+"] = numOp("+", func(a, b int64) int64 { return a + b }, func(a, b float64) float64 { return a + b })
	env.GlobConst["-"] = numOp("-", func(a, b int64) int64 { return a - b }, func(a, b float64) float64 { return a - b })
	env.GlobConst["*"] = numOp("*", func(a, b int64) int64 { return a * b }, func(a, b float64) float64 { return a * b })
	env.GlobConst["/"] = &vm.BinaryOp{Name: "/", Func: func(a, b value.Value) (value.Value, error) {
		an, aok := a.(*value.Number)
		bn, bok := b.(*value.Number)
		if !aok || !bok {
			return nil, errs.New(errs.Type, "/ expects numbers", nil, nil)
		}
		return value.NewFloat(an.Float() / bn.Float()), nil
	}}

	cmpOp := func(name string, cmp func(a, b float64) bool) *vm.BinaryOp {
		return &vm.BinaryOp{Name: name, Func: func(a, b value.Value) (value.Value, error) {
			an, aok := a.(*value.Number)
			bn, bok := b.(*value.Number)
			if !aok || !bok {
				return nil, errs.New(errs.Type, name+" expects numbers", nil, nil)
			}
			if cmp(an.Float(), bn.Float()) {
				return value.True(), nil
			}
			return value.False(), nil
		}}
	}
	env.GlobConst["<"] = cmpOp("<", func(a, b float64) bool { return a < b })
	env.GlobConst["<="] = cmpOp("<=", func(a, b float64) bool { return a <= b })
	env.GlobConst[">"] = cmpOp(">", func(a, b float64) bool { return a > b })
	env.GlobConst[">="] = cmpOp(">=", func(a, b float64) bool { return a >= b })
}
