package vm

import (
	"sprog/pkg/errs"
	"sprog/pkg/instr"
	"sprog/pkg/locals"
	"sprog/pkg/value"
)

// Env holds the two global name tables plus the live executor,
// grounded on original_source/py/eval.Env.
type Env struct {
	Exe *ExecEnv

	GlobConst    map[string]value.Value
	Glob         map[string]value.Value
	FuncUnknowns map[string]map[value.Value]struct{}
}

// NewEnv allocates empty global tables.
func NewEnv() *Env {
	return &Env{
		GlobConst:    map[string]value.Value{},
		Glob:         map[string]value.Value{},
		FuncUnknowns: map[string]map[value.Value]struct{}{},
	}
}

// LookupUnknown resolves Load(Unknown(sym)): glob_const first, then
// glob, else an unknown-variable error tagged at the load site.
func (env *Env) LookupUnknown(sym *value.Symbol) (value.Value, error) {
	if v, ok := env.GlobConst[sym.Name]; ok {
		return v, nil
	}
	if v, ok := env.Glob[sym.Name]; ok {
		return v, nil
	}
	return nil, env.Exe.Error(errs.UnknownVariable, "unknown variable", sym)
}

// SetUnknown implements Store(Unknown(sym)) for set!/global define:
// writing to a glob_const name is an error.
func (env *Env) SetUnknown(sym *value.Symbol) error {
	if _, ok := env.GlobConst[sym.Name]; ok {
		return env.Exe.Error(errs.ConstantRedefine, "cannot set constant", sym)
	}
	env.Glob[sym.Name] = env.Exe.Value
	return nil
}

// ResolveUnknowns records which not-yet-defined functions named sym
// and registers fn's own forward references. The source's
// CallOptimizer/PurityGraph back-patching pass this fed is a stub
// (spec.md §9); this keeps the bookkeeping without the optimisation.
func (env *Env) ResolveUnknowns(fn value.Value, symbol string, unknownRefs map[string]struct{}) {
	for unk := range unknownRefs {
		d, ok := env.FuncUnknowns[unk]
		if !ok {
			d = map[value.Value]struct{}{}
			env.FuncUnknowns[unk] = d
		}
		d[fn] = struct{}{}
	}
}

// DefineGlobalFunction implements Store(GlobalFunction(sym, unknowns)).
func (env *Env) DefineGlobalFunction(sym *value.Symbol, unknownRefs map[string]struct{}) error {
	if _, ok := env.GlobConst[sym.Name]; ok {
		return env.Exe.Error(errs.ConstantRedefine, "cannot redefine constant", sym)
	}
	env.GlobConst[sym.Name] = env.Exe.Value
	env.ResolveUnknowns(env.Exe.Value, sym.Name, unknownRefs)
	return nil
}

// LookupConst reads glob_const without raising, used by the compiler
// to fold references to already-defined constants.
func (env *Env) LookupConst(sym *value.Symbol) (value.Value, bool) {
	v, ok := env.GlobConst[sym.Name]
	return v, ok
}

// AssertArgLen raises a wrong-arity error unless len(args) == n.
func (env *Env) AssertArgLen(args []value.Value, n int) error {
	if len(args) != n {
		return env.Exe.Error(errs.WrongArity, "wrong number of arguments", nil)
	}
	return nil
}

// EvalNoExcept runs ins to completion over a fresh ExecEnv and returns
// the result register, or the *errs.Error that aborted the run.
func (env *Env) EvalNoExcept(ins *instr.Instructions) (value.Value, error) {
	env.Exe = NewExecEnv(ins)
	if err := env.run(); err != nil {
		return env.Exe.Value, err
	}
	ret := env.Exe.Value
	env.Exe = nil
	return ret, nil
}

// Eval is EvalNoExcept but swallows the error after leaving its
// message in the result register, matching eval.py's REPL-friendly
// Env.eval wrapper.
func (env *Env) Eval(ins *instr.Instructions) value.Value {
	v, err := env.EvalNoExcept(ins)
	if err != nil {
		return env.Exe.Value
	}
	return v
}

// run is the fetch-decode-execute loop, a direct port of eval.py's
// Env.loop over the closed instr.Instruction sum.
func (env *Env) run() error {
	exe := env.Exe
	for {
		i, ok := exe.Next()
		if !ok {
			return nil
		}

		switch ins := i.(type) {
		case instr.Call:
			if err := env.applyFunction(exe.Value, nil); err != nil {
				return err
			}
		case instr.CallCC:
			cont := exe.Clone()
			if err := env.applyFunction(exe.Value, []value.Value{cont}); err != nil {
				return err
			}
		case *instr.If:
			if value.IsTrue(exe.Value) {
				exe.PushIns(ins.True)
			} else {
				exe.PushIns(ins.False)
			}
		case *instr.Load:
			if err := env.execLoad(ins.Loc); err != nil {
				return err
			}
		case instr.MoveLocalRange:
			exe.Local.MoveRange(ins.Start, ins.End, ins.Positions)
		case instr.PopLocals:
			exe.Local = exe.LocalStack[len(exe.LocalStack)-1]
			exe.LocalStack = exe.LocalStack[:len(exe.LocalStack)-1]
		case instr.PushArgs:
			exe.ArgsStack = append(exe.ArgsStack, exe.Args)
			exe.Args = nil
		case *instr.Store:
			if err := env.execStore(ins.Loc); err != nil {
				return err
			}
		case instr.Arg:
			exe.Args = append(exe.Args, exe.Value)
		case instr.ArgPrepend:
			exe.Args = append([]value.Value{exe.Value}, exe.Args...)
		default:
			return exe.Error(errs.Runtime, "cannot execute instruction", nil)
		}
	}
}

func (env *Env) execLoad(loc instr.Location) error {
	exe := env.Exe
	switch l := loc.(type) {
	case instr.Literal:
		exe.Value = l.Value
	case instr.Local:
		exe.Value = exe.Local.Lookup(l.Index, 0)
	case instr.EnvSkip:
		switch inner := l.Inner.(type) {
		case instr.Local:
			exe.Value = exe.Local.Lookup(inner.Index, l.Skip)
		case *Function:
			exe.Value = &Closure{Function: inner, InhLocal: exe.Local.Skip(l.Skip)}
		default:
			return exe.Error(errs.Runtime, "cannot skip", nil)
		}
	case instr.Unknown:
		v, err := env.LookupUnknown(l.Sym)
		if err != nil {
			return err
		}
		exe.Value = v
	case *Function:
		exe.Value = l
	default:
		return exe.Error(errs.Runtime, "unknown location for Load", nil)
	}
	return nil
}

func (env *Env) execStore(loc instr.Location) error {
	exe := env.Exe
	switch l := loc.(type) {
	case instr.Local:
		exe.Local.Assign(l.Index, 0, exe.Value)
	case instr.EnvSkip:
		inner, ok := l.Inner.(instr.Local)
		if !ok {
			return exe.Error(errs.Runtime, "cannot store to location", nil)
		}
		exe.Local.Assign(inner.Index, l.Skip, exe.Value)
	case instr.Unknown:
		return env.SetUnknown(l.Sym)
	case instr.GlobalFunction:
		return env.DefineGlobalFunction(l.Sym, l.Unknowns)
	default:
		return exe.Error(errs.Runtime, "cannot store to location", nil)
	}
	return nil
}

// applyFunction dispatches the value in the result register as a
// callable. args overrides the accumulated argument list (used for
// CallCC's single synthesized continuation argument); nil means pop
// the just-built argument list off the args stack.
func (env *Env) applyFunction(callee value.Value, args []value.Value) error {
	exe := env.Exe
	if args == nil {
		args = exe.PopArgs()
	}

	switch fn := callee.(type) {
	case *Function:
		return env.callFunction(fn, args, nil)
	case *Closure:
		return env.callFunction(fn.Function, args, fn.InhLocal)
	case *Apply:
		if err := env.AssertArgLen(args, 2); err != nil {
			return err
		}
		inner := args[0]
		list, err := value.ToHostList(args[1])
		if err != nil {
			return exe.Error(errs.Type, "apply expects a list", args[1])
		}
		return env.applyFunction(inner, list)
	case *Generic:
		v, err := fn.Func(env, args)
		if err != nil {
			e := errs.New(errs.Runtime, err.Error(), nil, nil)
			exe.Value = e
			return nil
		}
		exe.Value = v
		return nil
	case *BinaryOp:
		if len(args) == 0 {
			return exe.Error(errs.WrongArity, "no arguments", nil)
		}
		result := args[0]
		for _, a := range args[1:] {
			v, err := fn.Func(result, a)
			if err != nil {
				return exe.Error(errs.Type, err.Error(), nil)
			}
			result = v
		}
		exe.Value = result
		return nil
	case *Continuation:
		if err := env.AssertArgLen(args, 1); err != nil {
			return err
		}
		exe.Restore(fn)
		exe.Value = args[0]
		return nil
	default:
		return exe.Error(errs.NotCallable, "not a function", callee)
	}
}

func (env *Env) callFunction(fn *Function, args []value.Value, inhLocal *locals.Locals) error {
	exe := env.Exe
	n := fn.NArgs
	if fn.Dotted {
		if len(args) < n-1 {
			return exe.Error(errs.WrongArity, "wrong number of arguments", nil)
		}
		rest := value.List(args[n-1:]...)
		args = append(append([]value.Value{}, args[:n-1]...), rest)
	} else if err := env.AssertArgLen(args, n); err != nil {
		return err
	}

	l := locals.New(fn.Size, inhLocal)
	l.ApplyArgs(args)
	exe.PushLocalAutopop(l)
	exe.PushIns(fn.Ins)
	return nil
}
