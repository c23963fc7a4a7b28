package compiler

import (
	"sprog/pkg/errs"
	"sprog/pkg/instr"
	"sprog/pkg/token"
	"sprog/pkg/value"
	"sprog/pkg/vm"
)

// ExpressionCompiler walks parsed S-expressions and emits an
// instr.Instructions stream, grounded on
// original_source/py/comp.py's ExpressionCompiler.
type ExpressionCompiler struct {
	Env        *vm.Env
	Ins        *instr.Instructions
	insStack   []*instr.Instructions
	Block      *Block
	Debuggable bool
}

// NewExpressionCompiler starts a compiler rooted at a fresh Global block.
func NewExpressionCompiler(env *vm.Env, debuggable bool) *ExpressionCompiler {
	c := &ExpressionCompiler{Env: env, Debuggable: debuggable}
	c.Block = NewBlock(Global, nil, nil)
	c.Ins = instr.NewInstructions(debuggable)
	return c
}

func (c *ExpressionCompiler) add(i instr.Instruction, tag *token.Tag) {
	if tag != nil {
		c.Ins.AppendWithTag(i, tag)
	} else {
		c.Ins.Append(i)
	}
}

// undo drops the last-added instruction, used after speculatively
// compiling an expression that turned out to be a compile-time constant.
func (c *ExpressionCompiler) undo() instr.Instruction {
	i := c.Ins.Items[c.Ins.Len()-1]
	c.Ins.Truncate(c.Ins.Len() - 1)
	return i
}

func (c *ExpressionCompiler) pushIns(ins *instr.Instructions) {
	c.insStack = append(c.insStack, c.Ins)
	c.Ins = ins
}

func (c *ExpressionCompiler) popIns() *instr.Instructions {
	done := c.Ins
	c.Ins = c.insStack[len(c.insStack)-1]
	c.insStack = c.insStack[:len(c.insStack)-1]
	return done
}

func (c *ExpressionCompiler) pushModule() {
	c.Block = NewBlock(Module, c.Block, nil)
	c.Block.NestingLevel = c.parentNesting() + 1
	c.pushIns(instr.NewInstructions(c.Debuggable))
}

func (c *ExpressionCompiler) parentNesting() int {
	if c.Block == nil {
		return 0
	}
	return c.Block.NestingLevel
}

func (c *ExpressionCompiler) popModule() error {
	ins := c.popIns()
	next, err := c.Block.Pop(ins, c.Env)
	if err != nil {
		return err
	}
	c.Block = next
	c.Ins.Extend(ins)
	return nil
}

func tagOf(v value.Value) *token.Tag {
	if t, ok := v.(value.Tagged); ok {
		return t.Tag()
	}
	return nil
}

func symName(v value.Value) (string, bool) {
	s, ok := v.(*value.Symbol)
	if !ok {
		return "", false
	}
	return s.Name, true
}

// isHeadSymbol reports whether expr is a non-empty list headed by a
// symbol matching name.
func isHeadSymbol(expr value.Value, name string) bool {
	p, ok := expr.(*value.Pair)
	if !ok {
		return false
	}
	n, ok := symName(p.Car)
	return ok && n == name
}

// compileLiteral emits Load(Literal(val)) at expr's source tag.
func (c *ExpressionCompiler) compileLiteral(val value.Value, tag *token.Tag) {
	c.add(&instr.Load{Loc: instr.Literal{Value: val}}, tag)
}

// compileLoad emits a (possibly pending) Load for a symbol reference.
func (c *ExpressionCompiler) compileLoad(sym *value.Symbol) error {
	i, err := c.Block.GetLoadInstr(sym, c.Ins)
	if err != nil {
		return err
	}
	c.add(i, tagOf(sym))
	return nil
}

// CompileExpr compiles one top-level S-expression value, dispatching
// on its concrete kind.
func (c *ExpressionCompiler) CompileExpr(expr value.Value) error {
	switch v := expr.(type) {
	case *value.Pair:
		return c.compileList(v)
	case *value.Symbol:
		if v.Name == "true" || v.Name == "false" {
			c.compileLiteral(v, tagOf(v))
			return nil
		}
		return c.compileLoad(v)
	case *value.Quote:
		c.compileLiteral(v.Inner, tagOf(v))
		return nil
	default:
		c.compileLiteral(v, tagOf(v))
		return nil
	}
}

// compileNonconstantExpr compiles expr then, if the single instruction
// it produced was a Load(Literal), erases it and returns the literal
// value instead — the constant-folding entry point used by if and
// value-defines. and/or do not use it: compileAnd and compileOr always
// emit their If chain, even for constant operands.
func (c *ExpressionCompiler) compileNonconstantExpr(expr value.Value) (value.Value, error) {
	before := c.Ins.Len()
	if err := c.CompileExpr(expr); err != nil {
		return nil, err
	}
	if c.Ins.Len() != before+1 {
		return nil, nil
	}
	if ld, ok := c.Ins.Items[before].(*instr.Load); ok {
		if lit, ok := ld.Loc.(instr.Literal); ok {
			c.undo()
			return lit.Value, nil
		}
	}
	return nil, nil
}

// compileAddNonconstantExpr compiles expr in place, returning the
// folded constant if it collapsed and true, or false if real code had
// to be emitted.
func (c *ExpressionCompiler) compileAddNonconstantExpr(expr value.Value) (value.Value, bool, error) {
	v, err := c.compileNonconstantExpr(expr)
	if err != nil {
		return nil, false, err
	}
	if v != nil {
		return v, true, nil
	}
	return nil, false, nil
}

func listToSlice(v value.Value) ([]value.Value, error) {
	var out []value.Value
	for {
		switch cur := v.(type) {
		case *value.Null:
			return out, nil
		case *value.Pair:
			out = append(out, cur.Car)
			v = cur.Cdr
		default:
			return nil, errs.New(errs.Compile, "expected a proper list", v, tagOf(v))
		}
	}
}

func (c *ExpressionCompiler) compileList(p *value.Pair) error {
	head, ok := symName(p.Car)
	if ok {
		switch head {
		case "and":
			args, err := listToSlice(p.Cdr)
			if err != nil {
				return err
			}
			return c.compileAnd(args)
		case "or":
			args, err := listToSlice(p.Cdr)
			if err != nil {
				return err
			}
			return c.compileOr(args)
		case "begin":
			args, err := listToSlice(p.Cdr)
			if err != nil {
				return err
			}
			return c.compileBegin(args)
		case "call-cc", "call/cc":
			args, err := listToSlice(p.Cdr)
			if err != nil {
				return err
			}
			return c.compileCallCC(args, tagOf(p))
		case "define":
			args, err := listToSlice(p.Cdr)
			if err != nil {
				return err
			}
			return c.compileDefine(args)
		case "if":
			args, err := listToSlice(p.Cdr)
			if err != nil {
				return err
			}
			return c.compileIf(args)
		case "lambda":
			args, err := listToSlice(p.Cdr)
			if err != nil {
				return err
			}
			fn, err := c.compileLambdaExpr(args, tagOf(p))
			if err != nil {
				return err
			}
			if fn.PurityLevel == vm.DeepEnv {
				c.add(&instr.Load{Loc: instr.EnvSkip{Inner: fn, Skip: 0}}, tagOf(p))
			} else {
				c.compileLiteral(fn, tagOf(p))
			}
			return nil
		case "set!":
			args, err := listToSlice(p.Cdr)
			if err != nil {
				return err
			}
			return c.compileSet(args)
		}
	}
	elems, err := listToSlice(p)
	if err != nil {
		return err
	}
	return c.compileCall(elems, tagOf(p))
}

// compileCall evaluates each argument left to right, then the callee,
// which is left in the result register for Call, shaping the
// accumulated Args into a Call.
func (c *ExpressionCompiler) compileCall(elems []value.Value, tag *token.Tag) error {
	if len(elems) == 0 {
		return errs.New(errs.Compile, "cannot call an empty list", nil, tag)
	}
	c.add(instr.PushArgs{}, nil)
	for _, a := range elems[1:] {
		if err := c.CompileExpr(a); err != nil {
			return err
		}
		c.add(instr.Arg{}, nil)
	}
	if err := c.CompileExpr(elems[0]); err != nil {
		return err
	}
	c.add(instr.Call{NParams: len(elems) - 1}, tag)
	return nil
}

// compileCallCC compiles (call-cc proc): evaluates proc, then performs
// the dedicated CallCC dispatch that captures the continuation and
// invokes proc with it as the sole argument.
func (c *ExpressionCompiler) compileCallCC(args []value.Value, tag *token.Tag) error {
	if len(args) != 1 {
		return errs.New(errs.Compile, "call-cc expects exactly one argument", nil, tag)
	}
	if err := c.CompileExpr(args[0]); err != nil {
		return err
	}
	c.add(instr.CallCC{}, tag)
	return nil
}

// compileAnd recursively nests trailing expressions as the true-arm of
// an If on the leading one, short-circuiting to false.
func (c *ExpressionCompiler) compileAnd(args []value.Value) error {
	if len(args) == 0 {
		c.compileLiteral(value.True(), nil)
		return nil
	}
	if len(args) == 1 {
		return c.CompileExpr(args[0])
	}
	if err := c.CompileExpr(args[0]); err != nil {
		return err
	}
	trueIns := instr.NewInstructions(c.Debuggable)
	c.pushIns(trueIns)
	if err := c.compileAnd(args[1:]); err != nil {
		return err
	}
	c.popIns()
	falseIns := instr.NewInstructions(c.Debuggable)
	falseIns.Append(&instr.Load{Loc: instr.Literal{Value: value.False()}})
	c.add(&instr.If{True: trueIns, False: falseIns}, nil)
	return nil
}

// compileOr mirrors compileAnd with the branches swapped.
func (c *ExpressionCompiler) compileOr(args []value.Value) error {
	if len(args) == 0 {
		c.compileLiteral(value.False(), nil)
		return nil
	}
	if len(args) == 1 {
		return c.CompileExpr(args[0])
	}
	if err := c.CompileExpr(args[0]); err != nil {
		return err
	}
	falseIns := instr.NewInstructions(c.Debuggable)
	c.pushIns(falseIns)
	if err := c.compileOr(args[1:]); err != nil {
		return err
	}
	c.popIns()
	trueIns := instr.NewInstructions(c.Debuggable)
	trueIns.Append(&instr.Load{Loc: instr.Literal{Value: value.True()}})
	c.add(&instr.If{True: trueIns, False: falseIns}, nil)
	return nil
}

// compileIf compiles (if cond then [else]), constant-folding cond when
// possible and otherwise emitting a branching If. The two arms share
// the enclosing function's local-stamp numbering via ExclDefineGroup,
// since only one of them ever actually runs.
func (c *ExpressionCompiler) compileIf(args []value.Value) error {
	if len(args) != 2 && len(args) != 3 {
		return errs.New(errs.Compile, "if expects 2 or 3 arguments", nil, nil)
	}

	cond, folded, err := c.compileAddNonconstantExpr(args[0])
	if err != nil {
		return err
	}

	group := NewExclDefineGroup(c.Block)

	if folded {
		if value.IsTrue(cond) {
			return c.CompileExpr(args[1])
		}
		if len(args) == 3 {
			return c.CompileExpr(args[2])
		}
		c.compileLiteral(value.NewVoid(), nil)
		return nil
	}

	trueIns := instr.NewInstructions(c.Debuggable)
	c.pushIns(trueIns)
	err = c.CompileExpr(args[1])
	c.popIns()
	if err != nil {
		return err
	}

	group.Advance()

	falseIns := instr.NewInstructions(c.Debuggable)
	c.pushIns(falseIns)
	if len(args) == 3 {
		err = c.CompileExpr(args[2])
	} else {
		c.compileLiteral(value.NewVoid(), nil)
	}
	c.popIns()
	if err != nil {
		return err
	}
	group.End()

	c.add(&instr.If{True: trueIns, False: falseIns}, nil)
	return nil
}

// compileBegin opens a Scope block so internal defines in body are
// locals scoped to it, compiling each form and discarding every
// result but the last.
func (c *ExpressionCompiler) compileBegin(body []value.Value) error {
	if len(body) == 0 {
		c.compileLiteral(value.NewVoid(), nil)
		return nil
	}
	c.Block = NewBlock(Scope, c.Block, c.Block.Func)
	c.Block.NestingLevel = c.Block.Parent.NestingLevel
	for _, e := range body {
		if err := c.CompileExpr(e); err != nil {
			return err
		}
	}
	next, err := c.Block.Pop(c.Ins, c.Env)
	if err != nil {
		return err
	}
	c.Block = next
	return nil
}

// compileSet compiles (set! name value) as a store to an already
// existing binding.
func (c *ExpressionCompiler) compileSet(args []value.Value) error {
	if len(args) != 2 {
		return errs.New(errs.Compile, "set! expects exactly 2 arguments", nil, nil)
	}
	sym, err := assertSymbol(args[0])
	if err != nil {
		return err
	}
	if err := c.CompileExpr(args[1]); err != nil {
		return err
	}
	st, err := c.Block.GetStoreInstr(sym, c.Ins, true)
	if err != nil {
		return err
	}
	c.add(st, tagOf(sym))
	c.compileLiteral(value.NewVoid(), nil)
	return nil
}

// compileDefine dispatches between the function-shorthand
// (define (name . args) body...) and the value form
// (define name expr).
func (c *ExpressionCompiler) compileDefine(args []value.Value) error {
	if len(args) < 1 {
		return errs.New(errs.Compile, "define expects at least 1 argument", nil, nil)
	}
	if headPair, ok := args[0].(*value.Pair); ok {
		nameSym, err := assertSymbol(headPair.Car)
		if err != nil {
			return err
		}
		tag := tagOf(headPair)
		fn := &vm.Function{}
		if err := c.Block.DefineConstant(nameSym, fn); err != nil {
			return err
		}
		body, err := listToSlice(value.List(args[1:]...))
		if err != nil {
			return err
		}
		funcBlock, err := c.compileFunctionBody(fn, headPair.Cdr, body, tag)
		if err != nil {
			return err
		}
		if c.Block.Type == Global || c.Block.Type == Module {
			c.add(&instr.Load{Loc: fn}, tag)
			st := &instr.Store{Loc: instr.GlobalFunction{Sym: nameSym, Unknowns: funcBlock.GetUnknownReferences()}}
			c.add(st, tag)
		}
		c.compileLiteral(value.NewVoid(), nil)
		return nil
	}

	sym, err := assertSymbol(args[0])
	if err != nil {
		return err
	}
	if len(args) == 1 {
		return c.compileDefineValue(sym, value.NewVoid())
	}
	if len(args) != 2 {
		return errs.New(errs.Compile, "define expects at most 2 arguments", nil, nil)
	}

	val, folded, err := c.compileAddNonconstantExpr(args[1])
	if err != nil {
		return err
	}
	if folded {
		return c.compileDefineValue(sym, val)
	}
	return c.compileDefineComputed(sym)
}

// compileDefineValue defines sym as a known compile-time constant
// value (never a function — function-shorthand defines go through
// DefineConstant instead), recording a Store so the initializer still
// visibly runs if it never folds away entirely.
func (c *ExpressionCompiler) compileDefineValue(sym *value.Symbol, val value.Value) error {
	if _, err := c.Block.DefineValue(sym, val); err != nil {
		return err
	}
	c.compileLiteral(val, tagOf(sym))
	st, err := c.Block.GetStoreInstr(sym, c.Ins, false)
	if err != nil {
		return err
	}
	c.add(st, tagOf(sym))
	c.compileLiteral(value.NewVoid(), nil)
	return nil
}

// compileDefineComputed defines sym without a known value: the
// initializer expression (already on top of the value stack) is
// stored as the binding's live content.
func (c *ExpressionCompiler) compileDefineComputed(sym *value.Symbol) error {
	if _, err := c.Block.Define(sym); err != nil {
		return err
	}
	st, err := c.Block.GetStoreInstr(sym, c.Ins, false)
	if err != nil {
		return err
	}
	c.add(st, tagOf(sym))
	c.compileLiteral(value.NewVoid(), nil)
	return nil
}

// FunctionBlock opens a Func block, defines each formal as an
// argument local (the last one as a dotted rest-arg when params ends
// improperly), and returns the new block positioned to compile body.
func (c *ExpressionCompiler) FunctionBlock(fn *vm.Function, params value.Value, tag *token.Tag) (*Block, error) {
	b := NewBlock(Func, c.Block, fn)
	b.NestingLevel = 1
	fn.PurityLevel = vm.Pure
	fn.SetTag(tag)

	cur := params
	for {
		switch p := cur.(type) {
		case *value.Null:
			return b, nil
		case *value.Pair:
			sym, err := assertSymbol(p.Car)
			if err != nil {
				return nil, err
			}
			if _, err := b.DefineArg(sym); err != nil {
				return nil, err
			}
			cur = p.Cdr
		case *value.Symbol:
			if _, err := b.DefineDottedArg(p); err != nil {
				return nil, err
			}
			return b, nil
		default:
			return nil, errs.New(errs.Compile, "malformed parameter list", cur, tag)
		}
	}
}

// compileFunctionBody opens fn's Func block for params, compiles each
// body expression (discarding all but the last's value), and pops the
// block to run the stamp resolver. Shared by compileLambdaExpr and the
// function-shorthand branch of compileDefine.
func (c *ExpressionCompiler) compileFunctionBody(fn *vm.Function, params value.Value, body []value.Value, tag *token.Tag) (*Block, error) {
	block, err := c.FunctionBlock(fn, params, tag)
	if err != nil {
		return nil, err
	}

	c.Block = block
	bodyIns := instr.NewInstructions(c.Debuggable)
	c.pushIns(bodyIns)
	if len(body) == 0 {
		c.compileLiteral(value.NewVoid(), nil)
	}
	for i, e := range body {
		if err := c.CompileExpr(e); err != nil {
			c.popIns()
			return nil, err
		}
		if i != len(body)-1 {
			if ld, ok := c.Ins.Items[c.Ins.Len()-1].(*instr.Load); ok {
				if _, ok := ld.Loc.(instr.Literal); ok {
					c.undo()
				}
			}
		}
	}
	c.popIns()

	next, err := c.Block.Pop(bodyIns, c.Env)
	if err != nil {
		return nil, err
	}
	c.Block = next
	return block, nil
}

// compileLambdaExpr compiles (lambda params body...) into a fresh
// *vm.Function, returning it directly as a compile-time constant —
// the function body is fully resolved before compilation of the
// enclosing expression continues.
func (c *ExpressionCompiler) compileLambdaExpr(args []value.Value, tag *token.Tag) (*vm.Function, error) {
	if len(args) < 1 {
		return nil, errs.New(errs.Compile, "lambda expects a parameter list", nil, tag)
	}
	fn := &vm.Function{}
	body, err := listToSlice(value.List(args[1:]...))
	if err != nil {
		return nil, err
	}
	if _, err := c.compileFunctionBody(fn, args[0], body, tag); err != nil {
		return nil, err
	}
	return fn, nil
}

// CompileModule compiles every top-level form yielded by src into one
// instruction stream, returning it once reading is exhausted.
func CompileModule(read func() (value.Value, error), env *vm.Env, debuggable bool) (*instr.Instructions, error) {
	c := NewExpressionCompiler(env, debuggable)
	c.pushModule()
	for {
		expr, err := read()
		if err != nil {
			if e, ok := err.(*errs.Error); ok && e.ErrKind == errs.NoValue {
				break
			}
			return nil, err
		}
		if err := c.CompileExpr(expr); err != nil {
			return nil, err
		}
	}
	if err := c.popModule(); err != nil {
		return nil, err
	}
	return c.Ins, nil
}
