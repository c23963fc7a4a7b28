// Package vm holds every callable Value kind (Function, Closure,
// Continuation, Generic, BinaryOp, Apply) plus the executor and global
// environment that dispatch over them. Callables live here rather than
// in pkg/value so that dispatch can be a plain type switch instead of
// a virtual Call method — see spec.md §9's note that polymorphic calls
// become a small dispatched sum. Keeping them out of pkg/value also
// breaks the cycle pkg/compiler would otherwise need (compiler builds
// *Function values and also imports pkg/value).
package vm

import (
	"sprog/pkg/errs"
	"sprog/pkg/instr"
	"sprog/pkg/locals"
	"sprog/pkg/token"
	"sprog/pkg/value"
)

// Purity levels, in the original's inverted ordering: DeepEnv is the
// worst (least optimizable) level, Pure the best.
type Purity uint8

const (
	DeepEnv Purity = iota
	ShallowEnv
	Pure
)

// Function is a first-class function implemented directly over an
// instruction stream, with no captured environment of its own — any
// inherited frame comes from the caller at Load time via EnvSkip.
type Function struct {
	Ins         *instr.Instructions
	NArgs       int
	Size        int
	Dotted      bool
	PurityLevel Purity
	Tag         *token.Tag
}

func (f *Function) SetTag(t *token.Tag) { f.Tag = t }
func (f *Function) GetTag() *token.Tag  { return f.Tag }

func (*Function) Kind() value.Kind { return value.KindFunction }
func (f *Function) Sexpr() string  { return "#function" }

// IsLocation lets *Function satisfy instr.Location: a function value
// can be used directly as a Load/Store operand (a literal call site).
func (*Function) IsLocation() {}

func (f *Function) IsPure() bool { return f.PurityLevel == Pure }

// Closure pairs a Function with the frame it was created over.
type Closure struct {
	Function *Function
	InhLocal *locals.Locals
}

func (*Closure) Kind() value.Kind { return value.KindClosure }
func (*Closure) Sexpr() string    { return "#closure" }

// Generic is a host-implemented built-in taking the full argument list.
type Generic struct {
	Name string
	Func func(env *Env, args []value.Value) (value.Value, error)
	Pure bool
}

func (*Generic) Kind() value.Kind { return value.KindGeneric }
func (g *Generic) Sexpr() string  { return "#" + g.Name }
func (g *Generic) IsPure() bool   { return g.Pure }

// BinaryOp left-folds a two-argument host function across its
// arguments, grounded on original_source/py/function.py's PyOp.
type BinaryOp struct {
	Name string
	Func func(a, b value.Value) (value.Value, error)
}

func (*BinaryOp) Kind() value.Kind { return value.KindBinaryOp }
func (b *BinaryOp) Sexpr() string  { return "#binary-op." + b.Name }
func (*BinaryOp) IsPure() bool     { return true }

// Apply is the singleton callable behind the apply built-in: it takes
// (callable, list) and re-dispatches as if list's contents had been
// supplied positionally.
type Apply struct{}

func (*Apply) Kind() value.Kind { return value.KindApply }
func (*Apply) Sexpr() string    { return "#apply" }

// Continuation is a captured executor snapshot. Per spec.md §4.3/§5,
// its stack containers are deep-copied at capture time but the frames,
// instruction streams, and values held inside them are shared — so a
// captured continuation observes later writes through a still-live
// ancestor frame, exactly like ordinary Scheme closures do.
type Continuation struct {
	Value      value.Value
	Ins        *instr.Instructions
	PC         int
	InsPCStack []insPC

	Local      *locals.Locals
	LocalStack []*locals.Locals

	Args      []value.Value
	ArgsStack [][]value.Value
}

func (*Continuation) Kind() value.Kind { return value.KindContinuation }
func (*Continuation) Sexpr() string    { return "#continuation" }

type insPC struct {
	Ins *instr.Instructions
	PC  int
}

// ExecEnv is the live executor: instruction pointer plus the three
// stacks (IP, locals, args) the interpreter loop manipulates per
// instruction, grounded on original_source/py/eval.ExecEnv.
type ExecEnv struct {
	Value value.Value

	Ins        *instr.Instructions
	PC         int
	InsPCStack []insPC

	Local      *locals.Locals
	LocalStack []*locals.Locals

	Args      []value.Value
	ArgsStack [][]value.Value
}

// NewExecEnv starts a fresh executor over ins at PC 0.
func NewExecEnv(ins *instr.Instructions) *ExecEnv {
	return &ExecEnv{Ins: ins}
}

// Next fetches the next instruction, popping exhausted instruction
// streams off the IP stack, and reports false once the outermost
// stream is exhausted (mirrors __next__'s StopIteration).
func (e *ExecEnv) Next() (instr.Instruction, bool) {
	for e.PC == e.Ins.Len() {
		if len(e.InsPCStack) == 0 {
			return nil, false
		}
		top := e.InsPCStack[len(e.InsPCStack)-1]
		e.InsPCStack = e.InsPCStack[:len(e.InsPCStack)-1]
		e.Ins, e.PC = top.Ins, top.PC
	}
	i := e.Ins.Items[e.PC]
	e.PC++
	return i, true
}

// CurrentTag returns the source tag of the instruction just fetched by
// Next, if the owning stream is debuggable.
func (e *ExecEnv) CurrentTag() interface{} {
	if !e.Ins.Debuggable || e.PC == 0 {
		return nil
	}
	return e.Ins.Tags[e.PC-1]
}

// PushIns splices ins in as the live stream, saving the resumption
// point on the IP stack unless the current stream is already spent.
func (e *ExecEnv) PushIns(ins *instr.Instructions) {
	if ins == nil || ins.Len() == 0 {
		return
	}
	if e.PC < e.Ins.Len() {
		e.InsPCStack = append(e.InsPCStack, insPC{e.Ins, e.PC})
	}
	e.Ins, e.PC = ins, 0
}

// PushLocalAutopop installs local as the live frame, saving the prior
// one, and arranges for PopLocals to restore it once local's owning
// call's instructions are exhausted.
func (e *ExecEnv) PushLocalAutopop(local *locals.Locals) {
	e.LocalStack = append(e.LocalStack, e.Local)
	e.Local = local
	e.PushIns(instr.PopLocalsIns())
}

// PopArgs retrieves the just-accumulated argument list and restores
// the caller's in-flight list.
func (e *ExecEnv) PopArgs() []value.Value {
	args := e.Args
	e.Args = e.ArgsStack[len(e.ArgsStack)-1]
	e.ArgsStack = e.ArgsStack[:len(e.ArgsStack)-1]
	return args
}

// Clone captures a continuation snapshot: fresh backing arrays for
// every stack container, sharing every element (frames, streams,
// values) with the live executor.
func (e *ExecEnv) Clone() *Continuation {
	return &Continuation{
		Value:      e.Value,
		Ins:        e.Ins,
		PC:         e.PC,
		InsPCStack: append([]insPC{}, e.InsPCStack...),
		Local:      e.Local,
		LocalStack: append([]*locals.Locals{}, e.LocalStack...),
		Args:       append([]value.Value{}, e.Args...),
		ArgsStack:  append([][]value.Value{}, e.ArgsStack...),
	}
}

// Restore installs a captured continuation as the live executor state.
func (e *ExecEnv) Restore(c *Continuation) {
	e.Ins, e.PC = c.Ins, c.PC
	e.InsPCStack = append([]insPC{}, c.InsPCStack...)
	e.Local = c.Local
	e.LocalStack = append([]*locals.Locals{}, c.LocalStack...)
	e.Args = append([]value.Value{}, c.Args...)
	e.ArgsStack = append([][]value.Value{}, c.ArgsStack...)
}

// Error raises a tagged Error, mirroring ExecEnv.error: it both sets
// the result register and returns the error to the caller, which in
// the interpreter loop unwinds Env.Eval.
func (e *ExecEnv) Error(kind errs.Kind, msg string, data value.Value) *errs.Error {
	var tag *token.Tag
	if e.Ins.Debuggable && e.PC > 0 {
		tag = e.Ins.Tags[e.PC-1]
	}
	err := errs.New(kind, msg, data, tag)
	e.Value = err
	return err
}
