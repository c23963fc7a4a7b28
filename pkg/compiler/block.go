// Package compiler turns parsed S-expressions into an instr.Instructions
// stream, performing lexical-scope analysis, closure detection, purity
// inference, and the two-pass stamp-resolving local allocator along the
// way. It is grounded on original_source/py/comp.py end to end.
package compiler

import (
	"sprog/pkg/errs"
	"sprog/pkg/instr"
	"sprog/pkg/value"
	"sprog/pkg/vm"
)

// BlockType names the four lexical scope kinds chained during
// compilation (spec.md §4.4).
type BlockType int

const (
	Global BlockType = iota
	Module
	Func
	Scope
)

// PlaceholderLocation stands in for a global define whose value is not
// yet known to be a compile-time constant.
type PlaceholderLocation struct {
	Sym   *value.Symbol
	Value value.Value
}

func (*PlaceholderLocation) IsLocation() {}

// IMStampedLocal is a pending local-variable definition: a "stamp"
// (definition index within its owning function) waiting for the stamp
// resolver to assign it a final frame slot.
type IMStampedLocal struct {
	DefineStamp  int
	TargetStamp  int
	LastUseStamp int
	IsArg        bool
	Closured     bool
	Overwritten  bool
	FuncBlock    *Block
	Value        value.Value
	DebugSym     *value.Symbol
}

func (*IMStampedLocal) IsLocation() {}

// IsConstant reports whether this local was initialized to a known
// value and never subsequently assigned — the condition under which
// the stamp resolver can elide it from the runtime frame entirely.
func (s *IMStampedLocal) IsConstant() bool {
	return s.Value != nil && !s.Overwritten
}

// IMInsRef wraps a Load or Store instruction whose Loc still points at
// an IMStampedLocal or PlaceholderLocation, pending resolution.
type IMInsRef struct {
	I        instr.Instruction // *instr.Load or *instr.Store
	Sym      *value.Symbol
	Block    *Block
	InIns    *instr.Instructions
	IsDefine bool
}

// loc returns i's current Location, for either instruction kind.
func (r *IMInsRef) loc() instr.Location {
	switch i := r.I.(type) {
	case *instr.Load:
		return i.Loc
	case *instr.Store:
		return i.Loc
	default:
		return nil
	}
}

func (r *IMInsRef) setLoc(loc instr.Location) {
	switch i := r.I.(type) {
	case *instr.Load:
		i.Loc = loc
	case *instr.Store:
		i.Loc = loc
	}
}

// getStamped unwraps a possible EnvSkip to reach the underlying
// IMStampedLocal/PlaceholderLocation.
func (r *IMInsRef) getStamped() instr.Location {
	if es, ok := r.loc().(instr.EnvSkip); ok {
		return es.Inner
	}
	return r.loc()
}

// resolveConstant replaces I's Loc with a Literal if the stamped local
// it refers to turned out constant, reporting whether it did.
func (r *IMInsRef) resolveConstant() bool {
	stamped, ok := r.getStamped().(*IMStampedLocal)
	if !ok || !stamped.IsConstant() {
		return false
	}
	r.setLoc(instr.Literal{Value: stamped.Value})
	return true
}

// indexOf finds i's position in ins.Items by pointer identity.
func indexOf(ins *instr.Instructions, i instr.Instruction) int {
	for idx, item := range ins.Items {
		if item == i {
			return idx
		}
	}
	return -1
}

// completeValueDefines fixes up defining Store instructions whose value
// is known at compile time: it erases the Store when the variable is a
// constant (it folded away and has no slot), and otherwise (a global,
// or a local assigned again later) inserts a Load(Literal) of the value
// ahead of the Store, so the variable starts out holding it. Grounded
// on comp.py's complete_value_defines.
func completeValueDefines(refs []*IMInsRef) {
	for _, r := range refs {
		st, ok := r.I.(*instr.Store)
		if !ok || !r.IsDefine {
			continue
		}
		loc := st.Loc
		if es, ok := loc.(instr.EnvSkip); ok {
			loc = es.Inner
		}

		var isConstant bool
		var val value.Value
		switch l := loc.(type) {
		case *IMStampedLocal:
			if l.Value == nil {
				continue
			}
			isConstant = l.IsConstant()
			val = l.Value
		case *PlaceholderLocation:
			isConstant = false
			val = l.Value
		default:
			continue
		}

		index := indexOf(r.InIns, r.I)
		if index < 0 {
			continue
		}
		if isConstant {
			r.InIns.EraseIns(index)
		} else if val != nil {
			r.InIns.InsertIns(index, &instr.Load{Loc: instr.Literal{Value: val}})
		}
	}
}

// Block is one lexical-scope node in the parent-linked chain built
// during compilation (spec.md §4.4).
type Block struct {
	Type   BlockType
	Parent *Block
	Func   *vm.Function

	Defines map[string]interface{} // *PlaceholderLocation | *IMStampedLocal | value.Value (constant)

	NestingLevel int

	LocalStamp    int
	StampedLocals []*IMStampedLocal

	IMInsRefList []*IMInsRef
}

// NewBlock allocates a block of the given type, chained to parent.
func NewBlock(blockType BlockType, parent *Block, fn *vm.Function) *Block {
	return &Block{
		Type:       blockType,
		Parent:     parent,
		Func:       fn,
		Defines:    map[string]interface{}{},
		LocalStamp: -1,
	}
}

// Pop finishes this block and returns its parent. For a Func block,
// ins is the compiled body and this runs the stamp resolver; for
// Global/Module, env resolves whatever refs remain against globals.
func (b *Block) Pop(ins *instr.Instructions, env *vm.Env) (*Block, error) {
	switch b.Type {
	case Func:
		completeValueDefines(b.IMInsRefList)
		sr := newStampResolver(b)
		remaining, err := sr.setup(b.IMInsRefList)
		if err != nil {
			return nil, err
		}
		b.IMInsRefList = remaining

		moveIns, err := sr.reorderLocals()
		if err != nil {
			return nil, err
		}
		if moveIns != nil {
			ins.PrependIns(moveIns)
		}
		if err := sr.resolveLocals(); err != nil {
			return nil, err
		}
		b.Func.Size = sr.getSize()
		b.Func.Ins = ins

		rest, err := b.resolveAllInBlock(b.IMInsRefList)
		if err != nil {
			return nil, err
		}
		b.Parent.IMInsRefList = append(b.Parent.IMInsRefList, rest...)
		b.IMInsRefList = nil

	case Scope:
		rest, err := b.resolveAllInBlock(b.IMInsRefList)
		if err != nil {
			return nil, err
		}
		b.Parent.IMInsRefList = append(b.Parent.IMInsRefList, rest...)
		b.IMInsRefList = nil

	case Module, Global:
		completeValueDefines(b.IMInsRefList)
		rest, err := b.resolveAllInBlock(b.IMInsRefList)
		if err != nil {
			return nil, err
		}
		rest2, err := b.resolveAllGlobal(rest, env)
		if err != nil {
			return nil, err
		}
		b.IMInsRefList = rest2
	}

	return b.Parent, nil
}

// resolveInBlock resolves one pending ref against this block's own
// Defines table: a *vm.Function constant becomes a direct call-site
// Load (a deep_env one wrapped in EnvSkip over the frame of the
// function whose block defines it), any other raw constant becomes a
// Literal. A PlaceholderLocation
// is always left pending here, even once it carries a known value —
// that value is only a hint for completeValueDefines to fold the
// defining store's initializer; the binding itself is a mutable global
// and every reference (including the defining store) must still settle
// through the Unknown/global-constant runtime path so later set!s are
// visible. A local (IMStampedLocal) never belongs in a global block's
// Defines and is likewise left pending. Grounded on comp.py's
// resolve_iminsref_block.
func (b *Block) resolveInBlock(r *IMInsRef) bool {
	c, ok := b.Defines[r.Sym.Name]
	if !ok {
		return false
	}

	var val value.Value
	switch cv := c.(type) {
	case *PlaceholderLocation:
		return false
	case *IMStampedLocal:
		return false
	case value.Value:
		val = cv
	default:
		return false
	}

	if fn, ok := val.(*vm.Function); ok {
		if fn.PurityLevel == vm.DeepEnv {
			skip := 0
			for p := r.Block; p != nil && p != b; p = p.Parent {
				if p.Type == Func {
					skip++
				}
			}
			r.setLoc(instr.EnvSkip{Inner: fn, Skip: skip})
		} else {
			r.setLoc(fn)
		}
	} else {
		r.setLoc(instr.Literal{Value: val})
	}
	return true
}

func (b *Block) resolveAllInBlock(refs []*IMInsRef) ([]*IMInsRef, error) {
	var rest []*IMInsRef
	for _, r := range refs {
		if !b.resolveInBlock(r) {
			rest = append(rest, r)
		}
	}
	return rest, nil
}

// resolveGlobal resolves one pending ref against the runtime Env's
// constant table, falling back to an Unknown location resolved at
// first run and marking the referencing function impure.
func (b *Block) resolveGlobal(r *IMInsRef, env *vm.Env) bool {
	if constant, ok := env.LookupConst(r.Sym); ok {
		if fn, ok := constant.(*vm.Function); ok {
			r.setLoc(fn)
		} else {
			r.setLoc(instr.Literal{Value: constant})
		}
	} else {
		r.setLoc(instr.Unknown{Sym: r.Sym})
		r.Block.markFuncNonpure()
	}
	return true
}

func (b *Block) resolveAllGlobal(refs []*IMInsRef, env *vm.Env) ([]*IMInsRef, error) {
	var rest []*IMInsRef
	for _, r := range refs {
		if !b.resolveGlobal(r, env) {
			rest = append(rest, r)
		}
	}
	return rest, nil
}

func assertSymbol(v value.Value) (*value.Symbol, error) {
	sym, ok := v.(*value.Symbol)
	if !ok {
		return nil, errs.New(errs.Compile, "argument is not a symbol", v, nil)
	}
	return sym, nil
}

func (b *Block) checkDefineSym(sym *value.Symbol) error {
	if _, ok := b.Defines[sym.Name]; ok {
		return errs.New(errs.Compile, "already defined", sym, nil)
	}
	if b.NestingLevel > 1 {
		return errs.New(errs.Compile, "cannot define outside block", sym, nil)
	}
	return nil
}

// Define is the context-sensitive define: local inside a function or
// scope body, global otherwise.
func (b *Block) Define(sym *value.Symbol) (interface{}, error) {
	if b.Type == Func || b.Type == Scope {
		return b.DefineLocal(sym, false, nil)
	}
	return b.DefineGlobal(sym, nil)
}

// DefineValue defines sym as holding a possibly-constant value.
func (b *Block) DefineValue(sym *value.Symbol, val value.Value) (interface{}, error) {
	if b.Type == Func || b.Type == Scope {
		return b.DefineLocal(sym, false, val)
	}
	return b.DefineGlobal(sym, val)
}

func (b *Block) DefineGlobal(sym *value.Symbol, val value.Value) (interface{}, error) {
	if err := b.checkDefineSym(sym); err != nil {
		return nil, err
	}
	loc := &PlaceholderLocation{Sym: sym, Value: val}
	b.Defines[sym.Name] = loc
	return loc, nil
}

// funcBlock walks up to the nearest enclosing Func block.
func (b *Block) funcBlock() *Block {
	for fb := b; fb != nil; fb = fb.Parent {
		if fb.Type == Func {
			return fb
		}
	}
	return nil
}

func (b *Block) DefineLocal(sym *value.Symbol, isArg bool, val value.Value) (interface{}, error) {
	if err := b.checkDefineSym(sym); err != nil {
		return nil, err
	}
	fb := b.funcBlock()
	fb.LocalStamp++
	loc := &IMStampedLocal{
		DefineStamp:  fb.LocalStamp,
		TargetStamp:  -1,
		LastUseStamp: fb.LocalStamp,
		IsArg:        isArg,
		FuncBlock:    fb,
		Value:        val,
		DebugSym:     sym,
	}
	fb.StampedLocals = append(fb.StampedLocals, loc)
	b.Defines[sym.Name] = loc
	return loc, nil
}

func (b *Block) DefineConstant(sym *value.Symbol, val value.Value) error {
	if err := b.checkDefineSym(sym); err != nil {
		return err
	}
	b.Defines[sym.Name] = val
	return nil
}

func (b *Block) DefineArg(sym *value.Symbol) (interface{}, error) {
	b.Func.NArgs++
	return b.DefineLocal(sym, true, nil)
}

func (b *Block) DefineDottedArg(sym *value.Symbol) (interface{}, error) {
	b.Func.Dotted = true
	return b.DefineArg(sym)
}

// refStampedLocal records that im was referenced from closured (a
// subfunction) and extends its lifetime to the current stamp.
func (b *Block) refStampedLocal(im *IMStampedLocal, closured bool) {
	if closured {
		im.Closured = true
	}
	for fb := b; fb != nil; fb = fb.Parent {
		if fb.Type == Func {
			im.LastUseStamp = fb.LocalStamp
			return
		}
	}
}

// findLocalLocationWSkip walks up the block chain looking for sym,
// returning the location plus the number of function boundaries
// crossed. Crossing a Func boundary downgrades that function's purity
// to DeepEnv, since it now closes over an ancestor's frame.
func (b *Block) findLocalLocationWSkip(sym *value.Symbol, closured bool) (instr.Location, int) {
	loc, ok := b.Defines[sym.Name]
	if !ok {
		if b.Parent == nil {
			return nil, 0
		}
		pLoc, pLevel := b.Parent.findLocalLocationWSkip(sym, closured || b.Type == Func)
		if pLoc == nil {
			return nil, 0
		}
		switch b.Type {
		case Func:
			b.Func.PurityLevel = vm.DeepEnv
		case Scope:
			return pLoc, pLevel
		}
		return pLoc, pLevel + 1
	}

	switch l := loc.(type) {
	case *IMStampedLocal:
		b.refStampedLocal(l, closured)
		return l, 0
	default:
		return nil, 0
	}
}

// findGlobalLocation walks from b up through every ancestor's own
// Defines table. original_source/py/comp.py's find_global_location
// indexes self.defines on every iteration instead of p.defines,
// making the parent walk dead code; this fixes that to the evidently
// intended per-ancestor lookup (documented in SPEC_FULL.md §9).
func (b *Block) findGlobalLocation(sym *value.Symbol) (interface{}, bool) {
	for p := b; p != nil; p = p.Parent {
		if loc, ok := p.Defines[sym.Name]; ok {
			return loc, true
		}
	}
	return nil, false
}

// GetLoadInstr compiles a Load for sym, recording it as pending
// resolution whenever it still targets a stamped local or placeholder.
func (b *Block) GetLoadInstr(sym *value.Symbol, ins *instr.Instructions) (*instr.Load, error) {
	loc, level := b.findLocalLocationWSkip(sym, false)
	var isStamped bool
	var i *instr.Load

	if loc != nil {
		_, isStamped = loc.(*IMStampedLocal)
		if level > 0 {
			loc = instr.EnvSkip{Inner: loc, Skip: level}
		}
		i = &instr.Load{Loc: loc}
	} else {
		gloc, ok := b.findGlobalLocation(sym)
		var gl instr.Location
		if !ok {
			gl = &PlaceholderLocation{Sym: sym}
		} else if l, ok := gloc.(instr.Location); ok {
			gl = l
		} else {
			gl = &PlaceholderLocation{Sym: sym, Value: gloc.(value.Value)}
		}
		i = &instr.Load{Loc: gl}
		isStamped = true
	}

	if isStamped {
		b.IMInsRefList = append(b.IMInsRefList, &IMInsRef{I: i, Sym: sym, Block: b, InIns: ins, IsDefine: false})
	}
	return i, nil
}

// GetStoreInstr compiles a Store for sym; overwritten marks whether
// this write follows an earlier definition (true for set!, false for
// a defining store whose initializer feeds complete_value_defines).
func (b *Block) GetStoreInstr(sym *value.Symbol, ins *instr.Instructions, overwritten bool) (*instr.Store, error) {
	loc, level := b.findLocalLocationWSkip(sym, false)
	var isStamped bool
	var i *instr.Store

	if loc != nil {
		stamped, ok := loc.(*IMStampedLocal)
		isStamped = ok
		var topLoc instr.Location = loc
		if level > 0 {
			topLoc = instr.EnvSkip{Inner: loc, Skip: level}
		}
		if isStamped && overwritten {
			stamped.Overwritten = true
		}
		i = &instr.Store{Loc: topLoc}
	} else {
		gloc, ok := b.findGlobalLocation(sym)
		var gl instr.Location
		if !ok {
			gl = &PlaceholderLocation{Sym: sym}
		} else if l, ok := gloc.(instr.Location); ok {
			gl = l
		} else {
			gl = &PlaceholderLocation{Sym: sym, Value: gloc.(value.Value)}
		}
		i = &instr.Store{Loc: gl}
		isStamped = true
	}

	if isStamped {
		b.IMInsRefList = append(b.IMInsRefList, &IMInsRef{I: i, Sym: sym, Block: b, InIns: ins, IsDefine: !overwritten})
	}
	return i, nil
}

// GetUnknownReferences always returns empty: the forward-reference set
// driving the source's disabled optimisation passes, left a stub per
// spec.md §9 (CallOptimizer/PurityGraph).
func (b *Block) GetUnknownReferences() map[string]struct{} { return map[string]struct{}{} }

func (b *Block) markFuncNonpure() {
	for fb := b; fb != nil; fb = fb.Parent {
		if fb.Type == Func {
			if fb.Func.PurityLevel == vm.Pure {
				fb.Func.PurityLevel = vm.ShallowEnv
			}
			return
		}
	}
}

// ExclDefineGroup resets a Func block's local_stamp counter after
// compiling an if's true arm, letting the false arm reuse the same
// stamp range (grounded on comp.py's ExclDefineGroup). Outside any
// function it does nothing.
type ExclDefineGroup struct {
	block          *Block
	originalStamp int
}

func NewExclDefineGroup(b *Block) *ExclDefineGroup {
	g := &ExclDefineGroup{block: b.funcBlock()}
	if g.block != nil {
		g.originalStamp = g.block.LocalStamp
	}
	return g
}

func (g *ExclDefineGroup) Advance() {
	if g.block != nil {
		g.block.LocalStamp = g.originalStamp
	}
}
func (g *ExclDefineGroup) End()     {}
