// Package instr defines the closed instruction set and the Location
// variant addressed by Load/Store, exactly as in spec.md §4.2-§4.3.
// Both are tagged sums dispatched by type switch in pkg/vm rather than
// polymorphic virtual calls, per the redesign note in spec.md §9.
package instr

import (
	"sprog/pkg/token"
	"sprog/pkg/value"
)

// Location is the operand of Load/Store. It is implemented both by the
// variants below and, in pkg/vm, by *vm.Function directly (a function
// value used as a literal call-site location) — kept as a separate
// marker interface with an exported method so a type outside this
// package can still satisfy it (Go requires unexported interface
// methods to be declared in the interface's own package to count).
type Location interface {
	IsLocation()
}

// Literal is an inline constant.
type Literal struct{ Value value.Value }

func (Literal) IsLocation() {}

// Local addresses a slot in the current frame.
type Local struct{ Index int }

func (Local) IsLocation() {}

// EnvSkip applies Skip parent-hops before resolving Inner, which is
// either a Local (cross-frame variable read) or a *vm.Function (force
// closure creation over the current frame).
type EnvSkip struct {
	Inner Location
	Skip  int
}

func (EnvSkip) IsLocation() {}

// Unknown is an unresolved global reference, resolved at run time.
type Unknown struct{ Sym *value.Symbol }

func (Unknown) IsLocation() {}

// GlobalFunction is the destination for publishing a top-level function
// define; Unknowns is the set of symbol names the function body
// referenced before they were known to exist.
type GlobalFunction struct {
	Sym      *value.Symbol
	Unknowns map[string]struct{}
}

func (GlobalFunction) IsLocation() {}

// Instruction is the closed instruction sum.
type Instruction interface {
	IsInstruction()
}

// Load and Store are pointer-identity instructions: the compiler holds
// onto the *Load/*Store it emits for a not-yet-resolved reference
// (via IMInsRef) and mutates Loc in place once the stamp resolver or
// block-pop global resolution settles on a concrete location.
type Load struct{ Loc Location }
type Store struct{ Loc Location }
type PushArgs struct{}
type Arg struct{}
type ArgPrepend struct{}
type Call struct{ NParams int }
type CallCC struct{}

// If splices True or False into the execution stream depending on
// truthiness. Either side may be nil (an empty arm).
type If struct {
	True, False *Instructions
}

// PopLocals restores the parent frame; appended as a one-instruction
// continuation after pushing a fresh callee frame.
type PopLocals struct{}

// MoveLocalRange rotates slots [Start:End) by Positions within the
// current frame, synthesized by the stamp resolver's argument shuffle.
type MoveLocalRange struct{ Start, End, Positions int }

func (*Load) IsInstruction()          {}
func (*Store) IsInstruction()         {}
func (PushArgs) IsInstruction()       {}
func (Arg) IsInstruction()            {}
func (ArgPrepend) IsInstruction()     {}
func (Call) IsInstruction()           {}
func (CallCC) IsInstruction()         {}
func (*If) IsInstruction()            {}
func (PopLocals) IsInstruction()      {}
func (MoveLocalRange) IsInstruction() {}

// popLocalsIns is the cached singleton sentinel, mirroring
// original_source/py/eval.ExecEnv.pop_local.
var popLocalsIns = &Instructions{Items: []Instruction{PopLocals{}}}

// PopLocalsIns returns the shared one-instruction PopLocals buffer.
func PopLocalsIns() *Instructions { return popLocalsIns }

// Instructions is a linear instruction stream plus a parallel, optional
// tags array used only when the stream is compiled in debuggable mode.
type Instructions struct {
	Items      []Instruction
	Tags       []*token.Tag
	Debuggable bool
}

// NewInstructions allocates an empty stream, optionally debuggable.
func NewInstructions(debuggable bool) *Instructions {
	ins := &Instructions{Debuggable: debuggable}
	if debuggable {
		ins.Tags = []*token.Tag{}
	}
	return ins
}

func (ins *Instructions) Len() int { return len(ins.Items) }

func (ins *Instructions) Append(i Instruction) {
	ins.Items = append(ins.Items, i)
	if ins.Debuggable {
		ins.Tags = append(ins.Tags, nil)
	}
}

func (ins *Instructions) AppendWithTag(i Instruction, tag *token.Tag) {
	ins.Items = append(ins.Items, i)
	if ins.Debuggable {
		ins.Tags = append(ins.Tags, tag)
	}
}

// PrependIns splices other's instructions before ins's own, used by the
// stamp resolver to install the argument-shuffle prefix.
func (ins *Instructions) PrependIns(other *Instructions) {
	ins.Items = append(append([]Instruction{}, other.Items...), ins.Items...)
	if ins.Debuggable && other.Debuggable {
		ins.Tags = append(append([]*token.Tag{}, other.Tags...), ins.Tags...)
	}
}

// EraseIns removes the instruction at index, used when a defining
// Store is elided because its target folded to a compile-time constant.
func (ins *Instructions) EraseIns(index int) {
	ins.Items = append(ins.Items[:index], ins.Items[index+1:]...)
	if ins.Debuggable {
		ins.Tags = append(ins.Tags[:index], ins.Tags[index+1:]...)
	}
}

// InsertIns inserts i at index, shifting the rest right.
func (ins *Instructions) InsertIns(index int, i Instruction) {
	ins.Items = append(ins.Items, nil)
	copy(ins.Items[index+1:], ins.Items[index:])
	ins.Items[index] = i
	if ins.Debuggable {
		ins.Tags = append(ins.Tags, nil)
		copy(ins.Tags[index+1:], ins.Tags[index:])
		ins.Tags[index] = nil
	}
}

// Truncate drops every instruction from index on, used to undo a
// speculatively-compiled expression that turned out constant.
func (ins *Instructions) Truncate(index int) {
	ins.Items = ins.Items[:index]
	if ins.Debuggable {
		ins.Tags = ins.Tags[:index]
	}
}

// Extend appends other's instructions in order.
func (ins *Instructions) Extend(other *Instructions) {
	ins.Items = append(ins.Items, other.Items...)
	if ins.Debuggable && other.Debuggable {
		ins.Tags = append(ins.Tags, other.Tags...)
	}
}
