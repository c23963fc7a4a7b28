package trace

import (
	"fmt"
	"strings"

	"sprog/pkg/instr"
)

// Dump renders ins as an indented tree to t.D, recursing into If's
// true/false arms and tagging each line with its source position when
// the stream is debuggable — a direct specialization of
// debug.Dumper.run onto the closed Instruction sum instead of a
// generic hvtree() walk, since Go's type switch already knows every
// shape that can appear.
func Dump(t *Tree, ins *instr.Instructions) {
	if !t.Enabled || ins == nil {
		return
	}
	dumpIns(t, ins, 0)
}

func dumpIns(t *Tree, ins *instr.Instructions, level int) {
	indent := strings.Repeat(" ", level*4)
	for idx, i := range ins.Items {
		label := describeInstruction(i)
		if ins.Debuggable && idx < len(ins.Tags) && ins.Tags[idx] != nil {
			label += " {" + ins.Tags[idx].String() + "}"
		}
		t.D(indent, label)
		if ifIns, ok := i.(*instr.If); ok {
			t.D(indent, "  true:")
			dumpIns(t, ifIns.True, level+2)
			t.D(indent, "  false:")
			dumpIns(t, ifIns.False, level+2)
		}
	}
}

func describeInstruction(i instr.Instruction) string {
	switch v := i.(type) {
	case *instr.Load:
		return "Load(" + describeLocation(v.Loc) + ")"
	case *instr.Store:
		return "Store(" + describeLocation(v.Loc) + ")"
	case instr.Call:
		return fmt.Sprintf("Call(%d)", v.NParams)
	case instr.CallCC:
		return "CallCC"
	case *instr.If:
		return "If"
	case instr.PushArgs:
		return "PushArgs"
	case instr.Arg:
		return "Arg"
	case instr.ArgPrepend:
		return "ArgPrepend"
	case instr.PopLocals:
		return "PopLocals"
	case instr.MoveLocalRange:
		return fmt.Sprintf("MoveLocalRange(%d:%d by %d)", v.Start, v.End, v.Positions)
	default:
		return fmt.Sprintf("%T", i)
	}
}

func describeLocation(loc instr.Location) string {
	switch l := loc.(type) {
	case instr.Literal:
		return "Literal(" + l.Value.Sexpr() + ")"
	case instr.Local:
		return fmt.Sprintf("Local(%d)", l.Index)
	case instr.EnvSkip:
		return fmt.Sprintf("EnvSkip(%s, %d)", describeLocation(l.Inner), l.Skip)
	case instr.Unknown:
		return "Unknown(" + l.Sym.Name + ")"
	case instr.GlobalFunction:
		return "GlobalFunction(" + l.Sym.Name + ")"
	default:
		return fmt.Sprintf("%T", loc)
	}
}
