package compiler

import (
	"sort"

	"sprog/pkg/instr"
)

// stampResolver is the two-pass local-variable allocator run once per
// function body, grounded on original_source/py/comp.py's StampResolver.
//
// Pass 1 (setup) drops locals that turned out to be compile-time
// constants and renumbers the rest by definition order.
// Pass 2 (reorderLocals) moves closured locals to the front of the
// frame, since a closure's EnvSkip addressing needs every captured
// slot to sit at a stable, contiguous prefix regardless of where it
// was defined relative to non-captured locals.
// Pass 3 (getArgShuffles) turns that reordering into the minimal set
// of MoveLocalRange instructions needed to realize it at run time.
// Pass 4 (resolveLocals) rewrites every pending Load/Store operand
// still pointing at an IMStampedLocal into a concrete instr.Local.
type stampResolver struct {
	funcBlock *Block
	size      int
}

func newStampResolver(b *Block) *stampResolver {
	return &stampResolver{funcBlock: b}
}

func (sr *stampResolver) getSize() int { return sr.size }

// setup eliminates constant locals (those never overwritten and
// initialized to a known value) and assigns each surviving local a
// provisional TargetStamp equal to its position among survivors,
// in original definition order. refs not touching a dead local are
// returned unchanged for the caller to keep resolving.
func (sr *stampResolver) setup(refs []*IMInsRef) ([]*IMInsRef, error) {
	stamp := 0
	for _, sl := range sr.funcBlock.StampedLocals {
		if sl.IsConstant() {
			sl.TargetStamp = -1
			continue
		}
		sl.TargetStamp = stamp
		stamp++
	}

	var kept []*IMInsRef
	for _, r := range refs {
		if !r.resolveConstant() {
			kept = append(kept, r)
		}
	}
	return kept, nil
}

// moveClosured partitions the surviving locals so every closured one
// gets a TargetStamp in [0, nClosured), preserving each group's
// relative order. Returns the count of closured locals, which is also
// the boundary every non-closured local must shift past.
func (sr *stampResolver) moveClosured(sl []*IMStampedLocal) int {
	var closured, plain []*IMStampedLocal
	for _, l := range sl {
		if l.TargetStamp < 0 {
			continue
		}
		if l.Closured {
			closured = append(closured, l)
		} else {
			plain = append(plain, l)
		}
	}
	next := 0
	for _, l := range closured {
		l.TargetStamp = next
		next++
	}
	for _, l := range plain {
		l.TargetStamp = next
		next++
	}
	return len(closured)
}

// moveNonclosured is intentionally empty: locals that are not captured
// by any inner closure need no further reordering once moveClosured
// has placed the closured group at the frame's front — the remaining
// slots can stay in whatever order setup gave them.
func (sr *stampResolver) moveNonclosured(sl []*IMStampedLocal) {}

// reorderLocals runs the closured-first reordering and synthesizes the
// MoveLocalRange prefix that realizes it over the live frame, or nil
// if no surviving local actually needs to move.
func (sr *stampResolver) reorderLocals() (*instr.Instructions, error) {
	sr.moveClosured(sr.funcBlock.StampedLocals)
	sr.moveNonclosured(sr.funcBlock.StampedLocals)
	return sr.getArgShuffles(sr.funcBlock.StampedLocals)
}

// shuffleStep is one definition-order -> target-order displacement
// still pending realization as a MoveLocalRange.
type shuffleStep struct {
	from, to int
}

// getArgShuffles builds the MoveLocalRange instructions that carry the
// arguments from their DefineStamp slots to their TargetStamp slots;
// other locals hold nothing on entry and are not moved. Closured
// arguments move first, in slot order, a maximal run of them whose
// displacement (to - from) is constant moving as a single range. The
// plain arguments then sit together right after them and move as one
// range past the closured locals that are not arguments.
func (sr *stampResolver) getArgShuffles(sl []*IMStampedLocal) (*instr.Instructions, error) {
	var steps []shuffleStep
	maxTarget := -1
	nArgs, nClosured, nClosuredArgs := 0, 0, 0
	for _, l := range sl {
		if l.TargetStamp < 0 {
			continue
		}
		if l.TargetStamp > maxTarget {
			maxTarget = l.TargetStamp
		}
		if l.Closured {
			nClosured++
		}
		if !l.IsArg {
			continue
		}
		nArgs++
		if l.Closured {
			nClosuredArgs++
			if l.TargetStamp != l.DefineStamp {
				steps = append(steps, shuffleStep{from: l.DefineStamp, to: l.TargetStamp})
			}
		}
	}
	sr.size = maxTarget + 1
	shift := nClosured - nClosuredArgs
	if len(steps) == 0 && (shift == 0 || nArgs == nClosuredArgs) {
		return nil, nil
	}

	sort.Slice(steps, func(i, j int) bool { return steps[i].from < steps[j].from })

	ins := instr.NewInstructions(false)
	i := 0
	for i < len(steps) {
		start := steps[i].from
		delta := steps[i].to - steps[i].from
		j := i + 1
		for j < len(steps) && steps[j].from == steps[j-1].from+1 && steps[j].to-steps[j].from == delta {
			j++
		}
		end := steps[j-1].from + 1
		ins.Append(instr.MoveLocalRange{Start: start, End: end, Positions: delta})
		i = j
	}
	if shift > 0 && nArgs > nClosuredArgs {
		ins.Append(instr.MoveLocalRange{Start: nClosuredArgs, End: nArgs, Positions: shift})
	}
	return ins, nil
}

// resolveLocals rewrites every pending reference that still targets a
// surviving IMStampedLocal into a concrete instr.Local at its final
// TargetStamp slot, and drops those references from the pending list;
// the others stay pending for the enclosing blocks.
func (sr *stampResolver) resolveLocals() error {
	var kept []*IMInsRef
	for _, r := range sr.funcBlock.IMInsRefList {
		stamped, ok := r.getStamped().(*IMStampedLocal)
		if !ok || stamped.TargetStamp < 0 {
			kept = append(kept, r)
			continue
		}
		newLoc := instr.Location(instr.Local{Index: stamped.TargetStamp})
		if es, ok := r.loc().(instr.EnvSkip); ok {
			newLoc = instr.EnvSkip{Inner: newLoc, Skip: es.Skip}
		}
		r.setLoc(newLoc)
	}
	sr.funcBlock.IMInsRefList = kept
	return nil
}
