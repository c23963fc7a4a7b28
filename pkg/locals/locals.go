// Package locals implements the fixed-size local-variable frame used by
// closures and calls, grounded on original_source/py/function.py's
// Locals class. A frame is a flat slot array plus a parent link; level
// > 0 on lookup/assign walks Parent that many hops, the same recursion
// the Python class uses for EnvSkip-addressed cross-frame variables.
package locals

import "sprog/pkg/value"

// Locals is one call frame's variable storage.
type Locals struct {
	Mem    []value.Value
	Parent *Locals
}

// New allocates a frame of size slots, chained to parent (nil at the
// outermost function nesting level).
func New(size int, parent *Locals) *Locals {
	return &Locals{Mem: make([]value.Value, size), Parent: parent}
}

// frameAt walks level parent-hops up from l.
func (l *Locals) frameAt(level int) *Locals {
	f := l
	for i := 0; i < level; i++ {
		f = f.Parent
	}
	return f
}

// Lookup reads slot index in the frame level hops up.
func (l *Locals) Lookup(index, level int) value.Value {
	return l.frameAt(level).Mem[index]
}

// Assign writes slot index in the frame level hops up.
func (l *Locals) Assign(index, level int, v value.Value) {
	l.frameAt(level).Mem[index] = v
}

// ApplyArgs copies args into the leading slots of this frame, the
// shape every Call leaves behind before running the callee body.
func (l *Locals) ApplyArgs(args []value.Value) {
	copy(l.Mem, args)
}

// MoveRange extracts the block [start:end), closes the gap it leaves,
// then reinserts the block at start+positions of the shrunk slice —
// the same list-splice the stamp resolver's synthesized
// MoveLocalRange instruction expects (original_source/py/function.py's
// Locals.move_range, a Python list-slice delete-then-insert).
func (l *Locals) MoveRange(start, end, positions int) {
	if end <= start {
		return
	}
	items := append([]value.Value{}, l.Mem[start:end]...)
	rest := append(append([]value.Value{}, l.Mem[:start]...), l.Mem[end:]...)
	at := start + positions
	out := make([]value.Value, 0, len(l.Mem))
	out = append(out, rest[:at]...)
	out = append(out, items...)
	out = append(out, rest[at:]...)
	copy(l.Mem, out)
}

// Depth counts this frame plus all of its ancestors.
func (l *Locals) Depth() int {
	n := 0
	for f := l; f != nil; f = f.Parent {
		n++
	}
	return n
}

// Skip walks n parent-hops up from l, mirroring the lookup/assign
// recursion; used by EnvSkip(Function, skip) to capture a closure's
// inherited frame.
func (l *Locals) Skip(n int) *Locals {
	f := l
	for i := 0; i < n && f != nil; i++ {
		f = f.Parent
	}
	return f
}
