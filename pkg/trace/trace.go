// Package trace implements the toggleable debug-stream tree used by
// -verbose-compile/-verbose-eval, grounded on
// original_source/py/debug.py's StreamTree/Stream/Dumper.
package trace

import (
	"fmt"
	"os"
	"strings"
)

// Tree is one named node in the nested debug-stream hierarchy. Each
// node can be independently enabled; enabling a node also enables
// every descendant, matching StreamTree.set_enabled's recursive walk.
type Tree struct {
	Name     string
	Parent   *Tree
	Enabled  bool
	children map[string]*Tree
}

// NewTree builds the root of the standard sprog stream tree: comp,
// comp.value_defines, comp.stamp_resolver, and eval — the same layout
// original_source/py/debug.stream_tree wires up.
func NewTree() *Tree {
	root := &Tree{}
	comp := root.Add("comp")
	comp.Add("value_defines")
	comp.Add("stamp_resolver")
	root.Add("eval")
	return root
}

// Add creates a named child of t.
func (t *Tree) Add(name string) *Tree {
	if t.children == nil {
		t.children = map[string]*Tree{}
	}
	child := &Tree{Name: name, Parent: t}
	t.children[name] = child
	return child
}

// Child looks up a previously-added child by name, or nil.
func (t *Tree) Child(name string) *Tree {
	return t.children[name]
}

// SetEnabled toggles t and every descendant.
func (t *Tree) SetEnabled(enabled bool) {
	t.Enabled = enabled
	for _, c := range t.children {
		c.SetEnabled(enabled)
	}
}

// formatName renders the dotted path from just below the root down to
// t, e.g. "[comp.stamp_resolver]".
func (t *Tree) formatName() string {
	var names []string
	for p := t; p != nil && p.Parent != nil; p = p.Parent {
		names = append([]string{p.Name}, names...)
	}
	if len(names) == 0 {
		return ""
	}
	return "[" + strings.Join(names, ".") + "]"
}

// D writes a debug line to stderr if t is enabled.
func (t *Tree) D(what ...string) {
	if !t.Enabled {
		return
	}
	fmt.Fprintln(os.Stderr, "D"+t.formatName()+" "+strings.Join(what, ""))
}

// E writes an error-channel debug line to stderr if t is enabled.
func (t *Tree) E(what ...string) {
	if !t.Enabled {
		return
	}
	fmt.Fprintln(os.Stderr, "E"+t.formatName()+" "+strings.Join(what, ""))
}
