// Command sprog-inspect compiles a file or an inline expression and
// prints its instruction tree without executing it, grounded on the
// teacher's cmd/inspect_bytecode and on original_source/py/debug.py's
// Dumper.
package main

import (
	"flag"
	"fmt"
	"os"

	"sprog/pkg/builtins"
	"sprog/pkg/compiler"
	"sprog/pkg/lexer"
	"sprog/pkg/reader"
	"sprog/pkg/trace"
	"sprog/pkg/value"
	"sprog/pkg/vm"
)

func main() {
	expr := flag.String("e", "", "inspect a single inline expression instead of a file")
	flag.Parse()

	env := vm.NewEnv()
	builtins.DefineBasics(env)
	if err := builtins.DefineLoops(env); err != nil {
		fmt.Fprintln(os.Stderr, "fatal: failed to bootstrap map/for-each:", err)
		os.Exit(1)
	}

	dbg := trace.NewTree().Child("comp")
	dbg.SetEnabled(true)

	var read func() (value.Value, error)
	if *expr != "" {
		src := lexer.NewStringSource("inspect", *expr)
		read = func() (value.Value, error) { return reader.Read(src) }
	} else {
		args := flag.Args()
		if len(args) != 1 {
			fmt.Fprintln(os.Stderr, "usage: sprog-inspect <file> | -e '<expr>'")
			os.Exit(1)
		}
		src, err := lexer.OpenFile(args[0])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		defer src.Close()
		read = func() (value.Value, error) { return reader.Read(src) }
	}

	ins, err := compiler.CompileModule(read, env, true)
	if err != nil {
		fmt.Fprintln(os.Stderr, "compile error:", err)
		os.Exit(1)
	}

	trace.Dump(dbg, ins)
}
