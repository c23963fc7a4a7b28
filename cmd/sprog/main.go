// Command sprog runs Scheme source files, or drops into a REPL when
// none are given, grounded on original_source/py/sprog.py.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"sprog/pkg/builtins"
	"sprog/pkg/compiler"
	"sprog/pkg/errs"
	"sprog/pkg/lexer"
	"sprog/pkg/reader"
	"sprog/pkg/trace"
	"sprog/pkg/value"
	"sprog/pkg/vm"
)

func main() {
	_ = godotenv.Load()

	verboseCompile := flag.Bool("verbose-compile", false, "trace compiler internals to stderr")
	verboseEval := flag.Bool("verbose-eval", false, "trace the evaluator loop to stderr")
	flag.Parse()

	env := vm.NewEnv()
	builtins.DefineBasics(env)
	if err := builtins.DefineLoops(env); err != nil {
		fmt.Fprintln(os.Stderr, "fatal: failed to bootstrap map/for-each:", err)
		os.Exit(1)
	}
	builtins.DefineAuth(env)
	builtins.DefineMail(env)
	builtins.DefineNetRepl(env)

	dbg := trace.NewTree()
	dbg.Child("comp").SetEnabled(*verboseCompile)
	dbg.Child("eval").SetEnabled(*verboseEval)

	files := flag.Args()
	if len(files) > 0 {
		for _, fn := range files {
			if err := runFile(env, dbg, fn); err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
		}
		return
	}

	repl(env, dbg)
}

func runFile(env *vm.Env, dbg *trace.Tree, filename string) error {
	src, err := lexer.OpenFile(filename)
	if err != nil {
		return fmt.Errorf("cannot open %s: %w", filename, err)
	}
	defer src.Close()

	ins, err := compiler.CompileModule(func() (value.Value, error) { return reader.Read(src) }, env, true)
	if err != nil {
		return err
	}
	trace.Dump(dbg.Child("comp"), ins)

	if _, err := env.EvalNoExcept(ins); err != nil {
		return err
	}
	return nil
}

// repl mirrors sprog.py's read_eval_print_loop: one line of input per
// iteration, NoValue/SingleLine errors silently re-prompt, any other
// *errs.Error prints and continues, EOF on stdin ends the session.
func repl(env *vm.Env, dbg *trace.Tree) {
	scanner := bufio.NewScanner(os.Stdin)
	track := 0
	for {
		fmt.Print("sprog> ")
		if !scanner.Scan() {
			fmt.Println()
			return
		}
		track++
		trackName := fmt.Sprintf("REPL#%d", track)
		src := lexer.NewStringSource(trackName, scanner.Text()+"\n")

		expr, err := reader.Read(src)
		if err != nil {
			if e, ok := err.(*errs.Error); ok && (e.ErrKind == errs.NoValue || e.ErrKind == errs.SingleLine) {
				continue
			}
			fmt.Println(err)
			continue
		}

		read := false
		ins, err := compiler.CompileModule(func() (value.Value, error) {
			if read {
				return nil, errs.New(errs.NoValue, "no value", nil, nil)
			}
			read = true
			return expr, nil
		}, env, true)
		if err != nil {
			fmt.Println(err)
			continue
		}
		trace.Dump(dbg.Child("comp"), ins)

		result, err := env.EvalNoExcept(ins)
		if err != nil {
			fmt.Println(err)
			continue
		}
		fmt.Println(result.Sexpr())
	}
}
