package builtins

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"sprog/pkg/compiler"
	"sprog/pkg/errs"
	"sprog/pkg/lexer"
	"sprog/pkg/reader"
	"sprog/pkg/value"
	"sprog/pkg/vm"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// DefineNetRepl registers ws-repl-serve, a network-reachable REPL in
// the spirit of the teacher's websocket.upgrade/send/read trio
// (pkg/eval/ws_helpers.go, pkg/vm/websocket.go): each incoming text
// frame is read as one top-level form, compiled and evaluated against
// the shared Env, and its result's sexpr() written back as a reply.
//
// Evaluation is serialized behind a mutex: the interpreter loop is the
// sole driver of one Env's ExecEnv, so concurrent HTTP goroutines can
// never be allowed to call into it at once.
func DefineNetRepl(env *vm.Env) {
	var mu sync.Mutex

	definePy(env, "ws-repl-serve", false, func(_ *vm.Env, args []value.Value) (value.Value, error) {
		v, err := arg1(args)
		if err != nil {
			return nil, err
		}
		n, ok := v.(*value.Number)
		if !ok {
			return nil, fmt.Errorf("ws-repl-serve expects a port number")
		}
		addr := fmt.Sprintf(":%d", n.I)

		mux := http.NewServeMux()
		mux.HandleFunc("/repl", func(w http.ResponseWriter, r *http.Request) {
			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			defer conn.Close()
			conn.SetReadLimit(512 * 1024)

			for {
				msgType, msg, err := conn.ReadMessage()
				if err != nil {
					return
				}
				if msgType != websocket.TextMessage {
					continue
				}

				reply := evalOneLocked(&mu, env, string(msg))
				if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
					return
				}
			}
		})

		go http.ListenAndServe(addr, mux)
		return value.NewVoid(), nil
	})
}

func evalOneLocked(mu *sync.Mutex, env *vm.Env, src string) string {
	mu.Lock()
	defer mu.Unlock()

	source := lexer.NewStringSource("ws-repl", src)
	expr, err := reader.Read(source)
	if err != nil {
		return err.Error()
	}

	first := true
	ins, err := compiler.CompileModule(func() (value.Value, error) {
		if !first {
			return nil, errs.New(errs.NoValue, "no value", nil, nil)
		}
		first = false
		return expr, nil
	}, env, false)
	if err != nil {
		return err.Error()
	}

	result, err := env.EvalNoExcept(ins)
	if err != nil {
		return err.Error()
	}
	return result.Sexpr()
}
