package builtins

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/gomail.v2"

	"sprog/pkg/value"
	"sprog/pkg/vm"
)

// DefineMail registers send-mail, adapted from the teacher's
// pkg/eval/eval.go mail.send built-in (gomail.NewMessage +
// gomail.NewDialer/DialAndSend) onto an association-list argument:
// (send-mail '((to . "a@b.com") (subject . "hi") (body . "...") (html . "...")))
func DefineMail(env *vm.Env) {
	definePy(env, "send-mail", false, func(_ *vm.Env, args []value.Value) (value.Value, error) {
		v, err := arg1(args)
		if err != nil {
			return nil, err
		}
		fields, err := alistStrings(v)
		if err != nil {
			return nil, err
		}

		host := os.Getenv("SMTP_HOST")
		portStr := os.Getenv("SMTP_PORT")
		user := os.Getenv("SMTP_USER")
		pass := os.Getenv("SMTP_PASS")
		if host == "" || portStr == "" {
			return nil, fmt.Errorf("send-mail: SMTP_HOST/SMTP_PORT not set")
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("send-mail: invalid SMTP_PORT: %v", err)
		}

		m := gomail.NewMessage()
		m.SetHeader("From", user)
		m.SetHeader("To", fields["to"])
		m.SetHeader("Subject", fields["subject"])
		if html, ok := fields["html"]; ok && html != "" {
			m.SetBody("text/html", html)
		} else {
			m.SetBody("text/plain", fields["body"])
		}

		d := gomail.NewDialer(host, port, user, pass)
		if err := d.DialAndSend(m); err != nil {
			return nil, fmt.Errorf("send-mail: %v", err)
		}
		return value.True(), nil
	})
}

// alistStrings reads an association list into a string-keyed map,
// expecting string values (symbol or string keys, string values).
func alistStrings(v value.Value) (map[string]string, error) {
	entries, err := value.ToHostList(v)
	if err != nil {
		return nil, fmt.Errorf("expected a list of (key . value) pairs: %v", err)
	}
	out := map[string]string{}
	for _, e := range entries {
		pair, ok := e.(*value.Pair)
		if !ok {
			return nil, fmt.Errorf("expected (key . value) pairs")
		}
		var key string
		switch k := pair.Car.(type) {
		case *value.Symbol:
			key = k.Name
		case *value.String:
			key = k.Text
		default:
			return nil, fmt.Errorf("expected a symbol or string key")
		}
		s, ok := pair.Cdr.(*value.String)
		if !ok {
			return nil, fmt.Errorf("expected a string value for key %q", key)
		}
		out[key] = s.Text
	}
	return out, nil
}
