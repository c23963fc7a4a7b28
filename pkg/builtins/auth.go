package builtins

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"sprog/pkg/value"
	"sprog/pkg/vm"
)

// DefineAuth registers hash-password/verify-password/jwt-sign/jwt-verify,
// adapted from the teacher's pkg/eval/auth_helpers.go (HashPassword/
// VerifyPassword/SignToken/VerifyToken) onto Scheme argument lists and
// association-list payloads instead of Go maps.
func DefineAuth(env *vm.Env) {
	definePy(env, "hash-password", false, func(_ *vm.Env, args []value.Value) (value.Value, error) {
		v, err := arg1(args)
		if err != nil {
			return nil, err
		}
		s, ok := v.(*value.String)
		if !ok {
			return nil, fmt.Errorf("hash-password expects a string")
		}
		hashed, err := bcrypt.GenerateFromPassword([]byte(s.Text), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		return value.NewString(string(hashed)), nil
	})

	definePyPred(env, "verify-password", func(args []value.Value) (bool, error) {
		password, hash, err := arg2(args)
		if err != nil {
			return false, err
		}
		ps, ok1 := password.(*value.String)
		hs, ok2 := hash.(*value.String)
		if !ok1 || !ok2 {
			return false, fmt.Errorf("verify-password expects two strings")
		}
		return bcrypt.CompareHashAndPassword([]byte(hs.Text), []byte(ps.Text)) == nil, nil
	})

	definePy(env, "jwt-sign", false, func(_ *vm.Env, args []value.Value) (value.Value, error) {
		if len(args) != 3 {
			return nil, fmt.Errorf("jwt-sign expects (alist secret expires-in)")
		}
		claims, err := alistToClaims(args[0])
		if err != nil {
			return nil, err
		}
		secret, ok := args[1].(*value.String)
		if !ok {
			return nil, fmt.Errorf("jwt-sign: secret must be a string")
		}
		expiresIn, ok := args[2].(*value.String)
		if !ok {
			return nil, fmt.Errorf("jwt-sign: expires-in must be a string")
		}
		dur, err := time.ParseDuration(expiresIn.Text)
		if err != nil {
			return nil, fmt.Errorf("jwt-sign: invalid duration: %v", err)
		}
		claims["exp"] = time.Now().Add(dur).Unix()

		token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		signed, err := token.SignedString([]byte(secret.Text))
		if err != nil {
			return nil, err
		}
		return value.NewString(signed), nil
	})

	definePy(env, "jwt-verify", false, func(_ *vm.Env, args []value.Value) (value.Value, error) {
		tokenStr, secret, err := arg2(args)
		if err != nil {
			return nil, err
		}
		ts, ok1 := tokenStr.(*value.String)
		ss, ok2 := secret.(*value.String)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("jwt-verify expects two strings")
		}
		tok, err := jwt.Parse(ts.Text, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return []byte(ss.Text), nil
		})
		if err != nil {
			return nil, err
		}
		claims, ok := tok.Claims.(jwt.MapClaims)
		if !ok || !tok.Valid {
			return nil, fmt.Errorf("invalid token")
		}
		return claimsToAlist(claims)
	})
}

// alistToClaims converts a Scheme association list ((key . value) ...)
// into jwt.MapClaims, keyed by symbol name.
func alistToClaims(v value.Value) (jwt.MapClaims, error) {
	entries, err := value.ToHostList(v)
	if err != nil {
		return nil, fmt.Errorf("jwt-sign: payload must be a list: %v", err)
	}
	claims := jwt.MapClaims{}
	for _, e := range entries {
		pair, ok := e.(*value.Pair)
		if !ok {
			return nil, fmt.Errorf("jwt-sign: payload entries must be (key . value) pairs")
		}
		sym, ok := pair.Car.(*value.Symbol)
		if !ok {
			return nil, fmt.Errorf("jwt-sign: payload key must be a symbol")
		}
		host, err := value.ToHost(pair.Cdr)
		if err != nil {
			return nil, err
		}
		claims[sym.Name] = host
	}
	return claims, nil
}

func claimsToAlist(claims jwt.MapClaims) (value.Value, error) {
	var pairs []value.Value
	for k, v := range claims {
		hv, err := value.FromHost(v)
		if err != nil {
			hv = value.NewString(fmt.Sprintf("%v", v))
		}
		pairs = append(pairs, value.NewPair(value.Intern(k), hv))
	}
	return value.List(pairs...), nil
}
