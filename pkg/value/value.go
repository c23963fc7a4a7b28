// Package value implements the tagged-variant Scheme value model: the
// data-only kinds (Null, Pair, Symbol, Number, String, Void, Quote).
// The callable kinds (Function, Closure, Continuation, Generic,
// BinaryOp, Apply) and the Error kind live in pkg/vm and pkg/errs
// respectively, so that this package never needs to import the
// interpreter — they satisfy the Value interface structurally.
package value

import (
	"fmt"
	"strconv"
	"strings"

	"sprog/pkg/token"
)

// Value is the root of the tagged variant. Every concrete kind reports
// its Kind for dense switch dispatch and knows how to print itself.
type Value interface {
	Kind() Kind
	Sexpr() string
}

// Tagged is implemented by values that carry an optional source
// position, used for error reporting and debug instruction tags.
type Tagged interface {
	Tag() *token.Tag
	SetTag(*token.Tag)
}

type tagged struct {
	tag *token.Tag
}

func (t *tagged) Tag() *token.Tag     { return t.tag }
func (t *tagged) SetTag(tg *token.Tag) { t.tag = tg }

// Null is the empty list.
type Null struct{ tagged }

func NewNull() *Null           { return &Null{} }
func (*Null) Kind() Kind       { return KindNull }
func (*Null) Sexpr() string    { return "()" }

// Pair exclusively owns its two children.
type Pair struct {
	tagged
	Car, Cdr Value
}

func NewPair(car, cdr Value) *Pair { return &Pair{Car: car, Cdr: cdr} }
func (*Pair) Kind() Kind           { return KindPair }

func (p *Pair) Sexpr() string {
	var b strings.Builder
	b.WriteByte('(')
	cur := p
	for {
		b.WriteString(cur.Car.Sexpr())
		switch cdr := cur.Cdr.(type) {
		case *Null:
			b.WriteByte(')')
			return b.String()
		case *Pair:
			b.WriteByte(' ')
			cur = cdr
		default:
			b.WriteString(" . ")
			b.WriteString(cdr.Sexpr())
			b.WriteByte(')')
			return b.String()
		}
	}
}

// List builds a proper list from a host slice of values, Null-terminated.
func List(items ...Value) Value {
	var tail Value = NewNull()
	for i := len(items) - 1; i >= 0; i-- {
		tail = NewPair(items[i], tail)
	}
	return tail
}

// Symbol is interned process-wide by name: eq? is pointer identity,
// equal? is name equality. The two boolean-valued symbols are "true"
// and "false"; every other value is truthy.
type Symbol struct {
	tagged
	Name string
}

var internTable = map[string]*Symbol{}

// Intern returns the canonical *Symbol for name, allocating it on
// first use. Two calls with the same name return the same pointer.
func Intern(name string) *Symbol {
	if s, ok := internTable[name]; ok {
		return s
	}
	s := &Symbol{Name: name}
	internTable[name] = s
	return s
}

func (*Symbol) Kind() Kind        { return KindSymbol }
func (s *Symbol) Sexpr() string   { return s.Name }

// True and False are the two canonical boolean symbols.
func True() *Symbol  { return Intern("true") }
func False() *Symbol { return Intern("false") }

// IsTrue reports whether v is truthy: anything but the symbol "false".
func IsTrue(v Value) bool {
	s, ok := v.(*Symbol)
	return !ok || s.Name != "false"
}

// IsFalse is the complement of IsTrue.
func IsFalse(v Value) bool {
	s, ok := v.(*Symbol)
	return ok && s.Name == "false"
}

// Number preserves whichever of integer/float form the reader parsed.
type Number struct {
	tagged
	IsFloat bool
	I       int64
	F       float64
}

func NewInt(n int64) *Number      { return &Number{I: n} }
func NewFloat(n float64) *Number  { return &Number{IsFloat: true, F: n} }
func (*Number) Kind() Kind        { return KindNumber }

func (n *Number) Float() float64 {
	if n.IsFloat {
		return n.F
	}
	return float64(n.I)
}

func (n *Number) Sexpr() string {
	if n.IsFloat {
		return strconv.FormatFloat(n.F, 'g', -1, 64)
	}
	return strconv.FormatInt(n.I, 10)
}

// String is raw text.
type String struct {
	tagged
	Text string
}

func NewString(s string) *String { return &String{Text: s} }
func (*String) Kind() Kind       { return KindString }
func (s *String) Sexpr() string  { return `"` + s.Text + `"` }

// Void is the result of forms with no meaningful value.
type Void struct{ tagged }

func NewVoid() *Void        { return &Void{} }
func (*Void) Kind() Kind    { return KindVoid }
func (*Void) Sexpr() string { return "#void" }

// Quote wraps an unevaluated form.
type Quote struct {
	tagged
	Inner Value
}

func NewQuote(v Value) *Quote { return &Quote{Inner: v} }
func (*Quote) Kind() Kind     { return KindQuote }
func (q *Quote) Sexpr() string {
	return "'" + q.Inner.Sexpr()
}

// Equal is structural equality: pairs and quotes recurse, leaf kinds
// compare by stored value, Null/Void compare equal to their own kind.
// This completes the generic fields()-based walk that original_source's
// cons.Base.fields() implies but never assembles into an equal method.
func Equal(a, b Value) bool {
	if a.Kind() != b.Kind() {
		return false
	}
	switch av := a.(type) {
	case *Null:
		return true
	case *Void:
		return true
	case *Symbol:
		return av.Name == b.(*Symbol).Name
	case *Number:
		bv := b.(*Number)
		return av.Float() == bv.Float() && av.IsFloat == bv.IsFloat
	case *String:
		return av.Text == b.(*String).Text
	case *Pair:
		bv := b.(*Pair)
		return Equal(av.Car, bv.Car) && Equal(av.Cdr, bv.Cdr)
	case *Quote:
		return Equal(av.Inner, b.(*Quote).Inner)
	default:
		// Callable/Error kinds compare by reference identity; there is
		// no structural content to compare.
		return a == b
	}
}

// FromHost converts a Go primitive into the Value variant, as needed by
// built-ins written against host types.
func FromHost(x interface{}) (Value, error) {
	switch v := x.(type) {
	case Value:
		return v, nil
	case bool:
		if v {
			return True(), nil
		}
		return False(), nil
	case int:
		return NewInt(int64(v)), nil
	case int64:
		return NewInt(v), nil
	case float64:
		return NewFloat(v), nil
	case string:
		return NewString(v), nil
	case []Value:
		return List(v...), nil
	default:
		return nil, fmt.Errorf("unable to interpret value: %v", x)
	}
}

// ToHost converts a Value into the host primitive built-ins expect.
func ToHost(v Value) (interface{}, error) {
	switch vv := v.(type) {
	case *String:
		return vv.Text, nil
	case *Number:
		if vv.IsFloat {
			return vv.F, nil
		}
		return vv.I, nil
	case *Symbol:
		return vv.Name, nil
	default:
		return nil, fmt.Errorf("unable to interpret value: %s", v.Sexpr())
	}
}

// ToHostList walks a proper Pair/Null list into a Go slice, erroring on
// improper lists. Grounded on original_source/py/cons_util.py's
// traverse_list generator.
func ToHostList(v Value) ([]Value, error) {
	var out []Value
	for {
		switch cur := v.(type) {
		case *Pair:
			out = append(out, cur.Car)
			v = cur.Cdr
		case *Null:
			return out, nil
		default:
			return nil, fmt.Errorf("malformed list: %s", v.Sexpr())
		}
	}
}
