// Package reader implements the recursive-descent S-expression parser,
// a direct port of original_source/py/parse.py's parse_iterator closure
// family onto a *parser receiver instead of nested closures over a
// shared iterator variable.
package reader

import (
	"strconv"
	"strings"

	"sprog/pkg/errs"
	"sprog/pkg/lexer"
	"sprog/pkg/token"
	"sprog/pkg/value"
)

type term int

const (
	termEOF term = iota
	termCloseParen
	termWhitespace
	termDQuote
	termDot
	termMatched
	termUnexpected
)

type parser struct {
	src lexer.Source
}

// Read parses exactly one S-expression from src. It returns an
// *errs.Error of kind NoValue, EOF, or SingleLine for the conditions
// spec.md §6 calls out, or a Parse error for other malformed input.
func Read(src lexer.Source) (value.Value, error) {
	p := &parser{src: src}
	v, _, err := p.parseUnknown()
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, errs.New(errs.NoValue, "no value", nil, nil)
	}
	return v, nil
}

func isSpace(ch rune) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
}

func (p *parser) parseUnknown() (value.Value, term, error) {
	var pending rune
	hasPending := false
	for {
		ch, ok := pending, true
		if hasPending {
			hasPending = false
		} else {
			ch, ok = p.src.Next()
		}
		if !ok {
			return nil, termEOF, nil
		}
		switch {
		case isSpace(ch):
			continue
		case ch == ')':
			return nil, termCloseParen, nil
		case ch == '.':
			return nil, termDot, nil
		case ch == '(':
			return p.parseList()
		case ch == '"':
			return p.parseString()
		case ch == '\'':
			tag := p.src.Tag()
			quoted, t, err := p.parseUnknown()
			if err != nil {
				return nil, 0, err
			}
			q := value.NewQuote(quoted)
			q.SetTag(tag)
			return q, t, nil
		case ch == ';':
			next, err := p.parseSinglelineComment()
			if err != nil {
				return nil, 0, err
			}
			pending, hasPending = next, true
		case ch == '#':
			ch2, ok2 := p.src.Next()
			if !ok2 {
				return nil, 0, errs.New(errs.EOF, "unexpected EOF", nil, p.src.Tag())
			}
			if ch2 == '|' {
				if err := p.parseMultilineComment(); err != nil {
					return nil, 0, err
				}
			} else {
				return p.parseSymbolish("#" + string(ch2))
			}
		default:
			return p.parseSymbolish(string(ch))
		}
	}
}

func (p *parser) parseList() (value.Value, term, error) {
	tag := p.src.Tag()
	element, t, err := p.parseUnknown()
	if err != nil {
		return nil, 0, err
	}
	if element == nil {
		if t != termCloseParen {
			return nil, 0, errs.New(errs.Parse, "weird list", nil, tag)
		}
		n := value.NewNull()
		n.SetTag(tag)
		return n, termMatched, nil
	}

	var head, current *value.Pair
	for {
		switch t {
		case termCloseParen:
			tail := value.NewNull()
			switch {
			case element == nil:
				tail.SetTag(tag)
				current.Cdr = tail
			case current != nil:
				tail.SetTag(p.src.Tag())
				pr := value.NewPair(element, tail)
				pr.SetTag(tag)
				current.Cdr = pr
			default:
				tail.SetTag(p.src.Tag())
				pr := value.NewPair(element, tail)
				pr.SetTag(tag)
				head = pr
			}
			return head, termMatched, nil

		case termDot:
			tag = p.src.Tag()
			element, t, err = p.parseUnknown()
			if err != nil {
				return nil, 0, err
			}
			if t != termCloseParen {
				_, t2, err2 := p.parseCloseParen()
				if err2 != nil {
					return nil, 0, err2
				}
				t = t2
			}
			if t != termCloseParen {
				return nil, 0, errs.New(errs.Parse, "malformed dot notation", nil, p.src.Tag())
			}
			current.Cdr = element
			return head, termMatched, nil

		case termEOF:
			return nil, 0, errs.New(errs.EOF, "non-terminated list", nil, p.src.Tag())

		default:
			pr := value.NewPair(element, nil)
			pr.SetTag(tag)
			if current != nil {
				current.Cdr = pr
			} else {
				head = pr
			}
			current = pr
		}

		tag = p.src.Tag()
		element, t, err = p.parseUnknown()
		if err != nil {
			return nil, 0, err
		}
	}
}

// parseSinglelineComment skips to the first character on a new line
// and returns that character for the caller to parse.
// A source that cannot report tags (can_tag false in the original)
// cannot support single-line comments at all.
func (p *parser) parseSinglelineComment() (rune, error) {
	tag := p.src.Tag()
	if tag == nil {
		return 0, errs.New(errs.SingleLine, "single line comment not supported", nil, nil)
	}
	row := tag.Line.Row
	for {
		ch, ok := p.src.Next()
		if !ok {
			return 0, errs.New(errs.NoValue, "no value", nil, nil)
		}
		if p.src.Tag().Line.Row != row {
			return ch, nil
		}
	}
}

func (p *parser) parseMultilineComment() error {
	for {
		ch, ok := p.src.Next()
		if !ok {
			return errs.New(errs.EOF, "non-terminated comment", nil, p.src.Tag())
		}
		if ch == '|' {
			ch2, ok2 := p.src.Next()
			if !ok2 {
				return errs.New(errs.EOF, "non-terminated comment", nil, p.src.Tag())
			}
			if ch2 == '#' {
				return nil
			}
		}
	}
}

func (p *parser) parseString() (value.Value, term, error) {
	tag := p.src.Tag()
	var sb strings.Builder
	for {
		ch, ok := p.src.Next()
		if !ok {
			return nil, 0, errs.New(errs.EOF, "non-terminated string", nil, p.src.Tag())
		}
		switch ch {
		case '\\':
			ch2, ok2 := p.src.Next()
			if !ok2 {
				return nil, 0, errs.New(errs.EOF, "non-terminated string", nil, p.src.Tag())
			}
			switch ch2 {
			case 'n':
				sb.WriteByte('\n')
			case '\\':
				sb.WriteByte('\\')
			default:
				return nil, 0, errs.New(errs.Parse, "invalid escape character: \\"+string(ch2), nil, p.src.Tag())
			}
		case '"':
			s := value.NewString(sb.String())
			s.SetTag(tag)
			return s, termDQuote, nil
		default:
			sb.WriteRune(ch)
		}
	}
}

// parseCloseParen skips whitespace looking for a closing paren, used
// after a dot-notation tail value to confirm the list actually ends.
// original_source/py/parse.py returns an undefined TERM_UNEXPECTED
// name here on a stray character; termUnexpected realizes the
// evidently-intended "anything but close-paren is an error" behavior.
func (p *parser) parseCloseParen() (value.Value, term, error) {
	for {
		ch, ok := p.src.Next()
		if !ok {
			return nil, 0, errs.New(errs.EOF, "unexpected EOF", nil, p.src.Tag())
		}
		if isSpace(ch) {
			continue
		}
		if ch == ')' {
			return nil, termCloseParen, nil
		}
		return nil, termUnexpected, nil
	}
}

func (p *parser) parseSymbolish(init string) (value.Value, term, error) {
	tag := p.src.Tag()
	s := init
	for {
		ch, ok := p.src.Next()
		if !ok {
			return createSymbolish(s, tag), termEOF, nil
		}
		switch ch {
		case ' ', '\n':
			return createSymbolish(s, tag), termWhitespace, nil
		case ')':
			return createSymbolish(s, tag), termCloseParen, nil
		default:
			s += string(ch)
		}
	}
}

func createSymbolish(s string, tag *token.Tag) value.Value {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		v := value.NewInt(n)
		v.SetTag(tag)
		return v
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		v := value.NewFloat(f)
		v.SetTag(tag)
		return v
	}
	sym := value.Intern(s)
	sym.SetTag(tag)
	return sym
}
