// Package lexer turns a file or string into the character-at-a-time,
// line-tagged stream the reader consumes, grounded on
// original_source/py/source.py's CharIterator/File/String.
package lexer

import (
	"bufio"
	"io"
	"os"
	"strings"

	"sprog/pkg/token"
)

// Source yields one rune at a time and reports the source position of
// the rune most recently returned. Next returns ok=false once input
// is exhausted, mirroring CharIterator raising StopIteration.
type Source interface {
	Next() (rune, bool)
	Tag() *token.Tag
}

// iterator is the shared line-buffered implementation behind both
// FileSource and StringSource.
type iterator struct {
	name    string
	reader  *bufio.Reader
	lineStr string
	hadLine bool
	row     int
	column  int
	line    *token.Line
}

func newIterator(name string, r io.Reader) *iterator {
	return &iterator{name: name, reader: bufio.NewReader(r)}
}

func (it *iterator) nextLine() bool {
	if it.hadLine {
		it.row++
	}
	line, _ := it.reader.ReadString('\n')
	if len(line) == 0 {
		it.hadLine = false
		it.lineStr = ""
		return false
	}
	it.lineStr = line
	it.hadLine = true
	it.column = 0
	it.line = nil
	return true
}

func (it *iterator) Next() (rune, bool) {
	if it.lineStr == "" {
		if !it.nextLine() {
			return 0, false
		}
	} else {
		it.column++
		if it.column == len(it.lineStr) {
			if !it.nextLine() {
				return 0, false
			}
		}
	}
	return rune(it.lineStr[it.column]), true
}

func (it *iterator) Tag() *token.Tag {
	if it.line == nil {
		it.line = &token.Line{Source: it.name, Text: it.lineStr, Row: it.row + 1}
	}
	return &token.Tag{Line: it.line, Column: it.column + 1}
}

// FileSource reads from an opened file, closed explicitly by the
// caller once reading finishes.
type FileSource struct {
	*iterator
	f *os.File
}

// OpenFile opens name for reading and wraps it as a Source.
func OpenFile(name string) (*FileSource, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	return &FileSource{iterator: newIterator(name, f), f: f}, nil
}

func (s *FileSource) Close() error { return s.f.Close() }

// StringSource reads from an in-memory string, useful for the REPL and
// for compiling bootstrap source at startup.
type StringSource struct {
	*iterator
}

// NewStringSource wraps s as a named Source.
func NewStringSource(name, s string) *StringSource {
	return &StringSource{iterator: newIterator(name, strings.NewReader(s))}
}
