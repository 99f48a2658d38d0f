// Package depfile reads the Makefile-style dependency files written by
// compilers such as `cc -MMD -MF <file>`:
//
//	target: first.c include/first.h \
//	  include/with\ space.h
//
// Only the prerequisite list of the first rule is returned.
package depfile

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"
)

// ErrInvalidEscape is returned when a backslash is followed by anything other
// than a backslash, a space or a newline.
var ErrInvalidEscape = errors.New("invalid escape sequence")

// EscapeError describes where an invalid escape was found.
type EscapeError struct {
	Char   rune
	Offset int // byte offset of the backslash
}

func (e *EscapeError) Error() string {
	return fmt.Sprintf("%v \\%q at offset %d", ErrInvalidEscape, e.Char, e.Offset)
}

func (e *EscapeError) Unwrap() error { return ErrInvalidEscape }

func isBlank(c byte) bool { return c == ' ' || c == '\t' }

// Parse returns the prerequisites named in text, in order. Duplicates are kept.
//
// Everything up to and including the first ':' is the target and is discarded.
// An unescaped newline ends the rule. When no prerequisite follows the target
// the result is a single empty path.
func Parse(text string) ([]string, error) {
	i := strings.IndexByte(text, ':')
	if i < 0 {
		return []string{""}, nil
	}
	i++
	for i < len(text) && isBlank(text[i]) {
		i++
	}

	var (
		out     []string
		current strings.Builder
	)
	flush := func() {
		if current.Len() > 0 {
			out = append(out, current.String())
			current.Reset()
		}
	}

scan:
	for ; i < len(text); i++ {
		c := text[i]
		switch {
		case c == '\\':
			if i+1 >= len(text) {
				// a trailing lone backslash continues onto nothing
				break scan
			}
			next := text[i+1]
			switch next {
			case '\\', ' ':
				current.WriteByte(next)
			case '\n':
				// line continuation
			default:
				r, _ := utf8.DecodeRuneInString(text[i+1:])
				return nil, &EscapeError{Char: r, Offset: i}
			}
			i++
		case isBlank(c):
			flush()
		case c == '\n':
			break scan
		default:
			current.WriteByte(c)
		}
	}

	if current.Len() > 0 || len(out) == 0 {
		out = append(out, current.String())
	}
	return out, nil
}

// ParseFile reads and parses the dependency file at path.
func ParseFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	deps, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return deps, nil
}

var escaper = strings.NewReplacer(`\`, `\\`, ` `, `\ `)

// Escape escapes a single path for use in a dependency file.
func Escape(path string) string { return escaper.Replace(path) }

// Format writes a rule for target with one prerequisite per continuation line.
// Paths must not contain newlines or tabs.
func Format(target string, paths []string) string {
	var sb strings.Builder
	sb.WriteString(target)
	sb.WriteString(":")
	for i, p := range paths {
		if i > 0 {
			sb.WriteString(" \\\n ")
		}
		sb.WriteString(" ")
		sb.WriteString(Escape(p))
	}
	sb.WriteString("\n")
	return sb.String()
}
