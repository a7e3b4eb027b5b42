// Package features reads and writes the generated configuration header.
//
// The artifact is plain C preprocessor text, but only a narrow convention
// of it: an include guard, section comments, numeric `#define SYM 1`
// lines, string defines, and `/* #undef SYM */` markers for symbols that
// are known but disabled. The encoder renders a resolution record into
// that convention; the decoder reads any conforming file back into a
// line-level document without consulting a registry.
package features

import (
	"fmt"
)

// Document is the parsed artifact: the guard bookkeeping plus every
// meaningful line in input order. Blank lines are dropped.
type Document struct {
	// Guard is the symbol of the first #ifndef, empty when absent.
	Guard string
	// GuardDefine is the symbol of the first bare #define, which arms
	// the guard in a well-formed artifact.
	GuardDefine string
	// Terminated reports whether an #endif closed the file.
	Terminated bool

	Lines []Line
}

// Line is one comment, define, disabled marker, or guard line.
type Line struct {
	// Number is the 1-based position in the input.
	Number int
	Kind   LineKind
	// Symbol is set for defines and disabled markers.
	Symbol string
	// Value is the quoted content of a string define.
	Value string
	// Text is the inner text of a comment.
	Text string
}

type LineKind int

const (
	// KindComment is a /* ... */ line, usually a section heading.
	KindComment LineKind = iota
	// KindDefine is an active numeric define: #define SYM 1.
	KindDefine
	// KindString is an active string define: #define SYM "...".
	KindString
	// KindDisabled is a disabled marker: /* #undef SYM */.
	KindDisabled
	// KindGuardOpen is an #ifndef line.
	KindGuardOpen
	// KindGuardArm is a bare #define with no value.
	KindGuardArm
	// KindGuardClose is an #endif line.
	KindGuardClose
)

// ParseError reports the first syntactically unrecognizable line.
type ParseError struct {
	Line int
	Text string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: unrecognized artifact line %q", e.Line, e.Text)
}

// EmitError reports a failed artifact write. The emitter never retries;
// the caller decides what a failed sink means.
type EmitError struct {
	Path string
	Err  error
}

func (e *EmitError) Error() string {
	return fmt.Sprintf("writing artifact %s: %v", e.Path, e.Err)
}

func (e *EmitError) Unwrap() error {
	return e.Err
}
