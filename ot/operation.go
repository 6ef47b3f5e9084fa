package ot

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrMalformedOperation is returned when an operation's declared base length
// does not match the text it is applied against, or when a structural form
// cannot be decoded into a valid operation. It is always fatal to the current
// session; an operation is never partially applied.
var ErrMalformedOperation = errors.New("malformed operation")

// Component is a single step in an OT operation.
// Exactly one field should be set.
type Component struct {
	Retain int    // keep N characters unchanged
	Insert string // insert text at cursor
	Delete int    // remove N characters at cursor
}

func (c Component) IsRetain() bool { return c.Retain > 0 && c.Insert == "" && c.Delete == 0 }
func (c Component) IsInsert() bool { return c.Insert != "" }
func (c Component) IsDelete() bool { return c.Delete > 0 && c.Insert == "" }

// Operation is a sequence of components that transforms a section's text.
// Components are applied left-to-right, advancing a cursor through the input.
// All counts and lengths are in Unicode code points, so operation lengths
// and caret offsets share one unit.
type Operation struct {
	Ops []Component
}

// Retain appends a retain of n characters, merging with a trailing retain.
// It returns the operation so builder calls can be chained.
func (op *Operation) Retain(n int) *Operation {
	if n <= 0 {
		return op
	}
	if last := op.last(); last != nil && last.IsRetain() {
		last.Retain += n
		return op
	}
	op.Ops = append(op.Ops, Component{Retain: n})
	return op
}

// Insert appends an insertion of s, merging with a trailing insert.
func (op *Operation) Insert(s string) *Operation {
	if s == "" {
		return op
	}
	if last := op.last(); last != nil && last.IsInsert() {
		last.Insert += s
		return op
	}
	op.Ops = append(op.Ops, Component{Insert: s})
	return op
}

// Delete appends a deletion of n characters, merging with a trailing delete.
func (op *Operation) Delete(n int) *Operation {
	if n <= 0 {
		return op
	}
	if last := op.last(); last != nil && last.IsDelete() {
		last.Delete += n
		return op
	}
	op.Ops = append(op.Ops, Component{Delete: n})
	return op
}

func (op *Operation) last() *Component {
	if len(op.Ops) == 0 {
		return nil
	}
	return &op.Ops[len(op.Ops)-1]
}

// BaseLen returns the expected input text length in characters.
func (op Operation) BaseLen() int {
	n := 0
	for _, c := range op.Ops {
		if c.IsRetain() {
			n += c.Retain
		} else if c.IsDelete() {
			n += c.Delete
		}
	}
	return n
}

// TargetLen returns the text length after the operation is applied.
func (op Operation) TargetLen() int {
	n := 0
	for _, c := range op.Ops {
		if c.IsRetain() {
			n += c.Retain
		} else if c.IsInsert() {
			n += utf8.RuneCountInString(c.Insert)
		}
	}
	return n
}

// IsNoop returns true if the operation makes no changes.
func (op Operation) IsNoop() bool {
	for _, c := range op.Ops {
		if c.IsInsert() || c.IsDelete() {
			return false
		}
	}
	return true
}

// Equal reports whether two operations are component-for-component identical.
func (op Operation) Equal(other Operation) bool {
	if len(op.Ops) != len(other.Ops) {
		return false
	}
	for i, c := range op.Ops {
		if c != other.Ops[i] {
			return false
		}
	}
	return true
}

// Apply applies the operation to a section's text.
// The text's character count must equal the operation's base length;
// otherwise ErrMalformedOperation is returned and no output is produced.
func Apply(text string, op Operation) (string, error) {
	runes := []rune(text)
	if len(runes) != op.BaseLen() {
		return "", fmt.Errorf("%w: text length %d != operation base length %d",
			ErrMalformedOperation, len(runes), op.BaseLen())
	}
	var b strings.Builder
	pos := 0
	for _, c := range op.Ops {
		switch {
		case c.IsRetain():
			b.WriteString(string(runes[pos : pos+c.Retain]))
			pos += c.Retain
		case c.IsInsert():
			b.WriteString(c.Insert)
		case c.IsDelete():
			pos += c.Delete
		}
	}
	return b.String(), nil
}

// NewInsert creates an operation that inserts text at pos in a section of textLen characters.
func NewInsert(pos int, text string, textLen int) Operation {
	var op Operation
	op.Retain(pos).Insert(text).Retain(textLen - pos)
	return op
}

// NewDelete creates an operation that deletes count characters at pos in a section of textLen characters.
func NewDelete(pos, count, textLen int) Operation {
	var op Operation
	op.Retain(pos).Delete(count).Retain(textLen - pos - count)
	return op
}
