package ot

import (
	"fmt"
	"unicode/utf8"
)

// Transform takes two concurrent operations a and b (both computed against the
// same base text) and returns aPrime and bPrime such that:
//
//	Apply(Apply(text, a), bPrime) == Apply(Apply(text, b), aPrime)
//
// When both operations insert at the same position, a's insert is kept ahead
// of b's. Operand order is therefore the tie-break: callers encode priority by
// passing the winning operation first, and must do so consistently on every
// replica or the replicas will converge to different text.
func Transform(a, b Operation) (aPrime, bPrime Operation, err error) {
	if a.BaseLen() != b.BaseLen() {
		return Operation{}, Operation{}, fmt.Errorf(
			"%w: transform base lengths differ: a=%d, b=%d",
			ErrMalformedOperation, a.BaseLen(), b.BaseLen())
	}

	var ap, bp Operation
	ia := newIter(a.Ops)
	ib := newIter(b.Ops)

	for ia.hasNext() || ib.hasNext() {
		// a's insert goes first, including when both insert here.
		if ia.peekType() == compInsert {
			c := ia.take(0)
			ap.Insert(c.Insert)
			bp.Retain(utf8.RuneCountInString(c.Insert))
			continue
		}
		// Only b inserts.
		if ib.peekType() == compInsert {
			c := ib.take(0)
			bp.Insert(c.Insert)
			ap.Retain(utf8.RuneCountInString(c.Insert))
			continue
		}

		// Both sides consume input. Take the shorter chunk.
		if !ia.hasNext() || !ib.hasNext() {
			return Operation{}, Operation{}, fmt.Errorf(
				"%w: transform ran out of components", ErrMalformedOperation)
		}

		n := min(ia.peekLen(), ib.peekLen())
		ca := ia.take(n)
		cb := ib.take(n)

		switch {
		case ca.IsRetain() && cb.IsRetain():
			ap.Retain(n)
			bp.Retain(n)
		case ca.IsDelete() && cb.IsRetain():
			ap.Delete(n)
		case ca.IsRetain() && cb.IsDelete():
			bp.Delete(n)
		case ca.IsDelete() && cb.IsDelete():
			// Both delete the same characters — neither re-deletes them.
		}
	}

	return ap, bp, nil
}

// compType identifies a component kind for the iterator.
type compType int

const (
	compNone compType = iota
	compRetain
	compInsert
	compDelete
)

// iter walks through operation components, allowing partial consumption.
// Insert offsets are tracked in characters, matching Apply.
type iter struct {
	ops    []Component
	index  int
	offset int
}

func newIter(ops []Component) *iter {
	return &iter{ops: ops}
}

func (it *iter) hasNext() bool {
	return it.index < len(it.ops)
}

func (it *iter) peekType() compType {
	if !it.hasNext() {
		return compNone
	}
	c := it.ops[it.index]
	switch {
	case c.IsInsert():
		return compInsert
	case c.IsDelete():
		return compDelete
	default:
		return compRetain
	}
}

func (it *iter) peekLen() int {
	if !it.hasNext() {
		return 0
	}
	c := it.ops[it.index]
	switch {
	case c.IsRetain():
		return c.Retain - it.offset
	case c.IsInsert():
		return utf8.RuneCountInString(c.Insert) - it.offset
	case c.IsDelete():
		return c.Delete - it.offset
	}
	return 0
}

// take consumes n units from the current component. For inserts, n=0 means take all.
func (it *iter) take(n int) Component {
	c := it.ops[it.index]
	remaining := it.peekLen()

	switch {
	case c.IsRetain():
		if n >= remaining {
			it.index++
			it.offset = 0
			return Component{Retain: remaining}
		}
		it.offset += n
		return Component{Retain: n}

	case c.IsInsert():
		runes := []rune(c.Insert)
		if n == 0 || n >= remaining {
			s := string(runes[it.offset:])
			it.index++
			it.offset = 0
			return Component{Insert: s}
		}
		s := string(runes[it.offset : it.offset+n])
		it.offset += n
		return Component{Insert: s}

	case c.IsDelete():
		if n >= remaining {
			it.index++
			it.offset = 0
			return Component{Delete: remaining}
		}
		it.offset += n
		return Component{Delete: n}
	}

	it.index++
	return Component{}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
