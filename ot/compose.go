package ot

import "fmt"

// Compose merges two sequential operations into one:
//
//	Apply(text, Compose(a, b)) == Apply(Apply(text, a), b)
//
// b must be computed against a's output text. Used to fold a run of local
// edits into a single operation while an earlier one is awaiting its ack.
func Compose(a, b Operation) (Operation, error) {
	if a.TargetLen() != b.BaseLen() {
		return Operation{}, fmt.Errorf(
			"%w: compose lengths differ: a targets %d, b expects %d",
			ErrMalformedOperation, a.TargetLen(), b.BaseLen())
	}

	var out Operation
	ia := newIter(a.Ops)
	ib := newIter(b.Ops)

	for ia.hasNext() || ib.hasNext() {
		// a's delete consumed input b never saw.
		if ia.peekType() == compDelete {
			c := ia.take(ia.peekLen())
			out.Delete(c.Delete)
			continue
		}
		// b's insert produces output a never saw.
		if ib.peekType() == compInsert {
			c := ib.take(0)
			out.Insert(c.Insert)
			continue
		}

		if !ia.hasNext() || !ib.hasNext() {
			return Operation{}, fmt.Errorf(
				"%w: compose ran out of components", ErrMalformedOperation)
		}

		n := min(ia.peekLen(), ib.peekLen())
		ca := ia.take(n)
		cb := ib.take(n)

		switch {
		case ca.IsRetain() && cb.IsRetain():
			out.Retain(n)
		case ca.IsRetain() && cb.IsDelete():
			out.Delete(n)
		case ca.IsInsert() && cb.IsRetain():
			out.Insert(ca.Insert)
		case ca.IsInsert() && cb.IsDelete():
			// b deleted characters a inserted; they never existed.
		}
	}

	return out, nil
}
