package ot

import (
	"encoding/json"
	"fmt"
)

// Structural component type tags used on the wire.
const (
	TypeRetain = "retain"
	TypeInsert = "insert"
	TypeDelete = "delete"
)

// StructuralComponent is the transport form of a single component:
// {type: "retain"|"insert"|"delete", chars?, count?}.
type StructuralComponent struct {
	Type  string `json:"type"`
	Chars string `json:"chars,omitempty"`
	Count int    `json:"count,omitempty"`
}

// structuralOperation wraps the component list so the wire form is
// {"ops": [...]} rather than a bare array.
type structuralOperation struct {
	Ops []StructuralComponent `json:"ops"`
}

// Structural returns the operation in its transport form.
func (op Operation) Structural() []StructuralComponent {
	out := make([]StructuralComponent, 0, len(op.Ops))
	for _, c := range op.Ops {
		switch {
		case c.IsRetain():
			out = append(out, StructuralComponent{Type: TypeRetain, Count: c.Retain})
		case c.IsInsert():
			out = append(out, StructuralComponent{Type: TypeInsert, Chars: c.Insert})
		case c.IsDelete():
			out = append(out, StructuralComponent{Type: TypeDelete, Count: c.Delete})
		}
	}
	return out
}

// FromStructural rebuilds an operation from its transport form.
// Zero-length components are dropped; adjacent same-kind components are
// merged, so the result is always in builder-normal form.
func FromStructural(components []StructuralComponent) (Operation, error) {
	var op Operation
	for i, sc := range components {
		switch sc.Type {
		case TypeRetain:
			if sc.Count < 0 {
				return Operation{}, fmt.Errorf("%w: component %d: negative retain %d", ErrMalformedOperation, i, sc.Count)
			}
			op.Retain(sc.Count)
		case TypeInsert:
			op.Insert(sc.Chars)
		case TypeDelete:
			if sc.Count < 0 {
				return Operation{}, fmt.Errorf("%w: component %d: negative delete %d", ErrMalformedOperation, i, sc.Count)
			}
			op.Delete(sc.Count)
		default:
			return Operation{}, fmt.Errorf("%w: component %d: unknown type %q", ErrMalformedOperation, i, sc.Type)
		}
	}
	return op, nil
}

// MarshalJSON encodes the operation as {"ops":[{type, chars?, count?}, ...]}.
func (op Operation) MarshalJSON() ([]byte, error) {
	return json.Marshal(structuralOperation{Ops: op.Structural()})
}

// UnmarshalJSON decodes and validates the structural wire form.
func (op *Operation) UnmarshalJSON(data []byte) error {
	var s structuralOperation
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	decoded, err := FromStructural(s.Ops)
	if err != nil {
		return err
	}
	*op = decoded
	return nil
}
