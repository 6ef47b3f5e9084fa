package ot

import "fmt"

// Engine abstracts the server-side reconciliation algorithm.
// Different algorithms (Jupiter, Wave, etc.) implement this interface.
type Engine interface {
	// TransformIncoming transforms a client operation (created at the given
	// base version) against all operations sequenced since that version.
	// Returns the operation transformed to apply at the current server state.
	TransformIncoming(op Operation, baseVersion int, history []Operation) (Operation, error)
}

// JupiterEngine implements the Jupiter OT algorithm: the incoming operation
// is sequentially transformed against each operation the submitting client
// hasn't seen. The incoming operation is passed as the first operand, so the
// later-sequenced operation wins insert ties — the same rule clients apply
// when their pending queue wins ties against arriving broadcasts.
type JupiterEngine struct{}

func (e *JupiterEngine) TransformIncoming(op Operation, baseVersion int, history []Operation) (Operation, error) {
	if baseVersion < 0 || baseVersion > len(history) {
		return Operation{}, fmt.Errorf("invalid base version %d (history len %d)", baseVersion, len(history))
	}

	transformed := op
	for i := baseVersion; i < len(history); i++ {
		var err error
		transformed, _, err = Transform(transformed, history[i])
		if err != nil {
			return Operation{}, fmt.Errorf("transform against history[%d]: %w", i, err)
		}
	}
	return transformed, nil
}
