package client

import (
	"errors"
	"fmt"

	"github.com/draftmill/collab/ot"
)

var (
	// ErrOutOfOrderAck is returned when the server acknowledges a version the
	// session is not waiting for. The session is left untouched; the only
	// safe recovery is a full resync.
	ErrOutOfOrderAck = errors.New("out-of-order acknowledgment")

	// ErrDesync is returned when the session can no longer reconcile its
	// local state with what the server delivered. The session must be
	// discarded and re-hydrated from an authoritative snapshot; continuing
	// would corrupt convergence for every other participant.
	ErrDesync = errors.New("session desynchronized")
)

// SectionSession tracks the client's view of one editable section: the last
// server-confirmed version, the optimistically reconciled text, and the local
// edits the server has not acknowledged yet.
//
// At most one operation is in flight at a time. Edits made while one is out
// are composed into a single buffered operation and submitted when the ack
// arrives, so every submission's base version is exact: the server transforms
// it only against operations the session genuinely had not seen, never
// against the session's own earlier edits.
//
// All transitions must run on the same goroutine, or be externally serialized
// per section; the session does no locking of its own.
type SectionSession struct {
	sectionID string
	version   int
	text      string
	inflight  *ot.Operation
	buffer    *ot.Operation
}

// NewSectionSession creates an empty session (version 0, text "").
// Call Hydrate to adopt a server snapshot.
func NewSectionSession(sectionID string) *SectionSession {
	return &SectionSession{sectionID: sectionID}
}

func (s *SectionSession) SectionID() string { return s.sectionID }
func (s *SectionSession) Version() int      { return s.version }
func (s *SectionSession) Text() string      { return s.text }

// PendingCount returns the number of unacknowledged local operations:
// the in-flight one plus the composed buffer, so at most two. The buffer may
// fold together any number of keystrokes.
func (s *SectionSession) PendingCount() int {
	n := 0
	if s.inflight != nil {
		n++
	}
	if s.buffer != nil {
		n++
	}
	return n
}

// InflightOp returns the operation awaiting its ack, if any. ApplyRemote
// keeps it rebased against everything the server has sequenced, so it is
// always valid at the session's current version; a transport reconnect can
// resubmit it as-is.
func (s *SectionSession) InflightOp() (ot.Operation, bool) {
	if s.inflight == nil {
		return ot.Operation{}, false
	}
	return *s.inflight, true
}

// BufferedOp returns the composed not-yet-submitted operation, if any.
func (s *SectionSession) BufferedOp() (ot.Operation, bool) {
	if s.buffer == nil {
		return ot.Operation{}, false
	}
	return *s.buffer, true
}

// Hydrate adopts an authoritative server snapshot, discarding any local
// state. Used on section open and after any desync.
func (s *SectionSession) Hydrate(text string, version int) {
	s.text = text
	s.version = version
	s.inflight = nil
	s.buffer = nil
}

// LocalEdit diffs the editor's new raw content against the session text.
// The text is updated immediately (the user never waits for a round trip to
// see a keystroke). submit is true when the returned operation should go to
// the server now; while an operation is in flight, further edits are composed
// into the buffer instead and Acknowledge releases them.
func (s *SectionSession) LocalEdit(newContent string) (op ot.Operation, submit bool, err error) {
	diffed := ot.Diff(s.text, newContent)
	if diffed.IsNoop() {
		return ot.Operation{}, false, nil
	}

	switch {
	case s.inflight == nil:
		s.inflight = &diffed
		s.text = newContent
		return diffed, true, nil

	case s.buffer == nil:
		s.buffer = &diffed
		s.text = newContent
		return ot.Operation{}, false, nil

	default:
		composed, err := ot.Compose(*s.buffer, diffed)
		if err != nil {
			return ot.Operation{}, false, fmt.Errorf("%w: compose buffered edit: %v", ErrDesync, err)
		}
		s.buffer = &composed
		s.text = newContent
		return ot.Operation{}, false, nil
	}
}

// ApplyRemote reconciles a broadcast operation from another client.
//
// The remote operation was computed against the server state at s.version,
// which from this client's point of view is the session text minus the
// in-flight operation and the buffer. It is transformed past both (local
// side winning insert ties), and both are rebased in the same pass so they
// stay valid against the new text and version. Any failure is a desync: the
// session is left as it was and must be discarded and re-hydrated.
func (s *SectionSession) ApplyRemote(op ot.Operation, serverVersion int) error {
	if serverVersion != s.version+1 {
		return fmt.Errorf("%w: remote version %d does not follow local version %d",
			ErrDesync, serverVersion, s.version)
	}

	incoming := op
	var inflight, buffer *ot.Operation
	if s.inflight != nil {
		localPrime, incomingPrime, err := ot.Transform(*s.inflight, incoming)
		if err != nil {
			return fmt.Errorf("%w: transform against in-flight op: %v", ErrDesync, err)
		}
		inflight = &localPrime
		incoming = incomingPrime
	}
	if s.buffer != nil {
		localPrime, incomingPrime, err := ot.Transform(*s.buffer, incoming)
		if err != nil {
			return fmt.Errorf("%w: transform against buffered op: %v", ErrDesync, err)
		}
		buffer = &localPrime
		incoming = incomingPrime
	}

	next, err := ot.Apply(s.text, incoming)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDesync, err)
	}

	s.text = next
	s.inflight = inflight
	s.buffer = buffer
	s.version = serverVersion
	return nil
}

// Acknowledge confirms the server sequenced the in-flight operation at
// serverVersion. If edits accumulated in the buffer meanwhile, the buffer is
// promoted to in-flight and returned with submit=true; its base version is
// the session's new version. An ack with nothing in flight, or for any other
// version, returns ErrOutOfOrderAck with the session untouched.
func (s *SectionSession) Acknowledge(serverVersion int) (next ot.Operation, submit bool, err error) {
	if s.inflight == nil {
		return ot.Operation{}, false, fmt.Errorf("%w: version %d acknowledged with nothing in flight",
			ErrOutOfOrderAck, serverVersion)
	}
	if serverVersion != s.version+1 {
		return ot.Operation{}, false, fmt.Errorf("%w: acknowledged version %d, expected %d",
			ErrOutOfOrderAck, serverVersion, s.version+1)
	}

	s.version = serverVersion
	s.inflight = s.buffer
	s.buffer = nil
	if s.inflight == nil {
		return ot.Operation{}, false, nil
	}
	return *s.inflight, true, nil
}
