package client

import (
	"errors"
	"fmt"
	"log"
	"unicode/utf8"

	"github.com/draftmill/collab/wire"
)

// Transport submits client messages to the collaboration server.
// Implementations must preserve submission order per connection.
type Transport interface {
	Submit(msg wire.ClientMessage) error
}

// Editor is the composition root for the editing client. It owns the
// per-section sessions, the presence registry, the cursor projector and the
// shared color registry, and dispatches every incoming server message to the
// right state transition. Construct one per editor surface and feed it the
// transport's incoming stream; there is no global instance.
//
// All methods must be called from a single goroutine (the UI event loop);
// each message is handled as one atomic unit with respect to its section.
type Editor struct {
	transport Transport
	colors    *ColorRegistry
	presence  *PresenceRegistry
	cursors   *CursorProjector
	sessions  map[string]*SectionSession

	// OnResync is called after a section session had to be discarded.
	// dropped is the number of unacknowledged local operations that were
	// lost and should be flagged to the user, never silently discarded.
	OnResync func(sectionID string, dropped int, cause error)
}

func NewEditor(transport Transport, measure LayoutMeasurer, cursorRender CursorRenderer, rosterRender RosterRenderer) *Editor {
	colors := NewColorRegistry(nil)
	return &Editor{
		transport: transport,
		colors:    colors,
		presence:  NewPresenceRegistry(colors, rosterRender),
		cursors:   NewCursorProjector(colors, measure, cursorRender),
		sessions:  make(map[string]*SectionSession),
	}
}

func (e *Editor) Presence() *PresenceRegistry { return e.presence }
func (e *Editor) Cursors() *CursorProjector   { return e.cursors }

// Session returns the session for a section, creating an empty one on first
// use. The session holds no trustworthy text until a hydrate arrives.
func (e *Editor) Session(sectionID string) *SectionSession {
	s, ok := e.sessions[sectionID]
	if !ok {
		s = NewSectionSession(sectionID)
		e.sessions[sectionID] = s
	}
	return s
}

// Open asks the server for a section's snapshot and membership.
func (e *Editor) Open(sectionID string) error {
	e.Session(sectionID)
	return e.transport.Submit(wire.ClientMessage{Type: wire.MsgJoin, SectionID: sectionID})
}

// Edit reconciles the editor surface's new raw content for a section: the
// session applies it optimistically, and the resulting operation is either
// submitted (when nothing is in flight) or held in the session's buffer until
// the outstanding acknowledgment releases it. A content value identical to
// the session text does nothing.
func (e *Editor) Edit(sectionID, newContent string) error {
	s := e.Session(sectionID)
	op, submit, err := s.LocalEdit(newContent)
	if err != nil {
		return e.resync(sectionID, err)
	}
	if !submit {
		return nil
	}
	return e.transport.Submit(wire.ClientMessage{
		Type:        wire.MsgOp,
		SectionID:   sectionID,
		BaseVersion: s.Version(),
		Op:          op,
	})
}

// MoveCaret reports the local user's caret offset to the server.
func (e *Editor) MoveCaret(sectionID string, offset int) error {
	return e.transport.Submit(wire.ClientMessage{
		Type:        wire.MsgCursor,
		SectionID:   sectionID,
		CaretOffset: offset,
	})
}

// HandleServerMessage dispatches one incoming message. Errors that indicate a
// desynchronized section trigger a resync (discard + re-request hydrate) and
// are not returned; genuinely unexpected input is.
func (e *Editor) HandleServerMessage(msg wire.ServerMessage) error {
	switch msg.Type {
	case wire.MsgHydrate:
		e.Session(msg.SectionID).Hydrate(msg.Text, msg.ServerVersion)

	case wire.MsgOp:
		s := e.Session(msg.SectionID)
		if err := s.ApplyRemote(msg.Op, msg.ServerVersion); err != nil {
			return e.resync(msg.SectionID, err)
		}

	case wire.MsgAck:
		s := e.Session(msg.SectionID)
		next, submit, err := s.Acknowledge(msg.ServerVersion)
		if err != nil {
			return e.resync(msg.SectionID, err)
		}
		if submit {
			return e.transport.Submit(wire.ClientMessage{
				Type:        wire.MsgOp,
				SectionID:   msg.SectionID,
				BaseVersion: s.Version(),
				Op:          next,
			})
		}

	case wire.MsgRoster:
		e.presence.SetRoster(msg.Collaborators)

	case wire.MsgJoin:
		e.presence.Add(msg.UserID, msg.Name, msg.SectionID)

	case wire.MsgLeave:
		e.presence.Remove(msg.UserID)
		e.cursors.Remove(msg.UserID)

	case wire.MsgCursor:
		e.presence.UpdateSection(msg.UserID, msg.SectionID)
		offset := msg.CaretOffset
		if s, ok := e.sessions[msg.SectionID]; ok {
			// A remote caret may reference a position a concurrent local
			// edit just removed; clamp rather than fail, the next
			// cursor-move corrects it.
			if textLen := utf8.RuneCountInString(s.Text()); offset > textLen {
				offset = textLen
			}
		}
		if err := e.cursors.Move(msg.SectionID, msg.UserID, msg.Name, offset); err != nil {
			return fmt.Errorf("project cursor for %s: %w", msg.UserID, err)
		}

	case wire.MsgError:
		// A section-scoped error means the server rejected something this
		// session submitted; its optimistic text is no longer trustworthy.
		if msg.SectionID != "" {
			return e.resync(msg.SectionID,
				fmt.Errorf("%w: server rejected an operation: %s", ErrDesync, msg.Message))
		}
		return fmt.Errorf("server error: %s", msg.Message)

	default:
		return fmt.Errorf("unknown message type %q", msg.Type)
	}
	return nil
}

// ResubmitPending replays a section's in-flight operation after the transport
// reconnects, for the case where the original submission or its ack was lost.
// ApplyRemote keeps the in-flight op rebased at the session's current
// version, so it is resubmitted as-is; a broadcast the client missed while
// disconnected will instead surface as a version gap and a loud resync.
// The buffered operation, if any, follows through the normal ack path.
func (e *Editor) ResubmitPending(sectionID string) error {
	s, ok := e.sessions[sectionID]
	if !ok {
		return nil
	}
	op, ok := s.InflightOp()
	if !ok {
		return nil
	}
	return e.transport.Submit(wire.ClientMessage{
		Type:        wire.MsgOp,
		SectionID:   sectionID,
		BaseVersion: s.Version(),
		Op:          op,
	})
}

// resync discards a section session after a detected inconsistency and asks
// the server for a fresh snapshot. The dropped pending count is surfaced
// through OnResync so in-flight keystrokes are lost loudly, not silently.
func (e *Editor) resync(sectionID string, cause error) error {
	s := e.sessions[sectionID]
	dropped := 0
	if s != nil {
		dropped = s.PendingCount()
	}
	delete(e.sessions, sectionID)
	e.cursors.ClearSection(sectionID)

	if !errors.Is(cause, ErrDesync) && !errors.Is(cause, ErrOutOfOrderAck) {
		return cause
	}
	log.Printf("editor: section %s desynchronized (%d pending dropped): %v", sectionID, dropped, cause)
	if e.OnResync != nil {
		e.OnResync(sectionID, dropped, cause)
	}
	return e.Open(sectionID)
}
