package client

import (
	"errors"
	"testing"

	"github.com/draftmill/collab/ot"
	"github.com/draftmill/collab/wire"
)

type fakeTransport struct {
	sent []wire.ClientMessage
	err  error
}

func (t *fakeTransport) Submit(msg wire.ClientMessage) error {
	if t.err != nil {
		return t.err
	}
	t.sent = append(t.sent, msg)
	return nil
}

func newTestEditor(transport Transport) *Editor {
	return NewEditor(transport, fakeMeasurer{}, newFakeCursorRenderer(), &fakeRosterRenderer{})
}

func TestEditor_OpenSendsJoin(t *testing.T) {
	tr := &fakeTransport{}
	e := newTestEditor(tr)

	if err := e.Open("intro"); err != nil {
		t.Fatal(err)
	}
	if len(tr.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(tr.sent))
	}
	if tr.sent[0].Type != wire.MsgJoin || tr.sent[0].SectionID != "intro" {
		t.Errorf("sent %+v", tr.sent[0])
	}
}

func TestEditor_EditSubmitsWithBaseVersion(t *testing.T) {
	tr := &fakeTransport{}
	e := newTestEditor(tr)
	e.Session("intro").Hydrate("hello", 4)

	if err := e.Edit("intro", "hello!"); err != nil {
		t.Fatal(err)
	}
	if len(tr.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(tr.sent))
	}
	msg := tr.sent[0]
	if msg.Type != wire.MsgOp || msg.SectionID != "intro" {
		t.Errorf("sent %+v", msg)
	}
	if msg.BaseVersion != 4 {
		t.Errorf("base version = %d, want 4", msg.BaseVersion)
	}
	if got, err := ot.Apply("hello", msg.Op); err != nil || got != "hello!" {
		t.Errorf("submitted op applies to %q (%v), want %q", got, err, "hello!")
	}

	// No-op edit sends nothing.
	if err := e.Edit("intro", "hello!"); err != nil {
		t.Fatal(err)
	}
	if len(tr.sent) != 1 {
		t.Errorf("no-op edit submitted a message")
	}
}

func TestEditor_EditBuffersUntilAck(t *testing.T) {
	tr := &fakeTransport{}
	e := newTestEditor(tr)
	e.Session("intro").Hydrate("a", 3)

	if err := e.Edit("intro", "ab"); err != nil {
		t.Fatal(err)
	}
	if err := e.Edit("intro", "abc"); err != nil {
		t.Fatal(err)
	}
	// Only the first edit goes out; the second waits for its ack.
	if len(tr.sent) != 1 {
		t.Fatalf("sent %d messages, want 1 while an op is in flight", len(tr.sent))
	}

	err := e.HandleServerMessage(wire.ServerMessage{
		Type: wire.MsgAck, SectionID: "intro", ServerVersion: 4,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(tr.sent) != 2 {
		t.Fatalf("sent %d messages, want 2 after the ack released the buffer", len(tr.sent))
	}
	msg := tr.sent[1]
	if msg.Type != wire.MsgOp || msg.BaseVersion != 4 {
		t.Errorf("released submission = %+v, want op at base version 4", msg)
	}
	if got, err := ot.Apply("ab", msg.Op); err != nil || got != "abc" {
		t.Errorf("released op applies to %q (%v), want %q", got, err, "abc")
	}
}

func TestEditor_HandleHydrate(t *testing.T) {
	e := newTestEditor(&fakeTransport{})

	err := e.HandleServerMessage(wire.ServerMessage{
		Type: wire.MsgHydrate, SectionID: "intro", Text: "snapshot", ServerVersion: 9,
	})
	if err != nil {
		t.Fatal(err)
	}
	s := e.Session("intro")
	if s.Text() != "snapshot" || s.Version() != 9 {
		t.Errorf("session = %q v%d, want snapshot v9", s.Text(), s.Version())
	}
}

func TestEditor_HandleRemoteOpAndAck(t *testing.T) {
	e := newTestEditor(&fakeTransport{})
	e.Session("intro").Hydrate("abc", 1)

	err := e.HandleServerMessage(wire.ServerMessage{
		Type: wire.MsgOp, SectionID: "intro", ServerVersion: 2, Op: ot.NewInsert(3, "d", 3),
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := e.Session("intro").Text(); got != "abcd" {
		t.Errorf("text = %q, want abcd", got)
	}

	if err := e.Edit("intro", "abcde"); err != nil {
		t.Fatal(err)
	}
	err = e.HandleServerMessage(wire.ServerMessage{
		Type: wire.MsgAck, SectionID: "intro", ServerVersion: 3,
	})
	if err != nil {
		t.Fatal(err)
	}
	s := e.Session("intro")
	if s.Version() != 3 || s.PendingCount() != 0 {
		t.Errorf("session v%d pending %d, want v3 pending 0", s.Version(), s.PendingCount())
	}
}

func TestEditor_ResyncOnBadAck(t *testing.T) {
	tr := &fakeTransport{}
	e := newTestEditor(tr)
	e.Session("intro").Hydrate("abc", 1)
	e.Edit("intro", "abcd")
	e.Edit("intro", "abcde") // two pending

	var gotSection string
	var gotDropped int
	var gotCause error
	e.OnResync = func(sectionID string, dropped int, cause error) {
		gotSection, gotDropped, gotCause = sectionID, dropped, cause
	}

	// Ack for a version far ahead: out of order, session is torched.
	err := e.HandleServerMessage(wire.ServerMessage{
		Type: wire.MsgAck, SectionID: "intro", ServerVersion: 9,
	})
	if err != nil {
		t.Fatal(err)
	}
	if gotSection != "intro" || gotDropped != 2 {
		t.Errorf("OnResync(%q, %d), want (intro, 2)", gotSection, gotDropped)
	}
	if !errors.Is(gotCause, ErrOutOfOrderAck) {
		t.Errorf("cause = %v, want ErrOutOfOrderAck", gotCause)
	}

	// The resync re-requested the section.
	last := tr.sent[len(tr.sent)-1]
	if last.Type != wire.MsgJoin || last.SectionID != "intro" {
		t.Errorf("last message = %+v, want a join for intro", last)
	}
	// The fresh session has no stale state.
	s := e.Session("intro")
	if s.PendingCount() != 0 || s.Version() != 0 {
		t.Errorf("fresh session v%d pending %d", s.Version(), s.PendingCount())
	}
}

func TestEditor_ResyncOnDesyncedBroadcast(t *testing.T) {
	tr := &fakeTransport{}
	e := newTestEditor(tr)
	e.Session("intro").Hydrate("abc", 1)

	resyncs := 0
	e.OnResync = func(string, int, error) { resyncs++ }

	// Version 5 does not follow version 1.
	err := e.HandleServerMessage(wire.ServerMessage{
		Type: wire.MsgOp, SectionID: "intro", ServerVersion: 5, Op: ot.NewInsert(0, "X", 3),
	})
	if err != nil {
		t.Fatal(err)
	}
	if resyncs != 1 {
		t.Errorf("resyncs = %d, want 1", resyncs)
	}
}

func TestEditor_PresenceDispatch(t *testing.T) {
	e := newTestEditor(&fakeTransport{})

	e.HandleServerMessage(wire.ServerMessage{
		Type: wire.MsgRoster,
		Collaborators: []wire.Collaborator{
			{UserID: "u1", Name: "Ada", Active: true, SectionID: "intro"},
		},
	})
	if _, ok := e.Presence().Entry("u1"); !ok {
		t.Fatal("roster push did not populate presence")
	}

	e.HandleServerMessage(wire.ServerMessage{Type: wire.MsgJoin, UserID: "u2", Name: "Bob", SectionID: "body"})
	if _, ok := e.Presence().Entry("u2"); !ok {
		t.Fatal("join did not add to presence")
	}

	e.HandleServerMessage(wire.ServerMessage{Type: wire.MsgLeave, UserID: "u2"})
	if _, ok := e.Presence().Entry("u2"); ok {
		t.Error("leave did not remove from presence")
	}
}

func TestEditor_CursorDispatchClampsOffset(t *testing.T) {
	e := newTestEditor(&fakeTransport{})
	e.Session("intro").Hydrate("short", 1)
	e.Presence().Add("u1", "Ada", "")

	err := e.HandleServerMessage(wire.ServerMessage{
		Type: wire.MsgCursor, SectionID: "intro", UserID: "u1", Name: "Ada", CaretOffset: 50,
	})
	if err != nil {
		t.Fatal(err)
	}
	cur, ok := e.Cursors().Cursor("u1")
	if !ok {
		t.Fatal("cursor not projected")
	}
	if cur.Offset != 5 {
		t.Errorf("offset = %d, want clamped to 5", cur.Offset)
	}
	entry, _ := e.Presence().Entry("u1")
	if entry.SectionID != "intro" {
		t.Errorf("presence section = %q, want intro", entry.SectionID)
	}
}

func TestEditor_LeaveRemovesCursor(t *testing.T) {
	e := newTestEditor(&fakeTransport{})
	e.Session("intro").Hydrate("text", 1)

	e.HandleServerMessage(wire.ServerMessage{
		Type: wire.MsgCursor, SectionID: "intro", UserID: "u1", Name: "Ada", CaretOffset: 2,
	})
	e.HandleServerMessage(wire.ServerMessage{Type: wire.MsgLeave, UserID: "u1"})

	if _, ok := e.Cursors().Cursor("u1"); ok {
		t.Error("cursor survived leave")
	}
}

func TestEditor_ServerErrorSurfaces(t *testing.T) {
	e := newTestEditor(&fakeTransport{})
	err := e.HandleServerMessage(wire.ServerMessage{Type: wire.MsgError, Message: "section locked"})
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestEditor_SectionErrorTriggersResync(t *testing.T) {
	// A section-scoped server error means an op this client submitted was
	// rejected; its optimistic text is wrong and the session must be rebuilt
	// from a fresh snapshot, not left drifting.
	tr := &fakeTransport{}
	e := newTestEditor(tr)
	e.Session("intro").Hydrate("abc", 1)
	e.Edit("intro", "abcd")

	var gotDropped int
	var gotCause error
	e.OnResync = func(_ string, dropped int, cause error) {
		gotDropped, gotCause = dropped, cause
	}

	err := e.HandleServerMessage(wire.ServerMessage{
		Type: wire.MsgError, SectionID: "intro", Message: "apply error: length mismatch",
	})
	if err != nil {
		t.Fatal(err)
	}
	if gotDropped != 1 || !errors.Is(gotCause, ErrDesync) {
		t.Errorf("OnResync dropped=%d cause=%v, want 1/ErrDesync", gotDropped, gotCause)
	}
	last := tr.sent[len(tr.sent)-1]
	if last.Type != wire.MsgJoin || last.SectionID != "intro" {
		t.Errorf("last message = %+v, want a re-join for intro", last)
	}
}

func TestEditor_ResyncSparesOtherSectionsCursors(t *testing.T) {
	e := newTestEditor(&fakeTransport{})
	e.Session("intro").Hydrate("abc", 1)
	e.Session("body").Hydrate("xyz", 1)
	e.Edit("intro", "abcd")

	e.HandleServerMessage(wire.ServerMessage{
		Type: wire.MsgCursor, SectionID: "intro", UserID: "u1", Name: "Ada", CaretOffset: 1,
	})
	e.HandleServerMessage(wire.ServerMessage{
		Type: wire.MsgCursor, SectionID: "body", UserID: "u2", Name: "Bob", CaretOffset: 1,
	})

	// Desync intro; body's remote caret must stay rendered.
	e.HandleServerMessage(wire.ServerMessage{
		Type: wire.MsgAck, SectionID: "intro", ServerVersion: 9,
	})

	if _, ok := e.Cursors().Cursor("u1"); ok {
		t.Error("resynced section's cursor survived")
	}
	if _, ok := e.Cursors().Cursor("u2"); !ok {
		t.Error("other section's cursor was wiped by an unrelated resync")
	}
}

func TestEditor_UnknownMessageType(t *testing.T) {
	e := newTestEditor(&fakeTransport{})
	if err := e.HandleServerMessage(wire.ServerMessage{Type: "mystery"}); err == nil {
		t.Fatal("expected an error")
	}
}

func TestEditor_ResubmitPending(t *testing.T) {
	tr := &fakeTransport{}
	e := newTestEditor(tr)
	e.Session("intro").Hydrate("a", 3)
	e.Edit("intro", "ab")
	e.Edit("intro", "abc") // buffered, not resubmitted

	tr.sent = nil
	if err := e.ResubmitPending("intro"); err != nil {
		t.Fatal(err)
	}
	if len(tr.sent) != 1 {
		t.Fatalf("resubmitted %d messages, want just the in-flight op", len(tr.sent))
	}
	msg := tr.sent[0]
	if msg.Type != wire.MsgOp || msg.SectionID != "intro" || msg.BaseVersion != 3 {
		t.Errorf("resubmitted %+v, want op for intro at base version 3", msg)
	}
	if got, err := ot.Apply("a", msg.Op); err != nil || got != "ab" {
		t.Errorf("resubmitted op applies to %q (%v), want %q", got, err, "ab")
	}

	// Unknown sections and sections with nothing in flight are a no-op.
	if err := e.ResubmitPending("ghost"); err != nil {
		t.Fatal(err)
	}
	e.Session("body").Hydrate("x", 1)
	tr.sent = nil
	if err := e.ResubmitPending("body"); err != nil {
		t.Fatal(err)
	}
	if len(tr.sent) != 0 {
		t.Errorf("idle section resubmitted %d messages", len(tr.sent))
	}
}
