// Package wire defines the JSON messages exchanged between the editing client
// and the collaboration server. The transport itself (an ordered, reliable
// WebSocket channel) is defined elsewhere; this package only fixes the
// message semantics both sides agree on.
package wire

import (
	"encoding/json"

	"github.com/draftmill/collab/ot"
)

// Message types.
const (
	MsgJoin    = "join"        // client: open a section; server: a user joined
	MsgLeave   = "leave"       // server: a user left
	MsgOp      = "op"          // client: submit; server: broadcast
	MsgAck     = "ack"         // server: oldest pending operation sequenced
	MsgHydrate = "hydrate"     // server: authoritative snapshot + version
	MsgRoster  = "roster"      // server: full collaborator roster
	MsgCursor  = "cursor-move" // both: caret offset changed
	MsgError   = "error"
)

// ClientMessage is a message from client to server.
// A submit carries BaseVersion (the last server version the client had
// reconciled when the operation was generated) and the operation itself.
type ClientMessage struct {
	Type        string       `json:"type"`
	SectionID   string       `json:"sectionId,omitempty"`
	BaseVersion int          `json:"baseVersion"`
	Op          ot.Operation `json:"op,omitzero"`
	CaretOffset int          `json:"caretOffset"`
}

// ServerMessage is a message from server to client.
type ServerMessage struct {
	Type          string         `json:"type"`
	SectionID     string         `json:"sectionId,omitempty"`
	ServerVersion int            `json:"serverVersion"`
	Op            ot.Operation   `json:"op,omitzero"`
	Text          string         `json:"text"`
	UserID        string         `json:"userId,omitempty"`
	Name          string         `json:"name,omitempty"`
	Color         string         `json:"color,omitempty"`
	CaretOffset   int            `json:"caretOffset"`
	Message       string         `json:"message,omitempty"`
	Collaborators []Collaborator `json:"collaborators,omitempty"`
}

// Collaborator describes one active user in a roster push.
type Collaborator struct {
	UserID    string `json:"userId"`
	Name      string `json:"name"`
	Color     string `json:"color,omitempty"`
	SectionID string `json:"sectionId,omitempty"`
	Active    bool   `json:"active"`
}

// Encode serializes a ServerMessage to JSON bytes.
func (m ServerMessage) Encode() []byte {
	b, _ := json.Marshal(m)
	return b
}
