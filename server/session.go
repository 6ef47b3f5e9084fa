package server

import (
	"context"
	"encoding/json"
	"log"

	"github.com/draftmill/collab/ot"
	"github.com/draftmill/collab/store"
	"github.com/draftmill/collab/wire"
)

type opMessage struct {
	client *Client
	msg    wire.ClientMessage
}

type cursorMessage struct {
	client *Client
	offset int
}

// brokerEnvelope is the payload published to other nodes: the broadcast
// message plus the origin node, so a node skips its own publications.
type brokerEnvelope struct {
	Node string             `json:"node"`
	Msg  wire.ServerMessage `json:"msg"`
}

// Session manages collaboration for a single section on one node and is the
// fan-out point for its presence events. All events are serialized through
// one goroutine.
//
// Exactly one node's session owns the section and sequences its operations;
// the owner is elected through the broker when the session is created. A
// non-owning session is a mirror: it rejects direct submissions, telling the
// client to reconnect to the owner, and keeps its document in step by
// applying the owner's relayed broadcasts.
type Session struct {
	sectionID string
	doc       *ot.Document
	engine    ot.Engine
	store     store.SectionStore
	broker    Broker
	nodeID    string
	owner     bool
	clients   map[*Client]bool

	incoming chan opMessage
	cursor   chan cursorMessage
	join     chan *Client
	leave    chan *Client
	stop     chan struct{}

	remote       <-chan []byte
	cancelRemote func()
}

func newSession(sectionID, content string, version int, history []ot.Operation,
	engine ot.Engine, st store.SectionStore, broker Broker, nodeID string, owner bool) *Session {
	doc := ot.NewDocument(content)
	doc.Version = version
	doc.History = history
	s := &Session{
		sectionID: sectionID,
		doc:       doc,
		engine:    engine,
		store:     st,
		broker:    broker,
		nodeID:    nodeID,
		owner:     owner,
		clients:   make(map[*Client]bool),
		incoming:  make(chan opMessage, 64),
		cursor:    make(chan cursorMessage, 64),
		join:      make(chan *Client, 16),
		leave:     make(chan *Client, 16),
		stop:      make(chan struct{}),
	}

	remote, cancel, err := broker.Subscribe(context.Background(), sectionID)
	if err != nil {
		log.Printf("session %s: broker subscribe failed, running single-node: %v", sectionID, err)
		cancel = func() {}
	}
	s.remote = remote
	s.cancelRemote = cancel
	return s
}

// Run is the session's main loop. It serializes all events for the section.
func (s *Session) Run() {
	defer s.cancelRemote()
	if s.owner {
		defer func() {
			if err := s.broker.Release(context.Background(), s.sectionID, s.nodeID); err != nil {
				log.Printf("session %s: release ownership: %v", s.sectionID, err)
			}
		}()
	}
	for {
		select {
		case c := <-s.join:
			s.handleJoin(c)
		case c := <-s.leave:
			s.handleLeave(c)
		case om := <-s.incoming:
			s.handleOp(om)
		case cm := <-s.cursor:
			s.handleCursor(cm)
		case payload, ok := <-s.remote:
			if !ok {
				s.remote = nil
				continue
			}
			s.handleRemote(payload)
		case <-s.stop:
			return
		}
	}
}

func (s *Session) handleJoin(c *Client) {
	s.clients[c] = true
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()

	// Hydrate the joining client, then push the roster.
	c.sendMsg(wire.ServerMessage{
		Type:          wire.MsgHydrate,
		SectionID:     s.sectionID,
		ServerVersion: s.doc.Version,
		Text:          s.doc.Content,
	})
	c.sendMsg(wire.ServerMessage{
		Type:          wire.MsgRoster,
		SectionID:     s.sectionID,
		Collaborators: s.collaborators(),
	})

	// Notify everyone else about the new user.
	s.fanOut(c, wire.ServerMessage{
		Type:      wire.MsgJoin,
		SectionID: s.sectionID,
		UserID:    c.ID,
		Name:      c.Name,
	})
}

func (s *Session) handleLeave(c *Client) {
	if _, ok := s.clients[c]; !ok {
		return
	}
	delete(s.clients, c)
	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()
	close(c.send)

	s.fanOut(nil, wire.ServerMessage{
		Type:      wire.MsgLeave,
		SectionID: s.sectionID,
		UserID:    c.ID,
	})
}

func (s *Session) handleOp(om opMessage) {
	if !s.owner {
		om.client.sendSectionError(s.sectionID, "section is sequenced by another node")
		return
	}

	// Rebase the submission across everything sequenced since its base version.
	transformed, err := s.engine.TransformIncoming(om.msg.Op, om.msg.BaseVersion, s.doc.History)
	if err != nil {
		log.Printf("session %s: transform error: %v", s.sectionID, err)
		om.client.sendSectionError(s.sectionID, "transform error: "+err.Error())
		return
	}

	if err := s.doc.Apply(transformed); err != nil {
		log.Printf("session %s: apply error: %v", s.sectionID, err)
		om.client.sendSectionError(s.sectionID, "apply error: "+err.Error())
		return
	}

	// Persist.
	ctx := context.Background()
	if err := s.store.UpdateContent(ctx, s.sectionID, s.doc.Content, s.doc.Version); err != nil {
		log.Printf("session %s: persist content: %v", s.sectionID, err)
	}
	if err := s.store.AppendOperation(ctx, s.sectionID, transformed, s.doc.Version); err != nil {
		log.Printf("session %s: persist op v%d: %v", s.sectionID, s.doc.Version, err)
	}

	// Ack the submitter, broadcast to everyone else.
	om.client.sendMsg(wire.ServerMessage{
		Type:          wire.MsgAck,
		SectionID:     s.sectionID,
		ServerVersion: s.doc.Version,
	})
	s.fanOut(om.client, wire.ServerMessage{
		Type:          wire.MsgOp,
		SectionID:     s.sectionID,
		ServerVersion: s.doc.Version,
		Op:            transformed,
		UserID:        om.client.ID,
	})
}

func (s *Session) handleCursor(cm cursorMessage) {
	s.fanOut(cm.client, wire.ServerMessage{
		Type:        wire.MsgCursor,
		SectionID:   s.sectionID,
		UserID:      cm.client.ID,
		Name:        cm.client.Name,
		CaretOffset: cm.offset,
	})
}

// handleRemote delivers a broadcast published by another server node. A
// relayed operation is also applied to the local document, so a mirror stays
// version-for-version with the owner and can hydrate late joiners correctly.
func (s *Session) handleRemote(payload []byte) {
	var env brokerEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		log.Printf("session %s: bad broker payload: %v", s.sectionID, err)
		return
	}
	if env.Node == s.nodeID {
		return
	}

	if env.Msg.Type == wire.MsgOp {
		if env.Msg.ServerVersion != s.doc.Version+1 {
			log.Printf("session %s: relayed op v%d does not follow local v%d, mirror out of step",
				s.sectionID, env.Msg.ServerVersion, s.doc.Version)
		} else if err := s.doc.Apply(env.Msg.Op); err != nil {
			log.Printf("session %s: apply relayed op v%d: %v", s.sectionID, env.Msg.ServerVersion, err)
		}
	}

	for c := range s.clients {
		c.sendMsg(env.Msg)
	}
}

// fanOut delivers msg to every local client except skip, and publishes it for
// other nodes serving the same section.
func (s *Session) fanOut(skip *Client, msg wire.ServerMessage) {
	for c := range s.clients {
		if c != skip {
			c.sendMsg(msg)
		}
	}

	payload, err := json.Marshal(brokerEnvelope{Node: s.nodeID, Msg: msg})
	if err != nil {
		return
	}
	if err := s.broker.Publish(context.Background(), s.sectionID, payload); err != nil {
		log.Printf("session %s: broker publish: %v", s.sectionID, err)
	}
}

func (s *Session) collaborators() []wire.Collaborator {
	out := make([]wire.Collaborator, 0, len(s.clients))
	for c := range s.clients {
		out = append(out, wire.Collaborator{
			UserID:    c.ID,
			Name:      c.Name,
			SectionID: s.sectionID,
			Active:    true,
		})
	}
	return out
}
