package server

import (
	"context"
	"log"
	"sync"

	"github.com/draftmill/collab/ot"
	"github.com/draftmill/collab/store"
)

type joinRequest struct {
	client    *Client
	sectionID string
}

// Hub manages section sessions and routes clients to the right one.
type Hub struct {
	store    store.SectionStore
	engine   ot.Engine
	broker   Broker
	nodeID   string
	sessions map[string]*Session
	mu       sync.RWMutex

	joinSection chan joinRequest
}

func NewHub(st store.SectionStore, engine ot.Engine, broker Broker, nodeID string) *Hub {
	return &Hub{
		store:       st,
		engine:      engine,
		broker:      broker,
		nodeID:      nodeID,
		sessions:    make(map[string]*Session),
		joinSection: make(chan joinRequest, 64),
	}
}

// Run is the hub's main loop.
func (h *Hub) Run() {
	for req := range h.joinSection {
		h.handleJoinSection(req)
	}
}

func (h *Hub) handleJoinSection(req joinRequest) {
	h.mu.Lock()
	s, ok := h.sessions[req.sectionID]
	if !ok {
		// Create the section in the store if it doesn't exist.
		ctx := context.Background()
		if _, err := h.store.Get(ctx, req.sectionID); err != nil {
			if err := h.store.Create(ctx, req.sectionID, ""); err != nil {
				log.Printf("hub: failed to create section %q: %v", req.sectionID, err)
				h.mu.Unlock()
				req.client.sendError("failed to create section")
				return
			}
		}

		info, err := h.store.Get(ctx, req.sectionID)
		if err != nil {
			log.Printf("hub: failed to get section %q: %v", req.sectionID, err)
			h.mu.Unlock()
			req.client.sendError("failed to load section")
			return
		}
		history, err := h.store.GetOperations(ctx, req.sectionID, 0)
		if err != nil {
			log.Printf("hub: failed to load history for %q: %v", req.sectionID, err)
			h.mu.Unlock()
			req.client.sendError("failed to load section")
			return
		}

		owner, err := h.broker.Claim(ctx, req.sectionID, h.nodeID)
		if err != nil {
			log.Printf("hub: ownership claim for %q failed, assuming owner: %v", req.sectionID, err)
			owner = true
		}

		s = newSession(req.sectionID, info.Content, info.Version, history,
			h.engine, h.store, h.broker, h.nodeID, owner)
		h.sessions[req.sectionID] = s
		go s.Run()
	}
	h.mu.Unlock()

	s.join <- req.client
}

// GetSession returns the session for a section, if active.
func (h *Hub) GetSession(sectionID string) *Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sessions[sectionID]
}
