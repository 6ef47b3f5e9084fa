package server

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// NewHandler creates the HTTP handler with all routes.
func NewHandler(hub *Hub) http.Handler {
	r := mux.NewRouter()

	// WebSocket endpoint.
	r.HandleFunc("/ws", func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			log.Printf("websocket upgrade error: %v", err)
			return
		}
		client := newClient(hub, conn)
		go client.WritePump()
		go client.ReadPump()
	})

	// Section listing for the file tree.
	r.HandleFunc("/api/sections", func(w http.ResponseWriter, req *http.Request) {
		infos, err := hub.store.List(req.Context())
		if err != nil {
			http.Error(w, "failed to list sections", http.StatusInternalServerError)
			return
		}
		type sectionSummary struct {
			ID      string `json:"id"`
			Version int    `json:"version"`
		}
		out := make([]sectionSummary, 0, len(infos))
		for _, info := range infos {
			out = append(out, sectionSummary{ID: info.ID, Version: info.Version})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}).Methods(http.MethodGet)

	// Serve static files.
	r.PathPrefix("/").Handler(http.FileServer(http.Dir("static")))

	return r
}
