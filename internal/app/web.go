// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/delivery_analyzer/internal/config"
	"github.com/relabs-tech/delivery_analyzer/internal/recording"
	"github.com/relabs-tech/delivery_analyzer/internal/session"
	"github.com/relabs-tech/delivery_analyzer/internal/store"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WSMessage is sent by browser clients.
type WSMessage struct {
	Action  string `json:"action"` // start, stop, delete
	ThrowID string `json:"throw_id,omitempty"`
}

// WSResponse is pushed to browser clients.
type WSResponse struct {
	Type    string           `json:"type"` // throw, summary, event, error
	Throw   *ThrowMessage    `json:"throw,omitempty"`
	Summary *SummaryMessage  `json:"summary,omitempty"`
	Event   *recording.Event `json:"event,omitempty"`
	Message string           `json:"message,omitempty"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan WSResponse
}

// Hub fans live updates out to every connected websocket client. A client
// that cannot keep up loses messages rather than blocking the broadcast.
type Hub struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*wsClient]struct{})}
}

// Broadcast queues resp for every client.
func (h *Hub) Broadcast(resp WSResponse) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- resp:
		default:
			log.Printf("web: dropping %s update for slow client", resp.Type)
		}
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) add(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// SessionStore is the read side of the store plus throw deletion.
type SessionStore interface {
	ListSessions() ([]*store.Session, error)
	GetSession(id string) (*store.Session, error)
	ListThrows(sessionID string) ([]session.ThrowMetrics, error)
	DeleteThrow(id string) error
}

// WebServer serves the session REST API and the live websocket feed.
type WebServer struct {
	store   SessionStore
	hub     *Hub
	control func(ControlMessage) error
}

// NewWebServer creates a server. control forwards commands to the recorder.
func NewWebServer(st SessionStore, hub *Hub, control func(ControlMessage) error) *WebServer {
	return &WebServer{store: st, hub: hub, control: control}
}

// Handler returns the HTTP routes.
func (s *WebServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("GET /api/sessions/{id}/throws", s.handleListThrows)
	mux.HandleFunc("GET /api/sessions/{id}/summary", s.handleSummary)
	mux.HandleFunc("DELETE /api/throws/{id}", s.handleDeleteThrow)
	mux.HandleFunc("POST /api/control", s.handleControl)
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.Handle("/", http.FileServer(http.Dir("web")))
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("web: json encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, store.ErrNotFound) {
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *WebServer) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.ListSessions()
	if err != nil {
		writeError(w, err)
		return
	}
	if sessions == nil {
		sessions = []*store.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *WebServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.GetSession(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *WebServer) sessionThrows(id string) ([]session.ThrowMetrics, error) {
	if _, err := s.store.GetSession(id); err != nil {
		return nil, err
	}
	throws, err := s.store.ListThrows(id)
	if throws == nil {
		throws = []session.ThrowMetrics{}
	}
	return throws, err
}

func (s *WebServer) handleListThrows(w http.ResponseWriter, r *http.Request) {
	throws, err := s.sessionThrows(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, throws)
}

func (s *WebServer) handleSummary(w http.ResponseWriter, r *http.Request) {
	throws, err := s.sessionThrows(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session.Summarize(throws))
}

func (s *WebServer) handleDeleteThrow(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteThrow(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	// the recorder rebuilds its log and republishes the summary
	if err := s.control(ControlMessage{Command: CommandReload}); err != nil {
		log.Printf("web: reload after delete: %v", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *WebServer) handleControl(w http.ResponseWriter, r *http.Request) {
	var msg ControlMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	switch msg.Command {
	case CommandStart, CommandStop, CommandReload:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("unknown command %q", msg.Command)})
		return
	}
	if err := s.control(msg); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *WebServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	c := &wsClient{conn: conn, send: make(chan WSResponse, 32)}
	s.hub.add(c)
	defer s.hub.remove(c)

	go func() {
		for resp := range c.send {
			if err := conn.WriteJSON(resp); err != nil {
				log.Printf("web: websocket write error: %v", err)
				conn.Close()
				return
			}
		}
	}()

	for {
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("web: websocket read error: %v", err)
			}
			return
		}

		var cerr error
		switch msg.Action {
		case "start":
			cerr = s.control(ControlMessage{Command: CommandStart})
		case "stop":
			cerr = s.control(ControlMessage{Command: CommandStop})
		case "delete":
			if cerr = s.store.DeleteThrow(msg.ThrowID); cerr == nil {
				cerr = s.control(ControlMessage{Command: CommandReload})
			}
		default:
			cerr = fmt.Errorf("unknown action %q", msg.Action)
		}
		if cerr != nil {
			select {
			case c.send <- WSResponse{Type: "error", Message: cerr.Error()}:
			default:
			}
		}
	}
}

// RunWeb serves the REST API and relays published throws, summaries and
// recording events to websocket clients.
func RunWeb() error {
	cfg := config.Get()

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDWeb)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	pub := mqttPublisher{client}

	hub := NewHub()
	if err := subscribeJSON(client, cfg.TopicThrows, "web", func(m ThrowMessage) {
		hub.Broadcast(WSResponse{Type: "throw", Throw: &m})
	}); err != nil {
		return err
	}
	if err := subscribeJSON(client, cfg.TopicSummary, "web", func(m SummaryMessage) {
		hub.Broadcast(WSResponse{Type: "summary", Summary: &m})
	}); err != nil {
		return err
	}
	if err := subscribeJSON(client, cfg.TopicEvents, "web", func(e recording.Event) {
		hub.Broadcast(WSResponse{Type: "event", Event: &e})
	}); err != nil {
		return err
	}

	srv := NewWebServer(db, hub, func(msg ControlMessage) error {
		return pub.Publish(cfg.TopicControl, false, msg)
	})

	addr := fmt.Sprintf(":%d", cfg.WebServerPort)
	log.Printf("web server listening on %s", addr)
	return http.ListenAndServe(addr, srv.Handler())
}
