package hub

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mverdier/parley/internal/broker"
)

// Inbound message types
const (
	msgAuthenticate   = "authenticate"
	msgGetState       = "getState"
	msgSubmitResponse = "submitResponse"
	msgQueueAdd       = "queueAdd"
	msgQueueEdit      = "queueEdit"
	msgQueueRemove    = "queueRemove"
	msgQueueReorder   = "queueReorder"
	msgSetPaused      = "setPaused"
	msgSetEnabled     = "setEnabled"
)

// Outbound message types
const (
	msgAuthenticated   = "authenticated"
	msgState           = "state"
	msgPendingRequest  = "pendingRequest"
	msgRequestResolved = "requestResolved"
	msgQueueUpdated    = "queueUpdated"
	msgError           = "error"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	pongWait   = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsMessage is the wire envelope for both directions.
type wsMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type authPayload struct {
	Code string `json:"code"`
}

type submitPayload struct {
	RequestID   string   `json:"request_id"`
	Value       string   `json:"value"`
	Attachments []string `json:"attachments,omitempty"`
}

type resolvedPayload struct {
	Request    *broker.Request    `json:"request"`
	Resolution *broker.Resolution `json:"resolution"`
}

func encodeMessage(msgType string, payload interface{}) []byte {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil
		}
		raw = data
	}
	data, err := json.Marshal(wsMessage{Type: msgType, Payload: raw})
	if err != nil {
		return nil
	}
	return data
}

// session is one websocket connection. Broadcasts are dropped when the
// client's send buffer is full; the client recovers through getState.
type session struct {
	conn   *websocket.Conn
	send   chan []byte
	authed atomic.Bool

	mu     sync.Mutex
	closed bool
}

// enqueue queues a message best-effort. Safe to call after close: the
// reader goroutine may still be handling an inbound frame when the hub
// shuts the session down, and its reply must not hit a closed channel.
func (s *session) enqueue(data []byte) {
	if data == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.send <- data:
	default:
	}
}

// close shuts the send channel exactly once, letting writePump drain
// and exit. Idempotent.
func (s *session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.send)
}

func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case data, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sessionSet tracks live websocket sessions.
type sessionSet struct {
	mu       sync.Mutex
	sessions map[*session]struct{}
}

func newSessionSet() *sessionSet {
	return &sessionSet{sessions: make(map[*session]struct{})}
}

func (ss *sessionSet) add(s *session) {
	ss.mu.Lock()
	ss.sessions[s] = struct{}{}
	ss.mu.Unlock()
}

func (ss *sessionSet) remove(s *session) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if _, ok := ss.sessions[s]; ok {
		delete(ss.sessions, s)
		s.close()
	}
}

func (ss *sessionSet) count() int {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return len(ss.sessions)
}

// broadcast sends data to every authenticated session.
func (ss *sessionSet) broadcast(data []byte) {
	if data == nil {
		return
	}
	ss.mu.Lock()
	defer ss.mu.Unlock()
	for s := range ss.sessions {
		if s.authed.Load() {
			s.enqueue(data)
		}
	}
}

func (ss *sessionSet) closeAll() {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	for s := range ss.sessions {
		delete(ss.sessions, s)
		s.close()
	}
}

// broadcastEvent translates a broker event into a websocket broadcast.
func (h *Hub) broadcastEvent(e broker.Event) {
	switch e.Type {
	case broker.EventRequestPending:
		h.sessions.broadcast(encodeMessage(msgPendingRequest, e.Request))
	case broker.EventRequestResolved:
		h.sessions.broadcast(encodeMessage(msgRequestResolved, resolvedPayload{
			Request:    e.Request,
			Resolution: e.Resolution,
		}))
	case broker.EventQueueUpdated:
		h.sessions.broadcast(encodeMessage(msgQueueUpdated, e.Queue))
	}
}

// handleWebSocket handles GET /ws.
func (h *Hub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed: %v", err)
		return
	}

	s := &session{
		conn: conn,
		send: make(chan []byte, 32),
	}
	h.sessions.add(s)
	go s.writePump()

	defer func() {
		h.sessions.remove(s)
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.enqueue(encodeMessage(msgError, map[string]string{"error": "invalid message"}))
			continue
		}

		if !s.authed.Load() && msg.Type != msgAuthenticate {
			s.enqueue(encodeMessage(msgError, map[string]string{"error": "authentication required"}))
			continue
		}

		h.handleClientMessage(s, msg)
	}
}

func (h *Hub) handleClientMessage(s *session, msg wsMessage) {
	switch msg.Type {
	case msgAuthenticate:
		var p authPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil || p.Code != h.config.AuthCode {
			s.enqueue(encodeMessage(msgError, map[string]string{"error": "invalid auth code"}))
			return
		}
		s.authed.Store(true)
		s.enqueue(encodeMessage(msgAuthenticated, nil))
		// Authoritative snapshot so the client starts from current truth
		// no matter what it missed.
		s.enqueue(encodeMessage(msgState, h.broker.State()))

	case msgGetState:
		s.enqueue(encodeMessage(msgState, h.broker.State()))

	case msgSubmitResponse:
		var p submitPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			s.enqueue(encodeMessage(msgError, map[string]string{"error": "invalid payload"}))
			return
		}
		// A losing submission is not an error; the client follows the
		// requestResolved broadcast.
		h.broker.SubmitRemote(p.RequestID, p.Value, p.Attachments)

	case msgQueueAdd:
		var p QueueAddRequest
		if err := json.Unmarshal(msg.Payload, &p); err != nil || p.Text == "" {
			s.enqueue(encodeMessage(msgError, map[string]string{"error": "invalid payload"}))
			return
		}
		h.broker.EnqueuePrompt(p.Text, p.Attachments)

	case msgQueueEdit:
		var p struct {
			ID   string `json:"id"`
			Text string `json:"text"`
		}
		if err := json.Unmarshal(msg.Payload, &p); err != nil || p.ID == "" || p.Text == "" {
			s.enqueue(encodeMessage(msgError, map[string]string{"error": "invalid payload"}))
			return
		}
		h.broker.EditPrompt(p.ID, p.Text)

	case msgQueueRemove:
		var p struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(msg.Payload, &p); err != nil || p.ID == "" {
			s.enqueue(encodeMessage(msgError, map[string]string{"error": "invalid payload"}))
			return
		}
		h.broker.RemovePrompt(p.ID)

	case msgQueueReorder:
		var p QueueReorderRequest
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			s.enqueue(encodeMessage(msgError, map[string]string{"error": "invalid payload"}))
			return
		}
		h.broker.ReorderPrompts(p.From, p.To)

	case msgSetPaused:
		var p struct {
			Paused bool `json:"paused"`
		}
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			s.enqueue(encodeMessage(msgError, map[string]string{"error": "invalid payload"}))
			return
		}
		h.broker.SetQueuePaused(p.Paused)

	case msgSetEnabled:
		var p struct {
			Enabled bool `json:"enabled"`
		}
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			s.enqueue(encodeMessage(msgError, map[string]string{"error": "invalid payload"}))
			return
		}
		h.broker.SetQueueEnabled(p.Enabled)

	default:
		s.enqueue(encodeMessage(msgError, map[string]string{"error": "unknown message type: " + msg.Type}))
	}
}
