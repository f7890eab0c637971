// Package hub exposes the request broker to remote clients over HTTP
// and websocket.
package hub

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/mverdier/parley/internal/broker"
	"github.com/mverdier/parley/internal/history"
	"github.com/mverdier/parley/internal/logger"
	"github.com/mverdier/parley/internal/queue"
)

// Config holds the hub configuration.
type Config struct {
	Port     int    `yaml:"port"`
	AuthCode string `yaml:"auth_code"`
}

// DefaultConfig returns the default hub configuration.
func DefaultConfig() Config {
	return Config{
		Port: 8317,
	}
}

// Hub owns the broker and serves it to the local CLI and remote clients.
// Every broker event is recorded to history and broadcast best-effort to
// authenticated websocket sessions; clients that miss events recover
// through the full-state snapshot.
type Hub struct {
	config   Config
	broker   *broker.Broker
	history  history.Recorder
	log      *logger.Logger
	server   *http.Server
	sessions *sessionSet

	// LocalNotify, when set before Start, receives every broker event
	// after the remote broadcast. The local terminal surface hangs off
	// this hook.
	LocalNotify func(broker.Event)
}

// New creates a new Hub instance. A missing auth code is generated at
// construction so it can be printed before the server starts.
func New(cfg Config, recorder history.Recorder, log *logger.Logger) *Hub {
	if cfg.AuthCode == "" {
		cfg.AuthCode = generateAuthCode()
	}
	if recorder == nil {
		recorder = history.NewMemoryStore(0)
	}
	if log == nil {
		log = logger.New()
	}

	h := &Hub{
		config:   cfg,
		history:  recorder,
		log:      log,
		sessions: newSessionSet(),
	}
	h.broker = broker.New(queue.New(), h.onEvent)
	return h
}

// Broker returns the underlying broker for the local surface.
func (h *Hub) Broker() *broker.Broker {
	return h.broker
}

// AuthCode returns the code remote clients must present.
func (h *Hub) AuthCode() string {
	return h.config.AuthCode
}

// Handler returns the hub's HTTP handler, for serving and for tests.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()

	// Request endpoints
	mux.HandleFunc("POST /requests", h.handleAsk)
	mux.HandleFunc("GET /requests/current", h.handleCurrentRequest)
	mux.HandleFunc("POST /requests/{id}/respond", h.handleRespond)
	mux.HandleFunc("POST /requests/{id}/cancel", h.handleCancel)

	// Queue endpoints
	mux.HandleFunc("GET /queue", h.handleGetQueue)
	mux.HandleFunc("POST /queue", h.handleQueueAdd)
	mux.HandleFunc("PUT /queue/{id}", h.handleQueueEdit)
	mux.HandleFunc("DELETE /queue/{id}", h.handleQueueRemove)
	mux.HandleFunc("POST /queue/reorder", h.handleQueueReorder)
	mux.HandleFunc("POST /queue/paused", h.handleQueuePaused)
	mux.HandleFunc("POST /queue/enabled", h.handleQueueEnabled)
	mux.HandleFunc("DELETE /queue", h.handleQueueClear)

	// State and history
	mux.HandleFunc("GET /state", h.handleState)
	mux.HandleFunc("GET /history", h.handleHistory)

	// WebSocket endpoint
	mux.HandleFunc("GET /ws", h.handleWebSocket)

	// Status endpoints
	mux.HandleFunc("GET /health", h.handleHealth)

	return h.withMiddleware(mux)
}

// Start starts the broker and the HTTP server, blocking until the server
// exits.
func (h *Hub) Start(ctx context.Context) error {
	h.broker.Start()

	h.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", h.config.Port),
		Handler:           h.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	h.log.WithField("port", h.config.Port).Info("hub listening")
	return h.server.ListenAndServe()
}

// Stop gracefully stops the hub server and the broker.
func (h *Hub) Stop(ctx context.Context) error {
	h.sessions.closeAll()
	h.broker.Stop()

	if h.server != nil {
		return h.server.Shutdown(ctx)
	}
	return nil
}

// onEvent records settled requests and fans the event out to remote
// sessions. Runs on the broker's single dispatch worker, so delivery
// order matches state-change order.
func (h *Hub) onEvent(e broker.Event) {
	if entry, ok := history.FromEvent(e); ok {
		if err := h.history.Record(context.Background(), entry); err != nil {
			h.log.WithField("request_id", entry.RequestID).Warn("failed to record history: %v", err)
		}
	}
	h.broadcastEvent(e)
	if h.LocalNotify != nil {
		h.LocalNotify(e)
	}
}

// withMiddleware adds common middleware to all requests.
func (h *Hub) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// CORS headers
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		if r.URL.Path != "/ws" {
			w.Header().Set("Content-Type", "application/json")
		}

		next.ServeHTTP(w, r)
	})
}

// JSON response helpers
func (h *Hub) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Hub) jsonError(w http.ResponseWriter, status int, message string) {
	h.jsonResponse(w, status, map[string]string{"error": message})
}

// generateAuthCode produces a short numeric pairing code.
func generateAuthCode() string {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		// crypto/rand failing means the platform is broken; fall back to
		// a fixed code rather than crashing the server.
		return "000000"
	}
	return fmt.Sprintf("%06d", n.Int64())
}
