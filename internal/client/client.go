// Package client is the HTTP and websocket SDK for talking to a Parley
// hub, used by the CLI commands and by remote tooling.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mverdier/parley/internal/broker"
	"github.com/mverdier/parley/internal/history"
	"github.com/mverdier/parley/internal/hub"
	"github.com/mverdier/parley/internal/queue"
)

// Message is one websocket frame from the hub.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client talks to a running hub.
type Client struct {
	baseURL    string
	wsURL      string
	httpClient *http.Client
	wsConn     *websocket.Conn
	mu         sync.Mutex

	// OnMessage receives every websocket frame after ConnectEvents.
	OnMessage func(Message)
}

// New creates a client for the hub at hubURL.
func New(hubURL string) *Client {
	u, _ := url.Parse(hubURL)
	wsScheme := "ws"
	if u.Scheme == "https" {
		wsScheme = "wss"
	}
	wsURL := fmt.Sprintf("%s://%s/ws", wsScheme, u.Host)

	return &Client{
		baseURL: hubURL,
		wsURL:   wsURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// BaseURL returns the hub URL this client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// APIError is a non-2xx reply from the hub.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("hub returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("hub returned %d", e.Status)
}

func decodeError(resp *http.Response) error {
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body["error"] != "" {
		return &APIError{Status: resp.StatusCode, Message: body["error"]}
	}
	return &APIError{Status: resp.StatusCode}
}

// Ask registers a request and blocks until a human (or the queue)
// settles it. The ctx deadline bounds the wait; cancellation aborts the
// ask on the hub side too, via the dropped connection.
func (c *Client) Ask(ctx context.Context, spec broker.Spec) (broker.Resolution, error) {
	var res broker.Resolution

	data, err := json.Marshal(spec)
	if err != nil {
		return res, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/requests", bytes.NewReader(data))
	if err != nil {
		return res, err
	}
	req.Header.Set("Content-Type", "application/json")

	// The ask blocks server-side for as long as the human takes, so it
	// must not use the short default timeout.
	blocking := &http.Client{}
	resp, err := blocking.Do(req)
	if err != nil {
		return res, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return res, decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return res, err
	}
	return res, nil
}

// ReviewPlan submits a plan document for review and blocks until the
// human decides.
func (c *Client) ReviewPlan(ctx context.Context, title, plan string) (broker.Resolution, error) {
	return c.Ask(ctx, broker.Spec{
		Kind:   broker.KindPlanReview,
		Title:  title,
		Prompt: plan,
	})
}

// Current returns the pending request, or nil when there is none.
func (c *Client) Current(ctx context.Context) (*broker.Request, error) {
	var req broker.Request
	err := c.getJSON(ctx, "/requests/current", &req)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}

// Respond answers the pending request. Returns false when another
// responder already won.
func (c *Client) Respond(ctx context.Context, requestID, value string, attachments []string) (bool, error) {
	var out hub.RespondResponse
	err := c.doJSON(ctx, http.MethodPost, "/requests/"+requestID+"/respond",
		hub.RespondRequest{Value: value, Attachments: attachments}, &out)
	if err != nil {
		return false, err
	}
	return out.Accepted, nil
}

// Cancel force-resolves the request with the given id.
func (c *Client) Cancel(ctx context.Context, requestID, reason string) error {
	return c.doJSON(ctx, http.MethodPost, "/requests/"+requestID+"/cancel",
		hub.CancelRequest{Reason: reason}, nil)
}

// State returns the hub's authoritative snapshot.
func (c *Client) State(ctx context.Context) (broker.Snapshot, error) {
	var snap broker.Snapshot
	err := c.getJSON(ctx, "/state", &snap)
	return snap, err
}

// Queue returns the queue view.
func (c *Client) Queue(ctx context.Context) (queue.State, error) {
	var st queue.State
	err := c.getJSON(ctx, "/queue", &st)
	return st, err
}

// QueueAdd appends a prompt to the queue.
func (c *Client) QueueAdd(ctx context.Context, text string, attachments []string) (queue.Item, error) {
	var item queue.Item
	err := c.doJSON(ctx, http.MethodPost, "/queue",
		hub.QueueAddRequest{Text: text, Attachments: attachments}, &item)
	return item, err
}

// QueueEdit replaces a queued prompt's text.
func (c *Client) QueueEdit(ctx context.Context, id, text string) error {
	return c.doJSON(ctx, http.MethodPut, "/queue/"+id, hub.QueueEditRequest{Text: text}, nil)
}

// QueueRemove deletes a queued prompt.
func (c *Client) QueueRemove(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/queue/"+id, nil, nil)
}

// QueueReorder moves a queued prompt.
func (c *Client) QueueReorder(ctx context.Context, from, to int) error {
	return c.doJSON(ctx, http.MethodPost, "/queue/reorder",
		hub.QueueReorderRequest{From: from, To: to}, nil)
}

// QueueSetPaused flips the pause gate.
func (c *Client) QueueSetPaused(ctx context.Context, paused bool) (queue.State, error) {
	var st queue.State
	err := c.doJSON(ctx, http.MethodPost, "/queue/paused", map[string]bool{"paused": paused}, &st)
	return st, err
}

// QueueSetEnabled turns the queue feature on or off.
func (c *Client) QueueSetEnabled(ctx context.Context, enabled bool) (queue.State, error) {
	var st queue.State
	err := c.doJSON(ctx, http.MethodPost, "/queue/enabled", map[string]bool{"enabled": enabled}, &st)
	return st, err
}

// QueueClear drops all queued prompts.
func (c *Client) QueueClear(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodDelete, "/queue", nil, nil)
}

// History returns recent settled requests, newest first.
func (c *Client) History(ctx context.Context, limit int) ([]history.Entry, error) {
	var entries []history.Entry
	err := c.getJSON(ctx, fmt.Sprintf("/history?limit=%d", limit), &entries)
	return entries, err
}

// Health pings the hub.
func (c *Client) Health(ctx context.Context) (map[string]interface{}, error) {
	var health map[string]interface{}
	err := c.getJSON(ctx, "/health", &health)
	return health, err
}

// ConnectEvents opens the websocket, authenticates with the pairing
// code, and starts delivering frames to OnMessage. The first frames the
// handler sees are "authenticated" and a full "state" snapshot.
func (c *Client) ConnectEvents(code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.Dial(c.wsURL, nil)
	if err != nil {
		return err
	}

	payload, _ := json.Marshal(map[string]string{"code": code})
	if err := conn.WriteJSON(Message{Type: "authenticate", Payload: payload}); err != nil {
		conn.Close()
		return err
	}

	var reply Message
	if err := conn.ReadJSON(&reply); err != nil {
		conn.Close()
		return err
	}
	if reply.Type != "authenticated" {
		conn.Close()
		return fmt.Errorf("authentication rejected: %s", string(reply.Payload))
	}

	c.wsConn = conn
	go c.readMessages(conn)
	return nil
}

// Resync asks the hub for a fresh snapshot over the websocket. Clients
// call this after suspecting a missed broadcast; the reply arrives as a
// "state" frame on OnMessage.
func (c *Client) Resync() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wsConn == nil {
		return fmt.Errorf("websocket not connected")
	}
	return c.wsConn.WriteJSON(Message{Type: "getState"})
}

func (c *Client) readMessages(conn *websocket.Conn) {
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if c.OnMessage != nil {
			c.OnMessage(msg)
		}
	}
}

// Close tears down the websocket connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.wsConn != nil {
		c.wsConn.Close()
		c.wsConn = nil
	}
}
