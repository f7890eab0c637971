package hub

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mverdier/parley/internal/broker"
	"github.com/mverdier/parley/internal/history"
	"github.com/mverdier/parley/internal/logger"
	"github.com/mverdier/parley/internal/queue"
)

const testAuthCode = "424242"

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()

	log := logger.New()
	log.SetLevel(logger.LevelError)

	h := New(Config{AuthCode: testAuthCode}, history.NewMemoryStore(0), log)
	h.Broker().Start()

	srv := httptest.NewServer(h.Handler())
	t.Cleanup(func() {
		srv.Close()
		h.Broker().Stop()
	})
	return h, srv
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s failed: %v", url, err)
	}
	return resp
}

// ask issues a blocking POST /requests in the background and returns a
// channel carrying the eventual resolution.
func ask(t *testing.T, srv *httptest.Server, spec broker.Spec) <-chan broker.Resolution {
	t.Helper()
	out := make(chan broker.Resolution, 1)
	data, err := json.Marshal(spec)
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		resp, err := http.Post(srv.URL+"/requests", "application/json", bytes.NewReader(data))
		if err != nil {
			return
		}
		defer resp.Body.Close()
		var res broker.Resolution
		json.NewDecoder(resp.Body).Decode(&res)
		out <- res
	}()
	return out
}

// waitForPending polls until the hub reports a pending request.
func waitForPending(t *testing.T, srv *httptest.Server) broker.Request {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(srv.URL + "/requests/current")
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode == http.StatusOK {
			var req broker.Request
			json.NewDecoder(resp.Body).Decode(&req)
			resp.Body.Close()
			return req
		}
		resp.Body.Close()
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for pending request")
	return broker.Request{}
}

func TestHub_AskAndRespond(t *testing.T) {
	_, srv := newTestHub(t)

	resolved := ask(t, srv, broker.Spec{Prompt: "Deploy to production?"})
	req := waitForPending(t, srv)

	resp := postJSON(t, fmt.Sprintf("%s/requests/%s/respond", srv.URL, req.ID), RespondRequest{Value: "yes, go ahead"})
	defer resp.Body.Close()

	var rr RespondResponse
	json.NewDecoder(resp.Body).Decode(&rr)
	if !rr.Accepted {
		t.Fatal("respond accepted = false, want true")
	}

	select {
	case res := <-resolved:
		if res.Source != broker.SourceRemote || res.Value != "yes, go ahead" {
			t.Errorf("resolution = %+v, want remote answer", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ask never resolved")
	}

	// Duplicate answer loses quietly.
	resp2 := postJSON(t, fmt.Sprintf("%s/requests/%s/respond", srv.URL, req.ID), RespondRequest{Value: "late"})
	defer resp2.Body.Close()
	var rr2 RespondResponse
	json.NewDecoder(resp2.Body).Decode(&rr2)
	if rr2.Accepted {
		t.Error("second respond accepted = true, want false")
	}
}

func TestHub_CancelRequest(t *testing.T) {
	_, srv := newTestHub(t)

	resolved := ask(t, srv, broker.Spec{Prompt: "Still needed?"})
	req := waitForPending(t, srv)

	resp := postJSON(t, fmt.Sprintf("%s/requests/%s/cancel", srv.URL, req.ID), CancelRequest{Reason: "tool aborted"})
	resp.Body.Close()

	select {
	case res := <-resolved:
		if res.Source != broker.SourceCancelled || res.Value != "tool aborted" {
			t.Errorf("resolution = %+v, want cancelled", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancel did not settle the ask")
	}
}

func TestHub_AskRejectsEmptyPrompt(t *testing.T) {
	_, srv := newTestHub(t)

	resp := postJSON(t, srv.URL+"/requests", broker.Spec{})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHub_CurrentRequest_None(t *testing.T) {
	_, srv := newTestHub(t)

	resp, err := http.Get(srv.URL + "/requests/current")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestHub_QueueEndpoints(t *testing.T) {
	_, srv := newTestHub(t)

	// Add
	resp := postJSON(t, srv.URL+"/queue", QueueAddRequest{Text: "use feature branch"})
	var item queue.Item
	json.NewDecoder(resp.Body).Decode(&item)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated || item.ID == "" {
		t.Fatalf("queue add status = %d, item = %+v", resp.StatusCode, item)
	}

	// Edit
	editReq, _ := http.NewRequest(http.MethodPut, fmt.Sprintf("%s/queue/%s", srv.URL, item.ID),
		bytes.NewBufferString(`{"text":"use main branch"}`))
	editResp, err := http.DefaultClient.Do(editReq)
	if err != nil {
		t.Fatal(err)
	}
	editResp.Body.Close()

	// Pause
	resp = postJSON(t, srv.URL+"/queue/paused", map[string]bool{"paused": true})
	var st queue.State
	json.NewDecoder(resp.Body).Decode(&st)
	resp.Body.Close()
	if !st.Paused {
		t.Error("queue not paused after POST /queue/paused")
	}
	if len(st.Items) != 1 || st.Items[0].Text != "use main branch" {
		t.Errorf("queue items = %+v, want edited item", st.Items)
	}

	// Remove
	delReq, _ := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/queue/%s", srv.URL, item.ID), nil)
	delResp, err := http.DefaultClient.Do(delReq)
	if err != nil {
		t.Fatal(err)
	}
	delResp.Body.Close()

	resp, _ = http.Get(srv.URL + "/queue")
	json.NewDecoder(resp.Body).Decode(&st)
	resp.Body.Close()
	if len(st.Items) != 0 {
		t.Errorf("queue items after remove = %+v, want empty", st.Items)
	}
}

func TestHub_QueueAutoConsumesAsk(t *testing.T) {
	_, srv := newTestHub(t)

	resp := postJSON(t, srv.URL+"/queue", QueueAddRequest{Text: "pick postgres"})
	resp.Body.Close()

	resolved := ask(t, srv, broker.Spec{Prompt: "Which database?"})
	select {
	case res := <-resolved:
		if res.Source != broker.SourceQueue || res.Value != "pick postgres" {
			t.Errorf("resolution = %+v, want queued answer", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("queued answer never consumed")
	}
}

func TestHub_History(t *testing.T) {
	_, srv := newTestHub(t)

	resolved := ask(t, srv, broker.Spec{Prompt: "Run migrations?"})
	req := waitForPending(t, srv)
	postJSON(t, fmt.Sprintf("%s/requests/%s/respond", srv.URL, req.ID), RespondRequest{Value: "yes"}).Body.Close()
	<-resolved

	// The history write happens on the event worker; give it a moment.
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get(srv.URL + "/history?limit=10")
		if err != nil {
			t.Fatal(err)
		}
		var entries []history.Entry
		json.NewDecoder(resp.Body).Decode(&entries)
		resp.Body.Close()

		if len(entries) == 1 {
			if entries[0].Prompt != "Run migrations?" || entries[0].Source != broker.SourceRemote {
				t.Errorf("history entry = %+v", entries[0])
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("history entries = %d, want 1", len(entries))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHub_HistoryRejectsBadLimit(t *testing.T) {
	_, srv := newTestHub(t)

	resp, err := http.Get(srv.URL + "/history?limit=zero")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readWS(t *testing.T, conn *websocket.Conn) wsMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg wsMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("websocket read failed: %v", err)
	}
	return msg
}

func sendWS(t *testing.T, conn *websocket.Conn, msgType string, payload interface{}) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteJSON(wsMessage{Type: msgType, Payload: data}); err != nil {
		t.Fatalf("websocket write failed: %v", err)
	}
}

func TestHub_WebSocketAuthRequired(t *testing.T) {
	_, srv := newTestHub(t)
	conn := dialWS(t, srv)

	sendWS(t, conn, msgGetState, struct{}{})
	if msg := readWS(t, conn); msg.Type != msgError {
		t.Errorf("unauthenticated getState reply = %s, want error", msg.Type)
	}

	sendWS(t, conn, msgAuthenticate, authPayload{Code: "000000"})
	if msg := readWS(t, conn); msg.Type != msgError {
		t.Errorf("wrong code reply = %s, want error", msg.Type)
	}
}

func TestHub_WebSocketFlow(t *testing.T) {
	_, srv := newTestHub(t)
	conn := dialWS(t, srv)

	sendWS(t, conn, msgAuthenticate, authPayload{Code: testAuthCode})
	if msg := readWS(t, conn); msg.Type != msgAuthenticated {
		t.Fatalf("auth reply = %s, want authenticated", msg.Type)
	}

	// Snapshot follows authentication.
	stateMsg := readWS(t, conn)
	if stateMsg.Type != msgState {
		t.Fatalf("post-auth message = %s, want state", stateMsg.Type)
	}
	var snap broker.Snapshot
	if err := json.Unmarshal(stateMsg.Payload, &snap); err != nil {
		t.Fatalf("bad state payload: %v", err)
	}
	if snap.Request != nil {
		t.Errorf("initial snapshot has pending request: %+v", snap.Request)
	}

	// A new ask reaches the remote client as pendingRequest.
	resolved := ask(t, srv, broker.Spec{Prompt: "Merge the release branch?"})
	pendingMsg := readWS(t, conn)
	if pendingMsg.Type != msgPendingRequest {
		t.Fatalf("broadcast = %s, want pendingRequest", pendingMsg.Type)
	}
	var req broker.Request
	json.Unmarshal(pendingMsg.Payload, &req)
	if req.Prompt != "Merge the release branch?" {
		t.Errorf("pending prompt = %q", req.Prompt)
	}

	// Remote answer over the socket wins the request.
	sendWS(t, conn, msgSubmitResponse, submitPayload{RequestID: req.ID, Value: "merge it"})

	resolvedMsg := readWS(t, conn)
	if resolvedMsg.Type != msgRequestResolved {
		t.Fatalf("broadcast = %s, want requestResolved", resolvedMsg.Type)
	}
	var rp resolvedPayload
	json.Unmarshal(resolvedMsg.Payload, &rp)
	if rp.Resolution == nil || rp.Resolution.Source != broker.SourceRemote {
		t.Errorf("resolved payload = %+v, want remote source", rp)
	}

	select {
	case res := <-resolved:
		if res.Value != "merge it" {
			t.Errorf("ask resolution value = %q", res.Value)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ask never resolved")
	}
}

func TestHub_WebSocketQueueBroadcast(t *testing.T) {
	_, srv := newTestHub(t)
	conn := dialWS(t, srv)

	sendWS(t, conn, msgAuthenticate, authPayload{Code: testAuthCode})
	readWS(t, conn) // authenticated
	readWS(t, conn) // state

	sendWS(t, conn, msgQueueAdd, QueueAddRequest{Text: "queued answer"})

	msg := readWS(t, conn)
	if msg.Type != msgQueueUpdated {
		t.Fatalf("broadcast = %s, want queueUpdated", msg.Type)
	}
	var st queue.State
	json.Unmarshal(msg.Payload, &st)
	if len(st.Items) != 1 || st.Items[0].Text != "queued answer" {
		t.Errorf("queue state = %+v", st)
	}
}

func TestHub_Health(t *testing.T) {
	_, srv := newTestHub(t)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}

	var body map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&body)
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %v", body["status"])
	}
}

func TestHub_withMiddleware(t *testing.T) {
	h, _ := newTestHub(t)

	handler := h.withMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// CORS preflight
	req := httptest.NewRequest("OPTIONS", "/", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200 for OPTIONS, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}

	// Regular request
	req = httptest.NewRequest("GET", "/", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Header().Get("Content-Type") != "application/json" {
		t.Error("missing Content-Type header")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Port != 8317 {
		t.Errorf("expected port 8317, got %d", cfg.Port)
	}
}

func TestNew_GeneratesAuthCode(t *testing.T) {
	log := logger.New()
	log.SetLevel(logger.LevelError)

	h := New(Config{}, nil, log)
	if len(h.AuthCode()) != 6 {
		t.Errorf("generated auth code = %q, want 6 digits", h.AuthCode())
	}
	for _, c := range h.AuthCode() {
		if c < '0' || c > '9' {
			t.Errorf("auth code contains non-digit: %q", h.AuthCode())
		}
	}
}
