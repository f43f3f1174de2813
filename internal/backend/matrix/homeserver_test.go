package matrix

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/id"
)

const (
	testAccessToken = "syt_test_token"
	testRoomID      = "!notaroomid:localhost"
	statePathPrefix = "/_matrix/client/v3/rooms/"
	aliasPathPrefix = "/_matrix/client/v3/directory/room/"
)

type stateKey struct {
	roomID    string
	eventType string
	stateKey  string
}

// fakeHomeserver implements the state and directory endpoints of the Matrix
// client-server API on top of in-memory maps.
type fakeHomeserver struct {
	mu         sync.Mutex
	state      map[stateKey]json.RawMessage
	aliases    map[string]string
	failStatus int
	failCode   string
	// failRetryMillis is reported as retry_after_ms on injected failures.
	failRetryMillis int
	gets            int
	puts            int
}

func newFakeHomeserver() *fakeHomeserver {
	return &fakeHomeserver{
		state:   make(map[stateKey]json.RawMessage),
		aliases: make(map[string]string),
	}
}

func (h *fakeHomeserver) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+testAccessToken {
		writeMatrixError(w, http.StatusUnauthorized, "M_UNKNOWN_TOKEN", "bad token")
		return
	}

	switch {
	case strings.HasPrefix(r.URL.Path, aliasPathPrefix):
		h.serveAlias(w, strings.TrimPrefix(r.URL.Path, aliasPathPrefix))
	case strings.HasPrefix(r.URL.Path, statePathPrefix):
		h.serveState(w, r, strings.TrimPrefix(r.URL.Path, statePathPrefix))
	default:
		writeMatrixError(w, http.StatusNotFound, "M_UNRECOGNIZED", "unrecognized endpoint")
	}
}

func (h *fakeHomeserver) serveAlias(w http.ResponseWriter, alias string) {
	h.mu.Lock()
	roomID, exists := h.aliases[alias]
	h.mu.Unlock()

	if !exists {
		writeMatrixError(w, http.StatusNotFound, "M_NOT_FOUND", "room alias not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"room_id": roomID, "servers": []string{"localhost"}})
}

func (h *fakeHomeserver) serveState(w http.ResponseWriter, r *http.Request, rest string) {
	roomID, tail, found := strings.Cut(rest, "/state/")
	if !found {
		writeMatrixError(w, http.StatusNotFound, "M_UNRECOGNIZED", "unrecognized endpoint")
		return
	}
	eventType, key, _ := strings.Cut(tail, "/")
	address := stateKey{roomID: roomID, eventType: eventType, stateKey: key}

	h.mu.Lock()
	defer h.mu.Unlock()

	switch r.Method {
	case http.MethodGet:
		h.gets++
		if h.failStatus != 0 {
			body := map[string]any{"errcode": h.failCode, "error": "injected failure"}
			if h.failRetryMillis > 0 {
				body["retry_after_ms"] = h.failRetryMillis
			}
			writeJSON(w, h.failStatus, body)
			return
		}
		content, exists := h.state[address]
		if !exists {
			writeMatrixError(w, http.StatusNotFound, "M_NOT_FOUND", "Event not found.")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(content)
	case http.MethodPut:
		h.puts++
		var body json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeMatrixError(w, http.StatusBadRequest, "M_NOT_JSON", err.Error())
			return
		}
		h.state[address] = body
		writeJSON(w, http.StatusOK, map[string]any{"event_id": "$event" + eventType})
	default:
		writeMatrixError(w, http.StatusMethodNotAllowed, "M_UNRECOGNIZED", "method not allowed")
	}
}

func (h *fakeHomeserver) seed(roomID, eventType, key, content string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.state[stateKey{roomID: roomID, eventType: eventType, stateKey: key}] = json.RawMessage(content)
}

func (h *fakeHomeserver) counts() (gets int, puts int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.gets, h.puts
}

func writeMatrixError(w http.ResponseWriter, status int, errCode string, message string) {
	writeJSON(w, status, map[string]any{"errcode": errCode, "error": message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func newTestServer(t *testing.T, homeserver *fakeHomeserver) (*httptest.Server, *mautrix.Client) {
	t.Helper()

	server := httptest.NewServer(homeserver)
	t.Cleanup(server.Close)

	client, err := mautrix.NewClient(server.URL, id.UserID("@opsdroid:localhost"), testAccessToken)
	if err != nil {
		t.Fatalf("new mautrix client failed: %v", err)
	}
	client.Client = server.Client()

	return server, client
}
