package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/spaceshq/spaces-server/internal/access"
	"github.com/spaceshq/spaces-server/internal/auth"
	"github.com/spaceshq/spaces-server/internal/config"
	"github.com/spaceshq/spaces-server/internal/meet"
	"github.com/spaceshq/spaces-server/internal/realtime"
	"github.com/spaceshq/spaces-server/internal/store"
	"github.com/spaceshq/spaces-server/internal/store/sqlite"
)

type testEnv struct {
	ts    *httptest.Server
	store *sqlite.Store
	auth  *auth.Service
	hub   *realtime.Hub
}

func startTestServer(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	logger := zerolog.Nop()
	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	})
	hub := realtime.NewHub(&logger, 4)
	gate := access.NewGate(st)
	issuer := meet.NewIssuer("", "", "")

	server := NewServer(hub, gate, st, authService, issuer, config.Config{
		Addr:              ":0",
		ReadHeaderTimeout: time.Second,
	}, &logger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, store: st, auth: authService, hub: hub}
}

func (e *testEnv) wsURL(path string) string {
	return strings.Replace(e.ts.URL, "http", "ws", 1) + path
}

// signup registers a user through the API and returns the created user and
// its token.
func (e *testEnv) signup(t *testing.T, name, email string) (UserResponse, string) {
	t.Helper()

	var out AuthResponse
	status := e.postJSON(t, "/api/users/signup", "", map[string]any{
		"name":     name,
		"email":    email,
		"password": "password123",
	}, &out)
	if status != http.StatusCreated {
		t.Fatalf("signup %s: status %d", email, status)
	}
	return out.User, out.Token
}

// seedSpace stores a space document with mixed id encodings, the shape real
// imported documents have.
func (e *testEnv) seedSpace(t *testing.T) *store.Space {
	t.Helper()

	doc := `{
		"id": 10,
		"name": "eng",
		"ownerId": 1,
		"members": [1, "2"],
		"channels": [
			{"id": 42, "name": "general", "members": [1, "2"], "roles": {"2": "admin"}},
			{"id": "43", "name": "random", "members": [1]}
		]
	}`
	var sp store.Space
	if err := json.Unmarshal([]byte(doc), &sp); err != nil {
		t.Fatalf("unmarshal space fixture: %v", err)
	}
	if err := e.store.SaveSpace(context.Background(), &sp); err != nil {
		t.Fatalf("seed space: %v", err)
	}
	return &sp
}

// postJSON issues a POST with an optional X-User-Id header and decodes the
// response into out when non-nil.
func (e *testEnv) postJSON(t *testing.T, path, asUser string, body any, out any) int {
	t.Helper()
	return e.doJSON(t, http.MethodPost, path, asUser, body, out)
}

func (e *testEnv) doJSON(t *testing.T, method, path, asUser string, body any, out any) int {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, e.ts.URL+path, &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if asUser != "" {
		req.Header.Set("X-User-Id", asUser)
	}

	resp, err := e.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s response: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func dialWS(t *testing.T, ctx context.Context, url string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

// readFrame reads until a frame whose type satisfies want, skipping
// presence updates and other interleaved traffic.
func readFrame(t *testing.T, ctx context.Context, conn *websocket.Conn, want string) map[string]any {
	t.Helper()

	for {
		var frame map[string]any
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			t.Fatalf("read frame (waiting for %q): %v", want, err)
		}
		if frameType, _ := frame["type"].(string); frameType == want {
			return frame
		}
	}
}
