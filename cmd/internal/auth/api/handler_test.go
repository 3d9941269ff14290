package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/Emjay-16/aqi-project/cmd/identity"
	"github.com/Emjay-16/aqi-project/cmd/security/password"
)

type captureNotifier struct {
	mu     sync.Mutex
	tokens map[string]string
}

func (n *captureNotifier) Enqueue(_ context.Context, v identity.VerificationNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.tokens == nil {
		n.tokens = map[string]string{}
	}
	n.tokens[v.Username] = v.Token
	return nil
}

func (n *captureNotifier) token(t *testing.T, username string) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	tok, ok := n.tokens[username]
	if !ok {
		t.Fatalf("no verification token captured for %q", username)
	}
	return tok
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type envelopeBody struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	srv      *httptest.Server
	notifier *captureNotifier
	clock    *testClock
	store    *identity.MemoryStore
	handler  *Handler
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.LoginRate = 0
	cfg.RegisterRate = 0
	return cfg
}

func newTestServer(t *testing.T, cfg Config, svcOpts ...identity.ServiceOption) *testServer {
	t.Helper()

	clock := &testClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	notifier := &captureNotifier{}
	store := identity.NewMemoryStore()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	hasher := password.DefaultConfig()
	hasher.Cost = bcrypt.MinCost

	opts := append([]identity.ServiceOption{
		identity.WithHasher(hasher),
		identity.WithNotifier(notifier),
		identity.WithClock(clock.Now),
		identity.WithLogger(log),
	}, svcOpts...)
	svc, err := identity.NewService(store, opts...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	h, err := NewHandler(log, svc, cfg, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	t.Cleanup(h.Close)

	mux := http.NewServeMux()
	h.Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &testServer{srv: srv, notifier: notifier, clock: clock, store: store, handler: h}
}

func (ts *testServer) postJSON(t *testing.T, path string, payload any) (int, envelopeBody) {
	t.Helper()
	b, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := ts.srv.Client().Post(ts.srv.URL+path, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return readEnvelope(t, resp)
}

func (ts *testServer) verify(t *testing.T, token string) (int, envelopeBody) {
	t.Helper()
	resp, err := ts.srv.Client().Get(ts.srv.URL + "/verify-email?token=" + url.QueryEscape(token))
	if err != nil {
		t.Fatalf("GET /verify-email: %v", err)
	}
	return readEnvelope(t, resp)
}

func readEnvelope(t *testing.T, resp *http.Response) (int, envelopeBody) {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var env envelopeBody
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("decode envelope %q: %v", raw, err)
	}
	return resp.StatusCode, env
}

func aliceRequest() registerRequest {
	return registerRequest{
		FirstName: "a",
		LastName:  "b",
		Username:  "alice",
		Email:     "a@x.com",
		Phone:     "555",
		Password:  "pw1",
	}
}

func TestAuthAPI_EndToEnd(t *testing.T) {
	ts := newTestServer(t, testConfig())

	status, env := ts.postJSON(t, "/register", aliceRequest())
	if status != http.StatusOK || env.Status != 1 {
		t.Fatalf("register: status=%d env=%+v", status, env)
	}
	if env.Message != msgRegistered {
		t.Fatalf("unexpected register message: %q", env.Message)
	}
	var reg userResponse
	if err := json.Unmarshal(env.Data, &reg); err != nil {
		t.Fatalf("decode register data: %v", err)
	}
	if reg.UserID <= 0 || reg.Username != "alice" || reg.Email != "a@x.com" {
		t.Fatalf("unexpected register data: %+v", reg)
	}

	status, env = ts.postJSON(t, "/register", aliceRequest())
	if status != http.StatusBadRequest || env.Status != 0 || env.Message != msgDuplicate {
		t.Fatalf("duplicate register: status=%d env=%+v", status, env)
	}

	status, env = ts.postJSON(t, "/login", loginRequest{UsernameOrEmail: "alice", Password: "pw1"})
	if status != http.StatusOK || env.Message != msgLoginOK {
		t.Fatalf("login: status=%d env=%+v", status, env)
	}
	var login userResponse
	if err := json.Unmarshal(env.Data, &login); err != nil {
		t.Fatalf("decode login data: %v", err)
	}
	if login.UserID != reg.UserID {
		t.Fatalf("login user_id=%d, register user_id=%d", login.UserID, reg.UserID)
	}

	token := ts.notifier.token(t, "alice")

	status, env = ts.verify(t, token)
	if status != http.StatusOK || env.Status != 1 || env.Message != msgVerified {
		t.Fatalf("verify: status=%d env=%+v", status, env)
	}
	if u, ok := ts.store.User(reg.UserID); !ok || !u.Verified {
		t.Fatalf("expected user to be verified")
	}

	status, env = ts.verify(t, token)
	if status != http.StatusBadRequest || env.Message != msgInvalidToken {
		t.Fatalf("replayed verify: status=%d env=%+v", status, env)
	}
}

func TestAuthAPI_Register_DuplicateEmailDifferentUsername(t *testing.T) {
	ts := newTestServer(t, testConfig())

	if status, _ := ts.postJSON(t, "/register", aliceRequest()); status != http.StatusOK {
		t.Fatalf("first register failed: %d", status)
	}

	req := aliceRequest()
	req.Username = "alice2"
	status, env := ts.postJSON(t, "/register", req)
	if status != http.StatusBadRequest || env.Message != msgDuplicate {
		t.Fatalf("expected duplicate, got status=%d env=%+v", status, env)
	}
	if n := ts.store.UserCount(); n != 1 {
		t.Fatalf("expected 1 user, got %d", n)
	}
}

func TestAuthAPI_Register_InvalidInput(t *testing.T) {
	ts := newTestServer(t, testConfig())

	req := aliceRequest()
	req.Email = "not-an-email"
	status, env := ts.postJSON(t, "/register", req)
	if status != http.StatusBadRequest || env.Message != "invalid email address" {
		t.Fatalf("expected invalid email, got status=%d env=%+v", status, env)
	}

	resp, err := ts.srv.Client().Post(ts.srv.URL+"/register", "application/json", strings.NewReader(`{"username":`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	status, env = readEnvelope(t, resp)
	if status != http.StatusBadRequest || env.Message != "invalid request body" {
		t.Fatalf("expected invalid body, got status=%d env=%+v", status, env)
	}
}

func TestAuthAPI_Login_Failures(t *testing.T) {
	ts := newTestServer(t, testConfig())
	if status, _ := ts.postJSON(t, "/register", aliceRequest()); status != http.StatusOK {
		t.Fatalf("register failed")
	}

	tests := []struct {
		name string
		req  loginRequest
		want string
	}{
		{"unknown user", loginRequest{UsernameOrEmail: "bob", Password: "pw1"}, msgUserNotFound},
		{"wrong password", loginRequest{UsernameOrEmail: "alice", Password: "pw2"}, msgInvalidPassword},
		{"empty password", loginRequest{UsernameOrEmail: "alice", Password: ""}, msgInvalidPassword},
		{"case differs", loginRequest{UsernameOrEmail: "Alice", Password: "pw1"}, msgUserNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := ts.postJSON(t, "/login", tt.req)
			if status != http.StatusBadRequest || env.Status != 0 || env.Message != tt.want {
				t.Fatalf("status=%d env=%+v, want message %q", status, env, tt.want)
			}
		})
	}

	status, env := ts.postJSON(t, "/login", loginRequest{UsernameOrEmail: "a@x.com", Password: "pw1"})
	if status != http.StatusOK {
		t.Fatalf("login by email: status=%d env=%+v", status, env)
	}
}

func TestAuthAPI_Login_RequireVerified(t *testing.T) {
	ts := newTestServer(t, testConfig(), identity.WithRequireVerified(true))
	if status, _ := ts.postJSON(t, "/register", aliceRequest()); status != http.StatusOK {
		t.Fatalf("register failed")
	}

	status, env := ts.postJSON(t, "/login", loginRequest{UsernameOrEmail: "alice", Password: "pw1"})
	if status != http.StatusBadRequest || env.Message != msgNotVerified {
		t.Fatalf("expected not verified, got status=%d env=%+v", status, env)
	}

	if status, _ := ts.verify(t, ts.notifier.token(t, "alice")); status != http.StatusOK {
		t.Fatalf("verify failed")
	}
	if status, _ := ts.postJSON(t, "/login", loginRequest{UsernameOrEmail: "alice", Password: "pw1"}); status != http.StatusOK {
		t.Fatalf("expected login after verification, got %d", status)
	}
}

func TestAuthAPI_VerifyEmail_Expired(t *testing.T) {
	ts := newTestServer(t, testConfig())
	status, env := ts.postJSON(t, "/register", aliceRequest())
	if status != http.StatusOK {
		t.Fatalf("register failed")
	}
	var reg userResponse
	_ = json.Unmarshal(env.Data, &reg)

	ts.clock.Advance(identity.DefaultVerificationTTL + time.Second)

	token := ts.notifier.token(t, "alice")
	status, env = ts.verify(t, token)
	if status != http.StatusBadRequest || env.Message != msgExpiredToken {
		t.Fatalf("expected expired, got status=%d env=%+v", status, env)
	}
	if u, _ := ts.store.User(reg.UserID); u.Verified {
		t.Fatalf("user must stay unverified after expired token")
	}

	status, env = ts.verify(t, token)
	if status != http.StatusBadRequest || env.Message != msgInvalidToken {
		t.Fatalf("expected invalid after expiry cleared token, got status=%d env=%+v", status, env)
	}
}

func TestAuthAPI_VerifyEmail_MissingToken(t *testing.T) {
	ts := newTestServer(t, testConfig())

	status, env := ts.verify(t, "")
	if status != http.StatusBadRequest || env.Message != msgInvalidToken {
		t.Fatalf("expected invalid token, got status=%d env=%+v", status, env)
	}
}

func TestAuthAPI_MethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, testConfig())

	for _, c := range []struct{ method, path string }{
		{http.MethodGet, "/register"},
		{http.MethodGet, "/login"},
		{http.MethodPost, "/verify-email"},
	} {
		req, _ := http.NewRequest(c.method, ts.srv.URL+c.path, nil)
		resp, err := ts.srv.Client().Do(req)
		if err != nil {
			t.Fatalf("%s %s: %v", c.method, c.path, err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Fatalf("%s %s: expected 405, got %d", c.method, c.path, resp.StatusCode)
		}
	}
}

func TestAuthAPI_LoginRateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.LoginRate = rate.Limit(1.0 / 60.0)
	cfg.LoginBurst = 2
	ts := newTestServer(t, cfg)

	for i := 0; i < 2; i++ {
		if status, _ := ts.postJSON(t, "/login", loginRequest{UsernameOrEmail: "x", Password: "y"}); status != http.StatusBadRequest {
			t.Fatalf("attempt %d: expected 400, got %d", i, status)
		}
	}

	b, _ := json.Marshal(loginRequest{UsernameOrEmail: "x", Password: "y"})
	resp, err := ts.srv.Client().Post(ts.srv.URL+"/login", "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	status, _ := readEnvelope(t, resp)
	if status != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", status)
	}
	if got := resp.Header.Get("Retry-After"); got != "60" {
		t.Fatalf("expected Retry-After=60, got %q", got)
	}

	ts.clock.Advance(time.Minute)
	if status, _ := ts.postJSON(t, "/login", loginRequest{UsernameOrEmail: "x", Password: "y"}); status != http.StatusBadRequest {
		t.Fatalf("expected limiter to refill, got %d", status)
	}
}

func TestNewHandler_NilService(t *testing.T) {
	if _, err := NewHandler(nil, nil, DefaultConfig()); err == nil {
		t.Fatalf("expected error for nil service")
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/login", nil)
	r.RemoteAddr = "10.0.0.5:4321"
	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	r.Header.Set("X-Real-IP", "198.51.100.7")

	if got := clientIP(r, false); got.String() != "10.0.0.5" {
		t.Fatalf("untrusted proxy: got %v", got)
	}
	if got := clientIP(r, true); got.String() != "203.0.113.9" {
		t.Fatalf("trusted proxy: got %v", got)
	}

	r.Header.Del("X-Forwarded-For")
	if got := clientIP(r, true); got.String() != "198.51.100.7" {
		t.Fatalf("x-real-ip: got %v", got)
	}

	r.Header.Del("X-Real-IP")
	r.RemoteAddr = "garbage"
	if got := clientIP(r, true); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}
