package live

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/Emjay-16/aqi-project/cmd/internal/telemetry"
)

func startGateway(t *testing.T, cfg Config) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(quietLogger(), nil)
	gw := NewGateway(quietLogger(), hub, cfg)

	mux := http.NewServeMux()
	gw.Register(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return hub, ts
}

func dial(t *testing.T, ctx context.Context, url, origin string, subprotocols ...string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	opts := &websocket.DialOptions{Subprotocols: subprotocols}
	if origin != "" {
		opts.HTTPHeader = http.Header{"Origin": []string{origin}}
	}
	return websocket.Dial(ctx, url, opts)
}

func readEnvelope(t *testing.T, ctx context.Context, conn *websocket.Conn) Envelope {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := env.Validate(); err != nil {
		t.Fatalf("invalid envelope %s: %v", data, err)
	}
	return env
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestGateway_StreamsReadingsForNode(t *testing.T) {
	hub, ts := startGateway(t, DefaultConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := dial(t, ctx, ts.URL+"/aqi/live?node_id=n1", "http://localhost:3000", Subprotocol)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.CloseNow() }()

	if conn.Subprotocol() != Subprotocol {
		t.Fatalf("expected subprotocol %q, got %q", Subprotocol, conn.Subprotocol())
	}

	ready := readEnvelope(t, ctx, conn)
	if ready.Type != TypeReady {
		t.Fatalf("expected ready, got %q", ready.Type)
	}
	var rp ReadyPayload
	if err := json.Unmarshal(ready.Payload, &rp); err != nil || rp.NodeID != "n1" || rp.SessionID == "" {
		t.Fatalf("unexpected ready payload: %+v err=%v", rp, err)
	}

	hub.Publish("other", sample("other", 99))
	want := sample("n1", 35.5)
	hub.Publish("n1", want)

	env := readEnvelope(t, ctx, conn)
	if env.Type != TypeReading {
		t.Fatalf("expected reading, got %q", env.Type)
	}
	var got telemetry.Sample
	if err := json.Unmarshal(env.Payload, &got); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if got.NodeID != "n1" || !reflect.DeepEqual(got.PM2_5, want.PM2_5) {
		t.Fatalf("unexpected sample: %+v", got)
	}

	_ = conn.Close(websocket.StatusNormalClosure, "done")
	waitFor(t, func() bool { return hub.Subscribers("n1") == 0 })
}

func TestGateway_RejectsDisallowedOrigin(t *testing.T) {
	_, ts := startGateway(t, DefaultConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, resp, err := dial(t, ctx, ts.URL+"/aqi/live?node_id=n1", "http://evil.example", Subprotocol)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err == nil {
		_ = conn.CloseNow()
		t.Fatalf("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got resp=%v err=%v", resp, err)
	}
}

func TestGateway_OriginRequired(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OriginRequired = true
	_, ts := startGateway(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, resp, err := dial(t, ctx, ts.URL+"/aqi/live?node_id=n1", "", Subprotocol)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err == nil {
		_ = conn.CloseNow()
		t.Fatalf("expected handshake failure without origin")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got resp=%v err=%v", resp, err)
	}
}

func TestGateway_WildcardOrigin(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowedOrigins = []string{"*"}
	_, ts := startGateway(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := dial(t, ctx, ts.URL+"/aqi/live?node_id=n1", "https://dashboard.example", Subprotocol)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.CloseNow() }()

	if env := readEnvelope(t, ctx, conn); env.Type != TypeReady {
		t.Fatalf("expected ready, got %q", env.Type)
	}
}

func TestGateway_RequiresSubprotocol(t *testing.T) {
	_, ts := startGateway(t, DefaultConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := dial(t, ctx, ts.URL+"/aqi/live?node_id=n1", "")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.CloseNow() }()

	_, _, err = conn.Read(ctx)
	if got := websocket.CloseStatus(err); got != websocket.StatusPolicyViolation {
		t.Fatalf("expected policy violation close, got %v (err=%v)", got, err)
	}
}

func TestGateway_MissingNodeID(t *testing.T) {
	_, ts := startGateway(t, DefaultConfig())

	resp, err := http.Get(ts.URL + "/aqi/live")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestDeriveOriginPatterns(t *testing.T) {
	got := deriveOriginPatterns([]string{"http://localhost:3000", "https://LOCALHOST", "http://127.0.0.1", ""})
	want := []string{"127.0.0.1", "127.0.0.1:*", "localhost", "localhost:*"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}

	if got := deriveOriginPatterns([]string{"http://a", "*"}); !reflect.DeepEqual(got, []string{"*"}) {
		t.Fatalf("wildcard: got %v", got)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("AQI_LIVE_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("AQI_LIVE_ORIGIN_REQUIRED", "true")
	t.Setenv("AQI_LIVE_DEV_INSECURE", "")
	t.Setenv("AQI_LIVE_SEND_QUEUE", "2")
	t.Setenv("AQI_LIVE_WRITE_TIMEOUT", "")
	t.Setenv("AQI_LIVE_HEARTBEAT_INTERVAL", "10s")
	t.Setenv("AQI_LIVE_HEARTBEAT_TIMEOUT", "")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if !reflect.DeepEqual(cfg.AllowedOrigins, []string{"https://a.example", "https://b.example"}) {
		t.Fatalf("origins: %v", cfg.AllowedOrigins)
	}
	if !cfg.OriginRequired || cfg.DevInsecure {
		t.Fatalf("bools: %+v", cfg)
	}
	if cfg.SendQueue != minSendQueue {
		t.Fatalf("send queue should clamp to %d, got %d", minSendQueue, cfg.SendQueue)
	}
	if cfg.HeartbeatInterval != 10*time.Second || cfg.WriteTimeout != DefaultWriteTimeout {
		t.Fatalf("durations: %+v", cfg)
	}

	t.Setenv("AQI_LIVE_HEARTBEAT_INTERVAL", "never")
	if _, err := FromEnv(); err == nil {
		t.Fatalf("expected error for bad duration")
	}
}
