// Package main provides a CI-friendly smoke test for the AQI live feed.
//
// It validates:
//   - handshake + subprotocol selection
//   - ready envelope for the requested node
//   - POST /aqi -> reading envelope fanned out to the subscriber
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/Emjay-16/aqi-project/cmd/internal/live"
	"github.com/Emjay-16/aqi-project/cmd/internal/telemetry"
)

const maxReadBytes = 1 << 20 // 1MiB

func main() {
	var (
		baseURL = flag.String("base", "http://127.0.0.1:8086", "HTTP base URL (including any root path)")
		origin  = flag.String("origin", "http://localhost", "Origin header to send (browser-like WS handshake)")
		nodeID  = flag.String("node", fmt.Sprintf("smoke-%d", time.Now().Unix()), "node_id to subscribe and post for")
		timeout = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	wsURL, err := liveURL(*baseURL, *nodeID)
	if err != nil {
		fatalf("invalid -base: %v", err)
	}
	if err := validateOrigin(*origin); err != nil {
		fatalf("invalid -origin: %v", err)
	}

	root := context.Background()

	conn := mustConnect(root, wsURL, *origin, *timeout)
	defer closeWS(conn)

	ready := mustReadType(root, conn, live.TypeReady, *timeout)
	var rp live.ReadyPayload
	if err := json.Unmarshal(ready.Payload, &rp); err != nil {
		fatalf("unmarshal ready payload: %v", err)
	}
	if rp.NodeID != *nodeID || strings.TrimSpace(rp.SessionID) == "" {
		fatalf("ready mismatch: %+v", rp)
	}
	if *verbose {
		fmt.Printf("subscribed: session=%s node=%s\n", rp.SessionID, rp.NodeID)
	}

	reading := telemetry.Reading{
		NodeID:      *nodeID,
		PM1:         1.5,
		PM2_5:       12.25,
		PM4:         14,
		PM10:        20.5,
		CO2:         415,
		Temperature: 29.1,
		Humidity:    61,
	}
	mustPostReading(root, *baseURL, *origin, reading, *timeout)

	env := mustReadType(root, conn, live.TypeReading, *timeout)
	var got telemetry.Sample
	if err := json.Unmarshal(env.Payload, &got); err != nil {
		fatalf("unmarshal reading payload: %v", err)
	}
	if got.NodeID != *nodeID || got.PM2_5 == nil || *got.PM2_5 != reading.PM2_5 {
		fatalf("reading mismatch: %+v", got)
	}

	fmt.Println("OK: live feed smoke passed")
}

func liveURL(base, nodeID string) (string, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(base), "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", errors.New("missing host")
	}
	u.Path += "/aqi/live"
	u.RawQuery = url.Values{"node_id": {nodeID}}.Encode()
	return u.String(), nil
}

func validateOrigin(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin must be http/https, got: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("origin missing host")
	}
	return nil
}

func mustConnect(parent context.Context, wsURL, origin string, stepTimeout time.Duration) *websocket.Conn {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{live.Subprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect: %v", err)
	}
	if got := conn.Subprotocol(); got != live.Subprotocol {
		fatalf("subprotocol mismatch: got %q want %q", got, live.Subprotocol)
	}

	conn.SetReadLimit(maxReadBytes)
	return conn
}

func mustReadType(parent context.Context, conn *websocket.Conn, wantType string, stepTimeout time.Duration) live.Envelope {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			fatalf("waiting for %q: %v", wantType, err)
		}
		var env live.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			fatalf("decode envelope: %v", err)
		}
		if err := env.Validate(); err != nil {
			fatalf("invalid envelope: %v", err)
		}
		if env.Type == live.TypeError {
			fatalf("server error envelope: %s", string(env.Payload))
		}
		if env.Type == wantType {
			return env
		}
	}
}

func mustPostReading(parent context.Context, base, origin string, r telemetry.Reading, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	body, err := json.Marshal(r)
	if err != nil {
		fatalf("encode reading: %v", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(base, "/")+"/aqi", bytes.NewReader(body))
	if err != nil {
		fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if origin != "" {
		req.Header.Set("Origin", origin)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatalf("POST /aqi: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxReadBytes))
	if resp.StatusCode != http.StatusOK {
		fatalf("POST /aqi: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
