package app

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestStripANSI(t *testing.T) {
	t.Parallel()

	in := ansiBlue + "INFO" + ansiReset + " plain " + ansiRed + "ERR" + ansiReset
	got := stripANSI(in)
	want := "INFO plain ERR"
	if got != want {
		t.Fatalf("stripANSI()=%q want=%q", got, want)
	}
	if n := visualLen(in); n != len(want) {
		t.Fatalf("visualLen()=%d want=%d", n, len(want))
	}
}

func TestPrettyHandler_PlainLine(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}, false))

	log.With("component", "telemetry").Info("http.request",
		"method", "post",
		"path", "/aqi",
		"status", 200,
		"status_class", "2xx",
		"duration_ms", int64(12),
		"node_id", "node 1",
	)

	line := buf.String()
	for _, want := range []string{
		"lvl=[INFO]",
		"msg=http.request",
		"component=telemetry",
		"method=POST",
		"path=/aqi",
		"status=200",
		"class=2xx",
		"duration=12ms",
		`node_id="node 1"`,
	} {
		if !strings.Contains(line, want) {
			t.Fatalf("missing %q in %q", want, line)
		}
	}
	if strings.Contains(line, "\x1b[") {
		t.Fatalf("unexpected color codes in %q", line)
	}
}

func TestPrettyHandler_ColorAndLevelFilter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}, true))

	log.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info record should be filtered, got %q", buf.String())
	}

	log.Error("notify.send.fail", "result", "failed")
	line := buf.String()
	if !strings.Contains(line, ansiRed+"[ERROR]"+ansiReset) {
		t.Fatalf("expected red level tag in %q", line)
	}
	if got := stripANSI(line); !strings.Contains(got, "result=failed") {
		t.Fatalf("missing result in %q", got)
	}
}

func TestPrettyHandler_Groups(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, nil, false))

	log.WithGroup("live").Info("live.ws.open", slog.Group("client", "session", "01ABC"))
	if got := buf.String(); !strings.Contains(got, "live.client.session=01ABC") {
		t.Fatalf("group key not flattened: %q", got)
	}
}

func TestPrettyHandler_LeadKeysFirst(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, nil, false))

	log.Info("http.request",
		"request_id", "5f0c2a1e-1111-2222-3333-444455556666",
		"status", 404,
		"method", "GET",
	)

	line := buf.String()
	method := strings.Index(line, "method=GET")
	status := strings.Index(line, "status=404")
	rid := strings.Index(line, "rid=5f0c2a1e\n")
	if method < 0 || status < 0 || rid < 0 {
		t.Fatalf("missing fields in %q", line)
	}
	if !(method < status && status < rid) {
		t.Fatalf("unexpected field order in %q", line)
	}
}
