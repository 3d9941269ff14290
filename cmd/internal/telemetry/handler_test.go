package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu       sync.Mutex
	written  []Reading
	writeErr error
	samples  []Sample
	queryErr error
	queried  []string
}

func (s *fakeStore) Write(_ context.Context, r Reading, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.written = append(s.written, r)
	return nil
}

func (s *fakeStore) Recent(_ context.Context, nodeID string) ([]Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queried = append(s.queried, nodeID)
	return s.samples, s.queryErr
}

type fakePublisher struct {
	nodes   []string
	samples []Sample
}

func (p *fakePublisher) Publish(nodeID string, s Sample) {
	p.nodes = append(p.nodes, nodeID)
	p.samples = append(p.samples, s)
}

type countingRecorder map[string]int

func (c countingRecorder) TelemetryWrite(result string) { c[result]++ }

type envelopeBody struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func serve(t *testing.T, h *Handler, method, target, body string) (int, envelopeBody) {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)

	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	var env envelopeBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), rr.Body.String())
	return rr.Code, env
}

const validBody = `{"node_id":"n1","PM1":1,"PM2_5":2.5,"PM4":4,"PM10":10,"CO2":420,"temperature":31.5,"humidity":60}`

func TestPostAQI_WritesAndPublishes(t *testing.T) {
	store := &fakeStore{}
	pub := &fakePublisher{}
	rec := countingRecorder{}
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h := NewHandler(quietLogger(), store, WithPublisher(pub), WithRecorder(rec),
		WithClock(func() time.Time { return fixed }))

	code, env := serve(t, h, http.MethodPost, "/aqi", validBody)

	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, env.Status)
	assert.Equal(t, "Data successfully written", env.Message)

	var got Reading
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "n1", got.NodeID)
	assert.Equal(t, 2.5, got.PM2_5)

	require.Len(t, store.written, 1)
	assert.Equal(t, 420.0, store.written[0].CO2)

	require.Equal(t, []string{"n1"}, pub.nodes)
	assert.True(t, pub.samples[0].Time.Equal(fixed))
	require.NotNil(t, pub.samples[0].Humidity)
	assert.Equal(t, 60.0, *pub.samples[0].Humidity)
	assert.Equal(t, 1, rec["ok"])
}

func TestPostAQI_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing node_id", `{"PM1":1,"PM2_5":2,"PM4":4,"PM10":10,"CO2":1,"temperature":1,"humidity":1}`, "node_id is required"},
		{"blank node_id", `{"node_id":"  ","PM1":1,"PM2_5":2,"PM4":4,"PM10":10,"CO2":1,"temperature":1,"humidity":1}`, "node_id is required"},
		{"missing field", `{"node_id":"n1","PM1":1,"PM2_5":2,"PM4":4,"PM10":10,"CO2":1,"temperature":1}`, "humidity is required"},
		{"not json", `{"node_id":`, "invalid request body"},
		{"unknown field", `{"node_id":"n1","pm25":1}`, "invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{}
			h := NewHandler(quietLogger(), store)

			code, env := serve(t, h, http.MethodPost, "/aqi", tt.body)

			assert.Equal(t, http.StatusBadRequest, code)
			assert.Equal(t, 0, env.Status)
			assert.Equal(t, tt.want, env.Message)
			assert.Empty(t, store.written)
		})
	}
}

func TestPostAQI_StoreFailureIs500WithMessage(t *testing.T) {
	store := &fakeStore{writeErr: errors.New("influx: unauthorized access")}
	pub := &fakePublisher{}
	rec := countingRecorder{}
	h := NewHandler(quietLogger(), store, WithPublisher(pub), WithRecorder(rec))

	code, env := serve(t, h, http.MethodPost, "/aqi", validBody)

	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "influx: unauthorized access", env.Message)
	assert.Empty(t, pub.nodes)
	assert.Equal(t, 1, rec["error"])
}

func TestGetAQI_ReturnsSamples(t *testing.T) {
	v := 3.0
	store := &fakeStore{samples: []Sample{{NodeID: "n1", PM1: &v, Time: time.Unix(0, 0)}}}
	h := NewHandler(quietLogger(), store)

	code, env := serve(t, h, http.MethodGet, "/aqi?node_id=n1", "")

	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"n1"}, store.queried)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, 3.0, rows[0]["PM1"])
	assert.Nil(t, rows[0]["PM4"])
	assert.Contains(t, rows[0], "time")
}

func TestGetAQI_EmptyIsArray(t *testing.T) {
	h := NewHandler(quietLogger(), &fakeStore{})

	code, env := serve(t, h, http.MethodGet, "/aqi?node_id=n1", "")

	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[]`, string(env.Data))
}

func TestGetAQI_MissingNodeID(t *testing.T) {
	store := &fakeStore{}
	h := NewHandler(quietLogger(), store)

	code, env := serve(t, h, http.MethodGet, "/aqi", "")

	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "node_id is required", env.Message)
	assert.Empty(t, store.queried)
}

func TestGetAQI_QueryFailure(t *testing.T) {
	h := NewHandler(quietLogger(), &fakeStore{queryErr: errors.New("query timeout")})

	code, env := serve(t, h, http.MethodGet, "/aqi?node_id=n1", "")

	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "query timeout", env.Message)
}

func TestAQI_UnconfiguredIs503(t *testing.T) {
	h := NewHandler(quietLogger(), nil)

	code, _ := serve(t, h, http.MethodGet, "/aqi?node_id=n1", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	code, _ = serve(t, h, http.MethodPost, "/aqi", validBody)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestAQI_MethodNotAllowed(t *testing.T) {
	h := NewHandler(quietLogger(), &fakeStore{})

	code, _ := serve(t, h, http.MethodDelete, "/aqi", "")
	assert.Equal(t, http.StatusMethodNotAllowed, code)
}
