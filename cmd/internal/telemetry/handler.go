package telemetry

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Emjay-16/aqi-project/cmd/internal/envelope"
)

type readingRequest struct {
	NodeID      string   `json:"node_id"`
	PM1         *float64 `json:"PM1"`
	PM2_5       *float64 `json:"PM2_5"`
	PM4         *float64 `json:"PM4"`
	PM10        *float64 `json:"PM10"`
	CO2         *float64 `json:"CO2"`
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
}

func (req readingRequest) reading() (Reading, error) {
	id, err := validateNodeID(req.NodeID)
	if err != nil {
		return Reading{}, err
	}
	fields := []struct {
		name string
		v    *float64
	}{
		{FieldPM1, req.PM1},
		{FieldPM2_5, req.PM2_5},
		{FieldPM4, req.PM4},
		{FieldPM10, req.PM10},
		{FieldCO2, req.CO2},
		{FieldTemperature, req.Temperature},
		{FieldHumidity, req.Humidity},
	}
	for _, f := range fields {
		if f.v == nil {
			return Reading{}, fmt.Errorf("%s is required", f.name)
		}
	}
	return Reading{
		NodeID:      id,
		PM1:         *req.PM1,
		PM2_5:       *req.PM2_5,
		PM4:         *req.PM4,
		PM10:        *req.PM10,
		CO2:         *req.CO2,
		Temperature: *req.Temperature,
		Humidity:    *req.Humidity,
	}, nil
}

// Handler serves POST and GET /aqi.
type Handler struct {
	log          *slog.Logger
	store        Store
	pub          Publisher
	rec          Recorder
	now          func() time.Time
	maxBodyBytes int64
}

// Option configures a Handler.
type Option func(*Handler)

// WithPublisher forwards each stored reading to p.
func WithPublisher(p Publisher) Option { return func(h *Handler) { h.pub = p } }

// WithRecorder counts write outcomes.
func WithRecorder(r Recorder) Option { return func(h *Handler) { h.rec = r } }

// WithClock overrides the point timestamp source.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// WithMaxBodyBytes bounds POST bodies.
func WithMaxBodyBytes(n int64) Option { return func(h *Handler) { h.maxBodyBytes = n } }

// NewHandler builds the /aqi handler. A nil store makes both methods answer 503.
func NewHandler(log *slog.Logger, store Store, opts ...Option) *Handler {
	if log == nil {
		log = slog.Default()
	}
	h := &Handler{log: log, store: store, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Register wires /aqi onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/aqi", h.handleAQI)
}

func (h *Handler) handleAQI(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleWrite(w, r)
	case http.MethodGet, http.MethodHead:
		h.handleQuery(w, r)
	default:
		envelope.MethodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (h *Handler) handleWrite(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		envelope.Fail(w, http.StatusServiceUnavailable, "telemetry store not configured")
		return
	}

	var req readingRequest
	if err := envelope.DecodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		if envelope.IsBodyTooLarge(err) {
			envelope.Fail(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		envelope.Fail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	reading, err := req.reading()
	if err != nil {
		h.record("invalid")
		envelope.Fail(w, http.StatusBadRequest, err.Error())
		return
	}

	ts := h.now()
	if err := h.store.Write(r.Context(), reading, ts); err != nil {
		h.record("error")
		h.log.Error("telemetry.write.fail", "node_id", reading.NodeID, "err", err)
		envelope.Fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.record("ok")
	h.log.Debug("telemetry.write.ok", "node_id", reading.NodeID)

	if h.pub != nil {
		h.pub.Publish(reading.NodeID, SampleOf(reading, ts))
	}
	envelope.OK(w, "Data successfully written", reading)
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		envelope.Fail(w, http.StatusServiceUnavailable, "telemetry store not configured")
		return
	}
	nodeID, err := validateNodeID(r.URL.Query().Get("node_id"))
	if err != nil {
		envelope.Fail(w, http.StatusBadRequest, err.Error())
		return
	}

	samples, err := h.store.Recent(r.Context(), nodeID)
	if err != nil {
		h.log.Error("telemetry.query.fail", "node_id", nodeID, "err", err)
		envelope.Fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	if samples == nil {
		samples = []Sample{}
	}
	envelope.OK(w, "", samples)
}

func (h *Handler) record(result string) {
	if h.rec != nil {
		h.rec.TelemetryWrite(result)
	}
}
