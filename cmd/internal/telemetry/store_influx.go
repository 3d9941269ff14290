package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

type fluxQuerier interface {
	Query(ctx context.Context, query string) (*api.QueryTableResult, error)
}

// InfluxStore reads and writes readings through the InfluxDB v2 API.
type InfluxStore struct {
	client influxdb2.Client
	writer pointWriter
	query  fluxQuerier

	bucket  string
	window  time.Duration
	loc     *time.Location
	timeout time.Duration
}

// NewInfluxStore opens a client for cfg. The caller must Close it.
func NewInfluxStore(cfg Config) (*InfluxStore, error) {
	if !cfg.Enabled() {
		return nil, errors.New("telemetry: influxdb not configured")
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	s := newInfluxStore(cfg, client.WriteAPIBlocking(cfg.Org, cfg.Bucket), client.QueryAPI(cfg.Org))
	s.client = client
	return s, nil
}

func newInfluxStore(cfg Config, w pointWriter, q fluxQuerier) *InfluxStore {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	window := cfg.Window
	if window <= 0 {
		window = DefaultWindow
	}
	return &InfluxStore{
		writer:  w,
		query:   q,
		bucket:  cfg.Bucket,
		window:  window,
		loc:     loc,
		timeout: cfg.Timeout,
	}
}

func (s *InfluxStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return context.WithCancel(ctx)
}

// Write stores r as one air_quality point at ts.
func (s *InfluxStore) Write(ctx context.Context, r Reading, ts time.Time) error {
	const op = "telemetry.Write"
	if s == nil || s.writer == nil {
		return fmt.Errorf("%s: nil store", op)
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	p := influxdb2.NewPoint(Measurement, map[string]string{TagNodeID: r.NodeID}, r.Fields(), ts)
	return s.writer.WritePoint(ctx, p)
}

// Recent returns nodeID's readings within the configured window, oldest first.
func (s *InfluxStore) Recent(ctx context.Context, nodeID string) ([]Sample, error) {
	const op = "telemetry.Recent"
	if s == nil || s.query == nil {
		return nil, fmt.Errorf("%s: nil store", op)
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.query.Query(ctx, RecentQuery(s.bucket, nodeID, s.window))
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Close() }()

	out := make([]Sample, 0, 16)
	for res.Next() {
		rec := res.Record()
		out = append(out, sampleFromValues(rec.Values(), rec.Time(), s.loc))
	}
	if err := res.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Ping reports whether the server is reachable.
func (s *InfluxStore) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return errors.New("telemetry: no client")
	}
	ok, err := s.client.Ping(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("telemetry: influxdb ping failed")
	}
	return nil
}

// Close releases the client.
func (s *InfluxStore) Close() {
	if s != nil && s.client != nil {
		s.client.Close()
	}
}

func sampleFromValues(values map[string]any, ts time.Time, loc *time.Location) Sample {
	nodeID, _ := values[TagNodeID].(string)
	return Sample{
		NodeID:      nodeID,
		PM1:         floatField(values, FieldPM1),
		PM2_5:       floatField(values, FieldPM2_5),
		PM4:         floatField(values, FieldPM4),
		PM10:        floatField(values, FieldPM10),
		CO2:         floatField(values, FieldCO2),
		Temperature: floatField(values, FieldTemperature),
		Humidity:    floatField(values, FieldHumidity),
		Time:        ts.In(loc),
	}
}

func floatField(values map[string]any, key string) *float64 {
	var f float64
	switch v := values[key].(type) {
	case float64:
		f = v
	case int64:
		f = float64(v)
	case uint64:
		f = float64(v)
	default:
		return nil
	}
	return &f
}
