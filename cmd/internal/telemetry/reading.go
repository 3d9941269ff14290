// Package telemetry ingests air-quality readings into InfluxDB and serves the recent window back.
package telemetry

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Measurement is the InfluxDB measurement readings are written to.
const Measurement = "air_quality"

// Field names as stored in InfluxDB and exposed over JSON.
const (
	FieldPM1         = "PM1"
	FieldPM2_5       = "PM2_5"
	FieldPM4         = "PM4"
	FieldPM10        = "PM10"
	FieldCO2         = "CO2"
	FieldTemperature = "temperature"
	FieldHumidity    = "humidity"
	TagNodeID        = "node_id"
)

// Reading is one measurement set from a node.
type Reading struct {
	NodeID      string  `json:"node_id"`
	PM1         float64 `json:"PM1"`
	PM2_5       float64 `json:"PM2_5"`
	PM4         float64 `json:"PM4"`
	PM10        float64 `json:"PM10"`
	CO2         float64 `json:"CO2"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
}

// Fields returns the InfluxDB field set for r.
func (r Reading) Fields() map[string]any {
	return map[string]any{
		FieldPM1:         r.PM1,
		FieldPM2_5:       r.PM2_5,
		FieldPM4:         r.PM4,
		FieldPM10:        r.PM10,
		FieldCO2:         r.CO2,
		FieldTemperature: r.Temperature,
		FieldHumidity:    r.Humidity,
	}
}

// Sample is a stored reading as returned by Recent. Missing fields are null.
type Sample struct {
	NodeID      string    `json:"node_id"`
	PM1         *float64  `json:"PM1"`
	PM2_5       *float64  `json:"PM2_5"`
	PM4         *float64  `json:"PM4"`
	PM10        *float64  `json:"PM10"`
	CO2         *float64  `json:"CO2"`
	Temperature *float64  `json:"temperature"`
	Humidity    *float64  `json:"humidity"`
	Time        time.Time `json:"time"`
}

// SampleOf converts a freshly written reading into a Sample stamped at ts.
func SampleOf(r Reading, ts time.Time) Sample {
	f := func(v float64) *float64 { return &v }
	return Sample{
		NodeID:      r.NodeID,
		PM1:         f(r.PM1),
		PM2_5:       f(r.PM2_5),
		PM4:         f(r.PM4),
		PM10:        f(r.PM10),
		CO2:         f(r.CO2),
		Temperature: f(r.Temperature),
		Humidity:    f(r.Humidity),
		Time:        ts,
	}
}

// Store is the time-series boundary.
type Store interface {
	Write(ctx context.Context, r Reading, ts time.Time) error
	Recent(ctx context.Context, nodeID string) ([]Sample, error)
}

// Publisher fans a written sample out to live subscribers.
type Publisher interface {
	Publish(nodeID string, s Sample)
}

// Recorder counts write outcomes.
type Recorder interface {
	TelemetryWrite(result string)
}

const maxNodeIDLen = 128

func validateNodeID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("node_id is required")
	}
	if len(id) > maxNodeIDLen {
		return "", fmt.Errorf("node_id is too long")
	}
	return id, nil
}
