package telemetry

import (
	"strconv"
	"strings"
	"time"
)

// fluxString renders s as a Flux string literal.
func fluxString(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '$':
			// Avoid string interpolation "${...}".
			b.WriteString(`\$`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// fluxDuration renders d as a Flux duration literal in whole seconds (minimum 1s).
func fluxDuration(d time.Duration) string {
	secs := int64(d / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10) + "s"
}

// RecentQuery returns the Flux query for one node's readings over the last window,
// pivoted so each row carries every field.
func RecentQuery(bucket, nodeID string, window time.Duration) string {
	return `from(bucket: ` + fluxString(bucket) + `)
  |> range(start: -` + fluxDuration(window) + `)
  |> filter(fn: (r) => r._measurement == ` + fluxString(Measurement) + `)
  |> filter(fn: (r) => r.node_id == ` + fluxString(nodeID) + `)
  |> pivot(rowKey: ["_time"], columnKey: ["_field"], valueColumn: "_value")`
}
