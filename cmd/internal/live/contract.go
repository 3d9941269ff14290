package live

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is embedded into every envelope.
const Version = "v1"

// Subprotocol must be offered by clients during the handshake.
const Subprotocol = "aqi.live.v1"

// Envelope types (server -> client).
const (
	// TypeReady confirms the subscription.
	TypeReady = "ready"
	// TypeReading carries one stored reading.
	TypeReading = "reading"
	// TypeError reports a problem before the server closes.
	TypeError = "error"
)

// Envelope is the wire wrapper.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	TS      time.Time       `json:"ts"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs structural validation.
func (e Envelope) Validate() error {
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	if strings.TrimSpace(e.ID) == "" {
		return errors.New("missing field: id")
	}
	if e.TS.IsZero() {
		return errors.New("missing field: ts")
	}
	switch e.Type {
	case TypeReady, TypeReading, TypeError:
		return nil
	case "":
		return errors.New("missing field: type")
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

// ReadyPayload acknowledges a subscription.
type ReadyPayload struct {
	SessionID string `json:"session_id"`
	NodeID    string `json:"node_id"`
}

// ErrorPayload is a generic error payload.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
