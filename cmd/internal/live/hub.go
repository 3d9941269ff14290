package live

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/Emjay-16/aqi-project/cmd/identity/ids"
	"github.com/Emjay-16/aqi-project/cmd/internal/telemetry"
)

// Recorder observes subscriber counts and delivery outcomes.
type Recorder interface {
	LiveClientConnected()
	LiveClientDisconnected()
	LiveMessage(result string)
}

// Hub fans readings out to the clients subscribed to each node.
//
// Publish never blocks: a subscriber whose queue is full misses the reading.
type Hub struct {
	log *slog.Logger
	rec Recorder
	now func() time.Time

	mu    sync.RWMutex
	nodes map[string]map[string]*Client
}

// NewHub constructs a Hub. rec may be nil.
func NewHub(log *slog.Logger, rec Recorder) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:   log,
		rec:   rec,
		now:   time.Now,
		nodes: make(map[string]map[string]*Client),
	}
}

// Subscribe registers client under its NodeID.
func (h *Hub) Subscribe(c *Client) {
	if h == nil || c == nil || c.SessionID == "" || c.NodeID == "" {
		return
	}

	h.mu.Lock()
	subs := h.nodes[c.NodeID]
	if subs == nil {
		subs = make(map[string]*Client)
		h.nodes[c.NodeID] = subs
	}
	_, existed := subs[c.SessionID]
	subs[c.SessionID] = c
	h.mu.Unlock()

	if !existed && h.rec != nil {
		h.rec.LiveClientConnected()
	}
	h.log.Debug("live.subscribe", "node_id", c.NodeID, "session_id", c.SessionID)
}

// Unsubscribe removes client and then signals its shutdown.
func (h *Hub) Unsubscribe(c *Client) {
	if h == nil || c == nil {
		return
	}

	h.mu.Lock()
	subs := h.nodes[c.NodeID]
	_, existed := subs[c.SessionID]
	if existed {
		delete(subs, c.SessionID)
		if len(subs) == 0 {
			delete(h.nodes, c.NodeID)
		}
	}
	h.mu.Unlock()

	// Removed from the fanout set before Close so publishers never hold a closing client.
	c.Close()

	if existed && h.rec != nil {
		h.rec.LiveClientDisconnected()
	}
	h.log.Debug("live.unsubscribe", "node_id", c.NodeID, "session_id", c.SessionID)
}

// Subscribers returns how many clients watch nodeID.
func (h *Hub) Subscribers(nodeID string) int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.nodes[nodeID])
}

// Publish delivers s to every subscriber of nodeID.
func (h *Hub) Publish(nodeID string, s telemetry.Sample) {
	if h == nil || nodeID == "" {
		return
	}

	h.mu.RLock()
	subs := h.nodes[nodeID]
	targets := make([]*Client, 0, len(subs))
	for _, c := range subs {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	env, err := newEnvelope(TypeReading, s, h.now().UTC())
	if err != nil {
		h.log.Error("live.publish.encode.fail", "node_id", nodeID, "err", err)
		return
	}

	for _, c := range targets {
		if c.offer(env) {
			h.record("delivered")
			continue
		}
		h.record("dropped")
		h.log.Debug("live.publish.drop", "node_id", nodeID, "session_id", c.SessionID)
	}
}

func (h *Hub) record(result string) {
	if h.rec != nil {
		h.rec.LiveMessage(result)
	}
}

func newEnvelope(typ string, payload any, ts time.Time) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	id, err := ids.NewULID(ts)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{V: Version, Type: typ, ID: id, TS: ts, Payload: b}, nil
}

var _ telemetry.Publisher = (*Hub)(nil)
