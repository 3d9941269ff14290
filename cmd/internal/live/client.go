package live

import "sync"

// Client is one websocket subscriber.
//
// Send is never closed by the server so concurrent publishers cannot panic; done
// signals shutdown instead.
type Client struct {
	SessionID string
	NodeID    string
	Send      chan Envelope

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient constructs a Client with a bounded send queue.
func NewClient(sessionID, nodeID string, sendQueueSize int) *Client {
	if sendQueueSize <= 0 {
		sendQueueSize = DefaultSendQueue
	}
	return &Client{
		SessionID: sessionID,
		NodeID:    nodeID,
		Send:      make(chan Envelope, sendQueueSize),
		done:      make(chan struct{}),
	}
}

// Done is closed when the client is shutting down.
func (c *Client) Done() <-chan struct{} {
	if c == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

// Close signals shutdown (idempotent).
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// offer enqueues env without blocking.
func (c *Client) offer(env Envelope) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Send <- env:
		return true
	default:
		return false
	}
}
