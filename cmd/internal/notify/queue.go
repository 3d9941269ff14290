// Package notify delivers verification emails off the request path.
//
// Queue implements identity.Notifier: Enqueue never blocks and drops the
// notice when the buffer is full. Run is the single worker; each notice gets
// one send attempt bounded by the send timeout, and failures are logged.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Emjay-16/aqi-project/cmd/identity"
)

var (
	ErrQueueFull   = errors.New("notify: queue full")
	ErrQueueClosed = errors.New("notify: queue closed")
)

// Recorder counts notifier outcomes.
type Recorder interface {
	NotifyResult(result string)
}

// Queue is a bounded verification-notice queue with one worker.
type Queue struct {
	log     *slog.Logger
	sender  Sender
	rec     Recorder
	baseURL string
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	ch     chan identity.VerificationNotice

	done chan struct{}
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets the queue logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.log = l
		}
	}
}

// WithRecorder sets the outcome counter sink.
func WithRecorder(r Recorder) Option {
	return func(q *Queue) { q.rec = r }
}

// NewQueue builds a queue that renders links against cfg.VerifyBaseURL and sends with sender.
func NewQueue(cfg Config, sender Sender, opts ...Option) *Queue {
	size := cfg.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}

	q := &Queue{
		log:     slog.Default(),
		sender:  sender,
		baseURL: cfg.VerifyBaseURL,
		timeout: timeout,
		ch:      make(chan identity.VerificationNotice, size),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(q)
		}
	}
	if q.sender == nil {
		q.sender = LogSender{Log: q.log}
	}
	return q
}

// Enqueue schedules n for delivery without blocking.
func (q *Queue) Enqueue(_ context.Context, n identity.VerificationNotice) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.count("dropped")
		return ErrQueueClosed
	}

	select {
	case q.ch <- n:
		q.count("enqueued")
		return nil
	default:
		q.count("dropped")
		q.log.Warn("notify.enqueue.drop", "user_id", n.UserID, "reason", "queue_full")
		return ErrQueueFull
	}
}

// Len returns the number of pending notices.
func (q *Queue) Len() int { return len(q.ch) }

// Close stops accepting notices. Run drains what is already queued and returns.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}

// Done is closed when Run returns.
func (q *Queue) Done() <-chan struct{} { return q.done }

// Run consumes the queue until Close has been called and the buffer is drained,
// or until ctx is canceled.
func (q *Queue) Run(ctx context.Context) {
	defer close(q.done)

	q.log.Info("notify.worker.start", "capacity", cap(q.ch))
	defer q.log.Info("notify.worker.stop")

	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-q.ch:
			if !ok {
				return
			}
			q.deliver(ctx, n)
		}
	}
}

func (q *Queue) deliver(ctx context.Context, n identity.VerificationNotice) {
	sendCtx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	msg := RenderVerification(q.baseURL, n)
	if err := q.sender.Send(sendCtx, msg); err != nil {
		q.count("failed")
		q.log.Error("notify.send.fail", "user_id", n.UserID, "err", err)
		return
	}
	q.count("sent")
	q.log.Info("notify.send.ok", "user_id", n.UserID)
}

func (q *Queue) count(result string) {
	if q.rec != nil {
		q.rec.NotifyResult(result)
	}
}
