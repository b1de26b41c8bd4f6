// Package notify collects the per-item errors a backend reports alongside a
// successful list fetch and fans them out to interested listeners.
package notify

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"gitlab.com/tinyland/lab/listpulse/pkg/metrics"
	"gitlab.com/tinyland/lab/listpulse/pkg/resource"
)

// DefaultHistory is the number of notifications kept for Recent.
const DefaultHistory = 100

var pushedTotal = metrics.MustRegisterCounterVec("notify", "errors_total",
	"Backend-reported item errors forwarded to the notification center.", "source")

// Notification is one backend-reported error, stamped with an ID and the
// list that received it.
type Notification struct {
	ID      string    `json:"id"`
	Source  string    `json:"source"`
	Message string    `json:"message"`
	Code    int32     `json:"code,omitempty"`
	Reason  string    `json:"reason,omitempty"`
	At      time.Time `json:"at"`
}

// Center stores a bounded history of notifications and broadcasts each one
// to listeners. Delivery to a listener never blocks: when its buffer is full
// the notification is dropped for that listener.
type Center struct {
	logger  *slog.Logger
	history int

	mu        sync.RWMutex
	recent    []Notification
	listeners map[chan Notification]struct{}
}

// Option configures a Center.
type Option func(*Center)

// WithLogger sets the logger used to report pushed errors.
func WithLogger(l *slog.Logger) Option {
	return func(c *Center) { c.logger = l }
}

// WithHistory sets how many notifications Recent retains.
func WithHistory(n int) Option {
	return func(c *Center) {
		if n > 0 {
			c.history = n
		}
	}
}

// NewCenter returns an empty Center.
func NewCenter(opts ...Option) *Center {
	c := &Center{
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		history:   DefaultHistory,
		listeners: make(map[chan Notification]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PushErrors records errs as notifications from source. An empty slice is a
// no-op.
func (c *Center) PushErrors(source string, errs []resource.Error) {
	if len(errs) == 0 {
		return
	}
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range errs {
		n := Notification{
			ID:      uuid.NewString(),
			Source:  source,
			Message: e.Message,
			Code:    e.Code,
			Reason:  e.Reason,
			At:      now,
		}
		c.logger.Warn("backend reported error", "source", source, "error", e.Error())
		pushedTotal.WithLabelValues(source).Inc()

		c.recent = append(c.recent, n)
		if over := len(c.recent) - c.history; over > 0 {
			c.recent = append(c.recent[:0:0], c.recent[over:]...)
		}
		for ch := range c.listeners {
			select {
			case ch <- n:
			default:
			}
		}
	}
}

// Recent returns the retained notifications, oldest first.
func (c *Center) Recent() []Notification {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Notification, len(c.recent))
	copy(out, c.recent)
	return out
}

// Listen returns a channel receiving every subsequent notification and a
// function that closes it.
func (c *Center) Listen(buffer int) (<-chan Notification, func()) {
	ch := make(chan Notification, buffer)
	c.mu.Lock()
	c.listeners[ch] = struct{}{}
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, ch)
			close(ch)
			c.mu.Unlock()
		})
	}
}
