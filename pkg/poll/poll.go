// Package poll runs one recurring fetch per distinct (endpoint, query) pair
// and shares its results with every subscriber of that pair.
//
// A stream starts when its first subscriber arrives and is torn down, with
// any in-flight request cancelled, when its last subscriber leaves. The most
// recent successful result is replayed to subscribers that join later.
package poll

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"gitlab.com/tinyland/lab/listpulse/pkg/metrics"
	"gitlab.com/tinyland/lab/listpulse/pkg/query"
	"gitlab.com/tinyland/lab/listpulse/pkg/resource"
	"gitlab.com/tinyland/lab/listpulse/pkg/transport"
)

// Target names the backend collection a stream polls.
type Target struct {
	// Endpoint is the resolved collection path, e.g. "api/v1/pod/default".
	Endpoint string
	// Collection is the response key holding the items. Empty selects
	// resource.DefaultCollection.
	Collection string
}

// Key identifies the stream for target and q. Equal keys share one stream.
func Key(target Target, q query.Query) string {
	coll := target.Collection
	if coll == "" {
		coll = resource.DefaultCollection
	}
	return target.Endpoint + "?" + q.Key() + "#" + coll
}

// Tick is the outcome of one fetch. Exactly one of Result and Err is set.
type Tick struct {
	Key    string
	Result *resource.List
	Err    error
	At     time.Time
}

// StreamStatus tracks the runtime state of one stream.
type StreamStatus struct {
	Key         string        `json:"key"`
	Endpoint    string        `json:"endpoint"`
	Subscribers int           `json:"subscribers"`
	Healthy     bool          `json:"healthy"`
	LastRun     time.Time     `json:"last_run"`
	LastError   string        `json:"last_error,omitempty"`
	RunCount    int64         `json:"run_count"`
	ErrorCount  int64         `json:"error_count"`
	LastLatency time.Duration `json:"last_latency"`
}

// Option configures a Source.
type Option func(*Source)

// WithInterval sets the supplier of the effective polling interval. It is
// consulted after every fetch; 0 means fetch once and wait for a re-arm.
func WithInterval(fn func() time.Duration) Option {
	return func(s *Source) { s.interval = fn }
}

// WithLogger sets the logger for fetch failures and stream lifecycle.
func WithLogger(l *slog.Logger) Option {
	return func(s *Source) { s.logger = l }
}

// Source multiplexes subscriptions onto shared polling streams. It is safe
// for concurrent use.
type Source struct {
	getter   transport.Getter
	interval func() time.Duration
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	streams map[string]*stream
	closed  bool
}

// New returns a Source fetching through getter.
func New(getter transport.Getter, opts ...Option) *Source {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Source{
		getter:   getter,
		interval: func() time.Duration { return 0 },
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		ctx:      ctx,
		cancel:   cancel,
		streams:  make(map[string]*stream),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type stream struct {
	key    string
	target Target
	query  query.Query
	ctx    context.Context
	cancel context.CancelFunc
	rearm  chan struct{}

	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	last   *Tick
	status StreamStatus
}

// Subscription receives the ticks of one stream.
type Subscription struct {
	key  string
	src  *Source
	ch   chan Tick
	once sync.Once
}

// Key returns the stream key this subscription is attached to.
func (sub *Subscription) Key() string { return sub.key }

// Ticks returns the delivery channel. It holds at most one pending tick; a
// newer tick replaces an unread one. The channel is closed by Close.
func (sub *Subscription) Ticks() <-chan Tick { return sub.ch }

// Close detaches the subscription. Closing the last subscription of a stream
// stops it and cancels its in-flight request. Close is idempotent.
func (sub *Subscription) Close() {
	sub.once.Do(func() { sub.src.unsubscribe(sub) })
}

// Subscribe attaches to the stream for (target, q), starting it if needed.
// After Close, Subscribe returns a subscription whose channel is already
// closed.
func (s *Source) Subscribe(target Target, q query.Query) *Subscription {
	key := Key(target, q)
	sub := &Subscription{key: key, src: s, ch: make(chan Tick, 1)}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		close(sub.ch)
		sub.once.Do(func() {})
		return sub
	}

	st, ok := s.streams[key]
	if !ok {
		ctx, cancel := context.WithCancel(s.ctx)
		st = &stream{
			key:    key,
			target: target,
			query:  q,
			ctx:    ctx,
			cancel: cancel,
			rearm:  make(chan struct{}, 1),
			subs:   make(map[*Subscription]struct{}),
			status: StreamStatus{Key: key, Endpoint: target.Endpoint, Healthy: true},
		}
		s.streams[key] = st
		activeStreams.Inc()
		s.logger.Debug("stream started", "key", key)
		s.wg.Add(1)
		go s.run(st)
	}

	st.mu.Lock()
	st.subs[sub] = struct{}{}
	st.status.Subscribers = len(st.subs)
	if st.last != nil {
		deliver(sub.ch, *st.last)
	}
	st.mu.Unlock()
	subscribersGauge.Inc()

	return sub
}

func (s *Source) unsubscribe(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.streams[sub.key]
	if !ok {
		return
	}
	st.mu.Lock()
	if _, attached := st.subs[sub]; !attached {
		st.mu.Unlock()
		return
	}
	delete(st.subs, sub)
	close(sub.ch)
	st.status.Subscribers = len(st.subs)
	remaining := len(st.subs)
	st.mu.Unlock()
	subscribersGauge.Dec()

	if remaining == 0 {
		delete(s.streams, sub.key)
		st.cancel()
		activeStreams.Dec()
		s.logger.Debug("stream stopped", "key", sub.key)
	}
}

// Rearm restarts the schedule of every live stream with an immediate fetch,
// picking up the current interval. Call it whenever the settings the
// interval derives from change.
func (s *Source) Rearm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.streams {
		select {
		case st.rearm <- struct{}{}:
		default:
		}
	}
}

// Active returns the number of live streams.
func (s *Source) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.streams)
}

// Statuses returns a copy of every live stream's status, sorted by key.
func (s *Source) Statuses() []StreamStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StreamStatus, 0, len(s.streams))
	for _, st := range s.streams {
		st.mu.Lock()
		out = append(out, st.status)
		st.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Close stops every stream, closes every subscription channel and waits for
// the stream goroutines to exit.
func (s *Source) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.cancel()
	for key, st := range s.streams {
		st.mu.Lock()
		for sub := range st.subs {
			sub.once.Do(func() {})
			close(sub.ch)
			subscribersGauge.Dec()
		}
		st.subs = nil
		st.mu.Unlock()
		delete(s.streams, key)
		activeStreams.Dec()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Source) run(st *stream) {
	defer s.wg.Done()
	for {
		s.fetch(st)

		var timer *time.Timer
		var fire <-chan time.Time
		if d := s.interval(); d > 0 {
			timer = time.NewTimer(d)
			fire = timer.C
		}

		select {
		case <-st.ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-st.rearm:
			if timer != nil {
				timer.Stop()
			}
		case <-fire:
		}
	}
}

func (s *Source) fetch(st *stream) {
	if st.ctx.Err() != nil {
		return
	}
	coll := st.target.Collection
	if coll == "" {
		coll = resource.DefaultCollection
	}

	start := time.Now()
	list, err := s.get(st.ctx, st.target.Endpoint, coll, st.query)
	if st.ctx.Err() != nil {
		discardedTotal.Inc()
		return
	}
	latency := time.Since(start)
	metrics.ObserveSince(fetchDuration.WithLabelValues(coll), start)

	t := Tick{Key: st.key, Result: list, Err: err, At: time.Now()}
	if err != nil {
		fetchesTotal.WithLabelValues(coll, metrics.OutcomeFailure).Inc()
		s.logger.Warn("fetch failed", "endpoint", st.target.Endpoint, "error", err)
	} else {
		fetchesTotal.WithLabelValues(coll, metrics.OutcomeSuccess).Inc()
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	st.status.RunCount++
	st.status.LastRun = t.At
	st.status.LastLatency = latency
	if err != nil {
		st.status.ErrorCount++
		st.status.LastError = err.Error()
		st.status.Healthy = false
	} else {
		st.status.LastError = ""
		st.status.Healthy = true
		st.last = &t
	}
	for sub := range st.subs {
		deliver(sub.ch, t)
	}
}

func (s *Source) get(ctx context.Context, endpoint, collection string, q query.Query) (*resource.List, error) {
	data, err := s.getter.Get(ctx, endpoint, q.Params())
	if err != nil {
		return nil, err
	}
	list, err := resource.Decode(data, collection)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", endpoint, err)
	}
	return list, nil
}

// deliver places t on ch, replacing an unread tick. The caller must be the
// only sender on ch.
func deliver(ch chan Tick, t Tick) {
	for {
		select {
		case ch <- t:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
