// Package listctl binds one UI list instance to the polling pipeline. A
// Controller folds UI triggers into list state, derives the wire query,
// keeps exactly one polling subscription open for the current query, and
// publishes a ChangeEvent for every completed fetch.
package listctl

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"gitlab.com/tinyland/lab/listpulse/pkg/namespace"
	"gitlab.com/tinyland/lab/listpulse/pkg/poll"
	"gitlab.com/tinyland/lab/listpulse/pkg/query"
	"gitlab.com/tinyland/lab/listpulse/pkg/resource"
	"gitlab.com/tinyland/lab/listpulse/pkg/settings"
	"gitlab.com/tinyland/lab/listpulse/pkg/status"
)

// Configuration errors returned by New.
var (
	ErrMissingID        = errors.New("listctl: list id is required")
	ErrMissingPaginator = errors.New("listctl: paginator is required")
	ErrMissingSource    = errors.New("listctl: polling source is required")
	ErrAlreadyRunning   = errors.New("listctl: controller is already running")
)

// triggerBuffer is how many triggers may queue before Dispatch blocks.
const triggerBuffer = 64

// Subscriber opens polling subscriptions. *poll.Source implements it.
type Subscriber interface {
	Subscribe(target poll.Target, q query.Query) *poll.Subscription
}

// Paginator is the paging control a list reads its page size from.
type Paginator interface {
	ItemsPerPage() int
}

// NamespaceWatcher supplies the current namespace and its changes.
type NamespaceWatcher interface {
	Current() string
	OnChange(fn func(string)) (cancel func())
}

// SettingsWatcher publishes settings updates.
type SettingsWatcher interface {
	OnUpdate(fn func(settings.Values)) (cancel func())
}

// Notifier receives backend-reported item errors. PushErrors must not block.
type Notifier interface {
	PushErrors(source string, errs []resource.Error)
}

// Config describes one list instance.
type Config struct {
	ID      string
	GroupID string

	// Endpoint is the collection path, optionally containing the namespace
	// placeholder, e.g. "api/v1/pod/:namespace".
	Endpoint   string
	Collection string

	// Columns are the static display columns.
	Columns []string

	// Hideable lists report themselves hidden when empty and unfiltered.
	Hideable bool

	// SearchContext marks a list shown in a global search view; only such
	// lists send the search term.
	SearchContext bool

	// Sort is the initial sort state.
	Sort query.Sort
}

// Deps are the collaborators a Controller uses. Source and Paginator are
// required.
type Deps struct {
	Source    Subscriber
	Paginator Paginator
	Namespace NamespaceWatcher
	Settings  SettingsWatcher
	Notifier  Notifier
	Logger    *slog.Logger
}

// ChangeEvent is published once per completed fetch.
type ChangeEvent struct {
	ListID    string
	GroupID   string
	ItemCount int
	Filtered  bool
	Result    *resource.List
}

// Snapshot is a read-only view of a list.
type Snapshot struct {
	ID         string              `json:"id"`
	GroupID    string              `json:"group_id"`
	Endpoint   string              `json:"endpoint"`
	Namespace  string              `json:"namespace"`
	Query      string              `json:"query"`
	PageIndex  int                 `json:"page_index"`
	Sort       query.Sort          `json:"sort"`
	Filter     string              `json:"filter,omitempty"`
	Search     string              `json:"search,omitempty"`
	Loading    bool                `json:"loading"`
	TotalItems int                 `json:"total_items"`
	Filtered   bool                `json:"filtered"`
	Hidden     bool                `json:"hidden"`
	Columns    []string            `json:"columns"`
	Items      []resource.Resource `json:"items"`
	Statuses   []status.Descriptor `json:"statuses,omitempty"`
	Errors     []resource.Error    `json:"errors,omitempty"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

type listener struct {
	id int
	fn func(ChangeEvent)
}

// Controller drives one list instance. Triggers may be dispatched from any
// goroutine; they are applied in order by Run.
type Controller struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger
	status *status.Registry

	triggers chan Trigger
	done     chan struct{}
	running  atomic.Bool

	mu        sync.RWMutex
	st        state
	key       string
	endpoint  string
	loading   bool
	result    *resource.List
	updatedAt time.Time
	dynamic   []dynamicColumn
	actions   []string
	listeners []listener
	nextID    int
}

// New validates cfg and deps and returns a Controller. Missing wiring is
// reported as ErrMissingID, ErrMissingPaginator or ErrMissingSource.
func New(cfg Config, deps Deps) (*Controller, error) {
	if cfg.ID == "" {
		return nil, ErrMissingID
	}
	if deps.Paginator == nil {
		return nil, ErrMissingPaginator
	}
	if deps.Source == nil {
		return nil, ErrMissingSource
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	c := &Controller{
		cfg:      cfg,
		deps:     deps,
		logger:   logger.With("list", cfg.ID),
		status:   status.NewRegistry(),
		triggers: make(chan Trigger, triggerBuffer),
		done:     make(chan struct{}),
		loading:  true,
		st: state{
			Sort:          cfg.Sort,
			SearchContext: cfg.SearchContext,
		},
	}
	if deps.Namespace != nil {
		c.st.Namespace = deps.Namespace.Current()
	}
	return c, nil
}

// ID returns the list id.
func (c *Controller) ID() string { return c.cfg.ID }

// GroupID returns the group the list belongs to.
func (c *Controller) GroupID() string { return c.cfg.GroupID }

// StatusRegistry returns the registry row statuses are resolved against.
// Bindings must be registered before Run.
func (c *Controller) StatusRegistry() *status.Registry { return c.status }

// StatusOf returns the status descriptor for one row.
func (c *Controller) StatusOf(res resource.Resource) status.Descriptor {
	return c.status.Lookup(res)
}

// Dispatch queues t. It blocks only while the trigger buffer is full and the
// controller is running.
func (c *Controller) Dispatch(t Trigger) {
	select {
	case c.triggers <- t:
	case <-c.done:
	}
}

// OnChange registers fn to receive every ChangeEvent. fn runs on the
// controller's goroutine and must not block. The returned function removes
// the registration.
func (c *Controller) OnChange(fn func(ChangeEvent)) (cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.listeners = append(c.listeners, listener{id: id, fn: fn})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, l := range c.listeners {
			if l.id == id {
				c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
				return
			}
		}
	}
}

// Run applies triggers and fetch results until ctx is done. It may be called
// once.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(c.done)

	if ns := c.deps.Namespace; ns != nil {
		c.mu.Lock()
		c.st.Namespace = ns.Current()
		c.mu.Unlock()
		defer ns.OnChange(func(n string) { c.Dispatch(NamespaceChanged{Namespace: n}) })()
	}
	if s := c.deps.Settings; s != nil {
		var lastPerPage atomic.Int64
		lastPerPage.Store(int64(c.deps.Paginator.ItemsPerPage()))
		defer s.OnUpdate(func(v settings.Values) {
			if lastPerPage.Swap(int64(v.ItemsPerPage)) != int64(v.ItemsPerPage) {
				c.Dispatch(ParamsChanged{})
			}
		})()
	}

	sub := c.subscribe()
	defer func() { sub.Close() }()
	ticks := sub.Ticks()

	for {
		select {
		case <-ctx.Done():
			return nil
		case t := <-c.triggers:
			c.apply(t)
			sub.Close()
			sub = c.subscribe()
			ticks = sub.Ticks()
		case tick, ok := <-ticks:
			if !ok {
				c.logger.Debug("subscription closed")
				ticks = nil
				continue
			}
			c.handleTick(tick)
		}
	}
}

func (c *Controller) apply(t Trigger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.st = reduce(c.st, t)
	c.loading = true
	c.logger.Debug("trigger applied", "trigger", triggerName(t), "page", c.st.PageIndex)
}

// subscribe opens the subscription for the current state.
func (c *Controller) subscribe() *poll.Subscription {
	c.mu.Lock()
	q := c.st.encode(c.deps.Paginator.ItemsPerPage())
	endpoint := namespace.Resolve(c.cfg.Endpoint, c.st.Namespace)
	target := poll.Target{Endpoint: endpoint, Collection: c.cfg.Collection}
	c.key = poll.Key(target, q)
	c.endpoint = endpoint
	c.mu.Unlock()

	return c.deps.Source.Subscribe(target, q)
}

// handleTick folds one fetch result into the list. Results for a superseded
// query and failed fetches leave the list untouched.
func (c *Controller) handleTick(tick poll.Tick) {
	c.mu.Lock()
	if tick.Key != c.key {
		c.mu.Unlock()
		c.logger.Debug("discarding stale result", "key", tick.Key)
		return
	}
	if tick.Err != nil {
		c.mu.Unlock()
		c.logger.Debug("fetch failed, keeping previous state", "error", tick.Err)
		return
	}
	c.result = tick.Result
	c.updatedAt = tick.At
	c.loading = false
	ev := ChangeEvent{
		ListID:    c.cfg.ID,
		GroupID:   c.cfg.GroupID,
		ItemCount: tick.Result.TotalItems(),
		Filtered:  c.st.Filter != "",
		Result:    tick.Result,
	}
	listeners := make([]listener, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	if c.deps.Notifier != nil && len(tick.Result.Errors) > 0 {
		c.deps.Notifier.PushErrors(c.cfg.ID, tick.Result.Errors)
	}
	for _, l := range listeners {
		l.fn(ev)
	}
}

// IsFiltered reports whether the local filter is set. The global search term
// does not count.
func (c *Controller) IsFiltered() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.st.Filter != ""
}

// Hidden reports whether a hideable list is empty and unfiltered.
func (c *Controller) Hidden() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hiddenLocked()
}

func (c *Controller) hiddenLocked() bool {
	return c.cfg.Hideable && c.result.TotalItems() == 0 && c.st.Filter == ""
}

// Loading reports whether the list is waiting for the first result of its
// current query.
func (c *Controller) Loading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loading
}

// TotalItems returns the total reported by the last completed fetch.
func (c *Controller) TotalItems() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.result.TotalItems()
}

// MultiNamespace reports whether the list currently spans namespaces. It is
// the usual condition for showing a namespace column.
func (c *Controller) MultiNamespace() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return namespace.IsNamespaced(c.cfg.Endpoint) && namespace.IsMulti(c.st.Namespace)
}

// Snapshot returns a copy of the list state.
func (c *Controller) Snapshot() Snapshot {
	cols := c.Columns()

	c.mu.RLock()
	defer c.mu.RUnlock()
	snap := Snapshot{
		ID:         c.cfg.ID,
		GroupID:    c.cfg.GroupID,
		Endpoint:   c.endpoint,
		Namespace:  c.st.Namespace,
		Query:      c.key,
		PageIndex:  c.st.PageIndex,
		Sort:       c.st.Sort,
		Filter:     c.st.Filter,
		Search:     c.st.Search,
		Loading:    c.loading,
		TotalItems: c.result.TotalItems(),
		Filtered:   c.st.Filter != "",
		Hidden:     c.hiddenLocked(),
		Columns:    cols,
		UpdatedAt:  c.updatedAt,
	}
	if c.result != nil {
		snap.Items = c.result.Items
		snap.Errors = c.result.Errors
		if c.status.Len() > 0 {
			snap.Statuses = make([]status.Descriptor, len(c.result.Items))
			for i, item := range c.result.Items {
				snap.Statuses[i] = c.status.Lookup(item)
			}
		}
	}
	return snap
}

func triggerName(t Trigger) string {
	switch t.(type) {
	case PageChanged:
		return "page"
	case SortChanged:
		return "sort"
	case FilterChanged:
		return "filter"
	case NamespaceChanged:
		return "namespace"
	case ParamsChanged:
		return "params"
	}
	return "unknown"
}
