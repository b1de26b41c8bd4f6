// Package settings holds the global settings the list pipeline reads: page
// size, auto-refresh interval and whether the page is visible. Consumers
// re-derive what they need from it whenever an update is published.
package settings

import (
	"sync"
	"time"
)

// Defaults mirror what a fresh install shows.
const (
	DefaultItemsPerPage           = 10
	DefaultRefreshIntervalSeconds = 5
)

// Values is a snapshot of the settings.
type Values struct {
	ItemsPerPage           int  `json:"items_per_page"`
	RefreshIntervalSeconds int  `json:"refresh_interval_seconds"`
	PageVisible            bool `json:"page_visible"`
}

// SubscriberID identifies an OnUpdate registration.
type SubscriberID int

type subscriber struct {
	id SubscriberID
	fn func(Values)
}

// Provider is the settings collaborator. It is safe for concurrent use.
type Provider struct {
	mu     sync.RWMutex
	values Values
	subs   []subscriber
	nextID SubscriberID
}

// New returns a Provider with the given values. Non-positive page sizes and
// negative intervals are replaced by the defaults.
func New(v Values) *Provider {
	return &Provider{values: normalize(v)}
}

// Default returns a Provider with default values and a visible page.
func Default() *Provider {
	return New(Values{
		ItemsPerPage:           DefaultItemsPerPage,
		RefreshIntervalSeconds: DefaultRefreshIntervalSeconds,
		PageVisible:            true,
	})
}

func normalize(v Values) Values {
	if v.ItemsPerPage <= 0 {
		v.ItemsPerPage = DefaultItemsPerPage
	}
	if v.RefreshIntervalSeconds < 0 {
		v.RefreshIntervalSeconds = 0
	}
	return v
}

// Values returns the current settings.
func (p *Provider) Values() Values {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.values
}

// ItemsPerPage returns the configured page size.
func (p *Provider) ItemsPerPage() int { return p.Values().ItemsPerPage }

// RefreshIntervalSeconds returns the configured auto-refresh interval.
func (p *Provider) RefreshIntervalSeconds() int { return p.Values().RefreshIntervalSeconds }

// IsPageVisible reports whether the page showing the lists is visible.
func (p *Provider) IsPageVisible() bool { return p.Values().PageVisible }

// EffectiveInterval is the polling interval the lists should use: the
// refresh interval while the page is visible, 0 (fetch once) otherwise.
func (p *Provider) EffectiveInterval() time.Duration {
	return EffectiveInterval(p.Values())
}

// EffectiveInterval computes the polling interval for v.
func EffectiveInterval(v Values) time.Duration {
	if !v.PageVisible {
		return 0
	}
	return time.Duration(v.RefreshIntervalSeconds) * time.Second
}

// Update applies fn to a copy of the settings, stores the result and
// notifies subscribers. Subscribers are called synchronously, outside the
// lock, in registration order.
func (p *Provider) Update(fn func(*Values)) {
	p.mu.Lock()
	v := p.values
	fn(&v)
	p.values = normalize(v)
	v = p.values
	subs := make([]subscriber, len(p.subs))
	copy(subs, p.subs)
	p.mu.Unlock()

	for _, s := range subs {
		s.fn(v)
	}
}

// SetPageVisible records a page visibility change.
func (p *Provider) SetPageVisible(visible bool) {
	p.Update(func(v *Values) { v.PageVisible = visible })
}

// SetRefreshIntervalSeconds changes the auto-refresh interval.
func (p *Provider) SetRefreshIntervalSeconds(seconds int) {
	p.Update(func(v *Values) { v.RefreshIntervalSeconds = seconds })
}

// SetItemsPerPage changes the page size.
func (p *Provider) SetItemsPerPage(n int) {
	p.Update(func(v *Values) { v.ItemsPerPage = n })
}

// OnUpdate registers fn to be called after every update. The returned
// function removes the registration.
func (p *Provider) OnUpdate(fn func(Values)) (cancel func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := p.nextID
	p.subs = append(p.subs, subscriber{id: id, fn: fn})
	return func() { p.unsubscribe(id) }
}

func (p *Provider) unsubscribe(id SubscriberID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, s := range p.subs {
		if s.id == id {
			p.subs = append(p.subs[:i], p.subs[i+1:]...)
			return
		}
	}
}
