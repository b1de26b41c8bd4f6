// Package status maps resources to the health descriptor a list shows next
// to each row. Bindings are (predicate, descriptor) pairs evaluated in
// registration order; the first match wins.
package status

import (
	"sync"

	"gitlab.com/tinyland/lab/listpulse/pkg/resource"
)

// Icon classes used by the built-in binding sets.
const (
	ClassSuccess = "kd-success"
	ClassWarning = "kd-warning"
	ClassError   = "kd-error"
	ClassMuted   = "kd-muted"
)

// classIcons gives the icon a class gets when Register is not told one.
var classIcons = map[string]string{
	ClassSuccess: "check_circle",
	ClassWarning: "timelapse",
	ClassError:   "error",
	ClassMuted:   "help",
}

const fallbackIcon = "help"

// Unrecognized is returned by Lookup when no binding matches.
var Unrecognized = Descriptor{
	IconName:  "circle",
	IconClass: ClassMuted,
	Tooltip:   "Unrecognized",
}

// Predicate decides whether a binding applies to a resource.
type Predicate func(resource.Resource) bool

// Descriptor is what a list renders for a row's status.
type Descriptor struct {
	IconName  string `json:"iconName"`
	IconClass string `json:"iconClass"`
	Tooltip   string `json:"tooltip"`
}

// Binding pairs a predicate with its descriptor.
type Binding struct {
	Predicate  Predicate
	Descriptor Descriptor
	Hash       uint32
}

// Option customizes a binding at registration.
type Option func(*Binding)

// WithIcon overrides the icon derived from the class.
func WithIcon(name string) Option {
	return func(b *Binding) { b.Descriptor.IconName = name }
}

// Stats counts how lookups were answered.
type Stats struct {
	Hits   int64
	Misses int64
}

// Registry holds the bindings of one list. Bindings are registered once,
// when the list is set up, and never reassigned.
type Registry struct {
	mu       sync.Mutex
	bindings []Binding
	byHash   map[uint32]int // hash -> index of the first binding with it

	lastHash uint32
	hasLast  bool
	stats    Stats
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byHash: make(map[uint32]int)}
}

// Register appends a binding. A nil predicate never matches.
func (r *Registry) Register(iconClass string, pred Predicate, tooltip string, opts ...Option) {
	icon, ok := classIcons[iconClass]
	if !ok {
		icon = fallbackIcon
	}
	b := Binding{
		Predicate: pred,
		Descriptor: Descriptor{
			IconName:  icon,
			IconClass: iconClass,
			Tooltip:   tooltip,
		},
	}
	for _, opt := range opts {
		opt(&b)
	}
	b.Hash = Hash(b.Descriptor)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byHash[b.Hash]; !exists {
		r.byHash[b.Hash] = len(r.bindings)
	}
	r.bindings = append(r.bindings, b)
}

// Len returns the number of registered bindings.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bindings)
}

// Lookup returns the descriptor of the first binding matching res, or
// Unrecognized. The last matched binding is tried first; its answer is only
// used when no earlier binding matches too, so the result never depends on
// which row was looked up before.
func (r *Registry) Lookup(res resource.Resource) Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.hasLast {
		if idx, ok := r.byHash[r.lastHash]; ok && matches(r.bindings[idx], res) && r.firstMatch(res, idx) < 0 {
			r.stats.Hits++
			return r.bindings[idx].Descriptor
		}
	}

	r.stats.Misses++
	idx := r.firstMatch(res, len(r.bindings))
	if idx < 0 {
		return Unrecognized
	}
	b := r.bindings[idx]
	// Only cache bindings the hash index resolves back to.
	if r.byHash[b.Hash] == idx {
		r.lastHash = b.Hash
		r.hasLast = true
	}
	return b.Descriptor
}

// Stats returns a copy of the lookup counters.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// firstMatch returns the index of the first binding in [0, limit) matching
// res, or -1.
func (r *Registry) firstMatch(res resource.Resource, limit int) int {
	for i := 0; i < limit; i++ {
		if matches(r.bindings[i], res) {
			return i
		}
	}
	return -1
}

func matches(b Binding, res resource.Resource) bool {
	return b.Predicate != nil && b.Predicate(res)
}
