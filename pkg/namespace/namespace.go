// Package namespace tracks the namespace the lists are scoped to and
// resolves namespace placeholders in collection endpoint templates.
package namespace

import (
	"strings"
	"sync"
)

// All is the sentinel meaning "every namespace".
const All = "_all"

// Placeholder is replaced by the current namespace in endpoint templates,
// e.g. "api/v1/pod/:namespace".
const Placeholder = ":namespace"

// Default is the namespace a new Service starts in.
const Default = "default"

// IsMulti reports whether ns selects more than one namespace.
func IsMulti(ns string) bool {
	return ns == All || ns == ""
}

// IsNamespaced reports whether an endpoint template is namespace-scoped.
func IsNamespaced(template string) bool {
	return strings.Contains(template, Placeholder)
}

// Resolve substitutes ns into template. The all-namespaces sentinel resolves
// to an empty path segment, which the backend reads as "every namespace".
func Resolve(template, ns string) string {
	if IsMulti(ns) {
		ns = ""
	}
	return strings.ReplaceAll(template, Placeholder, ns)
}

type subscriber struct {
	id int
	fn func(string)
}

// Service is the namespace collaborator. It is safe for concurrent use.
type Service struct {
	mu      sync.RWMutex
	current string
	subs    []subscriber
	nextID  int
}

// NewService returns a Service starting in ns (Default when empty).
func NewService(ns string) *Service {
	if ns == "" {
		ns = Default
	}
	return &Service{current: ns}
}

// Current returns the selected namespace.
func (s *Service) Current() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Resolve substitutes the current namespace into template.
func (s *Service) Resolve(template string) string {
	return Resolve(template, s.Current())
}

// Set selects ns and notifies subscribers if it changed. An empty ns selects
// all namespaces.
func (s *Service) Set(ns string) {
	if ns == "" {
		ns = All
	}
	s.mu.Lock()
	if ns == s.current {
		s.mu.Unlock()
		return
	}
	s.current = ns
	subs := make([]subscriber, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(ns)
	}
}

// OnChange registers fn to be called with the new namespace after every
// change. The returned function removes the registration.
func (s *Service) OnChange(fn func(string)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				return
			}
		}
	}
}
