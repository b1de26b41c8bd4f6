package transport

import (
	"context"
	"net/url"
	"sync"
	"sync/atomic"
)

// Call records one request made to a MockGetter.
type Call struct {
	Endpoint string
	Params   url.Values
}

// MockGetter implements Getter for testing. It returns a configured body and
// error and records every call.
type MockGetter struct {
	mu    sync.RWMutex
	body  []byte
	err   error
	calls []Call

	callCount atomic.Int64

	// GetFunc, if set, overrides the default Get behavior. This lets tests
	// return different data per call or block until released.
	GetFunc func(ctx context.Context, endpoint string, params url.Values) ([]byte, error)
}

// MockGetterOption configures a MockGetter.
type MockGetterOption func(*MockGetter)

// WithBody sets the body returned by Get.
func WithBody(body []byte) MockGetterOption {
	return func(m *MockGetter) { m.body = body }
}

// WithError sets the error returned by Get.
func WithError(err error) MockGetterOption {
	return func(m *MockGetter) { m.err = err }
}

// WithGetFunc sets a custom function for Get.
func WithGetFunc(fn func(ctx context.Context, endpoint string, params url.Values) ([]byte, error)) MockGetterOption {
	return func(m *MockGetter) { m.GetFunc = fn }
}

// NewMockGetter creates a MockGetter with the given options.
func NewMockGetter(opts ...MockGetterOption) *MockGetter {
	m := &MockGetter{}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetBody updates the returned body (thread-safe).
func (m *MockGetter) SetBody(body []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.body = body
}

// SetError updates the returned error (thread-safe).
func (m *MockGetter) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Get records the call and returns the configured body and error, or
// delegates to GetFunc if set.
func (m *MockGetter) Get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	m.callCount.Add(1)
	m.mu.Lock()
	m.calls = append(m.calls, Call{Endpoint: endpoint, Params: params})
	m.mu.Unlock()

	if m.GetFunc != nil {
		return m.GetFunc(ctx, endpoint, params)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.body, m.err
}

// CallCount returns how many times Get has been called.
func (m *MockGetter) CallCount() int64 {
	return m.callCount.Load()
}

// Calls returns a copy of the recorded calls.
func (m *MockGetter) Calls() []Call {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}
