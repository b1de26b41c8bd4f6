// Package transport implements the get(endpoint, params) contract the polling
// source uses to reach a collection backend.
package transport

import (
	"context"
	"fmt"
	"net/url"
)

// Getter fetches the raw JSON body of one collection page. Implementations
// must honor ctx cancellation.
type Getter interface {
	Get(ctx context.Context, endpoint string, params url.Values) ([]byte, error)
}

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend HTTP %d: %s", e.Code, e.Body)
}
