package resource

import (
	"errors"
	"fmt"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	utiljson "k8s.io/apimachinery/pkg/util/json"
)

// DefaultCollection is the collection field used when a list does not name
// one explicitly.
const DefaultCollection = "items"

// ErrNotACollection is returned by Decode when the collection field exists
// but is not an array.
var ErrNotACollection = errors.New("collection field is not an array")

// ListMeta carries paging metadata reported by the backend.
type ListMeta struct {
	TotalItems int `json:"totalItems"`
}

// Status holds the aggregate state counts some collections report alongside
// their items (workload controllers, pods, jobs).
type Status struct {
	Running   int64 `json:"running"`
	Pending   int64 `json:"pending"`
	Failed    int64 `json:"failed"`
	Succeeded int64 `json:"succeeded"`
	Suspended int64 `json:"suspended"`
}

// Error is a per-item error the backend returns next to otherwise valid data.
// It never aborts a fetch.
type Error struct {
	Message string `json:"message"`
	Code    int32  `json:"code"`
	Status  string `json:"status"`
	Reason  string `json:"reason"`
}

// Error implements the error interface.
func (e Error) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s (%d %s)", e.Message, e.Code, e.Reason)
	}
	return e.Message
}

// List is the result of one completed fetch.
type List struct {
	Items    []Resource `json:"items"`
	ListMeta ListMeta   `json:"listMeta"`
	Errors   []Error    `json:"errors,omitempty"`
	Status   *Status    `json:"status,omitempty"`
}

// TotalItems returns the backend-reported total, which may exceed len(Items)
// when the collection is paginated.
func (l *List) TotalItems() int {
	if l == nil {
		return 0
	}
	return l.ListMeta.TotalItems
}

// Decode parses a collection endpoint response. The items are read from the
// given collection field ("pods", "deployments", ...), or from "items" when
// collection is empty. Numbers are decoded as int64 where they are whole so
// that Resource.Int works on them.
func Decode(data []byte, collection string) (*List, error) {
	var raw map[string]interface{}
	if err := utiljson.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode list: %w", err)
	}
	if collection == "" {
		collection = DefaultCollection
	}

	list := &List{}

	if v, found, _ := unstructured.NestedFieldNoCopy(raw, collection); found && v != nil {
		items, ok := v.([]interface{})
		if !ok {
			return nil, fmt.Errorf("decode list %q: %w", collection, ErrNotACollection)
		}
		list.Items = make([]Resource, 0, len(items))
		for _, it := range items {
			if m, ok := it.(map[string]interface{}); ok {
				list.Items = append(list.Items, Resource(m))
			}
		}
	}

	if total, found, _ := unstructured.NestedInt64(raw, "listMeta", "totalItems"); found {
		list.ListMeta.TotalItems = int(total)
	} else {
		list.ListMeta.TotalItems = len(list.Items)
	}

	list.Errors = decodeErrors(raw)

	if st, found, err := unstructured.NestedMap(raw, "status"); found && err == nil {
		list.Status = decodeStatus(st)
	}

	return list, nil
}

// decodeErrors accepts both the flat {message, code, status, reason} shape
// and the {ErrStatus: {...}} wrapper Kubernetes status errors serialize to.
func decodeErrors(raw map[string]interface{}) []Error {
	v, found, _ := unstructured.NestedFieldNoCopy(raw, "errors")
	if !found {
		return nil
	}
	entries, ok := v.([]interface{})
	if !ok || len(entries) == 0 {
		return nil
	}

	errs := make([]Error, 0, len(entries))
	for _, e := range entries {
		m, ok := e.(map[string]interface{})
		if !ok {
			continue
		}
		if inner, found, _ := unstructured.NestedMap(m, "ErrStatus"); found {
			m = inner
		}
		r := Resource(m)
		errs = append(errs, Error{
			Message: r.String("message"),
			Code:    int32(r.Int("code")),
			Status:  r.String("status"),
			Reason:  r.String("reason"),
		})
	}
	return errs
}

func decodeStatus(m map[string]interface{}) *Status {
	r := Resource(m)
	return &Status{
		Running:   r.Int("running"),
		Pending:   r.Int("pending"),
		Failed:    r.Int("failed"),
		Succeeded: r.Int("succeeded"),
		Suspended: r.Int("suspended"),
	}
}
