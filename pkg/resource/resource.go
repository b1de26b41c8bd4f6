// Package resource defines the wire types shared by the list pipeline: a
// schema-less Resource row, the List returned by one fetch, the per-item
// errors a backend may report alongside valid data, and the decoder that
// turns a collection endpoint response into a List.
package resource

import (
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// Resource is one row of a collection response. The pipeline does not know
// the schema of any resource kind; consumers read fields by path.
type Resource map[string]interface{}

// String returns the string at the given field path, or "" if the path is
// missing or not a string.
func (r Resource) String(fields ...string) string {
	v, _, _ := unstructured.NestedString(r, fields...)
	return v
}

// Int returns the integer at the given field path, or 0 if the path is
// missing or not an integer.
func (r Resource) Int(fields ...string) int64 {
	v, _, _ := unstructured.NestedInt64(r, fields...)
	return v
}

// Bool returns the boolean at the given field path.
func (r Resource) Bool(fields ...string) bool {
	v, _, _ := unstructured.NestedBool(r, fields...)
	return v
}

// Has reports whether the field path exists.
func (r Resource) Has(fields ...string) bool {
	_, found, _ := unstructured.NestedFieldNoCopy(r, fields...)
	return found
}

// Len returns the length of the slice at the given field path.
func (r Resource) Len(fields ...string) int {
	v, found, _ := unstructured.NestedFieldNoCopy(r, fields...)
	if !found {
		return 0
	}
	s, ok := v.([]interface{})
	if !ok {
		return 0
	}
	return len(s)
}

// Name returns objectMeta.name.
func (r Resource) Name() string { return r.String("objectMeta", "name") }

// Namespace returns objectMeta.namespace.
func (r Resource) Namespace() string { return r.String("objectMeta", "namespace") }
