package cache

import (
	"encoding/json"
	"fmt"
	"time"
)

// GetTyped deserializes a cached JSON value into the given type T and
// returns when it was written. Returns the zero value of T and false if the
// key is missing, expired, or the stored data does not decode into T.
func GetTyped[T any](s *Store, key string) (T, time.Time, bool) {
	var zero T
	data, written, ok := s.Get(key)
	if !ok {
		return zero, time.Time{}, false
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return zero, time.Time{}, false
	}
	return v, written, true
}

// PutTyped serializes value as JSON and stores it under key.
func PutTyped[T any](s *Store, key string, value T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: marshal typed value for %q: %w", key, err)
	}
	return s.Put(key, data)
}
