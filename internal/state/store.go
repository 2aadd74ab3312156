package state

import (
	"context"
	"encoding/json"
)

// Namespaces used by the session tracker.
const (
	NamespaceTimes  = "times"
	NamespaceVideos = "videos"
)

// UpdateFunc receives the current raw value (nil when absent) and returns the
// value to store. Returning Delete removes the key.
type UpdateFunc func(raw json.RawMessage) (any, error)

// Delete is returned from an UpdateFunc to remove the key.
var Delete = deleteMarker{}

type deleteMarker struct{}

// Store is a namespaced key/value document store with atomic updates.
type Store interface {
	// Get decodes the value stored under key into dst and reports whether it existed.
	Get(ctx context.Context, namespace, key string, dst any) (bool, error)
	// Put replaces the value stored under key.
	Put(ctx context.Context, namespace, key string, value any) error
	// Update runs fn under the namespace lock and stores its result.
	Update(ctx context.Context, namespace, key string, fn UpdateFunc) error
	// Keys lists the keys present in namespace.
	Keys(ctx context.Context, namespace string) ([]string, error)
}

func applyUpdate(doc map[string]json.RawMessage, key string, fn UpdateFunc) (bool, error) {
	result, err := fn(doc[key])
	if err != nil {
		return false, err
	}
	if _, ok := result.(deleteMarker); ok {
		if _, existed := doc[key]; !existed {
			return false, nil
		}
		delete(doc, key)
		return true, nil
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		return false, err
	}
	doc[key] = encoded
	return true, nil
}
