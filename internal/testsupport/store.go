package testsupport

import (
	"context"
	"testing"

	"afterlive/internal/config"
	"afterlive/internal/uploadqueue"
)

// MustOpenQueue opens the upload queue for tests and registers cleanup.
func MustOpenQueue(t testing.TB, cfg *config.Config) *uploadqueue.Store {
	t.Helper()

	store, err := uploadqueue.Open(cfg)
	if err != nil {
		t.Fatalf("uploadqueue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustEnqueue adds item to the queue and returns the stored entry id.
func MustEnqueue(t testing.TB, store *uploadqueue.Store, item uploadqueue.Item) int64 {
	t.Helper()

	id, err := store.Enqueue(context.Background(), item)
	if err != nil {
		t.Fatalf("store.Enqueue: %v", err)
	}
	return id
}
