package state_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"afterlive/internal/state"
)

func stores(t *testing.T) map[string]state.Store {
	t.Helper()
	fileStore, err := state.NewFileStore(filepath.Join(t.TempDir(), "state"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return map[string]state.Store{
		"file":   fileStore,
		"memory": state.NewMemoryStore(),
	}
}

func TestStoreGetPutUpdate(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			var missing []string
			found, err := store.Get(ctx, state.NamespaceVideos, "1", &missing)
			if err != nil || found {
				t.Fatalf("expected absent key, got found=%v err=%v", found, err)
			}

			if err := store.Put(ctx, state.NamespaceVideos, "1", []string{"/rec/a"}); err != nil {
				t.Fatalf("Put: %v", err)
			}
			err = store.Update(ctx, state.NamespaceVideos, "1", func(raw json.RawMessage) (any, error) {
				var list []string
				if err := json.Unmarshal(raw, &list); err != nil {
					return nil, err
				}
				return append(list, "/rec/b"), nil
			})
			if err != nil {
				t.Fatalf("Update: %v", err)
			}

			var got []string
			found, err = store.Get(ctx, state.NamespaceVideos, "1", &got)
			if err != nil || !found {
				t.Fatalf("Get: found=%v err=%v", found, err)
			}
			if len(got) != 2 || got[0] != "/rec/a" || got[1] != "/rec/b" {
				t.Fatalf("unexpected list %v", got)
			}

			keys, err := store.Keys(ctx, state.NamespaceVideos)
			if err != nil || len(keys) != 1 || keys[0] != "1" {
				t.Fatalf("unexpected keys %v err=%v", keys, err)
			}
		})
	}
}

func TestStoreUpdateErrorLeavesValue(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.Put(ctx, state.NamespaceTimes, "5", "2024-01-01T00:00:00Z"); err != nil {
				t.Fatalf("Put: %v", err)
			}
			err := store.Update(ctx, state.NamespaceTimes, "5", func(json.RawMessage) (any, error) {
				return nil, boom
			})
			if !errors.Is(err, boom) {
				t.Fatalf("expected update error, got %v", err)
			}
			var value string
			if _, err := store.Get(ctx, state.NamespaceTimes, "5", &value); err != nil || value != "2024-01-01T00:00:00Z" {
				t.Fatalf("value changed after failed update: %q err=%v", value, err)
			}
		})
	}
}

func TestStoreDeleteRemovesKey(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.Put(ctx, state.NamespaceTimes, "9", "x"); err != nil {
				t.Fatalf("Put: %v", err)
			}
			if err := store.Update(ctx, state.NamespaceTimes, "9", func(json.RawMessage) (any, error) {
				return state.Delete, nil
			}); err != nil {
				t.Fatalf("Update: %v", err)
			}
			found, err := store.Get(ctx, state.NamespaceTimes, "9", nil)
			if err != nil || found {
				t.Fatalf("expected key removed, found=%v err=%v", found, err)
			}
		})
	}
}

func TestFileStorePersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	first, err := state.NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := first.Put(ctx, state.NamespaceTimes, "100", "2024-05-01T10:00:00Z"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "times.json"))
	if err != nil {
		t.Fatalf("read times.json: %v", err)
	}
	var doc map[string]string
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("times.json must be a JSON object: %v", err)
	}
	if doc["100"] != "2024-05-01T10:00:00Z" {
		t.Fatalf("unexpected document %v", doc)
	}

	second, err := state.NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	var value string
	found, err := second.Get(ctx, state.NamespaceTimes, "100", &value)
	if err != nil || !found || value != "2024-05-01T10:00:00Z" {
		t.Fatalf("expected persisted value, got %q found=%v err=%v", value, found, err)
	}
}

func TestFileStoreRejectsCorruptDocument(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "videos.json"), []byte("[1,2"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	store, err := state.NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if _, err := store.Keys(context.Background(), state.NamespaceVideos); err == nil {
		t.Fatal("expected parse error for corrupt document")
	}
}

func TestFileStoreRejectsInvalidNamespace(t *testing.T) {
	store, err := state.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := store.Put(context.Background(), "../escape", "k", 1); err == nil {
		t.Fatal("expected invalid namespace error")
	}
}

func TestFileStoreConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	store, err := state.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	const writers = 16
	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := store.Update(ctx, state.NamespaceVideos, "1", func(raw json.RawMessage) (any, error) {
				var list []string
				if len(raw) > 0 {
					if err := json.Unmarshal(raw, &list); err != nil {
						return nil, err
					}
				}
				return append(list, fmt.Sprintf("stem-%d", i)), nil
			})
			if err != nil {
				t.Errorf("Update: %v", err)
			}
		}(i)
	}
	wg.Wait()

	var list []string
	if _, err := store.Get(ctx, state.NamespaceVideos, "1", &list); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(list) != writers {
		t.Fatalf("expected %d entries, got %d", writers, len(list))
	}
}
