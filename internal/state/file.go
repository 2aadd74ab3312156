package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"

	"github.com/gofrs/flock"
)

var namespacePattern = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// FileStore keeps each namespace in its own JSON object file.
type FileStore struct {
	dir string

	mu    sync.Mutex
	locks map[string]*flock.Flock
}

// NewFileStore returns a store rooted at dir, creating the directory when needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("state directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	return &FileStore{dir: dir, locks: make(map[string]*flock.Flock)}, nil
}

// Path returns the document file for namespace.
func (s *FileStore) Path(namespace string) string {
	return filepath.Join(s.dir, namespace+".json")
}

// Get implements Store.
func (s *FileStore) Get(ctx context.Context, namespace, key string, dst any) (bool, error) {
	var found bool
	err := s.withLock(ctx, namespace, func() error {
		doc, err := s.read(namespace)
		if err != nil {
			return err
		}
		raw, ok := doc[key]
		if !ok {
			return nil
		}
		found = true
		if dst == nil {
			return nil
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return fmt.Errorf("decode %s/%s: %w", namespace, key, err)
		}
		return nil
	})
	return found, err
}

// Put implements Store.
func (s *FileStore) Put(ctx context.Context, namespace, key string, value any) error {
	return s.Update(ctx, namespace, key, func(json.RawMessage) (any, error) {
		return value, nil
	})
}

// Update implements Store. The file is rewritten only when fn changes the document.
func (s *FileStore) Update(ctx context.Context, namespace, key string, fn UpdateFunc) error {
	return s.withLock(ctx, namespace, func() error {
		doc, err := s.read(namespace)
		if err != nil {
			return err
		}
		changed, err := applyUpdate(doc, key, fn)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		return s.write(namespace, doc)
	})
}

// Keys implements Store.
func (s *FileStore) Keys(ctx context.Context, namespace string) ([]string, error) {
	var keys []string
	err := s.withLock(ctx, namespace, func() error {
		doc, err := s.read(namespace)
		if err != nil {
			return err
		}
		keys = make([]string, 0, len(doc))
		for key := range doc {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		return nil
	})
	return keys, err
}

func (s *FileStore) withLock(ctx context.Context, namespace string, fn func() error) error {
	if !namespacePattern.MatchString(namespace) {
		return fmt.Errorf("invalid state namespace %q", namespace)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[namespace]
	if !ok {
		lock = flock.New(filepath.Join(s.dir, namespace+".lock"))
		s.locks[namespace] = lock
	}
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock %s state: %w", namespace, err)
	}
	defer func() { _ = lock.Unlock() }()

	return fn()
}

func (s *FileStore) read(namespace string) (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(s.Path(namespace))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return make(map[string]json.RawMessage), nil
		}
		return nil, fmt.Errorf("read %s state: %w", namespace, err)
	}
	doc := make(map[string]json.RawMessage)
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s state: %w", namespace, err)
	}
	if doc == nil {
		doc = make(map[string]json.RawMessage)
	}
	return doc, nil
}

// write replaces the namespace file through a synced temp file and rename.
func (s *FileStore) write(namespace string, doc map[string]json.RawMessage) error {
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s state: %w", namespace, err)
	}
	tmp, err := os.CreateTemp(s.dir, "."+namespace+"-*.json")
	if err != nil {
		return fmt.Errorf("create temp %s state: %w", namespace, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(append(payload, '\n')); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write %s state: %w", namespace, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync %s state: %w", namespace, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close %s state: %w", namespace, err)
	}
	if err := os.Rename(tmpName, s.Path(namespace)); err != nil {
		cleanup()
		return fmt.Errorf("replace %s state: %w", namespace, err)
	}
	return nil
}
