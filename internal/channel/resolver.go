package channel

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"afterlive/internal/config"
	"afterlive/internal/live"
	"afterlive/internal/logging"
	"afterlive/internal/services"
)

const reloadDebounce = 250 * time.Millisecond

// Assignment is the resolved upload destination for one session.
type Assignment struct {
	Channel    config.Channel
	CategoryID int
	Tags       []string
}

// Resolver turns a session and its room rule into an Assignment.
type Resolver struct {
	path    string
	catalog atomic.Pointer[Catalog]
	logger  *slog.Logger
}

// NewResolver loads the catalog at path. An empty path or missing file starts
// with an empty catalog.
func NewResolver(path string, logger *slog.Logger) (*Resolver, error) {
	catalog, err := LoadCatalog(path)
	if err != nil {
		return nil, err
	}
	r := &Resolver{logger: logging.NewComponentLogger(logger, "channel")}
	if strings.TrimSpace(path) != "" {
		r.path = filepath.Clean(path)
	}
	r.catalog.Store(catalog)
	return r, nil
}

// NewStaticResolver wraps a fixed catalog.
func NewStaticResolver(catalog *Catalog) *Resolver {
	if catalog == nil {
		catalog = &Catalog{}
	}
	r := &Resolver{logger: logging.NewNop()}
	r.catalog.Store(catalog)
	return r
}

// Catalog returns the catalog currently in use.
func (r *Resolver) Catalog() *Catalog {
	return r.catalog.Load()
}

// Resolve computes the channel, category id and tags for session. The rule
// is copied; the caller's value is never modified.
func (r *Resolver) Resolve(session live.Session, rule config.Room) (Assignment, error) {
	rule = rule.Clone()
	catalog := r.Catalog()

	channel := rule.DefaultChannel()
	tags := append([]string(nil), rule.Tags...)

	if mapped := catalog.AreaChannel(session.ParentCategory, session.ChildCategory); mapped != nil {
		channel = mapped
	}
	for _, cond := range rule.MatchingConditions(session) {
		tags = append(tags, cond.Tags...)
		if override := cond.ChannelOverride(); override != nil {
			channel = override
		}
	}

	if channel == nil {
		return Assignment{}, &services.ChannelNotFoundError{
			Parent: session.ParentCategory,
			Child:  session.ChildCategory,
			Reason: "no channel configured or mapped for this area",
		}
	}
	id, ok := catalog.CategoryID(*channel)
	if !ok {
		return Assignment{}, &services.ChannelNotFoundError{
			Parent: channel.Parent,
			Child:  channel.Child,
			Reason: "channel is not listed in the catalog categories",
		}
	}
	return Assignment{Channel: *channel, CategoryID: id, Tags: dedupe(tags)}, nil
}

// Reload re-reads the catalog file. On error the previous catalog stays.
func (r *Resolver) Reload() error {
	catalog, err := LoadCatalog(r.path)
	if err != nil {
		return err
	}
	r.catalog.Store(catalog)
	return nil
}

// Watch reloads the catalog whenever its file changes until ctx is done. The
// parent directory is watched so editors that replace the file are seen.
func (r *Resolver) Watch(ctx context.Context) error {
	if r.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create catalog watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(r.path)); err != nil {
		return fmt.Errorf("watch catalog directory: %w", err)
	}
	r.logger.Debug("watching catalog", logging.String("path", r.path))

	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != r.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}
			timerC = timer.C
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.WarnWithContext(r.logger, "catalog watcher error", "catalog_watch_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "catalog edits may not be picked up until restart"),
			)
		case <-timerC:
			timerC = nil
			if err := r.Reload(); err != nil {
				logging.WarnWithContext(r.logger, "catalog reload failed; keeping previous catalog", "catalog_reload_failed",
					logging.String("path", r.path),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "fix the YAML syntax in the catalog file"),
					logging.String(logging.FieldImpact, "uploads keep using the last valid catalog"),
				)
				continue
			}
			catalog := r.Catalog()
			r.logger.Info("catalog reloaded",
				logging.String("path", r.path),
				logging.Int("areas", len(catalog.Areas)),
				logging.Int("category_groups", len(catalog.Categories)),
			)
		}
	}
}

func dedupe(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
