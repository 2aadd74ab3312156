package uploadqueue

import (
	"cmp"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"afterlive/internal/config"
	"afterlive/internal/live"
)

// Item is the queued payload. It is stored as JSON and re-inserted byte for
// byte when an upload fails.
type Item struct {
	VideoPaths  []string     `json:"video_paths"`
	OriginStems []string     `json:"origin_stems"`
	Session     live.Session `json:"session"`
	Room        config.Room  `json:"room"`
	WorkingDir  string       `json:"working_dir"`
}

// Entry is a queued Item together with its bookkeeping columns.
type Entry struct {
	ID            int64
	Item          Item
	Payload       json.RawMessage
	Attempts      int
	FirstQueuedAt time.Time
	LastAttemptAt time.Time
	LastError     string
	// Parts maps video paths that already reached the platform to their
	// video ids. It is kept beside the payload, never inside it.
	Parts map[string]string
}

const entryColumns = "id, payload, attempts, first_queued_at, last_attempt_at, last_error, uploaded_parts"

// Enqueue appends item and returns its row id. Items are never deduplicated.
func (s *Store) Enqueue(ctx context.Context, item Item) (int64, error) {
	payload, err := json.Marshal(item)
	if err != nil {
		return 0, fmt.Errorf("marshal upload item: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	var id int64
	err = retryOnBusy(ctx, func() error {
		var err error
		id, err = insertRow(ctx, s.db, row{payload: payload, firstQueued: now})
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("insert upload item: %w", err)
	}
	return id, nil
}

// Requeue replaces the leased entry with a fresh row carrying the same
// payload byte for byte, the attempt counter incremented and the published
// parts kept. Both happen in one transaction. The original first-queued time
// is kept.
func (s *Store) Requeue(ctx context.Context, entry Entry, cause error) (int64, error) {
	payload := []byte(entry.Payload)
	if len(payload) == 0 {
		var err error
		if payload, err = json.Marshal(entry.Item); err != nil {
			return 0, fmt.Errorf("marshal upload item: %w", err)
		}
	}
	parts, err := encodeParts(entry.Parts)
	if err != nil {
		return 0, err
	}
	first := entry.FirstQueuedAt
	if first.IsZero() {
		first = time.Now()
	}
	next := row{
		payload:     payload,
		attempts:    entry.Attempts + 1,
		firstQueued: first.UTC().Format(time.RFC3339Nano),
		lastAttempt: time.Now().UTC().Format(time.RFC3339Nano),
		parts:       parts,
	}
	if cause != nil {
		next.lastError = cause.Error()
	}

	var id int64
	err = retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()
		if id, err = insertRow(ctx, tx, next); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM upload_items WHERE id = ?", entry.ID); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return 0, fmt.Errorf("requeue upload item %d: %w", entry.ID, err)
	}
	return id, nil
}

// Complete removes an entry after its upload succeeded.
func (s *Store) Complete(ctx context.Context, id int64) error {
	err := retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, "DELETE FROM upload_items WHERE id = ?", id)
		return err
	})
	if err != nil {
		return fmt.Errorf("complete upload item %d: %w", id, err)
	}
	return nil
}

// RecordPart stores a published part of entry immediately, so neither a
// requeue nor a restart uploads it again.
func (s *Store) RecordPart(ctx context.Context, entry *Entry, path, videoID string) error {
	if entry.Parts == nil {
		entry.Parts = make(map[string]string)
	}
	entry.Parts[path] = videoID
	parts, err := encodeParts(entry.Parts)
	if err != nil {
		return err
	}
	err = retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, "UPDATE upload_items SET uploaded_parts = ? WHERE id = ?", parts, entry.ID)
		return err
	})
	if err != nil {
		return fmt.Errorf("record uploaded part of item %d: %w", entry.ID, err)
	}
	return nil
}

type row struct {
	payload     []byte
	attempts    int
	firstQueued string
	lastAttempt string
	lastError   string
	parts       string
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertRow(ctx context.Context, db execer, r row) (int64, error) {
	res, err := db.ExecContext(ctx,
		`INSERT INTO upload_items (payload, attempts, first_queued_at, last_attempt_at, last_error, uploaded_parts)
         VALUES (?, ?, ?, ?, ?, ?)`,
		string(r.payload), r.attempts, r.firstQueued, nullable(r.lastAttempt), nullable(r.lastError), nullable(r.parts),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func nullable(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

func encodeParts(parts map[string]string) (string, error) {
	if len(parts) == 0 {
		return "", nil
	}
	data, err := json.Marshal(parts)
	if err != nil {
		return "", fmt.Errorf("marshal uploaded parts: %w", err)
	}
	return string(data), nil
}

// Drain leases every entry not already leased by this Store and returns them
// oldest first. Rows stay queued until Complete or Requeue.
func (s *Store) Drain(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	now := time.Now().UTC().Format(time.RFC3339Nano)
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		rows, err := tx.QueryContext(ctx,
			`UPDATE upload_items SET leased_by = ?, leased_at = ?
             WHERE leased_by IS NULL OR leased_by <> ?
             RETURNING `+entryColumns,
			s.owner, now, s.owner,
		)
		if err != nil {
			return err
		}
		leased, err := scanEntries(rows)
		if err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		entries = leased
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("drain upload queue: %w", err)
	}
	slices.SortFunc(entries, func(a, b Entry) int { return cmp.Compare(a.ID, b.ID) })
	return entries, nil
}

// List returns all queued entries, oldest first.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+entryColumns+" FROM upload_items ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list upload items: %w", err)
	}
	return scanEntries(rows)
}

// Stuck returns entries that have failed at least minAttempts times.
func (s *Store) Stuck(ctx context.Context, minAttempts int) ([]Entry, error) {
	if minAttempts < 1 {
		minAttempts = 1
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+entryColumns+" FROM upload_items WHERE attempts >= ? ORDER BY attempts DESC, id",
		minAttempts,
	)
	if err != nil {
		return nil, fmt.Errorf("list stuck upload items: %w", err)
	}
	return scanEntries(rows)
}

// Count returns the queue depth.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM upload_items").Scan(&n); err != nil {
		return 0, fmt.Errorf("count upload items: %w", err)
	}
	return n, nil
}

// Clear deletes every queued entry and returns how many were removed.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	var removed int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, "DELETE FROM upload_items")
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("clear upload queue: %w", err)
	}
	return removed, nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var (
			entry       Entry
			payload     string
			firstQueued string
			lastAttempt sql.NullString
			lastError   sql.NullString
			parts       sql.NullString
		)
		if err := rows.Scan(&entry.ID, &payload, &entry.Attempts, &firstQueued, &lastAttempt, &lastError, &parts); err != nil {
			return nil, fmt.Errorf("scan upload item: %w", err)
		}
		entry.Payload = json.RawMessage(payload)
		if err := json.Unmarshal(entry.Payload, &entry.Item); err != nil {
			return nil, fmt.Errorf("decode upload item %d: %w", entry.ID, err)
		}
		entry.FirstQueuedAt = parseTime(firstQueued)
		if lastAttempt.Valid {
			entry.LastAttemptAt = parseTime(lastAttempt.String)
		}
		entry.LastError = strings.TrimSpace(lastError.String)
		if parts.Valid && parts.String != "" {
			if err := json.Unmarshal([]byte(parts.String), &entry.Parts); err != nil {
				return nil, fmt.Errorf("decode uploaded parts of item %d: %w", entry.ID, err)
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate upload items: %w", err)
	}
	return entries, nil
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}
	}
	return t
}
