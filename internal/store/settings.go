package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/boxlink/internal/boxsync"
	"github.com/nerrad567/boxlink/internal/infrastructure/database"
)

// SettingsStore implements boxsync.Settings on the settings table.
//
// Watchers run synchronously on the writing goroutine after the write has
// been committed, in registration order.
type SettingsStore struct {
	db *database.DB

	mu       sync.Mutex
	nextID   uint64
	watchers map[string][]settingWatcher
}

type settingWatcher struct {
	id uint64
	fn func(string)
}

var _ boxsync.Settings = (*SettingsStore)(nil)

// NewSettingsStore creates a settings store over an open, migrated database.
func NewSettingsStore(db *database.DB) *SettingsStore {
	return &SettingsStore{
		db:       db,
		watchers: make(map[string][]settingWatcher),
	}
}

// Get returns the value of key, or "" when unset.
func (s *SettingsStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading setting %s: %w", key, err)
	}
	return value, nil
}

// Set writes key and notifies its watchers when the value changed.
func (s *SettingsStore) Set(ctx context.Context, key, value string) error {
	prev, err := s.Get(ctx, key)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("writing setting %s: %w", key, err)
	}

	if prev != value {
		s.notify(key, value)
	}
	return nil
}

// SetDefaults writes every key of values that is not stored yet. Watchers
// are not notified.
func (s *SettingsStore) SetDefaults(ctx context.Context, values map[string]string) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC().Format(time.RFC3339)
		for k, v := range values {
			if _, err := tx.ExecContext(ctx,
				"INSERT OR IGNORE INTO settings (key, value, updated_at) VALUES (?, ?, ?)",
				k, v, now,
			); err != nil {
				return fmt.Errorf("seeding setting %s: %w", k, err)
			}
		}
		return nil
	})
}

// Delete removes key. Watchers see "".
func (s *SettingsStore) Delete(ctx context.Context, key string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM settings WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("deleting setting %s: %w", key, err)
	}
	if n, err := result.RowsAffected(); err == nil && n > 0 {
		s.notify(key, "")
	}
	return nil
}

// All returns every stored setting.
func (s *SettingsStore) All(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM settings ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("querying settings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scanning setting: %w", err)
		}
		out[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating settings: %w", err)
	}
	return out, nil
}

// Watch registers fn for changes of key. The returned function removes it.
func (s *SettingsStore) Watch(key string, fn func(value string)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.watchers[key] = append(s.watchers[key], settingWatcher{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() { s.unwatch(key, id) })
	}
}

func (s *SettingsStore) unwatch(key string, id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws := s.watchers[key]
	kept := make([]settingWatcher, 0, len(ws))
	for _, w := range ws {
		if w.id != id {
			kept = append(kept, w)
		}
	}
	if len(kept) == 0 {
		delete(s.watchers, key)
		return
	}
	s.watchers[key] = kept
}

func (s *SettingsStore) notify(key, value string) {
	s.mu.Lock()
	ws := s.watchers[key]
	s.mu.Unlock()

	for _, w := range ws {
		w.fn(value)
	}
}
