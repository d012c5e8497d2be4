package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/boxlink/internal/boxsync"
	"github.com/nerrad567/boxlink/internal/infrastructure/database"
)

// SQLiteCache implements boxsync.CacheStore.
type SQLiteCache struct {
	db *database.DB
}

var _ boxsync.CacheStore = (*SQLiteCache)(nil)

// NewSQLiteCache creates a cache over an open, migrated database.
func NewSQLiteCache(db *database.DB) *SQLiteCache {
	return &SQLiteCache{db: db}
}

const serviceColumns = `id, type, adapter, getters, setters, properties, state, tags`

// GetService returns boxsync.ErrServiceNotFound for unknown ids.
func (c *SQLiteCache) GetService(ctx context.Context, id string) (*boxsync.Service, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+serviceColumns+` FROM services WHERE id = ?`, id)
	svc, err := scanService(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, boxsync.ErrServiceNotFound
		}
		return nil, fmt.Errorf("querying service by id: %w", err)
	}
	return svc, nil
}

// ListServices returns every cached service ordered by id.
func (c *SQLiteCache) ListServices(ctx context.Context) ([]boxsync.Service, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT `+serviceColumns+` FROM services ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying services: %w", err)
	}
	defer rows.Close()

	services := []boxsync.Service{}
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning service: %w", err)
		}
		services = append(services, *svc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating services: %w", err)
	}
	return services, nil
}

// SetService inserts svc or replaces the record with the same id.
func (c *SQLiteCache) SetService(ctx context.Context, svc *boxsync.Service) error {
	if svc == nil || svc.ID == "" {
		return boxsync.ErrInvalidService
	}

	getters, err := marshalMap(svc.Getters)
	if err != nil {
		return fmt.Errorf("marshalling getters: %w", err)
	}
	setters, err := marshalMap(svc.Setters)
	if err != nil {
		return fmt.Errorf("marshalling setters: %w", err)
	}
	properties, err := marshalMap(svc.Properties)
	if err != nil {
		return fmt.Errorf("marshalling properties: %w", err)
	}
	state, err := marshalMap(svc.State)
	if err != nil {
		return fmt.Errorf("marshalling state: %w", err)
	}
	tags := svc.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("marshalling tags: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO services (`+serviceColumns+`, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			adapter = excluded.adapter,
			getters = excluded.getters,
			setters = excluded.setters,
			properties = excluded.properties,
			state = excluded.state,
			tags = excluded.tags,
			updated_at = excluded.updated_at`,
		svc.ID, svc.Type, svc.Adapter,
		getters, setters, properties, state, string(tagsJSON),
		now, now,
	)
	if err != nil {
		return fmt.Errorf("upserting service: %w", err)
	}
	return nil
}

// Clear removes every service and tag.
func (c *SQLiteCache) Clear(ctx context.Context) error {
	return c.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM services"); err != nil {
			return fmt.Errorf("clearing services: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM tags"); err != nil {
			return fmt.Errorf("clearing tags: %w", err)
		}
		return nil
	})
}

// ListTags returns every tag ordered by name.
func (c *SQLiteCache) ListTags(ctx context.Context) ([]boxsync.Tag, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT id, name FROM tags ORDER BY name, id")
	if err != nil {
		return nil, fmt.Errorf("querying tags: %w", err)
	}
	defer rows.Close()

	tags := []boxsync.Tag{}
	for rows.Next() {
		var t boxsync.Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, fmt.Errorf("scanning tag: %w", err)
		}
		tags = append(tags, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tags: %w", err)
	}
	return tags, nil
}

// SetTag inserts tag or renames the tag with the same id.
func (c *SQLiteCache) SetTag(ctx context.Context, tag *boxsync.Tag) error {
	if tag == nil || tag.ID == "" {
		return boxsync.ErrInvalidTag
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO tags (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, updated_at = excluded.updated_at`,
		tag.ID, tag.Name, now, now,
	)
	if err != nil {
		return fmt.Errorf("upserting tag: %w", err)
	}
	return nil
}

// DeleteTag returns boxsync.ErrTagNotFound for unknown ids. Services keep
// referencing the id until they are rewritten.
func (c *SQLiteCache) DeleteTag(ctx context.Context, id string) error {
	result, err := c.db.ExecContext(ctx, "DELETE FROM tags WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting tag: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return boxsync.ErrTagNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanService(row scanner) (*boxsync.Service, error) {
	var (
		svc                                 boxsync.Service
		getters, setters, properties, state sql.NullString
		tags                                string
	)
	if err := row.Scan(&svc.ID, &svc.Type, &svc.Adapter, &getters, &setters, &properties, &state, &tags); err != nil {
		return nil, err
	}

	var err error
	if svc.Getters, err = unmarshalMap(getters); err != nil {
		return nil, fmt.Errorf("unmarshalling getters: %w", err)
	}
	if svc.Setters, err = unmarshalMap(setters); err != nil {
		return nil, fmt.Errorf("unmarshalling setters: %w", err)
	}
	if svc.Properties, err = unmarshalMap(properties); err != nil {
		return nil, fmt.Errorf("unmarshalling properties: %w", err)
	}
	st, err := unmarshalMap(state)
	if err != nil {
		return nil, fmt.Errorf("unmarshalling state: %w", err)
	}
	if st != nil {
		svc.State = boxsync.State(st)
	}
	if err := json.Unmarshal([]byte(tags), &svc.Tags); err != nil {
		return nil, fmt.Errorf("unmarshalling tags: %w", err)
	}
	if len(svc.Tags) == 0 {
		svc.Tags = nil
	}
	return &svc, nil
}

// marshalMap stores nil maps as NULL so they read back as nil.
func marshalMap[M ~map[string]any](m M) (any, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func unmarshalMap(s sql.NullString) (map[string]any, error) {
	if !s.Valid {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s.String), &m); err != nil {
		return nil, err
	}
	return m, nil
}
