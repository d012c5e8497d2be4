package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/boxlink/internal/boxsync"
	"github.com/nerrad567/boxlink/internal/infrastructure/database"
	"github.com/nerrad567/boxlink/migrations"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(database.Config{Path: database.MemoryPath, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if _, err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	return db
}

func TestSQLiteRepository_CreateAndList(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(openTestDB(t))

	base := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	entries := []AuditLog{
		{Action: ActionSetState, EntityType: EntityService, EntityID: "svc-1", Source: SourceAPI, CreatedAt: base},
		{Action: ActionSetState, EntityType: EntityService, EntityID: "svc-2", Source: SourceMQTT, CreatedAt: base.Add(time.Minute)},
		{Action: ActionSelectBox, EntityType: EntityBox, Source: SourceAPI, Details: map[string]any{"index": 1.0}, CreatedAt: base.Add(2 * time.Minute)},
	}
	for i := range entries {
		if err := repo.Create(ctx, &entries[i]); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if entries[i].ID == "" {
			t.Fatal("Create() did not assign an ID")
		}
	}

	tests := []struct {
		name    string
		filter  Filter
		wantIDs []string
		total   int
	}{
		{"all newest first", Filter{}, []string{entries[2].ID, entries[1].ID, entries[0].ID}, 3},
		{"by action", Filter{Action: ActionSetState}, []string{entries[1].ID, entries[0].ID}, 2},
		{"by source", Filter{Source: SourceMQTT}, []string{entries[1].ID}, 1},
		{"by entity", Filter{EntityType: EntityService, EntityID: "svc-1"}, []string{entries[0].ID}, 1},
		{"paged", Filter{Limit: 1, Offset: 1}, []string{entries[1].ID}, 3},
		{"no match", Filter{Action: ActionLogout}, []string{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if res.Total != tt.total {
				t.Errorf("Total = %d, want %d", res.Total, tt.total)
			}
			if len(res.Logs) != len(tt.wantIDs) {
				t.Fatalf("got %d logs, want %d", len(res.Logs), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if res.Logs[i].ID != id {
					t.Errorf("Logs[%d].ID = %s, want %s", i, res.Logs[i].ID, id)
				}
			}
		})
	}

	res, err := repo.List(ctx, Filter{Action: ActionSelectBox})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if got := res.Logs[0].Details["index"]; got != 1.0 {
		t.Errorf("Details[index] = %v, want 1", got)
	}
	if !res.Logs[0].CreatedAt.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("CreatedAt = %v", res.Logs[0].CreatedAt)
	}
}

func TestSQLiteRepository_ListLimits(t *testing.T) {
	repo := NewSQLiteRepository(openTestDB(t))

	tests := []struct {
		limit int
		want  int
	}{
		{0, defaultLimit},
		{-5, defaultLimit},
		{10, 10},
		{1000, maxLimit},
	}
	for _, tt := range tests {
		res, err := repo.List(context.Background(), Filter{Limit: tt.limit, Offset: -1})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if res.Limit != tt.want {
			t.Errorf("limit %d: Limit = %d, want %d", tt.limit, res.Limit, tt.want)
		}
		if res.Offset != 0 {
			t.Errorf("Offset = %d, want 0", res.Offset)
		}
	}
}

func TestSQLiteRepository_CreateRequiresFields(t *testing.T) {
	repo := NewSQLiteRepository(openTestDB(t))

	err := repo.Create(context.Background(), &AuditLog{Action: ActionClear})
	if err == nil {
		t.Fatal("Create() with missing fields should fail")
	}
}

func TestSQLiteRepository_Prune(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(openTestDB(t))

	now := time.Now().UTC()
	for _, age := range []time.Duration{48 * time.Hour, 36 * time.Hour, time.Hour} {
		log := &AuditLog{Action: ActionClear, EntityType: EntitySystem, Source: SourceAPI, CreatedAt: now.Add(-age)}
		if err := repo.Create(ctx, log); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	n, err := repo.Prune(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Prune() removed %d, want 2", n)
	}

	res, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 1 {
		t.Errorf("Total after prune = %d, want 1", res.Total)
	}
}

type stubSetter struct {
	calls int
	err   error
}

func (s *stubSetter) SetServiceState(context.Context, string, boxsync.State) error {
	s.calls++
	return s.err
}

func TestSetter_RecordsSuccessOnly(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(openTestDB(t))
	rec := NewRecorder(repo)

	next := &stubSetter{}
	s := NewSetter(next, rec, SourceMQTT)

	if err := s.SetServiceState(ctx, "svc-1", boxsync.State{"on": true}); err != nil {
		t.Fatalf("SetServiceState() error = %v", err)
	}

	next.err = errors.New("box said no")
	if err := s.SetServiceState(ctx, "svc-1", boxsync.State{"on": false}); !errors.Is(err, next.err) {
		t.Fatalf("SetServiceState() error = %v, want wrapped setter error", err)
	}

	res, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 1 {
		t.Fatalf("Total = %d, want 1", res.Total)
	}
	got := res.Logs[0]
	if got.Source != SourceMQTT || got.Action != ActionSetState || got.EntityID != "svc-1" {
		t.Errorf("entry = %+v", got)
	}
	if next.calls != 2 {
		t.Errorf("next called %d times, want 2", next.calls)
	}
}

type warnLogger struct{ warned int }

func (l *warnLogger) Warn(string, ...any) { l.warned++ }

func TestRecorder_LogsFailures(t *testing.T) {
	db := openTestDB(t)
	rec := NewRecorder(NewSQLiteRepository(db))
	logger := &warnLogger{}
	rec.SetLogger(logger)

	db.Close() //nolint:errcheck // forcing insert failures
	rec.Record(context.Background(), SourceAPI, ActionClear, EntitySystem, "", nil)

	if logger.warned != 1 {
		t.Errorf("warned %d times, want 1", logger.warned)
	}

	var nilRec *Recorder
	nilRec.Record(context.Background(), SourceAPI, ActionClear, EntitySystem, "", nil)
}
