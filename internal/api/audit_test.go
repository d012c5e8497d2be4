package api

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/nerrad567/boxlink/internal/audit"
	"github.com/nerrad567/boxlink/internal/boxsync"
	"github.com/nerrad567/boxlink/internal/infrastructure/config"
	"github.com/nerrad567/boxlink/internal/infrastructure/database"
	"github.com/nerrad567/boxlink/migrations"
)

func auditServer(t *testing.T) (*Server, *fakeCore, *audit.SQLiteRepository) {
	t.Helper()

	db, err := database.Open(database.Config{Path: database.MemoryPath, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup
	if _, err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("migrating: %v", err)
	}

	repo := audit.NewSQLiteRepository(db)
	core := newFakeCore()
	srv, err := New(Deps{
		Config: config.APIConfig{Host: "127.0.0.1"},
		Logger: testLogger(),
		Core:   core,
		Audit:  repo,
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return srv, core, repo
}

func TestAudit_RecordsWrites(t *testing.T) {
	srv, core, repo := auditServer(t)
	core.addService(boxsync.Service{ID: "svc-1"})
	h := srv.Handler()

	writes := []struct {
		method, path string
		body         any
		code         int
	}{
		{http.MethodPut, "/api/v1/services/svc-1/state", map[string]any{"on": true}, http.StatusAccepted},
		{http.MethodPut, "/api/v1/tags/t1", map[string]string{"name": "Office"}, http.StatusOK},
		{http.MethodPut, "/api/v1/polling", map[string]bool{"enabled": false}, http.StatusOK},
		{http.MethodDelete, "/api/v1/session", nil, http.StatusNoContent},
	}
	for _, wr := range writes {
		if w := do(t, h, wr.method, wr.path, wr.body); w.Code != wr.code {
			t.Fatalf("%s %s: status = %d, want %d: %s", wr.method, wr.path, w.Code, wr.code, w.Body.String())
		}
	}

	// Failed writes and reads are not recorded.
	do(t, h, http.MethodPut, "/api/v1/services/missing/state", map[string]any{"on": true})
	do(t, h, http.MethodGet, "/api/v1/services", nil)

	res, err := repo.List(context.Background(), audit.Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != len(writes) {
		t.Fatalf("Total = %d, want %d", res.Total, len(writes))
	}

	actions := map[string]bool{}
	for _, l := range res.Logs {
		if l.Source != audit.SourceAPI {
			t.Errorf("Source = %q, want api", l.Source)
		}
		actions[l.Action] = true
	}
	for _, want := range []string{audit.ActionSetState, audit.ActionSetTag, audit.ActionSetPolling, audit.ActionLogout} {
		if !actions[want] {
			t.Errorf("missing %s entry", want)
		}
	}
}

func TestAudit_ListEndpoint(t *testing.T) {
	srv, core, _ := auditServer(t)
	core.addService(boxsync.Service{ID: "svc-1"})
	h := srv.Handler()

	do(t, h, http.MethodPut, "/api/v1/services/svc-1/state", map[string]any{"on": true})
	do(t, h, http.MethodPost, "/api/v1/system/clear", nil)

	w := do(t, h, http.MethodGet, "/api/v1/audit?action=set_state", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["total"] != 1.0 {
		t.Errorf("total = %v, want 1", body["total"])
	}
	logs := body["logs"].([]any)
	if got := logs[0].(map[string]any)["entity_id"]; got != "svc-1" {
		t.Errorf("entity_id = %v, want svc-1", got)
	}

	if w := do(t, h, http.MethodGet, "/api/v1/audit?limit=abc", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad limit: status = %d, want 400", w.Code)
	}
}

func TestAudit_DisabledWithoutRepository(t *testing.T) {
	srv, _ := testServer(t)
	if w := do(t, srv.Handler(), http.MethodGet, "/api/v1/audit", nil); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestPanel_Mounted(t *testing.T) {
	core := newFakeCore()
	srv, err := New(Deps{
		Config: config.APIConfig{Panel: config.PanelConfig{Enabled: true}},
		Logger: testLogger(),
		Core:   core,
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	h := srv.Handler()

	w := do(t, h, http.MethodGet, "/", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "<!DOCTYPE html>") {
		t.Errorf("GET /: status = %d", w.Code)
	}

	// API routes still win over the page fallback.
	w = do(t, h, http.MethodGet, "/api/v1/polling", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "enabled") {
		t.Errorf("GET /api/v1/polling: status = %d body = %s", w.Code, w.Body.String())
	}
}
