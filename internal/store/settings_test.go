package store

import (
	"context"
	"testing"
)

func TestSettingsStore_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	s := NewSettingsStore(openTestDB(t))

	v, err := s.Get(ctx, "origin")
	if err != nil || v != "" {
		t.Fatalf("Get(unset) = %q, %v; want empty, nil", v, err)
	}

	if err := s.Set(ctx, "origin", "https://box.local:8443"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := s.Set(ctx, "origin", "https://other.local:8443"); err != nil {
		t.Fatalf("Set(overwrite) error = %v", err)
	}
	if v, _ := s.Get(ctx, "origin"); v != "https://other.local:8443" {
		t.Errorf("Get() = %q", v)
	}

	if err := s.Delete(ctx, "origin"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if v, _ := s.Get(ctx, "origin"); v != "" {
		t.Errorf("Get() after Delete = %q", v)
	}
	if err := s.Delete(ctx, "origin"); err != nil {
		t.Errorf("Delete(unset) error = %v", err)
	}
}

func TestSettingsStore_Watch(t *testing.T) {
	ctx := context.Background()
	s := NewSettingsStore(openTestDB(t))

	var seen []string
	cancel := s.Watch("polling_enabled", func(v string) { seen = append(seen, v) })
	s.Watch("other", func(string) { t.Error("watcher of another key called") })

	_ = s.Set(ctx, "polling_enabled", "true")
	_ = s.Set(ctx, "polling_enabled", "true") // unchanged: no notification
	_ = s.Set(ctx, "polling_enabled", "false")
	_ = s.Delete(ctx, "polling_enabled")

	want := []string{"true", "false", ""}
	if len(seen) != len(want) {
		t.Fatalf("seen = %q, want %q", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("seen[%d] = %q, want %q", i, seen[i], want[i])
		}
	}

	cancel()
	cancel() // idempotent
	_ = s.Set(ctx, "polling_enabled", "true")
	if len(seen) != len(want) {
		t.Error("watcher called after cancel")
	}
}

func TestSettingsStore_WatcherReadsCommittedValue(t *testing.T) {
	ctx := context.Background()
	s := NewSettingsStore(openTestDB(t))

	var read string
	s.Watch("session_token", func(string) {
		read, _ = s.Get(ctx, "session_token")
	})
	_ = s.Set(ctx, "session_token", "tok")

	if read != "tok" {
		t.Errorf("watcher read %q, want committed value", read)
	}
}

func TestSettingsStore_SetDefaults(t *testing.T) {
	ctx := context.Background()
	s := NewSettingsStore(openTestDB(t))

	_ = s.Set(ctx, "api_version", "3")
	err := s.SetDefaults(ctx, map[string]string{
		"api_version":      "1",
		"polling_interval": "2s",
	})
	if err != nil {
		t.Fatalf("SetDefaults() error = %v", err)
	}

	all, err := s.All(ctx)
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if all["api_version"] != "3" {
		t.Errorf("api_version = %q, want stored value kept", all["api_version"])
	}
	if all["polling_interval"] != "2s" {
		t.Errorf("polling_interval = %q, want default", all["polling_interval"])
	}
}
