package boxsync

import (
	"testing"
)

func TestService_DeepCopy(t *testing.T) {
	orig := &Service{
		ID:         "1",
		Properties: map[string]any{"room": map[string]any{"floor": 1.0}},
		State:      State{"levels": []any{1.0, 2.0}},
		Tags:       []string{"a"},
	}

	cpy := orig.DeepCopy()
	cpy.Properties["room"].(map[string]any)["floor"] = 2.0
	cpy.State["levels"].([]any)[0] = 9.0
	cpy.Tags[0] = "b"

	if orig.Properties["room"].(map[string]any)["floor"] != 1.0 {
		t.Error("nested property shared with copy")
	}
	if orig.State["levels"].([]any)[0] != 1.0 {
		t.Error("state slice shared with copy")
	}
	if orig.Tags[0] != "a" {
		t.Error("tags shared with copy")
	}

	var nilSvc *Service
	if nilSvc.DeepCopy() != nil {
		t.Error("DeepCopy of nil should be nil")
	}
}

func TestService_Merge(t *testing.T) {
	cached := &Service{
		ID:         "1",
		Type:       "light",
		Adapter:    "zigbee",
		Properties: map[string]any{"name": "Desk"},
		State:      State{"on": false, "level": 10.0},
		Tags:       []string{"office"},
	}
	fetched := &Service{
		ID:    "1",
		Type:  "dimmer",
		State: State{"on": true},
	}

	merged := cached.Merge(fetched)

	if merged.Type != "dimmer" {
		t.Errorf("Type = %q, want fetched value", merged.Type)
	}
	if merged.Adapter != "zigbee" {
		t.Errorf("Adapter = %q, want cached value", merged.Adapter)
	}
	if merged.Properties["name"] != "Desk" {
		t.Errorf("Properties = %v, want cached value", merged.Properties)
	}
	if _, ok := merged.State["level"]; ok || merged.State["on"] != true {
		t.Errorf("State = %v, want replaced wholesale", merged.State)
	}
	if !merged.HasTag("office") {
		t.Errorf("Tags = %v, want cached tags kept", merged.Tags)
	}
	if cached.State["on"] != false {
		t.Error("Merge mutated the cached record")
	}
}

func TestBox_Origin(t *testing.T) {
	b := Box{Name: "hub.local", Port: 8443}
	if got := b.Origin(); got != "https://hub.local:8443" {
		t.Errorf("Origin() = %q", got)
	}
}
