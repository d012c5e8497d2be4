package boxsync

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
)

// Service is a device or capability exposed by the box.
// This matches the record returned by GET /api/v{n}/services and the row
// persisted by the cache store.
type Service struct {
	ID         string         `json:"id"`
	Type       string         `json:"type,omitempty"`
	Adapter    string         `json:"adapter,omitempty"`
	Getters    map[string]any `json:"getters,omitempty"`
	Setters    map[string]any `json:"setters,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
	State      State          `json:"state,omitempty"`

	// Tags is an ordered set of tag ids. The box never reports tags; they
	// only live in the cache and survive merges.
	Tags []string `json:"tags,omitempty"`
}

// State holds the current state of a service as a JSON map.
//
// Examples:
//   - Light: {"on": true, "level": 75}
//   - Camera: {"recording": false}
type State map[string]any

// DeepCopy creates a complete independent copy of the Service.
// All map and slice fields are cloned so the cache never shares memory with callers.
func (s *Service) DeepCopy() *Service {
	if s == nil {
		return nil
	}

	cpy := *s
	cpy.Getters = deepCopyMap(s.Getters)
	cpy.Setters = deepCopyMap(s.Setters)
	cpy.Properties = deepCopyMap(s.Properties)
	cpy.State = State(deepCopyMap(s.State))
	if s.Tags != nil {
		cpy.Tags = slices.Clone(s.Tags)
	}
	return &cpy
}

// Merge overlays fetched onto s and returns the result as a new record.
//
// Fields the box reported replace the cached ones; fields the box omitted
// (and tags, which the box never reports) survive from s. Maps are replaced
// wholesale, not merged key by key.
func (s *Service) Merge(fetched *Service) *Service {
	merged := s.DeepCopy()
	if fetched == nil {
		return merged
	}
	if fetched.Type != "" {
		merged.Type = fetched.Type
	}
	if fetched.Adapter != "" {
		merged.Adapter = fetched.Adapter
	}
	if fetched.Getters != nil {
		merged.Getters = deepCopyMap(fetched.Getters)
	}
	if fetched.Setters != nil {
		merged.Setters = deepCopyMap(fetched.Setters)
	}
	if fetched.Properties != nil {
		merged.Properties = deepCopyMap(fetched.Properties)
	}
	if fetched.State != nil {
		merged.State = State(deepCopyMap(fetched.State))
	}
	if fetched.Tags != nil {
		merged.Tags = slices.Clone(fetched.Tags)
	}
	return merged
}

// HasTag reports whether the service carries the tag id.
func (s *Service) HasTag(tagID string) bool {
	return slices.Contains(s.Tags, tagID)
}

// deepCopyMap creates a deep copy of a map[string]any.
// Nested maps and slices are recursively copied.
func deepCopyMap[M ~map[string]any](m M) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		return v
	}
}

// copyServices deep copies a service list.
func copyServices(services []Service) []Service {
	if services == nil {
		return nil
	}
	out := make([]Service, len(services))
	for i := range services {
		out[i] = *services[i].DeepCopy()
	}
	return out
}

// Box is a hub advertised on the local network.
type Box struct {
	Addresses []string `json:"addresses"`
	Port      int      `json:"port"`
	Name      string   `json:"name"`
}

// Origin returns the HTTPS origin of the box, built from its advertised name.
func (b Box) Origin() string {
	return fmt.Sprintf("https://%s:%d", b.Name, b.Port)
}

// Tag is a free-form label that services reference by id.
type Tag struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Well-known operation kinds. The list is not closed: any other string kind
// is passed through as its own value type.
const (
	KindOnOff        = "OnOff"
	KindTakeSnapshot = "TakeSnapshot"
	KindBinary       = "Binary"
	KindUnit         = "Unit"
)

// OperationKind describes how an operation value is framed on the wire.
//
// It is either a well-known string ({"kind": "OnOff"}) or an extension
// object ({"kind": {"typ": "Binary"}}). Exactly one of Name or Typ is set.
type OperationKind struct {
	Name string
	Typ  string
}

// WellKnownKind returns a string kind.
func WellKnownKind(name string) *OperationKind {
	return &OperationKind{Name: name}
}

// ExtensionKind returns a structured kind carrying a type tag.
func ExtensionKind(typ string) *OperationKind {
	return &OperationKind{Typ: typ}
}

// IsExtension reports whether the kind is the structured variant.
func (k *OperationKind) IsExtension() bool {
	return k != nil && k.Typ != ""
}

// MarshalJSON encodes the kind in whichever shape it was built with.
func (k OperationKind) MarshalJSON() ([]byte, error) {
	if k.Typ != "" {
		return json.Marshal(struct {
			Typ string `json:"typ"`
		}{k.Typ})
	}
	return json.Marshal(k.Name)
}

// UnmarshalJSON accepts both the string and the object shape.
func (k *OperationKind) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		*k = OperationKind{Name: name}
		return nil
	}

	var ext struct {
		Typ string `json:"typ"`
	}
	if err := json.Unmarshal(data, &ext); err != nil {
		return fmt.Errorf("operation kind must be a string or {\"typ\": ...}: %w", err)
	}
	*k = OperationKind{Typ: ext.Typ}
	return nil
}

// Operation is a parameterised get/set request against a channel of the box.
type Operation struct {
	ID   string         `json:"id"`
	Kind *OperationKind `json:"kind,omitempty"`
}
