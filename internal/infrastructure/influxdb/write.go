package influxdb

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementServiceState holds one point per service state change.
const MeasurementServiceState = "service_state"

// ServiceStatePoint builds a service_state point tagged with the service id
// and type. Only numeric and boolean state values become fields; nested and
// string values are skipped. ok is false when nothing is recordable.
func ServiceStatePoint(id, typ string, state map[string]any, at time.Time) (p *write.Point, ok bool) {
	fields := StateFields(state)
	if id == "" || len(fields) == 0 {
		return nil, false
	}

	tags := map[string]string{"service_id": id}
	if typ != "" {
		tags["type"] = typ
	}
	return write.NewPoint(MeasurementServiceState, tags, fields, at), true
}

// StateFields returns the recordable subset of state. Integers are kept as
// int64; every other number becomes float64.
func StateFields(state map[string]any) map[string]any {
	fields := make(map[string]any, len(state))
	for k, v := range state {
		if f, ok := fieldValue(v); ok {
			fields[k] = f
		}
	}
	return fields
}

func fieldValue(v any) (any, bool) {
	switch n := v.(type) {
	case bool:
		return n, true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true //nolint:gosec // state counters fit
	case uint32:
		return int64(n), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		if f, err := n.Float64(); err == nil {
			return f, true
		}
	}
	return nil, false
}

// FieldNames returns the sorted field names of state that would be recorded.
func FieldNames(state map[string]any) []string {
	fields := StateFields(state)
	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
