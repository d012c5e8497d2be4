package boxsync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

const resultSuccess = "success"

// RequestFunc issues a request against the active box.
type RequestFunc func(ctx context.Context, req Request) (*Response, error)

// GetResult is the answer to a channel get.
// Binary gets fill Data and ContentType; JSON gets fill Value.
type GetResult struct {
	Value       any    `json:"value,omitempty"`
	Data        []byte `json:"data,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

// IsBinary reports whether the result carries a binary payload.
func (r *GetResult) IsBinary() bool {
	return r.Data != nil
}

// Dispatcher executes get/set operations against box channels.
// It is invoked on demand and never on the polling path.
type Dispatcher struct {
	do         RequestFunc
	apiVersion func() int
	logger     Logger
}

// NewDispatcher creates a dispatcher. apiVersion is read on every call.
func NewDispatcher(do RequestFunc, apiVersion func() int) *Dispatcher {
	return &Dispatcher{do: do, apiVersion: apiVersion, logger: noopLogger{}}
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.logger = logger
}

// ResolveValueType returns the wire key under which a value of kind travels.
//
// Extension kinds use their typ. Well-known kinds map to themselves except
// TakeSnapshot, whose value is Unit.
func ResolveValueType(kind *OperationKind) (string, error) {
	if kind == nil {
		return "", fmt.Errorf("%w: missing kind", ErrInvalidOperation)
	}
	if kind.IsExtension() {
		return kind.Typ, nil
	}
	switch kind.Name {
	case "":
		return "", fmt.Errorf("%w: empty kind", ErrInvalidOperation)
	case KindTakeSnapshot:
		return KindUnit, nil
	default:
		return kind.Name, nil
	}
}

// PerformSet writes value to the channel addressed by op.
func (d *Dispatcher) PerformSet(ctx context.Context, op Operation, value any) error {
	typeKey, err := ResolveValueType(op.Kind)
	if err != nil {
		return err
	}
	if op.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidOperation)
	}

	body := [][]map[string]any{{
		{"id": op.ID},
		{typeKey: value},
	}}
	resp, err := d.do(ctx, Request{
		Method: http.MethodPut,
		Path:   d.path("channels/set"),
		Body:   body,
	})
	if err != nil {
		return fmt.Errorf("setting channel %s: %w", op.ID, err)
	}

	var result struct {
		Result string `json:"result"`
	}
	if err := resp.DecodeJSON(&result); err != nil {
		return fmt.Errorf("setting channel %s: %w", op.ID, err)
	}
	if result.Result != resultSuccess {
		return fmt.Errorf("%w: channel %s set returned %q", ErrOperationFailed, op.ID, result.Result)
	}

	d.logger.Debug("channel set", "id", op.ID, "type", typeKey)
	return nil
}

// PerformGet reads the channel addressed by op.
//
// A Binary kind asks for the binary media type. The call fails with
// ErrOperationFailed on an empty or null response, on a result other than
// success, or when the response carries an error.
func (d *Dispatcher) PerformGet(ctx context.Context, op Operation) (*GetResult, error) {
	typeKey, err := ResolveValueType(op.Kind)
	if err != nil {
		return nil, err
	}
	if op.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrInvalidOperation)
	}

	binary := typeKey == KindBinary
	resp, err := d.do(ctx, Request{
		Method: http.MethodPut,
		Path:   d.path("channels/get"),
		Body:   map[string]any{"id": op.ID},
		Binary: binary,
	})
	if err != nil {
		return nil, fmt.Errorf("getting channel %s: %w", op.ID, err)
	}
	if resp == nil || len(resp.Body) == 0 {
		return nil, fmt.Errorf("%w: channel %s returned nothing", ErrOperationFailed, op.ID)
	}

	if binary {
		return &GetResult{Data: resp.Body, ContentType: resp.ContentType}, nil
	}

	var value any
	if err := json.Unmarshal(resp.Body, &value); err != nil {
		return nil, fmt.Errorf("decoding channel %s: %w", op.ID, err)
	}
	if err := checkGetValue(value); err != nil {
		return nil, fmt.Errorf("getting channel %s: %w", op.ID, err)
	}
	return &GetResult{Value: value, ContentType: resp.ContentType}, nil
}

func checkGetValue(value any) error {
	if value == nil {
		return fmt.Errorf("%w: null response", ErrOperationFailed)
	}
	obj, ok := value.(map[string]any)
	if !ok {
		return nil
	}
	if e, ok := obj["error"]; ok {
		return fmt.Errorf("%w: %v", ErrOperationFailed, e)
	}
	if r, ok := obj["result"]; ok && r != resultSuccess {
		return fmt.Errorf("%w: result %v", ErrOperationFailed, r)
	}
	return nil
}

func (d *Dispatcher) path(endpoint string) string {
	return apiPath(d.apiVersion(), endpoint)
}

// apiPath returns /api/v{version}/{endpoint}.
func apiPath(version int, endpoint string) string {
	return fmt.Sprintf("/api/v%d/%s", version, endpoint)
}
