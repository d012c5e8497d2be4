package audit

import (
	"context"
	"time"

	"github.com/nerrad567/boxlink/internal/boxsync"
)

const recordTimeout = 2 * time.Second

// Logger is the logging interface used by the recorder.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Recorder writes entries without failing the caller. The write to the box
// has already happened by the time an entry is recorded, so a failed insert
// is logged and dropped.
type Recorder struct {
	repo   Repository
	logger Logger
}

// NewRecorder creates a recorder backed by repo.
func NewRecorder(repo Repository) *Recorder {
	return &Recorder{repo: repo, logger: noopLogger{}}
}

// SetLogger sets the logger for the recorder.
func (r *Recorder) SetLogger(logger Logger) {
	r.logger = logger
}

// Record stores one entry. A nil recorder does nothing.
func (r *Recorder) Record(ctx context.Context, source, action, entityType, entityID string, details map[string]any) {
	if r == nil {
		return
	}

	// The request context may already be cancelled once the response is out.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	err := r.repo.Create(ctx, &AuditLog{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Source:     source,
		Details:    details,
	})
	if err != nil {
		r.logger.Warn("audit record failed", "action", action, "entity_id", entityID, "error", err)
	}
}

// StateSetter is the write path the MQTT mirror drives.
type StateSetter interface {
	SetServiceState(ctx context.Context, id string, state boxsync.State) error
}

// Setter records every successful state change made through next.
type Setter struct {
	next   StateSetter
	rec    *Recorder
	source string
}

// NewSetter wraps next so successful calls are recorded under source.
//
// Example:
//
//	setter := audit.NewSetter(core, rec, audit.SourceMQTT)
//	m := mirror.NewMQTTMirror(mirror.MQTTMirrorConfig{Publisher: client, Subscriber: client, Setter: setter})
func NewSetter(next StateSetter, rec *Recorder, source string) *Setter {
	return &Setter{next: next, rec: rec, source: source}
}

// SetServiceState forwards to the wrapped setter.
func (s *Setter) SetServiceState(ctx context.Context, id string, state boxsync.State) error {
	if err := s.next.SetServiceState(ctx, id, state); err != nil {
		return err
	}
	s.rec.Record(ctx, s.source, ActionSetState, EntityService, id, map[string]any{"state": map[string]any(state)})
	return nil
}
