package mirror

import (
	"context"

	"github.com/nerrad567/boxlink/internal/boxsync"
)

// EventSource is the part of boxsync.Core the mirrors subscribe to.
type EventSource interface {
	Subscribe(t boxsync.EventType, handler boxsync.Handler) boxsync.SubscriptionID
	Unsubscribe(id boxsync.SubscriptionID)
}

// StateSetter forwards inbound state changes to the box.
type StateSetter interface {
	SetServiceState(ctx context.Context, id string, state boxsync.State) error
}

// Logger is the logging interface used by the mirrors.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
