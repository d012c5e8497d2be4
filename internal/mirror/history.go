package mirror

import (
	"sync"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/boxlink/internal/boxsync"
	"github.com/nerrad567/boxlink/internal/infrastructure/influxdb"
)

// PointWriter queues points without blocking.
type PointWriter interface {
	WritePoint(p *write.Point)
}

// HistoryRecorder writes a service_state point for every state change.
type HistoryRecorder struct {
	writer PointWriter
	logger Logger
	now    func() time.Time

	mu     sync.Mutex
	source EventSource
	sub    boxsync.SubscriptionID
}

// NewHistoryRecorder creates a stopped recorder.
func NewHistoryRecorder(w PointWriter) *HistoryRecorder {
	return &HistoryRecorder{writer: w, logger: noopLogger{}, now: time.Now}
}

// SetLogger sets the logger for the recorder.
func (h *HistoryRecorder) SetLogger(logger Logger) {
	h.logger = logger
}

// Start subscribes to state changes on src.
func (h *HistoryRecorder) Start(src EventSource) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.source != nil {
		return ErrMirrorStarted
	}
	h.source = src
	h.sub = src.Subscribe(boxsync.EventServiceStateChange, h.record)
	return nil
}

// Stop unsubscribes.
func (h *HistoryRecorder) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.source == nil {
		return
	}
	h.source.Unsubscribe(h.sub)
	h.source = nil
}

func (h *HistoryRecorder) record(e boxsync.Event) {
	if e.Service == nil {
		return
	}
	p, ok := influxdb.ServiceStatePoint(e.Service.ID, e.Service.Type, e.Service.State, h.now())
	if !ok {
		h.logger.Debug("no recordable state fields", "service_id", e.Service.ID)
		return
	}
	h.writer.WritePoint(p)
}
