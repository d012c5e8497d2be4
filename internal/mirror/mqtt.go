package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/boxlink/internal/boxsync"
	"github.com/nerrad567/boxlink/internal/infrastructure/mqtt"
)

const (
	queueSize     = 256
	setTimeout    = 10 * time.Second
	inboundQoS    = 1
	maxSetPayload = 64 << 10
)

// ErrMirrorStarted is returned by Start when the mirror is already running.
var ErrMirrorStarted = errors.New("mirror: already started")

// Publisher publishes retained messages.
type Publisher interface {
	PublishRetained(topic string, payload []byte) error
}

// Subscriber receives inbound messages.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// MQTTMirrorConfig configures an MQTTMirror. Subscriber and Setter are
// optional; inbound set topics are only handled when both are given.
type MQTTMirrorConfig struct {
	Publisher  Publisher
	Subscriber Subscriber
	Setter     StateSetter
	Topics     mqtt.Topics
}

// MQTTMirror mirrors service events to retained MQTT topics.
type MQTTMirror struct {
	cfg    MQTTMirrorConfig
	logger Logger

	mu      sync.Mutex
	source  EventSource
	subs    []boxsync.SubscriptionID
	queue   chan boxsync.Event
	done    chan struct{}
	known   map[string]bool
	dropped int
}

// NewMQTTMirror creates a stopped mirror.
func NewMQTTMirror(cfg MQTTMirrorConfig) *MQTTMirror {
	return &MQTTMirror{cfg: cfg, logger: noopLogger{}, known: make(map[string]bool)}
}

// SetLogger sets the logger for the mirror.
func (m *MQTTMirror) SetLogger(logger Logger) {
	m.logger = logger
}

// Start subscribes to src and starts publishing.
func (m *MQTTMirror) Start(src EventSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.source != nil {
		return ErrMirrorStarted
	}

	if m.cfg.Subscriber != nil && m.cfg.Setter != nil {
		if err := m.cfg.Subscriber.Subscribe(m.cfg.Topics.AllServiceSets(), inboundQoS, m.handleSet); err != nil {
			return fmt.Errorf("subscribing to set topics: %w", err)
		}
	}

	m.source = src
	m.queue = make(chan boxsync.Event, queueSize)
	m.done = make(chan struct{})
	m.subs = []boxsync.SubscriptionID{
		src.Subscribe(boxsync.EventServiceChange, m.enqueue),
		src.Subscribe(boxsync.EventServiceStateChange, m.enqueue),
	}

	go m.run(m.queue, m.done)
	return nil
}

// Stop unsubscribes and waits for queued events to be published.
func (m *MQTTMirror) Stop() {
	m.mu.Lock()
	if m.source == nil {
		m.mu.Unlock()
		return
	}
	for _, id := range m.subs {
		m.source.Unsubscribe(id)
	}
	queue, done := m.queue, m.done
	m.source, m.subs, m.queue = nil, nil, nil
	m.mu.Unlock()

	if m.cfg.Subscriber != nil && m.cfg.Setter != nil {
		if err := m.cfg.Subscriber.Unsubscribe(m.cfg.Topics.AllServiceSets()); err != nil {
			m.logger.Warn("unsubscribing from set topics", "error", err)
		}
	}

	close(queue)
	<-done
}

// enqueue runs on the dispatching goroutine and never blocks it. Events that
// do not fit are dropped and counted.
func (m *MQTTMirror) enqueue(e boxsync.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.queue == nil {
		return
	}
	select {
	case m.queue <- e:
	default:
		m.dropped++
		m.logger.Warn("mqtt mirror queue full, dropping event", "type", e.Type, "dropped", m.dropped)
	}
}

func (m *MQTTMirror) run(queue <-chan boxsync.Event, done chan<- struct{}) {
	defer close(done)
	for e := range queue {
		var err error
		switch e.Type {
		case boxsync.EventServiceChange:
			err = m.publishServices(e.Services)
		case boxsync.EventServiceStateChange:
			err = m.publishState(e.Service)
		}
		if err != nil {
			m.logger.Warn("mqtt mirror publish failed", "type", e.Type, "error", err)
		}
	}
}

// servicesPayload is the body of the services topic.
type servicesPayload struct {
	Services  []boxsync.Service `json:"services"`
	Timestamp time.Time         `json:"timestamp"`
}

// statePayload is the body of a state topic.
type statePayload struct {
	ID        string        `json:"id"`
	Type      string        `json:"type,omitempty"`
	State     boxsync.State `json:"state"`
	Timestamp time.Time     `json:"timestamp"`
}

// publishServices publishes the list and clears the state topics of
// services that are no longer present.
func (m *MQTTMirror) publishServices(services []boxsync.Service) error {
	if services == nil {
		services = []boxsync.Service{}
	}
	body, err := json.Marshal(servicesPayload{Services: services, Timestamp: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encoding services: %w", err)
	}
	if err := m.cfg.Publisher.PublishRetained(m.cfg.Topics.Services(), body); err != nil {
		return err
	}

	present := make(map[string]bool, len(services))
	for _, s := range services {
		present[s.ID] = true
	}

	var errs []error
	for id := range m.known {
		if present[id] {
			continue
		}
		// An empty retained message deletes the retained state.
		if err := m.cfg.Publisher.PublishRetained(m.cfg.Topics.ServiceState(id), nil); err != nil {
			errs = append(errs, err)
			continue
		}
		delete(m.known, id)
	}
	return errors.Join(errs...)
}

func (m *MQTTMirror) publishState(svc *boxsync.Service) error {
	if svc == nil || svc.ID == "" {
		return nil
	}
	body, err := json.Marshal(statePayload{
		ID:        svc.ID,
		Type:      svc.Type,
		State:     svc.State,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encoding state of %s: %w", svc.ID, err)
	}
	if err := m.cfg.Publisher.PublishRetained(m.cfg.Topics.ServiceState(svc.ID), body); err != nil {
		return err
	}
	m.known[svc.ID] = true
	return nil
}

// handleSet forwards {prefix}/set/{id} payloads, a JSON object of state
// keys, to the box.
func (m *MQTTMirror) handleSet(topic string, payload []byte) error {
	id, ok := m.cfg.Topics.ServiceIDFromSet(topic)
	if !ok {
		return fmt.Errorf("unexpected topic %q", topic)
	}
	if len(payload) > maxSetPayload {
		return fmt.Errorf("set payload for %s too large: %d bytes", id, len(payload))
	}

	var state boxsync.State
	if err := json.Unmarshal(payload, &state); err != nil {
		return fmt.Errorf("decoding set payload for %s: %w", id, err)
	}
	if len(state) == 0 {
		return fmt.Errorf("empty set payload for %s", id)
	}

	ctx, cancel := context.WithTimeout(context.Background(), setTimeout)
	defer cancel()
	if err := m.cfg.Setter.SetServiceState(ctx, id, state); err != nil {
		return fmt.Errorf("setting state of %s: %w", id, err)
	}
	m.logger.Debug("applied state from mqtt", "service_id", id, "keys", len(state))
	return nil
}
