package boxsync

import (
	"context"
	"fmt"
	"net"
	"slices"
	"strconv"
	"sync"
)

// BoxRegistry accumulates discovered boxes and selects the active one.
//
// Selecting a box persists its origin, points the transport at it and only
// then marks the client as configured.
type BoxRegistry struct {
	settings  Settings
	transport Transport
	logger    Logger

	mu     sync.Mutex
	boxes  []Box
	active int // -1 when no box is active
}

// NewBoxRegistry creates an empty registry.
func NewBoxRegistry(settings Settings, transport Transport) *BoxRegistry {
	return &BoxRegistry{
		settings:  settings,
		transport: transport,
		logger:    noopLogger{},
		active:    -1,
	}
}

// SetLogger sets the logger for the registry.
func (r *BoxRegistry) SetLogger(logger Logger) {
	r.logger = logger
}

// OnDiscovered handles one discovery event.
//
// An added box is appended; if no box is active yet it is selected straight
// away. A box that is announced again under a known name (a new interface,
// a changed port) is updated in place, and the transport is repointed when
// it is the active box and its dial address changed. A removed box is
// dropped from the list and, when it was the active one, the first remaining
// box is selected (or the client is marked as not configured when none
// remain).
func (r *BoxRegistry) OnDiscovered(ctx context.Context, event DiscoveryEvent) {
	switch event.Action {
	case DiscoveryAdded:
		r.mu.Lock()
		reselect := -1
		idx := slices.IndexFunc(r.boxes, func(b Box) bool { return b.Name == event.Box.Name })
		if idx >= 0 {
			prev := r.boxes[idx]
			r.boxes[idx] = cloneBox(event.Box)
			if idx == r.active && dialAddress(prev) != dialAddress(event.Box) {
				reselect = idx
			}
		} else {
			r.boxes = append(r.boxes, cloneBox(event.Box))
		}
		if r.active < 0 {
			reselect = 0
		}
		r.mu.Unlock()

		if idx >= 0 {
			r.logger.Info("box updated", "name", event.Box.Name, "port", event.Box.Port, "addresses", event.Box.Addresses)
		} else {
			r.logger.Info("box discovered", "name", event.Box.Name, "port", event.Box.Port, "addresses", event.Box.Addresses)
		}
		if reselect >= 0 {
			if err := r.SelectBox(ctx, reselect); err != nil {
				r.logger.Warn("selecting discovered box failed", "name", event.Box.Name, "error", err)
			}
		}

	case DiscoveryRemoved:
		r.handleRemoved(ctx, event.Box)

	default:
		r.logger.Debug("ignoring unknown discovery action", "action", event.Action)
	}
}

func (r *BoxRegistry) handleRemoved(ctx context.Context, box Box) {
	r.mu.Lock()
	idx := slices.IndexFunc(r.boxes, func(b Box) bool { return b.Name == box.Name })
	if idx < 0 {
		r.mu.Unlock()
		return
	}
	r.boxes = slices.Delete(r.boxes, idx, idx+1)

	wasActive := idx == r.active
	switch {
	case wasActive:
		r.active = -1
	case idx < r.active:
		r.active--
	}
	remaining := len(r.boxes)
	r.mu.Unlock()

	r.logger.Info("box removed", "name", box.Name, "was_active", wasActive)
	if !wasActive {
		return
	}
	if remaining == 0 {
		r.setConfigured(ctx, false)
		return
	}
	if err := r.SelectBox(ctx, 0); err != nil {
		r.logger.Warn("reselecting box after removal failed", "error", err)
	}
}

// SelectBox makes the box at index active.
//
// An index past the end of the list marks the client as not configured and
// returns ErrBoxIndexOutOfRange; the caller is expected to log it and carry on.
func (r *BoxRegistry) SelectBox(ctx context.Context, index int) error {
	r.mu.Lock()
	if index < 0 || index >= len(r.boxes) {
		count := len(r.boxes)
		r.mu.Unlock()

		r.setConfigured(ctx, false)
		r.logger.Warn("box index out of range", "index", index, "discovered", count)
		return fmt.Errorf("%w: index %d, %d discovered", ErrBoxIndexOutOfRange, index, count)
	}
	box := cloneBox(r.boxes[index])
	r.active = index
	r.mu.Unlock()

	if len(box.Addresses) == 0 {
		r.setConfigured(ctx, false)
		return fmt.Errorf("box %q advertises no address", box.Name)
	}

	origin := box.Origin()
	if err := r.settings.Set(ctx, SettingOrigin, origin); err != nil {
		r.setConfigured(ctx, false)
		return fmt.Errorf("persisting origin: %w", err)
	}

	// Mark unconfigured while the transport switches over so nothing is
	// sent to a half-configured destination.
	r.setConfigured(ctx, false)
	dest := Destination{Origin: origin, Host: box.Addresses[0], Port: box.Port}
	if err := r.transport.Configure(ctx, dest); err != nil {
		return fmt.Errorf("configuring transport: %w", err)
	}
	r.setConfigured(ctx, true)

	r.logger.Info("box selected", "name", box.Name, "origin", origin, "host", dest.Host, "port", dest.Port)
	return nil
}

// Boxes returns a copy of the discovered boxes in discovery order.
func (r *BoxRegistry) Boxes() []Box {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Box, len(r.boxes))
	for i, b := range r.boxes {
		out[i] = cloneBox(b)
	}
	return out
}

// Active returns the active box and its index.
func (r *BoxRegistry) Active() (Box, int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active < 0 || r.active >= len(r.boxes) {
		return Box{}, -1, false
	}
	return cloneBox(r.boxes[r.active]), r.active, true
}

// Configured reports whether the transport points at a selected box.
func (r *BoxRegistry) Configured(ctx context.Context) bool {
	return settingBool(ctx, r.settings, SettingConfigured)
}

// Reset forgets every box and marks the client as not configured.
func (r *BoxRegistry) Reset(ctx context.Context) {
	r.mu.Lock()
	r.boxes = nil
	r.active = -1
	r.mu.Unlock()

	r.setConfigured(ctx, false)
}

func (r *BoxRegistry) setConfigured(ctx context.Context, configured bool) {
	if err := r.settings.Set(ctx, SettingConfigured, strconv.FormatBool(configured)); err != nil {
		r.logger.Error("persisting configured flag failed", "error", err)
	}
}

// dialAddress is the host and port the transport would dial for b.
func dialAddress(b Box) string {
	if len(b.Addresses) == 0 {
		return ""
	}
	return net.JoinHostPort(b.Addresses[0], strconv.Itoa(b.Port))
}

func cloneBox(b Box) Box {
	b.Addresses = slices.Clone(b.Addresses)
	return b
}
