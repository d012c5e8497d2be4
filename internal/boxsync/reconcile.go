package boxsync

import (
	"context"
	"fmt"
	"reflect"

	"golang.org/x/sync/errgroup"
)

// ServiceFetcher returns the live service list of the box.
type ServiceFetcher func(ctx context.Context) ([]Service, error)

// Reconciler diffs freshly fetched services against the cache, updates the
// cache and emits change events.
type Reconciler struct {
	cache  CacheStore
	fetch  ServiceFetcher
	bus    *Bus
	logger Logger
}

// NewReconciler creates a reconciler.
func NewReconciler(cache CacheStore, fetch ServiceFetcher, bus *Bus) *Reconciler {
	return &Reconciler{
		cache:  cache,
		fetch:  fetch,
		bus:    bus,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the reconciler.
func (r *Reconciler) SetLogger(logger Logger) {
	r.logger = logger
}

// RunCycle performs one reconciliation pass and returns the fetched list.
//
// For every fetched service:
//   - not cached: emit service-state-change, persist it, remember that
//     something new arrived
//   - cached with a state that is Similar to the cached one: nothing
//   - otherwise: merge onto the cached record, emit service-state-change
//     with the merged record, persist it
//
// A single service-change with the full fetched list follows when a new
// service arrived or the fetched and cached counts differ.
func (r *Reconciler) RunCycle(ctx context.Context) ([]Service, error) {
	var cached, fetched []Service

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		cached, err = r.cache.ListServices(gctx)
		if err != nil {
			return fmt.Errorf("listing cached services: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		fetched, err = r.fetch(gctx)
		if err != nil {
			return fmt.Errorf("fetching services: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	// A cancelled cycle drops a fetch that completed anyway.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	byID := make(map[string]*Service, len(cached))
	for i := range cached {
		byID[cached[i].ID] = &cached[i]
	}

	hasNew := false
	for i := range fetched {
		svc := &fetched[i]
		if svc.ID == "" {
			r.logger.Warn("skipping fetched service without id")
			continue
		}

		prev, ok := byID[svc.ID]
		switch {
		case !ok:
			hasNew = true
			if err := r.apply(ctx, svc.DeepCopy()); err != nil {
				return nil, err
			}
		case Similar(svc.State, prev.State):
			continue
		default:
			if err := r.apply(ctx, prev.Merge(svc)); err != nil {
				return nil, err
			}
		}
	}

	if hasNew || len(fetched) != len(cached) {
		r.logger.Debug("service membership changed", "fetched", len(fetched), "cached", len(cached))
		r.bus.Dispatch(Event{Type: EventServiceChange, Services: copyServices(fetched)})
	}

	return fetched, nil
}

// apply dispatches the state change and persists the record.
func (r *Reconciler) apply(ctx context.Context, svc *Service) error {
	r.bus.Dispatch(Event{Type: EventServiceStateChange, Service: svc.DeepCopy()})
	if err := r.cache.SetService(ctx, svc); err != nil {
		return fmt.Errorf("persisting service %s: %w", svc.ID, err)
	}
	return nil
}

// Similar reports whether every key of a exists in b with an equal value.
//
// It is a subset test and not symmetric: extra keys in b are ignored.
// Scalars compare with ==, nested maps and slices structurally.
func Similar(a, b State) bool {
	for k, av := range a {
		bv, ok := b[k]
		if !ok {
			return false
		}
		if !valuesEqual(av, bv) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b any) bool {
	switch a.(type) {
	case map[string]any, []any:
		return reflect.DeepEqual(a, b)
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return reflect.DeepEqual(a, b)
	}
	return a == b
}
