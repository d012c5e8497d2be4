// Package boxsync is the synchronisation core of a hub ("box") client.
//
// It discovers a local box, holds the session with it, polls the box for the
// state of its services and reconciles that state against a persisted cache
// which is the only source consumers read from.
//
// # Components
//
//   - SessionManager: session token capture, login URL, logout
//   - BoxRegistry: discovered boxes, active box selection, transport destination
//   - Scheduler: self-rescheduling single-flight polling
//   - Reconciler: diff of fetched services against the cache
//   - Dispatcher: typed channel get/set payloads
//   - Bus: synchronous fan-out of change events
//
// Core wires the components together. It is constructed once at startup with
// explicit dependencies (see Deps) and owns no storage or transport of its own:
// the Settings, CacheStore, Transport and DiscoveryProvider interfaces are
// implemented elsewhere (internal/store, internal/transport, internal/discovery).
//
// # Lifecycle
//
//	core, err := boxsync.New(deps)
//	outcome, err := core.Init(ctx, currentURL)
//	if outcome.Kind == boxsync.OutcomeRedirect {
//	    // navigate to outcome.URL and stop initialising
//	}
//	defer core.Close()
//
// Clear resets all owned state (polling, discovery, registry, cache, session).
//
// Thread Safety: all exported methods are safe for concurrent use.
package boxsync
