// Package api provides the local HTTP API and WebSocket relay for boxlink.
//
// User interfaces talk to this API instead of the box: reads come from the
// cache, writes go to the box through the core, and service events are
// pushed over WebSocket on the channels "service-change" and
// "service-state-change".
//
// The server follows the same lifecycle pattern as other components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
