// Package panel serves the boxlink status page.
//
// The page lists the cached services and follows live changes over the
// API's WebSocket. Its assets are embedded in the binary; a directory on
// disk can replace them while working on the page. Unknown paths fall back
// to index.html so the page can own its own routes.
package panel
