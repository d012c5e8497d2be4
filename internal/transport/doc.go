// Package transport implements boxsync.Transport over HTTPS.
//
// Requests are addressed to the box origin (https://{box name}:{port}) while
// the TCP connection goes to the advertised address. TLS therefore sees the
// box's own name, which is what its certificate is issued for, even when the
// name does not resolve on the local network.
//
// Every request carries an X-Request-ID. When a session token is present it
// is sent both as a Bearer token and as the session_token cookie.
package transport
