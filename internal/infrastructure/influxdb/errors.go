package influxdb

import "errors"

var (
	// ErrDisabled is returned by Connect when history is switched off.
	ErrDisabled = errors.New("influxdb: history disabled")

	// ErrUnreachable is returned by Connect when the server does not answer
	// its ping or reports itself unhealthy.
	ErrUnreachable = errors.New("influxdb: server unreachable")

	// ErrClosed is returned by HealthCheck after Close.
	ErrClosed = errors.New("influxdb: client closed")

	// ErrWriteFailed wraps batch write errors handed to SetOnError.
	ErrWriteFailed = errors.New("influxdb: batch write failed")
)
