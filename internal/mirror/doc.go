// Package mirror copies core events to outside systems.
//
// MQTTMirror keeps retained MQTT topics in step with the cache: the service
// list on {prefix}/services and each service's state on {prefix}/state/{id}.
// It can also accept state changes on {prefix}/set/{id} and forward them to
// the box.
//
// HistoryRecorder writes the numeric and boolean fields of every service
// state change to InfluxDB.
//
// Both subscribe to a boxsync event source and must not block it, so MQTT
// publishing happens on a worker goroutine.
package mirror
