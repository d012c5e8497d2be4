// Package influxdb records service state history in InfluxDB.
//
// It wraps github.com/influxdata/influxdb-client-go/v2 with connection
// checks, batched non-blocking writes and a helper that turns a service
// state into a service_state point:
//
//	service_state,service_id=light-1,type=light on=true,level=40 <ts>
//
// Usage:
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // history is optional
//	}
//	if p, ok := influxdb.ServiceStatePoint(id, typ, state, time.Now()); ok {
//	    client.WritePoint(p)
//	}
package influxdb
