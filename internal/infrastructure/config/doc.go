// Package config loads boxlink configuration.
//
// Values are layered: built-in defaults, then the YAML file, then
// BOXLINK_* environment variables. Load validates the result and reports
// every problem in one error.
//
// The hub and polling sections only seed the persisted settings on first
// start. After that the settings store is authoritative and the API or
// CLI changes it.
//
// Keep the MQTT password and InfluxDB token in the environment
// (BOXLINK_MQTT_PASSWORD, BOXLINK_INFLUXDB_TOKEN) rather than the file.
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
package config
