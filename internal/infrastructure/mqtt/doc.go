// Package mqtt publishes boxlink state to an MQTT broker and receives state
// changes from it.
//
// It wraps github.com/eclipse/paho.mqtt.golang with:
//   - reconnection with backoff and subscription restore
//   - a retained status topic with an offline last will
//   - panic recovery in message handlers
//
// Topic layout is described on Topics.
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	err = client.PublishRetained(client.Topics().Services(), payload)
package mqtt
