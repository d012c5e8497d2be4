//go:build integration

package mqtt

import (
	"testing"
	"time"
)

// These tests require a running MQTT broker at 127.0.0.1:1883.
//
//	go test -tags=integration ./internal/infrastructure/mqtt/...

func TestIntegration_RetainedRoundtrip(t *testing.T) {
	client, err := Connect(testConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	topic := client.Topics().ServiceState("it-light")
	if err := client.PublishRetained(topic, []byte(`{"on":true}`)); err != nil {
		t.Fatalf("PublishRetained() error = %v", err)
	}

	received := make(chan []byte, 1)
	err = client.Subscribe(topic, 1, func(_ string, payload []byte) error {
		select {
		case received <- payload:
		default:
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if !client.HasSubscription(topic) {
		t.Error("subscription not tracked")
	}

	select {
	case got := <-received:
		if string(got) != `{"on":true}` {
			t.Errorf("payload = %s", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("retained message not delivered")
	}

	// Clear the retained message.
	if err := client.PublishRetained(topic, nil); err != nil {
		t.Errorf("clearing retained message: %v", err)
	}
}
