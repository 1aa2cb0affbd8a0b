package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	alertQoS       = 1
	publishTimeout = 5 * time.Second
)

// publisher is the subset of mqtt.Client used for alerts.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTNotifier publishes alerts as JSON to <prefix>/vehicles/<id>/alerts.
type MQTTNotifier struct {
	client publisher
	prefix string
}

// NewMQTTNotifier wraps an already connected publisher.
func NewMQTTNotifier(client publisher, topicPrefix string) *MQTTNotifier {
	return &MQTTNotifier{client: client, prefix: topicPrefix}
}

// ConnectMQTT connects to broker. The client id gets a random suffix so
// several instances can share one configured id.
func ConnectMQTT(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(fmt.Sprintf("%s-%s", clientID, uuid.NewString()[:8])).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.WithError(err).Warn("MQTT connection lost")
		})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(15 * time.Second) {
		return nil, fmt.Errorf("mqtt connect to %s timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", broker, err)
	}
	return client, nil
}

// Topic returns the alert topic of a vehicle.
func (n *MQTTNotifier) Topic(vehicleID string) string {
	return fmt.Sprintf("%s/vehicles/%s/alerts", n.prefix, vehicleID)
}

// Publish sends the alert and waits for the broker acknowledgement.
func (n *MQTTNotifier) Publish(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	token := n.client.Publish(n.Topic(alert.VehicleID), alertQoS, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(publishTimeout):
		return fmt.Errorf("mqtt publish timed out")
	}
	return token.Error()
}
