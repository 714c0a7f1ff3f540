// Package telemetry publishes periodic relay status snapshots over MQTT.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"frame-relay/utils"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

// Publisher sends one payload to a topic.
type Publisher interface {
	Publish(topic string, qos byte, payload []byte) error
	Close()
}

// MQTTPublisher is a Publisher over a paho client that reconnects on its
// own after the first successful connect.
type MQTTPublisher struct {
	client    mqtt.Client
	connected atomic.Bool
}

// DialMQTT connects to broker ("host:port" or a full tcp:// URL).
func DialMQTT(ctx context.Context, broker, clientID string) (*MQTTPublisher, error) {
	if broker == "" {
		return nil, errors.New("mqtt broker not set")
	}
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}

	p := &MQTTPublisher{}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		p.connected.Store(true)
		utils.L().Info("mqtt connected (broker=%s, client_id=%s)", broker, clientID)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		p.connected.Store(false)
		utils.L().Warn("mqtt connection lost, reconnecting: %v", err)
	})

	p.client = mqtt.NewClient(opts)
	token := p.client.Connect()

	wait, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	select {
	case <-token.Done():
	case <-wait.Done():
		// Abort the pending attempt so the client goroutines exit.
		p.client.Disconnect(0)
		return nil, fmt.Errorf("mqtt connect to %s: timeout", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", broker, err)
	}
	p.connected.Store(true)
	return p, nil
}

// Publish sends payload and waits for the client to hand it off.
func (p *MQTTPublisher) Publish(topic string, qos byte, payload []byte) error {
	if !p.connected.Load() {
		return errors.New("mqtt not connected")
	}
	token := p.client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Close disconnects with a short grace period.
func (p *MQTTPublisher) Close() {
	if p.client.IsConnected() {
		p.client.Disconnect(250)
	}
	p.connected.Store(false)
}
