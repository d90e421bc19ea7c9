package mqttadapter

//go:generate mockgen -source=interface.go -destination=mock/mock_mqttadapter.go
//go:generate mockgen -package mock_mqtt -destination=mock/mqtt/mock_mqtt.go github.com/eclipse/paho.mqtt.golang Client,Token,Message

import (
	"context"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Message represents a message in the MQTT protocol.
type Message = mqtt.Message

// MessageCallback handles a message delivered on a subscribed topic.
type MessageCallback func(MQTTClientAdapter, Message)

// OnConnectCallback represents a callback function that is called when a connection is established.
type OnConnectCallback func()

// OnConnectLostCallback is called with the reason the broker connection went away.
type OnConnectLostCallback func(err error)

// MQTTClientAdapter is the subset of an MQTT client the square transports need.
type MQTTClientAdapter interface {
	// OnConnect registers cb to run on every (re)connect. If the client is
	// already connected cb also runs immediately.
	// It returns an index that can be used to remove the callback using OffConnect.
	OnConnect(cb OnConnectCallback) int

	// OffConnect removes the callback function associated with the given index.
	OffConnect(idx int)

	// OnConnectLost registers cb to run whenever the connection drops.
	OnConnectLost(cb OnConnectLostCallback) int

	// OffConnectLost removes the callback function associated with the given index.
	OffConnectLost(idx int)

	// Connect establishes a connection to the MQTT broker.
	Connect(ctx context.Context) error

	// EnsureConnected connects in the background, retrying until it succeeds
	// or Disconnect is called.
	EnsureConnected()

	// Disconnect stops retrying and closes the connection.
	Disconnect()

	// IsConnected reports whether the connection to the broker is open.
	IsConnected() bool

	// Subscribe subscribes to topic without waiting for the broker to acknowledge.
	Subscribe(ctx context.Context, topic string, qos byte, onMsg MessageCallback)

	// SubscribeWait subscribes to topic and waits for the acknowledgement.
	SubscribeWait(ctx context.Context, topic string, qos byte, onMsg MessageCallback) error

	// Unsubscribe unsubscribes from topic without waiting.
	Unsubscribe(ctx context.Context, topic string)

	// UnsubscribeAll drops every subscription made through the adapter.
	UnsubscribeAll(ctx context.Context)

	// PublishBytes publishes data without waiting for delivery.
	PublishBytes(ctx context.Context, topic string, qos byte, retained bool, data []byte)

	// PublishBytesWait publishes data and waits for the broker to accept it.
	PublishBytesWait(ctx context.Context, topic string, qos byte, retained bool, data []byte) error
}
