package config

import (
	"path"

	"github.com/google/uuid"
	"github.com/xizhibei/go-square-rpc/mqttadapter"
)

// StatusTopic is where a server announces itself as online or offline.
func (c *MQTTConfig) StatusTopic() string {
	return path.Join(c.TopicPrefix, c.ServerID, "status")
}

// NewAdapter builds the broker connection described by c. role ends up in
// the generated client ID when none is configured. Servers also publish a
// retained online status and leave an offline will behind.
func (c *MQTTConfig) NewAdapter(role string) (*mqttadapter.MQTTClientAdapterImpl, error) {
	clientID := c.ClientID
	if clientID == "" {
		clientID = "square-" + role + "-" + uuid.NewString()
	}

	opts := []mqttadapter.Option{}
	if c.Username != "" {
		opts = append(opts, mqttadapter.WithUserPass(c.Username, c.Password))
	}
	if c.KeepAlive.Duration > 0 {
		opts = append(opts, mqttadapter.WithKeepAlive(c.KeepAlive.Duration))
	}
	if role == "server" {
		opts = append(opts, mqttadapter.WithStatus(
			c.StatusTopic(), []byte("online"),
			c.StatusTopic(), []byte("offline"),
		))
	}

	return mqttadapter.New(c.URI, clientID, opts...)
}
