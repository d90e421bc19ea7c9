package mqttadapter

import (
	"crypto/tls"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ClientOptions extends the paho options with the adapter's own settings.
type ClientOptions struct {
	*mqtt.ClientOptions
	enableStatus  bool
	enableDebug   bool
	onlineTopic   string
	onlinePayload []byte
	retryInterval time.Duration
}

type Option func(o *ClientOptions)

// WithDebug routes the paho internal loggers to stderr.
func WithDebug(debug bool) Option {
	return func(o *ClientOptions) {
		o.enableDebug = debug
	}
}

func WithUserPass(user, pass string) Option {
	return func(o *ClientOptions) {
		o.SetUsername(user)
		o.SetPassword(pass)
	}
}

func WithKeepAlive(keepalive time.Duration) Option {
	return func(o *ClientOptions) {
		o.SetKeepAlive(keepalive)
	}
}

// WithRetryInterval sets how long EnsureConnected waits between failed
// connection attempts.
func WithRetryInterval(d time.Duration) Option {
	return func(o *ClientOptions) {
		o.retryInterval = d
	}
}

func WithTLSConfig(cfg *tls.Config) Option {
	return func(o *ClientOptions) {
		o.SetTLSConfig(cfg)
	}
}

// WithStatus publishes onlinePayload to onlineTopic, retained, after every
// connect and leaves offlinePayload as the will on offlineTopic.
func WithStatus(
	onlineTopic string, onlinePayload []byte,
	offlineTopic string, offlinePayload []byte,
) Option {
	return func(o *ClientOptions) {
		o.enableStatus = true
		o.onlineTopic = onlineTopic
		o.onlinePayload = onlinePayload
		o.SetBinaryWill(offlineTopic, offlinePayload, 1, true)
	}
}

func WithMaxReconnectInterval(interval time.Duration) Option {
	return func(o *ClientOptions) {
		o.SetMaxReconnectInterval(interval)
	}
}
