// Package mqttadapter wraps the paho MQTT client with connect callbacks,
// background reconnects and context aware waits.
package mqttadapter

import (
	"context"
	stdlog "log"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// DefaultRetryInterval is the pause between failed attempts of EnsureConnected.
const DefaultRetryInterval = 10 * time.Second

// MQTTClientAdapterImpl represents an MQTT client.
type MQTTClientAdapterImpl struct {
	client        mqtt.Client
	clientOptions *ClientOptions

	subscribeMap sync.Map

	callbackMu            sync.Mutex
	callbackCount         int
	onConnectCallbacks    map[int]OnConnectCallback
	onConnectLostCallback map[int]OnConnectLostCallback

	stopped      atomic.Bool
	stop         chan struct{}
	printableURL string

	log *zap.SugaredLogger
}

// New creates an adapter for the broker at uri, which must look like
// scheme://host:port with scheme tcp, ssl or ws. Nothing is dialed until
// Connect or EnsureConnected.
func New(uri, clientID string, options ...Option) (*MQTTClientAdapterImpl, error) {
	server, err := url.Parse(uri)
	if err != nil {
		return nil, errors.Wrap(err, "parse broker uri")
	}
	if server.Scheme == "" || server.Host == "" {
		return nil, errors.Newf("invalid broker uri %q", uri)
	}

	log := zap.S().With("module", "srpc.mqtt")

	clonedServer := *server
	clonedServer.User = nil
	client := &MQTTClientAdapterImpl{
		log:                   log,
		printableURL:          clonedServer.String(),
		stop:                  make(chan struct{}),
		onConnectCallbacks:    make(map[int]OnConnectCallback),
		onConnectLostCallback: make(map[int]OnConnectLostCallback),
	}

	mqttClientOptions := mqtt.NewClientOptions().
		AddBroker(uri).
		SetClientID(clientID).
		SetKeepAlive(60 * time.Second).
		SetDefaultPublishHandler(func(c mqtt.Client, m mqtt.Message) {
			log.Infof("Unrouted message %s len=%d", m.Topic(), len(m.Payload()))
		}).
		SetAutoReconnect(true).
		SetOnConnectHandler(func(mqtt.Client) {
			log.Infof("Connected %s", client.printableURL)
			for _, cb := range client.connectCallbacks() {
				go cb()
			}
		}).
		SetConnectionLostHandler(func(c mqtt.Client, err error) {
			log.Infof("Connection lost %s %v", client.printableURL, err)
			for _, cb := range client.connectLostCallbacks() {
				go cb(err)
			}
		})
	if server.User != nil {
		pass, _ := server.User.Password()
		mqttClientOptions.SetUsername(server.User.Username())
		mqttClientOptions.SetPassword(pass)
	}

	clientOptions := &ClientOptions{
		ClientOptions: mqttClientOptions,
		retryInterval: DefaultRetryInterval,
	}

	for _, o := range options {
		o(clientOptions)
	}

	client.client = mqtt.NewClient(clientOptions.ClientOptions)

	if clientOptions.enableStatus {
		client.OnConnect(func() {
			client.PublishBytes(
				context.Background(),
				clientOptions.onlineTopic,
				1,
				true,
				clientOptions.onlinePayload,
			)
		})
	}

	if clientOptions.enableDebug {
		mqtt.DEBUG = stdlog.New(os.Stderr, "DEBUG - ", stdlog.LstdFlags)
		mqtt.CRITICAL = stdlog.New(os.Stderr, "CRITICAL - ", stdlog.LstdFlags)
		mqtt.WARN = stdlog.New(os.Stderr, "WARN - ", stdlog.LstdFlags)
		mqtt.ERROR = stdlog.New(os.Stderr, "ERROR - ", stdlog.LstdFlags)
	}

	client.clientOptions = clientOptions

	return client, nil
}

func (s *MQTTClientAdapterImpl) connectCallbacks() []OnConnectCallback {
	s.callbackMu.Lock()
	defer s.callbackMu.Unlock()

	cbs := make([]OnConnectCallback, 0, len(s.onConnectCallbacks))
	for _, cb := range s.onConnectCallbacks {
		cbs = append(cbs, cb)
	}
	return cbs
}

func (s *MQTTClientAdapterImpl) connectLostCallbacks() []OnConnectLostCallback {
	s.callbackMu.Lock()
	defer s.callbackMu.Unlock()

	cbs := make([]OnConnectLostCallback, 0, len(s.onConnectLostCallback))
	for _, cb := range s.onConnectLostCallback {
		cbs = append(cbs, cb)
	}
	return cbs
}

// OnConnect registers a callback function to be called when the MQTT client is connected.
// The callback function will be invoked immediately if the client is already connected.
func (s *MQTTClientAdapterImpl) OnConnect(cb OnConnectCallback) int {
	if s.client.IsConnected() {
		cb()
	}

	s.callbackMu.Lock()
	defer s.callbackMu.Unlock()

	idx := s.callbackCount
	s.callbackCount++
	s.onConnectCallbacks[idx] = cb
	return idx
}

// OffConnect removes the onConnect callback function associated with the given index.
func (s *MQTTClientAdapterImpl) OffConnect(idx int) {
	s.callbackMu.Lock()
	defer s.callbackMu.Unlock()

	delete(s.onConnectCallbacks, idx)
}

// OnConnectLost registers a callback function to be called when the MQTT client loses connection.
// Returns the index of the registered callback.
func (s *MQTTClientAdapterImpl) OnConnectLost(cb OnConnectLostCallback) int {
	s.callbackMu.Lock()
	defer s.callbackMu.Unlock()

	idx := s.callbackCount
	s.callbackCount++
	s.onConnectLostCallback[idx] = cb
	return idx
}

func (s *MQTTClientAdapterImpl) OffConnectLost(idx int) {
	s.callbackMu.Lock()
	defer s.callbackMu.Unlock()

	delete(s.onConnectLostCallback, idx)
}

func (s *MQTTClientAdapterImpl) Connect(ctx context.Context) error {
	return wait(ctx, s.client.Connect())
}

// EnsureConnected ensures that the MQTT client is connected.
// It starts a goroutine to connect to the MQTT broker and waits for the connection to be successful.
func (s *MQTTClientAdapterImpl) EnsureConnected() {
	go s.ConnectAndWaitForSuccess()
}

// ConnectAndWaitForSuccess connects to the broker, retrying every retry
// interval until it succeeds or Disconnect is called.
func (s *MQTTClientAdapterImpl) ConnectAndWaitForSuccess() {
	ctx := context.Background()
	for !s.stopped.Load() {
		if s.IsConnected() {
			s.log.Infof("mqtt is connected %s", s.printableURL)
			return
		}
		err := s.Connect(ctx)
		if err == nil {
			return
		}

		s.log.Errorf("Connect failed %s %v", s.printableURL, err)
		select {
		case <-s.stop:
		case <-time.After(s.clientOptions.retryInterval):
			s.log.Infof("Try reconnect %s", s.printableURL)
		}
	}
	s.log.Infof("Stop retry connect %s", s.printableURL)
}

// Disconnect stops the retry loop and disconnects, waiting up to a second
// for in-flight work to finish.
func (s *MQTTClientAdapterImpl) Disconnect() {
	if s.stopped.CompareAndSwap(false, true) {
		close(s.stop)
	}
	s.client.Disconnect(1000)
}

// IsConnected returns a boolean value indicating whether the client is currently connected to the MQTT broker.
// It checks if the connection to the broker is open.
func (s *MQTTClientAdapterImpl) IsConnected() bool {
	return s.client.IsConnectionOpen()
}

func (s *MQTTClientAdapterImpl) subscribe(topic string, qos byte, onMsg MessageCallback) mqtt.Token {
	s.log.Debugf("Subscribe topic=%s qos=%d", topic, qos)
	callback := func(c mqtt.Client, m mqtt.Message) {
		onMsg(s, m)
	}

	defer s.subscribeMap.Store(topic, true)

	return s.client.Subscribe(topic, qos, callback)
}

// Subscribe subscribes to a topic with the specified quality of service (QoS) level
// and registers a callback function to handle incoming messages.
func (s *MQTTClientAdapterImpl) Subscribe(ctx context.Context, topic string, qos byte, onMsg MessageCallback) {
	s.subscribe(topic, qos, onMsg)
}

// SubscribeWait is Subscribe, but returns once the broker acknowledged the
// subscription or ctx is done.
func (s *MQTTClientAdapterImpl) SubscribeWait(ctx context.Context, topic string, qos byte, onMsg MessageCallback) error {
	return wait(ctx, s.subscribe(topic, qos, onMsg))
}

// UnsubscribeAll unsubscribes from all topics that the client is currently subscribed to.
func (s *MQTTClientAdapterImpl) UnsubscribeAll(ctx context.Context) {
	topics := []string{}
	s.subscribeMap.Range(func(key interface{}, value interface{}) bool {
		topics = append(topics, key.(string))
		return true
	})
	if len(topics) == 0 {
		return
	}

	defer func() {
		for _, topic := range topics {
			s.subscribeMap.Delete(topic)
		}
	}()

	s.client.Unsubscribe(topics...)
}

// Unsubscribe unsubscribes from the specified MQTT topic.
func (s *MQTTClientAdapterImpl) Unsubscribe(ctx context.Context, topic string) {
	s.log.Debugf("Unsubscribe topic=%s", topic)

	defer s.subscribeMap.Delete(topic)

	s.client.Unsubscribe(topic)
}

// PublishBytes publishes data to topic. Delivery is not awaited.
func (s *MQTTClientAdapterImpl) PublishBytes(ctx context.Context, topic string, qos byte, retained bool, data []byte) {
	s.client.Publish(topic, qos, retained, data)
}

// PublishBytesWait publishes data to topic and waits until the broker
// accepted it or ctx is done.
func (s *MQTTClientAdapterImpl) PublishBytesWait(ctx context.Context, topic string, qos byte, retained bool, data []byte) error {
	return wait(ctx, s.client.Publish(topic, qos, retained, data))
}

func wait(ctx context.Context, token mqtt.Token) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
		return token.Error()
	}
}
