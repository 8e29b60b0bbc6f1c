package queue

import (
	"crypto/tls"
	"fmt"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"sync"
	"time"
)

// Handler receives bus traffic. HandleMessage is called from paho callback goroutine and must not block.
type Handler interface {
	Subscriptions() []string
	HandleMessage(topic string, payload []byte)
	OnConnect()
}

type Queue struct {
	client         mqtt.Client
	handler        Handler
	connectTimeout time.Duration
	l              *zap.SugaredLogger
	sync.RWMutex
}

type Config struct {
	// MQTTAddr is broker URL, tcp://host:port or ssl://host:port
	MQTTAddr string
	Username string
	Password string
	TLS      bool
	ClientID string
	// ConnectTimeout is how long Start waits for first connection before leaving it to retry in background
	ConnectTimeout time.Duration
	Logger         *zap.SugaredLogger
}

func New(cfg *Config) (*Queue, error) {
	if cfg.MQTTAddr == "" {
		return nil, fmt.Errorf("MQTT address is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "gasreader2ha-" + randomString(8)
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if pahoLog, err := zap.NewStdLogAt(cfg.Logger.Named("paho").Desugar(), zapcore.ErrorLevel); err == nil {
		mqtt.ERROR = pahoLog
		mqtt.CRITICAL = pahoLog
	}
	q := &Queue{
		connectTimeout: cfg.ConnectTimeout,
		l:              cfg.Logger,
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTAddr).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetClientID(cfg.ClientID).
		SetKeepAlive(60 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(time.Minute).
		SetOrderMatters(true).
		SetOnConnectHandler(q.onConnect).
		SetConnectionLostHandler(func(c mqtt.Client, err error) {
			q.l.Warnf("connection lost: %s", err)
		}).
		SetReconnectingHandler(func(c mqtt.Client, o *mqtt.ClientOptions) {
			q.l.Infof("reconnecting to %s", cfg.MQTTAddr)
		})
	if cfg.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	q.client = mqtt.NewClient(opts)
	return q, nil
}

// Start connects to the broker and dispatches subscribed messages to handler.
// Subscriptions are (re)done on every connect.
func (q *Queue) Start(h Handler) error {
	q.Lock()
	q.handler = h
	q.Unlock()
	token := q.client.Connect()
	if !token.WaitTimeout(q.connectTimeout) {
		q.l.Warnf("broker not reachable after %s, retrying in background", q.connectTimeout)
		return nil
	}
	if token.Error() != nil {
		return fmt.Errorf("error connecting to MQTT: %w", token.Error())
	}
	return nil
}

func (q *Queue) Stop() {
	q.client.Disconnect(250)
	q.l.Infof("disconnected")
}

// PublishRetained queues retained QoS 1 message. Delivery result is only logged so it is safe to call from message callbacks.
func (q *Queue) PublishRetained(topic string, payload []byte) error {
	if !q.client.IsConnectionOpen() {
		return fmt.Errorf("not connected, dropping publish to %s", topic)
	}
	token := q.client.Publish(topic, 1, true, payload)
	go func() {
		<-token.Done()
		if token.Error() != nil {
			q.l.Warnf("error publishing %s: %s", topic, token.Error())
		}
	}()
	return nil
}

func (q *Queue) onConnect(c mqtt.Client) {
	q.RLock()
	h := q.handler
	q.RUnlock()
	if h == nil {
		return
	}
	q.l.Infof("MQTT connected")
	for _, filter := range h.Subscriptions() {
		if token := c.Subscribe(filter, 0, q.onMessage); token.Wait() && token.Error() != nil {
			q.l.Errorf("could not subscribe to %s: %s", filter, token.Error())
		} else {
			q.l.Debugf("subscribed to %s", filter)
		}
	}
	h.OnConnect()
}

func (q *Queue) onMessage(c mqtt.Client, m mqtt.Message) {
	q.RLock()
	h := q.handler
	q.RUnlock()
	if h == nil {
		return
	}
	h.HandleMessage(m.Topic(), m.Payload())
}
