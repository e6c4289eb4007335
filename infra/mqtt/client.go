package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	coremqtt "github.com/kilianp07/motorctl/core/mqtt"
	"github.com/kilianp07/motorctl/core/motor"
	"github.com/kilianp07/motorctl/infra/logger"
	"github.com/kilianp07/motorctl/internal/eventbus"
)

// DefaultBroker is the public broker used when none is configured.
const DefaultBroker = "wss://broker.emqx.io:8084/mqtt"

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker           string          `json:"broker"`
	ClientID         string          `json:"client_id"`
	Username         string          `json:"username"`
	Password         string          `json:"password"`
	AuthMethod       string          `json:"auth_method"`
	UseTLS           bool            `json:"use_tls"`
	ClientCert       string          `json:"client_cert"`
	ClientKey        string          `json:"client_key"`
	CABundle         string          `json:"ca_bundle"`
	QoS              map[string]byte `json:"qos"`
	LWTTopic         string          `json:"lwt_topic"`
	LWTPayload       string          `json:"lwt_payload"`
	LWTQoS           byte            `json:"lwt_qos"`
	LWTRetain        bool            `json:"lwt_retain"`
	ConnectTimeoutMS int             `json:"connect_timeout_ms"`
	QuiesceMS        int             `json:"quiesce_ms"`
	TLSConfig        *tls.Config     `json:"-"`
}

// SetDefaults fills the broker, a random client id and the timeouts.
func (c *Config) SetDefaults() {
	if c.Broker == "" {
		c.Broker = DefaultBroker
	}
	if c.ClientID == "" {
		c.ClientID = "motorctl-" + uuid.NewString()[:8]
	}
	if c.ConnectTimeoutMS <= 0 {
		c.ConnectTimeoutMS = 5000
	}
	if c.QuiesceMS <= 0 {
		c.QuiesceMS = 250
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.Broker == "" {
		return fmt.Errorf("mqtt broker is required")
	}
	switch c.AuthMethod {
	case "", "username_password", "tls", "both":
	default:
		return fmt.Errorf("unknown auth_method %s", c.AuthMethod)
	}
	for role, q := range c.QoS {
		if q > 2 {
			return fmt.Errorf("qos %d for %s out of range", q, role)
		}
	}
	if c.LWTQoS > 2 {
		return fmt.Errorf("lwt_qos %d out of range", c.LWTQoS)
	}
	return nil
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// PahoLink implements core/mqtt.Link on top of Eclipse Paho. It never
// reconnects: a failed attempt or a lost connection leaves it in StatusError.
type PahoLink struct {
	cli     pahoClient
	broker  string
	qos     map[string]byte
	timeout time.Duration
	quiesce uint
	logger  logger.Logger
	bus     *eventbus.Bus[coremqtt.StatusChange]

	connectOnce sync.Once
	closeOnce   sync.Once

	mu      sync.Mutex
	status  coremqtt.Status
	lastErr error
	closed  bool
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// NewPahoLink builds the client without connecting. Call Connect to start the
// connection attempt.
func NewPahoLink(cfg Config) (*PahoLink, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	l := &PahoLink{
		broker:  cfg.Broker,
		qos:     cfg.QoS,
		timeout: time.Duration(cfg.ConnectTimeoutMS) * time.Millisecond,
		quiesce: uint(cfg.QuiesceMS),
		logger:  logger.New("mqtt_link"),
		bus:     eventbus.New[coremqtt.StatusChange](),
	}
	opts.OnConnect = func(paho.Client) {
		if l.transition(coremqtt.StatusConnected, nil, coremqtt.StatusConnecting) {
			l.logger.Infof("MQTT connected to %s", l.broker)
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		l.logger.Errorf("connection lost: %v", err)
		l.transition(coremqtt.StatusError, fmt.Errorf("%w: %v", coremqtt.ErrBrokerConnection, err), coremqtt.StatusConnected)
	}
	l.cli = newMQTTClient(opts)
	return l, nil
}

// NewClientOptions builds mqtt client options from Config. Automatic
// reconnection and connect retries are disabled.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	if cfg.ConnectTimeoutMS > 0 {
		opts.SetConnectTimeout(time.Duration(cfg.ConnectTimeoutMS) * time.Millisecond)
	}
	if cfg.AuthMethod == "username_password" || cfg.AuthMethod == "both" || cfg.AuthMethod == "" {
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
		}
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}
	if cfg.UseTLS || cfg.AuthMethod == "tls" || cfg.AuthMethod == "both" {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caBytes) {
		return nil, fmt.Errorf("no certificate found in %s", c.CABundle)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

// Connect starts the connection attempt in the background.
func (l *PahoLink) Connect() {
	l.connectOnce.Do(func() {
		if !l.transition(coremqtt.StatusConnecting, nil, coremqtt.StatusDisconnected) {
			return
		}
		l.logger.Infof("connecting to %s", l.broker)
		token := l.cli.Connect()
		go l.awaitConnect(token)
	})
}

func (l *PahoLink) awaitConnect(token paho.Token) {
	<-token.Done()
	err := token.Error()
	if err == nil && l.isClosed() {
		// Close ran while the attempt was in flight.
		l.cli.Disconnect(l.quiesce)
		return
	}
	if err != nil {
		l.logger.Errorf("connect to %s: %v", l.broker, err)
		l.transition(coremqtt.StatusError, fmt.Errorf("%w: %v", coremqtt.ErrBrokerConnection, err), coremqtt.StatusConnecting)
		return
	}
	l.transition(coremqtt.StatusConnected, nil, coremqtt.StatusConnecting)
}

// Publish hands payload to the client and returns without waiting for the
// broker. Delivery failures reported later are only logged.
func (l *PahoLink) Publish(topic, payload string) error {
	if l.Status() != coremqtt.StatusConnected {
		return coremqtt.ErrNotConnected
	}
	token := l.cli.Publish(topic, l.qosFor(topic), false, payload)
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			l.logger.Errorf("publish %s -> %s: %v", topic, payload, err)
		}
	}()
	l.logger.Debugf("sent %s -> %s", topic, payload)
	return nil
}

// Subscribe registers handler for topic. The link must be connected.
func (l *PahoLink) Subscribe(topic string, handler coremqtt.MessageHandler) error {
	if l.Status() != coremqtt.StatusConnected {
		return coremqtt.ErrNotConnected
	}
	qos := byte(0)
	if q, ok := l.qos["subscribe"]; ok {
		qos = q
	}
	token := l.cli.Subscribe(topic, qos, func(_ paho.Client, m paho.Message) {
		handler(m.Topic(), m.Payload())
	})
	if !token.WaitTimeout(l.timeout) {
		return fmt.Errorf("subscribe %s: timeout after %s", topic, l.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	l.logger.Infof("subscribed to %s", topic)
	return nil
}

// AwaitConnected blocks until the link is connected, fails, is closed or ctx
// is done.
func (l *PahoLink) AwaitConnected(ctx context.Context) error {
	ch := l.bus.Subscribe()
	defer l.bus.Unsubscribe(ch)
	for {
		l.mu.Lock()
		status, lastErr, closed := l.status, l.lastErr, l.closed
		l.mu.Unlock()
		switch {
		case status == coremqtt.StatusConnected:
			return nil
		case status == coremqtt.StatusError:
			return lastErr
		case closed:
			return coremqtt.ErrNotConnected
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-ch:
			if !ok {
				return coremqtt.ErrNotConnected
			}
		}
	}
}

// Status returns the current connection state.
func (l *PahoLink) Status() coremqtt.Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// LastError returns the error behind the last transition to StatusError.
func (l *PahoLink) LastError() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastErr
}

// StatusChanges returns a channel receiving every status transition. It is
// closed by Close.
func (l *PahoLink) StatusChanges() <-chan coremqtt.StatusChange {
	return l.bus.Subscribe()
}

// Close disconnects with a bounded quiesce period. Later calls are no-ops.
func (l *PahoLink) Close() {
	l.closeOnce.Do(func() {
		if l.cli.IsConnected() {
			l.cli.Disconnect(l.quiesce)
		}
		l.mu.Lock()
		l.setLocked(coremqtt.StatusDisconnected, nil)
		l.closed = true
		l.mu.Unlock()
		l.bus.Close()
		l.logger.Infof("MQTT link closed")
	})
}

func (l *PahoLink) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// transition moves to status `to` if the link is open and currently in one of
// the `from` states. It reports whether the transition happened.
func (l *PahoLink) transition(to coremqtt.Status, err error, from ...coremqtt.Status) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	allowed := false
	for _, f := range from {
		if l.status == f {
			allowed = true
			break
		}
	}
	if !allowed {
		return false
	}
	l.setLocked(to, err)
	return true
}

func (l *PahoLink) setLocked(to coremqtt.Status, err error) {
	if l.status == to {
		return
	}
	change := coremqtt.StatusChange{From: l.status, To: to, Err: err, Time: time.Now()}
	l.status = to
	if err != nil {
		l.lastErr = err
	}
	l.bus.Publish(change)
}

func (l *PahoLink) qosFor(topic string) byte {
	role := ""
	switch topic {
	case motor.TopicControl:
		role = "control"
	case motor.TopicSelect:
		role = "select"
	}
	if q, ok := l.qos[role]; ok {
		return q
	}
	return 0
}
