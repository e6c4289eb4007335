package mqtt

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"os"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremqtt "github.com/kilianp07/motorctl/core/mqtt"
	"github.com/kilianp07/motorctl/core/motor"
)

// helper to generate self-signed cert
func generateCert(t *testing.T) (certFile, keyFile, caFile string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("gen key: %v", err)
	}
	tmpl := x509.Certificate{SerialNumber: big.NewInt(1), Subject: pkix.Name{CommonName: "test"}, NotBefore: time.Now(), NotAfter: time.Now().Add(time.Hour)}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	if err != nil {
		t.Fatalf("create cert: %v", err)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})

	dir := t.TempDir()
	certFile = dir + "/cert.pem"
	keyFile = dir + "/key.pem"
	caFile = dir + "/ca.pem"
	if err := os.WriteFile(certFile, certPEM, 0644); err != nil {
		t.Fatalf("write cert: %v", err)
	}
	if err := os.WriteFile(keyFile, keyPEM, 0644); err != nil {
		t.Fatalf("write key: %v", err)
	}
	if err := os.WriteFile(caFile, certPEM, 0644); err != nil {
		t.Fatalf("write ca: %v", err)
	}
	return
}

// installMock swaps the paho factory for the duration of the test.
func installMock(t *testing.T, mc *mockClient) {
	t.Helper()
	newMQTTClient = func(o *paho.ClientOptions) pahoClient { mc.opts = o; return mc }
	t.Cleanup(func() {
		newMQTTClient = func(opts *paho.ClientOptions) pahoClient { return paho.NewClient(opts) }
	})
}

func newTestLink(t *testing.T, mc *mockClient, cfg Config) *PahoLink {
	t.Helper()
	installMock(t, mc)
	if cfg.Broker == "" {
		cfg.Broker = "tcp://localhost:1883"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "id"
	}
	l, err := NewPahoLink(cfg)
	require.NoError(t, err)
	return l
}

func TestLoadTLSConfig(t *testing.T) {
	cert, key, ca := generateCert(t)
	cfg := Config{UseTLS: true, ClientCert: cert, ClientKey: key, CABundle: ca}
	tlsCfg, err := cfg.LoadTLSConfig()
	if err != nil {
		t.Fatalf("load tls: %v", err)
	}
	if len(tlsCfg.Certificates) == 0 {
		t.Fatalf("no certs loaded")
	}
	if tlsCfg.RootCAs == nil {
		t.Fatalf("no root CAs")
	}
}

func TestLoadTLSConfigMissingFiles(t *testing.T) {
	_, err := Config{UseTLS: true}.LoadTLSConfig()
	assert.Error(t, err)
	_, err = NewClientOptions(Config{Broker: "ssl://b:8883", UseTLS: true})
	assert.Error(t, err)
}

func TestNewClientOptionsAuth(t *testing.T) {
	opts, err := NewClientOptions(Config{Broker: "tcp://localhost:1883", ClientID: "id", Username: "u", Password: "p"})
	if err != nil {
		t.Fatalf("opts: %v", err)
	}
	if opts.Username != "u" || opts.Password != "p" {
		t.Fatalf("auth not set")
	}
}

func TestNewClientOptionsNeverReconnects(t *testing.T) {
	opts, err := NewClientOptions(Config{Broker: "tcp://localhost:1883", ClientID: "id", ConnectTimeoutMS: 1500})
	require.NoError(t, err)
	assert.False(t, opts.AutoReconnect)
	assert.False(t, opts.ConnectRetry)
	assert.Equal(t, 1500*time.Millisecond, opts.ConnectTimeout)
}

func TestConfigDefaultsAndValidate(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()
	assert.Equal(t, DefaultBroker, cfg.Broker)
	assert.Contains(t, cfg.ClientID, "motorctl-")
	assert.Equal(t, 250, cfg.QuiesceMS)
	assert.NoError(t, cfg.Validate())

	assert.Error(t, Config{}.Validate())
	assert.Error(t, Config{Broker: "tcp://b", AuthMethod: "kerberos"}.Validate())
	assert.Error(t, Config{Broker: "tcp://b", QoS: map[string]byte{"control": 3}}.Validate())
}

func TestLWTConfigured(t *testing.T) {
	mc := &mockClient{}
	l := newTestLink(t, mc, Config{LWTTopic: "lwt", LWTPayload: "bye", LWTQoS: 1})
	if !mc.opts.WillEnabled {
		t.Fatalf("will not enabled")
	}
	if mc.opts.WillTopic != "lwt" || string(mc.opts.WillPayload) != "bye" {
		t.Fatalf("will options incorrect")
	}
	l.Close()
	assert.Empty(t, mc.publishedMessages())
}

func TestConnectTransitions(t *testing.T) {
	mc := &mockClient{}
	l := newTestLink(t, mc, Config{})
	changes := l.StatusChanges()
	assert.Equal(t, coremqtt.StatusDisconnected, l.Status())

	l.Connect()
	l.Connect()

	first := <-changes
	assert.Equal(t, coremqtt.StatusDisconnected, first.From)
	assert.Equal(t, coremqtt.StatusConnecting, first.To)
	second := <-changes
	assert.Equal(t, coremqtt.StatusConnected, second.To)
	assert.Equal(t, coremqtt.StatusConnected, l.Status())
	assert.Equal(t, 1, mc.connectCount())
	require.NoError(t, l.AwaitConnected(context.Background()))
}

func TestConnectFailure(t *testing.T) {
	mc := &mockClient{connectErr: errors.New("refused")}
	l := newTestLink(t, mc, Config{})
	l.Connect()

	assert.Eventually(t, func() bool { return l.Status() == coremqtt.StatusError }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, l.LastError(), coremqtt.ErrBrokerConnection)
	assert.ErrorIs(t, l.AwaitConnected(context.Background()), coremqtt.ErrBrokerConnection)
	assert.ErrorIs(t, l.Publish(motor.TopicControl, "1:STOP"), coremqtt.ErrNotConnected)
	assert.Empty(t, mc.publishedMessages())
}

func TestPublishBeforeConnect(t *testing.T) {
	mc := &mockClient{}
	l := newTestLink(t, mc, Config{})
	assert.ErrorIs(t, l.Publish(motor.TopicSelect, "2"), coremqtt.ErrNotConnected)
	assert.Empty(t, mc.publishedMessages())
}

func TestPublishQoSPerTopic(t *testing.T) {
	mc := &mockClient{}
	l := newTestLink(t, mc, Config{QoS: map[string]byte{"control": 1, "select": 2}})
	l.Connect()
	require.NoError(t, l.AwaitConnected(context.Background()))

	require.NoError(t, l.Publish(motor.TopicSelect, "2"))
	require.NoError(t, l.Publish(motor.TopicControl, "2:FORWARD"))
	require.NoError(t, l.Publish("other/topic", "x"))

	got := mc.publishedMessages()
	require.Len(t, got, 3)
	assert.Equal(t, published{motor.TopicSelect, 2, "2"}, got[0])
	assert.Equal(t, published{motor.TopicControl, 1, "2:FORWARD"}, got[1])
	assert.Equal(t, published{"other/topic", 0, "x"}, got[2])
}

func TestPublishAsyncErrorIsNotReturned(t *testing.T) {
	mc := &mockClient{publishErrs: []error{errors.New("net fail")}}
	l := newTestLink(t, mc, Config{})
	l.Connect()
	require.NoError(t, l.AwaitConnected(context.Background()))
	assert.NoError(t, l.Publish(motor.TopicControl, "1:FORWARD"))
	assert.Len(t, mc.publishedMessages(), 1)
}

func TestConnectionLostDoesNotReconnect(t *testing.T) {
	mc := &mockClient{}
	l := newTestLink(t, mc, Config{})
	l.Connect()
	require.NoError(t, l.AwaitConnected(context.Background()))

	mc.opts.OnConnectionLost(mc, errors.New("eof"))
	assert.Equal(t, coremqtt.StatusError, l.Status())
	assert.ErrorIs(t, l.LastError(), coremqtt.ErrBrokerConnection)
	assert.ErrorIs(t, l.Publish(motor.TopicControl, "1:STOP"), coremqtt.ErrNotConnected)
	assert.Equal(t, 1, mc.connectCount())
}

func TestCloseIdempotent(t *testing.T) {
	mc := &mockClient{}
	l := newTestLink(t, mc, Config{QuiesceMS: 100})
	changes := l.StatusChanges()
	l.Connect()
	require.NoError(t, l.AwaitConnected(context.Background()))

	l.Close()
	l.Close()
	assert.Equal(t, []uint{100}, mc.disconnects())
	assert.Equal(t, coremqtt.StatusDisconnected, l.Status())

	var last coremqtt.StatusChange
	for c := range changes {
		last = c
	}
	assert.Equal(t, coremqtt.StatusDisconnected, last.To)

	l.Connect()
	assert.Equal(t, coremqtt.StatusDisconnected, l.Status())
	assert.ErrorIs(t, l.AwaitConnected(context.Background()), coremqtt.ErrNotConnected)
}

func TestCloseWithoutConnect(t *testing.T) {
	mc := &mockClient{}
	l := newTestLink(t, mc, Config{})
	l.Close()
	assert.Empty(t, mc.disconnects())
	assert.Equal(t, coremqtt.StatusDisconnected, l.Status())
}

func TestCloseDuringConnectDisconnectsLater(t *testing.T) {
	done := make(chan struct{})
	mc := &mockClient{pending: &pendingToken{done: done}}
	l := newTestLink(t, mc, Config{})
	l.Connect()
	assert.Equal(t, coremqtt.StatusConnecting, l.Status())

	l.Close()
	assert.Empty(t, mc.disconnects())
	close(done)

	assert.Eventually(t, func() bool { return len(mc.disconnects()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, coremqtt.StatusDisconnected, l.Status())
}

func TestAwaitConnectedHonoursContext(t *testing.T) {
	mc := &mockClient{pending: &pendingToken{done: make(chan struct{})}}
	l := newTestLink(t, mc, Config{})
	l.Connect()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.AwaitConnected(ctx), context.DeadlineExceeded)
}

func TestSubscribeDeliversPayload(t *testing.T) {
	mc := &mockClient{}
	l := newTestLink(t, mc, Config{QoS: map[string]byte{"subscribe": 1}})
	assert.ErrorIs(t, l.Subscribe(motor.TopicControl, func(string, []byte) {}), coremqtt.ErrNotConnected)

	l.Connect()
	require.NoError(t, l.AwaitConnected(context.Background()))

	var gotTopic, gotPayload string
	require.NoError(t, l.Subscribe(motor.TopicControl, func(topic string, payload []byte) {
		gotTopic, gotPayload = topic, string(payload)
	}))
	require.Len(t, mc.subscribed, 1)
	assert.Equal(t, byte(1), mc.subscribed[0].qos)

	mc.subscribed[0].cb(mc, mockMessage{topic: motor.TopicControl, p: []byte("3:BACKWARD")})
	assert.Equal(t, motor.TopicControl, gotTopic)
	assert.Equal(t, "3:BACKWARD", gotPayload)
}

type published struct {
	topic   string
	qos     byte
	payload string
}

// mockClient implements paho.Client for tests
type mockClient struct {
	opts       *paho.ClientOptions
	connectErr error
	pending    *pendingToken

	mu         sync.Mutex
	connected  bool
	connects   int
	disconnect []uint
	subscribed []struct {
		topic string
		qos   byte
		cb    paho.MessageHandler
	}
	published   []published
	publishErrs []error
}

func (m *mockClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockClient) Connect() paho.Token {
	m.mu.Lock()
	m.connects++
	m.mu.Unlock()
	if m.pending != nil {
		return m.pending
	}
	if m.connectErr != nil {
		return &dummyToken{err: m.connectErr}
	}
	m.mu.Lock()
	m.connected = true
	m.mu.Unlock()
	if m.opts != nil && m.opts.OnConnect != nil {
		m.opts.OnConnect(m)
	}
	return &dummyToken{}
}

func (m *mockClient) Disconnect(q uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	m.disconnect = append(m.disconnect, q)
}

func (m *mockClient) Publish(topic string, qos byte, _ bool, payload interface{}) paho.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, _ := payload.(string)
	m.published = append(m.published, published{topic, qos, p})
	if len(m.publishErrs) > 0 {
		err := m.publishErrs[0]
		m.publishErrs = m.publishErrs[1:]
		return &dummyToken{err: err}
	}
	return &dummyToken{}
}

func (m *mockClient) Subscribe(topic string, qos byte, cb paho.MessageHandler) paho.Token {
	m.subscribed = append(m.subscribed, struct {
		topic string
		qos   byte
		cb    paho.MessageHandler
	}{topic, qos, cb})
	return &dummyToken{}
}
func (m *mockClient) SubscribeMultiple(map[string]byte, paho.MessageHandler) paho.Token {
	return &dummyToken{}
}
func (m *mockClient) Unsubscribe(...string) paho.Token        { return &dummyToken{} }
func (m *mockClient) AddRoute(string, paho.MessageHandler)    {}
func (m *mockClient) OptionsReader() paho.ClientOptionsReader { return paho.ClientOptionsReader{} }
func (m *mockClient) IsConnectionOpen() bool                  { return m.IsConnected() }

func (m *mockClient) publishedMessages() []published {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]published(nil), m.published...)
}

func (m *mockClient) disconnects() []uint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uint(nil), m.disconnect...)
}

func (m *mockClient) connectCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connects
}

type dummyToken struct{ err error }

func (d dummyToken) Wait() bool                     { return true }
func (d dummyToken) WaitTimeout(time.Duration) bool { return true }
func (d dummyToken) Done() <-chan struct{}          { ch := make(chan struct{}); close(ch); return ch }
func (d dummyToken) Error() error                   { return d.err }

// pendingToken completes successfully once done is closed.
type pendingToken struct{ done chan struct{} }

func (p *pendingToken) Wait() bool { <-p.done; return true }
func (p *pendingToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-p.done:
		return true
	case <-time.After(d):
		return false
	}
}
func (p *pendingToken) Done() <-chan struct{} { return p.done }
func (p *pendingToken) Error() error          { return nil }

type mockMessage struct {
	topic string
	p     []byte
}

func (m mockMessage) Duplicate() bool   { return false }
func (m mockMessage) Qos() byte         { return 0 }
func (m mockMessage) Retained() bool    { return false }
func (m mockMessage) Topic() string     { return m.topic }
func (m mockMessage) MessageID() uint16 { return 0 }
func (m mockMessage) Payload() []byte   { return m.p }
func (m mockMessage) Ack()              {}
