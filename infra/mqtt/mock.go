package mqtt

import (
	"sync"

	coremqtt "github.com/kilianp07/motorctl/core/mqtt"
)

// Message is a payload recorded by MockLink.
type Message struct {
	Topic   string
	Payload string
}

// MockLink is a Link test double that records publishes instead of sending
// them. Connect moves it to ConnectStatus.
type MockLink struct {
	ConnectStatus coremqtt.Status

	mu           sync.Mutex
	status       coremqtt.Status
	published    []Message
	connectCalls int
	closeCalls   int
}

// NewMockLink returns a MockLink that becomes connected on Connect when
// connected is true and errors otherwise.
func NewMockLink(connected bool) *MockLink {
	m := &MockLink{ConnectStatus: coremqtt.StatusError}
	if connected {
		m.ConnectStatus = coremqtt.StatusConnected
	}
	return m
}

func (m *MockLink) Connect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectCalls++
	if m.connectCalls == 1 {
		m.status = m.ConnectStatus
	}
}

// Publish records the message when connected.
func (m *MockLink) Publish(topic, payload string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != coremqtt.StatusConnected {
		return coremqtt.ErrNotConnected
	}
	m.published = append(m.published, Message{Topic: topic, Payload: payload})
	return nil
}

func (m *MockLink) Status() coremqtt.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// SetStatus forces the link status, e.g. to simulate a lost connection.
func (m *MockLink) SetStatus(s coremqtt.Status) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
}

func (m *MockLink) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalls++
	m.status = coremqtt.StatusDisconnected
}

// Published returns a copy of the recorded messages.
func (m *MockLink) Published() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.published...)
}

// ConnectCalls returns how many times Connect was invoked.
func (m *MockLink) ConnectCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectCalls
}

// CloseCalls returns how many times Close was invoked.
func (m *MockLink) CloseCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCalls
}
