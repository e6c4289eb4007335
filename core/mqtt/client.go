package mqtt

import "time"

// Status is the connection state of a Link.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "DISCONNECTED"
	case StatusConnecting:
		return "CONNECTING"
	case StatusConnected:
		return "CONNECTED"
	case StatusError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Statuses lists every Status value.
var Statuses = []Status{StatusDisconnected, StatusConnecting, StatusConnected, StatusError}

// StatusChange is broadcast whenever a Link changes status.
type StatusChange struct {
	From Status
	To   Status
	Err  error
	Time time.Time
}

// Link is the publish side of a broker connection. Publish never waits for a
// broker acknowledgment: it either hands the payload to the client or fails
// immediately with ErrNotConnected.
type Link interface {
	// Connect starts an asynchronous connection attempt. Only the first call
	// has an effect.
	Connect()
	// Publish sends payload on topic if the link is connected.
	Publish(topic, payload string) error
	// Status returns the current connection state.
	Status() Status
	// Close releases the connection. It is safe to call when never connected
	// and more than once.
	Close()
}

// StatusNotifier is implemented by links that broadcast status transitions.
// The returned channel is closed when the link is closed.
type StatusNotifier interface {
	StatusChanges() <-chan StatusChange
}

// MessageHandler receives a payload delivered on a subscribed topic.
type MessageHandler func(topic string, payload []byte)

// Subscriber is implemented by links able to receive messages.
type Subscriber interface {
	Subscribe(topic string, handler MessageHandler) error
}
