package simulator

import (
	"context"
	"fmt"
	"sync"

	"github.com/kilianp07/motorctl/core/logger"
	coremqtt "github.com/kilianp07/motorctl/core/mqtt"
	"github.com/kilianp07/motorctl/core/motor"
)

// Device tracks the state a motor board would hold after receiving the
// published commands.
type Device struct {
	motors int
	logger logger.Logger

	mu       sync.Mutex
	selected motor.ID
	states   map[motor.ID]motor.Direction
	received int
	rejected int
	changed  chan struct{}
}

// NewDevice returns a Device for motors 1..motors with every motor stopped
// and nothing selected.
func NewDevice(motors int, l logger.Logger) *Device {
	return &Device{
		motors:  motors,
		logger:  l,
		states:  make(map[motor.ID]motor.Direction, motors),
		changed: make(chan struct{}),
	}
}

// Run subscribes to both motor topics on sub and blocks until ctx is done.
func (d *Device) Run(ctx context.Context, sub coremqtt.Subscriber) error {
	for _, topic := range []string{motor.TopicSelect, motor.TopicControl} {
		if err := sub.Subscribe(topic, d.HandleMessage); err != nil {
			return fmt.Errorf("device subscribe: %w", err)
		}
	}
	d.logger.Infof("device ready with %d motors", d.motors)
	<-ctx.Done()
	return nil
}

// HandleMessage applies a payload received on topic. Malformed payloads and
// unknown motors are logged and ignored.
func (d *Device) HandleMessage(topic string, payload []byte) {
	var err error
	switch topic {
	case motor.TopicSelect:
		err = d.applySelect(string(payload))
	case motor.TopicControl:
		err = d.applyControl(string(payload))
	default:
		err = fmt.Errorf("unexpected topic %s", topic)
	}
	d.mu.Lock()
	if err != nil {
		d.rejected++
	} else {
		d.received++
	}
	close(d.changed)
	d.changed = make(chan struct{})
	d.mu.Unlock()
	if err != nil {
		d.logger.Warnf("ignored %s -> %q: %v", topic, payload, err)
	}
}

func (d *Device) applySelect(payload string) error {
	id, err := motor.ParseSelect(payload)
	if err != nil {
		return err
	}
	if err := id.Validate(d.motors); err != nil {
		return err
	}
	d.mu.Lock()
	d.selected = id
	d.mu.Unlock()
	d.logger.Infof("motor %d selected", id)
	return nil
}

func (d *Device) applyControl(payload string) error {
	cmd, err := motor.ParseControl(payload)
	if err != nil {
		return err
	}
	if err := cmd.Motor.Validate(d.motors); err != nil {
		return err
	}
	d.mu.Lock()
	prev := d.states[cmd.Motor]
	d.states[cmd.Motor] = cmd.Direction
	selected := d.selected
	d.mu.Unlock()
	if selected != 0 && selected != cmd.Motor {
		d.logger.Warnf("command for motor %d while motor %d is selected", cmd.Motor, selected)
	}
	d.logger.Infof("motor %d: %s -> %s", cmd.Motor, prev, cmd.Direction)
	return nil
}

// Selected returns the last selected motor, 0 before any selection.
func (d *Device) Selected() motor.ID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.selected
}

// Direction returns the current direction of id.
func (d *Device) Direction(id motor.ID) motor.Direction {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.states[id]
}

// Counts returns how many messages were applied and how many were ignored.
func (d *Device) Counts() (received, rejected int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.received, d.rejected
}

// WaitFor blocks until at least n messages were applied or ctx is done.
func (d *Device) WaitFor(ctx context.Context, n int) error {
	for {
		d.mu.Lock()
		got, ch := d.received, d.changed
		d.mu.Unlock()
		if got >= n {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("received %d of %d messages: %w", got, n, ctx.Err())
		case <-ch:
		}
	}
}
