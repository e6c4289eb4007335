package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/motorctl/core/logger"
	coremetrics "github.com/kilianp07/motorctl/core/metrics"
	coremqtt "github.com/kilianp07/motorctl/core/mqtt"
	"github.com/kilianp07/motorctl/core/motor"
)

// Phase tells whether a movement is in progress.
type Phase int

const (
	Idle Phase = iota
	Moving
)

func (p Phase) String() string {
	if p == Moving {
		return "MOVING"
	}
	return "IDLE"
}

// Controller drives the selected motor through a broker Link.
type Controller struct {
	link     coremqtt.Link
	state    *State
	log      *EventLog
	logger   logger.Logger
	recorder coremetrics.Recorder
	now      func() time.Time

	phase     Phase
	direction motor.Direction
	durations []time.Duration

	watchDone chan struct{}
	closeOnce sync.Once
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock sets the time source used for movement timing and log entries.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithLogger sets the diagnostic logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r coremetrics.Recorder) Option {
	return func(c *Controller) { c.recorder = r }
}

// NewController validates cfg, creates the session state and starts the
// link's connection attempt. It does not wait for the link to connect.
// The controller owns the link from now on and closes it in Close.
func NewController(cfg Config, link coremqtt.Link, opts ...Option) (*Controller, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if link == nil {
		return nil, fmt.Errorf("nil broker link")
	}
	c := &Controller{
		link:     link,
		state:    NewState(cfg.Motors, cfg.DefaultMotor),
		logger:   nopLogger{},
		recorder: coremetrics.NopRecorder{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = NewEventLog(c.now)

	if n, ok := link.(coremqtt.StatusNotifier); ok {
		c.watchDone = make(chan struct{})
		go c.watchStatus(n.StatusChanges())
	}
	link.Connect()
	return c, nil
}

// SelectMotor makes id the selected motor and announces it on the selection
// topic when connected. An invalid id returns motor.ErrInvalidMotor and
// changes nothing.
func (c *Controller) SelectMotor(id motor.ID) error {
	if err := c.state.Select(id); err != nil {
		c.logger.Warnf("select rejected: %v", err)
		return err
	}
	c.publish(motor.TopicSelect, motor.EncodeSelect(id), "SELECT")
	c.log.Append(fmt.Sprintf("Selected Motor: %d", id))
	return nil
}

// StartMotor starts the selected motor in dir, which must be motor.Forward or
// motor.Backward. Starting while already moving restarts the timer.
func (c *Controller) StartMotor(dir motor.Direction) error {
	if !dir.Moving() {
		err := fmt.Errorf("%w: %s is not a movement", motor.ErrInvalidDirection, dir)
		c.logger.Warnf("start rejected: %v", err)
		return err
	}
	id := c.state.Selected()
	c.state.BeginMovement(c.now())
	c.publish(motor.TopicControl, motor.EncodeControl(id, dir), dir.String())
	c.log.Append(fmt.Sprintf("Motor %d started: %s", id, dir))
	c.phase = Moving
	c.direction = dir
	return nil
}

// StopMotor stops the selected motor and returns how long it moved. It is
// accepted in any phase; see State.EndMovement for the duration reported
// when no movement was started.
func (c *Controller) StopMotor() time.Duration {
	id := c.state.Selected()
	if _, ok := c.state.StartedAt(); !ok {
		c.logger.Warnf("stop without prior start, duration measured from %s", MovementEpoch.UTC().Format(time.RFC3339))
	}
	d := c.state.EndMovement(c.now())
	c.publish(motor.TopicControl, motor.EncodeControl(id, motor.Stop), motor.Stop.String())
	c.log.Append(fmt.Sprintf("Motor %d stopped. Duration: %.2f seconds", id, d.Seconds()))
	if c.phase == Moving {
		c.durations = append(c.durations, d)
		if err := c.recorder.RecordMovement(id, c.direction, d); err != nil {
			c.logger.Errorf("record movement: %v", err)
		}
	}
	c.phase = Idle
	return d
}

func (c *Controller) publish(topic, payload, action string) {
	err := c.link.Publish(topic, payload)
	if err != nil {
		c.logger.Warnf("command %s -> %s not sent: %v", topic, payload, err)
	} else {
		c.logger.Debugw("command sent", map[string]any{"topic": topic, "payload": payload})
	}
	if rerr := c.recorder.RecordCommand(topic, action, err == nil); rerr != nil {
		c.logger.Errorf("record command: %v", rerr)
	}
}

func (c *Controller) watchStatus(changes <-chan coremqtt.StatusChange) {
	defer close(c.watchDone)
	for ch := range changes {
		if ch.Err != nil {
			c.logger.Errorf("broker link %s -> %s: %v", ch.From, ch.To, ch.Err)
		} else {
			c.logger.Infof("broker link %s -> %s", ch.From, ch.To)
		}
		if err := c.recorder.RecordStatus(ch.To); err != nil {
			c.logger.Errorf("record status: %v", err)
		}
	}
}

// SelectedMotor returns the selected motor.
func (c *Controller) SelectedMotor() motor.ID { return c.state.Selected() }

// Motors returns the number of configured motors.
func (c *Controller) Motors() int { return c.state.Motors() }

// Status returns the broker link status.
func (c *Controller) Status() coremqtt.Status { return c.link.Status() }

// Phase returns whether a movement is in progress.
func (c *Controller) Phase() Phase { return c.phase }

// Entries returns a snapshot of the event log.
func (c *Controller) Entries() []Entry { return c.log.Entries() }

// Log returns the event log for incremental reads.
func (c *Controller) Log() *EventLog { return c.log }

// Summary aggregates the movements stopped so far.
func (c *Controller) Summary() Summary { return summarize(c.durations) }

// Close closes the broker link once and logs the session summary.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.link.Close()
		if c.watchDone != nil {
			<-c.watchDone
		}
		c.logger.Infof("session closed: %s", c.Summary())
	})
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any)         {}
func (nopLogger) Debugw(string, map[string]any) {}
func (nopLogger) Infof(string, ...any)          {}
func (nopLogger) Warnf(string, ...any)          {}
func (nopLogger) Errorf(string, ...any)         {}
