package metrics

import (
	"time"

	coremqtt "github.com/kilianp07/motorctl/core/mqtt"
	"github.com/kilianp07/motorctl/core/motor"
)

// Recorder records session activity for observability purposes.
type Recorder interface {
	// RecordCommand counts a command on topic. published is false when the
	// link refused it.
	RecordCommand(topic, action string, published bool) error
	// RecordMovement observes the duration of a finished movement.
	RecordMovement(id motor.ID, dir motor.Direction, d time.Duration) error
	// RecordStatus marks s as the current broker link status.
	RecordStatus(s coremqtt.Status) error
}

// NopRecorder implements Recorder with no-op methods.
type NopRecorder struct{}

func (NopRecorder) RecordCommand(string, string, bool) error                      { return nil }
func (NopRecorder) RecordMovement(motor.ID, motor.Direction, time.Duration) error { return nil }
func (NopRecorder) RecordStatus(coremqtt.Status) error                            { return nil }
