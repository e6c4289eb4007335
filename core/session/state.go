package session

import (
	"time"

	"github.com/kilianp07/motorctl/core/motor"
)

// MovementEpoch is the start time assumed when a movement ends before any
// movement began. The resulting duration is the time elapsed since the Unix
// epoch, which is almost certainly not what an operator expects; it is kept
// so that every stop still produces a numeric duration.
var MovementEpoch = time.Unix(0, 0)

// State is the selected motor and the start of the last movement.
type State struct {
	motors    int
	selected  motor.ID
	startedAt time.Time
}

// NewState returns a State with def selected and no movement recorded.
func NewState(motors int, def motor.ID) *State {
	return &State{motors: motors, selected: def}
}

// Selected returns the selected motor.
func (s *State) Selected() motor.ID { return s.selected }

// Motors returns the number of configured motors.
func (s *State) Motors() int { return s.motors }

// Select changes the selected motor. An identifier outside 1..motors is
// rejected with motor.ErrInvalidMotor and the state is left untouched.
func (s *State) Select(id motor.ID) error {
	if err := id.Validate(s.motors); err != nil {
		return err
	}
	s.selected = id
	return nil
}

// BeginMovement records t as the movement start, replacing any movement
// that was never ended.
func (s *State) BeginMovement(t time.Time) { s.startedAt = t }

// StartedAt returns the recorded start and whether one exists.
func (s *State) StartedAt() (time.Time, bool) {
	return s.startedAt, !s.startedAt.IsZero()
}

// EndMovement returns the time elapsed since the recorded start, measured
// from MovementEpoch when nothing was recorded. The start is kept, so ending
// twice measures from the same start. Negative results are clamped to 0.
func (s *State) EndMovement(t time.Time) time.Duration {
	start := s.startedAt
	if start.IsZero() {
		start = MovementEpoch
	}
	d := t.Sub(start)
	if d < 0 {
		return 0
	}
	return d
}
