package motor

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Topics used on the broker.
const (
	TopicControl = "motor/control"
	TopicSelect  = "motor/select"
)

var (
	// ErrInvalidMotor is returned when an identifier is outside the configured range.
	ErrInvalidMotor = errors.New("invalid motor")
	// ErrInvalidDirection is returned for an unknown direction or when STOP is
	// used where a movement direction is required.
	ErrInvalidDirection = errors.New("invalid direction")
)

// ID identifies a motor. Valid identifiers are 1..N for N configured motors.
type ID int

// Validate checks that id is within 1..count.
func (id ID) Validate(count int) error {
	if id < 1 || int(id) > count {
		return fmt.Errorf("%w: %d (valid 1-%d)", ErrInvalidMotor, id, count)
	}
	return nil
}

// Direction is the action applied to a motor.
type Direction int

const (
	Stop Direction = iota
	Forward
	Backward
)

func (d Direction) String() string {
	switch d {
	case Forward:
		return "FORWARD"
	case Backward:
		return "BACKWARD"
	case Stop:
		return "STOP"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// Moving reports whether d starts a movement.
func (d Direction) Moving() bool { return d == Forward || d == Backward }

// ParseDirection maps a wire action to a Direction. Matching is case sensitive.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "FORWARD":
		return Forward, nil
	case "BACKWARD":
		return Backward, nil
	case "STOP":
		return Stop, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidDirection, s)
}

// Command pairs a motor with the direction to apply.
type Command struct {
	Motor     ID
	Direction Direction
}

// String renders the control payload.
func (c Command) String() string { return EncodeControl(c.Motor, c.Direction) }

// EncodeControl renders the movement payload "<id>:<ACTION>".
func EncodeControl(id ID, d Direction) string {
	return fmt.Sprintf("%d:%s", id, d)
}

// EncodeSelect renders the selection payload: the decimal identifier alone.
func EncodeSelect(id ID) string {
	return strconv.Itoa(int(id))
}

// ParseControl decodes a payload produced by EncodeControl.
func ParseControl(payload string) (Command, error) {
	idPart, action, ok := strings.Cut(payload, ":")
	if !ok {
		return Command{}, fmt.Errorf("malformed control payload %q", payload)
	}
	id, err := parseID(idPart)
	if err != nil {
		return Command{}, err
	}
	d, err := ParseDirection(action)
	if err != nil {
		return Command{}, err
	}
	return Command{Motor: id, Direction: d}, nil
}

// ParseSelect decodes a payload produced by EncodeSelect.
func ParseSelect(payload string) (ID, error) {
	return parseID(payload)
}

func parseID(s string) (ID, error) {
	n, err := strconv.Atoi(s)
	if err != nil || strconv.Itoa(n) != s {
		return 0, fmt.Errorf("%w: %q", ErrInvalidMotor, s)
	}
	if n < 1 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidMotor, n)
	}
	return ID(n), nil
}
