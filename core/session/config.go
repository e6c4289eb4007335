package session

import (
	"fmt"

	"github.com/kilianp07/motorctl/core/motor"
)

// Config holds the motor range and the motor selected at startup.
type Config struct {
	Motors       int      `json:"motors"`
	DefaultMotor motor.ID `json:"default_motor"`
}

// SetDefaults applies four motors with motor 1 selected.
func (c *Config) SetDefaults() {
	if c.Motors == 0 {
		c.Motors = 4
	}
	if c.DefaultMotor == 0 {
		c.DefaultMotor = 1
	}
}

// Validate checks the motor count and the default motor.
func (c Config) Validate() error {
	if c.Motors < 1 {
		return fmt.Errorf("motors must be at least 1, got %d", c.Motors)
	}
	if err := c.DefaultMotor.Validate(c.Motors); err != nil {
		return fmt.Errorf("default_motor: %w", err)
	}
	return nil
}
