package config

import (
	"fmt"

	corelogger "github.com/kilianp07/motorctl/core/logger"
)

// LoggingConfig defines the diagnostic log settings.
type LoggingConfig struct {
	// Level is the minimum severity: debug, info, warn or error.
	Level corelogger.Level `json:"level"`
}

// SetDefaults applies sane defaults.
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = corelogger.LevelInfo
	}
}

// Validate checks the level.
func (c LoggingConfig) Validate() error {
	if !c.Level.Valid() {
		return fmt.Errorf("unknown level %s", c.Level)
	}
	return nil
}
