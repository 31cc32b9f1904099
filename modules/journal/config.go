package journal

import (
	"fmt"
	"strings"
	"time"
)

// Config is the "journal" configuration section.
//
// Example YAML configuration:
//
//	journal:
//	  path: /var/lib/fdc3/journal.db
//	  retention: 168h
//	  eventTypePrefixes:
//	    - com.desktopagent.fdc3.
//	    - com.desktopagent.launcher.
type Config struct {
	// Disabled turns the journal off.
	Disabled bool `json:"disabled" yaml:"disabled" toml:"disabled" env:"DISABLED"`

	// Path of the SQLite database file.
	Path string `json:"path" yaml:"path" toml:"path" env:"PATH" default:"fdc3-journal.db"`

	// EventTypePrefixes selects the events to record. Empty records every
	// event the application emits.
	EventTypePrefixes []string `json:"eventTypePrefixes" yaml:"eventTypePrefixes" toml:"eventTypePrefixes" env:"EVENT_TYPE_PREFIXES"`

	// BufferSize is the number of events queued for the writer.
	BufferSize int `json:"bufferSize" yaml:"bufferSize" toml:"bufferSize" env:"BUFFER_SIZE" default:"256"`

	// Retention is how long entries are kept. Zero keeps everything.
	Retention time.Duration `json:"retention" yaml:"retention" toml:"retention" env:"RETENTION" default:"168h"`

	// DrainTimeout bounds how long Stop waits for queued events.
	DrainTimeout time.Duration `json:"drainTimeout" yaml:"drainTimeout" toml:"drainTimeout" env:"DRAIN_TIMEOUT" default:"2s"`
}

// Setup validates the configuration after defaults are applied.
func (c *Config) Setup() error {
	if c.Disabled {
		return nil
	}
	if strings.TrimSpace(c.Path) == "" {
		return fmt.Errorf("%w: path is empty", ErrInvalidConfig)
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("%w: bufferSize must be positive", ErrInvalidConfig)
	}
	if c.Retention < 0 {
		return fmt.Errorf("%w: retention is negative", ErrInvalidConfig)
	}
	return nil
}

func (c *Config) records(eventType string) bool {
	if len(c.EventTypePrefixes) == 0 {
		return true
	}
	for _, prefix := range c.EventTypePrefixes {
		if strings.HasPrefix(eventType, prefix) {
			return true
		}
	}
	return false
}
