package resolverui

import (
	"fmt"
	"time"
)

// Fallback policies used when no resolver UI service is registered.
const (
	FallbackNone  = "none"
	FallbackFirst = "first"
)

// Config defines the configuration of the resolver UI client.
//
// Example YAML configuration:
//
//	resolverui:
//	  timeout: 2m
//	  fallback: none
type Config struct {
	// TopicRoot must match the root used by the desktop agent.
	TopicRoot string `json:"topicRoot" yaml:"topicRoot" toml:"topicRoot" env:"TOPIC_ROOT" default:"fdc3/v2.0/"`

	// Timeout bounds a call when the caller's context has no deadline.
	Timeout time.Duration `json:"timeout" yaml:"timeout" toml:"timeout" env:"TIMEOUT" default:"2m"`

	// Fallback "first" picks the first candidate when no resolver UI is
	// running, for headless deployments. "none" reports ResolverUnavailable.
	Fallback string `json:"fallback" yaml:"fallback" toml:"fallback" env:"FALLBACK" default:"none"`
}

// Setup validates the configuration after feeding.
func (c *Config) Setup() error {
	switch c.Fallback {
	case FallbackNone, FallbackFirst:
		return nil
	default:
		return fmt.Errorf("unknown resolver fallback: %s", c.Fallback)
	}
}
