package agent

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Config is the "fdc3" configuration section.
//
// Example YAML configuration:
//
//	fdc3:
//	  topicRoot: fdc3/v2.0/
//	  listenerRegistrationTimeout: 2s
//	  intentResultTimeout: 1s
//	  userChannelSet: ./userChannelSet.json
//	  defaultUserChannel: fdc3.channel.1
type Config struct {
	// TopicRoot prefixes every service and channel topic.
	TopicRoot string `json:"topicRoot" yaml:"topicRoot" toml:"topicRoot" env:"TOPIC_ROOT" default:"fdc3/v2.0/"`

	// ListenerRegistrationTimeout bounds the wait for a target to register an
	// intent or context listener.
	ListenerRegistrationTimeout time.Duration `json:"listenerRegistrationTimeout" yaml:"listenerRegistrationTimeout" toml:"listenerRegistrationTimeout" env:"LISTENER_REGISTRATION_TIMEOUT" default:"2s"`

	// IntentResultTimeout bounds GetIntentResult.
	IntentResultTimeout time.Duration `json:"intentResultTimeout" yaml:"intentResultTimeout" toml:"intentResultTimeout" env:"INTENT_RESULT_TIMEOUT" default:"1s"`

	// ResolverTimeout bounds a resolver UI round trip.
	ResolverTimeout time.Duration `json:"resolverTimeout" yaml:"resolverTimeout" toml:"resolverTimeout" env:"RESOLVER_TIMEOUT" default:"2m"`

	// LaunchTimeout bounds the wait for a launched app to report it started.
	LaunchTimeout time.Duration `json:"launchTimeout" yaml:"launchTimeout" toml:"launchTimeout" env:"LAUNCH_TIMEOUT" default:"30s"`

	// UserChannelSet is a file path or http(s) URL. Empty selects the built-in
	// set of eight channels.
	UserChannelSet string `json:"userChannelSet" yaml:"userChannelSet" toml:"userChannelSet" env:"USER_CHANNEL_SET"`

	// DefaultUserChannel is created when the agent starts.
	DefaultUserChannel string `json:"defaultUserChannel" yaml:"defaultUserChannel" toml:"defaultUserChannel" env:"DEFAULT_USER_CHANNEL"`

	// OpenedContextTTL is how long a context passed to Open waits to be read.
	OpenedContextTTL time.Duration `json:"openedContextTTL" yaml:"openedContextTTL" toml:"openedContextTTL" env:"OPENED_CONTEXT_TTL" default:"1m"`

	// HousekeepingSchedule is a cron spec for expiring opened contexts.
	HousekeepingSchedule string `json:"housekeepingSchedule" yaml:"housekeepingSchedule" toml:"housekeepingSchedule" env:"HOUSEKEEPING_SCHEDULE" default:"@every 30s"`

	Provider        string `json:"provider" yaml:"provider" toml:"provider" env:"PROVIDER" default:"desktopagent"`
	ProviderVersion string `json:"providerVersion" yaml:"providerVersion" toml:"providerVersion" env:"PROVIDER_VERSION" default:"0.0.0"`
}

// Validate checks the configured durations and schedule.
func (c *Config) Validate() error {
	for name, d := range map[string]time.Duration{
		"listenerRegistrationTimeout": c.ListenerRegistrationTimeout,
		"intentResultTimeout":         c.IntentResultTimeout,
		"resolverTimeout":             c.ResolverTimeout,
		"launchTimeout":               c.LaunchTimeout,
		"openedContextTTL":            c.OpenedContextTTL,
	} {
		if d <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, name)
		}
	}
	if c.HousekeepingSchedule != "" {
		if _, err := cron.ParseStandard(c.HousekeepingSchedule); err != nil {
			return fmt.Errorf("%w: housekeepingSchedule: %w", ErrInvalidConfig, err)
		}
	}
	return nil
}
