package messaging

import (
	"fmt"
	"time"
)

// Delivery modes of the memory engine when a subscriber's buffer is full.
const (
	DeliveryModeBlock   = "block"
	DeliveryModeDrop    = "drop"
	DeliveryModeTimeout = "timeout"
)

// Config defines the configuration of the messaging module.
//
// Example YAML configuration:
//
//	messaging:
//	  engine: redis
//	  bufferSize: 128
//	  redis:
//	    url: redis://localhost:6379/0
//	  metrics:
//	    prometheus: true
type Config struct {
	// Engine selects the fabric implementation: "memory", "redis" or "nats".
	Engine string `json:"engine" yaml:"engine" toml:"engine" env:"ENGINE" default:"memory"`

	// BufferSize is the per-subscription queue length.
	BufferSize int `json:"bufferSize" yaml:"bufferSize" toml:"bufferSize" env:"BUFFER_SIZE" default:"64"`

	// DeliveryMode controls what a publisher does when a subscriber's queue is
	// full: "block" waits (bounded by the publish context), "drop" discards,
	// "timeout" waits up to PublishBlockTimeout.
	DeliveryMode string `json:"deliveryMode" yaml:"deliveryMode" toml:"deliveryMode" env:"DELIVERY_MODE" default:"block"`

	PublishBlockTimeout time.Duration `json:"publishBlockTimeout" yaml:"publishBlockTimeout" toml:"publishBlockTimeout" env:"PUBLISH_BLOCK_TIMEOUT" default:"250ms"`

	// InvokeTimeout bounds Invoke calls whose context has no deadline.
	InvokeTimeout time.Duration `json:"invokeTimeout" yaml:"invokeTimeout" toml:"invokeTimeout" env:"INVOKE_TIMEOUT" default:"5s"`

	Redis   RedisConfig   `json:"redis" yaml:"redis" toml:"redis" env:"REDIS"`
	NATS    NATSConfig    `json:"nats" yaml:"nats" toml:"nats" env:"NATS"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics" toml:"metrics" env:"METRICS"`
}

// RedisConfig holds Redis engine settings.
type RedisConfig struct {
	URL      string `json:"url" yaml:"url" toml:"url" env:"URL" default:"redis://localhost:6379/0"`
	Username string `json:"username" yaml:"username" toml:"username" env:"USERNAME"`
	Password string `json:"password" yaml:"password" toml:"password" env:"PASSWORD"`
	PoolSize int    `json:"poolSize" yaml:"poolSize" toml:"poolSize" env:"POOL_SIZE" default:"10"`

	// KeyPrefix namespaces the service registration keys.
	KeyPrefix string `json:"keyPrefix" yaml:"keyPrefix" toml:"keyPrefix" env:"KEY_PREFIX" default:"fdc3agent:"`
}

// NATSConfig holds NATS engine settings.
type NATSConfig struct {
	URL  string `json:"url" yaml:"url" toml:"url" env:"URL" default:"nats://127.0.0.1:4222"`
	Name string `json:"name" yaml:"name" toml:"name" env:"NAME" default:"fdc3-desktop-agent"`
}

// MetricsConfig enables the delivery statistics exporters.
type MetricsConfig struct {
	Prometheus bool   `json:"prometheus" yaml:"prometheus" toml:"prometheus" env:"PROMETHEUS"`
	Namespace  string `json:"namespace" yaml:"namespace" toml:"namespace" env:"NAMESPACE" default:"fdc3_messaging"`

	// StatsdAddr enables the DogStatsD exporter when set, e.g. "127.0.0.1:8125".
	StatsdAddr     string        `json:"statsdAddr" yaml:"statsdAddr" toml:"statsdAddr" env:"STATSD_ADDR"`
	StatsdInterval time.Duration `json:"statsdInterval" yaml:"statsdInterval" toml:"statsdInterval" env:"STATSD_INTERVAL" default:"10s"`
	StatsdTags     []string      `json:"statsdTags" yaml:"statsdTags" toml:"statsdTags" env:"STATSD_TAGS"`
}

// Setup validates the combination of settings after feeding.
func (c *Config) Setup() error {
	switch c.DeliveryMode {
	case DeliveryModeBlock, DeliveryModeDrop, DeliveryModeTimeout:
	default:
		return fmt.Errorf("unknown delivery mode: %s", c.DeliveryMode)
	}
	if c.BufferSize < 1 {
		return fmt.Errorf("bufferSize must be at least 1, got %d", c.BufferSize)
	}
	return nil
}
