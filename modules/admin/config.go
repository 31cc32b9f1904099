package admin

import (
	"fmt"
	"net"
	"time"
)

// Config is the "admin" configuration section.
//
// Example YAML configuration:
//
//	admin:
//	  address: 127.0.0.1:4475
//	  jwtSecret: ${ADMIN_JWT_SECRET}
//	  jwtIssuer: fdc3-agent
type Config struct {
	// Address is the listen address. Port 0 picks a free port.
	Address string `json:"address" yaml:"address" toml:"address" env:"ADDRESS" default:"127.0.0.1:4475"`

	ReadTimeout     time.Duration `json:"readTimeout" yaml:"readTimeout" toml:"readTimeout" env:"READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `json:"writeTimeout" yaml:"writeTimeout" toml:"writeTimeout" env:"WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `json:"shutdownTimeout" yaml:"shutdownTimeout" toml:"shutdownTimeout" env:"SHUTDOWN_TIMEOUT" default:"5s"`

	// BridgeTimeout bounds a service call made through the HTTP bridge.
	BridgeTimeout time.Duration `json:"bridgeTimeout" yaml:"bridgeTimeout" toml:"bridgeTimeout" env:"BRIDGE_TIMEOUT" default:"10s"`

	// JWTSecret signs the bearer tokens accepted under /api. Empty leaves
	// the API open, which is only sensible on a loopback address.
	JWTSecret string `json:"jwtSecret" yaml:"jwtSecret" toml:"jwtSecret" env:"JWT_SECRET"`

	// JWTIssuer, when set, must match the iss claim.
	JWTIssuer string `json:"jwtIssuer" yaml:"jwtIssuer" toml:"jwtIssuer" env:"JWT_ISSUER"`
}

// Setup validates the configuration after defaults are applied.
func (c *Config) Setup() error {
	if _, _, err := net.SplitHostPort(c.Address); err != nil {
		return fmt.Errorf("%w: address %q: %w", ErrInvalidConfig, c.Address, err)
	}
	if c.JWTSecret != "" && len(c.JWTSecret) < 16 {
		return fmt.Errorf("%w: jwtSecret must be at least 16 bytes", ErrInvalidConfig)
	}
	return nil
}
