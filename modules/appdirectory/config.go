package appdirectory

import (
	"fmt"
	"strings"
	"time"
)

// Catalog formats understood by the directory.
const (
	FormatAuto = "auto"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Config defines the configuration of the app directory module.
//
// Example YAML configuration:
//
//	appdirectory:
//	  source: ./apps.yaml
//	  watch: true
type Config struct {
	// Source is a file path, a file:// URL or an http(s) URL serving the
	// catalog. The catalog is either an array of apps or an object with an
	// "applications" array.
	Source string `json:"source" yaml:"source" toml:"source" env:"SOURCE" required:"true"`

	// Format forces the decoder; "auto" picks YAML for .yaml/.yml sources and
	// JSON (comments allowed) otherwise.
	Format string `json:"format" yaml:"format" toml:"format" env:"FORMAT" default:"auto"`

	// Watch reloads file sources when the file changes.
	Watch bool `json:"watch" yaml:"watch" toml:"watch" env:"WATCH"`

	// WatchDebounce coalesces bursts of writes into one reload.
	WatchDebounce time.Duration `json:"watchDebounce" yaml:"watchDebounce" toml:"watchDebounce" env:"WATCH_DEBOUNCE" default:"200ms"`

	// SkipValidation disables the JSON schema check of records.
	SkipValidation bool `json:"skipValidation" yaml:"skipValidation" toml:"skipValidation" env:"SKIP_VALIDATION"`

	// CacheTTL is how long an HTTP catalog is served before it is fetched again.
	CacheTTL time.Duration `json:"cacheTTL" yaml:"cacheTTL" toml:"cacheTTL" env:"CACHE_TTL" default:"5m"`

	HTTPTimeout time.Duration `json:"httpTimeout" yaml:"httpTimeout" toml:"httpTimeout" env:"HTTP_TIMEOUT" default:"10s"`
}

// Setup validates the configuration after feeding.
func (c *Config) Setup() error {
	switch strings.ToLower(c.Format) {
	case "", FormatAuto, FormatJSON, FormatYAML:
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, c.Format)
	}
	if c.Source == "" {
		return ErrNoSource
	}
	return nil
}
