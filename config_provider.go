package desktopagent

import (
	"fmt"
)

const mainConfigSection = "_main"

// ConfigProvider defines the interface for providing configuration objects
type ConfigProvider interface {
	// GetConfig returns the configuration object
	GetConfig() any
}

// StdConfigProvider provides a standard implementation of ConfigProvider
type StdConfigProvider struct {
	cfg any
}

// GetConfig returns the configuration object
func (s *StdConfigProvider) GetConfig() any {
	return s.cfg
}

// NewStdConfigProvider creates a new standard configuration provider
func NewStdConfigProvider(cfg any) *StdConfigProvider {
	return &StdConfigProvider{cfg: cfg}
}

// Feeder populates a configuration structure from a source.
type Feeder interface {
	Feed(structure any) error
}

// ComplexFeeder is a Feeder that can also populate a single named section,
// for example the `fdc3:` key of a YAML document.
type ComplexFeeder interface {
	Feeder
	FeedKey(key string, target any) error
}

// ConfigFeeders are the feeders used by applications that were not given
// feeders explicitly via SetConfigFeeders.
var ConfigFeeders []Feeder

// ConfigSetup is an interface that configs can implement
// to perform additional setup after being populated by feeders
type ConfigSetup interface {
	Setup() error
}

// loadAppConfig feeds the main configuration and every registered section,
// then applies defaults, required-field checks and Setup hooks.
func loadAppConfig(app *StdApplication) error {
	if app == nil {
		return ErrApplicationNil
	}

	feeders := app.configFeeders
	if feeders == nil {
		feeders = ConfigFeeders
	}
	if len(feeders) == 0 {
		app.logger.Info("No config feeders defined, applying defaults only")
	}

	if app.cfgProvider != nil {
		if err := feedTarget(mainConfigSection, app.cfgProvider.GetConfig(), feeders); err != nil {
			return err
		}
	}

	for section, provider := range app.cfgSections {
		if provider == nil {
			continue
		}
		if err := feedTarget(section, provider.GetConfig(), feeders); err != nil {
			return err
		}
		app.logger.Debug("Loaded config section", "section", section)
	}

	return nil
}

func feedTarget(key string, target any, feeders []Feeder) error {
	if target == nil {
		return nil
	}

	for _, f := range feeders {
		if key == mainConfigSection {
			if err := f.Feed(target); err != nil {
				return fmt.Errorf("%w: main config: %w", ErrConfigFeederError, err)
			}
			continue
		}
		cf, ok := f.(ComplexFeeder)
		if !ok {
			continue
		}
		if err := cf.FeedKey(key, target); err != nil {
			return fmt.Errorf("%w: section %s: %w", ErrConfigFeederError, key, err)
		}
	}

	if err := ValidateConfig(target); err != nil {
		return fmt.Errorf("config validation error for %s: %w", key, err)
	}

	if setupable, ok := target.(ConfigSetup); ok {
		if err := setupable.Setup(); err != nil {
			return fmt.Errorf("%w for %s: %w", ErrConfigSetupError, key, err)
		}
	}
	return nil
}
