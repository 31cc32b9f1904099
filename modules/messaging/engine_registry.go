package messaging

import (
	"fmt"
	"slices"
	"sync"

	"github.com/GoCodeAlone/desktopagent"
)

// EngineFactory creates an Engine from the module configuration.
type EngineFactory func(config *Config, logger desktopagent.Logger) (Engine, error)

var (
	engineRegistryMu sync.RWMutex
	engineRegistry   = map[string]EngineFactory{
		"memory": func(config *Config, logger desktopagent.Logger) (Engine, error) {
			return NewMemoryEngine(config, logger), nil
		},
		"redis": func(config *Config, logger desktopagent.Logger) (Engine, error) {
			return NewRedisEngine(config, logger)
		},
		"nats": func(config *Config, logger desktopagent.Logger) (Engine, error) {
			return NewNATSEngine(config, logger), nil
		},
	}
)

// RegisterEngine registers a custom engine type.
//
//	messaging.RegisterEngine("custom", func(cfg *messaging.Config, logger desktopagent.Logger) (messaging.Engine, error) {
//	    return newCustomEngine(cfg), nil
//	})
func RegisterEngine(engineType string, factory EngineFactory) {
	engineRegistryMu.Lock()
	defer engineRegistryMu.Unlock()
	engineRegistry[engineType] = factory
}

// RegisteredEngines returns the known engine types in sorted order.
func RegisteredEngines() []string {
	engineRegistryMu.RLock()
	defer engineRegistryMu.RUnlock()

	engines := make([]string, 0, len(engineRegistry))
	for engineType := range engineRegistry {
		engines = append(engines, engineType)
	}
	slices.Sort(engines)
	return engines
}

func createEngine(config *Config, logger desktopagent.Logger) (Engine, error) {
	engineRegistryMu.RLock()
	factory, exists := engineRegistry[config.Engine]
	engineRegistryMu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEngineType, config.Engine)
	}
	return factory(config, logger)
}
