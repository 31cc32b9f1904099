package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/GoCodeAlone/desktopagent"
	"github.com/GoCodeAlone/desktopagent/feeders"
	"github.com/GoCodeAlone/desktopagent/modules/admin"
	"github.com/GoCodeAlone/desktopagent/modules/appdirectory"
	"github.com/GoCodeAlone/desktopagent/modules/interop"
	"github.com/GoCodeAlone/desktopagent/modules/journal"
	"github.com/GoCodeAlone/desktopagent/modules/launcher"
	"github.com/GoCodeAlone/desktopagent/modules/messaging"
	"github.com/GoCodeAlone/desktopagent/modules/resolverui"
)

// DefaultEnvPrefix prefixes the environment variables read on top of the
// config file, e.g. FDC3AGENT_FDC3_TOPIC_ROOT.
const DefaultEnvPrefix = "FDC3AGENT"

// configFeeder picks the file feeder from the config file extension.
func configFeeder(path string) (desktopagent.Feeder, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return feeders.NewYamlFeeder(path), nil
	case ".json":
		return feeders.NewJSONFeeder(path), nil
	case ".toml":
		return feeders.NewTomlFeeder(path), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownConfigFormat, path)
	}
}

// BuildApplication assembles the desktop agent from its modules. The
// journal and admin modules are optional.
func BuildApplication(configPath, envPrefix string, logger desktopagent.Logger, withJournal, withAdmin bool) (*desktopagent.ObservableApplication, error) {
	var configFeeders []desktopagent.Feeder
	if configPath != "" {
		feeder, err := configFeeder(configPath)
		if err != nil {
			return nil, err
		}
		configFeeders = append(configFeeders, feeder)
	}
	configFeeders = append(configFeeders, feeders.NewEnvFeeder(envPrefix))

	app := desktopagent.NewObservableApplication(desktopagent.NewStdConfigProvider(&struct{}{}), logger)
	app.SetConfigFeeders(configFeeders...)

	app.RegisterModule(messaging.NewModule())
	app.RegisterModule(appdirectory.NewModule())
	app.RegisterModule(launcher.NewModule())
	app.RegisterModule(resolverui.NewModule())
	app.RegisterModule(interop.NewModule())
	if withJournal {
		app.RegisterModule(journal.NewModule())
	}
	if withAdmin {
		app.RegisterModule(admin.NewModule())
	}
	return app, nil
}
