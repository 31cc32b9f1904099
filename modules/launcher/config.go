package launcher

import "time"

// Config defines the configuration of the launcher module.
//
// Example YAML configuration:
//
//	launcher:
//	  workDir: /opt/desktop/apps
//	  stopGracePeriod: 2s
type Config struct {
	// WorkDir resolves relative executable paths and is the working directory
	// of started processes. Empty means the agent's working directory.
	WorkDir string `json:"workDir" yaml:"workDir" toml:"workDir" env:"WORK_DIR"`

	// StopGracePeriod is how long a process may take to exit after an
	// interrupt before it is killed.
	StopGracePeriod time.Duration `json:"stopGracePeriod" yaml:"stopGracePeriod" toml:"stopGracePeriod" env:"STOP_GRACE_PERIOD" default:"2s"`

	// IsolateEnv starts processes with only the app's declared environment and
	// the FDC3 startup variables instead of inheriting the agent's.
	IsolateEnv bool `json:"isolateEnv" yaml:"isolateEnv" toml:"isolateEnv" env:"ISOLATE_ENV"`
}
