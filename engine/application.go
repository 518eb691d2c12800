package engine

import (
	"github.com/spaghettifunk/lumen/engine/renderer"
)

type ApplicationConfig struct {
	// Frame width; zero takes the [window] width of the settings file.
	StartWidth uint32
	// Frame height; zero takes the [window] height of the settings file.
	StartHeight uint32
	// The application name used in logs and window titles, if applicable.
	Name string
	// TOML settings file. Missing files fall back to the defaults.
	ConfigPath string
	// Reload ConfigPath whenever it is written.
	WatchConfig bool
	// Overrides the [log] level of the settings file when set.
	LogLevel string
	Backend  renderer.BackendConfig
}
