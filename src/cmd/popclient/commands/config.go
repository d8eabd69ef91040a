package commands

import (
	"github.com/popstellar/popclient/src/config"
)

//CLIConfig contains configuration for the Run command
type CLIConfig struct {
	Client config.Config `mapstructure:",squash"`
}

//NewDefaultCLIConfig creates a CLIConfig with default values
func NewDefaultCLIConfig() *CLIConfig {
	return &CLIConfig{
		Client: *config.NewDefaultConfig(),
	}
}
