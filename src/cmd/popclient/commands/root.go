package commands

import (
	"github.com/spf13/cobra"
)

var (
	_config = NewDefaultCLIConfig()
)

//RootCmd is the root command for popclient
var RootCmd = &cobra.Command{
	Use:              "popclient",
	Short:            "signed pub/sub client",
	TraverseChildren: true,
}
