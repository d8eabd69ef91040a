package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/popstellar/popclient/src/client"
	"github.com/popstellar/popclient/src/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

//NewRunCmd returns the command that starts a client
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run client",
		PreRunE: loadConfig,
		RunE:    runClient,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runClient(cmd *cobra.Command, args []string) error {
	engine := client.NewClient(&_config.Client)

	if err := engine.Init(); err != nil {
		_config.Client.Logger().Error("Cannot initialize client:", err)
		return err
	}
	defer engine.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return engine.Run(ctx)
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {

	cmd.Flags().String("datadir", _config.Client.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.Client.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-file", _config.Client.LogFile, "Optional file receiving a copy of the logs")

	// Network
	cmd.Flags().StringSliceP("relays", "r", _config.Client.Relays, "Websocket addresses of the relays")
	cmd.Flags().StringSliceP("channels", "c", _config.Client.Channels, "Channels to subscribe to")
	cmd.Flags().String("strategy", _config.Client.Strategy, "all, first-success, random-first-success, first-only")
	cmd.Flags().Duration("message-timeout", _config.Client.MessageTimeout, "Time to wait for a response")
	cmd.Flags().Duration("connect-timeout", _config.Client.ConnectTimeout, "Time between reconnection attempts")
	cmd.Flags().Duration("ready-interval", _config.Client.ReadyInterval, "Time between checks of a connection opening")
	cmd.Flags().Int("ready-attempts", _config.Client.ReadyAttempts, "Number of checks of a connection opening")
	cmd.Flags().Int("reconnect-attempts", _config.Client.ReconnectAttempts, "Number of reconnections before dropping a relay")
	cmd.Flags().Int("id-wraparound", _config.Client.IDWrapAround, "Modulus of request ids")

	// Service
	cmd.Flags().Bool("no-service", _config.Client.NoService, "Disable HTTP service")
	cmd.Flags().StringP("service-listen", "s", _config.Client.ServiceAddr, "Listen IP:Port for HTTP service")

	// Store
	cmd.Flags().Bool("store", _config.Client.Store, "Use badgerDB instead of in-mem DB")
	cmd.Flags().String("db", _config.Client.DatabaseDir, "Dabatabase directory")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.Client.SetDataDir(_config.Client.DataDir)

	logFields := logrus.Fields{
		"DataDir":           _config.Client.DataDir,
		"LogLevel":          _config.Client.LogLevel,
		"Relays":            _config.Client.Relays,
		"Channels":          _config.Client.Channels,
		"Strategy":          _config.Client.Strategy,
		"MessageTimeout":    _config.Client.MessageTimeout,
		"ConnectTimeout":    _config.Client.ConnectTimeout,
		"ReadyInterval":     _config.Client.ReadyInterval,
		"ReadyAttempts":     _config.Client.ReadyAttempts,
		"ReconnectAttempts": _config.Client.ReconnectAttempts,
		"Store":             _config.Client.Store,
		"NoService":         _config.Client.NoService,
		"ServiceAddr":       _config.Client.ServiceAddr,
	}

	if _config.Client.Store {
		logFields["DatabaseDir"] = _config.Client.DatabaseDir
	}

	_config.Client.Logger().WithFields(logFields).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/popclient.toml (.json, .yaml also work)
	viper.SetConfigName(config.DefaultConfigName)
	viper.AddConfigPath(_config.Client.DataDir)

	// If a config file is found, read it in. The logger is only built once
	// the log options are final.
	found := true
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		found = false
	}

	// second unmarshal to read from config file
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	if found {
		_config.Client.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else {
		_config.Client.Logger().Debugf("No config file found in: %s", _config.Client.DataDir)
	}

	return nil
}
