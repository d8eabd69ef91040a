package config

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/popstellar/popclient/src/common"
	"github.com/popstellar/popclient/src/crypto/keys"
	"github.com/popstellar/popclient/src/net"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames.
const (
	// DefaultKeyfile is the default name of the file containing the
	// participant's private key
	DefaultKeyfile = "priv_key"

	// DefaultBadgerFile is the default name of the folder containing the Badger
	// database
	DefaultBadgerFile = "badger_db"

	// DefaultConfigName is the name, without extension, of the optional
	// configuration file in the data directory.
	DefaultConfigName = "popclient"
)

// Default configuration values.
const (
	DefaultLogLevel          = "debug"
	DefaultServiceAddr       = "127.0.0.1:8000"
	DefaultRootChannel       = "/root"
	DefaultStrategy          = net.StrategyAll
	DefaultMessageTimeout    = net.DefaultMessageTimeout
	DefaultConnectTimeout    = net.DefaultConnectTimeout
	DefaultReadyInterval     = net.DefaultReadyInterval
	DefaultReadyAttempts     = net.DefaultReadyMaxAttempts
	DefaultReconnectAttempts = net.DefaultMaxReconnectAttempts
	DefaultIDWrapAround      = net.DefaultIDWrapAround
	DefaultStore             = false
	DefaultNoService         = false
)

// Config contains all the configuration properties of a client.
type Config struct {
	// DataDir is the top-level directory containing the configuration file,
	// the private key and the database.
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogFile, when set, receives a copy of every log entry.
	LogFile string `mapstructure:"log-file"`

	// Relays are the websocket addresses of the relays to connect to, e.g.
	// ws://127.0.0.1:9000/client.
	Relays []string `mapstructure:"relays"`

	// Channels are subscribed to, and caught up on, once connected.
	Channels []string `mapstructure:"channels"`

	// Strategy names the policy distributing requests over the relays: all,
	// first-success, random-first-success or first-only.
	Strategy string `mapstructure:"strategy"`

	// MessageTimeout is how long a request waits for its response.
	MessageTimeout time.Duration `mapstructure:"message-timeout"`

	// ConnectTimeout is the delay between two reconnection attempts.
	ConnectTimeout time.Duration `mapstructure:"connect-timeout"`

	// ReadyInterval is the polling period of requests waiting for a
	// connection to open. ReadyAttempts bounds the polling.
	ReadyInterval time.Duration `mapstructure:"ready-interval"`
	ReadyAttempts int           `mapstructure:"ready-attempts"`

	// ReconnectAttempts is the number of failed reconnections after which a
	// relay is dropped.
	ReconnectAttempts int `mapstructure:"reconnect-attempts"`

	// IDWrapAround is the modulus of request ids.
	IDWrapAround int `mapstructure:"id-wraparound"`

	// Store activates persistant storage of received messages, so that
	// messages not handled yet survive a restart.
	Store bool `mapstructure:"store"`

	// DatabaseDir is the directory containing database files.
	DatabaseDir string `mapstructure:"db"`

	// NoService disables the HTTP status service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the HTTP status service.
	ServiceAddr string `mapstructure:"service-listen"`

	// Dialer opens the sockets to the relays. It defaults to a websocket
	// dialer.
	Dialer net.Dialer

	// Key is the participant's key pair. It is read from, or generated in,
	// the data directory when nil.
	Key *keys.KeyPair

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:           DefaultDataDir(),
		LogLevel:          DefaultLogLevel,
		Channels:          []string{DefaultRootChannel},
		Strategy:          DefaultStrategy,
		MessageTimeout:    DefaultMessageTimeout,
		ConnectTimeout:    DefaultConnectTimeout,
		ReadyInterval:     DefaultReadyInterval,
		ReadyAttempts:     DefaultReadyAttempts,
		ReconnectAttempts: DefaultReconnectAttempts,
		IDWrapAround:      DefaultIDWrapAround,
		Store:             DefaultStore,
		DatabaseDir:       DefaultDatabaseDir(),
		NoService:         DefaultNoService,
		ServiceAddr:       DefaultServiceAddr,
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t, level)
	return config
}

// SetDataDir sets the top-level directory, and updates the database directory
// if it is currently set to the default value. If the database directory is
// not currently the default, it means the user has explicitely set it to
// something else, so avoid changing it again here.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultBadgerFile)
	}
}

// Keyfile returns the full path of the file containing the private key.
func (c *Config) Keyfile() string {
	return filepath.Join(c.DataDir, DefaultKeyfile)
}

// NetConfig returns the connection parameters.
func (c *Config) NetConfig() *net.Config {
	conf := net.DefaultConfig()
	conf.MessageTimeout = c.MessageTimeout
	conf.ConnectTimeout = c.ConnectTimeout
	conf.ReadyInterval = c.ReadyInterval
	conf.ReadyMaxAttempts = c.ReadyAttempts
	conf.MaxReconnectAttempts = c.ReconnectAttempts
	conf.IDWrapAround = c.IDWrapAround
	return conf
}

// SendingStrategy returns the strategy named by Strategy.
func (c *Config) SendingStrategy() (net.SendingStrategy, error) {
	return net.StrategyByName(c.Strategy)
}

// Logger returns a formatted logrus Entry, with prefix set to "popclient".
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)

		if c.LogFile != "" {
			c.logger.Hooks.Add(lfshook.NewHook(
				lfshook.PathMap{
					logrus.DebugLevel: c.LogFile,
					logrus.InfoLevel:  c.LogFile,
					logrus.WarnLevel:  c.LogFile,
					logrus.ErrorLevel: c.LogFile,
					logrus.FatalLevel: c.LogFile,
					logrus.PanicLevel: c.LogFile,
				},
				&logrus.TextFormatter{},
			))
		}
	}
	return c.logger.WithField("prefix", "popclient")
}

// DefaultDatabaseDir returns the default path for the badger database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultBadgerFile)
}

// DefaultDataDir return the default directory name for top-level
// configuration based on the underlying OS, attempting to respect
// conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".PopClient")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "PopClient")
		} else {
			return filepath.Join(home, ".popclient")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
