package mobile

import (
	"time"

	"github.com/popstellar/popclient/src/config"
)

// MobileConfig holds the options a mobile application can set.
type MobileConfig struct {
	MessageTimeout int    //request timeout in milliseconds
	ConnectTimeout int    //delay between reconnections in milliseconds
	Strategy       string //all, first-success, random-first-success or first-only
	StoreType      string //inmem or badger
	StorePath      string //Directory of the badger database
	LogLevel       string //debug, info, warn, error
}

func NewMobileConfig(messageTimeout int,
	connectTimeout int,
	strategy string,
	storeType string,
	storePath string,
	logLevel string) *MobileConfig {

	return &MobileConfig{
		MessageTimeout: messageTimeout,
		ConnectTimeout: connectTimeout,
		Strategy:       strategy,
		StoreType:      storeType,
		StorePath:      storePath,
		LogLevel:       logLevel,
	}
}

func DefaultMobileConfig() *MobileConfig {
	return &MobileConfig{
		MessageTimeout: int(config.DefaultMessageTimeout / time.Millisecond),
		ConnectTimeout: int(config.DefaultConnectTimeout / time.Millisecond),
		Strategy:       config.DefaultStrategy,
		StoreType:      "inmem",
		StorePath:      "",
		LogLevel:       "info",
	}
}

func (c *MobileConfig) toConfig() *config.Config {
	conf := config.NewDefaultConfig()

	conf.MessageTimeout = time.Duration(c.MessageTimeout) * time.Millisecond
	conf.ConnectTimeout = time.Duration(c.ConnectTimeout) * time.Millisecond
	conf.Strategy = c.Strategy
	conf.LogLevel = c.LogLevel
	conf.Store = c.StoreType == "badger"
	if c.StorePath != "" {
		conf.DatabaseDir = c.StorePath
	}
	conf.NoService = true
	conf.Channels = nil

	return conf
}
