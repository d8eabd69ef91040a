package config

import (
	"path/filepath"
	"testing"

	"github.com/popstellar/popclient/src/net"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetDataDir(t *testing.T) {
	conf := NewDefaultConfig()

	conf.SetDataDir("/tmp/pop")
	assert.Equal(t, "/tmp/pop", conf.DataDir)
	assert.Equal(t, filepath.Join("/tmp/pop", DefaultBadgerFile), conf.DatabaseDir)
	assert.Equal(t, filepath.Join("/tmp/pop", DefaultKeyfile), conf.Keyfile())

	// an explicit database directory is kept
	conf.DatabaseDir = "/var/db"
	conf.SetDataDir("/tmp/other")
	assert.Equal(t, "/var/db", conf.DatabaseDir)
}

func TestNetConfig(t *testing.T) {
	conf := NewDefaultConfig()
	assert.Equal(t, net.DefaultConfig(), conf.NetConfig())

	conf.ReadyAttempts = 3
	conf.IDWrapAround = 42

	nc := conf.NetConfig()
	assert.Equal(t, 3, nc.ReadyMaxAttempts)
	assert.Equal(t, 42, nc.IDWrapAround)
	assert.Equal(t, conf.ReadyInterval*3, nc.OpenTimeout())
}

func TestSendingStrategy(t *testing.T) {
	conf := NewDefaultConfig()

	for _, name := range []string{net.StrategyAll, net.StrategyFirstSuccess, net.StrategyRandomFirstSuccess, net.StrategyFirstOnly} {
		conf.Strategy = name
		s, err := conf.SendingStrategy()
		require.NoError(t, err)
		require.NotNil(t, s)
	}

	conf.Strategy = "round-robin"
	_, err := conf.SendingStrategy()
	require.Error(t, err)
}

func TestLogger(t *testing.T) {
	conf := NewDefaultConfig()
	conf.LogLevel = "warn"
	conf.LogFile = filepath.Join(t.TempDir(), "popclient.log")

	entry := conf.Logger()
	assert.Equal(t, logrus.WarnLevel, entry.Logger.Level)
	assert.Equal(t, "popclient", entry.Data["prefix"])

	// the logger is built once
	assert.Same(t, entry.Logger, conf.Logger().Logger)
}

func TestLogLevel(t *testing.T) {
	assert.Equal(t, logrus.InfoLevel, LogLevel("info"))
	assert.Equal(t, logrus.ErrorLevel, LogLevel("error"))
	assert.Equal(t, logrus.DebugLevel, LogLevel("verbose"))
}
