package common

import (
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
)

// TestLogLevel is the level used by the loggers handed out to tests.
var TestLogLevel = logrus.DebugLevel

// This can be used as the destination for a logger and it'll
// map them into calls to testing.T.Log, so that you only see
// the logging for failed tests.
type testLoggerAdapter struct {
	mu     sync.Mutex
	t      testing.TB
	prefix string
	done   bool
}

func (a *testLoggerAdapter) Write(d []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	// background goroutines may outlive the test
	if a.done {
		return len(d), nil
	}

	if d[len(d)-1] == '\n' {
		d = d[:len(d)-1]
	}
	if a.prefix != "" {
		l := a.prefix + ": " + string(d)
		a.t.Log(l)
		return len(l), nil
	}
	a.t.Log(string(d))
	return len(d), nil
}

func (a *testLoggerAdapter) stop() {
	a.mu.Lock()
	a.done = true
	a.mu.Unlock()
}

// NewTestLogger returns a logrus Logger that writes through t.Log.
func NewTestLogger(t testing.TB, level logrus.Level) *logrus.Logger {
	adapter := &testLoggerAdapter{t: t}
	t.Cleanup(adapter.stop)

	logger := logrus.New()
	logger.Out = adapter
	logger.Level = level
	return logger
}

// NewTestEntry returns a logrus Entry for tests, with prefix set to "test".
func NewTestEntry(t testing.TB, level logrus.Level) *logrus.Entry {
	return NewTestLogger(t, level).WithField("prefix", "test")
}
