package net

import (
	"context"
	"sync"

	"github.com/popstellar/popclient/src/common"
	"github.com/popstellar/popclient/src/jsonrpc"
	"github.com/sirupsen/logrus"
)

// RPCHandler handles the requests pushed by relays.
type RPCHandler func(*jsonrpc.ExtendedRequest)

// Manager owns the connections to every relay. Requests are distributed over
// the connections by a SendingStrategy.
type Manager struct {
	dialer Dialer
	conf   *Config
	logger *logrus.Entry

	l                    sync.Mutex
	connections          []*Connection
	strategy             SendingStrategy
	rpcHandler           RPCHandler
	reconnectionHandlers []func()
	online               bool
	foreground           bool
}

// NewManager creates a Manager without connections. A nil strategy defaults
// to SendToAll.
func NewManager(dialer Dialer, conf *Config, strategy SendingStrategy, logger *logrus.Entry) *Manager {
	if conf == nil {
		conf = DefaultConfig()
	}

	if strategy == nil {
		strategy = SendToAll
	}

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	return &Manager{
		dialer:     dialer,
		conf:       conf,
		logger:     logger,
		strategy:   strategy,
		online:     true,
		foreground: true,
	}
}

// Connect returns the connection to address, creating it if necessary, once
// it is open. A new connection that does not open in time is discarded and a
// NetworkError is returned. An existing connection is left to its own
// reconnection attempts when it does not open in time.
func (m *Manager) Connect(ctx context.Context, address string) (*Connection, error) {
	m.l.Lock()
	c := m.find(address)
	created := c == nil
	if created {
		c = NewConnection(address, m.dialer, m.conf, m.handleRequest, m.retire, m.logger)
		m.connections = append(m.connections, c)
	}
	m.l.Unlock()

	ctx, cancel := context.WithTimeout(ctx, m.conf.OpenTimeout())
	defer cancel()

	if err := c.WaitOpen(ctx); err != nil {
		if created {
			m.remove(c)
			c.Disconnect()
		}
		return nil, err
	}

	m.logger.WithField("address", address).Info("connected to relay")

	return c, nil
}

// Disconnect closes the connection to address, if any.
func (m *Manager) Disconnect(address string) {
	m.l.Lock()
	c := m.find(address)
	m.l.Unlock()

	if c == nil {
		return
	}

	m.remove(c)
	c.Disconnect()

	m.logger.WithField("address", address).Info("disconnected from relay")
}

// DisconnectAll closes every connection.
func (m *Manager) DisconnectAll() {
	m.l.Lock()
	conns := m.connections
	m.connections = nil
	m.l.Unlock()

	for _, c := range conns {
		c.Disconnect()
	}
}

// Connections returns the current connections.
func (m *Manager) Connections() []*Connection {
	m.l.Lock()
	defer m.l.Unlock()
	return append([]*Connection{}, m.connections...)
}

// errNotConnected is returned when an address has no connection.
func errNotConnected(address string) error {
	return common.NewNetworkError("not connected to %s", address)
}

// Get returns the connection to address.
func (m *Manager) Get(address string) (*Connection, error) {
	m.l.Lock()
	defer m.l.Unlock()

	c := m.find(address)
	if c == nil {
		return nil, errNotConnected(address)
	}
	return c, nil
}

// SetStrategy replaces the sending strategy.
func (m *Manager) SetStrategy(s SendingStrategy) {
	m.l.Lock()
	defer m.l.Unlock()
	m.strategy = s
}

// SetRPCHandler sets the handler of the requests pushed by relays.
func (m *Manager) SetRPCHandler(h RPCHandler) {
	m.l.Lock()
	defer m.l.Unlock()
	m.rpcHandler = h
}

// AddReconnectionHandler registers h to be called after connections were
// re-established following a favorable network or foreground transition.
func (m *Manager) AddReconnectionHandler(h func()) {
	m.l.Lock()
	defer m.l.Unlock()
	m.reconnectionHandlers = append(m.reconnectionHandlers, h)
}

// SendPayload distributes req over the connections with the current
// strategy.
func (m *Manager) SendPayload(ctx context.Context, req *jsonrpc.Request) ([]*jsonrpc.ExtendedResponse, error) {
	m.l.Lock()
	senders := make([]PayloadSender, 0, len(m.connections))
	for _, c := range m.connections {
		senders = append(senders, c)
	}
	strategy := m.strategy
	m.l.Unlock()

	return strategy(ctx, req, senders)
}

// NotifyNetworkStatus reports the reachability of the network. Going online
// triggers a reconnection round.
func (m *Manager) NotifyNetworkStatus(online bool) {
	m.l.Lock()
	favorable := online && !m.online
	m.online = online
	m.l.Unlock()

	if favorable {
		m.reconnect()
	}
}

// NotifyForeground reports whether the application is in the foreground.
// Coming back to the foreground triggers a reconnection round.
func (m *Manager) NotifyForeground(active bool) {
	m.l.Lock()
	favorable := active && !m.foreground
	m.foreground = active
	m.l.Unlock()

	if favorable {
		m.reconnect()
	}
}

func (m *Manager) reconnect() {
	for _, c := range m.Connections() {
		if err := c.ReconnectIfNecessary(context.Background()); err != nil {
			m.logger.WithError(err).WithField("address", c.Address()).Warn("reconnection failed")
		}
	}

	m.l.Lock()
	handlers := append([]func(){}, m.reconnectionHandlers...)
	m.l.Unlock()

	for _, h := range handlers {
		h()
	}
}

func (m *Manager) handleRequest(req *jsonrpc.ExtendedRequest) {
	m.l.Lock()
	h := m.rpcHandler
	m.l.Unlock()

	if h == nil {
		m.logger.WithField("method", req.Method).Debug("no rpc handler set, dropping request")
		return
	}

	h(req)
}

// retire removes a dead connection.
func (m *Manager) retire(c *Connection) {
	if m.remove(c) {
		m.logger.WithField("address", c.Address()).Warn("retired dead connection")
	}
}

func (m *Manager) find(address string) *Connection {
	for _, c := range m.connections {
		if c.Address() == address {
			return c
		}
	}
	return nil
}

func (m *Manager) remove(c *Connection) bool {
	m.l.Lock()
	defer m.l.Unlock()

	for i, other := range m.connections {
		if other == c {
			m.connections = append(m.connections[:i], m.connections[i+1:]...)
			return true
		}
	}
	return false
}
