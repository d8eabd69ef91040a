package net

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	// maximum size of an inbound frame
	maxMessageSize = 1 << 20

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// WebsocketDialer opens websocket connections to relays.
type WebsocketDialer struct {
	dialer *websocket.Dialer
	logger *logrus.Entry
}

// NewWebsocketDialer creates a WebsocketDialer.
func NewWebsocketDialer(logger *logrus.Entry) *WebsocketDialer {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	return &WebsocketDialer{
		dialer: &websocket.Dialer{
			HandshakeTimeout: DefaultDialTimeout,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
		},
		logger: logger,
	}
}

// Dial implements the Dialer interface. address is a ws:// or wss:// URL.
func (d *WebsocketDialer) Dial(ctx context.Context, address string) (Socket, error) {
	conn, _, err := d.dialer.DialContext(ctx, address, nil)
	if err != nil {
		return nil, err
	}

	return newWebsocketSocket(conn, d.logger.WithField("address", address)), nil
}

// websocketSocket adapts a websocket connection to the Socket interface and
// keeps it alive with pings.
type websocketSocket struct {
	conn   *websocket.Conn
	logger *logrus.Entry

	closeOnce  sync.Once
	shutdownCh chan struct{}
}

func newWebsocketSocket(conn *websocket.Conn, logger *logrus.Entry) *websocketSocket {
	s := &websocketSocket{
		conn:       conn,
		logger:     logger,
		shutdownCh: make(chan struct{}),
	}

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go s.pingLoop()

	return s
}

func (s *websocketSocket) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			if err != nil {
				s.logger.WithError(err).Debug("ping failed")
				return
			}
		case <-s.shutdownCh:
			return
		}
	}
}

// ReadMessage implements the Socket interface.
func (s *websocketSocket) ReadMessage() ([]byte, error) {
	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			return nil, err
		}

		if msgType == websocket.TextMessage || msgType == websocket.BinaryMessage {
			return data, nil
		}
	}
}

// WriteMessage implements the Socket interface.
func (s *websocketSocket) WriteMessage(data []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// Close implements the Socket interface. It attempts a clean close handshake
// before closing the underlying connection.
func (s *websocketSocket) Close() error {
	var err error

	s.closeOnce.Do(func() {
		close(s.shutdownCh)

		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))

		err = s.conn.Close()
	})

	return err
}
