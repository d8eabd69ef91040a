package net

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/popstellar/popclient/src/common"
	"github.com/popstellar/popclient/src/jsonrpc"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, conf *Config, relays ...*InmemRelay) *Manager {
	m := NewManager(NewInmemDialer(relays...), conf, SendToAll, common.NewTestEntry(t, common.TestLogLevel))
	t.Cleanup(m.DisconnectAll)
	return m
}

func TestManagerConnectDeduplicates(t *testing.T) {
	relay := NewInmemRelay("")
	m := newTestManager(t, testConfig(), relay)

	c1, err := m.Connect(context.Background(), relay.Address())
	require.NoError(t, err)

	c2, err := m.Connect(context.Background(), relay.Address())
	require.NoError(t, err)

	require.Same(t, c1, c2)
	require.Len(t, m.Connections(), 1)
	require.Equal(t, 1, relay.Dials())

	got, err := m.Get(relay.Address())
	require.NoError(t, err)
	require.Same(t, c1, got)
}

func TestManagerConnectFailure(t *testing.T) {
	relay := NewInmemRelay("")
	relay.Refuse(true)

	conf := testConfig()
	conf.ReadyMaxAttempts = 5
	conf.MaxReconnectAttempts = 1000

	m := newTestManager(t, conf, relay)

	_, err := m.Connect(context.Background(), relay.Address())
	require.True(t, common.IsNetwork(err))
	require.Empty(t, m.Connections())

	_, err = m.Get(relay.Address())
	require.True(t, common.IsNetwork(err))
}

func TestManagerConnectKeepsRecoveringConnection(t *testing.T) {
	relay := NewInmemRelay("")

	var calls int32
	relay.SetHandler(func(req *jsonrpc.Request) *jsonrpc.Response {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil
		}
		return AcceptAll(req)
	})

	conf := testConfig()
	conf.MessageTimeout = 2 * time.Second
	conf.ReadyMaxAttempts = 5
	conf.ConnectTimeout = 100 * time.Millisecond
	conf.MaxReconnectAttempts = 20

	m := newTestManager(t, conf, relay)

	c, err := m.Connect(context.Background(), relay.Address())
	require.NoError(t, err)

	resCh := make(chan error, 1)
	go func() {
		_, err := c.SendPayload(context.Background(), jsonrpc.NewSubscribe("/root/lao"))
		resCh <- err
	}()

	require.Eventually(t, func() bool { return len(relay.Received()) == 1 }, time.Second, 5*time.Millisecond)

	relay.Refuse(true)
	relay.DropConnections()

	// the existing connection is between reconnection attempts
	_, err = m.Connect(context.Background(), relay.Address())
	require.True(t, common.IsNetwork(err))

	got, err := m.Get(relay.Address())
	require.NoError(t, err)
	require.Same(t, c, got)

	relay.Refuse(false)

	select {
	case err := <-resCh:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("in-flight request not completed after the relay came back")
	}

	require.Equal(t, Open, c.State())
	require.Len(t, m.Connections(), 1)
}

func TestManagerSendPayload(t *testing.T) {
	r1 := NewInmemRelay("")
	r2 := NewInmemRelay("")
	m := newTestManager(t, testConfig(), r1, r2)

	// empty pool
	_, err := m.SendPayload(context.Background(), jsonrpc.NewSubscribe("/root"))
	require.True(t, common.IsNetwork(err))

	_, err = m.Connect(context.Background(), r1.Address())
	require.NoError(t, err)
	_, err = m.Connect(context.Background(), r2.Address())
	require.NoError(t, err)

	resps, err := m.SendPayload(context.Background(), jsonrpc.NewSubscribe("/root"))
	require.NoError(t, err)
	require.Len(t, resps, 2)
	require.Equal(t, r1.Address(), resps[0].ReceivedFrom)
	require.Equal(t, r2.Address(), resps[1].ReceivedFrom)

	m.SetStrategy(SendToFirstOnly)

	resps, err = m.SendPayload(context.Background(), jsonrpc.NewSubscribe("/root"))
	require.NoError(t, err)
	require.Len(t, resps, 1)
	require.Len(t, r1.Received(), 2)
	require.Len(t, r2.Received(), 1)
}

func TestManagerFirstSuccessFailover(t *testing.T) {
	r1 := NewInmemRelay("")
	r1.SetHandler(func(req *jsonrpc.Request) *jsonrpc.Response {
		return jsonrpc.NewErrorResponse(*req.ID, jsonrpc.InternalServerErrorCode, "boom")
	})
	r2 := NewInmemRelay("")

	m := newTestManager(t, testConfig(), r1, r2)
	m.SetStrategy(SendToFirstSuccess)

	_, err := m.Connect(context.Background(), r1.Address())
	require.NoError(t, err)
	_, err = m.Connect(context.Background(), r2.Address())
	require.NoError(t, err)

	resps, err := m.SendPayload(context.Background(), jsonrpc.NewCatchup("/root"))
	require.NoError(t, err)
	require.Len(t, resps, 1)
	require.Equal(t, r2.Address(), resps[0].ReceivedFrom)

	require.Len(t, r1.Received(), 1)
	require.Len(t, r2.Received(), 1)
}

func TestManagerDisconnect(t *testing.T) {
	r1 := NewInmemRelay("")
	r2 := NewInmemRelay("")
	m := newTestManager(t, testConfig(), r1, r2)

	c1, err := m.Connect(context.Background(), r1.Address())
	require.NoError(t, err)
	_, err = m.Connect(context.Background(), r2.Address())
	require.NoError(t, err)

	m.Disconnect(r1.Address())
	require.Len(t, m.Connections(), 1)
	require.Equal(t, Closed, c1.State())

	// unknown address
	m.Disconnect("inmem://nowhere")

	m.DisconnectAll()
	require.Empty(t, m.Connections())
}

func TestManagerRetiresDeadConnections(t *testing.T) {
	relay := NewInmemRelay("")

	conf := testConfig()
	conf.MaxReconnectAttempts = 1

	m := newTestManager(t, conf, relay)

	_, err := m.Connect(context.Background(), relay.Address())
	require.NoError(t, err)

	relay.Refuse(true)
	relay.DropConnections()

	require.Eventually(t, func() bool { return len(m.Connections()) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestManagerRPCHandler(t *testing.T) {
	relay := NewInmemRelay("")
	m := newTestManager(t, testConfig(), relay)

	got := make(chan *jsonrpc.ExtendedRequest, 1)
	m.SetRPCHandler(func(r *jsonrpc.ExtendedRequest) { got <- r })

	_, err := m.Connect(context.Background(), relay.Address())
	require.NoError(t, err)

	frame := `{"jsonrpc":"2.0","method":"broadcast","params":{"channel":"/root/lao","message":{"data":"eA==","sender":"eQ==","signature":"eg==","message_id":"dw==","witness_signatures":[]}}}`
	relay.Push([]byte(frame))

	select {
	case r := <-got:
		require.Equal(t, relay.Address(), r.ReceivedFrom)
	case <-time.After(time.Second):
		t.Fatal("broadcast not delivered")
	}
}

func TestManagerReconnectionHandlers(t *testing.T) {
	relay := NewInmemRelay("")

	conf := testConfig()
	conf.ConnectTimeout = time.Second

	m := newTestManager(t, conf, relay)

	c, err := m.Connect(context.Background(), relay.Address())
	require.NoError(t, err)

	var calls int32
	m.AddReconnectionHandler(func() { atomic.AddInt32(&calls, 1) })

	// already online: no transition
	m.NotifyNetworkStatus(true)
	require.Equal(t, int32(0), atomic.LoadInt32(&calls))

	relay.DropConnections()
	require.Eventually(t, func() bool { return c.State() == Closed }, time.Second, 5*time.Millisecond)

	m.NotifyNetworkStatus(false)
	require.Equal(t, int32(0), atomic.LoadInt32(&calls))

	m.NotifyNetworkStatus(true)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
	require.Equal(t, Open, c.State())

	m.NotifyForeground(false)
	m.NotifyForeground(true)
	require.Equal(t, int32(2), atomic.LoadInt32(&calls))
}
