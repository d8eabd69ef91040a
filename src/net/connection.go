package net

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/popstellar/popclient/src/common"
	"github.com/popstellar/popclient/src/jsonrpc"
	"github.com/sirupsen/logrus"
)

// rpcResult captures both a response and a potential error.
type rpcResult struct {
	resp *jsonrpc.ExtendedResponse
	err  error
}

// pendingRPC is an in-flight request awaiting its response.
type pendingRPC struct {
	id     int
	seq    uint64
	raw    []byte
	respCh chan rpcResult
	timer  *time.Timer
}

type sendOp struct {
	req    *jsonrpc.Request
	respCh chan rpcResult
}

type dialResult struct {
	attempt uint64
	sock    Socket
	err     error
}

type frameEvent struct {
	gen uint64
	raw []byte
}

type closedEvent struct {
	gen uint64
	err error
}

type timeoutEvent struct {
	id  int
	seq uint64
}

// Connection owns the socket to one relay. It correlates requests with their
// responses, expires requests that are never answered, and reconnects when
// the socket breaks unexpectedly.
//
// All the mutable state (socket, pending requests, id allocator) belongs to a
// single goroutine, the run loop. Other goroutines talk to it through
// channels.
type Connection struct {
	stateHolder

	address string
	dialer  Dialer
	conf    *Config
	logger  *logrus.Entry

	onRequest func(*jsonrpc.ExtendedRequest)
	onDeath   func(*Connection)

	sendCh      chan *sendOp
	dialCh      chan dialResult
	frameCh     chan frameEvent
	closedCh    chan closedEvent
	timeoutCh   chan timeoutEvent
	retryCh     chan uint64
	reconnectCh chan chan error
	waitCh      chan chan error
	shutdownCh  chan struct{}
	doneCh      chan struct{}

	shutdownOnce sync.Once
	dead         int32

	inbox *requestInbox

	// run loop state
	sock       Socket
	gen        uint64
	attempt    uint64
	dialing    bool
	retries    int
	pending    map[int]*pendingRPC
	tombstones map[int]time.Time
	lastID     int
	seq        uint64
	waiters    []chan error
}

// NewConnection creates a Connection to address and starts dialing it.
// onRequest receives the requests pushed by the relay; onDeath is called once
// if the connection breaks beyond recovery. Both may be nil.
func NewConnection(
	address string,
	dialer Dialer,
	conf *Config,
	onRequest func(*jsonrpc.ExtendedRequest),
	onDeath func(*Connection),
	logger *logrus.Entry,
) *Connection {

	if conf == nil {
		conf = DefaultConfig()
	}

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	c := &Connection{
		address:     address,
		dialer:      dialer,
		conf:        conf,
		logger:      logger.WithField("address", address),
		onRequest:   onRequest,
		onDeath:     onDeath,
		sendCh:      make(chan *sendOp),
		dialCh:      make(chan dialResult),
		frameCh:     make(chan frameEvent),
		closedCh:    make(chan closedEvent),
		timeoutCh:   make(chan timeoutEvent),
		retryCh:     make(chan uint64),
		reconnectCh: make(chan chan error),
		waitCh:      make(chan chan error),
		shutdownCh:  make(chan struct{}),
		doneCh:      make(chan struct{}),
		pending:     make(map[int]*pendingRPC),
		tombstones:  make(map[int]time.Time),
	}

	c.inbox = newRequestInbox(c.deliver, c.doneCh)

	c.setState(Connecting)
	c.dial()

	go c.inbox.run()
	go c.run()

	return c
}

// Address returns the address of the relay.
func (c *Connection) Address() string {
	return c.address
}

// State returns the current state of the transport.
func (c *Connection) State() State {
	return c.getState()
}

// IsDead reports whether the connection broke beyond recovery.
func (c *Connection) IsDead() bool {
	return atomic.LoadInt32(&c.dead) == 1
}

// SendPayload transmits req and waits for its response. If the socket is not
// open yet, it polls for readiness a bounded number of times first. The
// returned error is a NetworkError, an RPCOperationError, or the context's
// error.
func (c *Connection) SendPayload(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.ExtendedResponse, error) {
	if err := c.waitReady(ctx); err != nil {
		return nil, err
	}

	op := &sendOp{
		req:    req,
		respCh: make(chan rpcResult, 1),
	}

	select {
	case c.sendCh <- op:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.doneCh:
		return nil, c.closedError()
	}

	select {
	case res := <-op.respCh:
		return res.resp, res.err
	case <-ctx.Done():
		// the pending entry is still evicted by its timeout
		return nil, ctx.Err()
	}
}

func (c *Connection) waitReady(ctx context.Context) error {
	for attempt := 0; c.getState() != Open; attempt++ {
		if c.isDone() {
			return c.closedError()
		}

		if attempt >= c.conf.ReadyMaxAttempts {
			return common.NewNetworkError("connection to %s never became ready", c.address)
		}

		c.logger.WithField("attempt", attempt).Debug("waiting for connection to open")

		select {
		case <-time.After(c.conf.ReadyInterval):
		case <-ctx.Done():
			return ctx.Err()
		case <-c.doneCh:
			return c.closedError()
		}
	}

	return nil
}

// WaitOpen blocks until the socket is open, the connection dies, or ctx is
// done.
func (c *Connection) WaitOpen(ctx context.Context) error {
	ch := make(chan error, 1)

	select {
	case c.waitCh <- ch:
	case <-ctx.Done():
		return common.NewNetworkError("connection to %s did not open: %v", c.address, ctx.Err())
	case <-c.doneCh:
		return c.closedError()
	}

	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return common.NewNetworkError("connection to %s did not open: %v", c.address, ctx.Err())
	}
}

// ReconnectIfNecessary re-establishes the socket if it is neither open nor
// being established, keeping the address. It waits at most ConnectTimeout
// for the new socket to open.
func (c *Connection) ReconnectIfNecessary(ctx context.Context) error {
	switch c.getState() {
	case Open, Connecting:
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.conf.ConnectTimeout)
	defer cancel()

	ch := make(chan error, 1)

	select {
	case c.reconnectCh <- ch:
	case <-ctx.Done():
		return common.NewNetworkError("reconnection to %s timed out", c.address)
	case <-c.doneCh:
		return c.closedError()
	}

	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return common.NewNetworkError("reconnection to %s timed out", c.address)
	}
}

// Disconnect closes the socket on purpose and stops the connection. Pending
// requests fail with a NetworkError.
func (c *Connection) Disconnect() {
	c.shutdownOnce.Do(func() {
		close(c.shutdownCh)
	})
	<-c.doneCh
}

func (c *Connection) isDone() bool {
	select {
	case <-c.doneCh:
		return true
	default:
		return false
	}
}

func (c *Connection) closedError() error {
	if c.IsDead() {
		return common.NewNetworkError("connection to %s broke for good", c.address)
	}
	return common.NewNetworkError("connection to %s is closed", c.address)
}

/*******************************************************************************
Run loop
*******************************************************************************/

func (c *Connection) run() {
	defer close(c.doneCh)

	for {
		select {
		case op := <-c.sendCh:
			c.processSend(op)
		case res := <-c.dialCh:
			if stop := c.processDial(res); stop {
				return
			}
		case ev := <-c.frameCh:
			c.processFrame(ev.raw)
		case ev := <-c.closedCh:
			if stop := c.processClosed(ev); stop {
				return
			}
		case ev := <-c.timeoutCh:
			c.processTimeout(ev)
		case attempt := <-c.retryCh:
			if attempt == c.attempt && c.sock == nil && !c.dialing {
				c.dial()
			}
		case ch := <-c.reconnectCh:
			c.processReconnect(ch)
		case ch := <-c.waitCh:
			if c.getState() == Open {
				ch <- nil
			} else {
				c.waiters = append(c.waiters, ch)
			}
		case <-c.shutdownCh:
			c.shutdown()
			return
		}
	}
}

func (c *Connection) dial() {
	c.attempt++
	c.dialing = true
	c.setState(Connecting)

	attempt := c.attempt

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.conf.DialTimeout)
		defer cancel()

		sock, err := c.dialer.Dial(ctx, c.address)

		select {
		case c.dialCh <- dialResult{attempt: attempt, sock: sock, err: err}:
		case <-c.doneCh:
			if sock != nil {
				sock.Close()
			}
		}
	}()
}

func (c *Connection) processDial(res dialResult) bool {
	if res.attempt != c.attempt {
		if res.sock != nil {
			res.sock.Close()
		}
		return false
	}

	c.dialing = false

	if res.err != nil {
		c.logger.WithError(res.err).Debug("dial failed")
		return c.scheduleRetry()
	}

	c.gen++
	c.sock = res.sock
	c.retries = 0
	c.setState(Open)

	c.logger.Debug("connection open")

	go c.readLoop(res.sock, c.gen)

	c.resendPending()

	for _, w := range c.waiters {
		w <- nil
	}
	c.waiters = nil

	return false
}

func (c *Connection) readLoop(sock Socket, gen uint64) {
	for {
		raw, err := sock.ReadMessage()
		if err != nil {
			select {
			case c.closedCh <- closedEvent{gen: gen, err: err}:
			case <-c.doneCh:
			}
			return
		}

		select {
		case c.frameCh <- frameEvent{gen: gen, raw: raw}:
		case <-c.doneCh:
			return
		}
	}
}

func (c *Connection) processClosed(ev closedEvent) bool {
	if ev.gen != c.gen || c.sock == nil {
		return false
	}

	c.logger.WithError(ev.err).Debug("socket closed")

	c.sock.Close()
	c.sock = nil

	return c.scheduleRetry()
}

// scheduleRetry plans the next reconnection attempt, or declares the
// connection dead once the attempts are exhausted.
func (c *Connection) scheduleRetry() bool {
	c.setState(Closed)

	if c.retries >= c.conf.MaxReconnectAttempts {
		c.die()
		return true
	}

	c.retries++

	c.logger.WithFields(logrus.Fields{
		"retry": c.retries,
		"max":   c.conf.MaxReconnectAttempts,
	}).Debug("scheduling reconnection")

	attempt := c.attempt
	time.AfterFunc(c.conf.ConnectTimeout, func() {
		select {
		case c.retryCh <- attempt:
		case <-c.doneCh:
		}
	})

	return false
}

func (c *Connection) processReconnect(ch chan error) {
	switch c.getState() {
	case Open:
		ch <- nil
		return
	case Connecting:
		c.waiters = append(c.waiters, ch)
		return
	}

	if c.sock != nil {
		c.sock.Close()
		c.sock = nil
	}

	c.retries = 0
	c.waiters = append(c.waiters, ch)
	c.dial()
}

func (c *Connection) die() {
	c.logger.Error("connection broke for good")

	atomic.StoreInt32(&c.dead, 1)
	c.setState(Closed)

	c.rejectAll(common.NewNetworkError("connection to %s broke for good", c.address))

	if c.onDeath != nil {
		go c.onDeath(c)
	}
}

func (c *Connection) shutdown() {
	c.setState(Closing)

	if c.sock != nil {
		c.sock.Close()
		c.sock = nil
	}

	c.rejectAll(common.NewNetworkError("connection to %s was closed", c.address))

	c.setState(Closed)

	c.logger.Debug("connection closed")
}

func (c *Connection) rejectAll(err error) {
	for id, p := range c.pending {
		p.timer.Stop()
		p.respCh <- rpcResult{err: err}
		delete(c.pending, id)
	}

	for _, w := range c.waiters {
		w <- err
	}
	c.waiters = nil
}

/*******************************************************************************
Requests and responses
*******************************************************************************/

// nextID returns the next free request id, skipping ids that are pending or
// whose request timed out recently.
func (c *Connection) nextID() (int, bool) {
	now := time.Now()
	candidate := c.lastID

	for i := 1; i < c.conf.IDWrapAround; i++ {
		candidate++
		if candidate >= c.conf.IDWrapAround {
			candidate = 1
		}

		if _, ok := c.pending[candidate]; ok {
			continue
		}

		if expiry, ok := c.tombstones[candidate]; ok {
			if now.Before(expiry) {
				continue
			}
			delete(c.tombstones, candidate)
		}

		c.lastID = candidate
		return candidate, true
	}

	return 0, false
}

func (c *Connection) processSend(op *sendOp) {
	id, ok := c.nextID()
	if !ok {
		op.respCh <- rpcResult{err: common.NewNetworkError("no request id available on %s", c.address)}
		return
	}

	raw, err := op.req.WithID(id).Marshal()
	if err != nil {
		op.respCh <- rpcResult{err: common.NewProtocolError("failed to encode request: %v", err)}
		return
	}

	p := &pendingRPC{
		id:     id,
		raw:    raw,
		respCh: op.respCh,
	}
	c.armTimer(p)
	c.pending[id] = p

	c.logger.WithFields(logrus.Fields{
		"id":     id,
		"method": op.req.Method,
	}).Debug("sending request")

	c.write(p)
}

func (c *Connection) armTimer(p *pendingRPC) {
	if p.timer != nil {
		p.timer.Stop()
	}

	c.seq++
	ev := timeoutEvent{id: p.id, seq: c.seq}
	p.seq = c.seq

	p.timer = time.AfterFunc(c.conf.MessageTimeout, func() {
		select {
		case c.timeoutCh <- ev:
		case <-c.doneCh:
		}
	})
}

func (c *Connection) write(p *pendingRPC) {
	if c.sock == nil {
		// sent when the socket reopens
		return
	}

	if err := c.sock.WriteMessage(p.raw); err != nil {
		c.logger.WithError(err).WithField("id", p.id).Debug("write failed")
	}
}

func (c *Connection) resendPending() {
	if len(c.pending) == 0 {
		return
	}

	c.logger.WithField("count", len(c.pending)).Debug("resending pending requests")

	for _, p := range c.pending {
		c.armTimer(p)
		c.write(p)
	}
}

func (c *Connection) processTimeout(ev timeoutEvent) {
	p, ok := c.pending[ev.id]
	if !ok || p.seq != ev.seq {
		return
	}

	delete(c.pending, ev.id)
	c.tombstones[ev.id] = time.Now().Add(2 * c.conf.MessageTimeout)

	c.logger.WithField("id", ev.id).Warn("request timed out")

	p.respCh <- rpcResult{err: common.NewNetworkError("timeout waiting for response %d from %s", ev.id, c.address)}
}

func (c *Connection) processFrame(raw []byte) {
	req, resp, err := jsonrpc.ParseFrame(raw)
	if err != nil {
		c.logger.WithError(err).Warn("dropping malformed frame")
		return
	}

	if req != nil {
		c.inbox.push(&jsonrpc.ExtendedRequest{Request: req, ReceivedFrom: c.address})
		return
	}

	id := *resp.ID

	p, ok := c.pending[id]
	if !ok {
		if _, late := c.tombstones[id]; late {
			delete(c.tombstones, id)
			c.logger.WithField("id", id).Debug("dropping late response")
		} else {
			c.logger.WithField("id", id).Warn("dropping response to unknown request")
		}
		return
	}

	p.timer.Stop()
	delete(c.pending, id)

	if resp.Error != nil {
		p.respCh <- rpcResult{err: resp.Error.OperationError()}
		return
	}

	p.respCh <- rpcResult{resp: &jsonrpc.ExtendedResponse{Response: resp, ReceivedFrom: c.address}}
}

func (c *Connection) deliver(req *jsonrpc.ExtendedRequest) {
	if c.onRequest == nil {
		c.logger.WithField("method", req.Method).Debug("no handler for request")
		return
	}
	c.onRequest(req)
}

// requestInbox is an unbounded FIFO between the run loop and the request
// handler, so that a handler sending requests of its own never blocks the run
// loop.
type requestInbox struct {
	l       sync.Mutex
	queue   []*jsonrpc.ExtendedRequest
	signal  chan struct{}
	handler func(*jsonrpc.ExtendedRequest)
	doneCh  <-chan struct{}
}

func newRequestInbox(handler func(*jsonrpc.ExtendedRequest), doneCh <-chan struct{}) *requestInbox {
	return &requestInbox{
		signal:  make(chan struct{}, 1),
		handler: handler,
		doneCh:  doneCh,
	}
}

func (i *requestInbox) push(req *jsonrpc.ExtendedRequest) {
	i.l.Lock()
	i.queue = append(i.queue, req)
	i.l.Unlock()

	select {
	case i.signal <- struct{}{}:
	default:
	}
}

func (i *requestInbox) run() {
	for {
		select {
		case <-i.signal:
		case <-i.doneCh:
			return
		}

		for {
			i.l.Lock()
			if len(i.queue) == 0 {
				i.l.Unlock()
				break
			}
			req := i.queue[0]
			i.queue = i.queue[1:]
			i.l.Unlock()

			i.handler(req)
		}
	}
}
