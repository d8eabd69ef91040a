package net

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/popstellar/popclient/src/jsonrpc"
)

// NewInmemAddr returns a new in-memory address with a randomly generated UUID.
func NewInmemAddr() string {
	return "inmem://" + generateUUID()
}

// generateUUID is used to generate a random UUID.
func generateUUID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Errorf("failed to read random bytes: %v", err))
	}

	return fmt.Sprintf("%08x-%04x-%04x-%04x-%12x",
		buf[0:4],
		buf[4:6],
		buf[6:8],
		buf[8:10],
		buf[10:16])
}

// InmemSocket is one end of an in-memory socket pair.
type InmemSocket struct {
	inbox chan []byte
	peer  *InmemSocket

	closeCh   chan struct{}
	closeOnce *sync.Once
}

// NewInmemSocketPair returns two connected sockets. Closing either closes
// both.
func NewInmemSocketPair() (*InmemSocket, *InmemSocket) {
	closeCh := make(chan struct{})
	once := &sync.Once{}

	a := &InmemSocket{inbox: make(chan []byte, 256), closeCh: closeCh, closeOnce: once}
	b := &InmemSocket{inbox: make(chan []byte, 256), closeCh: closeCh, closeOnce: once}
	a.peer = b
	b.peer = a

	return a, b
}

// ReadMessage implements the Socket interface.
func (s *InmemSocket) ReadMessage() ([]byte, error) {
	select {
	case data := <-s.inbox:
		return data, nil
	case <-s.closeCh:
		return nil, ErrSocketClosed
	}
}

// WriteMessage implements the Socket interface.
func (s *InmemSocket) WriteMessage(data []byte) error {
	buf := make([]byte, len(data))
	copy(buf, data)

	select {
	case <-s.closeCh:
		return ErrSocketClosed
	default:
	}

	select {
	case s.peer.inbox <- buf:
		return nil
	case <-s.closeCh:
		return ErrSocketClosed
	}
}

// Close implements the Socket interface.
func (s *InmemSocket) Close() error {
	s.closeOnce.Do(func() {
		close(s.closeCh)
	})
	return nil
}

// RelayHandler answers a request received by an InmemRelay. A nil response
// leaves the request unanswered.
type RelayHandler func(req *jsonrpc.Request) *jsonrpc.Response

// AcceptAll answers every request with a zero result, or an empty list of
// messages for catchup.
func AcceptAll(req *jsonrpc.Request) *jsonrpc.Response {
	if req.IsNotification() {
		return nil
	}

	var result interface{} = 0
	if req.Method == jsonrpc.Catchup {
		result = []interface{}{}
	}

	resp, _ := jsonrpc.NewResult(*req.ID, result)
	return resp
}

// InmemRelay is an in-memory relay used to exercise connections without a
// network.
type InmemRelay struct {
	l sync.Mutex

	address  string
	handler  RelayHandler
	refuse   bool
	sockets  []*InmemSocket
	received []*jsonrpc.Request
	raw      [][]byte
	dials    int
}

// NewInmemRelay creates a relay answering with AcceptAll.
func NewInmemRelay(address string) *InmemRelay {
	if address == "" {
		address = NewInmemAddr()
	}

	return &InmemRelay{
		address: address,
		handler: AcceptAll,
	}
}

// Address returns the address the relay is reachable at.
func (r *InmemRelay) Address() string {
	return r.address
}

// SetHandler replaces the request handler.
func (r *InmemRelay) SetHandler(h RelayHandler) {
	r.l.Lock()
	defer r.l.Unlock()
	r.handler = h
}

// Refuse makes subsequent dials fail while refuse is true.
func (r *InmemRelay) Refuse(refuse bool) {
	r.l.Lock()
	defer r.l.Unlock()
	r.refuse = refuse
}

// Push sends a raw frame to every connected client.
func (r *InmemRelay) Push(data []byte) {
	r.l.Lock()
	sockets := append([]*InmemSocket{}, r.sockets...)
	r.l.Unlock()

	for _, s := range sockets {
		s.WriteMessage(data)
	}
}

// DropConnections closes the sockets of every connected client.
func (r *InmemRelay) DropConnections() {
	r.l.Lock()
	sockets := r.sockets
	r.sockets = nil
	r.l.Unlock()

	for _, s := range sockets {
		s.Close()
	}
}

// Received returns the well-formed requests received so far.
func (r *InmemRelay) Received() []*jsonrpc.Request {
	r.l.Lock()
	defer r.l.Unlock()
	return append([]*jsonrpc.Request{}, r.received...)
}

// RawReceived returns every frame received so far.
func (r *InmemRelay) RawReceived() [][]byte {
	r.l.Lock()
	defer r.l.Unlock()
	return append([][]byte{}, r.raw...)
}

// Dials returns the number of dial attempts.
func (r *InmemRelay) Dials() int {
	r.l.Lock()
	defer r.l.Unlock()
	return r.dials
}

func (r *InmemRelay) accept() (Socket, error) {
	r.l.Lock()
	defer r.l.Unlock()

	r.dials++

	if r.refuse {
		return nil, fmt.Errorf("relay %s refused the connection", r.address)
	}

	client, server := NewInmemSocketPair()
	r.sockets = append(r.sockets, server)

	go r.serve(server)

	return client, nil
}

func (r *InmemRelay) serve(s *InmemSocket) {
	for {
		data, err := s.ReadMessage()
		if err != nil {
			return
		}

		req, _, err := jsonrpc.ParseFrame(data)

		r.l.Lock()
		r.raw = append(r.raw, data)
		if err == nil && req != nil {
			r.received = append(r.received, req)
		}
		handler := r.handler
		r.l.Unlock()

		if err != nil || req == nil {
			continue
		}

		resp := handler(req)
		if resp == nil {
			continue
		}

		out, err := resp.Marshal()
		if err != nil {
			continue
		}
		s.WriteMessage(out)
	}
}

// InmemDialer dials InmemRelays by address.
type InmemDialer struct {
	l      sync.Mutex
	relays map[string]*InmemRelay
}

// NewInmemDialer creates an InmemDialer serving the given relays.
func NewInmemDialer(relays ...*InmemRelay) *InmemDialer {
	d := &InmemDialer{relays: make(map[string]*InmemRelay)}
	for _, r := range relays {
		d.AddRelay(r)
	}
	return d
}

// AddRelay makes r reachable.
func (d *InmemDialer) AddRelay(r *InmemRelay) {
	d.l.Lock()
	defer d.l.Unlock()
	d.relays[r.address] = r
}

// Dial implements the Dialer interface.
func (d *InmemDialer) Dial(ctx context.Context, address string) (Socket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.l.Lock()
	r, ok := d.relays[address]
	d.l.Unlock()

	if !ok {
		return nil, fmt.Errorf("no relay at %s", address)
	}

	return r.accept()
}
