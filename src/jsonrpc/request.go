package jsonrpc

import (
	"encoding/json"

	"github.com/popstellar/popclient/src/common"
	"github.com/popstellar/popclient/src/message"
)

// Version is the only supported JSON-RPC version.
const Version = "2.0"

// Method names a request type.
type Method string

const (
	Subscribe   Method = "subscribe"
	Unsubscribe Method = "unsubscribe"
	Publish     Method = "publish"
	Catchup     Method = "catchup"
	Broadcast   Method = "broadcast"
)

// Valid reports whether m is a known method.
func (m Method) Valid() bool {
	switch m {
	case Subscribe, Unsubscribe, Publish, Catchup, Broadcast:
		return true
	}
	return false
}

// Params are the parameters of every request. Message is only set for publish
// and broadcast.
type Params struct {
	Channel message.Channel `json:"channel"`
	Message *message.Wire   `json:"message,omitempty"`
}

// Request is a JSON-RPC request, or a notification when ID is nil.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  Method `json:"method"`
	Params  Params `json:"params"`
	ID      *int   `json:"id,omitempty"`
}

func newRequest(method Method, channel message.Channel, env *message.Envelope) *Request {
	r := &Request{
		JSONRPC: Version,
		Method:  method,
		Params:  Params{Channel: channel},
	}

	if env != nil {
		w := env.Wire()
		r.Params.Message = &w
	}

	return r
}

// NewSubscribe builds a subscribe request.
func NewSubscribe(channel message.Channel) *Request {
	return newRequest(Subscribe, channel, nil)
}

// NewUnsubscribe builds an unsubscribe request.
func NewUnsubscribe(channel message.Channel) *Request {
	return newRequest(Unsubscribe, channel, nil)
}

// NewCatchup builds a catchup request.
func NewCatchup(channel message.Channel) *Request {
	return newRequest(Catchup, channel, nil)
}

// NewPublish builds a publish request.
func NewPublish(channel message.Channel, env *message.Envelope) *Request {
	return newRequest(Publish, channel, env)
}

// NewBroadcast builds a broadcast notification.
func NewBroadcast(channel message.Channel, env *message.Envelope) *Request {
	return newRequest(Broadcast, channel, env)
}

// WithID returns a copy of the request carrying id.
func (r *Request) WithID(id int) *Request {
	c := *r
	c.ID = &id
	return &c
}

// IsNotification reports whether the request expects no response.
func (r *Request) IsNotification() bool {
	return r.ID == nil
}

// Envelope reconstructs the envelope carried by the request.
func (r *Request) Envelope() (*message.Envelope, error) {
	if r.Params.Message == nil {
		return nil, common.NewProtocolError("%s request carries no message", r.Method)
	}
	return message.Reconstruct(*r.Params.Message, r.Params.Channel)
}

// Validate checks the request is well formed.
func (r *Request) Validate() error {
	if r.JSONRPC != Version {
		return common.NewProtocolError("unsupported jsonrpc version %q", r.JSONRPC)
	}

	if !r.Method.Valid() {
		return common.NewProtocolError("unknown method %q", r.Method)
	}

	if err := r.Params.Channel.Validate(); err != nil {
		return err
	}

	switch r.Method {
	case Publish, Broadcast:
		if r.Params.Message == nil {
			return common.NewProtocolError("%s request carries no message", r.Method)
		}
	}

	if r.Method == Broadcast && r.ID != nil {
		return common.NewProtocolError("broadcast must not carry an id")
	}

	if r.Method != Broadcast && r.ID == nil {
		return common.NewProtocolError("%s request carries no id", r.Method)
	}

	return nil
}

// Marshal returns the JSON encoding of the request.
func (r *Request) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

// ExtendedRequest is an inbound request tagged with the relay it came from.
type ExtendedRequest struct {
	*Request
	ReceivedFrom string
}
