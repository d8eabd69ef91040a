package client

import (
	"github.com/popstellar/popclient/src/jsonrpc"
	"github.com/popstellar/popclient/src/message"
)

// EnvelopeIterator walks the envelopes of catchup responses. It is finite and
// cannot be restarted. Iteration stops at the first envelope that fails
// validation, which is then reported by Err, unless SkipInvalid was called.
type EnvelopeIterator struct {
	channel   message.Channel
	responses []*jsonrpc.ExtendedResponse
	onInvalid func(from string, err error)

	from  string
	wires []message.Wire
	next  int

	current *message.ExtendedEnvelope
	err     error
}

func newEnvelopeIterator(channel message.Channel, responses []*jsonrpc.ExtendedResponse) *EnvelopeIterator {
	return &EnvelopeIterator{
		channel:   channel,
		responses: responses,
	}
}

// SkipInvalid makes the iterator pass over the responses and envelopes that
// fail validation instead of stopping. Each of them is reported to f with the
// address of the relay it came from.
func (it *EnvelopeIterator) SkipInvalid(f func(from string, err error)) *EnvelopeIterator {
	it.onInvalid = f
	return it
}

// Next advances to the next envelope. It returns false when the envelopes are
// exhausted or an error occurred.
func (it *EnvelopeIterator) Next() bool {
	if it.err != nil {
		return false
	}

	for {
		for it.next >= len(it.wires) {
			if len(it.responses) == 0 {
				it.current = nil
				return false
			}

			resp := it.responses[0]
			it.responses = it.responses[1:]

			wires, err := resp.Messages()
			if err != nil {
				if it.invalid(resp.ReceivedFrom, err) {
					continue
				}
				return false
			}

			it.from = resp.ReceivedFrom
			it.wires = wires
			it.next = 0
		}

		w := it.wires[it.next]
		it.next++

		env, err := message.Reconstruct(w, it.channel)
		if err != nil {
			if it.invalid(it.from, err) {
				continue
			}
			return false
		}

		it.current = message.NewExtendedEnvelope(env, it.from)
		return true
	}
}

// invalid reports whether iteration goes on past err.
func (it *EnvelopeIterator) invalid(from string, err error) bool {
	if it.onInvalid == nil {
		it.fail(err)
		return false
	}

	it.onInvalid(from, err)
	return true
}

func (it *EnvelopeIterator) fail(err error) {
	it.err = err
	it.current = nil
	it.responses = nil
	it.wires = nil
}

// Envelope returns the current envelope.
func (it *EnvelopeIterator) Envelope() *message.ExtendedEnvelope {
	return it.current
}

// Err returns the error that stopped the iteration, if any.
func (it *EnvelopeIterator) Err() error {
	return it.err
}

// All drains the iterator.
func (it *EnvelopeIterator) All() ([]*message.ExtendedEnvelope, error) {
	var res []*message.ExtendedEnvelope
	for it.Next() {
		res = append(res, it.Envelope())
	}
	return res, it.Err()
}
