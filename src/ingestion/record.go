package ingestion

import (
	"bytes"
	"time"

	"github.com/popstellar/popclient/src/message"
	"github.com/ugorji/go/codec"
)

// Record is the persisted form of an extended envelope.
type Record struct {
	Seq          uint64       `codec:"seq"`
	Message      message.Wire `codec:"message"`
	Channel      string       `codec:"channel"`
	ReceivedAt   int64        `codec:"received_at"`
	ProcessedAt  int64        `codec:"processed_at"`
	ReceivedFrom string       `codec:"received_from"`
}

// NewRecord captures the state of msg.
func NewRecord(seq uint64, msg *message.ExtendedEnvelope) *Record {
	r := &Record{
		Seq:          seq,
		Message:      msg.Wire(),
		Channel:      string(msg.Channel()),
		ReceivedAt:   msg.ReceivedAt.UnixNano(),
		ReceivedFrom: msg.ReceivedFrom,
	}

	if msg.ProcessedAt != nil {
		r.ProcessedAt = msg.ProcessedAt.UnixNano()
	}

	return r
}

// ExtendedEnvelope reconstructs the envelope of the record. The envelope is
// validated again, so a corrupted record is rejected.
func (r *Record) ExtendedEnvelope() (*message.ExtendedEnvelope, error) {
	env, err := message.Reconstruct(r.Message, message.Channel(r.Channel))
	if err != nil {
		return nil, err
	}

	ext := &message.ExtendedEnvelope{
		Envelope:     env,
		ReceivedAt:   time.Unix(0, r.ReceivedAt),
		ReceivedFrom: r.ReceivedFrom,
	}

	if r.ProcessedAt != 0 {
		ext.MarkProcessed(time.Unix(0, r.ProcessedAt))
	}

	return ext, nil
}

// Marshal returns the msgpack encoding of the record.
func (r *Record) Marshal() ([]byte, error) {
	var b bytes.Buffer

	mh := new(codec.MsgpackHandle)
	enc := codec.NewEncoder(&b, mh)

	if err := enc.Encode(r); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal decodes a msgpack encoded record.
func (r *Record) Unmarshal(data []byte) error {
	b := bytes.NewBuffer(data)

	mh := new(codec.MsgpackHandle)
	dec := codec.NewDecoder(b, mh)

	return dec.Decode(r)
}
