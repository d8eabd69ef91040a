// Package message implements the signed, content-addressed envelope exchanged
// with relays.
//
// An Envelope can only be obtained through Create or Reconstruct, both of which
// enforce its invariants: the signature verifies against the sender and the
// data, the message id is the hash of the data and the signature, and every
// witness signature verifies against the message id.
package message

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/popstellar/popclient/src/common"
	"github.com/popstellar/popclient/src/crypto"
	"github.com/popstellar/popclient/src/crypto/keys"
	"github.com/popstellar/popclient/src/messagedata"
	"golang.org/x/xerrors"
)

// DataBuilder turns a raw payload into a typed one. orgID is empty when the
// channel carries no organization id.
type DataBuilder interface {
	BuildMessageData(raw []byte, orgID string) (messagedata.Data, error)
}

// WitnessSignature is a co-signature of a message id by a witness.
type WitnessSignature struct {
	Witness   string `json:"witness"`
	Signature string `json:"signature"`
}

// Wire is the exact JSON shape of an envelope.
type Wire struct {
	Data              string             `json:"data"`
	Sender            string             `json:"sender"`
	Signature         string             `json:"signature"`
	MessageID         string             `json:"message_id"`
	WitnessSignatures []WitnessSignature `json:"witness_signatures"`
}

// Envelope is a validated message.
type Envelope struct {
	data      []byte
	sender    keys.PublicKey
	signature []byte
	messageID string
	channel   Channel

	wl                sync.Mutex
	witnessSignatures []WitnessSignature

	dl      sync.Mutex
	decoded messagedata.Data
}

// ComputeMessageID returns the id of a message with the given data and
// signature.
func ComputeMessageID(data, signature []byte) (string, error) {
	h, err := crypto.HashItems(common.EncodeToString(data), common.EncodeToString(signature))
	if err != nil {
		return "", err
	}
	return common.EncodeToString(h), nil
}

// Create signs payload with kp and returns the resulting envelope.
func Create(payload messagedata.Data, kp *keys.KeyPair, channel Channel, witnessSignatures []WitnessSignature) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal payload: %w", err)
	}

	signature, err := kp.Sign(data)
	if err != nil {
		return nil, err
	}

	id, err := ComputeMessageID(data, signature)
	if err != nil {
		return nil, err
	}

	env := &Envelope{
		data:              data,
		sender:            kp.Public(),
		signature:         signature,
		messageID:         id,
		channel:           channel,
		witnessSignatures: []WitnessSignature{},
		decoded:           payload,
	}

	for _, ws := range witnessSignatures {
		if err := env.AddWitnessSignature(ws); err != nil {
			return nil, err
		}
	}

	return env, nil
}

// Reconstruct validates wire fields received on channel and builds the
// envelope. It fails with a common.IntegrityError naming the violated
// invariant.
func Reconstruct(w Wire, channel Channel) (*Envelope, error) {
	for _, f := range []struct{ name, value string }{
		{"data", w.Data},
		{"sender", w.Sender},
		{"signature", w.Signature},
		{"message_id", w.MessageID},
	} {
		if f.value == "" {
			return nil, common.NewIntegrityError(common.MissingField, f.name, "field is empty")
		}
	}

	data, err := common.DecodeFromString(w.Data)
	if err != nil {
		return nil, common.NewIntegrityError(common.BadEncoding, "data", "%v", err)
	}

	sender, err := keys.ParsePublicKey(w.Sender)
	if err != nil {
		return nil, common.NewIntegrityError(common.BadEncoding, "sender", "%v", err)
	}

	signature, err := common.DecodeFromString(w.Signature)
	if err != nil {
		return nil, common.NewIntegrityError(common.BadEncoding, "signature", "%v", err)
	}

	if err := keys.Verify(sender, data, signature); err != nil {
		return nil, common.NewIntegrityError(common.BadSignature, "signature", "%v", err)
	}

	id, err := ComputeMessageID(data, signature)
	if err != nil {
		return nil, common.NewIntegrityError(common.MissingField, "data", "%v", err)
	}

	rawID, err := common.DecodeFromString(w.MessageID)
	if err != nil {
		return nil, common.NewIntegrityError(common.BadEncoding, "message_id", "%v", err)
	}

	if common.EncodeToString(rawID) != id {
		return nil, common.NewIntegrityError(common.HashMismatch, "message_id",
			"expected %s, got %s", id, w.MessageID)
	}

	env := &Envelope{
		data:              data,
		sender:            sender,
		signature:         signature,
		messageID:         id,
		channel:           channel,
		witnessSignatures: make([]WitnessSignature, 0, len(w.WitnessSignatures)),
	}

	for _, ws := range w.WitnessSignatures {
		if err := env.AddWitnessSignature(ws); err != nil {
			return nil, err
		}
	}

	return env, nil
}

// Parse decodes the JSON form of an envelope received on channel and
// reconstructs it.
func Parse(raw []byte, channel Channel) (*Envelope, error) {
	var w Wire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, common.NewIntegrityError(common.BadEncoding, "message", "%v", err)
	}
	return Reconstruct(w, channel)
}

// Data returns the raw payload bytes.
func (e *Envelope) Data() []byte {
	return e.data
}

// Sender returns the public key of the author.
func (e *Envelope) Sender() keys.PublicKey {
	return e.sender
}

// Signature returns the author's signature over the data.
func (e *Envelope) Signature() []byte {
	return e.signature
}

// MessageID returns the base64url content hash identifying the message.
func (e *Envelope) MessageID() string {
	return e.messageID
}

// Channel returns the channel the message was created for or received on.
func (e *Envelope) Channel() Channel {
	return e.channel
}

// WitnessSignatures returns a copy of the witness signatures.
func (e *Envelope) WitnessSignatures() []WitnessSignature {
	e.wl.Lock()
	defer e.wl.Unlock()

	res := make([]WitnessSignature, len(e.witnessSignatures))
	copy(res, e.witnessSignatures)
	return res
}

// AddWitnessSignature verifies ws against the message id and appends it. A
// signature from a witness that already signed is ignored.
func (e *Envelope) AddWitnessSignature(ws WitnessSignature) error {
	if err := e.verifyWitnessSignature(ws); err != nil {
		return err
	}

	e.wl.Lock()
	defer e.wl.Unlock()

	for _, existing := range e.witnessSignatures {
		if existing.Witness == ws.Witness {
			return nil
		}
	}

	e.witnessSignatures = append(e.witnessSignatures, ws)
	return nil
}

func (e *Envelope) verifyWitnessSignature(ws WitnessSignature) error {
	witness, err := keys.ParsePublicKey(ws.Witness)
	if err != nil {
		return common.NewIntegrityError(common.BadWitnessSignature, "witness_signatures",
			"invalid witness key: %v", err)
	}

	sig, err := common.DecodeFromString(ws.Signature)
	if err != nil {
		return common.NewIntegrityError(common.BadWitnessSignature, "witness_signatures",
			"invalid signature encoding: %v", err)
	}

	id, err := common.DecodeFromString(e.messageID)
	if err != nil {
		return common.NewIntegrityError(common.BadEncoding, "message_id", "%v", err)
	}

	if err := keys.Verify(witness, id, sig); err != nil {
		return common.NewIntegrityError(common.BadWitnessSignature, "witness_signatures",
			"signature of %s does not verify: %v", ws.Witness, err)
	}

	return nil
}

// WitnessSign produces a co-signature of the message id with kp.
func (e *Envelope) WitnessSign(kp *keys.KeyPair) (WitnessSignature, error) {
	id, err := common.DecodeFromString(e.messageID)
	if err != nil {
		return WitnessSignature{}, err
	}

	sig, err := kp.Sign(id)
	if err != nil {
		return WitnessSignature{}, err
	}

	return WitnessSignature{
		Witness:   kp.Public().String(),
		Signature: common.EncodeToString(sig),
	}, nil
}

// Decode returns the typed payload, building it with b on first use. The
// organization id of the channel, if any, is handed to the builder.
func (e *Envelope) Decode(b DataBuilder) (messagedata.Data, error) {
	e.dl.Lock()
	defer e.dl.Unlock()

	if e.decoded != nil {
		return e.decoded, nil
	}

	orgID, _ := e.channel.OrganizationID()

	d, err := b.BuildMessageData(e.data, orgID)
	if err != nil {
		return nil, err
	}

	e.decoded = d
	return d, nil
}

// Wire returns the wire fields of the envelope.
func (e *Envelope) Wire() Wire {
	return Wire{
		Data:              common.EncodeToString(e.data),
		Sender:            e.sender.String(),
		Signature:         common.EncodeToString(e.signature),
		MessageID:         e.messageID,
		WitnessSignatures: e.WitnessSignatures(),
	}
}

// MarshalJSON implements json.Marshaler
func (e *Envelope) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Wire())
}

// String implements fmt.Stringer
func (e *Envelope) String() string {
	return fmt.Sprintf("Envelope{id: %s, channel: %s, sender: %s}", e.messageID, e.channel, e.sender)
}
