package messagedata

import (
	"github.com/popstellar/popclient/src/common"
	"github.com/popstellar/popclient/src/crypto/keys"
)

// WitnessMessage carries a witness co-signature over the id of another
// message. The witness is the sender of the envelope carrying it.
type WitnessMessage struct {
	Header

	MessageID string `json:"message_id"`
	Signature string `json:"signature"`
}

// NewWitnessMessage builds a WitnessMessage.
func NewWitnessMessage(messageID string, signature []byte) *WitnessMessage {
	return &WitnessMessage{
		Header:    Header{ObjectField: MessageObject, ActionField: WitnessAction},
		MessageID: messageID,
		Signature: common.EncodeToString(signature),
	}
}

// BuildWitnessMessage parses a message#witness payload and checks its fields
// are well formed.
func BuildWitnessMessage(raw []byte, _ string) (Data, error) {
	var w WitnessMessage
	if err := unmarshalTagged(raw, &w, MessageObject, WitnessAction); err != nil {
		return nil, err
	}

	if _, err := common.DecodeFromString(w.MessageID); err != nil || w.MessageID == "" {
		return nil, common.NewProtocolError("message#witness: invalid message_id %q", w.MessageID)
	}

	if _, err := common.DecodeFromString(w.Signature); err != nil || w.Signature == "" {
		return nil, common.NewProtocolError("message#witness: invalid signature")
	}

	return &w, nil
}

// Verify checks the co-signature was produced by witness over the referenced
// message id.
func (w *WitnessMessage) Verify(witness keys.PublicKey) error {
	sig, err := common.DecodeFromString(w.Signature)
	if err != nil {
		return common.NewIntegrityError(common.BadEncoding, "signature", "%v", err)
	}

	id, err := common.DecodeFromString(w.MessageID)
	if err != nil {
		return common.NewIntegrityError(common.BadEncoding, "message_id", "%v", err)
	}

	if err := keys.Verify(witness, id, sig); err != nil {
		return common.NewIntegrityError(common.BadWitnessSignature, "signature", "%v", err)
	}

	return nil
}
