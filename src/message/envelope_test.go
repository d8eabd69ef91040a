package message

import (
	"encoding/json"
	"testing"

	"github.com/popstellar/popclient/src/common"
	"github.com/popstellar/popclient/src/crypto/keys"
	"github.com/popstellar/popclient/src/messagedata"
	"github.com/stretchr/testify/require"
)

type countingBuilder struct {
	calls  int
	orgIDs []string
}

func (b *countingBuilder) BuildMessageData(raw []byte, orgID string) (messagedata.Data, error) {
	b.calls++
	b.orgIDs = append(b.orgIDs, orgID)
	return messagedata.NewGeneric(raw)
}

func newPayload(t *testing.T) messagedata.Data {
	g, err := messagedata.NewGeneric([]byte(`{"object":"chirp","action":"add","text":"hi"}`))
	require.NoError(t, err)
	return g
}

func newEnvelope(t *testing.T) (*Envelope, *keys.KeyPair) {
	kp := keys.GenerateKeyPair()
	env, err := Create(newPayload(t), kp, "/root/lao", nil)
	require.NoError(t, err)
	return env, kp
}

func TestCreateReconstructRoundTrip(t *testing.T) {
	for i := 0; i < 10; i++ {
		env, _ := newEnvelope(t)

		rebuilt, err := Reconstruct(env.Wire(), env.Channel())
		require.NoError(t, err)

		require.Equal(t, env.Wire(), rebuilt.Wire())
		require.Equal(t, env.MessageID(), rebuilt.MessageID())
		require.True(t, env.Sender().Equal(rebuilt.Sender()))
	}
}

func TestJSONRoundTrip(t *testing.T) {
	env, _ := newEnvelope(t)

	raw, err := json.Marshal(env)
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &fields))
	for _, k := range []string{"data", "sender", "signature", "message_id", "witness_signatures"} {
		require.Contains(t, fields, k)
	}

	rebuilt, err := Parse(raw, env.Channel())
	require.NoError(t, err)
	require.Equal(t, env.Wire(), rebuilt.Wire())
}

func TestReconstructMissingField(t *testing.T) {
	env, _ := newEnvelope(t)

	mutators := map[string]func(*Wire){
		"data":       func(w *Wire) { w.Data = "" },
		"sender":     func(w *Wire) { w.Sender = "" },
		"signature":  func(w *Wire) { w.Signature = "" },
		"message_id": func(w *Wire) { w.MessageID = "" },
	}

	for field, mutate := range mutators {
		w := env.Wire()
		mutate(&w)

		_, err := Reconstruct(w, env.Channel())
		require.True(t, common.IsIntegrity(err, common.MissingField), field)

		var ie *common.IntegrityError
		require.ErrorAs(t, err, &ie)
		require.Equal(t, field, ie.Field)
	}
}

func TestReconstructTamperedData(t *testing.T) {
	env, _ := newEnvelope(t)

	w := env.Wire()
	w.Data = common.EncodeToString([]byte(`{"object":"chirp","action":"add","text":"forged"}`))

	_, err := Reconstruct(w, env.Channel())
	require.True(t, common.IsIntegrity(err, common.BadSignature))
}

func TestReconstructTamperedSignature(t *testing.T) {
	env, _ := newEnvelope(t)

	sig := append([]byte{}, env.Signature()...)
	sig[5] ^= 0x01

	w := env.Wire()
	w.Signature = common.EncodeToString(sig)

	_, err := Reconstruct(w, env.Channel())
	require.True(t, common.IsIntegrity(err, common.BadSignature))
}

func TestReconstructTamperedMessageID(t *testing.T) {
	env, _ := newEnvelope(t)

	w := env.Wire()
	w.MessageID = common.EncodeToString([]byte("definitely not the hash"))

	_, err := Reconstruct(w, env.Channel())
	require.True(t, common.IsIntegrity(err, common.HashMismatch))
}

func TestReconstructBadEncoding(t *testing.T) {
	env, _ := newEnvelope(t)

	w := env.Wire()
	w.Data = "%%%"

	_, err := Reconstruct(w, env.Channel())
	require.True(t, common.IsIntegrity(err, common.BadEncoding))
}

func TestWitnessSignatures(t *testing.T) {
	env, _ := newEnvelope(t)
	witness := keys.GenerateKeyPair()

	ws, err := env.WitnessSign(witness)
	require.NoError(t, err)

	// a valid witness signature is accepted
	w := env.Wire()
	w.WitnessSignatures = []WitnessSignature{ws}

	rebuilt, err := Reconstruct(w, env.Channel())
	require.NoError(t, err)
	require.Len(t, rebuilt.WitnessSignatures(), 1)

	// a witness signature by a different key fails
	impostor := keys.GenerateKeyPair()
	bad := WitnessSignature{Witness: impostor.Public().String(), Signature: ws.Signature}

	w.WitnessSignatures = []WitnessSignature{bad}
	_, err = Reconstruct(w, env.Channel())
	require.True(t, common.IsIntegrity(err, common.BadWitnessSignature))

	// the same envelope without witnesses succeeds
	w.WitnessSignatures = nil
	_, err = Reconstruct(w, env.Channel())
	require.NoError(t, err)
}

func TestAddWitnessSignature(t *testing.T) {
	env, _ := newEnvelope(t)
	witness := keys.GenerateKeyPair()

	ws, err := env.WitnessSign(witness)
	require.NoError(t, err)

	require.NoError(t, env.AddWitnessSignature(ws))
	require.NoError(t, env.AddWitnessSignature(ws))
	require.Len(t, env.WitnessSignatures(), 1)

	// the returned slice is a copy
	env.WitnessSignatures()[0].Signature = "changed"
	require.Equal(t, ws, env.WitnessSignatures()[0])

	err = env.AddWitnessSignature(WitnessSignature{Witness: ws.Witness, Signature: common.EncodeToString(make([]byte, 64))})
	require.True(t, common.IsIntegrity(err, common.BadWitnessSignature))
}

func TestDecodeIsCachedAndScoped(t *testing.T) {
	env, _ := newEnvelope(t)

	rebuilt, err := Reconstruct(env.Wire(), "/root/lao/sub")
	require.NoError(t, err)

	b := &countingBuilder{}

	d1, err := rebuilt.Decode(b)
	require.NoError(t, err)
	d2, err := rebuilt.Decode(b)
	require.NoError(t, err)

	require.Same(t, d1, d2)
	require.Equal(t, 1, b.calls)
	require.Equal(t, []string{"lao"}, b.orgIDs)

	// no organization id on the root channel
	onRoot, err := Reconstruct(env.Wire(), RootChannel)
	require.NoError(t, err)

	b = &countingBuilder{}
	_, err = onRoot.Decode(b)
	require.NoError(t, err)
	require.Equal(t, []string{""}, b.orgIDs)
}
