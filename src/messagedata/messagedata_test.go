package messagedata

import (
	"encoding/json"
	"testing"

	"github.com/popstellar/popclient/src/common"
	"github.com/popstellar/popclient/src/crypto/keys"
	"github.com/stretchr/testify/require"
)

func TestGetObjectAndAction(t *testing.T) {
	object, action, err := GetObjectAndAction([]byte(`{"object":"lao","action":"create","name":"x"}`))
	require.NoError(t, err)
	require.Equal(t, LaoObject, object)
	require.Equal(t, CreateAction, action)

	_, _, err = GetObjectAndAction([]byte(`{"object":"lao"}`))
	require.True(t, common.IsProtocol(err))

	_, _, err = GetObjectAndAction([]byte(`not json`))
	require.True(t, common.IsProtocol(err))
}

func TestGenericKeepsBody(t *testing.T) {
	raw := []byte(`{"object":"chirp","action":"add","text":"hello"}`)

	g, err := NewGeneric(raw)
	require.NoError(t, err)
	require.Equal(t, ChirpObject, g.Object())
	require.Equal(t, AddAction, g.Action())

	out, err := json.Marshal(g)
	require.NoError(t, err)
	require.JSONEq(t, string(raw), string(out))
}

func TestCreateLao(t *testing.T) {
	organizer := keys.GenerateKeyPair()
	witness := keys.GenerateKeyPair()

	c, err := NewCreateLao("my lao", 1700000000, organizer.Public(), []keys.PublicKey{witness.Public()})
	require.NoError(t, err)

	raw, err := json.Marshal(c)
	require.NoError(t, err)

	// without organization id
	d, err := BuildCreateLao(raw, "")
	require.NoError(t, err)
	require.Equal(t, c.ID, d.(*CreateLao).ID)

	// matching organization id
	_, err = BuildCreateLao(raw, c.ID)
	require.NoError(t, err)

	// another organization
	_, err = BuildCreateLao(raw, "b3RoZXI=")
	require.True(t, common.IsProtocol(err))
}

func TestCreateLaoRejectsTamperedID(t *testing.T) {
	organizer := keys.GenerateKeyPair()

	c, err := NewCreateLao("my lao", 1700000000, organizer.Public(), nil)
	require.NoError(t, err)

	c.Name = "another name"

	raw, err := json.Marshal(c)
	require.NoError(t, err)

	_, err = BuildCreateLao(raw, "")
	require.True(t, common.IsProtocol(err))
}

func TestCreateLaoRejectsWrongTag(t *testing.T) {
	_, err := BuildCreateLao([]byte(`{"object":"lao","action":"state"}`), "")
	require.True(t, common.IsProtocol(err))
}

func TestWitnessMessage(t *testing.T) {
	witness := keys.GenerateKeyPair()
	id := []byte("0123456789abcdef0123456789abcdef")

	sig, err := witness.Sign(id)
	require.NoError(t, err)

	w := NewWitnessMessage(common.EncodeToString(id), sig)

	raw, err := json.Marshal(w)
	require.NoError(t, err)

	d, err := BuildWitnessMessage(raw, "")
	require.NoError(t, err)

	parsed := d.(*WitnessMessage)
	require.NoError(t, parsed.Verify(witness.Public()))

	other := keys.GenerateKeyPair()
	err = parsed.Verify(other.Public())
	require.True(t, common.IsIntegrity(err, common.BadWitnessSignature))
}

func TestWitnessMessageRejectsMissingFields(t *testing.T) {
	_, err := BuildWitnessMessage([]byte(`{"object":"message","action":"witness","message_id":"","signature":"AA=="}`), "")
	require.True(t, common.IsProtocol(err))

	_, err = BuildWitnessMessage([]byte(`{"object":"message","action":"witness","message_id":"AA==","signature":"***"}`), "")
	require.True(t, common.IsProtocol(err))
}
