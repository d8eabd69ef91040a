package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/popstellar/popclient/src/common"
	"github.com/popstellar/popclient/src/crypto/keys"
	"github.com/popstellar/popclient/src/ingestion"
	"github.com/popstellar/popclient/src/message"
	"github.com/popstellar/popclient/src/messagedata"
	"github.com/popstellar/popclient/src/net"
	"github.com/stretchr/testify/require"
)

type refuseHandler struct {
	refuse string
}

func (h *refuseHandler) HandleMessage(msg *message.ExtendedEnvelope) bool {
	return msg.MessageID() != h.refuse
}

func newMessage(t *testing.T, text string) *message.ExtendedEnvelope {
	payload, err := messagedata.NewGeneric([]byte(`{"object":"chirp","action":"add","text":"` + text + `"}`))
	require.NoError(t, err)

	env, err := message.Create(payload, keys.GenerateKeyPair(), "/root/lao", nil)
	require.NoError(t, err)

	return message.NewExtendedEnvelope(env, "inmem://relay")
}

func initService(t *testing.T) (*Service, *ingestion.Pipeline, *net.InmemRelay, []*message.ExtendedEnvelope) {
	logger := common.NewTestEntry(t, common.TestLogLevel)

	msgs := []*message.ExtendedEnvelope{newMessage(t, "a"), newMessage(t, "b")}

	pipeline := ingestion.NewPipeline(&refuseHandler{refuse: msgs[1].MessageID()}, nil, logger)
	require.NoError(t, pipeline.AddMessages(msgs...))

	dialer := net.NewInmemDialer()
	relay := net.NewInmemRelay("")
	dialer.AddRelay(relay)

	manager := net.NewManager(dialer, nil, nil, logger)
	t.Cleanup(manager.DisconnectAll)

	_, err := manager.Connect(context.Background(), relay.Address())
	require.NoError(t, err)

	return NewService("127.0.0.1:0", pipeline, manager, logger), pipeline, relay, msgs
}

func get(t *testing.T, s *Service, path string, v interface{}) int {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	if rec.Code == http.StatusOK && v != nil {
		require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
	}

	return rec.Code
}

func TestGetStats(t *testing.T) {
	s, _, _, _ := initService(t)

	var stats map[string]int
	require.Equal(t, http.StatusOK, get(t, s, "/stats", &stats))
	require.Equal(t, map[string]int{
		"known":       2,
		"processed":   1,
		"unprocessed": 1,
		"connections": 1,
	}, stats)
}

func TestGetConnections(t *testing.T) {
	s, _, relay, _ := initService(t)

	var conns []ConnectionInfo
	require.Equal(t, http.StatusOK, get(t, s, "/connections", &conns))
	require.Equal(t, []ConnectionInfo{{Address: relay.Address(), State: net.Open.String()}}, conns)
}

func TestGetUnprocessed(t *testing.T) {
	s, _, _, msgs := initService(t)

	var ids []string
	require.Equal(t, http.StatusOK, get(t, s, "/unprocessed", &ids))
	require.Equal(t, []string{msgs[1].MessageID()}, ids)
}

func TestGetMessage(t *testing.T) {
	s, _, _, msgs := initService(t)

	var info MessageInfo
	require.Equal(t, http.StatusOK, get(t, s, "/message/"+msgs[0].MessageID(), &info))
	require.Equal(t, msgs[0].MessageID(), info.MessageID)
	require.Equal(t, "/root/lao", info.Channel)
	require.Equal(t, msgs[0].Sender().String(), info.Sender)
	require.Equal(t, "inmem://relay", info.ReceivedFrom)
	require.NotZero(t, info.ProcessedAt)

	require.Equal(t, http.StatusNotFound, get(t, s, "/message/unknown", nil))
}

func TestGetMessageWhileProcessing(t *testing.T) {
	s, pipeline, _, _ := initService(t)

	msg := newMessage(t, "c")

	done := make(chan struct{})
	go func() {
		defer close(done)
		pipeline.AddMessages(msg)
	}()

	for i := 0; i < 20; i++ {
		code := get(t, s, "/message/"+msg.MessageID(), nil)
		require.Contains(t, []int{http.StatusOK, http.StatusNotFound}, code)
	}

	<-done

	var info MessageInfo
	require.Equal(t, http.StatusOK, get(t, s, "/message/"+msg.MessageID(), &info))
	require.NotZero(t, info.ProcessedAt)
}
