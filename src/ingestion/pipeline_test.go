package ingestion

import (
	"fmt"
	"sync"
	"testing"

	"github.com/popstellar/popclient/src/common"
	"github.com/popstellar/popclient/src/crypto/keys"
	"github.com/popstellar/popclient/src/message"
	"github.com/popstellar/popclient/src/messagedata"
	"github.com/stretchr/testify/require"
)

// handlerFunc adapts a function to the MessageHandler interface.
type handlerFunc func(msg *message.ExtendedEnvelope) bool

func (f handlerFunc) HandleMessage(msg *message.ExtendedEnvelope) bool {
	return f(msg)
}

// recorder accepts every message and records the order of the calls.
type recorder struct {
	l      sync.Mutex
	calls  []string
	accept func(msg *message.ExtendedEnvelope) bool
}

func (r *recorder) HandleMessage(msg *message.ExtendedEnvelope) bool {
	r.l.Lock()
	r.calls = append(r.calls, msg.MessageID())
	accept := r.accept
	r.l.Unlock()

	if accept == nil {
		return true
	}
	return accept(msg)
}

func (r *recorder) Calls() []string {
	r.l.Lock()
	defer r.l.Unlock()
	return append([]string{}, r.calls...)
}

func newMessage(t testing.TB, text string) *message.ExtendedEnvelope {
	payload, err := messagedata.NewGeneric([]byte(fmt.Sprintf(`{"object":"chirp","action":"add","text":%q}`, text)))
	require.NoError(t, err)

	env, err := message.Create(payload, keys.GenerateKeyPair(), "/root/lao", nil)
	require.NoError(t, err)

	return message.NewExtendedEnvelope(env, "inmem://relay")
}

func newMessages(t testing.TB, n int) []*message.ExtendedEnvelope {
	res := make([]*message.ExtendedEnvelope, n)
	for i := range res {
		res[i] = newMessage(t, fmt.Sprintf("msg %d", i))
	}
	return res
}

func ids(msgs []*message.ExtendedEnvelope) []string {
	res := make([]string, len(msgs))
	for i, m := range msgs {
		res[i] = m.MessageID()
	}
	return res
}

func requirePartition(t *testing.T, p *Pipeline) {
	stats := p.Stats()
	require.Equal(t, stats.Known, stats.Processed+stats.Unprocessed)

	for _, m := range p.Unprocessed() {
		require.False(t, m.IsProcessed())
		require.False(t, p.IsProcessed(m.MessageID()))
	}
}

func TestAddMessagesProcessesInOrder(t *testing.T) {
	rec := &recorder{}
	p := NewPipeline(rec, nil, common.NewTestEntry(t, common.TestLogLevel))

	msgs := newMessages(t, 5)
	require.NoError(t, p.AddMessages(msgs...))

	require.Equal(t, ids(msgs), rec.Calls())
	require.Equal(t, ids(msgs), p.Known())
	require.Equal(t, Stats{Known: 5, Processed: 5}, p.Stats())

	for _, m := range msgs {
		require.True(t, m.IsProcessed())
	}
	requirePartition(t, p)
}

func TestAddMessagesIgnoresDuplicates(t *testing.T) {
	rec := &recorder{}
	p := NewPipeline(rec, nil, common.NewTestEntry(t, common.TestLogLevel))

	msg := newMessage(t, "once")
	require.NoError(t, p.AddMessages(msg))
	require.NoError(t, p.AddMessages(msg))

	// same id received from another relay
	again := message.NewExtendedEnvelope(msg.Envelope, "inmem://other")
	require.NoError(t, p.AddMessages(again, again))

	require.Len(t, rec.Calls(), 1)
	require.Equal(t, 1, p.Stats().Known)

	got, ok := p.Get(msg.MessageID())
	require.True(t, ok)
	require.Equal(t, "inmem://relay", got.ReceivedFrom)
}

func TestRefusedMessageStaysUnprocessed(t *testing.T) {
	first := newMessage(t, "first")
	second := newMessage(t, "second")

	// second depends on first
	rec := &recorder{}
	p := NewPipeline(rec, nil, common.NewTestEntry(t, common.TestLogLevel))
	rec.accept = func(msg *message.ExtendedEnvelope) bool {
		if msg.MessageID() == second.MessageID() {
			return p.IsProcessed(first.MessageID())
		}
		return true
	}

	require.NoError(t, p.AddMessages(second))
	require.Equal(t, Stats{Known: 1, Unprocessed: 1}, p.Stats())
	require.False(t, second.IsProcessed())
	requirePartition(t, p)

	require.NoError(t, p.AddMessages(first))
	require.Equal(t, Stats{Known: 2, Processed: 2}, p.Stats())
	require.True(t, second.IsProcessed())

	// second was offered twice, first once
	require.Equal(t, []string{second.MessageID(), first.MessageID(), second.MessageID()}, rec.Calls())
	requirePartition(t, p)
}

func TestDrainRetriesRefusedMessages(t *testing.T) {
	accept := false
	var l sync.Mutex

	p := NewPipeline(handlerFunc(func(*message.ExtendedEnvelope) bool {
		l.Lock()
		defer l.Unlock()
		return accept
	}), nil, common.NewTestEntry(t, common.TestLogLevel))

	msgs := newMessages(t, 3)
	require.NoError(t, p.AddMessages(msgs...))
	require.Len(t, p.Unprocessed(), 3)

	p.Drain()
	require.Len(t, p.Unprocessed(), 3)

	l.Lock()
	accept = true
	l.Unlock()

	p.Drain()
	require.Empty(t, p.Unprocessed())
	requirePartition(t, p)
}

func TestHandlerPanicIsContained(t *testing.T) {
	boom := newMessage(t, "boom")
	calm := newMessage(t, "calm")

	p := NewPipeline(handlerFunc(func(msg *message.ExtendedEnvelope) bool {
		if msg.MessageID() == boom.MessageID() {
			panic("handler failure")
		}
		return true
	}), nil, common.NewTestEntry(t, common.TestLogLevel))

	require.NotPanics(t, func() {
		require.NoError(t, p.AddMessages(boom, calm))
	})

	require.False(t, p.IsProcessed(boom.MessageID()))
	require.True(t, p.IsProcessed(calm.MessageID()))
	requirePartition(t, p)
}

func TestReentrantAddMessages(t *testing.T) {
	outer := newMessage(t, "outer")
	inner := newMessages(t, 3)

	rec := &recorder{}
	p := NewPipeline(rec, nil, common.NewTestEntry(t, common.TestLogLevel))

	rec.accept = func(msg *message.ExtendedEnvelope) bool {
		if msg.MessageID() == outer.MessageID() {
			require.NoError(t, p.AddMessages(inner...))
		}
		return true
	}

	require.NoError(t, p.AddMessages(outer))

	require.Equal(t, append([]string{outer.MessageID()}, ids(inner)...), rec.Calls())
	require.Equal(t, Stats{Known: 4, Processed: 4}, p.Stats())
}

func TestReentrantAddOfKnownMessageTerminates(t *testing.T) {
	msg := newMessage(t, "self")

	calls := 0
	var p *Pipeline
	p = NewPipeline(handlerFunc(func(m *message.ExtendedEnvelope) bool {
		calls++
		require.NoError(t, p.AddMessages(m))
		return false
	}), nil, common.NewTestEntry(t, common.TestLogLevel))

	require.NoError(t, p.AddMessages(msg))
	require.Equal(t, 1, calls)
	require.Len(t, p.Unprocessed(), 1)
}

func TestConcurrentAddMessages(t *testing.T) {
	rec := &recorder{}
	p := NewPipeline(rec, nil, common.NewTestEntry(t, common.TestLogLevel))

	msgs := newMessages(t, 40)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(batch []*message.ExtendedEnvelope) {
			defer wg.Done()
			for _, m := range batch {
				require.NoError(t, p.AddMessages(m))
			}
		}(msgs[i*10 : (i+1)*10])
	}
	wg.Wait()

	p.Drain()

	require.Equal(t, Stats{Known: 40, Processed: 40}, p.Stats())
	require.Len(t, rec.Calls(), 40)
}

func TestAddWitnessSignature(t *testing.T) {
	p := NewPipeline(&recorder{}, nil, common.NewTestEntry(t, common.TestLogLevel))

	msg := newMessage(t, "witnessed")
	witness := keys.GenerateKeyPair()

	ws, err := msg.WitnessSign(witness)
	require.NoError(t, err)

	err = p.AddWitnessSignature(msg.MessageID(), ws)
	require.Error(t, err)

	require.NoError(t, p.AddMessages(msg))
	require.NoError(t, p.AddWitnessSignature(msg.MessageID(), ws))

	got, ok := p.Get(msg.MessageID())
	require.True(t, ok)
	require.Equal(t, []message.WitnessSignature{ws}, got.WitnessSignatures())

	forged := message.WitnessSignature{Witness: keys.GenerateKeyPair().Public().String(), Signature: ws.Signature}
	err = p.AddWitnessSignature(msg.MessageID(), forged)
	require.True(t, common.IsIntegrity(err, common.BadWitnessSignature))
}

func TestLoadRestoresUnprocessed(t *testing.T) {
	store := NewInmemStore()

	done := newMessage(t, "done")
	pending := newMessage(t, "pending")

	p := NewPipeline(handlerFunc(func(m *message.ExtendedEnvelope) bool {
		return m.MessageID() == done.MessageID()
	}), store, common.NewTestEntry(t, common.TestLogLevel))
	require.NoError(t, p.AddMessages(done, pending))
	require.Equal(t, Stats{Known: 2, Processed: 1, Unprocessed: 1}, p.Stats())

	rec := &recorder{}
	restored := NewPipeline(rec, store, common.NewTestEntry(t, common.TestLogLevel))
	require.NoError(t, restored.Load())

	// only the pending message is offered again
	require.Equal(t, []string{pending.MessageID()}, rec.Calls())
	require.Equal(t, []string{done.MessageID(), pending.MessageID()}, restored.Known())
	require.Equal(t, Stats{Known: 2, Processed: 2}, restored.Stats())

	// new messages keep the arrival order
	later := newMessage(t, "later")
	require.NoError(t, restored.AddMessages(later))
	require.Equal(t, []string{done.MessageID(), pending.MessageID(), later.MessageID()}, restored.Known())

	all, err := store.All()
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, later.MessageID(), all[2].Message.MessageID)
}

func TestLoadReplaysProcessed(t *testing.T) {
	store := NewInmemStore()

	msgs := newMessages(t, 3)

	p := NewPipeline(handlerFunc(func(m *message.ExtendedEnvelope) bool {
		return m.MessageID() != msgs[1].MessageID()
	}), store, common.NewTestEntry(t, common.TestLogLevel))
	require.NoError(t, p.AddMessages(msgs...))

	rec := &recorder{accept: func(*message.ExtendedEnvelope) bool { return false }}
	restored := NewPipeline(rec, store, common.NewTestEntry(t, common.TestLogLevel))

	var replayed []string
	restored.SetReplay(func(m *message.ExtendedEnvelope) {
		require.True(t, m.IsProcessed())
		replayed = append(replayed, m.MessageID())
		if m.MessageID() == msgs[2].MessageID() {
			panic("replay failure")
		}
	})
	require.NoError(t, restored.Load())

	// processed messages are replayed in arrival order, not handled again
	require.Equal(t, []string{msgs[0].MessageID(), msgs[2].MessageID()}, replayed)
	require.Equal(t, []string{msgs[1].MessageID()}, rec.Calls())
	require.Equal(t, Stats{Known: 3, Processed: 2, Unprocessed: 1}, restored.Stats())
}

func TestSnapshot(t *testing.T) {
	msg := newMessage(t, "snapshot")

	accept := false
	p := NewPipeline(handlerFunc(func(*message.ExtendedEnvelope) bool {
		return accept
	}), nil, common.NewTestEntry(t, common.TestLogLevel))

	_, ok := p.Snapshot(msg.MessageID())
	require.False(t, ok)

	require.NoError(t, p.AddMessages(msg))

	snap, ok := p.Snapshot(msg.MessageID())
	require.True(t, ok)
	require.Equal(t, msg.MessageID(), snap.Envelope.MessageID())
	require.Equal(t, "inmem://relay", snap.ReceivedFrom)
	require.Nil(t, snap.ProcessedAt)
	require.Empty(t, snap.WitnessSignatures)

	ws, err := msg.WitnessSign(keys.GenerateKeyPair())
	require.NoError(t, err)
	require.NoError(t, p.AddWitnessSignature(msg.MessageID(), ws))

	accept = true
	p.Drain()

	// earlier snapshots are not affected
	require.Nil(t, snap.ProcessedAt)
	require.Empty(t, snap.WitnessSignatures)

	snap, _ = p.Snapshot(msg.MessageID())
	require.NotNil(t, snap.ProcessedAt)
	require.Equal(t, []message.WitnessSignature{ws}, snap.WitnessSignatures)
}

func TestSnapshotWhileDraining(t *testing.T) {
	msgs := newMessages(t, 50)

	p := NewPipeline(&recorder{}, nil, common.NewTestEntry(t, common.TestLogLevel))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, m := range msgs {
			p.AddMessages(m)
		}
	}()

	for {
		select {
		case <-done:
			for _, m := range msgs {
				snap, ok := p.Snapshot(m.MessageID())
				require.True(t, ok)
				require.NotNil(t, snap.ProcessedAt)
			}
			return
		default:
			for _, m := range msgs {
				p.Snapshot(m.MessageID())
			}
		}
	}
}
