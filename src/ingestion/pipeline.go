// Package ingestion drives received messages through their handlers.
//
// Every message is received at least once but successfully handled exactly
// once. Messages are kept, in arrival order, until their handler accepts them;
// a handler refusing a message (for instance because it references another
// message not received yet) leaves it pending, and it is offered again on the
// next drain.
package ingestion

import (
	"fmt"
	"sync"
	"time"

	"github.com/popstellar/popclient/src/message"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// MessageHandler applies messages. It is implemented by the registry.
type MessageHandler interface {
	HandleMessage(msg *message.ExtendedEnvelope) bool
}

// Stats counts the messages known to the pipeline.
type Stats struct {
	Known       int
	Processed   int
	Unprocessed int
}

// Snapshot is a copy of the state of a known message.
type Snapshot struct {
	Envelope          *message.Envelope
	ReceivedAt        time.Time
	ReceivedFrom      string
	ProcessedAt       *time.Time
	WitnessSignatures []message.WitnessSignature
}

type entry struct {
	seq uint64
	msg *message.ExtendedEnvelope
}

// Pipeline holds the known messages and the subset not processed yet.
type Pipeline struct {
	handler MessageHandler
	replay  func(msg *message.ExtendedEnvelope)
	store   Store
	logger  *logrus.Entry

	l           sync.Mutex
	known       []string
	entries     map[string]*entry
	unprocessed map[string]struct{}
	lastSeq     uint64

	draining bool
	redrain  bool
}

// NewPipeline creates an empty Pipeline. A nil store defaults to an
// InmemStore.
func NewPipeline(handler MessageHandler, store Store, logger *logrus.Entry) *Pipeline {
	if store == nil {
		store = NewInmemStore()
	}

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	return &Pipeline{
		handler:     handler,
		store:       store,
		logger:      logger,
		entries:     make(map[string]*entry),
		unprocessed: make(map[string]struct{}),
	}
}

// SetReplay sets the function Load calls, in arrival order, on every restored
// message that was already processed. It lets handlers rebuild the state they
// keep in memory without handling the messages a second time.
func (p *Pipeline) SetReplay(f func(msg *message.ExtendedEnvelope)) {
	p.l.Lock()
	defer p.l.Unlock()
	p.replay = f
}

// Load restores the messages persisted in the store, replays the processed
// ones, then drains the others. Records that fail validation are skipped.
func (p *Pipeline) Load() error {
	records, err := p.store.All()
	if err != nil {
		return xerrors.Errorf("failed to load records: %w", err)
	}

	var processed []*message.ExtendedEnvelope

	p.l.Lock()
	for _, rec := range records {
		msg, err := rec.ExtendedEnvelope()
		if err != nil {
			p.logger.WithError(err).WithField("seq", rec.Seq).Error("skipping invalid record")
			continue
		}

		id := msg.MessageID()
		if _, ok := p.entries[id]; ok {
			continue
		}

		p.known = append(p.known, id)
		p.entries[id] = &entry{seq: rec.Seq, msg: msg}
		if msg.IsProcessed() {
			processed = append(processed, msg)
		} else {
			p.unprocessed[id] = struct{}{}
		}

		if rec.Seq > p.lastSeq {
			p.lastSeq = rec.Seq
		}
	}

	p.logger.WithFields(logrus.Fields{
		"known":       len(p.known),
		"unprocessed": len(p.unprocessed),
	}).Debug("pipeline loaded")
	replay := p.replay
	p.l.Unlock()

	if replay != nil {
		for _, msg := range processed {
			p.safeReplay(replay, msg)
		}
	}

	p.Drain()

	return nil
}

// AddMessages appends the messages whose id is not known yet, then drains.
// Messages already known are ignored. When a drain is already running,
// possibly in another goroutine, the new messages are handled by that drain.
func (p *Pipeline) AddMessages(msgs ...*message.ExtendedEnvelope) error {
	p.l.Lock()

	added := 0
	var storeErr error

	for _, msg := range msgs {
		id := msg.MessageID()

		if _, ok := p.entries[id]; ok {
			continue
		}

		p.lastSeq++
		e := &entry{seq: p.lastSeq, msg: msg}

		p.known = append(p.known, id)
		p.entries[id] = e
		p.unprocessed[id] = struct{}{}
		added++

		if err := p.store.Put(NewRecord(e.seq, msg)); err != nil && storeErr == nil {
			storeErr = xerrors.Errorf("failed to persist message %s: %w", id, err)
		}
	}

	if p.draining {
		if added > 0 {
			p.redrain = true
		}
		p.l.Unlock()
		return storeErr
	}

	p.l.Unlock()

	p.Drain()

	return storeErr
}

// Drain offers every unprocessed message to the handler, in arrival order.
// The work list is recomputed from the current state on every pass, and passes
// are repeated as long as they make progress, since an accepted message may
// satisfy the precondition of a refused one.
func (p *Pipeline) Drain() {
	p.l.Lock()
	if p.draining {
		p.redrain = true
		p.l.Unlock()
		return
	}
	p.draining = true
	p.l.Unlock()

	for {
		p.l.Lock()
		p.redrain = false
		work := p.pendingLocked()
		p.l.Unlock()

		progress := false
		for _, e := range work {
			if !p.safeHandle(e.msg) {
				continue
			}

			p.markProcessed(e)
			progress = true
		}

		p.l.Lock()
		if progress && len(p.unprocessed) > 0 {
			p.redrain = true
		}
		if !p.redrain {
			p.draining = false
			p.l.Unlock()
			return
		}
		p.l.Unlock()
	}
}

func (p *Pipeline) pendingLocked() []*entry {
	work := make([]*entry, 0, len(p.unprocessed))
	for _, id := range p.known {
		if _, ok := p.unprocessed[id]; ok {
			work = append(work, p.entries[id])
		}
	}
	return work
}

func (p *Pipeline) markProcessed(e *entry) {
	p.l.Lock()
	defer p.l.Unlock()

	id := e.msg.MessageID()

	e.msg.MarkProcessed(time.Now())
	delete(p.unprocessed, id)

	if err := p.store.Put(NewRecord(e.seq, e.msg)); err != nil {
		p.logger.WithError(err).WithField("message_id", id).Error("failed to persist processed message")
	}
}

// safeHandle calls the handler, treating a panic like a refusal.
func (p *Pipeline) safeHandle(msg *message.ExtendedEnvelope) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.WithFields(logrus.Fields{
				"message_id": msg.MessageID(),
				"panic":      fmt.Sprint(r),
			}).Error("message handler panicked")
			ok = false
		}
	}()

	return p.handler.HandleMessage(msg)
}

func (p *Pipeline) safeReplay(replay func(*message.ExtendedEnvelope), msg *message.ExtendedEnvelope) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.WithFields(logrus.Fields{
				"message_id": msg.MessageID(),
				"panic":      fmt.Sprint(r),
			}).Error("message replay panicked")
		}
	}()

	replay(msg)
}

// AddWitnessSignature records a witness signature on a known message.
func (p *Pipeline) AddWitnessSignature(messageID string, ws message.WitnessSignature) error {
	p.l.Lock()
	defer p.l.Unlock()

	e, ok := p.entries[messageID]
	if !ok {
		return xerrors.Errorf("unknown message %s", messageID)
	}

	if err := e.msg.AddWitnessSignature(ws); err != nil {
		return err
	}

	return p.store.Put(NewRecord(e.seq, e.msg))
}

// Get returns a known message.
func (p *Pipeline) Get(messageID string) (*message.ExtendedEnvelope, bool) {
	p.l.Lock()
	defer p.l.Unlock()

	e, ok := p.entries[messageID]
	if !ok {
		return nil, false
	}
	return e.msg, true
}

// Snapshot returns a copy of the state of a known message, safe to read while
// the message is being processed.
func (p *Pipeline) Snapshot(messageID string) (Snapshot, bool) {
	p.l.Lock()
	defer p.l.Unlock()

	e, ok := p.entries[messageID]
	if !ok {
		return Snapshot{}, false
	}

	snap := Snapshot{
		Envelope:          e.msg.Envelope,
		ReceivedAt:        e.msg.ReceivedAt,
		ReceivedFrom:      e.msg.ReceivedFrom,
		WitnessSignatures: e.msg.WitnessSignatures(),
	}

	if e.msg.ProcessedAt != nil {
		at := *e.msg.ProcessedAt
		snap.ProcessedAt = &at
	}

	return snap, true
}

// IsProcessed reports whether a known message was successfully handled.
func (p *Pipeline) IsProcessed(messageID string) bool {
	p.l.Lock()
	defer p.l.Unlock()

	_, known := p.entries[messageID]
	_, pending := p.unprocessed[messageID]
	return known && !pending
}

// Known returns the ids of every known message in arrival order.
func (p *Pipeline) Known() []string {
	p.l.Lock()
	defer p.l.Unlock()
	return append([]string{}, p.known...)
}

// Unprocessed returns the messages not processed yet, in arrival order.
func (p *Pipeline) Unprocessed() []*message.ExtendedEnvelope {
	p.l.Lock()
	defer p.l.Unlock()

	work := p.pendingLocked()
	res := make([]*message.ExtendedEnvelope, len(work))
	for i, e := range work {
		res[i] = e.msg
	}
	return res
}

// Stats returns the message counts.
func (p *Pipeline) Stats() Stats {
	p.l.Lock()
	defer p.l.Unlock()

	return Stats{
		Known:       len(p.known),
		Processed:   len(p.known) - len(p.unprocessed),
		Unprocessed: len(p.unprocessed),
	}
}

// Close closes the store.
func (p *Pipeline) Close() error {
	return p.store.Close()
}
