package ingestion

import (
	"sort"
	"sync"

	cm "github.com/popstellar/popclient/src/common"
)

// InmemStore keeps the records in memory.
type InmemStore struct {
	l     sync.RWMutex
	bySeq map[uint64]*Record
	byID  map[string]uint64
}

// NewInmemStore creates an empty InmemStore.
func NewInmemStore() *InmemStore {
	return &InmemStore{
		bySeq: make(map[uint64]*Record),
		byID:  make(map[string]uint64),
	}
}

// Put implements the Store interface.
func (s *InmemStore) Put(rec *Record) error {
	s.l.Lock()
	defer s.l.Unlock()

	c := *rec
	s.bySeq[rec.Seq] = &c
	s.byID[rec.Message.MessageID] = rec.Seq

	return nil
}

// Get implements the Store interface.
func (s *InmemStore) Get(messageID string) (*Record, error) {
	s.l.RLock()
	defer s.l.RUnlock()

	seq, ok := s.byID[messageID]
	if !ok {
		return nil, cm.NewStoreErr("Record", cm.KeyNotFound, messageID)
	}

	c := *s.bySeq[seq]
	return &c, nil
}

// All implements the Store interface.
func (s *InmemStore) All() ([]*Record, error) {
	s.l.RLock()
	defer s.l.RUnlock()

	res := make([]*Record, 0, len(s.bySeq))
	for _, r := range s.bySeq {
		c := *r
		res = append(res, &c)
	}

	sort.Slice(res, func(i, j int) bool {
		return res[i].Seq < res[j].Seq
	})

	return res, nil
}

// Close implements the Store interface.
func (s *InmemStore) Close() error {
	return nil
}
