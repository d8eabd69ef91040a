package ingestion

import (
	"fmt"
	"strconv"

	"github.com/dgraph-io/badger"
	cm "github.com/popstellar/popclient/src/common"
	"github.com/sirupsen/logrus"
)

const (
	recordPrefix = "record"
	idPrefix     = "id"
)

// BadgerStore persists the records in a badger database, so that messages
// not processed yet survive a restart.
type BadgerStore struct {
	db   *badger.DB
	path string
}

// NewBadgerStore opens the database in path, creating it if necessary.
func NewBadgerStore(path string, logger *logrus.Entry) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).
		WithSyncWrites(false).
		WithTruncate(true)

	if logger != nil {
		sub := logger.WithFields(logrus.Fields{"ns": "badger"})
		opts = opts.WithLogger(sub)
	}

	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &BadgerStore{
		db:   handle,
		path: path,
	}, nil
}

//==============================================================================
//Keys

func recordKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s_%020d", recordPrefix, seq))
}

func idKey(messageID string) []byte {
	return []byte(fmt.Sprintf("%s_%s", idPrefix, messageID))
}

//==============================================================================
//Implement the Store interface

// Put implements the Store interface.
func (s *BadgerStore) Put(rec *Record) error {
	val, err := rec.Marshal()
	if err != nil {
		return err
	}

	tx := s.db.NewTransaction(true)
	defer tx.Discard()

	if err := tx.Set(recordKey(rec.Seq), val); err != nil {
		return err
	}

	if err := tx.Set(idKey(rec.Message.MessageID), []byte(strconv.FormatUint(rec.Seq, 10))); err != nil {
		return err
	}

	return tx.Commit()
}

// Get implements the Store interface.
func (s *BadgerStore) Get(messageID string) (*Record, error) {
	var recBytes []byte

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(idKey(messageID))
		if err != nil {
			return err
		}

		seqBytes, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}

		seq, err := strconv.ParseUint(string(seqBytes), 10, 64)
		if err != nil {
			return err
		}

		recItem, err := txn.Get(recordKey(seq))
		if err != nil {
			return err
		}

		recBytes, err = recItem.ValueCopy(nil)
		return err
	})

	if err != nil {
		return nil, mapError(err, "Record", messageID)
	}

	rec := new(Record)
	if err := rec.Unmarshal(recBytes); err != nil {
		return nil, err
	}

	return rec, nil
}

// All implements the Store interface. Records are iterated in key order,
// which is Seq order.
func (s *BadgerStore) All() ([]*Record, error) {
	res := []*Record{}

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(recordPrefix + "_")

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			v, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}

			rec := new(Record)
			if err := rec.Unmarshal(v); err != nil {
				return err
			}

			res = append(res, rec)
		}

		return nil
	})

	return res, err
}

// Close implements the Store interface.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// StorePath returns the path of the database.
func (s *BadgerStore) StorePath() string {
	return s.path
}

//++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++

func isDBKeyNotFound(err error) bool {
	return err.Error() == badger.ErrKeyNotFound.Error()
}

func mapError(err error, name, key string) error {
	if err != nil {
		if isDBKeyNotFound(err) {
			return cm.NewStoreErr(name, cm.KeyNotFound, key)
		}
	}
	return err
}
