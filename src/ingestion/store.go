package ingestion

// Store persists the records of the pipeline.
type Store interface {
	// Put inserts or replaces the record with the same Seq.
	Put(rec *Record) error
	// Get returns the record of a message id.
	Get(messageID string) (*Record, error)
	// All returns every record ordered by Seq.
	All() ([]*Record, error)
	// Close releases the resources of the store.
	Close() error
}
