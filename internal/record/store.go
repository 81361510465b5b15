package record

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/dio26699-sudo/ocrmonday/internal/extract"
)

const jobBucket = "jobs"

// JobRecord captures the outcome of one processed job for operator
// inspection. The extracted fields themselves live in the board; this is an
// audit trail, not the system of record.
type JobRecord struct {
	ID          string         `json:"id"`
	ItemID      string         `json:"item_id"`
	BoardID     string         `json:"board_id"`
	Fields      extract.Fields `json:"fields"`
	Error       string         `json:"error,omitempty"`
	ProcessedAt time.Time      `json:"processed_at"`
}

// Store defines the interface for job record persistence.
type Store interface {
	// SaveJob persists one processed-job record.
	SaveJob(rec *JobRecord) error

	// GetJob retrieves a record by ID.
	GetJob(id string) (*JobRecord, error)

	// ListJobs returns all records.
	ListJobs() ([]*JobRecord, error)

	// Close closes the store.
	Close() error
}

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore opens (or creates) the records database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(jobBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// SaveJob persists one processed-job record.
func (b *BoltStore) SaveJob(rec *JobRecord) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(jobBucket))
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshaling job record: %w", err)
		}
		return bucket.Put([]byte(rec.ID), data)
	})
}

// GetJob retrieves a record by ID.
func (b *BoltStore) GetJob(id string) (*JobRecord, error) {
	var rec *JobRecord
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(jobBucket)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("job record not found: %s", id)
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListJobs returns all records.
func (b *BoltStore) ListJobs() ([]*JobRecord, error) {
	records := make([]*JobRecord, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(jobBucket)).ForEach(func(k, v []byte) error {
			var rec JobRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("unmarshaling job record: %w", err)
			}
			records = append(records, &rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Close closes the database.
func (b *BoltStore) Close() error {
	return b.db.Close()
}
