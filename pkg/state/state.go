package state

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Epoch is where a tenant's watermark starts when nothing is stored. A
// first run against a read-only tenant reads its event log from the
// beginning; the idempotent reconciler makes the replay harmless.
var Epoch = time.Unix(0, 0).UTC()

// markLayout is the stored form of a watermark.
const markLayout = time.RFC3339Nano

var bucketWatermarks = []byte("watermarks")

// Store persists per-tenant sync state in a local bbolt file. Read-only
// tenants cannot carry their progress in the event log, so it lives
// here.
type Store struct {
	db *bolt.DB
}

// Open creates or opens the state file and its buckets.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create state directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open state file: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketWatermarks)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the state file.
func (s *Store) Close() error {
	return s.db.Close()
}

// Watermark returns the stored watermark for one tenant, or Epoch when
// none is stored yet.
func (s *Store) Watermark(tenant string) (time.Time, error) {
	mark := Epoch
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketWatermarks).Get([]byte(tenant))
		if data == nil {
			return nil
		}
		parsed, err := time.Parse(markLayout, string(data))
		if err != nil {
			return fmt.Errorf("stored watermark for %s: %w", tenant, err)
		}
		mark = parsed
		return nil
	})
	return mark, err
}

// AdvanceWatermark stores mark for the tenant. The watermark only moves
// forward; an older mark is ignored, so a replayed round cannot make the
// next one re-read more than it must.
func (s *Store) AdvanceWatermark(tenant string, mark time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketWatermarks)
		if data := b.Get([]byte(tenant)); data != nil {
			prev, err := time.Parse(markLayout, string(data))
			if err == nil && !mark.After(prev) {
				return nil
			}
		}
		return b.Put([]byte(tenant), []byte(mark.UTC().Format(markLayout)))
	})
}
