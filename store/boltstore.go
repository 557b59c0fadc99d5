package store

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"go.etcd.io/bbolt"

	"github.com/ordfsorg/libinscribe-go/inscriber"
)

var (
	bucketRecords = []byte("records")
	bucketStatus  = []byte("status_index")
)

// InscriptionStore persists inscription progress records in bbolt. Records
// are keyed by inscription id once one exists; entries recorded before the
// reveal are keyed by their commit txid, and a later entry carrying the
// inscription id for the same commit supersedes them. A secondary index
// keyed by status supports List filtering.
type InscriptionStore struct {
	db *bbolt.DB
}

// Compile-time interface check.
var _ inscriber.Recorder = (*InscriptionStore)(nil)

// Open opens or creates the bbolt database at dbPath.
// The parent directory is created if it does not exist.
func Open(dbPath string) (*InscriptionStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("store: create directory: %w", err)
	}
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open bolt db: %w", err)
	}

	err = db.Update(func(btx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketRecords, bucketStatus} {
			if _, err := btx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("store: create bucket %q: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: create buckets: %w", err)
	}

	return &InscriptionStore{db: db}, nil
}

// Close closes the underlying database.
func (s *InscriptionStore) Close() error { return s.db.Close() }

// Record implements inscriber.Recorder by upserting the entry.
func (s *InscriptionStore) Record(_ context.Context, entry *inscriber.RecordEntry) error {
	return s.Put(entry)
}

// Put upserts a record. When the entry carries an inscription id and an
// earlier record for the same commit txid exists under the commit key, the
// earlier record is removed so the inscription does not appear twice.
func (s *InscriptionStore) Put(entry *inscriber.RecordEntry) error {
	if entry == nil {
		return fmt.Errorf("%w: entry", ErrNilParam)
	}
	key := recordKey(entry)
	if key == nil {
		return ErrInvalidEntry
	}

	return s.db.Update(func(btx *bbolt.Tx) error {
		records := btx.Bucket(bucketRecords)
		index := btx.Bucket(bucketStatus)

		// Drop the stale status index entry when the record's status moves.
		if prev := records.Get(key); prev != nil {
			var old inscriber.RecordEntry
			if err := decodeGob(prev, &old); err != nil {
				return fmt.Errorf("store: decode prior record: %w", err)
			}
			if old.Status != entry.Status {
				if err := index.Delete(statusKey(old.Status, key)); err != nil {
					return fmt.Errorf("store: delete status index entry: %w", err)
				}
			}
		}

		// The reveal entry supersedes the commit-keyed one.
		if entry.InscriptionID != "" && entry.CommitTxID != "" {
			commitKey := []byte(entry.CommitTxID)
			if prev := records.Get(commitKey); prev != nil {
				var old inscriber.RecordEntry
				if err := decodeGob(prev, &old); err != nil {
					return fmt.Errorf("store: decode superseded record: %w", err)
				}
				if err := records.Delete(commitKey); err != nil {
					return fmt.Errorf("store: delete superseded record: %w", err)
				}
				if err := index.Delete(statusKey(old.Status, commitKey)); err != nil {
					return fmt.Errorf("store: delete superseded index entry: %w", err)
				}
			}
		}

		data, err := encodeGob(entry)
		if err != nil {
			return fmt.Errorf("store: encode record: %w", err)
		}
		if err := records.Put(key, data); err != nil {
			return fmt.Errorf("store: put record: %w", err)
		}
		if err := index.Put(statusKey(entry.Status, key), key); err != nil {
			return fmt.Errorf("store: put status index entry: %w", err)
		}
		return nil
	})
}

// Get retrieves a record by inscription id, or by commit txid for records
// whose reveal has not been stored yet.
func (s *InscriptionStore) Get(id string) (*inscriber.RecordEntry, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: id", ErrNilParam)
	}

	var entry inscriber.RecordEntry
	err := s.db.View(func(btx *bbolt.Tx) error {
		data := btx.Bucket(bucketRecords).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		if err := decodeGob(data, &entry); err != nil {
			return fmt.Errorf("store: decode record: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// List returns all records with the given status, or every record when
// status is empty. Order follows the key ordering of the records bucket.
func (s *InscriptionStore) List(status string) ([]*inscriber.RecordEntry, error) {
	var entries []*inscriber.RecordEntry
	err := s.db.View(func(btx *bbolt.Tx) error {
		records := btx.Bucket(bucketRecords)
		if status == "" {
			return records.ForEach(func(_, v []byte) error {
				var entry inscriber.RecordEntry
				if err := decodeGob(v, &entry); err != nil {
					return fmt.Errorf("store: decode record in list: %w", err)
				}
				entries = append(entries, &entry)
				return nil
			})
		}

		prefix := statusPrefix(status)
		c := btx.Bucket(bucketStatus).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			data := records.Get(v)
			if data == nil {
				continue // stale index entry
			}
			var entry inscriber.RecordEntry
			if err := decodeGob(data, &entry); err != nil {
				return fmt.Errorf("store: decode record by status: %w", err)
			}
			entries = append(entries, &entry)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: list records: %w", err)
	}
	return entries, nil
}

// Delete removes a record and its status index entry.
func (s *InscriptionStore) Delete(id string) error {
	if id == "" {
		return fmt.Errorf("%w: id", ErrNilParam)
	}

	return s.db.Update(func(btx *bbolt.Tx) error {
		records := btx.Bucket(bucketRecords)
		key := []byte(id)
		data := records.Get(key)
		if data == nil {
			return ErrNotFound
		}
		var entry inscriber.RecordEntry
		if err := decodeGob(data, &entry); err != nil {
			return fmt.Errorf("store: decode record for delete: %w", err)
		}
		if err := records.Delete(key); err != nil {
			return fmt.Errorf("store: delete record: %w", err)
		}
		if err := btx.Bucket(bucketStatus).Delete(statusKey(entry.Status, key)); err != nil {
			return fmt.Errorf("store: delete status index entry: %w", err)
		}
		return nil
	})
}

// recordKey picks the primary key: inscription id when present, commit txid
// before the reveal exists.
func recordKey(entry *inscriber.RecordEntry) []byte {
	if entry.InscriptionID != "" {
		return []byte(entry.InscriptionID)
	}
	if entry.CommitTxID != "" {
		return []byte(entry.CommitTxID)
	}
	return nil
}

// statusPrefix builds the status index scan prefix. The NUL separator keeps
// one status from matching another's prefix.
func statusPrefix(status string) []byte {
	return append([]byte(status), 0x00)
}

// statusKey builds a composite status index key for prefix scanning.
func statusKey(status string, key []byte) []byte {
	return append(statusPrefix(status), key...)
}

// encodeGob serializes a value using gob encoding.
func encodeGob(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeGob deserializes gob-encoded data into a value.
func decodeGob(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}
