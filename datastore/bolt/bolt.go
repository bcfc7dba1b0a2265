// Package bolt implements the onedrived drive and item stores on top of a
// bbolt file. Records are stored as JSON, each kind in its own bucket.
package bolt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	ds "github.com/m-rots/onedrived/datastore"
	bolt "go.etcd.io/bbolt"
)

var (
	driveBucket = []byte("drives")
	itemBucket  = []byte("items")
)

// Datastore implements both the DriveStore and ItemStore interfaces.
// bbolt allows a single writer at a time and syncs every committed
// transaction to disk.
type Datastore struct {
	db *bolt.DB
}

// New opens or creates the bbolt file at path.
func New(path string) (*Datastore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open %v: %w", err, ds.ErrDatabase)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{driveBucket, itemBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("buckets: %w", ds.ErrDatabase)
	}

	return &Datastore{db: db}, nil
}

func (store *Datastore) Close() error {
	return store.db.Close()
}

// driveKey joins the parts with a NUL byte, which cannot occur in any of them.
func driveKey(key ds.DriveKey) []byte {
	return []byte(strings.Join([]string{key.DriveID, key.AccountID, key.AccountType}, "\x00"))
}

func (store *Datastore) put(bucket, key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, ds.ErrInvalidRecord)
	}

	err = store.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put(key, data)
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, ds.ErrDatabase)
	}

	return nil
}

// PutDrive upserts the drive record.
func (store *Datastore) PutDrive(record ds.DriveRecord) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("drive %v: %w", record.DriveID, err)
	}

	return store.put(driveBucket, driveKey(record.DriveKey), record)
}

// DeleteDrive removes the drive record with the key.
func (store *Datastore) DeleteDrive(key ds.DriveKey) error {
	err := store.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(driveBucket).Delete(driveKey(key))
	})
	if err != nil {
		return fmt.Errorf("delete drive %v: %w", key.DriveID, ds.ErrDatabase)
	}

	return nil
}

// Drives returns all drive records ordered by key.
func (store *Datastore) Drives() ([]ds.DriveRecord, error) {
	var records []ds.DriveRecord

	err := store.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(driveBucket).ForEach(func(k, v []byte) error {
			var record ds.DriveRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("decode %s: %w", k, err)
			}

			records = append(records, record)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ds.ErrDatabase)
	}

	return records, nil
}

// PutItem upserts the item record.
func (store *Datastore) PutItem(record ds.ItemRecord) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("item %v: %w", record.ID, err)
	}

	return store.put(itemBucket, []byte(record.ID), record)
}

// Item retrieves the item record with the id.
func (store *Datastore) Item(id string) (ds.ItemRecord, error) {
	var data []byte

	err := store.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(itemBucket).Get([]byte(id)); v != nil {
			// v is only valid inside the transaction
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return ds.ItemRecord{}, fmt.Errorf("item %v: %v: %w", id, err, ds.ErrDatabase)
	}

	if data == nil {
		return ds.ItemRecord{}, fmt.Errorf("item %v: %w", id, ds.ErrNotFound)
	}

	var record ds.ItemRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return ds.ItemRecord{}, fmt.Errorf("decode item %v: %w", id, ds.ErrDatabase)
	}

	return record, nil
}
