// Package datastore provides the drive and item records persisted by onedrived.
//
// In addition, it provides the DriveStore and ItemStore interfaces onedrived
// interacts with. Both a SQLite and a bbolt implementation exist; either
// commits every call durably before returning.
//
// Finally, this package also serves the common errors which may occur
// at the datastore layer.
package datastore

import (
	"errors"
	"time"
)

// DriveKey uniquely identifies a paired drive.
// A drive id alone is not unique as the same drive can be shared between accounts.
type DriveKey struct {
	DriveID     string
	AccountID   string
	AccountType string
}

// DriveRecord pairs a drive with a local directory.
// Dump holds the serialised drive metadata.
type DriveRecord struct {
	DriveKey
	LocalRoot string
	Dump      []byte
}

// ItemStatus is the sync status of an item.
type ItemStatus string

const (
	StatusOK       ItemStatus = "ok"
	StatusPending  ItemStatus = "pending"
	StatusError    ItemStatus = "error"
	StatusConflict ItemStatus = "conflict"
)

// Valid reports whether the status is one of the known statuses.
func (s ItemStatus) Valid() bool {
	switch s {
	case StatusOK, StatusPending, StatusError, StatusConflict:
		return true
	}

	return false
}

// ItemRecord is the last known state of a remote item.
// The tags, size and modification time allow remote changes to be
// detected without downloading the content again.
type ItemRecord struct {
	ID           string
	DriveID      string
	ParentID     string
	Name         string
	ETag         string
	CTag         string
	Size         int64
	ModifiedTime time.Time
	Status       ItemStatus
	Snapshot     []byte
	UpdatedAt    time.Time
}

// The DriveStore persists which drives are paired with which local directory.
type DriveStore interface {
	// PutDrive inserts the record, replacing any record with the same key.
	PutDrive(record DriveRecord) error

	// DeleteDrive removes the record with the key, if any.
	DeleteDrive(key DriveKey) error

	// Drives returns every stored record.
	Drives() ([]DriveRecord, error)
}

// The ItemStore persists the sync status of items.
type ItemStore interface {
	// PutItem inserts the record, replacing any record with the same ID.
	PutItem(record ItemRecord) error

	// Item returns the record with the ID or ErrNotFound.
	Item(id string) (ItemRecord, error)
}

// ErrDatabase indicates a fatal error within the datastore.
//
// If this error is encountered, the programme should stop and the datastore
// implementation must be looked at.
var ErrDatabase = errors.New("datastore: database related error")

// ErrNotFound indicates that no record exists for the requested key.
var ErrNotFound = errors.New("datastore: record not found")

// ErrInvalidRecord indicates a record which cannot be stored,
// such as one without an ID or with an unknown status.
var ErrInvalidRecord = errors.New("datastore: invalid record")

// Validate checks the record can be stored.
func (record DriveRecord) Validate() error {
	if record.DriveID == "" || record.AccountID == "" || record.AccountType == "" {
		return ErrInvalidRecord
	}

	return nil
}

// Validate checks the record can be stored.
func (record ItemRecord) Validate() error {
	if record.ID == "" || !record.Status.Valid() {
		return ErrInvalidRecord
	}

	return nil
}
