// Package sqlite provides the reference implementation of the onedrived
// drive and item stores. Every call runs in autocommit mode on a single
// connection with synchronous=FULL, so a call which returned is on disk.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	ds "github.com/m-rots/onedrived/datastore"

	// database driver
	_ "github.com/mattn/go-sqlite3"
)

// New returns a Datastore with a SQLite3 backend.
func New(path string) (*Datastore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", ds.ErrDatabase)
	}

	// A single connection serialises writers and keeps the pragmas in effect.
	db.SetMaxOpenConns(1)

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%v: %w", pragma, ds.ErrDatabase)
		}
	}

	if _, err := db.Exec(sqlSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("schema: %w", ds.ErrDatabase)
	}

	return &Datastore{DB: db}, nil
}

// Datastore holds our SQLite3 database connection
// and implements both the DriveStore and ItemStore interfaces.
type Datastore struct {
	DB *sql.DB
	mu sync.Mutex
}

// ErrInvalidStatement occurs when the SQL statement is not compatible
// with the underlying driver or when the database is not initialised with tables yet.
var ErrInvalidStatement = fmt.Errorf("invalid statement: %w", ds.ErrDatabase)

// Close closes the underlying database.
func (store *Datastore) Close() error {
	return store.DB.Close()
}

// PutDrive upserts the drive record.
func (store *Datastore) PutDrive(record ds.DriveRecord) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("drive %v: %w", record.DriveID, err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	_, err := store.DB.Exec(sqlUpsertDrive,
		record.DriveID, record.AccountID, record.AccountType, record.LocalRoot, record.Dump)
	if err != nil {
		return fmt.Errorf("%v: %w", sqlUpsertDrive, ErrInvalidStatement)
	}

	return nil
}

// DeleteDrive removes the drive record with the key.
func (store *Datastore) DeleteDrive(key ds.DriveKey) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	_, err := store.DB.Exec(sqlDeleteDrive, key.DriveID, key.AccountID, key.AccountType)
	if err != nil {
		return fmt.Errorf("%v: %w", sqlDeleteDrive, ErrInvalidStatement)
	}

	return nil
}

// Drives returns all drive records ordered by key.
func (store *Datastore) Drives() ([]ds.DriveRecord, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	rows, err := store.DB.Query(sqlSelectDrives)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", sqlSelectDrives, ErrInvalidStatement)
	}

	defer rows.Close()

	var records []ds.DriveRecord
	for rows.Next() {
		var r ds.DriveRecord
		if err := rows.Scan(&r.DriveID, &r.AccountID, &r.AccountType, &r.LocalRoot, &r.Dump); err != nil {
			return nil, fmt.Errorf("scan drive: %w", ds.ErrDatabase)
		}

		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("drives: %w", ds.ErrDatabase)
	}

	return records, nil
}

// PutItem upserts the item record.
func (store *Datastore) PutItem(record ds.ItemRecord) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("item %v: %w", record.ID, err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	_, err := store.DB.Exec(sqlUpsertItem,
		record.ID,
		record.DriveID,
		record.ParentID,
		record.Name,
		record.ETag,
		record.CTag,
		record.Size,
		unixNano(record.ModifiedTime),
		string(record.Status),
		record.Snapshot,
		unixNano(record.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("%v: %w", sqlUpsertItem, ErrInvalidStatement)
	}

	return nil
}

// Item retrieves the item record with the id.
func (store *Datastore) Item(id string) (ds.ItemRecord, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	r := ds.ItemRecord{ID: id}
	var status string
	var modified, updated int64

	row := store.DB.QueryRow(sqlGetItem, id)
	err := row.Scan(&r.DriveID, &r.ParentID, &r.Name, &r.ETag, &r.CTag, &r.Size, &modified, &status, &r.Snapshot, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ds.ItemRecord{}, fmt.Errorf("item %v: %w", id, ds.ErrNotFound)
		}

		return ds.ItemRecord{}, fmt.Errorf("item scan: %w", ds.ErrDatabase)
	}

	r.Status = ds.ItemStatus(status)
	r.ModifiedTime = fromUnixNano(modified)
	r.UpdatedAt = fromUnixNano(updated)

	return r, nil
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}

	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}

	return time.Unix(0, n).UTC()
}

var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = FULL",
	"PRAGMA busy_timeout = 5000",
}

const sqlSchema string = `
CREATE TABLE IF NOT EXISTS drive (
  "drive_id" text NOT NULL,
  "account_id" text NOT NULL,
  "account_type" text NOT NULL,
  "local_root" text NOT NULL,
  "drive_dump" blob NOT NULL,
  PRIMARY KEY (drive_id, account_id, account_type)
);

CREATE TABLE IF NOT EXISTS item (
  "id" text PRIMARY KEY,
  "drive_id" text NOT NULL,
  "parent_id" text NOT NULL,
  "name" text NOT NULL,
  "etag" text NOT NULL,
  "ctag" text NOT NULL,
  "size" integer NOT NULL,
  "modified" integer NOT NULL,
  "status" text NOT NULL,
  "snapshot" blob,
  "updated" integer NOT NULL
);
`

const sqlUpsertDrive = `
INSERT INTO drive (drive_id, account_id, account_type, local_root, drive_dump) VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT(drive_id, account_id, account_type) DO UPDATE SET
		local_root=$4,
		drive_dump=$5
`

const sqlDeleteDrive = `
DELETE FROM drive WHERE drive_id=? AND account_id=? AND account_type=?
`

const sqlSelectDrives = `
SELECT drive_id, account_id, account_type, local_root, drive_dump
FROM drive
ORDER BY drive_id, account_id, account_type ASC
`

const sqlUpsertItem = `
INSERT INTO item (id, drive_id, parent_id, name, etag, ctag, size, modified, status, snapshot, updated)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT(id) DO UPDATE SET
		drive_id=$2,
		parent_id=$3,
		name=$4,
		etag=$5,
		ctag=$6,
		size=$7,
		modified=$8,
		status=$9,
		snapshot=$10,
		updated=$11
`

const sqlGetItem = `
SELECT drive_id, parent_id, name, etag, ctag, size, modified, status, snapshot, updated
FROM item WHERE id=?
`
