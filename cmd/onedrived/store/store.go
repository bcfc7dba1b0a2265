// Package store opens the registry backend selected in the configuration.
package store

import (
	"fmt"
	"os"
	"path/filepath"

	ds "github.com/m-rots/onedrived/datastore"
	"github.com/m-rots/onedrived/datastore/bolt"
	"github.com/m-rots/onedrived/datastore/sqlite"
)

// The Store combines the drive and item registries of one backend.
type Store interface {
	ds.DriveStore
	ds.ItemStore
	Close() error
}

// Open creates the parent directory of path and opens the backend.
func Open(backend, path string) (Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("store directory: %w", err)
	}

	switch backend {
	case "sqlite":
		return sqlite.New(path)
	case "bolt":
		return bolt.New(path)
	}

	return nil, fmt.Errorf("unknown store backend %q", backend)
}
