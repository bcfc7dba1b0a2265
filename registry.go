package onedrived

import (
	"context"
	"errors"
	"fmt"
	"sync"

	ds "github.com/m-rots/onedrived/datastore"
	"go.uber.org/zap"
)

// DriveRegistry persists which drives are paired with a local directory.
// Drives are restored through the Root of their account; one Root is
// created per account and shared by all its drives.
type DriveRegistry struct {
	store    ds.DriveStore
	accounts AccountStore
	opts     []Option
	logger   *zap.Logger

	mu    sync.Mutex
	roots map[accountKey]*Root
}

// NewDriveRegistry creates a registry on top of the store.
// The options are applied to every Root the registry creates.
func NewDriveRegistry(store ds.DriveStore, accounts AccountStore, logger *zap.Logger, opts ...Option) *DriveRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DriveRegistry{
		store:    store,
		accounts: accounts,
		opts:     opts,
		logger:   logger,
		roots:    make(map[accountKey]*Root),
	}
}

// Add stores the drive, replacing an earlier record with the same key.
func (reg *DriveRegistry) Add(drive *Drive) error {
	dump, err := drive.Dump()
	if err != nil {
		return fmt.Errorf("dump drive %v: %w", drive.ID(), err)
	}

	record := ds.DriveRecord{
		DriveKey:  drive.Key(),
		LocalRoot: drive.Config().LocalRoot,
		Dump:      dump,
	}

	if err := reg.store.PutDrive(record); err != nil {
		return err
	}

	reg.logger.Info("drive registered",
		zap.String("drive", record.DriveID),
		zap.String("account", record.AccountID),
		zap.String("local_root", record.LocalRoot))

	return nil
}

// Delete removes the record of the drive.
func (reg *DriveRegistry) Delete(drive *Drive) error {
	key := drive.Key()
	if err := reg.store.DeleteDrive(key); err != nil {
		return err
	}

	reg.logger.Info("drive unregistered",
		zap.String("drive", key.DriveID),
		zap.String("account", key.AccountID))

	return nil
}

// All restores every registered drive. Records of unknown accounts and
// records which cannot be loaded are skipped with a warning.
func (reg *DriveRegistry) All(ctx context.Context) (map[ds.DriveKey]*Drive, error) {
	records, err := reg.store.Drives()
	if err != nil {
		return nil, err
	}

	drives := make(map[ds.DriveKey]*Drive, len(records))
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		logger := reg.logger.With(
			zap.String("drive", record.DriveID),
			zap.String("account", record.AccountID),
			zap.String("account_type", record.AccountType))

		root, err := reg.root(record.AccountID, AccountType(record.AccountType))
		if err != nil {
			if errors.Is(err, ErrAccountNotFound) {
				logger.Warn("skipping drive of unregistered account")
				continue
			}

			return nil, err
		}

		drive, err := LoadDrive(root, record.Dump)
		if err != nil {
			logger.Warn("skipping drive", zap.Error(err))
			continue
		}

		// The local root column wins over the dump.
		config := drive.Config()
		config.LocalRoot = record.LocalRoot
		if err := drive.SetConfig(config); err != nil {
			logger.Warn("skipping drive", zap.Error(err))
			continue
		}

		drives[record.DriveKey] = drive
	}

	return drives, nil
}

func (reg *DriveRegistry) root(id string, typ AccountType) (*Root, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	key := accountKey{id, typ}
	if root, ok := reg.roots[key]; ok {
		return root, nil
	}

	account, err := reg.accounts.Account(id, typ)
	if err != nil {
		return nil, err
	}

	root := New(account, reg.opts...)
	reg.roots[key] = root
	return root, nil
}
