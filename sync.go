package onedrived

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	ds "github.com/m-rots/onedrived/datastore"
	"go.uber.org/zap"
)

// RecordFromItem snapshots the item into an ItemRecord with the status.
// Fields missing from the payload are left empty.
func RecordFromItem(item *Item, status ds.ItemStatus) (ds.ItemRecord, error) {
	snapshot, err := item.MarshalJSON()
	if err != nil {
		return ds.ItemRecord{}, fmt.Errorf("snapshot %v: %w", item.ID(), err)
	}

	record := ds.ItemRecord{
		ID:        item.ID(),
		Status:    status,
		Snapshot:  snapshot,
		UpdatedAt: time.Now().UTC(),
	}

	record.Name, _ = item.Name()
	record.ETag, _ = item.ETag()
	record.CTag, _ = item.CTag()
	record.Size, _ = item.Size()
	record.ModifiedTime, _ = item.ModifiedTime()

	if parent, err := item.ParentReference(); err == nil {
		record.DriveID = parent.DriveID
		record.ParentID = parent.ID
	}

	return record, nil
}

// ItemChanged reports whether the remote item differs from the record.
// The eTag changes on any change, the cTag and size on content changes.
func ItemChanged(record ds.ItemRecord, item *Item) bool {
	eTag, _ := item.ETag()
	cTag, _ := item.CTag()
	size, _ := item.Size()

	return record.ETag != eTag || record.CTag != cTag || record.Size != size
}

// Hook allows the injection of functions between the fetch and datastore
// operations of SyncChildren. It receives the outstanding items in their
// new state. A failing hook stops the sync before anything is written.
type Hook = func(drive *Drive, changed []*Item) error

// itemPath returns the path of the item from the drive root.
// The folder is used when the item does not carry the path of its parent.
func itemPath(item *Item, folder ItemRef) string {
	name, _ := item.Name()
	parent := folder.Path

	if ref, err := item.ParentReference(); err == nil {
		if _, p, ok := strings.Cut(ref.Path, "root:"); ok {
			if unescaped, err := url.PathUnescape(p); err == nil {
				p = unescaped
			}
			parent = p
		}
	}

	return path.Join("/", parent, name)
}

// SyncChildren lists the children of the folder and returns the outstanding
// ones: items which are new, changed since their record was written, or
// whose record is not OK. Those are recorded as pending, leaving it to the
// tasks transferring them to record them as OK. Items matching the ignore
// patterns of the drive are skipped.
func (drive *Drive) SyncChildren(ctx context.Context, ref ItemRef, store ds.ItemStore, hooks ...Hook) ([]*Item, error) {
	collection, err := drive.Children(ctx, ref)
	if err != nil {
		return nil, err
	}

	items, err := collection.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("children of %v: %w", ref, err)
	}

	config := drive.Config()

	var changed []*Item
	var ignored int
	for _, item := range items {
		if config.Ignored(itemPath(item, ref)) {
			ignored++
			continue
		}

		record, err := store.Item(item.ID())
		switch {
		case errors.Is(err, ds.ErrNotFound):
			changed = append(changed, item)
		case err != nil:
			return nil, err
		case record.Status != ds.StatusOK || ItemChanged(record, item):
			changed = append(changed, item)
		}
	}

	drive.logger.Debug("listed children",
		zap.Stringer("folder", ref),
		zap.Int("items", len(items)),
		zap.Int("changed", len(changed)),
		zap.Int("ignored", ignored),
		zap.Int("pages", collection.PageCount()))

	if len(changed) == 0 {
		return nil, nil
	}

	for _, hk := range hooks {
		if err := hk(drive, changed); err != nil {
			return nil, err
		}
	}

	for _, item := range changed {
		record, err := RecordFromItem(item, ds.StatusPending)
		if err != nil {
			return nil, err
		}

		if err := store.PutItem(record); err != nil {
			return nil, err
		}
	}

	return changed, nil
}
