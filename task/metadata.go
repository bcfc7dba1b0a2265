package task

import (
	"context"
	"time"

	"github.com/m-rots/onedrived"
	ds "github.com/m-rots/onedrived/datastore"
	"go.uber.org/zap"
)

// UpdateMetadata sets the modification time of a remote item.
// On failure the item store is left untouched.
type UpdateMetadata struct {
	base
	modified time.Time
}

func NewUpdateMetadata(env *Env, parent, name string, modified time.Time) *UpdateMetadata {
	t := &UpdateMetadata{modified: modified}
	t.setup(env, "update-metadata", parent, name)
	return t
}

func (t *UpdateMetadata) Handle(ctx context.Context) {
	t.handle(ctx, t.run)
}

func (t *UpdateMetadata) run(ctx context.Context, logger *zap.Logger) error {
	item, err := t.env.Drive.UpdateItem(ctx, onedrived.ByPath(t.key), onedrived.ItemUpdate{
		FileSystemInfo: &onedrived.FileSystemInfo{ModifiedTime: t.modified},
	})
	if err != nil {
		return err
	}

	logger.Debug("modification time updated", zap.String("id", item.ID()), zap.Time("modified", t.modified))
	return t.env.record(item, ds.StatusOK)
}
