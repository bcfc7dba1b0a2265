package task

import (
	"context"
	"fmt"

	"github.com/m-rots/onedrived"
	ds "github.com/m-rots/onedrived/datastore"
	"go.uber.org/zap"
)

// MirrorDir creates the local directory of a remote folder.
type MirrorDir struct {
	base
	parent string
	item   *onedrived.Item
}

func NewMirrorDir(env *Env, parent string, item *onedrived.Item) *MirrorDir {
	name, _ := item.Name()

	t := &MirrorDir{parent: parent, item: item}
	t.setup(env, "mirror-dir", parent, name)
	return t
}

func (t *MirrorDir) Handle(ctx context.Context) {
	t.handle(ctx, func(ctx context.Context, logger *zap.Logger) error {
		err := t.run()
		if err != nil {
			if recordErr := t.env.recordFailure(t.item); recordErr != nil {
				logger.Error("could not record failed folder", zap.Error(recordErr))
			}
		}

		return err
	})
}

func (t *MirrorDir) run() error {
	name, err := t.item.Name()
	if err != nil {
		return err
	}

	if !t.item.IsFolder() {
		return fmt.Errorf("%v: %w", name, ErrNotAFolder)
	}

	local := t.env.localPath(t.parent, name)
	if err := t.env.Fs.MkdirAll(local, 0755); err != nil {
		return fmt.Errorf("mkdir %v: %w", local, err)
	}

	return t.env.record(t.item, ds.StatusOK)
}
