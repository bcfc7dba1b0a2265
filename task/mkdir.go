package task

import (
	"context"
	"fmt"

	"github.com/m-rots/onedrived"
	ds "github.com/m-rots/onedrived/datastore"
	"go.uber.org/zap"
)

// CreateDir creates a folder remotely and locally.
type CreateDir struct {
	base
	parent   string
	itemName string
	behavior onedrived.ConflictBehavior
}

func NewCreateDir(env *Env, parent, name string, behavior onedrived.ConflictBehavior) *CreateDir {
	if behavior == "" {
		behavior = onedrived.ConflictFail
	}

	t := &CreateDir{parent: parent, itemName: name, behavior: behavior}
	t.setup(env, "create-dir", parent, name)
	return t
}

func (t *CreateDir) Handle(ctx context.Context) {
	t.handle(ctx, t.run)
}

func (t *CreateDir) run(ctx context.Context, logger *zap.Logger) error {
	env := t.env

	item, err := env.Drive.CreateDir(ctx, t.itemName, onedrived.ByPath(t.parent), t.behavior)
	if err != nil {
		return err
	}

	local := env.localPath(t.parent, t.itemName)
	if err := env.Fs.MkdirAll(local, 0755); err != nil {
		return fmt.Errorf("mkdir %v: %w", local, err)
	}

	logger.Debug("folder created", zap.String("id", item.ID()))
	return env.record(item, ds.StatusOK)
}
