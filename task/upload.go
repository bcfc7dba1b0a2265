package task

import (
	"context"
	"fmt"

	"github.com/m-rots/onedrived"
	ds "github.com/m-rots/onedrived/datastore"
	"go.uber.org/zap"
)

// UploadFile uploads a local file and stamps the remote item with the
// local modification time. The item is only recorded as OK once both
// succeeded; if the stamp fails the uploaded item is recorded as an error.
type UploadFile struct {
	base
	parent   string
	itemName string
	behavior onedrived.ConflictBehavior
}

// NewUploadFile uploads the file name inside the remote folder parent.
// The local file is looked up at the same path below the local root.
func NewUploadFile(env *Env, parent, name string, behavior onedrived.ConflictBehavior) *UploadFile {
	if behavior == "" {
		behavior = onedrived.ConflictReplace
	}

	t := &UploadFile{parent: parent, itemName: name, behavior: behavior}
	t.setup(env, "upload", parent, name)
	return t
}

func (t *UploadFile) Handle(ctx context.Context) {
	t.handle(ctx, t.run)
}

func (t *UploadFile) run(ctx context.Context, logger *zap.Logger) error {
	env := t.env
	local := env.localPath(t.parent, t.itemName)

	info, err := env.Fs.Stat(local)
	if err != nil {
		return fmt.Errorf("stat %v: %w", local, err)
	}

	if !info.Mode().IsRegular() {
		return fmt.Errorf("%v: %w", local, ErrNotAFile)
	}

	f, err := env.Fs.Open(local)
	if err != nil {
		return fmt.Errorf("open %v: %w", local, err)
	}

	defer f.Close()

	item, err := env.Drive.Upload(ctx, t.itemName, f, info.Size(), onedrived.ByPath(t.parent), t.behavior)
	if err != nil {
		return err
	}

	env.Metrics.Uploaded(info.Size())
	logger.Debug("uploaded", zap.String("id", item.ID()), zap.Int64("size", info.Size()))

	stamped, err := env.Drive.UpdateItem(ctx, onedrived.ByID(item.ID()), onedrived.ItemUpdate{
		FileSystemInfo: &onedrived.FileSystemInfo{ModifiedTime: info.ModTime()},
	})
	if err != nil {
		if recordErr := env.record(item, ds.StatusError); recordErr != nil {
			logger.Error("could not record failed upload", zap.Error(recordErr))
		}

		return fmt.Errorf("stamp modification time: %w", err)
	}

	return env.record(stamped, ds.StatusOK)
}
