package task

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/m-rots/onedrived"
	ds "github.com/m-rots/onedrived/datastore"
	"go.uber.org/zap"
)

// DownloadFile downloads a remote file into the matching local directory.
// The content is written to a temporary file first, which is renamed onto
// the final path once complete. The local file gets the modification time
// of the remote item.
//
// Files larger than the max get size of the environment are requested in
// ranges of that size.
type DownloadFile struct {
	base
	parent string
	item   *onedrived.Item
}

func NewDownloadFile(env *Env, parent string, item *onedrived.Item) *DownloadFile {
	name, _ := item.Name()

	t := &DownloadFile{parent: parent, item: item}
	t.setup(env, "download", parent, name)
	return t
}

func (t *DownloadFile) Handle(ctx context.Context) {
	t.handle(ctx, func(ctx context.Context, logger *zap.Logger) error {
		err := t.run(ctx, logger)
		if err != nil {
			if recordErr := t.env.recordFailure(t.item); recordErr != nil {
				logger.Error("could not record failed download", zap.Error(recordErr))
			}
		}

		return err
	})
}

func (t *DownloadFile) run(ctx context.Context, logger *zap.Logger) error {
	env := t.env

	name, err := t.item.Name()
	if err != nil {
		return err
	}

	if t.item.IsFolder() {
		return fmt.Errorf("%v: %w", name, ErrNotAFile)
	}

	dir := env.localPath(t.parent)
	if err := env.Fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("mkdir %v: %w", dir, err)
	}

	final := filepath.Join(dir, name)
	tmp := filepath.Join(dir, fmt.Sprintf(".%s.%s.part", name, uuid.NewString()))

	if err := t.fetch(ctx, tmp); err != nil {
		if removeErr := env.Fs.Remove(tmp); removeErr != nil {
			logger.Debug("could not remove temporary file", zap.String("tmp", tmp), zap.Error(removeErr))
		}

		return err
	}

	if err := env.Fs.Rename(tmp, final); err != nil {
		env.Fs.Remove(tmp)
		return fmt.Errorf("rename %v: %w", final, err)
	}

	if modified, err := t.item.ModifiedTime(); err == nil {
		if err := env.Fs.Chtimes(final, modified, modified); err != nil {
			return fmt.Errorf("chtimes %v: %w", final, err)
		}
	}

	return env.record(t.item, ds.StatusOK)
}

// fetch streams the content of the item into path.
func (t *DownloadFile) fetch(ctx context.Context, path string) error {
	env := t.env

	f, err := env.Fs.Create(path)
	if err != nil {
		return fmt.Errorf("create %v: %w", path, err)
	}

	defer f.Close()

	size, sizeErr := t.item.Size()

	if sizeErr != nil || env.MaxGetSize <= 0 || size <= env.MaxGetSize {
		n, err := t.copy(ctx, f, nil)
		if err != nil {
			return err
		}

		if sizeErr == nil && size != n {
			return fmt.Errorf("received %d of %d bytes: %w", n, size, ErrSizeMismatch)
		}

		return f.Close()
	}

	for start := int64(0); start < size; start += env.MaxGetSize {
		rng := &onedrived.ByteRange{Start: start, End: min(start+env.MaxGetSize, size) - 1}

		n, err := t.copy(ctx, f, rng)
		if err != nil {
			return err
		}

		if expected := rng.End - rng.Start + 1; n != expected {
			return fmt.Errorf("received %d of %d bytes at %d: %w", n, expected, start, ErrSizeMismatch)
		}
	}

	return f.Close()
}

// copy appends the content of the item, or of the range, to w.
func (t *DownloadFile) copy(ctx context.Context, w io.Writer, rng *onedrived.ByteRange) (int64, error) {
	body, err := t.env.Drive.Download(ctx, onedrived.ByID(t.item.ID()), rng)
	if err != nil {
		return 0, err
	}

	defer body.Close()

	n, err := io.Copy(w, body)
	t.env.Metrics.Downloaded(n)
	if err != nil {
		return n, fmt.Errorf("download %v: %w", t.item.ID(), err)
	}

	return n, nil
}
