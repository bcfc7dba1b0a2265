// Package task implements the units of work a sync engine schedules to
// reconcile a local directory with a drive: uploading and downloading files,
// stamping modification times and creating folders.
//
// Every task runs at most once. Its outcome is recorded in the item store
// and exposed through State and Err.
package task

import (
	"context"
	"errors"
	"io"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/m-rots/onedrived"
	ds "github.com/m-rots/onedrived/datastore"
	"github.com/m-rots/onedrived/metrics"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// ErrNotAFile occurs when a file task points at a local directory.
var ErrNotAFile = errors.New("task: not a regular file")

// ErrNotAFolder occurs when a folder task is given a file.
var ErrNotAFolder = errors.New("task: not a folder")

// ErrSizeMismatch occurs when a download ends before or after the size
// reported by the server.
var ErrSizeMismatch = errors.New("task: size mismatch")

// Remote is the part of a drive the tasks operate on.
// It is implemented by *onedrived.Drive.
type Remote interface {
	Upload(ctx context.Context, name string, in io.Reader, size int64, parent onedrived.ItemRef, behavior onedrived.ConflictBehavior) (*onedrived.Item, error)
	UpdateItem(ctx context.Context, ref onedrived.ItemRef, update onedrived.ItemUpdate) (*onedrived.Item, error)
	Download(ctx context.Context, ref onedrived.ItemRef, rng *onedrived.ByteRange) (io.ReadCloser, error)
	CreateDir(ctx context.Context, name string, parent onedrived.ItemRef, behavior onedrived.ConflictBehavior) (*onedrived.Item, error)
}

// Env is shared by the tasks of one drive.
type Env struct {
	Drive     Remote
	Items     ds.ItemStore
	Fs        afero.Fs
	LocalRoot string

	// Optional
	MaxGetSize int64
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
}

func (env *Env) logger() *zap.Logger {
	if env.Logger == nil {
		return zap.NewNop()
	}

	return env.Logger
}

// localPath maps a remote path onto the local root.
func (env *Env) localPath(remote ...string) string {
	return filepath.Join(env.LocalRoot, filepath.FromSlash(path.Join(remote...)))
}

// remotePath joins the parts into an absolute path from the drive root.
func remotePath(parts ...string) string {
	return path.Join(append([]string{"/"}, parts...)...)
}

// record stores the item with the status.
func (env *Env) record(item *onedrived.Item, status ds.ItemStatus) error {
	record, err := onedrived.RecordFromItem(item, status)
	if err != nil {
		return err
	}

	return env.Items.PutItem(record)
}

// recordFailure marks a transfer of the item as failed. The tags and size
// of the previous record are kept, so the item still differs from it.
func (env *Env) recordFailure(item *onedrived.Item) error {
	record, err := onedrived.RecordFromItem(item, ds.StatusError)
	if err != nil {
		return err
	}

	prev, err := env.Items.Item(item.ID())
	switch {
	case err == nil:
		record.ETag = prev.ETag
		record.CTag = prev.CTag
		record.Size = prev.Size
		record.ModifiedTime = prev.ModifiedTime
		record.Snapshot = prev.Snapshot
	case errors.Is(err, ds.ErrNotFound):
		record.ETag = ""
		record.CTag = ""
	default:
		return err
	}

	return env.Items.PutItem(record)
}

// State is the lifecycle state of a task.
type State int

const (
	Created State = iota
	Running
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	}

	return "unknown"
}

// Task is a single unit of work.
type Task interface {
	// Name is the kind of task, such as "upload".
	Name() string

	// Key is the remote path the task operates on.
	// Tasks with the same key never run concurrently.
	Key() string

	// Handle runs the task. Calling Handle on a task which
	// is not in the Created state does nothing.
	Handle(ctx context.Context)

	State() State
	Err() error
}

type base struct {
	env  *Env
	name string
	key  string

	mu    sync.Mutex
	state State
	err   error
}

func (b *base) setup(env *Env, name string, remote ...string) {
	b.env = env
	b.name = name
	b.key = remotePath(remote...)
}

func (b *base) Name() string {
	return b.name
}

func (b *base) Key() string {
	return b.key
}

func (b *base) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *base) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// handle moves the task through its lifecycle around fn.
func (b *base) handle(ctx context.Context, fn func(ctx context.Context, logger *zap.Logger) error) {
	logger := b.env.logger().With(
		zap.String("task", b.name),
		zap.String("path", b.key))

	b.mu.Lock()
	if b.state != Created {
		state := b.state
		b.mu.Unlock()

		logger.Warn("task handled twice", zap.Stringer("state", state))
		return
	}

	b.state = Running
	b.mu.Unlock()

	start := time.Now()
	err := fn(ctx, logger)
	duration := time.Since(start)

	b.mu.Lock()
	b.err = err
	if err != nil {
		b.state = Failed
	} else {
		b.state = Completed
	}
	b.mu.Unlock()

	b.env.Metrics.TaskDone(b.name, err, duration)

	if err != nil {
		logger.Error("task failed", zap.Error(err), zap.Duration("duration", duration))
		return
	}

	logger.Info("task completed", zap.Duration("duration", duration))
}
