package task

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Runner handles tasks with bounded parallelism. Tasks sharing a key run
// one after the other in submission order; a failed task never cancels
// any other task.
type Runner struct {
	workers int
	logger  *zap.Logger

	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func NewRunner(workers int, logger *zap.Logger) *Runner {
	if workers < 1 {
		workers = 1
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Runner{
		workers: workers,
		logger:  logger,
		locks:   make(map[string]*keyLock),
	}
}

func (r *Runner) lock(key string) {
	r.mu.Lock()
	l, ok := r.locks[key]
	if !ok {
		l = new(keyLock)
		r.locks[key] = l
	}
	l.refs++
	r.mu.Unlock()

	l.mu.Lock()
}

func (r *Runner) unlock(key string) {
	r.mu.Lock()
	l := r.locks[key]
	l.refs--
	if l.refs == 0 {
		delete(r.locks, key)
	}
	r.mu.Unlock()

	l.mu.Unlock()
}

// Run handles the tasks and waits for all of them. It returns the errors of
// the failed tasks joined together. Tasks which have not started when ctx
// is cancelled are skipped and stay Created.
func (r *Runner) Run(ctx context.Context, tasks ...Task) error {
	var order []string
	chains := make(map[string][]Task)

	for _, t := range tasks {
		if _, ok := chains[t.Key()]; !ok {
			order = append(order, t.Key())
		}

		chains[t.Key()] = append(chains[t.Key()], t)
	}

	var g errgroup.Group
	g.SetLimit(r.workers)

	for _, key := range order {
		key := key
		chain := chains[key]

		g.Go(func() error {
			r.lock(key)
			defer r.unlock(key)

			for _, t := range chain {
				if ctx.Err() != nil {
					r.logger.Debug("skipping task", zap.String("task", t.Name()), zap.String("path", key))
					continue
				}

				t.Handle(ctx)
			}

			return nil
		})
	}

	g.Wait()

	var errs []error
	for _, t := range tasks {
		if t.State() == Failed {
			errs = append(errs, t.Err())
		}
	}

	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
