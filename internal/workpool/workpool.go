// Package workpool runs independent tasks across a bounded set of
// goroutines. A failing task never cancels its siblings: every task gets a
// Result, and the caller decides what a failure means.
package workpool

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"
)

// Task is a unit of work identified by Key (used in logs and results).
type Task[T any] struct {
	Key string
	Run func(ctx context.Context) (T, error)
}

// Result is the outcome of one Task.
type Result[T any] struct {
	Key     string
	Value   T
	Err     error
	Elapsed time.Duration
}

// Options bound the pool.
type Options struct {
	// Workers is the concurrency limit. Zero or negative selects
	// DefaultWorkers.
	Workers int
	// TaskTimeout bounds each task individually. Zero disables it.
	TaskTimeout time.Duration
	// OnDone, when set, is called from the worker goroutine after each task.
	OnDone func(Result[any])
}

// DefaultWorkers leaves one core free for I/O and logging.
func DefaultWorkers() int {
	n := runtime.NumCPU() - 1
	if n < 1 {
		return 1
	}
	return n
}

// Run executes tasks with at most opts.Workers in flight and returns their
// results in task order. Tasks not yet started when ctx is cancelled get
// ctx.Err() as their error.
func Run[T any](ctx context.Context, opts Options, tasks []Task[T]) []Result[T] {
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers()
	}

	results := make([]Result[T], len(tasks))
	var g errgroup.Group
	g.SetLimit(workers)

	for i, task := range tasks {
		if err := ctx.Err(); err != nil {
			results[i] = Result[T]{Key: task.Key, Err: err}
			continue
		}
		g.Go(func() error {
			results[i] = runOne(ctx, opts.TaskTimeout, task)
			if opts.OnDone != nil {
				r := results[i]
				opts.OnDone(Result[any]{Key: r.Key, Value: r.Value, Err: r.Err, Elapsed: r.Elapsed})
			}
			// Errors stay in results so one task cannot cancel the rest.
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func runOne[T any](ctx context.Context, timeout time.Duration, task Task[T]) (res Result[T]) {
	res.Key = task.Key
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("task %s panicked: %v\n%s", task.Key, r, debug.Stack())
		}
		res.Elapsed = time.Since(start)
	}()

	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	res.Value, res.Err = task.Run(ctx)
	if res.Err == nil && ctx.Err() != nil {
		// A task that ignored its deadline still counts as timed out.
		res.Err = fmt.Errorf("task %s: %w", task.Key, ctx.Err())
	}
	return res
}

// Failed returns the results that carry an error.
func Failed[T any](results []Result[T]) []Result[T] {
	var out []Result[T]
	for _, r := range results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}
