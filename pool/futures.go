package pool

import (
	"context"

	"github.com/go-foundations/jobengine"
	"github.com/go-foundations/jobengine/token"
	"golang.org/x/sync/errgroup"
)

// Future is the handle returned by SubmitAsync: a promise whose result
// becomes available once the wrapped job finishes executing, by wrapping
// the callable in a job whose execute stores the result in a shared
// promise.
type Future struct {
	done   chan struct{}
	result any
	err    error
}

// Wait blocks until the job completes or ctx is done.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(result any, err error) {
	f.result = result
	f.err = err
	close(f.done)
}

// SubmitAsync wraps fn in a job, submits it, and returns a Future for its
// result.
func (p *Pool) SubmitAsync(fn jobengine.ExecuteFunc) (*Future, error) {
	future := newFuture()
	job := jobengine.New("future", func(ctx context.Context) (any, error) {
		result, err := fn(ctx)
		future.resolve(result, err)
		return result, err
	})
	if err := p.Submit(job); err != nil {
		return nil, err
	}
	return future, nil
}

// SubmitBatchAsync submits every fn and returns one Future per job, in
// order.
func (p *Pool) SubmitBatchAsync(fns []jobengine.ExecuteFunc) ([]*Future, error) {
	futures := make([]*Future, len(fns))
	for i, fn := range fns {
		future, err := p.SubmitAsync(fn)
		if err != nil {
			return nil, err
		}
		futures[i] = future
	}
	return futures, nil
}

// SubmitAll submits every fn and blocks until all complete, returning
// their results in order or the first error encountered.
func (p *Pool) SubmitAll(ctx context.Context, fns []jobengine.ExecuteFunc) ([]any, error) {
	futures, err := p.SubmitBatchAsync(fns)
	if err != nil {
		return nil, err
	}

	results := make([]any, len(futures))
	group, gctx := errgroup.WithContext(ctx)
	for i, future := range futures {
		i, future := i, future
		group.Go(func() error {
			result, err := future.Wait(gctx)
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// SubmitAny submits every fn and returns the first result to complete
// successfully; every other job's attached token is cancelled once a
// winner is found.
func (p *Pool) SubmitAny(ctx context.Context, fns []jobengine.ExecuteFunc) (any, error) {
	type outcome struct {
		result any
		err    error
	}
	outcomes := make(chan outcome, len(fns))
	tokens := make([]token.Token, len(fns))

	for i, fn := range fns {
		tok := token.New()
		tokens[i] = tok
		fn := fn
		job := jobengine.New("race", func(ctx context.Context) (any, error) {
			return fn(ctx)
		}).WithCancellation(tok)

		job = job.WithOnComplete(func(result any) {
			outcomes <- outcome{result: result}
		}).WithOnError(func(err error) {
			outcomes <- outcome{err: err}
		})

		if err := p.Submit(job); err != nil {
			outcomes <- outcome{err: err}
		}
	}

	var lastErr error
	for i := 0; i < len(fns); i++ {
		select {
		case o := <-outcomes:
			if o.err == nil {
				for _, tok := range tokens {
					tok.Cancel()
				}
				return o.result, nil
			}
			lastErr = o.err
		case <-ctx.Done():
			for _, tok := range tokens {
				tok.Cancel()
			}
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}
