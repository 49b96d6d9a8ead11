package jobengine

import "context"

// Executor is an optional interface a pool implementation can satisfy so
// it can be discovered and driven through a service container, without
// the core depending on any particular container framework.
type Executor interface {
	Submit(job *Job) error
	Execute(ctx context.Context, job *Job) (any, error)
	Shutdown(immediate bool) error
}
