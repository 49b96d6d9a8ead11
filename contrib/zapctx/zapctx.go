// Package zapctx is an optional ThreadContext implementation backed by
// go.uber.org/zap, for callers who want structured logging instead of the
// noop default. Not imported by the core engine packages.
package zapctx

import (
	"go.uber.org/zap"

	"github.com/go-foundations/jobengine"
)

// Context adapts a *zap.Logger to jobengine.ThreadContext. MetricsSink is
// logged at debug level as a structured event; callers wanting a real
// metrics backend should wrap a different sink instead.
type Context struct {
	logger *zap.Logger
}

// New wraps logger as a jobengine.ThreadContext.
func New(logger *zap.Logger) *Context {
	return &Context{logger: logger}
}

func (c *Context) Log(level jobengine.LogLevel, message string) {
	switch level {
	case jobengine.LogDebug:
		c.logger.Debug(message)
	case jobengine.LogWarn:
		c.logger.Warn(message)
	case jobengine.LogError:
		c.logger.Error(message)
	default:
		c.logger.Info(message)
	}
}

func (c *Context) MetricsSink(snapshot jobengine.MetricsSnapshot) {
	c.logger.Debug("pool metrics snapshot",
		zap.String("pool", snapshot.PoolName),
		zap.String("instance_id", snapshot.InstanceID.String()),
		zap.Int("worker_count", snapshot.WorkerCount),
		zap.Int("active_count", snapshot.ActiveCount),
		zap.Int("queue_depth", snapshot.QueueDepth),
		zap.Uint64("submitted", snapshot.Submitted),
		zap.Uint64("completed", snapshot.Completed),
		zap.Uint64("failed", snapshot.Failed),
		zap.Uint64("rejected", snapshot.Rejected),
		zap.Duration("total_busy", snapshot.TotalBusy),
		zap.Duration("total_idle", snapshot.TotalIdle),
	)
}
