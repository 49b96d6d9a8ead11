package zapctx

import (
	"testing"

	"github.com/go-foundations/jobengine"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestLogDispatchesBySeverity(t *testing.T) {
	ctx := New(zaptest.NewLogger(t))
	ctx.Log(jobengine.LogDebug, "debug message")
	ctx.Log(jobengine.LogInfo, "info message")
	ctx.Log(jobengine.LogWarn, "warn message")
	ctx.Log(jobengine.LogError, "error message")
}

func TestMetricsSinkDoesNotPanic(t *testing.T) {
	ctx := New(zaptest.NewLogger(t))
	require.NotPanics(t, func() {
		ctx.MetricsSink(jobengine.MetricsSnapshot{
			PoolName:   "test",
			InstanceID: uuid.New(),
		})
	})
}
