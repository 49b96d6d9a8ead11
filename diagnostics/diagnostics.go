// Package diagnostics implements the inspection surface: a thread-dump of
// every worker, a heuristic bottleneck report, and a ring-buffer event
// tracer for job submit/start/complete events.
package diagnostics

import (
	"sync"
	"time"

	"github.com/go-foundations/jobengine"
	"github.com/go-foundations/jobengine/pool"
)

// ThreadDumpEntry is one worker's state at the moment of the dump.
type ThreadDumpEntry struct {
	WorkerID       int
	State          pool.WorkerState
	StateSince     time.Time
	CurrentJobID   uint64
	CurrentJobName string
	HasCurrentJob  bool
	JobsCompleted  uint64
	JobsFailed     uint64
}

// ThreadDump returns a structured snapshot of every worker in p.
func ThreadDump(p *pool.Pool) []ThreadDumpEntry {
	snaps := p.WorkerSnapshots()
	out := make([]ThreadDumpEntry, len(snaps))
	for i, s := range snaps {
		out[i] = ThreadDumpEntry{
			WorkerID:       s.ID,
			State:          s.State,
			StateSince:     s.StateSince,
			CurrentJobID:   s.CurrentJobID,
			CurrentJobName: s.CurrentJobName,
			HasCurrentJob:  s.HasCurrentJob,
			JobsCompleted:  s.JobsCompleted,
			JobsFailed:     s.JobsFailed,
		}
	}
	return out
}

// Reason tags a bottleneck report with the dominant suspected cause.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonQueueFull
	ReasonSlowConsumer
	ReasonWorkerStarvation
	ReasonUnevenDistribution
	ReasonLockContention
	ReasonMemoryPressure
)

func (r Reason) String() string {
	switch r {
	case ReasonQueueFull:
		return "queue_full"
	case ReasonSlowConsumer:
		return "slow_consumer"
	case ReasonWorkerStarvation:
		return "worker_starvation"
	case ReasonUnevenDistribution:
		return "uneven_distribution"
	case ReasonLockContention:
		return "lock_contention"
	case ReasonMemoryPressure:
		return "memory_pressure"
	default:
		return "none"
	}
}

// BottleneckReport is the diagnosis produced by Diagnose.
type BottleneckReport struct {
	Reason          Reason
	Recommendations []string
}

// queueFullThreshold and staleWorkerThreshold are heuristic cutoffs, not
// spec constants: they exist so Diagnose has something concrete to compare
// against without requiring the caller to tune every knob up front.
const (
	queueFullThreshold   = 1000
	staleWorkerThreshold = 5 * time.Second
	unevenRatioThreshold = 3.0
)

// Diagnose inspects a metrics snapshot and worker dump and returns the best
// single-reason bottleneck guess plus actionable recommendations.
func Diagnose(snap jobengine.MetricsSnapshot, dump []ThreadDumpEntry) BottleneckReport {
	if snap.QueueDepth > queueFullThreshold {
		return BottleneckReport{
			Reason: ReasonQueueFull,
			Recommendations: []string{
				"increase worker count or enable the autoscaler",
				"apply a backpressure policy to shed load instead of growing unbounded",
			},
		}
	}

	now := time.Now()
	stale := 0
	busy := 0
	for _, e := range dump {
		if e.State == pool.WorkerBusy {
			busy++
			if now.Sub(e.StateSince) > staleWorkerThreshold {
				stale++
			}
		}
	}
	if stale > 0 && stale == busy {
		return BottleneckReport{
			Reason: ReasonSlowConsumer,
			Recommendations: []string{
				"profile job execution; a worker has been busy for longer than expected",
				"consider a per-job timeout to bound worst-case execution time",
			},
		}
	}

	if idleCount, total := countIdle(dump); total > 0 && idleCount == total && snap.QueueDepth > 0 {
		return BottleneckReport{
			Reason: ReasonWorkerStarvation,
			Recommendations: []string{
				"jobs are queued but no worker is picking them up; check the dequeue wakeup path",
				"verify the pool condition variable is broadcast on every submit",
			},
		}
	}

	if ratio := completionSkew(dump); ratio > unevenRatioThreshold {
		return BottleneckReport{
			Reason: ReasonUnevenDistribution,
			Recommendations: []string{
				"work-stealing is not redistributing load evenly; check the steal strategy",
				"consider StealAdaptive if a typed pool restricts which workers can steal from which",
			},
		}
	}

	if snap.Rejected > 0 && snap.Rejected > snap.Completed/10 {
		return BottleneckReport{
			Reason: ReasonMemoryPressure,
			Recommendations: []string{
				"submission rejection rate is high; check backpressure capacity and overflow policy",
			},
		}
	}

	return BottleneckReport{Reason: ReasonNone}
}

func countIdle(dump []ThreadDumpEntry) (idle, total int) {
	for _, e := range dump {
		total++
		if e.State == pool.WorkerIdle {
			idle++
		}
	}
	return idle, total
}

func completionSkew(dump []ThreadDumpEntry) float64 {
	if len(dump) < 2 {
		return 0
	}
	var min, max uint64
	min = ^uint64(0)
	for _, e := range dump {
		if e.JobsCompleted < min {
			min = e.JobsCompleted
		}
		if e.JobsCompleted > max {
			max = e.JobsCompleted
		}
	}
	if min == 0 {
		if max == 0 {
			return 0
		}
		return float64(max)
	}
	return float64(max) / float64(min)
}

// EventKind tags an entry in the trace ring buffer.
type EventKind int

const (
	EventSubmit EventKind = iota
	EventStart
	EventComplete
)

func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventComplete:
		return "complete"
	default:
		return "submit"
	}
}

// Event is one recorded job lifecycle transition.
type Event struct {
	Kind     EventKind
	JobID    uint64
	JobName  string
	WorkerID int // -1 for submit events, which have no worker yet
	At       time.Time
}

// Tracer is a fixed-capacity ring buffer of recent job submit/start/
// complete events. Safe for concurrent use; the oldest event is
// overwritten once full.
type Tracer struct {
	mu     sync.Mutex
	buf    []Event
	next   int
	filled int
}

// NewTracer constructs a Tracer holding up to capacity events.
func NewTracer(capacity int) *Tracer {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Tracer{buf: make([]Event, capacity)}
}

// Record appends an event, overwriting the oldest entry if the buffer is full.
func (t *Tracer) Record(e Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf[t.next] = e
	t.next = (t.next + 1) % len(t.buf)
	if t.filled < len(t.buf) {
		t.filled++
	}
}

// Snapshot returns the recorded events in chronological order.
func (t *Tracer) Snapshot() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Event, t.filled)
	if t.filled < len(t.buf) {
		copy(out, t.buf[:t.filled])
		return out
	}
	// Buffer is full and wrapped: oldest entry is at t.next.
	copy(out, t.buf[t.next:])
	copy(out[len(t.buf)-t.next:], t.buf[:t.next])
	return out
}
