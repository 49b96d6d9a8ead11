// Package autoscaler implements a background monitor loop: sample the
// pool's metrics on an interval, aggregate a bounded history, and grow or
// shrink the worker count against configurable thresholds and cooldowns.
package autoscaler

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/go-foundations/jobengine/pool"
)

// Direction names a scaling event for the ScalingCallback.
type Direction int

const (
	ScaleUp Direction = iota
	ScaleDown
)

func (d Direction) String() string {
	if d == ScaleUp {
		return "scale_up"
	}
	return "scale_down"
}

// ScalingCallback fires after each scaling action has been applied; a
// decision that leaves the worker count unchanged does not fire it.
type ScalingCallback func(dir Direction, reason string, from, to int)

// ScaleUpPolicy holds the scale-up side of the threshold configuration.
type ScaleUpPolicy struct {
	UtilizationThreshold  float64
	QueueDepthPerWorker   int
	P95LatencyThreshold   time.Duration
	PendingJobsThreshold  int
	Increment             int
	Factor                float64 // if > 0, multiplicative: ceil(current * Factor)
	Cooldown              time.Duration
}

// ScaleDownPolicy holds the scale-down side.
type ScaleDownPolicy struct {
	UtilizationThreshold float64
	QueueDepthPerWorker  int
	IdleDuration         time.Duration
	Cooldown             time.Duration
}

// Policy bundles the full autoscaling configuration.
type Policy struct {
	SampleInterval      time.Duration
	SamplesForDecision  int
	MinWorkers          int
	MaxWorkers          int
	ScaleUp             ScaleUpPolicy
	ScaleDown           ScaleDownPolicy
	OnScalingEvent      ScalingCallback
}

func (p *Policy) applyDefaults() {
	if p.SampleInterval <= 0 {
		p.SampleInterval = time.Second
	}
	if p.SamplesForDecision <= 0 {
		p.SamplesForDecision = 5
	}
	if p.MinWorkers <= 0 {
		p.MinWorkers = 1
	}
	if p.MaxWorkers <= 0 {
		p.MaxWorkers = 64
	}
	if p.ScaleUp.UtilizationThreshold <= 0 {
		p.ScaleUp.UtilizationThreshold = 0.8
	}
	if p.ScaleUp.QueueDepthPerWorker <= 0 {
		p.ScaleUp.QueueDepthPerWorker = 100
	}
	if p.ScaleUp.P95LatencyThreshold <= 0 {
		p.ScaleUp.P95LatencyThreshold = 50 * time.Millisecond
	}
	if p.ScaleUp.PendingJobsThreshold <= 0 {
		p.ScaleUp.PendingJobsThreshold = 1000
	}
	if p.ScaleUp.Increment <= 0 && p.ScaleUp.Factor <= 0 {
		p.ScaleUp.Increment = 1
	}
	if p.ScaleDown.UtilizationThreshold <= 0 {
		p.ScaleDown.UtilizationThreshold = 0.3
	}
	if p.ScaleDown.IdleDuration <= 0 {
		p.ScaleDown.IdleDuration = 2 * time.Second
	}
}

// Validate rejects configurations that would oscillate or never converge.
func (p *Policy) Validate() error {
	if p.ScaleDown.UtilizationThreshold >= p.ScaleUp.UtilizationThreshold && p.ScaleUp.UtilizationThreshold > 0 && p.ScaleDown.UtilizationThreshold > 0 {
		return fmt.Errorf("autoscaler: scale_down threshold %.2f must be below scale_up threshold %.2f", p.ScaleDown.UtilizationThreshold, p.ScaleUp.UtilizationThreshold)
	}
	if p.MinWorkers > p.MaxWorkers {
		return fmt.Errorf("autoscaler: min_workers %d exceeds max_workers %d", p.MinWorkers, p.MaxWorkers)
	}
	if p.ScaleUp.Increment <= 0 && p.ScaleUp.Factor <= 0 {
		return fmt.Errorf("autoscaler: scale_up increment and factor cannot both be zero")
	}
	return nil
}

type sample struct {
	utilization float64
	queueDepth  int
	activeCount int
	workerCount int
	p95         time.Duration
	pending     uint64
}

// Autoscaler drives a pool's worker count from periodic samples.
type Autoscaler struct {
	cfg  Policy
	pool *pool.Pool

	mu      sync.Mutex
	history []sample

	lastScaleUp   time.Time
	lastScaleDown time.Time
	idleSince     map[int]time.Time

	stop    chan struct{}
	done    chan struct{}
}

// New constructs an Autoscaler for p. It fills in policy defaults and runs
// Validate, returning its error for a bad policy.
func New(p *pool.Pool, cfg Policy) (*Autoscaler, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Autoscaler{
		cfg:       cfg,
		pool:      p,
		idleSince: make(map[int]time.Time),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}, nil
}

// Start launches the monitor goroutine.
func (a *Autoscaler) Start() {
	go a.run()
}

// Stop signals the monitor to exit and waits for it to do so.
func (a *Autoscaler) Stop() {
	close(a.stop)
	<-a.done
}

func (a *Autoscaler) run() {
	defer close(a.done)
	ticker := time.NewTicker(a.cfg.SampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.stop:
			return
		case <-ticker.C:
			a.sampleAndDecide()
		}
	}
}

func (a *Autoscaler) sampleAndDecide() {
	snap := a.pool.Snapshot()
	workers := snap.WorkerCount
	if workers == 0 {
		workers = 1
	}

	s := sample{
		utilization: float64(snap.ActiveCount) / float64(workers),
		queueDepth:  snap.QueueDepth,
		activeCount: snap.ActiveCount,
		workerCount: snap.WorkerCount,
		p95:         snap.Latency.P95,
		pending:     snap.Submitted - snap.Completed - snap.Failed,
	}

	a.mu.Lock()
	a.history = append(a.history, s)
	if len(a.history) > a.cfg.SamplesForDecision {
		a.history = a.history[len(a.history)-a.cfg.SamplesForDecision:]
	}
	ready := len(a.history) >= a.cfg.SamplesForDecision
	var avg sample
	if ready {
		avg = a.aggregate()
	}
	a.mu.Unlock()

	if !ready {
		return
	}

	a.trackIdleWorkers()

	if a.shouldScaleUp(avg) {
		a.scaleUp(avg)
		return
	}
	if a.shouldScaleDown(avg) {
		a.scaleDown(avg)
	}
}

func (a *Autoscaler) aggregate() sample {
	var total sample
	n := len(a.history)
	for _, s := range a.history {
		total.utilization += s.utilization
		total.queueDepth += s.queueDepth
		total.activeCount += s.activeCount
		total.workerCount += s.workerCount
		total.p95 += s.p95
		total.pending += s.pending
	}
	return sample{
		utilization: total.utilization / float64(n),
		queueDepth:  total.queueDepth / n,
		activeCount: total.activeCount / n,
		workerCount: total.workerCount / n,
		p95:         total.p95 / time.Duration(n),
		pending:     total.pending / uint64(n),
	}
}

func (a *Autoscaler) trackIdleWorkers() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, w := range a.pool.WorkerSnapshots() {
		if w.HasCurrentJob {
			delete(a.idleSince, w.ID)
			continue
		}
		if _, ok := a.idleSince[w.ID]; !ok {
			a.idleSince[w.ID] = w.StateSince
		}
	}
}

func (a *Autoscaler) shouldScaleUp(avg sample) bool {
	if time.Since(a.lastScaleUp) < a.cfg.ScaleUp.Cooldown {
		return false
	}
	if avg.workerCount >= a.cfg.MaxWorkers {
		return false
	}
	perWorker := 0
	if avg.workerCount > 0 {
		perWorker = avg.queueDepth / avg.workerCount
	}
	return avg.utilization > a.cfg.ScaleUp.UtilizationThreshold ||
		perWorker > a.cfg.ScaleUp.QueueDepthPerWorker ||
		avg.p95 > a.cfg.ScaleUp.P95LatencyThreshold ||
		int(avg.pending) > a.cfg.ScaleUp.PendingJobsThreshold
}

func (a *Autoscaler) shouldScaleDown(avg sample) bool {
	if time.Since(a.lastScaleDown) < a.cfg.ScaleDown.Cooldown {
		return false
	}
	if avg.workerCount <= a.cfg.MinWorkers {
		return false
	}
	perWorker := 0
	if avg.workerCount > 0 {
		perWorker = avg.queueDepth / avg.workerCount
	}
	if avg.utilization >= a.cfg.ScaleDown.UtilizationThreshold {
		return false
	}
	if perWorker >= a.cfg.ScaleDown.QueueDepthPerWorker && a.cfg.ScaleDown.QueueDepthPerWorker > 0 {
		return false
	}
	return a.anyWorkerIdleLongEnough()
}

func (a *Autoscaler) anyWorkerIdleLongEnough() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, since := range a.idleSince {
		if time.Since(since) >= a.cfg.ScaleDown.IdleDuration {
			return true
		}
	}
	return false
}

func (a *Autoscaler) scaleUp(avg sample) {
	current := a.pool.WorkerCount()
	target := current + a.cfg.ScaleUp.Increment
	if a.cfg.ScaleUp.Factor > 0 {
		target = int(math.Ceil(float64(current) * a.cfg.ScaleUp.Factor))
	}
	if target > a.cfg.MaxWorkers {
		target = a.cfg.MaxWorkers
	}
	if target <= current {
		return
	}
	for i := current; i < target; i++ {
		a.pool.AddWorker()
	}
	a.lastScaleUp = time.Now()
	a.fire(ScaleUp, scaleReason(avg, a.cfg), current, target)
}

func (a *Autoscaler) scaleDown(avg sample) {
	current := a.pool.WorkerCount()
	target := current - 1
	if target < a.cfg.MinWorkers {
		return
	}

	a.mu.Lock()
	var victim int = -1
	var longestIdle time.Duration
	for id, since := range a.idleSince {
		if idle := time.Since(since); idle > longestIdle {
			longestIdle = idle
			victim = id
		}
	}
	a.mu.Unlock()
	if victim < 0 {
		return
	}

	if !a.pool.RemoveWorker(victim) {
		return
	}
	a.mu.Lock()
	delete(a.idleSince, victim)
	a.mu.Unlock()

	a.lastScaleDown = time.Now()
	a.fire(ScaleDown, "utilization below threshold with an idle worker available", current, current-1)
}

func (a *Autoscaler) fire(dir Direction, reason string, from, to int) {
	if a.cfg.OnScalingEvent != nil {
		a.cfg.OnScalingEvent(dir, reason, from, to)
	}
}

func scaleReason(avg sample, cfg Policy) string {
	switch {
	case avg.utilization > cfg.ScaleUp.UtilizationThreshold:
		return fmt.Sprintf("utilization %.2f exceeds threshold %.2f", avg.utilization, cfg.ScaleUp.UtilizationThreshold)
	case avg.p95 > cfg.ScaleUp.P95LatencyThreshold:
		return fmt.Sprintf("p95 latency %s exceeds threshold %s", avg.p95, cfg.ScaleUp.P95LatencyThreshold)
	case int(avg.pending) > cfg.ScaleUp.PendingJobsThreshold:
		return fmt.Sprintf("pending jobs %d exceeds threshold %d", avg.pending, cfg.ScaleUp.PendingJobsThreshold)
	default:
		return "queue depth per worker exceeds threshold"
	}
}
