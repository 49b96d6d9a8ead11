package benchmarks

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-foundations/jobengine"
	"github.com/go-foundations/jobengine/pool"
	"github.com/go-foundations/jobengine/strategies"
)

func BenchmarkRoundRobin(b *testing.B) {
	benchmarkStrategy(b, strategies.RoundRobin, 100)
}

func BenchmarkChunked(b *testing.B) {
	benchmarkStrategy(b, strategies.Chunked, 100)
}

func BenchmarkWorkStealing(b *testing.B) {
	benchmarkStrategy(b, strategies.WorkStealing, 100)
}

func benchmarkStrategy(b *testing.B, kind strategies.DistributionStrategy, numJobs int) {
	p := pool.New(pool.Config{NumWorkers: 4})
	if err := p.Start(); err != nil {
		b.Fatal(err)
	}
	defer p.Stop(true)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var wg sync.WaitGroup
		jobs := benchmarkJobs(numJobs, &wg)
		var err error
		switch kind {
		case strategies.RoundRobin:
			err = strategies.SubmitRoundRobin(context.Background(), p, jobs)
		case strategies.Chunked:
			err = strategies.SubmitChunked(context.Background(), p, jobs)
		default:
			err = strategies.SubmitWorkStealing(context.Background(), p, jobs)
		}
		if err != nil {
			b.Fatal(err)
		}
		wg.Wait()
	}
}

func BenchmarkWorkerCounts(b *testing.B) {
	for _, numWorkers := range []int{1, 2, 4, 8, 16} {
		b.Run(fmt.Sprintf("Workers_%d", numWorkers), func(b *testing.B) {
			p := pool.New(pool.Config{NumWorkers: numWorkers})
			if err := p.Start(); err != nil {
				b.Fatal(err)
			}
			defer p.Stop(true)

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				var wg sync.WaitGroup
				jobs := benchmarkJobs(100, &wg)
				if err := strategies.SubmitRoundRobin(context.Background(), p, jobs); err != nil {
					b.Fatal(err)
				}
				wg.Wait()
			}
		})
	}
}

func BenchmarkJobSizes(b *testing.B) {
	for _, jobSize := range []int{10, 100, 1000, 10000} {
		b.Run(fmt.Sprintf("Jobs_%d", jobSize), func(b *testing.B) {
			p := pool.New(pool.Config{NumWorkers: 4})
			if err := p.Start(); err != nil {
				b.Fatal(err)
			}
			defer p.Stop(true)

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				var wg sync.WaitGroup
				jobs := benchmarkJobs(jobSize, &wg)
				if err := strategies.SubmitRoundRobin(context.Background(), p, jobs); err != nil {
					b.Fatal(err)
				}
				wg.Wait()
			}
		})
	}
}

func BenchmarkProcessingTimes(b *testing.B) {
	procTimes := []time.Duration{0, time.Microsecond, 10 * time.Microsecond, 100 * time.Microsecond, time.Millisecond}

	for _, procTime := range procTimes {
		b.Run(fmt.Sprintf("ProcTime_%v", procTime), func(b *testing.B) {
			p := pool.New(pool.Config{NumWorkers: 4})
			if err := p.Start(); err != nil {
				b.Fatal(err)
			}
			defer p.Stop(true)

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				var wg sync.WaitGroup
				jobs := make([]*jobengine.Job, 100)
				for j := 0; j < 100; j++ {
					j := j
					wg.Add(1)
					jobs[j] = jobengine.New(fmt.Sprintf("job_%d", j), func(ctx context.Context) (any, error) {
						defer wg.Done()
						if procTime > 0 {
							time.Sleep(procTime)
						}
						return strings.ToUpper(fmt.Sprintf("data_%d", j)), nil
					})
				}
				if err := strategies.SubmitRoundRobin(context.Background(), p, jobs); err != nil {
					b.Fatal(err)
				}
				wg.Wait()
			}
		})
	}
}

func benchmarkJobs(n int, wg *sync.WaitGroup) []*jobengine.Job {
	jobs := make([]*jobengine.Job, n)
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		jobs[i] = jobengine.New(fmt.Sprintf("job_%d", i), func(ctx context.Context) (any, error) {
			defer wg.Done()
			return strings.ToUpper(fmt.Sprintf("data_%d", i)), nil
		}).WithPriority(jobengine.Priority(i % 3))
	}
	return jobs
}
