package sweep

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/realmgate/realmgate/internal/store"
	"github.com/realmgate/realmgate/params"
)

// Job is one idempotent retention task. Jobs delete by expiry cutoff,
// so running twice, or on two nodes at once, is harmless; the lease
// only avoids wasted work.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Sweeper runs retention jobs on their intervals, coordinated across
// instances by a short-lived lease per job.
type Sweeper struct {
	leases store.Store[int64]
	jobs   []Job
}

func NewSweeper(storage store.Storage, jobs []Job) *Sweeper {
	return &Sweeper{
		leases: store.New[int64](storage, params.SweepLeaseKeyPrefix),
		jobs:   jobs,
	}
}

// acquireLease claims a job run. The first increment on a fresh key
// observes 1 and wins; the key's TTL releases the claim.
func (s *Sweeper) acquireLease(ctx context.Context, job Job) (bool, error) {
	claims, err := s.leases.IncrAttr(ctx, job.Name, "claims", 1)
	if err != nil {
		return false, err
	}
	if claims != 1 {
		return false, nil
	}
	if err := s.leases.Expire(ctx, job.Name, time.Now().Add(params.SweepLeaseDuration)); err != nil {
		// a claim with no TTL would starve the job on every node
		s.leases.Delete(ctx, job.Name)
		return false, err
	}
	return true, nil
}

func (s *Sweeper) runJob(ctx context.Context, job Job) {
	won, err := s.acquireLease(ctx, job)
	if err != nil {
		slog.Warn("Sweep lease acquisition failed", "job", job.Name, "error", err)
		return
	}
	if !won {
		return
	}
	start := time.Now()
	if err := job.Run(ctx); err != nil {
		slog.Warn("Sweep job failed", "job", job.Name, "error", err)
		return
	}
	slog.Debug("Sweep job finished", "job", job.Name, "elapsed", time.Since(start))
}

// Run drives every job on its own ticker until the context is
// canceled.
func (s *Sweeper) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, job := range s.jobs {
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			ticker := time.NewTicker(job.Interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					s.runJob(ctx, job)
				}
			}
		}(job)
	}
	wg.Wait()
	return ctx.Err()
}

// RunOnce executes every registered job immediately, bypassing both
// intervals and leases. The admin resweep endpoint calls this.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	for _, job := range s.jobs {
		if err := job.Run(ctx); err != nil {
			return err
		}
	}
	return nil
}
