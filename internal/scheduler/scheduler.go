// Package scheduler runs the periodic housekeeping jobs: starting pools
// whose kickoff has passed and sweeping expired standings from the cache.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
)

// Kicker starts every pool that is due and reports how many it moved.
type Kicker interface {
	StartDuePools(ctx context.Context) (int, error)
}

// Sweeper drops expired cache items and reports how many went.
type Sweeper interface {
	Sweep() int
}

type Config struct {
	KickoffInterval    time.Duration
	CacheSweepInterval time.Duration
}

type Scheduler struct {
	sched   gocron.Scheduler
	kicker  Kicker
	sweeper Sweeper
}

func New(cfg Config, clock clockwork.Clock, kicker Kicker, sweeper Sweeper) (*Scheduler, error) {
	sched, err := gocron.NewScheduler(gocron.WithClock(clock))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	s := &Scheduler{sched: sched, kicker: kicker, sweeper: sweeper}

	if _, err := sched.NewJob(
		gocron.DurationJob(cfg.KickoffInterval),
		gocron.NewTask(s.Kickoff),
		gocron.WithName("kickoff"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return nil, fmt.Errorf("schedule kickoff job: %w", err)
	}

	if _, err := sched.NewJob(
		gocron.DurationJob(cfg.CacheSweepInterval),
		gocron.NewTask(s.SweepCache),
		gocron.WithName("cache-sweep"),
	); err != nil {
		return nil, fmt.Errorf("schedule cache sweep job: %w", err)
	}

	return s, nil
}

func (s *Scheduler) Start() {
	s.sched.Start()
}

func (s *Scheduler) Shutdown() error {
	return s.sched.Shutdown()
}

// JobNames lists the registered jobs.
func (s *Scheduler) JobNames() []string {
	jobs := s.sched.Jobs()
	names := make([]string, len(jobs))
	for i, j := range jobs {
		names[i] = j.Name()
	}
	return names
}

func (s *Scheduler) Kickoff() {
	n, err := s.kicker.StartDuePools(context.Background())
	if err != nil {
		slog.Error("kickoff job failed", "error", err, "started", n)
		return
	}
	if n > 0 {
		slog.Info("pools started", "count", n)
	}
}

func (s *Scheduler) SweepCache() {
	if n := s.sweeper.Sweep(); n > 0 {
		slog.Debug("standings cache swept", "removed", n)
	}
}
