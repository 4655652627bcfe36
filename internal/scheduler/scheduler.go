// Package scheduler runs periodic refreshes on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "runon/internal/log"
)

type Scheduler struct {
	cron *cron.Cron
	spec string
}

// New validates spec (standard 5-field cron syntax or descriptors such as
// "@every 15m") and registers job under it. Nothing runs until Start.
func New(spec string, loc *time.Location, job func()) (*Scheduler, error) {
	if loc == nil {
		loc = time.Local
	}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := c.AddFunc(spec, func() {
		appLog.Debug("scheduled refresh", "spec", spec)
		job()
	}); err != nil {
		return nil, fmt.Errorf("scheduler: invalid spec %q: %w", spec, err)
	}
	return &Scheduler{cron: c, spec: spec}, nil
}

func (s *Scheduler) Start() {
	appLog.Info("scheduler started", "spec", s.spec)
	s.cron.Start()
}

// Next reports when the job fires next; zero before Start.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Stop prevents further runs and waits for a running job, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		appLog.Warn("scheduler stop timed out", "spec", s.spec)
	}
}
