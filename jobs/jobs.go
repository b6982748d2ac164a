package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	// EvictRateLimitsSchedule runs limiter eviction once a minute.
	EvictRateLimitsSchedule = "@every 1m"
	// ReloadPolicySchedule picks up RBAC policy edits made in the database.
	ReloadPolicySchedule = "@every 1m"
)

// Evicter drops rate-limit state that has been idle for at least idle.
type Evicter interface {
	Evict(idle time.Duration) int
}

// PolicyLoader reloads authorization policy from storage.
type PolicyLoader interface {
	LoadPolicy() error
}

type Scheduler struct {
	cron *cron.Cron
	log  *zap.Logger
}

func NewScheduler(log *zap.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(),
		log:  log.Named("jobs"),
	}
}

// ScheduleEviction registers the limiter eviction job.
func (s *Scheduler) ScheduleEviction(ev Evicter, idle time.Duration) (cron.EntryID, error) {
	return s.cron.AddFunc(EvictRateLimitsSchedule, EvictIdleRateLimits(ev, idle, s.log))
}

// SchedulePolicyReload registers the RBAC policy refresh job.
func (s *Scheduler) SchedulePolicyReload(loader PolicyLoader) (cron.EntryID, error) {
	return s.cron.AddFunc(ReloadPolicySchedule, ReloadPolicy(loader, s.log))
}

func (s *Scheduler) Entries() []cron.Entry {
	return s.cron.Entries()
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("cron jobs scheduled", zap.Int("jobs", len(s.cron.Entries())))
}

// Stop waits for running jobs to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("cron jobs still running at shutdown")
	}
}

func EvictIdleRateLimits(ev Evicter, idle time.Duration, log *zap.Logger) func() {
	return func() {
		if n := ev.Evict(idle); n > 0 {
			log.Debug("evicted idle rate limit windows", zap.Int("keys", n))
		}
	}
}

func ReloadPolicy(loader PolicyLoader, log *zap.Logger) func() {
	return func() {
		if err := loader.LoadPolicy(); err != nil {
			log.Error("reloading casbin policy", zap.Error(err))
		}
	}
}
