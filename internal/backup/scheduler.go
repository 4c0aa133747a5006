package backup

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler takes snapshots on a cron schedule.
type Scheduler struct {
	cron *cron.Cron
	log  *zap.Logger
}

// NewScheduler registers m.Create on the five-field cron expression expr.
// Descriptors such as @daily and @every 1h are accepted.
func NewScheduler(m *Manager, expr string, log *zap.Logger) (*Scheduler, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	if _, err := c.AddFunc(expr, func() {
		// Create logs its own failures.
		_, _ = m.Create()
	}); err != nil {
		return nil, fmt.Errorf("parsing backup schedule %q: %w", expr, err)
	}
	return &Scheduler{cron: c, log: log.With(zap.String("schedule", expr))}, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("backup scheduler started")
}

// Stop halts the schedule and waits for a running snapshot to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("backup scheduler stopped")
}
