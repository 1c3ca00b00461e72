package sheet

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Scheduler runs SendAll on a cron schedule.
type Scheduler struct {
	cron   *cron.Cron
	router *Router
}

// NewScheduler parses spec (standard five-field cron) and registers a
// SendAll run. Runs never overlap.
func NewScheduler(ctx context.Context, spec string, router *Router) (*Scheduler, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, eris.Wrapf(err, "sheet: parse schedule %q", spec)
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(schedule, cron.FuncJob(func() {
		if _, err := router.SendAll(ctx); err != nil {
			zap.L().Error("sheet: scheduled send failed", zap.Error(err))
		}
	}))
	return &Scheduler{cron: c, router: router}, nil
}

// Start begins running in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a running send to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Entries returns the number of registered jobs.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}
