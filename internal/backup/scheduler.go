package backup

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler fires the two nightly runs. Each trigger spawns its own
// goroutine so a slow full backup cannot delay the SQL-only one.
type Scheduler struct {
	cron   *cron.Cron
	runner *Runner
	log    *slog.Logger
}

func NewScheduler(runner *Runner, log *slog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC)),
		runner: runner,
		log:    log,
	}

	if _, err := s.cron.AddFunc("0 4 * * *", func() { s.run(KindFull) }); err != nil {
		return nil, err
	}
	if _, err := s.cron.AddFunc("5 4 * * *", func() { s.run(KindSQL) }); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) run(kind Kind) {
	go func() {
		if _, err := s.runner.Run(context.Background(), kind); err != nil {
			s.log.Error("backup_run_failed", "kind", string(kind), "error", err)
		}
	}()
}

// Start begins the schedule; Stop drains without cancelling a run already
// in flight.
func (s *Scheduler) Start() { s.cron.Start() }

func (s *Scheduler) Stop() { s.cron.Stop() }
