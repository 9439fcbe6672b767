package jobs

import (
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/emihleChallotteBooi/editingList/internal/metrics"
	"github.com/emihleChallotteBooi/editingList/internal/session"
	"github.com/emihleChallotteBooi/editingList/internal/utils"
)

// StatsSource is anything that can report hub occupancy.
type StatsSource interface {
	Stats() session.Stats
}

// StatsReporter periodically logs room and connection counts and refreshes the gauges.
type StatsReporter struct {
	source   StatsSource
	log      *utils.Logger
	schedule string
	cron     *cron.Cron
}

func NewStatsReporter(source StatsSource, log *utils.Logger, schedule string) *StatsReporter {
	if log == nil {
		log = utils.Nop()
	}
	return &StatsReporter{
		source:   source,
		log:      log,
		schedule: schedule,
		cron:     cron.New(),
	}
}

// Start schedules the reporter. An empty schedule disables it.
func (r *StatsReporter) Start() error {
	if r.schedule == "" {
		r.log.Info("stats reporter disabled")
		return nil
	}
	if _, err := r.cron.AddFunc(r.schedule, func() { r.RunOnce() }); err != nil {
		return fmt.Errorf("failed to schedule stats reporter: %w", err)
	}
	r.cron.Start()
	r.log.Info("stats reporter started", "schedule", r.schedule)
	return nil
}

// Stop waits for a running report to finish.
func (r *StatsReporter) Stop() {
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
}

// RunOnce performs a single report.
func (r *StatsReporter) RunOnce() session.Stats {
	s := r.source.Stats()
	metrics.SetActive(s.Rooms, s.Connections)
	r.log.Info("collab stats", "rooms", s.Rooms, "connections", s.Connections)
	return s
}
