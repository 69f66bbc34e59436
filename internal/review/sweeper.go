package review

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vendorlane/pulse/pkg/models"
)

// ApplicationSource lists applications still waiting on review.
type ApplicationSource interface {
	ListPendingApplications(ctx context.Context) ([]*models.Application, error)
}

// Notifier receives SLA breach notifications. The realtime hub implements
// this to push alerts to reviewer dashboards.
type Notifier interface {
	NotifySLABreach(ctx context.Context, app *models.Application, status SLAStatus)
}

// Sweeper periodically scans pending applications and notifies on reviews
// that are overdue or at risk.
type Sweeper struct {
	source   ApplicationSource
	notifier Notifier
	logger   *slog.Logger
	schedule string
	now      func() time.Time

	cron *cron.Cron

	mu       sync.Mutex
	notified map[string]SLAStatus
}

// NewSweeper builds a sweeper with a cron schedule (standard 5-field
// syntax, e.g. "*/15 * * * *").
func NewSweeper(source ApplicationSource, notifier Notifier, schedule string, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		source:   source,
		notifier: notifier,
		logger:   logger,
		schedule: schedule,
		now:      time.Now,
		notified: make(map[string]SLAStatus),
	}
}

// Start registers the cron entry and begins sweeping. Returns an error for
// an invalid schedule expression.
func (s *Sweeper) Start(ctx context.Context) error {
	c := cron.New()
	_, err := c.AddFunc(s.schedule, func() {
		s.Sweep(ctx)
	})
	if err != nil {
		return err
	}
	s.cron = c
	c.Start()
	s.logger.Info("review sla sweeper started", "schedule", s.schedule)
	return nil
}

// Stop halts the cron scheduler and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.cron = nil
}

// Sweep runs one scan immediately. Exposed for the serve loop's initial run
// and for tests; cron invokes it on schedule.
func (s *Sweeper) Sweep(ctx context.Context) {
	apps, err := s.source.ListPendingApplications(ctx)
	if err != nil {
		s.logger.Warn("sla sweep failed to list applications", "error", err)
		return
	}

	now := s.now()
	for _, app := range apps {
		status := StatusFor(app, now)
		if status == SLAOnTrack {
			s.clearNotified(app.ID)
			continue
		}
		if s.alreadyNotified(app.ID, status) {
			continue
		}
		s.logger.Info("review sla breach",
			"application_id", app.ID,
			"status", string(status),
			"priority", string(app.Priority),
			"deadline", Deadline(app.SubmittedAt, app.Priority))
		if s.notifier != nil {
			s.notifier.NotifySLABreach(ctx, app, status)
		}
		s.markNotified(app.ID, status)
	}
}

// alreadyNotified suppresses repeat notifications for the same application
// and status; an escalation from at_risk to overdue notifies again.
func (s *Sweeper) alreadyNotified(id string, status SLAStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notified[id] == status
}

func (s *Sweeper) markNotified(id string, status SLAStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notified[id] = status
}

func (s *Sweeper) clearNotified(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.notified, id)
}
