package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/habitbloom/server/internal/config"
	"github.com/habitbloom/server/internal/domain/apperr"
	"github.com/habitbloom/server/internal/domain/models"
	"github.com/habitbloom/server/internal/service/aggregate"
)

// ReportGenerator runs one monthly report generation.
type ReportGenerator interface {
	Generate(ctx context.Context, userID, yearMonth string) (*models.MonthlyReport, error)
}

// ActivityStore lists who logged during a month and whether a report
// already exists for them.
type ActivityStore interface {
	ListActiveUsers(ctx context.Context, dateFrom, dateTo string) ([]string, error)
	GetReport(ctx context.Context, userID, yearMonth string) (*models.MonthlyReport, error)
}

// Scheduler pre-generates last month's reports shortly after each month
// ends, so most users open an already-finished report.
type Scheduler struct {
	cron      *cron.Cron
	generator ReportGenerator
	store     ActivityStore
	cfg       config.SchedulerConfig
	logger    *zap.Logger
	now       func() time.Time
}

// NewScheduler creates a new scheduler instance in the configured timezone.
func NewScheduler(cfg config.SchedulerConfig, generator ReportGenerator, store ActivityStore, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	return &Scheduler{
		cron:      cron.New(cron.WithLocation(loc)),
		generator: generator,
		store:     store,
		cfg:       cfg,
		logger:    logger,
		now:       func() time.Time { return time.Now().In(loc) },
	}, nil
}

// Start registers and starts the month-end job.
func (s *Scheduler) Start() {
	s.logger.Info("starting scheduler", zap.String("schedule", s.cfg.CronSchedule))

	if _, err := s.cron.AddFunc(s.cfg.CronSchedule, s.generateLastMonthReports); err != nil {
		s.logger.Error("failed to schedule monthly report job", zap.Error(err))
	}

	s.cron.Start()
}

// Stop stops the scheduler.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	s.cron.Stop()
}

func (s *Scheduler) generateLastMonthReports() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	yearMonth := previousYearMonth(s.now())
	s.logger.Info("pre-generating monthly reports", zap.String("year_month", yearMonth))

	from, to, err := aggregate.MonthRange(yearMonth)
	if err != nil {
		s.logger.Error("failed to resolve month range", zap.Error(err))
		return
	}

	users, err := s.store.ListActiveUsers(ctx, from, to)
	if err != nil {
		s.logger.Error("failed to list active users", zap.Error(err))
		return
	}

	var generated, skipped, failed int
	for _, userID := range users {
		existing, err := s.store.GetReport(ctx, userID, yearMonth)
		if err != nil {
			s.logger.Error("failed to check existing report", zap.String("user_id", userID), zap.Error(err))
			failed++
			continue
		}
		// Only ever spend the first of the user's three generations;
		// regenerations stay theirs.
		if existing != nil {
			skipped++
			continue
		}

		if _, err := s.generator.Generate(ctx, userID, yearMonth); err != nil {
			var insufficient *apperr.InsufficientDataError
			if errors.As(err, &insufficient) {
				skipped++
				continue
			}
			s.logger.Error("scheduled generation failed", zap.String("user_id", userID), zap.Error(err))
			failed++
			continue
		}
		generated++
	}

	s.logger.Info("monthly report job finished",
		zap.String("year_month", yearMonth),
		zap.Int("generated", generated),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed))
}

// previousYearMonth returns the YYYY-MM of the month before now.
func previousYearMonth(now time.Time) string {
	firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return firstOfMonth.AddDate(0, 0, -1).Format("2006-01")
}
