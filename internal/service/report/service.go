// Package report orchestrates monthly report generation: aggregate the
// month, gate on preconditions and quota, call the model, persist.
package report

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/habitbloom/server/internal/domain/apperr"
	"github.com/habitbloom/server/internal/domain/models"
	"github.com/habitbloom/server/internal/service/aggregate"
	"github.com/habitbloom/server/pkg/clients/anthropic"
)

// minRecordDays is the precondition for generation: fewer logged days than
// this and there is nothing meaningful to analyze.
const minRecordDays = 3

// ReportStore is the slice of storage the service writes through.
type ReportStore interface {
	GetReport(ctx context.Context, userID, yearMonth string) (*models.MonthlyReport, error)
	UpsertReport(ctx context.Context, report models.MonthlyReport, seenCount int) (*models.MonthlyReport, error)
}

// Service implements the generation state machine.
type Service struct {
	agg     *aggregate.Service
	reports ReportStore
	model   anthropic.Client
	logger  *zap.Logger

	// mu serializes generation per (user, month) so two concurrent
	// regenerations cannot both pass the quota check on the same stored
	// count. The repository's conditional write backstops this across
	// processes.
	mu keyedMutex
}

// NewService wires a new report service instance.
func NewService(agg *aggregate.Service, reports ReportStore, model anthropic.Client, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{agg: agg, reports: reports, model: model, logger: logger}
}

// Generate runs one full generation for (userID, yearMonth) and returns the
// persisted report. The quota is checked before the model call so an
// exhausted month never spends a generation request.
func (s *Service) Generate(ctx context.Context, userID, yearMonth string) (*models.MonthlyReport, error) {
	if !aggregate.ValidYearMonth(yearMonth) {
		return nil, &apperr.ValidationError{Field: "yearMonth", Reason: "expected YYYY-MM"}
	}

	unlock := s.mu.lock(userID + "/" + yearMonth)
	defer unlock()

	snap, err := s.agg.MonthlySnapshot(ctx, userID, yearMonth)
	if err != nil {
		return nil, fmt.Errorf("aggregate month: %w", err)
	}

	if snap.RecordDays < minRecordDays {
		return nil, &apperr.InsufficientDataError{RecordDays: snap.RecordDays}
	}

	existing, err := s.reports.GetReport(ctx, userID, yearMonth)
	if err != nil {
		return nil, &apperr.PersistenceError{Op: "load report", Err: err}
	}

	seenCount := 0
	if existing != nil {
		seenCount = existing.RegenerateCount
	}
	if seenCount >= models.MaxRegenerations {
		return nil, apperr.ErrQuotaExceeded
	}

	prompt := BuildMonthlyPrompt(yearMonth, snap)

	payload, err := s.model.GenerateReport(ctx, prompt)
	if err != nil {
		s.logger.Error("model generation failed",
			zap.String("user_id", userID),
			zap.String("year_month", yearMonth),
			zap.Error(err))
		return nil, err
	}

	persisted, err := s.reports.UpsertReport(ctx, models.MonthlyReport{
		UserID:        userID,
		YearMonth:     yearMonth,
		Summary:       payload.Summary,
		Detail:        payload.Detail,
		Model:         s.model.ModelID(),
		PromptVersion: PromptVersion,
	}, seenCount)
	if err != nil {
		return nil, &apperr.PersistenceError{Op: "save report", Err: err}
	}

	s.logger.Info("monthly report generated",
		zap.String("user_id", userID),
		zap.String("year_month", yearMonth),
		zap.Int("record_days", snap.RecordDays),
		zap.Int("regenerate_count", persisted.RegenerateCount))

	return persisted, nil
}

// keyedMutex hands out one mutex per key. Entries are never evicted; the
// key space is (active user, month) pairs, which stays small.
type keyedMutex struct {
	locks sync.Map // string -> *sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	v, _ := k.locks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
