// Package aggregate derives the monthly statistics the report prompt is
// built from.
package aggregate

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/habitbloom/server/internal/domain/models"
)

const dateLayout = "2006-01-02"

// NoNotesPlaceholder is rendered into the prompt when the month has no
// free-text notes.
const NoNotesPlaceholder = "(기록된 메모 없음)"

var yearMonthPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// ValidYearMonth reports whether s is a well-formed YYYY-MM identifier.
func ValidYearMonth(s string) bool {
	return yearMonthPattern.MatchString(s)
}

// MonthRange resolves yearMonth into the inclusive [first, last] date pair
// for that calendar month. The last day comes from day 0 of the next month,
// which handles variable month lengths and leap years.
func MonthRange(yearMonth string) (string, string, error) {
	if !ValidYearMonth(yearMonth) {
		return "", "", fmt.Errorf("malformed year-month %q", yearMonth)
	}

	first, err := time.Parse("2006-01", yearMonth)
	if err != nil {
		return "", "", fmt.Errorf("malformed year-month %q: %w", yearMonth, err)
	}

	last := time.Date(first.Year(), first.Month()+1, 0, 0, 0, 0, 0, time.UTC)
	return first.Format(dateLayout), last.Format(dateLayout), nil
}

// LogStore is the slice of storage the aggregator reads from.
type LogStore interface {
	QueryLogs(ctx context.Context, userID, dateFrom, dateTo string) ([]models.DailyLogEntry, error)
}

// Snapshot carries the raw month of entries plus the derived aggregates.
type Snapshot struct {
	Entries         []models.DailyLogEntry
	RecordDays      int
	MoodSummary     map[string]int // display label -> day count
	AvgRoutineScore int            // rounded mean, 0 when no entries
	NotesBlock      string
}

// Service computes monthly snapshots.
type Service struct {
	logs   LogStore
	logger *zap.Logger
}

// NewService wires a new aggregator instance.
func NewService(logs LogStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{logs: logs, logger: logger}
}

// MonthlySnapshot fetches the user's entries for the month and derives the
// aggregates. Pure beyond the single range read: same stored entries, same
// snapshot.
func (s *Service) MonthlySnapshot(ctx context.Context, userID, yearMonth string) (*Snapshot, error) {
	from, to, err := MonthRange(yearMonth)
	if err != nil {
		return nil, err
	}

	entries, err := s.logs.QueryLogs(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load monthly logs: %w", err)
	}

	s.logger.Debug("monthly logs loaded",
		zap.String("user_id", userID),
		zap.String("year_month", yearMonth),
		zap.Int("entries", len(entries)))

	return buildSnapshot(entries), nil
}

func buildSnapshot(entries []models.DailyLogEntry) *Snapshot {
	snap := &Snapshot{
		Entries:     entries,
		RecordDays:  len(entries),
		MoodSummary: make(map[string]int, len(entries)),
	}

	var scoreTotal int
	var noteLines []string

	for _, entry := range entries {
		snap.MoodSummary[models.MoodLabel(entry.Mood)]++
		scoreTotal += entry.RoutineScore

		if strings.TrimSpace(entry.Note) != "" {
			noteLines = append(noteLines, fmt.Sprintf("- %s: %s", entry.Date, entry.Note))
		}
	}

	if len(entries) > 0 {
		snap.AvgRoutineScore = int(math.Round(float64(scoreTotal) / float64(len(entries))))
	}

	if len(noteLines) > 0 {
		snap.NotesBlock = strings.Join(noteLines, "\n")
	} else {
		snap.NotesBlock = NoNotesPlaceholder
	}

	return snap
}
