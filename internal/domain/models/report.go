package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AnalysisDimensions are the five fixed facets every report covers, in the
// order they appear in the prompt. Both the prompt schema and the payload
// validation derive from this list, so they cannot drift apart.
var AnalysisDimensions = []string{
	"emotion_execution",
	"recovery",
	"language_shift",
	"retention",
	"next_strategy",
}

// DetailSection is one detail facet: a few sentences of analysis plus
// concrete action suggestions.
type DetailSection struct {
	Text    string   `bson:"text" json:"text"`
	Actions []string `bson:"actions" json:"actions"`
}

// ReportPayload is the structured output the model must produce: summary and
// detail, each keyed by the five analysis dimensions.
type ReportPayload struct {
	Summary map[string]string        `bson:"summary" json:"summary"`
	Detail  map[string]DetailSection `bson:"detail" json:"detail"`
}

// MaxRegenerations caps successful generations per (user, month).
const MaxRegenerations = 3

// MonthlyReport is the persisted analysis for one user and one calendar
// month. Exactly one document exists per (user_id, year_month).
type MonthlyReport struct {
	ID              primitive.ObjectID       `bson:"_id,omitempty" json:"id"`
	UserID          string                   `bson:"user_id" json:"userId"`
	YearMonth       string                   `bson:"year_month" json:"yearMonth"` // YYYY-MM
	Summary         map[string]string        `bson:"summary" json:"summary"`
	Detail          map[string]DetailSection `bson:"detail" json:"detail"`
	Model           string                   `bson:"model" json:"model"`
	PromptVersion   string                   `bson:"prompt_version" json:"promptVersion"`
	RegenerateCount int                      `bson:"regenerate_count" json:"regenerateCount"`
	CreatedAt       time.Time                `bson:"created_at" json:"createdAt"`
	UpdatedAt       time.Time                `bson:"updated_at" json:"updatedAt"`
}

// RegenerateRemaining reports how many generations the user has left for
// this month.
func (r *MonthlyReport) RegenerateRemaining() int {
	remaining := MaxRegenerations - r.RegenerateCount
	if remaining < 0 {
		return 0
	}
	return remaining
}
