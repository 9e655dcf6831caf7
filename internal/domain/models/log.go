package models

// DailyLogEntry is a single day of journaling for one user. Entries are
// written by the journaling flow and are read-only to this service.
type DailyLogEntry struct {
	UserID            string   `bson:"user_id" json:"userId"`
	Date              string   `bson:"date" json:"date"` // YYYY-MM-DD, unique per user
	Mood              string   `bson:"mood" json:"mood"`
	RoutineScore      int      `bson:"routine_score" json:"routineScore"` // 0-100
	CompletedRoutines []string `bson:"completed_routines,omitempty" json:"completedRoutines,omitempty"`
	Note              string   `bson:"note,omitempty" json:"note,omitempty"`
}

// moodLabels maps the client's mood codes to the Korean labels shown in
// reports. Codes without a mapping pass through unchanged.
var moodLabels = map[string]string{
	"happy":   "기쁨",
	"calm":    "평온",
	"soso":    "그럭저럭",
	"sad":     "슬픔",
	"angry":   "짜증",
	"tired":   "무기력",
	"anxious": "불안",
	"excited": "설렘",
}

// MoodLabel resolves a mood code to its display label.
func MoodLabel(code string) string {
	if label, ok := moodLabels[code]; ok {
		return label
	}
	return code
}
