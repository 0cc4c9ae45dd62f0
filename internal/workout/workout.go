package workout

import (
	"strings"
	"time"
)

// RoutineExercise is one templated exercise of a routine. Sets may be
// empty (name-only template) or carry pre-recorded values that seed a
// live session started from the routine.
type RoutineExercise struct {
	Name string    `json:"name"`
	Sets []LiveSet `json:"sets,omitempty"`
}

// Routine is a saved workout template.
type Routine struct {
	ID          int               `json:"id"`
	AccountID   int               `json:"-"`
	Title       string            `json:"title"`
	Meta        string            `json:"meta"`
	Description string            `json:"description"`
	Exercises   []RoutineExercise `json:"exercises"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Session is a persisted, completed workout.
type Session struct {
	ID            int       `json:"id"`
	AccountID     int       `json:"-"`
	Title         string    `json:"title"`
	ExerciseCount int       `json:"exerciseCount"`
	SetCount      int       `json:"setCount"`
	CreatedAt     time.Time `json:"created_at"`
}

// SetEntry is one flattened set row of a persisted session. SetIndex
// is 1-based within its exercise. Weight and reps stay nil when the
// set was logged without them.
type SetEntry struct {
	ID           int       `json:"id"`
	AccountID    int       `json:"-"`
	SessionID    int       `json:"sessionId"`
	ExerciseName string    `json:"exerciseName"`
	SetIndex     int       `json:"setIndex"`
	Weight       *float64  `json:"weight"`
	Reps         *int      `json:"reps"`
	Failure      bool      `json:"failure"`
	Dropset      bool      `json:"dropset"`
	CreatedAt    time.Time `json:"created_at"`
}

// LastSet is the most recent recorded set of an exercise, used as the
// pre-fill placeholder the next time that exercise is logged.
type LastSet struct {
	Weight *float64 `json:"weight"`
	Reps   *int     `json:"reps"`
}

// NormalizeExerciseName lowers and trims a name for case-insensitive
// matching.
func NormalizeExerciseName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
