package workout

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/valetudoapp/valetudo/internal/normalize"
)

// MaxSetsPerExercise caps the sets loggable per exercise; adding past
// the cap is silently ignored.
const MaxSetsPerExercise = 10

var (
	ErrNoSetsLogged    = errors.New("no sets logged")
	ErrNoSuchExercise  = errors.New("no such exercise")
	ErrNoSuchSet       = errors.New("no such set")
	ErrNoActiveSession = errors.New("no active workout session")
)

// LiveSet holds set fields as the sanitized text the user typed.
// Values are parsed only when a total or a summary is computed.
type LiveSet struct {
	Weight  string `json:"weight"`
	Reps    string `json:"reps"`
	Failure bool   `json:"failure"`
	Dropset bool   `json:"dropset"`
}

type LiveExercise struct {
	Name string    `json:"name"`
	Sets []LiveSet `json:"sets"`
}

// Summary is the completion result of a live session.
type Summary struct {
	Title         string         `json:"title"`
	ExerciseCount int            `json:"exerciseCount"`
	SetCount      int            `json:"setCount"`
	TotalWeight   float64        `json:"totalWeight"`
	Duration      time.Duration  `json:"-"`
	Exercises     []string       `json:"exercises"`
	ExerciseSets  []LiveExercise `json:"exerciseSets"`
}

// LiveSession is the in-memory editable state of a workout in
// progress. Safe for concurrent use.
type LiveSession struct {
	mutex     sync.RWMutex
	title     string
	startedAt time.Time
	exercises []LiveExercise
}

func NewLiveSession(title string) *LiveSession {
	return &LiveSession{
		title:     normalize.CleanText(title, "Workout"),
		startedAt: time.Now(),
	}
}

// NewLiveSessionFromRoutine seeds the exercise list from a routine.
// Recorded routine sets carry over, re-sanitized in case the stored
// template predates the current input rules.
func NewLiveSessionFromRoutine(routine Routine) *LiveSession {
	session := NewLiveSession(routine.Title)
	for _, exercise := range routine.Exercises {
		name := normalize.CleanText(exercise.Name, "")
		if name == "" {
			continue
		}
		sets := make([]LiveSet, 0, len(exercise.Sets))
		for _, set := range exercise.Sets {
			if len(sets) == MaxSetsPerExercise {
				break
			}
			sets = append(sets, LiveSet{
				Weight:  SanitizeWeightInput(set.Weight),
				Reps:    SanitizeRepsInput(set.Reps),
				Failure: set.Failure,
				Dropset: set.Dropset,
			})
		}
		session.exercises = append(session.exercises, LiveExercise{Name: name, Sets: sets})
	}
	return session
}

func (s *LiveSession) Title() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.title
}

func (s *LiveSession) Exercises() []LiveExercise {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	exercises := make([]LiveExercise, len(s.exercises))
	for i, ex := range s.exercises {
		exercises[i] = LiveExercise{
			Name: ex.Name,
			Sets: append([]LiveSet(nil), ex.Sets...),
		}
	}
	return exercises
}

// AddExercise appends an exercise by name; blank names are ignored.
func (s *LiveSession) AddExercise(name string) {
	name = normalize.CleanText(name, "")
	if name == "" {
		return
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.exercises = append(s.exercises, LiveExercise{Name: name})
}

func (s *LiveSession) RemoveExercise(exerciseIdx int) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if exerciseIdx < 0 || exerciseIdx >= len(s.exercises) {
		return ErrNoSuchExercise
	}
	s.exercises = append(s.exercises[:exerciseIdx], s.exercises[exerciseIdx+1:]...)
	return nil
}

// AddSet appends an empty set to an exercise. Once the exercise holds
// MaxSetsPerExercise sets the call is silently ignored.
func (s *LiveSession) AddSet(exerciseIdx int) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if exerciseIdx < 0 || exerciseIdx >= len(s.exercises) {
		return ErrNoSuchExercise
	}
	if len(s.exercises[exerciseIdx].Sets) >= MaxSetsPerExercise {
		return nil
	}
	s.exercises[exerciseIdx].Sets = append(s.exercises[exerciseIdx].Sets, LiveSet{})
	return nil
}

func (s *LiveSession) RemoveSet(exerciseIdx, setIdx int) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	ex, err := s.exercise(exerciseIdx)
	if err != nil {
		return err
	}
	if setIdx < 0 || setIdx >= len(ex.Sets) {
		return ErrNoSuchSet
	}
	ex.Sets = append(ex.Sets[:setIdx], ex.Sets[setIdx+1:]...)
	return nil
}

// UpdateSetWeight sanitizes and stores a weight input. The returned
// flag signals the advisory prompt for weights above 1000; raising it
// never alters the stored value.
func (s *LiveSession) UpdateSetWeight(exerciseIdx, setIdx int, input string) (advisory bool, err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	ex, err := s.exercise(exerciseIdx)
	if err != nil {
		return false, err
	}
	if setIdx < 0 || setIdx >= len(ex.Sets) {
		return false, ErrNoSuchSet
	}

	sanitized := SanitizeWeightInput(input)
	ex.Sets[setIdx].Weight = sanitized

	if weight, parseErr := strconv.ParseFloat(sanitized, 64); parseErr == nil && weight > WeightAdvisoryThreshold {
		return true, nil
	}
	return false, nil
}

func (s *LiveSession) UpdateSetReps(exerciseIdx, setIdx int, input string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	ex, err := s.exercise(exerciseIdx)
	if err != nil {
		return err
	}
	if setIdx < 0 || setIdx >= len(ex.Sets) {
		return ErrNoSuchSet
	}
	ex.Sets[setIdx].Reps = SanitizeRepsInput(input)
	return nil
}

func (s *LiveSession) SetFailure(exerciseIdx, setIdx int, failure bool) error {
	return s.updateFlags(exerciseIdx, setIdx, func(set *LiveSet) { set.Failure = failure })
}

func (s *LiveSession) SetDropset(exerciseIdx, setIdx int, dropset bool) error {
	return s.updateFlags(exerciseIdx, setIdx, func(set *LiveSet) { set.Dropset = dropset })
}

func (s *LiveSession) updateFlags(exerciseIdx, setIdx int, update func(*LiveSet)) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	ex, err := s.exercise(exerciseIdx)
	if err != nil {
		return err
	}
	if setIdx < 0 || setIdx >= len(ex.Sets) {
		return ErrNoSuchSet
	}
	update(&ex.Sets[setIdx])
	return nil
}

// caller must hold the lock
func (s *LiveSession) exercise(exerciseIdx int) (*LiveExercise, error) {
	if exerciseIdx < 0 || exerciseIdx >= len(s.exercises) {
		return nil, ErrNoSuchExercise
	}
	return &s.exercises[exerciseIdx], nil
}

func (s *LiveSession) SetCount() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.setCount()
}

func (s *LiveSession) setCount() int {
	count := 0
	for _, ex := range s.exercises {
		count += len(ex.Sets)
	}
	return count
}

// TotalWeight sums weight × reps over sets where both parse as
// numbers; partial sets contribute 0.
func (s *LiveSession) TotalWeight() float64 {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.totalWeight()
}

func (s *LiveSession) totalWeight() float64 {
	total := 0.0
	for _, ex := range s.exercises {
		for _, set := range ex.Sets {
			weight, weightErr := strconv.ParseFloat(set.Weight, 64)
			reps, repsErr := strconv.Atoi(set.Reps)
			if weightErr != nil || repsErr != nil {
				continue
			}
			total += weight * float64(reps)
		}
	}
	return total
}

// CanComplete reports whether at least one set exists across all
// exercises.
func (s *LiveSession) CanComplete() bool {
	return s.SetCount() > 0
}

// Complete produces the completion summary. A session with zero
// logged sets cannot complete.
func (s *LiveSession) Complete() (*Summary, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if s.setCount() == 0 {
		return nil, ErrNoSetsLogged
	}

	var exerciseNames []string
	var exerciseSets []LiveExercise
	for _, ex := range s.exercises {
		exerciseNames = append(exerciseNames, ex.Name)
		exerciseSets = append(exerciseSets, LiveExercise{
			Name: ex.Name,
			Sets: append([]LiveSet(nil), ex.Sets...),
		})
	}

	return &Summary{
		Title:         s.title,
		ExerciseCount: len(s.exercises),
		SetCount:      s.setCount(),
		TotalWeight:   s.totalWeight(),
		Duration:      time.Since(s.startedAt),
		Exercises:     exerciseNames,
		ExerciseSets:  exerciseSets,
	}, nil
}
