package workout

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/valetudoapp/valetudo/internal/events"
	"github.com/valetudoapp/valetudo/internal/kvstore"
	"github.com/valetudoapp/valetudo/internal/normalize"
)

var ErrInvalidRoutine = errors.New("invalid routine")

const lastSetKeyPrefix = "last-set::"

type Repository interface {
	ListRoutines(ctx context.Context, accountID int) ([]Routine, error)
	CreateRoutine(ctx context.Context, routine Routine) (int, error)
	DeleteRoutine(ctx context.Context, accountID, routineID int) error
	AddSession(ctx context.Context, session Session, entries []SetEntry) (int, error)
	ListSessions(ctx context.Context, accountID int) ([]Session, error)
	LastExerciseSets(ctx context.Context, accountID int, names []string) (map[string]LastSet, error)
	SessionsCount(ctx context.Context) (int, error)
}

// Service owns routines, the per-account live session, and completed
// session persistence.
type Service struct {
	repo          Repository
	kv            kvstore.Store
	workoutEvents *events.Bus[events.WorkoutCompleted]

	mutex        sync.Mutex
	liveSessions map[int]*LiveSession
}

func NewService(
	repo Repository,
	kv kvstore.Store,
	workoutEvents *events.Bus[events.WorkoutCompleted],
) *Service {
	return &Service{
		repo:          repo,
		kv:            kv,
		workoutEvents: workoutEvents,
		liveSessions:  map[int]*LiveSession{},
	}
}

func (s *Service) ListRoutines(ctx context.Context, accountID int) ([]Routine, error) {
	return s.repo.ListRoutines(ctx, accountID)
}

// CreateRoutine saves a new routine. Duplicate titles (trimmed,
// case-insensitive) return ErrRoutineExists together with the existing
// routine so the caller can show it.
func (s *Service) CreateRoutine(
	ctx context.Context,
	accountID int,
	title, meta, description string,
	exercises []RoutineExercise,
) (*Routine, error) {
	title = normalize.CleanText(title, "")
	if title == "" {
		return nil, ErrInvalidRoutine
	}

	cleaned := make([]RoutineExercise, 0, len(exercises))
	for _, exercise := range exercises {
		name := normalize.CleanText(exercise.Name, "")
		if name == "" {
			continue
		}
		sets := make([]LiveSet, 0, len(exercise.Sets))
		for _, set := range exercise.Sets {
			sets = append(sets, LiveSet{
				Weight:  SanitizeWeightInput(set.Weight),
				Reps:    SanitizeRepsInput(set.Reps),
				Failure: set.Failure,
				Dropset: set.Dropset,
			})
		}
		cleaned = append(cleaned, RoutineExercise{Name: name, Sets: sets})
	}

	routine := Routine{
		AccountID:   accountID,
		Title:       title,
		Meta:        meta,
		Description: description,
		Exercises:   cleaned,
		CreatedAt:   time.Now(),
	}
	id, err := s.repo.CreateRoutine(ctx, routine)
	if err != nil {
		if errors.Is(err, ErrRoutineExists) {
			if existing := s.findRoutineByTitle(ctx, accountID, title); existing != nil {
				return existing, ErrRoutineExists
			}
		}
		return nil, err
	}
	routine.ID = id
	return &routine, nil
}

func (s *Service) findRoutineByTitle(ctx context.Context, accountID int, title string) *Routine {
	routines, err := s.repo.ListRoutines(ctx, accountID)
	if err != nil {
		log.Warnf("find routine [%s] for account %d: %s", title, accountID, err)
		return nil
	}
	for i := range routines {
		if strings.EqualFold(routines[i].Title, title) {
			return &routines[i]
		}
	}
	return nil
}

func (s *Service) DeleteRoutine(ctx context.Context, accountID, routineID int) error {
	return s.repo.DeleteRoutine(ctx, accountID, routineID)
}

func (s *Service) ListSessions(ctx context.Context, accountID int) ([]Session, error) {
	return s.repo.ListSessions(ctx, accountID)
}

func (s *Service) SessionsCount(ctx context.Context) (int, error) {
	return s.repo.SessionsCount(ctx)
}

// StartSession begins an empty live session, replacing any existing
// one for the account.
func (s *Service) StartSession(accountID int, title string) *LiveSession {
	session := NewLiveSession(title)
	s.mutex.Lock()
	s.liveSessions[accountID] = session
	s.mutex.Unlock()
	return session
}

// StartSessionFromRoutine begins a live session seeded with the
// routine's exercise names.
func (s *Service) StartSessionFromRoutine(ctx context.Context, accountID, routineID int) (*LiveSession, error) {
	routines, err := s.repo.ListRoutines(ctx, accountID)
	if err != nil {
		return nil, err
	}
	for _, routine := range routines {
		if routine.ID == routineID {
			session := NewLiveSessionFromRoutine(routine)
			s.mutex.Lock()
			s.liveSessions[accountID] = session
			s.mutex.Unlock()
			return session, nil
		}
	}
	return nil, ErrRoutineNotFound
}

func (s *Service) LiveSession(accountID int) (*LiveSession, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	session, ok := s.liveSessions[accountID]
	if !ok {
		return nil, ErrNoActiveSession
	}
	return session, nil
}

// DiscardSession drops the live session without persisting anything.
func (s *Service) DiscardSession(accountID int) {
	s.mutex.Lock()
	delete(s.liveSessions, accountID)
	s.mutex.Unlock()
}

// CompleteSession persists the live session, refreshes the last-set
// cache, publishes the completion event, and clears the live state.
// Fails if no sets were logged, leaving the session active.
func (s *Service) CompleteSession(ctx context.Context, accountID int, accountName string) (*Summary, error) {
	live, err := s.LiveSession(accountID)
	if err != nil {
		return nil, err
	}

	summary, err := live.Complete()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	session := Session{
		AccountID:     accountID,
		Title:         summary.Title,
		ExerciseCount: summary.ExerciseCount,
		SetCount:      summary.SetCount,
		CreatedAt:     now,
	}
	entries := flattenSetEntries(accountID, summary, now)

	sessionID, err := s.repo.AddSession(ctx, session, entries)
	if err != nil {
		return nil, err
	}

	s.cacheLastSets(ctx, accountID, entries)

	if s.workoutEvents != nil {
		s.workoutEvents.Publish(events.WorkoutCompleted{
			AccountID:     accountID,
			AccountName:   accountName,
			Title:         summary.Title,
			ExerciseCount: summary.ExerciseCount,
			SetCount:      summary.SetCount,
			TotalWeight:   summary.TotalWeight,
			Duration:      summary.Duration,
			Exercises:     summary.Exercises,
			CompletedAt:   now,
		})
	}

	s.DiscardSession(accountID)

	log.Debugf("workout session %d completed for account %d", sessionID, accountID)
	return summary, nil
}

// LastPerformance resolves the most recent set per exercise, checking
// the kv cache first and falling back to the repo for misses.
func (s *Service) LastPerformance(ctx context.Context, accountID int, names []string) (map[string]LastSet, error) {
	lastSets := make(map[string]LastSet)
	var missing []string
	for _, name := range names {
		key := NormalizeExerciseName(name)
		if key == "" {
			continue
		}
		cached, err := kvstore.GetJSON[LastSet](ctx, s.kv, lastSetCacheKey(accountID, key))
		if err == nil {
			lastSets[key] = cached
			continue
		}
		if !errors.Is(err, kvstore.ErrNotFound) {
			log.Warnf("last set cache get for account %d: %s", accountID, err)
		}
		missing = append(missing, key)
	}

	if len(missing) == 0 {
		return lastSets, nil
	}

	fromRepo, err := s.repo.LastExerciseSets(ctx, accountID, missing)
	if err != nil {
		return nil, err
	}
	for key, lastSet := range fromRepo {
		lastSets[key] = lastSet
	}
	return lastSets, nil
}

func (s *Service) cacheLastSets(ctx context.Context, accountID int, entries []SetEntry) {
	// newest set per exercise wins; entries carry ascending set indexes
	latest := make(map[string]LastSet)
	for _, entry := range entries {
		if entry.Weight == nil && entry.Reps == nil {
			continue
		}
		latest[NormalizeExerciseName(entry.ExerciseName)] = LastSet{
			Weight: entry.Weight,
			Reps:   entry.Reps,
		}
	}
	for key, lastSet := range latest {
		if err := kvstore.SetJSON(ctx, s.kv, lastSetCacheKey(accountID, key), lastSet); err != nil {
			log.Errorf("cache last set [%s] for account %d: %s", key, accountID, err)
		}
	}
}

func lastSetCacheKey(accountID int, normalizedName string) string {
	return kvstore.AccountKey(accountID, lastSetKeyPrefix+normalizedName)
}

// flattenSetEntries turns the per-exercise set lists into rows with a
// 1-based set index. Unparseable weight or reps inputs persist as
// nulls.
func flattenSetEntries(accountID int, summary *Summary, createdAt time.Time) []SetEntry {
	var entries []SetEntry
	for _, exercise := range summary.ExerciseSets {
		for i, set := range exercise.Sets {
			entry := SetEntry{
				AccountID:    accountID,
				ExerciseName: exercise.Name,
				SetIndex:     i + 1,
				Failure:      set.Failure,
				Dropset:      set.Dropset,
				CreatedAt:    createdAt,
			}
			if weight, err := strconv.ParseFloat(set.Weight, 64); err == nil {
				entry.Weight = &weight
			}
			if reps, err := strconv.Atoi(set.Reps); err == nil {
				entry.Reps = &reps
			}
			entries = append(entries, entry)
		}
	}
	return entries
}
