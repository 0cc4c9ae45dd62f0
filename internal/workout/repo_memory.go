package workout

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryRepo is the in-process repo used when no postgres host is
// configured. Ordering matches the postgres repo: newest first.
type MemoryRepo struct {
	mutex         sync.RWMutex
	routines      map[int]Routine
	sessions      map[int]Session
	setEntries    []SetEntry
	nextRoutineID int
	nextSessionID int
	nextEntryID   int
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		routines:      map[int]Routine{},
		sessions:      map[int]Session{},
		nextRoutineID: 1,
		nextSessionID: 1,
		nextEntryID:   1,
	}
}

func (r *MemoryRepo) ListRoutines(_ context.Context, accountID int) ([]Routine, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var routines []Routine
	for _, routine := range r.routines {
		if routine.AccountID == accountID {
			routines = append(routines, routine)
		}
	}
	sort.Slice(routines, func(i, j int) bool {
		if routines[i].CreatedAt.Equal(routines[j].CreatedAt) {
			return routines[i].ID > routines[j].ID
		}
		return routines[i].CreatedAt.After(routines[j].CreatedAt)
	})
	return routines, nil
}

func (r *MemoryRepo) CreateRoutine(_ context.Context, routine Routine) (int, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, existing := range r.routines {
		if existing.AccountID == routine.AccountID &&
			strings.EqualFold(strings.TrimSpace(existing.Title), strings.TrimSpace(routine.Title)) {
			return -1, ErrRoutineExists
		}
	}

	if routine.CreatedAt.IsZero() {
		routine.CreatedAt = time.Now()
	}
	routine.ID = r.nextRoutineID
	r.nextRoutineID++
	r.routines[routine.ID] = routine
	return routine.ID, nil
}

func (r *MemoryRepo) DeleteRoutine(_ context.Context, accountID, routineID int) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	routine, ok := r.routines[routineID]
	if !ok || routine.AccountID != accountID {
		return ErrRoutineNotFound
	}
	delete(r.routines, routineID)
	return nil
}

func (r *MemoryRepo) AddSession(_ context.Context, session Session, entries []SetEntry) (int, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	session.ID = r.nextSessionID
	r.nextSessionID++
	r.sessions[session.ID] = session

	for _, entry := range entries {
		entry.ID = r.nextEntryID
		r.nextEntryID++
		entry.SessionID = session.ID
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = session.CreatedAt
		}
		r.setEntries = append(r.setEntries, entry)
	}
	return session.ID, nil
}

func (r *MemoryRepo) ListSessions(_ context.Context, accountID int) ([]Session, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var sessions []Session
	for _, session := range r.sessions {
		if session.AccountID == accountID {
			sessions = append(sessions, session)
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].ID > sessions[j].ID
		}
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	return sessions, nil
}

func (r *MemoryRepo) LastExerciseSets(_ context.Context, accountID int, names []string) (map[string]LastSet, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		wanted[NormalizeExerciseName(name)] = true
	}

	entries := make([]SetEntry, 0, len(r.setEntries))
	for _, entry := range r.setEntries {
		if entry.AccountID == accountID && wanted[NormalizeExerciseName(entry.ExerciseName)] {
			entries = append(entries, entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].SetIndex > entries[j].SetIndex
		}
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})

	lastSets := make(map[string]LastSet)
	for _, entry := range entries {
		if entry.Weight == nil && entry.Reps == nil {
			continue
		}
		key := NormalizeExerciseName(entry.ExerciseName)
		if _, ok := lastSets[key]; ok {
			continue
		}
		lastSets[key] = LastSet{Weight: entry.Weight, Reps: entry.Reps}
	}
	return lastSets, nil
}

func (r *MemoryRepo) SessionsCount(_ context.Context) (int, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.sessions), nil
}
