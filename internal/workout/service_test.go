package workout

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valetudoapp/valetudo/internal/events"
	"github.com/valetudoapp/valetudo/internal/kvstore"
)

func newTestService() (*Service, *MemoryRepo, *events.Bus[events.WorkoutCompleted]) {
	repo := NewMemoryRepo()
	bus := events.NewBus[events.WorkoutCompleted]()
	return NewService(repo, kvstore.NewMemoryStore(), bus), repo, bus
}

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func TestService_Routines(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()

	routine, err := svc.CreateRoutine(ctx, 1, "Upper A", "3x weekly", "push focus",
		[]RoutineExercise{{Name: "Bench Press"}, {Name: "  "}, {Name: "Row"}},
	)
	require.NoError(t, err)
	require.Len(t, routine.Exercises, 2)
	assert.Equal(t, "Bench Press", routine.Exercises[0].Name)
	assert.Equal(t, "Row", routine.Exercises[1].Name)

	// duplicate titles match case-insensitively and hand back the
	// existing routine
	existing, err := svc.CreateRoutine(ctx, 1, "  upper a ", "", "", nil)
	assert.ErrorIs(t, err, ErrRoutineExists)
	require.NotNil(t, existing)
	assert.Equal(t, routine.ID, existing.ID)

	// same title on another account is fine
	_, err = svc.CreateRoutine(ctx, 2, "Upper A", "", "", nil)
	require.NoError(t, err)

	_, err = svc.CreateRoutine(ctx, 1, "   ", "", "", nil)
	assert.ErrorIs(t, err, ErrInvalidRoutine)

	routines, err := svc.ListRoutines(ctx, 1)
	require.NoError(t, err)
	require.Len(t, routines, 1)
	assert.Equal(t, "Upper A", routines[0].Title)

	require.NoError(t, svc.DeleteRoutine(ctx, 1, routine.ID))
	assert.ErrorIs(t, svc.DeleteRoutine(ctx, 1, routine.ID), ErrRoutineNotFound)
}

func TestService_LiveSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()

	_, err := svc.LiveSession(1)
	assert.ErrorIs(t, err, ErrNoActiveSession)

	routine, err := svc.CreateRoutine(ctx, 1, "Leg Day", "", "",
		[]RoutineExercise{{Name: "Squat"}, {Name: "Lunge"}})
	require.NoError(t, err)

	live, err := svc.StartSessionFromRoutine(ctx, 1, routine.ID)
	require.NoError(t, err)
	assert.Len(t, live.Exercises(), 2)

	_, err = svc.StartSessionFromRoutine(ctx, 1, 999)
	assert.ErrorIs(t, err, ErrRoutineNotFound)

	// starting again replaces the live session
	replacement := svc.StartSession(1, "Quick Session")
	current, err := svc.LiveSession(1)
	require.NoError(t, err)
	assert.Same(t, replacement, current)

	svc.DiscardSession(1)
	_, err = svc.LiveSession(1)
	assert.ErrorIs(t, err, ErrNoActiveSession)
}

func TestService_CompleteSession(t *testing.T) {
	ctx := context.Background()
	svc, repo, bus := newTestService()
	completed := bus.Subscribe()

	live := svc.StartSession(1, "Push Day")
	live.AddExercise("Bench Press")
	require.NoError(t, live.AddSet(0))
	require.NoError(t, live.AddSet(0))
	_, err := live.UpdateSetWeight(0, 0, "100")
	require.NoError(t, err)
	require.NoError(t, live.UpdateSetReps(0, 0, "5"))
	_, err = live.UpdateSetWeight(0, 1, "100")
	require.NoError(t, err)
	require.NoError(t, live.UpdateSetReps(0, 1, "3"))

	summary, err := svc.CompleteSession(ctx, 1, "Aisha")
	require.NoError(t, err)
	assert.Equal(t, "Push Day", summary.Title)
	assert.Equal(t, 2, summary.SetCount)
	assert.InDelta(t, 800, summary.TotalWeight, 0.001)

	// live session is gone after completion
	_, err = svc.LiveSession(1)
	assert.ErrorIs(t, err, ErrNoActiveSession)

	sessions, err := svc.ListSessions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "Push Day", sessions[0].Title)

	entries := repo.setEntries
	require.Len(t, entries, 2)
	assert.Equal(t, 1, entries[0].SetIndex)
	assert.Equal(t, 2, entries[1].SetIndex)
	require.NotNil(t, entries[1].Reps)
	assert.Equal(t, 3, *entries[1].Reps)

	select {
	case event := <-completed:
		assert.Equal(t, 1, event.AccountID)
		assert.Equal(t, "Aisha", event.AccountName)
		assert.Equal(t, "Push Day", event.Title)
		assert.Equal(t, 2, event.SetCount)
		assert.InDelta(t, 800, event.TotalWeight, 0.001)
		assert.Equal(t, []string{"Bench Press"}, event.Exercises)
	case <-time.After(time.Second):
		t.Fatal("no workout completed event published")
	}
}

func TestService_CompleteSessionWithoutSets(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()

	_, err := svc.CompleteSession(ctx, 1, "Aisha")
	assert.ErrorIs(t, err, ErrNoActiveSession)

	live := svc.StartSession(1, "Push Day")
	live.AddExercise("Bench Press")

	_, err = svc.CompleteSession(ctx, 1, "Aisha")
	assert.ErrorIs(t, err, ErrNoSetsLogged)

	// the session stays active after the failed completion
	_, err = svc.LiveSession(1)
	require.NoError(t, err)
}

func TestService_LastPerformance(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()

	live := svc.StartSession(1, "Pull Day")
	live.AddExercise("Deadlift")
	require.NoError(t, live.AddSet(0))
	require.NoError(t, live.AddSet(0))
	_, err := live.UpdateSetWeight(0, 0, "140")
	require.NoError(t, err)
	require.NoError(t, live.UpdateSetReps(0, 0, "5"))
	_, err = live.UpdateSetWeight(0, 1, "150")
	require.NoError(t, err)
	require.NoError(t, live.UpdateSetReps(0, 1, "3"))

	_, err = svc.CompleteSession(ctx, 1, "Aisha")
	require.NoError(t, err)

	// matched case-insensitively, latest set wins
	lastSets, err := svc.LastPerformance(ctx, 1, []string{"DEADLIFT", "Squat"})
	require.NoError(t, err)
	require.Contains(t, lastSets, "deadlift")
	require.NotNil(t, lastSets["deadlift"].Weight)
	assert.InDelta(t, 150, *lastSets["deadlift"].Weight, 0.001)
	require.NotNil(t, lastSets["deadlift"].Reps)
	assert.Equal(t, 3, *lastSets["deadlift"].Reps)
	assert.NotContains(t, lastSets, "squat")
}

func TestService_LastPerformanceRepoFallback(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newTestService()

	// history written by an older deploy, nothing cached
	_, err := repo.AddSession(ctx, Session{AccountID: 1, Title: "Old Session", CreatedAt: time.Now().Add(-48 * time.Hour)}, []SetEntry{
		{AccountID: 1, ExerciseName: "Bench Press", SetIndex: 1, Weight: floatPtr(90), Reps: intPtr(8)},
		{AccountID: 1, ExerciseName: "bench press", SetIndex: 2, Weight: floatPtr(95), Reps: intPtr(6)},
		{AccountID: 1, ExerciseName: "Bench Press", SetIndex: 3},
	})
	require.NoError(t, err)

	lastSets, err := svc.LastPerformance(ctx, 1, []string{"Bench Press"})
	require.NoError(t, err)
	require.Contains(t, lastSets, "bench press")

	// the empty third set is skipped, the second one wins
	require.NotNil(t, lastSets["bench press"].Weight)
	assert.InDelta(t, 95, *lastSets["bench press"].Weight, 0.001)
}
