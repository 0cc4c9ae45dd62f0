package workout

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/valetudoapp/valetudo/internal/auth"
	"github.com/valetudoapp/valetudo/internal/events"
	"github.com/valetudoapp/valetudo/internal/kvstore"
	"github.com/valetudoapp/valetudo/internal/telemetry/metrics"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type accountResolverMock struct {
	account auth.Account
	err     error
}

func (m *accountResolverMock) AccountFromRequest(*http.Request) (auth.Account, error) {
	return m.account, m.err
}

func newTestHandler() (*Handler, *metrics.Manager, *events.Bus[events.WorkoutCompleted]) {
	bus := events.NewBus[events.WorkoutCompleted]()
	m := metrics.NewTestManager()
	service := NewService(NewMemoryRepo(), kvstore.NewMemoryStore(), bus)
	resolver := &accountResolverMock{account: auth.Account{ID: 1, Name: "Test User"}}
	return NewHandler(service, resolver, m), m, bus
}

func testRouter(handler *Handler) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/workout/routines", handler.HandleListRoutines).Methods("GET")
	router.HandleFunc("/workout/routines", handler.HandleCreateRoutine).Methods("POST")
	router.HandleFunc("/workout/routines/{id}", handler.HandleDeleteRoutine).Methods("DELETE")
	router.HandleFunc("/workout/sessions", handler.HandleListSessions).Methods("GET")
	router.HandleFunc("/workout/session", handler.HandleLiveSession).Methods("GET")
	router.HandleFunc("/workout/session", handler.HandleDiscardSession).Methods("DELETE")
	router.HandleFunc("/workout/session/start", handler.HandleStartSession).Methods("POST")
	router.HandleFunc("/workout/session/complete", handler.HandleCompleteSession).Methods("POST")
	router.HandleFunc("/workout/session/exercises", handler.HandleAddExercise).Methods("POST")
	router.HandleFunc("/workout/session/exercises/{exerciseIdx}", handler.HandleRemoveExercise).Methods("DELETE")
	router.HandleFunc("/workout/session/exercises/{exerciseIdx}/sets", handler.HandleAddSet).Methods("POST")
	router.HandleFunc("/workout/session/exercises/{exerciseIdx}/sets/{setIdx}", handler.HandleUpdateSet).Methods("PATCH")
	router.HandleFunc("/workout/session/exercises/{exerciseIdx}/sets/{setIdx}", handler.HandleRemoveSet).Methods("DELETE")
	router.HandleFunc("/workout/last-sets", handler.HandleLastSets).Methods("GET")
	return router
}

func doJSON(t *testing.T, router *mux.Router, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reqBody *bytes.Buffer
	if body == "" {
		reqBody = bytes.NewBufferString("{}")
	} else {
		reqBody = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reqBody)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestHandler_RoutinesFlow(t *testing.T) {
	handler, _, bus := newTestHandler()
	defer bus.Close()
	router := testRouter(handler)

	rr := doJSON(t, router, "POST", "/workout/routines",
		`{"title":"Upper A","meta":"3x weekly","exercises":[{"name":"Bench Press"},{"name":"Row"}]}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	var created Routine
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	assert.Equal(t, "Upper A", created.Title)
	require.Len(t, created.Exercises, 2)
	assert.Equal(t, "Bench Press", created.Exercises[0].Name)

	// duplicate title responds with the existing routine
	rr = doJSON(t, router, "POST", "/workout/routines", `{"title":"upper a"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)
	var existing Routine
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &existing))
	assert.Equal(t, created.ID, existing.ID)

	// blank title
	rr = doJSON(t, router, "POST", "/workout/routines", `{"title":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doJSON(t, router, "GET", "/workout/routines", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var listResp ListRoutinesResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &listResp))
	assert.Equal(t, 1, listResp.Total)

	rr = doJSON(t, router, "DELETE", "/workout/routines/1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "deleted:1", rr.Body.String())

	rr = doJSON(t, router, "DELETE", "/workout/routines/1", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = doJSON(t, router, "GET", "/workout/routines", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"routines":[]`)
}

func TestHandler_LiveSessionFlow(t *testing.T) {
	handler, m, bus := newTestHandler()
	defer bus.Close()
	router := testRouter(handler)

	// no session yet
	rr := doJSON(t, router, "GET", "/workout/session", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = doJSON(t, router, "POST", "/workout/session/exercises", `{"name":"Squat"}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = doJSON(t, router, "POST", "/workout/session/start", `{"title":"Push Day"}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = doJSON(t, router, "POST", "/workout/session/exercises", `{"name":"Bench Press"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, router, "POST", "/workout/session/exercises/0/sets", "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, router, "POST", "/workout/session/complete", "")
	require.Equal(t, http.StatusCreated, rr.Code)

	var summary Summary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &summary))
	assert.Equal(t, "Push Day", summary.Title)
	assert.Equal(t, 1, summary.SetCount)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CounterWorkoutSessions))

	// live state cleared
	rr = doJSON(t, router, "GET", "/workout/session", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = doJSON(t, router, "GET", "/workout/sessions", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var sessionsResp ListSessionsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &sessionsResp))
	assert.Equal(t, 1, sessionsResp.Total)
}

func TestHandler_UpdateSet(t *testing.T) {
	handler, _, bus := newTestHandler()
	defer bus.Close()
	router := testRouter(handler)

	rr := doJSON(t, router, "POST", "/workout/session/start", `{"title":"Heavy Day"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	rr = doJSON(t, router, "POST", "/workout/session/exercises", `{"name":"Leg Press"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = doJSON(t, router, "POST", "/workout/session/exercises/0/sets", "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, router, "PATCH", "/workout/session/exercises/0/sets/0",
		`{"weight":"120.5kg","reps":"8"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	var updateResp UpdateSetResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &updateResp))
	assert.False(t, updateResp.WeightAdvisory)

	rr = doJSON(t, router, "PATCH", "/workout/session/exercises/0/sets/0", `{"weight":"1500"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &updateResp))
	assert.True(t, updateResp.WeightAdvisory)

	rr = doJSON(t, router, "GET", "/workout/session", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var state LiveSessionResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &state))
	require.Len(t, state.Exercises, 1)
	assert.Equal(t, "1500", state.Exercises[0].Sets[0].Weight)
	assert.Equal(t, "8", state.Exercises[0].Sets[0].Reps)
	assert.InDelta(t, 12000, state.TotalWeight, 0.001)

	// out of range set
	rr = doJSON(t, router, "PATCH", "/workout/session/exercises/0/sets/4", `{"reps":"8"}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandler_LastSets(t *testing.T) {
	handler, _, bus := newTestHandler()
	defer bus.Close()
	router := testRouter(handler)

	rr := doJSON(t, router, "POST", "/workout/session/start", `{"title":"Pull Day"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	rr = doJSON(t, router, "POST", "/workout/session/exercises", `{"name":"Deadlift"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = doJSON(t, router, "POST", "/workout/session/exercises/0/sets", "")
	require.Equal(t, http.StatusOK, rr.Code)
	rr = doJSON(t, router, "PATCH", "/workout/session/exercises/0/sets/0", `{"weight":"140","reps":"5"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = doJSON(t, router, "POST", "/workout/session/complete", "")
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = doJSON(t, router, "GET", "/workout/last-sets?names=deadlift,Squat", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var lastResp LastSetsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &lastResp))
	require.Contains(t, lastResp.LastSets, "deadlift")
	require.NotNil(t, lastResp.LastSets["deadlift"].Weight)
	assert.InDelta(t, 140, *lastResp.LastSets["deadlift"].Weight, 0.001)
	assert.NotContains(t, lastResp.LastSets, "squat")
}

func TestHandler_Unauthorized(t *testing.T) {
	bus := events.NewBus[events.WorkoutCompleted]()
	defer bus.Close()
	service := NewService(NewMemoryRepo(), kvstore.NewMemoryStore(), bus)
	resolver := &accountResolverMock{err: errors.New("not logged in")}
	handler := NewHandler(service, resolver, metrics.NewTestManager())
	router := testRouter(handler)

	for _, tc := range []struct {
		method string
		path   string
	}{
		{"GET", "/workout/routines"},
		{"POST", "/workout/routines"},
		{"GET", "/workout/session"},
		{"POST", "/workout/session/start"},
		{"POST", "/workout/session/complete"},
		{"GET", "/workout/last-sets"},
	} {
		rr := doJSON(t, router, tc.method, tc.path, "")
		assert.Equal(t, http.StatusUnauthorized, rr.Code, "%s %s", tc.method, tc.path)
	}
}
