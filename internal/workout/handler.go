package workout

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/valetudoapp/valetudo/internal/auth"
	"github.com/valetudoapp/valetudo/internal/telemetry/metrics"
	"github.com/valetudoapp/valetudo/internal/telemetry/tracing"
	"github.com/valetudoapp/valetudo/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

type accountResolver interface {
	AccountFromRequest(r *http.Request) (auth.Account, error)
}

type NewRoutineRequest struct {
	Title       string            `json:"title"`
	Meta        string            `json:"meta"`
	Description string            `json:"description"`
	Exercises   []RoutineExercise `json:"exercises"`
}

type StartSessionRequest struct {
	Title     string `json:"title"`
	RoutineID *int   `json:"routineId"`
}

type AddExerciseRequest struct {
	Name string `json:"name"`
}

// UpdateSetRequest patches a single set; only set fields apply.
type UpdateSetRequest struct {
	Weight  *string `json:"weight"`
	Reps    *string `json:"reps"`
	Failure *bool   `json:"failure"`
	Dropset *bool   `json:"dropset"`
}

type UpdateSetResponse struct {
	WeightAdvisory bool `json:"weightAdvisory"`
}

type ListRoutinesResponse struct {
	Routines []Routine `json:"routines"`
	Total    int       `json:"total"`
}

type ListSessionsResponse struct {
	Sessions []Session `json:"sessions"`
	Total    int       `json:"total"`
}

type LiveSessionResponse struct {
	Title       string         `json:"title"`
	Exercises   []LiveExercise `json:"exercises"`
	SetCount    int            `json:"setCount"`
	TotalWeight float64        `json:"totalWeight"`
	CanComplete bool           `json:"canComplete"`
}

type LastSetsResponse struct {
	LastSets map[string]LastSet `json:"lastSets"`
}

type Handler struct {
	service  *Service
	accounts accountResolver
	metrics  *metrics.Manager
}

func NewHandler(
	service *Service,
	accounts accountResolver,
	metrics *metrics.Manager,
) *Handler {
	return &Handler{
		service:  service,
		accounts: accounts,
		metrics:  metrics,
	}
}

func (handler *Handler) HandleListRoutines(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workout.listRoutines")
	defer span.End()

	account, err := handler.accounts.AccountFromRequest(r)
	if err != nil {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	routines, err := handler.service.ListRoutines(ctx, account.ID)
	if err != nil {
		log.Errorf("list routines for account %d: %s", account.ID, err)
		http.Error(w, "failed to get routines", http.StatusInternalServerError)
		return
	}
	if len(routines) == 0 {
		routines = []Routine{}
	}

	pkg.WriteJSONResponseOK(w, ListRoutinesResponse{Routines: routines, Total: len(routines)})
}

func (handler *Handler) HandleCreateRoutine(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workout.createRoutine")
	defer span.End()

	account, err := handler.accounts.AccountFromRequest(r)
	if err != nil {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	var newRoutineReq NewRoutineRequest
	if err := json.NewDecoder(r.Body).Decode(&newRoutineReq); err != nil {
		log.Tracef("new routine, unmarshal json params: %s", err)
		http.Error(w, "create routine failed", http.StatusBadRequest)
		return
	}

	routine, err := handler.service.CreateRoutine(
		ctx, account.ID,
		newRoutineReq.Title, newRoutineReq.Meta, newRoutineReq.Description,
		newRoutineReq.Exercises,
	)
	if err != nil {
		if errors.Is(err, ErrInvalidRoutine) {
			http.Error(w, "error, invalid routine", http.StatusBadRequest)
			return
		}
		if errors.Is(err, ErrRoutineExists) {
			// return the existing routine so the client can show it
			if routine != nil {
				if existingJson, jsonErr := json.Marshal(routine); jsonErr == nil {
					pkg.WriteResponseBytes(w, pkg.ContentType.JSON, existingJson, http.StatusConflict)
					return
				}
			}
			http.Error(w, "error, routine already exists", http.StatusConflict)
			return
		}
		log.Errorf("failed to create routine [%s] for account %d: %s", newRoutineReq.Title, account.ID, err)
		http.Error(w, "error, failed to create routine", http.StatusInternalServerError)
		return
	}

	routineJson, err := json.Marshal(routine)
	if err != nil {
		log.Errorf("failed to marshal created routine: %s", err)
		http.Error(w, "error, failed to create routine", http.StatusInternalServerError)
		return
	}

	log.Debugf("new routine added: %s", routineJson)
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, routineJson, http.StatusCreated)
}

func (handler *Handler) HandleDeleteRoutine(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workout.deleteRoutine")
	defer span.End()

	account, err := handler.accounts.AccountFromRequest(r)
	if err != nil {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	routineID, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "error, id NaN", http.StatusBadRequest)
		return
	}

	if err := handler.service.DeleteRoutine(ctx, account.ID, routineID); err != nil {
		if errors.Is(err, ErrRoutineNotFound) {
			http.Error(w, "routine not found", http.StatusNotFound)
			return
		}
		log.Errorf("failed to delete routine %d: %s", routineID, err)
		http.Error(w, "error, routine not deleted", http.StatusInternalServerError)
		return
	}

	pkg.WriteTextResponseOK(w, "deleted:"+strconv.Itoa(routineID))
}

func (handler *Handler) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workout.listSessions")
	defer span.End()

	account, err := handler.accounts.AccountFromRequest(r)
	if err != nil {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	sessions, err := handler.service.ListSessions(ctx, account.ID)
	if err != nil {
		log.Errorf("list workout sessions for account %d: %s", account.ID, err)
		http.Error(w, "failed to get workout sessions", http.StatusInternalServerError)
		return
	}
	if len(sessions) == 0 {
		sessions = []Session{}
	}

	pkg.WriteJSONResponseOK(w, ListSessionsResponse{Sessions: sessions, Total: len(sessions)})
}

func (handler *Handler) HandleStartSession(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workout.startSession")
	defer span.End()

	account, err := handler.accounts.AccountFromRequest(r)
	if err != nil {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	var startReq StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&startReq); err != nil {
		log.Tracef("start session, unmarshal json params: %s", err)
		http.Error(w, "start session failed", http.StatusBadRequest)
		return
	}

	var live *LiveSession
	if startReq.RoutineID != nil {
		live, err = handler.service.StartSessionFromRoutine(ctx, account.ID, *startReq.RoutineID)
		if err != nil {
			if errors.Is(err, ErrRoutineNotFound) {
				http.Error(w, "routine not found", http.StatusNotFound)
				return
			}
			log.Errorf("start session from routine %d for account %d: %s", *startReq.RoutineID, account.ID, err)
			http.Error(w, "error, failed to start session", http.StatusInternalServerError)
			return
		}
	} else {
		live = handler.service.StartSession(account.ID, startReq.Title)
	}

	stateJson, err := json.Marshal(liveSessionResponse(live))
	if err != nil {
		log.Errorf("failed to marshal live session: %s", err)
		http.Error(w, "error, failed to start session", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, stateJson, http.StatusCreated)
}

func (handler *Handler) HandleLiveSession(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.workout.liveSession")
	defer span.End()

	account, err := handler.accounts.AccountFromRequest(r)
	if err != nil {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	live, err := handler.service.LiveSession(account.ID)
	if err != nil {
		http.Error(w, "no active workout session", http.StatusNotFound)
		return
	}

	pkg.WriteJSONResponseOK(w, liveSessionResponse(live))
}

func (handler *Handler) HandleDiscardSession(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.workout.discardSession")
	defer span.End()

	account, err := handler.accounts.AccountFromRequest(r)
	if err != nil {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	handler.service.DiscardSession(account.ID)
	pkg.WriteTextResponseOK(w, "discarded")
}

func (handler *Handler) HandleAddExercise(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.workout.addExercise")
	defer span.End()

	account, err := handler.accounts.AccountFromRequest(r)
	if err != nil {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	live, err := handler.service.LiveSession(account.ID)
	if err != nil {
		http.Error(w, "no active workout session", http.StatusNotFound)
		return
	}

	var addReq AddExerciseRequest
	if err := json.NewDecoder(r.Body).Decode(&addReq); err != nil {
		http.Error(w, "add exercise failed", http.StatusBadRequest)
		return
	}

	live.AddExercise(addReq.Name)
	pkg.WriteJSONResponseOK(w, liveSessionResponse(live))
}

func (handler *Handler) HandleRemoveExercise(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.workout.removeExercise")
	defer span.End()

	account, live, ok := handler.liveSessionOr404(w, r)
	if !ok {
		return
	}

	exerciseIdx, err := strconv.Atoi(mux.Vars(r)["exerciseIdx"])
	if err != nil {
		http.Error(w, "error, exercise index NaN", http.StatusBadRequest)
		return
	}

	if err := live.RemoveExercise(exerciseIdx); err != nil {
		http.Error(w, "exercise not found", http.StatusNotFound)
		return
	}

	log.Tracef("account %d removed exercise %d", account.ID, exerciseIdx)
	pkg.WriteJSONResponseOK(w, liveSessionResponse(live))
}

func (handler *Handler) HandleAddSet(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.workout.addSet")
	defer span.End()

	_, live, ok := handler.liveSessionOr404(w, r)
	if !ok {
		return
	}

	exerciseIdx, err := strconv.Atoi(mux.Vars(r)["exerciseIdx"])
	if err != nil {
		http.Error(w, "error, exercise index NaN", http.StatusBadRequest)
		return
	}

	if err := live.AddSet(exerciseIdx); err != nil {
		http.Error(w, "exercise not found", http.StatusNotFound)
		return
	}

	pkg.WriteJSONResponseOK(w, liveSessionResponse(live))
}

func (handler *Handler) HandleRemoveSet(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.workout.removeSet")
	defer span.End()

	_, live, ok := handler.liveSessionOr404(w, r)
	if !ok {
		return
	}

	exerciseIdx, setIdx, err := setVars(r)
	if err != nil {
		http.Error(w, "error, index NaN", http.StatusBadRequest)
		return
	}

	if err := live.RemoveSet(exerciseIdx, setIdx); err != nil {
		http.Error(w, "set not found", http.StatusNotFound)
		return
	}

	pkg.WriteJSONResponseOK(w, liveSessionResponse(live))
}

func (handler *Handler) HandleUpdateSet(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.workout.updateSet")
	defer span.End()

	_, live, ok := handler.liveSessionOr404(w, r)
	if !ok {
		return
	}

	exerciseIdx, setIdx, err := setVars(r)
	if err != nil {
		http.Error(w, "error, index NaN", http.StatusBadRequest)
		return
	}

	var updateReq UpdateSetRequest
	if err := json.NewDecoder(r.Body).Decode(&updateReq); err != nil {
		http.Error(w, "update set failed", http.StatusBadRequest)
		return
	}

	advisory := false
	if updateReq.Weight != nil {
		advisory, err = live.UpdateSetWeight(exerciseIdx, setIdx, *updateReq.Weight)
		if err != nil {
			http.Error(w, "set not found", http.StatusNotFound)
			return
		}
	}
	if updateReq.Reps != nil {
		if err := live.UpdateSetReps(exerciseIdx, setIdx, *updateReq.Reps); err != nil {
			http.Error(w, "set not found", http.StatusNotFound)
			return
		}
	}
	if updateReq.Failure != nil {
		if err := live.SetFailure(exerciseIdx, setIdx, *updateReq.Failure); err != nil {
			http.Error(w, "set not found", http.StatusNotFound)
			return
		}
	}
	if updateReq.Dropset != nil {
		if err := live.SetDropset(exerciseIdx, setIdx, *updateReq.Dropset); err != nil {
			http.Error(w, "set not found", http.StatusNotFound)
			return
		}
	}

	pkg.WriteJSONResponseOK(w, UpdateSetResponse{WeightAdvisory: advisory})
}

func (handler *Handler) HandleCompleteSession(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workout.completeSession")
	defer span.End()

	account, err := handler.accounts.AccountFromRequest(r)
	if err != nil {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	accountName := account.DisplayName
	if accountName == "" {
		accountName = account.Name
	}

	summary, err := handler.service.CompleteSession(ctx, account.ID, accountName)
	if err != nil {
		if errors.Is(err, ErrNoActiveSession) {
			http.Error(w, "no active workout session", http.StatusNotFound)
			return
		}
		if errors.Is(err, ErrNoSetsLogged) {
			http.Error(w, "error, log at least one set", http.StatusBadRequest)
			return
		}
		log.Errorf("failed to complete workout session for account %d: %s", account.ID, err)
		http.Error(w, "error, failed to complete session", http.StatusInternalServerError)
		return
	}

	handler.metrics.CounterWorkoutSessions.Inc()

	summaryJson, err := json.Marshal(summary)
	if err != nil {
		log.Errorf("failed to marshal workout summary: %s", err)
		http.Error(w, "error, failed to complete session", http.StatusInternalServerError)
		return
	}

	log.Debugf("workout session completed: %s", summaryJson)
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, summaryJson, http.StatusCreated)
}

func (handler *Handler) HandleLastSets(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workout.lastSets")
	defer span.End()

	account, err := handler.accounts.AccountFromRequest(r)
	if err != nil {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	var names []string
	for _, name := range strings.Split(r.URL.Query().Get("names"), ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}

	lastSets, err := handler.service.LastPerformance(ctx, account.ID, names)
	if err != nil {
		log.Errorf("last sets for account %d: %s", account.ID, err)
		http.Error(w, "failed to get last sets", http.StatusInternalServerError)
		return
	}

	pkg.WriteJSONResponseOK(w, LastSetsResponse{LastSets: lastSets})
}

func (handler *Handler) liveSessionOr404(w http.ResponseWriter, r *http.Request) (auth.Account, *LiveSession, bool) {
	account, err := handler.accounts.AccountFromRequest(r)
	if err != nil {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return auth.Account{}, nil, false
	}

	live, err := handler.service.LiveSession(account.ID)
	if err != nil {
		http.Error(w, "no active workout session", http.StatusNotFound)
		return account, nil, false
	}
	return account, live, true
}

func setVars(r *http.Request) (exerciseIdx, setIdx int, err error) {
	vars := mux.Vars(r)
	exerciseIdx, err = strconv.Atoi(vars["exerciseIdx"])
	if err != nil {
		return 0, 0, err
	}
	setIdx, err = strconv.Atoi(vars["setIdx"])
	if err != nil {
		return 0, 0, err
	}
	return exerciseIdx, setIdx, nil
}

func liveSessionResponse(live *LiveSession) LiveSessionResponse {
	return LiveSessionResponse{
		Title:       live.Title(),
		Exercises:   live.Exercises(),
		SetCount:    live.SetCount(),
		TotalWeight: live.TotalWeight(),
		CanComplete: live.CanComplete(),
	}
}
