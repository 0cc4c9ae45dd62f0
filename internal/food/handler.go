package food

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/valetudoapp/valetudo/internal/auth"
	"github.com/valetudoapp/valetudo/internal/normalize"
	"github.com/valetudoapp/valetudo/internal/telemetry/metrics"
	"github.com/valetudoapp/valetudo/internal/telemetry/tracing"
	"github.com/valetudoapp/valetudo/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

type accountResolver interface {
	AccountFromRequest(r *http.Request) (auth.Account, error)
}

type NewCustomFoodRequest struct {
	Name               string  `json:"name"`
	Servings           float64 `json:"servings"`
	CaloriesPerServing int     `json:"caloriesPerServing"`
}

type SetFavoriteRequest struct {
	Favorite bool `json:"favorite"`
}

type ListCustomFoodsResponse struct {
	Foods []Food `json:"foods"`
	Total int    `json:"total"`
}

type ListMealEntriesResponse struct {
	Meals []MealEntry `json:"meals"`
	Total int         `json:"total"`
}

type ListCommonMealsResponse struct {
	Meals []CommonMeal `json:"meals"`
	Total int          `json:"total"`
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

func (handler *Handler) HandleListCustomFoods(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.food.listCustomFoods")
	defer span.End()

	account, err := handler.accounts.AccountFromRequest(r)
	if err != nil {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	foods, err := handler.service.ListCustomFoods(ctx, account.ID)
	if err != nil {
		log.Errorf("list custom foods for account %d: %s", account.ID, err)
		http.Error(w, "failed to get custom foods", http.StatusInternalServerError)
		return
	}
	if len(foods) == 0 {
		foods = []Food{}
	}

	pkg.WriteJSONResponseOK(w, ListCustomFoodsResponse{Foods: foods, Total: len(foods)})
}

func (handler *Handler) HandleCreateCustomFood(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.food.createCustomFood")
	defer span.End()

	account, err := handler.accounts.AccountFromRequest(r)
	if err != nil {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	var newFoodReq NewCustomFoodRequest
	if err := json.NewDecoder(r.Body).Decode(&newFoodReq); err != nil {
		log.Tracef("new custom food, unmarshal json params: %s", err)
		http.Error(w, "create custom food failed", http.StatusBadRequest)
		return
	}

	addedFood, err := handler.service.CreateCustomFood(
		ctx, account.ID, newFoodReq.Name, newFoodReq.Servings, newFoodReq.CaloriesPerServing,
	)
	if err != nil {
		if errors.Is(err, ErrInvalidCustomFood) {
			http.Error(w, "error, invalid custom food", http.StatusBadRequest)
			return
		}
		log.Errorf("failed to create custom food [%s] for account %d: %s", newFoodReq.Name, account.ID, err)
		http.Error(w, "error, failed to create custom food", http.StatusInternalServerError)
		return
	}

	handler.metrics.CounterCustomFoods.Inc()

	addedFoodJson, err := json.Marshal(addedFood)
	if err != nil {
		log.Errorf("failed to marshal created custom food: %s", err)
		http.Error(w, "error, failed to create custom food", http.StatusInternalServerError)
		return
	}

	log.Debugf("new custom food added: %s", addedFoodJson)
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, addedFoodJson, http.StatusCreated)
}

func (handler *Handler) HandleSetFavoriteFood(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.food.setFavorite")
	defer span.End()

	account, err := handler.accounts.AccountFromRequest(r)
	if err != nil {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	foodID, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "error, id NaN", http.StatusBadRequest)
		return
	}

	var favReq SetFavoriteRequest
	if err := json.NewDecoder(r.Body).Decode(&favReq); err != nil {
		http.Error(w, "set favorite failed", http.StatusBadRequest)
		return
	}

	if err := handler.service.SetFavoriteFood(ctx, account.ID, foodID, favReq.Favorite); err != nil {
		if errors.Is(err, ErrFoodNotFound) {
			http.Error(w, "custom food not found", http.StatusNotFound)
			return
		}
		log.Errorf("failed to set favorite for food %d: %s", foodID, err)
		http.Error(w, "error, failed to set favorite", http.StatusInternalServerError)
		return
	}

	pkg.WriteTextResponseOK(w, "updated:"+strconv.Itoa(foodID))
}

func (handler *Handler) HandleDeleteCustomFood(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.food.deleteCustomFood")
	defer span.End()

	account, err := handler.accounts.AccountFromRequest(r)
	if err != nil {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	foodID, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "error, id NaN", http.StatusBadRequest)
		return
	}

	if err := handler.service.DeleteCustomFood(ctx, account.ID, foodID); err != nil {
		if errors.Is(err, ErrFoodNotFound) {
			http.Error(w, "custom food not found", http.StatusNotFound)
			return
		}
		log.Errorf("failed to delete custom food %d: %s", foodID, err)
		http.Error(w, "error, custom food not deleted", http.StatusInternalServerError)
		return
	}

	pkg.WriteTextResponseOK(w, "deleted:"+strconv.Itoa(foodID))
}

func (handler *Handler) HandleListMealEntries(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.food.listMeals")
	defer span.End()

	account, err := handler.accounts.AccountFromRequest(r)
	if err != nil {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	dateKey := r.URL.Query().Get("date")
	if dateKey == "" {
		dateKey = normalize.DateKey(time.Now())
	}

	meals, err := handler.service.ListMealEntries(ctx, account.ID, dateKey)
	if err != nil {
		log.Errorf("list meal entries for account %d on %s: %s", account.ID, dateKey, err)
		http.Error(w, "failed to get meal entries", http.StatusBadRequest)
		return
	}
	if len(meals) == 0 {
		meals = []MealEntry{}
	}

	pkg.WriteJSONResponseOK(w, ListMealEntriesResponse{Meals: meals, Total: len(meals)})
}

func (handler *Handler) HandleAddMealEntry(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.food.addMeal")
	defer span.End()

	account, err := handler.accounts.AccountFromRequest(r)
	if err != nil {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	var entry MealEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		log.Tracef("add meal entry, unmarshal json params: %s", err)
		http.Error(w, "add meal entry failed", http.StatusBadRequest)
		return
	}

	entry.AccountID = account.ID
	if entry.ConsumedOn == "" {
		entry.ConsumedOn = normalize.DateKey(time.Now())
	}

	addedEntry, err := handler.service.AddMealEntry(ctx, entry)
	if err != nil {
		log.Errorf("failed to add meal entry [%s] for account %d: %s", entry.Name, account.ID, err)
		http.Error(w, "error, failed to add meal entry", http.StatusInternalServerError)
		return
	}

	handler.metrics.CounterMealEntries.Inc()

	addedEntryJson, err := json.Marshal(addedEntry)
	if err != nil {
		log.Errorf("failed to marshal added meal entry: %s", err)
		http.Error(w, "error, failed to add meal entry", http.StatusInternalServerError)
		return
	}

	log.Debugf("new meal entry added: %s", addedEntryJson)
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, addedEntryJson, http.StatusCreated)
}

func (handler *Handler) HandleUpdateMealEntry(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.food.updateMeal")
	defer span.End()

	account, err := handler.accounts.AccountFromRequest(r)
	if err != nil {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	entryID, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "error, id NaN", http.StatusBadRequest)
		return
	}

	var entry MealEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		log.Tracef("update meal entry, unmarshal json params: %s", err)
		http.Error(w, "update meal entry failed", http.StatusBadRequest)
		return
	}

	entry.ID = entryID
	entry.AccountID = account.ID

	updatedEntry, err := handler.service.UpdateMealEntry(ctx, entry)
	if err != nil {
		if errors.Is(err, ErrMealEntryNotFound) {
			http.Error(w, "meal entry not found", http.StatusNotFound)
			return
		}
		log.Errorf("failed to update meal entry %d: %s", entryID, err)
		http.Error(w, "error, failed to update meal entry", http.StatusInternalServerError)
		return
	}

	pkg.WriteJSONResponseOK(w, updatedEntry)
}

func (handler *Handler) HandleDeleteMealEntry(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.food.deleteMeal")
	defer span.End()

	account, err := handler.accounts.AccountFromRequest(r)
	if err != nil {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	entryID, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "error, id NaN", http.StatusBadRequest)
		return
	}

	if err := handler.service.DeleteMealEntry(ctx, account.ID, entryID); err != nil {
		if errors.Is(err, ErrMealEntryNotFound) {
			http.Error(w, "meal entry not found", http.StatusNotFound)
			return
		}
		log.Errorf("failed to delete meal entry %d: %s", entryID, err)
		http.Error(w, "error, meal entry not deleted", http.StatusInternalServerError)
		return
	}

	pkg.WriteTextResponseOK(w, "deleted:"+strconv.Itoa(entryID))
}

func (handler *Handler) HandleListCommonMeals(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.food.listCommonMeals")
	defer span.End()

	account, err := handler.accounts.AccountFromRequest(r)
	if err != nil {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	meals, err := handler.service.ListCommonMeals(ctx, account.ID)
	if err != nil {
		log.Errorf("list common meals for account %d: %s", account.ID, err)
		http.Error(w, "failed to get common meals", http.StatusInternalServerError)
		return
	}

	pkg.WriteJSONResponseOK(w, ListCommonMealsResponse{Meals: meals, Total: len(meals)})
}

func (handler *Handler) HandleSetFavoriteCommonMeal(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.food.favoriteCommonMeal")
	defer span.End()

	account, err := handler.accounts.AccountFromRequest(r)
	if err != nil {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	mealID, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "error, id NaN", http.StatusBadRequest)
		return
	}

	var favReq SetFavoriteRequest
	if err := json.NewDecoder(r.Body).Decode(&favReq); err != nil {
		http.Error(w, "set favorite failed", http.StatusBadRequest)
		return
	}

	if err := handler.service.SetFavoriteCommonMeal(ctx, account.ID, mealID, favReq.Favorite); err != nil {
		if errors.Is(err, ErrCommonMealNotFound) {
			http.Error(w, "common meal not found", http.StatusNotFound)
			return
		}
		log.Errorf("failed to set favorite for common meal %d: %s", mealID, err)
		http.Error(w, "error, failed to set favorite", http.StatusInternalServerError)
		return
	}

	pkg.WriteTextResponseOK(w, "updated:"+strconv.Itoa(mealID))
}
