package food

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/valetudoapp/valetudo/internal/events"
	"github.com/valetudoapp/valetudo/internal/kvstore"
	"github.com/valetudoapp/valetudo/internal/normalize"
)

var (
	ErrInvalidCustomFood  = errors.New("invalid custom food")
	ErrCommonMealNotFound = errors.New("common meal not found")
)

const favoriteCommonMealsKeyName = "favorite_common_meals"

type Repository interface {
	ListCustomFoods(ctx context.Context, accountID int) ([]Food, error)
	CreateCustomFood(ctx context.Context, food Food) (*Food, error)
	SetFavoriteFood(ctx context.Context, accountID, foodID int, favorite bool) error
	DeleteCustomFood(ctx context.Context, accountID, foodID int) error
	ListMealEntries(ctx context.Context, accountID int, dateKey string) ([]MealEntry, error)
	AddMealEntry(ctx context.Context, entry MealEntry) (*MealEntry, error)
	UpdateMealEntry(ctx context.Context, entry MealEntry) (*MealEntry, error)
	DeleteMealEntry(ctx context.Context, accountID, entryID int) error
}

// Service normalizes every food/meal payload on its way to the repo
// and announces committed meal entries on the event bus. All commit
// paths (manual add, barcode scan, photo estimate) go through here.
type Service struct {
	repo       Repository
	kv         kvstore.Store
	mealEvents *events.Bus[events.MealLogged]
}

func NewService(repo Repository, kv kvstore.Store, mealEvents *events.Bus[events.MealLogged]) *Service {
	return &Service{
		repo:       repo,
		kv:         kv,
		mealEvents: mealEvents,
	}
}

func (s *Service) ListCustomFoods(ctx context.Context, accountID int) ([]Food, error) {
	return s.repo.ListCustomFoods(ctx, accountID)
}

// CreateCustomFood builds and stores a custom food from servings and
// calories per serving; total calories are servings × kcal, rounded.
// The new food is also committed as a meal entry for the current date,
// matching the "save and log it now" flow.
func (s *Service) CreateCustomFood(
	ctx context.Context,
	accountID int,
	name string,
	servings float64,
	kcalPerServing int,
) (*Food, error) {
	name = normalize.CleanText(name, "")
	if name == "" || servings <= 0 || kcalPerServing <= 0 ||
		math.IsNaN(servings) || math.IsInf(servings, 0) {
		return nil, ErrInvalidCustomFood
	}

	food := Food{
		AccountID: accountID,
		Name:      name,
		Servings:  servings,
		Calories:  normalize.SafeInt(servings * float64(kcalPerServing)),
		Detail:    ServingDetail(servings, kcalPerServing),
	}

	created, err := s.repo.CreateCustomFood(ctx, food.normalized())
	if err != nil {
		return nil, err
	}

	if _, err := s.AddMealEntry(ctx, MealEntry{
		AccountID:  accountID,
		ConsumedOn: normalize.DateKey(time.Now()),
		Name:       created.Name,
		Calories:   created.Calories,
		Protein:    created.Protein,
		Carbs:      created.Carbs,
		Fat:        created.Fat,
		Detail:     created.Detail,
		Source:     SourceManual,
	}); err != nil {
		return nil, fmt.Errorf("commit custom food as meal entry: %w", err)
	}

	return created, nil
}

func (s *Service) SetFavoriteFood(ctx context.Context, accountID, foodID int, favorite bool) error {
	return s.repo.SetFavoriteFood(ctx, accountID, foodID, favorite)
}

func (s *Service) DeleteCustomFood(ctx context.Context, accountID, foodID int) error {
	return s.repo.DeleteCustomFood(ctx, accountID, foodID)
}

func (s *Service) ListMealEntries(ctx context.Context, accountID int, dateKey string) ([]MealEntry, error) {
	if _, err := normalize.ParseDateKey(dateKey); err != nil {
		return nil, err
	}
	return s.repo.ListMealEntries(ctx, accountID, dateKey)
}

func (s *Service) AddMealEntry(ctx context.Context, entry MealEntry) (*MealEntry, error) {
	if _, err := normalize.ParseDateKey(entry.ConsumedOn); err != nil {
		return nil, err
	}

	added, err := s.repo.AddMealEntry(ctx, entry.normalized())
	if err != nil {
		return nil, err
	}

	s.mealEvents.Publish(events.MealLogged{
		AccountID: added.AccountID,
		Name:      added.Name,
		Calories:  added.Calories,
		Source:    added.Source,
		LoggedAt:  time.Now(),
	})

	return added, nil
}

// UpdateMealEntry rewrites the editable fields of a logged meal. No
// event is published, the meal was already announced when logged.
func (s *Service) UpdateMealEntry(ctx context.Context, entry MealEntry) (*MealEntry, error) {
	return s.repo.UpdateMealEntry(ctx, entry.normalized())
}

func (s *Service) DeleteMealEntry(ctx context.Context, accountID, entryID int) error {
	return s.repo.DeleteMealEntry(ctx, accountID, entryID)
}

// ListCommonMeals returns the seeded shared meals with the account's
// favorite flags applied. Favorites for common meals live in the KV
// store, the meals themselves are not per-account rows.
func (s *Service) ListCommonMeals(ctx context.Context, accountID int) ([]CommonMeal, error) {
	favoriteIDs, err := s.favoriteCommonMealIDs(ctx, accountID)
	if err != nil {
		return nil, err
	}

	meals := CommonMeals()
	for i := range meals {
		_, meals[i].Favorite = favoriteIDs[meals[i].ID]
	}
	return meals, nil
}

func (s *Service) SetFavoriteCommonMeal(ctx context.Context, accountID, mealID int, favorite bool) error {
	known := false
	for _, meal := range CommonMeals() {
		if meal.ID == mealID {
			known = true
			break
		}
	}
	if !known {
		return ErrCommonMealNotFound
	}

	favoriteIDs, err := s.favoriteCommonMealIDs(ctx, accountID)
	if err != nil {
		return err
	}

	if favorite {
		favoriteIDs[mealID] = struct{}{}
	} else {
		delete(favoriteIDs, mealID)
	}

	ids := make([]int, 0, len(favoriteIDs))
	for id := range favoriteIDs {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	return kvstore.SetJSON(ctx, s.kv, s.favoriteCommonMealsKey(accountID), ids)
}

func (s *Service) favoriteCommonMealIDs(ctx context.Context, accountID int) (map[int]struct{}, error) {
	ids, err := kvstore.GetJSON[[]int](ctx, s.kv, s.favoriteCommonMealsKey(accountID))
	if err != nil && !errors.Is(err, kvstore.ErrNotFound) {
		return nil, err
	}

	idSet := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		idSet[id] = struct{}{}
	}
	return idSet, nil
}

func (s *Service) favoriteCommonMealsKey(accountID int) string {
	return kvstore.AccountKey(accountID, favoriteCommonMealsKeyName)
}
