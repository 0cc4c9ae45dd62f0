package food

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is the in-process repo used when no postgres host is
// configured. Listings return newest entries first, same as the
// postgres repo.
type MemoryRepo struct {
	mutex       sync.RWMutex
	foods       map[int]Food
	mealEntries map[int]MealEntry
	nextFoodID  int
	nextEntryID int
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		foods:       map[int]Food{},
		mealEntries: map[int]MealEntry{},
		nextFoodID:  1,
		nextEntryID: 1,
	}
}

func (r *MemoryRepo) ListCustomFoods(_ context.Context, accountID int) ([]Food, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var foods []Food
	for _, f := range r.foods {
		if f.AccountID == accountID {
			foods = append(foods, f)
		}
	}
	sortNewestFirst(foods, func(f Food) (time.Time, int) { return f.CreatedAt, f.ID })
	return foods, nil
}

func (r *MemoryRepo) CreateCustomFood(_ context.Context, food Food) (*Food, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if food.CreatedAt.IsZero() {
		food.CreatedAt = time.Now()
	}
	food.ID = r.nextFoodID
	r.nextFoodID++
	r.foods[food.ID] = food
	return &food, nil
}

func (r *MemoryRepo) SetFavoriteFood(_ context.Context, accountID, foodID int, favorite bool) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	f, ok := r.foods[foodID]
	if !ok || f.AccountID != accountID {
		return ErrFoodNotFound
	}
	f.Favorite = favorite
	r.foods[foodID] = f
	return nil
}

func (r *MemoryRepo) DeleteCustomFood(_ context.Context, accountID, foodID int) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	f, ok := r.foods[foodID]
	if !ok || f.AccountID != accountID {
		return ErrFoodNotFound
	}
	delete(r.foods, foodID)
	return nil
}

func (r *MemoryRepo) ListMealEntries(_ context.Context, accountID int, dateKey string) ([]MealEntry, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var entries []MealEntry
	for _, m := range r.mealEntries {
		if m.AccountID == accountID && m.ConsumedOn == dateKey {
			entries = append(entries, m)
		}
	}
	sortNewestFirst(entries, func(m MealEntry) (time.Time, int) { return m.CreatedAt, m.ID })
	return entries, nil
}

func (r *MemoryRepo) AddMealEntry(_ context.Context, entry MealEntry) (*MealEntry, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	entry.ID = r.nextEntryID
	r.nextEntryID++
	r.mealEntries[entry.ID] = entry
	return &entry, nil
}

func (r *MemoryRepo) UpdateMealEntry(_ context.Context, entry MealEntry) (*MealEntry, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	stored, ok := r.mealEntries[entry.ID]
	if !ok || stored.AccountID != entry.AccountID {
		return nil, ErrMealEntryNotFound
	}

	stored.Name = entry.Name
	stored.Calories = entry.Calories
	stored.Protein = entry.Protein
	stored.Carbs = entry.Carbs
	stored.Fat = entry.Fat
	stored.Detail = entry.Detail
	r.mealEntries[entry.ID] = stored
	return &stored, nil
}

func (r *MemoryRepo) DeleteMealEntry(_ context.Context, accountID, entryID int) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	m, ok := r.mealEntries[entryID]
	if !ok || m.AccountID != accountID {
		return ErrMealEntryNotFound
	}
	delete(r.mealEntries, entryID)
	return nil
}

// sortNewestFirst orders by created_at descending, id descending as a
// tie-break (entries created in the same instant).
func sortNewestFirst[T any](items []T, key func(T) (time.Time, int)) {
	sort.Slice(items, func(i, j int) bool {
		ti, idi := key(items[i])
		tj, idj := key(items[j])
		if ti.Equal(tj) {
			return idi > idj
		}
		return ti.After(tj)
	})
}
