package food

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepo_MealEntries(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()

	today := time.Now().Format("2006-01-02")
	entriesCount := 25
	for i := 0; i < entriesCount; i++ {
		_, err := repo.AddMealEntry(ctx, MealEntry{
			AccountID:  1,
			ConsumedOn: today,
			Name:       gofakeit.Breakfast(),
			Calories:   gofakeit.Number(50, 900),
			Protein:    gofakeit.Number(0, 60),
			Source:     SourceManual,
			CreatedAt:  time.Now().Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	// another account and another day, both invisible to the listing
	_, err := repo.AddMealEntry(ctx, MealEntry{
		AccountID:  2,
		ConsumedOn: today,
		Name:       gofakeit.Dinner(),
	})
	require.NoError(t, err)
	_, err = repo.AddMealEntry(ctx, MealEntry{
		AccountID:  1,
		ConsumedOn: "2000-01-01",
		Name:       gofakeit.Snack(),
	})
	require.NoError(t, err)

	entries, err := repo.ListMealEntries(ctx, 1, today)
	require.NoError(t, err)
	require.Len(t, entries, entriesCount)

	// newest first
	for i := 1; i < len(entries); i++ {
		assert.False(t, entries[i].CreatedAt.After(entries[i-1].CreatedAt))
	}
}

func TestMemoryRepo_DeleteMealEntry(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()

	added, err := repo.AddMealEntry(ctx, MealEntry{
		AccountID:  1,
		ConsumedOn: "2026-02-11",
		Name:       gofakeit.Lunch(),
	})
	require.NoError(t, err)

	// wrong account cannot delete
	err = repo.DeleteMealEntry(ctx, 2, added.ID)
	assert.ErrorIs(t, err, ErrMealEntryNotFound)

	require.NoError(t, repo.DeleteMealEntry(ctx, 1, added.ID))
	err = repo.DeleteMealEntry(ctx, 1, added.ID)
	assert.ErrorIs(t, err, ErrMealEntryNotFound)
}

func TestMemoryRepo_CustomFoods(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()

	foodsCount := 10
	for i := 0; i < foodsCount; i++ {
		_, err := repo.CreateCustomFood(ctx, Food{
			AccountID: 1,
			Name:      fmt.Sprintf("%s %d", gofakeit.Fruit(), i),
			Servings:  float64(gofakeit.Number(1, 4)),
			Calories:  gofakeit.Number(50, 500),
			CreatedAt: time.Now().Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	foods, err := repo.ListCustomFoods(ctx, 1)
	require.NoError(t, err)
	require.Len(t, foods, foodsCount)

	require.NoError(t, repo.SetFavoriteFood(ctx, 1, foods[0].ID, true))
	foods, err = repo.ListCustomFoods(ctx, 1)
	require.NoError(t, err)
	assert.True(t, foods[0].Favorite)

	require.NoError(t, repo.DeleteCustomFood(ctx, 1, foods[0].ID))
	foods, err = repo.ListCustomFoods(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, foods, foodsCount-1)
}
