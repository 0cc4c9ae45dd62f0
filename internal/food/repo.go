package food

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrFoodNotFound      = errors.New("custom food not found")
	ErrMealEntryNotFound = errors.New("meal entry not found")
)

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db: db,
	}
}

func (r *Repo) ListCustomFoods(ctx context.Context, accountID int) ([]Food, error) {
	rows, err := r.db.Query(
		ctx,
		`
			SELECT
				id, account_id, name, servings, calories, protein, carbs, fat, detail, favorite, created_at
			FROM custom_food
			WHERE account_id = $1
			ORDER BY created_at DESC;`,
		accountID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	var foods []Food
	for rows.Next() {
		var f Food
		if err := rows.Scan(
			&f.ID, &f.AccountID, &f.Name, &f.Servings, &f.Calories,
			&f.Protein, &f.Carbs, &f.Fat, &f.Detail, &f.Favorite, &f.CreatedAt,
		); err != nil {
			return nil, err
		}
		foods = append(foods, f)
	}

	return foods, nil
}

func (r *Repo) CreateCustomFood(ctx context.Context, food Food) (*Food, error) {
	if food.CreatedAt.IsZero() {
		food.CreatedAt = time.Now()
	}

	rows, err := r.db.Query(
		ctx,
		`
			INSERT INTO custom_food
				(account_id, name, servings, calories, protein, carbs, fat, detail, favorite, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING id;`,
		food.AccountID, food.Name, food.Servings, food.Calories,
		food.Protein, food.Carbs, food.Fat, food.Detail, food.Favorite, food.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if !rows.Next() {
		return nil, errors.New("unexpected error [no rows next]")
	}

	var id int
	if err := rows.Scan(&id); err != nil {
		return nil, fmt.Errorf("rows scan: %w", err)
	}

	food.ID = id
	return &food, nil
}

func (r *Repo) SetFavoriteFood(ctx context.Context, accountID, foodID int, favorite bool) error {
	tag, err := r.db.Exec(
		ctx,
		`UPDATE custom_food SET favorite = $1 WHERE id = $2 AND account_id = $3;`,
		favorite, foodID, accountID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrFoodNotFound
	}
	return nil
}

func (r *Repo) DeleteCustomFood(ctx context.Context, accountID, foodID int) error {
	tag, err := r.db.Exec(
		ctx,
		`DELETE FROM custom_food WHERE id = $1 AND account_id = $2;`,
		foodID, accountID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrFoodNotFound
	}
	return nil
}

func (r *Repo) ListMealEntries(ctx context.Context, accountID int, dateKey string) ([]MealEntry, error) {
	rows, err := r.db.Query(
		ctx,
		`
			SELECT
				id, account_id, consumed_on, name, calories, protein, carbs, fat, detail, source, COALESCE(barcode, ''), created_at
			FROM meal_entry
			WHERE account_id = $1 AND consumed_on = $2
			ORDER BY created_at DESC;`,
		accountID, dateKey,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	var entries []MealEntry
	for rows.Next() {
		var m MealEntry
		var consumedOn time.Time
		if err := rows.Scan(
			&m.ID, &m.AccountID, &consumedOn, &m.Name, &m.Calories,
			&m.Protein, &m.Carbs, &m.Fat, &m.Detail, &m.Source, &m.Barcode, &m.CreatedAt,
		); err != nil {
			return nil, err
		}
		m.ConsumedOn = consumedOn.Format("2006-01-02")
		entries = append(entries, m)
	}

	return entries, nil
}

func (r *Repo) AddMealEntry(ctx context.Context, entry MealEntry) (*MealEntry, error) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	var barcode *string
	if entry.Barcode != "" {
		barcode = &entry.Barcode
	}

	rows, err := r.db.Query(
		ctx,
		`
			INSERT INTO meal_entry
				(account_id, consumed_on, name, calories, protein, carbs, fat, detail, source, barcode, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING id;`,
		entry.AccountID, entry.ConsumedOn, entry.Name, entry.Calories, entry.Protein,
		entry.Carbs, entry.Fat, entry.Detail, entry.Source, barcode, entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if !rows.Next() {
		return nil, errors.New("unexpected error [no rows next]")
	}

	var id int
	if err := rows.Scan(&id); err != nil {
		return nil, fmt.Errorf("rows scan: %w", err)
	}

	entry.ID = id
	return &entry, nil
}

// UpdateMealEntry rewrites the editable fields of an entry. Date,
// source, barcode and created_at stay as logged.
func (r *Repo) UpdateMealEntry(ctx context.Context, entry MealEntry) (*MealEntry, error) {
	rows, err := r.db.Query(
		ctx,
		`
			UPDATE meal_entry
			SET name = $1, calories = $2, protein = $3, carbs = $4, fat = $5, detail = $6
			WHERE id = $7 AND account_id = $8
			RETURNING consumed_on, source, COALESCE(barcode, ''), created_at;`,
		entry.Name, entry.Calories, entry.Protein, entry.Carbs, entry.Fat, entry.Detail,
		entry.ID, entry.AccountID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if !rows.Next() {
		return nil, ErrMealEntryNotFound
	}

	var consumedOn time.Time
	if err := rows.Scan(&consumedOn, &entry.Source, &entry.Barcode, &entry.CreatedAt); err != nil {
		return nil, fmt.Errorf("rows scan: %w", err)
	}
	entry.ConsumedOn = consumedOn.Format("2006-01-02")
	return &entry, nil
}

func (r *Repo) DeleteMealEntry(ctx context.Context, accountID, entryID int) error {
	tag, err := r.db.Exec(
		ctx,
		`DELETE FROM meal_entry WHERE id = $1 AND account_id = $2;`,
		entryID, accountID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrMealEntryNotFound
	}
	return nil
}
