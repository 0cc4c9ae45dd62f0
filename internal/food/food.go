package food

import (
	"fmt"
	"time"

	"github.com/valetudoapp/valetudo/internal/normalize"
)

// meal entry sources
const (
	SourceManual  = "manual"
	SourceBarcode = "barcode"
)

// Food is a user-created custom food.
type Food struct {
	ID        int       `json:"id"`
	AccountID int       `json:"-"`
	Name      string    `json:"name"`
	Servings  float64   `json:"servings"`
	Calories  int       `json:"calories"`
	Protein   int       `json:"protein"`
	Carbs     int       `json:"carbs"`
	Fat       int       `json:"fat"`
	Detail    string    `json:"detail"`
	Favorite  bool      `json:"favorite"`
	CreatedAt time.Time `json:"created_at"`
}

// MealEntry is a logged instance of food consumption tied to a date.
type MealEntry struct {
	ID         int       `json:"id"`
	AccountID  int       `json:"-"`
	ConsumedOn string    `json:"consumed_on"` // YYYY-MM-DD
	Name       string    `json:"name"`
	Calories   int       `json:"calories"`
	Protein    int       `json:"protein"`
	Carbs      int       `json:"carbs"`
	Fat        int       `json:"fat"`
	Detail     string    `json:"detail"`
	Source     string    `json:"source"`
	Barcode    string    `json:"barcode,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// CommonMeal is a pre-seeded meal shared by all accounts. Favorite
// state lives in the KV store per account, not on the meal itself.
type CommonMeal struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Calories int    `json:"calories"`
	Protein  int    `json:"protein"`
	Carbs    int    `json:"carbs"`
	Fat      int    `json:"fat"`
	Detail   string `json:"detail"`
	Favorite bool   `json:"favorite"`
}

// CommonMeals returns the seeded shared meal list.
func CommonMeals() []CommonMeal {
	return []CommonMeal{
		{ID: 1, Name: "Lunch", Calories: 400, Protein: 32, Carbs: 45, Fat: 14, Detail: "Chicken bowl • rice • veggies"},
		{ID: 2, Name: "Snack", Calories: 220, Protein: 18, Carbs: 24, Fat: 6, Detail: "Greek yogurt • honey"},
	}
}

// ServingDetail builds the custom food detail line, e.g.
// "2 servings • 150 kcal/serving".
func ServingDetail(servings float64, kcalPerServing int) string {
	servingsStr := fmt.Sprintf("%g", servings)
	plural := "s"
	if servings == 1 {
		plural = ""
	}
	return fmt.Sprintf("%s serving%s • %d kcal/serving", servingsStr, plural, kcalPerServing)
}

func (f Food) normalized() Food {
	f.Name = normalize.CleanText(f.Name, normalize.FallbackCustomFood)
	f.Servings = normalize.PositiveServings(f.Servings)
	f.Calories = normalize.SafeInt(float64(f.Calories))
	f.Protein = normalize.SafeInt(float64(f.Protein))
	f.Carbs = normalize.SafeInt(float64(f.Carbs))
	f.Fat = normalize.SafeInt(float64(f.Fat))
	f.Detail = normalize.CleanText(f.Detail, "")
	return f
}

func (m MealEntry) normalized() MealEntry {
	m.Name = normalize.CleanText(m.Name, normalize.FallbackMeal)
	m.Calories = normalize.SafeInt(float64(m.Calories))
	m.Protein = normalize.SafeInt(float64(m.Protein))
	m.Carbs = normalize.SafeInt(float64(m.Carbs))
	m.Fat = normalize.SafeInt(float64(m.Fat))
	m.Detail = normalize.CleanText(m.Detail, "")
	m.Source = normalize.CleanText(m.Source, SourceManual)
	m.Barcode = normalize.CleanText(m.Barcode, "")
	return m
}
