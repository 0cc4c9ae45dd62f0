// Package normalize holds the boundary coercion helpers applied to every
// macro/calorie number and every free-text name before it is stored,
// returned, or rendered. No function here ever fails: malformed input
// collapses to a safe default instead.
package normalize

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Fallback labels for empty or whitespace-only names.
const (
	FallbackMeal       = "Meal"
	FallbackCustomFood = "Custom food"
	FallbackPost       = "Post"
	FallbackUser       = "User"
)

// DateKeyLayout is the day key format used to scope meal entries.
const DateKeyLayout = "2006-01-02"

// SafeInt coerces v into a non-negative rounded integer.
// NaN, infinities and negative values all collapse to 0.
func SafeInt(v float64) int {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	rounded := int(math.Round(v))
	if rounded < 0 {
		return 0
	}
	return rounded
}

// SafeIntFromString parses s as a decimal number and coerces it like
// SafeInt. Non-numeric input (including empty string) yields 0.
func SafeIntFromString(s string) int {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return SafeInt(v)
}

// CleanText trims s; when nothing remains, fallback is returned instead.
func CleanText(s, fallback string) string {
	if trimmed := strings.TrimSpace(s); trimmed != "" {
		return trimmed
	}
	return fallback
}

// PositiveServings coerces a servings count: anything that is not a
// finite number greater than zero becomes 1.
func PositiveServings(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 1
	}
	return v
}

// DateKey formats t as a YYYY-MM-DD day key in t's location.
func DateKey(t time.Time) string {
	return t.Format(DateKeyLayout)
}

// ParseDateKey validates a YYYY-MM-DD day key.
func ParseDateKey(key string) (time.Time, error) {
	return time.Parse(DateKeyLayout, key)
}
