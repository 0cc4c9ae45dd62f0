package workout

import "strings"

const (
	// weight input: up to 4 integer digits and 1 fractional digit
	maxWeightIntDigits  = 4
	maxWeightFracDigits = 1
	// reps input: up to 3 digits
	maxRepsDigits = 3

	// WeightAdvisoryThreshold is the weight above which an advisory
	// confirmation is raised. The prompt never mutates the set.
	WeightAdvisoryThreshold = 1000
)

// SanitizeWeightInput filters a weight text input character by
// character: digits and a single decimal point survive, everything
// else is dropped. Applies equally to typed and pasted input.
func SanitizeWeightInput(input string) string {
	var b strings.Builder
	intDigits, fracDigits := 0, 0
	seenDot := false
	for _, r := range input {
		switch {
		case r >= '0' && r <= '9':
			if !seenDot {
				if intDigits == maxWeightIntDigits {
					continue
				}
				intDigits++
			} else {
				if fracDigits == maxWeightFracDigits {
					continue
				}
				fracDigits++
			}
			b.WriteRune(r)
		case r == '.' && !seenDot:
			seenDot = true
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SanitizeRepsInput filters a reps text input down to at most 3 digits.
func SanitizeRepsInput(input string) string {
	var b strings.Builder
	for _, r := range input {
		if r >= '0' && r <= '9' {
			if b.Len() == maxRepsDigits {
				break
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}
