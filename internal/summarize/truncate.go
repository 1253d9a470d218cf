package summarize

import (
	"context"
)

// Truncation defaults.
const (
	DefaultBudget = 800
	DefaultMarker = "..."
)

// Truncator keeps the first Budget characters and appends Marker when text
// was cut. Text within budget is returned unchanged.
type Truncator struct {
	Budget int
	Marker string
}

// NewTruncator returns a Truncator with the default marker. A non-positive
// budget selects DefaultBudget.
func NewTruncator(budget int) *Truncator {
	if budget <= 0 {
		budget = DefaultBudget
	}
	return &Truncator{Budget: budget, Marker: DefaultMarker}
}

func (t *Truncator) Summarize(_ context.Context, text string, _ Bounds) (string, error) {
	return t.Truncate(text), nil
}

// Truncate counts characters as runes so multi-byte text is never split.
func (t *Truncator) Truncate(text string) string {
	budget := t.Budget
	if budget <= 0 {
		budget = DefaultBudget
	}

	n := 0
	for i := range text {
		if n == budget {
			return text[:i] + t.Marker
		}
		n++
	}
	return text
}
