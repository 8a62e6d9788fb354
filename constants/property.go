package constants

import (
	"strings"
)

type Goal string

const (
	GoalSale Goal = "SALE"
	GoalRent Goal = "RENT"
)

const (
	DefaultCategory = "house"
	DefaultSubtype  = "detached_villa"
	DefaultCountry  = "Cyprus"
	DefaultCurrency = "EUR"
	DefaultTitle    = "Untitled Import"
	DefaultVariant  = "public"
	DefaultMaxImage = 50
)

// CanonicalGoal maps free text onto SALE or RENT. Anything that isn't clearly a rental is a sale.
func CanonicalGoal(input string) (Goal, bool) {
	normalized := strings.ToLower(strings.TrimSpace(input))
	if normalized == "" {
		return GoalSale, false
	}

	synonyms := map[string]Goal{
		"rent":       GoalRent,
		"rental":     GoalRent,
		"to rent":    GoalRent,
		"for rent":   GoalRent,
		"let":        GoalRent,
		"to let":     GoalRent,
		"long term":  GoalRent,
		"short term": GoalRent,
		"sale":       GoalSale,
		"sell":       GoalSale,
		"for sale":   GoalSale,
		"buy":        GoalSale,
	}
	if g, ok := synonyms[normalized]; ok {
		return g, true
	}
	return GoalSale, false
}
