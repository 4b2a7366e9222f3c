// internal/rating/elo.go
package rating

import "math"

// KFactor controls how far a single ranked debate moves a rating.
const KFactor = 32

// StartingElo is the rating assigned to new accounts.
const StartingElo = 0

// Outcome values for Apply, from the perspective of the first player.
const (
	Win  = 1.0
	Loss = 0.0
	Draw = 0.5
)

// Expected returns the expected score of a against b.
func Expected(a, b int) float64 {
	return 1.0 / (1.0 + math.Pow(10, float64(b-a)/400.0))
}

// Apply returns the updated ratings for a and b given a's outcome. Ratings
// never drop below zero, matching the ladder's visible floor.
func Apply(a, b int, outcome float64) (int, int) {
	ea := Expected(a, b)
	newA := float64(a) + KFactor*(outcome-ea)
	newB := float64(b) + KFactor*((1-outcome)-(1-ea))

	return clamp(newA), clamp(newB)
}

func clamp(v float64) int {
	r := int(math.Round(v))
	if r < 0 {
		return 0
	}
	return r
}

// tier is a named band of the ladder.
type tier struct {
	Name   string
	MinElo int
}

// Bands mirror the product's rank ladder; the last entry is open-ended.
var tiers = []tier{
	{"Bronze", 0},
	{"Silver", 300},
	{"Gold", 600},
	{"Platinum", 900},
	{"Diamond", 1200},
	{"Master", 1500},
	{"Grandmaster", 1800},
}

// TierName returns the rank tier displayed for an Elo value.
func TierName(elo int) string {
	name := tiers[0].Name
	for _, t := range tiers {
		if elo >= t.MinElo {
			name = t.Name
		}
	}
	return name
}
