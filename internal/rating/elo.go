// Package rating turns completed matches into ELO updates and commits them
// through the storage gateway.
package rating

import "math"

const (
	DefaultK      = 32.0
	DefaultRating = 1200
)

// Expected is the expected score of a player rated ra against rb.
func Expected(ra, rb int) float64 {
	return 1 / (1 + math.Pow(10, float64(rb-ra)/400))
}

// Compute returns the new ratings of A and B. actualA is 1 for a win by A, 0
// for a loss and 0.5 for a draw. Results are rounded and never negative.
func Compute(ra, rb int, actualA, k float64) (int, int) {
	ea := Expected(ra, rb)
	eb := 1 - ea
	actualB := 1 - actualA
	na := math.Round(float64(ra) + k*(actualA-ea))
	nb := math.Round(float64(rb) + k*(actualB-eb))
	return clamp(na), clamp(nb)
}

func clamp(r float64) int {
	if r < 0 {
		return 0
	}
	return int(r)
}
