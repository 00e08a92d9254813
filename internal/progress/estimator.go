// Package progress turns raw server progress into a displayable percentage.
package progress

const (
	// Complete is only reported when the server itself says so
	Complete = 100
	// Ceiling is the highest value a synthetic estimate can reach
	Ceiling = 99
)

// Estimate returns the progress value to display given the server's value
// and the value currently shown.
//
// A positive server value is trusted (clamped to 100). A zero value means the
// backend is not reporting granular progress yet, so the display creeps up by
// one per poll and stops at 99; completion is only shown once the completed
// phase is observed. The result is never lower than prior.
func Estimate(server, prior int) int {
	if prior < 0 {
		prior = 0
	}
	if server < 0 {
		server = 0
	}

	var next int
	if server > 0 {
		next = min(server, Complete)
	} else {
		next = min(prior+1, Ceiling)
	}

	return max(next, min(prior, Complete))
}
