package network

import "time"

// Health is what selection needs to know about a candidate.
type Health interface {
	RemainingBackoff() time.Duration
}

// Select scans candidates cyclically once, starting at cursor. The first
// candidate with no remaining backoff is returned immediately. When none is
// healthy, the one with the smallest remaining backoff is returned, the first
// in scan order on ties. The index of the chosen candidate is returned with
// it, or -1 when there are no candidates.
func Select[T Health](candidates []T, cursor int) (T, int) {
	var zero T

	n := len(candidates)
	if n == 0 {
		return zero, -1
	}

	start := cursor % n
	if start < 0 {
		start += n
	}

	best := -1
	var bestRemaining time.Duration

	for i := 0; i < n; i++ {
		idx := (start + i) % n
		remaining := candidates[idx].RemainingBackoff()

		if remaining <= 0 {
			return candidates[idx], idx
		}

		if best < 0 || remaining < bestRemaining {
			best = idx
			bestRemaining = remaining
		}
	}

	return candidates[best], best
}
