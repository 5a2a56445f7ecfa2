package market

import "time"

// DefaultMaxSnapshotAge bounds how old a snapshot may be before it is
// excluded from ranking and admission.
const DefaultMaxSnapshotAge = 10 * time.Second

// Fresh reports whether a snapshot taken at ts may still be acted on at now.
// A snapshot aged exactly maxAge is stale: the boundary rejects.
func Fresh(ts, now time.Time, maxAge time.Duration) bool {
	return now.Sub(ts) < maxAge
}
