package common

import "time"

// Freshness TTLs for cached data
const (
	FreshnessPortfolio = 15 * time.Minute   // full portfolio state
	FreshnessRates     = 12 * time.Hour     // FX rates move slowly intraday
	FreshnessSnapshots = 24 * time.Hour     // daily snapshots append once per day
	FreshnessStale     = 7 * 24 * time.Hour // beyond this, offline data gets a staleness warning
)

// IsFresh returns true if the given timestamp is within the TTL
func IsFresh(updated time.Time, ttl time.Duration) bool {
	if updated.IsZero() {
		return false
	}
	return time.Since(updated) < ttl
}
