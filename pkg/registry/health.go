package registry

import "time"

// IsHealthy reports whether a service whose heartbeat was last seen at
// lastSeen still counts as alive at the given instant. A heartbeat exactly
// window old is already stale: the window is a strict bound. A zero
// lastSeen is never healthy.
func IsHealthy(lastSeen, now time.Time, window time.Duration) bool {
	if lastSeen.IsZero() {
		return false
	}
	return now.Sub(lastSeen) < window
}
