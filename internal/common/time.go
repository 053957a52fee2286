package common

import "time"

// Now returns the current time in UTC. All persisted timestamps are
// UTC RFC 3339.
func Now() time.Time {
	return time.Now().UTC()
}
