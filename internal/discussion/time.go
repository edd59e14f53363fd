package discussion

import "time"

// timeNow is a package-level variable for testability.
// Tests can replace this to control time in assertions.
var timeNow = time.Now

// now returns the current UTC time as RFC3339, the timestamp format used
// everywhere in persisted records.
func now() string {
	return timeNow().UTC().Format(time.RFC3339)
}
