package clientauth

import (
	"crypto/subtle"
	"time"
)

// secretMatches compares a presented secret against the registered one.
// Lengths are compared first as a published implementation detail; only the
// byte comparison is constant time.
func secretMatches(registered, presented string) bool {
	if len(registered) != len(presented) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(registered), []byte(presented)) == 1
}

// nowFunc is swapped by tests exercising secret expiry.
var nowFunc = time.Now
