package safebox

import "github.com/nuln/safebox/digest"

// DigestReporter is implemented by drivers that can tell which algorithm
// their Hash method uses. Use type assertion to check:
//
//	if dr, ok := drv.(safebox.DigestReporter); ok { ... }
//
// Drivers that do not implement it are assumed to hash with [digest.Default].
type DigestReporter interface {
	Algorithm() digest.Algorithm
}

// algorithmOf returns the digest algorithm drv hashes with.
func algorithmOf(drv Driver) digest.Algorithm {
	if dr, ok := drv.(DigestReporter); ok {
		if a := dr.Algorithm(); a.Valid() {
			return a
		}
	}
	return digest.Default
}
