// Package diskcache implements the versioned JSON disk caches and the
// stale-while-revalidate policy shared by the Plex, watchlist and settings caches.
//
// An entry moves through three states as it ages:
//
//	age < FreshFor             fresh   served, no refresh needed
//	FreshFor <= age < StaleFor stale   served, refresh scheduled in the background
//	age >= StaleFor            expired treated as a miss, caller fetches synchronously
package diskcache

import "time"

// State is the freshness classification of a cache entry.
type State int

const (
	StateFresh State = iota
	StateStale
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateStale:
		return "stale"
	default:
		return "expired"
	}
}

// Policy holds the two time windows of a cache instance.
type Policy struct {
	FreshFor time.Duration
	StaleFor time.Duration
}

// State classifies an entry of the given age. Negative ages (clock skew) are fresh.
func (p Policy) State(age time.Duration) State {
	p = p.normalized()
	switch {
	case age < p.FreshFor:
		return StateFresh
	case age < p.StaleFor:
		return StateStale
	default:
		return StateExpired
	}
}

func (p Policy) normalized() Policy {
	if p.FreshFor < 0 {
		p.FreshFor = 0
	}
	if p.StaleFor < p.FreshFor {
		p.StaleFor = p.FreshFor
	}
	return p
}
