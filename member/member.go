// Package member tracks who may use commands and who has chatted.
package member

// Tracker holds the permitted identities and the identities seen so far.
// It is not safe for concurrent use; it belongs to the dispatch loop.
type Tracker struct {
	permitted map[string]bool
	seen      map[string]bool
}

// New creates a tracker. permitted is the fixed set of identities allowed to
// use commands. seen is the identities never to be treated as new chatters.
// Identities are compared exactly.
func New(permitted, seen []string) *Tracker {
	t := Tracker{
		permitted: make(map[string]bool, len(permitted)),
		seen:      make(map[string]bool, len(seen)),
	}
	for _, id := range permitted {
		t.permitted[id] = true
	}
	for _, id := range seen {
		t.seen[id] = true
	}
	return &t
}

// Permitted returns whether id may use commands.
func (t *Tracker) Permitted(id string) bool {
	return t.permitted[id]
}

// NoteSeen records id as seen. It returns true if and only if this is the
// first time id has been seen.
func (t *Tracker) NoteSeen(id string) bool {
	if t.seen[id] {
		return false
	}
	t.seen[id] = true
	return true
}

// Seen returns the number of identities seen, including the seeded ones.
func (t *Tracker) Seen() int {
	return len(t.seen)
}

// PermittedCount returns the number of permitted identities.
func (t *Tracker) PermittedCount() int {
	return len(t.permitted)
}
