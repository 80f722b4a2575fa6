package appointment

import (
	"slices"
	"sync"
)

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// practitionerLocks serializes mutations per practitioner inside one process.
// Entries are dropped once nobody holds or waits for them.
type practitionerLocks struct {
	mu    sync.Mutex
	locks map[int]*lockEntry
}

func newPractitionerLocks() *practitionerLocks {
	return &practitionerLocks{locks: make(map[int]*lockEntry)}
}

// Lock acquires the locks of all given practitioners in ascending id order and
// returns the function releasing them.
func (l *practitionerLocks) Lock(practitionerIds ...int) (unlock func()) {
	ids := slices.Clone(practitionerIds)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	entries := make([]*lockEntry, 0, len(ids))
	for _, id := range ids {
		entry := l.acquire(id)
		entry.mu.Lock()
		entries = append(entries, entry)
	}

	return func() {
		for i := len(entries) - 1; i >= 0; i-- {
			entries[i].mu.Unlock()
			l.release(ids[i])
		}
	}
}

func (l *practitionerLocks) acquire(id int) *lockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.locks[id]
	if !ok {
		entry = &lockEntry{}
		l.locks[id] = entry
	}
	entry.refs++
	return entry
}

func (l *practitionerLocks) release(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry := l.locks[id]
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, id)
	}
}

func (l *practitionerLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
