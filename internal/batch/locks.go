package batch

import "sync"

// lockTable hands out one mutex per tenant. Mutating operations hold it for
// their whole duration so a replace's clear phase can never interleave with
// another operation's set phase on the same tenant. The table itself is only
// locked long enough to find or create an entry.
type lockTable struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func (l *lockTable) acquire(tenant string) (unlock func()) {
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[string]*sync.Mutex)
	}
	mu, ok := l.m[tenant]
	if !ok {
		mu = &sync.Mutex{}
		l.m[tenant] = mu
	}
	l.mu.Unlock()

	mu.Lock()
	return mu.Unlock
}
