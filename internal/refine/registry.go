package refine

import (
	"sync"
	"time"
)

const (
	defaultSessionTTL  = 30 * time.Minute
	defaultMaxSessions = 1000
)

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithSessionTTL drops sessions idle for longer than d.
func WithSessionTTL(d time.Duration) RegistryOption {
	return func(g *Registry) {
		if d > 0 {
			g.ttl = d
		}
	}
}

// WithMaxSessions caps the number of tracked sessions. When full, the least
// recently used session is dropped to make room.
func WithMaxSessions(n int) RegistryOption {
	return func(g *Registry) {
		if n > 0 {
			g.max = n
		}
	}
}

type registryEntry struct {
	session *Session
	seen    time.Time
}

// Registry maps API session IDs to Sessions.
type Registry struct {
	refiner *Refiner
	ttl     time.Duration
	max     int
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*registryEntry
}

// NewRegistry creates an empty Registry backed by r.
func NewRegistry(r *Refiner, opts ...RegistryOption) *Registry {
	g := &Registry{
		refiner:  r,
		ttl:      defaultSessionTTL,
		max:      defaultMaxSessions,
		now:      time.Now,
		sessions: make(map[string]*registryEntry),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Get returns the session for id, creating it on first use.
func (g *Registry) Get(id string) *Session {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.expire(now)
	if e, ok := g.sessions[id]; ok {
		e.seen = now
		return e.session
	}
	if len(g.sessions) >= g.max {
		g.evictOldest()
	}
	s := g.refiner.NewSession()
	g.sessions[id] = &registryEntry{session: s, seen: now}
	return s
}

// Drop forgets a session.
func (g *Registry) Drop(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.sessions, id)
}

// Len returns the number of tracked sessions.
func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sessions)
}

func (g *Registry) expire(now time.Time) {
	for id, e := range g.sessions {
		if now.Sub(e.seen) > g.ttl {
			delete(g.sessions, id)
		}
	}
}

func (g *Registry) evictOldest() {
	var (
		oldest string
		seen   time.Time
		found  bool
	)
	for id, e := range g.sessions {
		if !found || e.seen.Before(seen) {
			oldest, seen, found = id, e.seen, true
		}
	}
	if found {
		delete(g.sessions, oldest)
	}
}
