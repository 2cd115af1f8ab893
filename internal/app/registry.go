package app

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// PinMarker mirrors live PIN reservations to an external store so other
// instances (or operators) can see which codes are in play. Calls are best
// effort; the in-memory registry stays authoritative.
type PinMarker interface {
	Reserve(pin string)
	Release(pin string)
}

const pinAttempts = 1000

// Registry owns every active session, keyed by PIN. It is constructed at
// startup and passed by handle; there is no process-wide singleton. The
// registry lock covers only the map, never session internals.
type Registry struct {
	retention time.Duration
	marker    PinMarker

	mu       sync.RWMutex
	sessions map[string]*Session
	rnd      *rand.Rand
}

func NewRegistry(retention time.Duration, marker PinMarker) *Registry {
	return &Registry{
		retention: retention,
		marker:    marker,
		sessions:  make(map[string]*Session),
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// add generates a 6-digit PIN unused by any live session and registers the
// session under it.
func (r *Registry) add(build func(pin string) *Session) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := 0; i < pinAttempts; i++ {
		pin := fmt.Sprintf("%06d", r.rnd.Intn(1000000))
		if _, taken := r.sessions[pin]; taken {
			continue
		}
		session := build(pin)
		r.sessions[pin] = session
		if r.marker != nil {
			r.marker.Reserve(pin)
		}
		return session, nil
	}
	return nil, fmt.Errorf("no free session pin after %d attempts", pinAttempts)
}

// Get looks a session up by PIN. Idempotent, no side effects.
func (r *Registry) Get(pin string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[pin]
	return session, ok
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// ScheduleEviction releases the PIN after the retention period. Finished
// sessions stay readable until then so late status fetches still see the
// leaderboard.
func (r *Registry) ScheduleEviction(pin string) {
	if r.retention <= 0 {
		r.evict(pin)
		return
	}
	time.AfterFunc(r.retention, func() { r.evict(pin) })
}

func (r *Registry) evict(pin string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[pin]; !ok {
		return
	}
	delete(r.sessions, pin)
	if r.marker != nil {
		r.marker.Release(pin)
	}
}
