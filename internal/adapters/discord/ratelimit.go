package discord

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// clickLimiter es un token bucket por usuario para los componentes.
type clickLimiter struct {
	mu    sync.Mutex
	users map[string]*userBucket
	every rate.Limit
	burst int
	idle  time.Duration
}

type userBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

func newClickLimiter(perSecond float64, burst int) *clickLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &clickLimiter{
		users: map[string]*userBucket{},
		every: rate.Limit(perSecond),
		burst: burst,
		idle:  10 * time.Minute,
	}
}

func (l *clickLimiter) Allow(userID string) bool {
	if l == nil || l.every <= 0 {
		return true
	}
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.users[userID]
	if !ok {
		b = &userBucket{lim: rate.NewLimiter(l.every, l.burst)}
		l.users[userID] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1)
}

// sweep olvida a los usuarios inactivos.
func (l *clickLimiter) sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for id, b := range l.users {
		if now.Sub(b.seen) > l.idle {
			delete(l.users, id)
			n++
		}
	}
	return n
}

func (l *clickLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.users)
}
