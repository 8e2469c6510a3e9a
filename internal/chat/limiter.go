package chat

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// limiter hands out one token bucket per user.
type limiter struct {
	mu      sync.Mutex
	perUser map[string]*userBucket
	limit   rate.Limit
	burst   int
}

type userBucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newLimiter(perSecond float64, burst int) *limiter {
	if perSecond <= 0 {
		perSecond = 1
	}
	if burst <= 0 {
		burst = 5
	}
	return &limiter{perUser: make(map[string]*userBucket), limit: rate.Limit(perSecond), burst: burst}
}

func (l *limiter) allow(userID string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.perUser[userID]
	if !ok {
		b = &userBucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.perUser[userID] = b
	}
	b.lastSeen = now
	if len(l.perUser) > 1024 {
		l.sweep(now)
	}
	return b.lim.AllowN(now, 1)
}

// sweep drops buckets idle long enough to have refilled.
func (l *limiter) sweep(now time.Time) {
	idle := time.Duration(float64(l.burst)/float64(l.limit)*float64(time.Second)) + time.Minute
	for id, b := range l.perUser {
		if now.Sub(b.lastSeen) > idle {
			delete(l.perUser, id)
		}
	}
}
