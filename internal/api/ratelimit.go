package api

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// staleAfter is how long an idle client entry survives before pruning.
const staleAfter = 10 * time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter throttles invoice creation per client IP. State is
// process-local; in a multi-instance deployment each instance counts
// independently.
type IPRateLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	clients map[string]*clientLimiter
}

// NewIPRateLimiter allows perMin requests per minute with the given
// burst per client IP. perMin <= 0 disables limiting.
func NewIPRateLimiter(perMin, burst int) *IPRateLimiter {
	var limit rate.Limit = rate.Inf
	if perMin > 0 {
		limit = rate.Limit(float64(perMin) / 60.0)
	}
	if burst < 1 {
		burst = 1
	}
	return &IPRateLimiter{
		limit:   limit,
		burst:   burst,
		clients: make(map[string]*clientLimiter),
	}
}

// Allow reports whether ip may proceed and how many requests remain in
// its current burst window.
func (l *IPRateLimiter) Allow(ip string) (bool, int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	c, ok := l.clients[ip]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[ip] = c
	}
	c.lastSeen = now

	ok = c.limiter.Allow()
	remaining := int(c.limiter.Tokens())
	if remaining < 0 {
		remaining = 0
	}

	l.pruneLocked(now)
	return ok, remaining
}

// pruneLocked drops entries not seen within staleAfter.
func (l *IPRateLimiter) pruneLocked(now time.Time) {
	for ip, c := range l.clients {
		if now.Sub(c.lastSeen) > staleAfter {
			delete(l.clients, ip)
		}
	}
}
