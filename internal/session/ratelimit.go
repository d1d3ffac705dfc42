package session

import (
	"sync"

	"golang.org/x/time/rate"
)

// loginLimiter rate-limits login attempts per source address using a
// token-bucket limiter, the proactive half of custodia-labs-sercha-cli's
// dual-strategy github.RateLimiter (internal/connectors/github/ratelimit.go)
// — there is no upstream rate-limit header to observe here, so only the
// proactive bucket applies.
type loginLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	perMin   int
}

func newLoginLimiter(perMinute int) *loginLimiter {
	return &loginLimiter{limiters: make(map[string]*rate.Limiter), perMin: perMinute}
}

func (l *loginLimiter) Allow(addr string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[addr]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(float64(l.perMin)/60.0), l.perMin)
		l.limiters[addr] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

// sweepIdle discards every tracked limiter once more than maxEntries
// addresses are held, bounding memory growth.
func (l *loginLimiter) sweepIdle(maxEntries int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.limiters) <= maxEntries {
		return
	}
	l.limiters = make(map[string]*rate.Limiter)
}
