package identity

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// pruneThreshold is the map size above which idle limiters are dropped.
const pruneThreshold = 1024

// resendLimiter allows one magic link per email per interval.
type resendLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	limiters map[string]*emailLimiter
}

type emailLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newResendLimiter(interval time.Duration) *resendLimiter {
	return &resendLimiter{
		interval: interval,
		limiters: make(map[string]*emailLimiter),
	}
}

// allow reports whether email may receive a link at now. When it may not,
// the returned duration is the remaining wait.
func (l *resendLimiter) allow(email string, now time.Time) (bool, time.Duration) {
	if l.interval <= 0 {
		return true, 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.limiters) > pruneThreshold {
		l.pruneLocked(now)
	}

	el, ok := l.limiters[email]
	if !ok {
		el = &emailLimiter{limiter: rate.NewLimiter(rate.Every(l.interval), 1)}
		l.limiters[email] = el
	}
	el.lastSeen = now

	r := el.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

func (l *resendLimiter) pruneLocked(now time.Time) {
	for email, el := range l.limiters {
		if now.Sub(el.lastSeen) > l.interval {
			delete(l.limiters, email)
		}
	}
}

func (l *resendLimiter) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}
