package supervisor

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const restartCeilingWindow = 10 * time.Minute

// RestartLimiter enforces the "never exceed a configured restart ceiling
// within a window" rule of spec.md §4.H, one token bucket per scraper.
type RestartLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	burst    int
}

// NewRestartLimiter allows up to burst restarts per restartCeilingWindow,
// refilling continuously at burst/window.
func NewRestartLimiter(burst int) *RestartLimiter {
	if burst <= 0 {
		burst = 5
	}
	return &RestartLimiter{limiters: map[string]*rate.Limiter{}, burst: burst}
}

func (r *RestartLimiter) limiterFor(scraperID string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[scraperID]
	if !ok {
		perSecond := rate.Limit(float64(r.burst) / restartCeilingWindow.Seconds())
		l = rate.NewLimiter(perSecond, r.burst)
		r.limiters[scraperID] = l
	}
	return l
}

// Allow reports whether scraperID may restart now without exceeding its
// ceiling. It consumes a token if so.
func (r *RestartLimiter) Allow(scraperID string) bool {
	return r.limiterFor(scraperID).Allow()
}

// Cooldown returns the backoff delay before the next restart attempt,
// exponential in restartCount, capped at 5 minutes.
func Cooldown(restartCount int) time.Duration {
	d := time.Second
	for i := 0; i < restartCount && d < 5*time.Minute; i++ {
		d *= 2
	}
	if d > 5*time.Minute {
		d = 5 * time.Minute
	}
	return d
}
