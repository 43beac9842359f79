package match

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// TenantLimiter is a per-tenant token bucket for job submissions.
type TenantLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	rate     rate.Limit
	burst    int
}

// NewTenantLimiter creates a limiter. perSecond <= 0 disables limiting.
func NewTenantLimiter(perSecond float64, burst int) *TenantLimiter {
	if burst <= 0 {
		burst = 5
	}
	return &TenantLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(perSecond),
		burst:    burst,
	}
}

// Reserve takes a token for tenant. It returns 0 when the submission may
// proceed, or how long the tenant must wait before retrying.
func (l *TenantLimiter) Reserve(tenant string, now time.Time) time.Duration {
	if l == nil || l.rate <= 0 {
		return 0
	}
	lim := l.get(tenant)
	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return time.Second
	}
	delay := r.DelayFrom(now)
	if delay > 0 {
		// rejected submissions must not consume future tokens
		r.CancelAt(now)
		return delay
	}
	return 0
}

func (l *TenantLimiter) get(tenant string) *rate.Limiter {
	l.mu.RLock()
	lim, ok := l.limiters[tenant]
	l.mu.RUnlock()
	if ok {
		return lim
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.limiters[tenant]; ok {
		return lim
	}
	lim = rate.NewLimiter(l.rate, l.burst)
	l.limiters[tenant] = lim
	return lim
}
