package util

import (
	"sync"
	"time"
)

// LimiterRegistry keeps one Limiter per upstream host. Limiters idle for
// longer than ttl are dropped during Get, at most once per ttl.
type LimiterRegistry struct {
	rate  float64
	burst int
	ttl   time.Duration
	now   func() time.Time

	mu        sync.Mutex
	hosts     map[string]*hostLimiter
	lastSweep time.Time
}

type hostLimiter struct {
	*Limiter
	seen time.Time
}

func NewLimiterRegistry(r float64, burst int, ttl time.Duration) *LimiterRegistry {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &LimiterRegistry{
		rate:  r,
		burst: burst,
		ttl:   ttl,
		now:   time.Now,
		hosts: make(map[string]*hostLimiter),
	}
}

func (r *LimiterRegistry) Get(host string) *Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if now.Sub(r.lastSweep) >= r.ttl {
		for h, hl := range r.hosts {
			if now.Sub(hl.seen) > r.ttl {
				delete(r.hosts, h)
			}
		}
		r.lastSweep = now
	}

	hl, ok := r.hosts[host]
	if !ok {
		hl = &hostLimiter{Limiter: NewLimiter(r.rate, r.burst)}
		r.hosts[host] = hl
	}
	hl.seen = now
	return hl.Limiter
}

// Len reports the number of tracked hosts.
func (r *LimiterRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.hosts)
}
