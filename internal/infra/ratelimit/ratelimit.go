package ratelimit

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

type visitor struct {
	limiter *rate.Limiter
	last    time.Time
}

// PerIP hands out one token bucket per client address. The LRU bounds
// memory; Run evicts addresses idle for longer than ttl.
type PerIP struct {
	mu       sync.Mutex
	visitors *lru.Cache[string, *visitor]
	limit    rate.Limit
	burst    int
	ttl      time.Duration
	now      func() time.Time
}

func NewPerIP(rps, burst, cacheSize int, ttl time.Duration) *PerIP {
	if cacheSize <= 0 {
		cacheSize = 10_000
	}
	visitors, _ := lru.New[string, *visitor](cacheSize)
	return &PerIP{
		visitors: visitors,
		limit:    rate.Limit(rps),
		burst:    burst,
		ttl:      ttl,
		now:      time.Now,
	}
}

func (p *PerIP) Allow(ip string) bool {
	p.mu.Lock()
	v, ok := p.visitors.Get(ip)
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(p.limit, p.burst)}
		p.visitors.Add(ip, v)
	}
	v.last = p.now()
	p.mu.Unlock()

	return v.limiter.Allow()
}

// Run evicts idle visitors until ctx is done.
func (p *PerIP) Run(ctx context.Context) {
	ticker := time.NewTicker(p.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.evictIdle()
		}
	}
}

func (p *PerIP) evictIdle() {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for _, key := range p.visitors.Keys() {
		if v, ok := p.visitors.Peek(key); ok && now.Sub(v.last) > p.ttl {
			p.visitors.Remove(key)
		}
	}
}

func (p *PerIP) Len() int {
	return p.visitors.Len()
}
