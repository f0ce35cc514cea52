package signal

import (
	"sync"

	"github.com/dkeye/LiveCall/internal/domain"
	"golang.org/x/time/rate"
)

// ChannelRateLimiter keeps one token bucket per channel.
type ChannelRateLimiter struct {
	mu      sync.Mutex
	buckets map[domain.ChannelID]*rate.Limiter
	limit   rate.Limit
	burst   int
}

// NewChannelRateLimiter allows perSecond frames with bursts of burst.
// perSecond <= 0 disables limiting.
func NewChannelRateLimiter(perSecond float64, burst int) *ChannelRateLimiter {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &ChannelRateLimiter{
		buckets: make(map[domain.ChannelID]*rate.Limiter),
		limit:   limit,
		burst:   burst,
	}
}

func (rl *ChannelRateLimiter) Allow(ch domain.ChannelID) bool {
	rl.mu.Lock()
	b, ok := rl.buckets[ch]
	if !ok {
		b = rate.NewLimiter(rl.limit, rl.burst)
		rl.buckets[ch] = b
	}
	rl.mu.Unlock()
	return b.Allow()
}

// Forget drops the bucket of a closed channel.
func (rl *ChannelRateLimiter) Forget(ch domain.ChannelID) {
	rl.mu.Lock()
	delete(rl.buckets, ch)
	rl.mu.Unlock()
}
