package server

import (
	"strings"

	"golang.org/x/time/rate"
)

// ipLimiter throttles commands per client IP. Connections from the same
// address share one token bucket.
type ipLimiter struct {
	buckets map[string]*rate.Limiter
	limit   rate.Limit
	burst   int
}

func newIPLimiter(commandsPerSecond int) *ipLimiter {
	return &ipLimiter{
		buckets: make(map[string]*rate.Limiter),
		limit:   rate.Limit(commandsPerSecond),
		burst:   commandsPerSecond,
	}
}

// allow reports whether a command from remote (an "ip:port" address)
// may proceed. Called only from the event loop goroutine.
func (rl *ipLimiter) allow(remote string) bool {
	ip := remote
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}

	b, ok := rl.buckets[ip]
	if !ok {
		b = rate.NewLimiter(rl.limit, rl.burst)
		rl.buckets[ip] = b
	}
	return b.Allow()
}
