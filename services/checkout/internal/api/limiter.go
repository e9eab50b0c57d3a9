package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/accordsai/checkoutlane/pkg/httpx"
)

const limiterIdle = 30 * time.Minute

type clientLimiter struct {
	limiter *rate.Limiter
	last    time.Time
}

// ipLimiter is a token bucket per client IP. Idle buckets are swept on
// access.
type ipLimiter struct {
	mu        sync.Mutex
	rps       rate.Limit
	burst     int
	byIP      map[string]*clientLimiter
	lastSweep time.Time
	now       func() time.Time
}

func newIPLimiter(rps float64, burst int) *ipLimiter {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &ipLimiter{
		rps:   rate.Limit(rps),
		burst: burst,
		byIP:  map[string]*clientLimiter{},
		now:   time.Now,
	}
}

func (l *ipLimiter) Allow(ip string) bool {
	if l == nil {
		return true
	}
	if ip == "" {
		ip = "unknown"
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.lastSweep) > limiterIdle {
		for k, c := range l.byIP {
			if now.Sub(c.last) > limiterIdle {
				delete(l.byIP, k)
			}
		}
		l.lastSweep = now
	}
	c, ok := l.byIP[ip]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.byIP[ip] = c
	}
	c.last = now
	return c.limiter.AllowN(now, 1)
}

func (l *ipLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(clientIPFromRequest(r)) {
			httpx.WriteError(w, http.StatusTooManyRequests, "invalid_request", "rate_limit_exceeded", "Too many requests", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIPFromRequest keys on RemoteAddr. Forwarding headers only count when
// the router trusts its proxy and installs middleware.RealIP.
func clientIPFromRequest(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
		return host
	}
	if addr == "" {
		return "unknown"
	}
	return addr
}
