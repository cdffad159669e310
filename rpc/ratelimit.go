package rpc

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/propsproject/props-protocol-sub000/observability"
)

const visitorIdleTTL = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies a token bucket per caller, falling back to the client
// address for anonymous requests.
type RateLimiter struct {
	limit   rate.Limit
	burst   int
	metrics *observability.StakingMetrics

	mu        sync.Mutex
	visitors  map[string]*visitor
	lastSweep time.Time
	clockNow  func() time.Time
}

func NewRateLimiter(perSecond float64, burst int, metrics *observability.StakingMetrics) *RateLimiter {
	if perSecond <= 0 {
		perSecond = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		metrics:  metrics,
		visitors: make(map[string]*visitor),
		clockNow: time.Now,
	}
}

func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientID(r)
		if caller, ok := callerFrom(r); ok {
			key = caller.Hex()
		}
		if !l.Allow(key) {
			l.metrics.RecordThrottle("rate_limit")
			writeFailure(w, http.StatusTooManyRequests, "RateLimited", "request rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Allow consumes one token from key's bucket.
func (l *RateLimiter) Allow(key string) bool {
	now := l.clockNow()
	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.lastSweep) > visitorIdleTTL {
		for id, v := range l.visitors {
			if now.Sub(v.lastSeen) > visitorIdleTTL {
				delete(l.visitors, id)
			}
		}
		l.lastSweep = now
	}
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

func clientID(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		candidate := strings.TrimSpace(strings.Split(forwarded, ",")[0])
		if ip := net.ParseIP(candidate); ip != nil {
			return ip.String()
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
