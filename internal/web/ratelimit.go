package web

import (
	"net"
	"net/http"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

const limiterCapacity = 4096

// ipLimiter keeps one token bucket per client IP for the most recently seen
// clients.
type ipLimiter struct {
	rps   rate.Limit
	burst int

	mu  sync.Mutex
	ips *lru.Cache[string, *rate.Limiter]
}

func newIPLimiter(rps float64, burst int) *ipLimiter {
	cache, _ := lru.New[string, *rate.Limiter](limiterCapacity)
	return &ipLimiter{rps: rate.Limit(rps), burst: burst, ips: cache}
}

func (l *ipLimiter) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.ips.Get(ip); ok {
		return lim
	}
	lim := rate.NewLimiter(l.rps, l.burst)
	l.ips.Add(ip, lim)
	return lim
}

func (l *ipLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		if !l.get(ip).Allow() {
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "too many attempts, try again shortly"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
