package auth

import (
	"net"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/timebok/timebok/internal/rest"
	"golang.org/x/time/rate"
)

const staleLimiterAge = 3 * time.Minute

type client struct {
	lim  *rate.Limiter
	seen time.Time
}

// LoginLimiter throttles login attempts per client IP with a token bucket.
type LoginLimiter struct {
	mu        sync.Mutex
	clients   map[string]*client
	r         rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

func NewLoginLimiter(perSecond float64, burst int) *LoginLimiter {
	return &LoginLimiter{
		clients: make(map[string]*client),
		r:       rate.Limit(perSecond),
		burst:   burst,
		now:     time.Now,
	}
}

func (l *LoginLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	// stale entries are swept on use, there is no background goroutine
	if now.Sub(l.lastSweep) > time.Minute {
		for key, c := range l.clients {
			if now.Sub(c.seen) > staleLimiterAge {
				delete(l.clients, key)
			}
		}
		l.lastSweep = now
	}

	c, ok := l.clients[ip]
	if !ok {
		c = &client{lim: rate.NewLimiter(l.r, l.burst)}
		l.clients[ip] = c
	}
	c.seen = now
	return c.lim.AllowN(now, 1)
}

// Limit wraps next and answers 429 once a client exceeds its login budget.
func (l *LoginLimiter) Limit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !l.Allow(ip) {
			log.Warnf("login rate limit exceeded for %s", ip)
			rest.WriteError(w, http.StatusTooManyRequests, "Too many login attempts", "Try again later")
			return
		}
		next(w, r)
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
