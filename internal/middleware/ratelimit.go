package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// minIdle is the shortest time a client's bucket is kept after its last
// request.
const minIdle = time.Minute

// RateLimit returns per-client rate limiting middleware using token buckets.
// Clients are told apart by gin's ClientIP. Each one gets a bucket that
// fills at rps tokens per second up to burst tokens; an empty bucket means
// 429. A non-positive rps disables limiting.
func RateLimit(rps float64, burst int) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	limiters := newClientLimiters(rps, burst, time.Now)

	return func(c *gin.Context) {
		if !limiters.allow(c.ClientIP()) {
			c.AbortWithStatus(http.StatusTooManyRequests)
			return
		}

		c.Next()
	}
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiters holds one bucket per client and forgets clients that have
// been idle long enough for their bucket to be full again, so a forgotten
// client starts over exactly where it would have been.
type clientLimiters struct {
	mu        sync.Mutex
	clients   map[string]*clientLimiter
	rps       rate.Limit
	burst     int
	idle      time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func newClientLimiters(rps float64, burst int, now func() time.Time) *clientLimiters {
	if burst < 1 {
		burst = 1
	}
	refill := time.Duration(float64(burst) / rps * float64(time.Second))

	return &clientLimiters{
		clients:   make(map[string]*clientLimiter),
		rps:       rate.Limit(rps),
		burst:     burst,
		idle:      max(refill, minIdle),
		lastSweep: now(),
		now:       now,
	}
}

func (l *clientLimiters) allow(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= l.idle {
		l.sweep(now)
	}

	cl, exists := l.clients[client]
	if !exists {
		cl = &clientLimiter{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.clients[client] = cl
	}
	cl.lastSeen = now
	return cl.limiter.AllowN(now, 1)
}

// sweep must be called with mu held.
func (l *clientLimiters) sweep(now time.Time) {
	for client, cl := range l.clients {
		if now.Sub(cl.lastSeen) >= l.idle {
			delete(l.clients, client)
		}
	}
	l.lastSweep = now
}

func (l *clientLimiters) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}
