package middleware

import (
	"HandwritingRecognizer/pkg/response"
	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"
	"net/http"
	"sync"
	"time"
)

var (
	ErrTooManyRequests = response.NewError(http.StatusTooManyRequests, "too many requests")
)

const (
	limiterIdleTTL   = 10 * time.Minute
	limiterPruneSize = 4096
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter keeps one token bucket per client IP. Buckets idle for longer than
// limiterIdleTTL are dropped once the table grows past limiterPruneSize.
type rateLimiter struct {
	visitors  map[string]*visitor
	rate      rate.Limit
	burstSize int
	mutex     sync.Mutex
	now       func() time.Time
}

func newRateLimiter(reqRate rate.Limit, burstSize int) *rateLimiter {
	return &rateLimiter{
		visitors:  make(map[string]*visitor),
		rate:      reqRate,
		burstSize: burstSize,
		now:       time.Now,
	}
}

func (r *rateLimiter) GetLimiterFrom(ip string) *rate.Limiter {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	now := r.now()
	if v, exist := r.visitors[ip]; exist {
		v.lastSeen = now
		return v.limiter
	}

	if len(r.visitors) >= limiterPruneSize {
		r.pruneLocked(now)
	}

	v := &visitor{limiter: rate.NewLimiter(r.rate, r.burstSize), lastSeen: now}
	r.visitors[ip] = v
	return v.limiter
}

func (r *rateLimiter) pruneLocked(now time.Time) {
	for ip, v := range r.visitors {
		if now.Sub(v.lastSeen) > limiterIdleTTL {
			delete(r.visitors, ip)
		}
	}
}

func (m *middleware) NewRateLimiter(ctx *fiber.Ctx) error {
	clientIP := ctx.IP()
	limiter := m.rateLimitter.GetLimiterFrom(clientIP)

	if !limiter.Allow() {
		m.log.Warnf("too many requests for IP %s", clientIP)
		return ctx.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error": ErrTooManyRequests.Error(),
		})
	}

	return ctx.Next()
}
