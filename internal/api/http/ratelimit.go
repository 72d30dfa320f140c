package http

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	apperrors "github.com/spec-kit/crm-service/pkg/util/errorutil"
)

// IPRateLimiter keeps one token bucket per client IP.
type IPRateLimiter struct {
	limiters sync.Map
	rate     rate.Limit
	burst    int
	logger   *zap.Logger
}

// NewIPRateLimiter creates a limiter allowing r requests per second with burst.
func NewIPRateLimiter(r rate.Limit, burst int, logger *zap.Logger) *IPRateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IPRateLimiter{rate: r, burst: burst, logger: logger}
}

// NewAuthRateLimiter is the stricter limiter for login, perMinute attempts per IP.
func NewAuthRateLimiter(perMinute int, logger *zap.Logger) *IPRateLimiter {
	if perMinute <= 0 {
		perMinute = 5
	}
	return NewIPRateLimiter(rate.Limit(float64(perMinute)/60.0), perMinute, logger)
}

func (l *IPRateLimiter) limiter(ip string) *rate.Limiter {
	if existing, ok := l.limiters.Load(ip); ok {
		return existing.(*rate.Limiter)
	}
	actual, _ := l.limiters.LoadOrStore(ip, rate.NewLimiter(l.rate, l.burst))
	return actual.(*rate.Limiter)
}

// Handler rejects requests over the limit with RATE_LIMITED.
func (l *IPRateLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !l.limiter(c.IP()).Allow() {
			l.logger.Warn("rate limit exceeded", zap.String("ip", c.IP()), zap.String("path", c.Path()))
			return apperrors.NewRateLimited()
		}
		return c.Next()
	}
}
