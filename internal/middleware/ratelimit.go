package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"github.com/nftbay/marketplace/pkg/logger"
)

// RateLimiter throttles requests per caller. Authenticated requests are keyed
// by wallet address, anonymous ones by client IP.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
	log      *logger.Logger
}

// NewRateLimiter creates a limiter allowing requestsPerSecond with the given
// burst per caller.
func NewRateLimiter(requestsPerSecond float64, burst int, log *logger.Logger) *RateLimiter {
	if log == nil {
		log = logger.NewDefault("ratelimit")
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
		log:      log,
	}
}

func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, ok := rl.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(rl.rate, rl.burst)
		rl.limiters[key] = limiter
	}
	return limiter
}

// Handler returns the rate limiting middleware handler.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := ""
		if wallet, ok := Caller(r.Context()); ok {
			key = string(wallet)
		}
		if key == "" {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				host = r.RemoteAddr
			}
			key = host
		}

		if !rl.limiterFor(key).Allow() {
			rl.log.WithField("caller", key).Warn("rate limit exceeded")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{
				"code":  "rate_limited",
				"error": "too many requests",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}
