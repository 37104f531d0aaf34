package middleware

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimit is middleware enforcing a per-keyId token bucket. It must
// run after Auth so UserFromContext is populated.
func RateLimit(limit rate.Limit, burst int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		var limiters sync.Map // keyId -> *cachedLimiter

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u := UserFromContext(r.Context())
			if u == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			l := getOrCreateLimiter(&limiters, u.KeyID, limit, burst, 5*time.Minute)
			if !l.Allow() {
				w.Header().Set("Retry-After", "1")
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type cachedLimiter struct {
	limiter   *rate.Limiter
	expiresAt time.Time
}

func getOrCreateLimiter(limiters *sync.Map, keyID string, limit rate.Limit, burst int, ttl time.Duration) *rate.Limiter {
	if v, ok := limiters.Load(keyID); ok {
		cached := v.(*cachedLimiter)
		if time.Now().Before(cached.expiresAt) {
			return cached.limiter
		}
	}

	fresh := &cachedLimiter{limiter: rate.NewLimiter(limit, burst), expiresAt: time.Now().Add(ttl)}
	actual, _ := limiters.LoadOrStore(keyID, fresh)
	cached := actual.(*cachedLimiter)
	if time.Now().Before(cached.expiresAt) {
		return cached.limiter
	}
	// lost the race against another expired-refresh; overwrite with ours.
	limiters.Store(keyID, fresh)
	return fresh.limiter
}
