package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/PxPatel/p2p-swap/internal/api/logger"
	"github.com/PxPatel/p2p-swap/internal/api/models"
)

// RateLimiter applies a token bucket per client IP. Buckets for the least
// recently seen clients are evicted once maxClients is reached.
type RateLimiter struct {
	limit   rate.Limit
	burst   int
	mu      sync.Mutex
	clients *lru.Cache[string, *rate.Limiter]

	// TrustProxy keys clients by the forwarding headers a reverse proxy sets.
	// Leave it false when clients reach the server directly, or they can pick
	// their own bucket.
	TrustProxy bool
}

// NewRateLimiter allows requestsPerSecond sustained and burst at once per client
func NewRateLimiter(requestsPerSecond float64, burst, maxClients int) (*RateLimiter, error) {
	if maxClients <= 0 {
		maxClients = 10000
	}
	clients, err := lru.New[string, *rate.Limiter](maxClients)
	if err != nil {
		return nil, err
	}
	return &RateLimiter{
		limit:   rate.Limit(requestsPerSecond),
		burst:   burst,
		clients: clients,
	}, nil
}

func (rl *RateLimiter) limiterFor(client string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if l, ok := rl.clients.Get(client); ok {
		return l
	}
	l := rate.NewLimiter(rl.limit, rl.burst)
	rl.clients.Add(client, l)
	return l
}

// Allow reports whether client may make a request now
func (rl *RateLimiter) Allow(client string) bool {
	return rl.limiterFor(client).Allow()
}

// Middleware rejects requests over the limit with 429
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		client := ClientIP(r, rl.TrustProxy)
		if !rl.Allow(client) {
			logger.Warn("Rate limit exceeded", map[string]interface{}{
				"request_id": RequestIDFromContext(r.Context()),
				"client":     client,
				"path":       r.URL.Path,
			})
			w.Header().Set("Retry-After", "1")
			models.ErrTooManyRequests().Write(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientIP returns the remote address host. Behind a trusted proxy the first
// X-Forwarded-For hop, or X-Real-IP, wins instead.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
