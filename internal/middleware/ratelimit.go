package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultGeneralRPM = 100
	defaultAuthRPM    = 10
	limiterIdleTTL    = 10 * time.Minute
	limiterGCAt       = 1000
)

type clientLimiter struct {
	general  *rate.Limiter
	auth     *rate.Limiter
	lastSeen time.Time
}

// RateLimitMiddleware throttles state-changing requests per client. Endpoints
// that forward credentials to the clinic API get the tighter auth budget; reads
// are never limited so the UI can poll the session freely.
type RateLimitMiddleware struct {
	generalRPM int
	authRPM    int
	mu         sync.Mutex
	clients    map[string]*clientLimiter
}

func NewRateLimitMiddleware(generalRPM int, authRPM int) *RateLimitMiddleware {
	if generalRPM <= 0 {
		generalRPM = defaultGeneralRPM
	}
	if authRPM <= 0 {
		authRPM = defaultAuthRPM
	}

	return &RateLimitMiddleware{
		generalRPM: generalRPM,
		authRPM:    authRPM,
		clients:    map[string]*clientLimiter{},
	}
}

func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		limiter := m.getLimiter(extractClientIP(r))

		target, rpm := limiter.general, m.generalRPM
		if isCredentialPath(r.URL.Path) {
			target, rpm = limiter.auth, m.authRPM
		}

		if !target.Allow() {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(rpm)))
			writeFailure(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// isCredentialPath matches the endpoints that forward credentials upstream.
func isCredentialPath(path string) bool {
	path = strings.TrimSuffix(strings.ToLower(path), "/")
	return path == "/api/session/login" || path == "/api/session/password"
}

// retryAfterSeconds is the refill interval of one token.
func retryAfterSeconds(rpm int) int {
	return int(math.Ceil(time.Minute.Seconds() / float64(rpm)))
}

func newLimiter(rpm int) *rate.Limiter {
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), rpm)
}

func (m *RateLimitMiddleware) getLimiter(clientIP string) *clientLimiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	limiter, exists := m.clients[clientIP]
	if !exists {
		limiter = &clientLimiter{general: newLimiter(m.generalRPM), auth: newLimiter(m.authRPM)}
		m.clients[clientIP] = limiter
	}
	limiter.lastSeen = now

	if len(m.clients) >= limiterGCAt {
		cutoff := now.Add(-limiterIdleTTL)
		for ip, l := range m.clients {
			if l.lastSeen.Before(cutoff) {
				delete(m.clients, ip)
			}
		}
	}

	return limiter
}

// extractClientIP keys on the connection address. Forwarded headers are client
// controlled and the console is not deployed behind a proxy.
func extractClientIP(r *http.Request) string {
	remote := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(remote); err == nil && host != "" {
		return host
	}
	if remote == "" {
		return "unknown"
	}
	return remote
}
