package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/okian/festrank/internal/adapters/auth"
	service "github.com/okian/festrank/internal/app"
	"github.com/okian/festrank/pkg/metrics"
)

// HTTP status code constants.
const (
	statusBadRequest      = 400
	statusNotFound        = 404
	statusTooManyRequests = 429
	statusInternalError   = 500
)

// MetricsMiddleware records request counts and latency per route pattern.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		endpoint := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				endpoint = p
			}
		}
		durationMs := float64(time.Since(start).Microseconds()) / 1000
		statusCodeStr := strconv.Itoa(wrapped.statusCode)

		metrics.RecordHTTPRequest(endpoint, r.Method, statusCodeStr)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, statusCodeStr, durationMs)
		if wrapped.statusCode >= statusBadRequest {
			metrics.RecordErrorByComponent("http", getErrorType(wrapped.statusCode))
		}
	})
}

// getErrorType returns a standardized error type based on HTTP status code.
func getErrorType(statusCode int) string {
	switch {
	case statusCode >= statusInternalError:
		return "server_error"
	case statusCode == statusTooManyRequests:
		return "rate_limit"
	case statusCode == statusNotFound:
		return "not_found"
	case statusCode >= statusBadRequest:
		return "client_error"
	default:
		return "unknown"
	}
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func metricsHandler() http.Handler {
	return promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{})
}

// ipLimiter keeps one token bucket per client address.
type ipLimiter struct {
	rps   rate.Limit
	burst int

	mu      sync.Mutex
	clients map[string]*rate.Limiter
}

const maxTrackedClients = 10_000

func newIPLimiter(rps float64, burst int) *ipLimiter {
	return &ipLimiter{rps: rate.Limit(rps), burst: burst, clients: map[string]*rate.Limiter{}}
}

func (l *ipLimiter) allow(addr string) bool {
	if l.rps <= 0 {
		return true
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	l.mu.Lock()
	lim, ok := l.clients[host]
	if !ok {
		if len(l.clients) >= maxTrackedClients {
			l.clients = map[string]*rate.Limiter{}
		}
		lim = rate.NewLimiter(l.rps, l.burst)
		l.clients[host] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

// Middleware rejects clients above their rate with 429.
func (l *ipLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(r.RemoteAddr) {
			metrics.RecordRateLimited()
			writeError(w, http.StatusTooManyRequests, "rate_limited", ErrRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type claimsKey struct{}

// ClaimsFrom returns the caller attached by Authenticate.
func ClaimsFrom(ctx context.Context) (auth.Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(auth.Claims)
	return c, ok
}

// Authenticate validates a bearer token when one is present. Requests
// without a token continue anonymously.
func (s *Server) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", ErrUnauthorized)
			return
		}
		claims, err := s.tokens.Validate(strings.TrimSpace(token))
		if err != nil {
			status, code := statusFor(err)
			writeError(w, status, code, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
	})
}

// RequireCaller rejects anonymous requests.
func RequireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := ClaimsFrom(r.Context()); !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireManager only lets rank managers through.
func RequireManager(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, ok := ClaimsFrom(r.Context())
		switch {
		case !ok:
			writeError(w, http.StatusUnauthorized, "unauthorized", ErrUnauthorized)
		case !c.IsManager():
			writeError(w, http.StatusForbidden, "forbidden", service.ErrForbidden)
		default:
			next.ServeHTTP(w, r)
		}
	})
}
