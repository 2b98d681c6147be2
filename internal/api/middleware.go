package api

import (
	"context"
	"crypto/subtle"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/flitsinc/agentboard/internal/idgen"
	"github.com/flitsinc/agentboard/internal/state"
	"github.com/flitsinc/agentboard/internal/tracing"
)

type ctxKey int

const requestIDKey ctxKey = iota

// RequestID returns the id assigned to the request carried by ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = idgen.New()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func recordStatus(w http.ResponseWriter) *statusRecorder {
	if rec, ok := w.(*statusRecorder); ok {
		return rec
	}
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func traceRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracing.StartSpan(r.Context(), r.Method+" "+r.URL.Path)
		defer span.End()

		rec := recordStatus(w)
		next.ServeHTTP(rec, r.WithContext(ctx))

		span.SetAttributes(
			tracing.StringAttr("http.method", r.Method),
			tracing.StringAttr("http.path", r.URL.Path),
			tracing.StringAttr("request.id", RequestID(r.Context())),
			tracing.IntAttr("http.status_code", rec.status),
		)
		if rec.status >= http.StatusInternalServerError {
			tracing.RecordError(span, errStatus(rec.status))
		} else {
			tracing.SetOK(span)
		}
	})
}

type errStatus int

func (e errStatus) Error() string { return http.StatusText(int(e)) }

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := recordStatus(w)
		next.ServeHTTP(rec, r)
		s.logger().InfoContext(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
			"request_id", RequestID(r.Context()),
		)
	})
}

// guardWrites applies rate limiting and bearer auth to every method that
// can change state. Reads pass straight through.
func (s *Server) guardWrites(ctx context.Context, next http.Handler) http.Handler {
	limiter := newClientLimiter(ctx, s.RateLimit.RequestsPerMin, s.RateLimit.Burst)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		if limiter != nil && !limiter.allow(clientIP(r)) {
			writeJSON(w, http.StatusTooManyRequests, map[string]any{"error": "rate limit exceeded"})
			return
		}
		if s.APIKey == "" {
			writeError(w, http.StatusInternalServerError, state.NotConfigured("API key"))
			return
		}
		if !validBearer(r.Header.Get("Authorization"), s.APIKey) {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func validBearer(header, key string) bool {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(key)) == 1
}

type clientLimiter struct {
	mu       sync.Mutex
	clients  map[string]*limitedClient
	perMin   int
	burst    int
	idleTime time.Duration
}

type limitedClient struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newClientLimiter returns nil when perMin is zero, disabling limiting.
func newClientLimiter(ctx context.Context, perMin, burst int) *clientLimiter {
	if perMin <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	cl := &clientLimiter{
		clients:  make(map[string]*limitedClient),
		perMin:   perMin,
		burst:    burst,
		idleTime: 3 * time.Minute,
	}
	go cl.sweep(ctx)
	return cl
}

func (cl *clientLimiter) allow(ip string) bool {
	cl.mu.Lock()
	c, ok := cl.clients[ip]
	if !ok {
		c = &limitedClient{limiter: rate.NewLimiter(rate.Limit(cl.perMin)/60.0, cl.burst)}
		cl.clients[ip] = c
	}
	c.lastSeen = time.Now()
	cl.mu.Unlock()
	return c.limiter.Allow()
}

func (cl *clientLimiter) sweep(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cl.mu.Lock()
			for ip, c := range cl.clients {
				if time.Since(c.lastSeen) > cl.idleTime {
					delete(cl.clients, ip)
				}
			}
			cl.mu.Unlock()
		}
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
