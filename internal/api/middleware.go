package api

import (
    "bufio"
    "errors"
    "log"
    "net"
    "net/http"
    "strconv"
    "strings"
    "sync"
    "time"

    "golang.org/x/time/rate"

    "fieldroute/internal/metrics"
)

// statusRecorder keeps the status code for logging and metrics. It forwards
// Flush for SSE and Hijack for websocket upgrades.
type statusRecorder struct {
    http.ResponseWriter
    status int
}

func (r *statusRecorder) WriteHeader(code int) { r.status = code; r.ResponseWriter.WriteHeader(code) }

func (r *statusRecorder) Flush() {
    if f, ok := r.ResponseWriter.(http.Flusher); ok { f.Flush() }
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
    if h, ok := r.ResponseWriter.(http.Hijacker); ok { return h.Hijack() }
    return nil, nil, errors.New("hijack not supported")
}

// Middleware wraps the mux with recovery, CORS, per-tenant rate limiting,
// request metrics and request logging.
func (s *Server) Middleware(next http.Handler) http.Handler {
    origins := map[string]bool{}
    for _, o := range s.Config.Server.AllowOrigins { origins[o] = true }
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        start := time.Now()
        rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
        defer func() {
            if v := recover(); v != nil {
                log.Printf("[API] panic %s %s: %v", r.Method, r.URL.Path, v)
                writeProblem(rec, http.StatusInternalServerError, "Internal error", "", r.URL.Path)
            }
            dur := time.Since(start)
            path := routeLabel(r.URL.Path)
            code := strconv.Itoa(rec.status)
            metrics.HTTPRequests.WithLabelValues(r.Method, path, code).Inc()
            metrics.HTTPDuration.WithLabelValues(r.Method, path, code).Observe(dur.Seconds())
            log.Printf("%s %s %s %d %v", r.RemoteAddr, r.Method, r.URL.Path, rec.status, dur)
        }()

        if o := r.Header.Get("Origin"); o != "" && (origins["*"] || origins[o]) {
            rec.Header().Set("Access-Control-Allow-Origin", o)
            rec.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Tenant-Id, X-Role, X-Team-Id")
            rec.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
            if r.Method == http.MethodOptions {
                rec.WriteHeader(http.StatusNoContent)
                return
            }
        }
        if strings.HasPrefix(r.URL.Path, "/v1/") {
            if p := s.getPrincipal(r); p.Authenticated && !s.limits.Allow(p.Tenant) {
                rec.Header().Set("Retry-After", "1")
                writeProblem(rec, http.StatusTooManyRequests, "Too Many Requests", "tenant rate limit exceeded", r.URL.Path)
                return
            }
        }
        next.ServeHTTP(rec, r)
    })
}

// tenantLimiter hands out one token bucket per tenant. A non-positive rate disables limiting.
type tenantLimiter struct {
    mu    sync.Mutex
    rps   rate.Limit
    burst int
    m     map[string]*rate.Limiter
}

func newTenantLimiter(rps float64, burst int) *tenantLimiter {
    if burst <= 0 { burst = 1 }
    return &tenantLimiter{rps: rate.Limit(rps), burst: burst, m: map[string]*rate.Limiter{}}
}

func (l *tenantLimiter) Allow(tenant string) bool {
    if l == nil || l.rps <= 0 { return true }
    l.mu.Lock()
    lim, ok := l.m[tenant]
    if !ok {
        lim = rate.NewLimiter(l.rps, l.burst)
        l.m[tenant] = lim
    }
    l.mu.Unlock()
    return lim.Allow()
}

var staticSegments = map[string]bool{
    "v1": true, "admin": true, "optimize": true, "route": true, "assignment": true,
    "runs": true, "teams": true, "jobs": true, "location": true, "events": true, "stream": true,
    "status": true, "nearby": true, "optimizer": true, "config": true, "plan-metrics": true,
    "webhook-deliveries": true, "retry": true, "subscriptions": true, "ws": true,
}

// routeLabel replaces id segments so metrics keep a bounded label set.
func routeLabel(path string) string {
    parts := strings.Split(path, "/")
    for i, p := range parts {
        if p != "" && !staticSegments[p] && strings.HasPrefix(path, "/v1/") {
            parts[i] = ":id"
        }
    }
    return strings.Join(parts, "/")
}
