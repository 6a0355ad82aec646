package api

import (
    "bufio"
    "errors"
    "log"
    "net"
    "net/http"
    "runtime/debug"
    "strconv"
    "time"

    "github.com/google/uuid"
    "github.com/gorilla/mux"

    "routecap/internal/metrics"
    "routecap/internal/obs"
)

// statusRecorder captures the response status while keeping the optional
// interfaces SSE and WebSocket handlers need.
type statusRecorder struct {
    http.ResponseWriter
    status int
}

func (r *statusRecorder) WriteHeader(code int) {
    if r.status == 0 { r.status = code }
    r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
    if r.status == 0 { r.status = http.StatusOK }
    return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Flush() {
    if f, ok := r.ResponseWriter.(http.Flusher); ok { f.Flush() }
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
    h, ok := r.ResponseWriter.(http.Hijacker)
    if !ok { return nil, nil, errors.New("hijack not supported") }
    if r.status == 0 { r.status = http.StatusSwitchingProtocols }
    return h.Hijack()
}

func requestIDMiddleware(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        id := r.Header.Get("X-Request-Id")
        if id == "" { id = uuid.NewString() }
        w.Header().Set("X-Request-Id", id)
        next.ServeHTTP(w, r.WithContext(obs.WithRequestID(r.Context(), id)))
    })
}

// logMiddleware writes the access log line and records request metrics under
// the matched route template.
func logMiddleware(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        start := time.Now()
        rec := &statusRecorder{ResponseWriter: w}
        next.ServeHTTP(rec, r)
        dur := time.Since(start)
        if rec.status == 0 { rec.status = http.StatusOK }
        route := "unmatched"
        if cr := mux.CurrentRoute(r); cr != nil {
            if tpl, err := cr.GetPathTemplate(); err == nil { route = tpl }
        }
        code := strconv.Itoa(rec.status)
        metrics.HTTPRequests.WithLabelValues(r.Method, route, code).Inc()
        metrics.HTTPDuration.WithLabelValues(r.Method, route, code).Observe(dur.Seconds())
        log.Printf("req_id=%s %s %s %s status=%d dur=%v", obs.RequestID(r.Context()), r.RemoteAddr, r.Method, r.URL.Path, rec.status, dur)
    })
}

func recoverMiddleware(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        defer func() {
            if v := recover(); v != nil {
                if v == http.ErrAbortHandler { panic(v) }
                log.Printf("req_id=%s panic=%v\n%s", obs.RequestID(r.Context()), v, debug.Stack())
                writeProblem(w, http.StatusInternalServerError, "Internal error", "", r.URL.Path)
            }
        }()
        next.ServeHTTP(w, r)
    })
}
