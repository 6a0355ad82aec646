package api

import (
    "net/http"

    "github.com/gorilla/mux"
    "github.com/prometheus/client_golang/prometheus/promhttp"
    "github.com/rs/cors"

    "routecap/internal/metrics"
)

// Router mounts every endpoint. Tenant routes live under /tenants/{id}.
func (s *Server) Router() http.Handler {
    metrics.RegisterDefault()

    r := mux.NewRouter()
    r.Use(recoverMiddleware, requestIDMiddleware, logMiddleware)

    r.HandleFunc("/healthz", s.HealthHandler).Methods(http.MethodGet)
    r.HandleFunc("/readyz", s.ReadyHandler).Methods(http.MethodGet)
    r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
    r.HandleFunc("/debug/info", s.DebugJSON).Methods(http.MethodGet)
    r.HandleFunc("/openapi.yaml", s.OpenAPIHandler).Methods(http.MethodGet)
    r.HandleFunc("/openapi.json", s.OpenAPIJSONHandler).Methods(http.MethodGet)
    r.HandleFunc("/docs", s.DocsHandler).Methods(http.MethodGet)

    t := r.PathPrefix("/tenants/{id}").Subrouter()
    t.Use(s.tenantGuard)
    t.HandleFunc("/routes/optimize", s.OptimizeHandler).Methods(http.MethodPost)
    t.HandleFunc("/routes/optimization-scores", s.ScoresHandler).Methods(http.MethodGet)
    t.HandleFunc("/routes/batch-optimize", s.BatchOptimizeHandler).Methods(http.MethodPost)
    t.HandleFunc("/routes/batch-optimize/events", s.BatchEventsHandler).Methods(http.MethodGet)
    t.HandleFunc("/routes/batch-optimize/ws", s.BatchWSHandler).Methods(http.MethodGet)
    t.HandleFunc("/routes/capacity-optimize", s.CapacityOptimizeHandler).Methods(http.MethodPost)
    t.HandleFunc("/routes/analytics", s.AnalyticsHandler).Methods(http.MethodGet)
    t.HandleFunc("/trips/combination-opportunities", s.CombinationOpportunitiesHandler).Methods(http.MethodGet)
    t.HandleFunc("/trips/capacity-alerts", s.CapacityAlertsHandler).Methods(http.MethodGet)

    r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
        writeProblem(w, http.StatusNotFound, "Not Found", "", req.URL.Path)
    })
    r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
        writeProblem(w, http.StatusMethodNotAllowed, "Method Not Allowed", req.Method, req.URL.Path)
    })

    origins := s.Config.AllowOrigins
    if len(origins) == 0 { origins = []string{"*"} }
    return cors.New(cors.Options{
        AllowedOrigins: origins,
        AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
        AllowedHeaders: []string{"Authorization", "Content-Type", "X-Tenant-Id", "X-Role", "X-Request-Id"},
        ExposedHeaders: []string{"X-Request-Id"},
    }).Handler(r)
}
