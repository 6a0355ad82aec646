package api

import (
    "context"
    "net/http"
    "time"

    "routecap/internal/model"
    "routecap/internal/opt"
    "routecap/internal/webhooks"
)

// OptimizeHandler handles POST /tenants/{id}/routes/optimize
func (s *Server) OptimizeHandler(w http.ResponseWriter, r *http.Request) {
    var req optimizeRequest
    if err := decodeJSON(r, &req); err != nil { writeError(w, r, err); return }
    ids, err := req.tripIDs()
    if err != nil { writeError(w, r, err); return }
    trips, err := s.Store.GetTrips(r.Context(), tenantID(r), ids)
    if err != nil { writeError(w, r, err); return }
    if err := req.checkTrips(trips); err != nil { writeError(w, r, err); return }
    res, err := s.Optimizer.Optimize(r.Context(), req.DriverID, req.Date, trips)
    if err != nil { writeError(w, r, err); return }
    writeJSON(w, http.StatusOK, res)
}

// ScoresHandler handles GET /tenants/{id}/routes/optimization-scores
func (s *Server) ScoresHandler(w http.ResponseWriter, r *http.Request) {
    start, end, from, to, err := s.dateRangeQuery(r)
    if err != nil { writeError(w, r, err); return }
    trips, err := s.Store.ListTrips(r.Context(), tenantID(r), from, to)
    if err != nil { writeError(w, r, err); return }
    scores := s.Scorer.ScoreRange(r.Context(), trips)
    if scores == nil { scores = []model.OptimizationScore{} }
    writeJSON(w, http.StatusOK, map[string]any{"scores": scores, "dateRange": opt.DateRange{Start: start, End: end}})
}

type batchResponse struct {
    Success      bool              `json:"success"`
    BatchID      string            `json:"batchId"`
    TripCount    int               `json:"tripCount"`
    DriverCount  int               `json:"driverCount"`
    GroupCount   int               `json:"groupCount"`
    FailedGroups int               `json:"failedGroups"`
    DateRange    opt.DateRange     `json:"dateRange"`
    Groups       []opt.GroupResult `json:"groups"`
    TotalSavings model.Savings     `json:"totalSavings"`
}

// BatchOptimizeHandler handles POST /tenants/{id}/routes/batch-optimize
func (s *Server) BatchOptimizeHandler(w http.ResponseWriter, r *http.Request) {
    var req batchRequest
    if err := decodeJSON(r, &req); err != nil { writeError(w, r, err); return }
    sum, err := s.runBatch(r.Context(), tenantID(r), req.StartDate, req.EndDate)
    if err != nil { writeError(w, r, err); return }
    if sum.Groups == nil { sum.Groups = []opt.GroupResult{} }
    writeJSON(w, http.StatusOK, batchResponse{
        Success:      true,
        BatchID:      sum.BatchID,
        TripCount:    sum.TripCount,
        DriverCount:  sum.DriverCount,
        GroupCount:   sum.GroupCount,
        FailedGroups: sum.FailedGroups,
        DateRange:    sum.DateRange,
        Groups:       sum.Groups,
        TotalSavings: sum.TotalSavings,
    })
}

type groupEvent struct {
    BatchID string `json:"batchId"`
    opt.GroupResult
}

type batchCompleted struct {
    BatchID      string        `json:"batchId"`
    TripCount    int           `json:"tripCount"`
    DriverCount  int           `json:"driverCount"`
    GroupCount   int           `json:"groupCount"`
    FailedGroups int           `json:"failedGroups"`
    DateRange    opt.DateRange `json:"dateRange"`
    TotalSavings model.Savings `json:"totalSavings"`
}

// runBatch runs the batch optimizer, streaming per-group progress to the
// tenant's subscribers and announcing completion over the broker and webhooks.
func (s *Server) runBatch(ctx context.Context, tenant, start, end string) (opt.BatchSummary, error) {
    b := *s.Batch
    b.OnGroup = func(batchID string, g opt.GroupResult) {
        s.Broker.Publish(tenant, Event{Type: EventBatchGroup, Data: groupEvent{BatchID: batchID, GroupResult: g}})
    }
    sum, err := b.Run(ctx, tenant, start, end)
    if err != nil { return sum, err }
    s.Runs.Record(sum)
    done := batchCompleted{
        BatchID:      sum.BatchID,
        TripCount:    sum.TripCount,
        DriverCount:  sum.DriverCount,
        GroupCount:   sum.GroupCount,
        FailedGroups: sum.FailedGroups,
        DateRange:    sum.DateRange,
        TotalSavings: sum.TotalSavings,
    }
    s.Broker.Publish(tenant, Event{Type: EventBatchCompleted, Data: done})
    s.Notifier.Emit(ctx, tenant, webhooks.EventBatchCompleted, done)
    return sum, nil
}

type capacityResponse struct {
    Success         bool   `json:"success"`
    Date            string `json:"date"`
    VehicleCapacity int    `json:"vehicleCapacity"`
    opt.CapacityPlan
}

// CapacityOptimizeHandler handles POST /tenants/{id}/routes/capacity-optimize
func (s *Server) CapacityOptimizeHandler(w http.ResponseWriter, r *http.Request) {
    var req capacityRequest
    if err := decodeJSON(r, &req); err != nil { writeError(w, r, err); return }
    day, err := model.ParseDate("date", req.Date)
    if err != nil { writeError(w, r, err); return }
    tenant := tenantID(r)
    capacity := 0
    if req.VehicleCapacity != nil {
        capacity = *req.VehicleCapacity
        if capacity <= 0 { writeError(w, r, &model.ValidationError{Field: "vehicleCapacity", Reason: "must be > 0"}); return }
    } else {
        settings, err := s.Store.GetTenantSettings(r.Context(), tenant)
        if err != nil { writeError(w, r, err); return }
        capacity = s.defaultCapacity(settings)
    }
    trips, err := s.Store.ListTrips(r.Context(), tenant, day, day)
    if err != nil { writeError(w, r, err); return }
    plan, err := s.Planner.Pack(trips, capacity)
    if err != nil { writeError(w, r, err); return }
    if plan.Groups == nil { plan.Groups = []model.CapacityGroup{} }
    if plan.Unplaced == nil { plan.Unplaced = []model.Trip{} }
    writeJSON(w, http.StatusOK, capacityResponse{Success: true, Date: req.Date, VehicleCapacity: capacity, CapacityPlan: plan})
}

// defaultCapacity is the tenant's default vehicle capacity, falling back to config.
func (s *Server) defaultCapacity(t model.TenantSettings) int {
    if t.DefaultVehicleCapacity > 0 { return t.DefaultVehicleCapacity }
    if c := s.Config.Capacity.DefaultVehicleCapacity; c > 0 { return c }
    return opt.DefaultVehicleCapacity
}

// AnalyticsHandler handles GET /tenants/{id}/routes/analytics
func (s *Server) AnalyticsHandler(w http.ResponseWriter, r *http.Request) {
    start, end, from, to, err := s.dateRangeQuery(r)
    if err != nil { writeError(w, r, err); return }
    tenant := tenantID(r)
    trips, err := s.Store.ListTrips(r.Context(), tenant, from, to)
    if err != nil { writeError(w, r, err); return }
    a := opt.Analyze(trips, s.Scorer.ScoreRange(r.Context(), trips))
    a.RecentBatches = s.Runs.Overlapping(tenant, start, end)
    writeJSON(w, http.StatusOK, a)
}

// CombinationOpportunitiesHandler handles GET /tenants/{id}/trips/combination-opportunities
func (s *Server) CombinationOpportunitiesHandler(w http.ResponseWriter, r *http.Request) {
    in, err := s.matchInput(r.Context(), tenantID(r), r.URL.Query().Get("date"))
    if err != nil { writeError(w, r, err); return }
    writeJSON(w, http.StatusOK, s.Matcher.Find(in))
}

// CapacityAlertsHandler handles GET /tenants/{id}/trips/capacity-alerts
func (s *Server) CapacityAlertsHandler(w http.ResponseWriter, r *http.Request) {
    tenant := tenantID(r)
    in, err := s.matchInput(r.Context(), tenant, r.URL.Query().Get("date"))
    if err != nil { writeError(w, r, err); return }
    driverID := r.URL.Query().Get("driverId")
    res := s.Matcher.Alerts(in, driverID)
    if res.Summary.TotalAlerts > 0 {
        s.Notifier.Emit(r.Context(), tenant, webhooks.EventCapacityAlerts, map[string]any{
            "date":     in.Date,
            "driverId": driverID,
            "summary":  res.Summary,
        })
    }
    writeJSON(w, http.StatusOK, res)
}

// matchInput loads one tenant-date's legs, open requests, requester history
// and settings.
func (s *Server) matchInput(ctx context.Context, tenant, date string) (opt.MatchInput, error) {
    day, err := model.ParseDate("date", date)
    if err != nil { return opt.MatchInput{}, err }
    in := opt.MatchInput{Date: day.Format(model.DateLayout)}
    if in.Trips, err = s.Store.ListTrips(ctx, tenant, day, day); err != nil { return in, err }
    if in.Vehicles, err = s.Store.ListVehicles(ctx, tenant); err != nil { return in, err }
    if in.Requests, err = s.Store.ListCustomerRequests(ctx, tenant, day); err != nil { return in, err }
    if in.Settings, err = s.Store.GetTenantSettings(ctx, tenant); err != nil { return in, err }

    var customers []string
    seen := map[string]bool{}
    for _, rq := range in.Requests {
        if rq.CustomerID != "" && !seen[rq.CustomerID] {
            seen[rq.CustomerID] = true
            customers = append(customers, rq.CustomerID)
        }
    }
    if len(customers) > 0 {
        lookback := s.Matcher.HistoryLookback
        if lookback <= 0 { lookback = opt.DefaultHistoryLookback }
        from, to := day.Add(-lookback), day.AddDate(0, 0, -1)
        if in.History, err = s.Store.CustomerHistory(ctx, tenant, customers, from, to); err != nil { return in, err }
    }
    return in, nil
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
    ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
    defer cancel()
    if err := s.Store.Ping(ctx); err != nil { writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path); return }
    writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
