package store

import (
    "context"
    "sort"
    "sync"
    "time"

    "github.com/google/uuid"
    "routecap/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
    mu       sync.RWMutex
    trips    map[string]map[string]model.Trip // tenant -> trip id -> trip
    requests map[string][]model.CustomerRequest
    vehicles map[string][]model.Vehicle
    settings map[string]model.TenantSettings
}

func NewMemory() *Memory {
    return &Memory{
        trips:    map[string]map[string]model.Trip{},
        requests: map[string][]model.CustomerRequest{},
        vehicles: map[string][]model.Vehicle{},
        settings: map[string]model.TenantSettings{},
    }
}

// PutTrips inserts or replaces trips by id. Trips without an id get one.
func (m *Memory) PutTrips(tenantID string, trips ...model.Trip) {
    m.mu.Lock(); defer m.mu.Unlock()
    byID := m.trips[tenantID]
    if byID == nil { byID = map[string]model.Trip{}; m.trips[tenantID] = byID }
    for _, t := range trips {
        if t.ID == "" { t.ID = uuid.NewString() }
        byID[t.ID] = t
    }
}

func (m *Memory) PutRequests(tenantID string, reqs ...model.CustomerRequest) {
    m.mu.Lock(); defer m.mu.Unlock()
    for _, r := range reqs {
        if r.ID == "" { r.ID = uuid.NewString() }
        m.requests[tenantID] = append(m.requests[tenantID], r)
    }
}

func (m *Memory) PutVehicles(tenantID string, vs ...model.Vehicle) {
    m.mu.Lock(); defer m.mu.Unlock()
    m.vehicles[tenantID] = append(m.vehicles[tenantID], vs...)
}

func (m *Memory) PutSettings(tenantID string, s model.TenantSettings) {
    m.mu.Lock(); defer m.mu.Unlock()
    m.settings[tenantID] = s
}

func (m *Memory) Seed(_ context.Context, f Fixtures) error {
    for tenant, tf := range f.Tenants {
        m.PutSettings(tenant, tf.Settings)
        m.PutVehicles(tenant, tf.Vehicles...)
        m.PutTrips(tenant, tf.Trips...)
        m.PutRequests(tenant, tf.Requests...)
    }
    return nil
}

// ListTrips returns the non-cancelled trips picked up within [from, to] UTC days.
func (m *Memory) ListTrips(_ context.Context, tenantID string, from, to time.Time) ([]model.Trip, error) {
    m.mu.RLock(); defer m.mu.RUnlock()
    lo, hi := dayStart(from), dayEnd(to)
    out := []model.Trip{}
    for _, t := range m.trips[tenantID] {
        at := t.PickupTime()
        if t.Cancelled() || at.Before(lo) || !at.Before(hi) { continue }
        out = append(out, t)
    }
    sortTrips(out)
    return out, nil
}

// GetTrips returns trips in the order of ids. A missing id is a NotFoundError.
func (m *Memory) GetTrips(_ context.Context, tenantID string, ids []string) ([]model.Trip, error) {
    m.mu.RLock(); defer m.mu.RUnlock()
    out := make([]model.Trip, 0, len(ids))
    for _, id := range ids {
        t, ok := m.trips[tenantID][id]
        if !ok { return nil, &model.NotFoundError{Kind: "trip", ID: id} }
        out = append(out, t)
    }
    return out, nil
}

func (m *Memory) CustomerHistory(_ context.Context, tenantID string, customerIDs []string, from, to time.Time) (map[string][]model.Trip, error) {
    m.mu.RLock(); defer m.mu.RUnlock()
    want := map[string]bool{}
    for _, id := range customerIDs { want[id] = true }
    lo, hi := dayStart(from), dayEnd(to)
    out := map[string][]model.Trip{}
    for _, t := range m.trips[tenantID] {
        if !want[t.CustomerID] { continue }
        if at := t.PickupTime(); at.Before(lo) || !at.Before(hi) { continue }
        out[t.CustomerID] = append(out[t.CustomerID], t)
    }
    for _, ts := range out { sortTrips(ts) }
    return out, nil
}

func (m *Memory) ListCustomerRequests(_ context.Context, tenantID string, date time.Time) ([]model.CustomerRequest, error) {
    m.mu.RLock(); defer m.mu.RUnlock()
    lo, hi := dayStart(date), dayEnd(date)
    out := []model.CustomerRequest{}
    for _, r := range m.requests[tenantID] {
        at := r.Pickup.ScheduledTime
        if !at.Before(lo) && at.Before(hi) { out = append(out, r) }
    }
    return out, nil
}

func (m *Memory) ListVehicles(_ context.Context, tenantID string) ([]model.Vehicle, error) {
    m.mu.RLock(); defer m.mu.RUnlock()
    return append([]model.Vehicle{}, m.vehicles[tenantID]...), nil
}

func (m *Memory) GetTenantSettings(_ context.Context, tenantID string) (model.TenantSettings, error) {
    m.mu.RLock(); defer m.mu.RUnlock()
    return m.settings[tenantID], nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func sortTrips(ts []model.Trip) {
    sort.Slice(ts, func(i, j int) bool {
        if !ts[i].PickupTime().Equal(ts[j].PickupTime()) { return ts[i].PickupTime().Before(ts[j].PickupTime()) }
        return ts[i].ID < ts[j].ID
    })
}
