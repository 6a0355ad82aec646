package store

import (
    "context"
    "errors"
    "time"

    "routecap/internal/model"
)

// Store is the read side of the scheduling data the engine consumes.
// Date bounds are calendar dates in UTC and inclusive.
type Store interface {
    // Trips
    ListTrips(ctx context.Context, tenantID string, from, to time.Time) ([]model.Trip, error)
    GetTrips(ctx context.Context, tenantID string, ids []string) ([]model.Trip, error)
    CustomerHistory(ctx context.Context, tenantID string, customerIDs []string, from, to time.Time) (map[string][]model.Trip, error)

    // Unassigned requests
    ListCustomerRequests(ctx context.Context, tenantID string, date time.Time) ([]model.CustomerRequest, error)

    // Fleet
    ListVehicles(ctx context.Context, tenantID string) ([]model.Vehicle, error)

    // Tenant configuration; a tenant without a row gets zero settings
    GetTenantSettings(ctx context.Context, tenantID string) (model.TenantSettings, error)

    Ping(ctx context.Context) error
}

// Seeder loads fixture data into a store.
type Seeder interface {
    Seed(ctx context.Context, f Fixtures) error
}

var ErrNotFound = errors.New("not found")

// dayEnd is the exclusive upper bound for an inclusive calendar date.
func dayEnd(d time.Time) time.Time {
    y, m, dd := d.UTC().Date()
    return time.Date(y, m, dd, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}

func dayStart(d time.Time) time.Time {
    y, m, dd := d.UTC().Date()
    return time.Date(y, m, dd, 0, 0, 0, 0, time.UTC)
}
