package store

import (
    "context"
    "database/sql"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "sort"
    "strings"
    "time"

    _ "github.com/jackc/pgx/v5/stdlib"

    "routecap/internal/model"
)

type Postgres struct {
    db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
    db, err := sql.Open("pgx", dsn)
    if err != nil {
        return nil, err
    }
    if err := db.Ping(); err != nil {
        return nil, err
    }
    return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// MigrateDir applies every *.sql file in dir in lexical order. Files are
// expected to be idempotent (CREATE ... IF NOT EXISTS).
func (p *Postgres) MigrateDir(dir string) error {
    files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
    if err != nil { return err }
    sort.Strings(files)
    for _, f := range files {
        b, err := os.ReadFile(f)
        if err != nil { return err }
        if _, err := p.db.Exec(string(b)); err != nil { return fmt.Errorf("migrate %s: %w", filepath.Base(f), err) }
    }
    return nil
}

const tripColumns = `id, coalesce(driver_id,''), coalesce(vehicle_id,''), coalesce(customer_id,''),
    pickup_lat, pickup_lng, coalesce(pickup_address,''), pickup_at,
    dropoff_lat, dropoff_lng, coalesce(dropoff_address,''), dropoff_at,
    passenger_count, coalesce(price,0), coalesce(status,''), coalesce(array_to_string(mobility_requirements, ','),'')`

// activeTrip excludes cancelled trips; it mirrors model.Trip.Cancelled.
const activeTrip = `lower(trim(coalesce(status,''))) NOT IN ('cancelled','canceled')`

// ListTrips returns the non-cancelled trips picked up within [from, to] UTC days.
func (p *Postgres) ListTrips(ctx context.Context, tenantID string, from, to time.Time) ([]model.Trip, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT `+tripColumns+` FROM trips WHERE tenant_id=$1 AND pickup_at >= $2 AND pickup_at < $3 AND `+activeTrip+` ORDER BY pickup_at, id`,
        tenantID, dayStart(from), dayEnd(to))
    if err != nil { return nil, err }
    return scanTrips(rows)
}

func (p *Postgres) GetTrips(ctx context.Context, tenantID string, ids []string) ([]model.Trip, error) {
    if len(ids) == 0 { return []model.Trip{}, nil }
    rows, err := p.db.QueryContext(ctx, `SELECT `+tripColumns+` FROM trips WHERE tenant_id=$1 AND id = ANY($2)`, tenantID, ids)
    if err != nil { return nil, err }
    found, err := scanTrips(rows)
    if err != nil { return nil, err }
    byID := make(map[string]model.Trip, len(found))
    for _, t := range found { byID[t.ID] = t }
    out := make([]model.Trip, 0, len(ids))
    for _, id := range ids {
        t, ok := byID[id]
        if !ok { return nil, &model.NotFoundError{Kind: "trip", ID: id} }
        out = append(out, t)
    }
    return out, nil
}

func (p *Postgres) CustomerHistory(ctx context.Context, tenantID string, customerIDs []string, from, to time.Time) (map[string][]model.Trip, error) {
    out := map[string][]model.Trip{}
    if len(customerIDs) == 0 { return out, nil }
    rows, err := p.db.QueryContext(ctx, `SELECT `+tripColumns+` FROM trips WHERE tenant_id=$1 AND customer_id = ANY($2) AND pickup_at >= $3 AND pickup_at < $4 ORDER BY pickup_at, id`,
        tenantID, customerIDs, dayStart(from), dayEnd(to))
    if err != nil { return nil, err }
    trips, err := scanTrips(rows)
    if err != nil { return nil, err }
    for _, t := range trips { out[t.CustomerID] = append(out[t.CustomerID], t) }
    return out, nil
}

func (p *Postgres) ListCustomerRequests(ctx context.Context, tenantID string, date time.Time) ([]model.CustomerRequest, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id, customer_id, pickup_lat, pickup_lng, coalesce(pickup_address,''), pickup_at,
        dropoff_lat, dropoff_lng, coalesce(dropoff_address,''), passenger_count, coalesce(array_to_string(mobility_requirements, ','),'')
        FROM customer_requests WHERE tenant_id=$1 AND status='open' AND pickup_at >= $2 AND pickup_at < $3 ORDER BY pickup_at, id`,
        tenantID, dayStart(date), dayEnd(date))
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.CustomerRequest{}
    for rows.Next() {
        var r model.CustomerRequest
        var needs string
        if err := rows.Scan(&r.ID, &r.CustomerID, &r.Pickup.Location.Lat, &r.Pickup.Location.Lng, &r.Pickup.Address, &r.Pickup.ScheduledTime,
            &r.Dropoff.Location.Lat, &r.Dropoff.Location.Lng, &r.Dropoff.Address, &r.PassengerCount, &needs); err != nil {
            return nil, err
        }
        r.Pickup.Role, r.Dropoff.Role = model.RolePickup, model.RoleDropoff
        r.MobilityRequirements = splitArray(needs)
        out = append(out, r)
    }
    return out, rows.Err()
}

func (p *Postgres) ListVehicles(ctx context.Context, tenantID string) ([]model.Vehicle, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id, capacity, coalesce(array_to_string(features, ','),'') FROM vehicles WHERE tenant_id=$1 ORDER BY id`, tenantID)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Vehicle{}
    for rows.Next() {
        var v model.Vehicle
        var features string
        if err := rows.Scan(&v.ID, &v.Capacity, &features); err != nil { return nil, err }
        v.Features = splitArray(features)
        out = append(out, v)
    }
    return out, rows.Err()
}

func (p *Postgres) GetTenantSettings(ctx context.Context, tenantID string) (model.TenantSettings, error) {
    var s model.TenantSettings
    err := p.db.QueryRowContext(ctx, `SELECT fare_per_passenger, coalesce(currency,''), coalesce(default_vehicle_capacity,0), coalesce(webhook_url,''), coalesce(webhook_secret,'')
        FROM tenant_settings WHERE tenant_id=$1`, tenantID).
        Scan(&s.FarePerPassenger, &s.Currency, &s.DefaultVehicleCapacity, &s.WebhookURL, &s.WebhookSecret)
    if errors.Is(err, sql.ErrNoRows) { return model.TenantSettings{}, nil }
    return s, err
}

// Seed upserts fixture rows in one transaction.
func (p *Postgres) Seed(ctx context.Context, f Fixtures) error {
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return err }
    defer func(){ _ = tx.Rollback() }()

    for tenant, tf := range f.Tenants {
        s := tf.Settings
        if _, err := tx.ExecContext(ctx, `INSERT INTO tenant_settings (tenant_id, fare_per_passenger, currency, default_vehicle_capacity, webhook_url, webhook_secret)
            VALUES ($1,$2,$3,$4,$5,$6) ON CONFLICT (tenant_id) DO UPDATE SET fare_per_passenger=EXCLUDED.fare_per_passenger, currency=EXCLUDED.currency,
            default_vehicle_capacity=EXCLUDED.default_vehicle_capacity, webhook_url=EXCLUDED.webhook_url, webhook_secret=EXCLUDED.webhook_secret`,
            tenant, s.FarePerPassenger, nullIfEmpty(s.Currency), nullIfZero(s.DefaultVehicleCapacity), nullIfEmpty(s.WebhookURL), nullIfEmpty(s.WebhookSecret)); err != nil {
            return fmt.Errorf("seed settings %s: %w", tenant, err)
        }
        for _, v := range tf.Vehicles {
            if _, err := tx.ExecContext(ctx, `INSERT INTO vehicles (tenant_id, id, capacity, features) VALUES ($1,$2,$3,$4)
                ON CONFLICT (tenant_id, id) DO UPDATE SET capacity=EXCLUDED.capacity, features=EXCLUDED.features`,
                tenant, v.ID, v.Capacity, pqStringArray(v.Features)); err != nil {
                return fmt.Errorf("seed vehicle %s: %w", v.ID, err)
            }
        }
        for _, t := range tf.Trips {
            var dLat, dLng, dAddr, dAt any
            if t.Dropoff != nil {
                dLat, dLng, dAddr = t.Dropoff.Location.Lat, t.Dropoff.Location.Lng, nullIfEmpty(t.Dropoff.Address)
                if !t.Dropoff.ScheduledTime.IsZero() { dAt = t.Dropoff.ScheduledTime }
            }
            if _, err := tx.ExecContext(ctx, `INSERT INTO trips (tenant_id, id, driver_id, vehicle_id, customer_id, pickup_lat, pickup_lng, pickup_address, pickup_at,
                dropoff_lat, dropoff_lng, dropoff_address, dropoff_at, passenger_count, price, status, mobility_requirements)
                VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
                ON CONFLICT (tenant_id, id) DO UPDATE SET driver_id=EXCLUDED.driver_id, vehicle_id=EXCLUDED.vehicle_id, customer_id=EXCLUDED.customer_id,
                pickup_lat=EXCLUDED.pickup_lat, pickup_lng=EXCLUDED.pickup_lng, pickup_address=EXCLUDED.pickup_address, pickup_at=EXCLUDED.pickup_at,
                dropoff_lat=EXCLUDED.dropoff_lat, dropoff_lng=EXCLUDED.dropoff_lng, dropoff_address=EXCLUDED.dropoff_address, dropoff_at=EXCLUDED.dropoff_at,
                passenger_count=EXCLUDED.passenger_count, price=EXCLUDED.price, status=EXCLUDED.status, mobility_requirements=EXCLUDED.mobility_requirements`,
                tenant, t.ID, nullIfEmpty(t.DriverID), nullIfEmpty(t.VehicleID), nullIfEmpty(t.CustomerID),
                t.Pickup.Location.Lat, t.Pickup.Location.Lng, nullIfEmpty(t.Pickup.Address), t.Pickup.ScheduledTime,
                dLat, dLng, dAddr, dAt, t.PassengerCount, t.Price, nullIfEmpty(t.Status), pqStringArray(t.MobilityRequirements)); err != nil {
                return fmt.Errorf("seed trip %s: %w", t.ID, err)
            }
        }
        for _, r := range tf.Requests {
            if _, err := tx.ExecContext(ctx, `INSERT INTO customer_requests (tenant_id, id, customer_id, pickup_lat, pickup_lng, pickup_address, pickup_at,
                dropoff_lat, dropoff_lng, dropoff_address, passenger_count, mobility_requirements)
                VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12) ON CONFLICT (tenant_id, id) DO NOTHING`,
                tenant, r.ID, r.CustomerID, r.Pickup.Location.Lat, r.Pickup.Location.Lng, nullIfEmpty(r.Pickup.Address), r.Pickup.ScheduledTime,
                r.Dropoff.Location.Lat, r.Dropoff.Location.Lng, nullIfEmpty(r.Dropoff.Address), max(1, r.PassengerCount), pqStringArray(r.MobilityRequirements)); err != nil {
                return fmt.Errorf("seed request %s: %w", r.ID, err)
            }
        }
    }
    return tx.Commit()
}

func scanTrips(rows *sql.Rows) ([]model.Trip, error) {
    defer rows.Close()
    out := []model.Trip{}
    for rows.Next() {
        var t model.Trip
        var dLat, dLng sql.NullFloat64
        var dAt sql.NullTime
        var dAddr, needs string
        if err := rows.Scan(&t.ID, &t.DriverID, &t.VehicleID, &t.CustomerID,
            &t.Pickup.Location.Lat, &t.Pickup.Location.Lng, &t.Pickup.Address, &t.Pickup.ScheduledTime,
            &dLat, &dLng, &dAddr, &dAt,
            &t.PassengerCount, &t.Price, &t.Status, &needs); err != nil {
            return nil, err
        }
        t.Pickup.ID, t.Pickup.Role = t.ID+"-pickup", model.RolePickup
        t.Pickup.ScheduledTime = t.Pickup.ScheduledTime.UTC()
        if dLat.Valid && dLng.Valid {
            t.Dropoff = &model.Stop{ID: t.ID + "-dropoff", Location: model.Coordinate{Lat: dLat.Float64, Lng: dLng.Float64}, Address: dAddr, Role: model.RoleDropoff}
            if dAt.Valid { t.Dropoff.ScheduledTime = dAt.Time.UTC() }
        }
        t.MobilityRequirements = splitArray(needs)
        out = append(out, t)
    }
    return out, rows.Err()
}

func splitArray(s string) []string {
    if s == "" { return nil }
    return strings.Split(s, ",")
}

func nullIfEmpty(s string) any { if s == "" { return nil }; return s }
func nullIfZero(n int) any { if n == 0 { return nil }; return n }

// pgx encodes []string as text[]; empty slices are stored as NULL
func pqStringArray(v []string) any {
    if len(v) == 0 { return nil }
    return v
}
