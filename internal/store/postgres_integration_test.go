//go:build postgres_integration

package store

import (
    "os"
    "testing"
)

func TestPostgresConnectivityAndMigrate(t *testing.T) {
    dsn := os.Getenv("DATABASE_URL")
    if dsn == "" { t.Skip("DATABASE_URL not set; skipping integration test") }
    p, err := NewPostgres(dsn)
    if err != nil { t.Fatalf("NewPostgres: %v", err) }
    defer p.Close()
    if err := p.Ping(t.Context()); err != nil { t.Fatalf("Ping: %v", err) }
    if err := p.MigrateDir("../../db/migrations"); err != nil { t.Fatalf("MigrateDir: %v", err) }

    f, err := ParseFixtures([]byte(fixtureYAML))
    if err != nil { t.Fatalf("fixtures: %v", err) }
    if err := p.Seed(t.Context(), f); err != nil { t.Fatalf("Seed: %v", err) }
    trips, err := p.ListTrips(t.Context(), "t_demo", date("2025-03-10"), date("2025-03-11"))
    if err != nil { t.Fatalf("ListTrips: %v", err) }
    if len(trips) != 2 || trips[0].Dropoff == nil { t.Fatalf("unexpected trips %+v", trips) }
    if _, err := p.GetTrips(t.Context(), "t_demo", []string{"missing"}); err == nil { t.Fatalf("expected not found") }
    s, err := p.GetTenantSettings(t.Context(), "t_demo")
    if err != nil || s.FarePerPassenger != 12.5 { t.Fatalf("settings %v %+v", err, s) }
}
