package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"routecap/internal/model"
)

const fixtureYAML = `
tenants:
  t_demo:
    settings:
      farePerPassenger: 12.5
      currency: GBP
      defaultVehicleCapacity: 6
    vehicles:
      - id: v1
        capacity: 4
        features: [wheelchair]
    trips:
      - id: t1
        driverId: d1
        vehicleId: v1
        customerId: c1
        passengerCount: 1
        pickup:
          location: {lat: 51.50, lng: -0.12}
          scheduledTime: 2025-03-10T09:00:00Z
        dropoff:
          location: {lat: 51.52, lng: -0.10}
      - id: t2
        driverId: d1
        customerId: c1
        passengerCount: 2
        pickup:
          location: {lat: 51.52, lng: -0.10}
          scheduledTime: 2025-03-11T23:30:00Z
      - id: old
        customerId: c1
        passengerCount: 1
        pickup:
          location: {lat: 51.50, lng: -0.12}
          scheduledTime: 2025-01-05T08:00:00Z
    requests:
      - id: r1
        customerId: c9
        passengerCount: 1
        pickup:
          location: {lat: 51.50, lng: -0.12}
          scheduledTime: 2025-03-10T09:10:00Z
        dropoff:
          location: {lat: 51.52, lng: -0.10}
`

func seeded(t *testing.T) *Memory {
	t.Helper()
	f, err := ParseFixtures([]byte(fixtureYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	m := NewMemory()
	if err := m.Seed(context.Background(), f); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return m
}

func date(s string) time.Time {
	d, _ := time.Parse(model.DateLayout, s)
	return d
}

func TestMemoryListTripsInclusiveRange(t *testing.T) {
	m := seeded(t)
	ctx := context.Background()
	got, err := m.ListTrips(ctx, "t_demo", date("2025-03-10"), date("2025-03-11"))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != "t1" || got[1].ID != "t2" {
		t.Fatalf("unexpected trips %+v", got)
	}
	if got[0].Dropoff == nil || got[0].Dropoff.Location.Lat != 51.52 {
		t.Fatalf("dropoff not loaded: %+v", got[0])
	}
	got, _ = m.ListTrips(ctx, "t_demo", date("2025-03-10"), date("2025-03-10"))
	if len(got) != 1 {
		t.Fatalf("single day: %+v", got)
	}
	got, _ = m.ListTrips(ctx, "other", date("2025-03-10"), date("2025-03-11"))
	if len(got) != 0 {
		t.Fatalf("tenant isolation broken: %+v", got)
	}
}

func TestMemoryGetTripsNotFound(t *testing.T) {
	m := seeded(t)
	got, err := m.GetTrips(context.Background(), "t_demo", []string{"t2", "t1"})
	if err != nil || len(got) != 2 || got[0].ID != "t2" {
		t.Fatalf("get: %v %+v", err, got)
	}
	_, err = m.GetTrips(context.Background(), "t_demo", []string{"t1", "nope"})
	var nf *model.NotFoundError
	if !errors.As(err, &nf) || nf.ID != "nope" {
		t.Fatalf("want NotFoundError, got %v", err)
	}
}

func TestMemoryHistoryRequestsSettings(t *testing.T) {
	m := seeded(t)
	ctx := context.Background()
	h, err := m.CustomerHistory(ctx, "t_demo", []string{"c1"}, date("2024-12-10"), date("2025-03-09"))
	if err != nil || len(h["c1"]) != 1 || h["c1"][0].ID != "old" {
		t.Fatalf("history: %v %+v", err, h)
	}
	reqs, _ := m.ListCustomerRequests(ctx, "t_demo", date("2025-03-10"))
	if len(reqs) != 1 || reqs[0].CustomerID != "c9" {
		t.Fatalf("requests %+v", reqs)
	}
	s, _ := m.GetTenantSettings(ctx, "t_demo")
	if s.FarePerPassenger != 12.5 || s.DefaultVehicleCapacity != 6 {
		t.Fatalf("settings %+v", s)
	}
	vs, _ := m.ListVehicles(ctx, "t_demo")
	if len(vs) != 1 || !vs[0].HasFeatures([]string{"wheelchair"}) {
		t.Fatalf("vehicles %+v", vs)
	}
}

func TestMemoryAssignsMissingIDs(t *testing.T) {
	m := NewMemory()
	m.PutTrips("t", model.Trip{PassengerCount: 1, Pickup: model.Stop{ScheduledTime: date("2025-03-10").Add(time.Hour)}})
	got, _ := m.ListTrips(context.Background(), "t", date("2025-03-10"), date("2025-03-10"))
	if len(got) != 1 || got[0].ID == "" {
		t.Fatalf("id not assigned: %+v", got)
	}
}

func TestParseFixturesRejectsInvalidTrip(t *testing.T) {
	_, err := ParseFixtures([]byte("tenants:\n  t:\n    trips:\n      - id: x\n        passengerCount: 0\n        pickup: {scheduledTime: 2025-03-10T09:00:00Z}\n"))
	var ve *model.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("want ValidationError, got %v", err)
	}
}

func TestMemoryListTripsSkipsCancelled(t *testing.T) {
	m := NewMemory()
	at := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	m.PutTrips("t1",
		model.Trip{ID: "live", DriverID: "d1", PassengerCount: 1, Pickup: model.Stop{ScheduledTime: at}},
		model.Trip{ID: "gone", DriverID: "d1", PassengerCount: 3, Status: "Cancelled", Pickup: model.Stop{ScheduledTime: at.Add(time.Hour)}},
	)
	got, err := m.ListTrips(context.Background(), "t1", at, at)
	if err != nil {
		t.Fatalf("ListTrips: %v", err)
	}
	if len(got) != 1 || got[0].ID != "live" {
		t.Fatalf("cancelled trip listed: %+v", got)
	}
	// explicit lookups still resolve it
	if got, err := m.GetTrips(context.Background(), "t1", []string{"gone"}); err != nil || len(got) != 1 {
		t.Fatalf("GetTrips: %v %v", got, err)
	}
}

func TestMemoryListTripsSelectsByUTCDay(t *testing.T) {
	m := NewMemory()
	east := time.FixedZone("UTC+2", 2*60*60)
	m.PutTrips("t1", model.Trip{ID: "early", DriverID: "d1", PassengerCount: 1, Pickup: model.Stop{ScheduledTime: time.Date(2025, 3, 10, 0, 30, 0, 0, east)}})
	day := time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)
	got, err := m.ListTrips(context.Background(), "t1", day, day)
	if err != nil || len(got) != 1 {
		t.Fatalf("want the trip on 2025-03-09 UTC, got %v %v", got, err)
	}
	if d := got[0].Date(); d != "2025-03-09" {
		t.Fatalf("Date() = %s, want the UTC day the store selected it by", d)
	}
}
