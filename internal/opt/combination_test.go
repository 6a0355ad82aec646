package opt

import (
	"testing"
	"time"

	"routecap/internal/model"
)

func request(id, customer string, at time.Duration, dropLat, dropLng float64, needs ...string) model.CustomerRequest {
	return model.CustomerRequest{
		ID:                   id,
		CustomerID:           customer,
		Pickup:               model.Stop{Location: model.Coordinate{Lat: 51.501, Lng: -0.12}, ScheduledTime: day.Add(at), Role: model.RolePickup},
		Dropoff:              model.Stop{Location: model.Coordinate{Lat: dropLat, Lng: dropLng}, Role: model.RoleDropoff},
		PassengerCount:       1,
		MobilityRequirements: needs,
	}
}

func matchInput() MatchInput {
	leg := withDropoff(tripAt("t1", "d1", 9*time.Hour, 51.50, -0.12), 51.52, -0.10)
	leg.VehicleID = "v1"
	leg.CustomerID = "c0"
	full1 := withDropoff(tripAt("t2", "d2", 14*time.Hour, 51.50, -0.12), 51.52, -0.10)
	full1.VehicleID = "v2"
	full2 := withDropoff(tripAt("t3", "d2", 14*time.Hour+5*time.Minute, 51.50, -0.12), 51.52, -0.10)
	full2.VehicleID = "v2"

	var past []model.Trip
	for i := 0; i < 5; i++ {
		past = append(past, withDropoff(tripAt("h", "d1", -time.Duration(i+1)*24*time.Hour, 51.50, -0.12), 51.52, -0.10))
	}
	return MatchInput{
		Date:     "2025-03-10",
		Trips:    []model.Trip{leg, full1, full2},
		Vehicles: []model.Vehicle{{ID: "v1", Capacity: 4, Features: []string{"wheelchair"}}, {ID: "v2", Capacity: 2}},
		Requests: []model.CustomerRequest{
			request("r1", "c1", 9*time.Hour+5*time.Minute, 51.52, -0.10, "Wheelchair"),
			request("r2", "c2", 9*time.Hour+10*time.Minute, 51.5425, -0.10),
			request("r3", "c3", 9*time.Hour, 51.52, -0.10, "stretcher"),
			request("r4", "c4", 10*time.Hour, 51.52, -0.10),
			request("r5", "c5", 24*time.Hour+9*time.Hour, 51.52, -0.10),
			request("r6", "c6", 9*time.Hour, 51.51, -0.11),
			request("r7", "c0", 9*time.Hour, 51.52, -0.10),
		},
		History:  map[string][]model.Trip{"c1": past},
		Settings: model.TenantSettings{FarePerPassenger: 12.5},
	}
}

func TestTierBuckets(t *testing.T) {
	cases := map[int]string{
		100: model.TierHighlyRecommended, 80: model.TierHighlyRecommended,
		79: model.TierRecommended, 60: model.TierRecommended,
		59: model.TierAcceptable, 40: model.TierAcceptable,
		39: "", 0: "",
	}
	for score, want := range cases {
		if got := Tier(score); got != want {
			t.Fatalf("score %d: got %q want %q", score, got, want)
		}
	}
}

func TestFindOpportunities(t *testing.T) {
	res := NewMatcher(8, 20).Find(matchInput())
	byReq := map[string]model.CombinationOpportunity{}
	for _, o := range res.Opportunities {
		if o.CompatibilityScore < 40 {
			t.Fatalf("opportunity below threshold: %+v", o)
		}
		if o.Recommendation != Tier(o.CompatibilityScore) {
			t.Fatalf("tier mismatch: %+v", o)
		}
		if o.TripID != "t1" || o.PotentialAdditionalRevenue != 12.5 {
			t.Fatalf("unexpected opportunity %+v", o)
		}
		byReq[o.RequestID] = o
	}
	if len(byReq) != 3 {
		t.Fatalf("want r1, r2, r6; got %+v", res.Opportunities)
	}
	if o := byReq["r1"]; o.CompatibilityScore != 93 || o.Recommendation != model.TierHighlyRecommended {
		t.Fatalf("r1: %+v", o)
	}
	if o := byReq["r2"]; o.Recommendation != model.TierAcceptable {
		t.Fatalf("r2: %+v", o)
	}
	// on the leg's route but short of its destination
	if o := byReq["r6"]; o.DestinationDistanceKm > 0.1 || o.Recommendation != model.TierHighlyRecommended {
		t.Fatalf("r6: %+v", o)
	}
	if res.Opportunities[0].RequestID != "r1" {
		t.Fatalf("not sorted by score: %+v", res.Opportunities)
	}

	s := res.Summary
	if s.TotalOpportunities != 3 || s.ByTier[model.TierHighlyRecommended] != 2 || s.ByTier[model.TierAcceptable] != 1 {
		t.Fatalf("summary %+v", s)
	}
	if s.TotalPotentialRevenue != 37.5 || s.LegsScanned != 1 || s.CandidatesScanned != 6 {
		t.Fatalf("summary %+v", s)
	}
}

func TestFindFallsBackToDefaultFare(t *testing.T) {
	in := matchInput()
	in.Settings.FarePerPassenger = 0
	res := NewMatcher(8, 20).Find(in)
	for _, o := range res.Opportunities {
		if o.PotentialAdditionalRevenue != 20 {
			t.Fatalf("want default fare, got %+v", o)
		}
	}
}

func TestBuildLegsUsesVehicleCapacity(t *testing.T) {
	in := matchInput()
	legs := BuildLegs(in.Trips, in.Vehicles, DefaultMatchTolerance, 8)
	if len(legs) != 2 {
		t.Fatalf("want 2 legs, got %d", len(legs))
	}
	if legs[0].Capacity != 4 || legs[0].EmptySeats() != 3 {
		t.Fatalf("leg v1 %+v", legs[0])
	}
	if legs[1].Capacity != 2 || legs[1].EmptySeats() != 0 || len(legs[1].Trips) != 2 {
		t.Fatalf("leg v2 %+v", legs[1])
	}
}

func TestAlerts(t *testing.T) {
	m := NewMatcher(8, 20)
	res := m.Alerts(matchInput(), "")
	if len(res.Alerts) != 1 {
		t.Fatalf("want one alert, got %+v", res.Alerts)
	}
	a := res.Alerts[0]
	if a.VehicleID != "v1" || a.Utilization != 0.25 || a.Leg.EmptySeats != 3 || len(a.Opportunities) != 3 {
		t.Fatalf("alert %+v", a)
	}
	if res.Summary.TotalAlerts != 1 || res.Summary.TotalEmptySeats != 3 || res.Summary.AlertsWithOpportunities != 1 || res.Summary.PotentialRevenue != 37.5 {
		t.Fatalf("summary %+v", res.Summary)
	}

	if res := m.Alerts(matchInput(), "d2"); len(res.Alerts) != 0 {
		t.Fatalf("driver filter ignored: %+v", res.Alerts)
	}
}

func TestAnalyze(t *testing.T) {
	trips := zigzag()
	trips[0].Price = 10
	trips[1].Price = 5.5
	other := tripAt("o1", "d2", 9*time.Hour+30*time.Minute, 51.5, -0.1)
	other.PassengerCount = 3
	cancelled := tripAt("x", "d2", 9*time.Hour, 51.5, -0.1)
	cancelled.Status = "Cancelled"
	trips = append(trips, other, cancelled)

	s1, s2 := 38, 95
	scores := []model.OptimizationScore{
		{DriverID: "d1", Score: &s1, Status: model.ScoreNeedsOptimization},
		{DriverID: "d2", Score: &s2, Status: model.ScoreOptimal},
		{DriverID: "d3", Status: model.ScoreError},
	}
	a := Analyze(trips, scores)
	ov := a.Overview
	if ov.TotalTrips != 5 || ov.TotalDrivers != 2 || ov.TotalPassengers != 7 || ov.TotalRevenue != 15.5 {
		t.Fatalf("overview %+v", ov)
	}
	if ov.AverageTripsPerDriver != 2.5 || ov.AverageOptimizationScore != 66.5 || ov.RoutesNeedingOptimization != 1 {
		t.Fatalf("overview %+v", ov)
	}
	if a.DriverUtilization[0].DriverID != "d1" || a.DriverUtilization[0].TripsPerDay != 4 {
		t.Fatalf("utilization %+v", a.DriverUtilization)
	}
	if a.PeakHours[0].Hour != 9 || a.PeakHours[0].TripCount != 5 {
		t.Fatalf("peak hours %+v", a.PeakHours)
	}
}

func TestRequestsOnUsesUTCDate(t *testing.T) {
	east := time.FixedZone("UTC+2", 2*60*60)
	r := request("r1", "c1", 0, 51.52, -0.10)
	r.Pickup.ScheduledTime = time.Date(2025, 3, 10, 0, 30, 0, 0, east)
	m := NewMatcher(4, 10)
	if got := m.requestsOn(MatchInput{Date: "2025-03-09", Requests: []model.CustomerRequest{r}}); len(got) != 1 {
		t.Fatalf("request should fall on 2025-03-09 UTC, got %d", len(got))
	}
	if got := m.requestsOn(MatchInput{Date: "2025-03-10", Requests: []model.CustomerRequest{r}}); len(got) != 0 {
		t.Fatalf("request matched the local date")
	}
}

func TestBuildLegsSkipsCancelled(t *testing.T) {
	a := tripAt("a", "d1", 9*time.Hour, 51.50, -0.12)
	b := tripAt("b", "d1", 9*time.Hour, 51.50, -0.12)
	b.Status = "CANCELLED"
	legs := BuildLegs([]model.Trip{a, b}, nil, 30*time.Minute, 4)
	if len(legs) != 1 || legs[0].Occupied != 1 {
		t.Fatalf("cancelled trip occupies a seat: %+v", legs)
	}
}
