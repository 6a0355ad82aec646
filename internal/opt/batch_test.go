package opt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"routecap/internal/model"
)

type fakeTrips struct {
	trips []model.Trip
	err   error
}

func (f fakeTrips) ListTrips(_ context.Context, _ string, from, to time.Time) ([]model.Trip, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []model.Trip
	for _, t := range f.trips {
		d, _ := time.Parse(model.DateLayout, t.Date())
		if !d.Before(from) && !d.After(to) {
			out = append(out, t)
		}
	}
	return out, nil
}

func batchTrips() []model.Trip {
	next := 24 * time.Hour
	return []model.Trip{
		tripAt("a1", "d1", 9*time.Hour, 51.50, -0.12),
		tripAt("a2", "d1", 10*time.Hour, 51.52, -0.10),
		tripAt("a3", "d1", next+9*time.Hour, 51.50, -0.12),
		// corrupted coordinate
		tripAt("b1", "d2", 9*time.Hour, 151.0, -0.12),
		tripAt("b2", "d2", 10*time.Hour, 51.52, -0.10),
		// outside the range
		tripAt("c1", "d3", 5*next+9*time.Hour, 51.50, -0.12),
		tripAt("c2", "d3", 5*next+10*time.Hour, 51.52, -0.10),
		// no driver
		tripAt("u1", "", 9*time.Hour, 51.50, -0.12),
	}
}

func TestBatchIsolatesCorruptedGroup(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]string{}
	b := &Batch{
		Optimizer: geometricOptimizer(),
		Trips:     fakeTrips{trips: batchTrips()},
		Workers:   2,
		OnGroup: func(batchID string, r GroupResult) {
			mu.Lock()
			seen[r.DriverID+"/"+r.Date] = r.Status
			mu.Unlock()
		},
	}
	sum, err := b.Run(context.Background(), "t1", "2025-03-10", "2025-03-11")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.BatchID == "" || sum.TenantID != "t1" {
		t.Fatalf("missing ids: %+v", sum)
	}
	if sum.GroupCount != 3 || sum.FailedGroups != 1 {
		t.Fatalf("groups=%d failed=%d", sum.GroupCount, sum.FailedGroups)
	}
	if sum.TripCount != 3 || sum.DriverCount != 1 {
		t.Fatalf("tripCount=%d driverCount=%d", sum.TripCount, sum.DriverCount)
	}
	if sum.DateRange.Start != "2025-03-10" || sum.DateRange.End != "2025-03-11" {
		t.Fatalf("date range %+v", sum.DateRange)
	}
	want := map[string]string{
		"d1/2025-03-10": GroupOptimized,
		"d2/2025-03-10": GroupError,
		"d1/2025-03-11": GroupSkipped,
	}
	for k, v := range want {
		if seen[k] != v {
			t.Fatalf("group %s: status %q want %q", k, seen[k], v)
		}
	}
	for _, g := range sum.Groups {
		if g.Status == GroupError && g.Error == "" {
			t.Fatalf("error group without message: %+v", g)
		}
	}
}

func TestBatchRangeValidation(t *testing.T) {
	b := &Batch{Optimizer: geometricOptimizer(), Trips: fakeTrips{}}
	cases := [][2]string{
		{"", "2025-03-10"},
		{"2025-03-10", ""},
		{"2025-03-11", "2025-03-10"},
		{"10/03/2025", "2025-03-10"},
		{"2025-01-01", "2025-12-31"},
	}
	for _, c := range cases {
		_, err := b.Run(context.Background(), "t1", c[0], c[1])
		var ve *model.ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("%v: want ValidationError, got %v", c, err)
		}
	}
}

func TestBatchLoadErrorFailsRun(t *testing.T) {
	b := &Batch{Optimizer: geometricOptimizer(), Trips: fakeTrips{err: errors.New("db down")}}
	if _, err := b.Run(context.Background(), "t1", "2025-03-10", "2025-03-10"); err == nil {
		t.Fatalf("expected load error")
	}
}

func TestBatchCancelledContextMarksGroups(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := &Batch{Optimizer: geometricOptimizer(), Trips: fakeTrips{trips: batchTrips()}}
	sum, err := b.Run(ctx, "t1", "2025-03-10", "2025-03-11")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.FailedGroups != sum.GroupCount {
		t.Fatalf("all groups should fail on a cancelled context: %+v", sum)
	}
}

func TestGroupTripsOrdering(t *testing.T) {
	groups := GroupTrips(batchTrips())
	var got []string
	for _, g := range groups {
		got = append(got, g.Date+"/"+g.DriverID)
	}
	want := []string{"2025-03-10/d1", "2025-03-10/d2", "2025-03-11/d1", "2025-03-15/d3"}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestRunLogKeepsRecentOverlapping(t *testing.T) {
	l := NewRunLog()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < runLogLimit+5; i++ {
		l.Record(BatchSummary{BatchID: "b", TenantID: "t1", DateRange: DateRange{Start: "2025-03-01", End: "2025-03-05"}, FinishedAt: base.Add(time.Duration(i) * time.Minute)})
	}
	l.Record(BatchSummary{BatchID: "other", TenantID: "t2", DateRange: DateRange{Start: "2025-03-01", End: "2025-03-05"}})

	got := l.Overlapping("t1", "2025-03-04", "2025-03-10")
	if len(got) != runLogLimit {
		t.Fatalf("want %d runs, got %d", runLogLimit, len(got))
	}
	if !got[0].FinishedAt.After(got[1].FinishedAt) {
		t.Fatalf("runs not newest first")
	}
	if len(l.Overlapping("t1", "2025-03-06", "2025-03-10")) != 0 {
		t.Fatalf("non-overlapping range matched")
	}
}

func TestGroupTripsSkipsCancelledAndUsesUTCDate(t *testing.T) {
	east := time.FixedZone("UTC+2", 2*60*60)
	late := tripAt("x1", "d1", 0, 51.50, -0.12)
	late.Pickup.ScheduledTime = time.Date(2025, 3, 10, 0, 30, 0, 0, east)
	gone := tripAt("x2", "d1", 9*time.Hour, 51.52, -0.10)
	gone.Status = "cancelled"

	groups := GroupTrips([]model.Trip{late, gone})
	if len(groups) != 1 {
		t.Fatalf("want one group, got %+v", groups)
	}
	if g := groups[0]; g.Date != "2025-03-09" || len(g.Trips) != 1 || g.Trips[0].ID != "x1" {
		t.Fatalf("unexpected group %+v", g)
	}
}
