// Package opt holds the route optimization and capacity matching engine: single
// driver-day reordering, scoring, batch runs, seat packing and passenger
// combination matching. Everything here is pure computation over the inputs
// except the distance matrix lookup.
package opt

import (
	"context"
	"fmt"
	"math"
	"sort"

	"routecap/internal/distance"
	"routecap/internal/metrics"
	"routecap/internal/model"
	"routecap/internal/obs"
)

const (
	DefaultExactMaxTrips = 8
	MaxExactTrips        = 10 // upper bound on ExactMaxTrips (10! orderings)
	DefaultMaxIterations = 50
)

// Optimizer reorders one driver's trips for one day.
type Optimizer struct {
	Distances     distance.Provider
	ExactMaxTrips int // movable trips (all but the first) up to which orderings are enumerated
	MaxIterations int // 2-opt passes per seed
}

func NewOptimizer(p distance.Provider, exactMaxTrips, maxIterations int) *Optimizer {
	if exactMaxTrips <= 0 {
		exactMaxTrips = DefaultExactMaxTrips
	}
	exactMaxTrips = min(exactMaxTrips, MaxExactTrips)
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	return &Optimizer{Distances: p, ExactMaxTrips: exactMaxTrips, MaxIterations: maxIterations}
}

// Optimize returns trips in an order whose total distance is never worse than
// the scheduled (pickup time) order. The first scheduled trip stays first.
// Cancelled trips are dropped before the trip count is checked.
func (o *Optimizer) Optimize(ctx context.Context, driverID, date string, trips []model.Trip) (res model.OptimizationResult, err error) {
	defer obs.Time(ctx, "opt.Optimize")(&err)
	defer func() {
		method, status := res.Method, "ok"
		if err != nil {
			status = "error"
		}
		if method == "" {
			method = "none"
		}
		metrics.Optimizations.WithLabelValues(method, status).Inc()
	}()

	trips = model.ActiveTrips(trips)
	switch len(trips) {
	case 0:
		return model.OptimizationResult{}, &model.ValidationError{Field: "trips", Reason: "at least 2 trips required"}
	case 1:
		return model.OptimizationResult{}, &model.InsufficientStopsError{Count: 1}
	}
	if err := checkTrips(trips); err != nil {
		return model.OptimizationResult{}, err
	}

	original := SortByPickup(trips)
	stops, entry, exit := stopLayout(original)
	m, err := o.Distances.ComputeMatrix(ctx, stops)
	if err != nil {
		return model.OptimizationResult{}, &model.ComputationError{Reason: "distance matrix", Err: err}
	}
	if err := checkMatrix(m, len(stops)); err != nil {
		return model.OptimizationResult{}, err
	}

	c := newCostModel(m, entry, exit)
	identity := make([]int, len(original))
	for i := range identity {
		identity[i] = i
	}
	best := o.search(c, identity)
	if !isPermutation(best, len(original)) {
		return model.OptimizationResult{}, &model.ComputationError{Reason: "optimizer produced an invalid ordering"}
	}

	optimized := make([]model.Trip, len(best))
	for i, k := range best {
		optimized[i] = original[k]
	}
	baseDist, baseDur := c.distance(identity), c.duration(identity)
	optDist, optDur := c.distance(best), c.duration(best)

	return model.OptimizationResult{
		DriverID:          driverID,
		Date:              date,
		OriginalOrder:     original,
		OptimizedOrder:    optimized,
		Savings:           model.Savings{Distance: math.Max(0, baseDist-optDist), Time: math.Max(0, baseDur-optDur)},
		OriginalDistance:  baseDist,
		OptimizedDistance: optDist,
		OriginalDuration:  baseDur,
		OptimizedDuration: optDur,
		Method:            m.Method,
		Reliable:          m.Reliable,
		Warning:           m.Warning,
	}, nil
}

func (o *Optimizer) search(c costModel, original []int) []int {
	n := len(original)
	if n-1 <= min(o.ExactMaxTrips, MaxExactTrips) {
		return exactSearch(c, original)
	}
	best := original
	bestDist := c.distance(original)
	for _, seed := range [][]int{nearestNeighbor(c, original[0], n), original} {
		cand := improve2Opt(c, seed, o.MaxIterations)
		if d := c.distance(cand); d+epsilon < bestDist {
			best, bestDist = cand, d
		}
	}
	return best
}

// SortByPickup returns a copy of trips ordered by scheduled pickup, then id.
func SortByPickup(trips []model.Trip) []model.Trip {
	out := append([]model.Trip(nil), trips...)
	sort.SliceStable(out, func(i, j int) bool {
		ti, tj := out[i].PickupTime(), out[j].PickupTime()
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// stopLayout flattens trips into the stop list sent to the distance provider
// and records each trip's entry and exit stop index.
func stopLayout(trips []model.Trip) (stops []model.Stop, entry, exit []int) {
	entry = make([]int, len(trips))
	exit = make([]int, len(trips))
	for k, t := range trips {
		entry[k] = len(stops)
		stops = append(stops, t.Pickup)
		exit[k] = entry[k]
		if t.Dropoff != nil {
			exit[k] = len(stops)
			stops = append(stops, *t.Dropoff)
		}
	}
	return stops, entry, exit
}

func checkTrips(trips []model.Trip) error {
	seen := make(map[string]struct{}, len(trips))
	for _, t := range trips {
		if err := t.Validate(); err != nil {
			return err
		}
		if _, dup := seen[t.ID]; dup {
			return &model.ValidationError{Field: "trips", Reason: fmt.Sprintf("duplicate trip %s", t.ID)}
		}
		seen[t.ID] = struct{}{}
		for _, s := range t.Stops() {
			if !s.Location.Valid() {
				return &model.ComputationError{Reason: fmt.Sprintf("trip %s has malformed coordinates (%v,%v)", t.ID, s.Location.Lat, s.Location.Lng)}
			}
		}
	}
	return nil
}

func checkMatrix(m distance.Matrix, n int) error {
	if m.Size() != n {
		return &model.ComputationError{Reason: fmt.Sprintf("distance matrix size %d, want %d", m.Size(), n)}
	}
	for i := range m.Entries {
		if len(m.Entries[i]) != n {
			return &model.ComputationError{Reason: "distance matrix is not square"}
		}
		for _, e := range m.Entries[i] {
			if math.IsNaN(e.DistanceMeters) || math.IsInf(e.DistanceMeters, 0) || e.DistanceMeters < 0 {
				return &model.ComputationError{Reason: "distance matrix has invalid entries"}
			}
		}
	}
	return nil
}
