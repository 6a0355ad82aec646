package opt

import (
	"context"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"routecap/internal/model"
)

// Scorer rates how close a driver-day's scheduled order is to the optimum.
type Scorer struct {
	Optimizer *Optimizer
	Workers   int
}

// Score returns ok=false when the driver-day has fewer than two trips and is
// therefore not scored. Optimizer failures produce an error-status score.
func (s *Scorer) Score(ctx context.Context, driverID, date string, trips []model.Trip) (*model.OptimizationScore, bool) {
	trips = model.ActiveTrips(trips)
	if len(trips) < 2 {
		return nil, false
	}
	out := &model.OptimizationScore{DriverID: driverID, Date: date, TripCount: len(trips)}
	res, err := s.Optimizer.Optimize(ctx, driverID, date, trips)
	if err != nil {
		out.Status = model.ScoreError
		out.Error = err.Error()
		return out, true
	}
	out.CurrentDistance = res.OriginalDistance
	out.OptimalDistance = res.OptimizedDistance
	out.SavingsPotential = res.Savings.Distance

	score := 100
	if res.OriginalDistance > 0 {
		score = int(math.Round(100 * res.OptimizedDistance / res.OriginalDistance))
	}
	score = max(0, min(100, score))
	out.Score = &score
	out.Status = scoreStatus(score)
	return out, true
}

func scoreStatus(score int) string {
	switch {
	case score >= 90:
		return model.ScoreOptimal
	case score >= 70:
		return model.ScoreGood
	default:
		return model.ScoreNeedsOptimization
	}
}

// ScoreRange scores every (driver, date) group in trips. Results are ordered by
// date then driver; skipped groups are omitted.
func (s *Scorer) ScoreRange(ctx context.Context, trips []model.Trip) []model.OptimizationScore {
	groups := GroupTrips(trips)
	slots := make([]*model.OptimizationScore, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers(s.Workers))
	for i, grp := range groups {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				if len(grp.Trips) >= 2 {
					slots[i] = &model.OptimizationScore{DriverID: grp.DriverID, Date: grp.Date, TripCount: len(grp.Trips), Status: model.ScoreError, Error: err.Error()}
				}
				return nil
			}
			if sc, ok := s.Score(gctx, grp.DriverID, grp.Date, grp.Trips); ok {
				slots[i] = sc
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]model.OptimizationScore, 0, len(slots))
	for _, sc := range slots {
		if sc != nil {
			out = append(out, *sc)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].DriverID < out[j].DriverID
	})
	return out
}
