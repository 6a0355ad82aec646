package opt

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"routecap/internal/metrics"
	"routecap/internal/model"
	"routecap/internal/obs"
)

const (
	DefaultWorkers      = 4
	DefaultMaxRangeDays = 92
)

const (
	GroupOptimized = "optimized"
	GroupSkipped   = "skipped"
	GroupError     = "error"
)

// TripSource loads a tenant's trips whose pickup date lies in [from, to].
type TripSource interface {
	ListTrips(ctx context.Context, tenantID string, from, to time.Time) ([]model.Trip, error)
}

// Group is one driver's trips on one date.
type Group struct {
	DriverID string
	Date     string
	Trips    []model.Trip
}

// GroupTrips buckets trips by (driver, UTC date). Trips with no driver and
// cancelled trips are ignored. Groups are ordered by date then driver.
func GroupTrips(trips []model.Trip) []Group {
	idx := map[[2]string]int{}
	var out []Group
	for _, t := range trips {
		if t.DriverID == "" || t.Cancelled() {
			continue
		}
		k := [2]string{t.DriverID, t.Date()}
		i, ok := idx[k]
		if !ok {
			i = len(out)
			idx[k] = i
			out = append(out, Group{DriverID: t.DriverID, Date: k[1]})
		}
		out[i].Trips = append(out[i].Trips, t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].DriverID < out[j].DriverID
	})
	return out
}

type GroupResult struct {
	DriverID  string        `json:"driverId"`
	Date      string        `json:"date"`
	Status    string        `json:"status"`
	TripCount int           `json:"tripCount"`
	Savings   model.Savings `json:"savings"`
	Method    string        `json:"method,omitempty"`
	Reliable  bool          `json:"reliable"`
	Warning   string        `json:"warning,omitempty"`
	Error     string        `json:"error,omitempty"`
}

type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// BatchSummary aggregates a batch run. TripCount and DriverCount only cover
// groups that did not fail.
type BatchSummary struct {
	BatchID      string        `json:"batchId"`
	TenantID     string        `json:"tenantId"`
	TripCount    int           `json:"tripCount"`
	DriverCount  int           `json:"driverCount"`
	GroupCount   int           `json:"groupCount"`
	FailedGroups int           `json:"failedGroups"`
	DateRange    DateRange     `json:"dateRange"`
	Groups       []GroupResult `json:"groups"`
	TotalSavings model.Savings `json:"totalSavings"`
	StartedAt    time.Time     `json:"startedAt"`
	FinishedAt   time.Time     `json:"finishedAt"`
}

// Batch runs the optimizer over every driver-date group in a range.
type Batch struct {
	Optimizer    *Optimizer
	Trips        TripSource
	Workers      int
	MaxRangeDays int
	// OnGroup, when set, is called once per finished group. Calls may be concurrent.
	OnGroup func(batchID string, r GroupResult)
}

// ParseRange validates a YYYY-MM-DD range with start <= end and at most
// maxDays days (inclusive). maxDays <= 0 disables the length check.
func ParseRange(start, end string, maxDays int) (time.Time, time.Time, error) {
	from, err := model.ParseDate("startDate", start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := model.ParseDate("endDate", end)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, &model.ValidationError{Field: "endDate", Reason: "must not be before startDate"}
	}
	if days := int(to.Sub(from).Hours()/24) + 1; maxDays > 0 && days > maxDays {
		return time.Time{}, time.Time{}, &model.ValidationError{Field: "endDate", Reason: fmt.Sprintf("range of %d days exceeds %d", days, maxDays)}
	}
	return from, to, nil
}

// Run optimizes each group independently. A failing group is reported in the
// summary and never aborts the run; only range validation and loading the
// trips can fail Run itself.
func (b *Batch) Run(ctx context.Context, tenantID, start, end string) (sum BatchSummary, err error) {
	defer obs.Time(ctx, "opt.Batch.Run")(&err)
	maxDays := b.MaxRangeDays
	if maxDays == 0 {
		maxDays = DefaultMaxRangeDays
	}
	from, to, err := ParseRange(start, end, maxDays)
	if err != nil {
		return BatchSummary{}, err
	}
	trips, err := b.Trips.ListTrips(ctx, tenantID, from, to)
	if err != nil {
		return BatchSummary{}, fmt.Errorf("load trips: %w", err)
	}

	sum = BatchSummary{
		BatchID:   uuid.NewString(),
		TenantID:  tenantID,
		DateRange: DateRange{Start: from.Format(model.DateLayout), End: to.Format(model.DateLayout)},
		StartedAt: time.Now().UTC(),
	}
	groups := GroupTrips(trips)
	results := make([]GroupResult, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers(b.Workers))
	for i, grp := range groups {
		g.Go(func() error {
			results[i] = b.runGroup(gctx, grp)
			metrics.BatchGroups.WithLabelValues(results[i].Status).Inc()
			if b.OnGroup != nil {
				b.OnGroup(sum.BatchID, results[i])
			}
			return nil
		})
	}
	_ = g.Wait()

	drivers := map[string]struct{}{}
	for _, r := range results {
		if r.Status == GroupError {
			sum.FailedGroups++
			log.Printf("req_id=%s op=batch.group batch=%s driver=%s date=%s err=%s", obs.RequestID(ctx), sum.BatchID, r.DriverID, r.Date, r.Error)
			continue
		}
		sum.TripCount += r.TripCount
		drivers[r.DriverID] = struct{}{}
		sum.TotalSavings.Distance += r.Savings.Distance
		sum.TotalSavings.Time += r.Savings.Time
	}
	sum.DriverCount = len(drivers)
	sum.GroupCount = len(results)
	sum.Groups = results
	sum.FinishedAt = time.Now().UTC()
	return sum, nil
}

func (b *Batch) runGroup(ctx context.Context, grp Group) GroupResult {
	r := GroupResult{DriverID: grp.DriverID, Date: grp.Date, TripCount: len(grp.Trips)}
	if err := ctx.Err(); err != nil {
		r.Status, r.Error = GroupError, err.Error()
		return r
	}
	if len(grp.Trips) < 2 {
		r.Status = GroupSkipped
		return r
	}
	res, err := b.Optimizer.Optimize(ctx, grp.DriverID, grp.Date, grp.Trips)
	if err != nil {
		r.Status, r.Error = GroupError, err.Error()
		return r
	}
	r.Status = GroupOptimized
	r.Savings = res.Savings
	r.Method, r.Reliable, r.Warning = res.Method, res.Reliable, res.Warning
	return r
}

func workers(n int) int {
	if n <= 0 {
		return DefaultWorkers
	}
	return n
}
