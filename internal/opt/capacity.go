package opt

import (
	"fmt"
	"math"
	"time"

	"routecap/internal/distance"
	"routecap/internal/metrics"
	"routecap/internal/model"
)

const (
	DefaultPackTolerance   = 15 * time.Minute
	DefaultPackProximityKm = 5.0
	DefaultVehicleCapacity = 8
)

// Planner packs a day's trips into shared vehicle slots.
type Planner struct {
	PickupTolerance        time.Duration
	DestinationProximityKm float64
}

type CapacityStatistics struct {
	TotalTrips          int     `json:"totalTrips"`
	TotalPassengers     int     `json:"totalPassengers"`
	VehiclesNeeded      int     `json:"vehiclesNeeded"`
	VehiclesSaved       int     `json:"vehiclesSaved"`
	AverageCapacityUsed float64 `json:"averageCapacityUsed"`
	Efficiency          float64 `json:"efficiency"`
	UnplacedTrips       int     `json:"unplacedTrips"`
}

type CapacityPlan struct {
	Groups     []model.CapacityGroup `json:"routes"`
	Unplaced   []model.Trip          `json:"unplaced"`
	Statistics CapacityStatistics    `json:"statistics"`
}

// Pack assigns trips first-fit in pickup order. A trip joins the first group
// with enough free seats whose members are all within the pickup tolerance
// and destination proximity of it. Trips larger than a whole vehicle are
// returned as unplaced. Cancelled trips are left out entirely.
func (p Planner) Pack(trips []model.Trip, capacity int) (CapacityPlan, error) {
	if capacity <= 0 {
		return CapacityPlan{}, &model.ValidationError{Field: "vehicleCapacity", Reason: "must be > 0"}
	}
	trips = model.ActiveTrips(trips)
	for _, t := range trips {
		if err := t.Validate(); err != nil {
			return CapacityPlan{}, err
		}
	}
	tol := p.PickupTolerance
	if tol <= 0 {
		tol = DefaultPackTolerance
	}
	prox := p.DestinationProximityKm
	if prox <= 0 {
		prox = DefaultPackProximityKm
	}

	plan := CapacityPlan{Groups: []model.CapacityGroup{}, Unplaced: []model.Trip{}}
	for _, t := range SortByPickup(trips) {
		plan.Statistics.TotalTrips++
		plan.Statistics.TotalPassengers += t.PassengerCount
		if t.PassengerCount > capacity {
			plan.Unplaced = append(plan.Unplaced, t)
			continue
		}
		placed := false
		for i := range plan.Groups {
			g := &plan.Groups[i]
			if capacity-g.OccupiedSeats < t.PassengerCount || !fitsGroup(g.Trips, t, tol, prox) {
				continue
			}
			g.Trips = append(g.Trips, t)
			g.OccupiedSeats += t.PassengerCount
			g.EmptySeats = capacity - g.OccupiedSeats
			placed = true
			break
		}
		if !placed {
			plan.Groups = append(plan.Groups, model.CapacityGroup{
				VehicleSlotID: fmt.Sprintf("slot-%d", len(plan.Groups)+1),
				Trips:         []model.Trip{t},
				OccupiedSeats: t.PassengerCount,
				EmptySeats:    capacity - t.PassengerCount,
			})
		}
	}

	st := &plan.Statistics
	st.VehiclesNeeded = len(plan.Groups)
	st.UnplacedTrips = len(plan.Unplaced)
	st.VehiclesSaved = st.TotalTrips - st.UnplacedTrips - st.VehiclesNeeded
	if st.VehiclesNeeded > 0 {
		occupied := 0
		for _, g := range plan.Groups {
			occupied += g.OccupiedSeats
		}
		st.AverageCapacityUsed = round2(float64(occupied) / float64(st.VehiclesNeeded))
		st.Efficiency = round2(math.Max(0, math.Min(100, float64(occupied)/float64(st.VehiclesNeeded)/float64(capacity)*100)))
		metrics.CapacityEfficiency.Observe(st.Efficiency)
	}
	return plan, nil
}

func fitsGroup(members []model.Trip, t model.Trip, tol time.Duration, proxKm float64) bool {
	for _, m := range members {
		if absDuration(m.PickupTime().Sub(t.PickupTime())) > tol {
			return false
		}
		if distance.HaversineKm(m.Destination(), t.Destination()) > proxKm {
			return false
		}
	}
	return true
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
