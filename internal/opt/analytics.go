package opt

import (
	"sort"

	"routecap/internal/model"
)

type Overview struct {
	TotalTrips                int     `json:"totalTrips"`
	TotalDrivers              int     `json:"totalDrivers"`
	TotalPassengers           int     `json:"totalPassengers"`
	TotalRevenue              float64 `json:"totalRevenue"`
	AverageTripsPerDriver     float64 `json:"averageTripsPerDriver"`
	AverageOptimizationScore  float64 `json:"averageOptimizationScore"`
	RoutesNeedingOptimization int     `json:"routesNeedingOptimization"`
}

type DriverUtilization struct {
	DriverID    string  `json:"driverId"`
	Trips       int     `json:"trips"`
	Passengers  int     `json:"passengers"`
	ActiveDays  int     `json:"activeDays"`
	Revenue     float64 `json:"revenue"`
	TripsPerDay float64 `json:"tripsPerDay"`
}

type PeakHour struct {
	Hour      int `json:"hour"`
	TripCount int `json:"tripCount"`
}

type Analytics struct {
	Overview          Overview            `json:"overview"`
	DriverUtilization []DriverUtilization `json:"driverUtilization"`
	PeakHours         []PeakHour          `json:"peakHours"`
	RecentBatches     []RunRecord         `json:"recentBatches,omitempty"`
}

// Analyze summarizes trips and their optimization scores. Cancelled trips are
// left out of every figure.
func Analyze(trips []model.Trip, scores []model.OptimizationScore) Analytics {
	out := Analytics{DriverUtilization: []DriverUtilization{}, PeakHours: []PeakHour{}}
	drivers := map[string]*DriverUtilization{}
	days := map[string]map[string]struct{}{}
	hours := map[int]int{}

	for _, t := range trips {
		if t.Cancelled() {
			continue
		}
		out.Overview.TotalTrips++
		out.Overview.TotalPassengers += t.PassengerCount
		out.Overview.TotalRevenue += t.Price
		hours[t.PickupTime().UTC().Hour()]++
		if t.DriverID == "" {
			continue
		}
		d, ok := drivers[t.DriverID]
		if !ok {
			d = &DriverUtilization{DriverID: t.DriverID}
			drivers[t.DriverID] = d
			days[t.DriverID] = map[string]struct{}{}
		}
		d.Trips++
		d.Passengers += t.PassengerCount
		d.Revenue += t.Price
		days[t.DriverID][t.Date()] = struct{}{}
	}

	for id, d := range drivers {
		d.ActiveDays = len(days[id])
		d.TripsPerDay = round2(float64(d.Trips) / float64(d.ActiveDays))
		d.Revenue = round2(d.Revenue)
		out.DriverUtilization = append(out.DriverUtilization, *d)
	}
	sort.Slice(out.DriverUtilization, func(i, j int) bool {
		a, b := out.DriverUtilization[i], out.DriverUtilization[j]
		if a.Trips != b.Trips {
			return a.Trips > b.Trips
		}
		return a.DriverID < b.DriverID
	})

	for h, n := range hours {
		out.PeakHours = append(out.PeakHours, PeakHour{Hour: h, TripCount: n})
	}
	sort.Slice(out.PeakHours, func(i, j int) bool {
		if out.PeakHours[i].TripCount != out.PeakHours[j].TripCount {
			return out.PeakHours[i].TripCount > out.PeakHours[j].TripCount
		}
		return out.PeakHours[i].Hour < out.PeakHours[j].Hour
	})

	out.Overview.TotalDrivers = len(drivers)
	out.Overview.TotalRevenue = round2(out.Overview.TotalRevenue)
	if len(drivers) > 0 {
		assigned := 0
		for _, d := range drivers {
			assigned += d.Trips
		}
		out.Overview.AverageTripsPerDriver = round2(float64(assigned) / float64(len(drivers)))
	}

	scored, sum := 0, 0
	for _, s := range scores {
		if s.Score == nil {
			continue
		}
		scored++
		sum += *s.Score
		if s.Status == model.ScoreNeedsOptimization {
			out.Overview.RoutesNeedingOptimization++
		}
	}
	if scored > 0 {
		out.Overview.AverageOptimizationScore = round2(float64(sum) / float64(scored))
	}
	return out
}
