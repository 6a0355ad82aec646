package opt

import (
	"math"
	"sort"
	"time"

	"routecap/internal/distance"
	"routecap/internal/model"
)

const (
	DefaultMatchTolerance    = 30 * time.Minute
	DefaultMatchProximityKm  = 5.0
	DefaultHistorySaturation = 5
	DefaultHistoryLookback   = 90 * 24 * time.Hour
	DefaultLowUtilization    = 0.5
	minOpportunityScore      = 40
)

// Matcher finds unassigned customer requests that could ride along on
// existing vehicle legs with free seats.
type Matcher struct {
	PickupTolerance   time.Duration
	ProximityKm       float64
	TimeWeight        float64
	DestWeight        float64
	HistoryWeight     float64
	HistorySaturation int
	HistoryLookback   time.Duration
	DefaultCapacity   int
	DefaultFare       float64
	LowUtilization    float64
}

// NewMatcher returns a Matcher with the default tolerances and 0.4/0.4/0.2 weights.
func NewMatcher(defaultCapacity int, defaultFare float64) *Matcher {
	return &Matcher{
		PickupTolerance:   DefaultMatchTolerance,
		ProximityKm:       DefaultMatchProximityKm,
		TimeWeight:        0.4,
		DestWeight:        0.4,
		HistoryWeight:     0.2,
		HistorySaturation: DefaultHistorySaturation,
		HistoryLookback:   DefaultHistoryLookback,
		DefaultCapacity:   defaultCapacity,
		DefaultFare:       defaultFare,
		LowUtilization:    DefaultLowUtilization,
	}
}

// MatchInput is everything the matcher needs for one tenant-date.
type MatchInput struct {
	Date     string
	Trips    []model.Trip
	Vehicles []model.Vehicle
	Requests []model.CustomerRequest
	// History holds each customer's past trips, keyed by customer id.
	History  map[string][]model.Trip
	Settings model.TenantSettings
}

// Leg is a cluster of one vehicle's trips departing around the same time.
type Leg struct {
	ID          string
	VehicleID   string
	DriverID    string
	Trips       []model.Trip
	Capacity    int
	Occupied    int
	Features    []string
	Pickup      time.Time
	Origin      model.Coordinate
	Destination model.Coordinate
}

func (l Leg) EmptySeats() int { return max(0, l.Capacity-l.Occupied) }

func (l Leg) Utilization() float64 {
	if l.Capacity <= 0 {
		return 0
	}
	return float64(l.Occupied) / float64(l.Capacity)
}

func (l Leg) Group() model.CapacityGroup {
	return model.CapacityGroup{VehicleSlotID: l.ID, Trips: l.Trips, OccupiedSeats: l.Occupied, EmptySeats: l.EmptySeats()}
}

type OpportunitySummary struct {
	TotalOpportunities    int            `json:"totalOpportunities"`
	ByTier                map[string]int `json:"byTier"`
	TotalPotentialRevenue float64        `json:"totalPotentialRevenue"`
	LegsScanned           int            `json:"legsScanned"`
	CandidatesScanned     int            `json:"candidatesScanned"`
}

type MatchResult struct {
	Opportunities []model.CombinationOpportunity `json:"opportunities"`
	Summary       OpportunitySummary             `json:"summary"`
}

type CapacityAlert struct {
	Leg           model.CapacityGroup            `json:"leg"`
	VehicleID     string                         `json:"vehicleId,omitempty"`
	DriverID      string                         `json:"driverId,omitempty"`
	Utilization   float64                        `json:"utilization"`
	Opportunities []model.CombinationOpportunity `json:"opportunities"`
}

type AlertSummary struct {
	TotalAlerts             int     `json:"totalAlerts"`
	TotalEmptySeats         int     `json:"totalEmptySeats"`
	AlertsWithOpportunities int     `json:"alertsWithOpportunities"`
	PotentialRevenue        float64 `json:"potentialRevenue"`
}

type AlertResult struct {
	Alerts  []CapacityAlert `json:"alerts"`
	Summary AlertSummary    `json:"summary"`
}

// BuildLegs clusters trips per vehicle: a trip joins the first leg of the same
// vehicle whose first pickup is within tol of its own. Trips without a vehicle
// are keyed by driver. Cancelled trips are ignored.
func BuildLegs(trips []model.Trip, vehicles []model.Vehicle, tol time.Duration, defaultCapacity int) []Leg {
	byID := make(map[string]model.Vehicle, len(vehicles))
	for _, v := range vehicles {
		byID[v.ID] = v
	}
	var legs []Leg
	for _, t := range SortByPickup(trips) {
		if t.Cancelled() {
			continue
		}
		key := t.VehicleID
		if key == "" {
			if t.DriverID == "" {
				continue
			}
			key = "driver:" + t.DriverID
		}
		placed := false
		for i := range legs {
			l := &legs[i]
			if l.key() == key && absDuration(t.PickupTime().Sub(l.Pickup)) <= tol {
				l.Trips = append(l.Trips, t)
				l.Occupied += t.PassengerCount
				placed = true
				break
			}
		}
		if placed {
			continue
		}
		l := Leg{
			ID:          t.ID,
			VehicleID:   t.VehicleID,
			DriverID:    t.DriverID,
			Trips:       []model.Trip{t},
			Occupied:    t.PassengerCount,
			Capacity:    defaultCapacity,
			Pickup:      t.PickupTime(),
			Origin:      t.Pickup.Location,
			Destination: t.Destination(),
		}
		if v, ok := byID[t.VehicleID]; ok {
			if v.Capacity > 0 {
				l.Capacity = v.Capacity
			}
			l.Features = v.Features
		}
		legs = append(legs, l)
	}
	return legs
}

func (l Leg) key() string {
	if l.VehicleID != "" {
		return l.VehicleID
	}
	return "driver:" + l.DriverID
}

// Find scores every open request against every leg with free seats.
func (m *Matcher) Find(in MatchInput) MatchResult {
	legs := BuildLegs(in.Trips, in.Vehicles, m.tolerance(), m.capacity(in.Settings))
	res := MatchResult{
		Opportunities: []model.CombinationOpportunity{},
		Summary:       OpportunitySummary{ByTier: map[string]int{model.TierHighlyRecommended: 0, model.TierRecommended: 0, model.TierAcceptable: 0}},
	}
	requests := m.requestsOn(in)
	res.Summary.CandidatesScanned = len(requests)
	for _, l := range legs {
		if l.EmptySeats() == 0 {
			continue
		}
		res.Summary.LegsScanned++
		res.Opportunities = append(res.Opportunities, m.matchLeg(l, requests, in)...)
	}
	sortOpportunities(res.Opportunities)
	for _, o := range res.Opportunities {
		res.Summary.TotalOpportunities++
		res.Summary.ByTier[o.Recommendation]++
		res.Summary.TotalPotentialRevenue += o.PotentialAdditionalRevenue
	}
	res.Summary.TotalPotentialRevenue = round2(res.Summary.TotalPotentialRevenue)
	return res
}

// Alerts reports legs whose utilization is below LowUtilization, each with its
// ranked opportunities. driverID, when set, restricts the legs considered.
func (m *Matcher) Alerts(in MatchInput, driverID string) AlertResult {
	legs := BuildLegs(in.Trips, in.Vehicles, m.tolerance(), m.capacity(in.Settings))
	requests := m.requestsOn(in)
	threshold := m.LowUtilization
	if threshold <= 0 {
		threshold = DefaultLowUtilization
	}
	res := AlertResult{Alerts: []CapacityAlert{}}
	for _, l := range legs {
		if driverID != "" && l.DriverID != driverID {
			continue
		}
		if l.EmptySeats() == 0 || l.Utilization() >= threshold {
			continue
		}
		opps := m.matchLeg(l, requests, in)
		sortOpportunities(opps)
		a := CapacityAlert{Leg: l.Group(), VehicleID: l.VehicleID, DriverID: l.DriverID, Utilization: round2(l.Utilization()), Opportunities: opps}
		res.Alerts = append(res.Alerts, a)

		res.Summary.TotalAlerts++
		res.Summary.TotalEmptySeats += l.EmptySeats()
		if len(opps) > 0 {
			res.Summary.AlertsWithOpportunities++
		}
		// only as many riders as there are free seats
		for i := 0; i < len(opps) && i < l.EmptySeats(); i++ {
			res.Summary.PotentialRevenue += opps[i].PotentialAdditionalRevenue
		}
	}
	res.Summary.PotentialRevenue = round2(res.Summary.PotentialRevenue)
	return res
}

func (m *Matcher) matchLeg(l Leg, requests []model.CustomerRequest, in MatchInput) []model.CombinationOpportunity {
	tol := m.tolerance()
	prox := m.proximity()
	fare := in.Settings.FarePerPassenger
	if fare <= 0 {
		fare = m.DefaultFare
	}
	onLeg := map[string]bool{}
	for _, t := range l.Trips {
		if t.CustomerID != "" {
			onLeg[t.CustomerID] = true
		}
	}

	var out []model.CombinationOpportunity
	for _, r := range requests {
		if onLeg[r.CustomerID] {
			continue
		}
		if max(1, r.PassengerCount) > l.EmptySeats() {
			continue
		}
		if !(model.Vehicle{Features: l.Features}).HasFeatures(r.MobilityRequirements) {
			continue
		}
		dt := absDuration(r.Pickup.ScheduledTime.Sub(l.Pickup))
		if dt > tol {
			continue
		}
		d := math.Min(
			distance.HaversineKm(r.Dropoff.Location, l.Destination),
			distance.PointToSegmentKm(r.Dropoff.Location, l.Origin, l.Destination),
		)
		if d > prox {
			continue
		}

		timeScore := 100 * (1 - dt.Minutes()/tol.Minutes())
		destScore := 100 * (1 - d/prox)
		histScore := 100 * m.historyRatio(in.History[r.CustomerID], l.Destination, prox)
		score := int(math.Round(m.TimeWeight*timeScore + m.DestWeight*destScore + m.HistoryWeight*histScore))
		score = max(0, min(100, score))
		tier := Tier(score)
		if tier == "" {
			continue
		}
		out = append(out, model.CombinationOpportunity{
			TripID:                     l.ID,
			CompatibleCustomerID:       r.CustomerID,
			RequestID:                  r.ID,
			CompatibilityScore:         score,
			Recommendation:             tier,
			PotentialAdditionalRevenue: fare,
			PickupDeltaMinutes:         round2(dt.Minutes()),
			DestinationDistanceKm:      round2(d),
		})
	}
	return out
}

// Tier buckets a compatibility score; scores below 40 have no tier.
func Tier(score int) string {
	switch {
	case score >= 80:
		return model.TierHighlyRecommended
	case score >= 60:
		return model.TierRecommended
	case score >= minOpportunityScore:
		return model.TierAcceptable
	default:
		return ""
	}
}

func (m *Matcher) historyRatio(past []model.Trip, dest model.Coordinate, proxKm float64) float64 {
	sat := m.HistorySaturation
	if sat <= 0 {
		sat = DefaultHistorySaturation
	}
	n := 0
	for _, t := range past {
		if distance.HaversineKm(t.Destination(), dest) <= proxKm {
			n++
		}
	}
	return math.Min(1, float64(n)/float64(sat))
}

func (m *Matcher) requestsOn(in MatchInput) []model.CustomerRequest {
	if in.Date == "" {
		return in.Requests
	}
	out := make([]model.CustomerRequest, 0, len(in.Requests))
	for _, r := range in.Requests {
		if r.Pickup.ScheduledTime.UTC().Format(model.DateLayout) == in.Date {
			out = append(out, r)
		}
	}
	return out
}

func (m *Matcher) tolerance() time.Duration {
	if m.PickupTolerance <= 0 {
		return DefaultMatchTolerance
	}
	return m.PickupTolerance
}

func (m *Matcher) proximity() float64 {
	if m.ProximityKm <= 0 {
		return DefaultMatchProximityKm
	}
	return m.ProximityKm
}

func (m *Matcher) capacity(s model.TenantSettings) int {
	if s.DefaultVehicleCapacity > 0 {
		return s.DefaultVehicleCapacity
	}
	if m.DefaultCapacity > 0 {
		return m.DefaultCapacity
	}
	return DefaultVehicleCapacity
}

func sortOpportunities(o []model.CombinationOpportunity) {
	sort.SliceStable(o, func(i, j int) bool {
		if o[i].CompatibilityScore != o[j].CompatibilityScore {
			return o[i].CompatibilityScore > o[j].CompatibilityScore
		}
		if o[i].TripID != o[j].TripID {
			return o[i].TripID < o[j].TripID
		}
		if o[i].CompatibleCustomerID != o[j].CompatibleCustomerID {
			return o[i].CompatibleCustomerID < o[j].CompatibleCustomerID
		}
		return o[i].RequestID < o[j].RequestID
	})
}
