package model

import (
    "math"
    "strings"
    "time"
)

// DateLayout is the calendar-date format used by trips, batches and query params.
const DateLayout = "2006-01-02"

const (
    RolePickup  = "pickup"
    RoleDropoff = "dropoff"
)

// Coordinate is a WGS84 point.
type Coordinate struct {
    Lat float64 `json:"lat" yaml:"lat"`
    Lng float64 `json:"lng" yaml:"lng"`
}

// Valid reports whether c is a finite point inside the lat/lng ranges.
func (c Coordinate) Valid() bool {
    if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lng, 0) { return false }
    return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

type Stop struct {
    ID            string     `json:"id,omitempty" yaml:"id"`
    Location      Coordinate `json:"location" yaml:"location"`
    Address       string     `json:"address,omitempty" yaml:"address"`
    ScheduledTime time.Time  `json:"scheduledTime" yaml:"scheduledTime"`
    Role          string     `json:"role" yaml:"role"`
}

// Trip is read-only input owned by the scheduling layer.
type Trip struct {
    ID                   string   `json:"tripId" yaml:"id"`
    DriverID             string   `json:"driverId,omitempty" yaml:"driverId"`
    VehicleID            string   `json:"vehicleId,omitempty" yaml:"vehicleId"`
    CustomerID           string   `json:"customerId,omitempty" yaml:"customerId"`
    Pickup               Stop     `json:"pickup" yaml:"pickup"`
    Dropoff              *Stop    `json:"dropoff,omitempty" yaml:"dropoff"`
    PassengerCount       int      `json:"passengerCount" yaml:"passengerCount"`
    Price                float64  `json:"price,omitempty" yaml:"price"`
    Status               string   `json:"status,omitempty" yaml:"status"`
    MobilityRequirements []string `json:"mobilityRequirements,omitempty" yaml:"mobilityRequirements"`
}

// Validate checks the fields the engine relies on. Coordinates are checked
// separately by the optimizer so a bad point surfaces as a computation failure.
func (t Trip) Validate() error {
    if strings.TrimSpace(t.ID) == "" { return &ValidationError{Field: "tripId", Reason: "required"} }
    if t.Pickup.ScheduledTime.IsZero() { return &ValidationError{Field: "pickup.scheduledTime", Reason: "required for trip " + t.ID} }
    if t.PassengerCount < 1 { return &ValidationError{Field: "passengerCount", Reason: "must be >= 1 for trip " + t.ID} }
    return nil
}

// Date is the UTC pickup calendar date in DateLayout, the same day the stores select by.
func (t Trip) Date() string { return t.Pickup.ScheduledTime.UTC().Format(DateLayout) }

// Cancelled reports whether the trip was called off. Cancelled trips take no seats and no route time.
func (t Trip) Cancelled() bool {
    s := strings.ToLower(strings.TrimSpace(t.Status))
    return s == "cancelled" || s == "canceled"
}

// ActiveTrips returns trips without the cancelled ones, keeping their order.
func ActiveTrips(trips []Trip) []Trip {
    out := make([]Trip, 0, len(trips))
    for _, t := range trips {
        if !t.Cancelled() { out = append(out, t) }
    }
    return out
}

// PickupTime returns the scheduled pickup time.
func (t Trip) PickupTime() time.Time { return t.Pickup.ScheduledTime }

// Destination is the dropoff location, or the pickup when the trip has no dropoff.
func (t Trip) Destination() Coordinate {
    if t.Dropoff != nil { return t.Dropoff.Location }
    return t.Pickup.Location
}

// Stops returns the trip's pickup followed by its dropoff, if any.
func (t Trip) Stops() []Stop {
    if t.Dropoff == nil { return []Stop{t.Pickup} }
    return []Stop{t.Pickup, *t.Dropoff}
}

type Vehicle struct {
    ID       string   `json:"id" yaml:"id"`
    Capacity int      `json:"capacity" yaml:"capacity"`
    Features []string `json:"features,omitempty" yaml:"features"`
}

// HasFeatures reports whether every requirement is among the vehicle's features.
func (v Vehicle) HasFeatures(reqs []string) bool {
    for _, r := range reqs {
        found := false
        for _, f := range v.Features {
            if strings.EqualFold(f, r) { found = true; break }
        }
        if !found { return false }
    }
    return true
}

// CustomerRequest is an unassigned ride request that may be added to an existing leg.
type CustomerRequest struct {
    ID                   string   `json:"requestId" yaml:"id"`
    CustomerID           string   `json:"customerId" yaml:"customerId"`
    Pickup               Stop     `json:"pickup" yaml:"pickup"`
    Dropoff              Stop     `json:"dropoff" yaml:"dropoff"`
    PassengerCount       int      `json:"passengerCount" yaml:"passengerCount"`
    MobilityRequirements []string `json:"mobilityRequirements,omitempty" yaml:"mobilityRequirements"`
}

// TenantSettings carries per-tenant fare and notification configuration.
type TenantSettings struct {
    FarePerPassenger       float64 `json:"farePerPassenger" yaml:"farePerPassenger"`
    Currency               string  `json:"currency,omitempty" yaml:"currency"`
    DefaultVehicleCapacity int     `json:"defaultVehicleCapacity,omitempty" yaml:"defaultVehicleCapacity"`
    WebhookURL             string  `json:"webhookUrl,omitempty" yaml:"webhookUrl"`
    WebhookSecret          string  `json:"-" yaml:"webhookSecret"`
}

type Savings struct {
    Distance float64 `json:"distance"`
    Time     float64 `json:"time"`
}

// OptimizationResult is the outcome of reordering one driver-day.
type OptimizationResult struct {
    DriverID          string  `json:"driverId"`
    Date              string  `json:"date"`
    OriginalOrder     []Trip  `json:"originalOrder"`
    OptimizedOrder    []Trip  `json:"optimizedOrder"`
    Savings           Savings `json:"savings"`
    OriginalDistance  float64 `json:"originalDistance"`
    OptimizedDistance float64 `json:"optimizedDistance"`
    OriginalDuration  float64 `json:"originalDuration"`
    OptimizedDuration float64 `json:"optimizedDuration"`
    Method            string  `json:"method"`
    Reliable          bool    `json:"reliable"`
    Warning           string  `json:"warning,omitempty"`
}

const (
    ScoreOptimal           = "optimal"
    ScoreGood              = "good"
    ScoreNeedsOptimization = "needs-optimization"
    ScoreError             = "error"
)

type OptimizationScore struct {
    DriverID         string  `json:"driverId"`
    Date             string  `json:"date"`
    Score            *int    `json:"score"`
    Status           string  `json:"status"`
    TripCount        int     `json:"tripCount"`
    CurrentDistance  float64 `json:"currentDistance"`
    OptimalDistance  float64 `json:"optimalDistance"`
    SavingsPotential float64 `json:"savingsPotential"`
    Error            string  `json:"error,omitempty"`
}

// CapacityGroup is a set of trips sharing one vehicle slot.
type CapacityGroup struct {
    VehicleSlotID string `json:"vehicleSlotId"`
    Trips         []Trip `json:"trips"`
    OccupiedSeats int    `json:"occupiedSeats"`
    EmptySeats    int    `json:"emptySeats"`
}

const (
    TierHighlyRecommended = "highly_recommended"
    TierRecommended       = "recommended"
    TierAcceptable        = "acceptable"
)

// CombinationOpportunity is recomputed per request and never persisted.
type CombinationOpportunity struct {
    TripID                     string  `json:"tripId"`
    CompatibleCustomerID       string  `json:"compatibleCustomerId"`
    RequestID                  string  `json:"requestId"`
    CompatibilityScore         int     `json:"compatibilityScore"`
    Recommendation             string  `json:"recommendation"`
    PotentialAdditionalRevenue float64 `json:"potentialAdditionalRevenue"`
    PickupDeltaMinutes         float64 `json:"pickupDeltaMinutes"`
    DestinationDistanceKm      float64 `json:"destinationDistanceKm"`
}

// ParseDate parses a YYYY-MM-DD value in UTC.
func ParseDate(field, v string) (time.Time, error) {
    v = strings.TrimSpace(v)
    if v == "" { return time.Time{}, &ValidationError{Field: field, Reason: "required"} }
    d, err := time.Parse(DateLayout, v)
    if err != nil { return time.Time{}, &ValidationError{Field: field, Reason: "must be YYYY-MM-DD"} }
    return d, nil
}
