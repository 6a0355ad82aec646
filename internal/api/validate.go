package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"routecap/internal/model"
	"routecap/internal/opt"
)

// tripRef accepts both trip_id and tripId.
type tripRef struct {
	TripID string `json:"trip_id"`
	ID     string `json:"tripId"`
}

func (t tripRef) id() string {
	if t.TripID != "" {
		return strings.TrimSpace(t.TripID)
	}
	return strings.TrimSpace(t.ID)
}

type optimizeRequest struct {
	DriverID string    `json:"driverId"`
	Date     string    `json:"date"`
	Trips    []tripRef `json:"trips"`
}

// tripIDs validates the request and returns the referenced trip ids in order.
func (req optimizeRequest) tripIDs() ([]string, error) {
	if strings.TrimSpace(req.DriverID) == "" {
		return nil, &model.ValidationError{Field: "driverId", Reason: "required"}
	}
	if _, err := model.ParseDate("date", req.Date); err != nil {
		return nil, err
	}
	switch len(req.Trips) {
	case 0:
		return nil, &model.ValidationError{Field: "trips", Reason: "required"}
	case 1:
		return nil, &model.InsufficientStopsError{Count: 1}
	}
	ids := make([]string, 0, len(req.Trips))
	seen := map[string]bool{}
	for i, t := range req.Trips {
		id := t.id()
		if id == "" {
			return nil, &model.ValidationError{Field: "trips", Reason: "entry " + strconv.Itoa(i) + " has no trip_id"}
		}
		if seen[id] {
			return nil, &model.ValidationError{Field: "trips", Reason: "duplicate trip_id " + id}
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids, nil
}

// checkTrips rejects trips assigned to another driver or picked up on another
// UTC day than the request names.
func (req optimizeRequest) checkTrips(trips []model.Trip) error {
	day, err := model.ParseDate("date", req.Date)
	if err != nil {
		return err
	}
	driver, date := strings.TrimSpace(req.DriverID), day.Format(model.DateLayout)
	for _, t := range trips {
		if t.DriverID != driver {
			return &model.ValidationError{Field: "trips", Reason: "trip " + t.ID + " is assigned to driver " + strconv.Quote(t.DriverID) + ", not " + strconv.Quote(driver)}
		}
		if t.Date() != date {
			return &model.ValidationError{Field: "trips", Reason: "trip " + t.ID + " is scheduled on " + t.Date() + ", not " + date}
		}
	}
	return nil
}

type batchRequest struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

type capacityRequest struct {
	Date            string `json:"date"`
	VehicleCapacity *int   `json:"vehicleCapacity"`
}

// dateRangeQuery reads and validates startDate/endDate query parameters.
func (s *Server) dateRangeQuery(r *http.Request) (start, end string, from, to time.Time, err error) {
	q := r.URL.Query()
	start, end = q.Get("startDate"), q.Get("endDate")
	from, to, err = opt.ParseRange(start, end, s.maxRangeDays())
	return start, end, from, to, err
}

func (s *Server) maxRangeDays() int {
	if n := s.Config.Optimizer.MaxRangeDays; n > 0 {
		return n
	}
	return opt.DefaultMaxRangeDays
}
