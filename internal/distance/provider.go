// Package distance computes pairwise travel distance and duration between stops.
//
// Two providers implement Provider: ExternalMapProvider (road network, via the
// Google Distance Matrix API) and GeometricProvider (haversine). Selector picks
// between them per call and always returns a usable matrix.
package distance

import (
	"context"

	"routecap/internal/model"
)

const (
	MethodExternal  = "external"
	MethodGeometric = "geometric"
)

// Provider computes a square matrix over stops. Implementations require at
// least two stops.
type Provider interface {
	Name() string
	ComputeMatrix(ctx context.Context, stops []model.Stop) (Matrix, error)
}

// Entry is one cell of a Matrix.
type Entry struct {
	DistanceMeters  float64 `json:"distanceMeters"`
	DurationSeconds float64 `json:"durationSeconds"`
	Reliable        bool    `json:"reliable"`
}

// Matrix maps (from, to) stop indexes to an Entry. Method and Reliable describe
// the provider that produced it; Warning is set when the result is approximate.
type Matrix struct {
	Entries  [][]Entry
	Method   string
	Reliable bool
	Warning  string
}

func (m Matrix) Size() int { return len(m.Entries) }

func (m Matrix) Distance(i, j int) float64 { return m.Entries[i][j].DistanceMeters }

func (m Matrix) Duration(i, j int) float64 { return m.Entries[i][j].DurationSeconds }

func newEntries(n int) [][]Entry {
	out := make([][]Entry, n)
	for i := range out {
		out[i] = make([]Entry, n)
	}
	return out
}

func checkStops(stops []model.Stop) error {
	if len(stops) < 2 {
		return &model.InsufficientStopsError{Count: len(stops)}
	}
	return nil
}
