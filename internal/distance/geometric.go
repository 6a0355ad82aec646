package distance

import (
	"context"
	"math"

	"routecap/internal/model"
)

const (
	earthRadiusMeters = 6371000.0
	defaultSpeedKmh   = 40.0
)

// GeometricProvider estimates distances as great-circle lengths and durations
// from a constant average speed. It never fails on valid input.
type GeometricProvider struct {
	SpeedKmh float64
}

func NewGeometricProvider(speedKmh float64) *GeometricProvider {
	if speedKmh <= 0 {
		speedKmh = defaultSpeedKmh
	}
	return &GeometricProvider{SpeedKmh: speedKmh}
}

func (g *GeometricProvider) Name() string { return MethodGeometric }

func (g *GeometricProvider) ComputeMatrix(_ context.Context, stops []model.Stop) (Matrix, error) {
	if err := checkStops(stops); err != nil {
		return Matrix{}, err
	}
	speed := g.SpeedKmh
	if speed <= 0 {
		speed = defaultSpeedKmh
	}
	mps := speed * 1000 / 3600

	n := len(stops)
	entries := newEntries(n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := HaversineMeters(stops[i].Location, stops[j].Location)
			e := Entry{DistanceMeters: d, DurationSeconds: d / mps}
			entries[i][j] = e
			entries[j][i] = e
		}
	}
	return Matrix{Entries: entries, Method: MethodGeometric, Reliable: false}, nil
}

// HaversineMeters returns the great-circle distance between a and b.
func HaversineMeters(a, b model.Coordinate) float64 {
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Lat*math.Pi/180)*math.Cos(b.Lat*math.Pi/180)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusMeters * c
}

// HaversineKm is HaversineMeters in kilometres.
func HaversineKm(a, b model.Coordinate) float64 { return HaversineMeters(a, b) / 1000 }

// PointToSegmentKm approximates the distance from p to the segment a-b using an
// equirectangular projection around p. Accurate enough at city scale.
func PointToSegmentKm(p, a, b model.Coordinate) float64 {
	k := math.Cos(p.Lat * math.Pi / 180)
	ax, ay := (a.Lng-p.Lng)*k, a.Lat-p.Lat
	bx, by := (b.Lng-p.Lng)*k, b.Lat-p.Lat
	dx, dy := bx-ax, by-ay
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return HaversineKm(p, a)
	}
	// projection of the origin (p) onto a-b, clamped to the segment
	t := -(ax*dx + ay*dy) / l2
	t = math.Max(0, math.Min(1, t))
	closest := model.Coordinate{Lat: a.Lat + t*(b.Lat-a.Lat), Lng: a.Lng + t*(b.Lng-a.Lng)}
	return HaversineKm(p, closest)
}
