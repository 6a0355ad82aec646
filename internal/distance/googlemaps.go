package distance

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"googlemaps.github.io/maps"

	"routecap/internal/model"
	"routecap/internal/obs"
)

const (
	// Distance Matrix request limits.
	maxMatrixSide     = 25
	maxMatrixElements = 100
)

type matrixAPI interface {
	DistanceMatrix(ctx context.Context, r *maps.DistanceMatrixRequest) (*maps.DistanceMatrixResponse, error)
}

// ExternalMapProvider reads road-network distances from the Google Distance
// Matrix API. Any failure is returned as *model.ExternalServiceError; it never
// degrades on its own.
type ExternalMapProvider struct {
	client matrixAPI
	mode   maps.Mode
}

// NewExternalMapProvider builds a provider for apiKey. Extra options are passed
// to maps.NewClient (base URL, HTTP client, rate limit).
func NewExternalMapProvider(apiKey string, opts ...maps.ClientOption) (*ExternalMapProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, &model.ExternalServiceError{Provider: "googlemaps", Op: "init", Err: errors.New("missing api key")}
	}
	c, err := maps.NewClient(append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, &model.ExternalServiceError{Provider: "googlemaps", Op: "init", Err: err}
	}
	return &ExternalMapProvider{client: c, mode: maps.TravelModeDriving}, nil
}

func (p *ExternalMapProvider) Name() string { return "googlemaps" }

func (p *ExternalMapProvider) ComputeMatrix(ctx context.Context, stops []model.Stop) (_ Matrix, err error) {
	defer obs.Time(ctx, "googlemaps.DistanceMatrix")(&err)

	if err := checkStops(stops); err != nil {
		return Matrix{}, err
	}
	n := len(stops)
	points := make([]string, n)
	for i, s := range stops {
		points[i] = latLng(s.Location)
	}

	destStep := min(n, maxMatrixSide)
	originStep := max(1, min(maxMatrixSide, maxMatrixElements/destStep))

	entries := newEntries(n)
	for o := 0; o < n; o += originStep {
		oEnd := min(n, o+originStep)
		for d := 0; d < n; d += destStep {
			dEnd := min(n, d+destStep)
			if err := p.fillBlock(ctx, entries, points, o, oEnd, d, dEnd); err != nil {
				return Matrix{}, err
			}
		}
	}
	for i := range entries {
		entries[i][i] = Entry{Reliable: true}
	}
	return Matrix{Entries: entries, Method: MethodExternal, Reliable: true}, nil
}

func (p *ExternalMapProvider) fillBlock(ctx context.Context, entries [][]Entry, points []string, o, oEnd, d, dEnd int) error {
	req := &maps.DistanceMatrixRequest{
		Origins:      points[o:oEnd],
		Destinations: points[d:dEnd],
		Mode:         p.mode,
		Units:        maps.UnitsMetric,
	}
	resp, err := p.client.DistanceMatrix(ctx, req)
	if err != nil {
		return &model.ExternalServiceError{Provider: p.Name(), Op: "distancematrix", Err: err}
	}
	if resp == nil || len(resp.Rows) != oEnd-o {
		return &model.ExternalServiceError{Provider: p.Name(), Op: "distancematrix", Err: errors.New("malformed response: row count mismatch")}
	}
	for r, row := range resp.Rows {
		if len(row.Elements) != dEnd-d {
			return &model.ExternalServiceError{Provider: p.Name(), Op: "distancematrix", Err: fmt.Errorf("malformed response: row %d has %d elements", r, len(row.Elements))}
		}
		for c, el := range row.Elements {
			if el == nil || el.Status != "OK" {
				status := "missing"
				if el != nil {
					status = el.Status
				}
				return &model.ExternalServiceError{Provider: p.Name(), Op: "distancematrix", Err: fmt.Errorf("element %d,%d status %s", o+r, d+c, status)}
			}
			entries[o+r][d+c] = Entry{
				DistanceMeters:  float64(el.Distance.Meters),
				DurationSeconds: el.Duration.Seconds(),
				Reliable:        true,
			}
		}
	}
	return nil
}

func latLng(c model.Coordinate) string {
	return strconv.FormatFloat(c.Lat, 'f', 6, 64) + "," + strconv.FormatFloat(c.Lng, 'f', 6, 64)
}
