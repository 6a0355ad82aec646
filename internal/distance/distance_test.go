package distance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"googlemaps.github.io/maps"

	"routecap/internal/model"
)

func stopsAt(coords ...model.Coordinate) []model.Stop {
	out := make([]model.Stop, len(coords))
	for i, c := range coords {
		out[i] = model.Stop{ID: fmt.Sprintf("s%d", i), Location: c}
	}
	return out
}

var (
	london1 = model.Coordinate{Lat: 51.50, Lng: -0.12}
	london2 = model.Coordinate{Lat: 51.52, Lng: -0.10}
	london3 = model.Coordinate{Lat: 51.53, Lng: -0.14}
)

// fakeProvider returns a fixed matrix or error and counts calls.
type fakeProvider struct {
	mu    sync.Mutex
	calls int
	err   error
	block bool
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) ComputeMatrix(ctx context.Context, stops []model.Stop) (Matrix, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return Matrix{}, ctx.Err()
	}
	if f.err != nil {
		return Matrix{}, f.err
	}
	n := len(stops)
	e := newEntries(n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i != j {
				e[i][j] = Entry{DistanceMeters: 1000, DurationSeconds: 60, Reliable: true}
			}
		}
	}
	return Matrix{Entries: e, Method: MethodExternal, Reliable: true}, nil
}

func (f *fakeProvider) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestGeometricSymmetricAndUnreliable(t *testing.T) {
	g := NewGeometricProvider(40)
	m, err := g.ComputeMatrix(context.Background(), stopsAt(london1, london2, london3))
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if m.Method != MethodGeometric || m.Reliable {
		t.Fatalf("want geometric/unreliable, got %s/%v", m.Method, m.Reliable)
	}
	for i := 0; i < 3; i++ {
		if m.Distance(i, i) != 0 {
			t.Fatalf("diagonal must be zero")
		}
		for j := 0; j < 3; j++ {
			if m.Distance(i, j) != m.Distance(j, i) {
				t.Fatalf("asymmetric at %d,%d", i, j)
			}
		}
	}
	// ~2.6 km between the two London points, 40 km/h
	d := m.Distance(0, 1)
	if d < 2500 || d > 2800 {
		t.Fatalf("unexpected distance %v", d)
	}
	if want := d / (40.0 * 1000 / 3600); math.Abs(m.Duration(0, 1)-want) > 1e-9 {
		t.Fatalf("duration %v want %v", m.Duration(0, 1), want)
	}
}

func TestGeometricRequiresTwoStops(t *testing.T) {
	_, err := NewGeometricProvider(0).ComputeMatrix(context.Background(), stopsAt(london1))
	var ise *model.InsufficientStopsError
	if !errors.As(err, &ise) || ise.Count != 1 {
		t.Fatalf("want InsufficientStopsError, got %v", err)
	}
}

func TestPointToSegmentKm(t *testing.T) {
	a := model.Coordinate{Lat: 51.50, Lng: -0.20}
	b := model.Coordinate{Lat: 51.50, Lng: -0.10}
	onLine := model.Coordinate{Lat: 51.50, Lng: -0.15}
	if d := PointToSegmentKm(onLine, a, b); d > 0.01 {
		t.Fatalf("point on segment: %v km", d)
	}
	beyond := model.Coordinate{Lat: 51.50, Lng: 0.0}
	if d, end := PointToSegmentKm(beyond, a, b), HaversineKm(beyond, b); math.Abs(d-end) > 0.01 {
		t.Fatalf("clamped distance %v want %v", d, end)
	}
}

func TestSelectorNoExternalFallsBack(t *testing.T) {
	s := NewSelector(nil, nil, 0, nil)
	m, err := s.ComputeMatrix(context.Background(), stopsAt(london1, london2))
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if m.Method != MethodGeometric || m.Reliable || m.Warning == "" {
		t.Fatalf("unexpected matrix meta: %+v", m)
	}
}

func TestSelectorUsesExternal(t *testing.T) {
	f := &fakeProvider{}
	s := NewSelector(f, nil, time.Second, nil)
	m, err := s.ComputeMatrix(context.Background(), stopsAt(london1, london2))
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if m.Method != MethodExternal || !m.Reliable || m.Warning != "" {
		t.Fatalf("unexpected matrix meta: %+v", m)
	}
	if f.Calls() != 1 {
		t.Fatalf("calls: %d", f.Calls())
	}
}

func TestSelectorRetriesOnceThenFallsBack(t *testing.T) {
	f := &fakeProvider{err: &model.ExternalServiceError{Provider: "fake", Op: "distancematrix", Err: errors.New("503")}}
	s := NewSelector(f, nil, time.Second, nil)
	s.Backoff = time.Millisecond
	m, err := s.ComputeMatrix(context.Background(), stopsAt(london1, london2))
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if f.Calls() != 2 {
		t.Fatalf("want exactly 2 attempts, got %d", f.Calls())
	}
	if m.Method != MethodGeometric || m.Reliable {
		t.Fatalf("expected geometric fallback, got %+v", m)
	}
}

func TestSelectorTimeoutFallsBack(t *testing.T) {
	f := &fakeProvider{block: true}
	s := NewSelector(f, nil, 20*time.Millisecond, nil)
	s.Backoff = time.Millisecond
	start := time.Now()
	m, err := s.ComputeMatrix(context.Background(), stopsAt(london1, london2))
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if m.Method != MethodGeometric {
		t.Fatalf("expected fallback, got %s", m.Method)
	}
	if f.Calls() != 2 {
		t.Fatalf("want 2 attempts, got %d", f.Calls())
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("timeout not enforced")
	}
}

func TestCachedProviderMemoryHit(t *testing.T) {
	f := &fakeProvider{}
	c := &CachedProvider{Inner: f, Cache: NewMemoryCache(time.Minute)}
	stops := stopsAt(london1, london2, london3)
	for i := 0; i < 3; i++ {
		m, err := c.ComputeMatrix(context.Background(), stops)
		if err != nil {
			t.Fatalf("compute: %v", err)
		}
		if m.Distance(0, 2) != 1000 || !m.Reliable {
			t.Fatalf("bad matrix: %+v", m)
		}
	}
	if f.Calls() != 1 {
		t.Fatalf("want one inner call, got %d", f.Calls())
	}
}

func TestCachedProviderRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	f := &fakeProvider{}
	c := &CachedProvider{Inner: f, Cache: NewRedisCache(rdb, time.Minute)}
	stops := stopsAt(london1, london2)
	if _, err := c.ComputeMatrix(context.Background(), stops); err != nil {
		t.Fatalf("first: %v", err)
	}
	if !mr.Exists("dist:" + PairKey(london1, london2)) {
		t.Fatalf("pair not written to redis")
	}
	m, err := c.ComputeMatrix(context.Background(), stops)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if f.Calls() != 1 || m.Distance(1, 0) != 1000 {
		t.Fatalf("expected cache hit; calls=%d", f.Calls())
	}
}

func TestCachedProviderDoesNotCacheErrors(t *testing.T) {
	f := &fakeProvider{err: errors.New("down")}
	c := &CachedProvider{Inner: f, Cache: NewMemoryCache(time.Minute)}
	for i := 0; i < 2; i++ {
		if _, err := c.ComputeMatrix(context.Background(), stopsAt(london1, london2)); err == nil {
			t.Fatalf("expected error")
		}
	}
	if f.Calls() != 2 {
		t.Fatalf("errors must not be cached, calls=%d", f.Calls())
	}
}

func TestExternalMapProviderMissingKey(t *testing.T) {
	_, err := NewExternalMapProvider("  ")
	var ext *model.ExternalServiceError
	if !errors.As(err, &ext) {
		t.Fatalf("want ExternalServiceError, got %v", err)
	}
}

func TestExternalMapProviderParsesMatrix(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"OK","origin_addresses":["a","b"],"destination_addresses":["a","b"],
"rows":[
 {"elements":[{"status":"OK","distance":{"text":"0 km","value":0},"duration":{"text":"0 mins","value":0}},
              {"status":"OK","distance":{"text":"3.1 km","value":3100},"duration":{"text":"9 mins","value":540}}]},
 {"elements":[{"status":"OK","distance":{"text":"3.4 km","value":3400},"duration":{"text":"10 mins","value":600}},
              {"status":"OK","distance":{"text":"0 km","value":0},"duration":{"text":"0 mins","value":0}}]}
]}`)
	}))
	defer srv.Close()

	p, err := NewExternalMapProvider("test-key", maps.WithBaseURL(srv.URL), maps.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	m, err := p.ComputeMatrix(context.Background(), stopsAt(london1, london2))
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if m.Distance(0, 1) != 3100 || m.Distance(1, 0) != 3400 || m.Duration(1, 0) != 600 {
		t.Fatalf("unexpected matrix: %+v", m.Entries)
	}
	if !m.Reliable || m.Method != MethodExternal {
		t.Fatalf("unexpected meta: %+v", m)
	}
}

func TestExternalMapProviderElementStatusFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"OK","rows":[
 {"elements":[{"status":"OK","distance":{"value":0},"duration":{"value":0}},{"status":"ZERO_RESULTS"}]},
 {"elements":[{"status":"OK","distance":{"value":10},"duration":{"value":1}},{"status":"OK","distance":{"value":0},"duration":{"value":0}}]}
]}`)
	}))
	defer srv.Close()

	p, err := NewExternalMapProvider("test-key", maps.WithBaseURL(srv.URL), maps.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	_, err = p.ComputeMatrix(context.Background(), stopsAt(london1, london2))
	var ext *model.ExternalServiceError
	if !errors.As(err, &ext) {
		t.Fatalf("want ExternalServiceError, got %v", err)
	}
}
