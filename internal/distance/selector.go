package distance

import (
	"context"
	"errors"
	"log"
	"time"

	"golang.org/x/time/rate"

	"routecap/internal/metrics"
	"routecap/internal/model"
	"routecap/internal/obs"
)

const (
	defaultAttemptTimeout = 5 * time.Second
	defaultRetryBackoff   = 200 * time.Millisecond

	warnNotConfigured = "mapping service not configured; distances are straight-line estimates"
	warnUnavailable   = "mapping service unavailable; distances are straight-line estimates"
)

// Selector decides which provider serves a request. It tries External with a
// per-attempt timeout and a single retry, and falls back to the geometric
// provider on any failure. ComputeMatrix only fails on invalid input.
type Selector struct {
	External Provider // nil when no mapping service is configured
	Fallback *GeometricProvider
	Timeout  time.Duration
	Backoff  time.Duration
	Limiter  *rate.Limiter // shared quota for External; nil means unlimited
}

// NewSelector wires a selector. external may be nil.
func NewSelector(external Provider, fallback *GeometricProvider, timeout time.Duration, limiter *rate.Limiter) *Selector {
	if fallback == nil {
		fallback = NewGeometricProvider(0)
	}
	return &Selector{External: external, Fallback: fallback, Timeout: timeout, Backoff: defaultRetryBackoff, Limiter: limiter}
}

func (s *Selector) Name() string { return "selector" }

func (s *Selector) ComputeMatrix(ctx context.Context, stops []model.Stop) (Matrix, error) {
	if err := checkStops(stops); err != nil {
		return Matrix{}, err
	}
	if s.External == nil {
		metrics.DistanceFallbacks.WithLabelValues("unconfigured").Inc()
		return s.fallback(ctx, stops, warnNotConfigured)
	}

	m, err := s.tryExternal(ctx, stops)
	if err == nil {
		return m, nil
	}
	log.Printf("req_id=%s op=distance.select provider=%s fallback=geometric err=%v", obs.RequestID(ctx), s.External.Name(), err)
	metrics.DistanceFallbacks.WithLabelValues(fallbackReason(err)).Inc()
	return s.fallback(ctx, stops, warnUnavailable)
}

func (s *Selector) fallback(ctx context.Context, stops []model.Stop, warning string) (Matrix, error) {
	m, err := s.Fallback.ComputeMatrix(ctx, stops)
	if err != nil {
		return Matrix{}, err
	}
	m.Warning = warning
	return m, nil
}

func (s *Selector) tryExternal(ctx context.Context, stops []model.Stop) (Matrix, error) {
	const maxAttempts = 2
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			timer := time.NewTimer(s.backoff())
			select {
			case <-ctx.Done():
				timer.Stop()
				return Matrix{}, ctx.Err()
			case <-timer.C:
			}
		}
		if s.Limiter != nil {
			if err := s.Limiter.Wait(ctx); err != nil {
				return Matrix{}, &model.ExternalServiceError{Provider: s.External.Name(), Op: "ratelimit", Err: err}
			}
		}

		actx, cancel := context.WithTimeout(ctx, s.timeout())
		start := time.Now()
		m, err := s.External.ComputeMatrix(actx, stops)
		cancel()

		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.ExternalMatrixLatency.WithLabelValues(status).Observe(time.Since(start).Seconds())

		if err == nil {
			if m.Size() != len(stops) {
				lastErr = &model.ExternalServiceError{Provider: s.External.Name(), Op: "distancematrix", Err: errors.New("matrix size mismatch")}
				continue
			}
			m.Method = MethodExternal
			m.Reliable = true
			return m, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return Matrix{}, lastErr
}

func (s *Selector) timeout() time.Duration {
	if s.Timeout <= 0 {
		return defaultAttemptTimeout
	}
	return s.Timeout
}

func (s *Selector) backoff() time.Duration {
	if s.Backoff <= 0 {
		return defaultRetryBackoff
	}
	return s.Backoff
}

func fallbackReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}
	var ext *model.ExternalServiceError
	if errors.As(err, &ext) && ext.Op == "ratelimit" {
		return "ratelimit"
	}
	return "error"
}
