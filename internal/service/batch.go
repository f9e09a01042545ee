package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"plate-alert-service/internal/domain/detection"
)

// ProcessBatch runs the requests with at most maxConcurrency in flight. Results keep
// the input order; a failing request yields an error-flavoured result instead of
// aborting the batch. Only an empty or oversized batch is rejected.
func (s *DetectionService) ProcessBatch(ctx context.Context, reqs []detection.Request, maxConcurrency int) ([]detection.Result, error) {
	if len(reqs) == 0 {
		return nil, detection.ErrBatchEmpty
	}
	if len(reqs) > s.opts.MaxBatchSize {
		return nil, fmt.Errorf("%w: %d requests, limit is %d", detection.ErrBatchTooLarge, len(reqs), s.opts.MaxBatchSize)
	}

	limit := s.concurrencyLimit(maxConcurrency)
	s.log.Info().Int("batch_size", len(reqs)).Int("max_concurrency", limit).Msg("processing batch")

	start := s.now()
	results := make([]detection.Result, len(reqs))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, req := range reqs {
		g.Go(func() error {
			results[i] = s.processBatchItem(ctx, req)
			return nil
		})
	}
	_ = g.Wait()

	var succeeded, matched, notified int
	for _, r := range results {
		if !r.Failed() {
			succeeded++
		}
		if r.MatchedOwnerID != nil {
			matched++
		}
		if r.NotificationSent {
			notified++
		}
	}
	s.log.Info().
		Int("total", len(results)).
		Int("successful", succeeded).
		Int("matched", matched).
		Int("sms_sent", notified).
		Dur("elapsed", s.now().Sub(start)).
		Msg("batch processing completed")

	return results, nil
}

func (s *DetectionService) processBatchItem(ctx context.Context, req detection.Request) (result detection.Result) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Str("image_url", req.ImageURL).Msg("batch item panicked")
			result = detection.Result{
				ID:          uuid.New(),
				PlateNumber: detection.PlateBatchError,
				CameraID:    req.Camera(),
				Location:    req.Location,
				ImageURL:    req.ImageURL,
				DetectedAt:  s.now().UTC(),
				RawResponse: map[string]interface{}{
					"error":            fmt.Sprint(r),
					"batch_processing": true,
				},
			}
		}
	}()

	result, err := s.ProcessDetection(ctx, req)
	if err != nil {
		s.log.Warn().Err(err).Str("image_url", req.ImageURL).Msg("batch detection failed")
	}
	return result
}

// concurrencyLimit applies the default when n is not positive and caps it at the
// configured ceiling.
func (s *DetectionService) concurrencyLimit(n int) int {
	if n <= 0 {
		n = s.opts.DefaultConcurrency
	}
	if n > s.opts.MaxConcurrency {
		n = s.opts.MaxConcurrency
	}
	return n
}

type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

type HealthReport struct {
	Status           HealthStatus      `json:"status"`
	ErrorRatePercent float64           `json:"error_rate_percent"`
	Dependencies     map[string]string `json:"dependencies"`
	Metrics          MetricsSnapshot   `json:"metrics"`
	CheckedAt        time.Time         `json:"checked_at"`
}

type dependencyChecker interface {
	HasPrimary() bool
	HasBackup() bool
}

// Health derives a status from the running error rate: healthy below 5% (with at
// least one detection), degraded below 20%, unhealthy otherwise.
func (s *DetectionService) Health() HealthReport {
	m := s.Metrics()

	var errorRate float64
	if m.Total > 0 {
		errorRate = float64(m.Failed) / float64(m.Total) * 100
	}

	status := HealthUnhealthy
	switch {
	case errorRate < 5 && m.Total > 0:
		status = HealthHealthy
	case errorRate < 20:
		status = HealthDegraded
	}

	deps := map[string]string{
		"primary_provider": "unknown",
		"backup_provider":  "unknown",
		"sms_service":      configured(s.notifier.Configured()),
	}
	if dc, ok := s.recognizer.(dependencyChecker); ok {
		deps["primary_provider"] = configured(dc.HasPrimary())
		deps["backup_provider"] = configured(dc.HasBackup())
	}

	return HealthReport{
		Status:           status,
		ErrorRatePercent: errorRate,
		Dependencies:     deps,
		Metrics:          m,
		CheckedAt:        s.now().UTC(),
	}
}

func configured(ok bool) string {
	if ok {
		return "available"
	}
	return "not_configured"
}
