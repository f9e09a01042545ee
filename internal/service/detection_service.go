package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"plate-alert-service/internal/domain/detection"
	"plate-alert-service/internal/provider"
	"plate-alert-service/internal/utils"
)

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".webp"}

// Recognizer is the provider side of the pipeline; *provider.Gateway implements it.
type Recognizer interface {
	Detect(ctx context.Context, imageURL string) (provider.Response, error)
}

type DetectionStore interface {
	SaveDetection(ctx context.Context, result *detection.Result) error
}

// Publisher receives every stored detection, e.g. for live viewers.
type Publisher interface {
	Publish(result detection.Result)
}

type DetectionOptions struct {
	ConfidenceThreshold float64
	MaxBatchSize        int
	DefaultConcurrency  int
	MaxConcurrency      int
}

type stage string

const (
	stageReceived       stage = "received"
	stageValidated      stage = "validated"
	stageCacheChecked   stage = "cache_checked"
	stageCacheHit       stage = "cache_hit"
	stageProviderCalled stage = "provider_called"
	stageExtracted      stage = "extracted"
	stageMatched        stage = "matched"
	stageNotified       stage = "notified"
	stageStored         stage = "stored"
)

// pipeline carries the state of one request through the detection stages.
type pipeline struct {
	id          uuid.UUID
	req         detection.Request
	stage       stage
	fingerprint string
	started     time.Time
	response    provider.Response
	result      detection.Result
	log         zerolog.Logger
}

func (p *pipeline) advance(next stage) {
	p.log.Debug().Str("from", string(p.stage)).Str("to", string(next)).Msg("detection stage")
	p.stage = next
}

type DetectionService struct {
	recognizer Recognizer
	matcher    *Matcher
	notifier   *Notifier
	detections DetectionStore
	cache      *ResultCache
	metrics    *Metrics
	publisher  Publisher
	opts       DetectionOptions
	log        zerolog.Logger
	now        func() time.Time
}

func NewDetectionService(
	recognizer Recognizer,
	matcher *Matcher,
	notifier *Notifier,
	detections DetectionStore,
	cache *ResultCache,
	opts DetectionOptions,
	log zerolog.Logger,
) *DetectionService {
	if opts.MaxBatchSize < 1 {
		opts.MaxBatchSize = 20
	}
	if opts.MaxConcurrency < 1 {
		opts.MaxConcurrency = 10
	}
	if opts.DefaultConcurrency < 1 {
		opts.DefaultConcurrency = 5
	}
	return &DetectionService{
		recognizer: recognizer,
		matcher:    matcher,
		notifier:   notifier,
		detections: detections,
		cache:      cache,
		metrics:    &Metrics{},
		opts:       opts,
		log:        log.With().Str("component", "detection").Logger(),
		now:        time.Now,
	}
}

func (s *DetectionService) SetPublisher(p Publisher) {
	s.publisher = p
}

// ProcessDetection runs one request through the pipeline. Every request except a
// cache hit leaves exactly one stored detection. On error the returned result is the
// stored failure record and the error carries one of the detection error kinds.
func (s *DetectionService) ProcessDetection(ctx context.Context, req detection.Request) (detection.Result, error) {
	id := uuid.New()
	p := &pipeline{
		id:      id,
		req:     req,
		stage:   stageReceived,
		started: s.now(),
		log: s.log.With().
			Str("detection_id", id.String()).
			Str("camera_id", req.Camera()).
			Logger(),
	}

	if err := s.run(ctx, p); err != nil {
		failed := s.recordFailure(ctx, p, err)
		s.metrics.recordFailure()
		return failed, err
	}

	if p.stage == stageCacheHit {
		s.metrics.recordCacheHit()
		return p.result, nil
	}

	s.metrics.recordSuccess(s.now().Sub(p.started))
	return p.result, nil
}

func (s *DetectionService) run(ctx context.Context, p *pipeline) error {
	if err := s.validate(p); err != nil {
		return err
	}
	p.advance(stageValidated)

	p.fingerprint = utils.Fingerprint(p.req.ImageURL)
	if cached, ok := s.cache.Get(p.fingerprint); ok {
		p.log.Info().Str("cached_detection_id", cached.ID.String()).Msg("cache hit")
		p.result = cached
		p.advance(stageCacheHit)
		return nil
	}
	p.advance(stageCacheChecked)

	p.log.Info().Str("image_url", shorten(p.req.ImageURL, 100)).Msg("processing detection")
	resp, err := s.recognizer.Detect(ctx, p.req.ImageURL)
	if err != nil {
		return err
	}
	p.response = resp
	p.advance(stageProviderCalled)

	extraction, ok := provider.Extract(resp)
	if !ok {
		return fmt.Errorf("%w: no plate text in provider response", detection.ErrNoUsableDetection)
	}
	if extraction.Confidence < s.opts.ConfidenceThreshold {
		return fmt.Errorf("%w: confidence %.2f below threshold %.2f",
			detection.ErrNoUsableDetection, extraction.Confidence, s.opts.ConfidenceThreshold)
	}
	p.result = detection.Result{
		ID:          p.id,
		PlateNumber: extraction.Plate,
		Confidence:  extraction.Confidence,
		CameraID:    p.req.Camera(),
		Location:    p.req.Location,
		ImageURL:    p.req.ImageURL,
		DetectedAt:  s.now().UTC(),
		RawResponse: resp,
	}
	p.log.Info().
		Str("plate", extraction.Plate).
		Str("raw_plate", extraction.RawPlate).
		Str("format", utils.PlateFormat(extraction.Plate)).
		Str("shape", extraction.Shape).
		Float64("confidence", extraction.Confidence).
		Msg("plate extracted")
	p.advance(stageExtracted)

	matches, err := s.matcher.FindMatches(ctx, extraction.Plate)
	if err != nil {
		return err
	}
	p.advance(stageMatched)

	if len(matches) > 0 {
		best := matches[0]
		owner := best.OwnerID
		p.result.MatchedOwnerID = &owner
		p.result.NotificationSent = s.notifier.Notify(ctx, best, p.result)
		p.log.Info().
			Str("plate", extraction.Plate).
			Str("owner_id", owner.String()).
			Bool("exact_match", best.ExactMatch).
			Float64("match_confidence", best.Confidence).
			Bool("notification_sent", p.result.NotificationSent).
			Msg("plate matched to owner")
		p.advance(stageNotified)
	} else {
		p.log.Info().Str("plate", extraction.Plate).Msg("no owner match")
	}

	s.store(ctx, p)
	s.cache.Put(p.fingerprint, p.result)
	return nil
}

func (s *DetectionService) validate(p *pipeline) error {
	if err := provider.ValidateImageURL(p.req.ImageURL); err != nil {
		return err
	}
	lower := strings.ToLower(p.req.ImageURL)
	if u := strings.IndexAny(lower, "?#"); u >= 0 {
		lower = lower[:u]
	}
	for _, ext := range imageExtensions {
		if strings.HasSuffix(lower, ext) {
			return nil
		}
	}
	p.log.Warn().Str("image_url", p.req.ImageURL).Msg("image url may not be a valid image format")
	return nil
}

func (s *DetectionService) store(ctx context.Context, p *pipeline) {
	if err := s.detections.SaveDetection(context.WithoutCancel(ctx), &p.result); err != nil {
		p.log.Error().Err(err).Msg("failed to store detection")
	} else {
		p.log.Debug().Msg("detection stored")
	}
	p.advance(stageStored)
	if s.publisher != nil {
		s.publisher.Publish(p.result)
	}
}

// recordFailure persists an error-flavoured detection for the failed request.
func (s *DetectionService) recordFailure(ctx context.Context, p *pipeline, cause error) detection.Result {
	p.log.Error().
		Err(cause).
		Str("stage", string(p.stage)).
		Str("error_kind", string(detection.KindOf(cause))).
		Msg("detection failed")

	raw := map[string]interface{}{
		"error":      cause.Error(),
		"error_kind": string(detection.KindOf(cause)),
		"stage":      string(p.stage),
		"timestamp":  s.now().UTC().Format(time.RFC3339),
	}
	if p.response != nil {
		raw["provider_response"] = map[string]interface{}(p.response)
	}

	p.result = detection.Result{
		ID:          p.id,
		PlateNumber: detection.PlateDetectionFailed,
		Confidence:  0,
		CameraID:    p.req.Camera(),
		Location:    p.req.Location,
		ImageURL:    p.req.ImageURL,
		DetectedAt:  s.now().UTC(),
		RawResponse: raw,
	}
	s.store(ctx, p)
	return p.result
}

// ClearCache drops every cached detection result.
func (s *DetectionService) ClearCache() {
	s.cache.Clear()
	s.log.Info().Msg("detection cache cleared")
}

func (s *DetectionService) Metrics() MetricsSnapshot {
	return s.metrics.Snapshot(s.cache.Len())
}

func (s *DetectionService) ResetMetrics() {
	s.metrics.Reset()
	s.log.Info().Msg("detection metrics reset")
}

func shorten(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
