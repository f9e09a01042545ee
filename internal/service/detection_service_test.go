package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"plate-alert-service/internal/domain/detection"
	"plate-alert-service/internal/provider"
)

type harness struct {
	svc        *DetectionService
	store      *memStore
	recognizer *fakeRecognizer
	sms        *fakeSMS
	clock      *fakeClock
}

func newHarness(t *testing.T, regs ...detection.Registration) *harness {
	t.Helper()
	h := &harness{
		store:      newMemStore(regs...),
		recognizer: newFakeRecognizer(0.95),
		sms:        &fakeSMS{},
		clock:      newFakeClock(),
	}
	h.svc = h.build(h.recognizer)
	return h
}

func (h *harness) build(recognizer Recognizer) *DetectionService {
	log := zerolog.Nop()
	notifier := testNotifier(h.sms, h.store)
	notifier.now = h.clock.Now
	cache := NewResultCache(30*time.Minute, 100, 20)
	cache.now = h.clock.Now

	svc := NewDetectionService(
		recognizer,
		NewMatcher(h.store, 0.75, log),
		notifier,
		h.store,
		cache,
		DetectionOptions{
			ConfidenceThreshold: 0.6,
			MaxBatchSize:        20,
			DefaultConcurrency:  5,
			MaxConcurrency:      10,
		},
		log,
	)
	svc.now = h.clock.Now
	return svc
}

type recordingPublisher struct {
	mu      sync.Mutex
	results []detection.Result
}

func (p *recordingPublisher) Publish(result detection.Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results = append(p.results, result)
}

type failingProvider struct {
	calls atomic.Int64
}

func (p *failingProvider) Name() string { return "failing" }

func (p *failingProvider) Detect(ctx context.Context, imageURL string) (provider.Response, error) {
	p.calls.Add(1)
	return nil, errors.New("connection reset")
}

const imageURL = "https://cdn.example.com/gate/1.jpg"

func TestDetectionService_ProcessDetection(t *testing.T) {
	ctx := context.Background()

	t.Run("exact match notifies owner", func(t *testing.T) {
		reg := registration("GR-1234-21", "John Doe")
		h := newHarness(t, reg)
		h.recognizer.set(imageURL, "gr 1234 21")
		pub := &recordingPublisher{}
		h.svc.SetPublisher(pub)

		result, err := h.svc.ProcessDetection(ctx, detection.Request{ImageURL: imageURL, Location: "Main Gate"})
		if err != nil {
			t.Fatalf("ProcessDetection() error = %v", err)
		}
		if result.PlateNumber != "GR-1234-21" {
			t.Errorf("PlateNumber = %q, want GR-1234-21", result.PlateNumber)
		}
		if result.CameraID != detection.DefaultCameraID {
			t.Errorf("CameraID = %q, want default", result.CameraID)
		}
		if result.MatchedOwnerID == nil || *result.MatchedOwnerID != reg.OwnerID {
			t.Errorf("MatchedOwnerID = %v, want %v", result.MatchedOwnerID, reg.OwnerID)
		}
		if !result.NotificationSent {
			t.Error("NotificationSent = false, want true")
		}

		stored := h.store.Detections()
		if len(stored) != 1 || stored[0].ID != result.ID {
			t.Fatalf("stored = %+v, want the returned result", stored)
		}
		if !stored[0].NotificationSent {
			t.Error("stored detection lost notification flag")
		}

		notes := h.store.Notifications()
		if len(notes) != 1 || notes[0].DetectionID != result.ID || !notes[0].ExactMatch {
			t.Errorf("notifications = %+v", notes)
		}
		if len(pub.results) != 1 || pub.results[0].ID != result.ID {
			t.Errorf("published = %+v", pub.results)
		}
	})

	t.Run("no match sends nothing", func(t *testing.T) {
		h := newHarness(t, registration("GW-5678-22", "Ama Owusu"))
		h.recognizer.set(imageURL, "AS-9999-11")

		result, err := h.svc.ProcessDetection(ctx, detection.Request{ImageURL: imageURL})
		if err != nil {
			t.Fatalf("ProcessDetection() error = %v", err)
		}
		if result.MatchedOwnerID != nil || result.NotificationSent {
			t.Errorf("result = %+v, want unmatched", result)
		}
		if n := len(h.store.Notifications()); n != 0 {
			t.Errorf("notifications = %d, want 0", n)
		}
		if h.sms.Calls() != 0 {
			t.Errorf("sms calls = %d, want 0", h.sms.Calls())
		}
		if n := len(h.store.Detections()); n != 1 {
			t.Errorf("stored detections = %d, want 1", n)
		}
	})

	t.Run("sms failure keeps detection", func(t *testing.T) {
		reg := registration("GR-1234-21", "John Doe")
		h := newHarness(t, reg)
		fail := errors.New("gateway down")
		h.sms.errs = []error{fail, fail, fail}
		h.recognizer.set(imageURL, "GR-1234-21")

		result, err := h.svc.ProcessDetection(ctx, detection.Request{ImageURL: imageURL})
		if err != nil {
			t.Fatalf("ProcessDetection() error = %v", err)
		}
		if result.NotificationSent {
			t.Error("NotificationSent = true, want false")
		}
		if result.MatchedOwnerID == nil {
			t.Error("MatchedOwnerID = nil, want owner")
		}
		notes := h.store.Notifications()
		if len(notes) != 1 || notes[0].Status != detection.NotificationFailed {
			t.Errorf("notifications = %+v, want one failed", notes)
		}
	})

	t.Run("invalid url is recorded without provider call", func(t *testing.T) {
		h := newHarness(t)

		result, err := h.svc.ProcessDetection(ctx, detection.Request{ImageURL: "ftp://example.com/a.jpg"})
		if !errors.Is(err, detection.ErrValidation) {
			t.Fatalf("error = %v, want ErrValidation", err)
		}
		if result.PlateNumber != detection.PlateDetectionFailed {
			t.Errorf("PlateNumber = %q, want DETECTION_FAILED", result.PlateNumber)
		}
		if result.RawResponse["error_kind"] != string(detection.KindValidation) {
			t.Errorf("error_kind = %v", result.RawResponse["error_kind"])
		}
		if h.recognizer.calls.Load() != 0 {
			t.Errorf("recognizer calls = %d, want 0", h.recognizer.calls.Load())
		}
		if n := len(h.store.Detections()); n != 1 {
			t.Errorf("stored detections = %d, want 1", n)
		}
	})

	t.Run("low confidence is not usable", func(t *testing.T) {
		h := newHarness(t, registration("GR-1234-21", "John Doe"))
		h.recognizer.conf = 0.4
		h.recognizer.set(imageURL, "GR-1234-21")

		result, err := h.svc.ProcessDetection(ctx, detection.Request{ImageURL: imageURL})
		if !errors.Is(err, detection.ErrNoUsableDetection) {
			t.Fatalf("error = %v, want ErrNoUsableDetection", err)
		}
		if result.Confidence != 0 || !result.Failed() {
			t.Errorf("result = %+v, want failure record", result)
		}
		if _, ok := result.RawResponse["provider_response"]; !ok {
			t.Error("failure record should keep the provider response")
		}
		if result.RawResponse["stage"] != string(stageProviderCalled) {
			t.Errorf("stage = %v, want provider_called", result.RawResponse["stage"])
		}
		if h.sms.Calls() != 0 {
			t.Errorf("sms calls = %d, want 0", h.sms.Calls())
		}
	})

	t.Run("response without plate text", func(t *testing.T) {
		h := newHarness(t)
		h.recognizer.set(imageURL, "  ")

		_, err := h.svc.ProcessDetection(ctx, detection.Request{ImageURL: imageURL})
		if !errors.Is(err, detection.ErrNoUsableDetection) {
			t.Fatalf("error = %v, want ErrNoUsableDetection", err)
		}
	})

	t.Run("provider failure", func(t *testing.T) {
		h := newHarness(t)
		h.recognizer.fail(imageURL)

		result, err := h.svc.ProcessDetection(ctx, detection.Request{ImageURL: imageURL, CameraID: "cam-7"})
		if detection.KindOf(err) != detection.KindProviderUnavailable {
			t.Fatalf("error = %v, want provider unavailable", err)
		}
		if result.CameraID != "cam-7" || result.ImageURL != imageURL {
			t.Errorf("failure record = %+v", result)
		}
	})

	t.Run("matching failure", func(t *testing.T) {
		h := newHarness(t)
		h.store.registryErr = errors.New("db gone")
		h.recognizer.set(imageURL, "GR-1234-21")

		result, err := h.svc.ProcessDetection(ctx, detection.Request{ImageURL: imageURL})
		if !errors.Is(err, detection.ErrMatchingFailure) {
			t.Fatalf("error = %v, want ErrMatchingFailure", err)
		}
		if !result.Failed() {
			t.Errorf("PlateNumber = %q, want failure code", result.PlateNumber)
		}
		if h.sms.Calls() != 0 {
			t.Errorf("sms calls = %d, want 0", h.sms.Calls())
		}
	})
}

func TestDetectionService_Cache(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, registration("GR-1234-21", "John Doe"))
	h.recognizer.set(imageURL, "GR-1234-21")
	req := detection.Request{ImageURL: imageURL}

	first, err := h.svc.ProcessDetection(ctx, req)
	if err != nil {
		t.Fatalf("first ProcessDetection() error = %v", err)
	}

	h.clock.Advance(29 * time.Minute)
	second, err := h.svc.ProcessDetection(ctx, req)
	if err != nil {
		t.Fatalf("second ProcessDetection() error = %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("cached ID = %v, want %v", second.ID, first.ID)
	}
	if got := h.recognizer.calls.Load(); got != 1 {
		t.Errorf("recognizer calls = %d, want 1", got)
	}
	if n := len(h.store.Detections()); n != 1 {
		t.Errorf("stored detections = %d, want 1", n)
	}
	if h.sms.Calls() != 1 {
		t.Errorf("sms calls = %d, want 1", h.sms.Calls())
	}

	m := h.svc.Metrics()
	if m.Total != 1 || m.CacheHits != 1 || m.CacheSize != 1 {
		t.Errorf("metrics = %+v", m)
	}

	h.clock.Advance(time.Minute)
	third, err := h.svc.ProcessDetection(ctx, req)
	if err != nil {
		t.Fatalf("third ProcessDetection() error = %v", err)
	}
	if third.ID == first.ID {
		t.Error("expected a fresh detection after ttl")
	}
	if got := h.recognizer.calls.Load(); got != 2 {
		t.Errorf("recognizer calls = %d, want 2", got)
	}

	h.svc.ClearCache()
	if _, err := h.svc.ProcessDetection(ctx, req); err != nil {
		t.Fatalf("ProcessDetection() after clear error = %v", err)
	}
	if got := h.recognizer.calls.Load(); got != 3 {
		t.Errorf("recognizer calls after clear = %d, want 3", got)
	}
}

func TestDetectionService_FailuresAreNotCached(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.recognizer.fail(imageURL)

	for i := 0; i < 2; i++ {
		if _, err := h.svc.ProcessDetection(ctx, detection.Request{ImageURL: imageURL}); err == nil {
			t.Fatal("expected error")
		}
	}
	if got := h.recognizer.calls.Load(); got != 2 {
		t.Errorf("recognizer calls = %d, want 2", got)
	}
	if m := h.svc.Metrics(); m.Failed != 2 || m.CacheHits != 0 {
		t.Errorf("metrics = %+v", m)
	}
}

func TestDetectionService_ProviderRetries(t *testing.T) {
	h := newHarness(t)
	primary := &failingProvider{}
	gateway := provider.NewGateway(primary, nil, 3, time.Millisecond, zerolog.Nop())
	svc := h.build(gateway)

	result, err := svc.ProcessDetection(context.Background(), detection.Request{ImageURL: imageURL})
	if !errors.Is(err, detection.ErrProviderUnavailable) {
		t.Fatalf("error = %v, want ErrProviderUnavailable", err)
	}
	if got := primary.calls.Load(); got != 3 {
		t.Errorf("provider calls = %d, want 3", got)
	}
	if result.PlateNumber != detection.PlateDetectionFailed {
		t.Errorf("PlateNumber = %q", result.PlateNumber)
	}

	health := svc.Health()
	if health.Dependencies["primary_provider"] != "available" || health.Dependencies["backup_provider"] != "not_configured" {
		t.Errorf("dependencies = %v", health.Dependencies)
	}
}

func TestDetectionService_ProcessBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("bounded concurrency keeps order", func(t *testing.T) {
		h := newHarness(t, registration("GR-1000-21", "John Doe"))
		h.recognizer.delay = 5 * time.Millisecond

		failing := map[int]bool{3: true, 11: true, 17: true}
		reqs := make([]detection.Request, 20)
		for i := range reqs {
			url := fmt.Sprintf("https://cdn.example.com/batch/%d.jpg", i)
			reqs[i] = detection.Request{ImageURL: url}
			h.recognizer.set(url, fmt.Sprintf("GR-%d-21", 1000+i))
			if failing[i] {
				h.recognizer.fail(url)
			}
		}

		results, err := h.svc.ProcessBatch(ctx, reqs, 5)
		if err != nil {
			t.Fatalf("ProcessBatch() error = %v", err)
		}
		if len(results) != len(reqs) {
			t.Fatalf("len(results) = %d, want %d", len(results), len(reqs))
		}

		var failed int
		for i, r := range results {
			if r.ImageURL != reqs[i].ImageURL {
				t.Errorf("results[%d].ImageURL = %q, want %q", i, r.ImageURL, reqs[i].ImageURL)
			}
			if failing[i] {
				failed++
				if r.PlateNumber != detection.PlateDetectionFailed {
					t.Errorf("results[%d].PlateNumber = %q, want failure", i, r.PlateNumber)
				}
				continue
			}
			if want := fmt.Sprintf("GR-%d-21", 1000+i); r.PlateNumber != want {
				t.Errorf("results[%d].PlateNumber = %q, want %q", i, r.PlateNumber, want)
			}
		}
		if failed != 3 {
			t.Errorf("failed = %d, want 3", failed)
		}
		if got := h.recognizer.maxSeen.Load(); got > 5 {
			t.Errorf("max in flight = %d, want <= 5", got)
		}
		if got := h.recognizer.calls.Load(); got != 20 {
			t.Errorf("recognizer calls = %d, want 20", got)
		}
		if n := len(h.store.Detections()); n != 20 {
			t.Errorf("stored detections = %d, want 20", n)
		}
		if !results[0].NotificationSent {
			t.Error("results[0] should have notified the registered owner")
		}
	})

	t.Run("empty batch", func(t *testing.T) {
		h := newHarness(t)
		if _, err := h.svc.ProcessBatch(ctx, nil, 5); !errors.Is(err, detection.ErrBatchEmpty) {
			t.Errorf("error = %v, want ErrBatchEmpty", err)
		}
	})

	t.Run("oversized batch", func(t *testing.T) {
		h := newHarness(t)
		reqs := make([]detection.Request, 21)
		for i := range reqs {
			reqs[i] = detection.Request{ImageURL: fmt.Sprintf("https://cdn.example.com/%d.jpg", i)}
		}
		_, err := h.svc.ProcessBatch(ctx, reqs, 5)
		if !errors.Is(err, detection.ErrBatchTooLarge) || !errors.Is(err, detection.ErrValidation) {
			t.Errorf("error = %v, want ErrBatchTooLarge", err)
		}
		if h.recognizer.calls.Load() != 0 {
			t.Error("oversized batch should not reach the provider")
		}
	})
}

func TestDetectionService_concurrencyLimit(t *testing.T) {
	h := newHarness(t)
	tests := []struct {
		in, want int
	}{
		{0, 5},
		{-1, 5},
		{3, 3},
		{10, 10},
		{50, 10},
	}
	for _, tt := range tests {
		if got := h.svc.concurrencyLimit(tt.in); got != tt.want {
			t.Errorf("concurrencyLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestDetectionService_MetricsAndHealth(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	if got := h.svc.Health(); got.Status != HealthDegraded {
		t.Errorf("Status with no traffic = %v, want degraded", got.Status)
	}

	for i := 0; i < 2; i++ {
		url := fmt.Sprintf("https://cdn.example.com/ok/%d.jpg", i)
		if _, err := h.svc.ProcessDetection(ctx, detection.Request{ImageURL: url}); err != nil {
			t.Fatalf("ProcessDetection() error = %v", err)
		}
	}
	if got := h.svc.Health(); got.Status != HealthHealthy {
		t.Errorf("Status = %v, want healthy", got.Status)
	}

	h.recognizer.fail("https://cdn.example.com/bad.jpg")
	_, _ = h.svc.ProcessDetection(ctx, detection.Request{ImageURL: "https://cdn.example.com/bad.jpg"})

	m := h.svc.Metrics()
	if m.Total != 3 || m.Succeeded != 2 || m.Failed != 1 {
		t.Errorf("metrics = %+v", m)
	}
	if math.Abs(m.SuccessRate-200.0/3) > 1e-9 {
		t.Errorf("SuccessRate = %v", m.SuccessRate)
	}

	health := h.svc.Health()
	if health.Status != HealthUnhealthy {
		t.Errorf("Status at 33%% errors = %v, want unhealthy", health.Status)
	}
	if health.Dependencies["sms_service"] != "available" {
		t.Errorf("sms_service = %q", health.Dependencies["sms_service"])
	}
	if health.Dependencies["primary_provider"] != "unknown" {
		t.Errorf("primary_provider = %q", health.Dependencies["primary_provider"])
	}

	h.svc.ResetMetrics()
	if m := h.svc.Metrics(); m.Total != 0 || m.Failed != 0 || m.Succeeded != 0 {
		t.Errorf("metrics after reset = %+v", m)
	}
}
