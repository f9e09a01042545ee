package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"plate-alert-service/internal/domain/detection"
	"plate-alert-service/internal/provider"
)

type memStore struct {
	mu            sync.Mutex
	registrations []detection.Registration
	inactive      map[uuid.UUID]bool
	detections    []detection.Result
	notifications []detection.NotificationRecord
	registryErr   error
}

func newMemStore(regs ...detection.Registration) *memStore {
	return &memStore{registrations: regs, inactive: map[uuid.UUID]bool{}}
}

func (s *memStore) ListActiveRegistrations(ctx context.Context) ([]detection.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.registryErr != nil {
		return nil, s.registryErr
	}
	out := make([]detection.Registration, 0, len(s.registrations))
	for _, r := range s.registrations {
		if s.inactive[r.OwnerID] || s.inactive[r.PlateID] {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *memStore) SaveDetection(ctx context.Context, result *detection.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detections = append(s.detections, *result)
	return nil
}

func (s *memStore) SaveNotification(ctx context.Context, record *detection.NotificationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, *record)
	return nil
}

func (s *memStore) Detections() []detection.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]detection.Result(nil), s.detections...)
}

func (s *memStore) Notifications() []detection.NotificationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]detection.NotificationRecord(nil), s.notifications...)
}

func registration(plate, owner string) detection.Registration {
	return detection.Registration{
		PlateID:    uuid.New(),
		Plate:      plate,
		OwnerID:    uuid.New(),
		OwnerName:  owner,
		OwnerPhone: "+233241234567",
	}
}

// fakeRecognizer answers with a workflow response carrying plates[imageURL].
type fakeRecognizer struct {
	mu       sync.Mutex
	plates   map[string]string
	conf     float64
	failing  map[string]bool
	calls    atomic.Int64
	inFlight atomic.Int64
	maxSeen  atomic.Int64
	delay    time.Duration
}

func newFakeRecognizer(conf float64) *fakeRecognizer {
	return &fakeRecognizer{plates: map[string]string{}, failing: map[string]bool{}, conf: conf}
}

func (f *fakeRecognizer) set(url, plate string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plates[url] = plate
}

func (f *fakeRecognizer) fail(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing[url] = true
}

func (f *fakeRecognizer) Detect(ctx context.Context, imageURL string) (provider.Response, error) {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		seen := f.maxSeen.Load()
		if n <= seen || f.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	plate, ok := f.plates[imageURL]
	failing := f.failing[imageURL]
	f.mu.Unlock()

	if failing {
		return nil, errors.Join(detection.ErrProviderUnavailable, errors.New("upstream down"))
	}
	if !ok {
		plate = "GR-0000-00"
	}
	return workflowResponse(plate, f.conf), nil
}

func workflowResponse(plate string, conf float64) provider.Response {
	return provider.Response{
		"outputs": []interface{}{
			map[string]interface{}{
				"output": []interface{}{
					map[string]interface{}{"text": plate, "confidence": conf},
				},
			},
		},
	}
}

type fakeSMS struct {
	mu    sync.Mutex
	errs  []error
	calls int
	sent  []string
}

func (f *fakeSMS) Send(ctx context.Context, to, message string) (map[string]interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return map[string]interface{}{"error": f.errs[i].Error()}, f.errs[i]
	}
	f.sent = append(f.sent, message)
	return map[string]interface{}{"status": "success"}, nil
}

func (f *fakeSMS) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
