package service

import (
	"sync/atomic"
	"time"
)

// Metrics are process-local detection counters safe for concurrent use.
type Metrics struct {
	total        atomic.Int64
	succeeded    atomic.Int64
	failed       atomic.Int64
	cacheHits    atomic.Int64
	latencyTotal atomic.Int64
}

type MetricsSnapshot struct {
	Total        int64   `json:"total"`
	Succeeded    int64   `json:"succeeded"`
	Failed       int64   `json:"failed"`
	CacheHits    int64   `json:"cache_hits"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	CacheSize    int     `json:"cache_size"`
	SuccessRate  float64 `json:"success_rate"`
	CacheHitRate float64 `json:"cache_hit_rate"`
}

func (m *Metrics) recordSuccess(latency time.Duration) {
	m.total.Add(1)
	m.succeeded.Add(1)
	m.latencyTotal.Add(int64(latency))
}

func (m *Metrics) recordFailure() {
	m.total.Add(1)
	m.failed.Add(1)
}

func (m *Metrics) recordCacheHit() {
	m.cacheHits.Add(1)
}

// Snapshot reports counters; rates are percentages of processed (non-cached) requests
// and the average latency covers successful detections only.
func (m *Metrics) Snapshot(cacheSize int) MetricsSnapshot {
	s := MetricsSnapshot{
		Total:     m.total.Load(),
		Succeeded: m.succeeded.Load(),
		Failed:    m.failed.Load(),
		CacheHits: m.cacheHits.Load(),
		CacheSize: cacheSize,
	}
	if s.Succeeded > 0 {
		avg := time.Duration(m.latencyTotal.Load() / s.Succeeded)
		s.AvgLatencyMs = float64(avg) / float64(time.Millisecond)
	}
	if s.Total > 0 {
		s.SuccessRate = float64(s.Succeeded) / float64(s.Total) * 100
		s.CacheHitRate = float64(s.CacheHits) / float64(s.Total) * 100
	}
	return s
}

func (m *Metrics) Reset() {
	m.total.Store(0)
	m.succeeded.Store(0)
	m.failed.Store(0)
	m.cacheHits.Store(0)
	m.latencyTotal.Store(0)
}
