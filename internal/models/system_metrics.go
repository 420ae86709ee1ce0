package models

import "time"

// SystemMetrics is a lightweight snapshot of process instrumentation.
type SystemMetrics struct {
	RefreshesTotal           uint64    `json:"refreshes_total"`
	RefreshFailures          uint64    `json:"refresh_failures"`
	UpstreamRequests         uint64    `json:"upstream_requests"`
	Reauthentications        uint64    `json:"reauthentications"`
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
