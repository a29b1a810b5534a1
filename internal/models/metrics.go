package models

import "time"

// SystemMetricsSnapshot is a lightweight aggregate of runtime metrics for
// the admin monitoring endpoint.
type SystemMetricsSnapshot struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	AuditTransitionsTotal    uint64    `json:"audit_transitions_total"`
	NotificationsQueued      uint64    `json:"notifications_queued"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
