package domain

// ============================================================
// Health & Metrics API Responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latencyMs"`
	LastChecked string `json:"lastChecked"`
	Detail      string `json:"detail,omitempty"`
}

// PortalMetrics is returned by GET /api/agency/metrics.
type PortalMetrics struct {
	LoginSuccess     int64   `json:"loginSuccess"`
	LoginFailure     int64   `json:"loginFailure"`
	RateLimited      int64   `json:"rateLimited"`
	PortalLoads      int64   `json:"portalLoads"`
	PortalMigrations int64   `json:"portalMigrations"`
	CacheHitRate     float64 `json:"cacheHitRate"`
	ExternalErrors   int64   `json:"externalErrors"`
	Period           string  `json:"period"`
}

// ============================================================
// Generic API Response wrappers
// ============================================================

// ListResponse wraps list results.
type ListResponse[T any] struct {
	Data  []T `json:"data"`
	Total int `json:"total"`
}

// SuccessResponse wraps a successful response without an entity.
type SuccessResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}
