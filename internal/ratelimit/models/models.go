package models

import "time"

// RateLimitResult represents the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed    bool      `json:"allowed"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
	RetryAfter int       `json:"retry_after,omitempty"` // seconds, only set when not allowed
}

// Limit is a sliding-window quota.
type Limit struct {
	RequestsPerWindow int           `json:"requests_per_window"`
	Window            time.Duration `json:"window"`
}

// NotificationLimits holds the per-user and per-church notification quotas.
type NotificationLimits struct {
	User   Limit
	Church Limit
}

// DefaultNotificationLimits returns 30 per user and 300 per church per minute.
func DefaultNotificationLimits() NotificationLimits {
	return NotificationLimits{
		User:   Limit{RequestsPerWindow: 30, Window: time.Minute},
		Church: Limit{RequestsPerWindow: 300, Window: time.Minute},
	}
}
