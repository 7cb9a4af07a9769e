// Package healthcheck aggregates component health for the /health endpoint
// and for periodic reports over MQTT.
package healthcheck

import (
	"context"
	"time"
)

// Status represents the health state of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown"
)

// severity orders statuses from best to worst. Unknown counts as degraded.
func (s Status) severity() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded, StatusUnknown:
		return 1
	default:
		return 2
	}
}

// Result is the outcome of a single check.
type Result struct {
	Component string                 `json:"component"`
	Status    Status                 `json:"status"`
	Message   string                 `json:"message,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Duration  time.Duration          `json:"duration"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// NewResult creates a result stamped with the current time.
func NewResult(component string, status Status, message string) *Result {
	return &Result{
		Component: component,
		Status:    status,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

// WithDetail attaches a detail value and returns r.
func (r *Result) WithDetail(key string, value interface{}) *Result {
	if r.Details == nil {
		r.Details = make(map[string]interface{})
	}
	r.Details[key] = value
	return r
}

// Checker checks one component.
type Checker interface {
	Name() string
	Check(ctx context.Context) *Result
}

type funcChecker struct {
	name string
	fn   func(ctx context.Context) *Result
}

func (f funcChecker) Name() string { return f.name }

func (f funcChecker) Check(ctx context.Context) *Result { return f.fn(ctx) }

// NewChecker adapts fn into a named Checker.
func NewChecker(name string, fn func(ctx context.Context) *Result) Checker {
	return funcChecker{name: name, fn: fn}
}

// AggregatedResult combines the results of all registered checkers.
type AggregatedResult struct {
	OverallStatus Status             `json:"status"`
	Components    map[string]*Result `json:"components"`
	Timestamp     time.Time          `json:"timestamp"`
}

// IsHealthy returns true when every component is healthy.
func (ar *AggregatedResult) IsHealthy() bool {
	return ar.OverallStatus == StatusHealthy
}

// DetermineOverallStatus returns the worst status among results.
// No results at all is reported as unknown.
func DetermineOverallStatus(results map[string]*Result) Status {
	if len(results) == 0 {
		return StatusUnknown
	}
	overall := StatusHealthy
	for _, result := range results {
		if result.Status.severity() > overall.severity() {
			overall = result.Status
		}
	}
	if overall == StatusUnknown {
		return StatusDegraded
	}
	return overall
}
