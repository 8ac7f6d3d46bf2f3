package domain

import "time"

// EventType names an operational signal.
type EventType string

const (
	EventFallbackTriggered   EventType = "fallback-triggered"
	EventFallbackSuccess     EventType = "fallback-success"
	EventEmergencyFallback   EventType = "emergency-fallback"
	EventThrottleChanged     EventType = "throttle-level-changed"
	EventResourceMetrics     EventType = "resource-metrics"
	EventCircuitStateChanged EventType = "circuit-state-changed"
	EventWorkloadsPaused     EventType = "workloads-paused"
	EventWorkloadsResumed    EventType = "workloads-resumed"
	EventCacheCleared        EventType = "cache-cleared"
)

// Severity of an operational signal.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Event is a structured, fire-and-forget operational signal.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Component string         `json:"component,omitempty"`
	Severity  Severity       `json:"severity"`
	Data      map[string]any `json:"data,omitempty"`
}
