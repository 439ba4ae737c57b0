package model

import (
	"time"
)

const (
	AuditStatusSuccess = "success"
	AuditStatusFailure = "failure"
)

// AuditRecord is one immutable entry in the audit trail: exactly one per
// dispatch attempt, regardless of outcome.
type AuditRecord struct {
	ID        string `json:"id"`     // unique request ID (UUID)
	Action    string `json:"action"` // "METHOD /path"
	UserID    string `json:"user_id,omitempty"`
	IP        string `json:"ip"`
	UserAgent string `json:"user_agent"`

	// Details carries the request echo, responseTime in milliseconds, and
	// either the response snapshot or the failure message.
	Details map[string]any `json:"details"`

	Status    string    `json:"status"` // success | failure
	Timestamp time.Time `json:"timestamp"`
}
