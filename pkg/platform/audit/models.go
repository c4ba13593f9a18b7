package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events by their primary purpose so sinks can
// apply different retention.
type EventCategory string

const (
	// CategoryCompliance covers reads of a person's identity from a card.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to abuse monitoring.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers failed attempts caused by hardware or tooling.
	CategoryOperations EventCategory = "operations"
)

type AuditEvent string

const (
	EventIdentityResolved  AuditEvent = "identity_resolved"
	EventResolutionFailed  AuditEvent = "identity_resolution_failed"
	EventRateLimitExceeded AuditEvent = "rate_limit_exceeded"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventIdentityResolved:  CategoryCompliance,
	EventResolutionFailed:  CategoryOperations,
	EventRateLimitExceeded: CategorySecurity,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Event is emitted once per resolution attempt. It never carries the card
// UID or names; SubjectIDHash is a keyed digest of the UID so repeated reads
// of the same card can be correlated without storing the identifier.
type Event struct {
	ID        string        `json:"id"`
	Category  EventCategory `json:"category"`
	Action    AuditEvent    `json:"action"`
	Timestamp time.Time     `json:"timestamp"`
	RequestID string        `json:"requestId,omitempty"`
	ClientIP  string        `json:"clientIp,omitempty"`
	// Decision is "success" or the error category that ended the attempt.
	Decision string `json:"decision"`
	// Reason is the machine-stable error code, empty on success.
	Reason            string `json:"reason,omitempty"`
	SubjectIDHash     string `json:"subjectIdHash,omitempty"`
	Branch            string `json:"branch,omitempty"`
	DirectoryEnriched bool   `json:"directoryEnriched"`
	DurationMS        int64  `json:"durationMs"`
}

// Store persists audit events. Implementations must be safe for concurrent use.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}
