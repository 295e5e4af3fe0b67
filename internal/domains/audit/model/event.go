package model

import (
	"time"

	"github.com/google/uuid"
)

// Severity grades an audit event.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event types emitted by the promotion core.
const (
	EventPromotionCreated   = "promotion.created"
	EventPromotionUpdated   = "promotion.updated"
	EventPromotionDeleted   = "promotion.deleted"
	EventRulesReplaced      = "promotion.rules_replaced"
	EventStatusTransition   = "promotion.status_transition"
	EventPromotionActivated = "promotion.activated"
	EventPromotionExpired   = "promotion.expired"
	EventPromotionPaused    = "promotion.paused"
	EventPromotionResumed   = "promotion.resumed"
	EventResumeExpired      = "promotion.resume_expired"
	EventUsageRecorded      = "promotion.usage_recorded"
	EventSecurityViolation  = "promotion.security_violation"
	EventHealthAlert        = "promotion.health_alert"
	EventConflictDetected   = "promotion.conflict_detected"
)

// RiskLevel is attached to security events.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Event is one structured audit record. OldValues/NewValues carry only the
// fields that actually changed, built by explicit field comparison.
type Event struct {
	ID         uuid.UUID              `json:"id"`
	Type       string                 `json:"type"`
	EntityType string                 `json:"entity_type"`
	EntityID   uuid.UUID              `json:"entity_id"`
	OldValues  map[string]interface{} `json:"old_values,omitempty"`
	NewValues  map[string]interface{} `json:"new_values,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Severity   Severity               `json:"severity"`
	OccurredAt time.Time              `json:"occurred_at"`
}
