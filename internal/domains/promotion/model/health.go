package model

import (
	"time"

	"github.com/google/uuid"
)

// HealthIssueType labels one anomaly found by the monitor.
type HealthIssueType string

const (
	IssueExpiredButActive HealthIssueType = "expired_but_active"
	IssueFutureButActive  HealthIssueType = "future_but_active"
	IssueUsageExceeded    HealthIssueType = "usage_limit_exceeded"
	IssueUsageNearLimit   HealthIssueType = "usage_near_limit"
	IssueDiscountAnomaly  HealthIssueType = "discount_ratio_anomaly"
	IssueExclusivePair    HealthIssueType = "exclusive_pair_active"
	IssuePriorityOverlap  HealthIssueType = "priority_window_overlap"
)

// HealthIssue is one finding, tied to the promotion(s) involved.
type HealthIssue struct {
	Type         HealthIssueType `json:"type"`
	PromotionIDs []uuid.UUID     `json:"promotion_ids"`
	Detail       string          `json:"detail"`
	DetectedAt   time.Time       `json:"detected_at"`
}

// SystemHealthMetrics is the monitor's aggregate answer: status counts plus
// a 0-100 score deducted per issue.
type SystemHealthMetrics struct {
	StatusCounts  map[PromotionStatus]int `json:"status_counts"`
	HealthScore   int                     `json:"health_score"`
	Issues        []HealthIssue           `json:"issues,omitempty"`
	ConflictCount int                     `json:"conflict_count"`
	CheckedAt     time.Time               `json:"checked_at"`
}

// PromotionStatusUpdate reports, for one promotion, whether its persisted
// status has drifted from what the clock dictates.
type PromotionStatusUpdate struct {
	PromotionID    uuid.UUID       `json:"promotion_id"`
	CurrentStatus  PromotionStatus `json:"current_status"`
	ExpectedStatus PromotionStatus `json:"expected_status"`
	NeedsUpdate    bool            `json:"needs_update"`
}
