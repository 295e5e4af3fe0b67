package model

import (
	"time"

	"github.com/google/uuid"
)

// PromotionType represents the kind of benefit a campaign grants.
type PromotionType string

const (
	PromotionTypePercentageDiscount PromotionType = "percentage_discount"
	PromotionTypeFixedDiscount      PromotionType = "fixed_discount"
	PromotionTypeFreeGift           PromotionType = "free_gift"
)

func (t PromotionType) IsValid() bool {
	switch t {
	case PromotionTypePercentageDiscount, PromotionTypeFixedDiscount, PromotionTypeFreeGift:
		return true
	}
	return false
}

func (t PromotionType) String() string {
	return string(t)
}

// PromotionStatus represents the lifecycle state of a promotion.
type PromotionStatus string

const (
	StatusDraft     PromotionStatus = "draft"
	StatusScheduled PromotionStatus = "scheduled"
	StatusActive    PromotionStatus = "active"
	StatusPaused    PromotionStatus = "paused"
	StatusExpired   PromotionStatus = "expired"
)

func (s PromotionStatus) IsValid() bool {
	switch s {
	case StatusDraft, StatusScheduled, StatusActive, StatusPaused, StatusExpired:
		return true
	}
	return false
}

func (s PromotionStatus) String() string {
	return string(s)
}

// Promotion represents a time-bounded discount or gift campaign.
type Promotion struct {
	ID          uuid.UUID     `json:"id" db:"id"`
	Name        string        `json:"name" db:"name"`
	Description *string       `json:"description,omitempty" db:"description"`
	Type        PromotionType `json:"type" db:"type"`

	Status   PromotionStatus `json:"status" db:"status"`
	Priority int             `json:"priority" db:"priority"`

	// Validity window. EndsAt is always after StartsAt.
	StartsAt time.Time `json:"starts_at" db:"starts_at"`
	EndsAt   time.Time `json:"ends_at" db:"ends_at"`

	// Usage limits. Nil means unlimited; zero means exhausted from the start.
	UsageLimit            *int `json:"usage_limit,omitempty" db:"usage_limit"`
	UsageLimitPerCustomer *int `json:"usage_limit_per_customer,omitempty" db:"usage_limit_per_customer"`
	CurrentUsageCount     int  `json:"current_usage_count" db:"current_usage_count"`

	// Promotions that must never be applied alongside this one.
	ExclusiveWith []uuid.UUID `json:"exclusive_with,omitempty" db:"exclusive_with"`

	Version   int        `json:"version" db:"version"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// DeriveStatus computes the status the wall clock dictates at the given
// instant. Paused is sticky: the sweep never overrides it, only a manual
// resume re-derives.
func (p *Promotion) DeriveStatus(now time.Time) PromotionStatus {
	if p.Status == StatusPaused {
		return StatusPaused
	}
	switch {
	case now.Before(p.StartsAt):
		return StatusScheduled
	case now.Before(p.EndsAt):
		return StatusActive
	default:
		return StatusExpired
	}
}

// IsWithinWindow reports whether now falls inside [StartsAt, EndsAt).
func (p *Promotion) IsWithinWindow(now time.Time) bool {
	return !now.Before(p.StartsAt) && now.Before(p.EndsAt)
}

// IsUsageLimitReached reports whether the global usage cap is exhausted.
func (p *Promotion) IsUsageLimitReached() bool {
	return p.UsageLimit != nil && p.CurrentUsageCount >= *p.UsageLimit
}

// IsDeleted reports whether the promotion has been soft-deleted.
func (p *Promotion) IsDeleted() bool {
	return p.DeletedAt != nil
}

// IsExclusiveWith reports whether the given promotion id is listed as
// incompatible with this one.
func (p *Promotion) IsExclusiveWith(other uuid.UUID) bool {
	for _, id := range p.ExclusiveWith {
		if id == other {
			return true
		}
	}
	return false
}

// RemainingUses returns how many global uses are left, or nil when unlimited.
func (p *Promotion) RemainingUses() *int {
	if p.UsageLimit == nil {
		return nil
	}
	remaining := *p.UsageLimit - p.CurrentUsageCount
	if remaining < 0 {
		remaining = 0
	}
	return &remaining
}
