package model

import (
	"github.com/google/uuid"

	promomodel "promo-engine/internal/domains/promotion/model"
)

// PromotionDiff compares two promotion snapshots field by field and returns
// old/new maps holding only the fields that changed. Explicit comparison on
// the typed struct, no generic object diffing.
func PromotionDiff(before, after *promomodel.Promotion) (oldValues, newValues map[string]interface{}) {
	oldValues = map[string]interface{}{}
	newValues = map[string]interface{}{}

	if before.Name != after.Name {
		oldValues["name"] = before.Name
		newValues["name"] = after.Name
	}
	if !equalStringPtr(before.Description, after.Description) {
		oldValues["description"] = before.Description
		newValues["description"] = after.Description
	}
	if before.Type != after.Type {
		oldValues["type"] = before.Type
		newValues["type"] = after.Type
	}
	if before.Status != after.Status {
		oldValues["status"] = before.Status
		newValues["status"] = after.Status
	}
	if before.Priority != after.Priority {
		oldValues["priority"] = before.Priority
		newValues["priority"] = after.Priority
	}
	if !before.StartsAt.Equal(after.StartsAt) {
		oldValues["starts_at"] = before.StartsAt
		newValues["starts_at"] = after.StartsAt
	}
	if !before.EndsAt.Equal(after.EndsAt) {
		oldValues["ends_at"] = before.EndsAt
		newValues["ends_at"] = after.EndsAt
	}
	if !equalIntPtr(before.UsageLimit, after.UsageLimit) {
		oldValues["usage_limit"] = before.UsageLimit
		newValues["usage_limit"] = after.UsageLimit
	}
	if !equalIntPtr(before.UsageLimitPerCustomer, after.UsageLimitPerCustomer) {
		oldValues["usage_limit_per_customer"] = before.UsageLimitPerCustomer
		newValues["usage_limit_per_customer"] = after.UsageLimitPerCustomer
	}
	if before.CurrentUsageCount != after.CurrentUsageCount {
		oldValues["current_usage_count"] = before.CurrentUsageCount
		newValues["current_usage_count"] = after.CurrentUsageCount
	}
	if !equalUUIDSlice(before.ExclusiveWith, after.ExclusiveWith) {
		oldValues["exclusive_with"] = before.ExclusiveWith
		newValues["exclusive_with"] = after.ExclusiveWith
	}

	if len(oldValues) == 0 {
		return nil, nil
	}
	return oldValues, newValues
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalIntPtr(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalUUIDSlice(a, b []uuid.UUID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
