package repository

import (
	"context"

	"github.com/google/uuid"

	"promo-engine/internal/domains/promotion/model"
)

// PromotionRepository is the storage contract the engine, scheduler and
// monitor consume. Persistence details stay behind it.
type PromotionRepository interface {
	// Read operations
	FindByID(ctx context.Context, id uuid.UUID) (*model.Promotion, error)
	GetActivePromotions(ctx context.Context) ([]*model.Promotion, error)
	List(ctx context.Context, filter *model.ListPromotionsFilter) ([]*model.Promotion, int, error)
	GetRules(ctx context.Context, promotionID uuid.UUID) ([]*model.PromotionRule, error)

	// Lifecycle support
	GetPromotionsForStatusUpdate(ctx context.Context) ([]*model.Promotion, error)
	GetPromotionsForMonitoring(ctx context.Context) ([]*model.Promotion, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.PromotionStatus) (bool, error)

	// Usage tracking. RecordUsage performs the conditionally-guarded
	// increment and the usage insert in one transaction; it returns a
	// usage-limit AppError when the guard rejects the increment.
	GetCustomerUsageCount(ctx context.Context, promotionID uuid.UUID, customerID uuid.UUID) (int, error)
	RecordUsage(ctx context.Context, usage *model.PromotionUsage) error
	GetUsageStatistics(ctx context.Context) ([]*model.UsageStatistics, error)

	// Gift inventory
	ValidateGiftProductsWithStock(ctx context.Context, productIDs []uuid.UUID) ([]model.GiftProductStock, error)

	// Rule management. ReplaceRules swaps the full set atomically.
	CreateRule(ctx context.Context, rule *model.PromotionRule) error
	DeleteRulesByPromotionID(ctx context.Context, promotionID uuid.UUID) error
	ReplaceRules(ctx context.Context, promotionID uuid.UUID, rules []*model.PromotionRule) error

	// Admin writes
	Create(ctx context.Context, promo *model.Promotion) error
	Update(ctx context.Context, promo *model.Promotion) error
	SoftDelete(ctx context.Context, id uuid.UUID) error

	// Lifecycle analytics
	RecordAnalytics(ctx context.Context, entry *model.AnalyticsEntry) error
}
