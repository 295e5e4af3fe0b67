package service

import (
	"context"

	"github.com/google/uuid"

	"promo-engine/internal/domains/promotion/model"
)

// Engine is the public evaluation surface consumed by the HTTP layer.
type Engine interface {
	EvaluatePromotions(ctx context.Context, evalCtx *model.EvaluationContext) (*model.PromotionEvaluationResult, error)
	RecordUsage(ctx context.Context, usage *model.PromotionUsage) error
}

// Scheduler drives the promotion lifecycle: the periodic status sweep plus
// the manual transitions with their guards.
type Scheduler interface {
	Start()
	Stop()
	IsRunning() bool
	Activate(ctx context.Context, id uuid.UUID) error
	Deactivate(ctx context.Context, id uuid.UUID) error
	Pause(ctx context.Context, id uuid.UUID) error
	// Resume re-derives the status from the clock; the returned status tells
	// the caller whether the promotion came back active or landed expired.
	Resume(ctx context.Context, id uuid.UUID) (model.PromotionStatus, error)
	ProcessScheduledPromotions(ctx context.Context) (int, error)
}

// Monitor audits system health in the background.
type Monitor interface {
	Start()
	Stop()
	IsActive() bool
	GetSystemHealthMetrics(ctx context.Context) (*model.SystemHealthMetrics, error)
	GetPromotionStatusUpdates(ctx context.Context) ([]model.PromotionStatusUpdate, error)
}

// Admin covers the promotion CRUD surface behind the admin API.
type Admin interface {
	Create(ctx context.Context, req *model.CreatePromotionRequest) (*model.Promotion, error)
	Update(ctx context.Context, id uuid.UUID, req *model.UpdatePromotionRequest) (*model.Promotion, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*model.Promotion, []*model.PromotionRule, error)
	List(ctx context.Context, filter *model.ListPromotionsFilter) ([]*model.Promotion, int, error)
	ReplaceRules(ctx context.Context, id uuid.UUID, req *model.ReplaceRulesRequest) ([]*model.PromotionRule, error)
}
