package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"promo-engine/internal/domains/audit"
	auditmodel "promo-engine/internal/domains/audit/model"
	"promo-engine/internal/domains/promotion/model"
	"promo-engine/internal/domains/promotion/repository"
	"promo-engine/internal/shared/metrics"
	"promo-engine/pkg/cache"
	"promo-engine/pkg/logger"
)

// PromotionEngine orchestrates evaluator and resolver per request. It is
// stateless apart from a short-TTL read-through cache of recent results, so
// concurrent evaluations never interfere.
type PromotionEngine struct {
	repo      repository.PromotionRepository
	cache     cache.Cache
	evaluator *Evaluator
	resolver  *Resolver
	validator *SecurityValidator
	sink      audit.Sink

	cacheTTL time.Duration
	now      func() time.Time
}

func NewPromotionEngine(
	repo repository.PromotionRepository,
	resultCache cache.Cache,
	validator *SecurityValidator,
	sink audit.Sink,
	cacheTTL time.Duration,
) *PromotionEngine {
	return &PromotionEngine{
		repo:      repo,
		cache:     resultCache,
		evaluator: NewEvaluator(),
		resolver:  NewResolver(),
		validator: validator,
		sink:      sink,
		cacheTTL:  cacheTTL,
		now:       time.Now,
	}
}

// EvaluatePromotions answers the engine's one public question: which
// promotion does this cart get. The candidate is never trusted until the
// security validator has recomputed it from persisted rules.
func (e *PromotionEngine) EvaluatePromotions(ctx context.Context, evalCtx *model.EvaluationContext) (*model.PromotionEvaluationResult, error) {
	start := e.now()
	defer func() {
		metrics.EvaluationDuration.Observe(time.Since(start).Seconds())
	}()
	metrics.EvaluationsTotal.Inc()

	if err := evalCtx.Validate(); err != nil {
		return nil, err
	}

	cacheKey := evaluationCacheKey(evalCtx)
	var cached model.PromotionEvaluationResult
	if found, err := e.cache.Get(ctx, cacheKey, &cached); err != nil {
		logger.Error("engine: cache read", err)
	} else if found {
		metrics.EvaluationCacheHits.Inc()
		return &cached, nil
	}

	eligible, err := e.collectEligible(ctx, evalCtx)
	if err != nil {
		return nil, err
	}

	result := &model.PromotionEvaluationResult{
		Eligible:    eligible,
		EvaluatedAt: e.now(),
	}

	selected, conflict := e.resolver.Resolve(eligible)
	result.Conflict = conflict

	if selected != nil {
		candidate := &model.AppliedPromotion{
			PromotionID:    selected.Promotion.ID,
			PromotionName:  selected.Promotion.Name,
			DiscountAmount: selected.PotentialDiscount,
			FreeGifts:      selected.PotentialGifts,
			AppliedAt:      e.now(),
		}

		rules, err := e.repo.GetRules(ctx, selected.Promotion.ID)
		if err != nil {
			return nil, fmt.Errorf("load rules for validation: %w", err)
		}
		if err := e.validator.ValidateCandidate(ctx, evalCtx, candidate, selected.Promotion, rules); err != nil {
			return nil, err
		}
		result.Applied = candidate
	}

	if err := e.cache.Set(ctx, cacheKey, result, e.cacheTTL); err != nil {
		logger.Error("engine: cache write", err)
	}

	return result, nil
}

// collectEligible loads the active catalog and runs the pure evaluator over
// each promotion that passes the lifecycle gates.
func (e *PromotionEngine) collectEligible(ctx context.Context, evalCtx *model.EvaluationContext) ([]*model.EligiblePromotion, error) {
	promotions, err := e.repo.GetActivePromotions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active promotions: %w", err)
	}

	now := e.now()
	var eligible []*model.EligiblePromotion
	for _, promo := range promotions {
		if promo.IsDeleted() || promo.DeriveStatus(now) != model.StatusActive {
			continue
		}
		if promo.IsUsageLimitReached() {
			continue
		}
		if evalCtx.CustomerID != nil && promo.UsageLimitPerCustomer != nil {
			count, err := e.repo.GetCustomerUsageCount(ctx, promo.ID, *evalCtx.CustomerID)
			if err != nil {
				logger.ErrorWithFields("engine: customer usage lookup", err, map[string]interface{}{
					"promotion_id": promo.ID,
				})
				continue
			}
			if count >= *promo.UsageLimitPerCustomer {
				continue
			}
		}

		rules, err := e.repo.GetRules(ctx, promo.ID)
		if err != nil {
			logger.ErrorWithFields("engine: rule lookup", err, map[string]interface{}{
				"promotion_id": promo.ID,
			})
			continue
		}

		if candidate, ok := e.evaluator.Evaluate(evalCtx, promo, rules); ok {
			eligible = append(eligible, candidate)
		}
	}

	return eligible, nil
}

// RecordUsage commits one redemption after order completion. The storage
// layer performs the conditionally-guarded increment, so two concurrent
// redemptions at the cap cannot both succeed.
func (e *PromotionEngine) RecordUsage(ctx context.Context, usage *model.PromotionUsage) error {
	promo, err := e.repo.FindByID(ctx, usage.PromotionID)
	if err != nil {
		return err
	}

	now := e.now()
	if promo.IsDeleted() || promo.DeriveStatus(now) != model.StatusActive {
		return &model.AppError{
			Code:       model.ErrCodePromoNotActive,
			Message:    fmt.Sprintf("promotion %q is not active", promo.Name),
			HTTPStatus: 400,
		}
	}

	if usage.CustomerID != nil && promo.UsageLimitPerCustomer != nil {
		count, err := e.repo.GetCustomerUsageCount(ctx, promo.ID, *usage.CustomerID)
		if err != nil {
			return fmt.Errorf("customer usage lookup: %w", err)
		}
		if count >= *promo.UsageLimitPerCustomer {
			return &model.AppError{
				Code:       model.ErrCodeCustomerLimitExceeded,
				Message:    "per-customer usage limit reached",
				Details:    map[string]interface{}{"limit": *promo.UsageLimitPerCustomer},
				HTTPStatus: 400,
			}
		}
	}

	if usage.ID == uuid.Nil {
		usage.ID = uuid.New()
	}
	if usage.UsedAt.IsZero() {
		usage.UsedAt = now
	}
	usage.PromotionSnapshot = promo

	if err := e.repo.RecordUsage(ctx, usage); err != nil {
		return err
	}

	// High-value redemptions feed the validator's velocity counter.
	if usage.CustomerID != nil && e.validator.IsHighValue(usage.DiscountAmount) {
		e.validator.BumpVelocity(ctx, *usage.CustomerID)
	}

	e.sink.Record(ctx, auditmodel.Event{
		Type:       auditmodel.EventUsageRecorded,
		EntityType: "promotion",
		EntityID:   usage.PromotionID,
		Metadata: map[string]interface{}{
			"order_id":        usage.OrderID,
			"discount_amount": usage.DiscountAmount,
			"cart_subtotal":   usage.CartSubtotal,
		},
		Severity: auditmodel.SeverityInfo,
	})

	return nil
}

// evaluationCacheKey hashes the canonical context so identical carts share a
// cache entry and nothing sensitive lands in the key itself.
func evaluationCacheKey(evalCtx *model.EvaluationContext) string {
	payload, err := json.Marshal(evalCtx)
	if err != nil {
		return "promo:eval:unhashable"
	}
	sum := sha256.Sum256(payload)
	return "promo:eval:" + hex.EncodeToString(sum[:])
}
