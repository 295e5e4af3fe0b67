package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"promo-engine/internal/config"
	"promo-engine/internal/domains/audit"
	auditmodel "promo-engine/internal/domains/audit/model"
	"promo-engine/internal/domains/promotion/model"
	"promo-engine/internal/domains/promotion/repository"
	"promo-engine/internal/shared/metrics"
	"promo-engine/pkg/cache"
	"promo-engine/pkg/logger"
)

// SecurityValidator independently recomputes every number the engine
// produced before any result is trusted. Every step fails closed: one
// failure aborts acceptance, and every rejection lands in the audit trail
// with a computed risk level.
type SecurityValidator struct {
	repo      repository.PromotionRepository
	cache     cache.Cache
	sink      audit.Sink
	evaluator *Evaluator
	cfg       config.SecurityConfig
	now       func() time.Time
}

func NewSecurityValidator(
	repo repository.PromotionRepository,
	velocityCache cache.Cache,
	sink audit.Sink,
	cfg config.SecurityConfig,
) *SecurityValidator {
	return &SecurityValidator{
		repo:      repo,
		cache:     velocityCache,
		sink:      sink,
		evaluator: NewEvaluator(),
		cfg:       cfg,
		now:       time.Now,
	}
}

// ValidateCandidate runs the full fail-closed chain against a candidate
// AppliedPromotion. rules must be the promotion's persisted rule set, not
// anything the engine computed.
func (v *SecurityValidator) ValidateCandidate(
	ctx context.Context,
	evalCtx *model.EvaluationContext,
	candidate *model.AppliedPromotion,
	promo *model.Promotion,
	rules []*model.PromotionRule,
) error {
	steps := []func(context.Context, *model.EvaluationContext, *model.AppliedPromotion, *model.Promotion, []*model.PromotionRule) error{
		v.checkContextIntegrity,
		v.checkDiscountRecomputation,
		v.checkBounds,
		v.checkGifts,
		v.checkHighValue,
		v.checkUsageBypass,
		v.checkEligibility,
	}

	for _, step := range steps {
		if err := step(ctx, evalCtx, candidate, promo, rules); err != nil {
			v.reportViolation(ctx, evalCtx, candidate, err)
			return err
		}
	}
	return nil
}

// Step 1: context integrity. Structural validation plus per-line subtotal
// arithmetic and the configured quantity and price ceilings.
func (v *SecurityValidator) checkContextIntegrity(ctx context.Context, evalCtx *model.EvaluationContext, _ *model.AppliedPromotion, _ *model.Promotion, _ []*model.PromotionRule) error {
	if err := evalCtx.Validate(); err != nil {
		return err
	}

	priceCeiling := decimal.NewFromInt(v.cfg.MaxItemPrice)
	for _, item := range evalCtx.CartItems {
		if item.Quantity > v.cfg.MaxItemQuantity {
			return &model.AppError{
				Code:       model.ErrCodeInvalidItem,
				Message:    fmt.Sprintf("quantity %d exceeds the allowed maximum of %d", item.Quantity, v.cfg.MaxItemQuantity),
				HTTPStatus: 400,
			}
		}
		expected := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		if item.Subtotal.Sub(expected).Abs().GreaterThan(model.SubtotalTolerance) {
			return &model.AppError{
				Code: model.ErrCodeInvalidItem,
				Message: fmt.Sprintf("item subtotal mismatch for product %s: declared %s, expected %s",
					item.ProductID, item.Subtotal.String(), expected.String()),
				HTTPStatus: 400,
			}
		}
		if item.UnitPrice.GreaterThan(priceCeiling) {
			return &model.AppError{
				Code:       model.ErrCodeInvalidItem,
				Message:    fmt.Sprintf("unit price %s exceeds the allowed ceiling", item.UnitPrice.String()),
				HTTPStatus: 400,
			}
		}
	}
	return nil
}

// Step 2: discount recomputation. The candidate's discount must match an
// independent re-derivation from persisted rules within the rounding
// tolerance. Gift-only promotions must carry exactly zero discount.
func (v *SecurityValidator) checkDiscountRecomputation(_ context.Context, evalCtx *model.EvaluationContext, candidate *model.AppliedPromotion, promo *model.Promotion, rules []*model.PromotionRule) error {
	if promo.Type == model.PromotionTypeFreeGift {
		if !candidate.DiscountAmount.IsZero() {
			return model.NewDiscountMismatchError(candidate.DiscountAmount, decimal.Zero)
		}
		return nil
	}

	recomputed, ok := v.evaluator.Evaluate(evalCtx, promo, rules)
	if !ok {
		return &model.AppError{
			Code:       model.ErrCodeStaleEligibility,
			Message:    "cart no longer satisfies the promotion's conditions",
			HTTPStatus: 403,
		}
	}

	if candidate.DiscountAmount.Sub(recomputed.PotentialDiscount).Abs().GreaterThan(model.SubtotalTolerance) {
		return model.NewDiscountMismatchError(candidate.DiscountAmount, recomputed.PotentialDiscount)
	}
	return nil
}

// Step 3: bounds. Never more than the cart subtotal, never negative, never
// past the manual-review ceiling.
func (v *SecurityValidator) checkBounds(_ context.Context, evalCtx *model.EvaluationContext, candidate *model.AppliedPromotion, _ *model.Promotion, _ []*model.PromotionRule) error {
	if candidate.DiscountAmount.IsNegative() {
		return &model.AppError{
			Code:       model.ErrCodeDiscountExcessive,
			Message:    "discount amount must not be negative",
			HTTPStatus: 403,
		}
	}
	if candidate.DiscountAmount.GreaterThan(evalCtx.CartSubtotal) {
		return &model.AppError{
			Code: model.ErrCodeDiscountExcessive,
			Message: fmt.Sprintf("discount %s exceeds cart subtotal %s",
				candidate.DiscountAmount.String(), evalCtx.CartSubtotal.String()),
			HTTPStatus: 403,
		}
	}
	if candidate.DiscountAmount.GreaterThan(decimal.NewFromInt(v.cfg.ManualReviewCeiling)) {
		return &model.AppError{
			Code: model.ErrCodeHighValueRejected,
			Message: fmt.Sprintf("discount %s exceeds the manual review ceiling",
				candidate.DiscountAmount.String()),
			HTTPStatus: 403,
		}
	}
	return nil
}

// Step 4: gift validation. Caps, inventory, and configuration match: every
// gift the candidate carries must come from a qualified benefit rule.
func (v *SecurityValidator) checkGifts(ctx context.Context, evalCtx *model.EvaluationContext, candidate *model.AppliedPromotion, _ *model.Promotion, rules []*model.PromotionRule) error {
	if len(candidate.FreeGifts) == 0 {
		return nil
	}

	total := 0
	for _, gift := range candidate.FreeGifts {
		if gift.Quantity > v.cfg.MaxGiftPerItem {
			return model.NewExcessiveGiftError(gift.Quantity, v.cfg.MaxGiftPerItem)
		}
		total += gift.Quantity
	}
	if total > v.cfg.MaxGiftTotal {
		return model.NewExcessiveGiftError(total, v.cfg.MaxGiftTotal)
	}

	allowed := v.allowedGifts(evalCtx, rules)
	var catalogIDs []uuid.UUID
	for _, gift := range candidate.FreeGifts {
		if !giftConfigured(gift, allowed) {
			return &model.AppError{
				Code:       model.ErrCodeGiftInvalid,
				Message:    "gift does not correspond to any configured benefit for this cart",
				HTTPStatus: 403,
			}
		}
		if gift.IsCatalogLinked() {
			catalogIDs = append(catalogIDs, *gift.ProductID)
		}
	}

	if len(catalogIDs) > 0 {
		stock, err := v.repo.ValidateGiftProductsWithStock(ctx, catalogIDs)
		if err != nil {
			return fmt.Errorf("gift stock lookup: %w", err)
		}
		byID := make(map[uuid.UUID]model.GiftProductStock, len(stock))
		for _, s := range stock {
			byID[s.ProductID] = s
		}
		for _, gift := range candidate.FreeGifts {
			if !gift.IsCatalogLinked() {
				continue
			}
			s, known := byID[*gift.ProductID]
			if !known || !s.InStock || s.AvailableQuantity < gift.Quantity {
				return &model.AppError{
					Code:       model.ErrCodeGiftInvalid,
					Message:    fmt.Sprintf("gift product %s is out of stock or unknown", gift.ProductID),
					HTTPStatus: 403,
				}
			}
		}
	}
	return nil
}

// allowedGifts expands every gift rule whose tier the cart satisfies.
func (v *SecurityValidator) allowedGifts(evalCtx *model.EvaluationContext, rules []*model.PromotionRule) []model.FreeGift {
	var allowed []model.FreeGift
	_, benefits := model.SplitRules(rules)
	for _, rule := range benefits {
		if rule.BenefitType != model.BenefitFreeGift || !v.evaluator.tierQualifies(evalCtx, rule) {
			continue
		}
		gifts, _ := v.evaluator.giftsFor(evalCtx, rule)
		allowed = append(allowed, gifts...)
	}
	return allowed
}

func giftConfigured(gift model.FreeGift, allowed []model.FreeGift) bool {
	for _, a := range allowed {
		if gift.IsCatalogLinked() && a.IsCatalogLinked() &&
			*gift.ProductID == *a.ProductID && gift.Quantity <= a.Quantity {
			return true
		}
		if !gift.IsCatalogLinked() && !a.IsCatalogLinked() &&
			gift.Name != nil && a.Name != nil && *gift.Name == *a.Name && gift.Quantity <= a.Quantity {
			return true
		}
	}
	return false
}

// Step 5: high-value scrutiny. Big discounts need a bounded usage limit,
// must stay under the subtotal percentage cap, and trip a per-customer
// velocity check.
func (v *SecurityValidator) checkHighValue(ctx context.Context, evalCtx *model.EvaluationContext, candidate *model.AppliedPromotion, promo *model.Promotion, _ []*model.PromotionRule) error {
	if !v.IsHighValue(candidate.DiscountAmount) {
		return nil
	}

	if promo.UsageLimit == nil || *promo.UsageLimit <= 0 || *promo.UsageLimit > highValueMaxUsageLimit {
		return &model.AppError{
			Code:       model.ErrCodeHighValueRejected,
			Message:    "high-value promotions require a bounded usage limit",
			HTTPStatus: 403,
		}
	}

	pctCap := evalCtx.CartSubtotal.
		Mul(decimal.NewFromInt(int64(v.cfg.HighValueSubtotalPct))).
		Div(oneHundred)
	if candidate.DiscountAmount.GreaterThan(pctCap) {
		return &model.AppError{
			Code: model.ErrCodeHighValueRejected,
			Message: fmt.Sprintf("high-value discount %s exceeds %d%% of cart subtotal",
				candidate.DiscountAmount.String(), v.cfg.HighValueSubtotalPct),
			HTTPStatus: 403,
		}
	}

	if evalCtx.CustomerID != nil {
		var count int64
		found, err := v.cache.Get(ctx, velocityKey(*evalCtx.CustomerID), &count)
		if err != nil {
			logger.Error("validator: velocity lookup", err)
		}
		if found && count > v.cfg.VelocityLimit {
			return &model.AppError{
				Code: model.ErrCodeHighValueRejected,
				Message: fmt.Sprintf("customer exceeded %d high-value redemptions in %dh",
					v.cfg.VelocityLimit, v.cfg.VelocityWindowHours),
				HTTPStatus: 403,
			}
		}
	}
	return nil
}

// Step 6: usage bypass. Re-verify against the repository's live counts, not
// the engine's cached view; this closes the race where two concurrent
// evaluations both pass a stale check.
func (v *SecurityValidator) checkUsageBypass(ctx context.Context, evalCtx *model.EvaluationContext, _ *model.AppliedPromotion, promo *model.Promotion, _ []*model.PromotionRule) error {
	fresh, err := v.repo.FindByID(ctx, promo.ID)
	if err != nil {
		return fmt.Errorf("live usage lookup: %w", err)
	}

	if fresh.IsUsageLimitReached() {
		return &model.AppError{
			Code:       model.ErrCodeUsageBypass,
			Message:    "promotion usage limit reached at validation time",
			Details:    map[string]interface{}{"current_usage": fresh.CurrentUsageCount},
			HTTPStatus: 403,
		}
	}

	if evalCtx.CustomerID != nil && fresh.UsageLimitPerCustomer != nil {
		count, err := v.repo.GetCustomerUsageCount(ctx, fresh.ID, *evalCtx.CustomerID)
		if err != nil {
			return fmt.Errorf("live customer usage lookup: %w", err)
		}
		if count >= *fresh.UsageLimitPerCustomer {
			return &model.AppError{
				Code:       model.ErrCodeUsageBypass,
				Message:    "per-customer usage limit reached at validation time",
				HTTPStatus: 403,
			}
		}
	}
	return nil
}

// Step 7: eligibility re-check. The promotion may have been paused, expired
// or deleted since the engine loaded it.
func (v *SecurityValidator) checkEligibility(ctx context.Context, _ *model.EvaluationContext, _ *model.AppliedPromotion, promo *model.Promotion, _ []*model.PromotionRule) error {
	fresh, err := v.repo.FindByID(ctx, promo.ID)
	if err != nil {
		return fmt.Errorf("eligibility re-check: %w", err)
	}

	now := v.now()
	if fresh.IsDeleted() || fresh.DeriveStatus(now) != model.StatusActive || !fresh.IsWithinWindow(now) {
		return &model.AppError{
			Code:       model.ErrCodeStaleEligibility,
			Message:    fmt.Sprintf("promotion %q is no longer active", fresh.Name),
			HTTPStatus: 403,
		}
	}
	return nil
}

// IsHighValue reports whether a discount crosses the scrutiny threshold.
func (v *SecurityValidator) IsHighValue(discount decimal.Decimal) bool {
	return discount.GreaterThanOrEqual(decimal.NewFromInt(v.cfg.HighValueThreshold))
}

// BumpVelocity increments the customer's high-value redemption counter for
// the rolling window.
func (v *SecurityValidator) BumpVelocity(ctx context.Context, customerID uuid.UUID) {
	key := velocityKey(customerID)
	n, err := v.cache.Increment(ctx, key)
	if err != nil {
		logger.Error("validator: velocity increment", err)
		return
	}
	// First hit starts the window.
	if n == 1 {
		window := time.Duration(v.cfg.VelocityWindowHours) * time.Hour
		if err := v.cache.Expire(ctx, key, window); err != nil {
			logger.Error("validator: velocity expire", err)
		}
	}
}

// reportViolation feeds security rejections to the audit trail with a
// computed risk level. Plain validation errors are not security events.
func (v *SecurityValidator) reportViolation(ctx context.Context, evalCtx *model.EvaluationContext, candidate *model.AppliedPromotion, err error) {
	appErr, ok := model.AsAppError(err)
	if !ok || !appErr.IsSecurityViolation() {
		return
	}

	metrics.SecurityViolationsTotal.WithLabelValues(string(appErr.Code)).Inc()

	metadata := map[string]interface{}{
		"code":          appErr.Code,
		"message":       appErr.Message,
		"risk_level":    v.riskLevel(candidate, appErr),
		"cart_subtotal": evalCtx.CartSubtotal,
	}
	if evalCtx.CustomerID != nil {
		metadata["customer_id"] = *evalCtx.CustomerID
	}

	v.sink.Record(ctx, auditmodel.Event{
		Type:       auditmodel.EventSecurityViolation,
		EntityType: "promotion",
		EntityID:   candidate.PromotionID,
		Metadata:   metadata,
		Severity:   auditmodel.SeverityCritical,
	})
}

// riskLevel weighs the discount size and the kind of failure.
func (v *SecurityValidator) riskLevel(candidate *model.AppliedPromotion, appErr *model.AppError) auditmodel.RiskLevel {
	switch appErr.Code {
	case model.ErrCodeDiscountMismatch, model.ErrCodeUsageBypass:
		// Forged numbers and bypass attempts are always serious.
		if v.IsHighValue(candidate.DiscountAmount) {
			return auditmodel.RiskCritical
		}
		return auditmodel.RiskHigh
	case model.ErrCodeHighValueRejected:
		return auditmodel.RiskHigh
	case model.ErrCodeGiftInvalid, model.ErrCodeDiscountExcessive:
		return auditmodel.RiskMedium
	default:
		return auditmodel.RiskLow
	}
}

// highValueMaxUsageLimit rejects "unlimited in disguise" caps on promotions
// that grant high-value discounts.
const highValueMaxUsageLimit = 10000

func velocityKey(customerID uuid.UUID) string {
	return "promo:velocity:high:" + customerID.String()
}
