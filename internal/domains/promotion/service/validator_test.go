package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auditmodel "promo-engine/internal/domains/audit/model"
	"promo-engine/internal/domains/promotion/model"
	"promo-engine/pkg/cache"
)

func newTestValidator(repo *fakeRepo, sink *recordingSink) (*SecurityValidator, *cache.MemoryCache) {
	velocityCache := cache.NewMemoryCache()
	return NewSecurityValidator(repo, velocityCache, sink, testSecurityConfig()), velocityCache
}

func candidateFor(promo *model.Promotion, discount decimal.Decimal, gifts ...model.FreeGift) *model.AppliedPromotion {
	return &model.AppliedPromotion{
		PromotionID:    promo.ID,
		PromotionName:  promo.Name,
		DiscountAmount: discount,
		FreeGifts:      gifts,
		AppliedAt:      time.Now(),
	}
}

func giftBenefit(promotionID uuid.UUID, productIDs []uuid.UUID, quantities []int) *model.PromotionRule {
	return &model.PromotionRule{
		ID:             uuid.New(),
		PromotionID:    promotionID,
		RuleType:       model.RuleTypeBenefit,
		BenefitType:    model.BenefitFreeGift,
		GiftProductIDs: productIDs,
		GiftQuantities: quantities,
	}
}

func TestValidatorAcceptsRecomputableDiscount(t *testing.T) {
	repo := newFakeRepo()
	sink := newRecordingSink()

	promo := activePromotion("10% off", model.PromotionTypePercentageDiscount, 1)
	rules := []*model.PromotionRule{
		cartValueCondition(promo.ID, model.OperatorGTE, 10000),
		percentageBenefit(promo.ID, 10, nil),
	}
	repo.add(promo, rules...)

	v, _ := newTestValidator(repo, sink)
	err := v.ValidateCandidate(context.Background(), twoItemCart(8000, 12000), candidateFor(promo, dec(2000)), promo, rules)
	require.NoError(t, err)
	assert.Empty(t, sink.ofType(auditmodel.EventSecurityViolation))
}

func TestValidatorRejectsForgedDiscount(t *testing.T) {
	repo := newFakeRepo()
	sink := newRecordingSink()

	promo := activePromotion("10% off", model.PromotionTypePercentageDiscount, 1)
	rules := []*model.PromotionRule{
		cartValueCondition(promo.ID, model.OperatorGTE, 10000),
		percentageBenefit(promo.ID, 10, nil),
	}
	repo.add(promo, rules...)

	v, _ := newTestValidator(repo, sink)
	err := v.ValidateCandidate(context.Background(), twoItemCart(8000, 12000), candidateFor(promo, dec(2500)), promo, rules)
	require.Error(t, err)

	appErr, ok := model.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, model.ErrCodeDiscountMismatch, appErr.Code)
	assert.Contains(t, appErr.Message, "2500")
	assert.Contains(t, appErr.Message, "2000")

	violations := sink.ofType(auditmodel.EventSecurityViolation)
	require.Len(t, violations, 1)
	assert.Equal(t, auditmodel.SeverityCritical, violations[0].Severity)
	assert.Equal(t, auditmodel.RiskHigh, violations[0].Metadata["risk_level"])
}

func TestValidatorRejectsTamperedItemSubtotal(t *testing.T) {
	repo := newFakeRepo()
	sink := newRecordingSink()

	promo := activePromotion("10% off", model.PromotionTypePercentageDiscount, 1)
	rules := []*model.PromotionRule{
		cartValueCondition(promo.ID, model.OperatorGTE, 1000),
		percentageBenefit(promo.ID, 10, nil),
	}
	repo.add(promo, rules...)

	cart := &model.EvaluationContext{
		CartItems: []model.CartItem{
			{ProductID: uuid.New(), Quantity: 3, UnitPrice: dec(1000), Subtotal: dec(5000)},
		},
		CartSubtotal: dec(5000),
	}

	v, _ := newTestValidator(repo, sink)
	err := v.ValidateCandidate(context.Background(), cart, candidateFor(promo, dec(500)), promo, rules)
	require.Error(t, err)

	appErr, ok := model.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, model.ErrCodeInvalidItem, appErr.Code)
}

func TestValidatorEnforcesConfiguredQuantityCeiling(t *testing.T) {
	repo := newFakeRepo()
	sink := newRecordingSink()

	promo := activePromotion("10% off", model.PromotionTypePercentageDiscount, 1)
	rules := []*model.PromotionRule{
		cartValueCondition(promo.ID, model.OperatorGTE, 1000),
		percentageBenefit(promo.ID, 10, nil),
	}
	repo.add(promo, rules...)

	cart := &model.EvaluationContext{
		CartItems: []model.CartItem{
			{ProductID: uuid.New(), Quantity: 6, UnitPrice: dec(1000), Subtotal: dec(6000)},
		},
		CartSubtotal: dec(6000),
	}

	cfg := testSecurityConfig()
	cfg.MaxItemQuantity = 5
	v := NewSecurityValidator(repo, cache.NewMemoryCache(), sink, cfg)

	err := v.ValidateCandidate(context.Background(), cart, candidateFor(promo, dec(600)), promo, rules)
	require.Error(t, err)

	appErr, ok := model.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, model.ErrCodeInvalidItem, appErr.Code)
	assert.Contains(t, appErr.Message, "maximum of 5")
}

func TestValidatorGiftOnlyMustCarryZeroDiscount(t *testing.T) {
	repo := newFakeRepo()
	sink := newRecordingSink()

	giftID := uuid.New()
	promo := activePromotion("free gift", model.PromotionTypeFreeGift, 1)
	rules := []*model.PromotionRule{
		cartValueCondition(promo.ID, model.OperatorGTE, 1000),
		giftBenefit(promo.ID, []uuid.UUID{giftID}, []int{1}),
	}
	repo.add(promo, rules...)

	v, _ := newTestValidator(repo, sink)
	err := v.ValidateCandidate(context.Background(), twoItemCart(8000, 12000),
		candidateFor(promo, dec(500), model.FreeGift{ProductID: &giftID, Quantity: 1}), promo, rules)
	require.Error(t, err)

	appErr, ok := model.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, model.ErrCodeDiscountMismatch, appErr.Code)
}

func TestValidatorRejectsExcessiveGiftQuantity(t *testing.T) {
	repo := newFakeRepo()
	sink := newRecordingSink()

	giftID := uuid.New()
	promo := activePromotion("free gift", model.PromotionTypeFreeGift, 1)
	rules := []*model.PromotionRule{
		cartValueCondition(promo.ID, model.OperatorGTE, 1000),
		giftBenefit(promo.ID, []uuid.UUID{giftID}, []int{11}),
	}
	repo.add(promo, rules...)

	v, _ := newTestValidator(repo, sink)
	err := v.ValidateCandidate(context.Background(), twoItemCart(8000, 12000),
		candidateFor(promo, decimal.Zero, model.FreeGift{ProductID: &giftID, Quantity: 11}), promo, rules)
	require.Error(t, err)

	appErr, ok := model.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, model.ErrCodeExcessiveGift, appErr.Code)
	assert.Equal(t, "Excessive gift quantity detected: 11", appErr.Message)
}

func TestValidatorRejectsExcessiveTotalGifts(t *testing.T) {
	repo := newFakeRepo()
	sink := newRecordingSink()

	a, b, c := uuid.New(), uuid.New(), uuid.New()
	promo := activePromotion("triple gift", model.PromotionTypeFreeGift, 1)
	rules := []*model.PromotionRule{
		cartValueCondition(promo.ID, model.OperatorGTE, 1000),
		giftBenefit(promo.ID, []uuid.UUID{a, b, c}, []int{4, 4, 4}),
	}
	repo.add(promo, rules...)

	// Each gift is under the per-item cap of 5 but the sum of 12 crosses
	// the total cap of 10.
	v, _ := newTestValidator(repo, sink)
	err := v.ValidateCandidate(context.Background(), twoItemCart(8000, 12000),
		candidateFor(promo, decimal.Zero,
			model.FreeGift{ProductID: &a, Quantity: 4},
			model.FreeGift{ProductID: &b, Quantity: 4},
			model.FreeGift{ProductID: &c, Quantity: 4},
		), promo, rules)
	require.Error(t, err)

	appErr, ok := model.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, model.ErrCodeExcessiveGift, appErr.Code)
	assert.Equal(t, "Excessive gift quantity detected: 12", appErr.Message)
}

func TestValidatorRejectsUnconfiguredGift(t *testing.T) {
	repo := newFakeRepo()
	sink := newRecordingSink()

	configured := uuid.New()
	smuggled := uuid.New()
	promo := activePromotion("free gift", model.PromotionTypeFreeGift, 1)
	rules := []*model.PromotionRule{
		cartValueCondition(promo.ID, model.OperatorGTE, 1000),
		giftBenefit(promo.ID, []uuid.UUID{configured}, []int{1}),
	}
	repo.add(promo, rules...)

	v, _ := newTestValidator(repo, sink)
	err := v.ValidateCandidate(context.Background(), twoItemCart(8000, 12000),
		candidateFor(promo, decimal.Zero, model.FreeGift{ProductID: &smuggled, Quantity: 1}), promo, rules)
	require.Error(t, err)

	appErr, ok := model.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, model.ErrCodeGiftInvalid, appErr.Code)
}

func TestValidatorRejectsOutOfStockGift(t *testing.T) {
	repo := newFakeRepo()
	sink := newRecordingSink()

	giftID := uuid.New()
	promo := activePromotion("free gift", model.PromotionTypeFreeGift, 1)
	rules := []*model.PromotionRule{
		cartValueCondition(promo.ID, model.OperatorGTE, 1000),
		giftBenefit(promo.ID, []uuid.UUID{giftID}, []int{2}),
	}
	repo.add(promo, rules...)
	// No stock entry registered for giftID: the lookup reports it unknown.

	v, _ := newTestValidator(repo, sink)
	err := v.ValidateCandidate(context.Background(), twoItemCart(8000, 12000),
		candidateFor(promo, decimal.Zero, model.FreeGift{ProductID: &giftID, Quantity: 2}), promo, rules)
	require.Error(t, err)

	appErr, ok := model.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, model.ErrCodeGiftInvalid, appErr.Code)
}

func TestValidatorAcceptsInStockGift(t *testing.T) {
	repo := newFakeRepo()
	sink := newRecordingSink()

	giftID := uuid.New()
	promo := activePromotion("free gift", model.PromotionTypeFreeGift, 1)
	rules := []*model.PromotionRule{
		cartValueCondition(promo.ID, model.OperatorGTE, 1000),
		giftBenefit(promo.ID, []uuid.UUID{giftID}, []int{2}),
	}
	repo.add(promo, rules...)
	repo.mu.Lock()
	repo.stock[giftID] = model.GiftProductStock{ProductID: giftID, InStock: true, AvailableQuantity: 10}
	repo.mu.Unlock()

	v, _ := newTestValidator(repo, sink)
	err := v.ValidateCandidate(context.Background(), twoItemCart(8000, 12000),
		candidateFor(promo, decimal.Zero, model.FreeGift{ProductID: &giftID, Quantity: 2}), promo, rules)
	require.NoError(t, err)
}

func TestValidatorRejectsDiscountOverManualReviewCeiling(t *testing.T) {
	repo := newFakeRepo()
	sink := newRecordingSink()

	promo := activePromotion("30% off", model.PromotionTypePercentageDiscount, 1)
	promo.UsageLimit = intPtr(100)
	rules := []*model.PromotionRule{
		cartValueCondition(promo.ID, model.OperatorGTE, 1000),
		percentageBenefit(promo.ID, 30, nil),
	}
	repo.add(promo, rules...)

	// 30% of 20,000,000 is 6,000,000: recomputable, but past the 5,000,000
	// manual-review ceiling.
	v, _ := newTestValidator(repo, sink)
	err := v.ValidateCandidate(context.Background(), twoItemCart(8_000_000, 12_000_000),
		candidateFor(promo, dec(6_000_000)), promo, rules)
	require.Error(t, err)

	appErr, ok := model.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, model.ErrCodeHighValueRejected, appErr.Code)
	assert.Contains(t, appErr.Message, "manual review")
}

func TestValidatorRejectsHighValueWithoutUsageLimit(t *testing.T) {
	repo := newFakeRepo()
	sink := newRecordingSink()

	promo := activePromotion("15% off", model.PromotionTypePercentageDiscount, 1)
	rules := []*model.PromotionRule{
		cartValueCondition(promo.ID, model.OperatorGTE, 1000),
		percentageBenefit(promo.ID, 15, nil),
	}
	repo.add(promo, rules...)

	// 1,500,000 crosses the high-value threshold and the promotion carries
	// no usage limit at all.
	v, _ := newTestValidator(repo, sink)
	err := v.ValidateCandidate(context.Background(), twoItemCart(4_000_000, 6_000_000),
		candidateFor(promo, dec(1_500_000)), promo, rules)
	require.Error(t, err)

	appErr, ok := model.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, model.ErrCodeHighValueRejected, appErr.Code)
	assert.Contains(t, appErr.Message, "usage limit")
}

func TestValidatorRejectsHighValueOverSubtotalShare(t *testing.T) {
	repo := newFakeRepo()
	sink := newRecordingSink()

	promo := activePromotion("90% off", model.PromotionTypePercentageDiscount, 1)
	promo.UsageLimit = intPtr(100)
	rules := []*model.PromotionRule{
		cartValueCondition(promo.ID, model.OperatorGTE, 1000),
		percentageBenefit(promo.ID, 90, nil),
	}
	repo.add(promo, rules...)

	// 1,800,000 on a 2,000,000 cart: 90% of the subtotal, over the 80% cap.
	v, _ := newTestValidator(repo, sink)
	err := v.ValidateCandidate(context.Background(), twoItemCart(800_000, 1_200_000),
		candidateFor(promo, dec(1_800_000)), promo, rules)
	require.Error(t, err)

	appErr, ok := model.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, model.ErrCodeHighValueRejected, appErr.Code)
}

func TestValidatorRejectsVelocityAbuse(t *testing.T) {
	repo := newFakeRepo()
	sink := newRecordingSink()

	promo := activePromotion("15% off", model.PromotionTypePercentageDiscount, 1)
	promo.UsageLimit = intPtr(100)
	rules := []*model.PromotionRule{
		cartValueCondition(promo.ID, model.OperatorGTE, 1000),
		percentageBenefit(promo.ID, 15, nil),
	}
	repo.add(promo, rules...)

	customerID := uuid.New()
	v, velocityCache := newTestValidator(repo, sink)
	for i := 0; i < 4; i++ {
		_, err := velocityCache.Increment(context.Background(), velocityKey(customerID))
		require.NoError(t, err)
	}

	cart := twoItemCart(4_000_000, 6_000_000)
	cart.CustomerID = &customerID

	err := v.ValidateCandidate(context.Background(), cart, candidateFor(promo, dec(1_500_000)), promo, rules)
	require.Error(t, err)

	appErr, ok := model.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, model.ErrCodeHighValueRejected, appErr.Code)
	assert.Contains(t, appErr.Message, "high-value redemptions")

	violations := sink.ofType(auditmodel.EventSecurityViolation)
	require.Len(t, violations, 1)
	assert.Equal(t, auditmodel.RiskHigh, violations[0].Metadata["risk_level"])
}

func TestValidatorAllowsHighValueUnderVelocityLimit(t *testing.T) {
	repo := newFakeRepo()
	sink := newRecordingSink()

	promo := activePromotion("15% off", model.PromotionTypePercentageDiscount, 1)
	promo.UsageLimit = intPtr(100)
	rules := []*model.PromotionRule{
		cartValueCondition(promo.ID, model.OperatorGTE, 1000),
		percentageBenefit(promo.ID, 15, nil),
	}
	repo.add(promo, rules...)

	customerID := uuid.New()
	v, _ := newTestValidator(repo, sink)
	for i := 0; i < 3; i++ {
		v.BumpVelocity(context.Background(), customerID)
	}

	cart := twoItemCart(4_000_000, 6_000_000)
	cart.CustomerID = &customerID

	err := v.ValidateCandidate(context.Background(), cart, candidateFor(promo, dec(1_500_000)), promo, rules)
	require.NoError(t, err)
}

func TestValidatorRejectsUsageBypass(t *testing.T) {
	repo := newFakeRepo()
	sink := newRecordingSink()

	promo := activePromotion("10% off", model.PromotionTypePercentageDiscount, 1)
	promo.UsageLimit = intPtr(5)
	promo.CurrentUsageCount = 5
	rules := []*model.PromotionRule{
		cartValueCondition(promo.ID, model.OperatorGTE, 1000),
		percentageBenefit(promo.ID, 10, nil),
	}
	repo.add(promo, rules...)

	// The candidate was built from a stale copy that still had headroom.
	stale := *promo
	stale.CurrentUsageCount = 0

	v, _ := newTestValidator(repo, sink)
	err := v.ValidateCandidate(context.Background(), twoItemCart(8000, 12000), candidateFor(&stale, dec(2000)), &stale, rules)
	require.Error(t, err)

	appErr, ok := model.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, model.ErrCodeUsageBypass, appErr.Code)
}

func TestValidatorRejectsStaleEligibility(t *testing.T) {
	repo := newFakeRepo()
	sink := newRecordingSink()

	promo := activePromotion("10% off", model.PromotionTypePercentageDiscount, 1)
	rules := []*model.PromotionRule{
		cartValueCondition(promo.ID, model.OperatorGTE, 1000),
		percentageBenefit(promo.ID, 10, nil),
	}
	repo.add(promo, rules...)

	// Paused after the engine loaded its copy.
	_, err := repo.UpdateStatus(context.Background(), promo.ID, model.StatusPaused)
	require.NoError(t, err)

	v, _ := newTestValidator(repo, sink)
	err = v.ValidateCandidate(context.Background(), twoItemCart(8000, 12000), candidateFor(promo, dec(2000)), promo, rules)
	require.Error(t, err)

	appErr, ok := model.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, model.ErrCodeStaleEligibility, appErr.Code)
}

func TestBumpVelocityCountsWithinWindow(t *testing.T) {
	repo := newFakeRepo()
	sink := newRecordingSink()
	v, velocityCache := newTestValidator(repo, sink)

	customerID := uuid.New()
	v.BumpVelocity(context.Background(), customerID)
	v.BumpVelocity(context.Background(), customerID)

	var count int64
	found, err := velocityCache.Get(context.Background(), velocityKey(customerID), &count)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(2), count)
}
