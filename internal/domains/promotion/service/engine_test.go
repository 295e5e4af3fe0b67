package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promo-engine/internal/config"
	auditmodel "promo-engine/internal/domains/audit/model"
	"promo-engine/internal/domains/promotion/model"
	"promo-engine/pkg/cache"
)

func testSecurityConfig() config.SecurityConfig {
	return config.SecurityConfig{
		MaxItemQuantity:      1000,
		MaxItemPrice:         100_000_000,
		MaxGiftTotal:         10,
		MaxGiftPerItem:       5,
		HighValueThreshold:   1_000_000,
		ManualReviewCeiling:  5_000_000,
		HighValueSubtotalPct: 80,
		VelocityLimit:        3,
		VelocityWindowHours:  24,
	}
}

func newTestEngine(repo *fakeRepo, sink *recordingSink) *PromotionEngine {
	validator := NewSecurityValidator(repo, cache.NewMemoryCache(), sink, testSecurityConfig())
	return NewPromotionEngine(repo, cache.NewMemoryCache(), validator, sink, 30*time.Second)
}

func TestEvaluatePromotionsAppliesWinner(t *testing.T) {
	repo := newFakeRepo()
	sink := newRecordingSink()

	promo := activePromotion("10% off over 10000", model.PromotionTypePercentageDiscount, 1)
	repo.add(promo,
		cartValueCondition(promo.ID, model.OperatorGTE, 10000),
		percentageBenefit(promo.ID, 10, nil),
	)

	engine := newTestEngine(repo, sink)
	result, err := engine.EvaluatePromotions(context.Background(), twoItemCart(8000, 12000))
	require.NoError(t, err)

	require.NotNil(t, result.Applied)
	assert.Equal(t, promo.ID, result.Applied.PromotionID)
	assert.True(t, result.Applied.DiscountAmount.Equal(dec(2000)),
		"expected 2000, got %s", result.Applied.DiscountAmount)
	assert.Nil(t, result.Conflict, "single candidate needs no conflict resolution")
}

func TestEvaluatePromotionsEmptyCatalog(t *testing.T) {
	engine := newTestEngine(newFakeRepo(), newRecordingSink())

	result, err := engine.EvaluatePromotions(context.Background(), twoItemCart(8000, 12000))
	require.NoError(t, err)
	assert.Nil(t, result.Applied)
	assert.Empty(t, result.Eligible)
}

func TestEvaluatePromotionsRejectsTamperedSubtotal(t *testing.T) {
	engine := newTestEngine(newFakeRepo(), newRecordingSink())

	cart := twoItemCart(8000, 12000)
	cart.CartSubtotal = dec(15000) // items still sum to 20000

	_, err := engine.EvaluatePromotions(context.Background(), cart)
	require.Error(t, err)

	appErr, ok := model.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, model.ErrCodeInvalidSubtotal, appErr.Code)
	assert.Contains(t, appErr.Message, "15000")
	assert.Contains(t, appErr.Message, "20000")
}

func TestEvaluatePromotionsServesCachedResult(t *testing.T) {
	repo := newFakeRepo()
	sink := newRecordingSink()

	promo := activePromotion("10% off", model.PromotionTypePercentageDiscount, 1)
	repo.add(promo,
		cartValueCondition(promo.ID, model.OperatorGTE, 10000),
		percentageBenefit(promo.ID, 10, nil),
	)

	engine := newTestEngine(repo, sink)
	cart := twoItemCart(8000, 12000)

	first, err := engine.EvaluatePromotions(context.Background(), cart)
	require.NoError(t, err)
	require.NotNil(t, first.Applied)

	// Wipe the catalog: within the TTL the identical cart is answered from
	// cache, not recomputed.
	repo.mu.Lock()
	repo.promotions = map[uuid.UUID]*model.Promotion{}
	repo.mu.Unlock()

	second, err := engine.EvaluatePromotions(context.Background(), cart)
	require.NoError(t, err)
	require.NotNil(t, second.Applied)
	assert.True(t, first.Applied.DiscountAmount.Equal(second.Applied.DiscountAmount))
}

func TestEvaluatePromotionsSkipsExhaustedPromotion(t *testing.T) {
	repo := newFakeRepo()
	sink := newRecordingSink()

	promo := activePromotion("exhausted", model.PromotionTypePercentageDiscount, 1)
	promo.UsageLimit = intPtr(5)
	promo.CurrentUsageCount = 5
	repo.add(promo,
		cartValueCondition(promo.ID, model.OperatorGTE, 10000),
		percentageBenefit(promo.ID, 10, nil),
	)

	engine := newTestEngine(repo, sink)
	result, err := engine.EvaluatePromotions(context.Background(), twoItemCart(8000, 12000))
	require.NoError(t, err)
	assert.Nil(t, result.Applied)
	assert.Empty(t, result.Eligible)
}

func TestEvaluatePromotionsResolvesConflicts(t *testing.T) {
	repo := newFakeRepo()
	sink := newRecordingSink()

	low := activePromotion("low priority", model.PromotionTypePercentageDiscount, 1)
	repo.add(low,
		cartValueCondition(low.ID, model.OperatorGTE, 1000),
		percentageBenefit(low.ID, 20, nil),
	)
	high := activePromotion("high priority", model.PromotionTypePercentageDiscount, 10)
	repo.add(high,
		cartValueCondition(high.ID, model.OperatorGTE, 1000),
		percentageBenefit(high.ID, 5, nil),
	)

	engine := newTestEngine(repo, sink)
	result, err := engine.EvaluatePromotions(context.Background(), twoItemCart(8000, 12000))
	require.NoError(t, err)

	require.NotNil(t, result.Applied)
	assert.Equal(t, high.ID, result.Applied.PromotionID)
	require.NotNil(t, result.Conflict)
	assert.Equal(t, model.ConflictPriority, result.Conflict.ConflictType)
	assert.Equal(t, []uuid.UUID{low.ID}, result.Conflict.RejectedPromotionIDs)
}

func TestRecordUsageHappyPath(t *testing.T) {
	repo := newFakeRepo()
	sink := newRecordingSink()

	promo := activePromotion("limited", model.PromotionTypePercentageDiscount, 1)
	promo.UsageLimit = intPtr(5)
	repo.add(promo)

	engine := newTestEngine(repo, sink)
	err := engine.RecordUsage(context.Background(), &model.PromotionUsage{
		PromotionID:    promo.ID,
		OrderID:        uuid.New(),
		DiscountAmount: dec(2000),
		CartSubtotal:   dec(20000),
	})
	require.NoError(t, err)

	stored, err := repo.FindByID(context.Background(), promo.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.CurrentUsageCount)
	assert.Len(t, sink.ofType(auditmodel.EventUsageRecorded), 1)
}

func TestRecordUsageAtLimitFails(t *testing.T) {
	repo := newFakeRepo()
	sink := newRecordingSink()

	promo := activePromotion("at cap", model.PromotionTypePercentageDiscount, 1)
	promo.UsageLimit = intPtr(5)
	promo.CurrentUsageCount = 5
	repo.add(promo)

	engine := newTestEngine(repo, sink)
	err := engine.RecordUsage(context.Background(), &model.PromotionUsage{
		PromotionID:    promo.ID,
		OrderID:        uuid.New(),
		DiscountAmount: dec(100),
		CartSubtotal:   dec(1000),
	})
	require.Error(t, err)

	appErr, ok := model.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, model.ErrCodeUsageLimitExceeded, appErr.Code)
}

func TestRecordUsagePerCustomerLimit(t *testing.T) {
	repo := newFakeRepo()
	sink := newRecordingSink()

	promo := activePromotion("once per customer", model.PromotionTypePercentageDiscount, 1)
	promo.UsageLimitPerCustomer = intPtr(1)
	repo.add(promo)

	customerID := uuid.New()
	engine := newTestEngine(repo, sink)

	usage := func() *model.PromotionUsage {
		return &model.PromotionUsage{
			PromotionID:    promo.ID,
			OrderID:        uuid.New(),
			CustomerID:     &customerID,
			DiscountAmount: dec(100),
			CartSubtotal:   dec(1000),
		}
	}

	require.NoError(t, engine.RecordUsage(context.Background(), usage()))

	err := engine.RecordUsage(context.Background(), usage())
	require.Error(t, err)
	appErr, ok := model.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, model.ErrCodeCustomerLimitExceeded, appErr.Code)
}

func TestRecordUsageInactivePromotion(t *testing.T) {
	repo := newFakeRepo()
	sink := newRecordingSink()

	promo := activePromotion("expired", model.PromotionTypePercentageDiscount, 1)
	promo.StartsAt = time.Now().Add(-48 * time.Hour)
	promo.EndsAt = time.Now().Add(-24 * time.Hour)
	repo.add(promo)

	engine := newTestEngine(repo, sink)
	err := engine.RecordUsage(context.Background(), &model.PromotionUsage{
		PromotionID:    promo.ID,
		OrderID:        uuid.New(),
		DiscountAmount: dec(100),
		CartSubtotal:   dec(1000),
	})
	require.Error(t, err)

	appErr, ok := model.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, model.ErrCodePromoNotActive, appErr.Code)
}

func TestEvaluatePromotionsConcurrent(t *testing.T) {
	repo := newFakeRepo()
	sink := newRecordingSink()

	promo := activePromotion("10% off", model.PromotionTypePercentageDiscount, 1)
	repo.add(promo,
		cartValueCondition(promo.ID, model.OperatorGTE, 10000),
		percentageBenefit(promo.ID, 10, nil),
	)

	engine := newTestEngine(repo, sink)

	done := make(chan error, 20)
	for i := 0; i < 20; i++ {
		go func() {
			_, err := engine.EvaluatePromotions(context.Background(), twoItemCart(8000, 12000))
			done <- err
		}()
	}
	for i := 0; i < 20; i++ {
		assert.NoError(t, <-done)
	}
}

// One slot left before the cap: of N concurrent redemptions exactly one may
// win. The fake repository mirrors the conditionally-guarded UPDATE the
// Postgres repository uses for the same race.
func TestRecordUsageConcurrentAtBoundary(t *testing.T) {
	repo := newFakeRepo()
	sink := newRecordingSink()

	promo := activePromotion("last slot", model.PromotionTypePercentageDiscount, 1)
	promo.UsageLimit = intPtr(5)
	promo.CurrentUsageCount = 4
	repo.add(promo)

	engine := newTestEngine(repo, sink)

	const contenders = 10
	done := make(chan error, contenders)
	for i := 0; i < contenders; i++ {
		go func() {
			done <- engine.RecordUsage(context.Background(), &model.PromotionUsage{
				PromotionID:    promo.ID,
				OrderID:        uuid.New(),
				DiscountAmount: dec(100),
				CartSubtotal:   dec(1000),
			})
		}()
	}

	winners := 0
	for i := 0; i < contenders; i++ {
		err := <-done
		if err == nil {
			winners++
			continue
		}
		appErr, ok := model.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, model.ErrCodeUsageLimitExceeded, appErr.Code)
	}
	assert.Equal(t, 1, winners)

	repo.mu.Lock()
	assert.Equal(t, 5, repo.promotions[promo.ID].CurrentUsageCount)
	repo.mu.Unlock()
}
