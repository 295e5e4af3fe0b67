package service

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promo-engine/internal/domains/promotion/model"
)

func candidate(name string, priority int, discount int64) *model.EligiblePromotion {
	promo := activePromotion(name, model.PromotionTypePercentageDiscount, priority)
	return &model.EligiblePromotion{
		Promotion:         promo,
		PotentialDiscount: dec(discount),
		Priority:          priority,
	}
}

func TestResolveSingleCandidateNoConflict(t *testing.T) {
	only := candidate("only", 1, 100)

	selected, conflict := NewResolver().Resolve([]*model.EligiblePromotion{only})
	require.NotNil(t, selected)
	assert.Equal(t, only.Promotion.ID, selected.Promotion.ID)
	assert.Nil(t, conflict)
}

func TestResolveEmpty(t *testing.T) {
	selected, conflict := NewResolver().Resolve(nil)
	assert.Nil(t, selected)
	assert.Nil(t, conflict)
}

func TestResolveHigherPriorityWins(t *testing.T) {
	low := candidate("low", 1, 5000)
	high := candidate("high", 10, 100)

	selected, conflict := NewResolver().Resolve([]*model.EligiblePromotion{low, high})
	require.NotNil(t, selected)
	assert.Equal(t, high.Promotion.ID, selected.Promotion.ID)

	require.NotNil(t, conflict)
	assert.Equal(t, model.ConflictPriority, conflict.ConflictType)
	assert.Equal(t, []uuid.UUID{low.Promotion.ID}, conflict.RejectedPromotionIDs)
}

func TestResolveBenefitBreaksPriorityTie(t *testing.T) {
	smaller := candidate("smaller", 5, 1000)
	bigger := candidate("bigger", 5, 2000)

	selected, conflict := NewResolver().Resolve([]*model.EligiblePromotion{smaller, bigger})
	require.NotNil(t, selected)
	assert.Equal(t, bigger.Promotion.ID, selected.Promotion.ID)

	require.NotNil(t, conflict)
	assert.Equal(t, model.ConflictCustomerBenefit, conflict.ConflictType)
}

func TestResolveGiftValueCountsTowardBenefit(t *testing.T) {
	discountOnly := candidate("discount", 5, 1000)
	withGift := candidate("gift", 5, 800)
	withGift.GiftValue = dec(500) // combined 1300 beats 1000

	selected, _ := NewResolver().Resolve([]*model.EligiblePromotion{discountOnly, withGift})
	require.NotNil(t, selected)
	assert.Equal(t, withGift.Promotion.ID, selected.Promotion.ID)
}

func TestResolveIDBreaksFullTie(t *testing.T) {
	a := candidate("a", 5, 1000)
	b := candidate("b", 5, 1000)

	want := a
	if b.Promotion.ID.String() < a.Promotion.ID.String() {
		want = b
	}

	// Identical priority and benefit: the smaller id wins, independent of
	// input order.
	first, _ := NewResolver().Resolve([]*model.EligiblePromotion{a, b})
	second, _ := NewResolver().Resolve([]*model.EligiblePromotion{b, a})
	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, want.Promotion.ID, first.Promotion.ID)
	assert.Equal(t, first.Promotion.ID, second.Promotion.ID)
}

func TestResolveExclusivityEliminatesLoser(t *testing.T) {
	strong := candidate("strong", 10, 100)
	weak := candidate("weak", 1, 9000)
	weak.Promotion.ExclusiveWith = []uuid.UUID{strong.Promotion.ID}

	selected, conflict := NewResolver().Resolve([]*model.EligiblePromotion{weak, strong})
	require.NotNil(t, selected)
	assert.Equal(t, strong.Promotion.ID, selected.Promotion.ID)

	require.NotNil(t, conflict)
	assert.Equal(t, model.ConflictExclusivity, conflict.ConflictType)
	assert.Contains(t, conflict.Reason, "exclusivity")
}

func TestResolveSelectedBenefitIsMaximalAmongNonExclusive(t *testing.T) {
	candidates := []*model.EligiblePromotion{
		candidate("a", 3, 500),
		candidate("b", 3, 1500),
		candidate("c", 3, 1000),
	}

	selected, _ := NewResolver().Resolve(candidates)
	require.NotNil(t, selected)
	for _, other := range candidates {
		assert.True(t, selected.CombinedBenefit().GreaterThanOrEqual(other.CombinedBenefit()))
	}
}
