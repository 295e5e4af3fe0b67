package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auditmodel "promo-engine/internal/domains/audit/model"
	"promo-engine/internal/domains/promotion/model"
)

func newTestMonitor(repo *fakeRepo, sink *recordingSink) *HealthMonitor {
	return NewHealthMonitor(repo, sink, 50*time.Millisecond, 5*time.Minute)
}

func issueOfType(issues []model.HealthIssue, issueType model.HealthIssueType) []model.HealthIssue {
	var out []model.HealthIssue
	for _, issue := range issues {
		if issue.Type == issueType {
			out = append(out, issue)
		}
	}
	return out
}

func TestHealthyCatalogScoresFull(t *testing.T) {
	repo := newFakeRepo()
	sink := newRecordingSink()
	repo.add(activePromotion("clean", model.PromotionTypePercentageDiscount, 1))

	m := newTestMonitor(repo, sink)
	health, err := m.GetSystemHealthMetrics(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 100, health.HealthScore)
	assert.Empty(t, health.Issues)
	assert.Zero(t, health.ConflictCount)
	assert.Equal(t, 1, health.StatusCounts[model.StatusActive])
}

func TestExpiredButActiveDeductsTen(t *testing.T) {
	repo := newFakeRepo()
	sink := newRecordingSink()

	stale := activePromotion("stale", model.PromotionTypePercentageDiscount, 1)
	stale.StartsAt = time.Now().Add(-48 * time.Hour)
	stale.EndsAt = time.Now().Add(-24 * time.Hour)
	repo.add(stale)

	m := newTestMonitor(repo, sink)
	health, err := m.GetSystemHealthMetrics(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 90, health.HealthScore)
	require.Len(t, issueOfType(health.Issues, model.IssueExpiredButActive), 1)
}

func TestUsageExceededDeductsFive(t *testing.T) {
	repo := newFakeRepo()
	sink := newRecordingSink()

	burned := activePromotion("burned", model.PromotionTypePercentageDiscount, 1)
	burned.UsageLimit = intPtr(100)
	burned.CurrentUsageCount = 100
	repo.add(burned)

	m := newTestMonitor(repo, sink)
	health, err := m.GetSystemHealthMetrics(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 95, health.HealthScore)
	require.Len(t, issueOfType(health.Issues, model.IssueUsageExceeded), 1)
}

func TestConflictingPairDeductsFive(t *testing.T) {
	repo := newFakeRepo()
	sink := newRecordingSink()

	a := activePromotion("a", model.PromotionTypePercentageDiscount, 1)
	b := activePromotion("b", model.PromotionTypePercentageDiscount, 1)
	a.ExclusiveWith = []uuid.UUID{b.ID}
	repo.add(a)
	repo.add(b)

	m := newTestMonitor(repo, sink)
	health, err := m.GetSystemHealthMetrics(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 95, health.HealthScore)
	assert.Equal(t, 1, health.ConflictCount)
	require.Len(t, issueOfType(health.Issues, model.IssueExclusivePair), 1)
}

func TestEqualPriorityOverlapIsAConflict(t *testing.T) {
	repo := newFakeRepo()
	sink := newRecordingSink()

	a := activePromotion("a", model.PromotionTypePercentageDiscount, 3)
	b := activePromotion("b", model.PromotionTypePercentageDiscount, 3)
	repo.add(a)
	repo.add(b)

	m := newTestMonitor(repo, sink)
	health, err := m.GetSystemHealthMetrics(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, health.ConflictCount)
	require.Len(t, issueOfType(health.Issues, model.IssuePriorityOverlap), 1)
}

func TestScoreIsFlooredAtZero(t *testing.T) {
	repo := newFakeRepo()
	sink := newRecordingSink()

	// Eleven expired-but-active promotions deduct 110 points raw.
	for i := 0; i < 11; i++ {
		p := activePromotion("stale", model.PromotionTypePercentageDiscount, i)
		p.StartsAt = time.Now().Add(-48 * time.Hour)
		p.EndsAt = time.Now().Add(-24 * time.Hour)
		repo.add(p)
	}

	m := newTestMonitor(repo, sink)
	health, err := m.GetSystemHealthMetrics(context.Background())
	require.NoError(t, err)
	assert.Zero(t, health.HealthScore)
}

func TestUsageNearLimitIsFlagged(t *testing.T) {
	repo := newFakeRepo()
	sink := newRecordingSink()

	nearly := activePromotion("nearly", model.PromotionTypePercentageDiscount, 1)
	nearly.UsageLimit = intPtr(100)
	nearly.CurrentUsageCount = 92
	repo.add(nearly)

	m := newTestMonitor(repo, sink)
	health, err := m.GetSystemHealthMetrics(context.Background())
	require.NoError(t, err)

	// Near-limit is a warning, not a deduction.
	assert.Equal(t, 100, health.HealthScore)
	require.Len(t, issueOfType(health.Issues, model.IssueUsageNearLimit), 1)
}

func TestDiscountRatioAnomalyIsFlagged(t *testing.T) {
	repo := newFakeRepo()
	sink := newRecordingSink()

	promo := activePromotion("suspicious", model.PromotionTypePercentageDiscount, 1)
	repo.add(promo)
	repo.mu.Lock()
	repo.stats = []*model.UsageStatistics{{
		PromotionID:      promo.ID,
		AvgDiscount:      dec(6000),
		AvgOrderSubtotal: dec(10000),
	}}
	repo.mu.Unlock()

	m := newTestMonitor(repo, sink)
	health, err := m.GetSystemHealthMetrics(context.Background())
	require.NoError(t, err)
	require.Len(t, issueOfType(health.Issues, model.IssueDiscountAnomaly), 1)
}

func TestConflictAlertsAreDeduplicated(t *testing.T) {
	repo := newFakeRepo()
	sink := newRecordingSink()

	a := activePromotion("a", model.PromotionTypePercentageDiscount, 1)
	b := activePromotion("b", model.PromotionTypePercentageDiscount, 1)
	a.ExclusiveWith = []uuid.UUID{b.ID}
	repo.add(a)
	repo.add(b)

	m := newTestMonitor(repo, sink)

	for i := 0; i < 3; i++ {
		_, err := m.GetSystemHealthMetrics(context.Background())
		require.NoError(t, err)
	}

	// The pair keeps counting against the score but alerts once per TTL.
	assert.Len(t, sink.ofType(auditmodel.EventConflictDetected), 1)
}

func TestStatusUpdatesReportDrift(t *testing.T) {
	repo := newFakeRepo()
	sink := newRecordingSink()

	drifted := activePromotion("drifted", model.PromotionTypePercentageDiscount, 1)
	drifted.Status = model.StatusScheduled
	repo.add(drifted)

	current := activePromotion("current", model.PromotionTypePercentageDiscount, 1)
	repo.add(current)

	m := newTestMonitor(repo, sink)
	updates, err := m.GetPromotionStatusUpdates(context.Background())
	require.NoError(t, err)
	require.Len(t, updates, 2)

	byID := make(map[uuid.UUID]model.PromotionStatusUpdate)
	for _, u := range updates {
		byID[u.PromotionID] = u
	}

	assert.True(t, byID[drifted.ID].NeedsUpdate)
	assert.Equal(t, model.StatusActive, byID[drifted.ID].ExpectedStatus)
	assert.False(t, byID[current.ID].NeedsUpdate)
}

func TestMonitorStartStopIdempotent(t *testing.T) {
	repo := newFakeRepo()
	sink := newRecordingSink()

	stale := activePromotion("stale", model.PromotionTypePercentageDiscount, 1)
	stale.StartsAt = time.Now().Add(-48 * time.Hour)
	stale.EndsAt = time.Now().Add(-24 * time.Hour)
	repo.add(stale)

	m := newTestMonitor(repo, sink)
	assert.False(t, m.IsActive())

	m.Start()
	m.Start()
	assert.True(t, m.IsActive())

	require.Eventually(t, func() bool {
		return len(sink.ofType(auditmodel.EventHealthAlert)) > 0
	}, 2*time.Second, 10*time.Millisecond)

	m.Stop()
	m.Stop()
	assert.False(t, m.IsActive())
}
