package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"promo-engine/internal/domains/audit"
	auditmodel "promo-engine/internal/domains/audit/model"
	"promo-engine/internal/domains/promotion/model"
	"promo-engine/internal/domains/promotion/repository"
	"promo-engine/internal/shared/metrics"
	"promo-engine/pkg/cache"
	"promo-engine/pkg/logger"
)

const (
	// usageNearLimitPct flags promotions above this share of their cap.
	usageNearLimitPct = 90
	// discountRatioPct flags avg-discount / avg-order ratios above this.
	discountRatioPct = 50
)

// HealthMonitor sweeps the catalog for status drift, usage-limit breaches
// and promotion-to-promotion conflicts, condensing them into a 0-100 score.
// Detected conflicts are deduplicated through a TTL cache so the same pair
// does not alert on every tick.
type HealthMonitor struct {
	repo          repository.PromotionRepository
	sink          audit.Sink
	conflictCache *cache.MemoryCache
	conflictTTL   time.Duration
	sweep         *sweeper
	now           func() time.Time
}

func NewHealthMonitor(
	repo repository.PromotionRepository,
	sink audit.Sink,
	interval time.Duration,
	conflictTTL time.Duration,
) *HealthMonitor {
	m := &HealthMonitor{
		repo:          repo,
		sink:          sink,
		conflictCache: cache.NewMemoryCache(),
		conflictTTL:   conflictTTL,
		now:           time.Now,
	}
	m.sweep = newSweeper("monitor", interval, m.runChecks)
	return m
}

func (m *HealthMonitor) Start()         { m.sweep.Start() }
func (m *HealthMonitor) Stop()          { m.sweep.Stop() }
func (m *HealthMonitor) IsActive() bool { return m.sweep.IsRunning() }

// runChecks is one monitor tick: four independent checks run concurrently,
// and one check's failure never blocks the others.
func (m *HealthMonitor) runChecks(ctx context.Context) {
	start := time.Now()
	defer func() {
		metrics.SweepDuration.WithLabelValues("monitor").Observe(time.Since(start).Seconds())
	}()

	promos, err := m.repo.GetPromotionsForMonitoring(ctx)
	if err != nil {
		logger.Error("monitor: load promotions", err)
		return
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex

		issues        []model.HealthIssue
		conflictCount int
	)

	collect := func(found []model.HealthIssue) {
		mu.Lock()
		issues = append(issues, found...)
		mu.Unlock()
	}

	wg.Add(4)

	go func() {
		defer wg.Done()
		collect(m.healthCheck(promos))
	}()

	go func() {
		defer wg.Done()
		conflicts := m.conflictCheck(ctx, promos)
		mu.Lock()
		conflictCount = len(conflicts)
		issues = append(issues, conflicts...)
		mu.Unlock()
	}()

	go func() {
		defer wg.Done()
		found, err := m.usageCheck(ctx, promos)
		if err != nil {
			logger.Error("monitor: usage check", err)
			return
		}
		collect(found)
	}()

	go func() {
		defer wg.Done()
		removed := m.conflictCache.Cleanup()
		if removed > 0 {
			logger.Info("monitor: conflict cache cleanup", map[string]interface{}{
				"removed": removed,
			})
		}
	}()

	wg.Wait()

	score := healthScore(issues, conflictCount)
	publishMetrics(promos, score, conflictCount)

	for _, issue := range issues {
		if issue.Type == model.IssueExclusivePair || issue.Type == model.IssuePriorityOverlap {
			continue // already audited by conflictCheck, deduplicated
		}
		m.sink.Record(ctx, auditmodel.Event{
			Type:       auditmodel.EventHealthAlert,
			EntityType: "promotion",
			EntityID:   issue.PromotionIDs[0],
			Metadata: map[string]interface{}{
				"issue_type": issue.Type,
				"detail":     issue.Detail,
			},
			Severity: auditmodel.SeverityWarning,
		})
	}
}

// healthCheck flags active promotions whose window or usage contradicts
// their status.
func (m *HealthMonitor) healthCheck(promos []*model.Promotion) []model.HealthIssue {
	now := m.now()
	var issues []model.HealthIssue

	for _, p := range promos {
		if p.Status != model.StatusActive {
			continue
		}
		switch {
		case !now.Before(p.EndsAt):
			issues = append(issues, model.HealthIssue{
				Type:         model.IssueExpiredButActive,
				PromotionIDs: []uuid.UUID{p.ID},
				Detail:       fmt.Sprintf("%q is active but ended at %s", p.Name, p.EndsAt.Format(time.RFC3339)),
				DetectedAt:   now,
			})
		case now.Before(p.StartsAt):
			issues = append(issues, model.HealthIssue{
				Type:         model.IssueFutureButActive,
				PromotionIDs: []uuid.UUID{p.ID},
				Detail:       fmt.Sprintf("%q is active but starts at %s", p.Name, p.StartsAt.Format(time.RFC3339)),
				DetectedAt:   now,
			})
		}
		if p.IsUsageLimitReached() {
			issues = append(issues, model.HealthIssue{
				Type:         model.IssueUsageExceeded,
				PromotionIDs: []uuid.UUID{p.ID},
				Detail:       fmt.Sprintf("%q reached its usage limit (%d)", p.Name, p.CurrentUsageCount),
				DetectedAt:   now,
			})
		}
	}
	return issues
}

// conflictCheck is a pairwise scan over active promotions: exclusiveWith
// pairs both active, and same-priority promotions with overlapping windows.
// O(n²) per tick, which is fine at catalog scale; revisit if the active set
// grows past a few thousand.
func (m *HealthMonitor) conflictCheck(ctx context.Context, promos []*model.Promotion) []model.HealthIssue {
	now := m.now()
	var active []*model.Promotion
	for _, p := range promos {
		if p.Status == model.StatusActive {
			active = append(active, p)
		}
	}

	var issues []model.HealthIssue
	for i := 0; i < len(active); i++ {
		for j := i + 1; j < len(active); j++ {
			a, b := active[i], active[j]

			if a.IsExclusiveWith(b.ID) || b.IsExclusiveWith(a.ID) {
				issues = m.appendConflict(ctx, issues, model.HealthIssue{
					Type:         model.IssueExclusivePair,
					PromotionIDs: []uuid.UUID{a.ID, b.ID},
					Detail:       fmt.Sprintf("mutually exclusive promotions %q and %q are both active", a.Name, b.Name),
					DetectedAt:   now,
				})
				continue
			}

			if a.Priority == b.Priority && windowsOverlap(a, b) {
				issues = m.appendConflict(ctx, issues, model.HealthIssue{
					Type:         model.IssuePriorityOverlap,
					PromotionIDs: []uuid.UUID{a.ID, b.ID},
					Detail:       fmt.Sprintf("%q and %q share priority %d with overlapping windows", a.Name, b.Name, a.Priority),
					DetectedAt:   now,
				})
			}
		}
	}
	return issues
}

// appendConflict records the conflict and alerts at most once per TTL per
// pair.
func (m *HealthMonitor) appendConflict(ctx context.Context, issues []model.HealthIssue, issue model.HealthIssue) []model.HealthIssue {
	issues = append(issues, issue)

	key := conflictKey(issue.Type, issue.PromotionIDs)
	seen, err := m.conflictCache.Exists(ctx, key)
	if err != nil {
		logger.Error("monitor: conflict cache", err)
	}
	if seen {
		return issues
	}
	if err := m.conflictCache.Set(ctx, key, true, m.conflictTTL); err != nil {
		logger.Error("monitor: conflict cache set", err)
	}

	m.sink.Record(ctx, auditmodel.Event{
		Type:       auditmodel.EventConflictDetected,
		EntityType: "promotion",
		EntityID:   issue.PromotionIDs[0],
		Metadata: map[string]interface{}{
			"issue_type":    issue.Type,
			"promotion_ids": issue.PromotionIDs,
			"detail":        issue.Detail,
		},
		Severity: auditmodel.SeverityWarning,
	})
	return issues
}

// usageCheck flags promotions nearing their cap and anomalous
// discount-to-order ratios.
func (m *HealthMonitor) usageCheck(ctx context.Context, promos []*model.Promotion) ([]model.HealthIssue, error) {
	now := m.now()
	var issues []model.HealthIssue

	for _, p := range promos {
		if p.Status != model.StatusActive || p.UsageLimit == nil || *p.UsageLimit == 0 {
			continue
		}
		pct := p.CurrentUsageCount * 100 / *p.UsageLimit
		if pct >= usageNearLimitPct && !p.IsUsageLimitReached() {
			issues = append(issues, model.HealthIssue{
				Type:         model.IssueUsageNearLimit,
				PromotionIDs: []uuid.UUID{p.ID},
				Detail:       fmt.Sprintf("%q is at %d%% of its usage limit", p.Name, pct),
				DetectedAt:   now,
			})
		}
	}

	stats, err := m.repo.GetUsageStatistics(ctx)
	if err != nil {
		return issues, err
	}
	ratioCap := decimal.NewFromInt(discountRatioPct).Div(oneHundred)
	for _, s := range stats {
		if !s.AvgOrderSubtotal.IsPositive() {
			continue
		}
		ratio := s.AvgDiscount.Div(s.AvgOrderSubtotal)
		if ratio.GreaterThan(ratioCap) {
			issues = append(issues, model.HealthIssue{
				Type:         model.IssueDiscountAnomaly,
				PromotionIDs: []uuid.UUID{s.PromotionID},
				Detail: fmt.Sprintf("avg discount is %s%% of avg order value",
					ratio.Mul(oneHundred).Round(1).String()),
				DetectedAt: now,
			})
		}
	}
	return issues, nil
}

// GetSystemHealthMetrics computes the aggregate health answer on demand.
func (m *HealthMonitor) GetSystemHealthMetrics(ctx context.Context) (*model.SystemHealthMetrics, error) {
	promos, err := m.repo.GetPromotionsForMonitoring(ctx)
	if err != nil {
		return nil, fmt.Errorf("load promotions: %w", err)
	}

	issues := m.healthCheck(promos)
	conflicts := m.conflictCheck(ctx, promos)
	issues = append(issues, conflicts...)
	if usageIssues, err := m.usageCheck(ctx, promos); err != nil {
		logger.Error("monitor: usage check", err)
	} else {
		issues = append(issues, usageIssues...)
	}

	counts := make(map[model.PromotionStatus]int)
	for _, p := range promos {
		counts[p.Status]++
	}

	return &model.SystemHealthMetrics{
		StatusCounts:  counts,
		HealthScore:   healthScore(issues, len(conflicts)),
		Issues:        issues,
		ConflictCount: len(conflicts),
		CheckedAt:     m.now(),
	}, nil
}

// GetPromotionStatusUpdates reports, per promotion, whether its persisted
// status drifted from what the clock dictates.
func (m *HealthMonitor) GetPromotionStatusUpdates(ctx context.Context) ([]model.PromotionStatusUpdate, error) {
	promos, err := m.repo.GetPromotionsForMonitoring(ctx)
	if err != nil {
		return nil, fmt.Errorf("load promotions: %w", err)
	}

	now := m.now()
	updates := make([]model.PromotionStatusUpdate, 0, len(promos))
	for _, p := range promos {
		expected := p.DeriveStatus(now)
		updates = append(updates, model.PromotionStatusUpdate{
			PromotionID:    p.ID,
			CurrentStatus:  p.Status,
			ExpectedStatus: expected,
			NeedsUpdate:    expected != p.Status,
		})
	}
	return updates, nil
}

// healthScore starts at 100 and deducts per finding: 10 per expired-but-
// active promotion, 5 per usage breach, 5 per conflict. Floored at 0.
func healthScore(issues []model.HealthIssue, conflictCount int) int {
	score := 100
	for _, issue := range issues {
		switch issue.Type {
		case model.IssueExpiredButActive:
			score -= 10
		case model.IssueUsageExceeded:
			score -= 5
		}
	}
	score -= 5 * conflictCount
	if score < 0 {
		score = 0
	}
	return score
}

func publishMetrics(promos []*model.Promotion, score, conflictCount int) {
	metrics.HealthScore.Set(float64(score))
	metrics.ActiveConflicts.Set(float64(conflictCount))

	counts := map[model.PromotionStatus]int{}
	for _, p := range promos {
		counts[p.Status]++
	}
	for _, status := range []model.PromotionStatus{
		model.StatusDraft, model.StatusScheduled, model.StatusActive,
		model.StatusPaused, model.StatusExpired,
	} {
		metrics.PromotionsByStatus.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}

func windowsOverlap(a, b *model.Promotion) bool {
	return a.StartsAt.Before(b.EndsAt) && b.StartsAt.Before(a.EndsAt)
}

// conflictKey is order-independent for the pair.
func conflictKey(issueType model.HealthIssueType, ids []uuid.UUID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	sort.Strings(parts)
	return "promo:conflict:" + string(issueType) + ":" + strings.Join(parts, ":")
}
