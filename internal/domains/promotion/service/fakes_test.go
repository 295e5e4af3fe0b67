package service

import (
	"context"
	"sync"

	"github.com/google/uuid"

	auditmodel "promo-engine/internal/domains/audit/model"
	"promo-engine/internal/domains/promotion/model"
)

// fakeRepo is an in-memory PromotionRepository for service tests.
type fakeRepo struct {
	mu sync.Mutex

	promotions map[uuid.UUID]*model.Promotion
	rules      map[uuid.UUID][]*model.PromotionRule
	usages     []*model.PromotionUsage
	stock      map[uuid.UUID]model.GiftProductStock
	stats      []*model.UsageStatistics
	analytics  []*model.AnalyticsEntry

	customerUsage map[string]int // promotionID+customerID

	// per-promotion UpdateStatus failure injection
	updateStatusErr map[uuid.UUID]error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		promotions:    make(map[uuid.UUID]*model.Promotion),
		rules:         make(map[uuid.UUID][]*model.PromotionRule),
		stock:         make(map[uuid.UUID]model.GiftProductStock),
		customerUsage: make(map[string]int),
	}
}

func (f *fakeRepo) add(promo *model.Promotion, rules ...*model.PromotionRule) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *promo
	f.promotions[promo.ID] = &cp
	f.rules[promo.ID] = rules
}

func customerKey(promotionID, customerID uuid.UUID) string {
	return promotionID.String() + ":" + customerID.String()
}

func (f *fakeRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Promotion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	promo, ok := f.promotions[id]
	if !ok {
		return nil, model.ErrPromotionNotFound
	}
	cp := *promo
	return &cp, nil
}

func (f *fakeRepo) GetActivePromotions(ctx context.Context) ([]*model.Promotion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Promotion
	for _, p := range f.promotions {
		if p.Status == model.StatusActive && p.DeletedAt == nil {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeRepo) GetPromotionsForMonitoring(ctx context.Context) ([]*model.Promotion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Promotion
	for _, p := range f.promotions {
		if p.DeletedAt == nil {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeRepo) List(ctx context.Context, filter *model.ListPromotionsFilter) ([]*model.Promotion, int, error) {
	promos, err := f.GetPromotionsForMonitoring(ctx)
	return promos, len(promos), err
}

func (f *fakeRepo) GetRules(ctx context.Context, promotionID uuid.UUID) ([]*model.PromotionRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rules[promotionID], nil
}

func (f *fakeRepo) GetPromotionsForStatusUpdate(ctx context.Context) ([]*model.Promotion, error) {
	return f.GetPromotionsForMonitoring(ctx)
}

func (f *fakeRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status model.PromotionStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, injected := f.updateStatusErr[id]; injected {
		return false, err
	}
	promo, ok := f.promotions[id]
	if !ok {
		return false, model.ErrPromotionNotFound
	}
	promo.Status = status
	return true, nil
}

func (f *fakeRepo) GetCustomerUsageCount(ctx context.Context, promotionID, customerID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.customerUsage[customerKey(promotionID, customerID)], nil
}

func (f *fakeRepo) RecordUsage(ctx context.Context, usage *model.PromotionUsage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	promo, ok := f.promotions[usage.PromotionID]
	if !ok {
		return model.ErrPromotionNotFound
	}
	if promo.UsageLimit != nil && promo.CurrentUsageCount >= *promo.UsageLimit {
		return model.NewUsageLimitError(*promo.UsageLimit, promo.CurrentUsageCount)
	}
	promo.CurrentUsageCount++
	f.usages = append(f.usages, usage)
	if usage.CustomerID != nil {
		f.customerUsage[customerKey(usage.PromotionID, *usage.CustomerID)]++
	}
	return nil
}

func (f *fakeRepo) GetUsageStatistics(ctx context.Context) ([]*model.UsageStatistics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats, nil
}

func (f *fakeRepo) ValidateGiftProductsWithStock(ctx context.Context, productIDs []uuid.UUID) ([]model.GiftProductStock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.GiftProductStock, 0, len(productIDs))
	for _, id := range productIDs {
		if s, ok := f.stock[id]; ok {
			out = append(out, s)
		} else {
			out = append(out, model.GiftProductStock{ProductID: id, InStock: false})
		}
	}
	return out, nil
}

func (f *fakeRepo) CreateRule(ctx context.Context, rule *model.PromotionRule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules[rule.PromotionID] = append(f.rules[rule.PromotionID], rule)
	return nil
}

func (f *fakeRepo) DeleteRulesByPromotionID(ctx context.Context, promotionID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rules, promotionID)
	return nil
}

func (f *fakeRepo) ReplaceRules(ctx context.Context, promotionID uuid.UUID, rules []*model.PromotionRule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules[promotionID] = rules
	return nil
}

func (f *fakeRepo) Create(ctx context.Context, promo *model.Promotion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *promo
	f.promotions[promo.ID] = &cp
	return nil
}

func (f *fakeRepo) Update(ctx context.Context, promo *model.Promotion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.promotions[promo.ID]; !ok {
		return model.ErrPromotionNotFound
	}
	cp := *promo
	f.promotions[promo.ID] = &cp
	return nil
}

func (f *fakeRepo) SoftDelete(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	promo, ok := f.promotions[id]
	if !ok {
		return model.ErrPromotionNotFound
	}
	now := promo.UpdatedAt
	promo.DeletedAt = &now
	return nil
}

func (f *fakeRepo) RecordAnalytics(ctx context.Context, entry *model.AnalyticsEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.analytics = append(f.analytics, entry)
	return nil
}

// recordingSink captures audit events for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []auditmodel.Event
}

func newRecordingSink() *recordingSink {
	return &recordingSink{}
}

func (s *recordingSink) Record(ctx context.Context, event auditmodel.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) ofType(eventType string) []auditmodel.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []auditmodel.Event
	for _, e := range s.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
