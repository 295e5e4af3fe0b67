package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"promo-engine/internal/domains/audit"
	auditmodel "promo-engine/internal/domains/audit/model"
	"promo-engine/internal/domains/promotion/model"
	"promo-engine/internal/domains/promotion/repository"
)

// AdminService is the CRUD surface behind the admin API. Every mutation
// lands in the audit trail with changed-fields-only old/new values.
type AdminService struct {
	repo repository.PromotionRepository
	sink audit.Sink
	now  func() time.Time
}

func NewAdminService(repo repository.PromotionRepository, sink audit.Sink) *AdminService {
	return &AdminService{
		repo: repo,
		sink: sink,
		now:  time.Now,
	}
}

// Create stores a new campaign in draft. The sweep takes over status
// derivation once rules exist and the window opens.
func (s *AdminService) Create(ctx context.Context, req *model.CreatePromotionRequest) (*model.Promotion, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	start, end, err := req.Window()
	if err != nil {
		return nil, err
	}

	now := s.now()
	promo := &model.Promotion{
		ID:                    uuid.New(),
		Name:                  req.Name,
		Description:           req.Description,
		Type:                  model.PromotionType(req.Type),
		Status:                model.StatusDraft,
		Priority:              req.Priority,
		StartsAt:              start,
		EndsAt:                end,
		UsageLimit:            req.UsageLimit,
		UsageLimitPerCustomer: req.UsageLimitPerCustomer,
		ExclusiveWith:         req.ExclusiveWith,
		Version:               1,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	if err := s.repo.Create(ctx, promo); err != nil {
		return nil, err
	}

	s.sink.Record(ctx, auditmodel.Event{
		Type:       auditmodel.EventPromotionCreated,
		EntityType: "promotion",
		EntityID:   promo.ID,
		NewValues: map[string]interface{}{
			"name":      promo.Name,
			"type":      promo.Type,
			"status":    promo.Status,
			"starts_at": promo.StartsAt,
			"ends_at":   promo.EndsAt,
		},
		Severity: auditmodel.SeverityInfo,
	})
	return promo, nil
}

// Update applies a partial update. Nil request fields leave the promotion
// untouched; the repository enforces optimistic version locking.
func (s *AdminService) Update(ctx context.Context, id uuid.UUID, req *model.UpdatePromotionRequest) (*model.Promotion, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	promo, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if promo.IsDeleted() {
		return nil, model.ErrPromotionNotFound
	}

	before := *promo

	if req.Name != nil {
		promo.Name = *req.Name
	}
	if req.Description != nil {
		promo.Description = req.Description
	}
	if req.Priority != nil {
		promo.Priority = *req.Priority
	}
	if req.StartsAt != nil {
		start, err := time.Parse(time.RFC3339, *req.StartsAt)
		if err != nil {
			return nil, &model.AppError{Code: model.ErrCodeValidationFailed, Message: "invalid starts_at format", HTTPStatus: 400}
		}
		promo.StartsAt = start
	}
	if req.EndsAt != nil {
		end, err := time.Parse(time.RFC3339, *req.EndsAt)
		if err != nil {
			return nil, &model.AppError{Code: model.ErrCodeValidationFailed, Message: "invalid ends_at format", HTTPStatus: 400}
		}
		promo.EndsAt = end
	}
	if !promo.EndsAt.After(promo.StartsAt) {
		return nil, &model.AppError{Code: model.ErrCodeValidationFailed, Message: "ends_at must be after starts_at", HTTPStatus: 400}
	}
	if req.UsageLimit != nil {
		promo.UsageLimit = req.UsageLimit
	}
	if req.UsageLimitPerCustomer != nil {
		promo.UsageLimitPerCustomer = req.UsageLimitPerCustomer
	}
	if req.ExclusiveWith != nil {
		promo.ExclusiveWith = req.ExclusiveWith
	}
	promo.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, promo); err != nil {
		return nil, err
	}

	oldValues, newValues := auditmodel.PromotionDiff(&before, promo)
	if len(newValues) > 0 {
		s.sink.Record(ctx, auditmodel.Event{
			Type:       auditmodel.EventPromotionUpdated,
			EntityType: "promotion",
			EntityID:   promo.ID,
			OldValues:  oldValues,
			NewValues:  newValues,
			Severity:   auditmodel.SeverityInfo,
		})
	}
	return promo, nil
}

// Delete soft-deletes; the engine and sweeps skip deleted promotions.
func (s *AdminService) Delete(ctx context.Context, id uuid.UUID) error {
	promo, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if promo.IsDeleted() {
		return model.ErrPromotionNotFound
	}

	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return err
	}

	s.sink.Record(ctx, auditmodel.Event{
		Type:       auditmodel.EventPromotionDeleted,
		EntityType: "promotion",
		EntityID:   id,
		OldValues:  map[string]interface{}{"name": promo.Name, "status": promo.Status},
		Severity:   auditmodel.SeverityWarning,
	})
	return nil
}

func (s *AdminService) Get(ctx context.Context, id uuid.UUID) (*model.Promotion, []*model.PromotionRule, error) {
	promo, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if promo.IsDeleted() {
		return nil, nil, model.ErrPromotionNotFound
	}

	rules, err := s.repo.GetRules(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return promo, rules, nil
}

func (s *AdminService) List(ctx context.Context, filter *model.ListPromotionsFilter) ([]*model.Promotion, int, error) {
	if filter == nil {
		filter = &model.ListPromotionsFilter{}
	}
	return s.repo.List(ctx, filter)
}

// ReplaceRules swaps the promotion's full rule set atomically. No partial
// merges: the request must carry at least one condition and one benefit.
func (s *AdminService) ReplaceRules(ctx context.Context, id uuid.UUID, req *model.ReplaceRulesRequest) ([]*model.PromotionRule, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	promo, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if promo.IsDeleted() {
		return nil, model.ErrPromotionNotFound
	}

	rules := make([]*model.PromotionRule, 0, len(req.Rules))
	for _, r := range req.Rules {
		rules = append(rules, r.ToRule(id))
	}

	if err := s.repo.ReplaceRules(ctx, id, rules); err != nil {
		return nil, err
	}

	s.sink.Record(ctx, auditmodel.Event{
		Type:       auditmodel.EventRulesReplaced,
		EntityType: "promotion",
		EntityID:   id,
		Metadata:   map[string]interface{}{"rule_count": len(rules)},
		Severity:   auditmodel.SeverityInfo,
	})
	return rules, nil
}
