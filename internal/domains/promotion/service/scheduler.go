package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"promo-engine/internal/domains/audit"
	auditmodel "promo-engine/internal/domains/audit/model"
	"promo-engine/internal/domains/promotion/model"
	"promo-engine/internal/domains/promotion/repository"
	"promo-engine/internal/shared/metrics"
	"promo-engine/pkg/logger"
)

// LifecycleScheduler owns the promotion state machine: a periodic sweep that
// re-derives statuses from the clock, plus the manual transitions with their
// guards. The sweep never touches paused promotions.
type LifecycleScheduler struct {
	repo  repository.PromotionRepository
	sink  audit.Sink
	sweep *sweeper
	now   func() time.Time
}

func NewLifecycleScheduler(repo repository.PromotionRepository, sink audit.Sink, interval time.Duration) *LifecycleScheduler {
	s := &LifecycleScheduler{
		repo: repo,
		sink: sink,
		now:  time.Now,
	}
	s.sweep = newSweeper("lifecycle", interval, func(ctx context.Context) {
		start := time.Now()
		if _, err := s.ProcessScheduledPromotions(ctx); err != nil {
			logger.Error("lifecycle sweep", err)
		}
		metrics.SweepDuration.WithLabelValues("lifecycle").Observe(time.Since(start).Seconds())
	})
	return s
}

func (s *LifecycleScheduler) Start()          { s.sweep.Start() }
func (s *LifecycleScheduler) Stop()           { s.sweep.Stop() }
func (s *LifecycleScheduler) IsRunning() bool { return s.sweep.IsRunning() }

// ProcessScheduledPromotions is one sweep pass: pull every promotion whose
// persisted status drifted from the derived one, correct it, and emit the
// lifecycle events. One promotion's failure never aborts the batch; sweeps
// are self-healing on the next tick. Returns the number of corrections.
func (s *LifecycleScheduler) ProcessScheduledPromotions(ctx context.Context) (int, error) {
	drifted, err := s.repo.GetPromotionsForStatusUpdate(ctx)
	if err != nil {
		return 0, fmt.Errorf("load drifted promotions: %w", err)
	}

	now := s.now()
	updated := 0
	for _, promo := range drifted {
		expected := promo.DeriveStatus(now)
		if expected == promo.Status {
			continue
		}

		ok, err := s.repo.UpdateStatus(ctx, promo.ID, expected)
		if err != nil {
			logger.ErrorWithFields("lifecycle sweep: status update", err, map[string]interface{}{
				"promotion_id": promo.ID,
			})
			continue
		}
		if !ok {
			continue
		}

		updated++
		s.recordTransition(ctx, promo, promo.Status, expected, "sweep")
	}
	return updated, nil
}

// Activate moves a promotion to active by hand. Only legal outside active
// status and only while the clock is inside the validity window.
func (s *LifecycleScheduler) Activate(ctx context.Context, id uuid.UUID) error {
	promo, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if promo.Status == model.StatusActive {
		return model.NewLifecycleConflictError(promo.Status, "activate")
	}
	if !promo.IsWithinWindow(s.now()) {
		return &model.AppError{
			Code:       model.ErrCodeLifecycleConflict,
			Message:    fmt.Sprintf("cannot activate %q outside its validity window", promo.Name),
			HTTPStatus: 409,
		}
	}

	if _, err := s.repo.UpdateStatus(ctx, id, model.StatusActive); err != nil {
		return err
	}
	s.recordTransition(ctx, promo, promo.Status, model.StatusActive, "activate")
	return nil
}

// Deactivate takes an active promotion out of rotation. It lands in paused,
// same as Pause, but is audited as an operator deactivation.
func (s *LifecycleScheduler) Deactivate(ctx context.Context, id uuid.UUID) error {
	return s.suspend(ctx, id, "deactivate")
}

// Pause suspends an active promotion. Paused is sticky: the sweep will not
// resurrect it, only Resume does.
func (s *LifecycleScheduler) Pause(ctx context.Context, id uuid.UUID) error {
	return s.suspend(ctx, id, "pause")
}

func (s *LifecycleScheduler) suspend(ctx context.Context, id uuid.UUID, operation string) error {
	promo, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if promo.Status != model.StatusActive {
		return model.NewLifecycleConflictError(promo.Status, operation)
	}

	if _, err := s.repo.UpdateStatus(ctx, id, model.StatusPaused); err != nil {
		return err
	}
	s.recordTransition(ctx, promo, promo.Status, model.StatusPaused, operation)
	return nil
}

// Resume lifts a pause and re-derives the status from the current time. The
// promotion may come back scheduled or active, or land straight in expired
// when its window has passed; the returned status tells the caller which.
func (s *LifecycleScheduler) Resume(ctx context.Context, id uuid.UUID) (model.PromotionStatus, error) {
	promo, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return "", err
	}
	if promo.Status != model.StatusPaused {
		return "", model.NewLifecycleConflictError(promo.Status, "resume")
	}

	now := s.now()
	var derived model.PromotionStatus
	switch {
	case now.Before(promo.StartsAt):
		derived = model.StatusScheduled
	case now.Before(promo.EndsAt):
		derived = model.StatusActive
	default:
		derived = model.StatusExpired
	}

	if _, err := s.repo.UpdateStatus(ctx, id, derived); err != nil {
		return "", err
	}

	operation := "resume"
	if derived == model.StatusExpired {
		operation = "resume_expired"
	}
	s.recordTransition(ctx, promo, model.StatusPaused, derived, operation)
	return derived, nil
}

// recordTransition writes the audit event and the analytics entry for one
// status change. Both are fire-and-forget from the scheduler's perspective.
func (s *LifecycleScheduler) recordTransition(ctx context.Context, promo *model.Promotion, from, to model.PromotionStatus, operation string) {
	eventType := auditmodel.EventStatusTransition
	switch {
	case operation == "pause":
		eventType = auditmodel.EventPromotionPaused
	case operation == "resume":
		eventType = auditmodel.EventPromotionResumed
	case operation == "resume_expired":
		eventType = auditmodel.EventResumeExpired
	case to == model.StatusActive:
		eventType = auditmodel.EventPromotionActivated
	case to == model.StatusExpired:
		eventType = auditmodel.EventPromotionExpired
	}

	s.sink.Record(ctx, auditmodel.Event{
		Type:       eventType,
		EntityType: "promotion",
		EntityID:   promo.ID,
		OldValues:  map[string]interface{}{"status": from},
		NewValues:  map[string]interface{}{"status": to},
		Metadata:   map[string]interface{}{"operation": operation},
		Severity:   auditmodel.SeverityInfo,
	})

	if err := s.repo.RecordAnalytics(ctx, &model.AnalyticsEntry{
		PromotionID: promo.ID,
		EventType:   eventType,
		FromStatus:  from,
		ToStatus:    to,
		OccurredAt:  s.now(),
	}); err != nil {
		logger.ErrorWithFields("lifecycle: record analytics", err, map[string]interface{}{
			"promotion_id": promo.ID,
		})
	}
}
