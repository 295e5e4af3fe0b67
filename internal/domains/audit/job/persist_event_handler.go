package job

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"promo-engine/internal/domains/audit/model"
	"promo-engine/internal/domains/audit/repository"
	"promo-engine/internal/shared/utils"
	"promo-engine/pkg/logger"
)

// PersistEventHandler writes queued audit events to the log store.
type PersistEventHandler struct {
	repo repository.AuditRepository
}

func NewPersistEventHandler(repo repository.AuditRepository) *PersistEventHandler {
	return &PersistEventHandler{repo: repo}
}

func (h *PersistEventHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var event model.Event
	if err := utils.UnmarshalTask(t, &event); err != nil {
		return fmt.Errorf("unmarshal audit event: %w", err)
	}

	if err := h.repo.Insert(ctx, &event); err != nil {
		return fmt.Errorf("persist audit event: %w", err)
	}
	return nil
}

// CleanupHandler prunes audit logs past the retention window.
type CleanupHandler struct {
	repo      repository.AuditRepository
	retention time.Duration
}

func NewCleanupHandler(repo repository.AuditRepository, retention time.Duration) *CleanupHandler {
	if retention <= 0 {
		retention = 90 * 24 * time.Hour
	}
	return &CleanupHandler{repo: repo, retention: retention}
}

type CleanupPayload struct{}

func (h *CleanupHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload CleanupPayload
	if err := utils.UnmarshalTask(t, &payload); err != nil {
		return fmt.Errorf("unmarshal cleanup payload: %w", err)
	}

	cutoff := time.Now().Add(-h.retention)
	removed, err := h.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("cleanup audit logs: %w", err)
	}

	logger.Info("audit log cleanup finished", map[string]interface{}{
		"removed": removed,
		"cutoff":  cutoff,
	})
	return nil
}
