// Package audit provides the fire-and-forget sink the promotion core writes
// lifecycle and security events to. Sink failures are swallowed and logged;
// they never propagate to the caller.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"promo-engine/internal/domains/audit/model"
	"promo-engine/internal/shared"
	"promo-engine/pkg/logger"
)

// Sink receives structured audit events from the core.
type Sink interface {
	Record(ctx context.Context, event model.Event)
}

// QueueSink enqueues events onto the worker queue. Persistence happens in
// cmd/worker, off the evaluation hot path.
type QueueSink struct {
	client *asynq.Client
}

// NewQueueSink wraps an asynq client.
func NewQueueSink(client *asynq.Client) *QueueSink {
	return &QueueSink{client: client}
}

func (s *QueueSink) Record(ctx context.Context, event model.Event) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		logger.Error("audit: marshal event", err)
		return
	}

	task := asynq.NewTask(shared.TypePersistAuditEvent, payload)
	if _, err := s.client.EnqueueContext(ctx, task,
		asynq.Queue(shared.QueueAudit),
		asynq.MaxRetry(3),
		asynq.Timeout(30*time.Second),
	); err != nil {
		logger.ErrorWithFields("audit: enqueue event", err, map[string]interface{}{
			"event_type": event.Type,
			"entity_id":  event.EntityID,
		})
	}
}

// LogSink writes events straight to the structured log. Used in development
// and as a fallback when the queue is unavailable.
type LogSink struct{}

func NewLogSink() *LogSink {
	return &LogSink{}
}

func (s *LogSink) Record(ctx context.Context, event model.Event) {
	logger.Info("audit event", map[string]interface{}{
		"type":        event.Type,
		"entity_type": event.EntityType,
		"entity_id":   event.EntityID,
		"severity":    event.Severity,
		"metadata":    event.Metadata,
	})
}
