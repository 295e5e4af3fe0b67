package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"promo-engine/internal/domains/audit/model"
)

// AuditRepository persists audit events. Consumed by the worker, never by
// the evaluation hot path.
type AuditRepository interface {
	Insert(ctx context.Context, event *model.Event) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type PostgresRepository struct {
	db *pgxpool.Pool
}

func NewPostgresRepository(db *pgxpool.Pool) AuditRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, event *model.Event) error {
	oldValues, err := json.Marshal(event.OldValues)
	if err != nil {
		return fmt.Errorf("marshal old values: %w", err)
	}
	newValues, err := json.Marshal(event.NewValues)
	if err != nil {
		return fmt.Errorf("marshal new values: %w", err)
	}
	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	query := `
		INSERT INTO audit_logs (
			id, event_type, entity_type, entity_id,
			old_values, new_values, metadata, severity, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`

	_, err = r.db.Exec(ctx, query,
		event.ID,
		event.Type,
		event.EntityType,
		event.EntityID,
		oldValues,
		newValues,
		metadata,
		event.Severity,
		event.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM audit_logs WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old audit logs: %w", err)
	}
	return tag.RowsAffected(), nil
}
