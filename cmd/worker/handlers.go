package main

import (
	"time"

	"github.com/hibiken/asynq"

	auditjob "promo-engine/internal/domains/audit/job"
	"promo-engine/internal/shared"
	"promo-engine/pkg/container"
)

// HandlerRegistry holds all job handlers.
type HandlerRegistry struct {
	persistEvent *auditjob.PersistEventHandler
	cleanup      *auditjob.CleanupHandler
}

func initializeHandlers(c *container.Container) *HandlerRegistry {
	retention := time.Duration(c.Config.Audit.RetentionDays) * 24 * time.Hour

	return &HandlerRegistry{
		persistEvent: auditjob.NewPersistEventHandler(c.AuditRepo),
		cleanup:      auditjob.NewCleanupHandler(c.AuditRepo, retention),
	}
}

func (h *HandlerRegistry) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(shared.TypePersistAuditEvent, h.persistEvent.ProcessTask)
	mux.HandleFunc(shared.TypeCleanupAuditLogs, h.cleanup.ProcessTask)
}
