package shared

// Task type identifiers for the worker queue.
const (
	TypePersistAuditEvent = "audit:persist_event"
	TypeCleanupAuditLogs  = "audit:cleanup_old"
)

// Queue names, highest priority first.
const (
	QueueAudit   = "audit"
	QueueDefault = "default"
)
