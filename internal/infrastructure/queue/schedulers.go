package queue

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"promo-engine/internal/domains/audit/job"
	"promo-engine/internal/shared"
	"promo-engine/pkg/logger"
)

type Scheduler struct {
	scheduler *asynq.Scheduler
}

func NewScheduler(redisAddress string) *Scheduler {
	scheduler := asynq.NewScheduler(
		asynq.RedisClientOpt{Addr: redisAddress},
		&asynq.SchedulerOpts{
			Location: time.UTC,
			LogLevel: asynq.InfoLevel,
		},
	)

	return &Scheduler{scheduler: scheduler}
}

func (s *Scheduler) RegisterCleanupJobs() error {
	return s.registerCleanupAuditLogsJob()
}

// Audit log cleanup runs daily at 3 AM, off the traffic peak.
func (s *Scheduler) registerCleanupAuditLogsJob() error {
	payload, err := json.Marshal(job.CleanupPayload{})
	if err != nil {
		return err
	}

	task := asynq.NewTask(shared.TypeCleanupAuditLogs, payload)

	_, err = s.scheduler.Register(
		"0 3 * * *",
		task,
		asynq.Queue(shared.QueueAudit),
		asynq.MaxRetry(2),
		asynq.Timeout(10*time.Minute),
	)

	if err != nil {
		logger.Error("Failed to register CleanupAuditLogs job", err)
		return err
	}

	logger.Info("Registered CleanupAuditLogs: daily at 3 AM", map[string]interface{}{})
	return nil
}

func (s *Scheduler) Start() error {
	return s.scheduler.Run()
}

func (s *Scheduler) Shutdown() {
	s.scheduler.Shutdown()
}
