package jobs

import (
	"context"
	"time"

	"equipshare-backend/internal/clock"
	"equipshare-backend/internal/config"
	"equipshare-backend/internal/domain"
	"equipshare-backend/internal/logger"
	"equipshare-backend/internal/service"
)

// OverdueReminder notifies the borrowing organization about a late return.
type OverdueReminder interface {
	SendOverdueReminder(ctx context.Context, t domain.EquipmentTransfer, now time.Time) error
}

// JobMetrics receives job results.
type JobMetrics interface {
	SetOverdue(n int)
	ObserveReconciled(kind string, n int)
}

// Services holds all service dependencies needed by jobs
type Services struct {
	Transfers  service.TransferService
	Reconciler *service.Reconciler
	Reminders  OverdueReminder // optional
	Metrics    JobMetrics      // optional
}

// JobRunner coordinates all scheduled jobs
type JobRunner struct {
	services *Services
	config   *config.Config
	clock    clock.Clock
}

// NewJobRunner creates a new job runner with all dependencies
func NewJobRunner(services *Services, cfg *config.Config, clk clock.Clock) *JobRunner {
	if clk == nil {
		clk = clock.System{}
	}
	return &JobRunner{
		services: services,
		config:   cfg,
		clock:    clk,
	}
}

// Config returns the configuration the jobs were built with
func (jr *JobRunner) Config() *config.Config {
	return jr.config
}

// runWithRecovery wraps job execution with panic recovery
func (jr *JobRunner) runWithRecovery(jobName string, jobFunc func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Job panicked", "job", jobName, "panic", r)
		}
	}()

	start := jr.clock.Now()
	logger.Info("Starting job", "job", jobName)
	jobFunc()
	logger.Info("Job completed", "job", jobName, "duration", jr.clock.Now().Sub(start))
}

// RunAll runs every job once (for manual execution)
func (jr *JobRunner) RunAll() {
	jr.ReconcileTransfers()
	jr.ReportOverdueTransfers()
}
