package jobs

import (
	"context"

	"equipshare-backend/internal/logger"
)

// ReportOverdueTransfers publishes the overdue count and reminds each
// borrowing organization of its late returns. It never changes a transfer.
func (jr *JobRunner) ReportOverdueTransfers() {
	jr.runWithRecovery("ReportOverdueTransfers", func() {
		ctx := context.Background()

		overdue, err := jr.services.Transfers.ListOverdue(ctx)
		if err != nil {
			logger.Error("Failed to list overdue transfers", "error", err)
			return
		}
		if jr.services.Metrics != nil {
			jr.services.Metrics.SetOverdue(len(overdue))
		}
		logger.Info("Found overdue transfers", "count", len(overdue))

		if jr.services.Reminders == nil {
			return
		}
		now := jr.clock.Now()
		sent := 0
		for _, t := range overdue {
			if err := jr.services.Reminders.SendOverdueReminder(ctx, t, now); err != nil {
				logger.Error("Failed to send overdue reminder", "transfer_id", t.ID, "organization_id", t.ToOrganizationID, "error", err)
				continue
			}
			sent++
		}
		logger.Info("Sent overdue reminders", "sent", sent, "total", len(overdue))
	})
}

// ReconcileTransfers cancels orphaned scheduled transfers and repairs
// requests whose status lags behind their transfer.
func (jr *JobRunner) ReconcileTransfers() {
	jr.runWithRecovery("ReconcileTransfers", func() {
		ctx := context.Background()

		report, err := jr.services.Reconciler.Run(ctx, jr.config.ReconcileGrace(), jr.config.ReconcileLookback())
		if err != nil {
			logger.Error("Reconciliation failed", "error", err)
			return
		}
		if jr.services.Metrics != nil {
			jr.services.Metrics.ObserveReconciled("orphan_cancelled", report.OrphansCancelled)
			jr.services.Metrics.ObserveReconciled("request_repaired", report.RequestsRepaired)
			jr.services.Metrics.ObserveReconciled("failure", report.Failures)
		}
		logger.Info("Reconciliation finished",
			"scanned", report.Scanned,
			"orphans_cancelled", report.OrphansCancelled,
			"requests_repaired", report.RequestsRepaired,
			"failures", report.Failures,
		)
	})
}
