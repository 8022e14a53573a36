package service

import (
	"context"
	"time"

	"equipshare-backend/internal/clock"
	"equipshare-backend/internal/domain"
	"equipshare-backend/internal/logger"
)

// ReconcileReport summarizes one reconciliation pass.
type ReconcileReport struct {
	Scanned          int
	OrphansCancelled int
	RequestsRepaired int
	Failures         int
}

// Reconciler repairs the request/transfer pairs that a failed second write
// left inconsistent: scheduled transfers whose approval never committed, and
// requests that missed a reflection of their transfer's status.
type Reconciler struct {
	requests  *requestService
	transfers *transferService
	clock     clock.Clock
}

// Run inspects transfers updated within lookback and every scheduled
// transfer regardless of age, so an outage longer than lookback cannot hide
// an orphan. A scheduled transfer whose request is still pending is only
// treated as orphaned once it is older than grace, so an approval in flight
// is not disturbed.
func (r *Reconciler) Run(ctx context.Context, grace, lookback time.Duration) (ReconcileReport, error) {
	var report ReconcileReport
	logger.EnterMethod("Reconciler.Run", "grace", grace, "lookback", lookback)

	now := r.clock.Now()
	ts, err := get(ctx, r.transfers.policy, "list reconcile candidates", func(ctx context.Context) ([]domain.EquipmentTransfer, error) {
		return r.transfers.transfers.ListReconcileCandidates(ctx, now.Add(-lookback))
	})
	if err != nil {
		logger.ExitMethodWithError("Reconciler.Run", err)
		return report, err
	}

	for i := range ts {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		report.Scanned++
		t := &ts[i]
		req, err := r.requests.load(ctx, t.RequestID)
		if err != nil {
			logger.Warn("Reconcile: request lookup failed", "transfer_id", t.ID, "request_id", t.RequestID, "error", err)
			report.Failures++
			continue
		}

		if t.Status == domain.TransferStatusScheduled {
			if !orphaned(t, req, now, grace) {
				continue
			}
			if err := r.transfers.compensate(ctx, t, "request "+req.ID+" is "+string(req.Status)+" without an approved transfer"); err != nil {
				report.Failures++
				continue
			}
			report.OrphansCancelled++
			continue
		}

		target, ok := domain.RequestStatusFor(t)
		if !ok || req.Status == target || !req.Status.CanReflectTo(target) {
			continue
		}
		if !r.isLatest(ctx, t) {
			continue
		}
		if err := r.requests.reflectTransferStatus(ctx, t); err != nil {
			logger.Warn("Reconcile: reflection failed", "transfer_id", t.ID, "request_id", req.ID, "error", err)
			report.Failures++
			continue
		}
		report.RequestsRepaired++
	}

	logger.ExitMethod("Reconciler.Run", "scanned", report.Scanned, "orphans", report.OrphansCancelled, "repaired", report.RequestsRepaired, "failures", report.Failures)
	return report, nil
}

func orphaned(t *domain.EquipmentTransfer, req *domain.EquipmentRequest, now time.Time, grace time.Duration) bool {
	switch req.Status {
	case domain.RequestStatusPending:
		return now.Sub(t.CreatedAt) >= grace
	case domain.RequestStatusRejected, domain.RequestStatusCancelled, domain.RequestStatusCompleted:
		return true
	}
	return false
}

// isLatest guards against repairing a request from a transfer that a newer
// one has superseded.
func (r *Reconciler) isLatest(ctx context.Context, t *domain.EquipmentTransfer) bool {
	latest, err := get(ctx, r.transfers.policy, "select latest transfer", func(ctx context.Context) (*domain.EquipmentTransfer, error) {
		return r.transfers.transfers.GetLatestByRequest(ctx, t.RequestID)
	})
	return err == nil && latest.ID == t.ID
}
