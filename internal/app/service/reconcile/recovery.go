package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/fatflowers/payflow/internal/app/service/gateway"
	"github.com/fatflowers/payflow/internal/app/service/payment"
	"github.com/fatflowers/payflow/internal/models"
	"github.com/fatflowers/payflow/internal/platform/pgw"
	cfgpkg "github.com/fatflowers/payflow/pkg/config"
	"github.com/fatflowers/payflow/pkg/metrics"
	"github.com/fatflowers/payflow/pkg/types"

	"go.uber.org/zap"
)

// Recovery drives payments stuck in PENDING forward: the process died
// somewhere between creating the record and recording the gateway's answer.
// The gateway is queried first, so a submission that actually went through
// is adopted instead of charged again; only a provably unseen order is
// resubmitted, using the stored method token. Re-running the sweep is
// harmless because Submit is a no-op on records that moved on.
type Recovery struct {
	store    payment.Store
	gw       gateway.Client
	payments *payment.Service
	cfg      *cfgpkg.Config
	log      *zap.SugaredLogger
}

func NewRecovery(store payment.Store, gw gateway.Client, payments *payment.Service, cfg *cfgpkg.Config, log *zap.SugaredLogger) *Recovery {
	return &Recovery{store: store, gw: gw, payments: payments, cfg: cfg, log: log}
}

// RunResult counts one sweep's work.
type RunResult struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
}

// Run sweeps once at the given time. A single item's failure is counted
// and skipped, never propagated.
func (r *Recovery) Run(ctx context.Context, now time.Time) RunResult {
	var res RunResult

	cutoff := now.Add(-r.cfg.RecoveryStuckAfter())
	rows, err := r.store.ListStatusOlderThan(ctx, types.PaymentStatusPending, cutoff, r.cfg.Recovery.BatchSize)
	if err != nil {
		r.log.Errorw("recovery: failed to list stuck payments", "err", err)
		return res
	}
	if len(rows) == 0 {
		return res
	}
	r.log.Infow("recovery sweep", "candidates", len(rows))

	for _, p := range rows {
		if err := r.recoverOne(ctx, p); err != nil {
			res.Skipped++
			metrics.RecoveryTotal.WithLabelValues("skipped").Inc()
			r.log.Warnw("recovery: payment left for next sweep",
				"payment_id", p.ID, "order_id", p.OrderID, "err", err)
			continue
		}
		res.Processed++
		metrics.RecoveryTotal.WithLabelValues("processed").Inc()
	}

	r.log.Infow("recovery sweep done", "processed", res.Processed, "skipped", res.Skipped)
	return res
}

func (r *Recovery) recoverOne(ctx context.Context, p *models.Payment) error {
	txs, err := r.gw.QueryByOrder(ctx, p.OrderID)
	if err != nil && !pgw.IsNotFound(err) {
		// transient query failure; the next sweep retries
		return fmt.Errorf("gateway query failed: %w", err)
	}

	if pgw.IsNotFound(err) || len(txs) == 0 {
		// The gateway never saw this order: safe to submit. The stored
		// method token stands in for the original card data.
		_, serr := r.payments.Submit(ctx, p.ID, pgw.CardInfo{})
		return serr
	}

	// A transaction already exists: the first submission went through but
	// its outcome was never recorded. Adopt it, never submit again.
	latest := txs[0]
	switch latest.Status {
	case types.GatewayTxStatusSuccess:
		_, err := r.payments.FinalizePaid(ctx, p.ID, latest.TransactionKey)
		return err

	case types.GatewayTxStatusFailed:
		reason := latest.Reason
		if reason == "" {
			reason = "gateway reported failure"
		}
		_, err := r.payments.FinalizeFailed(ctx, p.ID, reason)
		return err

	case types.GatewayTxStatusPending:
		// hand the payment to the reconciliation scheduler
		_, err := r.payments.AdoptSubmission(ctx, p.ID, latest.TransactionKey)
		return err

	default:
		return fmt.Errorf("unknown gateway transaction status %q", latest.Status)
	}
}
