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

// Scheduler drives every lingering IN_PROGRESS payment to a terminal state
// by asking the gateway what actually happened. It races the webhook
// handler by design; the finalize CAS makes the race safe.
type Scheduler struct {
	store    payment.Store
	gw       gateway.Client
	payments *payment.Service
	cfg      *cfgpkg.Config
	log      *zap.SugaredLogger
}

func NewScheduler(store payment.Store, gw gateway.Client, payments *payment.Service, cfg *cfgpkg.Config, log *zap.SugaredLogger) *Scheduler {
	return &Scheduler{store: store, gw: gw, payments: payments, cfg: cfg, log: log}
}

// Tick runs one reconciliation pass at the given time. Payments younger
// than the grace window are skipped so the pass never races its own
// initial submission. Per-payment failures are logged and never abort the
// batch.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	cutoff := now.Add(-s.cfg.ReconcileGrace())
	rows, err := s.store.ListStatusOlderThan(ctx, types.PaymentStatusInProgress, cutoff, s.cfg.Reconcile.BatchSize)
	if err != nil {
		s.log.Errorw("reconcile: failed to list in-progress payments", "err", err)
		return
	}
	if len(rows) == 0 {
		return
	}
	s.log.Infow("reconcile pass", "candidates", len(rows))

	for _, p := range rows {
		metrics.ReconcileCheckedTotal.Inc()
		if err := s.reconcileOne(ctx, p, now); err != nil {
			// one bad payment never blocks the batch
			s.log.Warnw("reconcile: payment left for next tick",
				"payment_id", p.ID, "order_id", p.OrderID, "err", err)
		}
	}
}

func (s *Scheduler) reconcileOne(ctx context.Context, p *models.Payment, now time.Time) error {
	txs, err := s.gw.QueryByOrder(ctx, p.OrderID)
	if err != nil {
		if pgw.IsNotFound(err) {
			// The gateway never saw this order: the submission provably
			// died in transit.
			_, ferr := s.payments.FinalizeFailed(ctx, p.ID, "no record at gateway")
			return ferr
		}
		// transient query failure; the next tick retries
		return fmt.Errorf("gateway query failed: %w", err)
	}
	if len(txs) == 0 {
		// defensive: clients must answer not-found instead
		_, ferr := s.payments.FinalizeFailed(ctx, p.ID, "no record at gateway")
		return ferr
	}

	latest := txs[0]
	switch latest.Status {
	case types.GatewayTxStatusSuccess:
		_, err := s.payments.FinalizePaid(ctx, p.ID, latest.TransactionKey)
		return err

	case types.GatewayTxStatusFailed:
		reason := latest.Reason
		if reason == "" {
			reason = "gateway reported failure"
		}
		_, err := s.payments.FinalizeFailed(ctx, p.ID, reason)
		return err

	case types.GatewayTxStatusPending:
		if now.Sub(p.CreatedAt) > s.cfg.ReconcileForceFailAfter() {
			_, err := s.payments.FinalizeFailed(ctx, p.ID, "timeout")
			return err
		}
		// still inside the window: leave untouched for the next tick
		return nil

	default:
		return fmt.Errorf("unknown gateway transaction status %q", latest.Status)
	}
}
