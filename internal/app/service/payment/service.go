package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatflowers/payflow/internal/app/service/gateway"
	"github.com/fatflowers/payflow/internal/models"
	"github.com/fatflowers/payflow/internal/platform/pgw"
	"github.com/fatflowers/payflow/pkg/logctx"
	"github.com/fatflowers/payflow/pkg/metrics"
	"github.com/fatflowers/payflow/pkg/tool"
	"github.com/fatflowers/payflow/pkg/types"

	"go.uber.org/zap"
)

// Coordinator reverses or completes an order's side effects on the
// transition into a terminal state. It runs at most once per payment,
// guaranteed by the version CAS in Finalize.
type Coordinator interface {
	OnPaid(ctx context.Context, p *models.Payment) error
	OnFailed(ctx context.Context, p *models.Payment) error
}

// EventRecorder appends terminal transitions to the outbox, fire-and-forget.
type EventRecorder interface {
	RecordFinalized(ctx context.Context, p *models.Payment)
}

// Service is the single place state transitions happen. Both the webhook
// path and the scheduler path funnel through Finalize*, which arbitrates
// their race with the record's version token.
type Service struct {
	store  Store
	gw     gateway.Client
	comp   Coordinator
	events EventRecorder
	log    *zap.SugaredLogger
}

func NewService(store Store, gw gateway.Client, comp Coordinator, events EventRecorder, log *zap.SugaredLogger) *Service {
	return &Service{store: store, gw: gw, comp: comp, events: events, log: log}
}

// CreateRequest describes a payment to open for an order. MethodToken is
// the gateway's reusable billing token for the card; it is persisted with
// the record so the recovery sweep can resubmit, while the raw card data
// is used once and dropped.
type CreateRequest struct {
	OrderID        string       `json:"order_id"`
	UserID         string       `json:"user_id"`
	TotalAmount    int64        `json:"total_amount"`
	UsedPoint      int64        `json:"used_point"`
	CouponDiscount int64        `json:"coupon_discount"`
	IssuedCouponID *string      `json:"issued_coupon_id"`
	Card           pgw.CardInfo `json:"card"`
	MethodToken    string       `json:"method_token"`
}

// CreateAndSubmit opens a PENDING record and immediately submits it to the
// gateway. A crash between the two steps leaves a PENDING record for the
// recovery sweep to pick up.
func (s *Service) CreateAndSubmit(ctx context.Context, req *CreateRequest) (*models.Payment, error) {
	p, err := models.NewPayment(tool.GenerateUUIDV7(), req.OrderID, req.UserID,
		req.TotalAmount, req.UsedPoint, req.CouponDiscount, req.IssuedCouponID)
	if err != nil {
		return nil, err
	}
	p.MethodToken = req.MethodToken
	if err := s.store.Create(ctx, p); err != nil {
		return nil, err
	}
	return s.Submit(ctx, p.ID, req.Card)
}

// Submit drives a PENDING payment through one gateway submission. Calling
// it on a payment that is no longer PENDING is a no-op returning the
// current record, which makes the recovery sweep idempotent.
func (s *Service) Submit(ctx context.Context, paymentID string, card pgw.CardInfo) (*models.Payment, error) {
	p, err := s.store.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status != types.PaymentStatusPending {
		return p, nil
	}

	outcome := s.gw.Submit(ctx, &gateway.SubmitRequest{
		OrderRef:    p.OrderID,
		Amount:      p.PaidAmount,
		Card:        card,
		MethodToken: p.MethodToken,
	})

	switch o := outcome.(type) {
	case gateway.NotRequired:
		// Fully covered by points/coupon: straight to PAID, no key.
		res, err := s.FinalizePaid(ctx, p.ID, "")
		if err != nil {
			return nil, err
		}
		return res.Record(), nil

	case gateway.Accepted:
		readVersion := p.Version
		if err := p.MarkInProgress(o.Key); err != nil {
			return nil, err
		}
		if err := s.store.UpdateGuarded(ctx, p, readVersion); err != nil {
			if errors.Is(err, ErrConcurrentModification) {
				// Another writer moved the record; their view wins.
				return s.store.Get(ctx, p.ID)
			}
			return nil, err
		}
		return p, nil

	case gateway.Uncertain:
		// The charge may have happened. Freeze in IN_PROGRESS with no key
		// and let reconciliation resolve it via query. Never resubmit.
		readVersion := p.Version
		if err := p.MarkInProgress(""); err != nil {
			return nil, err
		}
		if err := s.store.UpdateGuarded(ctx, p, readVersion); err != nil {
			if errors.Is(err, ErrConcurrentModification) {
				return s.store.Get(ctx, p.ID)
			}
			return nil, err
		}
		logctx.FromCtx(ctx, s.log).Warnw("submission outcome uncertain, awaiting reconciliation",
			"payment_id", p.ID, "order_id", p.OrderID, "cause", o.Cause)
		return p, nil

	case gateway.Rejected:
		res, err := s.FinalizeFailed(ctx, p.ID, o.Reason)
		if err != nil {
			return nil, err
		}
		return res.Record(), nil

	case gateway.NotReached:
		// Certain non-delivery: fail and compensate right away. A fresh
		// payment can always be opened later.
		res, err := s.FinalizeFailed(ctx, p.ID, fmt.Sprintf("gateway unreachable: %v", o.Cause))
		if err != nil {
			return nil, err
		}
		return res.Record(), nil

	default:
		return nil, fmt.Errorf("unhandled submit outcome %T", outcome)
	}
}

// AdoptSubmission moves a PENDING payment to IN_PROGRESS under an already
// existing gateway transaction, discovered by query rather than by a
// submission of our own. Used by the recovery sweep when the process died
// after the gateway call but before the record was updated. A payment
// that is no longer PENDING is returned unchanged.
func (s *Service) AdoptSubmission(ctx context.Context, paymentID, externalKey string) (*models.Payment, error) {
	p, err := s.store.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status != types.PaymentStatusPending {
		return p, nil
	}

	readVersion := p.Version
	if err := p.MarkInProgress(externalKey); err != nil {
		return nil, err
	}
	if err := s.store.UpdateGuarded(ctx, p, readVersion); err != nil {
		if errors.Is(err, ErrConcurrentModification) {
			return s.store.Get(ctx, p.ID)
		}
		return nil, err
	}
	logctx.FromCtx(ctx, s.log).Infow("adopted existing gateway transaction",
		"payment_id", p.ID, "order_id", p.OrderID, "external_payment_key", externalKey)
	return p, nil
}

// Get returns a payment by id.
func (s *Service) Get(ctx context.Context, paymentID string) (*models.Payment, error) {
	return s.store.Get(ctx, paymentID)
}

// GetByOrderID returns the payment opened for an order.
func (s *Service) GetByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	return s.store.GetByOrderID(ctx, orderID)
}

// Scan lists payments for admin pages.
func (s *Service) Scan(ctx context.Context, req *ScanRequest) ([]*models.Payment, int64, error) {
	return s.store.Scan(ctx, req)
}

// FinalizePaid moves the payment to PAID and completes the order, exactly
// once across all concurrent callers.
func (s *Service) FinalizePaid(ctx context.Context, paymentID, externalKey string) (FinalizeResult, error) {
	return s.finalize(ctx, paymentID, func(p *models.Payment) error {
		return p.MarkPaid(externalKey)
	})
}

// FinalizeFailed moves the payment to FAILED with a reason and compensates
// the order's consumed resources, exactly once across all concurrent callers.
func (s *Service) FinalizeFailed(ctx context.Context, paymentID, reason string) (FinalizeResult, error) {
	return s.finalize(ctx, paymentID, func(p *models.Payment) error {
		return p.MarkFailed(reason)
	})
}

func (s *Service) finalize(ctx context.Context, paymentID string, transition func(*models.Payment) error) (FinalizeResult, error) {
	p, err := s.store.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.IsTerminal() {
		metrics.PaymentFinalizedTotal.WithLabelValues(string(p.Status), "already_processed").Inc()
		return AlreadyProcessed{Payment: p}, nil
	}

	readVersion := p.Version
	if err := transition(p); err != nil {
		return nil, err
	}

	if err := s.store.UpdateGuarded(ctx, p, readVersion); err != nil {
		if errors.Is(err, ErrConcurrentModification) {
			// The other writer finalized first. Benign: report their
			// result and run no side effects here.
			current, gerr := s.store.Get(ctx, paymentID)
			if gerr != nil {
				return nil, gerr
			}
			logctx.FromCtx(ctx, s.log).Infow("finalize lost the race, skipping side effects",
				"payment_id", paymentID, "status", current.Status)
			metrics.PaymentFinalizedTotal.WithLabelValues(string(current.Status), "conflict").Inc()
			return AlreadyProcessed{Payment: current}, nil
		}
		return nil, err
	}

	metrics.PaymentFinalizedTotal.WithLabelValues(string(p.Status), "confirmed").Inc()
	logctx.FromCtx(ctx, s.log).Infow("payment finalized",
		"payment_id", p.ID, "order_id", p.OrderID, "status", p.Status)

	// Side effects run only on the winning transition.
	switch p.Status {
	case types.PaymentStatusPaid:
		if err := s.comp.OnPaid(ctx, p); err != nil {
			return nil, fmt.Errorf("payment %s finalized but order completion failed: %w", p.ID, err)
		}
	case types.PaymentStatusFailed:
		if err := s.comp.OnFailed(ctx, p); err != nil {
			return nil, fmt.Errorf("payment %s finalized but compensation failed: %w", p.ID, err)
		}
	}
	s.events.RecordFinalized(ctx, p)

	return Confirmed{Payment: p}, nil
}
