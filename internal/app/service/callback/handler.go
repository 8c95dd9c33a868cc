package callback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fatflowers/payflow/internal/app/service/payment"
	"github.com/fatflowers/payflow/internal/models"
	"github.com/fatflowers/payflow/internal/platform/cache"
	"github.com/fatflowers/payflow/internal/platform/pgw"
	cfgpkg "github.com/fatflowers/payflow/pkg/config"
	"github.com/fatflowers/payflow/pkg/logctx"
	"github.com/fatflowers/payflow/pkg/types"

	"github.com/golang-jwt/jwt"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

var (
	// ErrInvalidSignature rejects callbacks whose JWS token does not verify
	// or does not match the payload.
	ErrInvalidSignature = errors.New("invalid callback signature")
	// ErrUnknownTransaction rejects callbacks referencing a key the gateway
	// itself does not recognize (spoofed or stale delivery).
	ErrUnknownTransaction = errors.New("callback references unknown transaction")
)

// Notification is the gateway's push payload.
type Notification struct {
	OrderRef           string `json:"order_ref"`
	ExternalPaymentKey string `json:"external_payment_key"`
}

// Querier is the slice of the gateway client the handler needs.
type Querier interface {
	QueryByKey(ctx context.Context, key string) (*pgw.Transaction, error)
}

// AuditLog persists callback delivery records, fire-and-forget.
type AuditLog interface {
	SaveCallbackLog(ctx context.Context, l *models.CallbackLog)
}

// Handler processes gateway push callbacks. The body is never trusted:
// the authoritative transaction is re-fetched from the gateway before any
// state change. Duplicate deliveries are idempotent.
type Handler struct {
	payments *payment.Service
	gw       Querier
	events   AuditLog
	dedup    *cache.Client
	cfg      *cfgpkg.Config
	Logger   *zap.SugaredLogger
}

func NewHandler(payments *payment.Service, gw Querier, events AuditLog, dedup *cache.Client, cfg *cfgpkg.Config, log *zap.SugaredLogger) *Handler {
	return &Handler{payments: payments, gw: gw, events: events, dedup: dedup, cfg: cfg, Logger: log}
}

// Handle verifies and applies one callback delivery. The signature token
// is required only when a webhook secret is configured.
func (h *Handler) Handle(ctx context.Context, n *Notification, signature string) (resErr error) {
	log := logctx.FromCtx(ctx, h.Logger)

	var traceID string
	if v, ok := ctx.Value("traceID").(string); ok {
		traceID = v
	}
	dataBytes, _ := json.Marshal(n)
	h.events.SaveCallbackLog(ctx, &models.CallbackLog{
		OrderID:            n.OrderRef,
		ExternalPaymentKey: n.ExternalPaymentKey,
		TraceID:            traceID,
		ReceivedAt:         time.Now(),
		Data:               datatypes.JSON(dataBytes),
		Status:             models.CallbackLogStatusReceived,
	})

	var finalStatus types.PaymentStatus
	defer func() {
		resMap := map[string]any{"status": finalStatus}
		if resErr != nil {
			resMap["error"] = resErr.Error()
		}
		resBytes, _ := json.Marshal(resMap)
		status := models.CallbackLogStatusHandled
		if resErr != nil {
			status = models.CallbackLogStatusHandleFailed
		}
		res := datatypes.JSON(resBytes)
		h.events.SaveCallbackLog(ctx, &models.CallbackLog{
			OrderID:            n.OrderRef,
			ExternalPaymentKey: n.ExternalPaymentKey,
			TraceID:            traceID,
			ReceivedAt:         time.Now(),
			Data:               datatypes.JSON(dataBytes),
			Result:             &res,
			Status:             status,
		})
	}()

	if n.OrderRef == "" || n.ExternalPaymentKey == "" {
		resErr = fmt.Errorf("callback missing order ref or payment key")
		return resErr
	}

	if h.cfg.Gateway.WebhookSecret != "" {
		if err := h.verifySignature(n, signature); err != nil {
			resErr = err
			return resErr
		}
	}

	p, err := h.payments.GetByOrderID(ctx, n.OrderRef)
	if err != nil {
		resErr = fmt.Errorf("failed to locate payment for order %s: %w", n.OrderRef, err)
		return resErr
	}
	finalStatus = p.Status

	// Idempotent delivery: an already-terminal payment means this callback
	// (or the scheduler) was here before. No side effects, report success.
	if p.IsTerminal() {
		log.Infow("callback on terminal payment, nothing to do",
			"payment_id", p.ID, "order_id", p.OrderID, "status", p.Status)
		return nil
	}

	// Advisory duplicate shield; correctness lives in the finalize CAS.
	dedupKey := "cb:" + n.OrderRef + ":" + n.ExternalPaymentKey
	if !h.dedup.SetNX(ctx, dedupKey, "1", 10*time.Minute) {
		log.Infow("duplicate callback delivery already in flight", "order_id", n.OrderRef)
	}

	// The callback body is a hint, never the truth: fetch the
	// authoritative transaction by key.
	tx, err := h.gw.QueryByKey(ctx, n.ExternalPaymentKey)
	if err != nil {
		if pgw.IsNotFound(err) {
			resErr = fmt.Errorf("%w: %s", ErrUnknownTransaction, n.ExternalPaymentKey)
			return resErr
		}
		resErr = fmt.Errorf("failed to verify callback with gateway: %w", err)
		return resErr
	}

	var result payment.FinalizeResult
	switch tx.Status {
	case types.GatewayTxStatusSuccess:
		result, err = h.payments.FinalizePaid(ctx, p.ID, tx.TransactionKey)
	case types.GatewayTxStatusFailed:
		reason := tx.Reason
		if reason == "" {
			reason = "gateway reported failure"
		}
		result, err = h.payments.FinalizeFailed(ctx, p.ID, reason)
	case types.GatewayTxStatusPending:
		// premature callback; the scheduler will finish the job
		log.Infow("callback for still-pending transaction, deferring",
			"payment_id", p.ID, "order_id", p.OrderID)
		return nil
	default:
		resErr = fmt.Errorf("unknown gateway transaction status %q", tx.Status)
		return resErr
	}
	if err != nil {
		resErr = err
		return resErr
	}

	finalStatus = result.Record().Status
	if _, ok := result.(payment.AlreadyProcessed); ok {
		log.Infow("callback lost the finalize race, benign",
			"payment_id", p.ID, "status", finalStatus)
	}
	return nil
}

// verifySignature checks the HS256 JWS token the gateway attaches to each
// callback. The claims must match the delivered payload.
func (h *Handler) verifySignature(n *Notification, signature string) error {
	if signature == "" {
		return fmt.Errorf("%w: missing token", ErrInvalidSignature)
	}
	token, err := jwt.Parse(signature, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(h.cfg.Gateway.WebhookSecret), nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return ErrInvalidSignature
	}
	if claims["order_ref"] != n.OrderRef || claims["external_payment_key"] != n.ExternalPaymentKey {
		return fmt.Errorf("%w: claims do not match payload", ErrInvalidSignature)
	}
	return nil
}
